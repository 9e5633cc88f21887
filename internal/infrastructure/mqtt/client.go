package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/icetech/icetray/internal/infrastructure/config"
)

// Client is the build service's broker connection. It announces the
// service on its status topic, replays build-request subscriptions after
// a reconnect and shields paho from handler panics.
//
// All methods are safe for concurrent use.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig

	subscriptions map[string]subscription
	subMu         sync.RWMutex

	online atomic.Bool

	hooks   hooks
	hooksMu sync.RWMutex
}

// hooks are the caller-supplied reactions to connection events.
type hooks struct {
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger is the subset of logging.Logger the client reports through.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler receives one build request or artifact message.
//
// Handlers run on paho's goroutines. A returned error is logged and the
// message is still acknowledged.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker with the service's Last Will armed on
// Topics.SystemStatus for cfg.Broker.ClientID.
//
// Returns ErrConnectionFailed if the broker does not answer within the
// connect timeout.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)

	c := &Client{
		cfg:           cfg,
		options:       opts,
		subscriptions: make(map[string]subscription),
	}
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: no answer from %s within %v",
			ErrConnectionFailed, brokerURL(cfg.Broker), defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// OnConnect may still be pending on paho's goroutine.
	c.online.Store(true)
	return c, nil
}

func (c *Client) currentHooks() hooks {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()
	return c.hooks
}

func (c *Client) handleConnect() {
	c.online.Store(true)
	c.resubscribe()
	c.announce("online", "")

	if h := c.currentHooks(); h.onConnect != nil {
		h.onConnect()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.online.Store(false)

	h := c.currentHooks()
	if h.logger != nil {
		h.logger.Warn("broker connection lost", "client_id", c.cfg.Broker.ClientID, "error", err)
	}
	if h.onDisconnect != nil {
		h.onDisconnect(err)
	}
}

// resubscribe replays every tracked subscription; paho starts each
// session with none when clean sessions are on.
func (c *Client) resubscribe() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for _, sub := range c.subscriptions {
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
}

// announce publishes a retained status for this service instance.
func (c *Client) announce(status, reason string) pahomqtt.Token {
	id := c.cfg.Broker.ClientID
	return c.client.Publish(Topics{}.SystemStatus(id), byte(c.cfg.QoS), true,
		buildStatusPayload(status, id, reason))
}

// Close announces a graceful offline status and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() {
		c.announce("offline", "graceful_shutdown").WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.online.Store(false)
	return nil
}

// HealthCheck implements api.HealthChecker.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether both the client and paho consider the
// session up.
func (c *Client) IsConnected() bool {
	return c.online.Load() && c.client != nil && c.client.IsConnected()
}

// SetOnConnect sets a callback run on connect and on every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.hooksMu.Lock()
	c.hooks.onConnect = callback
	c.hooksMu.Unlock()
}

// SetOnDisconnect sets a callback run when the connection drops.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.hooksMu.Lock()
	c.hooks.onDisconnect = callback
	c.hooksMu.Unlock()
}

// SetLogger sets where handler failures and connection loss are reported.
func (c *Client) SetLogger(logger Logger) {
	c.hooksMu.Lock()
	c.hooks.logger = logger
	c.hooksMu.Unlock()
}

// wrapHandler adapts a MessageHandler to paho, logging returned errors
// and recovered panics.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		logger := c.currentHooks().logger
		defer func() {
			if r := recover(); r != nil && logger != nil {
				logger.Error("message handler panicked", "topic", msg.Topic(), "panic", r)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil && logger != nil {
			logger.Warn("message handler failed", "topic", msg.Topic(), "error", err)
		}
	}
}
