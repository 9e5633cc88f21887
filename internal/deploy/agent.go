package deploy

import (
	"errors"
	"fmt"

	"github.com/icetech/icetray/internal/infrastructure/mqtt"
)

// ArtifactStore keeps single artifacts on an IOC host.
// Implemented by *artifact.Writer.
type ArtifactStore interface {
	Store(name, kind string, data []byte) (string, error)
	Discard(name, kind string) error
}

// AgentOptions configures an Agent.
type AgentOptions struct {
	MQTT  MQTTClient
	Store ArtifactStore

	// Name restricts the agent to one cube. Empty mirrors every cube.
	Name string

	QoS    byte
	Logger Logger
}

// Agent runs on an IOC host and mirrors retained artifacts to disk. An
// empty retained payload (a retraction) removes the file.
type Agent struct {
	mqtt   MQTTClient
	store  ArtifactStore
	name   string
	qos    byte
	logger Logger
	topics mqtt.Topics
}

// NewAgent creates an agent. Call Start to subscribe.
func NewAgent(opts AgentOptions) (*Agent, error) {
	if opts.MQTT == nil {
		return nil, errors.New("deploy: MQTT client is required")
	}
	if opts.Store == nil {
		return nil, errors.New("deploy: artifact store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Agent{
		mqtt:   opts.MQTT,
		store:  opts.Store,
		name:   opts.Name,
		qos:    opts.QoS,
		logger: logger,
	}, nil
}

// Topic returns the subscription filter.
func (a *Agent) Topic() string {
	if a.name == "" {
		return a.topics.AllArtifacts()
	}
	return a.topics.ArtifactsOf(a.name)
}

// Start subscribes to the artifact topics. Retained artifacts arrive
// immediately.
func (a *Agent) Start() error {
	if err := a.mqtt.Subscribe(a.Topic(), a.qos, a.handleArtifact); err != nil {
		return fmt.Errorf("subscribe to artifacts: %w", err)
	}
	a.logger.Info("deploy agent started", "topic", a.Topic())
	return nil
}

// Stop unsubscribes.
func (a *Agent) Stop() {
	if err := a.mqtt.Unsubscribe(a.Topic()); err != nil {
		a.logger.Warn("unsubscribing from artifacts", "error", err)
	}
}

func (a *Agent) handleArtifact(topic string, payload []byte) error {
	name, kind, ok := a.topics.ParseArtifact(topic)
	if !ok {
		return fmt.Errorf("unexpected artifact topic %q", topic)
	}

	if len(payload) == 0 {
		if err := a.store.Discard(name, kind); err != nil {
			return fmt.Errorf("discarding %s/%s: %w", name, kind, err)
		}
		a.logger.Info("artifact retracted", "name", name, "kind", kind)
		return nil
	}

	path, err := a.store.Store(name, kind, payload)
	if err != nil {
		return fmt.Errorf("storing %s/%s: %w", name, kind, err)
	}
	a.logger.Info("artifact received", "name", name, "kind", kind, "path", path, "bytes", len(payload))
	return nil
}
