package deploy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/icetech/icetray/internal/artifact"
	"github.com/icetech/icetray/internal/catalogue"
	"github.com/icetech/icetray/internal/document"
	"github.com/icetech/icetray/internal/icecube"
	"github.com/icetech/icetray/internal/infrastructure/mqtt"
)

// buildTimeout bounds one request, including the catalogue write.
const buildTimeout = 10 * time.Second

// MQTTClient is the subset of the MQTT client the service uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Builder builds and stores IceCubes. Implemented by *catalogue.Registry.
type Builder interface {
	Build(ctx context.Context, doc icecube.Document, source string) (*catalogue.Entry, error)
}

// ArtifactWriter stores artifacts on disk. Implemented by *artifact.Writer.
type ArtifactWriter interface {
	Write(dev *icecube.Device) (artifact.Paths, error)
}

// Logger defines the logging interface used by the Service.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Service.
type Options struct {
	MQTT    MQTTClient
	Builder Builder

	// Writer is optional; when set, requested builds are also written to disk.
	Writer ArtifactWriter

	// QoS for subscriptions and publishes.
	QoS byte

	Logger Logger
}

// Service answers build requests received over MQTT.
type Service struct {
	mqtt    MQTTClient
	builder Builder
	writer  ArtifactWriter
	qos     byte
	logger  Logger
	topics  mqtt.Topics

	ctx       context.Context
	ctxCancel context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once
	now       func() time.Time
}

// NewService creates a deploy service. Call Start to subscribe.
func NewService(opts Options) (*Service, error) {
	if opts.MQTT == nil {
		return nil, errors.New("deploy: MQTT client is required")
	}
	if opts.Builder == nil {
		return nil, errors.New("deploy: builder is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		mqtt:      opts.MQTT,
		builder:   opts.Builder,
		writer:    opts.Writer,
		qos:       opts.QoS,
		logger:    logger,
		ctx:       ctx,
		ctxCancel: cancel,
		now:       time.Now,
	}, nil
}

// Start subscribes to the build request topic.
func (s *Service) Start() error {
	topic := s.topics.BuildRequest()
	if err := s.mqtt.Subscribe(topic, s.qos, s.handleRequest); err != nil {
		return fmt.Errorf("subscribe to build requests: %w", err)
	}
	s.logger.Info("deploy service started", "topic", topic)
	return nil
}

// Stop unsubscribes and waits for in-flight requests.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		if err := s.mqtt.Unsubscribe(s.topics.BuildRequest()); err != nil {
			s.logger.Warn("unsubscribing from build requests", "error", err)
		}
		s.ctxCancel()
		s.wg.Wait()
		s.logger.Info("deploy service stopped")
	})
}

// handleRequest is the MQTT handler for icetray/request/build.
func (s *Service) handleRequest(_ string, payload []byte) error {
	s.wg.Add(1)
	defer s.wg.Done()

	// Requests without a usable name have no response topic; they are
	// only logged.
	doc, err := document.DecodeBytes(payload, document.FormatJSON)
	if err != nil {
		if name := peekName(payload); name != "" {
			return s.respondError(name, ErrCodeInvalidDocument, err)
		}
		return fmt.Errorf("decoding build request: %w", err)
	}
	if doc.Name == "" {
		return fmt.Errorf("build request has no name: %w", icecube.ErrInvalidName)
	}

	ctx, cancel := context.WithTimeout(s.ctx, buildTimeout)
	defer cancel()

	entry, err := s.builder.Build(ctx, doc, catalogue.SourceMQTT)
	if err != nil {
		code := ErrCodeInternal
		if icecube.IsValidationError(err) {
			code = ErrCodeValidationFailed
		}
		return s.respondError(doc.Name, code, err)
	}

	if s.writer != nil {
		if _, err := s.writer.Write(entry.Device); err != nil {
			s.logger.Error("writing artifacts", "name", entry.Name(), "error", err)
		}
	}

	if err := s.Publish(entry.Device); err != nil {
		return s.respondError(doc.Name, ErrCodeInternal, err)
	}

	return s.respond(ResponseMessage{
		Name:       entry.Name(),
		Timestamp:  s.now().UTC(),
		Success:    true,
		ReadCount:  entry.Device.CountRead(),
		WriteCount: entry.Device.CountWrite(),
		TargetFile: entry.Device.TargetFile(),
	})
}

// Publish sends the artifacts of dev as retained messages.
func (s *Service) Publish(dev *icecube.Device) error {
	docJSON, err := document.Marshal(dev.Document(), document.FormatJSON)
	if err != nil {
		return err
	}

	artifacts := []struct {
		kind string
		data []byte
	}{
		{mqtt.ArtifactDB, []byte(dev.DBText())},
		{mqtt.ArtifactProto, []byte(dev.ProtoText())},
		{mqtt.ArtifactDocument, docJSON},
	}
	for _, a := range artifacts {
		topic := s.topics.Artifact(dev.Name(), a.kind)
		if err := s.mqtt.Publish(topic, a.data, s.qos, true); err != nil {
			return fmt.Errorf("publishing %s: %w", topic, err)
		}
	}

	s.logger.Info("icecube artifacts published", "name", dev.Name())
	return nil
}

// Retract clears the retained artifacts of a deleted cube.
func (s *Service) Retract(name string) error {
	for _, kind := range []string{mqtt.ArtifactDB, mqtt.ArtifactProto, mqtt.ArtifactDocument} {
		topic := s.topics.Artifact(name, kind)
		if err := s.mqtt.Publish(topic, nil, s.qos, true); err != nil {
			return fmt.Errorf("clearing %s: %w", topic, err)
		}
	}
	return nil
}

// respondError replies on the requester's response topic. A name that is
// not a valid cube name cannot form a topic, so that failure is returned
// to the handler for logging instead.
func (s *Service) respondError(name, code string, cause error) error {
	if err := icecube.ValidateName(name); err != nil {
		return fmt.Errorf("build request %q has no response topic: %w", name, errors.Join(err, cause))
	}
	s.logger.Warn("build request failed", "name", name, "code", code, "error", cause)
	return s.respond(ResponseMessage{
		Name:      name,
		Timestamp: s.now().UTC(),
		Success:   false,
		Error:     &ResponseError{Code: code, Message: cause.Error()},
	})
}

// peekName extracts the name of a document whose signals did not decode.
func peekName(payload []byte) string {
	var head struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return ""
	}
	return head.Name
}

func (s *Service) respond(resp ResponseMessage) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshalling response: %w", err)
	}
	if err := s.mqtt.Publish(s.topics.BuildResponse(resp.Name), payload, s.qos, false); err != nil {
		return fmt.Errorf("publishing response: %w", err)
	}
	return nil
}
