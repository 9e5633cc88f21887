package deploy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/icetech/icetray/internal/artifact"
	"github.com/icetech/icetray/internal/document"
	"github.com/icetech/icetray/internal/infrastructure/config"
	"github.com/icetech/icetray/internal/infrastructure/mqtt"
)

func hostWriter(t *testing.T) *artifact.Writer {
	t.Helper()
	cfg := config.Default().Build
	cfg.OutputDir = filepath.Join(t.TempDir(), "ioc")
	return artifact.NewWriter(cfg)
}

func TestArtifactKindsMatchTopics(t *testing.T) {
	pairs := [][2]string{
		{mqtt.ArtifactDB, artifact.KindDB},
		{mqtt.ArtifactProto, artifact.KindProto},
		{mqtt.ArtifactDocument, artifact.KindDocument},
	}
	for _, p := range pairs {
		if p[0] != p[1] {
			t.Errorf("topic kind %q != artifact kind %q", p[0], p[1])
		}
	}
}

func TestNewAgent_Validation(t *testing.T) {
	if _, err := NewAgent(AgentOptions{Store: hostWriter(t)}); err == nil {
		t.Error("NewAgent() without MQTT client should fail")
	}
	if _, err := NewAgent(AgentOptions{MQTT: newMockMQTT()}); err == nil {
		t.Error("NewAgent() without store should fail")
	}
}

func TestAgent_Topic(t *testing.T) {
	all, err := NewAgent(AgentOptions{MQTT: newMockMQTT(), Store: hostWriter(t)})
	if err != nil {
		t.Fatal(err)
	}
	if got := all.Topic(); got != "icetray/artifact/+/+" {
		t.Errorf("Topic() = %q", got)
	}

	one, err := NewAgent(AgentOptions{MQTT: newMockMQTT(), Store: hostWriter(t), Name: "RPi1"})
	if err != nil {
		t.Fatal(err)
	}
	if got := one.Topic(); got != "icetray/artifact/RPi1/+" {
		t.Errorf("Topic() = %q", got)
	}
}

// TestAgent_MirrorsPublishedArtifacts runs a build through the Service and
// replays its publishes into an Agent, as the broker would.
func TestAgent_MirrorsPublishedArtifacts(t *testing.T) {
	svc, m := startService(t, Options{})
	if err := m.deliver(t, mqtt.Topics{}.BuildRequest(), rpi1Request); err != nil {
		t.Fatalf("build request error = %v", err)
	}

	store := hostWriter(t)
	agent, err := NewAgent(AgentOptions{MQTT: m, Store: store, QoS: 1})
	if err != nil {
		t.Fatalf("NewAgent() error = %v", err)
	}
	if err := agent.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// The broker routes by the real topic; the mock only knows the filter.
	m.mu.Lock()
	handler := m.handlers[agent.Topic()]
	m.mu.Unlock()
	if handler == nil {
		t.Fatal("agent did not subscribe")
	}
	replay := func() {
		m.mu.Lock()
		msgs := append([]published(nil), m.published...)
		m.published = nil
		m.mu.Unlock()
		for _, p := range msgs {
			if !strings.HasPrefix(p.topic, mqtt.TopicPrefix+"/artifact/") {
				continue
			}
			if err := handler(p.topic, p.payload); err != nil {
				t.Fatalf("agent handler error for %s: %v", p.topic, err)
			}
		}
	}
	replay()

	paths := store.PathsFor("RPi1")
	dbText, err := os.ReadFile(paths.DB)
	if err != nil {
		t.Fatalf("db artifact not mirrored: %v", err)
	}
	if !strings.HasPrefix(string(dbText), "record(ai, photoresistor1) {") {
		t.Errorf("mirrored db = %q", dbText)
	}
	doc, err := document.LoadFile(paths.Document)
	if err != nil {
		t.Fatalf("mirrored document: %v", err)
	}
	if doc.Name != "RPi1" || len(doc.Signals) != 2 {
		t.Errorf("mirrored document = %+v", doc)
	}

	if err := svc.Retract("RPi1"); err != nil {
		t.Fatalf("Retract() error = %v", err)
	}
	replay()
	for _, path := range []string{paths.DB, paths.Proto, paths.Document} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("%s still present after retraction: %v", path, err)
		}
	}
}

func TestAgent_RejectsBadTopics(t *testing.T) {
	store := hostWriter(t)
	agent, err := NewAgent(AgentOptions{MQTT: newMockMQTT(), Store: store})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		topic string
	}{
		{"not an artifact", "icetray/request/build"},
		{"unknown kind", "icetray/artifact/RPi1/firmware"},
		{"bad cube name", "icetray/artifact/../db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := agent.handleArtifact(tt.topic, []byte("x")); err == nil {
				t.Errorf("handleArtifact(%q) should fail", tt.topic)
			}
		})
	}

	entries, err := os.ReadDir(store.Root())
	if err == nil && len(entries) != 0 {
		t.Errorf("output root holds %d entries, want none", len(entries))
	}
}

func TestAgent_StartStop(t *testing.T) {
	m := newMockMQTT()
	agent, err := NewAgent(AgentOptions{MQTT: m, Store: hostWriter(t), Name: "RPi1"})
	if err != nil {
		t.Fatal(err)
	}
	if err := agent.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	m.mu.Lock()
	_, ok := m.handlers["icetray/artifact/RPi1/+"]
	m.mu.Unlock()
	if !ok {
		t.Error("agent not subscribed to its cube's artifacts")
	}

	agent.Stop()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.handlers) != 0 {
		t.Errorf("handlers after Stop = %d", len(m.handlers))
	}
}
