package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/icetech/icetray/internal/artifact"
	"github.com/icetech/icetray/internal/deploy"
	"github.com/icetech/icetray/internal/infrastructure/logging"
	"github.com/icetech/icetray/internal/infrastructure/mqtt"
)

// runAgent mirrors retained artifacts from the broker into the output
// directory until ctx is cancelled.
func runAgent(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("agent", "")
	name := fs.String("name", "", "mirror only this cube (default: all cubes)")
	clientID := fs.String("client-id", "", "MQTT client ID (default: <mqtt.broker.client_id>-agent-<hostname>)")
	outDir := fs.String("o", "", "output directory (overrides build.output_dir)")
	if _, err := parseArgs(fs, args, 0); err != nil {
		return err
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if !cfg.MQTT.Enabled {
		return errors.New("agent requires mqtt.enabled")
	}
	if *outDir != "" {
		cfg.Build.OutputDir = *outDir
	}
	if *clientID == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "unknown"
		}
		*clientID = fmt.Sprintf("%s-agent-%s", cfg.MQTT.Broker.ClientID, host)
	}
	cfg.MQTT.Broker.ClientID = *clientID

	log := logging.New(cfg.Logging, version)

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	store := artifact.NewWriter(cfg.Build)
	agent, err := deploy.NewAgent(deploy.AgentOptions{
		MQTT:   mqttClient,
		Store:  store,
		Name:   *name,
		QoS:    byte(cfg.MQTT.QoS), //nolint:gosec // Validated to 0-2 by config
		Logger: log,
	})
	if err != nil {
		return err
	}
	if err := agent.Start(); err != nil {
		return err
	}
	defer agent.Stop()

	log.Info("mirroring artifacts", "output_dir", store.Root(), "topic", agent.Topic())
	<-ctx.Done()
	return nil
}
