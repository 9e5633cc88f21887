package main

import (
	"context"
	"fmt"

	"github.com/icetech/icetray/internal/api"
	"github.com/icetech/icetray/internal/artifact"
	"github.com/icetech/icetray/internal/deploy"
	"github.com/icetech/icetray/internal/infrastructure/influxdb"
	"github.com/icetech/icetray/internal/infrastructure/logging"
	"github.com/icetech/icetray/internal/infrastructure/mqtt"
	"github.com/icetech/icetray/internal/metrics"
)

// runServe runs the catalogue behind the HTTP API and, when enabled, the
// MQTT deploy service, until ctx is cancelled.
func runServe(ctx context.Context, a *app, args []string) error {
	fs := a.newFlagSet("serve", "")
	if _, err := parseArgs(fs, args, 0); err != nil {
		return err
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting IceTray",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Open database and load the catalogue
	db, registry, err := openCatalogue(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("icecube registry initialised", "icecubes", registry.Count(), "database", cfg.Database.Path)

	health := map[string]api.HealthChecker{"database": db}

	// Metrics
	collector := metrics.New()
	registry.AddObserver(collector)
	if err := collector.TrackCatalogue(registry.Count); err != nil {
		return err
	}

	// Connect to InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		registry.AddObserver(influxClient)
		health["influxdb"] = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	writer := artifact.NewWriter(cfg.Build)

	// Connect to MQTT and start the deploy service (optional)
	var publisher api.ArtifactPublisher
	if cfg.MQTT.Enabled {
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
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		health["mqtt"] = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		svc, err := deploy.NewService(deploy.Options{
			MQTT:    mqttClient,
			Builder: registry,
			Writer:  writer,
			QoS:     byte(cfg.MQTT.QoS), //nolint:gosec // Validated to 0-2 by config
			Logger:  log,
		})
		if err != nil {
			return fmt.Errorf("creating deploy service: %w", err)
		}
		if err := svc.Start(); err != nil {
			return fmt.Errorf("starting deploy service: %w", err)
		}
		defer func() {
			log.Info("stopping deploy service")
			svc.Stop()
		}()
		publisher = svc
	} else {
		log.Info("MQTT disabled, deploy service not started")
	}

	// Start the HTTP API
	srv, err := api.New(api.Deps{
		Config:    cfg.API,
		Logger:    log,
		Registry:  registry,
		Writer:    writer,
		Publisher: publisher,
		Metrics:   collector.Handler(),
		Health:    health,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}
