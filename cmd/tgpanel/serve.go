package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tgpanel/core/internal/api"
	"github.com/tgpanel/core/internal/audit"
	"github.com/tgpanel/core/internal/command"
	"github.com/tgpanel/core/internal/correlation"
	"github.com/tgpanel/core/internal/device"
	"github.com/tgpanel/core/internal/firmware"
	"github.com/tgpanel/core/internal/infrastructure/config"
	"github.com/tgpanel/core/internal/infrastructure/database"
	"github.com/tgpanel/core/internal/infrastructure/influxdb"
	"github.com/tgpanel/core/internal/infrastructure/logging"
	"github.com/tgpanel/core/internal/infrastructure/mqtt"
	"github.com/tgpanel/core/internal/user"
	"github.com/tgpanel/core/migrations"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and device command relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts.resolveConfigPath())
		},
	}
}

// run starts every component and blocks until ctx is cancelled. Deferred
// closes run in reverse start order.
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting tgpanel",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	directory, err := device.NewDirectory(device.NewSQLiteRepository(db.DB), cfg.Devices.DirectoryCacheSize)
	if err != nil {
		return fmt.Errorf("creating device directory: %w", err)
	}
	directory.SetLogger(log.Component("devices"))

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
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	registry := correlation.NewRegistry(mqttClient)
	registry.SetLogger(log.Component("correlation"))
	registry.SetResponseQoS(byte(cfg.MQTT.QoS)) //nolint:gosec // validated 0..2
	defer func() {
		if closeErr := registry.Close(); closeErr != nil {
			log.Error("error closing correlation registry", "error", closeErr)
		}
	}()

	commands, err := command.NewService(command.Deps{
		Caller:    registry,
		Publisher: mqttClient,
		Directory: directory,
		Committer: directory,
	}, command.Config{
		PairTimeout:   cfg.Devices.PairTimeout,
		StatusTimeout: cfg.Devices.StatusTimeout,
		Delivery:      mqttClient.DefaultDelivery(),
	})
	if err != nil {
		return fmt.Errorf("creating command service: %w", err)
	}
	commands.SetLogger(log.Component("commands"))
	observers := command.Observers{logObserver{log: log.Component("commands")}}

	health := map[string]api.HealthChecker{
		"database": db,
		"mqtt":     mqttClient,
	}

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
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
		observers = append(observers, telemetryObserver{sink: influxClient})
		health["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}
	commands.SetObserver(observers)

	deps := api.Deps{
		Config:    cfg.API,
		Security:  cfg.Security,
		WebAppDir: cfg.App.WebAppDir,
		Logger:    log.Component("api"),
		Commands:  commands,
		Devices:   directory,
		Users:     user.NewSQLiteRepository(db.DB),
		Shares:    user.NewSQLiteShareRepository(db.DB),
		AuditRepo: audit.NewSQLiteRepository(db.DB),
		Health:    health,
		Requests:  registry,
		Version:   version,
	}
	fw, err := startFirmware(ctx, cfg.Firmware, log)
	switch {
	case err == nil:
		deps.Firmware = fw
	case errors.Is(err, firmware.ErrDisabled):
		log.Info("firmware tracking disabled")
	default:
		return err
	}

	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	st := registry.Stats()
	log.Info("shutdown signal received, cleaning up",
		"pending_requests", st.Pending,
		"completed", st.Completed,
		"timed_out", st.TimedOut,
		"superseded", st.Superseded,
		"malformed", st.Malformed,
	)
	return nil
}

// startFirmware creates the firmware service and primes its cache. A
// failed first fetch is logged, not fatal: the webhook refreshes it later.
func startFirmware(ctx context.Context, cfg config.FirmwareConfig, log *logging.Logger) (*firmware.Service, error) {
	svc, err := firmware.NewService(cfg)
	if err != nil {
		if errors.Is(err, firmware.ErrDisabled) {
			return nil, err
		}
		return nil, fmt.Errorf("creating firmware service: %w", err)
	}
	svc.SetLogger(log.Component("firmware"))

	if _, err := svc.FetchLatest(ctx); err != nil {
		log.Warn("initial firmware fetch failed", "error", err)
	}
	return svc, nil
}
