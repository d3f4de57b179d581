// Les Bulles de Joie - School Results Portal
//
// This is the main entry point for the portal server. It serves the
// authentication API (login, refresh, logout), the students' own results,
// the administrator views and the session-event WebSocket.
//
// For the configuration reference, see: configs/config.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/bulles-portal/internal/api"
	"github.com/nerrad567/bulles-portal/internal/audit"
	"github.com/nerrad567/bulles-portal/internal/auth"
	"github.com/nerrad567/bulles-portal/internal/infrastructure/config"
	"github.com/nerrad567/bulles-portal/internal/infrastructure/database"
	"github.com/nerrad567/bulles-portal/internal/infrastructure/influxdb"
	"github.com/nerrad567/bulles-portal/internal/infrastructure/logging"
	"github.com/nerrad567/bulles-portal/internal/infrastructure/mqtt"
	"github.com/nerrad567/bulles-portal/internal/roster"
	"github.com/nerrad567/bulles-portal/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Bulles portal",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(database.ConfigFrom(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	store, err := openRoster(ctx, cfg, db, log)
	if err != nil {
		return fmt.Errorf("loading roster: %w", err)
	}
	accounts, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting accounts: %w", err)
	}
	log.Info("roster loaded", "backend", cfg.Roster.Backend, "accounts", accounts)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled, auth events will only be logged")
	}

	// Connect to InfluxDB (optional)
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		influxClient = nil
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		influxClient.OnWriteError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	}

	tokens, revocations, err := newTokenService(cfg, db, store)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	if revocations != nil {
		log.Info("session revocation enabled, logout invalidates tokens server-side")
	}

	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log,
		Roster:      store,
		Tokens:      tokens,
		Sessions:    auth.NewSessionRegistry(nil),
		Revocations: revocations,
		AuditRepo:   audit.NewSQLiteRepository(db.DB),
		DB:          db,
		MQTT:        mqttClient,
		Influx:      influxClient,
		Version:     cfg.Site.Version,
	})
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

	if err := healthCheck(ctx, db, server, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal", "address", server.Addr())

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API server, InfluxDB, MQTT, then the database.

	log.Info("Bulles portal stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses BULLES_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("BULLES_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openRoster builds the account and results store for the configured backend.
// Both backends seed the fixture roster; the SQLite one only on first run.
func openRoster(ctx context.Context, cfg *config.Config, db *database.DB, log *logging.Logger) (*roster.Store, error) {
	opts := roster.Options{
		AdminPassword: cfg.Roster.AdminPassword,
		Logger:        log,
	}
	if cfg.Roster.AdminPassword == "" {
		log.Warn("no admin password configured, admin account will not be seeded")
	}

	if cfg.Roster.Backend == config.RosterBackendMemory {
		return roster.NewMemory(ctx, opts)
	}
	return roster.NewSQLite(ctx, db.DB, opts)
}

// newTokenService wires the two signing keys and, when enabled, the
// server-side revocation store.
func newTokenService(cfg *config.Config, db *database.DB, users auth.CredentialStore) (*auth.TokenService, *auth.RevocationStore, error) {
	tcfg := auth.TokenConfig{
		AccessSecret:  cfg.Security.JWT.AccessSecret,
		RefreshSecret: cfg.Security.JWT.RefreshSecret,
		AccessTTL:     cfg.Security.JWT.AccessTokenTTL,
		RefreshTTL:    cfg.Security.JWT.RefreshTokenTTL,
	}

	// Revocations must stay a nil interface when disabled, not a nil *RevocationStore.
	var revocations *auth.RevocationStore
	if cfg.Security.Revocation.Enabled {
		revocations = auth.NewRevocationStore(db.DB, nil)
		tcfg.Revocations = revocations
	}

	tokens, err := auth.NewTokenService(tcfg, users)
	if err != nil {
		return nil, nil, err
	}
	return tokens, revocations, nil
}

// healthCheck verifies all infrastructure connections are healthy.
// The MQTT and InfluxDB clients may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, server *api.Server, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
