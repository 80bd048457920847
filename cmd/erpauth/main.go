// ERP Auth - tenant-aware authentication and authorization service.
//
// This is the main entry point. It wires configuration, storage, the
// security event pipeline and the HTTP API, then blocks until a shutdown
// signal arrives.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	_ "github.com/Rajatsinha05/erp-sub004/migrations"

	"github.com/Rajatsinha05/erp-sub004/internal/api"
	"github.com/Rajatsinha05/erp-sub004/internal/audit"
	"github.com/Rajatsinha05/erp-sub004/internal/auth"
	"github.com/Rajatsinha05/erp-sub004/internal/infrastructure/config"
	"github.com/Rajatsinha05/erp-sub004/internal/infrastructure/database"
	"github.com/Rajatsinha05/erp-sub004/internal/infrastructure/influxdb"
	"github.com/Rajatsinha05/erp-sub004/internal/infrastructure/logging"
	"github.com/Rajatsinha05/erp-sub004/internal/infrastructure/metrics"
	"github.com/Rajatsinha05/erp-sub004/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configEnvVar      = "ERPAUTH_CONFIG"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		err = runMigrate(ctx, os.Args[2:], os.Stdout)
	} else {
		err = run(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	// A missing .env is normal in production.
	_ = godotenv.Load()

	log := logging.Default()
	log.Info("starting erp auth",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath, explicit := getConfigPath()
	cfg, err := config.Load(configPath, !explicit)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log, err = logging.New(cfg.Logging, version)
	if err != nil {
		return fmt.Errorf("initialising logger: %w", err)
	}
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

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
	log.Info("database connected", "driver", db.Driver())

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	log.Info("database migrations complete",
		"schema_version", schemaVersion(applied),
		"applied", len(applied),
		"pending", len(pending),
	)

	queryTimeout := time.Duration(cfg.Database.QueryTimeout) * time.Second
	users := auth.NewSQLUserStore(db, queryTimeout)
	companies := auth.NewSQLCompanyStore(db, queryTimeout)

	if cfg.Security.Seed.Enabled {
		if _, seedErr := auth.SeedSuperAdmin(ctx, users, cfg.Security.Seed.Username, cfg.Security.Seed.Email, log.Logger); seedErr != nil {
			return fmt.Errorf("seeding super admin: %w", seedErr)
		}
	}

	m := metrics.New()
	checks := map[string]api.HealthChecker{"database": db}
	sinks := []audit.Sink{audit.NewCounterSink(m)}

	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
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
		sinks = append(sinks, audit.NewMQTTSink(mqttClient, mqttClient.Topics(), log.Logger))
		checks["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	decisions := audit.NewDecisions(m, nil)
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		sinks = append(sinks, audit.NewInfluxSink(influxClient))
		decisions = audit.NewDecisions(m, influxClient)
		checks["influxdb"] = influxClient
	}

	auditRepo := audit.NewSQLRepository(db)
	recorder := audit.NewRecorder(auditRepo, log.Logger, audit.DefaultBufferSize, sinks...)
	defer func() {
		log.Info("flushing security events")
		recorder.Close()
	}()

	svc, err := buildAuthService(cfg, users, companies, recorder, decisions, log)
	if err != nil {
		return err
	}

	srv, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		RateLimit: cfg.Security.RateLimit,
		Logger:    log,
		Auth:      svc,
		Audit:     auditRepo,
		Metrics:   m,
		Checks:    checks,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	recorder.AddSink(srv.Hub())
	recorder.Start()

	if startErr := srv.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred closes run in reverse: API server, recorder, InfluxDB, MQTT, database.
	log.Info("erp auth stopped")
	return nil
}

// buildAuthService assembles the token, lockout and permission components
// from configuration.
func buildAuthService(cfg *config.Config, users auth.UserStore, companies auth.CompanyStore,
	recorder auth.EventRecorder, decisions auth.DecisionObserver, log *logging.Logger,
) (*auth.Service, error) {
	policy, err := auth.PolicyFromConfig(cfg.Security.Roles)
	if err != nil {
		return nil, fmt.Errorf("loading role policy: %w", err)
	}

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  cfg.Security.JWT.Secret,
		RefreshSecret: cfg.Security.JWT.RefreshSecret,
		Issuer:        cfg.Security.JWT.Issuer,
		Audience:      cfg.Security.JWT.Audience,
		AccessTTL:     cfg.AccessTTL(),
		RefreshTTL:    cfg.RefreshTTL(),
		ExpiresIn:     cfg.Security.JWT.Expire,
	})
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	svc, err := auth.NewService(auth.ServiceConfig{
		Tokens:    tokens,
		Guard:     auth.NewLockoutGuard(cfg.Security.Lockout.Threshold, cfg.LockoutDuration(), nil),
		Engine:    auth.NewPermissionEngine(policy),
		Users:     users,
		Companies: companies,
		Recorder:  recorder,
		Decisions: decisions,
		Logger:    log.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating auth service: %w", err)
	}
	return svc, nil
}

// getConfigPath returns the configuration file path and whether it was
// named explicitly. An explicit path must exist.
func getConfigPath() (string, bool) {
	if path := os.Getenv(configEnvVar); path != "" {
		return path, true
	}
	return defaultConfigPath, false
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, c := range checks {
		if err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
