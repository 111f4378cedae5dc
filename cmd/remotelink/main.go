// RemoteLink Core - Android TV remote session manager
//
// This is the main entry point for the RemoteLink Core service. It owns the
// lifecycle of every television a user's remote can reach:
//   - Discovery of devices on the local network or message bus
//   - PIN and QR pairing
//   - Lazily opened, supervised command connections
//   - Serialised per-device command dispatch
//
// The HTTP API, WebSocket lifecycle feed and Prometheus exposition are
// served from the same process.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	_ "github.com/nerrad567/remotelink-core/migrations"

	"github.com/nerrad567/remotelink-core/internal/api"
	"github.com/nerrad567/remotelink-core/internal/audit"
	"github.com/nerrad567/remotelink-core/internal/connection"
	"github.com/nerrad567/remotelink-core/internal/device"
	"github.com/nerrad567/remotelink-core/internal/discovery"
	"github.com/nerrad567/remotelink-core/internal/dispatch"
	"github.com/nerrad567/remotelink-core/internal/events"
	"github.com/nerrad567/remotelink-core/internal/infrastructure/config"
	"github.com/nerrad567/remotelink-core/internal/infrastructure/database"
	"github.com/nerrad567/remotelink-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/remotelink-core/internal/infrastructure/logging"
	"github.com/nerrad567/remotelink-core/internal/infrastructure/metrics"
	"github.com/nerrad567/remotelink-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/remotelink-core/internal/infrastructure/nats"
	"github.com/nerrad567/remotelink-core/internal/pairing"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// A .env file is optional; real environment variables win.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// infra holds the optional infrastructure clients opened at startup.
// Nil fields are disabled in configuration.
type infra struct {
	db     *database.DB
	audit  *audit.SQLiteRepository
	mqtt   *mqtt.Client
	nats   *nats.Client
	influx *influxdb.Client
}

// run is the actual application logic, separated from main for testability.
// It returns nil on a clean shutdown after ctx is cancelled.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting RemoteLink Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"site", cfg.Site.ID,
	)

	inf := &infra{}
	defer inf.close(log)
	if err := inf.open(ctx, cfg, log); err != nil {
		return err
	}

	registry, err := openRegistry(ctx, cfg, inf.db, log)
	if err != nil {
		return err
	}
	metrics.Init(registry)

	// Lifecycle relay is registered before anything mutates the registry
	// so clients see every change from startup on.
	hub := api.NewHub(cfg.WebSocket, log)
	relay := newRelay(cfg, hub, inf, log)
	registry.OnChange(relay.Observe)

	bgCtx, stopBackground := context.WithCancel(context.Background())
	relayDone := make(chan struct{})
	go func() {
		relay.Run(bgCtx)
		close(relayDone)
	}()
	go hub.Run(bgCtx)
	defer func() {
		stopBackground()
		<-relayDone
	}()

	engine, err := newDiscovery(cfg, registry, inf, log)
	if err != nil {
		return err
	}
	defer engine.Stop()

	transport, err := newTransport(cfg, inf)
	if err != nil {
		return err
	}
	supervisor := connection.NewSupervisor(registry, transport)
	supervisor.SetLogger(log)
	if cfg.Connection.OpenTimeoutMS > 0 {
		supervisor.SetOpenTimeout(time.Duration(cfg.Connection.OpenTimeoutMS) * time.Millisecond)
	}
	defer func() {
		log.Info("closing device connections")
		if closeErr := supervisor.Close(); closeErr != nil {
			log.Error("error closing device connections", "error", closeErr)
		}
	}()

	// A restart loses every link, so persisted "connected" devices fall
	// back to "paired" until their next command.
	demoted, err := supervisor.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("reconciling connections: %w", err)
	}
	log.Info("connection supervisor ready", "transport", transport.Name(), "demoted", demoted)

	authenticator := pairing.NewAuthenticator(registry, newVerifier(cfg), supervisor)
	authenticator.SetLogger(log)

	dispatcher := dispatch.NewDispatcher(registry, supervisor)
	dispatcher.SetLogger(log)
	dispatcher.SetTimeout(cfg.DispatchTimeout())
	dispatcher.SetEnforceCapabilities(cfg.Dispatch.EnforceCapabilities)
	if inf.influx != nil {
		dispatcher.SetTelemetry(inf.influx)
	}

	deps := api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Pairing:    cfg.Pairing,
		Logger:     log,
		Registry:   registry,
		Discovery:  engine,
		Auth:       authenticator,
		Supervisor: supervisor,
		Dispatcher: dispatcher,
		DB:         inf.db,
		Hub:        hub,
		Version:    version,
	}
	// Typed nils would defeat the handler's nil checks.
	if inf.mqtt != nil {
		deps.MQTT = inf.mqtt
	}
	if inf.nats != nil {
		deps.NATS = inf.nats
	}
	if inf.audit != nil {
		deps.Audit = inf.audit
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

	if err := inf.healthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal",
		"devices", registry.Count(),
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. API server
	// 2. Device connections
	// 3. Discovery scans
	// 4. Lifecycle relay and WebSocket hub
	// 5. InfluxDB, NATS, MQTT, database

	return nil
}

// getConfigPath returns the configuration file path.
// Uses REMOTELINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() (path string, explicit bool) {
	if path := os.Getenv("REMOTELINK_CONFIG"); path != "" {
		return path, true
	}
	return defaultConfigPath, false
}

// loadConfig reads the configuration file. A missing default file falls
// back to built-in defaults; a missing file named by REMOTELINK_CONFIG is
// an error.
func loadConfig(log *logging.Logger) (*config.Config, error) {
	path, explicit := getConfigPath()

	cfg, err := config.Load(path)
	switch {
	case err == nil:
		log.Info("configuration loaded", "path", path)
		return cfg, nil
	case !explicit && errors.Is(err, fs.ErrNotExist):
		log.Warn("config file not found, using built-in defaults", "path", path)
		cfg, err = config.Default()
		if err != nil {
			return nil, fmt.Errorf("loading default config: %w", err)
		}
		return cfg, nil
	default:
		return nil, fmt.Errorf("loading config: %w", err)
	}
}

// open connects every enabled infrastructure client. Clients opened before
// a failure are released by close.
func (i *infra) open(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	var err error

	if cfg.Registry.Backend == config.BackendSQLite {
		i.db, err = database.Open(ctx, database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		log.Info("database connected", "path", cfg.Database.Path)

		if err := i.db.Migrate(ctx); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		log.Info("database migrations complete")

		i.audit = audit.NewSQLiteRepository(i.db.DB)
	}

	if cfg.MQTT.Enabled {
		i.mqtt, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		i.mqtt.SetLogger(log)
		i.mqtt.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		i.mqtt.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.NATS.Enabled {
		i.nats, err = nats.Connect(cfg.NATS)
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		log.Info("NATS connected", "url", cfg.NATS.URL)
	}

	if cfg.InfluxDB.Enabled {
		i.influx, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		i.influx.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	return nil
}

// close releases clients in reverse order of opening.
func (i *infra) close(log *logging.Logger) {
	if i.influx != nil {
		log.Info("closing InfluxDB connection")
		if err := i.influx.Close(); err != nil {
			log.Error("error closing InfluxDB", "error", err)
		}
	}
	if i.nats != nil {
		log.Info("closing NATS connection")
		if err := i.nats.Close(); err != nil {
			log.Error("error closing NATS", "error", err)
		}
	}
	if i.mqtt != nil {
		log.Info("disconnecting from MQTT")
		if err := i.mqtt.Close(); err != nil {
			log.Error("error closing MQTT", "error", err)
		}
	}
	if i.db != nil {
		log.Info("closing database")
		if err := i.db.Close(); err != nil {
			log.Error("error closing database", "error", err)
		}
	}
}

// healthCheck verifies every enabled infrastructure connection.
func (i *infra) healthCheck(ctx context.Context) error {
	if i.db != nil {
		if err := i.db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if i.mqtt != nil {
		if err := i.mqtt.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if i.nats != nil {
		if err := i.nats.HealthCheck(ctx); err != nil {
			return fmt.Errorf("nats: %w", err)
		}
	}
	if i.influx != nil {
		if err := i.influx.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// openRegistry builds the device registry on the configured backend and
// loads any persisted devices.
func openRegistry(ctx context.Context, cfg *config.Config, db *database.DB, log *logging.Logger) (*device.Registry, error) {
	var repo device.Repository = device.NewMemoryRepository()
	if cfg.Registry.Backend == config.BackendSQLite {
		repo = device.NewSQLiteRepository(db.DB)
	}

	registry := device.NewRegistry(repo)
	registry.SetLogger(log)

	if err := registry.RefreshCache(ctx); err != nil {
		return nil, fmt.Errorf("loading device registry: %w", err)
	}
	log.Info("device registry initialised", "backend", cfg.Registry.Backend, "devices", registry.Count())
	return registry, nil
}

// newDiscovery builds the discovery engine over the configured sources.
func newDiscovery(cfg *config.Config, registry *device.Registry, inf *infra, log *logging.Logger) (*discovery.Engine, error) {
	var scanners []discovery.Scanner
	for _, source := range cfg.Discovery.Sources {
		switch source {
		case config.SourceCatalog:
			latency := time.Duration(cfg.Discovery.LatencyMS) * time.Millisecond
			scanners = append(scanners, discovery.NewCatalogScanner(cfg.Discovery.Catalog, latency))
		case config.SourceMQTT:
			if inf.mqtt == nil {
				return nil, fmt.Errorf("discovery source %q requires MQTT", source)
			}
			settle := time.Duration(cfg.Discovery.SettleMS) * time.Millisecond
			scanners = append(scanners, discovery.NewMQTTScanner(inf.mqtt, byte(cfg.MQTT.QoS), settle))
		default:
			return nil, fmt.Errorf("unknown discovery source %q", source)
		}
	}

	engine := discovery.NewEngine(registry, scanners...)
	engine.SetLogger(log)
	engine.SetDefaultTimeout(cfg.ScanTimeout())
	if inf.influx != nil {
		engine.SetTelemetry(inf.influx)
	}
	log.Info("discovery engine ready", "sources", cfg.Discovery.Sources)
	return engine, nil
}

// newTransport selects the command transport.
func newTransport(cfg *config.Config, inf *infra) (connection.Transport, error) {
	switch cfg.Connection.Transport {
	case config.TransportSimulated:
		return connection.NewSimulatedTransport(cfg.Connection.LatencyScale), nil
	case config.TransportMQTT:
		if inf.mqtt == nil {
			return nil, fmt.Errorf("transport %q requires MQTT", cfg.Connection.Transport)
		}
		return connection.NewMQTTTransport(inf.mqtt, byte(cfg.MQTT.QoS)), nil
	case config.TransportNATS:
		if inf.nats == nil {
			return nil, fmt.Errorf("transport %q requires NATS", cfg.Connection.Transport)
		}
		return connection.NewNATSTransport(inf.nats), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Connection.Transport)
	}
}

// newVerifier selects how pairing PINs are checked.
func newVerifier(cfg *config.Config) pairing.Verifier {
	if cfg.Pairing.Verifier == config.VerifierIssued {
		return pairing.NewIssuedPIN(time.Duration(cfg.Pairing.PINTTL) * time.Second)
	}
	return pairing.NewSharedSecret(cfg.Pairing.SharedSecret)
}

// newRelay builds the lifecycle relay over whichever sinks are enabled.
func newRelay(cfg *config.Config, hub *api.Hub, inf *infra, log *logging.Logger) *events.Relay {
	opts := []events.Option{
		events.WithLogger(log),
		events.WithBroadcaster(hub, api.ChannelLifecycle),
	}
	if inf.mqtt != nil {
		opts = append(opts, events.WithPublisher(inf.mqtt, byte(cfg.MQTT.QoS)))
	}
	if inf.influx != nil {
		opts = append(opts, events.WithTelemetry(inf.influx))
	}
	if inf.audit != nil {
		opts = append(opts, events.WithRecorder(inf.audit))
	}
	return events.NewRelay(opts...)
}
