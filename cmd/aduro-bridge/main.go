// Aduro Bridge - home-automation discovery for Aduro pellet stoves
//
// This is the main entry point for the bridge. It advertises the stove to the
// home-automation platform through retained MQTT discovery documents and
// re-queries the stove after every user command so state topics stay fresh.
//
// Commands:
//   - run (default): long-running bridge
//   - publish: one-shot cleanup (if enabled) and catalog publish
//   - cleanup: one-shot retraction of this device's documents
//   - print: render the catalog documents to stdout without a broker
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/nerrad567/aduro-bridge/internal/api"
	"github.com/nerrad567/aduro-bridge/internal/appliance"
	"github.com/nerrad567/aduro-bridge/internal/audit"
	"github.com/nerrad567/aduro-bridge/internal/bridge"
	"github.com/nerrad567/aduro-bridge/internal/discovery"
	"github.com/nerrad567/aduro-bridge/internal/infrastructure/config"
	"github.com/nerrad567/aduro-bridge/internal/infrastructure/database"
	"github.com/nerrad567/aduro-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/aduro-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/aduro-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/aduro-bridge/internal/metrics"
	"github.com/nerrad567/aduro-bridge/internal/process"
	"github.com/nerrad567/aduro-bridge/internal/refresh"
	"github.com/nerrad567/aduro-bridge/migrations"
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
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newApp(os.Stdout).Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newApp builds the command tree. out receives the print command output.
func newApp(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "aduro-bridge",
		Usage:   "advertise an Aduro stove to Home Assistant over MQTT",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   defaultConfigPath,
				Usage:   "path to the YAML configuration file",
				Sources: cli.NewValueSourceChain(
					cli.EnvVar("ADURO_CONFIG"),
				),
			},
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "enable debug logs",
			},
		},
		Action: runAction,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "run the bridge until interrupted",
				Action: runAction,
			},
			{
				Name:   "publish",
				Usage:  "publish the discovery catalog once and exit",
				Action: publishAction,
			},
			{
				Name:   "cleanup",
				Usage:  "retract this device's discovery documents and exit",
				Action: cleanupAction,
			},
			{
				Name:  "print",
				Usage: "print the documents publish would send, without connecting",
				Action: func(_ context.Context, c *cli.Command) error {
					return printAction(c, out)
				},
			},
		},
	}
}

// loadConfig loads the configuration and builds the logger.
//
// A missing file at the default path is not an error: defaults and ADURO_*
// environment variables are enough to run against a local broker.
func loadConfig(c *cli.Command) (*config.Config, *logging.Logger, error) {
	path := c.String("config")
	if !c.IsSet("config") {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if c.Bool("debug") {
		cfg.Logging.Level = "debug"
	}

	log := logging.New(cfg.Logging, version)
	if path == "" {
		log.Info("no configuration file, using defaults and environment")
	} else {
		log.Info("configuration loaded", "path", path)
	}
	return cfg, log, nil
}

func runAction(ctx context.Context, c *cli.Command) error {
	cfg, log, err := loadConfig(c)
	if err != nil {
		return err
	}
	return run(ctx, cfg, log)
}

// run is the long-running bridge, separated from the CLI for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	log.Info("starting Aduro bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	m := metrics.New()

	// Nothing is published unless the broker is reachable.
	mqttClient, err := connectMQTT(cfg, log, m)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()

	observers := []discovery.Observer{m}
	refreshObservers := []bridge.RefreshObserver{m}

	// Discovery journal (optional)
	var db *database.DB
	var journal audit.Repository
	if cfg.Database.Enabled {
		db, err = openDatabase(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		repo := audit.NewSQLiteRepository(db.DB)
		journal = repo
		recorder := audit.NewRecorder(repo, log)
		observers = append(observers, recorder)
		refreshObservers = append(refreshObservers, recorder)
	}

	// State history (optional)
	var influxClient *influxdb.Client
	var history refresh.HistorySink
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
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
		history = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	b, err := bridge.New(bridge.Options{
		Config:           cfg,
		MQTTClient:       mqttClient,
		Appliance:        newAppliance(cfg, log),
		History:          history,
		Observers:        observers,
		RefreshObservers: refreshObservers,
		Version:          version,
		Logger:           log,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	defer b.Stop()

	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}

	// Status API (optional)
	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log,
			Bridge:  b,
			Journal: journal,
			Metrics: m.Handler(),
			Version: version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. API server
	// 2. Bridge (pending refresh cancelled, in-flight run awaited)
	// 3. InfluxDB, database
	// 4. MQTT (availability set offline)

	return nil
}

func publishAction(ctx context.Context, c *cli.Command) error {
	cfg, log, err := loadConfig(c)
	if err != nil {
		return err
	}
	return oneShot(ctx, cfg, log, func(b *bridge.Bridge) error {
		if cfg.Discovery.Cleanup.Enabled {
			if _, cleanErr := b.Cleanup(ctx); cleanErr != nil {
				log.Warn("discovery cleanup failed, continuing", "error", cleanErr)
			}
		}
		report := b.PublishCatalog()
		log.Info("catalog published",
			"published", len(report.Published),
			"excluded", len(report.Excluded),
			"failed", len(report.Failed),
		)
		if !report.OK() {
			return fmt.Errorf("%w: %d of %d documents", discovery.ErrPublishFailed,
				len(report.Failed), len(report.Published)+len(report.Failed))
		}
		return nil
	})
}

func cleanupAction(ctx context.Context, c *cli.Command) error {
	cfg, log, err := loadConfig(c)
	if err != nil {
		return err
	}
	return oneShot(ctx, cfg, log, func(b *bridge.Bridge) error {
		report, cleanErr := b.Cleanup(ctx)
		if cleanErr != nil {
			return cleanErr
		}
		if len(report.Failed) > 0 {
			return fmt.Errorf("%d retractions failed", len(report.Failed))
		}
		return nil
	})
}

// oneShot connects, runs fn against a bridge that is never started, and
// disconnects. Refresh is turned off since nothing would stay to run it.
func oneShot(ctx context.Context, cfg *config.Config, log *logging.Logger, fn func(*bridge.Bridge) error) error {
	cfg.Refresh.Enabled = false

	mqttClient, err := connectMQTT(cfg, log, nil)
	if err != nil {
		return err
	}
	defer mqttClient.Close() //nolint:errcheck // Close never fails

	b, err := bridge.New(bridge.Options{
		Config:     cfg,
		MQTTClient: mqttClient,
		Version:    version,
		Logger:     log,
		OneShot:    true,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(b)
}

func printAction(c *cli.Command, out io.Writer) error {
	cfg, _, err := loadConfig(c)
	if err != nil {
		return err
	}
	cfg.Refresh.Enabled = false

	// Rendered exactly as the one-shot publish sends them, so no
	// availability topic.
	b, err := bridge.New(bridge.Options{
		Config:     cfg,
		MQTTClient: offlineBus{},
		Version:    version,
		OneShot:    true,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	docs, err := b.Documents()
	if err != nil {
		return err
	}
	for _, d := range docs {
		if _, err := fmt.Fprintf(out, "%s\n%s\n\n", d.Topic, d.Payload); err != nil {
			return err
		}
	}
	return nil
}

// connectMQTT connects to the broker and wires connection state into the
// logs and, when m is set, the metrics.
func connectMQTT(cfg *config.Config, log *logging.Logger, m *metrics.Metrics) (*mqtt.Client, error) {
	topics := mqtt.Topics{Base: cfg.Discovery.BaseTopic}
	client, err := mqtt.Connect(cfg.MQTT, topics)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	if m != nil {
		m.SetConnected(true)
	}
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
		if m != nil {
			m.SetConnected(true)
		}
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
		if m != nil {
			m.SetConnected(false)
		}
	})
	return client, nil
}

func openDatabase(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)
	return db, nil
}

// newAppliance returns nil when the appliance is not configured, which
// disables refresh but keeps discovery running.
func newAppliance(cfg *config.Config, log *logging.Logger) appliance.Appliance {
	runner := process.NewRunner(process.Config{Timeout: cfg.Appliance.Timeout})
	runner.SetLogger(log)

	client, err := appliance.New(cfg.Appliance, runner)
	if err != nil {
		log.Warn("appliance unavailable, refresh disabled", "error", err)
		return nil
	}
	return client
}

// healthCheck verifies all infrastructure connections are healthy.
// db and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// offlineBus lets print render documents without a broker.
type offlineBus struct{}

func (offlineBus) Publish(string, []byte, byte, bool) error { return mqtt.ErrNotConnected }
func (offlineBus) PublishRetained(string, []byte) error     { return mqtt.ErrNotConnected }
func (offlineBus) ClearRetained(string) error               { return mqtt.ErrNotConnected }
func (offlineBus) IsConnected() bool                        { return false }

func (offlineBus) Subscribe(string, byte, mqtt.MessageHandler) error {
	return mqtt.ErrNotConnected
}

func (offlineBus) CollectRetained(context.Context, string, time.Duration, func(string) bool) ([]mqtt.RetainedMessage, error) {
	return nil, mqtt.ErrNotConnected
}
