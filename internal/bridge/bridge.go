package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/aduro-bridge/internal/appliance"
	"github.com/nerrad567/aduro-bridge/internal/discovery"
	"github.com/nerrad567/aduro-bridge/internal/infrastructure/config"
	"github.com/nerrad567/aduro-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/aduro-bridge/internal/refresh"
)

// Bridge operation constants.
const (
	// commandTimeout bounds a forwarded set command.
	commandTimeout = 15 * time.Second

	// subscribeQoS is used for command and telemetry subscriptions.
	subscribeQoS byte = 0
)

// Bridge advertises the appliance to the home-automation platform and keeps
// its state topics fresh.
//
// On Start it retracts stale documents (when enabled), publishes the
// catalog, then listens for telemetry to infer from and for commands that
// trigger a debounced refresh.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg       *config.Config
	mqtt      MQTTClient
	appliance appliance.Appliance
	topics    mqtt.Topics

	catalog   *discovery.Catalog
	lifecycle *discovery.Lifecycle
	auto      *discovery.AutoDiscovery
	index     *entityIndex

	executor    *refresh.Executor
	coordinator *refresh.Coordinator
	refreshObs  RefreshObserver
	lastRefresh refreshSummary
	refreshMu   sync.RWMutex

	health *HealthReporter

	// Shutdown coordination
	wg        sync.WaitGroup
	stopping  bool
	stopMu    sync.Mutex
	stopOnce  sync.Once
	started   bool
	startMu   sync.Mutex
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger Logger
}

// MQTTClient is the interface for MQTT operations.
// *mqtt.Client satisfies it; tests use a mock.
type MQTTClient interface {
	discovery.BusClient

	// Publish sends state and health messages with an explicit QoS.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Logger is the logging interface used by the bridge.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// RefreshObserver is told about every refresh trigger and completed run.
type RefreshObserver interface {
	RefreshTriggered()
	Refreshed(report refresh.Report)
}

// Options holds configuration for creating a bridge.
type Options struct {
	// Config is the loaded bridge configuration.
	Config *config.Config

	// MQTTClient is the bus connection.
	MQTTClient MQTTClient

	// Appliance answers state queries and executes forwarded commands.
	// When nil, refresh is disabled.
	Appliance appliance.Appliance

	// History optionally stores refreshed snapshots.
	History refresh.HistorySink

	// Observers are told about discovery outcomes (journal, metrics).
	Observers []discovery.Observer

	// RefreshObservers are told about refresh activity.
	RefreshObservers []RefreshObserver

	// Scheduler overrides the refresh timer source. Tests only.
	Scheduler refresh.Scheduler

	// Version is reported in health messages.
	Version string

	// OneShot leaves the availability topic out of documents. Set it for
	// runs that publish and exit, since nothing keeps the topic online
	// once they disconnect.
	OneShot bool

	// Logger is optional structured logger.
	Logger Logger
}

// New creates a bridge. Call Start to begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.Config == nil {
		return nil, errors.New("bridge: config is required")
	}
	if opts.MQTTClient == nil {
		return nil, errors.New("bridge: MQTT client is required")
	}
	cfg := opts.Config

	ctx, ctxCancel := context.WithCancel(context.Background())
	b := &Bridge{
		cfg:       cfg,
		mqtt:      opts.MQTTClient,
		appliance: opts.Appliance,
		topics:    mqtt.Topics{Base: cfg.Discovery.BaseTopic},
		index:     newEntityIndex(),
		ctx:       ctx,
		ctxCancel: ctxCancel,
		logger:    opts.Logger,
	}

	availability := b.topics.Availability()
	if opts.OneShot {
		availability = ""
	}

	observers := append([]discovery.Observer{b.index}, opts.Observers...)
	b.catalog = discovery.NewCatalog(discovery.CatalogConfig{
		BaseTopic:            cfg.Discovery.BaseTopic,
		DeviceName:           cfg.Device.Name,
		RoomTemperatureField: cfg.Discovery.Catalog.RoomTemperatureField,
		COField:              cfg.Discovery.Catalog.COField,
	})
	b.lifecycle = discovery.NewLifecycle(opts.MQTTClient, discovery.LifecycleOptions{
		Namer: discovery.NewTopicNamer(cfg.Discovery.Prefix, cfg.Device.ID),
		Device: discovery.Device{
			ID:           cfg.Device.ID,
			Name:         cfg.Device.Name,
			Manufacturer: cfg.Device.Manufacturer,
			Model:        cfg.Device.Model,
		},
		Filter: discovery.NewExclusionFilter(cfg.Device.ID, cfg.ExcludeList()),
		Document: discovery.DocumentOptions{
			Abbreviate:        cfg.Discovery.Abbreviate,
			AvailabilityTopic: availability,
		},
		Logger:   opts.Logger,
		Observer: multiObserver(observers),
	})

	if cfg.Discovery.Inference.Enabled {
		entries := b.catalog.Entries()
		reserved := make([]string, 0, len(entries))
		for _, e := range entries {
			reserved = append(reserved, e.ID)
		}
		b.auto = discovery.NewAutoDiscovery(discovery.NewInferencer(cfg.Discovery.BaseTopic), b.lifecycle, opts.Logger, reserved...)
	}

	b.refreshObs = multiRefreshObserver(opts.RefreshObservers)
	if err := b.setupRefresh(opts); err != nil {
		ctxCancel()
		return nil, err
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		Topic:     b.topics.Health(),
		DeviceID:  cfg.Device.ID,
		Version:   opts.Version,
		Interval:  cfg.Health.Interval,
		Publisher: opts.MQTTClient,
		Stats:     b.healthStats,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

func (b *Bridge) setupRefresh(opts Options) error {
	if !b.cfg.Refresh.Enabled {
		return nil
	}
	if opts.Appliance == nil {
		b.logWarn("refresh enabled but no appliance configured, refresh disabled")
		return nil
	}

	groups := make([]refresh.Group, 0, len(b.cfg.Refresh.Groups))
	for _, g := range b.cfg.Refresh.Groups {
		groups = append(groups, refresh.Group{Name: g.Name, Args: g.Args})
	}

	exec, err := refresh.NewExecutor(refresh.ExecutorOptions{
		Groups:     groups,
		Querier:    opts.Appliance,
		Bus:        opts.MQTTClient,
		History:    opts.History,
		DeviceID:   b.cfg.Device.ID,
		StateTopic: b.topics.State,
		Logger:     opts.Logger,
	})
	if err != nil {
		return fmt.Errorf("bridge: %w", err)
	}
	b.executor = exec

	b.coordinator = refresh.NewCoordinator(refresh.Options{
		Debounce:  b.cfg.Refresh.Debounce,
		Scheduler: opts.Scheduler,
		Logger:    opts.Logger,
	}, b.runRefresh)
	return nil
}

// Start runs cleanup and catalog publication, then subscribes to telemetry,
// command and refresh topics and starts health reporting.
//
// Cleanup completes before anything is published so a retraction can never
// land after the document that replaces it.
func (b *Bridge) Start(ctx context.Context) error {
	b.startMu.Lock()
	defer b.startMu.Unlock()
	if b.started {
		return errors.New("bridge: already started")
	}

	if err := b.health.PublishStarting(); err != nil {
		b.logWarn("failed to publish starting status", "error", err)
	}

	if b.cfg.Discovery.Cleanup.Enabled {
		if _, err := b.Cleanup(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logWarn("discovery cleanup failed, continuing", "error", err)
		}
	}

	report := b.PublishCatalog()
	b.logInfo("catalog published",
		"published", len(report.Published),
		"excluded", len(report.Excluded),
		"failed", len(report.Failed))

	if b.auto != nil {
		for _, t := range b.cfg.Discovery.Inference.Topics {
			topic := b.topics.State(t)
			if err := b.mqtt.Subscribe(topic, subscribeQoS, b.handleTelemetry); err != nil {
				return fmt.Errorf("subscribe to telemetry %s: %w", topic, err)
			}
			b.logInfo("subscribed to telemetry", "topic", topic)
		}
	}

	if b.coordinator != nil {
		if err := b.mqtt.Subscribe(b.cfg.CommandTopic(), subscribeQoS, b.handleCommand); err != nil {
			return fmt.Errorf("subscribe to commands: %w", err)
		}
		if err := b.mqtt.Subscribe(b.topics.Refresh(), subscribeQoS, b.handleRefresh); err != nil {
			return fmt.Errorf("subscribe to refresh requests: %w", err)
		}
		b.logInfo("subscribed to commands",
			"command_topic", b.cfg.CommandTopic(),
			"refresh_topic", b.topics.Refresh(),
			"groups", b.RefreshGroups())
	}

	b.health.Start(b.ctx)
	b.started = true

	b.logInfo("bridge started",
		"device_id", b.cfg.Device.ID,
		"entities", b.index.Len(),
		"inference", b.auto != nil,
		"refresh", b.coordinator != nil)
	return nil
}

// Stop cancels any pending refresh, waits for in-flight work and publishes
// a final stopping status. Safe to call more than once.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.stopMu.Lock()
		b.stopping = true
		b.stopMu.Unlock()

		if b.coordinator != nil {
			b.coordinator.Stop()
		}
		b.ctxCancel()
		b.wg.Wait()
		b.health.Stop()
		b.logInfo("bridge stopped")
	})
}

// Cleanup retracts this device's retained discovery documents.
func (b *Bridge) Cleanup(ctx context.Context) (discovery.CleanupReport, error) {
	return b.lifecycle.Cleanup(ctx, b.cfg.Discovery.Cleanup.Window)
}

// PublishCatalog publishes every catalog entry not excluded.
func (b *Bridge) PublishCatalog() discovery.Report {
	return b.lifecycle.PublishAll(b.catalog.Entries())
}

// Documents renders every catalog entry without publishing. Excluded
// entries are left out.
func (b *Bridge) Documents() ([]Document, error) {
	filter := discovery.NewExclusionFilter(b.cfg.Device.ID, b.cfg.ExcludeList())
	var docs []Document
	for _, e := range b.catalog.Entries() {
		if filter.Excludes(e) {
			continue
		}
		topic, payload, err := b.lifecycle.Document(e)
		if err != nil {
			return nil, err
		}
		docs = append(docs, Document{Topic: topic, Payload: payload})
	}
	return docs, nil
}

// Document is a rendered discovery document.
type Document struct {
	Topic   string
	Payload []byte
}

// Entities returns every entity published in this run, sorted by id.
func (b *Bridge) Entities() []EntityInfo {
	return b.index.List()
}

// TriggerRefresh requests a debounced refresh.
func (b *Bridge) TriggerRefresh() error {
	if b.coordinator == nil {
		return ErrRefreshDisabled
	}
	if err := b.coordinator.Trigger(); err != nil {
		return err
	}
	b.refreshObs.RefreshTriggered()
	return nil
}

// RefreshState returns the coordinator state, or "disabled".
func (b *Bridge) RefreshState() string {
	if b.coordinator == nil {
		return "disabled"
	}
	return b.coordinator.State().String()
}

// RefreshGroups returns the names of the state groups a refresh queries,
// or nil when refresh is disabled.
func (b *Bridge) RefreshGroups() []string {
	if b.executor == nil {
		return nil
	}
	groups := b.executor.Groups()
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Name)
	}
	return names
}

// Health returns the current health snapshot.
func (b *Bridge) Health() HealthMessage {
	return b.health.Snapshot()
}

func (b *Bridge) runRefresh(ctx context.Context) {
	report := b.executor.Run(ctx)

	b.refreshMu.Lock()
	b.lastRefresh = refreshSummary{
		at:     report.Started.Add(report.Duration),
		count:  b.lastRefresh.count + 1,
		failed: len(report.Failed()),
	}
	b.refreshMu.Unlock()

	b.refreshObs.Refreshed(report)
	b.logInfo("refresh complete",
		"succeeded", len(report.Succeeded()),
		"failed", len(report.Failed()),
		"duration", report.Duration)
}

func (b *Bridge) healthStats() HealthStats {
	b.refreshMu.RLock()
	last := b.lastRefresh
	b.refreshMu.RUnlock()

	return HealthStats{
		Entities:      b.index.Len(),
		Refreshes:     last.count,
		LastRefresh:   last.at,
		RefreshFailed: last.failed,
		RefreshState:  b.RefreshState(),
	}
}

// refreshSummary is the outcome of the last refresh run.
type refreshSummary struct {
	at     time.Time
	count  int64
	failed int
}

func (b *Bridge) logDebug(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, args...)
	}
}

func (b *Bridge) logInfo(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Info(msg, args...)
	}
}

func (b *Bridge) logWarn(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, args...)
	}
}
