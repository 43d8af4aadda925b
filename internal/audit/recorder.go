package audit

import (
	"context"
	"time"

	"github.com/nerrad567/aduro-bridge/internal/discovery"
	"github.com/nerrad567/aduro-bridge/internal/refresh"
)

// writeTimeout bounds each journal insert so a locked database cannot stall
// an MQTT callback.
const writeTimeout = 2 * time.Second

// Logger is the logging interface used by the recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

// Recorder writes lifecycle and refresh outcomes to a Repository.
// It implements discovery.Observer. Write errors are logged, never returned.
type Recorder struct {
	repo   Repository
	logger Logger
}

// NewRecorder creates a Recorder on repo.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

func source(e discovery.Entity) string {
	if e.Inferred {
		return SourceInference
	}
	return SourceCatalog
}

// Published implements discovery.Observer.
func (r *Recorder) Published(e discovery.Entity, topic string) {
	r.write(&Entry{Action: ActionPublish, Kind: string(e.Kind), EntityID: e.ID, Topic: topic, Source: source(e)})
}

// Skipped implements discovery.Observer.
func (r *Recorder) Skipped(e discovery.Entity, reason string) {
	r.write(&Entry{
		Action:   ActionSkip,
		Kind:     string(e.Kind),
		EntityID: e.ID,
		Source:   source(e),
		Detail:   map[string]any{"reason": reason},
	})
}

// Retracted implements discovery.Observer.
func (r *Recorder) Retracted(topic string) {
	r.write(&Entry{Action: ActionRetract, Topic: topic, Source: SourceCleanup})
}

// Failed implements discovery.Observer.
func (r *Recorder) Failed(e discovery.Entity, topic string, err error) {
	r.write(&Entry{
		Action:   ActionFail,
		Kind:     string(e.Kind),
		EntityID: e.ID,
		Topic:    topic,
		Source:   source(e),
		Detail:   map[string]any{"error": err.Error()},
	})
}

// Refreshed records one row per group of a refresh run.
func (r *Recorder) Refreshed(report refresh.Report) {
	for _, res := range report.Results {
		detail := map[string]any{
			"group":       res.Group,
			"ok":          res.OK(),
			"duration_ms": res.Duration.Milliseconds(),
		}
		if res.Err != nil {
			detail["error"] = res.Err.Error()
		}
		r.write(&Entry{Action: ActionRefresh, Topic: res.Topic, Source: SourceRefresh, Detail: detail})
	}
}

func (r *Recorder) write(e *Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.repo.Create(ctx, e); err != nil && r.logger != nil {
		r.logger.Warn("journal write failed", "action", e.Action, "error", err)
	}
}

// RefreshTriggered is a no-op; only completed runs are journaled.
func (r *Recorder) RefreshTriggered() {}
