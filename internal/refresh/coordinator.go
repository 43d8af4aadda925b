package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultDebounce is used when no debounce window is configured.
const DefaultDebounce = 600 * time.Millisecond

// State is the coordinator's position in its cycle.
type State int

// Coordinator states.
const (
	StateIdle State = iota
	StateArmed
	StateExecuting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateExecuting:
		return "executing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ExecFunc performs one refresh. It is never called concurrently with itself.
type ExecFunc func(ctx context.Context)

// Logger is the logging interface used by the coordinator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configure a Coordinator.
type Options struct {
	// Debounce is the quiet period after the last trigger before a refresh
	// runs. Zero means DefaultDebounce.
	Debounce time.Duration

	// Scheduler defaults to RealScheduler.
	Scheduler Scheduler

	Logger Logger
}

// Stats counts coordinator activity since creation.
type Stats struct {
	Triggers      int64
	Coalesced     int64
	Executions    int64
	Panics        int64
	LastExecution time.Time
}

// Coordinator debounces refresh triggers.
//
// A trigger while idle arms the timer. Further triggers while armed restart
// it, so a burst becomes one execution. A trigger during an execution does
// not interrupt it; it schedules exactly one more debounced run afterwards.
//
// Each arm bumps a generation counter. A timer that fires with an old
// generation, because it lost a race with Stop or a re-arm, does nothing.
type Coordinator struct {
	debounce  time.Duration
	scheduler Scheduler
	exec      ExecFunc
	logger    Logger

	mu           sync.Mutex
	state        State
	pendingAgain bool
	generation   uint64
	timer        Timer
	stopped      bool
	stats        Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCoordinator creates an idle Coordinator that runs exec.
func NewCoordinator(opts Options, exec ExecFunc) *Coordinator {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Scheduler == nil {
		opts.Scheduler = RealScheduler{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		debounce:  opts.Debounce,
		scheduler: opts.Scheduler,
		exec:      exec,
		logger:    opts.Logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Trigger requests a refresh.
func (c *Coordinator) Trigger() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return ErrStopped
	}
	c.stats.Triggers++

	switch c.state {
	case StateIdle:
		c.armLocked()
		c.logDebug("refresh armed", "debounce", c.debounce)
	case StateArmed:
		c.stats.Coalesced++
		c.armLocked()
		c.logDebug("refresh re-armed", "debounce", c.debounce)
	case StateExecuting:
		if !c.pendingAgain {
			c.logDebug("refresh pending after current run")
		}
		c.pendingAgain = true
	}
	return nil
}

// armLocked replaces any pending timer with a fresh one. c.mu must be held.
func (c *Coordinator) armLocked() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.generation++
	gen := c.generation
	c.state = StateArmed
	c.timer = c.scheduler.AfterFunc(c.debounce, func() { c.fire(gen) })
}

func (c *Coordinator) fire(gen uint64) {
	c.mu.Lock()
	if c.stopped || c.state != StateArmed || gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.state = StateExecuting
	c.timer = nil
	c.wg.Add(1)
	c.mu.Unlock()

	defer c.wg.Done()
	c.run()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Executions++
	c.stats.LastExecution = time.Now()

	if c.stopped {
		c.state = StateIdle
		c.pendingAgain = false
		return
	}
	if c.pendingAgain {
		c.pendingAgain = false
		c.armLocked()
		return
	}
	c.state = StateIdle
}

func (c *Coordinator) run() {
	defer func() {
		if r := recover(); r != nil {
			c.mu.Lock()
			c.stats.Panics++
			c.mu.Unlock()
			if c.logger != nil {
				c.logger.Error("refresh panicked", "panic", fmt.Sprint(r))
			}
		}
	}()
	c.exec(c.ctx)
}

// Stop cancels a pending timer, cancels the context passed to an in-flight
// execution and waits for it to return. Later triggers return ErrStopped.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.state == StateArmed {
		c.state = StateIdle
	}
	c.generation++
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PendingAgain reports whether a trigger arrived during the current execution.
func (c *Coordinator) PendingAgain() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingAgain
}

// Stats returns a snapshot of the counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Debounce returns the configured window.
func (c *Coordinator) Debounce() time.Duration {
	return c.debounce
}

func (c *Coordinator) logDebug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
