package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Defaults for one-shot executions.
const (
	defaultTimeout   = 10 * time.Second
	defaultMaxOutput = 1 << 20 // 1MB per stream
	waitDelay        = 2 * time.Second
)

// Config holds settings shared by every command a Runner executes.
type Config struct {
	// Timeout bounds each execution. Zero means defaultTimeout.
	Timeout time.Duration

	// MaxOutput caps captured stdout and stderr (bytes each). Zero means 1MB.
	MaxOutput int

	// Env are additional environment variables (key=value format).
	// If nil, inherits from parent process.
	Env []string

	// WorkDir is the working directory. If empty, inherits from parent process.
	WorkDir string
}

// Logger defines the logging interface for the runner.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Result is the outcome of one completed execution.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Runner executes short-lived commands, each bounded by a timeout.
//
// The child runs in its own process group so a timeout kills anything it
// spawned as well.
type Runner struct {
	cfg Config

	mu     sync.RWMutex
	logger Logger
}

// NewRunner creates a Runner, applying defaults for zero values.
func NewRunner(cfg Config) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxOutput <= 0 {
		cfg.MaxOutput = defaultMaxOutput
	}
	return &Runner{cfg: cfg, logger: noopLogger{}}
}

// SetLogger sets the logger. A nil logger disables logging.
func (r *Runner) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if logger == nil {
		r.logger = noopLogger{}
		return
	}
	r.logger = logger
}

func (r *Runner) log() Logger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.logger
}

// Run executes name with args and waits for it to exit.
//
// A non-zero exit returns ErrExitStatus together with the Result so callers
// can inspect stderr. Exceeding the timeout returns ErrTimeout.
func (r *Runner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	if name == "" {
		return Result{}, ErrNoBinary
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Negative PID signals the whole process group created via Setpgid.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = waitDelay
	if r.cfg.Env != nil {
		cmd.Env = append(cmd.Environ(), r.cfg.Env...)
	}
	cmd.Dir = r.cfg.WorkDir

	stdout := &limitedBuffer{limit: r.cfg.MaxOutput}
	stderr := &limitedBuffer{limit: r.cfg.MaxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: -1,
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	r.log().Debug("command finished",
		"binary", name,
		"exit_code", res.ExitCode,
		"duration", res.Duration,
	)

	switch {
	case err == nil:
		return res, nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return res, fmt.Errorf("%w: %s after %v", ErrTimeout, name, r.cfg.Timeout)
	case ctx.Err() != nil:
		return res, fmt.Errorf("running %s: %w", name, ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		r.log().Warn("command exited with error",
			"binary", name,
			"exit_code", res.ExitCode,
			"stderr", firstLine(res.Stderr),
		)
		return res, fmt.Errorf("%w: %s exited %d", ErrExitStatus, name, res.ExitCode)
	}
	return res, fmt.Errorf("%w: %w", ErrStartFailed, err)
}

// limitedBuffer keeps the first limit bytes written and discards the rest.
type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) Bytes() []byte {
	return b.buf.Bytes()
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
