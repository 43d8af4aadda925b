package process

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRun_CapturesStdout(t *testing.T) {
	r := NewRunner(Config{})
	res, err := r.Run(context.Background(), "sh", "-c", `printf '{"boiler_temp":21}'`)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if string(res.Stdout) != `{"boiler_temp":21}` {
		t.Errorf("Stdout = %q", res.Stdout)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	r := NewRunner(Config{})
	res, err := r.Run(context.Background(), "sh", "-c", "echo 'no route to stove' >&2; exit 3")
	if !errors.Is(err, ErrExitStatus) {
		t.Fatalf("Run() error = %v, want ErrExitStatus", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if !strings.Contains(string(res.Stderr), "no route to stove") {
		t.Errorf("Stderr = %q, want captured message", res.Stderr)
	}
}

func TestRun_Timeout(t *testing.T) {
	r := NewRunner(Config{Timeout: 100 * time.Millisecond})
	start := time.Now()
	_, err := r.Run(context.Background(), "sh", "-c", "sleep 5")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Run() error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Run() took %v, want prompt kill", elapsed)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	r := NewRunner(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, "sh", "-c", "sleep 5")
	if err == nil {
		t.Fatal("Run() expected error for cancelled context")
	}
	if errors.Is(err, ErrTimeout) {
		t.Errorf("Run() error = %v, cancellation must not be reported as timeout", err)
	}
}

func TestRun_MissingBinary(t *testing.T) {
	r := NewRunner(Config{})
	if _, err := r.Run(context.Background(), ""); !errors.Is(err, ErrNoBinary) {
		t.Errorf("Run(\"\") error = %v, want ErrNoBinary", err)
	}
	if _, err := r.Run(context.Background(), "/nonexistent/aduro-tool"); !errors.Is(err, ErrStartFailed) {
		t.Errorf("Run() error = %v, want ErrStartFailed", err)
	}
}

func TestRun_OutputLimit(t *testing.T) {
	r := NewRunner(Config{MaxOutput: 8})
	res, err := r.Run(context.Background(), "sh", "-c", "printf '0123456789abcdef'")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if string(res.Stdout) != "01234567" {
		t.Errorf("Stdout = %q, want first 8 bytes", res.Stdout)
	}
}

func TestRun_Env(t *testing.T) {
	r := NewRunner(Config{Env: []string{"ADURO_TEST_VALUE=stove"}})
	res, err := r.Run(context.Background(), "sh", "-c", "printf %s \"$ADURO_TEST_VALUE\"")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if string(res.Stdout) != "stove" {
		t.Errorf("Stdout = %q, want stove", res.Stdout)
	}
}

func TestLimitedBuffer(t *testing.T) {
	b := &limitedBuffer{limit: 4}
	n, _ := b.Write([]byte("ab"))
	if n != 2 {
		t.Errorf("Write() n = %d, want 2", n)
	}
	n, _ = b.Write([]byte("cdef"))
	if n != 4 {
		t.Errorf("Write() n = %d, want full length reported", n)
	}
	if string(b.Bytes()) != "abcd" || !b.truncated {
		t.Errorf("buffer = %q truncated=%v, want abcd true", b.Bytes(), b.truncated)
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine([]byte("  first\nsecond\n")); got != "first" {
		t.Errorf("firstLine() = %q, want first", got)
	}
}
