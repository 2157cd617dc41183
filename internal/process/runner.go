package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

var (
	// ErrStartFailed is returned when the worker binary cannot be started.
	ErrStartFailed = errors.New("process: start failed")

	// ErrTimeout is returned when the worker does not finish in time.
	ErrTimeout = errors.New("process: timed out")

	// ErrExited is returned when the worker exits with a non-zero status.
	ErrExited = errors.New("process: worker exited with error")

	// ErrOutputTooLarge is returned when the worker writes more than MaxOutputBytes.
	ErrOutputTooLarge = errors.New("process: output too large")
)

// Default limits applied by NewRunner.
const (
	defaultTimeout         = 20 * time.Second
	defaultGracefulTimeout = 2 * time.Second
	defaultMaxOutputBytes  = 256 << 20

	// stderrTailLines is how many trailing stderr lines a failure carries.
	stderrTailLines = 8
)

// Config holds configuration for a worker subprocess.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the path to the executable.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string

	// Env are additional environment variables (key=value format).
	// If nil, inherits from parent process.
	Env []string

	// Timeout bounds a single run.
	Timeout time.Duration

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// MaxOutputBytes caps the size of the worker's stdout.
	MaxOutputBytes int
}

// Logger defines the logging interface for the runner.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Stats describes the runner's history.
type Stats struct {
	Name         string        `json:"name"`
	Runs         int           `json:"runs"`
	Failures     int           `json:"failures"`
	LastDuration time.Duration `json:"last_duration"`
	LastError    string        `json:"last_error,omitempty"`
}

// Runner starts one worker process per Run call.
//
// Runner is safe for concurrent use; concurrent calls start separate children.
type Runner struct {
	config Config
	logger Logger

	mu    sync.Mutex
	stats Stats
}

// NewRunner creates a runner, applying defaults for zero values.
func NewRunner(cfg Config) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = defaultMaxOutputBytes
	}
	return &Runner{
		config: cfg,
		logger: noopLogger{},
		stats:  Stats{Name: cfg.Name},
	}
}

// SetLogger sets the logger for the runner.
func (r *Runner) SetLogger(logger Logger) {
	r.logger = logger
}

// Run starts the worker, feeds it input and returns its stdout.
func (r *Runner) Run(ctx context.Context, input []byte) ([]byte, error) {
	start := time.Now()
	out, err := r.run(ctx, input)

	r.mu.Lock()
	r.stats.Runs++
	r.stats.LastDuration = time.Since(start)
	if err != nil {
		r.stats.Failures++
		r.stats.LastError = err.Error()
	} else {
		r.stats.LastError = ""
	}
	r.mu.Unlock()

	return out, err
}

func (r *Runner) run(ctx context.Context, input []byte) ([]byte, error) {
	cmd := exec.Command(r.config.Binary, r.config.Args...) //nolint:gosec // binary comes from configuration or os.Executable

	// Own process group so the whole tree can be signalled.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if r.config.Env != nil {
		cmd.Env = append(os.Environ(), r.config.Env...)
	}

	cmd.Stdin = bytes.NewReader(input)
	stdout := &cappedBuffer{limit: r.config.MaxOutputBytes}
	cmd.Stdout = stdout

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: creating stderr pipe: %w", ErrStartFailed, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStartFailed, r.config.Name, err)
	}
	pid := cmd.Process.Pid
	r.logger.Debug("worker started", "name", r.config.Name, "pid", pid, "input_bytes", len(input))

	// tail is written before captured closes and read only after exitCh.
	var tail []string
	captured := make(chan struct{})
	go func() {
		defer close(captured)
		tail = r.captureStderr(pid, stderr)
	}()

	exitCh := make(chan error, 1)
	go func() {
		// Stderr must be drained before Wait closes the pipe.
		<-captured
		exitCh <- cmd.Wait()
	}()

	timer := time.NewTimer(r.config.Timeout)
	defer timer.Stop()

	select {
	case err := <-exitCh:
		if stdout.overflow {
			return nil, fmt.Errorf("%w: limit %d bytes", ErrOutputTooLarge, r.config.MaxOutputBytes)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w%s", ErrExited, r.config.Name, err, stderrSuffix(tail))
		}
		return stdout.Bytes(), nil

	case <-timer.C:
		r.terminate(pid, exitCh)
		return nil, fmt.Errorf("%w: %s after %v%s", ErrTimeout, r.config.Name, r.config.Timeout, stderrSuffix(tail))

	case <-ctx.Done():
		r.terminate(pid, exitCh)
		return nil, ctx.Err()
	}
}

// terminate sends SIGTERM to the process group, then SIGKILL after the
// graceful timeout. It returns once the process has been reaped.
func (r *Runner) terminate(pid int, exitCh <-chan error) {
	r.logger.Warn("stopping worker", "name", r.config.Name, "pid", pid)

	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		r.logger.Warn("failed to send SIGTERM to process group", "name", r.config.Name, "error", err)
	}

	select {
	case <-exitCh:
		return
	case <-time.After(r.config.GracefulTimeout):
		r.logger.Warn("graceful shutdown timeout, sending SIGKILL",
			"name", r.config.Name,
			"timeout", r.config.GracefulTimeout,
		)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		r.logger.Error("failed to kill process group", "name", r.config.Name, "error", err)
	}
	<-exitCh
}

// captureStderr logs each line the worker writes to stderr and returns
// the last stderrTailLines of them.
func (r *Runner) captureStderr(pid int, rd io.Reader) []string {
	var tail []string
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		r.logger.Debug("worker output",
			"name", r.config.Name,
			"pid", pid,
			"output", line,
		)
		if len(tail) == stderrTailLines {
			tail = tail[1:]
		}
		tail = append(tail, line)
	}
	// Drain anything left after an over-long line so the child never blocks.
	_, _ = io.Copy(io.Discard, rd)
	return tail
}

// stderrSuffix formats a stderr tail for an error message.
func stderrSuffix(tail []string) string {
	if len(tail) == 0 {
		return ""
	}
	return "; stderr: " + strings.Join(tail, " | ")
}

// Stats returns a copy of the runner's statistics.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// cappedBuffer collects output up to limit bytes and discards the rest.
type cappedBuffer struct {
	bytes.Buffer
	limit    int
	overflow bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.overflow {
		return len(p), nil
	}
	if b.Len()+len(p) > b.limit {
		b.overflow = true
		b.Reset()
		return len(p), nil
	}
	return b.Buffer.Write(p)
}
