package resource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/entity"
)

// Tier names reported with every production.
const (
	TierFull    = "full"
	TierLegacy  = "legacy_fallback"
	TierRefused = "refused"
)

// Strategy is one way of producing a snapshot.
type Strategy interface {
	// Tier names the strategy.
	Tier() string

	// Admit returns nil when the strategy may run under the given conditions.
	Admit(s Sample, env Environment, t Thresholds) error

	// Produce builds a snapshot.
	Produce(ctx context.Context) (entity.BuildResult, error)
}

// Attempt records one strategy that was skipped or failed.
type Attempt struct {
	Tier string
	Err  error
}

// Production is a successfully built snapshot and how it was made.
type Production struct {
	Result entity.BuildResult
	Tier   string
	Sample Sample

	// Fallbacks lists the strategies tried before the one that succeeded.
	Fallbacks []Attempt
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configure an Executor.
type Options struct {
	Probe       Probe
	Environment Environment
	Thresholds  Thresholds

	// RetryAfter is advertised in ExhaustedError.
	RetryAfter time.Duration
}

// Executor runs the tier policy: the memory guard first, then each
// strategy in order until one succeeds.
type Executor struct {
	probe      Probe
	env        Environment
	thresholds Thresholds
	retryAfter time.Duration
	strategies []Strategy
	logger     Logger
}

// NewExecutor creates an executor trying strategies in the given order.
func NewExecutor(opts Options, strategies ...Strategy) *Executor {
	if opts.Probe == nil {
		opts.Probe = NewProcProbe()
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = time.Minute
	}
	return &Executor{
		probe:      opts.Probe,
		env:        opts.Environment,
		thresholds: opts.Thresholds,
		retryAfter: opts.RetryAfter,
		strategies: strategies,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the executor.
func (e *Executor) SetLogger(logger Logger) {
	e.logger = logger
}

// Environment returns the host classification in force.
func (e *Executor) Environment() Environment {
	return e.env
}

// Thresholds returns the active memory profile.
func (e *Executor) Thresholds() Thresholds {
	return e.thresholds
}

// Produce builds one snapshot. It returns *ExhaustedError when the guard
// refuses and *SourceError as soon as a strategy cannot read the registry.
// Other strategy failures fall through to the next tier; when every tier
// fails the last error is returned.
func (e *Executor) Produce(ctx context.Context) (Production, error) {
	sample, err := e.probe.Sample()
	if err != nil {
		e.logger.Warn("memory probe failed, skipping headroom checks", "error", err)
		sample.HeadroomKnown = false
	}

	if err := e.guard(sample); err != nil {
		return Production{Tier: TierRefused, Sample: sample}, err
	}

	var (
		fallbacks []Attempt
		lastErr   error
	)
	for _, s := range e.strategies {
		if err := ctx.Err(); err != nil {
			return Production{Sample: sample, Fallbacks: fallbacks}, err
		}

		if err := s.Admit(sample, e.env, e.thresholds); err != nil {
			e.logger.Info("strategy not admitted", "tier", s.Tier(), "reason", err)
			fallbacks = append(fallbacks, Attempt{Tier: s.Tier(), Err: err})
			lastErr = err
			continue
		}

		result, err := s.Produce(ctx)
		var srcErr *SourceError
		if errors.As(err, &srcErr) {
			e.logger.Warn("registry fetch failed, not falling back", "tier", s.Tier(), "error", err)
			fallbacks = append(fallbacks, Attempt{Tier: s.Tier(), Err: err})
			return Production{Sample: sample, Fallbacks: fallbacks}, err
		}
		if err != nil {
			e.logger.Warn("strategy failed, falling back", "tier", s.Tier(), "error", err)
			fallbacks = append(fallbacks, Attempt{Tier: s.Tier(), Err: err})
			lastErr = err
			continue
		}

		return Production{Result: result, Tier: s.Tier(), Sample: sample, Fallbacks: fallbacks}, nil
	}

	if lastErr == nil {
		lastErr = ErrNoStrategy
	}
	return Production{Sample: sample, Fallbacks: fallbacks}, lastErr
}

// guard refuses the refresh when the host is already under critical pressure.
func (e *Executor) guard(s Sample) error {
	if e.thresholds.CeilingBytes > 0 && s.ResidentBytes > e.thresholds.CeilingBytes {
		return &ExhaustedError{
			Reason:         fmt.Sprintf("resident memory above %dMB ceiling", e.thresholds.CeilingBytes>>20),
			ResidentBytes:  s.ResidentBytes,
			AvailableBytes: s.AvailableBytes,
			RetryAfter:     e.retryAfter,
		}
	}
	if e.env.Constrained && s.HeadroomKnown && s.AvailableBytes < e.thresholds.DegradedHeadroomBytes {
		return &ExhaustedError{
			Reason:         fmt.Sprintf("constrained host below %dMB headroom", e.thresholds.DegradedHeadroomBytes>>20),
			ResidentBytes:  s.ResidentBytes,
			AvailableBytes: s.AvailableBytes,
			RetryAfter:     e.retryAfter,
		}
	}
	return nil
}

// IsExhausted reports whether err is a refusal from the memory guard.
func IsExhausted(err error) bool {
	return errors.Is(err, ErrResourceExhausted)
}
