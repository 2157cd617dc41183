package registry

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/nerrad567/gray-logic-hub/internal/entity"
)

// BreakerConfig controls when the breaker opens and how long it stays open.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the breaker.
	MaxFailures int

	// OpenTimeout is how long the breaker stays open before a trial call.
	OpenTimeout time.Duration
}

// Breaker wraps a Source with a circuit breaker shared by all collections.
type Breaker struct {
	src    Source
	cb     *gobreaker.CircuitBreaker
	logger Logger
}

var _ Source = (*Breaker)(nil)

// NewBreaker wraps src. A nil logger disables state-change logging.
func NewBreaker(src Source, cfg BreakerConfig, logger Logger) *Breaker {
	if cfg.MaxFailures < 1 {
		cfg.MaxFailures = 3
	}
	if logger == nil {
		logger = noopLogger{}
	}
	b := &Breaker{src: src, logger: logger}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "registry",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(cfg.MaxFailures) //nolint:gosec // validated positive
		},
		// A caller abandoning the request says nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return b
}

// State reports the breaker state: "closed", "half-open" or "open".
func (b *Breaker) State() string {
	return b.cb.State().String()
}

func guarded[T any](b *Breaker, op string, fn func() (T, error)) (T, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, &TransportError{Op: op, Err: ErrCircuitOpen}
		}
		return zero, wrap(op, err)
	}
	return v.(T), nil //nolint:forcetypeassert // fn returns T
}

// FetchEntities calls the wrapped source through the breaker.
func (b *Breaker) FetchEntities(ctx context.Context) ([]entity.RawEntity, error) {
	return guarded(b, OpEntities, func() ([]entity.RawEntity, error) { return b.src.FetchEntities(ctx) })
}

// FetchDevices calls the wrapped source through the breaker.
func (b *Breaker) FetchDevices(ctx context.Context) ([]entity.RawDevice, error) {
	return guarded(b, OpDevices, func() ([]entity.RawDevice, error) { return b.src.FetchDevices(ctx) })
}

// FetchRooms calls the wrapped source through the breaker.
func (b *Breaker) FetchRooms(ctx context.Context) ([]entity.RawRoom, error) {
	return guarded(b, OpRooms, func() ([]entity.RawRoom, error) { return b.src.FetchRooms(ctx) })
}

// FetchFloors calls the wrapped source through the breaker.
func (b *Breaker) FetchFloors(ctx context.Context) ([]entity.RawFloor, error) {
	return guarded(b, OpFloors, func() ([]entity.RawFloor, error) { return b.src.FetchFloors(ctx) })
}

// FetchStates calls the wrapped source through the breaker.
func (b *Breaker) FetchStates(ctx context.Context) ([]entity.RawState, error) {
	return guarded(b, OpStates, func() ([]entity.RawState, error) { return b.src.FetchStates(ctx) })
}
