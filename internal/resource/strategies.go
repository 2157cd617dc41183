package resource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nerrad567/gray-logic-hub/internal/entity"
	"github.com/nerrad567/gray-logic-hub/internal/registry"
)

// Builder joins raw registry data.
type Builder interface {
	Build(ctx context.Context, raw entity.RawData) (entity.BuildResult, error)
}

// InProcessBuilder runs the join in the calling process.
type InProcessBuilder struct{}

// Build joins raw in process.
func (InProcessBuilder) Build(ctx context.Context, raw entity.RawData) (entity.BuildResult, error) {
	if err := ctx.Err(); err != nil {
		return entity.BuildResult{}, err
	}
	return entity.Build(raw), nil
}

// FullStrategy fetches every registry collection and joins them.
type FullStrategy struct {
	src      registry.Source
	builder  Builder
	attempts int

	// initialInterval is the first backoff delay; tests shorten it.
	initialInterval time.Duration
}

var _ Strategy = (*FullStrategy)(nil)

// NewFullStrategy creates the tier-A strategy. attempts bounds the number
// of fetch attempts within one refresh.
func NewFullStrategy(src registry.Source, builder Builder, attempts int) *FullStrategy {
	if builder == nil {
		builder = InProcessBuilder{}
	}
	if attempts < 1 {
		attempts = 1
	}
	return &FullStrategy{
		src:             src,
		builder:         builder,
		attempts:        attempts,
		initialInterval: 500 * time.Millisecond,
	}
}

// Tier returns TierFull.
func (s *FullStrategy) Tier() string { return TierFull }

// Admit requires the full headroom when host memory is known.
func (s *FullStrategy) Admit(sample Sample, _ Environment, t Thresholds) error {
	if sample.HeadroomKnown && sample.AvailableBytes < t.FullHeadroomBytes {
		return fmt.Errorf("%w: %dMB available, full join needs %dMB",
			ErrInsufficientHeadroom, sample.AvailableBytes>>20, t.FullHeadroomBytes>>20)
	}
	return nil
}

// Produce fetches with bounded exponential backoff and builds. A fetch
// that still fails comes back as a *SourceError; a build failure does not.
func (s *FullStrategy) Produce(ctx context.Context) (entity.BuildResult, error) {
	var raw entity.RawData

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = s.initialInterval
	expo.MaxInterval = 5 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(s.attempts-1)), ctx) //nolint:gosec // attempts >= 1

	err := backoff.Retry(func() error {
		data, err := registry.FetchAll(ctx, s.src)
		if err != nil {
			// An open breaker or an abandoned refresh will not improve on retry.
			if errors.Is(err, registry.ErrCircuitOpen) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		raw = data
		return nil
	}, policy)
	if err != nil {
		return entity.BuildResult{}, &SourceError{Tier: TierFull, Err: err}
	}

	return s.builder.Build(ctx, raw)
}

// LegacyStrategy serves raw states without joins.
type LegacyStrategy struct {
	src     registry.Source
	domains []string
}

var _ Strategy = (*LegacyStrategy)(nil)

// NewLegacyStrategy creates the tier-B strategy keeping only domains.
func NewLegacyStrategy(src registry.Source, domains []string) *LegacyStrategy {
	return &LegacyStrategy{src: src, domains: domains}
}

// Tier returns TierLegacy.
func (s *LegacyStrategy) Tier() string { return TierLegacy }

// Admit always admits; the guard has already run.
func (s *LegacyStrategy) Admit(Sample, Environment, Thresholds) error { return nil }

// Produce fetches states and builds degraded records.
func (s *LegacyStrategy) Produce(ctx context.Context) (entity.BuildResult, error) {
	states, err := s.src.FetchStates(ctx)
	if err != nil {
		return entity.BuildResult{}, &SourceError{Tier: TierLegacy, Err: err}
	}
	return entity.BuildLegacy(states, s.domains), nil
}
