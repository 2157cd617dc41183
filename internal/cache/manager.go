package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/entity"
	"github.com/nerrad567/gray-logic-hub/internal/resource"
)

// Defaults applied by New.
const (
	DefaultTimeout          = 30 * time.Second
	DefaultMaxAge           = 60 * time.Second
	DefaultFailureThreshold = 3

	storeTimeout = 10 * time.Second
)

// Producer builds a new snapshot.
type Producer interface {
	Produce(ctx context.Context) (resource.Production, error)
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

// Options configure a Manager.
type Options struct {
	// Timeout is the hard wall-clock bound on one refresh.
	Timeout time.Duration

	// MaxAge is how old a snapshot may be before reads report it stale.
	MaxAge time.Duration

	// FailureThreshold is the number of consecutive failed refreshes after
	// which forced refreshes report ErrProviderUnavailable.
	FailureThreshold int

	// Store, when set, receives every published snapshot.
	Store Store

	// Clock replaces time.Now in tests.
	Clock func() time.Time
}

// Manager owns the current snapshot. Construct one per hub with New.
//
// All methods are safe for concurrent use.
type Manager struct {
	producer  Producer
	timeout   time.Duration
	maxAge    time.Duration
	threshold int
	store     Store
	now       func() time.Time
	logger    Logger

	snap     atomic.Pointer[Snapshot]
	busy     atomic.Bool
	failures atomic.Int32

	mu          sync.RWMutex
	lastError   error
	lastAttempt time.Time
	observers   []Observer

	persistMu   sync.Mutex
	persistedAt time.Time
}

// New creates a Manager producing snapshots with producer.
func New(producer Producer, opts Options) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.FailureThreshold < 1 {
		opts.FailureThreshold = DefaultFailureThreshold
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Manager{
		producer:  producer,
		timeout:   opts.Timeout,
		maxAge:    opts.MaxAge,
		threshold: opts.FailureThreshold,
		store:     opts.Store,
		now:       opts.Clock,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// AddObserver registers o for refresh reports.
func (m *Manager) AddObserver(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// Snapshot returns the current snapshot, or nil before the first refresh.
func (m *Manager) Snapshot() *Snapshot {
	return m.snap.Load()
}

// Entities returns the current snapshot's records. The slice is shared and
// must not be modified.
func (m *Manager) Entities() []entity.Enriched {
	if s := m.snap.Load(); s != nil {
		return s.Entities
	}
	return nil
}

// IsRefreshing reports whether a refresh is in flight.
func (m *Manager) IsRefreshing() bool {
	return m.busy.Load()
}

// Refresh runs a forced refresh and waits for it. It returns false with a
// nil error when another refresh is already in flight.
//
// Errors: ErrRefreshTimeout, *resource.ExhaustedError, a registry
// transport error, or ErrProviderUnavailable once consecutive failures
// reach the threshold.
func (m *Manager) Refresh(ctx context.Context) (bool, error) {
	return m.refresh(ctx, true)
}

// RefreshBackground runs a refresh whose failure is only logged.
func (m *Manager) RefreshBackground() {
	_, _ = m.refresh(context.Background(), false)
}

type outcome struct {
	prod resource.Production
	err  error
}

func (m *Manager) refresh(ctx context.Context, forced bool) (bool, error) {
	if !m.busy.CompareAndSwap(false, true) {
		m.logger.Debug("refresh already in flight", "forced", forced)
		return false, nil
	}
	release := sync.OnceFunc(func() { m.busy.Store(false) })
	defer release()

	started := m.now()
	m.mu.Lock()
	m.lastAttempt = started
	m.mu.Unlock()

	// The refresh is shared with every later reader, so a caller hanging
	// up must not cut it short. Only the hard timeout does.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	// Buffered so an abandoned producer can always deliver and exit.
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", ErrRefreshPanic, r)}
			}
		}()
		prod, err := m.producer.Produce(rctx)
		done <- outcome{prod: prod, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-rctx.Done():
		out = outcome{err: ErrRefreshTimeout}
	}

	report, snap, err := m.apply(forced, started, out)

	// Persistence and observers may block on I/O and run unflagged.
	release()
	if snap != nil {
		m.persist(snap)
	}
	m.notify(report)
	return true, err
}

// apply publishes a successful result or records the failure. It returns
// the report for observers, the published snapshot if any, and the error
// a forced caller should see.
func (m *Manager) apply(forced bool, started time.Time, out outcome) (Report, *Snapshot, error) {
	report := Report{
		Forced:   forced,
		Tier:     out.prod.Tier,
		Duration: m.now().Sub(started),
	}
	for _, f := range out.prod.Fallbacks {
		report.Fallbacks = append(report.Fallbacks, f.Tier)
	}

	if out.err == nil {
		snap := &Snapshot{
			Entities:  out.prod.Result.Entities,
			FetchedAt: m.now(),
			Tier:      out.prod.Tier,
			Rejected:  len(out.prod.Result.Rejected),
		}
		if snap.Entities == nil {
			snap.Entities = []entity.Enriched{}
		}
		m.snap.Store(snap)
		m.failures.Store(0)
		m.setLastError(nil)

		report.Outcome = OutcomeSuccess
		report.Entities = len(snap.Entities)
		report.Rejected = snap.Rejected
		m.logger.Info("snapshot refreshed",
			"entities", report.Entities,
			"rejected", report.Rejected,
			"tier", snap.Tier,
			"duration", report.Duration,
			"forced", forced,
		)
		if snap.Rejected > 0 {
			m.logger.Warn("registry records rejected during build", "count", snap.Rejected)
		}
		return report, snap, nil
	}

	report.Err = out.err
	m.setLastError(out.err)

	var err error
	switch {
	case errors.Is(out.err, resource.ErrResourceExhausted):
		// Refusals protect the host; they say nothing about the provider.
		report.Outcome = OutcomeRefused
		err = out.err
	default:
		report.Outcome = OutcomeFailed
		if errors.Is(out.err, ErrRefreshTimeout) {
			report.Outcome = OutcomeTimeout
		}
		n := m.failures.Add(1)
		err = out.err
		if int(n) >= m.threshold {
			err = fmt.Errorf("%w after %d consecutive failures: %w", ErrProviderUnavailable, n, out.err)
		}
	}

	m.logger.Warn("refresh failed, keeping previous snapshot",
		"outcome", report.Outcome,
		"error", out.err,
		"consecutive_failures", m.failures.Load(),
		"forced", forced,
	)

	if !forced {
		return report, nil, nil
	}
	return report, nil, err
}

// persist saves snap unless a newer snapshot has already been saved.
func (m *Manager) persist(snap *Snapshot) {
	if m.store == nil {
		return
	}
	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	if snap.FetchedAt.Before(m.persistedAt) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := m.store.Save(ctx, snap); err != nil {
		m.logger.Warn("failed to persist snapshot", "error", err)
		return
	}
	m.persistedAt = snap.FetchedAt
}

func (m *Manager) notify(r Report) {
	m.mu.RLock()
	observers := m.observers
	m.mu.RUnlock()
	for _, o := range observers {
		o.RefreshFinished(r)
	}
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastError = err
	m.mu.Unlock()
}

// Seed publishes the stored snapshot when nothing has been published yet.
// The stored fetch time is kept, so an old snapshot is served as stale.
func (m *Manager) Seed(ctx context.Context) (bool, error) {
	if m.store == nil {
		return false, nil
	}
	snap, err := m.store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("loading stored snapshot: %w", err)
	}
	if snap == nil {
		return false, nil
	}
	if !m.snap.CompareAndSwap(nil, snap) {
		return false, nil
	}
	m.logger.Info("seeded snapshot from store",
		"entities", len(snap.Entities),
		"fetched_at", snap.FetchedAt,
	)
	return true, nil
}
