package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler drives background refreshes at a fixed interval.
type Scheduler struct {
	manager  *Manager
	interval time.Duration
	cron     *cron.Cron
}

// NewScheduler creates a scheduler refreshing m every interval.
func NewScheduler(m *Manager, interval time.Duration) *Scheduler {
	return &Scheduler{
		manager:  m,
		interval: interval,
		// A tick that finds a refresh in flight is skipped by the busy flag,
		// and SkipIfStillRunning keeps ticks from piling up behind it.
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Start runs one refresh immediately and schedules the rest.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("cache: invalid refresh interval %v", s.interval)
	}
	if _, err := s.cron.AddFunc("@every "+s.interval.String(), s.manager.RefreshBackground); err != nil {
		return fmt.Errorf("scheduling refresh: %w", err)
	}

	go s.manager.RefreshBackground()
	s.cron.Start()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts scheduling and returns a context done when the running
// refresh, if any, has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Interval returns the refresh period.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}
