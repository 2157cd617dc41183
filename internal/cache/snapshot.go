package cache

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/entity"
)

// Snapshot is one published refresh result. It is never modified after
// publication.
type Snapshot struct {
	Entities  []entity.Enriched `json:"entities"`
	FetchedAt time.Time         `json:"fetched_at"`
	Tier      string            `json:"tier"`
	Rejected  int               `json:"rejected"`
}

// Store persists the latest snapshot for warm starts.
type Store interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
}

// Report describes one refresh attempt.
type Report struct {
	Forced    bool
	Outcome   string
	Tier      string
	Duration  time.Duration
	Entities  int
	Rejected  int
	Fallbacks []string
	Err       error
}

// Refresh outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeTimeout = "timeout"
	OutcomeRefused = "refused"
)

// Observer is notified after every refresh attempt.
type Observer interface {
	RefreshFinished(r Report)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Report)

// RefreshFinished calls f(r).
func (f ObserverFunc) RefreshFinished(r Report) { f(r) }
