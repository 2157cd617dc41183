package resource

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrResourceExhausted is matched by every *ExhaustedError.
	ErrResourceExhausted = errors.New("resource: memory too high")

	// ErrInsufficientHeadroom is returned when a tier is not admitted.
	ErrInsufficientHeadroom = errors.New("resource: insufficient headroom")

	// ErrNoStrategy is returned when the executor has nothing to run.
	ErrNoStrategy = errors.New("resource: no strategy admitted")
)

// ExhaustedError is returned when a refresh is refused to protect the host.
// Callers should retry after RetryAfter rather than immediately.
type ExhaustedError struct {
	Reason         string
	ResidentBytes  uint64
	AvailableBytes uint64
	RetryAfter     time.Duration
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%v: %s (rss=%dMB available=%dMB, retry after %v)",
		ErrResourceExhausted, e.Reason, e.ResidentBytes>>20, e.AvailableBytes>>20, e.RetryAfter)
}

// Is reports whether target is ErrResourceExhausted.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrResourceExhausted
}

// SourceError is a registry failure inside a strategy. It ends the
// fallback chain: every tier reads the same source, so the previous
// snapshot is worth more than a degraded one built from part of it.
type SourceError struct {
	Tier string
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("resource: %s tier: registry fetch failed: %v", e.Tier, e.Err)
}

// Unwrap returns the registry error.
func (e *SourceError) Unwrap() error {
	return e.Err
}
