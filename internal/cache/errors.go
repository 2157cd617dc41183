package cache

import "errors"

var (
	// ErrRefreshTimeout is returned when a refresh exceeds the hard timeout.
	ErrRefreshTimeout = errors.New("cache: refresh timed out")

	// ErrProviderUnavailable is returned to forced refreshes after repeated failures.
	ErrProviderUnavailable = errors.New("cache: registry provider unavailable")

	// ErrRefreshPanic is returned when producing a snapshot panics.
	ErrRefreshPanic = errors.New("cache: refresh panicked")
)
