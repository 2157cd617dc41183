// Package cache owns the hub's single enriched-entity snapshot.
//
// The Manager holds one immutable Snapshot behind an atomic pointer and
// guarantees that at most one refresh is in flight. A refresh moves the
// manager Idle → Refreshing → Idle:
//
//	           CAS(false→true)            publish or keep old
//	  Idle ───────────────────▶ Refreshing ───────────────────▶ Idle
//	   ▲                           │
//	   └────── hard timeout ───────┘  (late result dropped)
//
// Callers that lose the compare-and-set return at once and keep reading
// the previous snapshot. Reads never block on a refresh.
//
// Background refreshes, driven by the Scheduler, log failures and carry
// on. Forced refreshes (Refresh) return the failure to their caller, and
// report ErrProviderUnavailable once consecutive failures reach the
// configured threshold.
package cache
