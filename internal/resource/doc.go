// Package resource decides how a refresh is produced given the host's
// memory pressure.
//
// Three tiers are tried in a fixed order, never looping back:
//
//	guard (tier C)   refuse outright: resident memory above the ceiling, or a
//	                 constrained host below its degraded headroom
//	full (tier A)    fetch every registry and join them, in process or in an
//	                 isolated worker
//	legacy (tier B)  fetch states only, filter by domain, no joins
//
// The thresholds come from configuration and are chosen by host class.
// Constrained hosts (Termux, two cores or fewer, under 2 GiB) use a lower
// ceiling, larger headroom requirements and a longer refresh interval.
package resource
