// Package registry fetches the raw topology collections that the hub joins
// into its enriched entity view.
//
// A Source supplies five collections: entities, devices, rooms, floors and
// states. Two sources are provided:
//
//   - HomeAssistant talks to a Home Assistant instance over its WebSocket API
//     using one authenticated session that is re-dialled after any failure.
//   - File reads a YAML fixture, for offline sites, demos and tests.
//
// Breaker wraps any Source with a circuit breaker so a dead upstream fails
// fast instead of holding every refresh until its timeout.
//
// Every failure a Source returns is a *TransportError naming the collection
// that failed:
//
//	var te *registry.TransportError
//	if errors.As(err, &te) {
//	    log.Warn("registry fetch failed", "op", te.Op, "error", te.Err)
//	}
package registry
