// Package api implements the hub's HTTP surface.
//
// Routes, all under /api/v1 except /metrics:
//
//	GET  /health            liveness plus component checks
//	GET  /entities          snapshot read, ?room= and ?type= filters
//	POST /entities/refresh  forced refresh, waits for the result
//	GET  /cache/status      snapshot age and refresh state
//	POST /intents/match     resolve intent descriptors to entities
//	GET  /metrics           Prometheus exposition
//
// Reads are always served from the snapshot; only /entities/refresh
// touches the upstream registry. A refresh refused for memory reasons, or
// one made while the registry is marked unavailable, answers 503 with a
// Retry-After header.
//
// # Security
//
// When security.jwt.enabled is set, every route except /health and
// /metrics requires an HS256 bearer token with an expiry.
package api
