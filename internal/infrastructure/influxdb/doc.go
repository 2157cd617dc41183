// Package influxdb records hub refresh and match history in InfluxDB v2.
//
// Writes are non-blocking and batched by the client library; async write
// failures are delivered to the callback set with SetOnError. Two
// measurements are written:
//
//	hub_refresh  tags: site, outcome, tier, forced
//	             fields: duration_ms, entities, rejected, fallbacks
//	hub_match    tags: site
//	             fields: intents, commands, invalid, unmatched, ambiguous, duration_ms
//
// The client implements cache.Observer and intent.Observer, so main only
// has to register it.
package influxdb
