// Package entity defines the registry records consumed by the hub and the
// enriched view built from them.
//
// A refresh cycle fetches five raw collections from the upstream platform:
// entities, devices, rooms, floors and states. Build joins them into one
// Enriched record per entity:
//
//	RawEntity ──device_id──▶ RawDevice
//	    │                        │
//	    └──room_id (wins)──▶ RawRoom ◀──room_id (fallback)
//	                             │
//	                             └──floor_id──▶ RawFloor
//
// Build is a pure function. It never performs I/O and never drops an entity
// for missing linkage: unresolved device, room and floor fields stay nil.
// A malformed record is reported as a Rejection instead of aborting the build.
//
// # Key Types
//
//   - RawData: one refresh cycle's input, also the worker wire document
//   - Enriched: the joined, read-only view served to callers
//   - BuildResult: enriched records plus per-record rejections
package entity
