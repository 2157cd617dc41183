// Package intent resolves loosely structured device requests to concrete
// entity ids.
//
// A Descriptor names a device type, a room, and optionally a device name
// and floor, usually as produced by a language model from a spoken
// command. The Matcher resolves each descriptor against the current
// snapshot:
//
//  1. Type is a hard filter: the entity's domain (and device class, where
//     the vocabulary rule names classes) must belong to the requested type.
//  2. Room needs evidence: the entity's room name, a room alias, or, for
//     entities without a room, a room keyword in the id or display name.
//     "", "any" and "all" skip the room filter.
//  3. A device name narrows the survivors when at least one matches it;
//     otherwise every survivor is returned and flagged ambiguous.
//
// Confidence is a weighted sum of type, room and name evidence, clamped
// to [0, 1]. A malformed descriptor is reported in its Outcome and never
// prevents the rest of the batch from resolving.
package intent
