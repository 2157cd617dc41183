package entity

import "errors"

var (
	// ErrInvalidID is reported for records whose identifier has no valid domain.
	ErrInvalidID = errors.New("entity: invalid entity id")

	// ErrDuplicate is reported when the registry lists an entity twice.
	ErrDuplicate = errors.New("entity: duplicate entity id")

	// ErrEnrichFailed is reported when enriching a single record panics.
	ErrEnrichFailed = errors.New("entity: enrichment failed")
)
