package intent

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidDescriptor is matched by every *ValidationError.
	ErrInvalidDescriptor = errors.New("intent: invalid descriptor")

	// ErrInvalidVocabulary is returned when a vocabulary fails validation.
	ErrInvalidVocabulary = errors.New("intent: invalid vocabulary")
)

// ValidationError describes a malformed descriptor.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s %s", ErrInvalidDescriptor, e.Field, e.Reason)
}

// Is reports whether target is ErrInvalidDescriptor.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidDescriptor
}

// Validate checks the fields every descriptor needs.
func Validate(d Descriptor) *ValidationError {
	if d.rejected != nil {
		return d.rejected
	}
	if d.RoomName == nil {
		return &ValidationError{Field: "room_name", Reason: "is required"}
	}
	if strings.TrimSpace(d.DeviceType) == "" {
		return &ValidationError{Field: "device_type", Reason: "is required"}
	}
	return nil
}
