package intent

// Descriptor is one requested device action.
type Descriptor struct {
	// RoomName is required. "", "any" and "all" match every room.
	RoomName *string `json:"room_name"`

	// DeviceType is required and resolved through the vocabulary.
	DeviceType string `json:"device_type"`

	DeviceName  string         `json:"device_name,omitempty"`
	FloorName   string         `json:"floor_name,omitempty"`
	Action      string         `json:"action,omitempty"`
	ServiceData map[string]any `json:"service_data,omitempty"`

	// Automation is opaque caller data copied onto every matched command.
	Automation any `json:"automation,omitempty"`

	rejected *ValidationError
}

// Rejected returns a placeholder for an item that could not be decoded.
// Match reports err in its outcome and emits no commands for it.
func Rejected(err *ValidationError) Descriptor {
	return Descriptor{rejected: err}
}

// Evidence breaks a confidence score into its parts.
type Evidence struct {
	Type float64 `json:"type"`
	Room float64 `json:"room"`
	Name float64 `json:"name"`

	// RoomVia is how the room matched: exact, alias, contains, keyword,
	// device_name or bypass.
	RoomVia string `json:"room_via"`
}

// Room evidence sources.
const (
	RoomExact    = "exact"
	RoomContains = "contains"
	RoomAlias    = "alias"
	RoomKeyword  = "keyword"
	RoomFromName = "device_name"
	RoomBypass   = "bypass"
)

// MatchedCommand is one entity selected for one descriptor.
type MatchedCommand struct {
	IntentIndex int            `json:"intent_index"`
	EntityID    string         `json:"entity_id"`
	Name        string         `json:"name"`
	Domain      string         `json:"domain"`
	DeviceType  string         `json:"device_type"`
	RoomName    *string        `json:"room_name"`
	Action      string         `json:"action,omitempty"`
	ServiceData map[string]any `json:"service_data,omitempty"`
	Automation  any            `json:"automation,omitempty"`
	Confidence  float64        `json:"confidence"`
	Evidence    Evidence       `json:"evidence"`
}

// Suggestion is a same-type entity offered when a descriptor matched
// nothing.
type Suggestion struct {
	EntityID string  `json:"entity_id"`
	Name     string  `json:"name"`
	RoomName *string `json:"room_name"`
}

// Outcome reports how one descriptor resolved.
type Outcome struct {
	Index int `json:"index"`

	// Matched counts the commands emitted for this descriptor after
	// de-duplication.
	Matched int `json:"matched"`

	// Ambiguous is set when the best two candidates score too close to
	// call.
	Ambiguous bool `json:"ambiguous"`

	// UnknownType is set when the device type is not in the vocabulary.
	UnknownType bool `json:"unknown_type,omitempty"`

	Error       *ValidationError `json:"error,omitempty"`
	Suggestions []Suggestion     `json:"suggestions,omitempty"`
}

// Batch is the result of one Match call.
type Batch struct {
	ID       string           `json:"id"`
	Commands []MatchedCommand `json:"commands"`
	Outcomes []Outcome        `json:"outcomes"`
}
