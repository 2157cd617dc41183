package entity

import (
	"strings"
	"time"
)

// ProcessedBy values record which path produced an Enriched record.
const (
	ProcessedFull   = "full"
	ProcessedWorker = "worker"
	ProcessedLegacy = "legacy_fallback"
)

// RawEntity is an entity registry entry.
type RawEntity struct {
	ID           string  `json:"entity_id" yaml:"entity_id"`
	DeviceID     *string `json:"device_id" yaml:"device_id"`
	RoomID       *string `json:"area_id" yaml:"area_id"`
	Name         *string `json:"name" yaml:"name"`
	OriginalName *string `json:"original_name" yaml:"original_name"`
	Platform     string  `json:"platform" yaml:"platform"`
	Disabled     bool    `json:"disabled" yaml:"disabled"`
	Hidden       bool    `json:"hidden" yaml:"hidden"`
}

// Domain returns the namespace prefix of the entity identifier.
func (e RawEntity) Domain() string {
	return DomainOf(e.ID)
}

// RawDevice is a device registry entry.
type RawDevice struct {
	ID           string  `json:"id" yaml:"id"`
	Name         *string `json:"name" yaml:"name"`
	NameByUser   *string `json:"name_by_user" yaml:"name_by_user"`
	Manufacturer *string `json:"manufacturer" yaml:"manufacturer"`
	Model        *string `json:"model" yaml:"model"`
	RoomID       *string `json:"area_id" yaml:"area_id"`
}

// DisplayName prefers the user-assigned name.
func (d RawDevice) DisplayName() *string {
	if d.NameByUser != nil && *d.NameByUser != "" {
		return d.NameByUser
	}
	return d.Name
}

// RawRoom is a room (area) registry entry.
type RawRoom struct {
	ID      string   `json:"area_id" yaml:"area_id"`
	Name    string   `json:"name" yaml:"name"`
	FloorID *string  `json:"floor_id" yaml:"floor_id"`
	Aliases []string `json:"aliases" yaml:"aliases"`
}

// RawFloor is a floor registry entry.
type RawFloor struct {
	ID    string `json:"floor_id" yaml:"floor_id"`
	Name  string `json:"name" yaml:"name"`
	Level *int   `json:"level" yaml:"level"`
}

// RawState is a point-in-time state snapshot of one entity.
type RawState struct {
	EntityID    string         `json:"entity_id" yaml:"entity_id"`
	State       string         `json:"state" yaml:"state"`
	Attributes  map[string]any `json:"attributes" yaml:"attributes"`
	LastChanged time.Time      `json:"last_changed" yaml:"last_changed"`
	LastUpdated time.Time      `json:"last_updated" yaml:"last_updated"`
}

// Domain returns the namespace prefix of the state's entity identifier.
func (s RawState) Domain() string {
	return DomainOf(s.EntityID)
}

// StringAttr returns a non-empty string attribute.
func (s RawState) StringAttr(key string) (string, bool) {
	v, ok := s.Attributes[key].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// RawData is the complete input of one refresh cycle.
type RawData struct {
	Entities []RawEntity `json:"entities" yaml:"entities"`
	Devices  []RawDevice `json:"devices" yaml:"devices"`
	Rooms    []RawRoom   `json:"rooms" yaml:"rooms"`
	Floors   []RawFloor  `json:"floors" yaml:"floors"`
	States   []RawState  `json:"states" yaml:"states"`
}

// Enriched is an entity joined with its device, room and floor.
// Records are never mutated after they are published in a snapshot.
type Enriched struct {
	EntityID   string `json:"entity_id"`
	Name       string `json:"name"`
	Domain     string `json:"domain"`
	DeviceType string `json:"device_type"`
	State      string `json:"state"`

	DeviceID     *string `json:"device_id"`
	DeviceName   *string `json:"device_name"`
	Manufacturer *string `json:"manufacturer"`
	Model        *string `json:"model"`

	RoomID   *string `json:"room_id"`
	RoomName *string `json:"room_name"`

	FloorID    *string `json:"floor_id"`
	FloorName  *string `json:"floor_name"`
	FloorLevel *int    `json:"floor_level"`

	Disabled bool `json:"disabled"`
	Hidden   bool `json:"hidden"`

	LastChanged time.Time `json:"last_changed"`
	LastUpdated time.Time `json:"last_updated"`

	ProcessedBy string `json:"processed_by"`
}

// Rejection records a raw record that could not be enriched.
type Rejection struct {
	EntityID string `json:"entity_id"`
	Reason   string `json:"reason"`
}

// BuildResult is the output of Build.
type BuildResult struct {
	Entities []Enriched  `json:"entities"`
	Rejected []Rejection `json:"rejected,omitempty"`
}

// DomainOf returns the namespace prefix of an entity identifier, or ""
// when the identifier carries no valid namespace.
func DomainOf(id string) string {
	i := strings.IndexByte(id, '.')
	if i <= 0 || i == len(id)-1 {
		return ""
	}
	domain := id[:i]
	for _, r := range domain {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return ""
		}
	}
	return domain
}

// ObjectID returns the part of an entity identifier after the domain.
func ObjectID(id string) string {
	if i := strings.IndexByte(id, '.'); i >= 0 {
		return id[i+1:]
	}
	return id
}
