package entity

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func sampleData() RawData {
	changed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return RawData{
		Entities: []RawEntity{
			{ID: "light.guest_1", DeviceID: strPtr("dev-guest"), Name: strPtr("Guest Ceiling")},
			{ID: "light.guest_2", DeviceID: strPtr("dev-lamp"), RoomID: strPtr("guest_bedroom")},
			{ID: "binary_sensor.hall_motion", DeviceID: strPtr("dev-hall")},
			{ID: "switch.mystery", DeviceID: strPtr("dev-missing")},
			{ID: "sensor.no_links", Disabled: true},
		},
		Devices: []RawDevice{
			{ID: "dev-guest", Name: strPtr("Ceiling Light"), Manufacturer: strPtr("Philips"), Model: strPtr("Hue"), RoomID: strPtr("guest_bedroom")},
			{ID: "dev-lamp", Name: strPtr("Lamp"), NameByUser: strPtr("Bedside Lamp"), RoomID: strPtr("kitchen")},
			{ID: "dev-hall", Name: strPtr("Hall PIR"), RoomID: strPtr("hallway")},
		},
		Rooms: []RawRoom{
			{ID: "guest_bedroom", Name: "Guest Bedroom", FloorID: strPtr("first")},
			{ID: "kitchen", Name: "Kitchen", FloorID: strPtr("ground")},
			{ID: "hallway", Name: "Hallway", FloorID: strPtr("basement")},
		},
		Floors: []RawFloor{
			{ID: "first", Name: "First Floor", Level: intPtr(1)},
			{ID: "ground", Name: "Ground Floor", Level: intPtr(0)},
		},
		States: []RawState{
			{EntityID: "light.guest_1", State: "on", LastChanged: changed, LastUpdated: changed},
			{EntityID: "light.guest_2", State: "off", Attributes: map[string]any{"friendly_name": "Guest Lamp"}},
			{EntityID: "binary_sensor.hall_motion", State: "off", Attributes: map[string]any{"device_class": "motion"}},
			{EntityID: "sun.sun", State: "above_horizon", Attributes: map[string]any{"friendly_name": "Sun"}},
		},
	}
}

func byID(t *testing.T, records []Enriched, id string) Enriched {
	t.Helper()
	for _, r := range records {
		if r.EntityID == id {
			return r
		}
	}
	t.Fatalf("entity %q not found", id)
	return Enriched{}
}

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}

func TestBuild_EntityRoomWinsOverDeviceRoom(t *testing.T) {
	result := Build(sampleData())

	lamp := byID(t, result.Entities, "light.guest_2")
	if deref(lamp.RoomID) != "guest_bedroom" {
		t.Errorf("RoomID = %s, want guest_bedroom", deref(lamp.RoomID))
	}
	if deref(lamp.RoomName) != "Guest Bedroom" {
		t.Errorf("RoomName = %s, want Guest Bedroom", deref(lamp.RoomName))
	}
	if deref(lamp.FloorName) != "First Floor" {
		t.Errorf("FloorName = %s, want First Floor", deref(lamp.FloorName))
	}
	if lamp.FloorLevel == nil || *lamp.FloorLevel != 1 {
		t.Errorf("FloorLevel = %v, want 1", lamp.FloorLevel)
	}
}

func TestBuild_DeviceRoomFallback(t *testing.T) {
	result := Build(sampleData())

	ceiling := byID(t, result.Entities, "light.guest_1")
	if deref(ceiling.RoomName) != "Guest Bedroom" {
		t.Errorf("RoomName = %s, want Guest Bedroom", deref(ceiling.RoomName))
	}
	if deref(ceiling.DeviceName) != "Ceiling Light" {
		t.Errorf("DeviceName = %s, want Ceiling Light", deref(ceiling.DeviceName))
	}
	if deref(ceiling.Manufacturer) != "Philips" || deref(ceiling.Model) != "Hue" {
		t.Errorf("Manufacturer/Model = %s/%s, want Philips/Hue", deref(ceiling.Manufacturer), deref(ceiling.Model))
	}
	if ceiling.State != "on" {
		t.Errorf("State = %q, want on", ceiling.State)
	}
	if ceiling.LastChanged.IsZero() {
		t.Error("LastChanged should come from the state snapshot")
	}
}

func TestBuild_NullPropagation(t *testing.T) {
	result := Build(sampleData())

	mystery := byID(t, result.Entities, "switch.mystery")
	if deref(mystery.DeviceID) != "dev-missing" {
		t.Errorf("DeviceID = %s, want dev-missing", deref(mystery.DeviceID))
	}
	if mystery.DeviceName != nil || mystery.RoomID != nil || mystery.FloorID != nil {
		t.Error("unknown device should leave device, room and floor fields nil")
	}

	// Room resolves but its floor is not in the floor registry.
	motion := byID(t, result.Entities, "binary_sensor.hall_motion")
	if deref(motion.FloorID) != "basement" {
		t.Errorf("FloorID = %s, want basement", deref(motion.FloorID))
	}
	if motion.FloorName != nil {
		t.Errorf("FloorName = %s, want nil", deref(motion.FloorName))
	}

	unlinked := byID(t, result.Entities, "sensor.no_links")
	if !unlinked.Disabled {
		t.Error("Disabled flag should be carried over")
	}
}

func TestBuild_DeviceType(t *testing.T) {
	result := Build(sampleData())

	tests := []struct {
		id   string
		want string
	}{
		{"binary_sensor.hall_motion", "motion"},
		{"light.guest_1", "light"},
		{"sensor.no_links", "sensor"},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got := byID(t, result.Entities, tt.id).DeviceType
			if got != tt.want {
				t.Errorf("DeviceType = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuild_DisplayName(t *testing.T) {
	result := Build(sampleData())

	tests := []struct {
		id   string
		want string
	}{
		{"light.guest_1", "Guest Ceiling"},         // entity name
		{"light.guest_2", "Guest Lamp"},            // friendly_name attribute
		{"binary_sensor.hall_motion", "Hall PIR"},  // device name
		{"sensor.no_links", "no_links"},            // object id
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got := byID(t, result.Entities, tt.id).Name
			if got != tt.want {
				t.Errorf("Name = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuild_OrphanStateIncluded(t *testing.T) {
	result := Build(sampleData())

	sun := byID(t, result.Entities, "sun.sun")
	if sun.Domain != "sun" || sun.Name != "Sun" {
		t.Errorf("orphan = %+v, want domain sun and name Sun", sun)
	}
	if len(result.Entities) != 6 {
		t.Errorf("len(Entities) = %d, want 6", len(result.Entities))
	}
}

func TestBuild_RejectsMalformedRecords(t *testing.T) {
	data := sampleData()
	data.Entities = append(data.Entities,
		RawEntity{ID: "no-namespace"},
		RawEntity{ID: "Light.Upper"},
		RawEntity{ID: "light.guest_1"},
	)

	result := Build(data)

	if len(result.Rejected) != 3 {
		t.Fatalf("len(Rejected) = %d, want 3: %+v", len(result.Rejected), result.Rejected)
	}
	for _, r := range result.Rejected[:2] {
		if !strings.Contains(r.Reason, ErrInvalidID.Error()) {
			t.Errorf("Rejection %q reason = %q, want invalid id", r.EntityID, r.Reason)
		}
	}
	if result.Rejected[2].Reason != ErrDuplicate.Error() {
		t.Errorf("duplicate reason = %q", result.Rejected[2].Reason)
	}

	// Valid records still come through.
	byID(t, result.Entities, "light.guest_2")
}

func TestBuild_DomainInvariant(t *testing.T) {
	result := Build(sampleData())

	for _, r := range result.Entities {
		if r.Domain == "" {
			t.Errorf("%s has empty domain", r.EntityID)
		}
		if r.Domain != DomainOf(r.EntityID) {
			t.Errorf("%s domain = %q, want %q", r.EntityID, r.Domain, DomainOf(r.EntityID))
		}
		if r.ProcessedBy != ProcessedFull {
			t.Errorf("%s ProcessedBy = %q, want %q", r.EntityID, r.ProcessedBy, ProcessedFull)
		}
	}
}

func TestBuild_Idempotent(t *testing.T) {
	first := Build(sampleData())
	second := Build(sampleData())

	if !reflect.DeepEqual(first, second) {
		t.Error("two builds over equal input should be field-for-field equal")
	}

	for i := 1; i < len(first.Entities); i++ {
		if first.Entities[i-1].EntityID >= first.Entities[i].EntityID {
			t.Fatal("entities should be sorted by id")
		}
	}
}

func TestBuild_OutputDoesNotAliasInput(t *testing.T) {
	data := sampleData()
	result := Build(data)

	*data.Devices[0].Name = "Renamed"
	ceiling := byID(t, result.Entities, "light.guest_1")
	if deref(ceiling.DeviceName) != "Ceiling Light" {
		t.Errorf("DeviceName = %s, mutation of raw input leaked into snapshot", deref(ceiling.DeviceName))
	}
}

func TestBuildLegacy(t *testing.T) {
	states := []RawState{
		{EntityID: "light.kitchen", State: "on", Attributes: map[string]any{"friendly_name": "Kitchen"}},
		{EntityID: "binary_sensor.door", State: "off", Attributes: map[string]any{"device_class": "door"}},
		{EntityID: "sun.sun", State: "below_horizon"},
		{EntityID: "broken"},
		{EntityID: "light.kitchen", State: "off"},
	}

	result := BuildLegacy(states, []string{"light", "binary_sensor"})

	if len(result.Entities) != 2 {
		t.Fatalf("len(Entities) = %d, want 2", len(result.Entities))
	}
	for _, r := range result.Entities {
		if r.ProcessedBy != ProcessedLegacy {
			t.Errorf("%s ProcessedBy = %q, want %q", r.EntityID, r.ProcessedBy, ProcessedLegacy)
		}
		if r.DeviceID != nil || r.RoomName != nil || r.FloorName != nil {
			t.Errorf("%s should carry no linkage", r.EntityID)
		}
	}

	door := byID(t, result.Entities, "binary_sensor.door")
	if door.DeviceType != "door" || door.Name != "door" {
		t.Errorf("door = %q/%q, want door/door", door.DeviceType, door.Name)
	}
	kitchen := byID(t, result.Entities, "light.kitchen")
	if kitchen.State != "on" {
		t.Errorf("first state should win, got %q", kitchen.State)
	}

	if len(result.Rejected) != 1 || result.Rejected[0].EntityID != "broken" {
		t.Errorf("Rejected = %+v, want the malformed id", result.Rejected)
	}
}

func TestBuildLegacy_NoDomainFilter(t *testing.T) {
	states := []RawState{{EntityID: "sun.sun"}, {EntityID: "light.a"}}

	result := BuildLegacy(states, nil)
	if len(result.Entities) != 2 {
		t.Errorf("len(Entities) = %d, want 2", len(result.Entities))
	}
}

func TestDomainOf(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"light.kitchen", "light"},
		{"binary_sensor.front_door", "binary_sensor"},
		{"media_player.tv.extra", "media_player"},
		{"", ""},
		{"nodot", ""},
		{".leading", ""},
		{"trailing.", ""},
		{"Light.upper", ""},
		{"light-bad.x", ""},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := DomainOf(tt.id); got != tt.want {
				t.Errorf("DomainOf(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestSafeEnrich_RecoversPanic(t *testing.T) {
	var idx *index // nil index panics on map access through a nil pointer
	_, err := idx.safeEnrich(&RawEntity{ID: "light.a"})
	if !errors.Is(err, ErrEnrichFailed) {
		t.Errorf("err = %v, want ErrEnrichFailed", err)
	}
}
