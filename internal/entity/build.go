package entity

import (
	"fmt"
	"sort"
)

// Attribute keys read from state snapshots.
const (
	attrDeviceClass  = "device_class"
	attrFriendlyName = "friendly_name"
)

// index holds the identifier maps built once per refresh.
type index struct {
	devices map[string]*RawDevice
	rooms   map[string]*RawRoom
	floors  map[string]*RawFloor
	states  map[string]*RawState
}

func newIndex(raw *RawData) *index {
	idx := &index{
		devices: make(map[string]*RawDevice, len(raw.Devices)),
		rooms:   make(map[string]*RawRoom, len(raw.Rooms)),
		floors:  make(map[string]*RawFloor, len(raw.Floors)),
		states:  make(map[string]*RawState, len(raw.States)),
	}
	for i := range raw.Devices {
		idx.devices[raw.Devices[i].ID] = &raw.Devices[i]
	}
	for i := range raw.Rooms {
		idx.rooms[raw.Rooms[i].ID] = &raw.Rooms[i]
	}
	for i := range raw.Floors {
		idx.floors[raw.Floors[i].ID] = &raw.Floors[i]
	}
	for i := range raw.States {
		idx.states[raw.States[i].EntityID] = &raw.States[i]
	}
	return idx
}

// Build joins one refresh cycle's raw collections into enriched records.
//
// Every registry entity with a valid identifier yields exactly one record.
// States without a registry entry are emitted as unlinked records. The
// result is sorted by entity id so equal input gives equal output.
func Build(raw RawData) BuildResult {
	idx := newIndex(&raw)

	out := make([]Enriched, 0, len(raw.Entities))
	seen := make(map[string]struct{}, len(raw.Entities))
	var rejected []Rejection

	for i := range raw.Entities {
		e := &raw.Entities[i]
		if _, dup := seen[e.ID]; dup {
			rejected = append(rejected, Rejection{EntityID: e.ID, Reason: ErrDuplicate.Error()})
			continue
		}
		rec, err := idx.safeEnrich(e)
		if err != nil {
			rejected = append(rejected, Rejection{EntityID: e.ID, Reason: err.Error()})
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, rec)
	}

	for i := range raw.States {
		s := &raw.States[i]
		if _, ok := seen[s.EntityID]; ok {
			continue
		}
		orphan := RawEntity{ID: s.EntityID}
		rec, err := idx.safeEnrich(&orphan)
		if err != nil {
			rejected = append(rejected, Rejection{EntityID: s.EntityID, Reason: err.Error()})
			continue
		}
		seen[s.EntityID] = struct{}{}
		out = append(out, rec)
	}

	sortByID(out)
	return BuildResult{Entities: out, Rejected: rejected}
}

// BuildLegacy produces degraded records from states alone. Only states whose
// domain is in domains are kept; an empty domains list keeps every valid
// domain. All linkage fields are nil.
func BuildLegacy(states []RawState, domains []string) BuildResult {
	allowed := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		allowed[d] = struct{}{}
	}

	out := make([]Enriched, 0, len(states))
	seen := make(map[string]struct{}, len(states))
	var rejected []Rejection

	for i := range states {
		s := &states[i]
		domain := s.Domain()
		if domain == "" {
			rejected = append(rejected, Rejection{EntityID: s.EntityID, Reason: ErrInvalidID.Error()})
			continue
		}
		if len(allowed) > 0 {
			if _, ok := allowed[domain]; !ok {
				continue
			}
		}
		if _, dup := seen[s.EntityID]; dup {
			continue
		}
		seen[s.EntityID] = struct{}{}

		name, ok := s.StringAttr(attrFriendlyName)
		if !ok {
			name = ObjectID(s.EntityID)
		}
		out = append(out, Enriched{
			EntityID:    s.EntityID,
			Name:        name,
			Domain:      domain,
			DeviceType:  deviceType(domain, s),
			State:       s.State,
			LastChanged: s.LastChanged,
			LastUpdated: s.LastUpdated,
			ProcessedBy: ProcessedLegacy,
		})
	}

	sortByID(out)
	return BuildResult{Entities: out, Rejected: rejected}
}

func (idx *index) safeEnrich(e *RawEntity) (rec Enriched, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrEnrichFailed, r)
		}
	}()
	return idx.enrich(e)
}

func (idx *index) enrich(e *RawEntity) (Enriched, error) {
	domain := e.Domain()
	if domain == "" {
		return Enriched{}, fmt.Errorf("%w: %q", ErrInvalidID, e.ID)
	}

	rec := Enriched{
		EntityID:    e.ID,
		Domain:      domain,
		DeviceType:  domain,
		Disabled:    e.Disabled,
		Hidden:      e.Hidden,
		ProcessedBy: ProcessedFull,
	}

	state := idx.states[e.ID]
	if state != nil {
		rec.State = state.State
		rec.DeviceType = deviceType(domain, state)
		rec.LastChanged = state.LastChanged
		rec.LastUpdated = state.LastUpdated
	}

	var device *RawDevice
	if e.DeviceID != nil {
		rec.DeviceID = clone(e.DeviceID)
		device = idx.devices[*e.DeviceID]
	}
	if device != nil {
		rec.DeviceName = clone(device.DisplayName())
		rec.Manufacturer = clone(device.Manufacturer)
		rec.Model = clone(device.Model)
	}

	// Entity-level room assignment always wins over the device's room.
	roomID := e.RoomID
	if roomID == nil && device != nil {
		roomID = device.RoomID
	}
	if roomID != nil {
		rec.RoomID = clone(roomID)
		if room := idx.rooms[*roomID]; room != nil {
			rec.RoomName = clone(&room.Name)
			if room.FloorID != nil {
				rec.FloorID = clone(room.FloorID)
				if floor := idx.floors[*room.FloorID]; floor != nil {
					rec.FloorName = clone(&floor.Name)
					if floor.Level != nil {
						level := *floor.Level
						rec.FloorLevel = &level
					}
				}
			}
		}
	}

	rec.Name = displayName(e, state, device)
	return rec, nil
}

func displayName(e *RawEntity, state *RawState, device *RawDevice) string {
	if e.Name != nil && *e.Name != "" {
		return *e.Name
	}
	if e.OriginalName != nil && *e.OriginalName != "" {
		return *e.OriginalName
	}
	if state != nil {
		if name, ok := state.StringAttr(attrFriendlyName); ok {
			return name
		}
	}
	if device != nil {
		if name := device.DisplayName(); name != nil && *name != "" {
			return *name
		}
	}
	return ObjectID(e.ID)
}

func deviceType(domain string, state *RawState) string {
	if state != nil {
		if class, ok := state.StringAttr(attrDeviceClass); ok {
			return class
		}
	}
	return domain
}

func sortByID(records []Enriched) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].EntityID < records[j].EntityID
	})
}

func clone(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
