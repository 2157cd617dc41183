package cache

import (
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/entity"
	"github.com/nerrad567/gray-logic-hub/internal/textnorm"
)

// Filters narrow a read. Values within one dimension are alternatives;
// dimensions combine with AND. Empty dimensions do not filter.
type Filters struct {
	// RoomNames match the room name by normalised substring.
	RoomNames []string

	// DeviceTypes match the device type or domain, exactly or by substring.
	DeviceTypes []string
}

// Result is the answer to a read.
type Result struct {
	Entities  []entity.Enriched `json:"entities"`
	AgeMillis int64             `json:"age_ms"`

	// FromCache is true when the snapshot is within its max age.
	FromCache bool `json:"from_cache"`

	// Stale is true when the snapshot is older than its max age. The data
	// is still returned.
	Stale bool `json:"stale"`

	HasData   bool       `json:"has_data"`
	Tier      string     `json:"tier,omitempty"`
	FetchedAt *time.Time `json:"fetched_at,omitempty"`
}

// GetEnhancedEntities returns the current snapshot narrowed by f. It never
// triggers a fetch.
func (m *Manager) GetEnhancedEntities(f Filters) Result {
	snap := m.snap.Load()
	if snap == nil {
		return Result{Entities: []entity.Enriched{}}
	}

	age := m.now().Sub(snap.FetchedAt)
	if age < 0 {
		age = 0
	}
	stale := age > m.maxAge
	fetched := snap.FetchedAt

	return Result{
		Entities:  filter(snap.Entities, f),
		AgeMillis: age.Milliseconds(),
		FromCache: !stale,
		Stale:     stale,
		HasData:   true,
		Tier:      snap.Tier,
		FetchedAt: &fetched,
	}
}

func filter(records []entity.Enriched, f Filters) []entity.Enriched {
	rooms := normaliseAll(f.RoomNames)
	types := lowerAll(f.DeviceTypes)

	out := make([]entity.Enriched, 0, len(records))
	for i := range records {
		r := &records[i]
		if len(rooms) > 0 && !matchesRoom(r, rooms) {
			continue
		}
		if len(types) > 0 && !matchesType(r, types) {
			continue
		}
		out = append(out, *r)
	}
	return out
}

func matchesRoom(r *entity.Enriched, rooms []string) bool {
	if r.RoomName == nil {
		return false
	}
	name := textnorm.Normalize(*r.RoomName)
	for _, want := range rooms {
		if strings.Contains(name, want) {
			return true
		}
	}
	return false
}

func matchesType(r *entity.Enriched, types []string) bool {
	deviceType := strings.ToLower(r.DeviceType)
	for _, want := range types {
		if deviceType == want || r.Domain == want ||
			strings.Contains(deviceType, want) || strings.Contains(r.Domain, want) {
			return true
		}
	}
	return false
}

func normaliseAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if n := textnorm.Normalize(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Status summarises the cache for monitoring.
type Status struct {
	HasData             bool       `json:"has_data"`
	AgeMillis           int64      `json:"age_ms"`
	IsRefreshing        bool       `json:"is_refreshing"`
	IsExpired           bool       `json:"is_expired"`
	EntityCount         int        `json:"entity_count"`
	Tier                string     `json:"tier,omitempty"`
	FetchedAt           *time.Time `json:"fetched_at,omitempty"`
	LastAttempt         *time.Time `json:"last_attempt,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastError           string     `json:"last_error,omitempty"`
}

// Status returns the current cache status.
func (m *Manager) Status() Status {
	st := Status{
		IsRefreshing:        m.busy.Load(),
		ConsecutiveFailures: int(m.failures.Load()),
	}

	m.mu.RLock()
	if m.lastError != nil {
		st.LastError = m.lastError.Error()
	}
	if !m.lastAttempt.IsZero() {
		at := m.lastAttempt
		st.LastAttempt = &at
	}
	m.mu.RUnlock()

	snap := m.snap.Load()
	if snap == nil {
		st.IsExpired = true
		return st
	}

	age := m.now().Sub(snap.FetchedAt)
	if age < 0 {
		age = 0
	}
	fetched := snap.FetchedAt
	st.HasData = true
	st.AgeMillis = age.Milliseconds()
	st.IsExpired = age > m.maxAge
	st.EntityCount = len(snap.Entities)
	st.Tier = snap.Tier
	st.FetchedAt = &fetched
	return st
}
