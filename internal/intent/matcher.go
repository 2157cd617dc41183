package intent

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-hub/internal/entity"
	"github.com/nerrad567/gray-logic-hub/internal/textnorm"
)

// Scoring weights. Type+room+exact name sums to 1.0; type alone stays well
// under half.
const (
	weightType = 0.35
	weightRoom = 0.45
	weightName = 0.20

	roomExactScore    = 1.0
	roomContainsScore = 0.9
	roomKeywordScore  = 0.6

	nameExactScore    = 1.0
	nameContainsScore = 0.8

	// ambiguityGap is the minimum lead the best candidate needs over the
	// second to be considered unambiguous.
	ambiguityGap = 0.08

	maxSuggestions = 3
)

// anyRoom holds the squashed room names that disable the room filter.
var anyRoom = map[string]struct{}{
	"":     {},
	"any":  {},
	"all":  {},
	"所有": {},
	"全部": {},
}

// EntityProvider supplies the records to match against.
type EntityProvider interface {
	Entities() []entity.Enriched
}

// Observer is notified after every Match call.
type Observer interface {
	BatchMatched(b Batch, elapsed time.Duration)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Matcher resolves descriptors against the current snapshot. It holds no
// state of its own between calls and is safe for concurrent use.
type Matcher struct {
	entities EntityProvider
	vocab    *compiled
	logger   Logger

	mu        sync.RWMutex
	observers []Observer
}

// NewMatcher creates a Matcher reading records from entities. A nil vocab
// uses DefaultVocabulary.
func NewMatcher(entities EntityProvider, vocab *Vocabulary) (*Matcher, error) {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	c, err := compile(vocab)
	if err != nil {
		return nil, err
	}
	return &Matcher{entities: entities, vocab: c, logger: noopLogger{}}, nil
}

// SetLogger sets the logger for the matcher.
func (m *Matcher) SetLogger(logger Logger) {
	m.logger = logger
}

// AddObserver registers o for batch results.
func (m *Matcher) AddObserver(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// candidate is a record with its comparison keys precomputed.
type candidate struct {
	rec   *entity.Enriched
	room  string
	floor string
	hay   string
	names []string
}

func prepare(records []entity.Enriched) []candidate {
	out := make([]candidate, 0, len(records))
	for i := range records {
		r := &records[i]
		if r.Disabled {
			continue
		}
		c := candidate{rec: r}
		if r.RoomName != nil {
			c.room = squash(*r.RoomName)
		}
		if r.FloorName != nil {
			c.floor = squash(*r.FloorName)
		}
		object := squash(entity.ObjectID(r.EntityID))
		name := squash(r.Name)
		c.hay = object + " " + name
		c.names = appendNonEmpty(c.names, name, object)
		if r.DeviceName != nil {
			c.names = appendNonEmpty(c.names, squash(*r.DeviceName))
		}
		out = append(out, c)
	}
	return out
}

func appendNonEmpty(dst []string, values ...string) []string {
	for _, v := range values {
		if v != "" {
			dst = append(dst, v)
		}
	}
	return dst
}

// Match resolves every descriptor. An entity is emitted at most once per
// call, for the first descriptor that selects it.
func (m *Matcher) Match(intents []Descriptor) Batch {
	started := time.Now()
	cands := prepare(m.entities.Entities())

	batch := Batch{
		ID:       uuid.NewString(),
		Commands: []MatchedCommand{},
		Outcomes: make([]Outcome, 0, len(intents)),
	}
	seen := make(map[string]struct{})

	for i, d := range intents {
		out := Outcome{Index: i}

		if verr := Validate(d); verr != nil {
			out.Error = verr
			batch.Outcomes = append(batch.Outcomes, out)
			continue
		}

		rule := m.vocab.lookupType(d.DeviceType)
		if rule == nil {
			m.logger.Debug("unknown device type", "device_type", d.DeviceType, "index", i)
			out.UnknownType = true
			batch.Outcomes = append(batch.Outcomes, out)
			continue
		}

		resolved := m.resolve(i, d, rule, cands)
		emitted := 0
		var top []float64
		for _, cmd := range resolved {
			if _, dup := seen[cmd.EntityID]; dup {
				continue
			}
			seen[cmd.EntityID] = struct{}{}
			batch.Commands = append(batch.Commands, cmd)
			emitted++
			if len(top) < 2 {
				top = append(top, cmd.Confidence)
			}
		}

		out.Matched = emitted
		out.Ambiguous = len(top) == 2 && top[0]-top[1] < ambiguityGap
		if len(resolved) == 0 {
			out.Suggestions = suggest(d, rule, cands, m.vocab)
		}
		batch.Outcomes = append(batch.Outcomes, out)
	}

	sort.SliceStable(batch.Commands, func(a, b int) bool {
		return batch.Commands[a].Confidence > batch.Commands[b].Confidence
	})

	elapsed := time.Since(started)
	m.logger.Debug("intents matched",
		"batch_id", batch.ID,
		"intents", len(intents),
		"commands", len(batch.Commands),
		"duration", elapsed,
	)
	m.notify(batch, elapsed)
	return batch
}

func (m *Matcher) notify(b Batch, elapsed time.Duration) {
	m.mu.RLock()
	observers := m.observers
	m.mu.RUnlock()
	for _, o := range observers {
		o.BatchMatched(b, elapsed)
	}
}

// resolve returns the commands for one descriptor, best first.
func (m *Matcher) resolve(index int, d Descriptor, rule *typeRule, cands []candidate) []MatchedCommand {
	roomQ := squash(*d.RoomName)
	_, bypass := anyRoom[roomQ]
	var rooms []string
	if !bypass {
		rooms = m.vocab.rooms.spellings(roomQ)
	}

	floorQ := squash(d.FloorName)
	var floors []string
	var floorKey string
	if floorQ != "" {
		floors = m.vocab.floors.spellings(floorQ)
		floorKey = m.vocab.floors.canonical(floorQ)
	}

	// A name that matches no survivor ("light", "灯") narrows nothing and
	// leaves every survivor in place.
	nameQ := squash(d.DeviceName)

	// With no room requested, a room mentioned in the device name
	// ("kitchen lamp") still counts as room evidence.
	var nameRooms []string
	if bypass && nameQ != "" {
		nameRooms = m.vocab.rooms.mentionedIn(nameQ)
	}

	var out []MatchedCommand
	named := false
	for i := range cands {
		c := &cands[i]
		if !rule.admits(c.rec) {
			continue
		}
		if floors != nil && !c.onFloor(floors, floorKey) {
			continue
		}

		ev := Evidence{Type: 1, RoomVia: RoomBypass}
		if !bypass {
			ev.Room, ev.RoomVia = c.roomEvidence(rooms)
			if ev.Room == 0 {
				continue
			}
		} else if c.roomInName(nameQ, nameRooms) {
			ev.Room, ev.RoomVia = roomKeywordScore, RoomFromName
		}
		if nameQ != "" {
			ev.Name = c.nameEvidence(nameQ)
			named = named || ev.Name > 0
		}

		out = append(out, MatchedCommand{
			IntentIndex: index,
			EntityID:    c.rec.EntityID,
			Name:        c.rec.Name,
			Domain:      c.rec.Domain,
			DeviceType:  c.rec.DeviceType,
			RoomName:    c.rec.RoomName,
			Action:      d.Action,
			ServiceData: d.ServiceData,
			Automation:  d.Automation,
			Confidence:  confidence(ev),
			Evidence:    ev,
		})
	}

	// Narrow to name matches only when there are some.
	if named {
		kept := out[:0]
		for _, cmd := range out {
			if cmd.Evidence.Name > 0 {
				kept = append(kept, cmd)
			}
		}
		out = kept
	}

	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Confidence != out[b].Confidence {
			return out[a].Confidence > out[b].Confidence
		}
		return out[a].EntityID < out[b].EntityID
	})
	return out
}

func confidence(ev Evidence) float64 {
	score := weightType*ev.Type + weightRoom*ev.Room + weightName*ev.Name
	score = math.Max(0, math.Min(1, score))
	return math.Round(score*1e4) / 1e4
}

func (r *typeRule) admits(rec *entity.Enriched) bool {
	if _, ok := r.domains[rec.Domain]; !ok {
		return false
	}
	if r.classes == nil {
		return true
	}
	_, ok := r.classes[strings.ToLower(rec.DeviceType)]
	return ok
}

// roomEvidence scores how well the candidate's room matches any spelling
// of the requested room. spellings[0] is the request itself.
func (c *candidate) roomEvidence(spellings []string) (float64, string) {
	q := spellings[0]
	if c.room != "" {
		switch {
		case c.room == q:
			return roomExactScore, RoomExact
		case textnorm.Related(c.room, q):
			return roomContainsScore, RoomContains
		}
		for _, s := range spellings[1:] {
			if textnorm.Related(c.room, s) {
				return roomContainsScore, RoomAlias
			}
		}
		return 0, ""
	}
	for _, s := range spellings {
		if strings.Contains(c.hay, s) {
			return roomKeywordScore, RoomKeyword
		}
	}
	return 0, ""
}

// roomInName reports whether the candidate's room is the one named in the
// device name, either literally or through a known room spelling.
func (c *candidate) roomInName(name string, spellings []string) bool {
	if c.room == "" || name == "" {
		return false
	}
	if strings.Contains(name, c.room) {
		return true
	}
	for _, s := range spellings {
		if textnorm.Related(c.room, s) {
			return true
		}
	}
	return false
}

func (c *candidate) nameEvidence(q string) float64 {
	best := 0.0
	for _, n := range c.names {
		if n == q {
			return nameExactScore
		}
		if textnorm.Related(n, q) {
			best = nameContainsScore
		}
	}
	return best
}

// onFloor reports whether the candidate is on the requested floor.
// Candidates without floor data pass.
func (c *candidate) onFloor(spellings []string, key string) bool {
	level := c.rec.FloorLevel
	if c.floor == "" && level == nil {
		return true
	}
	for _, s := range spellings {
		if textnorm.Related(c.floor, s) {
			return true
		}
	}
	return level != nil && key != "" && key == strconv.Itoa(*level)
}

// suggest offers same-type entities for a descriptor that matched
// nothing, ranked by how many room words they share with the request.
func suggest(d Descriptor, rule *typeRule, cands []candidate, vocab *compiled) []Suggestion {
	words := textnorm.Tokens(*d.RoomName)
	for _, s := range vocab.rooms.spellings(squash(*d.RoomName)) {
		if s != "" {
			words = append(words, s)
		}
	}

	type ranked struct {
		c     *candidate
		score int
	}
	var pool []ranked
	for i := range cands {
		c := &cands[i]
		if !rule.admits(c.rec) {
			continue
		}
		score := 0
		for _, w := range words {
			if strings.Contains(c.room, w) || strings.Contains(c.hay, w) {
				score++
			}
		}
		pool = append(pool, ranked{c: c, score: score})
	}

	sort.SliceStable(pool, func(a, b int) bool {
		if pool[a].score != pool[b].score {
			return pool[a].score > pool[b].score
		}
		return pool[a].c.rec.EntityID < pool[b].c.rec.EntityID
	})

	if len(pool) > maxSuggestions {
		pool = pool[:maxSuggestions]
	}
	out := make([]Suggestion, 0, len(pool))
	for _, p := range pool {
		out = append(out, Suggestion{
			EntityID: p.c.rec.EntityID,
			Name:     p.c.rec.Name,
			RoomName: p.c.rec.RoomName,
		})
	}
	return out
}
