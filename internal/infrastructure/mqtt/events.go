package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/cache"
	"github.com/nerrad567/gray-logic-hub/internal/intent"
)

// Messenger is the part of *Client the Publisher uses.
type Messenger interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
}

// CacheEvent is the retained payload on Topics.Cache.
type CacheEvent struct {
	Site       string    `json:"site"`
	Outcome    string    `json:"outcome"`
	Forced     bool      `json:"forced"`
	Tier       string    `json:"tier,omitempty"`
	Entities   int       `json:"entities"`
	Rejected   int       `json:"rejected"`
	Fallbacks  []string  `json:"fallbacks,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// MatchEvent is the payload on Topics.Matches.
type MatchEvent struct {
	Site       string    `json:"site"`
	BatchID    string    `json:"batch_id"`
	Intents    int       `json:"intents"`
	Commands   int       `json:"commands"`
	Ambiguous  int       `json:"ambiguous"`
	Unmatched  int       `json:"unmatched"`
	Invalid    int       `json:"invalid"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// RefreshRequest is the optional payload on Topics.Refresh. An empty
// payload is also accepted.
type RefreshRequest struct {
	Reason string `json:"reason,omitempty"`
}

var (
	_ cache.Observer  = (*Publisher)(nil)
	_ intent.Observer = (*Publisher)(nil)
)

// Publisher mirrors cache refreshes and match batches onto the bus.
// Publish failures are logged and never reach the caller.
type Publisher struct {
	bus    Messenger
	site   string
	qos    byte
	logger Logger
	now    func() time.Time
}

// NewPublisher creates a Publisher for the given site.
func NewPublisher(bus Messenger, site string, qos byte) *Publisher {
	return &Publisher{bus: bus, site: site, qos: qos, now: time.Now}
}

// SetLogger sets the logger for publish failures.
func (p *Publisher) SetLogger(logger Logger) {
	p.logger = logger
}

// RefreshFinished publishes a retained CacheEvent.
func (p *Publisher) RefreshFinished(r cache.Report) {
	ev := CacheEvent{
		Site:       p.site,
		Outcome:    r.Outcome,
		Forced:     r.Forced,
		Tier:       r.Tier,
		Entities:   r.Entities,
		Rejected:   r.Rejected,
		Fallbacks:  r.Fallbacks,
		DurationMS: r.Duration.Milliseconds(),
		Timestamp:  p.now().UTC(),
	}
	if r.Err != nil {
		ev.Error = r.Err.Error()
	}
	p.send(Topics{}.Cache(), ev, true)
}

// BatchMatched publishes a MatchEvent summarising b.
func (p *Publisher) BatchMatched(b intent.Batch, elapsed time.Duration) {
	ev := MatchEvent{
		Site:       p.site,
		BatchID:    b.ID,
		Intents:    len(b.Outcomes),
		Commands:   len(b.Commands),
		DurationMS: elapsed.Milliseconds(),
		Timestamp:  p.now().UTC(),
	}
	for _, o := range b.Outcomes {
		switch {
		case o.Error != nil:
			ev.Invalid++
		case o.Matched == 0:
			ev.Unmatched++
		case o.Ambiguous:
			ev.Ambiguous++
		}
	}
	p.send(Topics{}.Matches(), ev, false)
}

func (p *Publisher) send(topic string, v any, retained bool) {
	payload, err := json.Marshal(v)
	if err == nil {
		err = p.bus.Publish(topic, payload, p.qos, retained)
	}
	if err != nil && p.logger != nil {
		p.logger.Warn("MQTT event publish failed", "topic", topic, "error", err)
	}
}

// ListenForRefresh subscribes to Topics.Refresh and calls trigger for each
// well-formed request. trigger must not block.
func (p *Publisher) ListenForRefresh(trigger func(reason string)) error {
	return p.bus.Subscribe(Topics{}.Refresh(), p.qos, func(_ string, payload []byte) error {
		var req RefreshRequest
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &req); err != nil {
				return fmt.Errorf("decoding refresh request: %w", err)
			}
		}
		trigger(req.Reason)
		return nil
	})
}
