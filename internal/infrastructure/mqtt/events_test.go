package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/cache"
	"github.com/nerrad567/gray-logic-hub/internal/intent"
)

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type fakeBus struct {
	mu       sync.Mutex
	sent     []published
	handlers map[string]MessageHandler
	failWith error
}

func (b *fakeBus) Publish(topic string, payload []byte, qos byte, retained bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failWith != nil {
		return b.failWith
	}
	b.sent = append(b.sent, published{topic, payload, qos, retained})
	return nil
}

func (b *fakeBus) Subscribe(topic string, _ byte, handler MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = make(map[string]MessageHandler)
	}
	b.handlers[topic] = handler
	return nil
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestPublisherRefreshFinished(t *testing.T) {
	bus := &fakeBus{}
	p := NewPublisher(bus, "home", 1)
	p.now = fixedNow

	p.RefreshFinished(cache.Report{
		Forced:    true,
		Outcome:   cache.OutcomeFailed,
		Tier:      "legacy",
		Duration:  1500 * time.Millisecond,
		Entities:  0,
		Fallbacks: []string{"full"},
		Err:       errors.New("upstream down"),
	})

	if len(bus.sent) != 1 {
		t.Fatalf("published %d messages, want 1", len(bus.sent))
	}
	msg := bus.sent[0]
	if msg.topic != (Topics{}).Cache() || !msg.retained || msg.qos != 1 {
		t.Errorf("message = %q retained=%v qos=%d", msg.topic, msg.retained, msg.qos)
	}

	var ev CacheEvent
	if err := json.Unmarshal(msg.payload, &ev); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if ev.Site != "home" || ev.Outcome != cache.OutcomeFailed || !ev.Forced {
		t.Errorf("event = %+v", ev)
	}
	if ev.DurationMS != 1500 || ev.Error != "upstream down" || len(ev.Fallbacks) != 1 {
		t.Errorf("event = %+v", ev)
	}
	if !ev.Timestamp.Equal(fixedNow()) {
		t.Errorf("Timestamp = %v", ev.Timestamp)
	}
}

func TestPublisherBatchMatched(t *testing.T) {
	bus := &fakeBus{}
	p := NewPublisher(bus, "home", 0)
	p.now = fixedNow

	p.BatchMatched(intent.Batch{
		ID:       "batch-1",
		Commands: []intent.MatchedCommand{{EntityID: "light.a"}, {EntityID: "light.b"}},
		Outcomes: []intent.Outcome{
			{Index: 0, Matched: 2, Ambiguous: true},
			{Index: 1, Matched: 0},
			{Index: 2, Error: &intent.ValidationError{Field: "room_name", Reason: "is required"}},
		},
	}, 3*time.Millisecond)

	if len(bus.sent) != 1 {
		t.Fatalf("published %d messages, want 1", len(bus.sent))
	}
	if bus.sent[0].retained {
		t.Error("match events must not be retained")
	}

	var ev MatchEvent
	if err := json.Unmarshal(bus.sent[0].payload, &ev); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	want := MatchEvent{
		Site: "home", BatchID: "batch-1", Intents: 3, Commands: 2,
		Ambiguous: 1, Unmatched: 1, Invalid: 1, DurationMS: 3,
	}
	if !ev.Timestamp.Equal(fixedNow()) {
		t.Errorf("Timestamp = %v", ev.Timestamp)
	}
	ev.Timestamp = time.Time{}
	if ev != want {
		t.Errorf("event = %+v, want %+v", ev, want)
	}
}

func TestPublisherLogsFailures(t *testing.T) {
	bus := &fakeBus{failWith: ErrNotConnected}
	logger := &recordingLogger{}
	p := NewPublisher(bus, "home", 1)
	p.SetLogger(logger)

	p.RefreshFinished(cache.Report{Outcome: cache.OutcomeSuccess})

	if len(logger.lines) != 1 {
		t.Errorf("logged %v, want one publish failure", logger.lines)
	}
}

func TestListenForRefresh(t *testing.T) {
	bus := &fakeBus{}
	p := NewPublisher(bus, "home", 1)

	var reasons []string
	if err := p.ListenForRefresh(func(reason string) { reasons = append(reasons, reason) }); err != nil {
		t.Fatalf("ListenForRefresh() error = %v", err)
	}
	handler := bus.handlers[(Topics{}).Refresh()]
	if handler == nil {
		t.Fatal("no handler registered on refresh topic")
	}

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"empty", "", false},
		{"with reason", `{"reason":"devices changed"}`, false},
		{"malformed", `{not json`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := handler((Topics{}).Refresh(), []byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Errorf("handler() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if len(reasons) != 2 || reasons[0] != "" || reasons[1] != "devices changed" {
		t.Errorf("triggered with %q", reasons)
	}
}
