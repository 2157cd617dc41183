package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/entity"
)

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	boom := errors.New("upstream down")
	src := &fakeSource{errs: map[string]error{OpStates: boom}}
	b := NewBreaker(src, BreakerConfig{MaxFailures: 3, OpenTimeout: time.Minute}, nil)

	for i := 0; i < 3; i++ {
		_, err := b.FetchStates(context.Background())
		if !errors.Is(err, boom) {
			t.Fatalf("call %d error = %v, want upstream error", i, err)
		}
	}

	if got := b.State(); got != "open" {
		t.Fatalf("State() = %q, want open", got)
	}

	before := src.calls.Load()
	_, err := b.FetchEntities(context.Background())
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("error = %v, want ErrCircuitOpen", err)
	}
	var te *TransportError
	if !errors.As(err, &te) || te.Op != OpEntities {
		t.Errorf("error = %v, want TransportError for entities", err)
	}
	if src.calls.Load() != before {
		t.Error("open breaker should not call the source")
	}
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	boom := errors.New("flaky")
	src := &fakeSource{
		errs: map[string]error{OpStates: boom},
		data: entity.RawData{Rooms: []entity.RawRoom{{ID: "r1"}}},
	}
	b := NewBreaker(src, BreakerConfig{MaxFailures: 2, OpenTimeout: time.Minute}, nil)

	_, _ = b.FetchStates(context.Background())
	rooms, err := b.FetchRooms(context.Background())
	if err != nil {
		t.Fatalf("FetchRooms() error = %v", err)
	}
	if len(rooms) != 1 {
		t.Errorf("len(rooms) = %d, want 1", len(rooms))
	}
	_, _ = b.FetchStates(context.Background())

	if got := b.State(); got != "closed" {
		t.Errorf("State() = %q, want closed", got)
	}
}

func TestBreaker_CancellationDoesNotTrip(t *testing.T) {
	src := &fakeSource{errs: map[string]error{OpFloors: context.Canceled}}
	b := NewBreaker(src, BreakerConfig{MaxFailures: 1, OpenTimeout: time.Minute}, nil)

	_, err := b.FetchFloors(context.Background())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if got := b.State(); got != "closed" {
		t.Errorf("State() = %q, want closed", got)
	}
}
