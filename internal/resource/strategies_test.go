package resource

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/entity"
	"github.com/nerrad567/gray-logic-hub/internal/registry"
)

// flakySource fails the first failures full fetch cycles.
type flakySource struct {
	mu       sync.Mutex
	failures int
	err      error
	cycles   int
	states   []entity.RawState
	statsErr error
}

func (f *flakySource) check() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cycles++
	if f.cycles <= f.failures {
		return f.err
	}
	return nil
}

// Only FetchEntities counts a cycle; the other collections always succeed.
func (f *flakySource) FetchEntities(context.Context) ([]entity.RawEntity, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return []entity.RawEntity{{ID: "light.kitchen", RoomID: strp("kitchen")}}, nil
}

func (f *flakySource) FetchDevices(context.Context) ([]entity.RawDevice, error) { return nil, nil }

func (f *flakySource) FetchRooms(context.Context) ([]entity.RawRoom, error) {
	return []entity.RawRoom{{ID: "kitchen", Name: "Kitchen"}}, nil
}

func (f *flakySource) FetchFloors(context.Context) ([]entity.RawFloor, error) { return nil, nil }

func (f *flakySource) FetchStates(context.Context) ([]entity.RawState, error) {
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	return f.states, nil
}

func strp(s string) *string { return &s }

func fastFull(src registry.Source, attempts int) *FullStrategy {
	s := NewFullStrategy(src, InProcessBuilder{}, attempts)
	s.initialInterval = time.Millisecond
	return s
}

func TestFullStrategy_RetriesTransientFailures(t *testing.T) {
	src := &flakySource{failures: 2, err: errors.New("timeout")}

	result, err := fastFull(src, 3).Produce(context.Background())
	if err != nil {
		t.Fatalf("Produce() error = %v", err)
	}
	if src.cycles != 3 {
		t.Errorf("cycles = %d, want 3", src.cycles)
	}
	if len(result.Entities) != 1 || result.Entities[0].RoomName == nil {
		t.Fatalf("result = %+v, want one joined entity", result.Entities)
	}
	if result.Entities[0].ProcessedBy != entity.ProcessedFull {
		t.Errorf("ProcessedBy = %q, want %q", result.Entities[0].ProcessedBy, entity.ProcessedFull)
	}
}

func TestFullStrategy_GivesUpAfterAttempts(t *testing.T) {
	boom := errors.New("refused")
	src := &flakySource{failures: 10, err: boom}

	_, err := fastFull(src, 2).Produce(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Produce() error = %v, want %v", err, boom)
	}
	var te *registry.TransportError
	if !errors.As(err, &te) {
		t.Errorf("error = %T, want *registry.TransportError", err)
	}
	if src.cycles != 2 {
		t.Errorf("cycles = %d, want 2", src.cycles)
	}
}

func TestFullStrategy_DoesNotRetryOpenCircuit(t *testing.T) {
	src := &flakySource{failures: 10, err: registry.ErrCircuitOpen}

	_, err := fastFull(src, 5).Produce(context.Background())
	if !errors.Is(err, registry.ErrCircuitOpen) {
		t.Fatalf("Produce() error = %v, want ErrCircuitOpen", err)
	}
	if src.cycles != 1 {
		t.Errorf("cycles = %d, want 1", src.cycles)
	}
}

func TestLegacyStrategy_Produce(t *testing.T) {
	src := &flakySource{states: []entity.RawState{
		{EntityID: "light.kitchen", State: "on"},
		{EntityID: "sun.sun", State: "above_horizon"},
	}}

	result, err := NewLegacyStrategy(src, []string{"light"}).Produce(context.Background())
	if err != nil {
		t.Fatalf("Produce() error = %v", err)
	}
	if len(result.Entities) != 1 || result.Entities[0].EntityID != "light.kitchen" {
		t.Fatalf("Entities = %+v, want only light.kitchen", result.Entities)
	}
	if result.Entities[0].ProcessedBy != entity.ProcessedLegacy {
		t.Errorf("ProcessedBy = %q, want %q", result.Entities[0].ProcessedBy, entity.ProcessedLegacy)
	}
}

func TestLegacyStrategy_Error(t *testing.T) {
	boom := errors.New("states down")
	src := &flakySource{statsErr: boom}

	if _, err := NewLegacyStrategy(src, nil).Produce(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Produce() error = %v, want %v", err, boom)
	}
}

func TestFullStrategy_Admit(t *testing.T) {
	s := NewFullStrategy(nil, nil, 1)
	th := ThresholdsFromMB(1024, 256, 64)

	if err := s.Admit(Sample{AvailableBytes: 300 << 20, HeadroomKnown: true}, Environment{}, th); err != nil {
		t.Errorf("Admit(300MB) = %v, want nil", err)
	}
	if err := s.Admit(Sample{AvailableBytes: 200 << 20, HeadroomKnown: true}, Environment{}, th); !errors.Is(err, ErrInsufficientHeadroom) {
		t.Errorf("Admit(200MB) = %v, want ErrInsufficientHeadroom", err)
	}
	if err := s.Admit(Sample{}, Environment{}, th); err != nil {
		t.Errorf("Admit(unknown) = %v, want nil", err)
	}
}
