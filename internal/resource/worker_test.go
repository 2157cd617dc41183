package resource

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nerrad567/gray-logic-hub/internal/entity"
)

// inlineRunner runs ServeWorker in process instead of spawning a child.
type inlineRunner struct {
	err error
}

func (r inlineRunner) Run(_ context.Context, input []byte) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out bytes.Buffer
	if err := ServeWorker(bytes.NewReader(input), &out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func TestWorkerBuilder_RoundTrip(t *testing.T) {
	raw := entity.RawData{
		Entities: []entity.RawEntity{{ID: "light.kitchen", RoomID: strp("kitchen")}},
		Rooms:    []entity.RawRoom{{ID: "kitchen", Name: "Kitchen"}},
		States:   []entity.RawState{{EntityID: "light.kitchen", State: "on"}},
	}

	result, err := NewWorkerBuilder(inlineRunner{}).Build(context.Background(), raw)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(result.Entities) != 1 {
		t.Fatalf("len(Entities) = %d, want 1", len(result.Entities))
	}
	got := result.Entities[0]
	if got.RoomName == nil || *got.RoomName != "Kitchen" {
		t.Errorf("RoomName = %v, want Kitchen", got.RoomName)
	}
	if got.ProcessedBy != entity.ProcessedWorker {
		t.Errorf("ProcessedBy = %q, want %q", got.ProcessedBy, entity.ProcessedWorker)
	}
}

func TestWorkerBuilder_RunnerError(t *testing.T) {
	boom := errors.New("start failed")

	_, err := NewWorkerBuilder(inlineRunner{err: boom}).Build(context.Background(), entity.RawData{})
	if !errors.Is(err, boom) {
		t.Errorf("Build() error = %v, want %v", err, boom)
	}
}

func TestServeWorker_BadInput(t *testing.T) {
	var out bytes.Buffer
	if err := ServeWorker(strings.NewReader("not json"), &out); err == nil {
		t.Error("ServeWorker() expected error for invalid input")
	}
}
