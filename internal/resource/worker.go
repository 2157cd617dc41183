package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/nerrad567/gray-logic-hub/internal/entity"
)

// Runner runs one isolated worker request.
type Runner interface {
	Run(ctx context.Context, input []byte) ([]byte, error)
}

// WorkerBuilder delegates the join to an isolated worker process.
type WorkerBuilder struct {
	runner Runner
}

var _ Builder = (*WorkerBuilder)(nil)

// NewWorkerBuilder creates a builder backed by runner.
func NewWorkerBuilder(runner Runner) *WorkerBuilder {
	return &WorkerBuilder{runner: runner}
}

// Build sends raw to the worker and decodes its result.
func (b *WorkerBuilder) Build(ctx context.Context, raw entity.RawData) (entity.BuildResult, error) {
	input, err := json.Marshal(raw)
	if err != nil {
		return entity.BuildResult{}, fmt.Errorf("encoding worker request: %w", err)
	}

	output, err := b.runner.Run(ctx, input)
	if err != nil {
		return entity.BuildResult{}, fmt.Errorf("running build worker: %w", err)
	}

	var result entity.BuildResult
	if err := json.Unmarshal(output, &result); err != nil {
		return entity.BuildResult{}, fmt.Errorf("decoding worker response: %w", err)
	}
	for i := range result.Entities {
		result.Entities[i].ProcessedBy = entity.ProcessedWorker
	}
	return result, nil
}

// ServeWorker is the worker side: it reads one RawData document from r,
// builds it and writes the BuildResult to w.
func ServeWorker(r io.Reader, w io.Writer) error {
	var raw entity.RawData
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return fmt.Errorf("decoding worker request: %w", err)
	}
	if err := json.NewEncoder(w).Encode(entity.Build(raw)); err != nil {
		return fmt.Errorf("encoding worker response: %w", err)
	}
	return nil
}
