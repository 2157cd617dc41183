package registry

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-hub/internal/entity"
)

// Collection names used as TransportError.Op.
const (
	OpEntities = "entities"
	OpDevices  = "devices"
	OpRooms    = "rooms"
	OpFloors   = "floors"
	OpStates   = "states"
)

var (
	// ErrAuthFailed is returned when the upstream rejects the access token.
	ErrAuthFailed = errors.New("registry: authentication failed")

	// ErrCommandFailed is returned when the upstream answers a command with an error.
	ErrCommandFailed = errors.New("registry: command failed")

	// ErrCircuitOpen is returned while the breaker is refusing calls.
	ErrCircuitOpen = errors.New("registry: circuit open")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("registry: source closed")
)

// TransportError reports a failed registry call.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("registry: fetch %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// wrap returns err as a *TransportError for op, leaving existing ones intact.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}

// Source supplies the raw registry collections.
type Source interface {
	FetchEntities(ctx context.Context) ([]entity.RawEntity, error)
	FetchDevices(ctx context.Context) ([]entity.RawDevice, error)
	FetchRooms(ctx context.Context) ([]entity.RawRoom, error)
	FetchFloors(ctx context.Context) ([]entity.RawFloor, error)
	FetchStates(ctx context.Context) ([]entity.RawState, error)
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

// FetchAll fetches all five collections concurrently. The first failure
// cancels the remaining calls and is returned.
func FetchAll(ctx context.Context, src Source) (entity.RawData, error) {
	var data entity.RawData
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		v, err := src.FetchEntities(gctx)
		data.Entities = v
		return wrap(OpEntities, err)
	})
	g.Go(func() error {
		v, err := src.FetchDevices(gctx)
		data.Devices = v
		return wrap(OpDevices, err)
	})
	g.Go(func() error {
		v, err := src.FetchRooms(gctx)
		data.Rooms = v
		return wrap(OpRooms, err)
	})
	g.Go(func() error {
		v, err := src.FetchFloors(gctx)
		data.Floors = v
		return wrap(OpFloors, err)
	})
	g.Go(func() error {
		v, err := src.FetchStates(gctx)
		data.States = v
		return wrap(OpStates, err)
	})

	if err := g.Wait(); err != nil {
		return entity.RawData{}, err
	}
	return data, nil
}
