package registry

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-hub/internal/entity"
)

// File is a Source that reads a YAML fixture:
//
//	entities:
//	  - entity_id: light.kitchen_main
//	    device_id: dev-kitchen
//	devices:
//	  - id: dev-kitchen
//	    name: Kitchen Downlights
//	    area_id: kitchen
//	rooms:
//	  - area_id: kitchen
//	    name: Kitchen
//	    floor_id: ground
//	floors:
//	  - floor_id: ground
//	    name: Ground Floor
//	    level: 0
//	states:
//	  - entity_id: light.kitchen_main
//	    state: "on"
//
// The file is re-read on every fetch so edits show up on the next refresh.
type File struct {
	path string
}

var _ Source = (*File)(nil)

// NewFile creates a Source reading path.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) load(ctx context.Context, op string) (*entity.RawData, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("reading registry file: %w", err)}
	}
	var raw entity.RawData
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("parsing registry file: %w", err)}
	}
	return &raw, nil
}

// FetchEntities returns the fixture's entities.
func (f *File) FetchEntities(ctx context.Context) ([]entity.RawEntity, error) {
	raw, err := f.load(ctx, OpEntities)
	if err != nil {
		return nil, err
	}
	return raw.Entities, nil
}

// FetchDevices returns the fixture's devices.
func (f *File) FetchDevices(ctx context.Context) ([]entity.RawDevice, error) {
	raw, err := f.load(ctx, OpDevices)
	if err != nil {
		return nil, err
	}
	return raw.Devices, nil
}

// FetchRooms returns the fixture's rooms.
func (f *File) FetchRooms(ctx context.Context) ([]entity.RawRoom, error) {
	raw, err := f.load(ctx, OpRooms)
	if err != nil {
		return nil, err
	}
	return raw.Rooms, nil
}

// FetchFloors returns the fixture's floors.
func (f *File) FetchFloors(ctx context.Context) ([]entity.RawFloor, error) {
	raw, err := f.load(ctx, OpFloors)
	if err != nil {
		return nil, err
	}
	return raw.Floors, nil
}

// FetchStates returns the fixture's states.
func (f *File) FetchStates(ctx context.Context) ([]entity.RawState, error) {
	raw, err := f.load(ctx, OpStates)
	if err != nil {
		return nil, err
	}
	return raw.States, nil
}
