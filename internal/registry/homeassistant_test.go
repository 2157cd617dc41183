package registry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeHA is a minimal Home Assistant WebSocket endpoint.
type fakeHA struct {
	token    string
	results  map[string]any
	failures map[string]string
	// stall leaves commands unanswered.
	stall   bool
	dials   atomic.Int32
	dropAll atomic.Bool
}

func (f *fakeHA) handler(t *testing.T) http.Handler {
	upgrader := websocket.Upgrader{}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		f.dials.Add(1)

		_ = conn.WriteJSON(map[string]any{"type": "auth_required", "ha_version": "2026.3.0"})

		var auth map[string]string
		if err := conn.ReadJSON(&auth); err != nil {
			return
		}
		if auth["access_token"] != f.token {
			_ = conn.WriteJSON(map[string]any{"type": "auth_invalid", "message": "Invalid access token"})
			return
		}
		_ = conn.WriteJSON(map[string]any{"type": "auth_ok"})

		for {
			var cmd struct {
				ID   int    `json:"id"`
				Type string `json:"type"`
			}
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			if f.dropAll.Load() {
				return
			}
			if f.stall {
				continue
			}
			// An unrelated event frame first, which the client must skip.
			_ = conn.WriteJSON(map[string]any{"id": 0, "type": "event"})
			if reason, ok := f.failures[cmd.Type]; ok {
				_ = conn.WriteJSON(map[string]any{
					"id": cmd.ID, "type": "result", "success": false,
					"error": map[string]string{"code": "unknown_command", "message": reason},
				})
				continue
			}
			_ = conn.WriteJSON(map[string]any{
				"id": cmd.ID, "type": "result", "success": true, "result": f.results[cmd.Type],
			})
		}
	})
}

func newFakeHA(t *testing.T, f *fakeHA) (*HomeAssistant, func()) {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client := NewHomeAssistant(HomeAssistantConfig{
		URL:            url,
		Token:          "secret",
		RequestTimeout: 2 * time.Second,
	})
	return client, func() {
		client.Close() //nolint:errcheck // test cleanup
		srv.Close()
	}
}

func haResults(t *testing.T) map[string]any {
	t.Helper()
	raw := `{
	  "config/entity_registry/list": [
	    {"entity_id": "light.kitchen", "device_id": "d1", "area_id": null, "name": null,
	     "original_name": "Ceiling", "platform": "hue", "disabled_by": null, "hidden_by": "user"},
	    {"entity_id": "switch.old", "device_id": null, "area_id": "garage", "name": "Old",
	     "platform": "mqtt", "disabled_by": "integration", "hidden_by": null}
	  ],
	  "config/device_registry/list": [
	    {"id": "d1", "name": "Hue Bulb", "name_by_user": "Kitchen Bulb", "manufacturer": "Signify",
	     "model": "LCT015", "area_id": "kitchen"}
	  ],
	  "config/area_registry/list": [
	    {"area_id": "kitchen", "name": "Kitchen", "floor_id": "ground", "aliases": ["cucina"]}
	  ],
	  "config/floor_registry/list": [
	    {"floor_id": "ground", "name": "Ground Floor", "level": 0}
	  ],
	  "get_states": [
	    {"entity_id": "light.kitchen", "state": "on", "attributes": {"friendly_name": "Kitchen"},
	     "last_changed": "2026-03-01T12:00:00.123456+00:00", "last_updated": "2026-03-01T12:00:00.123456+00:00"}
	  ]
	}`
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return out
}

func TestHomeAssistant_FetchAll(t *testing.T) {
	fake := &fakeHA{token: "secret", results: haResults(t)}
	client, cleanup := newFakeHA(t, fake)
	defer cleanup()

	data, err := FetchAll(context.Background(), client)
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	if len(data.Entities) != 2 {
		t.Fatalf("len(Entities) = %d, want 2", len(data.Entities))
	}
	kitchen := data.Entities[0]
	if !kitchen.Hidden || kitchen.Disabled {
		t.Errorf("light.kitchen hidden/disabled = %v/%v, want true/false", kitchen.Hidden, kitchen.Disabled)
	}
	if kitchen.OriginalName == nil || *kitchen.OriginalName != "Ceiling" {
		t.Errorf("OriginalName = %v, want Ceiling", kitchen.OriginalName)
	}
	if !data.Entities[1].Disabled {
		t.Error("switch.old should be disabled")
	}
	if data.Entities[1].RoomID == nil || *data.Entities[1].RoomID != "garage" {
		t.Errorf("RoomID = %v, want garage", data.Entities[1].RoomID)
	}

	if got := data.Devices[0].DisplayName(); got == nil || *got != "Kitchen Bulb" {
		t.Errorf("device DisplayName = %v, want Kitchen Bulb", got)
	}
	if data.Rooms[0].FloorID == nil || *data.Rooms[0].FloorID != "ground" {
		t.Errorf("room FloorID = %v, want ground", data.Rooms[0].FloorID)
	}
	if data.States[0].LastChanged.IsZero() {
		t.Error("state timestamps should be decoded")
	}

	// All five commands share one session.
	if got := fake.dials.Load(); got != 1 {
		t.Errorf("dials = %d, want 1", got)
	}
}

func TestHomeAssistant_AuthInvalid(t *testing.T) {
	fake := &fakeHA{token: "other", results: haResults(t)}
	client, cleanup := newFakeHA(t, fake)
	defer cleanup()

	_, err := client.FetchStates(context.Background())
	if !errors.Is(err, ErrAuthFailed) {
		t.Errorf("error = %v, want ErrAuthFailed", err)
	}
}

func TestHomeAssistant_CommandFailure(t *testing.T) {
	fake := &fakeHA{
		token:    "secret",
		results:  haResults(t),
		failures: map[string]string{"config/floor_registry/list": "Unknown command."},
	}
	client, cleanup := newFakeHA(t, fake)
	defer cleanup()

	_, err := client.FetchFloors(context.Background())
	if !errors.Is(err, ErrCommandFailed) {
		t.Fatalf("error = %v, want ErrCommandFailed", err)
	}

	// The session survives a command-level error.
	if _, err := client.FetchRooms(context.Background()); err != nil {
		t.Fatalf("FetchRooms() error = %v", err)
	}
	if got := fake.dials.Load(); got != 1 {
		t.Errorf("dials = %d, want 1", got)
	}
}

func TestHomeAssistant_RedialsAfterDrop(t *testing.T) {
	fake := &fakeHA{token: "secret", results: haResults(t)}
	client, cleanup := newFakeHA(t, fake)
	defer cleanup()

	if _, err := client.FetchRooms(context.Background()); err != nil {
		t.Fatalf("first FetchRooms() error = %v", err)
	}

	fake.dropAll.Store(true)
	if _, err := client.FetchRooms(context.Background()); err == nil {
		t.Fatal("FetchRooms() expected error after server dropped the session")
	}

	fake.dropAll.Store(false)
	if _, err := client.FetchRooms(context.Background()); err != nil {
		t.Fatalf("FetchRooms() after redial error = %v", err)
	}
	if got := fake.dials.Load(); got != 2 {
		t.Errorf("dials = %d, want 2", got)
	}
}

func TestHomeAssistant_ContextDeadline(t *testing.T) {
	fake := &fakeHA{token: "secret", stall: true}
	client, cleanup := newFakeHA(t, fake)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.FetchStates(ctx)
	if err == nil {
		t.Fatal("FetchStates() expected error for stalled server")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("FetchStates() took %v, want it bounded by the context", elapsed)
	}
}

func TestHomeAssistant_Closed(t *testing.T) {
	client := NewHomeAssistant(HomeAssistantConfig{URL: "ws://127.0.0.1:1", Token: "x"})
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	_, err := client.FetchEntities(context.Background())
	if !errors.Is(err, ErrClosed) {
		t.Errorf("error = %v, want ErrClosed", err)
	}
}
