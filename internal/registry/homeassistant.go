package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-hub/internal/entity"
)

// Home Assistant WebSocket command types.
const (
	cmdEntityRegistry = "config/entity_registry/list"
	cmdDeviceRegistry = "config/device_registry/list"
	cmdAreaRegistry   = "config/area_registry/list"
	cmdFloorRegistry  = "config/floor_registry/list"
	cmdGetStates      = "get_states"
)

// Default timeouts for the Home Assistant session.
const (
	defaultDialTimeout    = 10 * time.Second
	defaultRequestTimeout = 20 * time.Second

	// maxMessageSize bounds a single response. get_states on a large
	// installation runs to several megabytes.
	maxMessageSize = 64 << 20
)

// HomeAssistantConfig holds connection settings for a Home Assistant instance.
type HomeAssistantConfig struct {
	// URL is the WebSocket endpoint, e.g. ws://homeassistant.local:8123/api/websocket.
	URL string

	// Token is a long-lived access token.
	Token string

	DialTimeout    time.Duration
	RequestTimeout time.Duration
}

// HomeAssistant is a Source backed by the Home Assistant WebSocket API.
//
// One session is shared by all calls. Commands are serialised on that
// session, and any transport failure drops it so the next call re-dials.
type HomeAssistant struct {
	cfg    HomeAssistantConfig
	dialer *websocket.Dialer
	logger Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID int
	closed bool
}

var _ Source = (*HomeAssistant)(nil)

// NewHomeAssistant creates a client. No connection is made until the first fetch.
func NewHomeAssistant(cfg HomeAssistantConfig) *HomeAssistant {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	return &HomeAssistant{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout},
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the client.
func (h *HomeAssistant) SetLogger(logger Logger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logger = logger
}

// Close ends the session. Further fetches fail with ErrClosed.
func (h *HomeAssistant) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	if h.conn == nil {
		return nil
	}
	err := h.conn.Close()
	h.conn = nil
	return err
}

// haMessage is the envelope of every frame Home Assistant sends.
type haMessage struct {
	ID      int             `json:"id"`
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Message string          `json:"message"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type haCommand struct {
	ID   int    `json:"id"`
	Type string `json:"type"`
}

type haAuth struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token"`
}

// haEntity mirrors an entity registry entry. Home Assistant reports
// disabled and hidden as the reason string, or null.
type haEntity struct {
	EntityID     string  `json:"entity_id"`
	DeviceID     *string `json:"device_id"`
	AreaID       *string `json:"area_id"`
	Name         *string `json:"name"`
	OriginalName *string `json:"original_name"`
	Platform     string  `json:"platform"`
	DisabledBy   *string `json:"disabled_by"`
	HiddenBy     *string `json:"hidden_by"`
}

// FetchEntities lists the entity registry.
func (h *HomeAssistant) FetchEntities(ctx context.Context) ([]entity.RawEntity, error) {
	var raw []haEntity
	if err := h.call(ctx, OpEntities, cmdEntityRegistry, &raw); err != nil {
		return nil, err
	}
	out := make([]entity.RawEntity, 0, len(raw))
	for _, e := range raw {
		out = append(out, entity.RawEntity{
			ID:           e.EntityID,
			DeviceID:     e.DeviceID,
			RoomID:       e.AreaID,
			Name:         e.Name,
			OriginalName: e.OriginalName,
			Platform:     e.Platform,
			Disabled:     e.DisabledBy != nil,
			Hidden:       e.HiddenBy != nil,
		})
	}
	return out, nil
}

// FetchDevices lists the device registry.
func (h *HomeAssistant) FetchDevices(ctx context.Context) ([]entity.RawDevice, error) {
	var out []entity.RawDevice
	if err := h.call(ctx, OpDevices, cmdDeviceRegistry, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchRooms lists the area registry.
func (h *HomeAssistant) FetchRooms(ctx context.Context) ([]entity.RawRoom, error) {
	var out []entity.RawRoom
	if err := h.call(ctx, OpRooms, cmdAreaRegistry, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchFloors lists the floor registry.
func (h *HomeAssistant) FetchFloors(ctx context.Context) ([]entity.RawFloor, error) {
	var out []entity.RawFloor
	if err := h.call(ctx, OpFloors, cmdFloorRegistry, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchStates returns the current state of every entity.
func (h *HomeAssistant) FetchStates(ctx context.Context) ([]entity.RawState, error) {
	var out []entity.RawState
	if err := h.call(ctx, OpStates, cmdGetStates, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// call sends one command and decodes its result into out.
func (h *HomeAssistant) call(ctx context.Context, op, cmdType string, out any) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return &TransportError{Op: op, Err: ErrClosed}
	}

	if h.conn == nil {
		conn, err := h.connectLocked(ctx)
		if err != nil {
			return &TransportError{Op: op, Err: err}
		}
		h.conn = conn
	}
	conn := h.conn

	deadline := time.Now().Add(h.cfg.RequestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	// Unblock the read when the caller gives up.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	h.nextID++
	id := h.nextID

	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(haCommand{ID: id, Type: cmdType}); err != nil {
		h.dropLocked(op, err)
		return &TransportError{Op: op, Err: err}
	}

	for {
		_ = conn.SetReadDeadline(deadline)
		var msg haMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			h.dropLocked(op, err)
			return &TransportError{Op: op, Err: err}
		}
		if msg.ID != id || msg.Type != "result" {
			continue
		}
		if !msg.Success {
			reason := "unknown error"
			if msg.Error != nil {
				reason = msg.Error.Code + ": " + msg.Error.Message
			}
			return &TransportError{Op: op, Err: fmt.Errorf("%w: %s", ErrCommandFailed, reason)}
		}
		if err := json.Unmarshal(msg.Result, out); err != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("decoding %s result: %w", cmdType, err)}
		}
		return nil
	}
}

// connectLocked dials and authenticates a new session.
func (h *HomeAssistant) connectLocked(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, h.cfg.DialTimeout)
	defer cancel()

	conn, _, err := h.dialer.DialContext(dialCtx, h.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", h.cfg.URL, err)
	}
	conn.SetReadLimit(maxMessageSize)

	if err := h.authenticate(conn); err != nil {
		conn.Close() //nolint:errcheck // already failing
		return nil, err
	}

	h.logger.Info("connected to home assistant", "url", h.cfg.URL)
	return conn, nil
}

func (h *HomeAssistant) authenticate(conn *websocket.Conn) error {
	deadline := time.Now().Add(h.cfg.DialTimeout)
	_ = conn.SetReadDeadline(deadline)
	_ = conn.SetWriteDeadline(deadline)

	var msg haMessage
	if err := conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("reading auth request: %w", err)
	}
	if msg.Type != "auth_required" {
		return fmt.Errorf("%w: unexpected greeting %q", ErrAuthFailed, msg.Type)
	}

	if err := conn.WriteJSON(haAuth{Type: "auth", AccessToken: h.cfg.Token}); err != nil {
		return fmt.Errorf("sending auth: %w", err)
	}

	msg = haMessage{}
	if err := conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("reading auth response: %w", err)
	}
	switch msg.Type {
	case "auth_ok":
		return nil
	case "auth_invalid":
		return fmt.Errorf("%w: %s", ErrAuthFailed, msg.Message)
	default:
		return fmt.Errorf("%w: unexpected response %q", ErrAuthFailed, msg.Type)
	}
}

func (h *HomeAssistant) dropLocked(op string, cause error) {
	if h.conn == nil {
		return
	}
	h.logger.Warn("home assistant session dropped", "op", op, "error", cause)
	h.conn.Close() //nolint:errcheck // connection is being discarded
	h.conn = nil
}
