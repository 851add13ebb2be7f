// Package protocol defines the messages exchanged with the overlay process.
package protocol

import "encoding/json"

// MessageType defines the type of a JSON envelope
type MessageType string

// Outbound notifications
const (
	// TypeHello is sent first on every connection
	TypeHello MessageType = "hello"

	TypeWindowSetup   MessageType = "window.setup"
	TypeWindowResize  MessageType = "window.resize"
	TypeWindowFocus   MessageType = "window.focus"
	TypeWindowDestroy MessageType = "window.destroy"

	TypeInterceptStarted MessageType = "input.intercept.started"
	TypeInterceptStopped MessageType = "input.intercept.stopped"

	TypeHotkeyDown MessageType = "hotkey.down"
	TypeHookInfo   MessageType = "input.hook_info"
)

// Inbound commands
const (
	TypeIntercept     MessageType = "input.intercept"
	TypeKeyRemap      MessageType = "keyboard.remap"
	TypeKeyBlock      MessageType = "keyboard.block"
	TypeKeyPass       MessageType = "keyboard.pass"
	TypeMenuKey       MessageType = "keyboard.menu"
	TypeHotkeyInfo    MessageType = "hotkey.info"
	TypeMouseSettings MessageType = "mouse.settings"
	TypeOverlayState  MessageType = "overlay.state"
	TypeCursor        MessageType = "cursor"
)

// Message is the generic container for all JSON messages
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage wraps payload in an envelope. A nil payload is omitted.
func NewMessage(t MessageType, payload any) (Message, error) {
	msg := Message{Type: t}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	msg.Payload = raw
	return msg, nil
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

// HelloPayload identifies the hooked process
type HelloPayload struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token,omitempty"`
	PID       int    `json:"pid"`
	Process   string `json:"process,omitempty"`
}

// WindowPayload describes the target window. Hooked is only set in setup.
type WindowPayload struct {
	Window  uint64 `json:"window"`
	Width   int32  `json:"width,omitempty"`
	Height  int32  `json:"height,omitempty"`
	Focused bool   `json:"focused,omitempty"`
	Hooked  bool   `json:"hooked,omitempty"`
}

type HotkeyPayload struct {
	Name string `json:"name"`
}

type HookInfoPayload struct {
	Hooked bool `json:"hooked"`
}

// InterceptPayload starts or stops interception
type InterceptPayload struct {
	Start bool `json:"start"`
}

type RemapEntry struct {
	From    uint32 `json:"from"`
	To      uint32 `json:"to"`
	Enabled bool   `json:"enabled"`
}

type RemapPayload struct {
	Remaps []RemapEntry `json:"remaps"`
}

// KeysPayload carries the blocked or passed virtual keys
type KeysPayload struct {
	Keys []uint32 `json:"keys"`
}

type MenuKeyPayload struct {
	Key uint32 `json:"key"`
}

type HotkeyEntry struct {
	Name        string `json:"name"`
	Combo       string `json:"combo"`
	Passthrough bool   `json:"passthrough"`
}

type HotkeyInfoPayload struct {
	Hotkeys []HotkeyEntry `json:"hotkeys"`
}

type MouseSettingsPayload struct {
	MovingSpeed         float32 `json:"moving_speed"`
	YAxisInvert         bool    `json:"y_axis_invert"`
	SwapButtons         bool    `json:"swap_buttons"`
	Numpad5Primary      bool    `json:"numpad5_primary"`
	NumpadPlusSecondary bool    `json:"numpad_plus_secondary"`
}

// OverlayWindow is one overlay window in the target's client coordinates
type OverlayWindow struct {
	ID     uint32 `json:"id"`
	X      int32  `json:"x"`
	Y      int32  `json:"y"`
	Width  int32  `json:"width"`
	Height int32  `json:"height"`
	// Transparent windows never take mouse input
	Transparent bool `json:"transparent,omitempty"`
}

// OverlayStatePayload replaces the cached overlay layout
type OverlayStatePayload struct {
	Windows []OverlayWindow `json:"windows"`
	FocusID uint32          `json:"focus_id"`
}

// CursorPayload names the cursor the overlay wants, e.g. "arrow", "ibeam"
type CursorPayload struct {
	Name string `json:"name"`
}
