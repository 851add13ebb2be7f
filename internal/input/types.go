// Package input implements the replacement policies installed over the
// user32 key-state, cursor and raw-input entry points. Each replacement
// falls back to the real function whenever the session has no reason to
// hide input from the target.
package input

import (
	"unsafe"

	"overlayhook/internal/inputstate"
)

// Policy answers whether the target's view of real input must be altered.
type Policy interface {
	BlockKeyInput() bool
	BlockMouseInput() bool
	BlockCursorVisibility() bool
	Intercepting() bool
	// MouseAdjustActive reports that the overlay is enabled and its
	// graphics session is running, so mouse speed and inversion apply.
	MouseAdjustActive() bool
}

// MouseSettings carries the raw mouse adjustments chosen by the overlay.
type MouseSettings interface {
	MovingSpeed() float32
	YAxisInvert() bool
}

// Originals is the real user32 surface, reached through call-through.
type Originals interface {
	inputstate.Cursor
	AsyncKeyState(vk int32) int16
	KeyState(vk int32) int16
	KeyboardState(state *[256]byte) bool
	SetCursorPos(x, y int32) bool
	RawInputData(h uintptr, cmd uint32, data unsafe.Pointer, size *uint32, headerSize uint32) uint32
	RawInputBuffer(data unsafe.Pointer, size *uint32, headerSize uint32) uint32
	DefRawInputProc(records []uintptr, headerSize uint32)
}
