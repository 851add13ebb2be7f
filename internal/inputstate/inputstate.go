// Package inputstate saves the process-global cursor state (visibility
// counter, position, cursor handle) when interception starts and puts it
// back when interception stops. While saved it also serves as the emulated
// cursor the target sees through the redirected cursor functions.
package inputstate

import (
	"sync/atomic"

	"go.uber.org/zap"

	"overlayhook/internal/logging"
	"overlayhook/internal/winapi"
)

// Cursor is the real, un-redirected OS cursor surface.
type Cursor interface {
	// ShowCursor adjusts the display counter and returns its new value.
	ShowCursor(show bool) int32
	CursorPos() (winapi.Point, bool)
	Cursor() uintptr
	SetCursor(h uintptr) uintptr
}

// State is the saved input record. All fields are atomics because the
// redirected functions read them from arbitrary threads while the window
// thread saves and restores.
type State struct {
	os     Cursor
	logger *zap.Logger

	saved   atomic.Bool
	count   atomic.Int32
	visible atomic.Bool
	pos     atomic.Uint64
	handle  atomic.Uintptr
}

// New returns an unsaved state backed by the real cursor functions.
func New(real Cursor) *State {
	return &State{os: real, logger: logging.L("inputstate")}
}

// Saved reports whether a snapshot is currently held.
func (s *State) Saved() bool { return s.saved.Load() }

// Save snapshots the OS cursor state and leaves the OS cursor shown.
// It is a no-op when a snapshot is already held.
func (s *State) Save() {
	if s.saved.Load() {
		return
	}

	// The counter has no reader: show once, then the previous value is one less.
	s.count.Store(s.os.ShowCursor(true) - 1)

	counter := s.os.ShowCursor(true)
	for counter < 0 {
		next := s.os.ShowCursor(true)
		if next == counter {
			s.logger.Warn("cursor counter stuck while showing", zap.Int32("counter", counter))
			break
		}
		counter = next
	}

	if pt, ok := s.os.CursorPos(); ok {
		s.pos.Store(packPoint(pt))
	}
	s.handle.Store(s.os.Cursor())
	s.visible.Store(false)
	s.saved.Store(true)

	s.logger.Debug("input state saved",
		zap.Int32("count", s.count.Load()),
		zap.Uintptr("cursor", s.handle.Load()))
}

// Restore walks the OS counter back to the saved value and reinstates the
// saved cursor handle. It is a no-op when nothing is saved.
func (s *State) Restore() {
	if !s.saved.Load() {
		return
	}

	want := s.count.Load()
	current := s.os.ShowCursor(false)
	if current != want {
		show := want > current
		counter := s.os.ShowCursor(show)
		for counter != want {
			next := s.os.ShowCursor(show)
			if next == counter {
				s.logger.Warn("cursor counter stuck while restoring",
					zap.Int32("counter", counter), zap.Int32("want", want))
				break
			}
			counter = next
		}
	}

	s.os.SetCursor(s.handle.Load())
	if s.visible.Load() {
		s.os.ShowCursor(true)
	}
	s.saved.Store(false)

	s.logger.Debug("input state restored", zap.Int32("count", want))
}

// EmulateShowCursor applies a show/hide request to the saved counter instead
// of the OS and returns the counter value before the change.
func (s *State) EmulateShowCursor(show bool) int32 {
	delta := int32(-1)
	if show {
		delta = 1
	}
	next := s.count.Add(delta)
	s.visible.Store(show)
	return next - delta
}

// EmulatedCount is the saved counter as the target currently sees it.
func (s *State) EmulatedCount() int32 { return s.count.Load() }

// Position returns the saved cursor position.
func (s *State) Position() winapi.Point { return unpackPoint(s.pos.Load()) }

// SetPosition updates the saved cursor position.
func (s *State) SetPosition(pt winapi.Point) { s.pos.Store(packPoint(pt)) }

// CursorHandle returns the emulated cursor handle.
func (s *State) CursorHandle() uintptr { return s.handle.Load() }

// SwapCursorHandle stores h as the emulated cursor and returns the previous one.
func (s *State) SwapCursorHandle(h uintptr) uintptr { return s.handle.Swap(h) }

func packPoint(pt winapi.Point) uint64 {
	return uint64(uint32(pt.X))<<32 | uint64(uint32(pt.Y))
}

func unpackPoint(v uint64) winapi.Point {
	return winapi.Point{X: int32(uint32(v >> 32)), Y: int32(uint32(v))}
}
