// Package lltap holds the global low-level keyboard and mouse taps. They see
// input before the target's message queue and act only while the target
// window is in the foreground of an active overlay session.
package lltap

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"overlayhook/internal/keyfilter"
	"overlayhook/internal/logging"
	"overlayhook/internal/winapi"
)

// Hotkey names sent to the overlay.
const (
	HotkeyShow = "overlay.show"
	HotkeyHide = "overlay.hide"
)

const (
	menuKeyHold = 50 * time.Millisecond
	readyPoll   = 100 * time.Millisecond
)

type Session interface {
	OverlayEnabled() bool
	GraphicsActive() bool
}

// Target is the attached window as tracked by the interceptor.
type Target interface {
	CurrentWindow() uintptr
	Intercepting() bool
}

// Transport carries hotkey notifications and the mouse options chosen by
// the overlay.
type Transport interface {
	SendInGameHotkeyDown(name string)
	SwapMouseButtons() bool
	Numpad5Primary() bool
	NumpadPlusSecondary() bool
}

type Platform interface {
	ForegroundWindow() uintptr
	SendKey(vk uint16, up bool)
	PostMessage(hwnd uintptr, msg uint32, wParam, lParam uintptr) bool
	RealCursorPos() (winapi.Point, bool)
	ScreenToClient(hwnd uintptr, pt winapi.Point) (winapi.Point, bool)
}

type Deps struct {
	Session   Session
	Target    Target
	Transport Transport
	Platform  Platform
	Keys      *keyfilter.Tables
}

// Taps decides the fate of every low-level event.
type Taps struct {
	Deps
	showKey atomic.Uint32
	hideKey atomic.Uint32
	menuKey atomic.Uint32
	hold    time.Duration
	logger  *zap.Logger

	mu       sync.Mutex
	threadID uint32
	done     chan struct{}
}

func New(deps Deps) *Taps {
	t := &Taps{
		Deps:   deps,
		hold:   menuKeyHold,
		logger: logging.L("lltap"),
	}
	t.showKey.Store(winapi.VK_HOME)
	t.hideKey.Store(winapi.VK_END)
	return t
}

// SetShowHideKeys changes the overlay show and hide keys; zero disables one.
func (t *Taps) SetShowHideKeys(show, hide uint32) {
	t.showKey.Store(show)
	t.hideKey.Store(hide)
}

// SetMenuKey sets the key pressed in the target before the overlay is shown.
func (t *Taps) SetMenuKey(vk uint32) { t.menuKey.Store(vk) }

func (t *Taps) MenuKey() uint32 { return t.menuKey.Load() }

func (t *Taps) active() bool {
	if !t.Session.OverlayEnabled() || !t.Session.GraphicsActive() {
		return false
	}
	hwnd := t.Target.CurrentWindow()
	return hwnd != 0 && t.Platform.ForegroundWindow() == hwnd
}

// Ready reports whether the overlay can be shown.
func (t *Taps) Ready() bool {
	return t.Session.OverlayEnabled() && t.Session.GraphicsActive()
}

// Keyboard handles one WH_KEYBOARD_LL event and reports whether to consume it.
// Keys injected with winapi.InjectTag, remap targets and the menu key among
// them, are never filtered again.
func (t *Taps) Keyboard(msg uint32, vk uint32, extra uintptr) bool {
	if extra == winapi.InjectTag || !t.active() {
		return false
	}
	down := msg == winapi.WM_KEYDOWN || msg == winapi.WM_SYSKEYDOWN
	up := msg == winapi.WM_KEYUP || msg == winapi.WM_SYSKEYUP

	if down {
		switch vk {
		case t.showKey.Load():
			if vk != 0 {
				t.ShowOverlay()
				return true
			}
		case t.hideKey.Load():
			if vk != 0 {
				t.Transport.SendInGameHotkeyDown(HotkeyHide)
				return true
			}
		}
	}

	if t.Target.Intercepting() || !(down || up) {
		return false
	}

	log := t.logger.With(zap.Uint32(logging.KeyKey, vk), zap.Bool("down", down))
	class, target := t.Keys.Classify(vk)
	switch class {
	case keyfilter.ClassBlocked:
		log.Debug("blocked")
		return true
	case keyfilter.ClassPassed:
		return false
	case keyfilter.ClassRemapped:
		log.Debug("remapped", zap.Uint32("to", target))
		t.Platform.SendKey(uint16(target), up)
		return true
	}

	switch {
	case vk == winapi.VK_NUMPAD5 && t.Transport.Numpad5Primary():
		t.postButton(winapi.WM_LBUTTONDOWN, winapi.WM_LBUTTONUP, winapi.MK_LBUTTON, down)
		return true
	case vk == winapi.VK_ADD && t.Transport.NumpadPlusSecondary():
		t.postButton(winapi.WM_RBUTTONDOWN, winapi.WM_RBUTTONUP, winapi.MK_RBUTTON, down)
		return true
	}
	return false
}

// postButton posts a button transition at the cursor's client position.
func (t *Taps) postButton(downMsg, upMsg uint32, mk uintptr, down bool) {
	hwnd := t.Target.CurrentWindow()
	pt, _ := t.Platform.RealCursorPos()
	pt, _ = t.Platform.ScreenToClient(hwnd, pt)
	if down {
		t.Platform.PostMessage(hwnd, downMsg, mk, winapi.MakeLParam(pt.X, pt.Y))
	} else {
		t.Platform.PostMessage(hwnd, upMsg, 0, winapi.MakeLParam(pt.X, pt.Y))
	}
}

// Mouse handles one WH_MOUSE_LL event and reports whether to consume it.
// Swapped buttons are posted to the window and never reach this tap; the tag
// check covers mouse input sent with winapi.InjectTag by a cooperating injector.
func (t *Taps) Mouse(msg uint32, pt winapi.Point, extra uintptr) bool {
	if extra == winapi.InjectTag || !t.active() || !t.Transport.SwapMouseButtons() {
		return false
	}

	var swapped uint32
	var mk uintptr
	switch msg {
	case winapi.WM_LBUTTONDOWN:
		swapped, mk = winapi.WM_RBUTTONDOWN, winapi.MK_RBUTTON
	case winapi.WM_LBUTTONUP:
		swapped = winapi.WM_RBUTTONUP
	case winapi.WM_RBUTTONDOWN:
		swapped, mk = winapi.WM_LBUTTONDOWN, winapi.MK_LBUTTON
	case winapi.WM_RBUTTONUP:
		swapped = winapi.WM_LBUTTONUP
	default:
		return false
	}

	hwnd := t.Target.CurrentWindow()
	client, _ := t.Platform.ScreenToClient(hwnd, pt)
	t.Platform.PostMessage(hwnd, swapped, mk, winapi.MakeLParam(client.X, client.Y))
	return true
}

// ShowOverlay presses the menu key in the target, if one is set, then asks
// the overlay to show itself. It does not block the calling hook.
func (t *Taps) ShowOverlay() {
	vk := uint16(t.menuKey.Load())
	go func() {
		if vk != 0 {
			t.logger.Debug("menu key before show", zap.Uint16(logging.KeyKey, vk))
			t.Platform.SendKey(vk, false)
			time.Sleep(t.hold)
			t.Platform.SendKey(vk, true)
		}
		t.Transport.SendInGameHotkeyDown(HotkeyShow)
	}()
}

// ShowWhenReady polls until the session is ready and then shows the overlay.
func (t *Taps) ShowWhenReady(ctx context.Context) {
	ticker := time.NewTicker(readyPoll)
	defer ticker.Stop()
	for !t.Ready() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
	t.ShowOverlay()
}
