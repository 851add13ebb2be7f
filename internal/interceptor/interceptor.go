// Package interceptor owns the target window's message procedure. It keeps
// the interception state machine, routes every message through an ordered
// rule list and exposes the block policy read by the redirected user32
// functions.
package interceptor

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"overlayhook/internal/inputstate"
	"overlayhook/internal/keyfilter"
	"overlayhook/internal/logging"
	"overlayhook/internal/taskqueue"
	"overlayhook/internal/winapi"
)

// Session reports the overlay session mode.
type Session interface {
	OverlayEnabled() bool
	GraphicsActive() bool
	IsWindowed() bool
}

// Transport is the overlay connector as seen from the message pump. Every
// call is synchronous and its answers are authoritative.
type Transport interface {
	SendGraphicsWindowSetupInfo(hwnd uintptr, width, height int32, focused, hooked bool)
	SendGraphicsWindowResizeEvent(hwnd uintptr, width, height int32)
	SendGraphicsWindowFocusEvent(hwnd uintptr, focused bool)
	SendGraphicsWindowDestroy(hwnd uintptr)
	SendInputIntercept()
	SendInputStopIntercept()
	ProcessMouseMessage(msg uint32, wParam, lParam uintptr, intercepting bool) bool
	ProcessKeyboardMessage(msg uint32, wParam, lParam uintptr) bool
	ProcessNCHitTest(msg uint32, wParam, lParam uintptr, intercepting bool) bool
	ProcessSetCursor() bool
	IsMousePressingOnOverlayWindow() bool
	FocusWindowID() uint32
}

// HotkeyChecker polls configured hotkeys; true means the message is consumed.
type HotkeyChecker interface {
	CheckHotkeys() bool
}

// Platform is the window-level OS surface.
type Platform interface {
	ForegroundWindow() uintptr
	ClientRect(hwnd uintptr) (winapi.Rect, bool)
	WindowTitle(hwnd uintptr) string
	PostMessage(hwnd uintptr, msg uint32, wParam, lParam uintptr) bool
	SendKey(vk uint16, up bool)
	// RealCursorPos and KeyDown bypass the redirected user32 functions.
	RealCursorPos() (winapi.Point, bool)
	KeyDown(vk uint32) bool
	AssociateIME(hwnd uintptr)
	RestoreIME(hwnd uintptr)
}

// Router decides what happens to one message.
type Router interface {
	Route(m Message) Verdict
}

// WindowHook attaches a Router to a window, by procedure substitution or
// by thread message hooks.
type WindowHook interface {
	Hook(hwnd uintptr, r Router) error
	Unhook() error
}

// Taps installs the global low-level keyboard and mouse taps.
type Taps interface {
	Install() error
}

// Options tune optional behaviour.
type Options struct {
	// AutoIntercept routes input to the overlay while the cursor hovers it.
	AutoIntercept bool
	// ThreadedHotkeys leaves hotkey polling to a separate goroutine.
	ThreadedHotkeys bool
	// WindowedIME gives the overlay a private input context in windowed mode.
	WindowedIME bool
	// DebugToggleKey toggles interception from the pump when non-zero.
	DebugToggleKey uint32
	// TaskMessage is the registered id of the private task message.
	TaskMessage uint32
}

// Deps groups the collaborators of an Interceptor.
type Deps struct {
	Session   Session
	Transport Transport
	Hotkeys   HotkeyChecker
	Keys      *keyfilter.Tables
	State     *inputstate.State
	Platform  Platform
	Hook      WindowHook
	Taps      Taps
}

// Interceptor is the interception session of the attached process.
type Interceptor struct {
	Deps
	opts   Options
	tasks  *taskqueue.Queue
	rules  []rule
	logger *zap.Logger

	window       atomic.Uintptr
	intercepting atomic.Bool
	auto         atomic.Bool
	focused      atomic.Bool
	destroyed    atomic.Bool
	tapsTried    atomic.Bool
	debugHeld    atomic.Bool

	rectMu sync.RWMutex
	rect   winapi.Rect

	setupMu   sync.Mutex
	onDestroy func()
}

// New creates a detached interceptor.
func New(deps Deps, opts Options) *Interceptor {
	if opts.TaskMessage == 0 {
		opts.TaskMessage = winapi.WM_USER + 0x88
	}
	ic := &Interceptor{
		Deps:   deps,
		opts:   opts,
		logger: logging.L("interceptor"),
	}
	ic.tasks = taskqueue.New(ic)
	ic.rules = defaultRules()
	return ic
}

// OnDestroy sets the callback run after the target window is destroyed.
func (ic *Interceptor) OnDestroy(fn func()) { ic.onDestroy = fn }

// Attached implements taskqueue.Poster.
func (ic *Interceptor) Attached() bool { return ic.window.Load() != 0 }

// PostTask implements taskqueue.Poster.
func (ic *Interceptor) PostTask() bool {
	hwnd := ic.window.Load()
	if hwnd == 0 {
		return false
	}
	return ic.Platform.PostMessage(hwnd, ic.opts.TaskMessage, taskqueue.MagicWParam, taskqueue.TaskLParam)
}

// Schedule runs fn on the window thread.
func (ic *Interceptor) Schedule(fn func()) error {
	return ic.tasks.Schedule(fn)
}

// TrySetupGraphicsWindow makes hwnd the owned target window. A second,
// different window is rejected while one is attached.
func (ic *Interceptor) TrySetupGraphicsWindow(hwnd uintptr) bool {
	if hwnd == 0 {
		return false
	}
	ic.setupMu.Lock()
	defer ic.setupMu.Unlock()

	log := ic.logger.With(zap.Uintptr(logging.KeyWindow, hwnd))
	log.Info("setup requested", zap.String("title", ic.Platform.WindowTitle(hwnd)))

	switch current := ic.window.Load(); {
	case current == hwnd:
		return true
	case current != 0:
		log.Warn("rejected, window already attached", zap.Uintptr("current", current))
		return false
	}

	focused := ic.Platform.ForegroundWindow() == hwnd
	rect, _ := ic.Platform.ClientRect(hwnd)

	ic.storeRect(rect)
	ic.focused.Store(focused)
	ic.destroyed.Store(false)
	ic.window.Store(hwnd)

	if err := ic.Hook.Hook(hwnd, ic); err != nil {
		log.Error("hook window failed", zap.Error(err))
		ic.window.Store(0)
		ic.clearWindowState()
		ic.Transport.SendGraphicsWindowSetupInfo(hwnd, rect.Width(), rect.Height(), focused, false)
		if uerr := ic.Hook.Unhook(); uerr != nil {
			log.Debug("unhook after failed hook", zap.Error(uerr))
		}
		return false
	}

	ic.Transport.SendGraphicsWindowSetupInfo(hwnd, rect.Width(), rect.Height(), focused, true)
	log.Info("window attached", zap.Int32("width", rect.Width()), zap.Int32("height", rect.Height()), zap.Bool("focused", focused))

	ic.Schedule(func() {
		if ic.window.Load() == hwnd && ic.Platform.ForegroundWindow() == hwnd {
			ic.focused.Store(true)
			ic.Transport.SendGraphicsWindowFocusEvent(hwnd, true)
		}
	})
	return true
}

// ResendSetupInfo repeats the setup notification, e.g. after the transport reconnects.
func (ic *Interceptor) ResendSetupInfo() {
	hwnd := ic.window.Load()
	if hwnd == 0 {
		return
	}
	rect := ic.windowRect()
	ic.Transport.SendGraphicsWindowSetupInfo(hwnd, rect.Width(), rect.Height(), ic.focused.Load(), true)
}

// Detach unhooks the window without treating it as destroyed.
func (ic *Interceptor) Detach() {
	ic.setupMu.Lock()
	defer ic.setupMu.Unlock()

	if ic.window.Load() == 0 {
		return
	}
	ic.StopInterception()
	if err := ic.Hook.Unhook(); err != nil {
		ic.logger.Warn("unhook failed", zap.Error(err))
	}
	ic.window.Store(0)
	ic.clearWindowState()
	ic.tasks.Reset()
}

// StartInterception diverts input to the overlay. It runs on the window thread.
func (ic *Interceptor) StartInterception() {
	if !ic.Session.OverlayEnabled() {
		return
	}
	hwnd := ic.window.Load()
	if hwnd == 0 || !ic.intercepting.CompareAndSwap(false, true) {
		return
	}

	if ic.opts.WindowedIME && ic.Session.IsWindowed() {
		ic.Platform.AssociateIME(hwnd)
	}
	ic.State.Save()
	ic.Transport.SendInputIntercept()

	pt, _ := ic.Platform.RealCursorPos()
	ic.Transport.ProcessNCHitTest(winapi.WM_NCHITTEST, 0, winapi.MakeLParam(pt.X, pt.Y), true)
	ic.Transport.ProcessSetCursor()
	ic.auto.Store(false)

	ic.logger.Debug("interception started", zap.Uintptr(logging.KeyWindow, hwnd))
}

// StopInterception gives input back to the target. It also runs when the
// overlay was disabled in the meantime, so a disable always ends interception.
func (ic *Interceptor) StopInterception() {
	if !ic.intercepting.CompareAndSwap(true, false) {
		return
	}
	hwnd := ic.window.Load()
	if ic.opts.WindowedIME && ic.Session.IsWindowed() && hwnd != 0 {
		ic.Platform.RestoreIME(hwnd)
	}
	ic.State.Restore()
	ic.Transport.SendInputStopIntercept()

	ic.logger.Debug("interception stopped", zap.Uintptr(logging.KeyWindow, hwnd))
}

func (ic *Interceptor) ToggleInterception() {
	if ic.intercepting.Load() {
		ic.StopInterception()
	} else {
		ic.StartInterception()
	}
}

func (ic *Interceptor) startAutoIntercept() {
	if ic.Session.OverlayEnabled() {
		ic.auto.Store(true)
	}
}

func (ic *Interceptor) stopAutoIntercept() {
	ic.auto.Store(false)
}

// Block policy, read from arbitrary threads by the redirected functions.

func (ic *Interceptor) Intercepting() bool          { return ic.intercepting.Load() }
func (ic *Interceptor) AutoIntercepting() bool      { return ic.auto.Load() }
func (ic *Interceptor) BlockMouseInput() bool       { return ic.intercepting.Load() }
func (ic *Interceptor) BlockCursorVisibility() bool { return ic.intercepting.Load() }

func (ic *Interceptor) BlockKeyInput() bool {
	if ic.intercepting.Load() {
		return true
	}
	return ic.opts.AutoIntercept && ic.auto.Load() && ic.Transport.FocusWindowID() != 0
}

func (ic *Interceptor) MouseAdjustActive() bool {
	return ic.Session.OverlayEnabled() && ic.Session.GraphicsActive()
}

// Window state accessors.

func (ic *Interceptor) CurrentWindow() uintptr { return ic.window.Load() }
func (ic *Interceptor) IsWindowAttached() bool { return ic.window.Load() != 0 }
func (ic *Interceptor) IsWindowFocused() bool  { return ic.focused.Load() }
func (ic *Interceptor) ClientWidth() int32     { return ic.windowRect().Width() }
func (ic *Interceptor) ClientHeight() int32    { return ic.windowRect().Height() }

func (ic *Interceptor) windowRect() winapi.Rect {
	ic.rectMu.RLock()
	defer ic.rectMu.RUnlock()
	return ic.rect
}

func (ic *Interceptor) storeRect(r winapi.Rect) {
	ic.rectMu.Lock()
	ic.rect = r
	ic.rectMu.Unlock()
}

func (ic *Interceptor) clearWindowState() {
	ic.storeRect(winapi.Rect{})
	ic.focused.Store(false)
	ic.auto.Store(false)
}
