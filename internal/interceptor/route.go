package interceptor

import (
	"go.uber.org/zap"

	"overlayhook/internal/logging"
	"overlayhook/internal/taskqueue"
	"overlayhook/internal/winapi"
)

// Message is one window message as seen by the hook.
type Message struct {
	Hwnd   uintptr
	Msg    uint32
	WParam uintptr
	LParam uintptr
	// Extra is the message's extra info; winapi.InjectTag marks our own input.
	Extra uintptr
}

// Verdict tells the hook adapter what to do with a message. An unhandled
// message goes on to the window's original procedure.
type Verdict struct {
	Handled bool
	Result  uintptr
}

var (
	forward = Verdict{}
	swallow = Verdict{Handled: true}
)

// rule is one routing step. apply reports done=false to let later rules
// see the message.
type rule struct {
	name  string
	match func(ic *Interceptor, m Message) bool
	apply func(ic *Interceptor, m Message) (v Verdict, done bool)
}

func defaultRules() []rule {
	return []rule{
		{name: "taps", match: always, apply: (*Interceptor).ensureTaps},
		{name: "overlay-disabled", match: overlayDisabled, apply: (*Interceptor).forceStop},
		{name: "hotkey", match: hotkeyCandidate, apply: (*Interceptor).routeHotkey},
		{name: "task", match: taskMessage, apply: (*Interceptor).runTasks},
		{name: "lifecycle", match: always, apply: (*Interceptor).routeLifecycle},
		{name: "passthrough", match: passthrough, apply: forwardAll},
		{name: "mouse", match: mouseMessage, apply: (*Interceptor).routeMouse},
		{name: "raw-input", match: rawInput, apply: swallowAll},
		{name: "keyboard", match: keyboardMessage, apply: (*Interceptor).routeKeyboard},
	}
}

// Route runs m through the rule list. A panic inside a rule forwards the
// message unchanged.
func (ic *Interceptor) Route(m Message) (v Verdict) {
	defer func() {
		if r := recover(); r != nil {
			ic.logger.Error("route panicked", zap.Any("panic", r), zap.Uint32(logging.KeyMessage, m.Msg))
			v = forward
		}
	}()

	for _, r := range ic.rules {
		if !r.match(ic, m) {
			continue
		}
		if v, done := r.apply(ic, m); done {
			return v
		}
	}
	return forward
}

func always(*Interceptor, Message) bool { return true }

func forwardAll(*Interceptor, Message) (Verdict, bool) { return forward, true }

func swallowAll(*Interceptor, Message) (Verdict, bool) { return swallow, true }

func overlayDisabled(ic *Interceptor, _ Message) bool { return !ic.Session.OverlayEnabled() }

func hotkeyCandidate(ic *Interceptor, m Message) bool {
	return ic.Session.GraphicsActive() && (winapi.IsKeyMessage(m.Msg) || winapi.IsMouseMessage(m.Msg))
}

func taskMessage(ic *Interceptor, m Message) bool {
	return taskqueue.IsTaskMessage(m.Msg, ic.opts.TaskMessage, m.WParam, m.LParam)
}

func passthrough(ic *Interceptor, _ Message) bool {
	if !ic.Session.GraphicsActive() || ic.destroyed.Load() {
		return true
	}
	if ic.intercepting.Load() {
		return false
	}
	if !ic.opts.AutoIntercept {
		return true
	}
	return !ic.auto.Load() && !ic.Transport.IsMousePressingOnOverlayWindow()
}

func mouseMessage(_ *Interceptor, m Message) bool { return winapi.IsMouseMessage(m.Msg) }

func rawInput(_ *Interceptor, m Message) bool { return m.Msg == winapi.WM_INPUT }

func keyboardMessage(_ *Interceptor, m Message) bool { return winapi.IsKeyboardMessage(m.Msg) }

func (ic *Interceptor) ensureTaps(Message) (Verdict, bool) {
	if ic.Taps != nil && ic.Session.GraphicsActive() && ic.tapsTried.CompareAndSwap(false, true) {
		if err := ic.Taps.Install(); err != nil {
			ic.logger.Warn("low-level taps unavailable", zap.Error(err))
		}
	}
	return forward, false
}

func (ic *Interceptor) forceStop(Message) (Verdict, bool) {
	ic.StopInterception()
	return forward, false
}

func (ic *Interceptor) routeHotkey(m Message) (Verdict, bool) {
	if ic.checkDebugToggle() {
		return swallow, true
	}
	if ic.opts.ThreadedHotkeys || ic.Hotkeys == nil {
		return forward, false
	}
	if ic.Hotkeys.CheckHotkeys() {
		ic.logger.Debug("hotkey consumed message", zap.Uint32(logging.KeyMessage, m.Msg))
		return swallow, true
	}
	return forward, false
}

// checkDebugToggle flips interception on the press edge of the debug key.
func (ic *Interceptor) checkDebugToggle() bool {
	vk := ic.opts.DebugToggleKey
	if vk == 0 {
		return false
	}
	down := ic.Platform.KeyDown(vk)
	if ic.debugHeld.Swap(down) == down || !down {
		return false
	}
	ic.ToggleInterception()
	return true
}

func (ic *Interceptor) runTasks(Message) (Verdict, bool) {
	ic.tasks.Drain()
	return swallow, true
}

func (ic *Interceptor) routeLifecycle(m Message) (Verdict, bool) {
	switch m.Msg {
	case winapi.WM_DESTROY:
		ic.windowDestroyed(m.Hwnd)
		return forward, true
	case winapi.WM_SIZE:
		if rect, ok := ic.Platform.ClientRect(m.Hwnd); ok {
			ic.storeRect(rect)
			ic.Transport.SendGraphicsWindowResizeEvent(m.Hwnd, rect.Width(), rect.Height())
		}
	case winapi.WM_KILLFOCUS:
		ic.focused.Store(false)
		ic.Transport.SendGraphicsWindowFocusEvent(m.Hwnd, false)
		ic.stopAutoIntercept()
		ic.StopInterception()
	case winapi.WM_SETFOCUS:
		ic.focused.Store(true)
		ic.Transport.SendGraphicsWindowFocusEvent(m.Hwnd, true)
	case winapi.WM_SETCURSOR:
		if winapi.LoWord(m.LParam) != winapi.HTCLIENT {
			break
		}
		if (ic.intercepting.Load() || ic.auto.Load()) && ic.Transport.ProcessSetCursor() {
			return Verdict{Handled: true, Result: 1}, true
		}
	case winapi.WM_NCHITTEST:
		switch {
		case ic.intercepting.Load():
			ic.Transport.ProcessNCHitTest(m.Msg, m.WParam, m.LParam, true)
		case ic.opts.AutoIntercept:
			if ic.Transport.ProcessNCHitTest(m.Msg, m.WParam, m.LParam, false) {
				ic.startAutoIntercept()
			} else {
				ic.stopAutoIntercept()
			}
		}
	}
	return forward, false
}

func (ic *Interceptor) windowDestroyed(hwnd uintptr) {
	ic.logger.Info("window destroyed", zap.Uintptr(logging.KeyWindow, hwnd))
	ic.destroyed.Store(true)
	ic.StopInterception()
	ic.Transport.SendGraphicsWindowDestroy(hwnd)
	if err := ic.Hook.Unhook(); err != nil {
		ic.logger.Warn("unhook on destroy failed", zap.Error(err))
	}
	ic.window.Store(0)
	ic.clearWindowState()
	ic.tasks.Reset()
	if ic.onDestroy != nil {
		ic.onDestroy()
	}
}

func (ic *Interceptor) routeMouse(m Message) (Verdict, bool) {
	consumed := ic.Transport.ProcessMouseMessage(m.Msg, m.WParam, m.LParam, ic.intercepting.Load())
	if !consumed && (m.Msg == winapi.WM_LBUTTONUP || m.Msg == winapi.WM_MBUTTONUP) {
		if err := ic.Schedule(ic.StopInterception); err != nil {
			ic.logger.Debug("stop on click-through not scheduled", zap.Error(err))
		}
	}
	return swallow, true
}

func (ic *Interceptor) routeKeyboard(m Message) (Verdict, bool) {
	if m.Hwnd != ic.window.Load() {
		return forward, true
	}
	if winapi.IsKeyMessage(m.Msg) {
		vk := uint32(m.WParam)
		if m.Extra != winapi.InjectTag && ic.Keys != nil && ic.Keys.IsRemapped(vk) {
			ic.Platform.SendKey(uint16(ic.Keys.RemappedTarget(vk)), winapi.IsKeyUp(m.Msg))
			return swallow, true
		}
	}
	ic.Transport.ProcessKeyboardMessage(m.Msg, m.WParam, m.LParam)
	return swallow, true
}
