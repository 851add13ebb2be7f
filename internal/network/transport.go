package network

import (
	"go.uber.org/zap"

	"overlayhook/internal/logging"
	"overlayhook/internal/protocol"
	"overlayhook/internal/winapi"
)

// Notifications. All of them are fire-and-forget.

func (c *Client) SendGraphicsWindowSetupInfo(hwnd uintptr, width, height int32, focused, hooked bool) {
	c.notify(protocol.TypeWindowSetup, protocol.WindowPayload{
		Window: uint64(hwnd), Width: width, Height: height, Focused: focused, Hooked: hooked,
	})
}

func (c *Client) SendGraphicsWindowResizeEvent(hwnd uintptr, width, height int32) {
	c.notify(protocol.TypeWindowResize, protocol.WindowPayload{Window: uint64(hwnd), Width: width, Height: height})
}

func (c *Client) SendGraphicsWindowFocusEvent(hwnd uintptr, focused bool) {
	c.notify(protocol.TypeWindowFocus, protocol.WindowPayload{Window: uint64(hwnd), Focused: focused})
}

func (c *Client) SendGraphicsWindowDestroy(hwnd uintptr) {
	c.notify(protocol.TypeWindowDestroy, protocol.WindowPayload{Window: uint64(hwnd)})
}

func (c *Client) SendInputIntercept()     { c.notify(protocol.TypeInterceptStarted, nil) }
func (c *Client) SendInputStopIntercept() { c.notify(protocol.TypeInterceptStopped, nil) }

func (c *Client) SendInGameHotkeyDown(name string) {
	c.logger.Debug("hotkey down", zap.String(logging.KeyBinding, name))
	c.notify(protocol.TypeHotkeyDown, protocol.HotkeyPayload{Name: name})
}

func (c *Client) SendInputHookInfo(hooked bool) {
	c.notify(protocol.TypeHookInfo, protocol.HookInfoPayload{Hooked: hooked})
}

// Synchronous queries, answered from cached overlay state.

// ProcessMouseMessage forwards a client-area mouse message and reports
// whether an overlay window takes it. While a press that started on the
// overlay is held, every message goes to the overlay.
func (c *Client) ProcessMouseMessage(msg uint32, wParam, lParam uintptr, intercepting bool) bool {
	pt := winapi.PointFromLParam(lParam)
	if msg == winapi.WM_MOUSEWHEEL || msg == winapi.WM_MOUSEHWHEEL {
		pt = c.toClient(pt)
	}

	hit := c.pressing.Load()
	if !hit {
		_, hit = c.windowAt(pt)
	}

	switch msg {
	case winapi.WM_LBUTTONDOWN, winapi.WM_RBUTTONDOWN, winapi.WM_MBUTTONDOWN:
		if hit {
			c.pressing.Store(true)
		}
	case winapi.WM_LBUTTONUP, winapi.WM_RBUTTONUP, winapi.WM_MBUTTONUP:
		c.pressing.Store(false)
	}

	if hit || intercepting {
		c.sendFrame(protocol.FrameMouse, msg, wParam, lParam)
	}
	return hit
}

// ProcessKeyboardMessage forwards a key or character message to the overlay.
func (c *Client) ProcessKeyboardMessage(msg uint32, wParam, lParam uintptr) bool {
	c.sendFrame(protocol.FrameKeyboard, msg, wParam, lParam)
	return true
}

// ProcessNCHitTest reports whether the screen point in lParam is over an
// overlay window.
func (c *Client) ProcessNCHitTest(msg uint32, wParam, lParam uintptr, intercepting bool) bool {
	id, hit := c.windowAt(c.toClient(winapi.PointFromLParam(lParam)))
	c.hoverID.Store(id)
	if intercepting {
		c.sendFrame(protocol.FrameHitTest, msg, wParam, lParam)
	}
	return hit
}

// ProcessSetCursor applies the cursor requested by the overlay, if any.
func (c *Client) ProcessSetCursor() bool {
	c.stateMu.RLock()
	name := c.cursor
	c.stateMu.RUnlock()

	c.hooksMu.RLock()
	set := c.setCursor
	c.hooksMu.RUnlock()

	if name == "" || set == nil {
		return false
	}
	return set(name)
}

func (c *Client) IsMousePressingOnOverlayWindow() bool { return c.pressing.Load() }

// FocusWindowID is the overlay window holding keyboard focus, 0 for none.
func (c *Client) FocusWindowID() uint32 { return c.focusID.Load() }

// HoverWindowID is the overlay window under the last hit-tested point.
func (c *Client) HoverWindowID() uint32 { return c.hoverID.Load() }

func (c *Client) toClient(pt winapi.Point) winapi.Point {
	c.hooksMu.RLock()
	loc := c.locator
	c.hooksMu.RUnlock()
	if loc == nil {
		return pt
	}
	if p, ok := loc.ScreenToClient(pt); ok {
		return p
	}
	return pt
}

// windowAt returns the top-most overlay window containing pt. Later
// windows in the overlay state are on top.
func (c *Client) windowAt(pt winapi.Point) (uint32, bool) {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()

	for i := len(c.windows) - 1; i >= 0; i-- {
		w := c.windows[i]
		if w.Transparent {
			continue
		}
		r := winapi.Rect{Left: w.X, Top: w.Y, Right: w.X + w.Width, Bottom: w.Y + w.Height}
		if r.Contains(pt) {
			return w.ID, true
		}
	}
	return 0, false
}
