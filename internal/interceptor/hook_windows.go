//go:build windows

package interceptor

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"syscall"
	"unsafe"

	"overlayhook/internal/winapi"
)

// Hook modes.
const (
	ModeWndProc = "wndproc"
	ModeMsgHook = "msghook"
)

type routerRef struct{ Router }

// NewWindowHook returns the adapter for mode. Only one adapter may be
// attached per process since the callbacks are process-wide.
func NewWindowHook(mode string) (WindowHook, error) {
	switch mode {
	case "", ModeWndProc:
		return &wndProcHook{}, nil
	case ModeMsgHook:
		return &msgHook{}, nil
	}
	return nil, fmt.Errorf("interceptor: unknown hook mode %q", mode)
}

var (
	thunksOnce      sync.Once
	wndProcThunk    uintptr
	getMsgThunk     uintptr
	callWndThunk    uintptr
	callWndRetThunk uintptr

	activeWndProc atomic.Pointer[wndProcHook]
	activeMsgHook atomic.Pointer[msgHook]
)

func initThunks() {
	thunksOnce.Do(func() {
		wndProcThunk = syscall.NewCallback(wndProc)
		getMsgThunk = syscall.NewCallback(getMsgProc)
		callWndThunk = syscall.NewCallback(callWndProc)
		callWndRetThunk = syscall.NewCallback(callWndRetProc)
	})
}

// wndProcHook substitutes the window procedure.
type wndProcHook struct {
	mu     sync.Mutex
	hwnd   uintptr
	prev   atomic.Uintptr
	router atomic.Pointer[routerRef]
}

func (h *wndProcHook) Hook(hwnd uintptr, r Router) error {
	initThunks()
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.hwnd != 0 {
		return errors.New("interceptor: window procedure already replaced")
	}
	h.router.Store(&routerRef{r})
	activeWndProc.Store(h)

	prev, err := winapi.SetWindowProc(hwnd, wndProcThunk)
	if err != nil {
		h.router.Store(nil)
		return err
	}
	h.prev.Store(prev)
	h.hwnd = hwnd
	return nil
}

// Unhook puts the previous procedure back. The saved procedure stays
// available so a message being dispatched can still be forwarded.
func (h *wndProcHook) Unhook() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.router.Store(nil)
	if h.hwnd == 0 {
		return nil
	}
	hwnd := h.hwnd
	h.hwnd = 0
	_, err := winapi.SetWindowProc(hwnd, h.prev.Load())
	return err
}

func wndProc(hwnd, msg, wParam, lParam uintptr) uintptr {
	h := activeWndProc.Load()
	if h == nil {
		return winapi.DefWindowProc(hwnd, uint32(msg), wParam, lParam)
	}
	prev := h.prev.Load()
	if ref := h.router.Load(); ref != nil {
		v := ref.Route(Message{Hwnd: hwnd, Msg: uint32(msg), WParam: wParam, LParam: lParam, Extra: winapi.MessageExtraInfo()})
		if v.Handled {
			return v.Result
		}
	}
	if prev == 0 {
		return winapi.DefWindowProc(hwnd, uint32(msg), wParam, lParam)
	}
	return winapi.CallWindowProc(prev, hwnd, uint32(msg), wParam, lParam)
}

// msgHook observes the window through thread message hooks. Posted input
// is consumed by turning it into WM_NULL; sent lifecycle messages are only
// observed.
type msgHook struct {
	mu     sync.Mutex
	hwnd   atomic.Uintptr
	hooks  []uintptr
	router atomic.Pointer[routerRef]
}

func (h *msgHook) Hook(hwnd uintptr, r Router) error {
	initThunks()
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.hooks) > 0 {
		return errors.New("interceptor: message hooks already installed")
	}
	tid := winapi.WindowThreadID(hwnd)
	if tid == 0 {
		return fmt.Errorf("interceptor: no thread for window %#x", hwnd)
	}

	h.router.Store(&routerRef{r})
	h.hwnd.Store(hwnd)
	activeMsgHook.Store(h)

	for _, hk := range []struct {
		id int32
		fn uintptr
	}{
		{winapi.WH_GETMESSAGE, getMsgThunk},
		{winapi.WH_CALLWNDPROC, callWndThunk},
		{winapi.WH_CALLWNDPROCRET, callWndRetThunk},
	} {
		hh, err := winapi.SetWindowsHookEx(hk.id, hk.fn, 0, tid)
		if err != nil {
			h.unhookLocked()
			return err
		}
		h.hooks = append(h.hooks, hh)
	}
	return nil
}

func (h *msgHook) Unhook() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.unhookLocked()
}

func (h *msgHook) unhookLocked() error {
	h.router.Store(nil)
	h.hwnd.Store(0)
	var errs []error
	for _, hh := range h.hooks {
		errs = append(errs, winapi.UnhookWindowsHookEx(hh))
	}
	h.hooks = nil
	return errors.Join(errs...)
}

func (h *msgHook) route(hwnd uintptr, msg uint32, wParam, lParam uintptr) (Verdict, bool) {
	if hwnd == 0 || hwnd != h.hwnd.Load() {
		return Verdict{}, false
	}
	ref := h.router.Load()
	if ref == nil {
		return Verdict{}, false
	}
	return ref.Route(Message{Hwnd: hwnd, Msg: msg, WParam: wParam, LParam: lParam, Extra: winapi.MessageExtraInfo()}), true
}

func getMsgProc(code, wParam, lParam uintptr) uintptr {
	if h := activeMsgHook.Load(); h != nil && int32(code) == winapi.HC_ACTION && wParam == winapi.PM_REMOVE {
		msg := (*winapi.MSG)(unsafe.Pointer(lParam))
		if v, ok := h.route(msg.Hwnd, msg.Message, msg.WParam, msg.LParam); ok && v.Handled {
			msg.Message = winapi.WM_NULL
		}
	}
	return winapi.CallNextHookEx(int32(code), wParam, lParam)
}

func callWndProc(code, wParam, lParam uintptr) uintptr {
	if h := activeMsgHook.Load(); h != nil && int32(code) == winapi.HC_ACTION {
		cwp := (*winapi.CWPSTRUCT)(unsafe.Pointer(lParam))
		if cwp.Message != winapi.WM_SETCURSOR {
			h.route(cwp.Hwnd, cwp.Message, cwp.WParam, cwp.LParam)
		}
	}
	return winapi.CallNextHookEx(int32(code), wParam, lParam)
}

// callWndRetProc lets the overlay set its cursor after the target's own
// WM_SETCURSOR handling ran.
func callWndRetProc(code, wParam, lParam uintptr) uintptr {
	if h := activeMsgHook.Load(); h != nil && int32(code) == winapi.HC_ACTION {
		ret := (*winapi.CWPRETSTRUCT)(unsafe.Pointer(lParam))
		if ret.Message == winapi.WM_SETCURSOR {
			h.route(ret.Hwnd, ret.Message, ret.WParam, ret.LParam)
		}
	}
	return winapi.CallNextHookEx(int32(code), wParam, lParam)
}
