//go:build windows

package lltap

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"overlayhook/internal/winapi"
)

var (
	callbacksOnce sync.Once
	keyboardCB    uintptr
	mouseCB       uintptr

	current      atomic.Pointer[Taps]
	keyboardHook atomic.Uintptr
	mouseHook    atomic.Uintptr
)

// Install starts both taps on a dedicated locked thread with its own
// message loop. Only one Taps may be installed per process.
func (t *Taps) Install() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done != nil {
		return nil
	}
	if !current.CompareAndSwap(nil, t) {
		return errors.New("lltap: taps already installed")
	}
	callbacksOnce.Do(func() {
		keyboardCB = syscall.NewCallback(keyboardProc)
		mouseCB = syscall.NewCallback(mouseProc)
	})

	started := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(done)
		defer current.CompareAndSwap(t, nil)

		kh, err := winapi.SetWindowsHookEx(winapi.WH_KEYBOARD_LL, keyboardCB, winapi.ModuleHandle(), 0)
		if err != nil {
			started <- err
			return
		}
		keyboardHook.Store(kh)
		defer winapi.UnhookWindowsHookEx(kh)

		mh, err := winapi.SetWindowsHookEx(winapi.WH_MOUSE_LL, mouseCB, winapi.ModuleHandle(), 0)
		if err != nil {
			started <- err
			return
		}
		mouseHook.Store(mh)
		defer winapi.UnhookWindowsHookEx(mh)

		t.threadID = windows.GetCurrentThreadId()
		started <- nil
		t.logger.Info("low-level taps started")

		var msg winapi.MSG
		for winapi.GetMessage(&msg) {
			winapi.DispatchMessage(&msg)
		}
		t.logger.Info("low-level taps stopped")
	}()

	if err := <-started; err != nil {
		<-done
		return err
	}
	t.done = done
	return nil
}

// Close ends the tap thread and waits for it.
func (t *Taps) Close() {
	t.mu.Lock()
	done, tid := t.done, t.threadID
	t.done = nil
	t.mu.Unlock()

	if done == nil {
		return
	}
	winapi.PostThreadMessage(tid, winapi.WM_QUIT, 0, 0)
	<-done
}

func keyboardProc(code, wParam, lParam uintptr) uintptr {
	if t := current.Load(); t != nil && int32(code) == winapi.HC_ACTION && lParam != 0 {
		kbd := (*winapi.KBDLLHOOKSTRUCT)(unsafe.Pointer(lParam))
		if t.guard(func() bool { return t.Keyboard(uint32(wParam), kbd.VkCode, kbd.DwExtraInfo) }) {
			return 1
		}
	}
	return winapi.CallNextHookEx(int32(code), wParam, lParam)
}

func mouseProc(code, wParam, lParam uintptr) uintptr {
	if t := current.Load(); t != nil && int32(code) == winapi.HC_ACTION && lParam != 0 {
		ms := (*winapi.MSLLHOOKSTRUCT)(unsafe.Pointer(lParam))
		if t.guard(func() bool { return t.Mouse(uint32(wParam), ms.Pt, ms.DwExtraInfo) }) {
			return 1
		}
	}
	return winapi.CallNextHookEx(int32(code), wParam, lParam)
}
