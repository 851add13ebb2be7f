//go:build windows

package winapi

import (
	"fmt"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	procLoadCursor = user32.NewProc("LoadCursorW")
)

const (
	wsOverlappedWindow = 0x00CF0000
	cwUseDefault       = 0x80000000
	swShow             = 5
)

type wndClassEx struct {
	Size       uint32
	Style      uint32
	WndProc    uintptr
	ClsExtra   int32
	WndExtra   int32
	Instance   uintptr
	Icon       uintptr
	Cursor     uintptr
	Background uintptr
	MenuName   *uint16
	ClassName  *uint16
	IconSm     uintptr
}

var (
	probeClassOnce sync.Once
	probeClassErr  error
	probeClassName = windows.StringToUTF16Ptr("OverlayHookProbe")
)

// probeProc ends the thread's message loop when the window goes away.
func probeProc(hwnd, msg, wParam, lParam uintptr) uintptr {
	if uint32(msg) == WM_DESTROY {
		PostQuitMessage(0)
		return 0
	}
	return DefWindowProc(hwnd, uint32(msg), wParam, lParam)
}

// CreateProbeWindow opens a plain top-level window owned by the calling
// thread. The thread must run RunMessageLoop afterwards.
func CreateProbeWindow(title string, width, height int32) (uintptr, error) {
	probeClassOnce.Do(func() {
		arrow, _, _ := procLoadCursor.Call(0, 32512)
		wc := wndClassEx{
			WndProc:   syscall.NewCallback(probeProc),
			Instance:  ModuleHandle(),
			Cursor:    arrow,
			ClassName: probeClassName,
		}
		wc.Size = uint32(unsafe.Sizeof(wc))
		if r, _, err := procRegisterClassEx.Call(uintptr(unsafe.Pointer(&wc))); r == 0 {
			probeClassErr = fmt.Errorf("RegisterClassEx: %w", err)
		}
	})
	if probeClassErr != nil {
		return 0, probeClassErr
	}

	titlePtr, err := windows.UTF16PtrFromString(title)
	if err != nil {
		return 0, err
	}
	hwnd, _, err := procCreateWindowEx.Call(
		0,
		uintptr(unsafe.Pointer(probeClassName)),
		uintptr(unsafe.Pointer(titlePtr)),
		wsOverlappedWindow,
		cwUseDefault, cwUseDefault,
		uintptr(width), uintptr(height),
		0, 0, ModuleHandle(), 0,
	)
	if hwnd == 0 {
		return 0, fmt.Errorf("CreateWindowEx: %w", err)
	}
	procShowWindow.Call(hwnd, swShow)
	return hwnd, nil
}

// CloseWindow asks hwnd to close from any thread.
func CloseWindow(hwnd uintptr) bool {
	return PostMessage(hwnd, WM_CLOSE, 0, 0)
}

// RunMessageLoop pumps the calling thread's messages until WM_QUIT.
func RunMessageLoop() {
	var msg MSG
	for GetMessage(&msg) {
		DispatchMessage(&msg)
	}
}

// NamedCursor loads one of the system cursors, or returns 0.
func NamedCursor(name string) uintptr {
	id, ok := CursorID(name)
	if !ok {
		return 0
	}
	h, _, _ := procLoadCursor.Call(0, uintptr(id))
	return h
}
