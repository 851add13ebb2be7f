//go:build windows

package winapi

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	imm32    = windows.NewLazySystemDLL("imm32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procSetWindowLongPtr      = user32.NewProc("SetWindowLongPtrW")
	procCallWindowProc        = user32.NewProc("CallWindowProcW")
	procSetWindowsHookEx      = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx   = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx        = user32.NewProc("CallNextHookEx")
	procGetWindowThreadProcID = user32.NewProc("GetWindowThreadProcessId")
	procGetForegroundWindow   = user32.NewProc("GetForegroundWindow")
	procGetClientRect         = user32.NewProc("GetClientRect")
	procGetWindowText         = user32.NewProc("GetWindowTextW")
	procPostMessage           = user32.NewProc("PostMessageW")
	procScreenToClient        = user32.NewProc("ScreenToClient")
	procRegisterWindowMessage = user32.NewProc("RegisterWindowMessageW")
	procSendInput             = user32.NewProc("SendInput")
	procMapVirtualKey         = user32.NewProc("MapVirtualKeyW")
	procGetAsyncKeyState      = user32.NewProc("GetAsyncKeyState")
	procGetCursorPos          = user32.NewProc("GetCursorPos")
	procGetMessage            = user32.NewProc("GetMessageW")
	procTranslateMessage      = user32.NewProc("TranslateMessage")
	procDispatchMessage       = user32.NewProc("DispatchMessageW")
	procPostThreadMessage     = user32.NewProc("PostThreadMessageW")
	procPostQuitMessage       = user32.NewProc("PostQuitMessage")
	procDefWindowProc         = user32.NewProc("DefWindowProcW")
	procRegisterClassEx       = user32.NewProc("RegisterClassExW")
	procCreateWindowEx        = user32.NewProc("CreateWindowExW")
	procShowWindow            = user32.NewProc("ShowWindow")
	procGetMessageExtraInfo   = user32.NewProc("GetMessageExtraInfo")

	procImmCreateContext    = imm32.NewProc("ImmCreateContext")
	procImmDestroyContext   = imm32.NewProc("ImmDestroyContext")
	procImmAssociateContext = imm32.NewProc("ImmAssociateContext")

	procGetModuleHandle = kernel32.NewProc("GetModuleHandleW")
)

const gwlpWndProc = ^uintptr(3) // GWLP_WNDPROC (-4)

// MSG mirrors the Win32 MSG structure.
type MSG struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      Point
}

// CWPSTRUCT is the payload of WH_CALLWNDPROC.
type CWPSTRUCT struct {
	LParam  uintptr
	WParam  uintptr
	Message uint32
	Hwnd    uintptr
}

// CWPRETSTRUCT is the payload of WH_CALLWNDPROCRET.
type CWPRETSTRUCT struct {
	LResult uintptr
	LParam  uintptr
	WParam  uintptr
	Message uint32
	Hwnd    uintptr
}

// KBDLLHOOKSTRUCT is the payload of WH_KEYBOARD_LL.
type KBDLLHOOKSTRUCT struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

// MSLLHOOKSTRUCT is the payload of WH_MOUSE_LL.
type MSLLHOOKSTRUCT struct {
	Pt          Point
	MouseData   uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

// SetWindowProc replaces the window procedure of hwnd and returns the previous one.
func SetWindowProc(hwnd, proc uintptr) (uintptr, error) {
	prev, _, err := procSetWindowLongPtr.Call(hwnd, gwlpWndProc, proc)
	if prev == 0 && err != windows.ERROR_SUCCESS {
		return 0, fmt.Errorf("SetWindowLongPtr: %w", err)
	}
	return prev, nil
}

func CallWindowProc(prev, hwnd uintptr, msg uint32, wParam, lParam uintptr) uintptr {
	ret, _, _ := procCallWindowProc.Call(prev, hwnd, uintptr(msg), wParam, lParam)
	return ret
}

func DefWindowProc(hwnd uintptr, msg uint32, wParam, lParam uintptr) uintptr {
	ret, _, _ := procDefWindowProc.Call(hwnd, uintptr(msg), wParam, lParam)
	return ret
}

// SetWindowsHookEx installs a hook. Thread id 0 with module 0 installs a
// global low-level hook.
func SetWindowsHookEx(id int32, fn, module uintptr, threadID uint32) (uintptr, error) {
	h, _, err := procSetWindowsHookEx.Call(uintptr(id), fn, module, uintptr(threadID))
	if h == 0 {
		return 0, fmt.Errorf("SetWindowsHookEx(%d): %w", id, err)
	}
	return h, nil
}

func UnhookWindowsHookEx(h uintptr) error {
	if r, _, err := procUnhookWindowsHookEx.Call(h); r == 0 {
		return fmt.Errorf("UnhookWindowsHookEx: %w", err)
	}
	return nil
}

func CallNextHookEx(code int32, wParam, lParam uintptr) uintptr {
	ret, _, _ := procCallNextHookEx.Call(0, uintptr(code), wParam, lParam)
	return ret
}

// WindowThreadID returns the id of the thread that created hwnd.
func WindowThreadID(hwnd uintptr) uint32 {
	tid, _, _ := procGetWindowThreadProcID.Call(hwnd, 0)
	return uint32(tid)
}

func ForegroundWindow() uintptr {
	h, _, _ := procGetForegroundWindow.Call()
	return h
}

func ClientRect(hwnd uintptr) (Rect, bool) {
	var r Rect
	ok, _, _ := procGetClientRect.Call(hwnd, uintptr(unsafe.Pointer(&r)))
	return r, ok != 0
}

func WindowTitle(hwnd uintptr) string {
	buf := make([]uint16, 256)
	n, _, _ := procGetWindowText.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return windows.UTF16ToString(buf[:n])
}

func PostMessage(hwnd uintptr, msg uint32, wParam, lParam uintptr) bool {
	ok, _, _ := procPostMessage.Call(hwnd, uintptr(msg), wParam, lParam)
	return ok != 0
}

func PostThreadMessage(tid uint32, msg uint32, wParam, lParam uintptr) bool {
	ok, _, _ := procPostThreadMessage.Call(uintptr(tid), uintptr(msg), wParam, lParam)
	return ok != 0
}

func PostQuitMessage(code int32) {
	procPostQuitMessage.Call(uintptr(code))
}

// ScreenToClient converts a screen point to hwnd's client coordinates.
func ScreenToClient(hwnd uintptr, pt Point) (Point, bool) {
	ok, _, _ := procScreenToClient.Call(hwnd, uintptr(unsafe.Pointer(&pt)))
	return pt, ok != 0
}

// RegisterWindowMessage returns the process-wide id for name, or 0.
func RegisterWindowMessage(name string) uint32 {
	p, err := syscall.UTF16PtrFromString(name)
	if err != nil {
		return 0
	}
	id, _, _ := procRegisterWindowMessage.Call(uintptr(unsafe.Pointer(p)))
	return uint32(id)
}

// AsyncKeyDown reports whether GetAsyncKeyState sees vk held. Once the export
// is redirected this answers with the redirected view.
func AsyncKeyDown(vk uint32) bool {
	r, _, _ := procGetAsyncKeyState.Call(uintptr(vk))
	return uint16(r)&0x8000 != 0
}

// CursorPos returns the real screen cursor position.
func CursorPos() (Point, bool) {
	var pt Point
	ok, _, _ := procGetCursorPos.Call(uintptr(unsafe.Pointer(&pt)))
	return pt, ok != 0
}

// GetMessage blocks for the next message of the calling thread. It returns
// false on WM_QUIT or error.
func GetMessage(msg *MSG) bool {
	r, _, _ := procGetMessage.Call(uintptr(unsafe.Pointer(msg)), 0, 0, 0)
	return int32(r) > 0
}

// MessageExtraInfo returns the extra info of the message the calling thread
// retrieved last.
func MessageExtraInfo() uintptr {
	r, _, _ := procGetMessageExtraInfo.Call()
	return r
}

func DispatchMessage(msg *MSG) {
	procTranslateMessage.Call(uintptr(unsafe.Pointer(msg)))
	procDispatchMessage.Call(uintptr(unsafe.Pointer(msg)))
}

// ImmCreateContext and friends manage a private input context.
func ImmCreateContext() uintptr {
	h, _, _ := procImmCreateContext.Call()
	return h
}

func ImmDestroyContext(h uintptr) {
	procImmDestroyContext.Call(h)
}

func ImmAssociateContext(hwnd, ctx uintptr) uintptr {
	prev, _, _ := procImmAssociateContext.Call(hwnd, ctx)
	return prev
}

// ModuleHandle returns the base address of the executable.
func ModuleHandle() uintptr {
	h, _, _ := procGetModuleHandle.Call(0)
	return h
}
