//go:build windows

package input

import (
	"sync"
	"syscall"
	"unsafe"

	"go.uber.org/zap"

	"overlayhook/internal/winapi"
)

var (
	callbacksOnce sync.Once
	callbacks     map[string]uintptr
)

// replacements creates the callback thunks once per process; Windows never
// frees them.
func replacements() map[string]uintptr {
	callbacksOnce.Do(func() {
		callbacks = map[string]uintptr{
			"GetAsyncKeyState":  syscall.NewCallback(hGetAsyncKeyState),
			"GetKeyState":       syscall.NewCallback(hGetKeyState),
			"GetKeyboardState":  syscall.NewCallback(hGetKeyboardState),
			"ShowCursor":        syscall.NewCallback(hShowCursor),
			"GetCursorPos":      syscall.NewCallback(hGetCursorPos),
			"SetCursorPos":      syscall.NewCallback(hSetCursorPos),
			"GetCursor":         syscall.NewCallback(hGetCursor),
			"SetCursor":         syscall.NewCallback(hSetCursor),
			"GetRawInputData":   syscall.NewCallback(hGetRawInputData),
			"GetRawInputBuffer": syscall.NewCallback(hGetRawInputBuffer),
		}
	})
	return callbacks
}

// guard runs fn against the active redirector. If none is active, or fn
// panics, the real entry point answers instead.
func guard(name string, fn func(r *Redirector) uintptr, args ...uintptr) (ret uintptr) {
	hs := active.Load()
	if hs == nil {
		return 0
	}
	if hs.redirector == nil {
		return hs.table.Call(name, args...)
	}
	defer func() {
		if p := recover(); p != nil {
			hs.redirector.logger.Error("replacement panicked", zap.String("binding", name), zap.Any("panic", p))
			ret = hs.table.Call(name, args...)
		}
	}()
	return fn(hs.redirector)
}

func boolResult(b bool) uintptr {
	if b {
		return 1
	}
	return 0
}

func hGetAsyncKeyState(vk uintptr) uintptr {
	return guard("GetAsyncKeyState", func(r *Redirector) uintptr {
		return uintptr(uint16(r.AsyncKeyState(int32(vk))))
	}, vk)
}

func hGetKeyState(vk uintptr) uintptr {
	return guard("GetKeyState", func(r *Redirector) uintptr {
		return uintptr(uint16(r.KeyState(int32(vk))))
	}, vk)
}

func hGetKeyboardState(state uintptr) uintptr {
	return guard("GetKeyboardState", func(r *Redirector) uintptr {
		return boolResult(r.KeyboardState((*[256]byte)(unsafe.Pointer(state))))
	}, state)
}

func hShowCursor(show uintptr) uintptr {
	return guard("ShowCursor", func(r *Redirector) uintptr {
		return uintptr(uint32(r.ShowCursor(uint32(show) != 0)))
	}, show)
}

func hGetCursorPos(pt uintptr) uintptr {
	return guard("GetCursorPos", func(r *Redirector) uintptr {
		p, ok := r.CursorPos()
		if pt != 0 {
			*(*winapi.Point)(unsafe.Pointer(pt)) = p
		}
		return boolResult(ok)
	}, pt)
}

func hSetCursorPos(x, y uintptr) uintptr {
	return guard("SetCursorPos", func(r *Redirector) uintptr {
		return boolResult(r.SetCursorPos(int32(x), int32(y)))
	}, x, y)
}

func hGetCursor() uintptr {
	return guard("GetCursor", func(r *Redirector) uintptr {
		return r.Cursor()
	})
}

func hSetCursor(h uintptr) uintptr {
	return guard("SetCursor", func(r *Redirector) uintptr {
		return r.SetCursor(h)
	}, h)
}

func hGetRawInputData(h, cmd, data, size, headerSize uintptr) uintptr {
	return guard("GetRawInputData", func(r *Redirector) uintptr {
		return uintptr(r.RawInputData(h, uint32(cmd), unsafe.Pointer(data), (*uint32)(unsafe.Pointer(size)), uint32(headerSize)))
	}, h, cmd, data, size, headerSize)
}

func hGetRawInputBuffer(data, size, headerSize uintptr) uintptr {
	return guard("GetRawInputBuffer", func(r *Redirector) uintptr {
		return uintptr(r.RawInputBuffer(unsafe.Pointer(data), (*uint32)(unsafe.Pointer(size)), uint32(headerSize)))
	}, data, size, headerSize)
}
