//go:build windows

package input

import (
	"unsafe"

	"overlayhook/internal/apihook"
	"overlayhook/internal/winapi"
)

// TableOriginals reaches the real user32 functions through the
// redirection table, so it keeps working while the bindings are installed.
type TableOriginals struct {
	Table *apihook.Table
}

func (o TableOriginals) AsyncKeyState(vk int32) int16 {
	return int16(o.Table.Call("GetAsyncKeyState", uintptr(vk)))
}

func (o TableOriginals) KeyState(vk int32) int16 {
	return int16(o.Table.Call("GetKeyState", uintptr(vk)))
}

func (o TableOriginals) KeyboardState(state *[256]byte) bool {
	return o.Table.Call("GetKeyboardState", uintptr(unsafe.Pointer(state))) != 0
}

func (o TableOriginals) ShowCursor(show bool) int32 {
	return int32(o.Table.Call("ShowCursor", boolResult(show)))
}

func (o TableOriginals) CursorPos() (winapi.Point, bool) {
	var pt winapi.Point
	ok := o.Table.Call("GetCursorPos", uintptr(unsafe.Pointer(&pt))) != 0
	return pt, ok
}

func (o TableOriginals) SetCursorPos(x, y int32) bool {
	return o.Table.Call("SetCursorPos", uintptr(x), uintptr(y)) != 0
}

func (o TableOriginals) Cursor() uintptr {
	return o.Table.Call("GetCursor")
}

func (o TableOriginals) SetCursor(h uintptr) uintptr {
	return o.Table.Call("SetCursor", h)
}

func (o TableOriginals) RawInputData(h uintptr, cmd uint32, data unsafe.Pointer, size *uint32, headerSize uint32) uint32 {
	return uint32(o.Table.Call("GetRawInputData", h, uintptr(cmd), uintptr(data), uintptr(unsafe.Pointer(size)), uintptr(headerSize)))
}

func (o TableOriginals) RawInputBuffer(data unsafe.Pointer, size *uint32, headerSize uint32) uint32 {
	return uint32(o.Table.Call("GetRawInputBuffer", uintptr(data), uintptr(unsafe.Pointer(size)), uintptr(headerSize)))
}

func (o TableOriginals) DefRawInputProc(records []uintptr, headerSize uint32) {
	if len(records) == 0 {
		return
	}
	o.Table.Call("DefRawInputProc", uintptr(unsafe.Pointer(&records[0])), uintptr(len(records)), uintptr(headerSize))
}
