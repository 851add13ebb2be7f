package winapi

import "unsafe"

// RawInputHeader is RAWINPUTHEADER.
type RawInputHeader struct {
	Type   uint32
	Size   uint32
	Device uintptr
	WParam uintptr
}

// RawMouse is RAWMOUSE. The button flags live in the union that follows
// usFlags, which is 4-byte aligned.
type RawMouse struct {
	Flags            uint16
	_                uint16
	ButtonFlags      uint16
	ButtonData       uint16
	RawButtons       uint32
	LastX            int32
	LastY            int32
	ExtraInformation uint32
}

// RawInputMouse is a RAWINPUT whose header type is RIM_TYPEMOUSE.
type RawInputMouse struct {
	Header RawInputHeader
	Mouse  RawMouse
}

// RawInputHeaderSize is sizeof(RAWINPUTHEADER) on this architecture.
const RawInputHeaderSize = uint32(unsafe.Sizeof(RawInputHeader{}))

// RawInputMouseSize is sizeof(RAWINPUT) for a mouse record.
const RawInputMouseSize = uint32(unsafe.Sizeof(RawInputMouse{}))
