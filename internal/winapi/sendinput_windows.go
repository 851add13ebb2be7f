//go:build windows

package winapi

import "unsafe"

const (
	inputKeyboard = 1

	keyeventfExtendedKey = 0x0001
	keyeventfKeyUp       = 0x0002
	mapvkVKToVSC         = 0
)

type keybdInput struct {
	wVk         uint16
	wScan       uint16
	dwFlags     uint32
	time        uint32
	dwExtraInfo uintptr
}

// input is INPUT sized for its largest union member (MOUSEINPUT).
type input struct {
	inputType uint32
	padding   [4]byte
	ki        keybdInput
	_         [8]byte
}

// extended keys need KEYEVENTF_EXTENDEDKEY for the target to see the right code
var extendedKeys = map[uint16]bool{
	VK_PRIOR: true, VK_NEXT: true, VK_END: true, VK_HOME: true,
	VK_LEFT: true, VK_UP: true, VK_RIGHT: true, VK_DOWN: true,
	VK_INSERT: true, VK_DELETE: true, VK_DIVIDE: true,
	VK_RCONTROL: true, VK_RMENU: true, VK_LWIN: true, VK_RWIN: true,
}

// SendKey synthesizes one key transition through SendInput, tagged with
// InjectTag.
func SendKey(vk uint16, up bool) bool {
	scan, _, _ := procMapVirtualKey.Call(uintptr(vk), mapvkVKToVSC)

	inp := input{inputType: inputKeyboard}
	inp.ki.wVk = vk
	inp.ki.wScan = uint16(scan)
	inp.ki.dwExtraInfo = InjectTag
	if up {
		inp.ki.dwFlags |= keyeventfKeyUp
	}
	if extendedKeys[vk] {
		inp.ki.dwFlags |= keyeventfExtendedKey
	}

	n, _, _ := procSendInput.Call(1, uintptr(unsafe.Pointer(&inp)), unsafe.Sizeof(inp))
	return n == 1
}
