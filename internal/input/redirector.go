package input

import (
	"runtime"
	"unsafe"

	"go.uber.org/zap"

	"overlayhook/internal/inputstate"
	"overlayhook/internal/keyfilter"
	"overlayhook/internal/logging"
	"overlayhook/internal/winapi"
)

// rawInputError is the (UINT)-1 failure value of the raw input functions.
const rawInputError = ^uint32(0)

// Redirector holds everything the replacement functions consult.
type Redirector struct {
	policy Policy
	mouse  MouseSettings
	keys   *keyfilter.Tables
	state  *inputstate.State
	real   Originals
	logger *zap.Logger
}

func NewRedirector(policy Policy, mouse MouseSettings, keys *keyfilter.Tables, state *inputstate.State, real Originals) *Redirector {
	return &Redirector{
		policy: policy,
		mouse:  mouse,
		keys:   keys,
		state:  state,
		real:   real,
		logger: logging.L("input"),
	}
}

// AsyncKeyState replaces GetAsyncKeyState.
func (r *Redirector) AsyncKeyState(vk int32) int16 {
	if r.policy.BlockKeyInput() {
		return 0
	}
	if r.keys.IsRemapped(uint32(vk)) {
		return r.real.AsyncKeyState(int32(r.keys.RemappedTarget(uint32(vk))))
	}
	return r.real.AsyncKeyState(vk)
}

// KeyState replaces GetKeyState.
func (r *Redirector) KeyState(vk int32) int16 {
	if r.policy.BlockKeyInput() {
		return 0
	}
	if r.keys.IsRemapped(uint32(vk)) {
		return r.real.KeyState(int32(r.keys.RemappedTarget(uint32(vk))))
	}
	return r.real.KeyState(vk)
}

// KeyboardState replaces GetKeyboardState. Remapped source slots are
// cleared and their physical state is moved to the mapped slots.
func (r *Redirector) KeyboardState(state *[256]byte) bool {
	if state == nil {
		return r.real.KeyboardState(nil)
	}
	if r.policy.BlockKeyInput() {
		*state = [256]byte{}
		return true
	}
	if !r.real.KeyboardState(state) {
		return false
	}

	remaps := r.keys.Remaps()
	if len(remaps) == 0 {
		return true
	}
	physical := *state
	for from := range remaps {
		if from < 256 {
			state[from] = 0
		}
	}
	for from, to := range remaps {
		if from < 256 && to < 256 {
			state[to] = physical[from]
		}
	}
	return true
}

// ShowCursor replaces ShowCursor. While intercepting the counter is emulated.
func (r *Redirector) ShowCursor(show bool) int32 {
	if r.policy.BlockCursorVisibility() {
		return r.state.EmulateShowCursor(show)
	}
	return r.real.ShowCursor(show)
}

// CursorPos replaces GetCursorPos.
func (r *Redirector) CursorPos() (winapi.Point, bool) {
	if r.policy.BlockMouseInput() {
		return r.state.Position(), true
	}
	return r.real.CursorPos()
}

// SetCursorPos replaces SetCursorPos.
func (r *Redirector) SetCursorPos(x, y int32) bool {
	if r.policy.BlockMouseInput() {
		r.state.SetPosition(winapi.Point{X: x, Y: y})
		return true
	}
	return r.real.SetCursorPos(x, y)
}

// Cursor replaces GetCursor.
func (r *Redirector) Cursor() uintptr {
	if r.policy.BlockCursorVisibility() {
		return r.state.CursorHandle()
	}
	return r.real.Cursor()
}

// SetCursor replaces SetCursor.
func (r *Redirector) SetCursor(h uintptr) uintptr {
	if r.policy.BlockCursorVisibility() {
		return r.state.SwapCursorHandle(h)
	}
	return r.real.SetCursor(h)
}

// RawInputData replaces GetRawInputData.
func (r *Redirector) RawInputData(h uintptr, cmd uint32, data unsafe.Pointer, size *uint32, headerSize uint32) uint32 {
	speed := r.mouse.MovingSpeed()
	active := r.policy.MouseAdjustActive()
	scale := speed != 1 && active
	invert := r.mouse.YAxisInvert() && active

	if (scale || invert) && cmd == winapi.RID_INPUT && data != nil && size != nil {
		if n, ok := r.adjustedRawInput(h, data, size, headerSize, speed, scale, invert); ok {
			return n
		}
		return r.real.RawInputData(h, cmd, data, size, headerSize)
	}

	if r.policy.Intercepting() {
		if size != nil {
			if data == nil {
				r.real.RawInputData(h, cmd, nil, size, headerSize)
			}
			if *size > 0 && *size != rawInputError {
				scratch := make([]byte, *size)
				r.real.RawInputData(h, cmd, unsafe.Pointer(&scratch[0]), size, headerSize)
			}
			*size = 0
		}
		return 0
	}

	return r.real.RawInputData(h, cmd, data, size, headerSize)
}

// adjustedRawInput reads the event into a private copy, scales or inverts
// motion deltas and copies the result out. ok is false when the caller
// should fall back to the unmodified event.
func (r *Redirector) adjustedRawInput(h uintptr, data unsafe.Pointer, size *uint32, headerSize uint32, speed float32, scale, invert bool) (uint32, bool) {
	var need uint32
	r.real.RawInputData(h, winapi.RID_INPUT, nil, &need, headerSize)
	if need == 0 || need == rawInputError || need > *size {
		return 0, false
	}

	buf := make([]byte, need)
	got := r.real.RawInputData(h, winapi.RID_INPUT, unsafe.Pointer(&buf[0]), &need, headerSize)
	if got == 0 || got == rawInputError || got > uint32(len(buf)) {
		return 0, false
	}

	if got >= winapi.RawInputMouseSize {
		rec := (*winapi.RawInputMouse)(unsafe.Pointer(&buf[0]))
		if rec.Header.Type == winapi.RIM_TYPEMOUSE && (rec.Mouse.LastX != 0 || rec.Mouse.LastY != 0) {
			if scale {
				rec.Mouse.LastX = int32(float32(rec.Mouse.LastX) * speed)
				rec.Mouse.LastY = int32(float32(rec.Mouse.LastY) * speed)
			}
			if invert {
				rec.Mouse.LastY = -rec.Mouse.LastY
			}
		}
	}

	copy(unsafe.Slice((*byte)(data), got), buf[:got])
	*size = got
	return got, true
}

// RawInputBuffer replaces GetRawInputBuffer. While intercepting the OS
// buffer is drained and the caller sees no records.
func (r *Redirector) RawInputBuffer(data unsafe.Pointer, size *uint32, headerSize uint32) uint32 {
	if !r.policy.Intercepting() {
		return r.real.RawInputBuffer(data, size, headerSize)
	}
	if size == nil {
		return 0
	}

	if data == nil {
		r.real.RawInputBuffer(nil, size, winapi.RawInputHeaderSize)
	}
	if *size > 0 && *size != rawInputError {
		capacity := *size * 16
		buf := make([]byte, capacity)
		count := r.real.RawInputBuffer(unsafe.Pointer(&buf[0]), &capacity, winapi.RawInputHeaderSize)
		switch {
		case count == rawInputError:
			r.logger.Debug("raw input buffer drain failed")
		case count > 0:
			r.real.DefRawInputProc(rawRecords(buf, count), winapi.RawInputHeaderSize)
		}
		runtime.KeepAlive(buf)
	}
	*size = 0
	return 0
}

// rawRecords returns the addresses of up to count RAWINPUT records packed
// in buf, following the NEXTRAWINPUTBLOCK alignment.
func rawRecords(buf []byte, count uint32) []uintptr {
	const align = unsafe.Sizeof(uintptr(0))

	records := make([]uintptr, 0, count)
	offset := uintptr(0)
	for i := uint32(0); i < count; i++ {
		if offset+uintptr(winapi.RawInputHeaderSize) > uintptr(len(buf)) {
			break
		}
		hdr := (*winapi.RawInputHeader)(unsafe.Pointer(&buf[offset]))
		records = append(records, uintptr(unsafe.Pointer(hdr)))
		if hdr.Size == 0 {
			break
		}
		offset += (uintptr(hdr.Size) + align - 1) &^ (align - 1)
	}
	return records
}
