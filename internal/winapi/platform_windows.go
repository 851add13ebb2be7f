//go:build windows

package winapi

import (
	"sync"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"overlayhook/internal/logging"
)

// Platform is the user32/imm32 backed OS surface used by the interceptor
// and the low-level taps.
type Platform struct {
	imeMu   sync.Mutex
	imeCtx  uintptr
	imePrev uintptr
}

func NewPlatform() *Platform { return &Platform{} }

func (*Platform) ForegroundWindow() uintptr                          { return ForegroundWindow() }
func (*Platform) ClientRect(hwnd uintptr) (Rect, bool)               { return ClientRect(hwnd) }
func (*Platform) WindowTitle(hwnd uintptr) string                    { return WindowTitle(hwnd) }
func (*Platform) RealCursorPos() (Point, bool)                       { return CursorPos() }
func (*Platform) KeyDown(vk uint32) bool                             { return AsyncKeyDown(vk) }
func (*Platform) SendKey(vk uint16, up bool)                         { SendKey(vk, up) }
func (*Platform) ScreenToClient(hwnd uintptr, p Point) (Point, bool) { return ScreenToClient(hwnd, p) }

func (*Platform) PostMessage(hwnd uintptr, msg uint32, wParam, lParam uintptr) bool {
	return PostMessage(hwnd, msg, wParam, lParam)
}

// AssociateIME gives hwnd a private input context so composition goes to
// the overlay instead of the target's own IME handling.
func (p *Platform) AssociateIME(hwnd uintptr) {
	p.imeMu.Lock()
	defer p.imeMu.Unlock()

	if p.imeCtx == 0 {
		p.imeCtx = ImmCreateContext()
		if p.imeCtx == 0 {
			logging.L("winapi").Warn("ImmCreateContext failed", zap.Uintptr(logging.KeyWindow, hwnd))
			return
		}
	}
	p.imePrev = ImmAssociateContext(hwnd, p.imeCtx)
}

// RestoreIME puts back the context replaced by AssociateIME.
func (p *Platform) RestoreIME(hwnd uintptr) {
	p.imeMu.Lock()
	defer p.imeMu.Unlock()

	if p.imeCtx == 0 {
		return
	}
	ImmAssociateContext(hwnd, p.imePrev)
	ImmDestroyContext(p.imeCtx)
	p.imeCtx, p.imePrev = 0, 0
}

// ProcessName returns the executable name of the current process.
func ProcessName(pid int32) string {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return ""
	}
	name, err := proc.Name()
	if err != nil {
		return ""
	}
	return name
}
