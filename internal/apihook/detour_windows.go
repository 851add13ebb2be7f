//go:build windows

package apihook

import (
	"fmt"
	"runtime"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/windows"

	"overlayhook/internal/logging"
)

const (
	allocGranularity = 64 << 10
	trampolineSize   = maxPrologue + jumpSize
	memFree          = 0x10000
	// rel32 operands reach 2GB either way; stay a granule inside that.
	nearSpan = 1<<31 - allocGranularity
)

var procFlushInstructionCache = windows.NewLazySystemDLL("kernel32.dll").NewProc("FlushInstructionCache")

// DetourPatcher redirects an entry point by overwriting its first
// instructions with a jump to the replacement. The displaced instructions
// move to a trampoline that continues into the rest of the function, so
// callers holding a GetProcAddress result and modules loaded later are
// redirected too. When the prologue cannot be moved, or off x86-64, it falls
// back to rewriting import slots.
type DetourPatcher struct {
	*IATPatcher
	logger *zap.Logger
}

func NewDetourPatcher(library string) *DetourPatcher {
	return &DetourPatcher{IATPatcher: NewIATPatcher(library), logger: logging.L("apihook")}
}

func (p *DetourPatcher) Patch(name string, original, replacement uintptr) (Patch, error) {
	if runtime.GOARCH == "amd64" {
		patch, err := detour(original, replacement)
		if err == nil {
			return patch, nil
		}
		p.logger.Warn("inline redirection unavailable, patching imports",
			zap.String(logging.KeyBinding, name), zap.Error(err))
	}
	return p.IATPatcher.Patch(name, original, replacement)
}

// inlinePatch holds the bytes displaced from entry. Trampolines stay mapped
// after Restore since a caller may still be running inside one.
type inlinePatch struct {
	entry      uintptr
	saved      []byte
	trampoline uintptr
}

func (p *inlinePatch) Trampoline() uintptr { return p.trampoline }

func (p *inlinePatch) Restore() error {
	return writeCode(p.entry, p.saved)
}

func detour(original, replacement uintptr) (*inlinePatch, error) {
	mem := processMemory{}
	entry := skipThunks(mem, original)

	tramp, err := allocNear(entry, trampolineSize)
	if err != nil {
		return nil, err
	}
	code := append([]byte(nil), mem.bytes(entry, maxPrologue)...)
	moved, err := relocatePrologue(code, entry, tramp, jumpSize)
	if err != nil {
		windows.VirtualFree(tramp, 0, windows.MEM_RELEASE)
		return nil, err
	}

	body := append(append([]byte(nil), moved...), absJump(entry+uintptr(len(moved)))...)
	copy(mem.bytes(tramp, len(body)), body)
	flushCode(tramp, len(body))

	jump := absJump(replacement)
	for len(jump) < len(moved) {
		jump = append(jump, 0xCC)
	}
	if err := writeCode(entry, jump); err != nil {
		windows.VirtualFree(tramp, 0, windows.MEM_RELEASE)
		return nil, err
	}
	return &inlinePatch{entry: entry, saved: code[:len(moved)], trampoline: tramp}, nil
}

// allocNear finds executable memory within rel32 reach of target, searching
// below it first.
func allocNear(target, size uintptr) (uintptr, error) {
	base := target &^ (allocGranularity - 1)
	lo := uintptr(allocGranularity)
	if base > nearSpan+lo {
		lo = base - nearSpan
	}
	hi := base + nearSpan
	if hi < base {
		hi = ^uintptr(0)
	}

	try := func(addr uintptr) uintptr {
		var mbi windows.MemoryBasicInformation
		if err := windows.VirtualQuery(addr, &mbi, unsafe.Sizeof(mbi)); err != nil || mbi.State != memFree {
			return 0
		}
		p, err := windows.VirtualAlloc(addr, size, windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_EXECUTE_READWRITE)
		if err != nil {
			return 0
		}
		return p
	}
	for addr := base - allocGranularity; addr >= lo && addr < base; addr -= allocGranularity {
		if p := try(addr); p != 0 {
			return p, nil
		}
	}
	for addr := base + allocGranularity; addr <= hi && addr > base; addr += allocGranularity {
		if p := try(addr); p != 0 {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: no free memory near %#x", ErrUnrelocatable, target)
}

func writeCode(addr uintptr, code []byte) error {
	var old uint32
	size := uintptr(len(code))
	if err := windows.VirtualProtect(addr, size, windows.PAGE_EXECUTE_READWRITE, &old); err != nil {
		return fmt.Errorf("VirtualProtect: %w", err)
	}
	copy(processMemory{}.bytes(addr, len(code)), code)
	var ignored uint32
	windows.VirtualProtect(addr, size, old, &ignored)
	flushCode(addr, len(code))
	return nil
}

func flushCode(addr uintptr, n int) {
	procFlushInstructionCache.Call(uintptr(windows.CurrentProcess()), addr, uintptr(n))
}

type processMemory struct{}

func (processMemory) bytes(addr uintptr, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}

func (processMemory) pointer(addr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(addr))
}
