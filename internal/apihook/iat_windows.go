//go:build windows

package apihook

import (
	"fmt"
	"strings"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// IATPatcher redirects calls by rewriting import address table slots of
// every loaded module that imports from Library. Callers that resolve the
// function through GetProcAddress, and modules loaded after Patch, are not
// affected; DetourPatcher uses it only when an entry point cannot be rewritten.
type IATPatcher struct {
	Library string
	dll     *windows.LazyDLL
}

// NewIATPatcher targets imports of the given system library, e.g. "user32.dll".
func NewIATPatcher(library string) *IATPatcher {
	return &IATPatcher{Library: library, dll: windows.NewLazySystemDLL(library)}
}

// CallOriginal invokes fn with the raw syscall calling convention.
func CallOriginal(fn uintptr, args ...uintptr) uintptr {
	r, _, _ := syscall.SyscallN(fn, args...)
	return r
}

func (p *IATPatcher) Resolve(name string) (uintptr, error) {
	proc := p.dll.NewProc(name)
	if err := proc.Find(); err != nil {
		return 0, fmt.Errorf("%s!%s: %w", p.Library, name, ErrNotFound)
	}
	return proc.Addr(), nil
}

type slotPatch struct {
	slots    []uintptr
	original uintptr
}

func (s *slotPatch) Restore() error {
	var firstErr error
	for _, slot := range s.slots {
		if err := writeSlot(slot, s.original); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *IATPatcher) Patch(name string, original, replacement uintptr) (Patch, error) {
	modules, err := loadedModules()
	if err != nil {
		return nil, err
	}

	patch := &slotPatch{original: original}
	for _, base := range modules {
		for _, slot := range importSlots(base, p.Library) {
			if *(*uintptr)(unsafe.Pointer(slot)) != original {
				continue
			}
			if err := writeSlot(slot, replacement); err != nil {
				patch.Restore()
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			patch.slots = append(patch.slots, slot)
		}
	}
	if len(patch.slots) == 0 {
		return nil, fmt.Errorf("%s: no import slot references it: %w", name, ErrNotFound)
	}
	return patch, nil
}

func loadedModules() ([]uintptr, error) {
	process := windows.CurrentProcess()
	handles := make([]windows.Handle, 256)
	for {
		var needed uint32
		size := uint32(len(handles)) * uint32(unsafe.Sizeof(handles[0]))
		if err := windows.EnumProcessModules(process, &handles[0], size, &needed); err != nil {
			return nil, fmt.Errorf("EnumProcessModules: %w", err)
		}
		count := int(needed / uint32(unsafe.Sizeof(handles[0])))
		if count <= len(handles) {
			out := make([]uintptr, count)
			for i := range out {
				out[i] = uintptr(handles[i])
			}
			return out, nil
		}
		handles = make([]windows.Handle, count)
	}
}

const (
	imageDirectoryEntryImport = 1
	pe32Magic                 = 0x10B
	pe32PlusMagic             = 0x20B
)

type imageImportDescriptor struct {
	OriginalFirstThunk uint32
	TimeDateStamp      uint32
	ForwarderChain     uint32
	Name               uint32
	FirstThunk         uint32
}

// importSlots walks the PE import directory of the module at base and
// returns the addresses of the IAT slots bound to library.
func importSlots(base uintptr, library string) []uintptr {
	if *(*uint16)(unsafe.Pointer(base)) != 0x5A4D { // MZ
		return nil
	}
	nt := base + uintptr(*(*int32)(unsafe.Pointer(base + 0x3C)))
	if *(*uint32)(unsafe.Pointer(nt)) != 0x00004550 { // PE\0\0
		return nil
	}
	optional := nt + 4 + 20
	var dirOffset uintptr
	switch *(*uint16)(unsafe.Pointer(optional)) {
	case pe32PlusMagic:
		dirOffset = 112
	case pe32Magic:
		dirOffset = 96
	default:
		return nil
	}
	dir := optional + dirOffset + imageDirectoryEntryImport*8
	rva := *(*uint32)(unsafe.Pointer(dir))
	if rva == 0 {
		return nil
	}

	var slots []uintptr
	for desc := base + uintptr(rva); ; desc += unsafe.Sizeof(imageImportDescriptor{}) {
		d := (*imageImportDescriptor)(unsafe.Pointer(desc))
		if d.Name == 0 {
			break
		}
		name := windows.BytePtrToString((*byte)(unsafe.Pointer(base + uintptr(d.Name))))
		if !strings.EqualFold(name, library) {
			continue
		}
		for slot := base + uintptr(d.FirstThunk); *(*uintptr)(unsafe.Pointer(slot)) != 0; slot += unsafe.Sizeof(uintptr(0)) {
			slots = append(slots, slot)
		}
	}
	return slots
}

func writeSlot(slot, value uintptr) error {
	var old uint32
	size := unsafe.Sizeof(uintptr(0))
	if err := windows.VirtualProtect(slot, size, windows.PAGE_READWRITE, &old); err != nil {
		return fmt.Errorf("VirtualProtect: %w", err)
	}
	*(*uintptr)(unsafe.Pointer(slot)) = value
	var ignored uint32
	windows.VirtualProtect(slot, size, old, &ignored)
	return nil
}
