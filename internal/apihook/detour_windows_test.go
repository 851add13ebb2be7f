//go:build windows && amd64

package apihook

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/windows"
)

// executable places code in fresh executable memory.
func executable(t *testing.T, code []byte) uintptr {
	t.Helper()
	addr, err := windows.VirtualAlloc(0, uintptr(len(code)), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_EXECUTE_READWRITE)
	require.NoError(t, err)
	copy(processMemory{}.bytes(addr, len(code)), code)
	flushCode(addr, len(code))
	return addr
}

func call(fn uintptr) uintptr {
	r, _, _ := syscall.SyscallN(fn)
	return r
}

func TestDetourRedirectsEveryCaller(t *testing.T) {
	// mov eax, 7; nop x10; ret
	entry := executable(t, []byte{0xB8, 0x07, 0x00, 0x00, 0x00, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0xC3})
	// mov eax, 42; ret
	replacement := executable(t, []byte{0xB8, 0x2A, 0x00, 0x00, 0x00, 0xC3})

	patch, err := detour(entry, replacement)
	require.NoError(t, err)

	// Any holder of the entry address, however it got it, lands in the replacement.
	assert.Equal(t, uintptr(42), call(entry))
	assert.Equal(t, uintptr(7), call(patch.Trampoline()))

	require.NoError(t, patch.Restore())
	assert.Equal(t, uintptr(7), call(entry))
}

func TestDetourPatcherThroughTable(t *testing.T) {
	entry := executable(t, []byte{0xB8, 0x07, 0x00, 0x00, 0x00, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0xC3})
	replacement := executable(t, []byte{0xB8, 0x2A, 0x00, 0x00, 0x00, 0xC3})

	p := NewDetourPatcher("user32.dll")
	patch, err := p.Patch("Fixture", entry, replacement)
	require.NoError(t, err)
	_, ok := patch.(Trampoline)
	assert.True(t, ok, "inline patch on amd64")

	assert.Equal(t, uintptr(42), CallOriginal(entry))
	require.NoError(t, patch.Restore())
	assert.Equal(t, uintptr(7), CallOriginal(entry))
}
