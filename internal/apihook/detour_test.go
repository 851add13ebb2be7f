package apihook

import (
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAbsJump(t *testing.T) {
	b := absJump(0x7FFE1234)
	require.Len(t, b, jumpSize)
	assert.Equal(t, []byte{0xFF, 0x25, 0, 0, 0, 0}, b[:6])
	assert.Equal(t, uint64(0x7FFE1234), binary.LittleEndian.Uint64(b[6:]))
}

func TestRelocatePrologueRewritesRelativeOperands(t *testing.T) {
	code := []byte{
		0x48, 0x8B, 0x05, 0x10, 0x00, 0x00, 0x00, // mov rax, [rip+0x10]
		0x48, 0x83, 0xEC, 0x28, // sub rsp, 0x28
		0xE8, 0x00, 0x01, 0x00, 0x00, // call +0x100
		0x90, 0x90, 0xC3,
	}

	got, err := relocatePrologue(code, 0x10000, 0x20000, jumpSize)
	require.NoError(t, err)

	assert.Equal(t, []byte{
		0x48, 0x8B, 0x05, 0x10, 0x00, 0xFF, 0xFF,
		0x48, 0x83, 0xEC, 0x28,
		0xE8, 0x00, 0x01, 0xFF, 0xFF,
	}, got)
}

func TestRelocatePrologueTakesWholeInstructions(t *testing.T) {
	code := []byte{
		0x48, 0x89, 0x5C, 0x24, 0x08, // mov [rsp+8], rbx
		0x57,                   // push rdi
		0x48, 0x83, 0xEC, 0x20, // sub rsp, 0x20
		0x8B, 0xD9, // mov ebx, ecx
		0xB9, 0x01, 0x00, 0x00, 0x00, // mov ecx, 1
		0xC3,
	}

	got, err := relocatePrologue(code, 0x10000, 0x90000, jumpSize)
	require.NoError(t, err)
	assert.Equal(t, code[:17], got)
}

func TestRelocatePrologueRejects(t *testing.T) {
	cases := map[string][]byte{
		"short branch": {0x74, 0x05, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90},
		"early return": {0x31, 0xC0, 0xC3, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC},
		"padding":      {0x90, 0x90, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC, 0xCC},
		"too short":    {0x90, 0x90, 0x90},
	}
	for name, code := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := relocatePrologue(code, 0x10000, 0x20000, jumpSize)
			assert.ErrorIs(t, err, ErrUnrelocatable)
		})
	}
}

func TestRelocatePrologueOutOfReach(t *testing.T) {
	if unsafe.Sizeof(uintptr(0)) < 8 {
		t.Skip("needs a 64-bit address space")
	}
	far := uint64(0x7FFF00000000)
	code := []byte{
		0x48, 0x8B, 0x05, 0x10, 0x00, 0x00, 0x00,
		0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0xC3,
	}
	_, err := relocatePrologue(code, 0x10000, uintptr(far), jumpSize)
	assert.ErrorIs(t, err, ErrUnrelocatable)
}

type fakeMemory map[uintptr][]byte

func (m fakeMemory) bytes(addr uintptr, n int) []byte {
	b := append([]byte(nil), m[addr]...)
	for len(b) < n {
		b = append(b, 0x90)
	}
	return b[:n]
}

func (m fakeMemory) pointer(addr uintptr) uintptr {
	return uintptr(binary.LittleEndian.Uint32(m.bytes(addr, 4)))
}

func TestSkipThunks(t *testing.T) {
	mem := fakeMemory{
		0x1000: {0xE9, 0xFB, 0x0F, 0x00, 0x00},             // jmp 0x2000
		0x2000: {0xFF, 0x25, 0xFA, 0x0F, 0x00, 0x00},       // jmp [0x3000]
		0x3000: {0x00, 0x40, 0x00, 0x00},                   // -> 0x4000
		0x4000: {0x48, 0x89, 0x5C, 0x24, 0x08},             // body
		0x5000: {0x48, 0xFF, 0x25, 0xF9, 0xDF, 0xFF, 0xFF}, // rex.w jmp [0x3000]
	}

	assert.Equal(t, uintptr(0x4000), skipThunks(mem, 0x1000))
	assert.Equal(t, uintptr(0x4000), skipThunks(mem, 0x5000))
	assert.Equal(t, uintptr(0x4000), skipThunks(mem, 0x4000))
}
