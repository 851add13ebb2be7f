package apihook

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"golang.org/x/arch/x86/x86asm"
)

// jumpSize is the length of jmp qword ptr [rip+0] plus its 8-byte target.
const jumpSize = 14

// maxPrologue bounds how far past the entry point instructions are decoded.
const maxPrologue = 32

var ErrUnrelocatable = errors.New("prologue cannot be relocated")

// absJump encodes an absolute jump to dest that clobbers no register.
func absJump(dest uintptr) []byte {
	b := make([]byte, jumpSize)
	b[0], b[1] = 0xFF, 0x25
	binary.LittleEndian.PutUint64(b[6:], uint64(dest))
	return b
}

// relocatePrologue copies whole x86-64 instructions from code, which runs at
// from, until at least need bytes are covered. Rip-relative operands and
// near branches are rewritten so the copy behaves the same when run at to.
// The length of the result is the number of bytes taken from code.
func relocatePrologue(code []byte, from, to uintptr, need int) ([]byte, error) {
	var out []byte
	for len(out) < need {
		off := len(out)
		if off >= len(code) {
			return nil, fmt.Errorf("%w: fewer than %d bytes decoded", ErrUnrelocatable, need)
		}
		if code[off] == 0xCC {
			return nil, fmt.Errorf("%w: padding at +%d", ErrUnrelocatable, off)
		}
		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: decode at +%d: %v", ErrUnrelocatable, off, err)
		}
		end := off + inst.Len
		if end < need && (inst.Op == x86asm.RET || inst.Op == x86asm.JMP) {
			return nil, fmt.Errorf("%w: function leaves at +%d", ErrUnrelocatable, off)
		}

		raw := append([]byte(nil), code[off:end]...)
		switch inst.PCRel {
		case 0:
		case 4:
			disp := int64(int32(binary.LittleEndian.Uint32(raw[inst.PCRelOff:])))
			dest := int64(from) + int64(end) + disp
			moved := dest - (int64(to) + int64(end))
			if moved < math.MinInt32 || moved > math.MaxInt32 {
				return nil, fmt.Errorf("%w: operand at +%d out of range", ErrUnrelocatable, off)
			}
			binary.LittleEndian.PutUint32(raw[inst.PCRelOff:], uint32(int32(moved)))
		default:
			return nil, fmt.Errorf("%w: short branch at +%d", ErrUnrelocatable, off)
		}
		out = append(out, raw...)
	}
	return out, nil
}

// memory reads the address space the entry points live in.
type memory interface {
	bytes(addr uintptr, n int) []byte
	pointer(addr uintptr) uintptr
}

// skipThunks follows the jump stubs that forward an export to its body,
// such as user32 exports implemented in win32u.
func skipThunks(mem memory, addr uintptr) uintptr {
	for i := 0; i < 4; i++ {
		b := mem.bytes(addr, 7)
		switch {
		case b[0] == 0xE9:
			addr += 5 + uintptr(int64(int32(binary.LittleEndian.Uint32(b[1:5]))))
		case b[0] == 0xFF && b[1] == 0x25:
			addr = mem.pointer(addr + 6 + uintptr(int64(int32(binary.LittleEndian.Uint32(b[2:6])))))
		case b[0] == 0x48 && b[1] == 0xFF && b[2] == 0x25:
			addr = mem.pointer(addr + 7 + uintptr(int64(int32(binary.LittleEndian.Uint32(b[3:7])))))
		default:
			return addr
		}
	}
	return addr
}
