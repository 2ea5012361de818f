// Package x64enc is a narrow x86-64 instruction encoder: exactly the
// subset of instructions the register allocator and ABI shim in this
// repository can emit, not a general-purpose assembler.
package x64enc

import (
	"encoding/binary"
	"fmt"

	"github.com/oisee/codegen/pkg/target"
)

// Cond is a jump condition, one ModRM-free byte suffix away from its
// Jcc opcode.
type Cond byte

const (
	CondE  Cond = 0x84 // ZF=1
	CondNE Cond = 0x85
	CondL  Cond = 0x8C // signed <
	CondLE Cond = 0x8E
	CondG  Cond = 0x8F
	CondGE Cond = 0x8D
	CondB  Cond = 0x82 // unsigned <
	CondBE Cond = 0x86
	CondA  Cond = 0x87
	CondAE Cond = 0x83
)

// group1 is the ModRM /digit extension for the six ALU immediate-form
// opcodes (0x81 /digit).
type group1 byte

const (
	g1Add group1 = 0
	g1Or  group1 = 1
	g1And group1 = 4
	g1Sub group1 = 5
	g1Xor group1 = 6
	g1Cmp group1 = 7
)

type fixup struct {
	at    int // byte offset of the 4-byte rel32 field to patch
	label string
}

// Assembler accumulates a text section and a set of pending label
// references, and resolves every reference to a concrete rel32 once all
// labels are known.
//
// Every branch/call here is encoded rel32; there is no rel8 short form
// and therefore no need for the fixed-point instruction-length
// resolution a full assembler would run (length never depends on a
// not-yet-known displacement width) — see DESIGN.md.
type Assembler struct {
	buf     []byte
	labels  map[string]int
	fixups  []fixup
	lastErr error
}

// New returns an empty Assembler.
func New() *Assembler {
	return &Assembler{labels: map[string]int{}}
}

func (a *Assembler) fail(err error) {
	if a.lastErr == nil {
		a.lastErr = err
	}
}

func rex(w bool, r, x, b target.Reg) byte {
	v := byte(0x40)
	if w {
		v |= 0x08
	}
	if r >= 8 {
		v |= 0x04
	}
	if x >= 8 {
		v |= 0x02
	}
	if b >= 8 {
		v |= 0x01
	}
	return v
}

func modrmDirect(regField, rm target.Reg) byte {
	return 0xC0 | byte(regField&7)<<3 | byte(rm&7)
}

func modrmDigitDirect(digit byte, rm target.Reg) byte {
	return 0xC0 | (digit&7)<<3 | byte(rm&7)
}

// Label marks the current text offset with name, for later Jmp/Jcc/Call
// references. Defining the same label twice is an error.
func (a *Assembler) Label(name string) {
	if _, exists := a.labels[name]; exists {
		a.fail(fmt.Errorf("x64enc: label %q defined twice", name))
		return
	}
	a.labels[name] = len(a.buf)
}

// MovRegImm32 emits mov r64, imm32 (sign-extended), the narrow subset of
// the immediate-load form this encoder supports.
func (a *Assembler) MovRegImm32(dst target.Reg, imm int32) {
	a.buf = append(a.buf, rex(true, 0, 0, dst), 0xC7, modrmDigitDirect(0, dst))
	a.appendImm32(imm)
}

// MovRegReg emits mov dst, src (both 64-bit general registers).
func (a *Assembler) MovRegReg(dst, src target.Reg) {
	a.buf = append(a.buf, rex(true, src, 0, dst), 0x89, modrmDirect(src, dst))
}

// MovLoadDisp / MovStoreDisp: RBP-relative spill/fill traffic. This
// narrow encoder only supports an RBP base (the frame pointer), not an
// arbitrary SIB-addressed base.
func (a *Assembler) MovStoreDisp(disp int32, src target.Reg) {
	a.movDisp(true, disp, src)
}

func (a *Assembler) MovLoadDisp(dst target.Reg, disp int32) {
	a.movDisp(false, disp, dst)
}

func (a *Assembler) movDisp(store bool, disp int32, reg target.Reg) {
	const rbp = target.Reg(5)
	var opcode byte = 0x8B // load: mov r64, r/m64
	regField, rmField := reg, rbp
	if store {
		opcode = 0x89 // store: mov r/m64, r64
	}
	a.buf = append(a.buf, rex(true, regField, 0, rmField), opcode, 0x80|byte(regField&7)<<3|byte(rmField&7))
	a.appendImm32(disp)
}

// Arith emits a reg-reg ALU op: add/sub/and/or/xor/cmp dst, src.
func (a *Assembler) Arith(op group1, dst, src target.Reg) {
	opcode, ok := arithRegOpcode(op)
	if !ok {
		a.fail(fmt.Errorf("x64enc: unsupported arithmetic op %d", op))
		return
	}
	a.buf = append(a.buf, rex(true, src, 0, dst), opcode, modrmDirect(src, dst))
}

func arithRegOpcode(op group1) (byte, bool) {
	switch op {
	case g1Add:
		return 0x01, true
	case g1Or:
		return 0x09, true
	case g1And:
		return 0x21, true
	case g1Sub:
		return 0x29, true
	case g1Xor:
		return 0x31, true
	case g1Cmp:
		return 0x39, true
	}
	return 0, false
}

// ArithImm32 emits an ALU-immediate op: add/sub/and/or/xor/cmp dst, imm32.
func (a *Assembler) ArithImm32(op group1, dst target.Reg, imm int32) {
	a.buf = append(a.buf, rex(true, 0, 0, dst), 0x81, modrmDigitDirect(byte(op), dst))
	a.appendImm32(imm)
}

// Neg / Not emit the unary two-register-free ALU forms.
func (a *Assembler) Neg(reg target.Reg) {
	a.buf = append(a.buf, rex(true, 0, 0, reg), 0xF7, modrmDigitDirect(3, reg))
}

func (a *Assembler) Not(reg target.Reg) {
	a.buf = append(a.buf, rex(true, 0, 0, reg), 0xF7, modrmDigitDirect(2, reg))
}

// Jmp emits an unconditional rel32 jump to label, resolved at Resolve.
func (a *Assembler) Jmp(label string) {
	a.buf = append(a.buf, 0xE9)
	a.addFixup(label)
	a.appendImm32(0)
}

// Jcc emits a conditional rel32 jump to label.
func (a *Assembler) Jcc(cond Cond, label string) {
	a.buf = append(a.buf, 0x0F, byte(cond))
	a.addFixup(label)
	a.appendImm32(0)
}

// Call emits a rel32 call to label.
func (a *Assembler) Call(label string) {
	a.buf = append(a.buf, 0xE8)
	a.addFixup(label)
	a.appendImm32(0)
}

// Ret emits a near return.
func (a *Assembler) Ret() { a.buf = append(a.buf, 0xC3) }

// Push / Pop emit the single-byte-opcode-plus-register forms.
func (a *Assembler) Push(reg target.Reg) {
	if reg >= 8 {
		a.buf = append(a.buf, 0x41)
	}
	a.buf = append(a.buf, 0x50+byte(reg&7))
}

func (a *Assembler) Pop(reg target.Reg) {
	if reg >= 8 {
		a.buf = append(a.buf, 0x41)
	}
	a.buf = append(a.buf, 0x58+byte(reg&7))
}

func (a *Assembler) addFixup(label string) {
	// the 4-byte rel32 field begins right after the bytes already
	// appended for this instruction's opcode
	a.fixups = append(a.fixups, fixup{at: len(a.buf), label: label})
}

func (a *Assembler) appendImm32(v int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	a.buf = append(a.buf, b[:]...)
}

// Resolve patches every pending label reference and returns the final
// text bytes. It fails if any referenced label was never defined.
func (a *Assembler) Resolve() ([]byte, error) {
	if a.lastErr != nil {
		return nil, a.lastErr
	}
	for _, fx := range a.fixups {
		targetOff, ok := a.labels[fx.label]
		if !ok {
			return nil, fmt.Errorf("x64enc: undefined label %q", fx.label)
		}
		rel := int32(targetOff - (fx.at + 4))
		binary.LittleEndian.PutUint32(a.buf[fx.at:fx.at+4], uint32(rel))
	}
	return a.buf, nil
}

// Group1 opcode-digit constants re-exported for callers selecting an ALU
// operation by name.
const (
	Add = g1Add
	Or  = g1Or
	And = g1And
	Sub = g1Sub
	Xor = g1Xor
	Cmp = g1Cmp
)

// Group1 is the exported alias for the unexported group1 type, so
// callers outside this package can hold a value of the right type.
type Group1 = group1
