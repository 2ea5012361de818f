// Package x64 is the x86-64 general-purpose instance of
// target.Description: 16 general-purpose registers, RSP and RBP
// permanently reserved for the stack/frame pointer, every register
// treated as able to hold any width (the encoder only ever emits the
// 64-bit and 32-bit forms it needs). The calling convention that maps
// argument/result values onto these registers is pkg/abi's concern, not
// this package's.
package x64

import (
	"github.com/oisee/codegen/pkg/ir"
	"github.com/oisee/codegen/pkg/target"
)

// Physical register numbering, matching the x86-64 ModRM/REX encoding
// order so pkg/x64enc can use target.Reg directly as an encoding field.
const (
	RAX target.Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15

	numRegs = 16
)

// Register classes. In this narrow target every general-purpose
// register supports every width view of itself, so ClassQword is the
// only class GetFree ever allocates against; ClassDword/Word/Byte exist
// so callers can express a width request without the allocator needing
// a separate notion of "the same register at a different width".
const (
	ClassQword target.Class = iota
	ClassDword
	ClassWord
	ClassByte
)

var reserved = [numRegs]bool{RSP: true, RBP: true}

// X64 is a target.Description for the x86-64 general-purpose register
// file.
type X64 struct {
	busy [numRegs]bool
}

// New returns an X64 with RSP and RBP reserved and every other register
// free.
func New() *X64 {
	x := &X64{}
	x.Reset()
	return x
}

func (x *X64) N() int { return numRegs - 2 }

func (x *X64) GetFree(class target.Class) (target.Reg, bool) {
	for r := target.Reg(0); r < numRegs; r++ {
		if !x.busy[r] {
			x.busy[r] = true
			return r, true
		}
	}
	return 0, false
}

func (x *X64) Occupy(reg target.Reg) bool {
	if reserved[reg] || x.busy[reg] {
		return false
	}
	x.busy[reg] = true
	return true
}

// GetCompatible is identical to GetFree here: every unreserved register
// is compatible with every class, so there is no fallback tier below
// the perfect one.
func (x *X64) GetCompatible(class target.Class) (target.Reg, bool) {
	return x.GetFree(class)
}

func (x *X64) IsPerfect(class target.Class, reg target.Reg) bool {
	return !reserved[reg]
}

func (x *X64) IsCompatible(class target.Class, reg target.Reg) bool {
	return !reserved[reg]
}

func (x *X64) Forget(reg target.Reg) {
	if !reserved[reg] {
		x.busy[reg] = false
	}
}

func (x *X64) Reset() {
	for r := target.Reg(0); r < numRegs; r++ {
		x.busy[r] = reserved[r]
	}
}

// Remap realizes mapping (from -> to, for every from that must move to
// a different register) as a minimal RMove/RSwap sequence.
//
// Moves whose destination register isn't itself awaiting eviction
// resolve directly as RMove. What's left after that pass are disjoint
// permutation cycles; each is broken by swapping one of its edges, which
// either resolves it outright (a 2-cycle) or turns it into a shorter
// chain the same resolution loop finishes off.
func (x *X64) Remap(gen target.Emitter, mapping map[target.Reg]target.Reg) {
	pending := map[target.Reg]target.Reg{}
	for from, to := range mapping {
		if from != to {
			pending[from] = to
		}
	}

	for len(pending) > 0 {
		progressed := true
		for progressed {
			progressed = false
			for from, to := range pending {
				if _, stillOwed := pending[to]; !stillOwed {
					gen.Emit(ir.RMove, ir.Word(to), ir.Word(from))
					delete(pending, from)
					progressed = true
				}
			}
		}
		if len(pending) == 0 {
			break
		}

		var from, to target.Reg
		for f, t := range pending {
			from, to = f, t
			break
		}
		gen.Emit(ir.RSwap, ir.Word(from), ir.Word(to))
		delete(pending, from)
		if next, ok := pending[to]; ok {
			delete(pending, to)
			if next != from {
				pending[from] = next
			}
		}
	}
}
