// Package target describes one architecture's register file to the
// allocator, behind an interface so a second architecture can be added
// without touching pkg/regalloc.
package target

import "github.com/oisee/codegen/pkg/ir"

// Reg identifies one physical register. Its meaning is target-specific.
type Reg int

// Class identifies a request for a register: either a specific register
// or a group (e.g. "any qword-width general-purpose register").
type Class int

// Emitter is the subset of pkg/ir/remap.Remapper that Description.Remap
// needs: append a node, get back its new position.
type Emitter interface {
	Emit(op ir.OpCode, args ...ir.Word) ir.Pos
}

// Description is one architecture's register-file view, as consumed by
// pkg/regalloc. Registers reserved by the ABI (stack/frame pointer) are
// permanently unavailable to GetFree/GetCompatible.
type Description interface {
	// N is the maximum number of variables the allocator may keep live at
	// once — at least the number of available physical registers.
	N() int

	// GetFree allocates a register matching class exactly, or reports
	// false if none is free.
	GetFree(class Class) (Reg, bool)

	// Occupy marks a specific register busy, for imprinting an externally
	// held allocation (a Regmap snapshot) onto this target before
	// continuing to allocate around it. Reports false if reg was already
	// busy or is reserved.
	Occupy(reg Reg) bool

	// GetCompatible is as GetFree, but falls back to any register that can
	// hold the value even if it isn't a perfect match for class.
	GetCompatible(class Class) (Reg, bool)

	// IsPerfect reports whether reg exactly satisfies class.
	IsPerfect(class Class, reg Reg) bool

	// IsCompatible reports whether reg can hold a value of class at all.
	IsCompatible(class Class, reg Reg) bool

	// Forget releases reg back to the free pool.
	Forget(reg Reg)

	// Reset marks every non-reserved register free.
	Reset()

	// Remap emits, via gen, a minimal RMove/RSwap sequence realizing the
	// requested register permutation (mapping[from] = to for every from
	// that must move), using permutation-cycle decomposition: moves whose
	// destination is not itself awaiting eviction resolve first; each
	// remaining cycle is broken with one RSwap and then re-resolved.
	Remap(gen Emitter, mapping map[Reg]Reg)
}
