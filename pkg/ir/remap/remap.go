// Package remap implements the identity-preserving IR copier every
// transform in this module is built on. A transform reads one *ir.Code
// via ir.Pass/ir.RPass and writes a new one through a Remapper, which
// tracks how old positions map to new ones so that cross-references
// survive nodes being dropped, added, or reordered.
package remap

import (
	"fmt"

	"github.com/oisee/codegen/pkg/ir"
)

// Remapper maintains the old-position -> new-position mapping for one
// transform pass.
type Remapper struct {
	Old *ir.Code
	New *ir.Code

	at          map[ir.Pos]ir.Pos
	nextVirtual ir.Pos
}

// New creates a Remapper reading from old and writing into a fresh Code.
func New(old *ir.Code) *Remapper {
	return &Remapper{
		Old:         old,
		New:         ir.NewCode(),
		at:          make(map[ir.Pos]ir.Pos),
		nextVirtual: -1,
	}
}

// Virtual mints a fresh synthetic old-position for a helper node that has
// no source counterpart, so Alias/Map have something to key on. Virtual
// positions are always negative and never collide with a real old
// position (which is always >= 0).
func (r *Remapper) Virtual() ir.Pos {
	p := r.nextVirtual
	r.nextVirtual--
	return p
}

// Map translates an old position (real or virtual) to its current new
// position. Because argument references are strictly backward, by the
// time a node cites old, old must already have been Forwarded or Aliased.
func (r *Remapper) Map(old ir.Pos) ir.Pos {
	np, ok := r.at[old]
	if !ok {
		panic(fmt.Sprintf("remap: position %d has no mapping yet", old))
	}
	return np
}

// Mapped reports whether old already has a mapping, without panicking.
func (r *Remapper) Mapped(old ir.Pos) (ir.Pos, bool) {
	np, ok := r.at[old]
	return np, ok
}

// Alias records that references to oldPos should resolve to newPos
// directly, without oldPos itself ever being forwarded. Dead-temp
// elimination uses this: a Move(t, v) that is erased aliases t's old
// position straight to v's new position, so every later use of t is
// silently rewritten to v.
func (r *Remapper) Alias(oldPos, newPos ir.Pos) {
	r.at[oldPos] = newPos
}

// Forward re-emits v into New, translating every node-reference argument
// through the mapping, and records the old->new position for v. Callers
// must invoke Forward (or Alias) for v.Pos before any later node that
// references it is processed — satisfied automatically by driving the
// transform with ir.Pass in ascending position order.
func (r *Remapper) Forward(v ir.View) ir.Pos {
	args := make([]ir.Word, len(v.Args))
	for i, a := range v.Args {
		if v.Op.ArgIsRef(i) {
			args[i] = ir.Word(r.Map(ir.Pos(a)))
		} else {
			args[i] = a
		}
	}
	np := r.New.Append(v.Op, args...)
	r.at[v.Pos] = np
	return np
}

// Emit appends a node directly into New using already-translated (new)
// argument positions, for a helper node synthesized with no old-position
// source of its own. Pair with Virtual+Alias when later old nodes need to
// reference the synthesized node.
func (r *Remapper) Emit(op ir.OpCode, args ...ir.Word) ir.Pos {
	return r.New.Append(op, args...)
}
