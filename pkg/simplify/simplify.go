// Package simplify implements the constant-folding, dead-code,
// common-subexpression, and branch-elimination pass over an *ir.Code.
package simplify

import (
	"github.com/oisee/codegen/pkg/ir"
	"github.com/oisee/codegen/pkg/ir/remap"
	"github.com/oisee/codegen/pkg/ir/sema"
)

// Run repeats {liveness in reverse} -> {fold and rewrite forward} up to
// iterations times, returning as soon as a pass produces no textual
// change.
func Run(c *ir.Code, iterations int) *ir.Code {
	cur := c
	for i := 0; i < iterations; i++ {
		keep, eraseMove := liveness(cur)
		next := fold(cur, keep, eraseMove)
		changed := ir.Render(next) != ir.Render(cur)
		cur = next
		if !changed {
			break
		}
	}
	return cur
}

func isInherentEffect(op ir.OpCode) bool {
	switch op {
	case ir.St, ir.Invoke, ir.Enter, ir.Exit,
		ir.Label, ir.Mark, ir.Jump, ir.Branch,
		ir.Forever, ir.Repeat, ir.Skip, ir.SkipIf, ir.Here,
		ir.RMove, ir.RSwap:
		return true
	}
	return false
}

// liveness computes, for every node, whether it survives into the folded
// output (keep), and for every Move node specifically, whether it is a
// dead store whose destination temp should instead alias straight to its
// source (eraseMove).
//
// deadUntil is the dead-code inhibitor: a stack of Skip positions whose
// body is unconditionally unreachable. A bare Skip (unlike SkipIf) has
// no condition at all, so its body never executes on any path; nothing
// in it needs to stay "kept" just because it's an effect. Scanning in
// reverse, a Here closing such a Skip pushes the Skip's position before
// its body is visited and pops it back off on reaching the Skip itself,
// so every node strictly between the two sees inDead true. Only the
// isInherentEffect override is gated on it — Move keeps its existing
// read-based erase/keep decision untouched, since erasing a Move aliases
// its destination straight to its source, which requires the source to
// already have a mapping; forcing that inside a dead region without
// knowing the source is otherwise kept would risk aliasing to a position
// liveness never marked live. Leaving a dead region's Move nodes
// unpruned is conservative, not incorrect: they're inert, unreachable
// code regardless.
func liveness(c *ir.Code) (keep map[ir.Pos]bool, eraseMove map[ir.Pos]bool) {
	keep = map[ir.Pos]bool{}
	eraseMove = map[ir.Pos]bool{}
	readSince := map[ir.Pos]bool{}
	var deadUntil []ir.Pos

	markRead := func(p ir.Pos) {
		keep[p] = true
		readSince[p] = true
	}

	// A loop body's write can be read on the next trip, above it in program
	// order, so at each Repeat every position read anywhere counts as read.
	readAnywhere := map[ir.Pos]bool{}
	ir.Pass(c, ir.VisitFunc(func(v ir.View) {
		for i, a := range v.Args {
			if v.Op.ArgIsRef(i) && !(v.Op.WritesArg0() && i == 0) {
				readAnywhere[ir.Pos(a)] = true
			}
		}
	}))
	ir.RPass(c, ir.VisitFunc(func(v ir.View) {
		if v.Op == ir.Repeat {
			for p := range readAnywhere {
				readSince[p] = true
			}
		}
		if v.Op == ir.Here && c.NodeAt(v.Ref(0)).Op == ir.Skip {
			deadUntil = append(deadUntil, v.Ref(0))
		}
		if n := len(deadUntil); n > 0 && v.Pos == deadUntil[n-1] {
			deadUntil = deadUntil[:n-1]
		}
		inDead := len(deadUntil) > 0

		if v.Op == ir.Move {
			dst := v.Ref(0)
			src := v.Ref(1)
			rvalWrite := c.NodeAt(dst).Op == ir.RVal
			if readSince[dst] || rvalWrite {
				keep[v.Pos] = true
				keep[dst] = true
				markRead(src)
			} else {
				eraseMove[v.Pos] = true
			}
			readSince[dst] = false
			return
		}
		if isInherentEffect(v.Op) && !inDead {
			keep[v.Pos] = true
		}
		if keep[v.Pos] {
			for i, a := range v.Args {
				if !v.Op.ArgIsRef(i) {
					continue
				}
				if v.Op.WritesArg0() && i == 0 {
					continue
				}
				markRead(ir.Pos(a))
			}
		}
	}))
	return
}

type cseKey struct {
	op   ir.OpCode
	a, b ir.Pos
}

// fold drives the forward phase: constant propagation, CSE, unary
// collapse, dead-Move erasure, and branch elimination, through a
// remap.Remapper.
func fold(c *ir.Code, keep map[ir.Pos]bool, eraseMove map[ir.Pos]bool) *ir.Code {
	r := remap.New(c)
	exprCache := map[cseKey]ir.Pos{}
	constEnv := map[ir.Pos]int64{}
	erasedSkip := map[ir.Pos]bool{}

	resetCache := func() { exprCache = map[cseKey]ir.Pos{} }

	ir.Pass(c, ir.VisitFunc(func(v ir.View) {
		switch v.Op {
		case ir.Move:
			if eraseMove[v.Pos] {
				dst := v.Ref(0)
				src := v.Ref(1)
				// A source liveness did not keep has no mapping; nothing
				// kept reads dst after this Move either, so no alias is needed.
				if np, ok := r.Mapped(src); ok {
					r.Alias(dst, np)
				}
				return
			}
			r.Forward(v)
			return

		case ir.SkipIf:
			if cv, ok := constEnv[v.Ref(0)]; ok {
				if cv != 0 {
					newPos := r.Emit(ir.Skip)
					r.Alias(v.Pos, newPos)
				} else {
					erasedSkip[v.Pos] = true
				}
				resetCache()
				return
			}
			r.Forward(v)
			resetCache()
			return

		case ir.Here:
			if erasedSkip[v.Ref(0)] {
				resetCache()
				return
			}
			r.Forward(v)
			resetCache()
			return

		case ir.Skip, ir.Forever, ir.Repeat, ir.Exit:
			r.Forward(v)
			resetCache()
			return
		}

		if v.Op == ir.Not || v.Op == ir.Neg {
			inner := c.NodeAt(v.Ref(0))
			if inner.Op == v.Op {
				r.Alias(v.Pos, r.Map(inner.Ref(0)))
				return
			}
		}

		if v.Op.IsPure() && (v.Op.Category() == ir.CatArith || v.Op.Category() == ir.CatCompare) {
			if val, ok := tryFold(c, v, constEnv); ok {
				newPos := r.Emit(ir.Imm, ir.Word(val))
				r.Alias(v.Pos, newPos)
				constEnv[v.Pos] = val
				return
			}
		}

		if v.Op == ir.Imm {
			constEnv[v.Pos] = int64(v.Arg(0))
		}
		if (v.Op == ir.Cast || v.Op == ir.Conv) && len(v.Args) == 2 {
			if val, ok := constEnv[v.Ref(1)]; ok {
				constEnv[v.Pos] = val
			}
		}

		if !keep[v.Pos] {
			return
		}

		if v.Op.IsPure() && len(v.Args) == 2 && (v.Op.Category() == ir.CatArith || v.Op.Category() == ir.CatCompare) {
			key := cseKey{v.Op, r.Map(v.Ref(0)), r.Map(v.Ref(1))}
			if cached, ok := exprCache[key]; ok {
				r.Alias(v.Pos, cached)
				return
			}
			newPos := r.Forward(v)
			exprCache[key] = newPos
			return
		}

		r.Forward(v)
	}))
	return r.New
}

func tryFold(c *ir.Code, v ir.View, constEnv map[ir.Pos]int64) (int64, bool) {
	signed, _ := sema.Sign(c, v.Ref(0))
	switch len(v.Args) {
	case 1:
		a, ok := constEnv[v.Ref(0)]
		if !ok {
			return 0, false
		}
		return foldConst(v.Op, a, 0, signed)
	case 2:
		a, aok := constEnv[v.Ref(0)]
		b, bok := constEnv[v.Ref(1)]
		if !aok || !bok {
			return 0, false
		}
		return foldConst(v.Op, a, b, signed)
	}
	return 0, false
}

func foldConst(op ir.OpCode, a, b int64, signed bool) (int64, bool) {
	switch op {
	case ir.Add:
		return a + b, true
	case ir.Sub:
		return a - b, true
	case ir.Mul:
		return a * b, true
	case ir.Div:
		if b == 0 {
			return 0, false
		}
		if signed {
			return a / b, true
		}
		return int64(uint64(a) / uint64(b)), true
	case ir.And:
		return a & b, true
	case ir.Or:
		return a | b, true
	case ir.Xor:
		return a ^ b, true
	case ir.Neg:
		return -a, true
	case ir.Not:
		return ^a, true
	case ir.Eq:
		return boolInt(a == b), true
	case ir.Neq:
		return boolInt(a != b), true
	case ir.Lt:
		if signed {
			return boolInt(a < b), true
		}
		return boolInt(uint64(a) < uint64(b)), true
	case ir.Lte:
		if signed {
			return boolInt(a <= b), true
		}
		return boolInt(uint64(a) <= uint64(b)), true
	case ir.Gt:
		if signed {
			return boolInt(a > b), true
		}
		return boolInt(uint64(a) > uint64(b)), true
	case ir.Gte:
		if signed {
			return boolInt(a >= b), true
		}
		return boolInt(uint64(a) >= uint64(b)), true
	}
	return 0, false
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
