// Package sema is the read-only semantics projection over a code object
// and a position: type-of, is-kind-of, sign, width, and constant value.
// Queries are short, side-effect-free, and short-circuit on the first
// match — none of them walk the whole program.
package sema

import "github.com/oisee/codegen/pkg/ir"

// TypeOf walks through Reg, Temp, Cast, Conv, and arithmetic to the root
// type node describing pos's value type.
func TypeOf(c *ir.Code, pos ir.Pos) ir.Pos {
	if pos == ir.InvalidPos {
		return ir.InvalidPos
	}
	v := c.NodeAt(pos)
	switch v.Op {
	case ir.Int, ir.Ptr, ir.Fun:
		return pos // already a type node
	case ir.Reg:
		return TypeOf(c, v.Ref(0))
	case ir.Temp:
		return v.Ref(0)
	case ir.Cast, ir.Conv:
		return v.Ref(0)
	case ir.Arg:
		fn := v.Ref(0)
		k := int(v.Arg(1))
		ft := funTypeOf(c, fn)
		ftv := c.NodeAt(ft)
		idx := 2 + k // Fun(cc, rty, argtys...)
		if idx < len(ftv.Args) {
			return ftv.Ref(idx)
		}
		return ir.InvalidPos
	case ir.RVal:
		ft := c.NodeAt(funTypeOf(c, v.Ref(0)))
		return ft.Ref(1) // rty
	case ir.Add, ir.Sub, ir.Mul, ir.Div, ir.And, ir.Or, ir.Xor, ir.Neg, ir.Not:
		return TypeOf(c, v.Ref(0))
	case ir.Eq, ir.Neq, ir.Lt, ir.Lte, ir.Gt, ir.Gte:
		// Comparisons don't carry their own type node in this IR; callers
		// that need operand typing should TypeOf one of the operands.
		return ir.InvalidPos
	default:
		return ir.InvalidPos
	}
}

// funTypeOf resolves an Enter(funtype) position to its Fun(...) type node.
func funTypeOf(c *ir.Code, enterPos ir.Pos) ir.Pos {
	return c.NodeAt(enterPos).Ref(0)
}

// IsKindOf reports whether pos's opcode belongs to category cat.
func IsKindOf(c *ir.Code, pos ir.Pos, cat ir.Category) bool {
	return c.NodeAt(pos).Op.Category() == cat
}

// Width returns the bit width of pos's integer type, if it has one.
func Width(c *ir.Code, pos ir.Pos) (bits int, ok bool) {
	t := TypeOf(c, pos)
	if t == ir.InvalidPos {
		return 0, false
	}
	tv := c.NodeAt(t)
	if tv.Op != ir.Int {
		return 0, false
	}
	w := tv.Arg(0)
	if w < 0 {
		w = -w
	}
	return int(w), true
}

// Sign reports whether pos has a signed integer type.
func Sign(c *ir.Code, pos ir.Pos) (signed bool, ok bool) {
	t := TypeOf(c, pos)
	if t == ir.InvalidPos {
		return false, false
	}
	tv := c.NodeAt(t)
	if tv.Op != ir.Int {
		return false, false
	}
	return tv.Arg(0) < 0, true
}

// ConstOf returns the literal value of an Imm node, or ok=false for any
// other opcode. This is the raw per-node query; the simplifier maintains
// its own, broader constant environment across folds.
func ConstOf(c *ir.Code, pos ir.Pos) (v int64, ok bool) {
	node := c.NodeAt(pos)
	if node.Op != ir.Imm {
		return 0, false
	}
	return int64(node.Arg(0)), true
}
