// Package rtl lowers an *ir.Code into register-transfer form: every
// operand the register allocator must assign a physical register to is
// wrapped in a Reg(temp, class) node, and a few operand positions the
// architecture can't encode directly are canonicalized.
package rtl

import (
	"github.com/oisee/codegen/pkg/ir"
	"github.com/oisee/codegen/pkg/ir/remap"
	"github.com/oisee/codegen/pkg/ir/sema"
	"github.com/oisee/codegen/pkg/target"
)

// ClassPicker chooses a register class for a value at pos, given its IR
// type as resolved by pkg/ir/sema. Each target supplies its own: x64's
// picker returns the qword class for every integer and pointer width
// this narrow encoder handles.
type ClassPicker func(c *ir.Code, pos ir.Pos) target.Class

// wrappable reports whether op writes or reads an allocator-visible
// register operand. Type constructors, goto/structured control, and
// framing nodes never hold register-allocated values directly.
func wrappable(op ir.OpCode) bool {
	switch op.Category() {
	case ir.CatArith, ir.CatCompare, ir.CatConvert, ir.CatMemEffect, ir.CatValueSource:
		return true
	}
	return false
}

// operandNeedsReg reports whether the node at pos is a value that must
// live in a register by the time the allocator sees it: Temp, Arg and
// RVal nodes (variables), but not Imm, not type nodes, and not a
// position that is already wrapped in Reg.
func operandNeedsReg(c *ir.Code, pos ir.Pos) bool {
	switch c.NodeAt(pos).Op {
	case ir.Temp, ir.Arg, ir.RVal:
		return true
	}
	return false
}

// WidthPicker builds a ClassPicker from an architecture's four
// width-tier classes, selecting one via pkg/ir/sema.Width. An operand
// whose width can't be determined (no type node reachable, e.g. a
// comparison result) defaults to qword — the widest, always-safe choice
// on a register file where every register holds every narrower width.
func WidthPicker(qword, dword, word, byteCls target.Class) ClassPicker {
	return func(c *ir.Code, pos ir.Pos) target.Class {
		bits, ok := sema.Width(c, pos)
		if !ok {
			return qword
		}
		switch {
		case bits > 32:
			return qword
		case bits > 16:
			return dword
		case bits > 8:
			return word
		default:
			return byteCls
		}
	}
}

// Lower rewrites c, inserting Reg(temp, class) wrappers and
// canonicalizing Mul(imm, x) to Mul(x, imm).
func Lower(c *ir.Code, pick ClassPicker) (*ir.Code, error) {
	r := remap.New(c)

	ir.Pass(c, ir.VisitFunc(func(v ir.View) {
		if !wrappable(v.Op) {
			r.Forward(v)
			return
		}

		// Mul(imm, x) -> Mul(x, imm): canonicalize before wrapping so the
		// operand-needs-reg decision below sees the final operand order.
		args := v.Args
		if v.Op == ir.Mul && len(args) == 2 {
			lhs, rhs := c.NodeAt(v.Ref(0)), c.NodeAt(v.Ref(1))
			if lhs.Op == ir.Imm && rhs.Op != ir.Imm {
				args = []ir.Word{args[1], args[0]}
			}
		}

		// Every ref argument, write destination or read source alike, gets
		// the same treatment: wrap it in Reg if it names a variable the
		// allocator must place, otherwise just remap the position.
		newArgs := make([]ir.Word, len(args))
		copy(newArgs, args)
		for i := range args {
			if !v.Op.ArgIsRef(i) {
				continue
			}
			operand := ir.Pos(args[i])
			if operandNeedsReg(c, operand) {
				class := pick(c, operand)
				mapped := r.Map(operand)
				wrapped := r.Emit(ir.Reg, ir.Word(mapped), ir.Word(int64(class)))
				newArgs[i] = ir.Word(wrapped)
			} else {
				newArgs[i] = ir.Word(r.Map(operand))
			}
		}

		newPos := r.Emit(v.Op, newArgs...)
		r.Alias(v.Pos, newPos)
	}))

	return r.New, nil
}
