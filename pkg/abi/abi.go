// Package abi implements Go's internal register-based calling
// convention (ABIInternal): moving values between the fixed
// argument/return registers the caller and callee agree on and
// whatever register the allocator separately chose for the
// corresponding variable.
//
// This targets Go's own ABI rather than the System V AMD64 C
// convention because pkg/callable invokes the compiled function as a
// genuine Go function value (the funcval-pointer trick), which the Go
// runtime dispatches through ABIInternal — using System V's register
// set here would silently read the wrong registers for every argument
// past the zeroth. See DESIGN.md.
//
// Lower runs after pkg/regalloc, not before it as a naive reading of the
// pipeline order might suggest — see DESIGN.md. By that point every
// Arg/RVal use has already been wrapped in a concrete Reg(var, reg) node
// by the allocator, so this package's only job is to splice in the
// RMove that bridges the ABI-fixed register and the allocator's choice,
// rather than needing to pin registers during allocation itself.
package abi

import (
	"fmt"

	"github.com/oisee/codegen/pkg/ir"
	"github.com/oisee/codegen/pkg/ir/remap"
	"github.com/oisee/codegen/pkg/target"
	"github.com/oisee/codegen/pkg/target/x64"
)

// integerArgRegs is the Go ABIInternal integer/pointer argument order
// for amd64 (the same order a Go-compiled function expects its
// integer-class arguments and, read again from the top, its
// integer-class results in).
var integerArgRegs = []target.Reg{x64.RAX, x64.RBX, x64.RCX, x64.RDI, x64.RSI, x64.R8, x64.R9, x64.R10, x64.R11}

// Lower rewrites c for the function entered at position enter:
// prologue RMoves from each fixed argument register into the register
// the allocator chose for that argument, and every return (a Move whose
// destination resolves to RVal(enter)) replaced by an RMove into RAX.
func Lower(c *ir.Code, enter ir.Pos) (*ir.Code, error) {
	if c.NodeAt(enter).Op != ir.Enter {
		return nil, fmt.Errorf("abi: position %d is not an Enter node", enter)
	}

	argReg, err := scanArgRegs(c, enter)
	if err != nil {
		return nil, err
	}
	returnMoves := scanReturnMoves(c, enter)

	r := remap.New(c)

	ir.Pass(c, ir.VisitFunc(func(v ir.View) {
		if v.Op == ir.Move {
			if srcReg, isReturn := returnMoves[v.Pos]; isReturn {
				r.Emit(ir.RMove, ir.Word(int64(x64.RAX)), ir.Word(int64(srcReg)))
				return
			}
		}

		newPos := r.Forward(v)

		if v.Pos == enter {
			for k := 0; k < len(integerArgRegs); k++ {
				reg, used := argReg[k]
				if !used {
					continue
				}
				r.Emit(ir.RMove, ir.Word(int64(reg)), ir.Word(int64(integerArgRegs[k])))
			}
		}
		_ = newPos
	}))

	return r.New, nil
}

// scanArgRegs finds, for each argument index k of enter that is actually
// read anywhere (as a Reg(argPos, concreteReg) node left by the
// allocator), the concrete register the allocator chose for it.
func scanArgRegs(c *ir.Code, enter ir.Pos) (map[int]target.Reg, error) {
	out := map[int]target.Reg{}
	var scanErr error
	ir.Pass(c, ir.VisitFunc(func(v ir.View) {
		if scanErr != nil || v.Op != ir.Reg {
			return
		}
		varNode := c.NodeAt(v.Ref(0))
		if varNode.Op != ir.Arg {
			return
		}
		if varNode.Ref(0) != enter {
			return
		}
		k := int(varNode.Arg(1))
		if k >= len(integerArgRegs) {
			scanErr = fmt.Errorf("abi: argument index %d exceeds the %d integer argument registers this shim supports", k, len(integerArgRegs))
			return
		}
		out[k] = target.Reg(v.Arg(1))
	}))
	return out, scanErr
}

// scanReturnMoves finds every Move node whose destination resolves to
// RVal(enter), returning a map from that Move's position to the
// concrete register holding the value being returned.
func scanReturnMoves(c *ir.Code, enter ir.Pos) map[ir.Pos]target.Reg {
	out := map[ir.Pos]target.Reg{}
	ir.Pass(c, ir.VisitFunc(func(v ir.View) {
		if v.Op != ir.Move {
			return
		}
		dst := c.NodeAt(v.Ref(0))
		if dst.Op != ir.Reg {
			return
		}
		dstVar := c.NodeAt(dst.Ref(0))
		if dstVar.Op != ir.RVal || dstVar.Ref(0) != enter {
			return
		}
		src := c.NodeAt(v.Ref(1))
		if src.Op != ir.Reg {
			return
		}
		out[v.Pos] = target.Reg(src.Arg(1))
	}))
	return out
}
