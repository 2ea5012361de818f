package abi

import (
	"testing"

	"github.com/oisee/codegen/pkg/ir"
	"github.com/oisee/codegen/pkg/target/x64"
)

// buildSimpleFunction builds: fn(i32 i32) -> i32 { return arg0 }, already
// past RTL lowering and register allocation (Arg/RVal reads already
// wrapped in concrete Reg nodes), the state abi.Lower expects.
func buildSimpleFunction(t *testing.T) (*ir.Code, ir.Pos) {
	t.Helper()
	c := ir.NewCode()
	i32 := c.Append(ir.Int, -32)
	ft := c.Append(ir.Fun, 0, ir.Word(i32))
	enter := c.Append(ir.Enter, ir.Word(ft))
	arg0 := c.Append(ir.Arg, ir.Word(enter), 0)
	argReg := c.Append(ir.Reg, ir.Word(arg0), ir.Word(int64(x64.RBX)))
	rval := c.Append(ir.RVal, ir.Word(enter))
	rvalReg := c.Append(ir.Reg, ir.Word(rval), ir.Word(int64(x64.RCX)))
	c.Append(ir.Move, ir.Word(rvalReg), ir.Word(argReg))
	c.Append(ir.Exit, ir.Word(enter))
	return c, enter
}

func TestLowerEmitsArgumentPrologueMove(t *testing.T) {
	c, enter := buildSimpleFunction(t)
	out, err := Lower(c, enter)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}

	var sawPrologue bool
	ir.Pass(out, ir.VisitFunc(func(v ir.View) {
		if v.Op == ir.RMove && v.Arg(0) == int64(x64.RBX) && v.Arg(1) == int64(x64.RAX) {
			sawPrologue = true
		}
	}))
	if !sawPrologue {
		t.Error("expected an RMove(RBX, RAX) prologue move for argument 0")
	}
}

func TestLowerRedirectsReturnToRAX(t *testing.T) {
	c, enter := buildSimpleFunction(t)
	out, err := Lower(c, enter)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}

	var sawReturnMove bool
	var sawOriginalMove bool
	ir.Pass(out, ir.VisitFunc(func(v ir.View) {
		if v.Op == ir.RMove && v.Arg(0) == int64(x64.RAX) && v.Arg(1) == int64(x64.RBX) {
			sawReturnMove = true
		}
		if v.Op == ir.Move {
			sawOriginalMove = true
		}
	}))
	if !sawReturnMove {
		t.Error("expected the return value moved into RAX via RMove")
	}
	if sawOriginalMove {
		t.Error("expected the original Move(RVal, arg) node to be replaced, not kept alongside")
	}
}

func TestLowerRejectsNonEnterPosition(t *testing.T) {
	c := ir.NewCode()
	imm := c.Append(ir.Imm, 1)
	if _, err := Lower(c, imm); err == nil {
		t.Error("expected Lower to reject a non-Enter position")
	}
}
