package interp

import (
	"testing"

	"github.com/oisee/codegen/pkg/ir"
)

// buildAddTwoArgs: fn(i32, i32) -> i32 { return arg0 + arg1 }
func buildAddTwoArgs(t *testing.T) (*ir.Code, ir.Pos) {
	t.Helper()
	c := ir.NewCode()
	i32 := c.Append(ir.Int, -32)
	ft := c.Append(ir.Fun, 0, ir.Word(i32), ir.Word(i32), ir.Word(i32))
	enter := c.Append(ir.Enter, ir.Word(ft))
	a0 := c.Append(ir.Arg, ir.Word(enter), 0)
	a1 := c.Append(ir.Arg, ir.Word(enter), 1)
	sum := c.Append(ir.Add, ir.Word(a0), ir.Word(a1))
	rval := c.Append(ir.RVal, ir.Word(enter))
	c.Append(ir.Move, ir.Word(rval), ir.Word(sum))
	c.Append(ir.Exit, ir.Word(enter))
	return c, enter
}

func TestRunAddsTwoArguments(t *testing.T) {
	c, enter := buildAddTwoArgs(t)
	got, err := Run(c, enter, []int64{3, 4})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != 7 {
		t.Fatalf("Run = %d, want 7", got)
	}
}

// buildDoubleEightTimes: fn(i32) -> i32 { x := arg0; for 8 times: x *= 2; return x }
// Structured as: Forever { SkipIf(i>=8) ; x = x*2 ; i = i+1 ; Repeat } Here
func buildDoubleEightTimes(t *testing.T) (*ir.Code, ir.Pos) {
	t.Helper()
	c := ir.NewCode()
	i32 := c.Append(ir.Int, -32)
	ft := c.Append(ir.Fun, 0, ir.Word(i32))
	enter := c.Append(ir.Enter, ir.Word(ft))
	arg0 := c.Append(ir.Arg, ir.Word(enter), 0)

	xTemp := c.Append(ir.Temp, ir.Word(i32))
	c.Append(ir.Move, ir.Word(xTemp), ir.Word(arg0))
	iTemp := c.Append(ir.Temp, ir.Word(i32))
	zero := c.Append(ir.Imm, 0)
	c.Append(ir.Move, ir.Word(iTemp), ir.Word(zero))

	forever := c.Append(ir.Forever)
	eight := c.Append(ir.Imm, 8)
	cond := c.Append(ir.Gte, ir.Word(iTemp), ir.Word(eight))
	skipIf := c.Append(ir.SkipIf, ir.Word(cond))

	two := c.Append(ir.Imm, 2)
	doubled := c.Append(ir.Mul, ir.Word(xTemp), ir.Word(two))
	c.Append(ir.Move, ir.Word(xTemp), ir.Word(doubled))
	one := c.Append(ir.Imm, 1)
	incremented := c.Append(ir.Add, ir.Word(iTemp), ir.Word(one))
	c.Append(ir.Move, ir.Word(iTemp), ir.Word(incremented))

	c.Append(ir.Repeat, ir.Word(forever))
	c.Append(ir.Here, ir.Word(skipIf))

	rval := c.Append(ir.RVal, ir.Word(enter))
	c.Append(ir.Move, ir.Word(rval), ir.Word(xTemp))
	c.Append(ir.Exit, ir.Word(enter))
	return c, enter
}

func TestRunLoopDoublesEightTimes(t *testing.T) {
	c, enter := buildDoubleEightTimes(t)
	got, err := Run(c, enter, []int64{1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != 256 {
		t.Fatalf("Run = %d, want 256", got)
	}
}

func TestRunRejectsGotoForm(t *testing.T) {
	c := ir.NewCode()
	ft := c.Append(ir.Fun, 0, ir.Word(c.Append(ir.Int, -32)))
	enter := c.Append(ir.Enter, ir.Word(ft))
	label := c.Append(ir.Label)
	c.Append(ir.Mark, ir.Word(label))
	c.Append(ir.Jump, ir.Word(label))
	c.Append(ir.Exit, ir.Word(enter))

	if _, err := Run(c, enter, nil); err == nil {
		t.Error("expected an error for goto-form control flow")
	}
}
