package simplify

import (
	"testing"

	"github.com/oisee/codegen/pkg/ir"
)

func TestConstantFoldingReducesToSingleImm(t *testing.T) {
	c := ir.NewCode()
	i32 := c.Append(ir.Int, -32)
	a := c.Append(ir.Imm, 2)
	b := c.Append(ir.Imm, 3)
	mul := c.Append(ir.Mul, ir.Word(a), ir.Word(b)) // 6
	d := c.Append(ir.Imm, 13)
	sub := c.Append(ir.Sub, ir.Word(d), ir.Word(mul)) // 7
	sum := c.Append(ir.Add, ir.Word(mul), ir.Word(sub)) // 13... just needs to fold fully
	_ = sum
	ft := c.Append(ir.Fun, 0, ir.Word(i32))
	fn := c.Append(ir.Enter, ir.Word(ft))
	rval := c.Append(ir.RVal, ir.Word(fn))
	c.Append(ir.Move, ir.Word(rval), ir.Word(sum))
	c.Append(ir.Exit, ir.Word(fn))

	out := Run(c, 4)

	count := map[ir.OpCode]int{}
	ir.Pass(out, ir.VisitFunc(func(v ir.View) {
		count[v.Op]++
	}))
	if count[ir.Mul] != 0 || count[ir.Sub] != 0 || count[ir.Add] != 0 {
		t.Errorf("expected arithmetic fully folded, got Mul=%d Sub=%d Add=%d", count[ir.Mul], count[ir.Sub], count[ir.Add])
	}
	if count[ir.Imm] == 0 {
		t.Error("expected at least one Imm node in folded output")
	}
}

func TestDeadMoveElimination(t *testing.T) {
	c := ir.NewCode()
	i32 := c.Append(ir.Int, -32)
	temp := c.Append(ir.Temp, ir.Word(i32))
	v := c.Append(ir.Imm, 99)
	c.Append(ir.Move, ir.Word(temp), ir.Word(v)) // temp never read afterward

	out := Run(c, 2)

	var moveCount int
	ir.Pass(out, ir.VisitFunc(func(view ir.View) {
		if view.Op == ir.Move {
			moveCount++
		}
	}))
	if moveCount != 0 {
		t.Errorf("expected dead Move(temp, v) to be eliminated, found %d Move nodes", moveCount)
	}
}

func TestLiveMoveToRValSurvives(t *testing.T) {
	c := ir.NewCode()
	i32 := c.Append(ir.Int, -32)
	ft := c.Append(ir.Fun, 0, ir.Word(i32))
	fn := c.Append(ir.Enter, ir.Word(ft))
	rval := c.Append(ir.RVal, ir.Word(fn))
	imm := c.Append(ir.Imm, 42)
	c.Append(ir.Move, ir.Word(rval), ir.Word(imm))
	c.Append(ir.Exit, ir.Word(fn))

	out := Run(c, 2)

	var moveCount int
	ir.Pass(out, ir.VisitFunc(func(view ir.View) {
		if view.Op == ir.Move {
			moveCount++
		}
	}))
	if moveCount != 1 {
		t.Errorf("expected Move to RVal to survive, found %d Move nodes", moveCount)
	}
}

func TestDoubleNotCollapses(t *testing.T) {
	c := ir.NewCode()
	i32 := c.Append(ir.Int, 32)
	temp := c.Append(ir.Temp, ir.Word(i32))
	n1 := c.Append(ir.Not, ir.Word(temp))
	n2 := c.Append(ir.Not, ir.Word(n1))
	ft := c.Append(ir.Fun, 0, ir.Word(i32))
	fn := c.Append(ir.Enter, ir.Word(ft))
	rval := c.Append(ir.RVal, ir.Word(fn))
	c.Append(ir.Move, ir.Word(rval), ir.Word(n2))
	c.Append(ir.Exit, ir.Word(fn))

	out := Run(c, 2)

	var notCount int
	ir.Pass(out, ir.VisitFunc(func(view ir.View) {
		if view.Op == ir.Not {
			notCount++
		}
	}))
	if notCount != 0 {
		t.Errorf("expected double Not to collapse away, found %d Not nodes", notCount)
	}
}

func TestConstantSkipIfBecomesUnconditionalSkip(t *testing.T) {
	c := ir.NewCode()
	cond := c.Append(ir.Imm, 1)
	skipIf := c.Append(ir.SkipIf, ir.Word(cond))
	body := c.Append(ir.Imm, 1)
	c.Append(ir.St, ir.Word(body), ir.Word(body))
	c.Append(ir.Here, ir.Word(skipIf))

	out := Run(c, 2)

	var sawSkipIf, sawSkip bool
	ir.Pass(out, ir.VisitFunc(func(v ir.View) {
		if v.Op == ir.SkipIf {
			sawSkipIf = true
		}
		if v.Op == ir.Skip {
			sawSkip = true
		}
	}))
	if sawSkipIf {
		t.Error("constant-true SkipIf should become unconditional Skip")
	}
	if !sawSkip {
		t.Error("expected an unconditional Skip in the folded output")
	}
}

func TestConstantFalseSkipIfDropsBracketEntirely(t *testing.T) {
	c := ir.NewCode()
	cond := c.Append(ir.Imm, 0)
	skipIf := c.Append(ir.SkipIf, ir.Word(cond))
	body := c.Append(ir.Imm, 5)
	c.Append(ir.St, ir.Word(body), ir.Word(body))
	c.Append(ir.Here, ir.Word(skipIf))

	out := Run(c, 2)

	var sawSkipIf, sawHere, sawSt bool
	ir.Pass(out, ir.VisitFunc(func(v ir.View) {
		switch v.Op {
		case ir.SkipIf:
			sawSkipIf = true
		case ir.Here:
			sawHere = true
		case ir.St:
			sawSt = true
		}
	}))
	if sawSkipIf || sawHere {
		t.Error("constant-false SkipIf/Here bracket should be dropped entirely")
	}
	if !sawSt {
		t.Error("body between the dropped bracket should remain, unconditionally executed")
	}
}
