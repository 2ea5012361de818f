package rtl

import (
	"testing"

	"github.com/oisee/codegen/pkg/ir"
	"github.com/oisee/codegen/pkg/target"
	"github.com/oisee/codegen/pkg/target/x64"
)

func qwordPicker(c *ir.Code, pos ir.Pos) target.Class { return x64.ClassQword }

func TestLowerWrapsTempOperandsInReg(t *testing.T) {
	c := ir.NewCode()
	i32 := c.Append(ir.Int, -32)
	t1 := c.Append(ir.Temp, ir.Word(i32))
	t2 := c.Append(ir.Temp, ir.Word(i32))
	c.Append(ir.Add, ir.Word(t1), ir.Word(t2))

	out, err := Lower(c, qwordPicker)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}

	var regCount int
	ir.Pass(out, ir.VisitFunc(func(v ir.View) {
		if v.Op == ir.Reg {
			regCount++
		}
	}))
	if regCount != 2 {
		t.Errorf("expected 2 Reg wrappers (one per Temp operand), got %d", regCount)
	}
}

func TestLowerLeavesImmediatesUnwrapped(t *testing.T) {
	c := ir.NewCode()
	a := c.Append(ir.Imm, 3)
	b := c.Append(ir.Imm, 4)
	c.Append(ir.Add, ir.Word(a), ir.Word(b))

	out, err := Lower(c, qwordPicker)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	var regCount int
	ir.Pass(out, ir.VisitFunc(func(v ir.View) {
		if v.Op == ir.Reg {
			regCount++
		}
	}))
	if regCount != 0 {
		t.Errorf("immediates should never be wrapped in Reg, got %d Reg nodes", regCount)
	}
}

func TestLowerCanonicalizesMulImmFirst(t *testing.T) {
	c := ir.NewCode()
	i32 := c.Append(ir.Int, -32)
	temp := c.Append(ir.Temp, ir.Word(i32))
	imm := c.Append(ir.Imm, 2)
	c.Append(ir.Mul, ir.Word(imm), ir.Word(temp)) // Mul(imm, x)

	out, err := Lower(c, qwordPicker)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}

	var mulView ir.View
	var found bool
	ir.Pass(out, ir.VisitFunc(func(v ir.View) {
		if v.Op == ir.Mul {
			mulView = v
			found = true
		}
	}))
	if !found {
		t.Fatal("expected a Mul node to survive lowering")
	}
	lhs := out.NodeAt(mulView.Ref(0))
	rhs := out.NodeAt(mulView.Ref(1))
	if lhs.Op != ir.Reg || rhs.Op != ir.Imm {
		t.Errorf("expected Mul(x, imm) after canonicalization, got Mul(%s, %s)", lhs.Op.Name(), rhs.Op.Name())
	}
}

func TestWidthPickerSelectsNarrowestAvailable(t *testing.T) {
	c := ir.NewCode()
	i8 := c.Append(ir.Int, -8)
	temp := c.Append(ir.Temp, ir.Word(i8))

	pick := WidthPicker(x64.ClassQword, x64.ClassDword, x64.ClassWord, x64.ClassByte)
	got := pick(c, temp)
	if got != x64.ClassByte {
		t.Errorf("WidthPicker(8-bit value) = %v, want ClassByte", got)
	}
}

func TestWidthPickerDefaultsToQwordWhenUnknown(t *testing.T) {
	c := ir.NewCode()
	a := c.Append(ir.Imm, 1)
	b := c.Append(ir.Imm, 2)
	cmp := c.Append(ir.Eq, ir.Word(a), ir.Word(b))

	pick := WidthPicker(x64.ClassQword, x64.ClassDword, x64.ClassWord, x64.ClassByte)
	if got := pick(c, cmp); got != x64.ClassQword {
		t.Errorf("WidthPicker(comparison result) = %v, want ClassQword fallback", got)
	}
}
