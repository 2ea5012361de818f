package ctrlflow

import (
	"testing"

	"github.com/oisee/codegen/pkg/ir"
)

// buildLoop builds: Forever(); body; SkipIf(cond); Repeat(forever); Here(skip)
func buildLoop() *ir.Code {
	c := ir.NewCode()
	forever := c.Append(ir.Forever)
	body := c.Append(ir.Imm, 7)
	c.Append(ir.St, ir.Word(body), ir.Word(body)) // an effectful use so body isn't pruned
	cond := c.Append(ir.Imm, 0)
	skipIf := c.Append(ir.SkipIf, ir.Word(cond))
	c.Append(ir.Repeat, ir.Word(forever))
	c.Append(ir.Here, ir.Word(skipIf))
	return c
}

func TestUnstructurizeStructurizeRoundTrip(t *testing.T) {
	c := buildLoop()
	if err := ir.Validate(c); err != nil {
		t.Fatalf("Validate(original) = %v", err)
	}

	goto_, err := Unstructurize(c)
	if err != nil {
		t.Fatalf("Unstructurize: %v", err)
	}

	back, err := Structurize(goto_)
	if err != nil {
		t.Fatalf("Structurize: %v", err)
	}
	if err := ir.Validate(back); err != nil {
		t.Fatalf("Validate(roundtrip) = %v", err)
	}

	want := ir.Render(c)
	got := ir.Render(back)
	if got != want {
		t.Errorf("round trip mismatch:\n got: %s\nwant: %s", got, want)
	}
}

func TestUnstructurizeProducesGotoForm(t *testing.T) {
	c := buildLoop()
	goto_, err := Unstructurize(c)
	if err != nil {
		t.Fatalf("Unstructurize: %v", err)
	}

	var sawForever, sawLabel, sawMark, sawJump, sawBranch bool
	ir.Pass(goto_, ir.VisitFunc(func(v ir.View) {
		switch v.Op {
		case ir.Forever, ir.Repeat, ir.Skip, ir.SkipIf, ir.Here:
			sawForever = true
		case ir.Label:
			sawLabel = true
		case ir.Mark:
			sawMark = true
		case ir.Jump:
			sawJump = true
		case ir.Branch:
			sawBranch = true
		}
	}))
	if sawForever {
		t.Error("goto-form output should contain no structured-control opcodes")
	}
	if !sawLabel || !sawMark || !sawJump || !sawBranch {
		t.Errorf("goto-form output missing expected opcodes: label=%v mark=%v jump=%v branch=%v",
			sawLabel, sawMark, sawJump, sawBranch)
	}
}
