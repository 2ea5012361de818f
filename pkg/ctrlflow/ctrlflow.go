// Package ctrlflow converts between goto-form control flow (Label, Mark,
// Jump, Branch) and structured-loop form (Forever, Repeat, Skip, SkipIf,
// Here), in both directions.
package ctrlflow

import (
	"fmt"

	"github.com/oisee/codegen/pkg/ir"
	"github.com/oisee/codegen/pkg/ir/remap"
)

// Structurize converts goto-form to structured form. The input must be
// forward-reducible: every backward Jump/Branch targets a label whose Mark
// precedes it, and every forward one targets a label whose Mark follows it
// (exactly what Unstructurize produces).
func Structurize(c *ir.Code) (*ir.Code, error) {
	markPos := map[ir.Pos]ir.Pos{}
	loopRefs := map[ir.Pos]int{}
	seen := map[ir.Pos]bool{}

	ir.RPass(c, ir.VisitFunc(func(v ir.View) {
		switch v.Op {
		case ir.Mark:
			l := v.Ref(0)
			seen[l] = true
			markPos[l] = v.Pos
		case ir.Jump:
			l := v.Ref(0)
			if !seen[l] {
				loopRefs[l]++
			}
		case ir.Branch:
			l := v.Ref(0)
			if !seen[l] {
				loopRefs[l]++
			}
		}
	}))

	r := remap.New(c)
	loopOpen := map[ir.Pos]ir.Pos{}        // label -> new Forever position
	pendingSkip := map[ir.Pos][]ir.Pos{}   // label -> new Skip/SkipIf positions awaiting Here
	var err error

	ir.Pass(c, ir.VisitFunc(func(v ir.View) {
		if err != nil {
			return
		}
		switch v.Op {
		case ir.Label:
			// A goto-form marker only; carries no structured counterpart.
		case ir.Mark:
			l := v.Ref(0)
			if loopRefs[l] > 0 {
				loopOpen[l] = r.Emit(ir.Forever)
				return
			}
			for _, skipPos := range pendingSkip[l] {
				r.Emit(ir.Here, ir.Word(skipPos))
			}
			delete(pendingSkip, l)
		case ir.Jump:
			l := v.Ref(0)
			m, ok := markPos[l]
			if !ok {
				err = fmt.Errorf("ctrlflow: structurize: Jump at %d targets unmarked label %d", v.Pos, l)
				return
			}
			if v.Pos > m {
				foreverPos, ok := loopOpen[l]
				if !ok {
					err = fmt.Errorf("ctrlflow: structurize: Repeat at %d has no open loop for label %d", v.Pos, l)
					return
				}
				r.Emit(ir.Repeat, ir.Word(foreverPos))
				delete(loopOpen, l)
				return
			}
			newSkip := r.Emit(ir.Skip)
			pendingSkip[l] = append(pendingSkip[l], newSkip)
		case ir.Branch:
			l := v.Ref(0)
			cond := v.Ref(1)
			newCond := r.Map(cond)
			m, ok := markPos[l]
			if !ok {
				err = fmt.Errorf("ctrlflow: structurize: Branch at %d targets unmarked label %d", v.Pos, l)
				return
			}
			if v.Pos > m {
				foreverPos, ok := loopOpen[l]
				if !ok {
					err = fmt.Errorf("ctrlflow: structurize: conditional Repeat at %d has no open loop for label %d", v.Pos, l)
					return
				}
				zero := r.Emit(ir.Imm, 0)
				notCond := r.Emit(ir.Eq, ir.Word(newCond), ir.Word(zero))
				skipIf := r.Emit(ir.SkipIf, ir.Word(notCond))
				r.Emit(ir.Repeat, ir.Word(foreverPos))
				r.Emit(ir.Here, ir.Word(skipIf))
				delete(loopOpen, l)
				return
			}
			newSkipIf := r.Emit(ir.SkipIf, ir.Word(newCond))
			pendingSkip[l] = append(pendingSkip[l], newSkipIf)
		default:
			r.Forward(v)
		}
	}))
	if err != nil {
		return nil, err
	}
	if len(loopOpen) != 0 {
		return nil, fmt.Errorf("ctrlflow: structurize: %d loop(s) left open at end of pass", len(loopOpen))
	}
	if len(pendingSkip) != 0 {
		return nil, fmt.Errorf("ctrlflow: structurize: %d skip(s) never reached a Here", len(pendingSkip))
	}
	return r.New, nil
}

// Unstructurize converts structured form back to goto-form. The skip/loop
// label introduced at a Skip, SkipIf, or Forever site is identified by the
// position of that originating node.
func Unstructurize(c *ir.Code) (*ir.Code, error) {
	r := remap.New(c)
	skipLabel := map[ir.Pos]ir.Pos{}
	foreverLabel := map[ir.Pos]ir.Pos{}
	var err error

	ir.Pass(c, ir.VisitFunc(func(v ir.View) {
		if err != nil {
			return
		}
		switch v.Op {
		case ir.Forever:
			newLabel := r.Emit(ir.Label)
			r.Emit(ir.Mark, ir.Word(newLabel))
			foreverLabel[v.Pos] = newLabel
		case ir.Repeat:
			foreverOld := v.Ref(0)
			newLabel, ok := foreverLabel[foreverOld]
			if !ok {
				err = fmt.Errorf("ctrlflow: unstructurize: Repeat at %d references unknown Forever %d", v.Pos, foreverOld)
				return
			}
			r.Emit(ir.Jump, ir.Word(newLabel))
		case ir.Skip:
			newLabel := r.Emit(ir.Label)
			r.Emit(ir.Jump, ir.Word(newLabel))
			skipLabel[v.Pos] = newLabel
		case ir.SkipIf:
			cond := v.Ref(0)
			newCond := r.Map(cond)
			newLabel := r.Emit(ir.Label)
			r.Emit(ir.Branch, ir.Word(newLabel), ir.Word(newCond))
			skipLabel[v.Pos] = newLabel
		case ir.Here:
			skipOld := v.Ref(0)
			newLabel, ok := skipLabel[skipOld]
			if !ok {
				err = fmt.Errorf("ctrlflow: unstructurize: Here at %d references unknown Skip/SkipIf %d", v.Pos, skipOld)
				return
			}
			r.Emit(ir.Mark, ir.Word(newLabel))
		default:
			r.Forward(v)
		}
	}))
	if err != nil {
		return nil, err
	}
	return r.New, nil
}
