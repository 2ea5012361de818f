package regalloc

import (
	"fmt"

	"github.com/oisee/codegen/pkg/ir"
	"github.com/oisee/codegen/pkg/ir/remap"
	"github.com/oisee/codegen/pkg/target"
)

// Allocate rewrites every Reg(var, class) node in c into Reg(var, reg),
// where class is the pre-allocation register-class request RTL lowering
// left behind and reg is the concrete physical register chosen for it.
// It also reconciles register choices across every control-flow merge
// (the join at a Skip/SkipIf's Here, and the loop header/back-edge join
// at a Forever/Repeat pair), emitting whatever RMove/RSwap sequence
// target.Description.Remap produces for the permutation involved.
//
// The driver runs in four phases: a loop-level counter pass (useWeights)
// and a reverse demand-propagation pass (demandSets) precompute static
// information consulted throughout, then a forward generation pass
// (generate) walks the structured code assigning registers and
// reconciling merges, and the loop below repeating it is the fourth
// phase. iterations bounds how many times the generation pass repeats: the first pass has no information about what a loop's
// back edge will ask for, so it can only reconcile the back edge
// against whatever state the loop header happened to start with; each
// later pass feeds the previous pass's recorded back-edge state into
// the next Forever it sees, letting the loop header converge toward
// what the body actually wants. Loops only benefit from this past the
// first iteration — straight-line code has no back edge to learn from.
func Allocate(c *ir.Code, td target.Description, iterations int) (*ir.Code, error) {
	if iterations < 1 {
		iterations = 1
	}

	depths := loopDepths(c)
	weight := useWeights(c, depths)
	demand := demandSets(c)

	backEdge := map[ir.Pos][]Entry{}
	var out *ir.Code
	for i := 0; i < iterations; i++ {
		td.Reset()
		next, nextBackEdge, err := generate(c, td, weight, demand, backEdge)
		if err != nil {
			return nil, err
		}
		out, backEdge = next, nextBackEdge
	}
	return out, nil
}

// loopDepths returns, for every node, the loop nesting depth active
// when it executes (0 outside any loop). A single forward pass over
// structured code suffices: Forever pushes, its matching Repeat (found
// by popping, since the IR's bracket nesting is a stack discipline) pops.
func loopDepths(c *ir.Code) map[ir.Pos]int {
	depths := map[ir.Pos]int{}
	depth := 0
	var stack []int
	ir.Pass(c, ir.VisitFunc(func(v ir.View) {
		switch v.Op {
		case ir.Forever:
			depths[v.Pos] = depth
			stack = append(stack, depth)
			depth++
		case ir.Repeat:
			depths[v.Pos] = depth
			if n := len(stack); n > 0 {
				depth = stack[n-1]
				stack = stack[:n-1]
			}
		default:
			depths[v.Pos] = depth
		}
	}))
	return depths
}

// useWeights is phase 1, the loop-level counter pass: it sums, for
// every allocator-visible variable, a loop-depth-weighted count of its
// Reg references (each reference inside n nested loops counts 2^n, so a
// single in-loop use outweighs many surface-level ones). The generation
// pass's eviction policy uses this to prefer dropping the least
// loop-critical live variable rather than simply the oldest one.
func useWeights(c *ir.Code, depths map[ir.Pos]int) map[ir.Pos]int64 {
	weight := map[ir.Pos]int64{}
	ir.RPass(c, ir.VisitFunc(func(v ir.View) {
		if v.Op != ir.Reg {
			return
		}
		d := depths[v.Pos]
		if d > 20 {
			d = 20
		}
		weight[v.Ref(0)] += int64(1) << uint(d)
	}))
	return weight
}

// demandSets is phase 2, the reverse demand-propagation pass: walking
// backward, it tracks which variables have been referenced at or after
// the current position, and snapshots that set at every control-flow
// merge (Here and Forever). The generation pass uses a merge's demand
// set to tell a register binding that's genuinely dead at the merge
// apart from one the other incoming edge still needs, without having to
// rediscover liveness per merge from scratch.
func demandSets(c *ir.Code) map[ir.Pos]map[ir.Pos]bool {
	demand := map[ir.Pos]map[ir.Pos]bool{}
	live := map[ir.Pos]bool{}
	ir.RPass(c, ir.VisitFunc(func(v ir.View) {
		if v.Op == ir.Reg {
			live[v.Ref(0)] = true
		}
		if v.Op == ir.Here || v.Op == ir.Forever {
			snap := make(map[ir.Pos]bool, len(live))
			for p := range live {
				snap[p] = true
			}
			demand[v.Pos] = snap
		}
	}))
	return demand
}

// skipFrame records the regmap snapshot taken at a Skip/SkipIf site: the
// state reaching its Here directly, bypassing the body, when the skip is
// taken.
type skipFrame struct {
	pos   ir.Pos
	entry []Entry
}

// loopFrame records a loop's chosen header state, established when its
// Forever is visited, so the matching Repeat can reconcile the body's
// end state back onto it.
type loopFrame struct {
	pos    ir.Pos
	header []Entry
}

// generate is phase 3, the forward generation pass: one left-to-right
// walk assigning registers at every Reg site and reconciling regmaps at
// every merge, driven by a stack of open Skip/SkipIf and Forever frames
// — sound because the IR's control-flow brackets nest like a stack, the
// same discipline ir.Validate enforces. It returns the rewritten code
// and the back-edge regmap recorded at each loop's Repeat, for the next
// iteration's Forever handling to consult.
func generate(c *ir.Code, td target.Description, weight map[ir.Pos]int64, demand map[ir.Pos]map[ir.Pos]bool, backEdge map[ir.Pos][]Entry) (*ir.Code, map[ir.Pos][]Entry, error) {
	r := remap.New(c)
	cur := NewRegmap()
	var skipStack []skipFrame
	var loopStack []loopFrame
	nextBackEdge := map[ir.Pos][]Entry{}
	var outErr error

	ir.Pass(c, ir.VisitFunc(func(v ir.View) {
		if outErr != nil {
			return
		}
		switch v.Op {
		case ir.Reg:
			varOld := v.Ref(0)
			class := target.Class(v.Arg(1))
			varNew := r.Map(varOld)

			reg, ok := assign(td, cur, weight, class, varOld)
			if !ok {
				outErr = fmt.Errorf("regalloc: out of registers for class %d at position %d", class, v.Pos)
				return
			}
			newPos := r.Emit(ir.Reg, ir.Word(varNew), ir.Word(int64(reg)))
			r.Alias(v.Pos, newPos)

		case ir.Forever:
			want := filterDemanded(cur, demand[v.Pos])
			if hint, ok := backEdge[v.Pos]; ok {
				want = Combine(want, filterDemanded(FromCompact(hint), demand[v.Pos]))
			}
			reconcile(r, td, cur, want)
			loopStack = append(loopStack, loopFrame{pos: v.Pos, header: cur.Compact()})
			r.Forward(v)

		case ir.Repeat:
			n := len(loopStack)
			frame := loopStack[n-1]
			loopStack = loopStack[:n-1]
			nextBackEdge[frame.pos] = cur.Compact()
			reconcile(r, td, cur, FromCompact(frame.header))
			r.Forward(v)

		case ir.Skip, ir.SkipIf:
			skipStack = append(skipStack, skipFrame{pos: v.Pos, entry: cur.Compact()})
			r.Forward(v)

		case ir.Here:
			n := len(skipStack)
			frame := skipStack[n-1]
			skipStack = skipStack[:n-1]
			demanded := demand[v.Pos]
			entrySide := filterDemanded(FromCompact(frame.entry), demanded)
			bodySide := filterDemanded(cur, demanded)
			reconcile(r, td, cur, Combine(entrySide, bodySide))
			r.Forward(v)

		default:
			r.Forward(v)
		}
	}))

	if outErr != nil {
		return nil, nil, outErr
	}
	return r.New, nextBackEdge, nil
}

// filterDemanded returns the subset of m's entries named in demanded,
// preserving oldest-first order.
func filterDemanded(m *Regmap, demanded map[ir.Pos]bool) *Regmap {
	out := NewRegmap()
	for _, e := range m.Compact() {
		if demanded[e.Pos] {
			out.Add(e.Pos, e.Reg)
		}
	}
	return out
}

// reconcile drives cur to match want. want is the side of a merge that
// needs no correction of its own (the entry state at a Skip/SkipIf, or
// a loop's chosen header) — every Action ChangeFrom reports describes a
// fixup applied to cur alone, so the emitted RMove/RSwap/drop traffic
// only ever lands on the edge that still needs it. ActionMove entries
// are collected into one permutation map and realized through
// target.Description.Remap in a single call, so a multi-variable
// rotation resolves as the minimal RMove/RSwap sequence rather than one
// swap per pair; ActionSpill drops a binding cur no longer needs at the
// merge, and ActionFill claims want's register for a variable cur
// hadn't assigned yet. cur.Assign(td) resyncs td's occupancy bitmap to
// the reconciled state once every action has been applied.
func reconcile(r *remap.Remapper, td target.Description, cur, want *Regmap) {
	actions := want.ChangeFrom(cur)
	moves := map[target.Reg]target.Reg{}
	for _, a := range actions {
		switch a.Kind {
		case ActionMove:
			moves[a.From] = a.To
			cur.Move(a.Pos, a.To)
		case ActionSpill:
			cur.Drop(a.Pos)
		case ActionFill:
			cur.Add(a.Pos, a.To)
		}
	}
	if len(moves) > 0 {
		td.Remap(r, moves)
	}
	cur.Assign(td)
}

// assign implements the four-step selection policy against a single
// shared (td, cur) state, returning the chosen register. varOld
// identifies the variable by its position in the input code, stable
// across every generation-pass iteration regardless of how many extra
// reconciliation nodes a given iteration inserts ahead of it.
func assign(td target.Description, cur *Regmap, weight map[ir.Pos]int64, class target.Class, varOld ir.Pos) (target.Reg, bool) {
	if reg, live := cur.Lookup(varOld); live {
		if td.IsPerfect(class, reg) {
			return reg, true
		}
	}

	if reg, ok := td.GetFree(class); ok {
		cur.Add(varOld, reg)
		return reg, true
	}

	if victim, ok := lightestCompatible(td, cur, weight, class); ok {
		if reg, dropped := cur.Drop(victim); dropped {
			td.Forget(reg)
		}
		if reg, ok := td.GetFree(class); ok {
			cur.Add(varOld, reg)
			return reg, true
		}
	}

	if reg, ok := td.GetCompatible(class); ok {
		cur.Add(varOld, reg)
		return reg, true
	}
	return 0, false
}

// lightestCompatible picks the compatible live entry with the lowest
// loop-weighted use count, falling back to the oldest entry among ties
// — including the common case where weight carries no loop information
// at all, which reproduces the prior oldest-first eviction order
// exactly.
func lightestCompatible(td target.Description, cur *Regmap, weight map[ir.Pos]int64, class target.Class) (ir.Pos, bool) {
	best := ir.InvalidPos
	var bestWeight int64
	for _, p := range cur.order {
		if !td.IsCompatible(class, cur.reg[p]) {
			continue
		}
		w := weight[p]
		if best == ir.InvalidPos || w < bestWeight {
			best, bestWeight = p, w
		}
	}
	if best == ir.InvalidPos {
		return 0, false
	}
	return best, true
}
