// Package regalloc implements the register allocator: a Regmap tracking
// which physical register (if any) each allocator-visible IR variable
// currently holds, and the pass driver (Allocate) that assigns registers
// across a whole *ir.Code and emits the reconciling RMove/RSwap
// instructions at control-flow merges. Spill and fill actions only
// update the Regmap; no memory load or store is emitted for them.
package regalloc

import "github.com/oisee/codegen/pkg/target"
import "github.com/oisee/codegen/pkg/ir"

// Regmap maps a bounded set of IR variables (Temp/Arg node positions) to
// physical registers, oldest-insertion-first, so the oldest entry is
// always the first spill candidate.
type Regmap struct {
	order []ir.Pos
	reg   map[ir.Pos]target.Reg
	owner map[target.Reg]ir.Pos
}

// NewRegmap returns an empty map.
func NewRegmap() *Regmap {
	return &Regmap{
		reg:   map[ir.Pos]target.Reg{},
		owner: map[target.Reg]ir.Pos{},
	}
}

// Add records var as holding reg, appending to the insertion order.
func (m *Regmap) Add(pos ir.Pos, reg target.Reg) {
	if _, exists := m.reg[pos]; exists {
		m.Drop(pos)
	}
	m.order = append(m.order, pos)
	m.reg[pos] = reg
	m.owner[reg] = pos
}

// Drop removes var from the map, returning the register it held.
func (m *Regmap) Drop(pos ir.Pos) (target.Reg, bool) {
	reg, ok := m.reg[pos]
	if !ok {
		return 0, false
	}
	delete(m.reg, pos)
	delete(m.owner, reg)
	for i, p := range m.order {
		if p == pos {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return reg, true
}

// Move changes var's register while preserving its place in the
// insertion order.
func (m *Regmap) Move(pos ir.Pos, newReg target.Reg) bool {
	old, ok := m.reg[pos]
	if !ok {
		return false
	}
	delete(m.owner, old)
	m.reg[pos] = newReg
	m.owner[newReg] = pos
	return true
}

// Lookup reports the register var currently holds, if any.
func (m *Regmap) Lookup(pos ir.Pos) (target.Reg, bool) {
	r, ok := m.reg[pos]
	return r, ok
}

// Holder reports which variable, if any, currently occupies reg.
func (m *Regmap) Holder(reg target.Reg) (ir.Pos, bool) {
	p, ok := m.owner[reg]
	return p, ok
}

// Entry is one oldest-first record as produced by Compact.
type Entry struct {
	Pos ir.Pos
	Reg target.Reg
}

// Compact serializes the map to a fixed, oldest-first record, suitable
// for storing at a control-flow edge.
func (m *Regmap) Compact() []Entry {
	out := make([]Entry, len(m.order))
	for i, p := range m.order {
		out[i] = Entry{Pos: p, Reg: m.reg[p]}
	}
	return out
}

// FromCompact rebuilds a Regmap from a Compact snapshot.
func FromCompact(entries []Entry) *Regmap {
	m := NewRegmap()
	for _, e := range entries {
		m.Add(e.Pos, e.Reg)
	}
	return m
}

// Combine merges two maps, keeping each variable's oldest recorded
// register and preserving oldest-first order across both; on conflicting
// registers for different variables, a's placement wins and b's variable
// is dropped (the forward pass will re-request a register for it).
func Combine(a, b *Regmap) *Regmap {
	out := NewRegmap()
	seen := map[target.Reg]bool{}
	for _, p := range a.order {
		r := a.reg[p]
		if seen[r] {
			continue
		}
		out.Add(p, r)
		seen[r] = true
	}
	for _, p := range b.order {
		if _, already := out.reg[p]; already {
			continue
		}
		r := b.reg[p]
		if seen[r] {
			continue
		}
		out.Add(p, r)
		seen[r] = true
	}
	return out
}

// Action is one reconciliation step ChangeFrom emits to turn prev into m.
type Action struct {
	Kind ActionKind
	Pos  ir.Pos      // variable being moved/spilled/filled
	From target.Reg  // source register (Move/Spill) or one swap side
	To   target.Reg  // destination register (Move/Fill) or the other swap side
}

type ActionKind int

const (
	ActionMove ActionKind = iota // register-to-register, no memory traffic
	ActionSpill                  // register to memory (var dropped from the map)
	ActionFill                   // memory to register (var entering the map)
)

// ChangeFrom computes the spill/move/fill set required to transform prev
// into m: variables present in prev but not m are spilled, variables
// present in m but not prev are filled, and variables present in both
// under different registers move.
func (m *Regmap) ChangeFrom(prev *Regmap) []Action {
	var actions []Action
	for _, p := range prev.order {
		prevReg := prev.reg[p]
		newReg, stillLive := m.reg[p]
		switch {
		case !stillLive:
			actions = append(actions, Action{Kind: ActionSpill, Pos: p, From: prevReg})
		case newReg != prevReg:
			actions = append(actions, Action{Kind: ActionMove, Pos: p, From: prevReg, To: newReg})
		}
	}
	for _, p := range m.order {
		if _, wasLive := prev.reg[p]; !wasLive {
			actions = append(actions, Action{Kind: ActionFill, Pos: p, To: m.reg[p]})
		}
	}
	return actions
}

// Assign imprints this map's occupied registers onto td, so further
// allocation on td treats them as busy.
func (m *Regmap) Assign(td target.Description) {
	td.Reset()
	for _, p := range m.order {
		td.Occupy(m.reg[p])
	}
}
