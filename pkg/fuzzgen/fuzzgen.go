// Package fuzzgen generates small, well-formed IR programs and applies
// random structural mutations to them, feeding pkg/conformance's search
// for simplifier/allocator soundness violations.
//
// The mutator follows the same design as pkg/stoke.Mutator:
// the same weighted Replace/Swap/Delete/Insert/ChangeImm split (40/20/
// 20/10/10, the same ratios as pkg/stoke/mutator.go's Mutate), but
// operating on ir.Pos-addressed nodes instead of a flat
// []inst.Instruction. Uses math/rand/v2, exactly as pkg/stoke does.
package fuzzgen

import (
	"math/rand/v2"

	"github.com/oisee/codegen/pkg/ir"
	"github.com/oisee/codegen/pkg/ir/remap"
)

var arithOps = []ir.OpCode{ir.Add, ir.Sub, ir.And, ir.Or, ir.Xor}

func isArith(op ir.OpCode) bool {
	for _, a := range arithOps {
		if a == op {
			return true
		}
	}
	return false
}

// Generator builds random straight-line arithmetic functions.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator returns a Generator seeded deterministically from seed.
func NewGenerator(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0xFEEDFACE))}
}

// Generate builds fn(i32) -> i32, threading its single argument through
// numOps random arithmetic steps against fresh random immediates, and
// returns the code plus its Enter position.
func (g *Generator) Generate(numOps int) (*ir.Code, ir.Pos) {
	c := ir.NewCode()
	i32 := c.Append(ir.Int, -32)
	ft := c.Append(ir.Fun, 0, ir.Word(i32))
	enter := c.Append(ir.Enter, ir.Word(ft))
	cur := c.Append(ir.Arg, ir.Word(enter), 0)

	for i := 0; i < numOps; i++ {
		op := arithOps[g.rng.IntN(len(arithOps))]
		imm := c.Append(ir.Imm, ir.Word(g.rng.Int64N(100)))
		cur = c.Append(op, ir.Word(cur), ir.Word(imm))
	}

	rval := c.Append(ir.RVal, ir.Word(enter))
	c.Append(ir.Move, ir.Word(rval), ir.Word(cur))
	c.Append(ir.Exit, ir.Word(enter))
	return c, enter
}

// Mutator applies one random structural mutation per call, returning a
// fresh *ir.Code (the input is never modified).
type Mutator struct {
	rng *rand.Rand
}

// NewMutator returns a Mutator seeded deterministically from seed.
func NewMutator(seed uint64) *Mutator {
	return &Mutator{rng: rand.New(rand.NewPCG(seed, seed^0xDEADBEEF))}
}

// Mutate picks one of five structural mutations, weighted 40/20/20/10/10
// exactly as pkg/stoke.Mutator.Mutate does.
func (m *Mutator) Mutate(c *ir.Code) (*ir.Code, error) {
	r := m.rng.IntN(100)
	switch {
	case r < 40:
		return m.replaceOpcode(c)
	case r < 60:
		return m.swapOperands(c)
	case r < 80:
		return m.deleteDeadMove(c)
	case r < 90:
		return m.insertDeadNode(c)
	default:
		return m.changeImmediate(c)
	}
}

func refcounts(c *ir.Code) map[ir.Pos]int {
	counts := map[ir.Pos]int{}
	ir.Pass(c, ir.VisitFunc(func(v ir.View) {
		for i, a := range v.Args {
			if v.Op.ArgIsRef(i) {
				counts[ir.Pos(a)]++
			}
		}
	}))
	return counts
}

// replaceOpcode swaps one binary arithmetic node's opcode for a
// different one of the same arity, leaving its operands untouched.
func (m *Mutator) replaceOpcode(c *ir.Code) (*ir.Code, error) {
	var candidates []ir.Pos
	ir.Pass(c, ir.VisitFunc(func(v ir.View) {
		if isArith(v.Op) {
			candidates = append(candidates, v.Pos)
		}
	}))
	if len(candidates) == 0 {
		return c, nil
	}
	target := candidates[m.rng.IntN(len(candidates))]

	others := make([]ir.OpCode, 0, len(arithOps)-1)
	for _, op := range arithOps {
		if op != c.NodeAt(target).Op {
			others = append(others, op)
		}
	}
	newOp := others[m.rng.IntN(len(others))]

	r := remap.New(c)
	ir.Pass(c, ir.VisitFunc(func(v ir.View) {
		if v.Pos == target {
			a := r.Map(v.Ref(0))
			b := r.Map(v.Ref(1))
			newPos := r.Emit(newOp, ir.Word(a), ir.Word(b))
			r.Alias(v.Pos, newPos)
			return
		}
		r.Forward(v)
	}))
	return r.New, nil
}

// swapOperands swaps a binary arithmetic node's two operands in place.
func (m *Mutator) swapOperands(c *ir.Code) (*ir.Code, error) {
	var candidates []ir.Pos
	ir.Pass(c, ir.VisitFunc(func(v ir.View) {
		if isArith(v.Op) {
			candidates = append(candidates, v.Pos)
		}
	}))
	if len(candidates) == 0 {
		return c, nil
	}
	target := candidates[m.rng.IntN(len(candidates))]

	r := remap.New(c)
	ir.Pass(c, ir.VisitFunc(func(v ir.View) {
		if v.Pos == target {
			a := r.Map(v.Ref(0))
			b := r.Map(v.Ref(1))
			newPos := r.Emit(v.Op, ir.Word(b), ir.Word(a))
			r.Alias(v.Pos, newPos)
			return
		}
		r.Forward(v)
	}))
	return r.New, nil
}

// deleteDeadMove removes one Move into a Temp that is never otherwise
// referenced (not read, not written again) anywhere in the program.
func (m *Mutator) deleteDeadMove(c *ir.Code) (*ir.Code, error) {
	counts := refcounts(c)
	var candidates []ir.Pos
	ir.Pass(c, ir.VisitFunc(func(v ir.View) {
		if v.Op != ir.Move {
			return
		}
		dst := v.Ref(0)
		if c.NodeAt(dst).Op == ir.Temp && counts[dst] == 1 {
			candidates = append(candidates, v.Pos)
		}
	}))
	if len(candidates) == 0 {
		return c, nil
	}
	target := candidates[m.rng.IntN(len(candidates))]

	r := remap.New(c)
	ir.Pass(c, ir.VisitFunc(func(v ir.View) {
		if v.Pos == target {
			return
		}
		r.Forward(v)
	}))
	return r.New, nil
}

// insertDeadNode appends a fresh, unreferenced Add(pos, Imm) node right
// after a randomly chosen existing value-producing node; it changes the
// program's shape without changing its observable result.
func (m *Mutator) insertDeadNode(c *ir.Code) (*ir.Code, error) {
	var candidates []ir.Pos
	ir.Pass(c, ir.VisitFunc(func(v ir.View) {
		switch v.Op.Category() {
		case ir.CatValueSource, ir.CatArith:
			candidates = append(candidates, v.Pos)
		}
	}))
	if len(candidates) == 0 {
		return c, nil
	}
	insertAfter := candidates[m.rng.IntN(len(candidates))]
	extra := m.rng.Int64N(100)

	r := remap.New(c)
	ir.Pass(c, ir.VisitFunc(func(v ir.View) {
		newPos := r.Forward(v)
		if v.Pos == insertAfter {
			imm := r.Emit(ir.Imm, ir.Word(extra))
			r.Emit(ir.Add, ir.Word(newPos), ir.Word(imm))
		}
	}))
	return r.New, nil
}

// changeImmediate replaces one Imm node's literal value with a new
// random one.
func (m *Mutator) changeImmediate(c *ir.Code) (*ir.Code, error) {
	var candidates []ir.Pos
	ir.Pass(c, ir.VisitFunc(func(v ir.View) {
		if v.Op == ir.Imm {
			candidates = append(candidates, v.Pos)
		}
	}))
	if len(candidates) == 0 {
		return c, nil
	}
	target := candidates[m.rng.IntN(len(candidates))]
	newVal := m.rng.Int64N(100)

	r := remap.New(c)
	ir.Pass(c, ir.VisitFunc(func(v ir.View) {
		if v.Pos == target {
			newPos := r.Emit(ir.Imm, ir.Word(newVal))
			r.Alias(v.Pos, newPos)
			return
		}
		r.Forward(v)
	}))
	return r.New, nil
}
