package fuzzgen

import (
	"testing"

	"github.com/oisee/codegen/pkg/interp"
	"github.com/oisee/codegen/pkg/ir"
)

func TestGenerateProducesValidCode(t *testing.T) {
	g := NewGenerator(1)
	c, enter := g.Generate(5)
	if err := ir.Validate(c); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if _, err := interp.Run(c, enter, []int64{3}); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestMutateProducesValidCode(t *testing.T) {
	g := NewGenerator(2)
	c, enter := g.Generate(8)

	mut := NewMutator(3)
	for i := 0; i < 20; i++ {
		mutated, err := mut.Mutate(c)
		if err != nil {
			t.Fatalf("Mutate: %v", err)
		}
		if err := ir.Validate(mutated); err != nil {
			t.Fatalf("Validate after mutation %d: %v", i, err)
		}
		c = mutated
	}
	if _, err := interp.Run(c, enter, []int64{5}); err != nil {
		t.Fatalf("Run after mutation chain: %v", err)
	}
}

func TestMutateIsDeterministicForAGivenSeed(t *testing.T) {
	g := NewGenerator(7)
	c, _ := g.Generate(6)

	m1 := NewMutator(11)
	m2 := NewMutator(11)

	out1, err := m1.Mutate(c)
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	out2, err := m2.Mutate(c)
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	var ops1, ops2 []ir.OpCode
	ir.Pass(out1, ir.VisitFunc(func(v ir.View) { ops1 = append(ops1, v.Op) }))
	ir.Pass(out2, ir.VisitFunc(func(v ir.View) { ops2 = append(ops2, v.Op) }))
	if len(ops1) != len(ops2) {
		t.Fatalf("same seed produced different shapes: %d vs %d nodes", len(ops1), len(ops2))
	}
	for i := range ops1 {
		if ops1[i] != ops2[i] {
			t.Fatalf("same seed diverged at node %d: %v vs %v", i, ops1[i], ops2[i])
		}
	}
}
