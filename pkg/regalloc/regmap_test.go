package regalloc

import (
	"testing"

	"github.com/oisee/codegen/pkg/ir"
	"github.com/oisee/codegen/pkg/target/x64"
)

func TestAddLookupDrop(t *testing.T) {
	m := NewRegmap()
	m.Add(10, x64.RAX)
	if r, ok := m.Lookup(10); !ok || r != x64.RAX {
		t.Fatalf("Lookup = %v, %v", r, ok)
	}
	if r, ok := m.Drop(10); !ok || r != x64.RAX {
		t.Fatalf("Drop = %v, %v", r, ok)
	}
	if _, ok := m.Lookup(10); ok {
		t.Error("expected Lookup to fail after Drop")
	}
}

func TestOldestFirstOrder(t *testing.T) {
	m := NewRegmap()
	m.Add(1, x64.RAX)
	m.Add(2, x64.RCX)
	m.Add(3, x64.RDX)
	got := m.Compact()
	want := []ir.Pos{1, 2, 3}
	for i, e := range got {
		if e.Pos != want[i] {
			t.Errorf("Compact()[%d].Pos = %d, want %d", i, e.Pos, want[i])
		}
	}
}

func TestMovePreservesOrderPosition(t *testing.T) {
	m := NewRegmap()
	m.Add(1, x64.RAX)
	m.Add(2, x64.RCX)
	m.Move(1, x64.RDX)
	entries := m.Compact()
	if entries[0].Pos != 1 || entries[0].Reg != x64.RDX {
		t.Errorf("Move should change register in place, got %+v", entries[0])
	}
}

func TestCombineKeepsOldestAcrossBoth(t *testing.T) {
	a := NewRegmap()
	a.Add(1, x64.RAX)
	b := NewRegmap()
	b.Add(1, x64.RCX) // same var, different reg: a's binding should win
	b.Add(2, x64.RDX)
	out := Combine(a, b)
	if r, _ := out.Lookup(1); r != x64.RAX {
		t.Errorf("Combine should keep a's binding for shared var 1, got %v", r)
	}
	if r, _ := out.Lookup(2); r != x64.RDX {
		t.Errorf("Combine should adopt b's unique var 2, got %v", r)
	}
}

func TestChangeFromDetectsSpillMoveFill(t *testing.T) {
	prev := NewRegmap()
	prev.Add(1, x64.RAX) // will be spilled (absent in m)
	prev.Add(2, x64.RCX) // will move to RDX

	m := NewRegmap()
	m.Add(2, x64.RDX)
	m.Add(3, x64.RSI) // fill: wasn't in prev

	actions := m.ChangeFrom(prev)
	var sawSpill, sawMove, sawFill bool
	for _, a := range actions {
		switch a.Kind {
		case ActionSpill:
			sawSpill = true
			if a.Pos != 1 {
				t.Errorf("expected spill of var 1, got %d", a.Pos)
			}
		case ActionMove:
			sawMove = true
			if a.Pos != 2 || a.From != x64.RCX || a.To != x64.RDX {
				t.Errorf("unexpected move action %+v", a)
			}
		case ActionFill:
			sawFill = true
			if a.Pos != 3 || a.To != x64.RSI {
				t.Errorf("unexpected fill action %+v", a)
			}
		}
	}
	if !sawSpill || !sawMove || !sawFill {
		t.Errorf("expected spill, move, and fill actions; got %+v", actions)
	}
}

func TestAssignImprintsOntoTarget(t *testing.T) {
	td := x64.New()
	m := NewRegmap()
	m.Add(1, x64.RAX)
	m.Assign(td)
	if td.IsCompatible(x64.ClassQword, x64.RAX) == false {
		t.Fatal("RAX should still be a valid register class target")
	}
	if r, ok := td.GetFree(x64.ClassQword); ok && r == x64.RAX {
		t.Error("RAX should be marked busy after Assign, GetFree should not return it")
	}
}
