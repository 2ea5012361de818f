// Package interp is a tree-walking oracle over *ir.Code: ground truth
// for the fuzzer and for conformance tests, never consulted by the
// compilation pipeline itself.
//
// Directly grounded on pkg/cpu.Exec(s *State, op OpCode,
// imm uint16) int: a switch over opcodes mutating a State in place. Here
// State holds a map of live node positions to int64 values (the
// "register file" is just every Temp/Arg/RVal node's own position) plus
// a simple word-addressed memory for Ld/St, and Run walks Enter...Exit
// executing each node's effect exactly as Exec walks one instruction at
// a time.
package interp

import (
	"fmt"

	"github.com/oisee/codegen/pkg/ir"
	"github.com/oisee/codegen/pkg/ir/sema"
)

// maskTable[w] is the bitmask covering the low w bits, for w in 1..64;
// signBit[w] is the bit marking a w-bit two's-complement value negative.
// Precomputed once in init(), the same "build a small table once" shape
// as the Sz53Table flag-parity lookup.
var maskTable [65]uint64
var signBit [65]uint64

func init() {
	for w := 1; w <= 64; w++ {
		if w == 64 {
			maskTable[w] = ^uint64(0)
		} else {
			maskTable[w] = (uint64(1) << uint(w)) - 1
		}
		signBit[w] = uint64(1) << uint(w-1)
	}
}

func truncate(v int64, width int) int64 {
	if width <= 0 || width > 64 {
		return v
	}
	return int64(uint64(v) & maskTable[width])
}

func signExtend(v int64, width int) int64 {
	if width <= 0 || width >= 64 {
		return v
	}
	u := uint64(v) & maskTable[width]
	if u&signBit[width] != 0 {
		u |= ^maskTable[width]
	}
	return int64(u)
}

// State is one call's mutable execution context: every Temp/Arg/RVal
// slot's current value, plus a flat word-addressed memory for Ld/St.
type State struct {
	vals   map[ir.Pos]int64
	mem    map[int64]int64
	args   []int64
	result map[ir.Pos]int64 // enter pos -> last value written to its RVal slot
}

func newState(args []int64) *State {
	return &State{
		vals:   map[ir.Pos]int64{},
		mem:    map[int64]int64{},
		args:   args,
		result: map[ir.Pos]int64{},
	}
}

// program is the flattened, index-addressed view of a Code object that
// Run steps through with an explicit program counter, the same flat
// linear-execution shape pkg/cpu.Exec assumes for a Z80 instruction
// stream, generalized here with forward/backward jump tables for the
// structured control forms.
type program struct {
	nodes     []ir.View
	index     map[ir.Pos]int
	afterHere map[ir.Pos]int // Skip/SkipIf pos -> index right after its Here
}

func build(c *ir.Code) *program {
	p := &program{index: map[ir.Pos]int{}, afterHere: map[ir.Pos]int{}}
	ir.Pass(c, ir.VisitFunc(func(v ir.View) {
		p.index[v.Pos] = len(p.nodes)
		p.nodes = append(p.nodes, v)
	}))
	for i, v := range p.nodes {
		if v.Op == ir.Here {
			p.afterHere[v.Ref(0)] = i + 1
		}
	}
	return p
}

// Run executes the function whose Enter node is at enter, with the given
// argument values, returning whatever value was last written to its
// RVal slot (0 if the function never writes one). c must already be in
// structured control-flow form (Forever/Repeat/Skip/SkipIf/Here); a
// goto-form Label/Mark/Jump/Branch node is an error here — run
// ctrlflow.Structurize first.
func Run(c *ir.Code, enter ir.Pos, args []int64) (int64, error) {
	if c.NodeAt(enter).Op != ir.Enter {
		return 0, fmt.Errorf("interp: position %d is not an Enter node", enter)
	}
	p := build(c)
	s := newState(args)
	return s.run(c, p, enter)
}

func (s *State) run(c *ir.Code, p *program, enter ir.Pos) (int64, error) {
	startIdx, ok := p.index[enter]
	if !ok {
		return 0, fmt.Errorf("interp: enter position %d not found", enter)
	}
	pc := startIdx + 1

	for pc < len(p.nodes) {
		v := p.nodes[pc]
		switch v.Op.Category() {
		case ir.CatFraming:
			if v.Op == ir.Exit {
				if v.Ref(0) == enter {
					return s.result[enter], nil
				}
			}
			pc++

		case ir.CatMemEffect:
			if err := s.execEffect(c, v); err != nil {
				return 0, err
			}
			pc++

		case ir.CatGotoControl:
			return 0, fmt.Errorf("interp: goto-form node %s at %d; structurize first", v.Op.Name(), v.Pos)

		case ir.CatStructControl:
			next, err := s.stepControl(c, p, v)
			if err != nil {
				return 0, err
			}
			pc = next

		default:
			// Pure value-producing nodes (CatTypeCtor, CatValueSource,
			// CatArith, CatCompare, CatConvert) have no effect as a bare
			// statement; their value is computed on demand by eval when
			// some later node references them.
			pc++
		}
	}
	return 0, fmt.Errorf("interp: fell off the end of the program without reaching Exit(%d)", enter)
}

func (s *State) stepControl(c *ir.Code, p *program, v ir.View) (int, error) {
	idx := p.index[v.Pos]
	switch v.Op {
	case ir.Forever:
		return idx + 1, nil
	case ir.Repeat:
		foreverPos := v.Ref(0)
		body, ok := p.index[foreverPos]
		if !ok {
			return 0, fmt.Errorf("interp: Repeat at %d references unknown Forever %d", v.Pos, foreverPos)
		}
		return body + 1, nil
	case ir.Skip:
		after, ok := p.afterHere[v.Pos]
		if !ok {
			return 0, fmt.Errorf("interp: Skip at %d has no matching Here", v.Pos)
		}
		return after, nil
	case ir.SkipIf:
		cond := s.eval(c, v.Ref(0))
		if cond != 0 {
			after, ok := p.afterHere[v.Pos]
			if !ok {
				return 0, fmt.Errorf("interp: SkipIf at %d has no matching Here", v.Pos)
			}
			return after, nil
		}
		return idx + 1, nil
	case ir.Here:
		return idx + 1, nil
	}
	return idx + 1, nil
}

func (s *State) execEffect(c *ir.Code, v ir.View) error {
	switch v.Op {
	case ir.Move:
		val := s.eval(c, v.Ref(1))
		return s.store(c, v.Ref(0), val)
	case ir.Ld:
		addr := s.eval(c, v.Ref(0))
		s.vals[v.Pos] = s.mem[addr]
		return nil
	case ir.St:
		addr := s.eval(c, v.Ref(0))
		val := s.eval(c, v.Ref(1))
		s.mem[addr] = val
		return nil
	case ir.Invoke:
		fn := v.Ref(0)
		var callArgs []int64
		for i := 1; i < len(v.Args); i++ {
			callArgs = append(callArgs, s.eval(c, v.Ref(i)))
		}
		sub := newState(callArgs)
		p := build(c)
		result, err := sub.run(c, p, fn)
		if err != nil {
			return fmt.Errorf("interp: invoke at %d: %w", v.Pos, err)
		}
		s.vals[v.Pos] = result
		return nil
	}
	return fmt.Errorf("interp: unhandled effect opcode %s at %d", v.Op.Name(), v.Pos)
}

// store resolves dst (a Temp/Arg/RVal, or a Reg wrapping one) to its
// underlying slot position and records val there.
func (s *State) store(c *ir.Code, dst ir.Pos, val int64) error {
	dv := c.NodeAt(dst)
	slot := dst
	if dv.Op == ir.Reg {
		slot = dv.Ref(0)
		dv = c.NodeAt(slot)
	}
	s.vals[slot] = val
	if dv.Op == ir.RVal {
		s.result[dv.Ref(0)] = val
	}
	return nil
}

// eval computes pos's current value, recursing into operands. Temp, Arg,
// and RVal are mutable slots read from State.vals (falling back to the
// call's argument array for an Arg never yet written); everything else
// is a pure expression recomputed from its operands.
func (s *State) eval(c *ir.Code, pos ir.Pos) int64 {
	v := c.NodeAt(pos)
	switch v.Op {
	case ir.Imm:
		return int64(v.Arg(0))
	case ir.Temp, ir.RVal:
		return s.vals[pos]
	case ir.Arg:
		if val, ok := s.vals[pos]; ok {
			return val
		}
		k := int(v.Arg(1))
		if k >= 0 && k < len(s.args) {
			return s.args[k]
		}
		return 0
	case ir.Reg:
		return s.eval(c, v.Ref(0))
	case ir.Add:
		return s.eval(c, v.Ref(0)) + s.eval(c, v.Ref(1))
	case ir.Sub:
		return s.eval(c, v.Ref(0)) - s.eval(c, v.Ref(1))
	case ir.Mul:
		return s.eval(c, v.Ref(0)) * s.eval(c, v.Ref(1))
	case ir.Div:
		rhs := s.eval(c, v.Ref(1))
		if rhs == 0 {
			return 0
		}
		return s.eval(c, v.Ref(0)) / rhs
	case ir.And:
		return s.eval(c, v.Ref(0)) & s.eval(c, v.Ref(1))
	case ir.Or:
		return s.eval(c, v.Ref(0)) | s.eval(c, v.Ref(1))
	case ir.Xor:
		return s.eval(c, v.Ref(0)) ^ s.eval(c, v.Ref(1))
	case ir.Neg:
		return -s.eval(c, v.Ref(0))
	case ir.Not:
		return ^s.eval(c, v.Ref(0))
	case ir.Eq:
		return boolInt(s.eval(c, v.Ref(0)) == s.eval(c, v.Ref(1)))
	case ir.Neq:
		return boolInt(s.eval(c, v.Ref(0)) != s.eval(c, v.Ref(1)))
	case ir.Lt:
		return boolInt(s.eval(c, v.Ref(0)) < s.eval(c, v.Ref(1)))
	case ir.Lte:
		return boolInt(s.eval(c, v.Ref(0)) <= s.eval(c, v.Ref(1)))
	case ir.Gt:
		return boolInt(s.eval(c, v.Ref(0)) > s.eval(c, v.Ref(1)))
	case ir.Gte:
		return boolInt(s.eval(c, v.Ref(0)) >= s.eval(c, v.Ref(1)))
	case ir.Cast, ir.Conv:
		raw := s.eval(c, v.Ref(1))
		width, ok := sema.Width(c, pos)
		if !ok {
			return raw
		}
		if signed, _ := sema.Sign(c, pos); signed {
			return signExtend(raw, width)
		}
		return truncate(raw, width)
	}
	return 0
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
