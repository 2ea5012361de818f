package pipeline

import (
	"fmt"

	"github.com/oisee/codegen/pkg/ir"
	"github.com/oisee/codegen/pkg/ir/sema"
	"github.com/oisee/codegen/pkg/target"
	"github.com/oisee/codegen/pkg/x64enc"
)

// flatProgram is the same index-addressed flattening pkg/interp builds
// to step a program counter through Forever/Repeat/Skip-family nodes;
// here it walks goto-form (Label/Mark/Jump/Branch) code instead, so
// codegen only ever needs a single straight-line pass plus label
// bookkeeping the assembler already resolves.
type flatProgram struct {
	nodes []ir.View
	index map[ir.Pos]int
}

func flatten(c *ir.Code) *flatProgram {
	p := &flatProgram{index: map[ir.Pos]int{}}
	ir.Pass(c, ir.VisitFunc(func(v ir.View) {
		p.index[v.Pos] = len(p.nodes)
		p.nodes = append(p.nodes, v)
	}))
	return p
}

func labelName(pos ir.Pos) string { return fmt.Sprintf("L%d", pos) }

// regOf reports whether pos names a Reg node left by the register
// allocator, returning the concrete physical register it holds.
func regOf(c *ir.Code, pos ir.Pos) (target.Reg, bool) {
	v := c.NodeAt(pos)
	if v.Op != ir.Reg {
		return 0, false
	}
	return target.Reg(v.Arg(1)), true
}

func immOf(c *ir.Code, pos ir.Pos) (int64, bool) {
	v := c.NodeAt(pos)
	if v.Op != ir.Imm {
		return 0, false
	}
	return v.Arg(0), true
}

// assemble walks the fully lowered, goto-form IR reachable from enter
// and emits the matching x86-64 text. It understands exactly the
// operations pkg/rtl, pkg/regalloc, and pkg/abi can leave behind for
// this narrow encoder; anything outside that (Invoke, Mul/Div as a
// runtime operation, a comparison whose left operand isn't in a
// register) is a codegen error rather than a silent miscompile — this
// encoder is deliberately not a general x86-64 assembler, mirroring
// pkg/x64enc's own documented scope.
func assemble(c *ir.Code, enter ir.Pos) ([]byte, error) {
	p := flatten(c)
	startIdx, ok := p.index[enter]
	if !ok {
		return nil, fmt.Errorf("codegen: enter position %d not found", enter)
	}

	asm := x64enc.New()
	for pc := startIdx + 1; pc < len(p.nodes); pc++ {
		v := p.nodes[pc]
		switch v.Op {
		case ir.Enter:
			// handled by the caller locating offset 0; nothing to emit.
		case ir.Exit:
			asm.Ret()
		case ir.Label:
			// a name only; the Mark site is what records the offset.
		case ir.Mark:
			asm.Label(labelName(v.Ref(0)))
		case ir.Jump:
			asm.Jmp(labelName(v.Ref(0)))
		case ir.Branch:
			if err := emitBranch(c, asm, v); err != nil {
				return nil, err
			}
		case ir.RMove:
			dst, src := target.Reg(v.Arg(0)), target.Reg(v.Arg(1))
			if dst != src {
				asm.MovRegReg(dst, src)
			}
		case ir.RSwap:
			a, b := target.Reg(v.Arg(0)), target.Reg(v.Arg(1))
			if a != b {
				// xchg via three xors: no dedicated swap opcode in this
				// narrow encoder, so realize it with the xor trick.
				asm.Arith(x64enc.Xor, a, b)
				asm.Arith(x64enc.Xor, b, a)
				asm.Arith(x64enc.Xor, a, b)
			}
		case ir.Move:
			if err := emitMove(c, asm, v); err != nil {
				return nil, err
			}
		case ir.Ld, ir.St:
			if err := emitMem(c, asm, v); err != nil {
				return nil, err
			}
		case ir.Invoke:
			return nil, fmt.Errorf("codegen: Invoke at %d: calls to other IR-described functions are not supported", v.Pos)
		default:
			// pure value-producing nodes (type constructors, arithmetic,
			// compares, conversions) and structured-control markers are
			// inert as bare statements; they're only consulted on demand
			// by Move/Branch above.
		}
	}
	return asm.Resolve()
}

// emitMove realizes Move(dst, src): dst must be a Reg node (the only
// storage shape left by this point — a Temp/Arg/RVal would already
// have been wrapped by pkg/rtl), and src is evaluated directly into
// dst's register.
func emitMove(c *ir.Code, asm *x64enc.Assembler, v ir.View) error {
	dstReg, ok := regOf(c, v.Ref(0))
	if !ok {
		return fmt.Errorf("codegen: Move at %d: destination %d is not a register", v.Pos, v.Ref(0))
	}
	return evalInto(c, asm, dstReg, v.Ref(1))
}

// evalInto computes the value at src and leaves it in dstReg.
func evalInto(c *ir.Code, asm *x64enc.Assembler, dstReg target.Reg, src ir.Pos) error {
	v := c.NodeAt(src)
	switch v.Op {
	case ir.Imm:
		asm.MovRegImm32(dstReg, int32(v.Arg(0)))
		return nil
	case ir.Reg:
		srcReg := target.Reg(v.Arg(1))
		if srcReg != dstReg {
			asm.MovRegReg(dstReg, srcReg)
		}
		return nil
	case ir.Add, ir.Sub, ir.And, ir.Or, ir.Xor:
		return evalBinary(c, asm, dstReg, v)
	case ir.Neg:
		if err := loadOperandInto(c, asm, dstReg, v.Ref(0)); err != nil {
			return err
		}
		asm.Neg(dstReg)
		return nil
	case ir.Not:
		if err := loadOperandInto(c, asm, dstReg, v.Ref(0)); err != nil {
			return err
		}
		asm.Not(dstReg)
		return nil
	}
	return fmt.Errorf("codegen: unsupported value-producing node %s at %d (this encoder has no Mul/Div/comparison-as-value form)", v.Op.Name(), v.Pos)
}

// loadOperandInto puts operand's value into dstReg, for a unary op
// about to be applied in place.
func loadOperandInto(c *ir.Code, asm *x64enc.Assembler, dstReg target.Reg, operand ir.Pos) error {
	return evalInto(c, asm, dstReg, operand)
}

var group1ByOp = map[ir.OpCode]x64enc.Group1{
	ir.Add: x64enc.Add,
	ir.Sub: x64enc.Sub,
	ir.And: x64enc.And,
	ir.Or:  x64enc.Or,
	ir.Xor: x64enc.Xor,
}

// evalBinary implements the two-address pattern every supported binary
// arithmetic op reduces to: move the left operand into dstReg (unless
// it's already there), then apply the ALU op against the right
// operand, which may be a register or a 32-bit immediate.
func evalBinary(c *ir.Code, asm *x64enc.Assembler, dstReg target.Reg, v ir.View) error {
	g1, ok := group1ByOp[v.Op]
	if !ok {
		return fmt.Errorf("codegen: unsupported arithmetic op %s at %d", v.Op.Name(), v.Pos)
	}
	if err := loadOperandInto(c, asm, dstReg, v.Ref(0)); err != nil {
		return err
	}
	rhs := c.NodeAt(v.Ref(1))
	switch rhs.Op {
	case ir.Imm:
		asm.ArithImm32(g1, dstReg, int32(rhs.Arg(0)))
		return nil
	case ir.Reg:
		asm.Arith(g1, dstReg, target.Reg(rhs.Arg(1)))
		return nil
	}
	return fmt.Errorf("codegen: right operand of %s at %d is neither a register nor an immediate", v.Op.Name(), v.Pos)
}

var condByCompare = map[ir.OpCode]struct{ signed, unsigned x64enc.Cond }{
	ir.Eq:  {x64enc.CondE, x64enc.CondE},
	ir.Neq: {x64enc.CondNE, x64enc.CondNE},
	ir.Lt:  {x64enc.CondL, x64enc.CondB},
	ir.Lte: {x64enc.CondLE, x64enc.CondBE},
	ir.Gt:  {x64enc.CondG, x64enc.CondA},
	ir.Gte: {x64enc.CondGE, x64enc.CondAE},
}

// emitBranch realizes Branch(label, cond): cond must name a compare
// node directly (Eq/Neq/Lt/Lte/Gt/Gte), never a materialized 0/1 value
// — this encoder has no SETcc, so a comparison only ever reaches
// codegen as the immediate operand of a Branch, exactly as
// pkg/ctrlflow.Unstructurize leaves it.
func emitBranch(c *ir.Code, asm *x64enc.Assembler, v ir.View) error {
	label := v.Ref(0)
	cond := c.NodeAt(v.Ref(1))

	conds, ok := condByCompare[cond.Op]
	if !ok {
		return fmt.Errorf("codegen: Branch at %d does not condition on a comparison (got %s); this encoder has no SETcc form", v.Pos, cond.Op.Name())
	}

	lhsReg, ok := regOf(c, cond.Ref(0))
	if !ok {
		return fmt.Errorf("codegen: comparison at %d: left operand %d is not a register", cond.Pos, cond.Ref(0))
	}

	// Comparisons carry no type node of their own; read the sign off
	// the left operand, exactly as sema.TypeOf's doc directs.
	signed, _ := sema.Sign(c, cond.Ref(0))
	jccCond := conds.unsigned
	if signed {
		jccCond = conds.signed
	}

	rhs := c.NodeAt(cond.Ref(1))
	switch rhs.Op {
	case ir.Imm:
		asm.ArithImm32(x64enc.Cmp, lhsReg, int32(rhs.Arg(0)))
	case ir.Reg:
		asm.Arith(x64enc.Cmp, lhsReg, target.Reg(rhs.Arg(1)))
	default:
		return fmt.Errorf("codegen: comparison at %d: right operand %d is neither a register nor an immediate", cond.Pos, cond.Ref(1))
	}
	asm.Jcc(jccCond, labelName(label))
	return nil
}

// emitMem rejects every Ld and St: this encoder has no memory-addressing
// form for them, so any memory access is a codegen error.
func emitMem(c *ir.Code, asm *x64enc.Assembler, v ir.View) error {
	return fmt.Errorf("codegen: %s at %d: memory addressing is not supported by this encoder", v.Op.Name(), v.Pos)
}
