package ir

// OpCode is a compact identifier for one IR node kind. It does not mirror
// any machine encoding — it is purely the container's own tag.
type OpCode uint16

// Category groups opcodes by the semantic role each one plays. It is not a
// class hierarchy: dispatch on Category is a hint for passes (the
// simplifier's purity/liveness rules, the semantics view's type walk), not
// a polymorphic interface.
type Category uint8

const (
	CatTypeCtor Category = iota
	CatValueSource
	CatArith
	CatCompare
	CatConvert
	CatMemEffect
	CatGotoControl
	CatStructControl
	CatFraming
	CatAllocEmission
)

const (
	// === Type constructors (pure) ===
	Int OpCode = iota // Int(width): width<0 means signed, raw scalar arg
	Ptr               // Ptr(): no args
	Fun               // Fun(cc, rty, argtys...): cc scalar, rty ref, argtys refs

	// === Value sources ===
	Imm  // Imm(v): v raw scalar
	Arg  // Arg(fun, k): fun ref to Enter, k raw scalar
	RVal // RVal(fun): fun ref to Enter
	Temp // Temp(type): type ref
	Reg  // Reg(var, reg_or_group): var ref, reg_or_group raw scalar

	// === Arithmetic (pure) ===
	Add
	Sub
	Mul
	Div
	And
	Or
	Xor
	Neg
	Not

	// === Comparisons (pure) ===
	Eq
	Neq
	Lt
	Lte
	Gt
	Gte

	// === Conversions (pure) ===
	Cast // Cast(dst_ty, val)
	Conv // Conv(dst_ty, val)

	// === Memory and effect ===
	Move   // Move(dst, src)
	Ld     // Ld(addr)
	St     // St(addr, val)
	Invoke // Invoke(fun, args...)

	// === Goto-form control ===
	Label  // Label(): no args
	Mark   // Mark(label)
	Jump   // Jump(label)
	Branch // Branch(label, cond)

	// === Structured control ===
	Forever // Forever(): no args
	Repeat  // Repeat(forever)
	Skip    // Skip(): no args
	SkipIf  // SkipIf(cond)
	Here    // Here(skip)

	// === Function framing ===
	Enter // Enter(funtype)
	Exit  // Exit(fun)

	// === Allocator emissions ===
	RMove // RMove(dst_reg, src_reg): both raw scalars
	RSwap // RSwap(reg_a, reg_b): both raw scalars

	opCodeCount // sentinel
)

var opNames [opCodeCount]string

// opInfo holds static per-opcode metadata, populated below in init() as
// grouped literal tables rather than one switch per accessor.
type opInfo struct {
	name         string
	category     Category
	pure         bool
	writesArg0   bool // true for Move/RMove: "first arg is a write target"
	argIsRef     []bool
	variadicRefs bool // args beyond len(argIsRef) are node references
}

var catalog [opCodeCount]opInfo

// Name returns the opcode's mnemonic, used by Render/irtext.
func (op OpCode) Name() string {
	if int(op) < 0 || int(op) >= int(opCodeCount) {
		return "Unknown"
	}
	return catalog[op].name
}

func (op OpCode) info() opInfo {
	return catalog[op]
}

// IsPure reports whether op is free of observable side effects.
func (op OpCode) IsPure() bool { return catalog[op].pure }

// Category reports op's semantic grouping.
func (op OpCode) Category() Category { return catalog[op].category }

// WritesArg0 reports whether the node's first argument names a storage
// location that this opcode assigns to (Move, RMove). St reports false:
// its first argument is an address it reads.
func (op OpCode) WritesArg0() bool { return catalog[op].writesArg0 }

// ArgIsRef reports whether argument index i of a node with this opcode is
// a node-position reference (true) or a raw scalar (false).
func (op OpCode) ArgIsRef(i int) bool {
	info := catalog[op]
	if i < len(info.argIsRef) {
		return info.argIsRef[i]
	}
	return info.variadicRefs
}

func init() {
	type row struct {
		op       OpCode
		name     string
		cat      Category
		pure     bool
		writes0  bool
		argRefs  []bool
		variadic bool
	}
	rows := []row{
		{Int, "Int", CatTypeCtor, true, false, []bool{false}, false},
		{Ptr, "Ptr", CatTypeCtor, true, false, nil, false},
		{Fun, "Fun", CatTypeCtor, true, false, []bool{false, true}, true},

		{Imm, "Imm", CatValueSource, true, false, []bool{false}, false},
		{Arg, "Arg", CatValueSource, true, false, []bool{true, false}, false},
		{RVal, "RVal", CatValueSource, true, false, []bool{true}, false},
		{Temp, "Temp", CatValueSource, true, false, []bool{true}, false},
		{Reg, "Reg", CatValueSource, true, false, []bool{true, false}, false},

		{Add, "Add", CatArith, true, false, []bool{true, true}, false},
		{Sub, "Sub", CatArith, true, false, []bool{true, true}, false},
		{Mul, "Mul", CatArith, true, false, []bool{true, true}, false},
		{Div, "Div", CatArith, true, false, []bool{true, true}, false},
		{And, "And", CatArith, true, false, []bool{true, true}, false},
		{Or, "Or", CatArith, true, false, []bool{true, true}, false},
		{Xor, "Xor", CatArith, true, false, []bool{true, true}, false},
		{Neg, "Neg", CatArith, true, false, []bool{true}, false},
		{Not, "Not", CatArith, true, false, []bool{true}, false},

		{Eq, "Eq", CatCompare, true, false, []bool{true, true}, false},
		{Neq, "Neq", CatCompare, true, false, []bool{true, true}, false},
		{Lt, "Lt", CatCompare, true, false, []bool{true, true}, false},
		{Lte, "Lte", CatCompare, true, false, []bool{true, true}, false},
		{Gt, "Gt", CatCompare, true, false, []bool{true, true}, false},
		{Gte, "Gte", CatCompare, true, false, []bool{true, true}, false},

		{Cast, "Cast", CatConvert, true, false, []bool{true, true}, false},
		{Conv, "Conv", CatConvert, true, false, []bool{true, true}, false},

		{Move, "Move", CatMemEffect, false, true, []bool{true, true}, false},
		{Ld, "Ld", CatMemEffect, false, false, []bool{true}, false},
		{St, "St", CatMemEffect, false, false, []bool{true, true}, false},
		{Invoke, "Invoke", CatMemEffect, false, false, []bool{true}, true},

		{Label, "Label", CatGotoControl, false, false, nil, false},
		{Mark, "Mark", CatGotoControl, false, false, []bool{true}, false},
		{Jump, "Jump", CatGotoControl, false, false, []bool{true}, false},
		{Branch, "Branch", CatGotoControl, false, false, []bool{true, true}, false},

		{Forever, "Forever", CatStructControl, false, false, nil, false},
		{Repeat, "Repeat", CatStructControl, false, false, []bool{true}, false},
		{Skip, "Skip", CatStructControl, false, false, nil, false},
		{SkipIf, "SkipIf", CatStructControl, false, false, []bool{true}, false},
		{Here, "Here", CatStructControl, false, false, []bool{true}, false},

		{Enter, "Enter", CatFraming, false, false, []bool{true}, false},
		{Exit, "Exit", CatFraming, false, false, []bool{true}, false},

		{RMove, "RMove", CatAllocEmission, false, true, []bool{false, false}, false},
		{RSwap, "RSwap", CatAllocEmission, false, false, []bool{false, false}, false},
	}
	for _, r := range rows {
		catalog[r.op] = opInfo{
			name:         r.name,
			category:     r.cat,
			pure:         r.pure,
			writesArg0:   r.writes0,
			argIsRef:     r.argRefs,
			variadicRefs: r.variadic,
		}
		opNames[r.op] = r.name
	}
}
