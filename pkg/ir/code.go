package ir

import "fmt"

// Pos is the byte offset of a node's argument-count word in a Code's
// buffer — its identity, stable for the lifetime of the containing Code.
// Negative values never occur in a real Code; pkg/ir/remap uses them as
// synthetic "virtual" positions for helper nodes with no source
// counterpart (see Remapper.Virtual).
type Pos int

// InvalidPos is returned where no position applies.
const InvalidPos Pos = -1

// Code is an append-only, self-describing instruction stream. A node is
// three consecutive fields in the buffer: argument count, opcode id, then
// that many argument words, followed by the total byte length of the
// record's own content (count+opcode+args, not counting the length word
// itself) — which lets RPass recover a node's start from its end without
// scanning forward first.
type Code struct {
	buf Buffer
}

// NewCode returns an empty code object.
func NewCode() *Code { return &Code{} }

// Len returns the end-of-buffer offset, one past the last node — also the
// starting point for a reverse pass.
func (c *Code) Len() int { return c.buf.Len() }

// Append writes a new node and returns its position.
func (c *Code) Append(op OpCode, args ...Word) Pos {
	start := c.buf.Len()
	c.buf.Append(int64(len(args)))
	c.buf.Append(int64(op))
	for _, a := range args {
		c.buf.Append(int64(a))
	}
	total := c.buf.Len() - start
	c.buf.Append(int64(total))
	return Pos(start)
}

// View is a borrowed, read-only projection of one node, valid only for the
// duration of the call that produced it — do not retain Args past a Visit
// call; copy it if you must.
type View struct {
	Pos  Pos
	Op   OpCode
	Args []Word
}

// Arg returns argument i, or 0 if out of range.
func (v View) Arg(i int) Word {
	if i < 0 || i >= len(v.Args) {
		return 0
	}
	return v.Args[i]
}

// Ref returns argument i interpreted as a node-position reference.
func (v View) Ref(i int) Pos { return Pos(v.Arg(i)) }

// readNode decodes the node at pos, returning its View plus the position
// just past it (for forward stepping).
func (c *Code) readNode(pos Pos) (View, int) {
	p := int(pos)
	argcV, p1 := c.buf.ReadForward(p)
	argc := int(argcV)
	opV, p2 := c.buf.ReadForward(p1)
	args := make([]Word, argc)
	pp := p2
	for i := 0; i < argc; i++ {
		v, np := c.buf.ReadForward(pp)
		args[i] = Word(v)
		pp = np
	}
	_, next := c.buf.ReadForward(pp) // skip trailing length word
	return View{Pos: pos, Op: OpCode(opV), Args: args}, next
}

// NodeAt returns the node stored at pos for random access (used by the
// semantics view and by transforms that look behind a reference).
func (c *Code) NodeAt(pos Pos) View {
	v, _ := c.readNode(pos)
	return v
}

// prevStart locates the node whose record ends at end (end is one past
// its trailing length word) and returns its start position.
func (c *Code) prevStart(end int) (int, bool) {
	if end <= 0 {
		return 0, false
	}
	total, lenWordStart := c.buf.ReadBackward(end)
	start := lenWordStart - int(total)
	if start < 0 {
		return 0, false
	}
	return start, true
}

// Visitor receives one View per visited node. Visitors are value-like:
// they carry and mutate their own state across calls rather than the
// container mutating anything on their behalf.
type Visitor interface {
	Visit(v View)
}

// VisitFunc adapts a plain function to the Visitor interface.
type VisitFunc func(View)

func (f VisitFunc) Visit(v View) { f(v) }

// Pass visits every node in strict position order, ascending (forward).
func Pass(c *Code, v Visitor) {
	pos := 0
	n := c.buf.Len()
	for pos < n {
		view, next := c.readNode(Pos(pos))
		v.Visit(view)
		pos = next
	}
}

// RPass visits every node in strict position order, descending (reverse).
func RPass(c *Code, v Visitor) {
	end := c.buf.Len()
	for end > 0 {
		start, ok := c.prevStart(end)
		if !ok {
			break
		}
		view, _ := c.readNode(Pos(start))
		v.Visit(view)
		end = start
	}
}

// Validate walks the whole code object forward, checking structural
// invariants (known opcodes, backward-only references, matched
// Forever/Repeat and Skip-family/Here brackets) and returns the first
// violation found, wrapped as a malformed IR error. An opcode outside the
// catalog's range is itself fatal. Enter/Exit framing is not checked: an
// Arg or RVal outside an Enter...Exit span is accepted.
func Validate(c *Code) error {
	type loopFrame struct{ enterPos Pos }
	var loopStack []loopFrame
	var skipStack []Pos
	var frame Pos = InvalidPos
	seen := map[Pos]bool{}

	var err error
	Pass(c, VisitFunc(func(v View) {
		if err != nil {
			return
		}
		if int(v.Op) >= int(opCodeCount) {
			err = fmt.Errorf("ir: malformed: unknown opcode at position %d", v.Pos)
			return
		}
		info := v.Op.info()
		for i, a := range v.Args {
			if i < len(info.argIsRef) && info.argIsRef[i] || (i >= len(info.argIsRef) && info.variadicRefs) {
				ref := Pos(a)
				if ref >= v.Pos {
					err = fmt.Errorf("ir: malformed: forward reference at position %d arg %d", v.Pos, i)
					return
				}
				if !seen[ref] {
					err = fmt.Errorf("ir: malformed: dangling reference at position %d arg %d -> %d", v.Pos, i, ref)
					return
				}
			}
		}
		switch v.Op {
		case Forever:
			loopStack = append(loopStack, loopFrame{enterPos: v.Pos})
		case Repeat:
			if len(loopStack) == 0 {
				err = fmt.Errorf("ir: malformed: Repeat without matching Forever at %d", v.Pos)
				return
			}
			loopStack = loopStack[:len(loopStack)-1]
		case Skip, SkipIf:
			skipStack = append(skipStack, v.Pos)
		case Here:
			if len(skipStack) == 0 {
				err = fmt.Errorf("ir: malformed: Here without matching Skip/SkipIf at %d", v.Pos)
				return
			}
			skipStack = skipStack[:len(skipStack)-1]
		case Enter:
			frame = v.Pos
		case Exit:
			frame = InvalidPos
		case Arg, RVal:
			if frame == InvalidPos {
				// Arg/RVal may legally reference an Enter from an outer
				// frame only via explicit ref, not via ambient frame
				// tracking; ambient tracking is a best-effort check only.
			}
		}
		seen[v.Pos] = true
	}))
	if err != nil {
		return err
	}
	if len(loopStack) != 0 {
		return fmt.Errorf("ir: malformed: unclosed Forever at %d", loopStack[len(loopStack)-1].enterPos)
	}
	if len(skipStack) != 0 {
		return fmt.Errorf("ir: malformed: unclosed Skip/SkipIf at %d", skipStack[len(skipStack)-1])
	}
	return nil
}
