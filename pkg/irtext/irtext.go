// Package irtext is a Lispy textual surface syntax for *ir.Code:
// "[Name arg arg ...]" node forms, bare integers as shorthand for an
// inline Imm(n), "name: node" symbol bindings for anything referenced
// more than once or with a side effect, and "#" line comments.
//
// Grounded on the mnemonic-template substitution style used in
// pkg/inst.Disassemble (disasmImm8/disasmImm16 scan a fixed placeholder
// character and splice in a value), generalized here to scan an
// opcode's declared argument arity instead of a fixed placeholder.
package irtext

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/oisee/codegen/pkg/ir"
)

type tokenKind int

const (
	tokWord tokenKind = iota
	tokLBracket
	tokRBracket
	tokColon
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	line int
}

func lex(src string) []token {
	var toks []token
	line := 1
	i := 0
	n := len(src)
	for i < n {
		ch := src[i]
		switch {
		case ch == '\n':
			line++
			i++
		case ch == ' ' || ch == '\t' || ch == '\r':
			i++
		case ch == '#':
			for i < n && src[i] != '\n' {
				i++
			}
		case ch == '[':
			toks = append(toks, token{tokLBracket, "[", line})
			i++
		case ch == ']':
			toks = append(toks, token{tokRBracket, "]", line})
			i++
		case ch == ':':
			toks = append(toks, token{tokColon, ":", line})
			i++
		default:
			start := i
			for i < n && !isSpecial(src[i]) {
				i++
			}
			toks = append(toks, token{tokWord, src[start:i], line})
		}
	}
	toks = append(toks, token{tokEOF, "", line})
	return toks
}

func isSpecial(b byte) bool {
	switch b {
	case ' ', '\t', '\r', '\n', '[', ']', ':', '#':
		return true
	}
	return false
}

type parser struct {
	toks    []token
	pos     int
	code    *ir.Code
	symbols map[string]ir.Pos
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errf(format string, args ...interface{}) error {
	t := p.peek()
	return fmt.Errorf("irtext: line %d: %s", t.line, fmt.Sprintf(format, args...))
}

// Parse reads program text into a fresh *ir.Code. Symbols must be bound
// before use (textual order matches the backward-reference-only
// invariant every ir.Code already has to satisfy), via "name: [Form ...]".
func Parse(src string) (c *ir.Code, err error) {
	p := &parser{toks: lex(src), code: ir.NewCode(), symbols: map[string]ir.Pos{}}
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("irtext: %v", r)
		}
	}()

	for p.peek().kind != tokEOF {
		if err := p.statement(); err != nil {
			return nil, err
		}
	}
	return p.code, nil
}

func (p *parser) statement() error {
	if p.peek().kind == tokWord {
		save := p.pos
		name := p.next().text
		if p.peek().kind == tokColon {
			p.next() // consume ':'
			pos, err := p.form()
			if err != nil {
				return err
			}
			p.symbols[name] = pos
			return nil
		}
		p.pos = save
	}
	_, err := p.form()
	return err
}

// form parses one "[Name arg ...]" node, appends it, and returns its
// position. A bare top-level number is accepted as shorthand for Imm(n).
func (p *parser) form() (ir.Pos, error) {
	t := p.peek()
	if t.kind == tokWord {
		if pos, ok := p.tryNumber(t.text); ok {
			p.next()
			return p.code.Append(ir.Imm, ir.Word(pos)), nil
		}
		if ref, ok := p.symbols[t.text]; ok {
			p.next()
			return ref, nil
		}
		return 0, p.errf("unbound symbol %q", t.text)
	}
	if t.kind != tokLBracket {
		return 0, p.errf("expected '[' or a symbol, got %q", t.text)
	}
	p.next() // consume '['

	nameTok := p.next()
	if nameTok.kind != tokWord {
		return 0, p.errf("expected opcode name after '['")
	}
	op, ok := opByName(nameTok.text)
	if !ok {
		return 0, p.errf("unknown opcode %q", nameTok.text)
	}

	var args []ir.Word
	for p.peek().kind != tokRBracket {
		if p.peek().kind == tokEOF {
			return 0, p.errf("unterminated form starting with %q", nameTok.text)
		}
		idx := len(args)
		if op.ArgIsRef(idx) {
			refPos, err := p.refArg()
			if err != nil {
				return 0, err
			}
			args = append(args, ir.Word(refPos))
		} else {
			scalar, err := p.scalarArg()
			if err != nil {
				return 0, err
			}
			args = append(args, scalar)
		}
	}
	p.next() // consume ']'
	return p.code.Append(op, args...), nil
}

// refArg parses one argument known to be a node reference: a nested
// "[...]" form, a bound symbol name, or a bare number as Imm(n) sugar.
func (p *parser) refArg() (ir.Pos, error) {
	return p.form()
}

func (p *parser) scalarArg() (ir.Word, error) {
	t := p.next()
	if t.kind != tokWord {
		return 0, p.errf("expected a scalar literal, got %q", t.text)
	}
	v, ok := p.tryNumber(t.text)
	if !ok {
		return 0, p.errf("expected a numeric literal, got %q", t.text)
	}
	return ir.Word(v), nil
}

func (p *parser) tryNumber(s string) (int64, bool) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func opByName(name string) (ir.OpCode, bool) {
	for op := ir.OpCode(0); op.Name() != "Unknown"; op++ {
		if op.Name() == name {
			return op, true
		}
		if op > 4096 { // guard against an unbounded loop if Name() never reports Unknown
			break
		}
	}
	return 0, false
}

// Print renders c back into irtext syntax: pure, single-use nodes are
// inlined as nested "[...]" forms (or bare numbers for Imm), everything
// else gets a "name: [...]" line of its own. Mirrors ir.Render's
// inlining decision exactly, so the two textual views agree on what
// counts as "referenced enough to deserve a name".
func Print(c *ir.Code) string {
	refcount := map[ir.Pos]int{}
	ir.Pass(c, ir.VisitFunc(func(v ir.View) {
		for i, a := range v.Args {
			if v.Op.ArgIsRef(i) {
				refcount[ir.Pos(a)]++
			}
		}
	}))

	labels := map[ir.Pos]string{}
	counters := map[string]int{}

	var exprText func(pos ir.Pos) string
	var formatNode func(v ir.View) string

	exprText = func(pos ir.Pos) string {
		if lbl, ok := labels[pos]; ok {
			return lbl
		}
		v := c.NodeAt(pos)
		if v.Op == ir.Imm && refcount[pos] == 1 {
			return strconv.FormatInt(int64(v.Arg(0)), 10)
		}
		if v.Op.IsPure() && refcount[pos] == 1 {
			return formatNode(v)
		}
		name := v.Op.Name()
		lbl := fmt.Sprintf("%s_%d", strings.ToLower(name), counters[name])
		counters[name]++
		labels[pos] = lbl
		return lbl
	}

	formatNode = func(v ir.View) string {
		parts := make([]string, len(v.Args))
		for i, a := range v.Args {
			if v.Op.ArgIsRef(i) {
				parts[i] = exprText(ir.Pos(a))
			} else {
				parts[i] = strconv.FormatInt(int64(a), 10)
			}
		}
		if len(parts) == 0 {
			return fmt.Sprintf("[%s]", v.Op.Name())
		}
		return fmt.Sprintf("[%s %s]", v.Op.Name(), strings.Join(parts, " "))
	}

	var lines []string
	ir.Pass(c, ir.VisitFunc(func(v ir.View) {
		if v.Op == ir.Imm && refcount[v.Pos] == 1 {
			return
		}
		if v.Op.IsPure() && refcount[v.Pos] == 1 {
			return
		}
		lbl := exprText(v.Pos)
		lines = append(lines, fmt.Sprintf("%s: %s", lbl, formatNode(v)))
	}))

	return strings.Join(lines, "\n")
}
