// Package pipeline wires every compilation stage into one top-level
// driver: structurize, simplify, lower to register-transfer form,
// allocate physical registers, splice in the calling-convention shim,
// unstructurize back to goto form, assemble, and map the result into
// executable memory.
//
// Compile is single-threaded and non-reentrant over its input: every
// stage returns a fresh *ir.Code, never mutating the one it was given,
// matching pkg/ir's transient-view discipline.
package pipeline

import (
	"fmt"

	"github.com/oisee/codegen/pkg/abi"
	"github.com/oisee/codegen/pkg/ctrlflow"
	"github.com/oisee/codegen/pkg/execmem"
	"github.com/oisee/codegen/pkg/ir"
	"github.com/oisee/codegen/pkg/regalloc"
	"github.com/oisee/codegen/pkg/rtl"
	"github.com/oisee/codegen/pkg/simplify"
	"github.com/oisee/codegen/pkg/target"
	"github.com/oisee/codegen/pkg/target/x64"
)

// Error wraps the stage a compilation failed in along with the
// underlying cause, so callers can tell "malformed IR" apart from
// "this target can't encode that operation" without string matching.
type Error struct {
	Stage string
	Cause error
}

func (e *Error) Error() string { return fmt.Sprintf("pipeline: %s: %v", e.Stage, e.Cause) }
func (e *Error) Unwrap() error { return e.Cause }

func fail(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Stage: stage, Cause: err}
}

// Config bounds the iterative stages and selects the target. A zero
// Config is valid: it defaults to x64 with conservative iteration
// counts.
type Config struct {
	Target              target.Description
	SimplifyIterations  int
	AllocatorIterations int
}

func (cfg Config) withDefaults() Config {
	if cfg.Target == nil {
		cfg.Target = x64.New()
	}
	if cfg.SimplifyIterations <= 0 {
		cfg.SimplifyIterations = 4
	}
	if cfg.AllocatorIterations <= 0 {
		cfg.AllocatorIterations = 1
	}
	return cfg
}

// classPicker is the only ClassPicker this driver needs: every target
// this pipeline ships (x64) treats every general-purpose register as
// able to hold any width, so every operand maps to the qword class.
func classPicker(c *ir.Code, pos ir.Pos) target.Class {
	return target.Class(x64.ClassQword)
}

// Lower runs every IR-to-IR stage (everything up to, but not
// including, assembly) and returns the final register-allocated,
// ABI-lowered, goto-form IR plus the Enter position of the compiled
// function. It is exported separately from Compile so tests and tools
// can inspect or interpret the fully-lowered IR without needing real
// executable memory.
func Lower(c *ir.Code, enter ir.Pos, cfg Config) (*ir.Code, ir.Pos, error) {
	cfg = cfg.withDefaults()
	if c.NodeAt(enter).Op != ir.Enter {
		return nil, 0, fail("validate", fmt.Errorf("position %d is not an Enter node", enter))
	}

	structured, err := ctrlflow.Structurize(c)
	if err != nil {
		return nil, 0, fail("structurize", err)
	}
	enter, err = findEnter(structured)
	if err != nil {
		return nil, 0, fail("structurize", err)
	}

	simplified := simplify.Run(structured, cfg.SimplifyIterations)
	enter, err = findEnter(simplified)
	if err != nil {
		return nil, 0, fail("simplify", err)
	}

	lowered, err := rtl.Lower(simplified, classPicker)
	if err != nil {
		return nil, 0, fail("rtl", err)
	}
	enter, err = findEnter(lowered)
	if err != nil {
		return nil, 0, fail("rtl", err)
	}

	allocated, err := regalloc.Allocate(lowered, cfg.Target, cfg.AllocatorIterations)
	if err != nil {
		return nil, 0, fail("regalloc", err)
	}
	enter, err = findEnter(allocated)
	if err != nil {
		return nil, 0, fail("regalloc", err)
	}

	shimmed, err := abi.Lower(allocated, enter)
	if err != nil {
		return nil, 0, fail("abi", err)
	}
	enter, err = findEnter(shimmed)
	if err != nil {
		return nil, 0, fail("abi", err)
	}

	flat, err := ctrlflow.Unstructurize(shimmed)
	if err != nil {
		return nil, 0, fail("unstructurize", err)
	}
	enter, err = findEnter(flat)
	if err != nil {
		return nil, 0, fail("unstructurize", err)
	}

	return flat, enter, nil
}

// findEnter locates the sole Enter node in c. Every remap-based stage
// rebuilds a fresh *ir.Code, and nothing guarantees a position survives
// a rebuild unchanged, so each stage's output is re-scanned rather than
// reusing the position handed to the previous stage.
func findEnter(c *ir.Code) (ir.Pos, error) {
	found := ir.InvalidPos
	var multiple bool
	ir.Pass(c, ir.VisitFunc(func(v ir.View) {
		if v.Op == ir.Enter {
			if found != ir.InvalidPos {
				multiple = true
			}
			found = v.Pos
		}
	}))
	if found == ir.InvalidPos {
		return 0, fmt.Errorf("no Enter node found")
	}
	if multiple {
		return 0, fmt.Errorf("multiple Enter nodes found; pipeline.Compile supports one function per call")
	}
	return found, nil
}

// Compile runs the full pipeline and maps the result into executable
// memory: the returned Page's text begins with the compiled function's
// entry point at offset 0.
func Compile(c *ir.Code, enter ir.Pos, cfg Config) (*execmem.Page, error) {
	flat, enter, err := Lower(c, enter, cfg)
	if err != nil {
		return nil, err
	}

	text, err := assemble(flat, enter)
	if err != nil {
		return nil, fail("codegen", err)
	}

	page, err := execmem.New(text, nil, 0, func(textBase, dataBase, bssBase uintptr) {})
	if err != nil {
		return nil, fail("execmem", err)
	}
	return page, nil
}
