package xcheck

import (
	"testing"

	"github.com/oisee/codegen/pkg/target/x64"
	"github.com/oisee/codegen/pkg/x64enc"
)

func TestDisassembleAgreesWithEncoderMnemonic(t *testing.T) {
	if !Available() {
		t.Skip("objdump not found on PATH")
	}

	a := x64enc.New()
	a.Arith(x64enc.Add, x64.RAX, x64.RCX)
	a.Ret()
	text, err := a.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	listing, err := Disassemble(text)
	if err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	if !ContainsMnemonic(listing, "add") {
		t.Errorf("expected objdump listing to mention add, got:\n%s", listing)
	}
	if !ContainsMnemonic(listing, "ret") {
		t.Errorf("expected objdump listing to mention ret, got:\n%s", listing)
	}
}

func TestDisassembleReportsUnavailableTool(t *testing.T) {
	if Available() {
		t.Skip("objdump is on PATH; unavailable-path test needs it absent")
	}
	if _, err := Disassemble([]byte{0xc3}); err != ErrToolUnavailable {
		t.Errorf("expected ErrToolUnavailable, got %v", err)
	}
}
