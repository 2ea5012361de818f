package x64enc

import (
	"testing"

	"github.com/oisee/codegen/pkg/target/x64"
)

func TestMovRegImm32Encoding(t *testing.T) {
	a := New()
	a.MovRegImm32(x64.RAX, 42)
	got, err := a.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// REX.W(0x48) C7 /0 (modrm=C0) imm32(42,0,0,0)
	want := []byte{0x48, 0xC7, 0xC0, 42, 0, 0, 0}
	assertBytes(t, got, want)
}

func TestMovRegImm32ExtendedRegisterSetsRexB(t *testing.T) {
	a := New()
	a.MovRegImm32(x64.R8, 1)
	got, err := a.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got[0] != 0x49 { // REX.W | REX.B
		t.Errorf("expected REX byte 0x49 for R8 destination, got %#x", got[0])
	}
}

func TestArithRegRegEncoding(t *testing.T) {
	a := New()
	a.Arith(Add, x64.RAX, x64.RCX)
	got, err := a.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []byte{0x48, 0x01, 0xC8} // add rax, rcx
	assertBytes(t, got, want)
}

func TestJmpForwardReferenceResolves(t *testing.T) {
	a := New()
	a.Jmp("end")
	a.Neg(x64.RAX) // 3 bytes, filler between jump and its target
	a.Label("end")
	got, err := a.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// jmp is 5 bytes (E9 + rel32); rel32 should equal len(filler) = 3
	rel := int32(got[1]) | int32(got[2])<<8 | int32(got[3])<<16 | int32(got[4])<<24
	if rel != 3 {
		t.Errorf("expected forward jump rel32 = 3, got %d", rel)
	}
}

func TestJccBackwardReferenceResolves(t *testing.T) {
	a := New()
	a.Label("top")
	a.Neg(x64.RAX) // 3 bytes
	a.Jcc(CondE, "top")
	got, err := a.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// Jcc is 6 bytes (0F 8x + rel32) at offset 3; rel32 = 0 - (3+6) = -9
	base := 3
	rel := int32(got[base+2]) | int32(got[base+3])<<8 | int32(got[base+4])<<16 | int32(got[base+5])<<24
	if rel != -9 {
		t.Errorf("expected backward jump rel32 = -9, got %d", rel)
	}
}

func TestResolveFailsOnUndefinedLabel(t *testing.T) {
	a := New()
	a.Jmp("nowhere")
	if _, err := a.Resolve(); err == nil {
		t.Error("expected Resolve to fail on an undefined label")
	}
}

func TestDuplicateLabelIsAnError(t *testing.T) {
	a := New()
	a.Label("x")
	a.Label("x")
	if _, err := a.Resolve(); err == nil {
		t.Error("expected Resolve to surface the duplicate-label error")
	}
}

func TestPushPopExtendedRegisterPrefix(t *testing.T) {
	a := New()
	a.Push(x64.R15)
	a.Pop(x64.R15)
	got, err := a.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []byte{0x41, 0x57, 0x41, 0x5F}
	assertBytes(t, got, want)
}

func assertBytes(t *testing.T, got, want []byte) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %x, want %x", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d: got %#x, want %#x (full: got %x want %x)", i, got[i], want[i], got, want)
		}
	}
}
