package callable

import (
	"testing"

	"github.com/oisee/codegen/pkg/execmem"
)

// identity32 is just "ret" -- under Go's ABIInternal convention the
// first integer argument and the first integer result share the same
// register (RAX), so returning an int32 argument unchanged takes no
// instructions at all.
var identity32 = []byte{
	0xc3, // ret
}

func TestGetReturnsCallableFunctionValue(t *testing.T) {
	page, err := execmem.New(identity32, nil, 0, nil)
	if err != nil {
		t.Fatalf("execmem.New: %v", err)
	}
	defer page.Release()

	fn := New[func(int32) int32](page, 0)
	defer fn.Release()

	got := fn.Get()(7)
	if got != 7 {
		t.Fatalf("identity(7) = %d, want 7", got)
	}
}

func TestReleaseSharesPageOwnership(t *testing.T) {
	page, err := execmem.New(identity32, nil, 0, nil)
	if err != nil {
		t.Fatalf("execmem.New: %v", err)
	}

	fn := New[func(int32) int32](page, 0)
	// page itself still holds its own original reference plus the one
	// New took via Retain; dropping the page's own reference first must
	// not unmap while fn's claim is outstanding.
	unmapped, err := page.Release()
	if err != nil {
		t.Fatalf("page.Release: %v", err)
	}
	if unmapped {
		t.Fatal("page should not unmap while callable.Func still holds a reference")
	}

	unmapped, err = fn.Release()
	if err != nil {
		t.Fatalf("fn.Release: %v", err)
	}
	if !unmapped {
		t.Fatal("final Release should unmap")
	}
}
