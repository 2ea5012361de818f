// Package callable turns a raw offset into an executable page into a
// directly callable Go function value, using the same funcval-pointer
// trick purego-style FFI shims use: a Go function value is, at runtime,
// a pointer to a single-field struct whose field is the code pointer, so
// overwriting that field with a JIT text address makes ordinary Go call
// syntax invoke the generated machine code directly.
package callable

import (
	"reflect"
	"unsafe"

	"github.com/oisee/codegen/pkg/execmem"
)

// Func wraps one generated function's entry point as a value of type F
// (expected to be a func(...) (...) type matching the generated code's
// register usage). Because F is invoked with ordinary Go call syntax,
// the Go runtime dispatches the call through its own internal
// register-based calling convention (ABIInternal), not the System V
// AMD64 C convention — the generated code must agree, which is exactly
// what pkg/abi's lowering targets. Func also holds a shared,
// reference-counted claim on the page that backs it.
type Func[F any] struct {
	page   *execmem.Page
	offset int
	fn     F
}

// New builds a Func calling into page at the given byte offset from the
// page's text base. It retains page; call Release when done.
func New[F any](page *execmem.Page, offset int) *Func[F] {
	f := &Func[F]{page: page.Retain(), offset: offset}
	f.fn = makeFuncValue[F](page.TextBase() + uintptr(offset))
	return f
}

// Get returns the callable function value.
func (f *Func[F]) Get() F { return f.fn }

// Release drops this handle's claim on the backing page. The returned
// function value must not be called again afterward.
func (f *Func[F]) Release() (bool, error) { return f.page.Release() }

// makeFuncValue constructs a value of type F whose underlying code
// pointer is codeAddr. It relies on the Go runtime representing a
// non-nil func value as a pointer to a funcval struct whose first word
// is the entry address; reflect.NewAt over that representation lets us
// synthesize the value without cgo or hand-written assembly.
func makeFuncValue[F any](codeAddr uintptr) F {
	var zero F
	ft := reflect.TypeOf(zero)
	if ft == nil || ft.Kind() != reflect.Func {
		panic("callable: type parameter must be a func type")
	}

	// funcval is the runtime's function-value representation: a single
	// word holding the code entry address. A Go func value is a pointer
	// to one of these; reflect.NewAt lets us reinterpret &fv's storage
	// as that pointer directly rather than copying through uintptr math.
	type funcval struct {
		codePtr uintptr
	}
	fv := &funcval{codePtr: codeAddr}

	return reflect.NewAt(ft, unsafe.Pointer(&fv)).Elem().Interface().(F)
}
