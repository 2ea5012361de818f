// Package execmem wraps raw executable memory pages: allocate
// page-aligned space for a text section (plus optional data and BSS),
// let the caller relocate against the final addresses, then flip the
// text range from writable to executable.
package execmem

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// addrOf returns the address of a mapped region's first byte. The slice
// is backed by an mmap'd region that outlives any Go GC move (mmap
// memory is never managed by the allocator), so holding this address
// across calls is safe.
func addrOf(mem []byte) uintptr {
	if len(mem) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&mem[0]))
}

// ErrUnavailable is the single sentinel every allocation or protection
// failure collapses to; the underlying syscall error is always wrapped
// alongside it.
var ErrUnavailable = errors.New("execmem: executable memory unavailable")

func pageSize() int { return unix.Getpagesize() }

func roundUpPage(n int) int {
	ps := pageSize()
	if n <= 0 {
		return 0
	}
	return (n + ps - 1) / ps * ps
}

// Reloc is invoked with the final base address of each section once the
// page is mapped but still writable, so the caller can patch
// position-dependent references before the text range is protected.
type Reloc func(textBase, dataBase, bssBase uintptr)

// Page is a reference-counted mapping holding one function's (or one
// compilation unit's) text, data, and BSS. The page is unmapped when the
// last reference is released; further use of TextBase/Bytes after that
// is undefined, matching Mutation is impossible after the protection
// flip from RW to RX.
type Page struct {
	mem      []byte
	textLen  int
	dataLen  int
	textBase uintptr
	dataBase uintptr
	bssBase  uintptr
	refs     int32
}

// New allocates page-aligned memory sized to fit text, data, and bssLen
// zero bytes, copies text then data into place, invokes reloc with the
// three section base addresses while the mapping is still writable,
// then protects the text range read+execute. The returned Page starts
// with a reference count of one.
func New(text, data []byte, bssLen int, reloc Reloc) (*Page, error) {
	total := roundUpPage(len(text)) + roundUpPage(len(data)) + roundUpPage(bssLen)
	if total == 0 {
		total = pageSize()
	}

	mem, err := unix.Mmap(-1, 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %d bytes: %v", ErrUnavailable, total, err)
	}

	textPages := roundUpPage(len(text))
	dataPages := roundUpPage(len(data))

	copy(mem, text)
	copy(mem[textPages:], data)

	p := &Page{
		mem:     mem,
		textLen: len(text),
		dataLen: len(data),
		refs:    1,
	}
	p.textBase = addrOf(mem)
	p.dataBase = p.textBase + uintptr(textPages)
	p.bssBase = p.dataBase + uintptr(dataPages)

	if reloc != nil {
		reloc(p.textBase, p.dataBase, p.bssBase)
	}

	if err := unix.Mprotect(mem[:textPages], unix.PROT_READ|unix.PROT_EXEC); err != nil {
		unix.Munmap(mem)
		return nil, fmt.Errorf("%w: mprotect text range: %v", ErrUnavailable, err)
	}

	return p, nil
}

// TextBase is the address of the first text byte.
func (p *Page) TextBase() uintptr { return p.textBase }

// Text returns the raw text bytes (read-only; the page is executable,
// not writable, once New returns).
func (p *Page) Text() []byte { return p.mem[:p.textLen] }

// Retain increments the reference count, returning p for chaining.
func (p *Page) Retain() *Page {
	atomic.AddInt32(&p.refs, 1)
	return p
}

// Release decrements the reference count, unmapping the page once it
// reaches zero. Returns whether this call performed the unmap.
func (p *Page) Release() (bool, error) {
	if atomic.AddInt32(&p.refs, -1) > 0 {
		return false, nil
	}
	if err := unix.Munmap(p.mem); err != nil {
		return true, fmt.Errorf("%w: munmap: %v", ErrUnavailable, err)
	}
	return true, nil
}
