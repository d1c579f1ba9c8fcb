// Package hostbuf allocates aligned host memory for staging buffers. It
// stands in for pinned allocation on accelerator runtimes; alignment keeps
// staged 64-bit reads aligned regardless of slice placement.
package hostbuf

import (
	"errors"
	"unsafe"
)

// Alignment is the byte boundary every allocation starts on.
const Alignment = 64

// ErrInvalidSize indicates a non-positive allocation request.
var ErrInvalidSize = errors.New("hostbuf: allocation size must be positive")

// Alloc returns a zeroed byte slice of the requested size whose first byte
// sits on an Alignment boundary. The capacity is clamped so appends cannot
// grow past the region.
func Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	raw := make([]byte, size+Alignment)
	addr := uintptr(unsafe.Pointer(&raw[0]))
	off := 0
	if rem := int(addr % Alignment); rem != 0 {
		off = Alignment - rem
	}
	return raw[off : off+size : off+size], nil
}
