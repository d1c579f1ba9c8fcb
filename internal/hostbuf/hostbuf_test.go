package hostbuf

import (
	"errors"
	"testing"
	"unsafe"
)

func TestAllocAligned(t *testing.T) {
	for _, size := range []int{1, 7, 64, 4096} {
		buf, err := Alloc(size)
		if err != nil {
			t.Fatalf("Alloc(%d) failed: %v", size, err)
		}
		if len(buf) != size {
			t.Fatalf("unexpected length: got %d want %d", len(buf), size)
		}
		if cap(buf) != size {
			t.Fatalf("capacity not clamped: got %d want %d", cap(buf), size)
		}
		addr := uintptr(unsafe.Pointer(&buf[0]))
		if addr%Alignment != 0 {
			t.Fatalf("allocation of %d bytes not aligned: %#x", size, addr)
		}
		for i, b := range buf {
			if b != 0 {
				t.Fatalf("byte %d not zeroed", i)
			}
		}
	}
}

func TestAllocInvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		if _, err := Alloc(size); !errors.Is(err, ErrInvalidSize) {
			t.Fatalf("Alloc(%d): expected ErrInvalidSize, got %v", size, err)
		}
	}
}
