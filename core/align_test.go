package core

import (
	"testing"
	"unsafe"
)

func TestIsAligned(t *testing.T) {
	if !IsAligned(0) {
		t.Fatalf("0 should be aligned")
	}
	if !IsAligned(CacheLineSize) {
		t.Fatalf("%d should be aligned", CacheLineSize)
	}
	if IsAligned(CacheLineSize + 1) {
		t.Fatalf("%d should not be aligned", CacheLineSize+1)
	}
}

func TestAlignedSize(t *testing.T) {
	cases := []struct{ in, want uintptr }{
		{0, 0},
		{1, CacheLineSize},
		{CacheLineSize, CacheLineSize},
		{CacheLineSize + 1, 2 * CacheLineSize},
	}
	for _, c := range cases {
		if got := AlignedSize(c.in); got != c.want {
			t.Fatalf("AlignedSize(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestAlignedBytesStartsOnCacheLineBoundary(t *testing.T) {
	buf := AlignedBytes(128)
	if len(buf) != 128 {
		t.Fatalf("len(buf) = %d, want 128", len(buf))
	}
	ptr := uintptr(unsafe.Pointer(&buf[0]))
	if !IsAligned(ptr) {
		t.Fatalf("AlignedBytes returned a slice starting at unaligned address %#x", ptr)
	}
}

func TestAlignedBytesZeroSizeReturnsNil(t *testing.T) {
	if buf := AlignedBytes(0); buf != nil {
		t.Fatalf("AlignedBytes(0) = %v, want nil", buf)
	}
}
