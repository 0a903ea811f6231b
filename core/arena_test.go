package core

import "testing"

func TestArenaAllocBumpsCursor(t *testing.T) {
	a := NewArena(128)

	first, err := a.Alloc(10)
	if err != nil {
		t.Fatalf("Alloc(10): %v", err)
	}
	if len(first) != 10 {
		t.Fatalf("len(first) = %d, want 10", len(first))
	}
	if a.Used() != AlignUpInt(10, 8) {
		t.Fatalf("Used() = %d, want %d", a.Used(), AlignUpInt(10, 8))
	}

	second, err := a.Alloc(4)
	if err != nil {
		t.Fatalf("Alloc(4): %v", err)
	}
	if len(second) != 4 {
		t.Fatalf("len(second) = %d, want 4", len(second))
	}
}

func TestArenaAllocFailsWhenExhausted(t *testing.T) {
	a := NewArena(16)

	if _, err := a.Alloc(16); err != nil {
		t.Fatalf("Alloc(16): %v", err)
	}
	if _, err := a.Alloc(1); err == nil {
		t.Fatal("Alloc(1) on exhausted arena: want error, got nil")
	}
}

func TestArenaAllocRejectsNegativeSize(t *testing.T) {
	a := NewArena(16)
	if _, err := a.Alloc(-1); err == nil {
		t.Fatal("Alloc(-1): want error, got nil")
	}
}

func TestArenaResetReclaimsWholePool(t *testing.T) {
	a := NewArena(32)

	if _, err := a.Alloc(32); err != nil {
		t.Fatalf("Alloc(32): %v", err)
	}
	if _, err := a.Alloc(1); err == nil {
		t.Fatal("Alloc(1) before Reset: want error, got nil")
	}

	a.Reset()
	if a.Used() != 0 {
		t.Fatalf("Used() after Reset = %d, want 0", a.Used())
	}
	if _, err := a.Alloc(32); err != nil {
		t.Fatalf("Alloc(32) after Reset: %v", err)
	}
}

func TestAlignUpInt(t *testing.T) {
	cases := []struct {
		size, align, want int
	}{
		{0, 8, 0},
		{1, 8, 8},
		{8, 8, 8},
		{9, 8, 16},
		{513, 512, 1024},
	}
	for _, c := range cases {
		if got := AlignUpInt(c.size, c.align); got != c.want {
			t.Errorf("AlignUpInt(%d, %d) = %d, want %d", c.size, c.align, got, c.want)
		}
	}
}
