package core

import "testing"

func TestCopyInto(t *testing.T) {
	dst := make([]float64, 2)

	n := CopyInto(dst, []float64{1, 2, 3})
	if n != 2 {
		t.Fatalf("n = %d, want 2", n)
	}

	if dst[0] != 1 || dst[1] != 2 {
		t.Fatalf("unexpected dst: %#v", dst)
	}

	if n := CopyInto(make([]float64, 3), []float64{1}); n != 1 {
		t.Fatalf("short src: n = %d, want 1", n)
	}
}

func TestZero(t *testing.T) {
	buf := []float64{1, 2, 3}
	Zero(buf)

	for i, v := range buf {
		if v != 0 {
			t.Fatalf("buf[%d] = %v, want 0", i, v)
		}
	}
}

func TestCopyIntoC(t *testing.T) {
	dst := make([]complex128, 2)

	n := CopyIntoC(dst, []complex128{1 + 2i, 3, 4})
	if n != 2 {
		t.Fatalf("n = %d, want 2", n)
	}

	if dst[0] != 1+2i || dst[1] != 3 {
		t.Fatalf("unexpected dst: %#v", dst)
	}
}

func TestZeroC(t *testing.T) {
	buf := []complex128{1 + 1i, 2, 3i}
	ZeroC(buf)

	for i, v := range buf {
		if v != 0 {
			t.Fatalf("buf[%d] = %v, want 0", i, v)
		}
	}
}
