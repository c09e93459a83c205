package types

import "testing"

func TestNewIQBlockShape(t *testing.T) {
	t.Parallel()
	b := NewIQBlock(3, 128)
	if b.NumChannels() != 3 || b.BlockLen() != 128 {
		t.Fatalf("shape = (%d,%d), want (3,128)", b.NumChannels(), b.BlockLen())
	}
}

func TestRDMapAtSetRoundTrip(t *testing.T) {
	t.Parallel()
	m := NewRDMap(4, 8)
	m.Set(2, 5, 0.75)
	if got := m.At(2, 5); got != 0.75 {
		t.Fatalf("At(2,5) = %f, want 0.75", got)
	}
}

func TestRDMapMaxOfZeroedMapIsZero(t *testing.T) {
	t.Parallel()
	m := NewRDMap(2, 2)
	if m.Max() != 0 {
		t.Fatalf("Max() = %f, want 0", m.Max())
	}
}
