package bitio

import "testing"

func TestUnsignedEGRoundTrip(t *testing.T) {
	t.Parallel()

	values := []uint32{0, 1, 2, 3, 4, 7, 8, 15, 16, 255, 256, 1 << 20, 1<<32 - 2}
	for _, v := range values {
		w := NewWriter()
		w.WriteUE(v)
		r := NewReader(w.Bytes())
		got, err := r.ReadUE()
		if err != nil {
			t.Fatalf("ReadUE(%d): %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %d: got %d", v, got)
		}
	}
}

func TestSignedEGRoundTrip(t *testing.T) {
	t.Parallel()

	values := []int32{0, 1, -1, 2, -2, 100, -100, 1 << 20, -(1 << 20)}
	for _, v := range values {
		w := NewWriter()
		w.WriteSE(v)
		r := NewReader(w.Bytes())
		got, err := r.ReadSE()
		if err != nil {
			t.Fatalf("ReadSE(%d): %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %d: got %d", v, got)
		}
	}
}

func TestWriteBitsRoundTrip(t *testing.T) {
	t.Parallel()

	w := NewWriter()
	w.WriteBits(0xABCD1234, 32)
	w.WriteBits(0x3, 2)
	buf := w.Bytes()

	r := NewReader(buf)
	got, err := r.ReadBits(32)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0xABCD1234 {
		t.Errorf("got %#x, want %#x", got, 0xABCD1234)
	}
	got2, err := r.ReadBits(2)
	if err != nil {
		t.Fatal(err)
	}
	if got2 != 0x3 {
		t.Errorf("got %#x, want 0x3", got2)
	}
}

func TestReadPastEndOverflows(t *testing.T) {
	t.Parallel()

	r := NewReader([]byte{0xFF})
	if _, err := r.ReadBits(8); err != nil {
		t.Fatalf("first 8 bits should succeed: %v", err)
	}
	if _, err := r.ReadBit(); err != ErrOverflow {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestMixedBitSequence(t *testing.T) {
	t.Parallel()

	w := NewWriter()
	w.WriteBit(1)
	w.WriteUE(5)
	w.WriteSE(-3)
	w.WriteBits(0x2A, 6)
	buf := w.Bytes()

	r := NewReader(buf)
	if b, _ := r.ReadBit(); b != 1 {
		t.Fatal("bit mismatch")
	}
	if v, err := r.ReadUE(); err != nil || v != 5 {
		t.Fatalf("ue mismatch: %d %v", v, err)
	}
	if v, err := r.ReadSE(); err != nil || v != -3 {
		t.Fatalf("se mismatch: %d %v", v, err)
	}
	if v, err := r.ReadBits(6); err != nil || v != 0x2A {
		t.Fatalf("bits mismatch: %#x %v", v, err)
	}
}
