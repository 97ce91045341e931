package entropy

import (
	"math/rand"
	"testing"

	"github.com/fenwick-media/streamrt/internal/bitio"
)

func TestZigzagRoundTrip(t *testing.T) {
	t.Parallel()

	var block [8][8]int32
	v := int32(0)
	for i := range block {
		for j := range block[i] {
			block[i][j] = v
			v++
		}
	}
	scanned := ZigzagScan(block)
	back := InverseZigzag(scanned)
	if back != block {
		t.Fatalf("round trip mismatch: got %v want %v", back, block)
	}
}

func TestCAVLCRoundTripAllZero(t *testing.T) {
	t.Parallel()

	var scanned [64]int32
	w := bitio.NewWriter()
	EncodeCAVLC(w, scanned)
	r := bitio.NewReader(w.Bytes())
	got, err := DecodeCAVLC(r)
	if err != nil {
		t.Fatal(err)
	}
	if got != scanned {
		t.Fatalf("all-zero round trip mismatch: %v", got)
	}
}

func TestCAVLCRoundTripSparse(t *testing.T) {
	t.Parallel()

	var scanned [64]int32
	scanned[0] = 5
	scanned[3] = -1
	scanned[10] = 1
	scanned[40] = -7

	w := bitio.NewWriter()
	EncodeCAVLC(w, scanned)
	r := bitio.NewReader(w.Bytes())
	got, err := DecodeCAVLC(r)
	if err != nil {
		t.Fatal(err)
	}
	if got != scanned {
		t.Fatalf("sparse round trip mismatch: got %v want %v", got, scanned)
	}
}

func TestCAVLCRoundTripRandom(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 50; trial++ {
		var scanned [64]int32
		for i := 0; i < 64; i++ {
			if rng.Intn(3) == 0 {
				scanned[i] = int32(rng.Intn(201) - 100)
			}
		}
		w := bitio.NewWriter()
		EncodeCAVLC(w, scanned)
		r := bitio.NewReader(w.Bytes())
		got, err := DecodeCAVLC(r)
		if err != nil {
			t.Fatalf("trial %d: %v", trial, err)
		}
		if got != scanned {
			t.Fatalf("trial %d: round trip mismatch: got %v want %v", trial, got, scanned)
		}
	}
}

func TestCABACRoundTripDeterministic(t *testing.T) {
	t.Parallel()

	bits := []uint8{0, 0, 1, 1, 0, 1, 0, 0, 1, 1, 1, 0, 0, 0, 1, 1, 0, 1}

	encodeOnce := func() []byte {
		enc := NewEncoder()
		ctx := &Context{}
		for _, b := range bits {
			enc.EncodeBin(ctx, b)
		}
		return enc.Finish()
	}

	out1 := encodeOnce()
	out2 := encodeOnce()
	if string(out1) != string(out2) {
		t.Fatal("CABAC encoding is not deterministic across runs")
	}

	dec := NewDecoder(out1)
	dctx := &Context{}
	for i, want := range bits {
		got := dec.DecodeBin(dctx)
		if got != want {
			t.Fatalf("bin %d: got %d want %d", i, got, want)
		}
	}
}

func TestCABACRoundTripRandomWithBypass(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	type op struct {
		bypass bool
		bit    uint8
	}
	var ops []op
	for i := 0; i < 200; i++ {
		ops = append(ops, op{bypass: rng.Intn(4) == 0, bit: uint8(rng.Intn(2))})
	}

	enc := NewEncoder()
	ctx := &Context{}
	for _, o := range ops {
		if o.bypass {
			enc.EncodeBypass(o.bit)
		} else {
			enc.EncodeBin(ctx, o.bit)
		}
	}
	data := enc.Finish()

	dec := NewDecoder(data)
	dctx := &Context{}
	for i, o := range ops {
		var got uint8
		if o.bypass {
			got = dec.DecodeBypass()
		} else {
			got = dec.DecodeBin(dctx)
		}
		if got != o.bit {
			t.Fatalf("op %d (bypass=%v): got %d want %d", i, o.bypass, got, o.bit)
		}
	}
}

func TestCABACContextStateStaysInRange(t *testing.T) {
	t.Parallel()

	enc := NewEncoder()
	ctx := &Context{}
	for i := 0; i < 1000; i++ {
		enc.EncodeBin(ctx, uint8(i%2))
		if ctx.State > 63 {
			t.Fatalf("state escaped range: %d", ctx.State)
		}
	}
}
