package transform

import (
	"math"
	"testing"
)

func TestDCTRoundTrip(t *testing.T) {
	t.Parallel()

	var block [8][8]float64
	v := 0.0
	for i := range block {
		for j := range block[i] {
			block[i][j] = v
			v += 3.7
		}
	}

	freq := Forward8x8(block)
	recon := Inverse8x8(freq)

	for i := range block {
		for j := range block[i] {
			if math.Abs(recon[i][j]-block[i][j]) > 1e-6 {
				t.Fatalf("mismatch at [%d][%d]: got %v want %v", i, j, recon[i][j], block[i][j])
			}
		}
	}
}

func TestDCTConstantBlockIsAllDC(t *testing.T) {
	t.Parallel()

	var block [8][8]float64
	for i := range block {
		for j := range block[i] {
			block[i][j] = 42.0
		}
	}
	freq := Forward8x8(block)
	for i := range freq {
		for j := range freq[i] {
			if i == 0 && j == 0 {
				continue
			}
			if math.Abs(freq[i][j]) > 1e-6 {
				t.Errorf("expected zero AC coefficient at [%d][%d], got %v", i, j, freq[i][j])
			}
		}
	}
}

func TestQuantizeDequantizeBound(t *testing.T) {
	t.Parallel()

	for qp := 0; qp <= MaxQPWide; qp++ {
		bound := float64(BaseStep(qp))/2 + 1
		for _, c := range []int32{0, 1, -1, 100, -100, 1000, -1000, 1 << 14, -(1 << 14)} {
			q := QuantizeScalar(c, qp)
			d := DequantizeScalar(q, qp)
			diff := math.Abs(float64(d - c))
			if diff > bound {
				t.Errorf("qp=%d c=%d: |%d-%d|=%v exceeds bound %v", qp, c, d, c, diff, bound)
			}
		}
	}
}

func TestBaseStepDoublesEverySixSteps(t *testing.T) {
	t.Parallel()

	if BaseStep(0) != 1 {
		t.Fatalf("BaseStep(0) = %d, want 1", BaseStep(0))
	}
	for qp := 0; qp+6 < 48; qp += 6 {
		got := BaseStep(qp + 6)
		want := BaseStep(qp) * 2
		if got != want {
			t.Errorf("BaseStep(%d)=%d, want %d (2x BaseStep(%d)=%d)", qp+6, got, want, qp, BaseStep(qp))
		}
	}
}

func TestQuantizeMatrixRoundTripReasonable(t *testing.T) {
	t.Parallel()

	var block [8][8]float64
	for i := range block {
		for j := range block[i] {
			block[i][j] = float64((i+1)*(j+1)) * 5
		}
	}
	freq := Forward8x8(block)
	for _, qp := range []int{0, 10, 25, 40, 51} {
		q := Quantize(freq, qp)
		deq := Dequantize(q, qp)
		recon := Inverse8x8(deq)
		// Lossy at high QP; just assert no NaN/blow-up and DC is roughly preserved.
		if math.IsNaN(recon[0][0]) {
			t.Fatalf("qp=%d: reconstruction produced NaN", qp)
		}
	}
}
