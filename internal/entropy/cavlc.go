package entropy

import "github.com/fenwick-media/streamrt/internal/bitio"

// EncodeCAVLC writes a run-length variable-length representation of a
// zigzag-scanned 64-coefficient block: total nonzero count, trailing
// ±1 run (clamped to 3) with sign bits, escape-extended levels for the
// remaining nonzero coefficients, total zero count, and per-run zero
// counts, in that order.
func EncodeCAVLC(w *bitio.Writer, scanned [64]int32) {
	lastNonZero := -1
	for i := 63; i >= 0; i-- {
		if scanned[i] != 0 {
			lastNonZero = i
			break
		}
	}
	if lastNonZero == -1 {
		w.WriteUE(0)
		return
	}

	type coeff struct {
		pos int
		val int32
	}
	var nonzeros []coeff
	for i := 0; i <= lastNonZero; i++ {
		if scanned[i] != 0 {
			nonzeros = append(nonzeros, coeff{pos: i, val: scanned[i]})
		}
	}

	n := len(nonzeros)
	reversed := make([]coeff, n)
	for i, c := range nonzeros {
		reversed[n-1-i] = c
	}

	trailingOnes := 0
	for i := 0; i < n && i < 3; i++ {
		v := reversed[i].val
		if v == 1 || v == -1 {
			trailingOnes++
		} else {
			break
		}
	}

	w.WriteUE(uint32(n))
	w.WriteUE(uint32(trailingOnes))

	for i := 0; i < trailingOnes; i++ {
		if reversed[i].val < 0 {
			w.WriteBit(1)
		} else {
			w.WriteBit(0)
		}
	}
	for i := trailingOnes; i < n; i++ {
		w.WriteSE(reversed[i].val)
	}

	zerosTotal := (lastNonZero + 1) - n
	w.WriteUE(uint32(zerosTotal))

	zerosLeft := zerosTotal
	for j := n - 1; j >= 1; j-- {
		runBefore := nonzeros[j].pos - nonzeros[j-1].pos - 1
		if zerosLeft > 0 {
			w.WriteUE(uint32(runBefore))
			zerosLeft -= runBefore
		}
	}
}

// DecodeCAVLC reads the inverse of EncodeCAVLC, reconstructing the
// 64-element zigzag-scanned coefficient block.
func DecodeCAVLC(r *bitio.Reader) ([64]int32, error) {
	var out [64]int32

	n, err := r.ReadUE()
	if err != nil {
		return out, err
	}
	if n == 0 {
		return out, nil
	}

	trailingOnes, err := r.ReadUE()
	if err != nil {
		return out, err
	}

	reversed := make([]int32, n)
	for i := uint32(0); i < trailingOnes; i++ {
		sign, err := r.ReadBit()
		if err != nil {
			return out, err
		}
		if sign == 1 {
			reversed[i] = -1
		} else {
			reversed[i] = 1
		}
	}
	for i := trailingOnes; i < n; i++ {
		v, err := r.ReadSE()
		if err != nil {
			return out, err
		}
		reversed[i] = v
	}

	zerosTotal, err := r.ReadUE()
	if err != nil {
		return out, err
	}
	lastNonZero := int(zerosTotal) + int(n) - 1

	positions := make([]int, n)
	positions[n-1] = lastNonZero
	zerosLeft := int(zerosTotal)
	for j := int(n) - 1; j >= 1; j-- {
		var runBefore int
		if zerosLeft > 0 {
			v, err := r.ReadUE()
			if err != nil {
				return out, err
			}
			runBefore = int(v)
			zerosLeft -= runBefore
		}
		positions[j-1] = positions[j] - 1 - runBefore
	}

	for j := 0; j < int(n); j++ {
		out[positions[j]] = reversed[int(n)-1-j]
	}
	return out, nil
}
