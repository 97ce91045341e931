package fec

import "fmt"

// cauchyCoeff returns the Reed-Solomon generator coefficient for parity
// row j, source column i, within a k-source group: 1/(x_i xor y_j) with
// x_i = byte(i) for i in [0,k) and y_j = byte(k+j) for j in [0,m). The
// two index sets are disjoint by construction, so x_i xor y_j is never
// zero and every entry is defined.
//
// A raw Vandermonde row (x^i for distinct x) is not guaranteed to keep
// every square submatrix invertible over GF(256): unlike over the reals
// or a prime field, characteristic 2 lets some subsets of Vandermonde
// rows/columns collide into a singular system, which shows up as
// DecodeRS failing to recover K packets even though K of K+M arrived. A
// Cauchy matrix constructed this way is MDS by construction: every
// square submatrix drawn from an identity-plus-Cauchy generator matrix
// is invertible, so any K of the K+M rows always solve.
func cauchyCoeff(j, i, k int) byte {
	x := byte(i)
	y := byte(k + j)
	return gfDiv(1, x^y)
}

// EncodeRS computes m parity payloads from k equal-length source
// payloads, one GF(256) symbol per byte position.
func EncodeRS(sources [][]byte, m int) ([][]byte, error) {
	k := len(sources)
	if k == 0 || m <= 0 {
		return nil, nil
	}
	l := len(sources[0])
	for _, s := range sources {
		if len(s) != l {
			return nil, fmt.Errorf("fec: source payloads must be equal length, padded by the caller")
		}
	}

	parity := make([][]byte, m)
	for j := range parity {
		row := make([]byte, l)
		for i := 0; i < k; i++ {
			coeff := cauchyCoeff(j, i, k)
			if coeff == 0 {
				continue
			}
			src := sources[i]
			for b := 0; b < l; b++ {
				row[b] ^= gfMul(coeff, src[b])
			}
		}
		parity[j] = row
	}
	return parity, nil
}

// DecodeRS reconstructs missing source packets given a group of k
// source slots (present as available[i] with ok[i]=true) and m parity
// slots (available[k+j] with ok[k+j]=true), recovering iff at least k
// of the k+m are present. present payloads must all share the same
// length l; recovered payloads are returned at that same length.
func DecodeRS(available [][]byte, ok []bool, k, m int) ([][]byte, error) {
	total := k + m
	if len(available) != total || len(ok) != total {
		return nil, fmt.Errorf("fec: available/ok length must equal k+m")
	}

	haveCount := 0
	l := 0
	for i, present := range ok {
		if present {
			haveCount++
			if len(available[i]) > l {
				l = len(available[i])
			}
		}
	}
	if haveCount < k {
		return nil, fmt.Errorf("fec: only %d of %d packets present, need %d", haveCount, total, k)
	}

	out := make([][]byte, k)
	missing := []int{}
	for i := 0; i < k; i++ {
		if ok[i] {
			out[i] = available[i]
		} else {
			missing = append(missing, i)
			out[i] = make([]byte, l)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	// Pick len(missing) parity rows among the present ones to form a
	// square system for the missing source columns.
	usedParity := []int{}
	for j := 0; j < m && len(usedParity) < len(missing); j++ {
		if ok[k+j] {
			usedParity = append(usedParity, j)
		}
	}
	if len(usedParity) < len(missing) {
		return nil, fmt.Errorf("fec: insufficient parity rows to recover %d missing source packets", len(missing))
	}

	// Build the coefficient matrix (len(missing) x len(missing)) over
	// the missing columns, and the RHS per byte position: parity[j] XOR
	// sum over present sources of coeff*source.
	mat := make([][]byte, len(usedParity))
	for r, j := range usedParity {
		row := make([]byte, len(missing))
		for c, srcIdx := range missing {
			row[c] = cauchyCoeff(j, srcIdx, k)
		}
		mat[r] = row
	}

	rhs := make([][]byte, len(usedParity))
	for r, j := range usedParity {
		row := make([]byte, l)
		copy(row, available[k+j])
		for i := 0; i < k; i++ {
			if !ok[i] {
				continue
			}
			coeff := cauchyCoeff(j, i, k)
			if coeff == 0 {
				continue
			}
			src := available[i]
			for b := 0; b < l; b++ {
				row[b] ^= gfMul(coeff, src[b])
			}
		}
		rhs[r] = row
	}

	solved, err := gaussianSolve(mat, rhs)
	if err != nil {
		return nil, fmt.Errorf("fec: %w", err)
	}
	for idx, srcIdx := range missing {
		out[srcIdx] = solved[idx]
	}
	return out, nil
}

// gaussianSolve solves mat*x = rhs over GF(256), where rhs has one
// column per output byte position, in place via forward elimination and
// back substitution.
func gaussianSolve(mat [][]byte, rhs [][]byte) ([][]byte, error) {
	n := len(mat)
	l := len(rhs[0])

	a := make([][]byte, n)
	b := make([][]byte, n)
	for i := range mat {
		a[i] = append([]byte(nil), mat[i]...)
		b[i] = append([]byte(nil), rhs[i]...)
	}

	for col := 0; col < n; col++ {
		pivot := -1
		for row := col; row < n; row++ {
			if a[row][col] != 0 {
				pivot = row
				break
			}
		}
		if pivot == -1 {
			return nil, fmt.Errorf("singular recovery matrix")
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		inv := gfDiv(1, a[col][col])
		for c := col; c < n; c++ {
			a[col][c] = gfMul(a[col][c], inv)
		}
		for x := 0; x < l; x++ {
			b[col][x] = gfMul(b[col][x], inv)
		}

		for row := 0; row < n; row++ {
			if row == col || a[row][col] == 0 {
				continue
			}
			factor := a[row][col]
			for c := col; c < n; c++ {
				a[row][c] ^= gfMul(factor, a[col][c])
			}
			for x := 0; x < l; x++ {
				b[row][x] ^= gfMul(factor, b[col][x])
			}
		}
	}
	return b, nil
}
