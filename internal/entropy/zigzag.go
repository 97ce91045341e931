// Package entropy implements the two entropy coders shared by the codec
// inner loop: a run-length variable-length coder (CAVLC-like) used by
// the narrow-block codec variant, and a binary arithmetic coder with
// context models (CABAC-like) used by the wide-block variants. Both are
// deterministic and byte-identical across runs for a given input.
package entropy

// zigzagOrder maps a zigzag scan index to a row-major index within an
// 8x8 block, the standard diagonal scan that groups low frequencies
// (small index) before high frequencies.
var zigzagOrder = [64]int{
	0, 1, 8, 16, 9, 2, 3, 10,
	17, 24, 32, 25, 18, 11, 4, 5,
	12, 19, 26, 33, 40, 48, 41, 34,
	27, 20, 13, 6, 7, 14, 21, 28,
	35, 42, 49, 56, 57, 50, 43, 36,
	29, 22, 15, 23, 30, 37, 44, 51,
	58, 59, 52, 45, 38, 31, 39, 46,
	53, 60, 61, 54, 47, 55, 62, 63,
}

// ZigzagScan reorders an 8x8 block of coefficients into a 64-element
// zigzag-ordered slice, low frequency first.
func ZigzagScan(block [8][8]int32) [64]int32 {
	var out [64]int32
	for zi, rowMajor := range zigzagOrder {
		out[zi] = block[rowMajor/8][rowMajor%8]
	}
	return out
}

// InverseZigzag reorders a 64-element zigzag-scanned slice back into an
// 8x8 block.
func InverseZigzag(scanned [64]int32) [8][8]int32 {
	var out [8][8]int32
	for zi, rowMajor := range zigzagOrder {
		out[rowMajor/8][rowMajor%8] = scanned[zi]
	}
	return out
}
