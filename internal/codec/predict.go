package codec

import "github.com/fenwick-media/streamrt/media"

// leafSize is the fixed transform/prediction leaf dimension. The
// transform stage (internal/transform) only implements an 8x8 DCT, so
// every partition tree bottoms out at an 8x8 leaf regardless of a
// variant's nominal 4x4 minimum block size (see DESIGN.md's
// `internal/codec` entry for the disclosed scope reduction this causes
// for Narrow/H.264-like streams).
const leafSize = 8

// intraPredict fills an 8x8 prediction block for one of the DC,
// vertical, horizontal, diagonal, planar, or paeth modes, using the
// reconstructed pixels immediately above and to the left of (x,y) in
// plane. Missing neighbors (frame edges) read as 128, matching typical
// intra boundary handling.
func intraPredict(plane []byte, stride, x, y int, mode media.PredictionKind) [leafSize][leafSize]int32 {
	above := make([]int32, leafSize)
	left := make([]int32, leafSize)
	var aboveLeft int32 = 128

	for i := 0; i < leafSize; i++ {
		if y > 0 {
			above[i] = int32(plane[(y-1)*stride+min(x+i, stride-1)])
		} else {
			above[i] = 128
		}
		if x > 0 {
			left[i] = int32(plane[min(y+i, len(plane)/stride-1)*stride+(x-1)])
		} else {
			left[i] = 128
		}
	}
	if x > 0 && y > 0 {
		aboveLeft = int32(plane[(y-1)*stride+(x-1)])
	}

	var out [leafSize][leafSize]int32
	switch mode {
	case media.PredVertical:
		for r := 0; r < leafSize; r++ {
			for c := 0; c < leafSize; c++ {
				out[r][c] = above[c]
			}
		}
	case media.PredHorizontal:
		for r := 0; r < leafSize; r++ {
			for c := 0; c < leafSize; c++ {
				out[r][c] = left[r]
			}
		}
	case media.PredDiagonalDL:
		for r := 0; r < leafSize; r++ {
			for c := 0; c < leafSize; c++ {
				idx := r + c
				if idx >= leafSize {
					idx = leafSize - 1
				}
				out[r][c] = above[idx]
			}
		}
	case media.PredDiagonalDR:
		for r := 0; r < leafSize; r++ {
			for c := 0; c < leafSize; c++ {
				out[r][c] = (above[c] + left[r] + 1) / 2
			}
		}
	case media.PredPlanar:
		for r := 0; r < leafSize; r++ {
			for c := 0; c < leafSize; c++ {
				h := int32(leafSize-1-c)*left[0] + int32(c+1)*above[leafSize-1]
				v := int32(leafSize-1-r)*above[0] + int32(r+1)*left[leafSize-1]
				out[r][c] = (h + v + leafSize) / (2 * leafSize)
			}
		}
	case media.PredPaeth:
		for r := 0; r < leafSize; r++ {
			for c := 0; c < leafSize; c++ {
				out[r][c] = paeth(left[r], above[c], aboveLeft)
			}
		}
	default: // DC
		var sum int32
		for i := 0; i < leafSize; i++ {
			sum += above[i] + left[i]
		}
		dc := sum / (2 * leafSize)
		for r := 0; r < leafSize; r++ {
			for c := 0; c < leafSize; c++ {
				out[r][c] = dc
			}
		}
	}
	return out
}

func paeth(a, b, c int32) int32 {
	p := a + b - c
	pa, pb, pc := abs32(p-a), abs32(p-b), abs32(p-c)
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// intraModes is the ordered candidate set searched for a KEY-frame or
// intra-forced leaf.
var intraModes = []media.PredictionKind{
	media.PredDC, media.PredVertical, media.PredHorizontal,
	media.PredDiagonalDL, media.PredDiagonalDR, media.PredPlanar, media.PredPaeth,
}

// sad8x8 computes SAD between an 8x8 source block starting at (x,y) in
// src (stride-wide) and a prediction block pred.
func sad8x8(src []byte, stride, x, y int, pred [leafSize][leafSize]int32) int {
	sum := 0
	for r := 0; r < leafSize; r++ {
		off := (y+r)*stride + x
		for c := 0; c < leafSize; c++ {
			d := int(src[off+c]) - int(pred[r][c])
			if d < 0 {
				d = -d
			}
			sum += d
		}
	}
	return sum
}

// bestIntraMode searches intraModes and returns the minimum-SAD mode,
// its prediction block, and its cost.
func bestIntraMode(src []byte, stride, x, y int) (media.PredictionKind, [leafSize][leafSize]int32, int) {
	bestMode := media.PredDC
	bestPred := intraPredict(src, stride, x, y, media.PredDC)
	bestCost := sad8x8(src, stride, x, y, bestPred)

	for _, mode := range intraModes[1:] {
		pred := intraPredict(src, stride, x, y, mode)
		cost := sad8x8(src, stride, x, y, pred)
		if cost < bestCost {
			bestCost, bestMode, bestPred = cost, mode, pred
		}
	}
	return bestMode, bestPred, bestCost
}
