package motion

const (
	blockDim   = 16
	searchR    = 32
	earlyExit  = 256
	lambdaBase = 1.0
)

// FullSearch exhaustively evaluates every candidate in [-R,R]^2 around
// (x,y), early-exiting once a candidate's cost drops below earlyExit.
func FullSearch(cur, ref *Plane, x, y int) Vector {
	best := Vector{DX: 0, DY: 0, Cost: hybridCost(cur, ref, x, y, blockDim, blockDim, 0, 0, lambdaBase)}

	for dy := -searchR; dy <= searchR; dy++ {
		for dx := -searchR; dx <= searchR; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			c := hybridCost(cur, ref, x, y, blockDim, blockDim, dx, dy, lambdaBase)
			if better(c, dx, dy, best.Cost, best.DX, best.DY) {
				best = Vector{DX: dx, DY: dy, Cost: c}
			}
			if best.Cost < earlyExit {
				return best
			}
		}
	}
	return best
}

// largeDiamond and smallDiamond are the fixed offset patterns for
// diamond search: a 9-point large diamond at radii 4 and 2, and a
// 5-point small diamond at radius 1.
var largeDiamond = []struct{ dx, dy int }{
	{0, -4}, {2, -2}, {4, 0}, {2, 2}, {0, 4}, {-2, 2}, {-4, 0}, {-2, -2},
}

var smallDiamond = []struct{ dx, dy int }{
	{0, -1}, {1, 0}, {0, 1}, {-1, 0},
}

// DiamondSearch iterates the large-diamond pattern (9 points including
// center, at radii 4 and 2) until the minimum lies at the pattern
// center, then performs one small-diamond refinement pass.
func DiamondSearch(cur, ref *Plane, x, y int) Vector {
	best := Vector{DX: 0, DY: 0, Cost: hybridCost(cur, ref, x, y, blockDim, blockDim, 0, 0, lambdaBase)}

	for {
		center := best
		for _, off := range largeDiamond {
			dx, dy := center.DX+off.dx, center.DY+off.dy
			c := hybridCost(cur, ref, x, y, blockDim, blockDim, dx, dy, lambdaBase)
			if better(c, dx, dy, best.Cost, best.DX, best.DY) {
				best = Vector{DX: dx, DY: dy, Cost: c}
			}
		}
		if best.DX == center.DX && best.DY == center.DY {
			break
		}
	}

	center := best
	for _, off := range smallDiamond {
		dx, dy := center.DX+off.dx, center.DY+off.dy
		c := hybridCost(cur, ref, x, y, blockDim, blockDim, dx, dy, lambdaBase)
		if better(c, dx, dy, best.Cost, best.DX, best.DY) {
			best = Vector{DX: dx, DY: dy, Cost: c}
		}
	}
	return best
}

// ThreeStepSearch performs three iterations of an 8-neighbor search,
// halving the step size 4 -> 2 -> 1.
func ThreeStepSearch(cur, ref *Plane, x, y int) Vector {
	best := Vector{DX: 0, DY: 0, Cost: hybridCost(cur, ref, x, y, blockDim, blockDim, 0, 0, lambdaBase)}

	for step := 4; step >= 1; step /= 2 {
		center := best
		for _, off := range eightNeighbors(step) {
			dx, dy := center.DX+off.dx, center.DY+off.dy
			c := hybridCost(cur, ref, x, y, blockDim, blockDim, dx, dy, lambdaBase)
			if better(c, dx, dy, best.Cost, best.DX, best.DY) {
				best = Vector{DX: dx, DY: dy, Cost: c}
			}
		}
	}
	return best
}

func eightNeighbors(step int) []struct{ dx, dy int } {
	return []struct{ dx, dy int }{
		{-step, -step}, {0, -step}, {step, -step},
		{-step, 0}, {step, 0},
		{-step, step}, {0, step}, {step, step},
	}
}

// blockVariance computes the sample variance of a blockDim x blockDim
// region of cur at (x,y), used by AdaptiveSearch to route between
// strategies by texture complexity.
func blockVariance(cur *Plane, x, y int) float64 {
	if !cur.inBounds(x, y, blockDim, blockDim) {
		return 0
	}
	var sum, sumSq int
	n := blockDim * blockDim
	for row := 0; row < blockDim; row++ {
		off := (y+row)*cur.Stride + x
		for i := 0; i < blockDim; i++ {
			v := int(cur.Data[off+i])
			sum += v
			sumSq += v * v
		}
	}
	mean := float64(sum) / float64(n)
	return float64(sumSq)/float64(n) - mean*mean
}

const (
	varianceLowHigh    = 100.0
	varianceMediumHigh = 900.0
)

// AdaptiveSearch adopts a previous block's MV if it gives cost below
// 2*earlyExit; otherwise it routes to three-step, diamond, or full
// search by block variance (low, medium, high texture).
func AdaptiveSearch(cur, ref *Plane, x, y int, prevMV Vector) Vector {
	prevCost := hybridCost(cur, ref, x, y, blockDim, blockDim, prevMV.DX, prevMV.DY, lambdaBase)
	if prevCost < 2*earlyExit {
		return Vector{DX: prevMV.DX, DY: prevMV.DY, Cost: prevCost}
	}

	v := blockVariance(cur, x, y)
	switch {
	case v < varianceLowHigh:
		return ThreeStepSearch(cur, ref, x, y)
	case v < varianceMediumHigh:
		return DiamondSearch(cur, ref, x, y)
	default:
		return FullSearch(cur, ref, x, y)
	}
}
