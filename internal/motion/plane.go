// Package motion implements block-matching motion estimation over a
// luma reference plane: full search, diamond search, three-step search,
// and an adaptive strategy that routes between them.
package motion

// Plane is a read-only luma reference plane. Motion estimation never
// mutates a Plane; concurrent block-column encoding relies on that.
type Plane struct {
	Width, Height int
	Stride        int
	Data          []byte
}

// At returns the pixel value at (x,y), or 0 if out of bounds. The
// search functions in this package do not call it; the codec uses it to
// build inter prediction blocks that may reach past the edge.
func (p *Plane) At(x, y int) int {
	if x < 0 || y < 0 || x >= p.Width || y >= p.Height {
		return 0
	}
	return int(p.Data[y*p.Stride+x])
}

// inBounds reports whether an entire blockSize x blockSize block at
// (x,y) lies within the plane.
func (p *Plane) inBounds(x, y, w, h int) bool {
	return x >= 0 && y >= 0 && x+w <= p.Width && y+h <= p.Height
}

// sad computes the sum of absolute differences between a w x h block of
// cur at (cx,cy) and the same-sized block of ref at (cx+dx, cy+dy).
// Returns a large sentinel cost if the reference block would fall
// outside the frame.
func sad(cur, ref *Plane, cx, cy, w, h, dx, dy int) int {
	rx, ry := cx+dx, cy+dy
	if !ref.inBounds(rx, ry, w, h) {
		return 1 << 30
	}
	sum := 0
	for row := 0; row < h; row++ {
		curOff := (cy+row)*cur.Stride + cx
		refOff := (ry+row)*ref.Stride + rx
		curRow := cur.Data[curOff : curOff+w]
		refRow := ref.Data[refOff : refOff+w]
		for i := 0; i < w; i++ {
			d := int(curRow[i]) - int(refRow[i])
			if d < 0 {
				d = -d
			}
			sum += d
		}
	}
	return sum
}

// Vector is the result of a motion search: the chosen displacement and
// its hybrid rate-distortion cost.
type Vector struct {
	DX, DY int
	Cost   int
}

// hybridCost computes SAD(current, reference@(x+dx,y+dy)) + lambda*(|dx|+|dy|).
func hybridCost(cur, ref *Plane, cx, cy, w, h, dx, dy int, lambda float64) int {
	s := sad(cur, ref, cx, cy, w, h, dx, dy)
	if s >= 1<<30 {
		return s
	}
	penalty := int(lambda * float64(abs(dx)+abs(dy)))
	return s + penalty
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// better reports whether candidate (cost, dx, dy) beats the current
// best (bestCost, bestDX, bestDY), with ties broken toward the smaller
// |dx|+|dy|.
func better(cost, dx, dy, bestCost, bestDX, bestDY int) bool {
	if cost != bestCost {
		return cost < bestCost
	}
	return abs(dx)+abs(dy) < abs(bestDX)+abs(bestDY)
}
