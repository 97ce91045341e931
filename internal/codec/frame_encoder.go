package codec

import (
	"github.com/fenwick-media/streamrt/internal/bitio"
	"github.com/fenwick-media/streamrt/internal/entropy"
	"github.com/fenwick-media/streamrt/internal/motion"
	"github.com/fenwick-media/streamrt/internal/transform"
	"github.com/fenwick-media/streamrt/media"
)

// partitionOverheadBits is a fixed per-level signaling cost estimate
// used only in the rate term of the RD cost; it is not written to the
// bitstream separately (the kind itself is written by encodeKind).
const partitionOverheadBits = 3

// searchStrategy selects a motion search function by complexity preset:
// 0-2 -> three-step, 3-5 -> diamond, 6-8 -> adaptive, 9 -> full.
func searchStrategy(complexity int) func(cur, ref *motion.Plane, x, y int, prevMV motion.Vector) motion.Vector {
	switch {
	case complexity <= 2:
		return func(cur, ref *motion.Plane, x, y int, _ motion.Vector) motion.Vector {
			return motion.ThreeStepSearch(cur, ref, x, y)
		}
	case complexity <= 5:
		return func(cur, ref *motion.Plane, x, y int, _ motion.Vector) motion.Vector {
			return motion.DiamondSearch(cur, ref, x, y)
		}
	case complexity <= 8:
		return motion.AdaptiveSearch
	default:
		return func(cur, ref *motion.Plane, x, y int, _ motion.Vector) motion.Vector {
			return motion.FullSearch(cur, ref, x, y)
		}
	}
}

// FrameEncoder runs the codec inner loop for one frame: partition
// decision, prediction, transform+quantize, entropy coding, and
// reconstruction into a fresh reference plane.
type FrameEncoder struct {
	desc         Descriptor
	qp           int
	complexity   int
	class        media.FrameClass
	ref          *motion.Plane // nil for KEY frames
	recon        *motion.Plane
	search       func(cur, ref *motion.Plane, x, y int, prevMV motion.Vector) motion.Vector
	allowedKinds []media.PartitionKind

	cavlcW   *bitio.Writer
	cabacEnc *entropy.Encoder
	ctxKind  *entropy.Context
	ctxPred  *entropy.Context
	ctxSig   [64]*entropy.Context

	prevMV motion.Vector
}

// NewFrameEncoder creates a FrameEncoder for one frame. ref is the
// previous frame's reconstructed plane (nil for a KEY frame that will
// reset the reference). allowedKinds overrides desc.AllowedKinds as the
// partition-kind candidate set for this frame only, letting a caller
// under deadline pressure narrow the search without mutating the
// variant descriptor; nil means use desc.AllowedKinds unmodified.
func NewFrameEncoder(desc Descriptor, qp, complexity int, class media.FrameClass, cur, ref *motion.Plane, allowedKinds []media.PartitionKind) *FrameEncoder {
	if allowedKinds == nil {
		allowedKinds = desc.AllowedKinds
	}
	fe := &FrameEncoder{
		desc:         desc,
		qp:           qp,
		complexity:   complexity,
		class:        class,
		ref:          ref,
		recon:        &motion.Plane{Width: cur.Width, Height: cur.Height, Stride: cur.Stride, Data: make([]byte, len(cur.Data))},
		search:       searchStrategy(complexity),
		allowedKinds: allowedKinds,
	}
	if desc.UseArithmetic {
		fe.cabacEnc = entropy.NewEncoder()
		fe.ctxKind = &entropy.Context{}
		fe.ctxPred = &entropy.Context{}
		for i := range fe.ctxSig {
			fe.ctxSig[i] = &entropy.Context{}
		}
	} else {
		fe.cavlcW = bitio.NewWriter()
	}
	return fe
}

// Encode runs the inner loop over the whole frame, tiling it into
// Descriptor.MaxBlockSize CTUs and recursively deciding partitions down
// to 8x8 leaves. It returns the finalized bitstream and the
// reconstructed plane to retain as the next frame's reference.
func (fe *FrameEncoder) Encode(cur *motion.Plane) (bitstream []byte, recon *motion.Plane) {
	ctu := fe.desc.MaxBlockSize
	if ctu > cur.Width {
		ctu = cur.Width
	}
	if ctu < leafSize {
		ctu = leafSize
	}

	for y := 0; y < cur.Height; y += ctu {
		for x := 0; x < cur.Width; x += ctu {
			w := minInt(ctu, cur.Width-x)
			h := minInt(ctu, cur.Height-y)
			fe.encodeRegion(cur, x, y, w, h)
		}
	}

	if fe.desc.UseArithmetic {
		return fe.cabacEnc.Finish(), fe.recon
	}
	return fe.cavlcW.Bytes(), fe.recon
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// encodeRegion recursively decides a partition for a w x h region at
// (x,y), bottoming out at an 8x8 leaf once both sides are at most 8.
// Ragged edge regions (from frame dimensions not dividing the CTU size)
// split the same way; encodeLeaf shifts a leaf that would reach past the
// right or bottom edge back inside the plane, so those edge pixels are
// coded by an overlapping 8x8 block and encodeRegion never panics on
// ragged input.
func (fe *FrameEncoder) encodeRegion(cur *motion.Plane, x, y, w, h int) {
	if w <= leafSize && h <= leafSize {
		fe.writeKind(media.PartitionNone)
		fe.encodeLeaf(cur, x, y)
		return
	}

	kind := fe.choosePartitionKind(w, h)
	fe.writeKind(kind)

	switch kind {
	case media.PartitionQuadSplit:
		hw, hh := w/2, h/2
		fe.encodeRegion(cur, x, y, hw, hh)
		fe.encodeRegion(cur, x+hw, y, w-hw, hh)
		fe.encodeRegion(cur, x, y+hh, hw, h-hh)
		fe.encodeRegion(cur, x+hw, y+hh, w-hw, h-hh)
	case media.PartitionHSplit:
		hh := h / 2
		fe.encodeRegion(cur, x, y, w, hh)
		fe.encodeRegion(cur, x, y+hh, w, h-hh)
	case media.PartitionVSplit:
		hw := w / 2
		fe.encodeRegion(cur, x, y, hw, h)
		fe.encodeRegion(cur, x+hw, y, w-hw, h)
	case media.PartitionTernaryH:
		q := h / 4
		fe.encodeRegion(cur, x, y, w, q)
		fe.encodeRegion(cur, x, y+q, w, h-2*q)
		fe.encodeRegion(cur, x, y+h-q, w, q)
	case media.PartitionTernaryV:
		q := w / 4
		fe.encodeRegion(cur, x, y, q, h)
		fe.encodeRegion(cur, x+q, y, w-2*q, h)
		fe.encodeRegion(cur, x+w-q, y, q, h)
	default:
		fe.encodeLeaf(cur, x, y)
	}
}

// choosePartitionKind picks the minimum rate-distortion-cost split
// shape from the descriptor's allowed kinds. Distortion is invariant to
// split shape (every path bottoms out at 8x8 leaves), so this reduces
// to the split kind with the fewest child regions to signal, unless the
// region isn't evenly halvable by a given kind.
func (fe *FrameEncoder) choosePartitionKind(w, h int) media.PartitionKind {
	best := media.PartitionQuadSplit
	bestCost := 1 << 30
	for _, kind := range fe.allowedKinds {
		if kind == media.PartitionNone {
			continue
		}
		if !kindFits(kind, w, h) {
			continue
		}
		cost := childCount(kind) * partitionOverheadBits
		if cost < bestCost {
			bestCost, best = cost, kind
		}
	}
	return best
}

func kindFits(kind media.PartitionKind, w, h int) bool {
	switch kind {
	case media.PartitionQuadSplit:
		return w > leafSize && h > leafSize
	case media.PartitionHSplit:
		return h > leafSize
	case media.PartitionVSplit:
		return w > leafSize
	case media.PartitionTernaryH:
		return h >= 4*leafSize
	case media.PartitionTernaryV:
		return w >= 4*leafSize
	default:
		return false
	}
}

func childCount(kind media.PartitionKind) int {
	switch kind {
	case media.PartitionQuadSplit:
		return 4
	case media.PartitionTernaryH, media.PartitionTernaryV:
		return 3
	default:
		return 2
	}
}

func (fe *FrameEncoder) writeKind(kind media.PartitionKind) {
	if fe.desc.UseArithmetic {
		for i := 2; i >= 0; i-- {
			fe.cabacEnc.EncodeBin(fe.ctxKind, uint8((kind>>uint(i))&1))
		}
		return
	}
	fe.cavlcW.WriteBits(uint32(kind), 3)
}

// encodeLeaf predicts, transforms, quantizes, entropy-codes, and
// reconstructs one 8x8 leaf at (x,y).
func (fe *FrameEncoder) encodeLeaf(cur *motion.Plane, x, y int) {
	if x+leafSize > cur.Width {
		x = cur.Width - leafSize
	}
	if y+leafSize > cur.Height {
		y = cur.Height - leafSize
	}
	if x < 0 || y < 0 {
		return
	}

	var predBlock [leafSize][leafSize]int32
	var mode media.PredictionKind
	var mv motion.Vector
	isInter := false

	intraMode, intraPred, intraCost := bestIntraMode(cur.Data, cur.Stride, x, y)
	predBlock, mode = intraPred, intraMode

	if fe.class != media.Key && fe.ref != nil {
		mv = fe.search(cur, fe.ref, x, y, fe.prevMV)
		fe.prevMV = mv
		interPred := referenceBlock(fe.ref, x, y, mv.DX, mv.DY)
		interCost := sad8x8(cur.Data, cur.Stride, x, y, interPred)
		if interCost < intraCost {
			predBlock, isInter = interPred, true
			mode = media.PredMerge
		}
	}

	fe.writePred(mode, isInter, mv)

	var residual [8][8]float64
	for r := 0; r < leafSize; r++ {
		off := (y+r)*cur.Stride + x
		for c := 0; c < leafSize; c++ {
			residual[r][c] = float64(cur.Data[off+c]) - float64(predBlock[r][c])
		}
	}

	freq := transform.Forward8x8(residual)
	quant := transform.Quantize(freq, fe.qp)
	scanned := entropy.ZigzagScan(quant)
	fe.writeCoeffs(scanned)

	deq := transform.Dequantize(quant, fe.qp)
	reconResidual := transform.Inverse8x8(deq)
	for r := 0; r < leafSize; r++ {
		off := (y+r)*fe.recon.Stride + x
		for c := 0; c < leafSize; c++ {
			v := predBlock[r][c] + round(reconResidual[r][c])
			fe.recon.Data[off+c] = clampByte(v)
		}
	}
}

func referenceBlock(ref *motion.Plane, x, y, dx, dy int) [leafSize][leafSize]int32 {
	var out [leafSize][leafSize]int32
	for r := 0; r < leafSize; r++ {
		for c := 0; c < leafSize; c++ {
			out[r][c] = int32(ref.At(x+c+dx, y+r+dy))
		}
	}
	return out
}

func round(v float64) int32 {
	if v >= 0 {
		return int32(v + 0.5)
	}
	return -int32(-v + 0.5)
}

func clampByte(v int32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

func (fe *FrameEncoder) writePred(mode media.PredictionKind, isInter bool, mv motion.Vector) {
	if fe.desc.UseArithmetic {
		fe.cabacEnc.EncodeBypass(boolBit(isInter))
		for i := 3; i >= 0; i-- {
			fe.cabacEnc.EncodeBin(fe.ctxPred, uint8((uint8(mode)>>uint(i))&1))
		}
		if isInter {
			writeSignedBypass(fe.cabacEnc, int32(mv.DX))
			writeSignedBypass(fe.cabacEnc, int32(mv.DY))
		}
		return
	}
	fe.cavlcW.WriteBit(uint32(boolBit(isInter)))
	fe.cavlcW.WriteBits(uint32(mode), 4)
	if isInter {
		fe.cavlcW.WriteSE(int32(mv.DX))
		fe.cavlcW.WriteSE(int32(mv.DY))
	}
}

func (fe *FrameEncoder) writeCoeffs(scanned [64]int32) {
	if !fe.desc.UseArithmetic {
		entropy.EncodeCAVLC(fe.cavlcW, scanned)
		return
	}
	for i := 0; i < 64; i++ {
		sig := scanned[i] != 0
		fe.cabacEnc.EncodeBin(fe.ctxSig[i], boolBit(sig))
		if sig {
			writeSignedBypass(fe.cabacEnc, scanned[i])
		}
	}
}

func boolBit(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// writeSignedBypass writes an unbounded-magnitude signed value as a
// unary-terminated bypass-coded prefix followed by its magnitude bits
// and a sign bit, the escape-extended encoding CABAC-like coders use
// for syntax elements without a useful probability skew.
func writeSignedBypass(enc *entropy.Encoder, v int32) {
	mag := v
	sign := uint8(0)
	if mag < 0 {
		mag = -mag
		sign = 1
	}
	for i := 0; i < int(bitLen(uint32(mag))); i++ {
		enc.EncodeBypass(1)
	}
	enc.EncodeBypass(0)
	nbits := bitLen(uint32(mag))
	for i := int(nbits) - 1; i >= 0; i-- {
		enc.EncodeBypass(uint8((uint32(mag) >> uint(i)) & 1))
	}
	if mag != 0 {
		enc.EncodeBypass(sign)
	}
}

func bitLen(v uint32) uint {
	n := uint(0)
	for v > 0 {
		v >>= 1
		n++
	}
	return n
}
