package entropy

import "github.com/fenwick-media/streamrt/internal/bitio"

// Context holds a per-syntax-element probability state: a 0-63 state
// index into pLPSTable and the currently most-probable symbol.
type Context struct {
	State uint8
	MPS   uint8
}

// pLPSTable[state] is the 16-bit-scaled probability of the
// least-probable symbol at that state, decreasing monotonically as
// state grows (the model becomes more confident in MPS).
var pLPSTable [64]uint32

func init() {
	p := uint32(32768) // 0.5 scaled to 1<<16
	for s := 0; s < 64; s++ {
		pLPSTable[s] = p
		if p > 256 {
			p -= p / 16
		}
	}
}

func mpsNextState(s uint8) uint8 {
	if s >= 63 {
		return 63
	}
	return s + 1
}

func lpsNextState(s uint8) uint8 {
	return s / 2
}

const (
	topValue = 0xFFFFFFFF
	firstQtr = topValue/4 + 1
	half     = 2 * firstQtr
	thirdQtr = 3 * firstQtr
)

// Encoder is a bit-level binary arithmetic coder in the style of
// CABAC's engine: it tracks a shrinking [low,high) interval, selects
// the interval split from a context's probability state, and
// renormalizes bit-by-bit using the standard E1/E2/E3 underflow
// handling so no unbounded-precision integers are needed.
type Encoder struct {
	low, high uint32
	pending   int
	w         *bitio.Writer
}

// NewEncoder creates an Encoder writing into a fresh bitio.Writer.
func NewEncoder() *Encoder {
	return &Encoder{low: 0, high: topValue, w: bitio.NewWriter()}
}

func (e *Encoder) outputBit(bit uint32) {
	e.w.WriteBit(bit)
	inv := uint32(1) - bit
	for ; e.pending > 0; e.pending-- {
		e.w.WriteBit(inv)
	}
}

func (e *Encoder) renormalize() {
	for {
		switch {
		case e.high < half:
			e.outputBit(0)
			e.low *= 2
			e.high = e.high*2 + 1
		case e.low >= half:
			e.outputBit(1)
			e.low = (e.low - half) * 2
			e.high = (e.high-half)*2 + 1
		case e.low >= firstQtr && e.high < thirdQtr:
			e.pending++
			e.low = (e.low - firstQtr) * 2
			e.high = (e.high-firstQtr)*2 + 1
		default:
			return
		}
	}
}

// EncodeBin encodes bit (0 or 1) against ctx, updating ctx's state per
// the fixed MPS/LPS transition tables.
func (e *Encoder) EncodeBin(ctx *Context, bit uint8) {
	rangeWidth := uint64(e.high-e.low) + 1
	splitRange := uint32((rangeWidth * uint64(pLPSTable[ctx.State])) >> 16)
	if splitRange == 0 {
		splitRange = 1
	}
	mpsSize := uint32(rangeWidth) - splitRange

	if bit == ctx.MPS {
		e.high = e.low + mpsSize - 1
		ctx.State = mpsNextState(ctx.State)
	} else {
		e.low = e.low + mpsSize
		if ctx.State == 0 {
			ctx.MPS = 1 - ctx.MPS
		}
		ctx.State = lpsNextState(ctx.State)
	}
	e.renormalize()
}

// EncodeBypass encodes bit with equal probability, skipping the
// context model entirely (used for syntax elements with no useful
// statistical skew, e.g. sign bits).
func (e *Encoder) EncodeBypass(bit uint8) {
	rangeWidth := uint64(e.high-e.low) + 1
	mpsSize := uint32(rangeWidth / 2)
	if bit == 0 {
		e.high = e.low + mpsSize - 1
	} else {
		e.low = e.low + mpsSize
	}
	e.renormalize()
}

// Finish emits termination bins and flushes the coder, returning the
// finalized byte buffer.
func (e *Encoder) Finish() []byte {
	e.pending++
	if e.low < firstQtr {
		e.outputBit(0)
	} else {
		e.outputBit(1)
	}
	return e.w.Bytes()
}

// Decoder is the symmetric counterpart to Encoder.
type Decoder struct {
	low, high, value uint32
	r                *bitio.Reader
}

// NewDecoder creates a Decoder reading from data.
func NewDecoder(data []byte) *Decoder {
	d := &Decoder{low: 0, high: topValue, r: bitio.NewReader(data)}
	for i := 0; i < 32; i++ {
		d.value = d.value*2 + d.readBitOrZero()
	}
	return d
}

func (d *Decoder) readBitOrZero() uint32 {
	bit, err := d.r.ReadBit()
	if err != nil {
		return 0
	}
	return bit
}

func (d *Decoder) renormalize() {
	for {
		switch {
		case d.high < half:
			d.low *= 2
			d.high = d.high*2 + 1
			d.value = d.value*2 + d.readBitOrZero()
		case d.low >= half:
			d.low = (d.low - half) * 2
			d.high = (d.high-half)*2 + 1
			d.value = (d.value-half)*2 + d.readBitOrZero()
		case d.low >= firstQtr && d.high < thirdQtr:
			d.low = (d.low - firstQtr) * 2
			d.high = (d.high-firstQtr)*2 + 1
			d.value = (d.value-firstQtr)*2 + d.readBitOrZero()
		default:
			return
		}
	}
}

// DecodeBin decodes one bin against ctx, applying the same state
// transitions as EncodeBin.
func (d *Decoder) DecodeBin(ctx *Context) uint8 {
	rangeWidth := uint64(d.high-d.low) + 1
	splitRange := uint32((rangeWidth * uint64(pLPSTable[ctx.State])) >> 16)
	if splitRange == 0 {
		splitRange = 1
	}
	mpsSize := uint32(rangeWidth) - splitRange

	boundary := d.low + mpsSize - 1
	var bit uint8
	if d.value <= boundary {
		bit = ctx.MPS
		d.high = boundary
		ctx.State = mpsNextState(ctx.State)
	} else {
		bit = 1 - ctx.MPS
		d.low = d.low + mpsSize
		if ctx.State == 0 {
			ctx.MPS = 1 - ctx.MPS
		}
		ctx.State = lpsNextState(ctx.State)
	}
	d.renormalize()
	return bit
}

// DecodeBypass decodes one equal-probability bit.
func (d *Decoder) DecodeBypass() uint8 {
	rangeWidth := uint64(d.high-d.low) + 1
	mpsSize := uint32(rangeWidth / 2)
	boundary := d.low + mpsSize - 1
	var bit uint8
	if d.value <= boundary {
		d.high = boundary
	} else {
		bit = 1
		d.low = d.low + mpsSize
	}
	d.renormalize()
	return bit
}
