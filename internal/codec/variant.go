// Package codec implements the shared inner loop of the four codec
// variants: partition decision, prediction, transform/quantize,
// entropy coding, and reconstruction. The variants differ only in
// maximum block size, allowed partition kinds, and tool set — a single
// parametric implementation replaces the source's deep
// encoder/decoder class hierarchy per the design notes.
package codec

import (
	"math"

	"github.com/fenwick-media/streamrt/media"
)

// Variant is a tagged-variant codec descriptor carrying the block-size
// cap and tool-flag set for one of the four named codec families.
type Variant uint8

const (
	Narrow Variant = iota // H.264-like
	HEVCLike
	AV1Like
	VVCLike
)

func (v Variant) String() string {
	switch v {
	case Narrow:
		return "narrow"
	case HEVCLike:
		return "hevc-like"
	case AV1Like:
		return "av1-like"
	case VVCLike:
		return "vvc-like"
	default:
		return "unknown"
	}
}

// ParseVariant maps the config string {narrow, hevc-like, av1-like,
// vvc-like} to a Variant, defaulting to Narrow on an unrecognized name.
func ParseVariant(s string) (Variant, bool) {
	switch s {
	case "narrow":
		return Narrow, true
	case "hevc-like":
		return HEVCLike, true
	case "av1-like":
		return AV1Like, true
	case "vvc-like":
		return VVCLike, true
	default:
		return Narrow, false
	}
}

// Descriptor holds the per-variant constants the inner loop consults:
// maximum coding block size, the QP ceiling, the lambda coefficient
// k in lambda = k * 2^((QP-12)/3), and which PartitionKinds the
// partition decision may choose among.
type Descriptor struct {
	Variant        Variant
	MaxBlockSize   int
	MaxQP          int
	LambdaK        float64
	AllowedKinds   []media.PartitionKind
	UseArithmetic  bool // true selects CABAC-like entropy coding, false CAVLC-like
	AllowAffine    bool
	AllowIBC       bool
}

// Descriptors maps each Variant to its fixed parameters.
var Descriptors = map[Variant]Descriptor{
	Narrow: {
		Variant:      Narrow,
		MaxBlockSize: 16,
		MaxQP:        51,
		LambdaK:      0.68,
		AllowedKinds: []media.PartitionKind{
			media.PartitionNone, media.PartitionHSplit, media.PartitionVSplit, media.PartitionQuadSplit,
		},
		UseArithmetic: false,
	},
	HEVCLike: {
		Variant:      HEVCLike,
		MaxBlockSize: 64,
		MaxQP:        63,
		LambdaK:      0.85,
		AllowedKinds: []media.PartitionKind{
			media.PartitionNone, media.PartitionHSplit, media.PartitionVSplit, media.PartitionQuadSplit,
		},
		UseArithmetic: true,
	},
	AV1Like: {
		Variant:      AV1Like,
		MaxBlockSize: 128,
		MaxQP:        63,
		LambdaK:      0.85,
		AllowedKinds: []media.PartitionKind{
			media.PartitionNone, media.PartitionHSplit, media.PartitionVSplit, media.PartitionQuadSplit,
			media.PartitionTernaryH, media.PartitionTernaryV,
		},
		UseArithmetic: true,
		AllowIBC:      true,
	},
	VVCLike: {
		Variant:      VVCLike,
		MaxBlockSize: 256,
		MaxQP:        63,
		LambdaK:      0.85,
		AllowedKinds: []media.PartitionKind{
			media.PartitionNone, media.PartitionHSplit, media.PartitionVSplit, media.PartitionQuadSplit,
			media.PartitionTernaryH, media.PartitionTernaryV,
		},
		UseArithmetic: true,
		AllowAffine:   true,
		AllowIBC:      true,
	},
}

// RestrictedKinds narrows desc.AllowedKinds to the two-way splits
// (horizontal/vertical), dropping quad-split and both ternary splits.
// Used by the governor under severe deadline pressure to cut partition
// search combinatorics, applied together with a QP raise.
func RestrictedKinds(desc Descriptor) []media.PartitionKind {
	kinds := make([]media.PartitionKind, 0, len(desc.AllowedKinds))
	for _, k := range desc.AllowedKinds {
		switch k {
		case media.PartitionQuadSplit, media.PartitionTernaryH, media.PartitionTernaryV:
			continue
		default:
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Lambda computes k * 2^((qp-12)/3) for the variant's lambda coefficient.
func (d Descriptor) Lambda(qp int) float64 {
	return d.LambdaK * math.Exp2((float64(qp)-12)/3)
}
