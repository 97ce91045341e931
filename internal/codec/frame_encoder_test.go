package codec

import (
	"math/rand"
	"testing"

	"github.com/fenwick-media/streamrt/internal/motion"
	"github.com/fenwick-media/streamrt/media"
)

func flatPlane(w, h int, val byte) *motion.Plane {
	data := make([]byte, w*h)
	for i := range data {
		data[i] = val
	}
	return &motion.Plane{Width: w, Height: h, Stride: w, Data: data}
}

func noisyPlane(w, h int, seed int64) *motion.Plane {
	rng := rand.New(rand.NewSource(seed))
	data := make([]byte, w*h)
	for i := range data {
		data[i] = byte(rng.Intn(256))
	}
	return &motion.Plane{Width: w, Height: h, Stride: w, Data: data}
}

func TestFrameEncoderKeyFrameCAVLCProducesBitstream(t *testing.T) {
	t.Parallel()

	desc := Descriptors[Narrow]
	cur := flatPlane(32, 32, 120)
	fe := NewFrameEncoder(desc, 24, 5, media.Key, cur, nil, nil)
	bits, recon := fe.Encode(cur)

	if len(bits) == 0 {
		t.Fatal("expected non-empty bitstream")
	}
	if recon.Width != cur.Width || recon.Height != cur.Height {
		t.Fatalf("recon dims mismatch: got %dx%d want %dx%d", recon.Width, recon.Height, cur.Width, cur.Height)
	}
}

func TestFrameEncoderKeyFrameCABACProducesBitstream(t *testing.T) {
	t.Parallel()

	desc := Descriptors[HEVCLike]
	cur := noisyPlane(64, 64, 3)
	fe := NewFrameEncoder(desc, 30, 8, media.Key, cur, nil, nil)
	bits, recon := fe.Encode(cur)

	if len(bits) == 0 {
		t.Fatal("expected non-empty bitstream")
	}
	if len(recon.Data) != len(cur.Data) {
		t.Fatalf("recon buffer size mismatch: got %d want %d", len(recon.Data), len(cur.Data))
	}
}

func TestFrameEncoderFlatBlockReconstructsExactlyAtLowQP(t *testing.T) {
	t.Parallel()

	desc := Descriptors[Narrow]
	cur := flatPlane(16, 16, 90)
	fe := NewFrameEncoder(desc, 0, 0, media.Key, cur, nil, nil)
	_, recon := fe.Encode(cur)

	for i, v := range recon.Data {
		d := int(v) - int(cur.Data[i])
		if d < 0 {
			d = -d
		}
		if d > 4 {
			t.Fatalf("pixel %d: reconstructed %d too far from source %d at qp=0", i, v, cur.Data[i])
		}
	}
}

func TestFrameEncoderPredictedFrameUsesReference(t *testing.T) {
	t.Parallel()

	desc := Descriptors[HEVCLike]
	ref := noisyPlane(32, 32, 11)
	keyEnc := NewFrameEncoder(desc, 20, 5, media.Key, ref, nil, nil)
	_, refRecon := keyEnc.Encode(ref)

	// Shift the reference by a small, uniform amount to give motion search
	// something to find.
	cur := &motion.Plane{Width: ref.Width, Height: ref.Height, Stride: ref.Stride, Data: make([]byte, len(ref.Data))}
	for y := 0; y < ref.Height; y++ {
		for x := 0; x < ref.Width; x++ {
			cur.Data[y*cur.Stride+x] = byte(refRecon.At(x-2, y))
		}
	}

	predEnc := NewFrameEncoder(desc, 20, 5, media.Predicted, cur, refRecon, nil)
	bits, recon := predEnc.Encode(cur)

	if len(bits) == 0 {
		t.Fatal("expected non-empty predicted bitstream")
	}
	if len(recon.Data) != len(cur.Data) {
		t.Fatal("predicted recon buffer size mismatch")
	}
}

func TestSearchStrategyRoutesByComplexity(t *testing.T) {
	t.Parallel()

	cur := noisyPlane(32, 32, 1)
	ref := noisyPlane(32, 32, 2)

	for _, c := range []int{0, 3, 7, 9} {
		fn := searchStrategy(c)
		v := fn(cur, ref, 8, 8, motion.Vector{})
		if v.Cost < 0 {
			t.Fatalf("complexity %d: negative cost %d", c, v.Cost)
		}
	}
}

func TestChoosePartitionKindRespectsAllowedKinds(t *testing.T) {
	t.Parallel()

	desc := Descriptors[Narrow]
	fe := &FrameEncoder{desc: desc, allowedKinds: desc.AllowedKinds}
	kind := fe.choosePartitionKind(16, 16)
	found := false
	for _, k := range desc.AllowedKinds {
		if k == kind {
			found = true
		}
	}
	if !found {
		t.Fatalf("chosen kind %v not in allowed set %v", kind, desc.AllowedKinds)
	}
}

func TestChoosePartitionKindHonorsRestrictedSet(t *testing.T) {
	t.Parallel()

	desc := Descriptors[VVCLike]
	restricted := RestrictedKinds(desc)
	fe := &FrameEncoder{desc: desc, allowedKinds: restricted}

	kind := fe.choosePartitionKind(64, 64)
	for _, forbidden := range []media.PartitionKind{media.PartitionQuadSplit, media.PartitionTernaryH, media.PartitionTernaryV} {
		if kind == forbidden {
			t.Fatalf("restricted encoder chose %v, which RestrictedKinds should have excluded", kind)
		}
	}
}

func TestRestrictedKindsDropsMultiWaySplits(t *testing.T) {
	t.Parallel()

	for variant, desc := range Descriptors {
		restricted := RestrictedKinds(desc)
		for _, k := range restricted {
			if k == media.PartitionQuadSplit || k == media.PartitionTernaryH || k == media.PartitionTernaryV {
				t.Fatalf("variant %v: RestrictedKinds kept multi-way split %v", variant, k)
			}
		}
	}
}
