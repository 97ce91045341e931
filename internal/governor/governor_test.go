package governor

import (
	"testing"
	"time"

	"github.com/fenwick-media/streamrt/internal/codec"
	"github.com/fenwick-media/streamrt/media"
)

func flatFrame(w, h int, val byte, id uint32) media.RawFrame {
	y := make([]byte, w*h)
	for i := range y {
		y[i] = val
	}
	return media.RawFrame{Width: w, Height: h, Stride: w, Y: y, FrameID: id}
}

func TestEncodeFirstFrameIsAlwaysKey(t *testing.T) {
	t.Parallel()

	g := New(Config{
		MaxEncodingTime: 20 * time.Millisecond,
		TargetFrameSize: 33 * time.Millisecond,
		GOPSize:         30,
		Variant:         codec.Narrow,
	}, nil)

	res, err := g.Encode(flatFrame(32, 32, 100, 1))
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != Emitted {
		t.Fatalf("expected Emitted, got %v", res.Outcome)
	}
	if res.Frame.Class != media.Key {
		t.Fatalf("expected KEY frame first, got %v", res.Frame.Class)
	}
}

func TestEncodeEmitsKeyFrameEveryGOPSize(t *testing.T) {
	t.Parallel()

	g := New(Config{
		MaxEncodingTime: 20 * time.Millisecond,
		TargetFrameSize: 33 * time.Millisecond,
		GOPSize:         3,
		Variant:         codec.Narrow,
	}, nil)

	var classes []media.FrameClass
	for i := 0; i < 6; i++ {
		res, err := g.Encode(flatFrame(32, 32, byte(50+i), uint32(i)))
		if err != nil {
			t.Fatal(err)
		}
		classes = append(classes, res.Frame.Class)
	}
	for i, c := range classes {
		want := media.Predicted
		if i%3 == 0 {
			want = media.Key
		}
		if c != want {
			t.Fatalf("frame %d: got %v want %v", i, c, want)
		}
	}
}

func TestShouldDropOverridesAfterFiveConsecutiveDrops(t *testing.T) {
	t.Parallel()

	g := New(Config{
		MaxEncodingTime: 20 * time.Millisecond,
		TargetFrameSize: 10 * time.Millisecond,
		GOPSize:         30,
		Variant:         codec.Narrow,
	}, nil)

	base := time.Now()
	tick := base
	g.nowFn = func() time.Time { return tick }

	// Prime lastFrameTime with a real encode.
	if _, err := g.Encode(flatFrame(16, 16, 10, 0)); err != nil {
		t.Fatal(err)
	}

	// Jump far enough ahead that every subsequent call looks overdue.
	tick = tick.Add(time.Second)

	for i := 0; i < 6; i++ {
		res, err := g.Encode(flatFrame(16, 16, 10, uint32(i+1)))
		if err != nil {
			t.Fatal(err)
		}
		if res.Outcome != Dropped {
			t.Fatalf("call %d: expected Dropped, got %v", i, res.Outcome)
		}
	}

	// The 7th overdue call must encode anyway: consecutive_drops (6) > 5.
	res, err := g.Encode(flatFrame(16, 16, 10, 7))
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != Emitted {
		t.Fatal("expected override to force an encode once consecutive_drops exceeds 5")
	}
}

func TestAdaptRaisesQPWhenDeadlineExceeded(t *testing.T) {
	t.Parallel()

	g := New(Config{
		MaxEncodingTime: time.Millisecond,
		TargetFrameSize: 33 * time.Millisecond,
		GOPSize:         30,
		Variant:         codec.Narrow,
	}, nil)

	before := g.QP()
	g.adapt(10 * time.Millisecond)
	if g.QP() <= before {
		t.Fatalf("expected QP to rise after exceeding deadline: before=%d after=%d", before, g.QP())
	}
}

func TestAdaptLowersQPWhenWellUnderDeadline(t *testing.T) {
	t.Parallel()

	g := New(Config{
		MaxEncodingTime: 100 * time.Millisecond,
		TargetFrameSize: 33 * time.Millisecond,
		GOPSize:         30,
		Variant:         codec.Narrow,
	}, nil)
	g.qp = 30

	g.adapt(time.Millisecond)
	if g.QP() >= 30 {
		t.Fatalf("expected QP to fall when far under deadline, got %d", g.QP())
	}
}

func TestEncodeRestrictsPartitionKindsUnderHeavyCostEstimate(t *testing.T) {
	t.Parallel()

	g := New(Config{
		MaxEncodingTime: time.Millisecond,
		TargetFrameSize: time.Millisecond,
		GOPSize:         30,
		Variant:         codec.VVCLike,
	}, nil)

	// A highly textured frame drives estimateCost's variance/nominal
	// ratio well past 1.5, forcing the >1.5*MaxEncodingTime branch that
	// restricts the partition-kind candidate set alongside the QP raise.
	noisy := make([]byte, 64*64)
	for i := range noisy {
		noisy[i] = byte(i * 37 % 256)
	}
	res, err := g.Encode(media.RawFrame{Width: 64, Height: 64, Stride: 64, Y: noisy, FrameID: 1})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != Emitted {
		t.Fatalf("expected the frame to still encode under a restricted partition set, got %v", res.Outcome)
	}
	if res.Frame.QP <= codec.Descriptors[codec.VVCLike].MaxQP/2 {
		t.Fatalf("expected the QP raise that accompanies partition restriction, got qp=%d", res.Frame.QP)
	}
}

func TestQPStaysWithinVariantBounds(t *testing.T) {
	t.Parallel()

	g := New(Config{
		MaxEncodingTime: time.Millisecond,
		TargetFrameSize: 33 * time.Millisecond,
		GOPSize:         30,
		Variant:         codec.Narrow,
	}, nil)

	for i := 0; i < 50; i++ {
		g.adapt(10 * time.Millisecond)
	}
	if g.QP() > codec.Descriptors[codec.Narrow].MaxQP {
		t.Fatalf("QP exceeded variant max: %d", g.QP())
	}
}
