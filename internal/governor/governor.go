// Package governor wraps the codec inner loop with the deadline
// enforcement, frame-drop policy, and adaptive QP/complexity control
// described for the encoder governor: a hard per-frame time budget with
// graceful degradation before visible quality loss.
package governor

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fenwick-media/streamrt/errkind"
	"github.com/fenwick-media/streamrt/internal/codec"
	"github.com/fenwick-media/streamrt/internal/motion"
	"github.com/fenwick-media/streamrt/media"
)

// Outcome tags what happened to an encode call.
type Outcome uint8

const (
	Emitted Outcome = iota
	Dropped
)

func (o Outcome) String() string {
	if o == Dropped {
		return "DROPPED"
	}
	return "EMITTED"
}

// State is the governor's IDLE -> ENCODING -> {EMITTED|DROPPED} -> IDLE
// machine, named for logging and statistics only; the transitions
// themselves are implicit in Governor.Encode's control flow.
type State uint8

const (
	Idle State = iota
	Encoding
)

// complexityLadder orders motion-search thoroughness from cheapest to
// most exhaustive; adapt steps down one rung, trading search quality for
// speed, in the same step that raises QP on a deadline overrun.
var complexityLadder = []int{0, 3, 6, 9}

// Config holds the governor's fixed knobs, drawn from the engine's
// public Config at construction.
type Config struct {
	MaxEncodingTime   time.Duration
	TargetFrameSize   time.Duration
	GOPSize           int
	Variant           codec.Variant
	InitialComplexity int
}

// Governor wraps FrameEncoder with deadline enforcement and adaptive
// QP/complexity. It owns the reference plane across calls, exactly as
// the encoder worker owns it per the concurrency model: the governor is
// meant to be driven single-threaded by one encoder worker.
type Governor struct {
	log *slog.Logger
	cfg Config

	qp            int
	complexityIdx int
	frameCounter  int

	lastFrameTime    time.Time
	consecutiveDrops int

	ref *motion.Plane

	nowFn func() time.Time
}

// New creates a Governor starting at the midpoint QP for its variant and
// the configured initial complexity preset.
func New(cfg Config, log *slog.Logger) *Governor {
	if log == nil {
		log = slog.Default()
	}
	desc := codec.Descriptors[cfg.Variant]
	idx := complexityIndexFor(cfg.InitialComplexity)
	return &Governor{
		log:           log.With("component", "governor"),
		cfg:           cfg,
		qp:            desc.MaxQP / 2,
		complexityIdx: idx,
		nowFn:         time.Now,
	}
}

func complexityIndexFor(c int) int {
	best := 0
	for i, v := range complexityLadder {
		if v <= c {
			best = i
		}
	}
	return best
}

// Result is what one Encode call produces.
type Result struct {
	Outcome Outcome
	Frame   media.EncodedFrame
	Elapsed time.Duration
}

// Encode runs the frame-drop check, cost estimate, deadline-aware
// encode, and post-encode QP/complexity adaptation for one raw frame.
func (g *Governor) Encode(raw media.RawFrame) (Result, error) {
	now := g.nowFn()

	if g.shouldDrop(now) {
		g.consecutiveDrops++
		g.log.Debug("dropping frame under deadline pressure", "frame_id", raw.FrameID, "consecutive_drops", g.consecutiveDrops)
		return Result{Outcome: Dropped}, nil
	}

	desc := codec.Descriptors[g.cfg.Variant]
	plane := &motion.Plane{Width: raw.Width, Height: raw.Height, Stride: raw.Stride, Data: raw.Y}

	estimate := g.estimateCost(plane)
	appliedQP := g.qp
	var allowedKinds []media.PartitionKind
	if estimate > g.cfg.MaxEncodingTime*3/2 {
		appliedQP = clamp(g.qp+10, 0, desc.MaxQP)
		allowedKinds = codec.RestrictedKinds(desc)
		g.log.Debug("restricting partition kinds under deadline pressure", "estimate_ms", estimate.Milliseconds())
	}

	class := media.Predicted
	if g.cfg.GOPSize <= 0 || g.frameCounter%g.cfg.GOPSize == 0 {
		class = media.Key
	}

	var ref *motion.Plane
	if class != media.Key {
		ref = g.ref
	}

	start := g.nowFn()
	fe := codec.NewFrameEncoder(desc, appliedQP, complexityLadder[g.complexityIdx], class, plane, ref, allowedKinds)
	bitstream, recon := fe.Encode(plane)
	elapsed := g.nowFn().Sub(start)

	if len(bitstream) == 0 {
		return Result{}, errkind.New(errkind.Codec, "governor.Encode", fmt.Errorf("bitstream writer produced no output"))
	}

	g.adapt(elapsed)
	g.frameCounter++
	g.lastFrameTime = now
	g.consecutiveDrops = 0
	g.ref = recon

	return Result{
		Outcome: Emitted,
		Elapsed: elapsed,
		Frame: media.EncodedFrame{
			FrameID:      raw.FrameID,
			CaptureTS:    raw.CaptureTS,
			Class:        class,
			IsRecoveryPt: class == media.Key,
			Bitstream:    bitstream,
			QP:           appliedQP,
		},
	}, nil
}

// shouldDrop applies the frame-drop policy: drop when more than
// 1.5*target_frame_size has elapsed since the last frame, unless more
// than five consecutive drops have already happened (reference
// starvation override).
func (g *Governor) shouldDrop(now time.Time) bool {
	if g.lastFrameTime.IsZero() {
		return false
	}
	if g.consecutiveDrops > 5 {
		return false
	}
	return now.Sub(g.lastFrameTime) > g.cfg.TargetFrameSize*3/2
}

// estimateCost derives an encoding-time estimate from block variance
// (texture correlates with motion-search and residual coding cost).
// This is a coarse proxy, not a timed dry run, matching a governor that
// must decide before spending any encode time.
func (g *Governor) estimateCost(plane *motion.Plane) time.Duration {
	if g.cfg.TargetFrameSize <= 0 {
		return 0
	}
	variance := sampleVariance(plane)
	// Normalize against a nominal "medium texture" variance so a flat
	// frame estimates near zero extra cost and a highly textured one
	// estimates up to 3x the target frame period.
	const nominal = 900.0
	factor := variance / nominal
	if factor > 3 {
		factor = 3
	}
	return time.Duration(float64(g.cfg.TargetFrameSize) * factor)
}

func sampleVariance(p *motion.Plane) float64 {
	if len(p.Data) == 0 {
		return 0
	}
	var sum, sumSq float64
	n := float64(len(p.Data))
	for _, v := range p.Data {
		f := float64(v)
		sum += f
		sumSq += f * f
	}
	mean := sum / n
	return sumSq/n - mean*mean
}

// adapt raises QP by 5 when the deadline was exceeded, lowers it by 2
// when encoding finished in under half the deadline, and on every
// deadline overrun also steps the complexity preset down one rung,
// together with the QP raise.
func (g *Governor) adapt(elapsed time.Duration) {
	desc := codec.Descriptors[g.cfg.Variant]
	switch {
	case elapsed > g.cfg.MaxEncodingTime:
		g.qp = clamp(g.qp+5, 0, desc.MaxQP)
		if g.complexityIdx > 0 {
			g.complexityIdx--
			g.log.Debug("stepping complexity preset down", "new_complexity", complexityLadder[g.complexityIdx])
		}
	case elapsed < g.cfg.MaxEncodingTime/2:
		g.qp = clamp(g.qp-2, 0, desc.MaxQP)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// QP reports the governor's current quantization parameter, for
// statistics.
func (g *Governor) QP() int { return g.qp }

// Complexity reports the governor's current complexity preset value.
func (g *Governor) Complexity() int { return complexityLadder[g.complexityIdx] }
