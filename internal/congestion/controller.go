// Package congestion implements the transport core's bitrate and
// retransmission controller: smoothed RTT/loss estimation, a BBR-style
// bottleneck-bandwidth window, Reno-style congestion-window arithmetic,
// and the retransmission-loss and staleness policies of the send queue.
package congestion

import (
	"math"
	"time"
)

// Phase is the congestion controller's current state.
type Phase uint8

const (
	SlowStart Phase = iota
	Avoidance
	Recovery
	FastRecovery
)

func (p Phase) String() string {
	switch p {
	case SlowStart:
		return "slow_start"
	case Avoidance:
		return "avoidance"
	case Recovery:
		return "recovery"
	case FastRecovery:
		return "fast_recovery"
	default:
		return "unknown"
	}
}

const bandwidthWindowRTTs = 10
const lossWindowSize = 64
const controlIntervalMs = 100

// bwSample is one bandwidth observation: bytes ACKed over the RTT they
// were ACKed in.
type bwSample struct {
	bytesPerSec float64
	rtt         time.Duration
}

// State holds all of the congestion controller's mutable estimates. A
// single writer (the feedback worker) owns State; the engine publishes
// the derived pacing interval through an atomic.Int64 for the pacer to
// read lock-free.
type State struct {
	Phase Phase

	CwndPackets   float64
	SSThresh      float64
	BytesInFlight int64

	SRTT   time.Duration
	RTTVar time.Duration
	MinRTT time.Duration

	BottleneckBW float64 // bytes/sec

	lossEvents [lossWindowSize]bool
	lossIdx    int

	bwWindow []bwSample
}

// NewState returns a State initialized to slow start with cwnd=1, per
// the invariant that cwnd is never less than 1.
func NewState() *State {
	return &State{
		Phase:       SlowStart,
		CwndPackets: 1,
		SSThresh:    math.MaxFloat64,
	}
}

// OnRTTSample folds one RTT measurement into the smoothed RTT and RTT
// variance EWMAs, and the minimum-RTT and bandwidth windows.
func (s *State) OnRTTSample(sample time.Duration, ackedBytes int64) {
	if s.SRTT == 0 {
		s.SRTT = sample
		s.RTTVar = sample / 2
	} else {
		diff := sample - s.SRTT
		if diff < 0 {
			diff = -diff
		}
		s.RTTVar = s.RTTVar*3/4 + diff/4
		s.SRTT = s.SRTT*7/8 + sample/8
	}
	if s.MinRTT == 0 || sample < s.MinRTT {
		s.MinRTT = sample
	}

	if sample > 0 && ackedBytes > 0 {
		bps := float64(ackedBytes) / sample.Seconds()
		s.bwWindow = append(s.bwWindow, bwSample{bytesPerSec: bps, rtt: sample})
		if len(s.bwWindow) > bandwidthWindowRTTs {
			s.bwWindow = s.bwWindow[len(s.bwWindow)-bandwidthWindowRTTs:]
		}
		max := 0.0
		for _, w := range s.bwWindow {
			if w.bytesPerSec > max {
				max = w.bytesPerSec
			}
		}
		s.BottleneckBW = max
	}
}

// OnACK advances cwnd per the current phase's arithmetic.
func (s *State) OnACK() {
	switch s.Phase {
	case SlowStart:
		s.CwndPackets++
		if s.CwndPackets >= s.SSThresh {
			s.Phase = Avoidance
		}
	case Avoidance:
		s.CwndPackets += 1 / s.CwndPackets
	case FastRecovery:
		if float64(s.BytesInFlight) <= s.CwndPackets {
			s.Phase = Avoidance
		}
	}
	if s.CwndPackets < 1 {
		s.CwndPackets = 1
	}
	s.recordLoss(false)
}

// OnLoss handles a detected loss event: halve cwnd, remember ss_thresh,
// and enter fast recovery.
func (s *State) OnLoss() {
	s.SSThresh = s.CwndPackets / 2
	s.CwndPackets = s.SSThresh
	if s.CwndPackets < 1 {
		s.CwndPackets = 1
	}
	s.Phase = FastRecovery
	s.recordLoss(true)
}

func (s *State) recordLoss(lost bool) {
	s.lossEvents[s.lossIdx] = lost
	s.lossIdx = (s.lossIdx + 1) % lossWindowSize
}

// LossRate returns the fraction of losses among the last 64 recorded
// events, one event per OnACK or OnLoss call; it does not track
// congestion-window boundaries.
func (s *State) LossRate() float64 {
	n := 0
	for _, l := range s.lossEvents {
		if l {
			n++
		}
	}
	return float64(n) / lossWindowSize
}

// TargetBitrate computes bottleneck_bw*(1-loss_rate) clamped to
// [minBitrate, maxBitrate], the value published every control interval.
func (s *State) TargetBitrate(minBitrate, maxBitrate float64) float64 {
	rate := s.BottleneckBW * 8 * (1 - s.LossRate()) // bytes/sec -> bits/sec
	if rate < minBitrate {
		rate = minBitrate
	}
	if rate > maxBitrate {
		rate = maxBitrate
	}
	return rate
}

// PacingInterval returns the minimum-1ms interval between packet sends
// that spreads packetSize bytes evenly across the target bitrate.
func PacingInterval(packetSizeBytes int, targetBitrateBps float64) time.Duration {
	if targetBitrateBps <= 0 {
		return time.Millisecond
	}
	seconds := float64(packetSizeBytes) * 8 / targetBitrateBps
	interval := time.Duration(seconds * float64(time.Second))
	if interval < time.Millisecond {
		return time.Millisecond
	}
	return interval
}

// RetransmitTimeout returns srtt + 4*rttvar, the deadline past which an
// un-ACKed packet is considered a loss candidate.
func (s *State) RetransmitTimeout() time.Duration {
	return s.SRTT + 4*s.RTTVar
}

// ControlInterval is how often TargetBitrate should be recomputed and
// published.
const ControlInterval = controlIntervalMs * time.Millisecond
