package congestion

import (
	"time"

	"github.com/fenwick-media/streamrt/internal/wire"
)

// MaxRetransmitAttempts caps per-packet retries regardless of ARQ
// deadline math, preventing one stuck packet from monopolizing the send
// queue.
const MaxRetransmitAttempts = 3

// InFlight tracks one un-ACKed packet awaiting retransmit-loss detection.
type InFlight struct {
	Sequence         uint32
	FrameClass       wire.FrameClass
	CaptureTS        time.Time
	SentAt           time.Time
	Attempts         int
	AckedAfterCount  int // subsequent packets ACKed since this one was sent
}

// ShouldRetransmit reports whether pkt is considered lost and eligible
// for retransmission: unACKed past srtt+4*rttvar and at least 3
// subsequent packets ACKed, under the attempt budget, and (for
// PREDICTED frames) still within max_latency_ms of its capture time.
func ShouldRetransmit(pkt InFlight, now time.Time, timeout time.Duration, maxLatency time.Duration) bool {
	if pkt.Attempts >= MaxRetransmitAttempts {
		return false
	}
	if now.Sub(pkt.SentAt) < timeout {
		return false
	}
	if pkt.AckedAfterCount < 3 {
		return false
	}
	if pkt.FrameClass == wire.FramePredicted && now.Sub(pkt.CaptureTS) >= maxLatency {
		return false
	}
	return true
}
