// Package stats aggregates the periodic statistics snapshot the engine
// publishes through its on_statistics callback: encoder throughput and
// drop rate from a sliding window, plus the current QP, congestion
// window, target bitrate, and per-session RTT/loss handed in from the
// governor, congestion controller, and session registry at snapshot
// time.
package stats

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// fpsWindow is how far back Collector looks to compute encoder FPS and
// drop rate.
const fpsWindow = 2 * time.Second

// SessionStat is one peer's RTT/loss contribution to a Statistics
// snapshot.
type SessionStat struct {
	SessionID uuid.UUID
	RTT       time.Duration
	LossRate  float64
}

// Statistics is a point-in-time snapshot of engine health.
type Statistics struct {
	Timestamp     time.Time
	EncoderFPS    float64
	DropRate      float64
	CurrentQP     int
	Complexity    int
	CwndPackets   float64
	TargetBitrate float64
	Sessions      []SessionStat
}

type frameEvent struct {
	at      time.Time
	dropped bool
}

// Collector accumulates encoder frame outcomes and produces Statistics
// snapshots on demand. Safe for concurrent use: RecordEmitted and
// RecordDropped are called from the encoder worker (RecordDropped also
// from Engine.Submit), Snapshot from the feedback worker on a timer.
type Collector struct {
	mu     sync.Mutex
	events []frameEvent

	nowFn func() time.Time
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{nowFn: time.Now}
}

// RecordEmitted records a successfully encoded frame.
func (c *Collector) RecordEmitted() {
	c.record(false)
}

// RecordDropped records a dropped frame: one the governor dropped under
// deadline pressure, or one the engine could not queue for encoding.
func (c *Collector) RecordDropped() {
	c.record(true)
}

func (c *Collector) record(dropped bool) {
	now := c.nowFn()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, frameEvent{at: now, dropped: dropped})
	c.trim(now)
}

// trim drops events older than fpsWindow. Caller holds c.mu.
func (c *Collector) trim(now time.Time) {
	cutoff := now.Add(-fpsWindow)
	i := 0
	for i < len(c.events) && c.events[i].at.Before(cutoff) {
		i++
	}
	c.events = c.events[i:]
}

// rates computes (fps, dropRate) over the current window. Caller holds
// c.mu.
func (c *Collector) rates(now time.Time) (fps, dropRate float64) {
	c.trim(now)
	if len(c.events) == 0 {
		return 0, 0
	}
	var emitted, dropped int
	for _, e := range c.events {
		if e.dropped {
			dropped++
		} else {
			emitted++
		}
	}
	total := emitted + dropped
	span := now.Sub(c.events[0].at).Seconds()
	if span <= 0 {
		span = fpsWindow.Seconds()
	}
	fps = float64(emitted) / span
	dropRate = float64(dropped) / float64(total)
	return fps, dropRate
}

// Snapshot assembles a Statistics value from the collector's own
// windowed frame counters plus the caller-supplied encoder and
// congestion state, which the collector has no direct access to.
func (c *Collector) Snapshot(qp, complexity int, cwndPackets, targetBitrate float64, sessions []SessionStat) Statistics {
	now := c.nowFn()
	c.mu.Lock()
	fps, dropRate := c.rates(now)
	c.mu.Unlock()

	return Statistics{
		Timestamp:     now,
		EncoderFPS:    fps,
		DropRate:      dropRate,
		CurrentQP:     qp,
		Complexity:    complexity,
		CwndPackets:   cwndPackets,
		TargetBitrate: targetBitrate,
		Sessions:      sessions,
	}
}
