// Package sendqueue implements the bounded, priority-aware egress queue
// and the pacer that drains it at the congestion controller's pacing
// interval, assigning sequence numbers and finalizing header checksums
// at send time.
package sendqueue

import (
	"container/heap"
	"sync"

	"github.com/fenwick-media/streamrt/internal/wire"
)

// Priority orders entries: lower value drains first.
type Priority uint8

const (
	PriorityControl Priority = iota
	PriorityKeyVideo
	PriorityFEC
	PriorityPredictedVideo
	PriorityAudio
)

// PriorityFor derives an entry's Priority from its wire header.
func PriorityFor(h wire.Header) Priority {
	switch h.PacketKind {
	case wire.KindControl:
		return PriorityControl
	case wire.KindFEC:
		return PriorityFEC
	case wire.KindAudio:
		return PriorityAudio
	default: // VIDEO, RETRANSMIT
		if h.FrameClass == wire.FrameKey {
			return PriorityKeyVideo
		}
		return PriorityPredictedVideo
	}
}

// Entry is one queued outbound datagram awaiting sequence assignment.
type Entry struct {
	Header      wire.Header
	Trailer     *wire.VideoTrailer
	Payload     []byte
	Priority    Priority
	OriginalSeq uint32 // set only for retransmissions
	IsRetransmit bool

	seqInQueue int // insertion order, for FIFO tie-break within a priority
	index      int // heap index, maintained by container/heap
}

// Size returns the wire-encoded size of this entry.
func (e *Entry) Size() int {
	return wire.HeaderLen(e.Header.PacketKind) + len(e.Payload)
}

type entryHeap []*Entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seqInQueue < h[j].seqInQueue
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *entryHeap) Push(x any) {
	e := x.(*Entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Queue is a bounded, priority-ordered send queue. It is bounded by a
// byte count set in New and changed only through SetMaxBytes; the queue
// does not derive that bound from the target bitrate itself. On overflow
// it drops the lowest-priority tail entries and records a drop count.
type Queue struct {
	mu       sync.Mutex
	h        entryHeap
	nextSeq  int
	byteSize int
	maxBytes int

	dropped int64
}

// New creates a Queue bounded by maxBytes.
func New(maxBytes int) *Queue {
	q := &Queue{maxBytes: maxBytes}
	heap.Init(&q.h)
	return q
}

// SetMaxBytes updates the byte bound, e.g. when max_queue_latency_ms *
// target_bitrate changes as the congestion controller retargets.
func (q *Queue) SetMaxBytes(maxBytes int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.maxBytes = maxBytes
	q.evictOverflow()
}

// Push enqueues e, evicting lowest-priority tail entries if the queue
// exceeds its byte bound afterward.
func (q *Queue) Push(e *Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e.seqInQueue = q.nextSeq
	q.nextSeq++
	heap.Push(&q.h, e)
	q.byteSize += e.Size()
	q.evictOverflow()
}

// evictOverflow drops the worst-priority, most-recently-inserted
// entries until the queue fits within maxBytes. Caller holds q.mu.
func (q *Queue) evictOverflow() {
	if q.maxBytes <= 0 {
		return
	}
	for q.byteSize > q.maxBytes && len(q.h) > 0 {
		worstIdx := 0
		for i, e := range q.h {
			if e.Priority > q.h[worstIdx].Priority ||
				(e.Priority == q.h[worstIdx].Priority && e.seqInQueue > q.h[worstIdx].seqInQueue) {
				worstIdx = i
			}
		}
		dropped := heap.Remove(&q.h, worstIdx).(*Entry)
		q.byteSize -= dropped.Size()
		q.dropped++
	}
}

// Pop removes and returns the highest-priority entry, or nil if empty.
func (q *Queue) Pop() *Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) == 0 {
		return nil
	}
	e := heap.Pop(&q.h).(*Entry)
	q.byteSize -= e.Size()
	return e
}

// Len reports the current entry count.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}

// Dropped reports the cumulative count of entries evicted for overflow.
func (q *Queue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
