package sendqueue

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fenwick-media/streamrt/internal/wire"
)

// Sender is the subset of a UDP-like socket the pacer needs. Accepting
// an interface here keeps the pacer testable without a real socket.
type Sender interface {
	Send(buf []byte) error
}

// Pacer drains a Queue at the interval published in PacingIntervalNs,
// assigning sequence numbers in send order and finalizing each entry's
// header checksum immediately before transmission.
type Pacer struct {
	log   *slog.Logger
	q     *Queue
	send  Sender
	seq   atomic.Uint32
	nowFn func() time.Time

	// PacingIntervalNs is a single-writer (feedback worker), multi-reader
	// atomic scalar; the pacer only reads it.
	PacingIntervalNs *atomic.Int64
}

// NewPacer creates a Pacer draining q through send, sleeping the duration in
// pacingIntervalNs (owned by the caller, updated externally) between
// sends. log defaults to slog.Default() when nil.
func NewPacer(q *Queue, send Sender, pacingIntervalNs *atomic.Int64, log *slog.Logger) *Pacer {
	if log == nil {
		log = slog.Default()
	}
	return &Pacer{
		log:              log.With("component", "pacer"),
		q:                q,
		send:             send,
		PacingIntervalNs: pacingIntervalNs,
		nowFn:            time.Now,
	}
}

// NextSeq assigns and returns the next sequence number, monotonically
// increasing for the pacer's lifetime.
func (p *Pacer) NextSeq() uint32 {
	return p.seq.Add(1) - 1
}

// Run drains the queue until ctx is cancelled, at which point it exits
// after finishing any in-flight send (no partial datagram is ever
// written to the wire).
func (p *Pacer) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		e := p.q.Pop()
		if e == nil {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Millisecond):
			}
			continue
		}

		if err := p.sendEntry(e); err != nil {
			p.log.Warn("send failed", "kind", e.Header.PacketKind, "error", err)
		}

		interval := time.Millisecond
		if p.PacingIntervalNs != nil {
			if ns := p.PacingIntervalNs.Load(); ns > 0 {
				interval = time.Duration(ns)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

func (p *Pacer) sendEntry(e *Entry) error {
	if e.IsRetransmit {
		e.Header.Sequence = e.OriginalSeq
		e.Header.PacketKind = wire.KindRetransmit
	} else {
		e.Header.Sequence = p.NextSeq()
	}
	e.Header.PayloadLen = uint16(len(e.Payload))

	header := wire.EncodeHeader(e.Header, e.Trailer)
	buf := make([]byte, len(header)+len(e.Payload))
	copy(buf, header)
	copy(buf[len(header):], e.Payload)

	return p.send.Send(buf)
}
