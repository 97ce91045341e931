// Package packetizer fragments an EncodedFrame into MTU-bounded wire
// packets and reassembles fragments back into a frame's byte sequence at
// the receiver.
package packetizer

import (
	"fmt"
	"sort"
	"time"

	"github.com/fenwick-media/streamrt/errkind"
	"github.com/fenwick-media/streamrt/internal/wire"
	"github.com/fenwick-media/streamrt/media"
)

// Packet is one fragment ready for the send queue: its header fields
// (sequence left as 0 for the pacer to assign; the checksum is computed
// when the header is encoded at send time), an optional VIDEO trailer,
// and its payload slice.
type Packet struct {
	Header  wire.Header
	Trailer *wire.VideoTrailer
	Payload []byte
}

// Fragment splits frame's bitstream into chunks of at most maxPayload
// bytes and returns one Packet per chunk, in packet_index order.
// maxPayload must already account for header size (mtu - header_size);
// callers compute it once per session.
func Fragment(frame media.EncodedFrame, sessionID uint32, maxPayload int) ([]Packet, error) {
	if maxPayload <= 0 {
		return nil, errkind.New(errkind.Fatal, "packetizer.Fragment", fmt.Errorf("non-positive max payload %d", maxPayload))
	}
	if len(frame.Bitstream) == 0 {
		return nil, nil
	}

	n := (len(frame.Bitstream) + maxPayload - 1) / maxPayload
	packets := make([]Packet, 0, n)

	for i := 0; i < n; i++ {
		start := i * maxPayload
		end := start + maxPayload
		if end > len(frame.Bitstream) {
			end = len(frame.Bitstream)
		}
		payload := frame.Bitstream[start:end]

		var flags uint8
		if i == 0 {
			flags |= wire.FlagFirstOfFrame
		}
		if i == n-1 {
			flags |= wire.FlagLastOfFrame
		}

		packets = append(packets, Packet{
			Header: wire.Header{
				SessionID:   sessionID,
				CaptureTSUs: uint64(frame.CaptureTS),
				PacketKind:  wire.KindVideo,
				FrameClass:  toWireClass(frame.Class),
				Flags:       flags,
				PayloadLen:  uint16(len(payload)),
			},
			Trailer: &wire.VideoTrailer{
				FrameID:        frame.FrameID,
				PacketIndex:    uint16(i),
				PacketCount:    uint16(n),
				FragmentOffset: uint32(start),
			},
			Payload: payload,
		})
	}
	return packets, nil
}

func toWireClass(c media.FrameClass) wire.FrameClass {
	switch c {
	case media.Predicted:
		return wire.FramePredicted
	case media.ReferenceDropped:
		return wire.FrameReferenceDropped
	default:
		return wire.FrameKey
	}
}

// pendingFrame accumulates fragments for one frame_id awaiting complete
// reassembly.
type pendingFrame struct {
	frameID     uint32
	packetCount uint16
	received    map[uint16][]byte
	firstSeenAt time.Time
}

func newPendingFrame(frameID uint32, packetCount uint16, now time.Time) *pendingFrame {
	return &pendingFrame{
		frameID:     frameID,
		packetCount: packetCount,
		received:    make(map[uint16][]byte, packetCount),
		firstSeenAt: now,
	}
}

func (p *pendingFrame) complete() bool {
	return uint16(len(p.received)) == p.packetCount
}

// assemble concatenates payloads in packet_index order. Callers must
// only call this once complete() reports true.
func (p *pendingFrame) assemble() []byte {
	indices := make([]int, 0, len(p.received))
	for idx := range p.received {
		indices = append(indices, int(idx))
	}
	sort.Ints(indices)

	total := 0
	for _, idx := range indices {
		total += len(p.received[uint16(idx)])
	}
	out := make([]byte, 0, total)
	for _, idx := range indices {
		out = append(out, p.received[uint16(idx)]...)
	}
	return out
}

// Reassembler tracks in-flight fragmented frames and discards partially
// received ones once they exceed the reassembly deadline (2*RTT).
type Reassembler struct {
	pending map[uint32]*pendingFrame
}

// NewReassembler creates an empty Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{pending: make(map[uint32]*pendingFrame)}
}

// AddPacket ingests one VIDEO packet's trailer and payload. It returns
// the reassembled frame bytes and true once every packet_index in
// [0, packet_count) has arrived for that frame_id.
func (r *Reassembler) AddPacket(trailer wire.VideoTrailer, payload []byte, now time.Time) ([]byte, bool) {
	pf, ok := r.pending[trailer.FrameID]
	if !ok {
		pf = newPendingFrame(trailer.FrameID, trailer.PacketCount, now)
		r.pending[trailer.FrameID] = pf
	}
	if trailer.PacketIndex >= pf.packetCount {
		return nil, false
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)
	pf.received[trailer.PacketIndex] = buf

	if !pf.complete() {
		return nil, false
	}

	out := pf.assemble()
	delete(r.pending, trailer.FrameID)
	return out, true
}

// ExpireStale discards any pending frame older than deadline relative
// to now, returning the count discarded. deadline is 2*RTT per the
// reassembly timeout policy; callers recompute it as RTT estimates
// change.
func (r *Reassembler) ExpireStale(now time.Time, deadline time.Duration) int {
	discarded := 0
	for id, pf := range r.pending {
		if now.Sub(pf.firstSeenAt) > deadline {
			delete(r.pending, id)
			discarded++
		}
	}
	return discarded
}

// Pending reports how many frame_ids currently have partial data
// buffered, for statistics.
func (r *Reassembler) Pending() int {
	return len(r.pending)
}
