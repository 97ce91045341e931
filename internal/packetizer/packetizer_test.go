package packetizer

import (
	"bytes"
	"testing"
	"time"

	"github.com/fenwick-media/streamrt/internal/wire"
	"github.com/fenwick-media/streamrt/media"
)

func TestFragmentZeroLengthFrameProducesNoPackets(t *testing.T) {
	t.Parallel()

	pkts, err := Fragment(media.EncodedFrame{}, 1, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(pkts) != 0 {
		t.Fatalf("expected 0 packets, got %d", len(pkts))
	}
}

func TestFragmentExactlyOneMTUProducesSinglePacket(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte{0xAB}, 100)
	frame := media.EncodedFrame{FrameID: 1, Class: media.Key, Bitstream: payload}
	pkts, err := Fragment(frame, 7, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(pkts) != 1 {
		t.Fatalf("expected 1 packet, got %d", len(pkts))
	}
	if pkts[0].Trailer.PacketCount != 1 {
		t.Fatalf("packet_count: got %d want 1", pkts[0].Trailer.PacketCount)
	}
	if pkts[0].Header.Flags&wire.FlagFirstOfFrame == 0 || pkts[0].Header.Flags&wire.FlagLastOfFrame == 0 {
		t.Fatal("single packet must carry both first and last flags")
	}
}

func TestFragmentReassemblesExactly(t *testing.T) {
	t.Parallel()

	payload := make([]byte, 1050)
	for i := range payload {
		payload[i] = byte(i)
	}
	frame := media.EncodedFrame{FrameID: 9, Class: media.Predicted, Bitstream: payload}
	pkts, err := Fragment(frame, 3, 200)
	if err != nil {
		t.Fatal(err)
	}
	if len(pkts) != 6 {
		t.Fatalf("expected 6 packets, got %d", len(pkts))
	}
	for i, p := range pkts {
		if int(p.Trailer.PacketIndex) != i {
			t.Fatalf("packet %d: index %d", i, p.Trailer.PacketIndex)
		}
		if p.Trailer.PacketCount != uint16(len(pkts)) {
			t.Fatalf("packet %d: count %d want %d", i, p.Trailer.PacketCount, len(pkts))
		}
	}
	if pkts[0].Header.Flags&wire.FlagFirstOfFrame == 0 {
		t.Fatal("first packet missing first-of-frame flag")
	}
	if pkts[len(pkts)-1].Header.Flags&wire.FlagLastOfFrame == 0 {
		t.Fatal("last packet missing last-of-frame flag")
	}

	r := NewReassembler()
	now := time.Now()
	var got []byte
	var complete bool
	for _, p := range pkts {
		got, complete = r.AddPacket(*p.Trailer, p.Payload, now)
	}
	if !complete {
		t.Fatal("expected reassembly to complete after all packets added")
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("reassembled bytes do not match original bitstream")
	}
}

func TestReassemblerHandlesOutOfOrderArrival(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte{0x01, 0x02, 0x03, 0x04}, 100)
	frame := media.EncodedFrame{FrameID: 4, Bitstream: payload}
	pkts, err := Fragment(frame, 1, 150)
	if err != nil {
		t.Fatal(err)
	}

	r := NewReassembler()
	now := time.Now()
	for i := len(pkts) - 1; i >= 0; i-- {
		got, complete := r.AddPacket(*pkts[i].Trailer, pkts[i].Payload, now)
		if i == 0 {
			if !complete {
				t.Fatal("expected completion on final packet")
			}
			if !bytes.Equal(got, payload) {
				t.Fatal("out-of-order reassembly mismatch")
			}
		} else if complete {
			t.Fatalf("unexpected early completion at packet %d", i)
		}
	}
}

func TestExpireStaleDropsOldPartialFrames(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte{0x9}, 500)
	frame := media.EncodedFrame{FrameID: 2, Bitstream: payload}
	pkts, err := Fragment(frame, 1, 100)
	if err != nil {
		t.Fatal(err)
	}

	r := NewReassembler()
	base := time.Now()
	r.AddPacket(*pkts[0].Trailer, pkts[0].Payload, base)
	if r.Pending() != 1 {
		t.Fatal("expected one pending frame")
	}

	discarded := r.ExpireStale(base.Add(3*time.Second), 2*time.Second)
	if discarded != 1 {
		t.Fatalf("expected 1 discarded, got %d", discarded)
	}
	if r.Pending() != 0 {
		t.Fatal("expected no pending frames after expiry")
	}
}
