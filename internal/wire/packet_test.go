package wire

import "testing"

func TestEncodeDecodeControlHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	h := Header{
		SessionID:   42,
		Sequence:    7,
		CaptureTSUs: 123456789,
		PacketKind:  KindControl,
		FrameClass:  FrameKey,
		Flags:       0,
		PayloadLen:  16,
	}
	buf := EncodeHeader(h, nil)
	if len(buf) != HeaderSize {
		t.Fatalf("control header length: got %d want %d", len(buf), HeaderSize)
	}

	got, trailer, n, err := DecodeHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != HeaderSize {
		t.Fatalf("consumed %d want %d", n, HeaderSize)
	}
	if trailer != nil {
		t.Fatal("expected nil trailer for non-video kind")
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, h)
	}
}

func TestEncodeDecodeVideoHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	h := Header{
		SessionID:   1,
		Sequence:    99,
		CaptureTSUs: 42,
		PacketKind:  KindVideo,
		FrameClass:  FramePredicted,
		Flags:       FlagFirstOfFrame,
		PayloadLen:  1200,
	}
	trailer := &VideoTrailer{FrameID: 5, PacketIndex: 0, PacketCount: 3, FragmentOffset: 0}
	buf := EncodeHeader(h, trailer)
	if len(buf) != HeaderSize+VideoTrailerSize {
		t.Fatalf("video header length: got %d want %d", len(buf), HeaderSize+VideoTrailerSize)
	}

	got, gotTrailer, n, err := DecodeHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != HeaderSize+VideoTrailerSize {
		t.Fatalf("consumed %d", n)
	}
	if got != h {
		t.Fatalf("header mismatch: got %+v want %+v", got, h)
	}
	if *gotTrailer != *trailer {
		t.Fatalf("trailer mismatch: got %+v want %+v", *gotTrailer, *trailer)
	}
}

func TestDecodeHeaderRejectsBadMagic(t *testing.T) {
	t.Parallel()

	buf := EncodeHeader(Header{PacketKind: KindControl}, nil)
	buf[0] ^= 0xFF
	if _, _, _, err := DecodeHeader(buf); err != ErrBadMagic {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestDecodeHeaderRejectsCorruptedChecksum(t *testing.T) {
	t.Parallel()

	buf := EncodeHeader(Header{PacketKind: KindControl, PayloadLen: 5}, nil)
	buf[10] ^= 0xFF // corrupt sequence, inside checksum span
	if _, _, _, err := DecodeHeader(buf); err != ErrBadChecksum {
		t.Fatalf("expected ErrBadChecksum, got %v", err)
	}
}

func TestDecodeHeaderRejectsTruncatedBuffer(t *testing.T) {
	t.Parallel()

	buf := EncodeHeader(Header{PacketKind: KindVideo}, &VideoTrailer{})
	if _, _, _, err := DecodeHeader(buf[:HeaderSize]); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated for missing video trailer, got %v", err)
	}
	if _, _, _, err := DecodeHeader(buf[:10]); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated for short buffer, got %v", err)
	}
}

func TestChecksumChangesWithHeaderContent(t *testing.T) {
	t.Parallel()

	a := EncodeHeader(Header{SessionID: 1, PacketKind: KindAudio}, nil)
	b := EncodeHeader(Header{SessionID: 2, PacketKind: KindAudio}, nil)
	csA := a[27:29]
	csB := b[27:29]
	if string(csA) == string(csB) {
		t.Fatal("expected different checksums for different session IDs")
	}
}

func TestHeaderLenByKind(t *testing.T) {
	t.Parallel()

	if HeaderLen(KindVideo) != HeaderSize+VideoTrailerSize {
		t.Fatal("video header length wrong")
	}
	if HeaderLen(KindControl) != HeaderSize {
		t.Fatal("control header length wrong")
	}
}
