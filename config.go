package streamrt

import (
	"fmt"

	"github.com/fenwick-media/streamrt/errkind"
	"github.com/fenwick-media/streamrt/internal/codec"
	"github.com/fenwick-media/streamrt/internal/stats"
	"github.com/fenwick-media/streamrt/internal/wire"
)

// minMTU is the smallest MTU that can carry a single-fragment VIDEO
// packet header plus at least one byte of payload.
const minMTU = wire.HeaderSize + wire.VideoTrailerSize + 1

// Config holds every knob the engine needs at construction. It is
// validated once, in New; a Config that fails validation never starts
// a session.
type Config struct {
	RemoteHost string
	RemotePort int

	// MTU bounds the outbound datagram size, header included. Defaults
	// to 1400 when zero.
	MTU int

	InitialBitrate float64
	MinBitrate     float64
	MaxBitrate     float64

	// MaxLatencyMs is validated and defaulted with the rest of Config;
	// the engine runs no retransmit loop, so the value does not affect
	// what is sent.
	MaxLatencyMs int

	EnableFEC             bool
	EnableRetransmission  bool
	CodecVariant          string
	GOPSize               int
	Complexity            int
	HardwareAcceleration  string
	MaxEncodingTimeMs     int
	TargetFrameDurationMs int

	OnStatus     func(string)
	OnError      func(error)
	OnStatistics func(stats.Statistics)
}

// validated is the parsed, defaulted form of Config used internally.
type validated struct {
	remoteHost string
	remotePort int
	mtu        int
	maxPayload int

	initialBitrate, minBitrate, maxBitrate float64
	maxLatencyMs                           int

	enableFEC, enableRetransmission bool
	variant                         codec.Variant
	gopSize, complexity             int

	maxEncodingTimeMs, targetFrameDurationMs int
}

// validate checks Config for the fatal misconfigurations named in the
// error handling design: min_bitrate > max_bitrate, an unsupported
// codec variant, and an MTU too small to carry a header.
func (c Config) validate() (validated, error) {
	v := validated{
		remoteHost:            c.RemoteHost,
		remotePort:            c.RemotePort,
		mtu:                   c.MTU,
		initialBitrate:        c.InitialBitrate,
		minBitrate:            c.MinBitrate,
		maxBitrate:            c.MaxBitrate,
		maxLatencyMs:          c.MaxLatencyMs,
		enableFEC:             c.EnableFEC,
		enableRetransmission:  c.EnableRetransmission,
		gopSize:               c.GOPSize,
		complexity:            c.Complexity,
		maxEncodingTimeMs:     c.MaxEncodingTimeMs,
		targetFrameDurationMs: c.TargetFrameDurationMs,
	}

	if v.mtu == 0 {
		v.mtu = 1400
	}
	if v.mtu < minMTU {
		return validated{}, errkind.New(errkind.Fatal, "Config.validate", fmt.Errorf("mtu %d below minimum header size %d", v.mtu, minMTU))
	}
	v.maxPayload = v.mtu - wire.HeaderSize - wire.VideoTrailerSize

	if v.minBitrate > 0 && v.maxBitrate > 0 && v.minBitrate > v.maxBitrate {
		return validated{}, errkind.New(errkind.Fatal, "Config.validate", fmt.Errorf("min_bitrate %f exceeds max_bitrate %f", v.minBitrate, v.maxBitrate))
	}
	if v.maxBitrate == 0 {
		v.maxBitrate = 20_000_000
	}
	if v.initialBitrate == 0 {
		v.initialBitrate = v.minBitrate
		if v.initialBitrate == 0 {
			v.initialBitrate = 1_000_000
		}
	}

	variant, ok := codec.ParseVariant(c.CodecVariant)
	if !ok && c.CodecVariant != "" {
		return validated{}, errkind.New(errkind.Fatal, "Config.validate", fmt.Errorf("unsupported codec variant %q", c.CodecVariant))
	}
	v.variant = variant

	if v.gopSize <= 0 {
		v.gopSize = 30
	}
	if v.maxLatencyMs <= 0 {
		v.maxLatencyMs = 200
	}
	if v.maxEncodingTimeMs <= 0 {
		v.maxEncodingTimeMs = 8
	}
	if v.targetFrameDurationMs <= 0 {
		v.targetFrameDurationMs = 33
	}
	if v.remotePort <= 0 || v.remotePort > 65535 {
		return validated{}, errkind.New(errkind.Fatal, "Config.validate", fmt.Errorf("invalid remote_port %d", c.RemotePort))
	}
	if v.remoteHost == "" {
		return validated{}, errkind.New(errkind.Fatal, "Config.validate", fmt.Errorf("remote_host is required"))
	}

	return v, nil
}
