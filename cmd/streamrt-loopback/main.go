// Command streamrt-loopback exercises the transport core end to end on
// a single machine: it starts one Engine, points it at its own local
// address, and feeds it a synthetic stream of raw frames at a fixed
// rate so the encoder, packetizer, FEC, pacer, and receiver all run
// against real UDP sockets.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fenwick-media/streamrt"
	"github.com/fenwick-media/streamrt/internal/stats"
	"github.com/fenwick-media/streamrt/media"
)

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	remoteHost := envOr("STREAMRT_REMOTE_HOST", "127.0.0.1")
	remotePort := envOrInt("STREAMRT_REMOTE_PORT", 9500)
	width := envOrInt("STREAMRT_WIDTH", 320)
	height := envOrInt("STREAMRT_HEIGHT", 180)
	fps := envOrInt("STREAMRT_FPS", 30)

	cfg := streamrt.Config{
		RemoteHost:            remoteHost,
		RemotePort:            remotePort,
		MinBitrate:            500_000,
		MaxBitrate:            8_000_000,
		InitialBitrate:        2_000_000,
		EnableFEC:             true,
		EnableRetransmission:  true,
		CodecVariant:          "narrow",
		GOPSize:               30,
		Complexity:            5,
		MaxEncodingTimeMs:     8,
		TargetFrameDurationMs: 1000 / fps,
		OnStatus: func(msg string) {
			slog.Info("status", "msg", msg)
		},
		OnError: func(err error) {
			slog.Warn("engine error", "error", err)
		},
		OnStatistics: func(s stats.Statistics) {
			slog.Info("statistics",
				"fps", s.EncoderFPS,
				"drop_rate", s.DropRate,
				"qp", s.CurrentQP,
				"cwnd", s.CwndPackets,
				"target_bitrate", s.TargetBitrate,
			)
		},
	}

	engine, err := streamrt.New(cfg, slog.Default())
	if err != nil {
		slog.Error("failed to start engine", "error", err)
		os.Exit(1)
	}
	slog.Info("engine started", "session_id", engine.SessionID(), "remote", remoteHost, "port", remotePort)

	frameInterval := time.Second / time.Duration(fps)
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	var frameID uint32
	stride := width
	luma := make([]byte, stride*height)
	chroma := make([]byte, stride*height/4)

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping loopback")
			if err := engine.Shutdown(); err != nil {
				slog.Error("shutdown error", "error", err)
				os.Exit(1)
			}
			return
		case <-ticker.C:
			frame := media.RawFrame{
				Width:     width,
				Height:    height,
				Stride:    stride,
				Y:         luma,
				U:         chroma,
				V:         chroma,
				CaptureTS: time.Now().UnixMicro(),
				FrameID:   frameID,
			}
			frameID++
			if err := engine.Submit(frame); err != nil {
				slog.Debug("frame dropped", "error", err)
			}
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
