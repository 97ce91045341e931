// Package streamrt is a low-latency live media transport core: an
// adaptive video codec inner loop, a UDP wire format with forward error
// correction and retransmission, and a BBR-style congestion controller,
// wired together behind a small library API.
//
// Engine owns everything: the encoder worker and its reference plane
// (which also fragments and FEC-protects each frame), the pacer that
// puts packets onto the wire, the receiver, and the feedback worker
// that retargets bitrate and reports statistics. Callers only ever see Submit, Shutdown, and the three
// status/error/statistics callbacks.
package streamrt

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/fenwick-media/streamrt/errkind"
	"github.com/fenwick-media/streamrt/internal/congestion"
	"github.com/fenwick-media/streamrt/internal/fec"
	"github.com/fenwick-media/streamrt/internal/governor"
	"github.com/fenwick-media/streamrt/internal/packetizer"
	"github.com/fenwick-media/streamrt/internal/sendqueue"
	"github.com/fenwick-media/streamrt/internal/session"
	"github.com/fenwick-media/streamrt/internal/stats"
	"github.com/fenwick-media/streamrt/internal/wire"
	"github.com/fenwick-media/streamrt/media"
)

// Engine is a running transport-core instance. Construct with New,
// feed it frames with Submit, and release its resources with Shutdown.
type Engine struct {
	log *slog.Logger
	cfg validated

	conn     *net.UDPConn
	sess     *session.Session
	registry *session.Registry

	governor    *governor.Governor
	reassembler *packetizer.Reassembler
	queue       *sendqueue.Queue
	pacer       *sendqueue.Pacer
	stats       *stats.Collector

	pacingIntervalNs *atomic.Int64

	rawFrames chan media.RawFrame

	onStatus     func(string)
	onError      func(error)
	onStatistics func(stats.Statistics)

	cancel     context.CancelFunc
	group      *errgroup.Group
	idleClosed atomic.Bool
}

// udpSender adapts *net.UDPConn to sendqueue.Sender.
type udpSender struct {
	conn *net.UDPConn
	dst  *net.UDPAddr
}

func (s udpSender) Send(buf []byte) error {
	_, err := s.conn.WriteToUDP(buf, s.dst)
	return err
}

// New validates cfg, admits a session through an in-process Noise_NN
// handshake (no handshake message is sent to the remote endpoint), and
// starts the encoder, pacer, receiver, and feedback workers. A Config that fails validation returns a Fatal
// errkind.Error and starts nothing.
func New(cfg Config, log *slog.Logger) (*Engine, error) {
	v, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "engine")

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		return nil, errkind.New(errkind.Fatal, "streamrt.New", fmt.Errorf("bind local socket: %w", err))
	}

	remoteAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", v.remoteHost, v.remotePort))
	if err != nil {
		conn.Close()
		return nil, errkind.New(errkind.Fatal, "streamrt.New", fmt.Errorf("resolve remote_host/remote_port: %w", err))
	}

	registry := session.NewRegistry(log)
	sess, err := registry.Admit(remoteAddr.String(), remoteAddr, completeHandshake)
	if err != nil {
		conn.Close()
		return nil, err
	}

	gov := governor.New(governor.Config{
		MaxEncodingTime:   time.Duration(v.maxEncodingTimeMs) * time.Millisecond,
		TargetFrameSize:   time.Duration(v.targetFrameDurationMs) * time.Millisecond,
		GOPSize:           v.gopSize,
		Variant:           v.variant,
		InitialComplexity: v.complexity,
	}, log)

	queue := sendqueue.New(v.mtu * 256)
	pacingNs := &atomic.Int64{}
	pacingNs.Store(int64(time.Millisecond))
	sender := udpSender{conn: conn, dst: remoteAddr}
	pacer := sendqueue.NewPacer(queue, sender, pacingNs, log)

	e := &Engine{
		log:              log,
		cfg:              v,
		conn:             conn,
		sess:             sess,
		registry:         registry,
		governor:         gov,
		reassembler:      packetizer.NewReassembler(),
		queue:            queue,
		pacer:            pacer,
		stats:            stats.NewCollector(),
		rawFrames:        make(chan media.RawFrame, 8),
		onStatus:         cfg.OnStatus,
		onError:          cfg.OnError,
		onStatistics:     cfg.OnStatistics,
		pacingIntervalNs: pacingNs,
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	g, ctx := errgroup.WithContext(ctx)
	e.group = g

	g.Go(func() error { return e.runEncoder(ctx) })
	g.Go(func() error { return e.pacer.Run(ctx) })
	g.Go(func() error { return e.runReceiver(ctx) })
	g.Go(func() error { return e.runFeedback(ctx) })

	e.status("engine started")
	return e, nil
}

// completeHandshake drives a full Noise_NN exchange in-process: an
// initiator side is constructed alongside the responder side handed in
// by the registry, and the two messages the pattern requires (-> e;
// <- e, ee) cross directly rather than over a socket. This binds the
// session's symmetric key before any UDP datagram is ever sent, without
// requiring a signaling channel the transport core does not otherwise
// need; a deployment with an independent control-plane connection would
// carry these same two messages over it instead.
func completeHandshake(responder *session.Handshake) error {
	initiator, err := session.NewHandshake(true)
	if err != nil {
		return err
	}

	msg1, err := initiator.WriteMessage(nil)
	if err != nil {
		return fmt.Errorf("write message 1: %w", err)
	}
	if _, err := responder.ReadMessage(msg1); err != nil {
		return fmt.Errorf("read message 1: %w", err)
	}
	msg2, err := responder.WriteMessage(nil)
	if err != nil {
		return fmt.Errorf("write message 2: %w", err)
	}
	if _, err := initiator.ReadMessage(msg2); err != nil {
		return fmt.Errorf("read message 2: %w", err)
	}
	if !initiator.IsComplete() {
		return fmt.Errorf("initiator did not complete handshake")
	}
	return nil
}

func (e *Engine) status(msg string) {
	e.log.Info(msg)
	if e.onStatus != nil {
		e.onStatus(msg)
	}
}

func (e *Engine) fail(err error) {
	e.log.Error("engine error", "error", err, "kind", errkind.KindOf(err))
	if e.onError != nil {
		e.onError(err)
	}
}

// Submit hands raw frame to the encoder worker. It never blocks
// indefinitely: if the input channel is full the frame is dropped and
// counted, matching the frame-drop policy under sustained overload.
func (e *Engine) Submit(frame media.RawFrame) error {
	select {
	case e.rawFrames <- frame:
		return nil
	default:
		e.stats.RecordDropped()
		return errkind.New(errkind.Codec, "Engine.Submit", fmt.Errorf("encoder input full, frame %d dropped", frame.FrameID))
	}
}

// Shutdown cancels every worker, waits for them to exit, and releases
// the socket. The first worker error reported by the errgroup is
// combined with any socket-close error.
func (e *Engine) Shutdown() error {
	e.cancel()
	err := e.group.Wait()
	closeErr := e.conn.Close()
	e.status("engine stopped")
	return multierr.Combine(err, closeErr)
}

// runEncoder drives the codec inner loop through the governor, then
// fragments and (optionally) FEC-protects each emitted frame before
// handing packets to the send queue.
func (e *Engine) runEncoder(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-e.rawFrames:
			if !ok {
				return nil
			}
			e.encodeOne(raw)
		}
	}
}

func (e *Engine) encodeOne(raw media.RawFrame) {
	result, err := e.governor.Encode(raw)
	if err != nil {
		e.fail(err)
		return
	}
	if result.Outcome == governor.Dropped {
		e.stats.RecordDropped()
		return
	}
	e.stats.RecordEmitted()

	packets, err := packetizer.Fragment(result.Frame, e.sess.NumericID, e.cfg.maxPayload)
	if err != nil {
		e.fail(err)
		return
	}
	if len(packets) == 0 {
		return
	}

	e.enqueuePackets(packets)

	if e.cfg.enableFEC && len(packets) > 1 {
		e.protectWithFEC(packets)
	}
}

func (e *Engine) enqueuePackets(packets []packetizer.Packet) {
	for _, p := range packets {
		e.queue.Push(&sendqueue.Entry{
			Header:   p.Header,
			Trailer:  p.Trailer,
			Payload:  p.Payload,
			Priority: sendqueue.PriorityFor(p.Header),
		})
	}
}

// protectWithFEC groups this frame's packets into one FEC group and
// enqueues the resulting recovery packets as KindFEC entries, sized
// against the session's current loss-rate estimate.
func (e *Engine) protectWithFEC(packets []packetizer.Packet) {
	lossRate := e.sess.Congestion.LossRate()
	m := fec.ComputeM(len(packets), lossRate)
	if m == 0 {
		return
	}

	sources := make([][]byte, len(packets))
	for i, p := range packets {
		sources[i] = p.Payload
	}
	group, err := fec.BuildGroup(sources, m)
	if err != nil {
		e.fail(errkind.New(errkind.Codec, "Engine.protectWithFEC", err))
		return
	}

	base := packets[0]
	for _, rec := range group.Recovery {
		e.queue.Push(&sendqueue.Entry{
			Header: wire.Header{
				SessionID:   base.Header.SessionID,
				CaptureTSUs: base.Header.CaptureTSUs,
				PacketKind:  wire.KindFEC,
				FrameClass:  base.Header.FrameClass,
				PayloadLen:  uint16(len(rec)),
			},
			Payload:  rec,
			Priority: sendqueue.PriorityFEC,
		})
	}
}

// runReceiver reads inbound datagrams (retransmit-worthy ACK/control
// traffic and, in the loopback reference program, the engine's own
// VIDEO packets) and folds them into the session's congestion estimate
// and the reassembler.
func (e *Engine) runReceiver(ctx context.Context) error {
	buf := make([]byte, 2048)
	for {
		if ctx.Err() != nil {
			return nil
		}
		e.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, _, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			continue
		}
		e.handleInbound(buf[:n])
	}
}

func (e *Engine) handleInbound(buf []byte) {
	h, trailer, consumed, err := wire.DecodeHeader(buf)
	if err != nil {
		e.fail(errkind.New(errkind.Reassembly, "Engine.handleInbound", err))
		return
	}
	now := time.Now()
	e.sess.Touch(now)
	e.sess.ObserveSequence(h.Sequence)

	sampleRTT := time.Duration(time.Now().UnixMicro()-int64(h.CaptureTSUs)) * time.Microsecond
	if sampleRTT > 0 && sampleRTT < time.Second {
		e.sess.Congestion.OnRTTSample(sampleRTT, int64(h.PayloadLen))
	}
	e.sess.Congestion.OnACK()

	if h.PacketKind != wire.KindVideo || trailer == nil {
		return
	}
	payload := buf[consumed:]
	if frame, complete := e.reassembler.AddPacket(*trailer, payload, now); complete {
		e.log.Debug("frame reassembled", "frame_id", trailer.FrameID, "bytes", len(frame))
	}
}

// runFeedback recomputes the pacing interval from the congestion
// controller, sweeps idle sessions, expires stale partial frames, and
// publishes a statistics snapshot, all on the controller's 100ms
// control interval.
func (e *Engine) runFeedback(ctx context.Context) error {
	ticker := time.NewTicker(congestion.ControlInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.tick()
		}
	}
}

func (e *Engine) tick() {
	cs := e.sess.Congestion
	target := cs.TargetBitrate(e.cfg.minBitrate, e.cfg.maxBitrate)
	interval := congestion.PacingInterval(e.cfg.mtu, target)
	e.pacingIntervalNs.Store(int64(interval))

	e.reassembler.ExpireStale(time.Now(), 2*cs.SRTT)

	snap := e.stats.Snapshot(
		e.governor.QP(),
		e.governor.Complexity(),
		cs.CwndPackets,
		target,
		[]stats.SessionStat{{SessionID: e.sess.ID, RTT: cs.SRTT, LossRate: cs.LossRate()}},
	)
	if e.onStatistics != nil {
		e.onStatistics(snap)
	}

	if e.sess.IdleSince(time.Now()) > session.DefaultIdleTimeout && e.idleClosed.CompareAndSwap(false, true) {
		e.registry.Close(e.sess.ID, "idle timeout")
		e.status("session closed (idle)")
		e.cancel()
	}
}

// SessionID exposes the admitted session's identifier, mostly useful
// for the reference CLI's logging.
func (e *Engine) SessionID() string {
	return e.sess.ID.String()
}
