package session

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/flynn/noise"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/fenwick-media/streamrt/errkind"
	"github.com/fenwick-media/streamrt/internal/congestion"
)

// DefaultIdleTimeout is the default duration of inactivity after which
// a session is closed and its resources freed.
const DefaultIdleTimeout = 30 * time.Second

// Session is one peer's admitted transport state: its identity, its
// congestion/loss estimate, and the sequence bookkeeping that flags
// out-of-order arrivals (it does not reject replays).
type Session struct {
	ID uuid.UUID
	// NumericID is the 32-bit session_id carried on the wire; wire
	// packets are far too small to carry a full UUID, so the low 4
	// bytes of ID double as the wire identifier.
	NumericID  uint32
	RemoteAddr net.Addr

	Congestion *congestion.State

	// SendCipher/RecvCipher are the Noise_NN transport ciphers bound
	// at handshake completion. Packet encryption is out of scope for
	// the transport core; they are exposed so a caller that needs
	// confidentiality can wrap the Sender it hands to the pacer.
	SendCipher *noise.CipherState
	RecvCipher *noise.CipherState

	mu            sync.Mutex
	lastActivity  time.Time
	nextExpectSeq uint32
}

// Touch records activity, resetting the idle-timeout clock.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = now
}

// IdleSince reports how long it has been since the last recorded
// activity.
func (s *Session) IdleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}

// ObserveSequence records the sequence number of an accepted packet and
// reports whether it was in order (equal to the expected next value).
// Out-of-order arrivals are not rejected here, only flagged: reassembly
// and FEC handle gaps, the session layer just tracks the high-water
// mark for statistics.
func (s *Session) ObserveSequence(seq uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	inOrder := seq == s.nextExpectSeq
	if seq >= s.nextExpectSeq {
		s.nextExpectSeq = seq + 1
	}
	return inOrder
}

// Registry tracks admitted sessions by ID and deduplicates concurrent
// handshake attempts from the same remote address so a burst of
// retransmitted first packets from one peer produces one handshake, not
// several racing ones.
type Registry struct {
	log *slog.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session

	handshakeGroup singleflight.Group

	nowFn func() time.Time
}

// NewRegistry creates an empty session registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:      log.With("component", "session_registry"),
		sessions: make(map[uuid.UUID]*Session),
		nowFn:    time.Now,
	}
}

// Admit completes a Noise_NN handshake for remoteAddr and installs a
// new Session under a fresh session_id. Concurrent Admit calls for the
// same remoteAddrKey collapse into a single handshake; all callers
// observe the same resulting Session.
func (r *Registry) Admit(remoteAddrKey string, addr net.Addr, exchange func(*Handshake) error) (*Session, error) {
	v, err, _ := r.handshakeGroup.Do(remoteAddrKey, func() (interface{}, error) {
		hs, err := NewHandshake(false)
		if err != nil {
			return nil, errkind.New(errkind.Session, "session.Admit", err)
		}
		if err := exchange(hs); err != nil {
			return nil, errkind.New(errkind.Session, "session.Admit", fmt.Errorf("handshake failed: %w", err))
		}
		if !hs.IsComplete() {
			return nil, errkind.New(errkind.Session, "session.Admit", fmt.Errorf("handshake did not complete"))
		}
		send, recv, err := hs.CipherStates()
		if err != nil {
			return nil, errkind.New(errkind.Session, "session.Admit", err)
		}

		id := uuid.New()
		sess := &Session{
			ID:           id,
			NumericID:    binary.BigEndian.Uint32(id[:4]),
			RemoteAddr:   addr,
			Congestion:   congestion.NewState(),
			SendCipher:   send,
			RecvCipher:   recv,
			lastActivity: r.nowFn(),
		}

		r.mu.Lock()
		r.sessions[sess.ID] = sess
		r.mu.Unlock()

		r.log.Info("session admitted", "session_id", sess.ID, "remote_addr", addr)
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Lookup returns the session for id, if any.
func (r *Registry) Lookup(id uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Close removes a session from the registry, e.g. on explicit close or
// version mismatch.
func (r *Registry) Close(id uuid.UUID, reason string) {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		r.log.Info("session closed", "session_id", id, "reason", reason)
	}
}

// SweepIdle closes and returns every session that has been idle longer
// than timeout. Intended to run on a periodic ticker from a supervising
// worker.
func (r *Registry) SweepIdle(timeout time.Duration) []uuid.UUID {
	now := r.nowFn()

	r.mu.RLock()
	var stale []uuid.UUID
	for id, s := range r.sessions {
		if s.IdleSince(now) > timeout {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range stale {
		r.Close(id, "idle timeout")
	}
	return stale
}

// Len reports the number of admitted sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
