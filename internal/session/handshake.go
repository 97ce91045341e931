// Package session owns per-peer session state: the Noise_NN handshake
// that admits a session, the session registry keyed by session_id, and
// the idle-timeout sweep that frees resources for peers that have gone
// quiet.
package session

import (
	"crypto/rand"
	"fmt"

	"github.com/flynn/noise"
)

// Handshake drives one side of a Noise_NN exchange. NN has no static
// keys on either side: it authenticates nothing about peer identity,
// only that both ends hold the same freshly negotiated ephemeral
// secret, which is all a transport session needs before it starts
// admitting VIDEO/AUDIO packets under that key.
type Handshake struct {
	initiator bool
	state     *noise.HandshakeState
	complete  bool

	send *noise.CipherState
	recv *noise.CipherState
}

// NewHandshake creates one side of a Noise_NN handshake. initiator
// sends the first message; the responder waits for it.
func NewHandshake(initiator bool) (*Handshake, error) {
	cs := noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)
	cfg := noise.Config{
		CipherSuite: cs,
		Random:      rand.Reader,
		Pattern:     noise.HandshakeNN,
		Initiator:   initiator,
	}
	state, err := noise.NewHandshakeState(cfg)
	if err != nil {
		return nil, fmt.Errorf("session: new handshake state: %w", err)
	}
	return &Handshake{initiator: initiator, state: state}, nil
}

// WriteMessage produces the next outbound handshake message. NN
// completes after message two (-> e; <- e, ee), so the initiator's
// first write never carries cipher states and the responder's first
// write always does.
func (h *Handshake) WriteMessage(payload []byte) ([]byte, error) {
	if h.complete {
		return nil, fmt.Errorf("session: handshake already complete")
	}
	msg, send, recv, err := h.state.WriteMessage(nil, payload)
	if err != nil {
		return nil, fmt.Errorf("session: write handshake message: %w", err)
	}
	if send != nil && recv != nil {
		h.send, h.recv = send, recv
		h.complete = true
	}
	return msg, nil
}

// ReadMessage consumes a received handshake message.
func (h *Handshake) ReadMessage(msg []byte) ([]byte, error) {
	if h.complete {
		return nil, fmt.Errorf("session: handshake already complete")
	}
	payload, send, recv, err := h.state.ReadMessage(nil, msg)
	if err != nil {
		return nil, fmt.Errorf("session: read handshake message: %w", err)
	}
	if send != nil && recv != nil {
		h.send, h.recv = send, recv
		h.complete = true
	}
	return payload, nil
}

// IsComplete reports whether both cipher states are established.
func (h *Handshake) IsComplete() bool { return h.complete }

// CipherStates returns the send/receive ciphers once the handshake has
// completed. The initiator's send cipher is the responder's receive
// cipher and vice versa.
func (h *Handshake) CipherStates() (send, recv *noise.CipherState, err error) {
	if !h.complete {
		return nil, nil, fmt.Errorf("session: handshake not complete")
	}
	// The noise library returns the initiator-to-responder cipher first
	// on both sides, so the responder swaps the pair.
	if !h.initiator {
		return h.recv, h.send, nil
	}
	return h.send, h.recv, nil
}
