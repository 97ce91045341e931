// Package fec implements the forward error correction layer: XOR parity
// for a single recovery packet and GF(256) Reed-Solomon parity for
// M >= 2, grouped over K consecutive source packets that never cross a
// KEY-frame boundary.
package fec

import (
	"math"

	"github.com/google/uuid"
)

// Algorithm selects the parity scheme for a Group.
type Algorithm uint8

const (
	AlgorithmXOR Algorithm = iota
	AlgorithmReedSolomon
)

// Group is an ordered set of K source packet payloads and the M
// recovery payloads produced from them.
type Group struct {
	ID        uuid.UUID
	K, M      int
	Algorithm Algorithm
	Sources   [][]byte
	Recovery  [][]byte
}

// ComputeM returns the recovery-packet count for a K-packet group given
// the current loss rate estimate, per M = ceil(K * clamp(loss*1.2, 0, 0.4)).
func ComputeM(k int, lossRate float64) int {
	ratio := lossRate * 1.2
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 0.4 {
		ratio = 0.4
	}
	return int(math.Ceil(float64(k) * ratio))
}

// AlgorithmFor picks XOR for m<=1, Reed-Solomon otherwise.
func AlgorithmFor(m int) Algorithm {
	if m <= 1 {
		return AlgorithmXOR
	}
	return AlgorithmReedSolomon
}

// padToMax right-pads every payload with zeros to the length of the
// longest, returning the common length.
func padToMax(payloads [][]byte) ([][]byte, int) {
	max := 0
	for _, p := range payloads {
		if len(p) > max {
			max = len(p)
		}
	}
	out := make([][]byte, len(payloads))
	for i, p := range payloads {
		if len(p) == max {
			out[i] = p
			continue
		}
		padded := make([]byte, max)
		copy(padded, p)
		out[i] = padded
	}
	return out, max
}

// BuildGroup produces recovery payloads for sources using the algorithm
// selected by m, padding all source payloads to the group's maximum
// length first (the wire packet's payload_length still carries each
// packet's true length; padding is FEC-internal).
func BuildGroup(sources [][]byte, m int) (*Group, error) {
	padded, _ := padToMax(sources)
	g := &Group{
		ID:        uuid.New(),
		K:         len(sources),
		M:         m,
		Algorithm: AlgorithmFor(m),
		Sources:   padded,
	}
	if m == 0 {
		return g, nil
	}

	switch g.Algorithm {
	case AlgorithmXOR:
		recovery := make([]byte, len(padded[0]))
		for _, s := range padded {
			for i, v := range s {
				recovery[i] ^= v
			}
		}
		g.Recovery = [][]byte{recovery}
	case AlgorithmReedSolomon:
		rec, err := EncodeRS(padded, m)
		if err != nil {
			return nil, err
		}
		g.Recovery = rec
	}
	return g, nil
}

// Recover attempts to reconstruct missing source payloads given which
// source and recovery slots actually arrived. sourceOK and recoveryOK
// index Group.Sources/Recovery respectively; recovered source payloads
// are returned in order, with arrived ones passed through unchanged.
func (g *Group) Recover(sourcePresent [][]byte, sourceOK []bool, recoveryPresent [][]byte, recoveryOK []bool) ([][]byte, bool) {
	haveCount := 0
	for _, ok := range sourceOK {
		if ok {
			haveCount++
		}
	}
	for _, ok := range recoveryOK {
		if ok {
			haveCount++
		}
	}
	if haveCount < g.K {
		return nil, false
	}

	missing := 0
	for _, ok := range sourceOK {
		if !ok {
			missing++
		}
	}
	if missing == 0 {
		return sourcePresent, true
	}

	switch g.Algorithm {
	case AlgorithmXOR:
		if missing > 1 {
			return nil, false
		}
		if len(recoveryPresent) == 0 || !recoveryOK[0] {
			return nil, false
		}
		recovered := append([]byte(nil), recoveryPresent[0]...)
		for i, ok := range sourceOK {
			if ok {
				for b, v := range sourcePresent[i] {
					if b < len(recovered) {
						recovered[b] ^= v
					}
				}
			}
		}
		out := make([][]byte, g.K)
		copy(out, sourcePresent)
		for i, ok := range sourceOK {
			if !ok {
				out[i] = recovered
			}
		}
		return out, true
	case AlgorithmReedSolomon:
		total := g.K + g.M
		available := make([][]byte, total)
		ok := make([]bool, total)
		copy(available[:g.K], sourcePresent)
		copy(ok[:g.K], sourceOK)
		copy(available[g.K:], recoveryPresent)
		copy(ok[g.K:], recoveryOK)

		recovered, err := DecodeRS(available, ok, g.K, g.M)
		if err != nil {
			return nil, false
		}
		return recovered, true
	default:
		return nil, false
	}
}
