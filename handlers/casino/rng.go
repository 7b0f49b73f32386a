package casino

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/blockberries/nullspace/types"
)

// SessionSeed derives the initial seed of a session. It depends only
// on consensus data, so every node draws the same outcomes.
func SessionSeed(player types.PublicKey, sessionID, height uint64) types.Hash {
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], sessionID)
	binary.BigEndian.PutUint64(b[8:], height)
	return types.Hash(crypto.Keccak256Hash(player[:], b[:]))
}

// Rand is a deterministic stream keyed by a seed. Every draw hashes
// the seed with a counter.
type Rand struct {
	seed    types.Hash
	counter uint64
}

func NewRand(seed types.Hash) *Rand {
	return &Rand{seed: seed}
}

// Uint64 returns the next 64 bits of the stream.
func (r *Rand) Uint64() uint64 {
	var c [8]byte
	binary.BigEndian.PutUint64(c[:], r.counter)
	r.counter++
	h := crypto.Keccak256(r.seed[:], c[:])
	return binary.BigEndian.Uint64(h[:8])
}

// Intn returns a uniform value in [0, n) using rejection sampling.
// n must be positive.
func (r *Rand) Intn(n uint64) uint64 {
	if n == 0 {
		panic("casino: Intn with n == 0")
	}
	limit := ^uint64(0) - (^uint64(0) % n)
	for {
		v := r.Uint64()
		if v < limit {
			return v % n
		}
	}
}

// Next derives the seed for the following move.
func (r *Rand) Next() types.Hash {
	var c [8]byte
	binary.BigEndian.PutUint64(c[:], r.counter)
	return types.Hash(crypto.Keccak256Hash([]byte("next"), r.seed[:], c[:]))
}
