package randutil

import (
	crand "crypto/rand"
	"encoding/binary"
	rand "math/rand/v2"
)

const (
	goldenRatio64 = 0x9e3779b97f4a7c15
)

// New returns a *rand.Rand seeded deterministically from the provided int64.
// The helper centralises how we derive the two 64-bit seeds required by rand/v2
// so that all call sites get reproducible sequences.
func New(seed int64) *rand.Rand {
	u := uint64(seed)
	return rand.New(rand.NewPCG(mix(u), mix(u+goldenRatio64)))
}

// Secret returns 32 bytes derived from seed, or from the system CSPRNG when
// seed is zero. Seeded secrets exist for reproducible local play only.
func Secret(seed int64) [32]byte {
	var out [32]byte
	if seed == 0 {
		crand.Read(out[:])
		return out
	}
	r := New(seed)
	for i := 0; i < len(out); i += 8 {
		binary.BigEndian.PutUint64(out[i:], r.Uint64())
	}
	return out
}

// Seed32 expands a 64-bit value into a 32-byte seed for callers that only
// have a counter to offer, such as the keeper spinning round n.
func Seed32(n uint64) [32]byte {
	var out [32]byte
	x := n
	for i := 0; i < len(out); i += 8 {
		x += goldenRatio64
		binary.BigEndian.PutUint64(out[i:], mix(x))
	}
	return out
}

func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
