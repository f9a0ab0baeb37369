// Package sim holds the deterministic primitives behind the synthetic fleet:
// seeded sub-draws that do not depend on iteration order, and the simulation
// window arithmetic shared by every generator.
package sim

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"math/rand"
)

func subHash(seed int64, parts ...string) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(seed))
	_, _ = h.Write(buf[:])
	for _, part := range parts {
		_, _ = h.Write([]byte(part))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// SubSeed derives a child seed from the master seed and a draw identity
// (asset id, time key, salt). Generators seed a fresh rand per draw identity,
// so results are identical regardless of asset ordering or worker count.
func SubSeed(seed int64, parts ...string) int64 {
	return int64(subHash(seed, parts...))
}

// NewRand returns a rand seeded by SubSeed(seed, parts...).
func NewRand(seed int64, parts ...string) *rand.Rand {
	return rand.New(rand.NewSource(SubSeed(seed, parts...)))
}

// HashMod maps the draw identity onto [0, mod). Stable per identity; used for
// per-asset constants like maintenance offsets.
func HashMod(seed int64, mod int, parts ...string) int {
	if mod <= 0 {
		return 0
	}
	return int(subHash(seed, parts...) % uint64(mod))
}

// HashRange maps the draw identity onto [lo, hi).
func HashRange(seed int64, lo, hi int, parts ...string) int {
	if hi <= lo {
		return lo
	}
	return lo + HashMod(seed, hi-lo, parts...)
}

// Uniform draws from [lo, hi).
func Uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// Round2 rounds to 2 decimals, the precision every persisted reading and cost
// carries.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
