// Package entropy provides the random sources that drive every stochastic
// decision in a hydra run. A seeded PCG source makes runs reproducible;
// crypto/rand is the fallback when no seed is configured.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand/v2"
)

// Source yields uniform random numbers.
type Source interface {
	// Float64 returns a value in [0, 1).
	Float64() float64
	// IntN returns a value in [0, n). It panics if n <= 0.
	IntN(n int) int
}

type seeded struct {
	rng *mrand.Rand
}

// NewSeeded returns a deterministic source. Two sources built from the same
// seed produce the same sequence.
func NewSeeded(seed uint64) Source {
	return &seeded{rng: mrand.New(mrand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *seeded) Float64() float64 { return s.rng.Float64() }

func (s *seeded) IntN(n int) int { return s.rng.IntN(n) }

type cryptoSource struct{}

// Crypto returns a source backed by crypto/rand.
func Crypto() Source { return cryptoSource{} }

func (cryptoSource) Float64() float64 { return cryptoRandFloat() }

func (cryptoSource) IntN(n int) int {
	if n <= 0 {
		panic("entropy: invalid argument to IntN")
	}
	v := int(cryptoRandFloat() * float64(n))
	if v >= n {
		v = n - 1
	}
	return v
}

// New returns a seeded source, or the crypto source when seed is zero.
func New(seed int64) Source {
	if seed == 0 {
		return Crypto()
	}
	return NewSeeded(uint64(seed))
}

// cryptoRandFloat generates a random float64 using crypto/rand.
func cryptoRandFloat() float64 {
	var buf [8]byte
	_, err := rand.Read(buf[:])
	if err != nil {
		// This should never happen but return 0.5 as a safe default.
		return 0.5
	}
	// Use only 53 bits for a uniform float64 in [0, 1).
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}

// Uniform returns a float in [lo, hi).
func Uniform(src Source, lo, hi float64) float64 {
	return lo + (hi-lo)*src.Float64()
}

// IntRange returns an int in [lo, hi], both ends inclusive.
func IntRange(src Source, lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + src.IntN(hi-lo+1)
}

// Chance reports whether an event with probability p happens.
func Chance(src Source, p float64) bool {
	return src.Float64() < p
}

// Sample returns k distinct elements of pool in random order. When k exceeds
// the pool size the whole pool is returned shuffled. The pool is not modified.
func Sample[T any](src Source, pool []T, k int) []T {
	if k > len(pool) {
		k = len(pool)
	}
	if k <= 0 {
		return nil
	}
	buf := make([]T, len(pool))
	copy(buf, pool)
	// Partial Fisher-Yates: the first k slots end up holding the sample.
	for i := 0; i < k; i++ {
		j := i + src.IntN(len(buf)-i)
		buf[i], buf[j] = buf[j], buf[i]
	}
	return buf[:k]
}

// Pick returns one element of pool chosen uniformly. It panics on an empty pool.
func Pick[T any](src Source, pool []T) T {
	return pool[src.IntN(len(pool))]
}
