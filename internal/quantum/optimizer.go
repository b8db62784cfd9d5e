// Package quantum provides the "quantum-inspired" profit optimizer used by
// hydras in forced mode. Two interchangeable backends exist: a plain random
// range draw, and a sampler that measures a register of independently rotated
// bits and derives profit from the most frequent outcome. Both are synthetic.
package quantum

import (
	"log/slog"
	"math"
	"strings"

	"github.com/talgya/seraphin/internal/entropy"
)

const (
	// DefaultShots is the number of measurements per optimization.
	DefaultShots = 1024
	// MaxBits caps the register width so the derived profit fits an int.
	MaxBits = 32
)

// Backend names accepted by New.
const (
	BackendFallback = "fallback"
	BackendSampler  = "sampler"
)

// Optimizer returns a non-negative synthetic profit for a given complexity.
type Optimizer interface {
	Optimize(complexity int) int
	Name() string
}

// New builds the optimizer named by backend. Unknown names degrade to the
// fallback.
func New(backend string, src entropy.Source, shots int) Optimizer {
	switch strings.ToLower(backend) {
	case BackendSampler:
		return NewSampler(src, shots)
	case "", BackendFallback:
		return NewFallback(src)
	default:
		slog.Debug("unknown optimizer backend, using fallback", "backend", backend)
		return NewFallback(src)
	}
}

// Fallback draws profit from a fixed range and ignores complexity.
type Fallback struct {
	src entropy.Source
}

// NewFallback returns the range-draw optimizer.
func NewFallback(src entropy.Source) *Fallback {
	return &Fallback{src: src}
}

// Optimize returns a value in [5000, 15000].
func (f *Fallback) Optimize(int) int {
	return entropy.IntRange(f.src, 5000, 15000)
}

// Name implements Optimizer.
func (f *Fallback) Name() string { return BackendFallback }

// Sampler rotates each bit by a random angle, measures the register Shots
// times and keeps the most frequent outcome.
type Sampler struct {
	src   entropy.Source
	Shots int
}

// NewSampler returns a sampling optimizer. shots <= 0 selects DefaultShots.
func NewSampler(src entropy.Source, shots int) *Sampler {
	if shots <= 0 {
		shots = DefaultShots
	}
	return &Sampler{src: src, Shots: shots}
}

// Name implements Optimizer.
func (s *Sampler) Name() string { return BackendSampler }

// Optimize returns mode*200 + [1000, 5000], where mode is the most frequently
// measured bit-string read as an unsigned integer (bit i = qubit i).
func (s *Sampler) Optimize(complexity int) int {
	mode := s.Measure(complexity)
	return int(mode)*200 + entropy.IntRange(s.src, 1000, 5000)
}

// Measure samples the register and returns its most frequent outcome. Ties go
// to the outcome that reached the winning count first.
func (s *Sampler) Measure(complexity int) uint64 {
	bits := clampBits(complexity)

	// An RY(theta) rotation from |0> measures 1 with probability sin^2(theta/2).
	probs := make([]float64, bits)
	for i := range probs {
		theta := entropy.Uniform(s.src, 0.3, 1.0) * math.Pi
		sin := math.Sin(theta / 2)
		probs[i] = sin * sin
	}

	counts := make(map[uint64]int)
	var best uint64
	bestCount := 0
	for shot := 0; shot < s.Shots; shot++ {
		var outcome uint64
		for i, p := range probs {
			if s.src.Float64() < p {
				outcome |= 1 << uint(i)
			}
		}
		counts[outcome]++
		if counts[outcome] > bestCount {
			best, bestCount = outcome, counts[outcome]
		}
	}
	return best
}

func clampBits(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxBits {
		return MaxBits
	}
	return n
}
