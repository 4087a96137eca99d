package selection

import (
	"math"
	"time"

	"github.com/initializ/cip/scaffold"
)

// TemporalKernel is the f(t) factor of the combined score. Implementations
// must be pure; a negative result is clamped by the score floor.
type TemporalKernel interface {
	Factor(s *scaffold.Scaffold, now time.Time) float64
}

// KernelFunc adapts a function to TemporalKernel.
type KernelFunc func(s *scaffold.Scaffold, now time.Time) float64

// Factor calls f.
func (f KernelFunc) Factor(s *scaffold.Scaffold, now time.Time) float64 { return f(s, now) }

// RecencyKernel boosts scaffolds that were selected recently. The boost
// decays exponentially with the configured half-life; scaffolds without a
// recorded use get factor 1.
type RecencyKernel struct {
	LastUsed map[string]time.Time
	Boost    float64
	HalfLife time.Duration
}

// Factor returns 1 + Boost·2^(-age/HalfLife).
func (k RecencyKernel) Factor(s *scaffold.Scaffold, now time.Time) float64 {
	at, ok := k.LastUsed[s.ID]
	if !ok || k.HalfLife <= 0 {
		return 1
	}
	age := now.Sub(at)
	if age < 0 {
		age = 0
	}
	return 1 + k.Boost*math.Exp2(-float64(age)/float64(k.HalfLife))
}
