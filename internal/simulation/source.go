// Package simulation generates the readings and actuator commands produced
// by one backend tick.
package simulation

import (
	"math"
	"math/rand"
	"sync"

	"github.com/afroash/hydro-monitor/internal/classify"
	"github.com/afroash/hydro-monitor/internal/models"
)

// Source produces a value for a sensor.
type Source interface {
	Sample(sensor models.Sensor) (float64, error)
	Close() error
}

// RandomSource draws values inside the sensor type's ideal range with
// probability inRangeRatio, otherwise 0.1 to 1.0 past one of its bounds.
// Types without a range draw from [0, 100).
type RandomSource struct {
	mu           sync.Mutex
	rng          *rand.Rand
	inRangeRatio float64
}

// NewRandomSource creates a seeded random source. A ratio outside [0, 1]
// falls back to 0.8.
func NewRandomSource(seed int64, inRangeRatio float64) *RandomSource {
	if inRangeRatio < 0 || inRangeRatio > 1 {
		inRangeRatio = 0.8
	}
	return &RandomSource{
		rng:          rand.New(rand.NewSource(seed)),
		inRangeRatio: inRangeRatio,
	}
}

// Sample draws a value rounded to two decimals
func (s *RandomSource) Sample(sensor models.Sensor) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := classify.IdealRange(sensor.Tipo)
	if !ok {
		return round2(s.uniform(0, 100)), nil
	}

	if s.rng.Float64() < s.inRangeRatio {
		return round2(s.uniform(r.Min, r.Max)), nil
	}
	if s.rng.Float64() < 0.5 {
		return round2(r.Min - s.uniform(0.1, 1.0)), nil
	}
	return round2(r.Max + s.uniform(0.1, 1.0)), nil
}

// Close is a no-op
func (s *RandomSource) Close() error {
	return nil
}

func (s *RandomSource) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
