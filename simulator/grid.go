package simulator

import (
	"math"
	"math/rand"
	"time"
)

const (
	baseVoltageV    = 230.0
	baseFrequencyHz = 50.0
)

// GridModel synthesizes plausible mains behavior: a slow and a fast
// sinusoidal drift on top of the nominal value, plus bounded uniform noise.
// Seeded, so a simulation run is reproducible in distribution.
type GridModel struct {
	epoch time.Time
	rng   *rand.Rand
}

func NewGridModel(seed int64) *GridModel {
	return &GridModel{
		epoch: time.Now(),
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Voltage varies within roughly ±3.5V around nominal.
func (g *GridModel) Voltage(now time.Time) float64 {
	t := now.Sub(g.epoch).Seconds()
	return baseVoltageV +
		math.Sin(t*0.1)*2.0 +
		math.Sin(t*1.0)*1.0 +
		g.Uniform(-0.5, 0.5)
}

// Frequency varies within roughly ±0.11Hz around nominal.
func (g *GridModel) Frequency(now time.Time) float64 {
	t := now.Sub(g.epoch).Seconds()
	return baseFrequencyHz +
		math.Sin(t*0.05)*0.1 +
		g.Uniform(-0.01, 0.01)
}

// Uniform draws from [min, max).
func (g *GridModel) Uniform(min, max float64) float64 {
	return min + g.rng.Float64()*(max-min)
}
