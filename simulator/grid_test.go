package simulator

import (
	"testing"
	"time"
)

func TestGridVoltageBounded(t *testing.T) {
	g := NewGridModel(1)
	for i := 0; i < 1000; i++ {
		now := g.epoch.Add(time.Duration(i) * time.Second)
		v := g.Voltage(now)
		if v < baseVoltageV-3.5 || v > baseVoltageV+3.5 {
			t.Fatalf("Voltage(%d s) = %v, outside nominal band", i, v)
		}
	}
}

func TestGridFrequencyBounded(t *testing.T) {
	g := NewGridModel(1)
	for i := 0; i < 1000; i++ {
		now := g.epoch.Add(time.Duration(i) * time.Second)
		hz := g.Frequency(now)
		if hz < baseFrequencyHz-0.11 || hz > baseFrequencyHz+0.11 {
			t.Fatalf("Frequency(%d s) = %v, outside nominal band", i, hz)
		}
	}
}

func TestUniformStaysInRange(t *testing.T) {
	g := NewGridModel(42)
	for i := 0; i < 1000; i++ {
		v := g.Uniform(-50, 50)
		if v < -50 || v >= 50 {
			t.Fatalf("Uniform(-50, 50) = %v", v)
		}
	}
}

func TestSameSeedSameNoise(t *testing.T) {
	a := NewGridModel(7)
	b := NewGridModel(7)
	for i := 0; i < 100; i++ {
		if a.Uniform(0, 1) != b.Uniform(0, 1) {
			t.Fatal("identical seeds must produce identical noise sequences")
		}
	}
}
