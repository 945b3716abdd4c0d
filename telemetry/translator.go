package telemetry

import (
	"strconv"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/sirupsen/logrus"
)

// Defaults applied to fields a meter batch does not carry.
const (
	DefaultFrequencyHz  = 50.0
	DefaultTemperatureC = 20.0
)

// Reading is the canonical form of one OCPP meter-value entry. All energies
// are Wh, powers W, currents A, voltages V, regardless of the units used on
// the wire.
type Reading struct {
	CurrentsA   map[types.Phase]float64
	VoltagesV   map[types.Phase]float64
	PowersW     map[types.Phase]float64
	FrequencyHz float64

	CurrentOfferedA float64
	PowerOfferedW   float64

	TotalEnergyWh float64
	// SessionEnergyWh is only meaningful when SessionEnergyReported is true;
	// otherwise the session energy has to be derived from TotalEnergyWh.
	SessionEnergyWh       float64
	SessionEnergyReported bool

	TemperatureC float64
}

// TotalPowerW sums the per-phase active powers that were present.
func (r Reading) TotalPowerW() float64 {
	var sum float64
	for _, p := range r.PowersW {
		sum += p
	}
	return sum
}

// Translate maps one wire-shaped meter-value entry onto a Reading. It is a
// pure function of its input: unknown measurands are logged and skipped,
// phase-scoped measurands without a phase tag are ambiguous and skipped, and
// unparseable values fall back to the field defaults. It never fails.
func Translate(mv types.MeterValue, log *logrus.Logger) Reading {
	r := Reading{
		CurrentsA: map[types.Phase]float64{
			types.PhaseL1: 0, types.PhaseL2: 0, types.PhaseL3: 0, types.PhaseN: 0,
		},
		VoltagesV: map[types.Phase]float64{
			types.PhaseL1: 0, types.PhaseL2: 0, types.PhaseL3: 0,
		},
		PowersW:      map[types.Phase]float64{},
		FrequencyHz:  DefaultFrequencyHz,
		TemperatureC: DefaultTemperatureC,
	}

	for _, sv := range mv.SampledValue {
		value, err := strconv.ParseFloat(sv.Value, 64)
		if err != nil {
			log.WithFields(logrus.Fields{"measurand": sv.Measurand, "value": sv.Value}).
				Warn("discarding unparseable sampled value")
			continue
		}

		switch sv.Measurand {
		case types.MeasurandCurrentImport:
			if sv.Phase == "" {
				log.WithField("measurand", sv.Measurand).Debug("phase-scoped measurand without phase, skipping")
				continue
			}
			r.CurrentsA[sv.Phase] = value
		case types.MeasurandCurrentOffered:
			r.CurrentOfferedA = value
		case types.MeasurandVoltage:
			if sv.Phase == "" {
				log.WithField("measurand", sv.Measurand).Debug("phase-scoped measurand without phase, skipping")
				continue
			}
			r.VoltagesV[sv.Phase] = value
		case types.MeasurandPowerActiveImport:
			if sv.Phase == "" {
				// An aggregate power sample is ambiguous against the
				// per-phase model; the aggregate is recomputed as the sum of
				// phase powers instead.
				log.WithField("measurand", sv.Measurand).Debug("unphased power sample, skipping")
				continue
			}
			r.PowersW[sv.Phase] = powerW(value, sv.Unit)
		case types.MeasurandPowerOffered:
			r.PowerOfferedW = powerW(value, sv.Unit)
		case types.MeasurandFrequency:
			r.FrequencyHz = value
		case types.MeasurandEnergyActiveImportRegister:
			r.TotalEnergyWh = energyWh(value, sv.Unit)
		case types.MeasurandEnergyActiveImportInterval:
			r.SessionEnergyWh = energyWh(value, sv.Unit)
			r.SessionEnergyReported = true
		case types.MeasurandTemperature:
			r.TemperatureC = value
		default:
			log.WithField("measurand", sv.Measurand).Debug("ignoring unsupported measurand")
		}
	}

	return r
}

func energyWh(value float64, unit types.UnitOfMeasure) float64 {
	if unit == types.UnitOfMeasureKWh {
		return value * 1000
	}
	return value
}

func powerW(value float64, unit types.UnitOfMeasure) float64 {
	if unit == types.UnitOfMeasureKW {
		return value * 1000
	}
	return value
}
