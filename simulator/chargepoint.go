package simulator

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	ocpp16 "github.com/lorenzodonini/ocpp-go/ocpp1.6"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/sirupsen/logrus"
)

const (
	settleDelay       = 5 * time.Second
	meterInterval     = 5 * time.Second
	heartbeatInterval = 30 * time.Second

	chargePointVendor = "Tesla"
	chargePointModel  = "Wall Connector 3"

	connectorId    = 1
	phaseCount     = 3
	chargeCurrentA = 16.0
	maxPowerW      = 11000.0

	// A session stops on its own once it has delivered this much energy, so a
	// demo run exercises the full start/charge/stop cycle in under a minute.
	sessionStopWh = 100.0
)

// SimulatedChargePoint is the peer the bridge talks to: a charge point that
// authorizes itself, runs a charging session through its lifecycle and emits
// meter batches every tick, charging or not. It keeps its own copy of the
// charging and energy state; the bridge's snapshot is reconstructed purely
// from the protocol traffic this simulator produces.
type SimulatedChargePoint struct {
	client ocpp16.ChargePoint
	log    *logrus.Logger
	grid   *GridModel
	idTag  string

	mu                sync.Mutex
	enabled           bool
	vehicleConnected  bool
	charging          bool
	currentPowerW     float64
	sessionEnergyWh   float64
	totalEnergyWh     float64
	transactionId     int
	lastTransactionId int
}

func New(chargePointId, idTag string, seed int64, log *logrus.Logger) *SimulatedChargePoint {
	s := &SimulatedChargePoint{
		client:  ocpp16.NewChargePoint(chargePointId, nil, nil),
		log:     log,
		grid:    NewGridModel(seed),
		idTag:   idTag,
		enabled: true,
	}
	s.client.SetCoreHandler(s)
	return s
}

// Run connects to the central system and drives the simulation until the
// context is cancelled. Meter ticks and heartbeats share one sequential loop
// so the two periodic tasks can never overlap.
func (s *SimulatedChargePoint) Run(ctx context.Context, endpoint string) error {
	if err := s.client.Start(endpoint); err != nil {
		return fmt.Errorf("connecting to central system: %w", err)
	}
	defer s.client.Stop()

	if _, err := s.client.BootNotification(chargePointModel, chargePointVendor); err != nil {
		return fmt.Errorf("boot notification: %w", err)
	}
	s.sendStatus(core.ChargePointStatusAvailable)

	settle := time.NewTimer(settleDelay)
	defer settle.Stop()
	meter := time.NewTicker(meterInterval)
	defer meter.Stop()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-settle.C:
			s.startSession()
		case <-meter.C:
			s.meterTick(time.Now())
		case <-heartbeat.C:
			if _, err := s.client.Heartbeat(); err != nil {
				s.log.WithError(err).Error("heartbeat failed")
			}
		}
	}
}

// startSession authorizes and opens a transaction, then reports the vehicle
// as charging.
func (s *SimulatedChargePoint) startSession() {
	s.mu.Lock()
	if s.charging || !s.enabled {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	auth, err := s.client.Authorize(s.idTag)
	if err != nil {
		s.log.WithError(err).Error("authorize failed")
		return
	}
	if auth.IdTagInfo.Status != types.AuthorizationStatusAccepted {
		s.log.WithField("status", auth.IdTagInfo.Status).Warn("authorization not accepted")
		return
	}

	start, err := s.client.StartTransaction(connectorId, s.idTag, 0, types.NewDateTime(time.Now()))
	if err != nil {
		s.log.WithError(err).Error("start transaction failed")
		return
	}

	s.mu.Lock()
	s.transactionId = start.TransactionId
	s.vehicleConnected = true
	s.charging = true
	s.mu.Unlock()

	s.sendStatus(core.ChargePointStatusCharging)
	s.log.WithField("transactionId", start.TransactionId).Info("transaction started, vehicle charging")
}

// stopSession closes the open transaction with the final meter reading and
// reports the vehicle as suspended.
func (s *SimulatedChargePoint) stopSession(reason core.Reason, status core.ChargePointStatus) {
	s.mu.Lock()
	transactionId := s.transactionId
	meterStop := int(s.sessionEnergyWh)
	if transactionId == 0 {
		s.charging = false
		s.mu.Unlock()
		return
	}
	s.transactionId = 0
	s.lastTransactionId = transactionId
	s.charging = false
	s.mu.Unlock()

	_, err := s.client.StopTransaction(meterStop, types.NewDateTime(time.Now()), transactionId,
		func(req *core.StopTransactionRequest) { req.Reason = reason })
	if err != nil {
		s.log.WithError(err).Error("stop transaction failed")
	}
	s.sendStatus(status)
	s.log.WithFields(logrus.Fields{"transactionId": transactionId, "meterStop": meterStop}).Info("charging stopped")
}

// advance integrates one tick of the physical model at the given grid voltage
// and reports whether the session energy crossed the stop threshold.
func (s *SimulatedChargePoint) advance(now time.Time, voltageV float64, elapsed time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !(s.charging && s.vehicleConnected && s.enabled) {
		s.currentPowerW = 0
		return false
	}

	nominalW := chargeCurrentA * voltageV * phaseCount
	variationW := math.Sin(float64(now.Unix())*0.05)*nominalW*0.02 + s.grid.Uniform(-50, 50)
	powerW := nominalW + variationW
	if powerW > maxPowerW {
		powerW = maxPowerW
	}
	s.currentPowerW = powerW

	incrementWh := powerW * elapsed.Hours()
	s.sessionEnergyWh += incrementWh
	s.totalEnergyWh += incrementWh

	return s.sessionEnergyWh >= sessionStopWh
}

func (s *SimulatedChargePoint) meterTick(now time.Time) {
	voltageV := s.grid.Voltage(now)
	frequencyHz := s.grid.Frequency(now)

	if s.advance(now, voltageV, meterInterval) {
		s.log.WithField("sessionWh", s.SessionEnergyWh()).Info("session energy threshold reached")
		s.stopSession(core.ReasonLocal, core.ChargePointStatusSuspendedEV)
	}

	mv := s.buildMeterValue(now, voltageV, frequencyHz)
	if _, err := s.client.MeterValues(connectorId, []types.MeterValue{mv}); err != nil {
		s.log.WithError(err).Error("meter values failed")
	}
}

// buildMeterValue emits the full heterogeneous batch every tick: per-phase
// voltage always carries live grid noise, per-phase current and power go to
// zero while idle, and both energy counters are always present.
func (s *SimulatedChargePoint) buildMeterValue(now time.Time, voltageV, frequencyHz float64) types.MeterValue {
	s.mu.Lock()
	charging := s.charging
	powerW := s.currentPowerW
	sessionWh := s.sessionEnergyWh
	totalWh := s.totalEnergyWh
	s.mu.Unlock()

	currentA := 0.0
	if charging {
		currentA = chargeCurrentA
	}

	sampled := make([]types.SampledValue, 0, 16)
	for _, phase := range []types.Phase{types.PhaseL1, types.PhaseL2, types.PhaseL3} {
		sampled = append(sampled,
			types.SampledValue{
				Value:     fmt.Sprintf("%.2f", voltageV),
				Measurand: types.MeasurandVoltage,
				Unit:      types.UnitOfMeasureV,
				Phase:     phase,
			},
			types.SampledValue{
				Value:     fmt.Sprintf("%.2f", currentA),
				Measurand: types.MeasurandCurrentImport,
				Unit:      types.UnitOfMeasureA,
				Phase:     phase,
			},
			types.SampledValue{
				Value:     fmt.Sprintf("%.2f", powerW/phaseCount),
				Context:   types.ReadingContextSamplePeriodic,
				Format:    types.ValueFormatRaw,
				Measurand: types.MeasurandPowerActiveImport,
				Unit:      types.UnitOfMeasureW,
				Phase:     phase,
			},
		)
	}
	sampled = append(sampled,
		types.SampledValue{
			Value:     fmt.Sprintf("%.3f", frequencyHz),
			Measurand: types.MeasurandFrequency,
		},
		types.SampledValue{
			Value:     fmt.Sprintf("%.2f", chargeCurrentA),
			Measurand: types.MeasurandCurrentOffered,
			Unit:      types.UnitOfMeasureA,
		},
		types.SampledValue{
			Value:     fmt.Sprintf("%.0f", maxPowerW),
			Measurand: types.MeasurandPowerOffered,
			Unit:      types.UnitOfMeasureW,
		},
		types.SampledValue{
			Value:     fmt.Sprintf("%.2f", totalWh),
			Measurand: types.MeasurandEnergyActiveImportRegister,
			Unit:      types.UnitOfMeasureWh,
		},
		types.SampledValue{
			Value:     fmt.Sprintf("%.2f", sessionWh),
			Measurand: types.MeasurandEnergyActiveImportInterval,
			Unit:      types.UnitOfMeasureWh,
		},
		types.SampledValue{
			Value:     fmt.Sprintf("%.1f", 20.0+s.grid.Uniform(-0.5, 0.5)),
			Measurand: types.MeasurandTemperature,
			Unit:      types.UnitOfMeasureCelsius,
		},
	)

	return types.MeterValue{
		Timestamp:    types.NewDateTime(now),
		SampledValue: sampled,
	}
}

func (s *SimulatedChargePoint) sendStatus(status core.ChargePointStatus) {
	if _, err := s.client.StatusNotification(connectorId, core.NoError, status); err != nil {
		s.log.WithError(err).WithField("status", status).Error("status notification failed")
	}
}

func (s *SimulatedChargePoint) SessionEnergyWh() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionEnergyWh
}

func (s *SimulatedChargePoint) TotalEnergyWh() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalEnergyWh
}
