package device

import (
	"sync"
	"time"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/sirupsen/logrus"

	"twc_bridge/telemetry"
)

const (
	pilotActiveV = 12.0
	relayCoilV   = 12.0

	// Phases below this voltage are treated as inactive when averaging.
	activePhaseMinV = 2.0
	defaultGridV    = 230.0

	restingTempC = 20.0
)

// WallConnector models a single simulated Tesla Wall Connector. It is the one
// shared mutable record of the bridge: the OCPP event handlers mutate it, the
// vitals HTTP endpoint reads it. Every mutator applies one event's effects
// under a single lock so pollers never observe a half-updated snapshot.
type WallConnector struct {
	mu  sync.RWMutex
	log *logrus.Logger

	vitals        Vitals
	state         EVSEState
	startTime     time.Time
	chargingStart time.Time
	linkConnected bool
	lastSeen      time.Time
}

func NewWallConnector(log *logrus.Logger) *WallConnector {
	return &WallConnector{
		log:       log,
		state:     StateUnknown,
		startTime: time.Now(),
	}
}

// SetEnabled moves the connector between disabled and ready/charging. It
// reports false for the one transition that is refused: enabling while the
// connector is in the error state.
func (wc *WallConnector) SetEnabled(enabled bool) bool {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	return wc.setEnabledLocked(enabled)
}

func (wc *WallConnector) setEnabledLocked(enabled bool) bool {
	if !enabled {
		wc.state = StateDisabled
		wc.vitals.ContactorClosed = false
		wc.chargingStart = time.Time{}
		return true
	}
	if wc.state == StateError {
		return false
	}
	if wc.vitals.VehicleConnected {
		wc.state = StateCharging
		wc.vitals.ContactorClosed = true
		if wc.chargingStart.IsZero() {
			wc.chargingStart = time.Now()
		}
	} else {
		wc.state = StateReady
	}
	return true
}

// SetVehicleConnected tracks the plug state. Connecting while ready starts
// charging; disconnecting always opens the contactor and returns to ready
// unless the connector is disabled or in error.
func (wc *WallConnector) SetVehicleConnected(connected bool) {
	wc.mu.Lock()
	defer wc.mu.Unlock()

	if connected != wc.vitals.VehicleConnected {
		wc.log.WithField("connected", connected).Info("vehicle connection changed")
	}
	wc.vitals.VehicleConnected = connected

	if !connected {
		wc.vitals.ContactorClosed = false
		wc.chargingStart = time.Time{}
		if wc.state != StateDisabled && wc.state != StateError {
			wc.state = StateReady
		}
		return
	}
	if wc.state == StateReady {
		wc.state = StateCharging
		wc.vitals.ContactorClosed = true
		if wc.chargingStart.IsZero() {
			wc.chargingStart = time.Now()
		}
	}
}

// SetError enters or leaves the error state. Entering forcibly opens the
// contactor and records the reported alert codes. Leaving re-enters through
// disabled and then attempts to enable, so a vehicle that is still connected
// resumes charging on its own.
func (wc *WallConnector) SetError(hasError bool, alerts ...string) {
	wc.mu.Lock()
	defer wc.mu.Unlock()

	if hasError {
		wc.state = StateError
		wc.vitals.ContactorClosed = false
		wc.chargingStart = time.Time{}
		wc.vitals.CurrentAlerts = alerts
		wc.log.WithField("alerts", alerts).Warn("entering error state")
		return
	}
	wc.vitals.CurrentAlerts = nil
	wc.state = StateDisabled
	wc.setEnabledLocked(true)
}

// SuspendCharging forces the connector back to ready with the contactor open
// while the vehicle stays connected. Maps SuspendedEV/SuspendedEVSE.
func (wc *WallConnector) SuspendCharging() {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	wc.state = StateReady
	wc.vitals.ContactorClosed = false
}

// SetLinkConnected tracks the OCPP transport. While the link is down the
// physical device is in an indeterminate state, so everything derived from
// protocol events is reset to unknown.
func (wc *WallConnector) SetLinkConnected(connected bool) {
	wc.mu.Lock()
	defer wc.mu.Unlock()

	wc.linkConnected = connected
	if connected {
		wc.lastSeen = time.Now()
		return
	}
	wc.state = StateUnknown
	wc.vitals.ContactorClosed = false
	wc.chargingStart = time.Time{}
}

// MarkSeen records protocol liveness (boot, heartbeat).
func (wc *WallConnector) MarkSeen() {
	wc.mu.Lock()
	wc.lastSeen = time.Now()
	wc.mu.Unlock()
}

// ApplyReading writes one translated meter reading plus the ledger's session
// energy into the snapshot as a single atomic update.
func (wc *WallConnector) ApplyReading(r telemetry.Reading, sessionEnergyWh float64) {
	wc.mu.Lock()
	defer wc.mu.Unlock()

	v := &wc.vitals
	v.CurrentAA = r.CurrentsA[types.PhaseL1]
	v.CurrentBA = r.CurrentsA[types.PhaseL2]
	v.CurrentCA = r.CurrentsA[types.PhaseL3]
	v.CurrentNA = r.CurrentsA[types.PhaseN]

	v.VehicleCurrentA = 0
	for _, c := range []float64{v.CurrentAA, v.CurrentBA, v.CurrentCA} {
		if c > 0 {
			v.VehicleCurrentA += c
		}
	}

	v.VoltageAV = r.VoltagesV[types.PhaseL1]
	v.VoltageBV = r.VoltagesV[types.PhaseL2]
	v.VoltageCV = r.VoltagesV[types.PhaseL3]

	var activeSum float64
	var activeCount int
	for _, p := range []float64{v.VoltageAV, v.VoltageBV, v.VoltageCV} {
		if p > activePhaseMinV {
			activeSum += p
			activeCount++
		}
	}
	if activeCount > 0 {
		v.GridV = activeSum / float64(activeCount)
	} else {
		v.GridV = defaultGridV
	}

	v.GridHz = r.FrequencyHz
	v.SessionEnergyWh = sessionEnergyWh
	v.TotalEnergyWh = r.TotalEnergyWh
	v.PcbaTempC = r.TemperatureC
	v.HandleTempC = restingTempC
	v.McuTempC = restingTempC
}

// Snapshot returns a self-consistent copy of the vitals with the derived
// fields (state, timers, pilot and relay indicators) filled in.
func (wc *WallConnector) Snapshot() Vitals {
	wc.mu.RLock()
	defer wc.mu.RUnlock()

	now := time.Now()
	v := wc.vitals
	v.EvseState = int(wc.state)
	v.UptimeS = int64(now.Sub(wc.startTime).Seconds())

	if wc.chargingStart.IsZero() {
		v.SessionS = 0
	} else {
		v.SessionS = int64(now.Sub(wc.chargingStart).Seconds())
	}

	if wc.state == StateReady || wc.state == StateCharging {
		v.PilotHighV = pilotActiveV
		v.PilotLowV = pilotActiveV
	}
	if wc.vitals.ContactorClosed {
		v.RelayCoilV = relayCoilV
	}

	if v.CurrentAlerts == nil {
		v.CurrentAlerts = []string{}
	} else {
		v.CurrentAlerts = append([]string(nil), v.CurrentAlerts...)
	}
	return v
}

func (wc *WallConnector) State() EVSEState {
	wc.mu.RLock()
	defer wc.mu.RUnlock()
	return wc.state
}

func (wc *WallConnector) LinkConnected() bool {
	wc.mu.RLock()
	defer wc.mu.RUnlock()
	return wc.linkConnected
}

func (wc *WallConnector) LastSeen() time.Time {
	wc.mu.RLock()
	defer wc.mu.RUnlock()
	return wc.lastSeen
}
