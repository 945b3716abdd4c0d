package session

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ChargingSession is one protocol-level charging session and its energy
// accounting.
type ChargingSession struct {
	IDTag              string
	TransactionID      int
	MeterStart         int
	StartTime          time.Time
	TotalEnergyAtStart float64
	EnergyWh           float64
}

// Ledger owns transaction identity and session energy accounting. Besides the
// current session it remembers exactly one finished session: charge points
// commonly restart their transaction handshake mid-charge, and a new start
// with the same idTag must resume the accumulated session energy instead of
// resetting it. The remembered slot is replaced, never grown.
type Ledger struct {
	mu      sync.Mutex
	log     *logrus.Logger
	current *ChargingSession
	last    *ChargingSession
}

func NewLedger(log *logrus.Logger) *Ledger {
	return &Ledger{log: log}
}

// Begin opens a new session and returns its transaction id, derived from the
// start timestamp so every start gets a unique id without any coordination.
// A remembered session with the same idTag seeds the new session's energy.
func (l *Ledger) Begin(idTag string, meterStart int, startTime time.Time, totalEnergyWh float64) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current != nil {
		l.last = l.current
	}

	var carried float64
	if l.last != nil && l.last.IDTag == idTag {
		carried = l.last.EnergyWh
		l.log.WithFields(logrus.Fields{"idTag": idTag, "energyWh": carried}).
			Info("restoring previous session energy")
	}

	l.current = &ChargingSession{
		IDTag:              idTag,
		TransactionID:      int(startTime.Unix()),
		MeterStart:         meterStart,
		StartTime:          startTime,
		TotalEnergyAtStart: totalEnergyWh,
		EnergyWh:           carried,
	}
	return l.current.TransactionID
}

// End closes the current session and keeps it as the remembered one. A
// transaction id that does not match the current session is a no-op.
func (l *Ledger) End(transactionID int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current == nil || l.current.TransactionID != transactionID {
		return
	}
	l.log.WithFields(logrus.Fields{
		"transactionId": transactionID,
		"idTag":         l.current.IDTag,
		"energyWh":      l.current.EnergyWh,
	}).Info("transaction stopped")
	l.last = l.current
	l.current = nil
}

// RecordEnergy folds one meter report into the session accounting and returns
// the resulting session energy. An explicitly reported interval energy is
// stored verbatim; otherwise it is derived from the cumulative counter,
// floored at zero so a counter reset never yields a negative session.
// Reports arriving after the session stopped keep updating the remembered
// session so its energy survives into a restart.
func (l *Ledger) RecordEnergy(totalEnergyWh, intervalEnergyWh float64, intervalReported bool) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.current
	if s == nil {
		s = l.last
	}
	if s == nil {
		if intervalReported {
			return intervalEnergyWh
		}
		return 0
	}

	if intervalReported {
		s.EnergyWh = intervalEnergyWh
	} else {
		derived := totalEnergyWh - s.TotalEnergyAtStart
		if derived < 0 {
			derived = 0
		}
		s.EnergyWh = derived
	}
	return s.EnergyWh
}

// Current returns a copy of the active session, if any.
func (l *Ledger) Current() (ChargingSession, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return ChargingSession{}, false
	}
	return *l.current, true
}
