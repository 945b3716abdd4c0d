package session

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func newTestLedger() *Ledger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewLedger(log)
}

func TestBeginDerivesTransactionIdFromStartTime(t *testing.T) {
	l := newTestLedger()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	txId := l.Begin("TAG", 0, start, 0)
	if txId != int(start.Unix()) {
		t.Errorf("transactionId = %v, want %v", txId, start.Unix())
	}

	cur, ok := l.Current()
	if !ok {
		t.Fatal("expected an active session")
	}
	if cur.IDTag != "TAG" || cur.EnergyWh != 0 {
		t.Errorf("unexpected session %+v", cur)
	}
}

func TestSessionContinuitySameIdTag(t *testing.T) {
	l := newTestLedger()
	start := time.Now()

	txId := l.Begin("TEST", 0, start, 0)
	if got := l.RecordEnergy(50, 50, true); got != 50 {
		t.Fatalf("RecordEnergy = %v, want 50", got)
	}
	l.End(txId)

	l.Begin("TEST", 0, start.Add(time.Minute), 50)
	cur, _ := l.Current()
	if cur.EnergyWh != 50 {
		t.Errorf("restarted session energy = %v, want 50", cur.EnergyWh)
	}
}

func TestNewIdTagStartsAtZero(t *testing.T) {
	l := newTestLedger()
	start := time.Now()

	txId := l.Begin("ALICE", 0, start, 0)
	l.RecordEnergy(80, 80, true)
	l.End(txId)

	l.Begin("BOB", 0, start.Add(time.Minute), 80)
	cur, _ := l.Current()
	if cur.EnergyWh != 0 {
		t.Errorf("different idTag session energy = %v, want 0", cur.EnergyWh)
	}
}

func TestBeginWithoutStopSupersedes(t *testing.T) {
	l := newTestLedger()
	start := time.Now()

	l.Begin("TEST", 0, start, 0)
	l.RecordEnergy(30, 30, true)

	// The charge point restarted its handshake without a StopTransaction.
	l.Begin("TEST", 0, start.Add(time.Minute), 30)
	cur, _ := l.Current()
	if cur.EnergyWh != 30 {
		t.Errorf("session energy = %v, want 30 carried over", cur.EnergyWh)
	}
}

func TestEndIgnoresMismatchedTransaction(t *testing.T) {
	l := newTestLedger()
	l.Begin("TEST", 0, time.Now(), 0)

	l.End(12345)
	if _, ok := l.Current(); !ok {
		t.Error("mismatched End must not close the session")
	}
}

func TestRecordEnergyDerivation(t *testing.T) {
	tests := []struct {
		name         string
		totalAtStart float64
		total        float64
		want         float64
	}{
		{"normal delta", 100, 135, 35},
		{"counter reset floors at zero", 100, 90, 0},
		{"no progress", 100, 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLedger()
			l.Begin("TEST", 0, time.Now(), tt.totalAtStart)
			if got := l.RecordEnergy(tt.total, 0, false); got != tt.want {
				t.Errorf("RecordEnergy(%v) = %v, want %v", tt.total, got, tt.want)
			}
		})
	}
}

func TestRecordEnergyReportedIntervalWins(t *testing.T) {
	l := newTestLedger()
	l.Begin("TEST", 0, time.Now(), 100)

	// An explicit interval report is stored verbatim even when the derived
	// value would differ.
	if got := l.RecordEnergy(135, 20, true); got != 20 {
		t.Errorf("RecordEnergy = %v, want reported 20", got)
	}
}

func TestRecordEnergyAfterStopUpdatesRememberedSession(t *testing.T) {
	l := newTestLedger()
	start := time.Now()
	txId := l.Begin("TEST", 0, start, 0)
	l.RecordEnergy(40, 40, true)
	l.End(txId)

	// Meter values keep flowing after the stop; the remembered session keeps
	// accounting so a restart resumes from the latest figure.
	l.RecordEnergy(55, 55, true)

	l.Begin("TEST", 0, start.Add(time.Minute), 55)
	cur, _ := l.Current()
	if cur.EnergyWh != 55 {
		t.Errorf("restarted session energy = %v, want 55", cur.EnergyWh)
	}
}

func TestRecordEnergyWithoutAnySession(t *testing.T) {
	l := newTestLedger()
	if got := l.RecordEnergy(100, 0, false); got != 0 {
		t.Errorf("derived energy without session = %v, want 0", got)
	}
	if got := l.RecordEnergy(100, 7, true); got != 7 {
		t.Errorf("reported energy without session = %v, want 7", got)
	}
}
