package main

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"

	"twc_bridge/device"
	"twc_bridge/session"
)

const testChargePointId = "TWC-TEST"

func newTestBridge(t *testing.T) (*BridgeHandler, *device.WallConnector, *session.Ledger) {
	t.Helper()
	log.SetLevel(logrus.PanicLevel)
	wc := device.NewWallConnector(log)
	wc.SetLinkConnected(true)
	ledger := session.NewLedger(log)
	return NewBridgeHandler(wc, ledger), wc, ledger
}

func statusReq(status core.ChargePointStatus, errorCode core.ChargePointErrorCode) *core.StatusNotificationRequest {
	return &core.StatusNotificationRequest{ConnectorId: 1, Status: status, ErrorCode: errorCode}
}

func TestStatusNotificationMapping(t *testing.T) {
	tests := []struct {
		name          string
		status        core.ChargePointStatus
		errorCode     core.ChargePointErrorCode
		wantState     device.EVSEState
		wantVehicle   bool
		wantContactor bool
	}{
		{"available means idle", core.ChargePointStatusAvailable, core.NoError, device.StateReady, false, false},
		{"preparing stays idle until the transaction", core.ChargePointStatusPreparing, core.NoError, device.StateReady, false, false},
		{"charging closes the contactor", core.ChargePointStatusCharging, core.NoError, device.StateCharging, true, true},
		{"suspended by evse keeps the vehicle", core.ChargePointStatusSuspendedEVSE, core.NoError, device.StateReady, true, false},
		{"suspended by ev keeps the vehicle", core.ChargePointStatusSuspendedEV, core.NoError, device.StateReady, true, false},
		{"fault enters the error state", core.ChargePointStatusFaulted, core.GroundFailure, device.StateError, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, wc, _ := newTestBridge(t)

			_, err := handler.OnStatusNotification(testChargePointId, statusReq(tt.status, tt.errorCode))
			if err != nil {
				t.Fatalf("OnStatusNotification: %v", err)
			}

			if got := wc.State(); got != tt.wantState {
				t.Errorf("state = %v, want %v", got, tt.wantState)
			}
			v := wc.Snapshot()
			if v.VehicleConnected != tt.wantVehicle {
				t.Errorf("vehicle_connected = %v, want %v", v.VehicleConnected, tt.wantVehicle)
			}
			if v.ContactorClosed != tt.wantContactor {
				t.Errorf("contactor_closed = %v, want %v", v.ContactorClosed, tt.wantContactor)
			}
		})
	}
}

func TestStatusNotificationErrorClearResumes(t *testing.T) {
	handler, wc, _ := newTestBridge(t)

	handler.OnStatusNotification(testChargePointId, statusReq(core.ChargePointStatusCharging, core.NoError))
	handler.OnStatusNotification(testChargePointId, statusReq(core.ChargePointStatusFaulted, core.OverCurrentFailure))

	if wc.State() != device.StateError {
		t.Fatalf("state = %v, want error", wc.State())
	}
	if alerts := wc.Snapshot().CurrentAlerts; len(alerts) != 1 || alerts[0] != string(core.OverCurrentFailure) {
		t.Errorf("current_alerts = %v", alerts)
	}

	handler.OnStatusNotification(testChargePointId, statusReq(core.ChargePointStatusCharging, core.NoError))

	if wc.State() != device.StateCharging {
		t.Errorf("state after clear = %v, want charging", wc.State())
	}
	if alerts := wc.Snapshot().CurrentAlerts; len(alerts) != 0 {
		t.Errorf("current_alerts after clear = %v", alerts)
	}
}

func TestStartTransactionDerivesId(t *testing.T) {
	handler, _, _ := newTestBridge(t)
	start := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

	conf, err := handler.OnStartTransaction(testChargePointId, &core.StartTransactionRequest{
		ConnectorId: 1,
		IdTag:       "TAG-1",
		MeterStart:  0,
		Timestamp:   types.NewDateTime(start),
	})
	if err != nil {
		t.Fatalf("OnStartTransaction: %v", err)
	}
	if conf.TransactionId != int(start.Unix()) {
		t.Errorf("transactionId = %d, want %d", conf.TransactionId, int(start.Unix()))
	}
	if conf.IdTagInfo.Status != types.AuthorizationStatusAccepted {
		t.Errorf("idTagInfo.status = %v", conf.IdTagInfo.Status)
	}
}

func TestStartTransactionWithoutTimestamp(t *testing.T) {
	handler, _, _ := newTestBridge(t)
	before := time.Now()

	conf, err := handler.OnStartTransaction(testChargePointId, &core.StartTransactionRequest{
		ConnectorId: 1,
		IdTag:       "TAG-1",
	})
	if err != nil {
		t.Fatalf("OnStartTransaction: %v", err)
	}
	if conf.TransactionId < int(before.Unix()) {
		t.Errorf("transactionId = %d predates the request", conf.TransactionId)
	}
}

func meterValuesReq(samples ...types.SampledValue) *core.MeterValuesRequest {
	return &core.MeterValuesRequest{
		ConnectorId: 1,
		MeterValue: []types.MeterValue{{
			Timestamp:    types.NewDateTime(time.Now()),
			SampledValue: samples,
		}},
	}
}

func TestMeterValuesDeriveSessionEnergy(t *testing.T) {
	handler, wc, _ := newTestBridge(t)
	start := time.Now()

	// First session establishes the baseline through the register reading
	// that arrives before the transaction.
	handler.OnMeterValues(testChargePointId, meterValuesReq(types.SampledValue{
		Value:     "100",
		Measurand: types.MeasurandEnergyActiveImportRegister,
		Unit:      types.UnitOfMeasureWh,
	}))
	handler.OnStartTransaction(testChargePointId, &core.StartTransactionRequest{
		ConnectorId: 1, IdTag: "TAG-1", Timestamp: types.NewDateTime(start),
	})
	handler.OnMeterValues(testChargePointId, meterValuesReq(types.SampledValue{
		Value:     "135",
		Measurand: types.MeasurandEnergyActiveImportRegister,
		Unit:      types.UnitOfMeasureWh,
	}))

	v := wc.Snapshot()
	if v.TotalEnergyWh != 135 {
		t.Errorf("total_energy_wh = %v, want 135", v.TotalEnergyWh)
	}
	if v.SessionEnergyWh != 35 {
		t.Errorf("session_energy_wh = %v, want 35", v.SessionEnergyWh)
	}
}

func TestMeterValuesReportedIntervalWins(t *testing.T) {
	handler, wc, _ := newTestBridge(t)

	handler.OnStartTransaction(testChargePointId, &core.StartTransactionRequest{
		ConnectorId: 1, IdTag: "TAG-1", Timestamp: types.NewDateTime(time.Now()),
	})
	handler.OnMeterValues(testChargePointId, meterValuesReq(
		types.SampledValue{Value: "500", Measurand: types.MeasurandEnergyActiveImportRegister, Unit: types.UnitOfMeasureWh},
		types.SampledValue{Value: "42.5", Measurand: types.MeasurandEnergyActiveImportInterval, Unit: types.UnitOfMeasureWh},
	))

	if got := wc.Snapshot().SessionEnergyWh; got != 42.5 {
		t.Errorf("session_energy_wh = %v, want reported 42.5", got)
	}
}

func TestSessionContinuityAcrossStop(t *testing.T) {
	handler, _, ledger := newTestBridge(t)
	start := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

	conf, _ := handler.OnStartTransaction(testChargePointId, &core.StartTransactionRequest{
		ConnectorId: 1, IdTag: "TAG-1", Timestamp: types.NewDateTime(start),
	})
	handler.OnMeterValues(testChargePointId, meterValuesReq(
		types.SampledValue{Value: "50", Measurand: types.MeasurandEnergyActiveImportRegister, Unit: types.UnitOfMeasureWh},
		types.SampledValue{Value: "50", Measurand: types.MeasurandEnergyActiveImportInterval, Unit: types.UnitOfMeasureWh},
	))
	handler.OnStopTransaction(testChargePointId, &core.StopTransactionRequest{
		TransactionId: conf.TransactionId,
		MeterStop:     50,
		Timestamp:     types.NewDateTime(start.Add(time.Minute)),
	})

	// Same credential replugs: the session resumes at the accumulated energy.
	handler.OnStartTransaction(testChargePointId, &core.StartTransactionRequest{
		ConnectorId: 1, IdTag: "TAG-1", Timestamp: types.NewDateTime(start.Add(2 * time.Minute)),
	})
	cur, ok := ledger.Current()
	if !ok {
		t.Fatal("no current session after restart")
	}
	if cur.EnergyWh != 50 {
		t.Errorf("restarted session energy = %v, want 50", cur.EnergyWh)
	}

	// A fresh credential starts from zero instead.
	handler.OnStartTransaction(testChargePointId, &core.StartTransactionRequest{
		ConnectorId: 1, IdTag: "TAG-2", Timestamp: types.NewDateTime(start.Add(3 * time.Minute)),
	})
	cur, _ = ledger.Current()
	if cur.EnergyWh != 0 {
		t.Errorf("new credential session energy = %v, want 0", cur.EnergyWh)
	}
}

func TestAuthorizeAlwaysAccepts(t *testing.T) {
	handler, _, _ := newTestBridge(t)

	conf, err := handler.OnAuthorize(testChargePointId, &core.AuthorizeRequest{IdTag: "ANY"})
	if err != nil {
		t.Fatalf("OnAuthorize: %v", err)
	}
	if conf.IdTagInfo.Status != types.AuthorizationStatusAccepted {
		t.Errorf("status = %v, want accepted", conf.IdTagInfo.Status)
	}
}

func TestBootNotificationMarksDeviceSeen(t *testing.T) {
	handler, wc, _ := newTestBridge(t)
	before := time.Now()

	conf, err := handler.OnBootNotification(testChargePointId, &core.BootNotificationRequest{
		ChargePointVendor: "Tesla",
		ChargePointModel:  "Wall Connector 3",
	})
	if err != nil {
		t.Fatalf("OnBootNotification: %v", err)
	}
	if conf.Status != core.RegistrationStatusAccepted {
		t.Errorf("status = %v, want accepted", conf.Status)
	}
	if conf.Interval != defaultHeartbeatInterval {
		t.Errorf("interval = %d, want %d", conf.Interval, defaultHeartbeatInterval)
	}
	if wc.LastSeen().Before(before) {
		t.Error("boot did not refresh the liveness timestamp")
	}
}

func TestNotificationsNeverBlock(t *testing.T) {
	handler, _, _ := newTestBridge(t)

	// Nothing drains the channel; far more events than its capacity must
	// still return promptly.
	for i := 0; i < 200; i++ {
		handler.OnHeartbeat(testChargePointId, &core.HeartbeatRequest{})
	}
}
