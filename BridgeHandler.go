package main

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"

	"twc_bridge/device"
	"twc_bridge/notifier"
	"twc_bridge/session"
	"twc_bridge/telemetry"
)

// BridgeHandler receives the OCPP 1.6 core-profile events of the single
// connected charge point and folds them into the wall connector state and the
// session ledger. Every handler is total: malformed or partial input degrades
// to defaults and is logged, and no handler ever fails the message loop.
type BridgeHandler struct {
	device       *device.WallConnector
	ledger       *session.Ledger
	notification chan notifier.Notification
}

func NewBridgeHandler(wc *device.WallConnector, ledger *session.Ledger) *BridgeHandler {
	return &BridgeHandler{
		device:       wc,
		ledger:       ledger,
		notification: make(chan notifier.Notification, 64),
	}
}

func (handler *BridgeHandler) NotificationChannel() chan notifier.Notification {
	return handler.notification
}

// notify publishes an event to the notifier channel without ever blocking the
// event loop: with no notifier attached (or a slow one) events are dropped.
func (handler *BridgeHandler) notify(topic string, chargePointId string, request interface{}, extra map[string]interface{}) {
	data := make(map[string]interface{})
	data["chargePointId"] = chargePointId

	bt, _ := json.Marshal(request)
	json.Unmarshal(bt, &data)
	for k, v := range extra {
		data[k] = v
	}

	select {
	case handler.notification <- notifier.Notification{Topic: topic, Data: data}:
	default:
	}
}

// ------------- Core profile callbacks -------------

func (handler *BridgeHandler) OnAuthorize(chargePointId string, request *core.AuthorizeRequest) (confirmation *core.AuthorizeConfirmation, err error) {
	// Authorization policy is not this bridge's business: all credentials are
	// trusted and logged.
	logDefault(chargePointId, request.GetFeatureName()).WithField("idTag", request.IdTag).Info("authorization accepted")
	return core.NewAuthorizationConfirmation(types.NewIdTagInfo(types.AuthorizationStatusAccepted)), nil
}

func (handler *BridgeHandler) OnBootNotification(chargePointId string, request *core.BootNotificationRequest) (confirmation *core.BootNotificationConfirmation, err error) {
	logDefault(chargePointId, request.GetFeatureName()).WithFields(logrus.Fields{
		"vendor": request.ChargePointVendor,
		"model":  request.ChargePointModel,
	}).Info("boot confirmed")

	handler.device.MarkSeen()
	handler.notify("boot.notification", chargePointId, request, nil)

	return core.NewBootNotificationConfirmation(types.NewDateTime(time.Now()), defaultHeartbeatInterval, core.RegistrationStatusAccepted), nil
}

func (handler *BridgeHandler) OnHeartbeat(chargePointId string, request *core.HeartbeatRequest) (confirmation *core.HeartbeatConfirmation, err error) {
	handler.device.MarkSeen()
	handler.notify("heartbeat", chargePointId, request, nil)
	return core.NewHeartbeatConfirmation(types.NewDateTime(time.Now())), nil
}

func (handler *BridgeHandler) OnStatusNotification(chargePointId string, request *core.StatusNotificationRequest) (confirmation *core.StatusNotificationConfirmation, err error) {
	logDefault(chargePointId, request.GetFeatureName()).WithFields(logrus.Fields{
		"connector": request.ConnectorId,
		"status":    request.Status,
		"errorCode": request.ErrorCode,
	}).Info("status notification")

	if request.ErrorCode != core.NoError {
		handler.device.SetError(true, string(request.ErrorCode))
	} else {
		handler.device.SetError(false)
		switch request.Status {
		case core.ChargePointStatusCharging:
			handler.device.SetVehicleConnected(true)
		case core.ChargePointStatusSuspendedEVSE, core.ChargePointStatusSuspendedEV:
			// Vehicle present but the contactor stays open: either the charge
			// point paused the session or the car asked to stop.
			handler.device.SetVehicleConnected(true)
			handler.device.SuspendCharging()
		default:
			handler.device.SetVehicleConnected(false)
		}
	}

	handler.notify("status.notification", chargePointId, request, nil)
	return core.NewStatusNotificationConfirmation(), nil
}

func (handler *BridgeHandler) OnStartTransaction(chargePointId string, request *core.StartTransactionRequest) (confirmation *core.StartTransactionConfirmation, err error) {
	startTime := time.Now()
	if request.Timestamp != nil && !request.Timestamp.IsZero() {
		startTime = request.Timestamp.Time
	}

	totalEnergy := handler.device.Snapshot().TotalEnergyWh
	transactionId := handler.ledger.Begin(request.IdTag, request.MeterStart, startTime, totalEnergy)

	logDefault(chargePointId, request.GetFeatureName()).WithFields(logrus.Fields{
		"transactionId": transactionId,
		"connector":     request.ConnectorId,
		"idTag":         request.IdTag,
		"totalStartWh":  totalEnergy,
	}).Info("transaction started")

	handler.notify("start.transaction", chargePointId, request, map[string]interface{}{"transactionId": transactionId})

	return core.NewStartTransactionConfirmation(types.NewIdTagInfo(types.AuthorizationStatusAccepted), transactionId), nil
}

func (handler *BridgeHandler) OnStopTransaction(chargePointId string, request *core.StopTransactionRequest) (confirmation *core.StopTransactionConfirmation, err error) {
	handler.ledger.End(request.TransactionId)
	handler.notify("stop.transaction", chargePointId, request, nil)
	return core.NewStopTransactionConfirmation(), nil
}

func (handler *BridgeHandler) OnMeterValues(chargePointId string, request *core.MeterValuesRequest) (confirmation *core.MeterValuesConfirmation, err error) {
	for _, mv := range request.MeterValue {
		reading := telemetry.Translate(mv, log)
		sessionEnergy := handler.ledger.RecordEnergy(reading.TotalEnergyWh, reading.SessionEnergyWh, reading.SessionEnergyReported)
		handler.device.ApplyReading(reading, sessionEnergy)

		logDefault(chargePointId, request.GetFeatureName()).WithFields(logrus.Fields{
			"powerW":    reading.TotalPowerW(),
			"gridHz":    reading.FrequencyHz,
			"sessionWh": sessionEnergy,
			"totalWh":   reading.TotalEnergyWh,
		}).Debug("meter values applied")
	}

	handler.notify("meter.values", chargePointId, request, nil)
	return core.NewMeterValuesConfirmation(), nil
}

func (handler *BridgeHandler) OnDataTransfer(chargePointId string, request *core.DataTransferRequest) (confirmation *core.DataTransferConfirmation, err error) {
	logDefault(chargePointId, request.GetFeatureName()).WithFields(logrus.Fields{
		"vendorId":  request.VendorId,
		"messageId": request.MessageId,
	}).Info("data transfer")

	handler.notify("data.transfer", chargePointId, request, nil)
	return core.NewDataTransferConfirmation(core.DataTransferStatusAccepted), nil
}

// Utility functions

func logDefault(chargePointId string, feature string) *logrus.Entry {
	return log.WithFields(logrus.Fields{"client": chargePointId, "message": feature})
}
