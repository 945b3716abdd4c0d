package actions

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	ocpp16 "github.com/lorenzodonini/ocpp-go/ocpp1.6"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/sirupsen/logrus"

	"twc_bridge/common"
)

func logDefault(chargePointId string, feature string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"client": chargePointId, "message": feature})
}

// CoreProfileActions issues core-profile calls to the connected charge point
// on behalf of remote commands. Each action answers on the response channel
// exactly once; transport failures are reported as command errors, never
// retried here.
type CoreProfileActions struct {
	centralSystem ocpp16.CentralSystem
}

func InitializeCoreProfileActions(centralSystem ocpp16.CentralSystem) CoreProfileActions {
	return CoreProfileActions{
		centralSystem: centralSystem,
	}
}

func sendError(responseChannel chan common.Response, code, message string) {
	responseChannel <- common.Response{
		Err: &common.Error{Code: code, Message: message},
	}
}

func sendNotDelivered(responseChannel chan common.Response, chargePointId string) {
	sendError(responseChannel, "command.message.not.send",
		fmt.Sprintf("could not deliver the command to charge point %v", chargePointId))
}

func (a *CoreProfileActions) Reset(chargePointId string, payload []byte, responseChannel chan common.Response) {
	var response common.Response

	resetType := core.ResetTypeSoft
	var data map[string]interface{} = make(map[string]interface{})
	json.Unmarshal(payload, &data)
	if fmt.Sprintf("%v", data["type"]) == "Hard" {
		resetType = core.ResetTypeHard
	}

	cb := func(confirmation *core.ResetConfirmation, err error) {
		if err != nil {
			logDefault(chargePointId, core.ResetFeatureName).Errorf("error on request: %v", err)
		} else {
			response.Payload = map[string]interface{}{"status": confirmation.Status}
		}
		responseChannel <- response
	}

	if e := a.centralSystem.Reset(chargePointId, cb, resetType); e != nil {
		sendNotDelivered(responseChannel, chargePointId)
	}
}

func (a *CoreProfileActions) ChangeAvailability(chargePointId string, payload []byte, responseChannel chan common.Response) {
	var response common.Response

	request := &core.ChangeAvailabilityRequest{}
	json.Unmarshal(payload, request)

	var Validator = validator.New()
	if err := Validator.Struct(request); err != nil {
		sendError(responseChannel, "command.change.availability.payload.not.valid",
			"invalid fields for changing the charge point availability")
		return
	}

	cb := func(confirmation *core.ChangeAvailabilityConfirmation, err error) {
		if err != nil {
			logDefault(chargePointId, core.ChangeAvailabilityFeatureName).Errorf("error on request: %v", err)
		} else {
			response.Payload = map[string]interface{}{"status": confirmation.Status}
		}
		responseChannel <- response
	}

	if e := a.centralSystem.ChangeAvailability(chargePointId, cb, request.ConnectorId, request.Type); e != nil {
		sendNotDelivered(responseChannel, chargePointId)
	}
}

func (a *CoreProfileActions) RemoteStartTransaction(chargePointId string, payload []byte, responseChannel chan common.Response) {
	var response common.Response
	var data map[string]interface{} = make(map[string]interface{})

	if err := json.Unmarshal(payload, &data); err != nil {
		sendError(responseChannel, "command.remote.start.transaction",
			"invalid payload for starting a remote transaction")
		return
	}

	if _, ok := data["idTag"]; !ok {
		sendError(responseChannel, "command.remote.start.transaction", "idTag is required")
		return
	}
	idTag := fmt.Sprint(data["idTag"])

	var connectorId *int
	if _, ok := data["connectorId"]; ok {
		parsed, errInt := strconv.ParseInt(fmt.Sprint(data["connectorId"]), 10, 32)
		if errInt != nil || parsed < 1 {
			sendError(responseChannel, "command.remote.start.transaction",
				"connectorId must be a positive integer")
			return
		}
		ci := int(parsed)
		connectorId = &ci
	}

	cb := func(confirmation *core.RemoteStartTransactionConfirmation, err error) {
		if err != nil {
			logDefault(chargePointId, core.RemoteStartTransactionFeatureName).Errorf("error on request: %v", err)
		} else {
			response.Payload = map[string]interface{}{"status": confirmation.Status}
		}
		responseChannel <- response
	}

	e := a.centralSystem.RemoteStartTransaction(chargePointId, cb, idTag, func(req *core.RemoteStartTransactionRequest) {
		req.ConnectorId = connectorId
	})
	if e != nil {
		sendNotDelivered(responseChannel, chargePointId)
	}
}

func (a *CoreProfileActions) RemoteStopTransaction(chargePointId string, payload []byte, responseChannel chan common.Response) {
	var response common.Response
	var data map[string]interface{} = make(map[string]interface{})
	json.Unmarshal(payload, &data)

	transactionId, errInt := strconv.ParseInt(fmt.Sprint(data["transactionId"]), 10, 32)
	if errInt != nil {
		sendError(responseChannel, "command.remote.stop.transaction", "transactionId must be an integer")
		return
	}

	cb := func(confirmation *core.RemoteStopTransactionConfirmation, err error) {
		if err != nil {
			logDefault(chargePointId, core.RemoteStopTransactionFeatureName).Errorf("error on request: %v", err)
		} else {
			response.Payload = map[string]interface{}{"status": confirmation.Status}
		}
		responseChannel <- response
	}

	if e := a.centralSystem.RemoteStopTransaction(chargePointId, cb, int(transactionId)); e != nil {
		sendNotDelivered(responseChannel, chargePointId)
	}
}

func (a *CoreProfileActions) UnlockConnector(chargePointId string, payload []byte, responseChannel chan common.Response) {
	var response common.Response
	var data map[string]interface{} = make(map[string]interface{})
	json.Unmarshal(payload, &data)

	connectorId := 1
	if _, ok := data["connectorId"]; ok {
		parsed, errInt := strconv.ParseInt(fmt.Sprint(data["connectorId"]), 10, 32)
		if errInt != nil || parsed < 1 {
			sendError(responseChannel, "command.unlock.connector", "connectorId must be a positive integer")
			return
		}
		connectorId = int(parsed)
	}

	cb := func(confirmation *core.UnlockConnectorConfirmation, err error) {
		if err != nil {
			logDefault(chargePointId, core.UnlockConnectorFeatureName).Errorf("error on request: %v", err)
		} else {
			response.Payload = map[string]interface{}{"status": confirmation.Status}
		}
		responseChannel <- response
	}

	if e := a.centralSystem.UnlockConnector(chargePointId, cb, connectorId); e != nil {
		sendNotDelivered(responseChannel, chargePointId)
	}
}
