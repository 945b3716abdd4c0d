package simulator

import (
	"fmt"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
)

// Core-profile requests arriving from the central system. Any follow-up call
// back to the central system runs on its own goroutine: callbacks execute on
// the client's message pump and must not issue blocking calls themselves.

func (s *SimulatedChargePoint) OnChangeAvailability(request *core.ChangeAvailabilityRequest) (*core.ChangeAvailabilityConfirmation, error) {
	operative := request.Type == core.AvailabilityTypeOperative

	s.mu.Lock()
	s.enabled = operative
	wasCharging := s.charging
	s.mu.Unlock()

	s.log.WithField("operative", operative).Info("availability changed")
	if !operative && wasCharging {
		go s.stopSession(core.ReasonOther, core.ChargePointStatusSuspendedEVSE)
	}
	return core.NewChangeAvailabilityConfirmation(core.AvailabilityStatusAccepted), nil
}

func (s *SimulatedChargePoint) OnChangeConfiguration(request *core.ChangeConfigurationRequest) (*core.ChangeConfigurationConfirmation, error) {
	s.log.WithField("key", request.Key).Info("change configuration ignored")
	return core.NewChangeConfigurationConfirmation(core.ConfigurationStatusNotSupported), nil
}

func (s *SimulatedChargePoint) OnClearCache(request *core.ClearCacheRequest) (*core.ClearCacheConfirmation, error) {
	return core.NewClearCacheConfirmation(core.ClearCacheStatusAccepted), nil
}

func (s *SimulatedChargePoint) OnDataTransfer(request *core.DataTransferRequest) (*core.DataTransferConfirmation, error) {
	s.log.WithField("vendorId", request.VendorId).Info("data transfer accepted")
	return core.NewDataTransferConfirmation(core.DataTransferStatusAccepted), nil
}

func (s *SimulatedChargePoint) OnGetConfiguration(request *core.GetConfigurationRequest) (*core.GetConfigurationConfirmation, error) {
	heartbeat := fmt.Sprintf("%d", int(heartbeatInterval.Seconds()))
	connectors := fmt.Sprintf("%d", 1)
	keys := []core.ConfigurationKey{
		{Key: "HeartbeatInterval", Readonly: false, Value: &heartbeat},
		{Key: "NumberOfConnectors", Readonly: true, Value: &connectors},
	}
	return core.NewGetConfigurationConfirmation(keys), nil
}

func (s *SimulatedChargePoint) OnRemoteStartTransaction(request *core.RemoteStartTransactionRequest) (*core.RemoteStartTransactionConfirmation, error) {
	s.mu.Lock()
	busy := s.charging
	enabled := s.enabled
	s.mu.Unlock()

	if busy || !enabled {
		return core.NewRemoteStartTransactionConfirmation(types.RemoteStartStopStatusRejected), nil
	}
	go s.startSession()
	return core.NewRemoteStartTransactionConfirmation(types.RemoteStartStopStatusAccepted), nil
}

func (s *SimulatedChargePoint) OnRemoteStopTransaction(request *core.RemoteStopTransactionRequest) (*core.RemoteStopTransactionConfirmation, error) {
	s.mu.Lock()
	match := s.transactionId != 0 && s.transactionId == request.TransactionId
	s.mu.Unlock()

	if !match {
		return core.NewRemoteStopTransactionConfirmation(types.RemoteStartStopStatusRejected), nil
	}
	go s.stopSession(core.ReasonRemote, core.ChargePointStatusSuspendedEV)
	return core.NewRemoteStopTransactionConfirmation(types.RemoteStartStopStatusAccepted), nil
}

func (s *SimulatedChargePoint) OnReset(request *core.ResetRequest) (*core.ResetConfirmation, error) {
	s.log.WithField("type", request.Type).Info("reset requested")
	go func() {
		s.stopSession(core.ReasonReboot, core.ChargePointStatusAvailable)
		s.mu.Lock()
		s.vehicleConnected = false
		s.mu.Unlock()
	}()
	return core.NewResetConfirmation(core.ResetStatusAccepted), nil
}

func (s *SimulatedChargePoint) OnUnlockConnector(request *core.UnlockConnectorRequest) (*core.UnlockConnectorConfirmation, error) {
	go func() {
		s.stopSession(core.ReasonUnlockCommand, core.ChargePointStatusAvailable)
		s.mu.Lock()
		s.vehicleConnected = false
		s.mu.Unlock()
	}()
	return core.NewUnlockConnectorConfirmation(core.UnlockStatusUnlocked), nil
}
