package common

// Command is the envelope for remote operations received over the request
// subject. ChargePointId may be omitted: the bridge manages a single charge
// point and fills in the one that is connected.
type Command struct {
	Action        string      `json:"action" validate:"required"`
	ChargePointId string      `json:"chargePointId"`
	Payload       interface{} `json:"payload"`
}
