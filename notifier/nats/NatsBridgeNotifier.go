package nats

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"twc_bridge/common"
	"twc_bridge/notifier"
)

const requestSubject = "twc.request"

// Function handles one remote command: charge point id, raw payload, and the
// channel the response must be delivered on.
type Function func(string, []byte, chan common.Response)

// natsBridgeNotifier fans bridge events out as NATS publishes and serves the
// request/reply command subject. It is entirely optional: the bridge runs the
// same without it.
type natsBridgeNotifier struct {
	notification chan notifier.Notification
	connection   *nats.Conn
	handlers     map[string]Function
	chargePoint  func() string // id of the currently connected charge point, "" if none
	timeout      time.Duration
	url          string
}

func New(url string, chargePoint func() string) *natsBridgeNotifier {
	return &natsBridgeNotifier{
		handlers:    make(map[string]Function),
		chargePoint: chargePoint,
		timeout:     30 * time.Second,
		url:         url,
	}
}

func (n *natsBridgeNotifier) SetTimeout(timeout time.Duration) {
	n.timeout = timeout
}

func (n *natsBridgeNotifier) Timeout() time.Duration {
	return n.timeout
}

func (n *natsBridgeNotifier) AddHandler(action string, fn Function) {
	n.handlers[action] = fn
}

func (n *natsBridgeNotifier) SetChannel(notification chan notifier.Notification) {
	n.notification = notification
}

func (n *natsBridgeNotifier) notificationFromBridge() {
	for {
		event := <-n.notification
		bt, err := json.Marshal(event.Data)
		if err != nil {
			log.Error(err)
			continue
		}
		n.connection.Publish(event.Topic, bt)
	}
}

// requestHandler serves the request/reply pattern: one validated Command per
// message, dispatched to the registered handler, with a timeout guard so a
// charge point that never answers cannot pin the subscription.
func (n *natsBridgeNotifier) requestHandler() {

	var Validator = validator.New()

	n.connection.Subscribe(requestSubject, func(m *nats.Msg) {

		var command common.Command
		json.Unmarshal(m.Data, &command)
		log.Printf("requestHandler, %+v", string(m.Data))

		if err := Validator.Struct(&command); err != nil {
			bt, _ := json.Marshal(common.Response{
				Err: &common.Error{
					Code:    "command.format.not.valid",
					Message: "the command envelope is not valid",
				},
			})
			m.Respond(bt)
			return
		}

		fn, exists := n.handlers[command.Action]
		if !exists {
			bt, _ := json.Marshal(common.Response{
				Err: &common.Error{
					Code:    "command.action.not.found",
					Message: fmt.Sprintf("no such action %q", command.Action),
				},
			})
			m.Respond(bt)
			return
		}

		chargePointId := command.ChargePointId
		if chargePointId == "" {
			chargePointId = n.chargePoint()
		}
		if chargePointId == "" {
			bt, _ := json.Marshal(common.Response{
				Err: &common.Error{
					Code:    "charge.point.not.connected",
					Message: "no charge point is connected",
				},
			})
			m.Respond(bt)
			return
		}

		var responseChannel chan common.Response = make(chan common.Response)
		payload, _ := json.Marshal(command.Payload)

		go fn(chargePointId, payload, responseChannel)

		select {
		case response := <-responseChannel:
			bt, _ := json.Marshal(response)
			log.Printf("requestHandler => response, %v", string(bt))
			m.Respond(bt)
		case <-time.After(n.timeout):
			bt, _ := json.Marshal(common.Response{
				Err: &common.Error{
					Code:    "request.timeout",
					Message: "the charge point did not answer in time",
				},
			})
			log.Errorf("%v", string(bt))
			m.Respond(bt)
		}
	})
}

func (n *natsBridgeNotifier) Start() error {
	nc, err := nats.Connect(n.url)
	if err != nil {
		return err
	}
	n.connection = nc
	go n.notificationFromBridge()
	go n.requestHandler()
	return nil
}

func (n *natsBridgeNotifier) Stop() {
	if n.connection != nil {
		n.connection.Close()
		log.Info("nats notifier stopped")
	}
}
