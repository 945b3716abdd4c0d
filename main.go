package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	ocpp16 "github.com/lorenzodonini/ocpp-go/ocpp1.6"
	"github.com/lorenzodonini/ocpp-go/ocppj"
	"github.com/lorenzodonini/ocpp-go/ws"

	"twc_bridge/actions"
	"twc_bridge/device"
	natsnotifier "twc_bridge/notifier/nats"
	"twc_bridge/session"
	"twc_bridge/simulator"
)

const (
	defaultListenPort        = 9000
	defaultVitalsPort        = 8080
	defaultHeartbeatInterval = 300

	envVarServerPort           = "OCPP_LISTEN_PORT"
	envVarVitalsPort           = "VITALS_LISTEN_PORT"
	envVarTls                  = "TLS_ENABLED"
	envVarCaCertificate        = "CA_CERTIFICATE_PATH"
	envVarServerCertificate    = "SERVER_CERTIFICATE_PATH"
	envVarServerCertificateKey = "SERVER_CERTIFICATE_KEY_PATH"
	envVarNatsUrl              = "NATS_URL"
	envVarSimulator            = "SIMULATOR_ENABLED"
	envVarVerbose              = "VERBOSE"

	simulatorChargePointId = "TWC3_SIM"
	simulatorIdTag         = "TEST"
)

const (
	RESET                    = "reset"
	CHANGE_AVAILABILITY      = "change.availability"
	REMOTE_START_TRANSACTION = "remote.start.transaction"
	REMOTE_STOP_TRANSACTION  = "remote.stop.transaction"
	UNLOCK_CONNECTOR         = "unlock.connector"
)

var log *logrus.Logger

func setupCentralSystem() ocpp16.CentralSystem {
	return ocpp16.NewCentralSystem(nil, nil)
}

func setupTlsCentralSystem() ocpp16.CentralSystem {
	var certPool *x509.CertPool
	// Load CA certificates
	caCertificate, ok := os.LookupEnv(envVarCaCertificate)
	if !ok {
		log.Infof("no %v found, using system CA pool", envVarCaCertificate)
		systemPool, err := x509.SystemCertPool()
		if err != nil {
			log.Fatalf("couldn't get system CA pool: %v", err)
		}
		certPool = systemPool
	} else {
		certPool = x509.NewCertPool()
		data, err := os.ReadFile(caCertificate)
		if err != nil {
			log.Fatalf("couldn't read CA certificate from %v: %v", caCertificate, err)
		}
		ok = certPool.AppendCertsFromPEM(data)
		if !ok {
			log.Fatalf("couldn't read CA certificate from %v", caCertificate)
		}
	}
	certificate, ok := os.LookupEnv(envVarServerCertificate)
	if !ok {
		log.Fatalf("no required %v found", envVarServerCertificate)
	}
	key, ok := os.LookupEnv(envVarServerCertificateKey)
	if !ok {
		log.Fatalf("no required %v found", envVarServerCertificateKey)
	}
	server := ws.NewTLSServer(certificate, key, &tls.Config{
		ClientAuth: tls.RequireAndVerifyClientCert,
		ClientCAs:  certPool,
	})
	return ocpp16.NewCentralSystem(nil, server)
}

func envPort(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	port, err := strconv.Atoi(v)
	if err != nil || port < 1 || port > 65535 {
		log.Warnf("ignoring invalid %v=%v", key, v)
		return fallback
	}
	return port
}

func main() {
	var centralSystem ocpp16.CentralSystem
	if os.Getenv(envVarTls) == "true" {
		centralSystem = setupTlsCentralSystem()
	} else {
		centralSystem = setupCentralSystem()
	}

	wallConnector := device.NewWallConnector(log)
	ledger := session.NewLedger(log)
	handler := NewBridgeHandler(wallConnector, ledger)
	centralSystem.SetCoreHandler(handler)

	ocppj.SetLogger(log)
	// The simulator and real TWC-flashed charge points both emit samples the
	// strict 1.6 schema rejects (e.g. frequency without a unit); the bridge
	// normalizes instead.
	ocppj.SetMessageValidation(false)

	// Exactly one logical charge point per bridge. The id of the connected
	// one is kept for routing remote commands.
	var connectedMu sync.Mutex
	var connectedId string

	centralSystem.SetNewChargePointHandler(func(chargePoint ocpp16.ChargePointConnection) {
		connectedMu.Lock()
		connectedId = chargePoint.ID()
		connectedMu.Unlock()
		log.WithField("client", chargePoint.ID()).Info("charge point connected")
		wallConnector.SetLinkConnected(true)
	})

	// ocpp-go guarantees this fires on both clean and failed exits of the
	// connection's message loop, so a dropped link always forces the
	// snapshot to unknown.
	centralSystem.SetChargePointDisconnectedHandler(func(chargePoint ocpp16.ChargePointConnection) {
		connectedMu.Lock()
		if connectedId == chargePoint.ID() {
			connectedId = ""
		}
		connectedMu.Unlock()
		log.WithField("client", chargePoint.ID()).Info("charge point disconnected")
		wallConnector.SetLinkConnected(false)
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if natsUrl, ok := os.LookupEnv(envVarNatsUrl); ok {
		notifier := natsnotifier.New(natsUrl, func() string {
			connectedMu.Lock()
			defer connectedMu.Unlock()
			return connectedId
		})
		notifier.SetChannel(handler.NotificationChannel())
		notifier.SetTimeout(30 * time.Second)

		coreProfileActions := actions.InitializeCoreProfileActions(centralSystem)
		notifier.AddHandler(RESET, coreProfileActions.Reset)
		notifier.AddHandler(CHANGE_AVAILABILITY, coreProfileActions.ChangeAvailability)
		notifier.AddHandler(REMOTE_START_TRANSACTION, coreProfileActions.RemoteStartTransaction)
		notifier.AddHandler(REMOTE_STOP_TRANSACTION, coreProfileActions.RemoteStopTransaction)
		notifier.AddHandler(UNLOCK_CONNECTOR, coreProfileActions.UnlockConnector)

		if err := notifier.Start(); err != nil {
			log.Fatalf("couldn't connect to NATS at %v: %v", natsUrl, err)
		}
		defer notifier.Stop()
		log.Infof("nats notifier connected to %v", natsUrl)
	}

	vitalsPort := envPort(envVarVitalsPort, defaultVitalsPort)
	vitalsServer := NewVitalsServer(wallConnector)
	go func() {
		log.Infof("vitals endpoint on http://0.0.0.0:%v%v", vitalsPort, vitalsPath)
		if err := vitalsServer.ListenAndServe(vitalsPort); err != nil && err != http.ErrServerClosed {
			log.Fatalf("vitals server: %v", err)
		}
	}()

	listenPort := envPort(envVarServerPort, defaultListenPort)

	if os.Getenv(envVarSimulator) == "true" {
		sim := simulator.New(simulatorChargePointId, simulatorIdTag, time.Now().UnixNano(), log)
		go func() {
			// Give the central system a moment to bind its listener.
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			endpoint := "ws://localhost:" + strconv.Itoa(listenPort)
			if err := sim.Run(ctx, endpoint); err != nil {
				log.WithError(err).Error("simulator stopped")
			}
		}()
	}

	go func() {
		<-ctx.Done()
		log.Info("shutdown signal received")
		centralSystem.Stop()
	}()

	// Run central system
	log.Infof("starting central system on port %v", listenPort)
	centralSystem.Start(listenPort, "/{ws}")

	log.Info("stopped central system")
}

func init() {
	log = logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	// Set this to DebugLevel if you want to retrieve verbose logs from the ocppj and websocket layers
	log.SetLevel(logrus.InfoLevel)
	if os.Getenv(envVarVerbose) == "true" {
		log.SetLevel(logrus.DebugLevel)
	}
}
