package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"twc_bridge/device"
)

const vitalsPath = "/api/1/vitals"

// VitalsServer is the poll boundary: it serves the current wall connector
// snapshot in the TWC3 local-API shape. Reads never mutate state and never
// block the OCPP event handlers beyond the snapshot's read lock.
type VitalsServer struct {
	device *device.WallConnector
}

func NewVitalsServer(wc *device.WallConnector) *VitalsServer {
	return &VitalsServer{device: wc}
}

func (s *VitalsServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(vitalsPath, s.handleVitals)
	return mux
}

func (s *VitalsServer) ListenAndServe(port int) error {
	return http.ListenAndServe(fmt.Sprintf(":%d", port), s.Handler())
}

func (s *VitalsServer) handleVitals(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if !s.device.LinkConnected() {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{
			"error":  "OCPP client not connected",
			"state":  device.StateUnknown.String(),
			"status": "offline",
		})
		return
	}

	json.NewEncoder(w).Encode(s.device.Snapshot())
}
