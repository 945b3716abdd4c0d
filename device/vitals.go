package device

// Vitals is the poll-visible snapshot of the wall connector. Field names and
// JSON keys follow the Tesla Wall Connector Gen3 local API (/api/1/vitals) so
// existing consumers of that endpoint work unchanged.
type Vitals struct {
	ContactorClosed   bool     `json:"contactor_closed"`
	VehicleConnected  bool     `json:"vehicle_connected"`
	SessionS          int64    `json:"session_s"`
	GridV             float64  `json:"grid_v"`
	GridHz            float64  `json:"grid_hz"`
	VehicleCurrentA   float64  `json:"vehicle_current_a"`
	CurrentAA         float64  `json:"currentA_a"`
	CurrentBA         float64  `json:"currentB_a"`
	CurrentCA         float64  `json:"currentC_a"`
	CurrentNA         float64  `json:"currentN_a"`
	VoltageAV         float64  `json:"voltageA_v"`
	VoltageBV         float64  `json:"voltageB_v"`
	VoltageCV         float64  `json:"voltageC_v"`
	RelayCoilV        float64  `json:"relay_coil_v"`
	PcbaTempC         float64  `json:"pcba_temp_c"`
	HandleTempC       float64  `json:"handle_temp_c"`
	McuTempC          float64  `json:"mcu_temp_c"`
	UptimeS           int64    `json:"uptime_s"`
	InputThermopileUV float64  `json:"input_thermopile_uv"`
	ProxV             float64  `json:"prox_v"`
	PilotHighV        float64  `json:"pilot_high_v"`
	PilotLowV         float64  `json:"pilot_low_v"`
	SessionEnergyWh   float64  `json:"session_energy_wh"`
	TotalEnergyWh     float64  `json:"total_energy_wh"`
	ConfigStatus      int      `json:"config_status"`
	EvseState         int      `json:"evse_state"`
	CurrentAlerts     []string `json:"current_alerts"`
}
