package device

// EVSEState is the operational state reported in the vitals payload. The
// numeric values are part of the TWC local API and must not be reordered.
type EVSEState int

const (
	StateUnknown EVSEState = iota
	StateDisabled
	StateReady
	StateCharging
	StateError
)

func (s EVSEState) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateReady:
		return "ready"
	case StateCharging:
		return "charging"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
