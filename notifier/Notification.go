package notifier

// Notification is one bridge event fanned out to subscribers, keyed by a
// dotted topic (boot.notification, status.notification, meter.values, ...).
type Notification struct {
	Topic string
	Data  map[string]interface{}
}
