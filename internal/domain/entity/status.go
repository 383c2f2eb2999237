package entity

// Status is a connectivity transition reported to the presentation layer.
type Status string

const (
	StatusConnecting      Status = "connecting"
	StatusConnected       Status = "connected"
	StatusConnectionError Status = "connectionError"
	StatusReconnecting    Status = "reconnecting"
	StatusReconnect       Status = "reconnect"
	StatusDisconnected    Status = "disconnected"
	// StatusError reports a failed command, not a broker transition.
	StatusError Status = "error"
)

// Healthy reports whether the broker is usable after this transition.
func (s Status) Healthy() bool {
	return s == StatusConnected || s == StatusReconnect
}
