package domain

// Event names published through the emitter. Transport-level events use
// the wire protocol's vocabulary; service-level events use snake_case.
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventError        = "error"
	EventAuthError    = "auth-error"

	EventStreamStarted       = "stream_started"
	EventStreamStopped       = "stream_stopped"
	EventBroadcastDivergence = "broadcast_divergence"
)
