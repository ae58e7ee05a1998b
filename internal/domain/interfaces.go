package domain

import (
	"context"

	"broadcast-console/internal/events"
)

// Transport drives the external streaming-production application over
// its RPC socket.
type Transport interface {
	SetTarget(address, password string)
	Connect(ctx context.Context) bool
	Disconnect()
	Connected() bool
	Phase() ConnPhase

	SceneList(ctx context.Context) (*SceneSet, error)
	SetCurrentScene(ctx context.Context, name string) error
	StartStreaming(ctx context.Context) error
	StopStreaming(ctx context.Context) error
	StreamingStatus(ctx context.Context) (*StreamingStatus, error)
	SetTextProperties(ctx context.Context, source, text string) error
	CreateTextSource(ctx context.Context, scene, source, text string) error

	On(event string, handler events.Handler) events.SubscriptionID
	Off(id events.SubscriptionID)
}

// StreamConsole is the facade surface the reconciliation service drives.
type StreamConsole interface {
	Configure(address, password string)
	Connect(ctx context.Context) bool
	Disconnect()
	IsConnected() bool
	IsStreaming() bool
	StartStreaming(ctx context.Context) bool
	StopStreaming(ctx context.Context) bool
}

// Settings persistence
type SettingsStore interface {
	Load(ctx context.Context) (*ConnectionSettings, error)
	Save(ctx context.Context, settings *ConnectionSettings) error
}

// Operator auth session, read-only
type SessionStore interface {
	Token(ctx context.Context) (string, error)
	IsLoggedIn(ctx context.Context) (bool, error)
}

// Backend broadcast record
type BroadcastAPI interface {
	FetchBroadcastState(ctx context.Context) (*BroadcastRecord, error)
}

// Append-only broadcast session history
type SessionLog interface {
	AppendEvent(ctx context.Context, event *SessionEvent) error
	RecentEvents(ctx context.Context, limit int) ([]*SessionEvent, error)
}
