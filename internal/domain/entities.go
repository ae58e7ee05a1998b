package domain

import (
	"time"
)

// ConnPhase tracks the streaming-tool connection lifecycle. Any socket
// error or explicit close collapses the phase back to Disconnected.
type ConnPhase int

const (
	Disconnected ConnPhase = iota
	Connecting
	Authenticating
	Connected
)

func (p ConnPhase) String() string {
	switch p {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Authenticating:
		return "authenticating"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

type CarInfo struct {
	Make         string  `json:"make"`
	Model        string  `json:"model"`
	Year         int     `json:"year"`
	Color        string  `json:"color"`
	CurrentPrice float64 `json:"current_price"`
}

type Bidder struct {
	Name     string    `json:"name"`
	Amount   float64   `json:"amount"`
	PlacedAt time.Time `json:"placed_at"`
}

// AuctionState drives the countdown overlay. EndTime is authoritative;
// RemainingSeconds is derived from it on every tick while Active.
type AuctionState struct {
	Car              CarInfo
	RemainingSeconds int
	EndTime          time.Time
	HighestBidder    *Bidder
	MinIncrement     float64
	Active           bool
}

// Venue is a showroom bound to a stream key; streaming operations
// require one to be bound first.
type Venue struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StreamKey string `json:"stream_key"`
}

// SceneSet is replaced wholesale on each refresh, never diffed.
type SceneSet struct {
	Current string
	Names   []string
}

type StreamingStatus struct {
	Streaming bool
	Recording bool
}

type AuctionSnapshot struct {
	ID           string    `json:"id"`
	CurrentPrice float64   `json:"current_price"`
	EndsAt       time.Time `json:"ends_at"`
}

// BroadcastRecord is the backend's authoritative view of the broadcast.
// It is refreshed by polling and cached read-through, never mutated
// locally.
type BroadcastRecord struct {
	IsLive           bool
	VideoID          string
	CurrentCar       *CarInfo
	CurrentAuction   *AuctionSnapshot
	ViewersCount     int
	BiddersCount     int
	ActiveBroadcasts []string
}

// ConnectionSettings is persisted across sessions and overwritten on
// every successful connect.
type ConnectionSettings struct {
	Address    string `json:"address"`
	Port       int    `json:"port"`
	Credential string `json:"credential"`
}

type SessionEvent struct {
	ID         string
	Type       SessionEventType
	Detail     string
	OccurredAt time.Time
}

type SessionEventType string

const (
	SessionConnected     SessionEventType = "connected"
	SessionDisconnected  SessionEventType = "disconnected"
	SessionStreamStarted SessionEventType = "stream_started"
	SessionStreamStopped SessionEventType = "stream_stopped"
	SessionDivergence    SessionEventType = "divergence"
)

// DivergenceNotice is emitted when the local streaming flag and the
// backend record's live flag disagree.
type DivergenceNotice struct {
	LocalStreaming bool
	RemoteLive     bool
	VideoID        string
	DetectedAt     time.Time
}
