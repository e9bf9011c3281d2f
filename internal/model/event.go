package model

import "time"

// Rooms of the local event stream.
const (
	RoomNotifications = "notifications"
	RoomToasts        = "toasts"
	RoomConnection    = "connection"
)

// Event is a frame published to local subscribers of the event stream.
type Event struct {
	ID        string    `json:"id"`
	Room      string    `json:"room"`
	Kind      string    `json:"kind"`
	Data      any       `json:"data"`
	CreatedAt time.Time `json:"createdAt"`
}

type Toast struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Type      string    `json:"type"`
	Level     string    `json:"level"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ConnectionState string

const (
	StateIdle               ConnectionState = "idle"
	StateConnecting         ConnectionState = "connecting"
	StateOpen               ConnectionState = "open"
	StateClosed             ConnectionState = "closed"
	StateReconnectScheduled ConnectionState = "reconnect_scheduled"
	StateDisconnected       ConnectionState = "disconnected"
	StateExhausted          ConnectionState = "exhausted"
)

type ConnectionStatus struct {
	State             ConnectionState `json:"state"`
	ReconnectAttempts int             `json:"reconnectAttempts"`
}
