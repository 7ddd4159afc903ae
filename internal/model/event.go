package model

import (
	"encoding/json"
	"time"
)

// Telemetry event types accepted by the attempt events endpoint.
// EventFullscreenExit is part of the wire contract but has no terminal
// trigger; it is listed so payload consumers can decode every event the
// server stores.
const (
	EventTabBlur        = "tab_blur"
	EventReconnect      = "reconnect"
	EventFullscreenExit = "fullscreen_exit"
	EventRapidRefresh   = "rapid_refresh"
)

// AttemptEventRequest is the payload for POST /attempts/{id}/events.
type AttemptEventRequest struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	ClientTS  time.Time       `json:"client_ts"`
}

// AttemptEvent is the acknowledged event as stored by the server.
type AttemptEvent struct {
	ID        int64           `json:"id"`
	AttemptID int64           `json:"attempt_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	ClientTS  *time.Time      `json:"client_ts,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
