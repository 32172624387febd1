package models

import (
	"encoding/json"
	"time"
)

// EventType represents the type of a live WebSocket event
type EventType string

const (
	EventTick     EventType = "tick"
	EventReadings EventType = "leituras"
	EventCleared  EventType = "limpeza"
	EventAck      EventType = "ack"
	EventError    EventType = "error"
)

// Event is the envelope for all WebSocket communications
type Event struct {
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent creates a new event with the given type and payload
func NewEvent(eventType EventType, payload interface{}) (*Event, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:      eventType,
		Payload:   payloadJSON,
		Timestamp: time.Now(),
	}, nil
}

// UnmarshalPayload unmarshals the event payload into the provided struct
func (e *Event) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// TickPayload is the payload for EventTick and EventReadings
type TickPayload struct {
	Leituras  int `json:"leituras"`
	Comandos  int `json:"comandos"`
	Pendentes int `json:"pendentes"`
}

// ClearedPayload is the payload for EventCleared
type ClearedPayload struct {
	Collection string `json:"colecao"`
}

// ErrorPayload is the payload for EventError
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMessage is the body of every non-list REST response.
// Successes fill Message, failures fill Error.
type APIMessage struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TickResult is the body of POST /api/simulacao/tick.
type TickResult struct {
	Message   string    `json:"message,omitempty"`
	Leituras  []Reading `json:"leituras"`
	Comandos  []Command `json:"comandos"`
	Pendentes int       `json:"pendentes"`
}

// SyncResult is the body of POST /api/sync-pendentes.
type SyncResult struct {
	Message       string `json:"message,omitempty"`
	Sincronizadas int    `json:"sincronizadas"`
	Pendentes     int    `json:"pendentes"`
}
