package events

import (
	"time"

	"github.com/google/uuid"
)

// Event types published by the core.
const (
	// TypeReading is published after a telemetry message is processed.
	TypeReading = "reading"

	// TypeDevice is published when a device appears, re-announces its
	// capabilities, or changes activity state.
	TypeDevice = "device"

	// TypeError is published for non-fatal ingestion failures.
	TypeError = "error"
)

// Error codes carried by TypeError events.
const (
	CodeMissingDeviceID     = "missing_device_id"
	CodeEmptySensorPayload  = "empty_sensor_payload"
	CodeSensorPersistFailed = "sensor_persist_failed"
	CodeRelayPersistFailed  = "relay_persist_failed"
)

// Event is a single broadcast envelope.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// ReadingPayload carries the values extracted from one telemetry message.
// Sensors is set for sensor data, Actuators for relay state updates.
type ReadingPayload struct {
	DeviceID  string            `json:"device_id"`
	Timestamp time.Time         `json:"timestamp"`
	Sensors   map[string]any    `json:"sensors,omitempty"`
	Actuators map[string]string `json:"actuators,omitempty"`
}

// DevicePayload describes a device's current registration state.
type DevicePayload struct {
	DeviceID  string    `json:"device_id"`
	IsActive  bool      `json:"is_active"`
	LastSeen  time.Time `json:"last_seen"`
	Sensors   []string  `json:"sensors"`
	Actuators []string  `json:"actuators"`
}

// ErrorPayload describes a non-fatal processing failure.
type ErrorPayload struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// New creates an event with a fresh ID and the current time.
func New(eventType string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}
