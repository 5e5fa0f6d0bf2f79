// Package mqtt mirrors LED toggles and lifecycle events to an MQTT broker,
// with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/ledpanel/internal/logic"
)

// Topic is the MQTT topic for toggle events.
const Topic = "home/ledpanel/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "home/ledpanel/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a toggle event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.ToggleEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (startup, shutdown, offline).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "OFFLINE"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// Payload represents the toggle message payload.
type Payload struct {
	Toggle TogglePayload `json:"toggle"`
}

// TogglePayload contains the toggle details.
type TogglePayload struct {
	Timestamp string `json:"timestamp"`
	Chip      int    `json:"chip"`
	Pin       int    `json:"pin"`
	State     string `json:"state"`
}

// FormatPayload creates the JSON payload for a toggle event.
func FormatPayload(event logic.ToggleEvent) ([]byte, error) {
	state := "OFF"
	if event.State {
		state = "ON"
	}
	return json.Marshal(Payload{
		Toggle: TogglePayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Chip:      event.Chip,
			Pin:       event.Pin,
			State:     state,
		},
	})
}

// SystemPayload is used for simple events (LWT) that don't carry a full
// status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	inner := SystemPayloadInner{
		Event:  event.Event,
		Reason: event.Reason,
	}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{System: inner})
}
