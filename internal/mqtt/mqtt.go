// Package mqtt provides MQTT publishing and command intake with abstraction
// for testing.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/env-station/internal/mode"
	"github.com/sweeney/env-station/internal/sensor"
	"github.com/sweeney/env-station/internal/status"
)

// Topic is the MQTT topic for mode transitions and fault changes.
const Topic = "environment/station/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "environment/station/system"

// TopicCommand carries forced mode changes, e.g. {"mode":"maintenance"}.
const TopicCommand = "environment/station/command"

// Peripheral boards publish their readings here.
const (
	TopicLight = "environment/station/sensors/light"
	TopicGPS   = "environment/station/sensors/gps"
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishTransition sends a mode change to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishTransition(event TransitionEvent) error

	// PublishFault sends a fault raise or clear to the broker.
	PublishFault(event FaultEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// TransitionEvent is a mode change as published.
type TransitionEvent struct {
	Timestamp time.Time
	From      mode.Mode
	To        mode.Mode
	Reason    string
	Indicator string
}

// FaultEvent is a fault flag flip as published.
type FaultEvent struct {
	Timestamp time.Time
	Fault     status.Error
	Active    bool
	Indicator string
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Event names carried in StationPayload.
const (
	EventModeChanged  = "MODE_CHANGED"
	EventFaultRaised  = "FAULT_RAISED"
	EventFaultCleared = "FAULT_CLEARED"
)

// Payload represents the MQTT message payload structure.
type Payload struct {
	Station StationPayload `json:"station"`
}

// StationPayload contains the event details.
type StationPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Fault     string `json:"fault,omitempty"`
	Indicator string `json:"indicator"`
}

// FormatTransitionPayload creates the JSON payload for a mode change.
func FormatTransitionPayload(event TransitionEvent) ([]byte, error) {
	return json.Marshal(Payload{
		Station: StationPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     EventModeChanged,
			From:      event.From.String(),
			To:        event.To.String(),
			Reason:    event.Reason,
			Indicator: event.Indicator,
		},
	})
}

// FormatFaultPayload creates the JSON payload for a fault change.
func FormatFaultPayload(event FaultEvent) ([]byte, error) {
	name := EventFaultCleared
	if event.Active {
		name = EventFaultRaised
	}
	return json.Marshal(Payload{
		Station: StationPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     name,
			Fault:     event.Fault.String(),
			Indicator: event.Indicator,
		},
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// CommandPayload is the body accepted on TopicCommand and by the HTTP console.
type CommandPayload struct {
	Mode string `json:"mode"`
}

// ParseCommand decodes a forced mode change.
func ParseCommand(payload []byte) (mode.Mode, error) {
	var c CommandPayload
	if err := json.Unmarshal(payload, &c); err != nil {
		return 0, fmt.Errorf("decode command: %w", err)
	}
	m, err := mode.Parse(c.Mode)
	if err != nil {
		return 0, fmt.Errorf("command: %w", err)
	}
	return m, nil
}

// Handlers receive inbound messages. They are called from the MQTT client's
// goroutines and must not block. Nil handlers ignore their topic.
type Handlers struct {
	Command func(mode.Mode)
	Light   func(sensor.Light)
	Fix     func(sensor.Fix)
}

// Topics returns the topics with a handler set.
func (h Handlers) Topics() []string {
	var out []string
	if h.Command != nil {
		out = append(out, TopicCommand)
	}
	if h.Light != nil {
		out = append(out, TopicLight)
	}
	if h.Fix != nil {
		out = append(out, TopicGPS)
	}
	return out
}

// Dispatch decodes payload and passes it to the handler for topic.
func (h Handlers) Dispatch(topic string, payload []byte) error {
	switch topic {
	case TopicCommand:
		if h.Command == nil {
			return nil
		}
		m, err := ParseCommand(payload)
		if err != nil {
			return err
		}
		h.Command(m)
	case TopicLight:
		if h.Light == nil {
			return nil
		}
		var l sensor.Light
		if err := json.Unmarshal(payload, &l); err != nil {
			return fmt.Errorf("decode light reading: %w", err)
		}
		h.Light(l)
	case TopicGPS:
		if h.Fix == nil {
			return nil
		}
		var f sensor.Fix
		if err := json.Unmarshal(payload, &f); err != nil {
			return fmt.Errorf("decode gps fix: %w", err)
		}
		h.Fix(f)
	default:
		return fmt.Errorf("unexpected topic %q", topic)
	}
	return nil
}
