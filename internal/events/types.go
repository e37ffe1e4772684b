package events

import "time"

// Event type constants for kelindar/event.
const (
	TypeModeChanged uint32 = iota + 1
	TypeFaultChanged
	TypeButtonPressed
	TypeClimateSampled
	TypeJournalWritten
	TypeCommandReceived
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ModeChangedEvent is published for every real mode transition.
type ModeChangedEvent struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for ModeChangedEvent.
func (e ModeChangedEvent) Type() uint32 { return TypeModeChanged }

// FaultChangedEvent is published when a fault flag flips.
type FaultChangedEvent struct {
	Fault     string    `json:"fault"`
	Active    bool      `json:"active"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for FaultChangedEvent.
func (e FaultChangedEvent) Type() uint32 { return TypeFaultChanged }

// ButtonPressedEvent is published for every debounced press, dropped or not.
type ButtonPressedEvent struct {
	Button    string    `json:"button"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for ButtonPressedEvent.
func (e ButtonPressedEvent) Type() uint32 { return TypeButtonPressed }

// ClimateSampledEvent is published after each climate poll.
type ClimateSampledEvent struct {
	TemperatureC float64   `json:"temperature_c"`
	HumidityPct  float64   `json:"humidity_pct"`
	PressureHPa  float64   `json:"pressure_hpa"`
	Err          string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Type returns the event type identifier for ClimateSampledEvent.
func (e ClimateSampledEvent) Type() uint32 { return TypeClimateSampled }

// JournalWrittenEvent is published after each journal write attempt.
type JournalWrittenEvent struct {
	Rows      int       `json:"rows"`
	Full      bool      `json:"full"`
	Err       string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for JournalWrittenEvent.
func (e JournalWrittenEvent) Type() uint32 { return TypeJournalWritten }

// CommandReceivedEvent is published when an external command reaches the loop.
type CommandReceivedEvent struct {
	Source    string    `json:"source"`
	Command   string    `json:"command"`
	Accepted  bool      `json:"accepted"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for CommandReceivedEvent.
func (e CommandReceivedEvent) Type() uint32 { return TypeCommandReceived }
