// Package mode holds the station's operating-mode state machine.
// Long presses move between modes; short presses are left to other consumers.
package mode

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sweeney/env-station/internal/button"
	"github.com/sweeney/env-station/internal/indicator"
)

// Mode is an operating mode of the station.
type Mode int

const (
	Standard Mode = iota
	Configuration
	Maintenance
	Economic
)

// ErrUnknownMode is returned by Parse for names that are not a mode.
var ErrUnknownMode = errors.New("unknown mode")

func (m Mode) String() string {
	switch m {
	case Standard:
		return "STANDARD"
	case Configuration:
		return "CONFIGURATION"
	case Maintenance:
		return "MAINTENANCE"
	case Economic:
		return "ECONOMIC"
	}
	return fmt.Sprintf("MODE(%d)", int(m))
}

// Parse converts a case-insensitive mode name into a Mode.
func Parse(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "STANDARD":
		return Standard, nil
	case "CONFIGURATION", "CONFIG":
		return Configuration, nil
	case "MAINTENANCE":
		return Maintenance, nil
	case "ECONOMIC", "ECO":
		return Economic, nil
	}
	return Standard, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// IndicatorState returns the LED state shown for m when no fault is active.
func (m Mode) IndicatorState() indicator.State {
	switch m {
	case Standard:
		return indicator.SolidGreen
	case Configuration:
		return indicator.SolidYellow
	case Maintenance:
		return indicator.SolidOrange
	case Economic:
		return indicator.SolidBlue
	}
	return indicator.Off
}

// Machine tracks the current mode and the mode to resume after Maintenance.
// Only one level of history is kept.
type Machine struct {
	current  Mode
	previous Mode
}

// NewMachine starts the machine in initial. The resume mode defaults to Standard.
func NewMachine(initial Mode) *Machine {
	return &Machine{current: initial, previous: Standard}
}

// Current returns the active mode.
func (m *Machine) Current() Mode {
	return m.current
}

// Previous returns the mode Maintenance will return to.
func (m *Machine) Previous() Mode {
	return m.previous
}

// IndicatorState returns the LED state for the active mode.
func (m *Machine) IndicatorState() indicator.State {
	return m.current.IndicatorState()
}

// HandleEvent applies a button event and reports whether the mode changed.
//
//	Standard    + secondary long → Economic
//	Standard    + primary long   → Maintenance
//	Economic    + primary long   → Standard
//	Maintenance + primary long   → previous mode
//
// Configuration ignores buttons; it is left only through Set.
func (m *Machine) HandleEvent(e button.Event) bool {
	if e.Kind != button.LongPress {
		return false
	}

	next := m.current
	switch m.current {
	case Standard:
		switch e.Button {
		case button.Secondary:
			next = Economic
		case button.Primary:
			next = Maintenance
		}
	case Economic:
		if e.Button == button.Primary {
			next = Standard
		}
	case Maintenance:
		if e.Button == button.Primary {
			next = m.previous
		}
	case Configuration:
	}

	return m.Set(next)
}

// Set switches directly to next and reports whether the mode changed.
// Entering Maintenance records the mode being left so it can be resumed.
func (m *Machine) Set(next Mode) bool {
	if next == m.current {
		return false
	}
	if next == Maintenance {
		m.previous = m.current
	}
	m.current = next
	return true
}
