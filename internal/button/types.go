// Package button turns raw push-button pin levels into discrete press events.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injected as a clock.Millis tick.
package button

import (
	"fmt"

	"github.com/sweeney/env-station/internal/clock"
)

// ID identifies a physical push button.
type ID int

const (
	Primary ID = iota
	Secondary

	// Count is the number of buttons on the station.
	Count = 2
)

func (id ID) String() string {
	switch id {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	}
	return fmt.Sprintf("button(%d)", int(id))
}

// Kind is the type of press that was detected.
type Kind int

const (
	ShortPress Kind = iota
	LongPress
)

func (k Kind) String() string {
	switch k {
	case ShortPress:
		return "short"
	case LongPress:
		return "long"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Event is a single detected press. It is consumed exactly once.
type Event struct {
	Button ID
	Kind   Kind
}

func (e Event) String() string {
	return e.Button.String() + "/" + e.Kind.String()
}

// Levels holds raw pin values indexed by ID.
// Buttons are wired active-low: 0 means pressed.
type Levels [Count]int

// Released returns levels with every button up.
func Released() Levels {
	var l Levels
	for i := range l {
		l[i] = 1
	}
	return l
}

// With returns a copy of l with the given button pressed.
func (l Levels) With(id ID) Levels {
	l[id] = 0
	return l
}

// State tracks one button between ticks. It is indexed by ID and holds no
// pin number: the wiring of each ID lives in gpio.ButtonPins.
type State struct {
	// Current debounced pressed flag
	Pressed bool
	// Set once a long press has been emitted for the current press
	LongReported bool
	// Tick at which the current press began
	PressStart clock.Millis
}
