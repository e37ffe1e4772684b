// Package indicator drives the tri-colour status LED.
// Every logical state is bound to a fixed Pattern, and the Engine plays the
// active pattern back one step at a time without ever blocking.
package indicator

import "fmt"

// State is what the indicator should show, derived from either the operating
// mode or the highest-priority active fault.
type State int

const (
	Off State = iota
	SolidGreen
	SolidYellow
	SolidBlue
	SolidOrange
	ErrorRtc
	ErrorGps
	ErrorSensorAccess
	ErrorSensorIncoherent
	ErrorSdFull
	ErrorSdAccess

	numStates
)

var stateNames = [numStates]string{
	Off:                   "OFF",
	SolidGreen:            "SOLID_GREEN",
	SolidYellow:           "SOLID_YELLOW",
	SolidBlue:             "SOLID_BLUE",
	SolidOrange:           "SOLID_ORANGE",
	ErrorRtc:              "ERROR_RTC",
	ErrorGps:              "ERROR_GPS",
	ErrorSensorAccess:     "ERROR_SENSOR_ACCESS",
	ErrorSensorIncoherent: "ERROR_SENSOR_INCOHERENT",
	ErrorSdFull:           "ERROR_SD_FULL",
	ErrorSdAccess:         "ERROR_SD_ACCESS",
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	return s >= 0 && s < numStates
}

// IsFault reports whether s is one of the fault-derived states.
func (s State) IsFault() bool {
	return s >= ErrorRtc && s < numStates
}

func (s State) String() string {
	if !s.Valid() {
		return fmt.Sprintf("STATE(%d)", int(s))
	}
	return stateNames[s]
}

// States returns every known state in declaration order.
func States() []State {
	out := make([]State, 0, numStates)
	for s := Off; s < numStates; s++ {
		out = append(out, s)
	}
	return out
}
