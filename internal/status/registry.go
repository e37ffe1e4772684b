package status

import (
	"fmt"

	"github.com/sweeney/env-station/internal/indicator"
)

// Error is a fault condition reported by a health check.
// Declaration order is priority order: ErrRtc is the most important.
type Error int

const (
	ErrRtc Error = iota
	ErrGps
	ErrSensorAccess
	ErrSensorIncoherent
	ErrSdFull
	ErrSdAccess

	numErrors
)

// faults binds each error to its indicator state, in priority order.
var faults = [numErrors]struct {
	name  string
	state indicator.State
}{
	ErrRtc:              {"RTC", indicator.ErrorRtc},
	ErrGps:              {"GPS", indicator.ErrorGps},
	ErrSensorAccess:     {"SENSOR_ACCESS", indicator.ErrorSensorAccess},
	ErrSensorIncoherent: {"SENSOR_INCOHERENT", indicator.ErrorSensorIncoherent},
	ErrSdFull:           {"SD_FULL", indicator.ErrorSdFull},
	ErrSdAccess:         {"SD_ACCESS", indicator.ErrorSdAccess},
}

func (e Error) valid() bool {
	return e >= 0 && e < numErrors
}

func (e Error) String() string {
	if !e.valid() {
		return fmt.Sprintf("ERROR(%d)", int(e))
	}
	return faults[e].name
}

// IndicatorState returns the LED state bound to e.
func (e Error) IndicatorState() indicator.State {
	if !e.valid() {
		return indicator.Off
	}
	return faults[e].state
}

// Errors returns every fault kind in priority order.
func Errors() []Error {
	out := make([]Error, 0, numErrors)
	for e := ErrRtc; e < numErrors; e++ {
		out = append(out, e)
	}
	return out
}

// Registry holds one level-triggered flag per fault kind.
// Callers own the flags and may rewrite them every tick.
// Not safe for concurrent use; the station loop is the only owner.
type Registry struct {
	active [numErrors]bool
}

// NewRegistry returns a registry with every fault clear.
func NewRegistry() *Registry {
	return &Registry{}
}

// Set updates the flag for e. Unknown kinds are ignored.
func (r *Registry) Set(e Error, active bool) {
	if !e.valid() {
		return
	}
	r.active[e] = active
}

// Has reports whether e is active.
func (r *Registry) Has(e Error) bool {
	if !e.valid() {
		return false
	}
	return r.active[e]
}

// Highest returns the highest-priority active fault.
func (r *Registry) Highest() (Error, bool) {
	for e := ErrRtc; e < numErrors; e++ {
		if r.active[e] {
			return e, true
		}
	}
	return 0, false
}

// IndicatorState returns the LED state of the highest-priority active fault,
// or indicator.Off when none is active.
func (r *Registry) IndicatorState() indicator.State {
	if e, ok := r.Highest(); ok {
		return e.IndicatorState()
	}
	return indicator.Off
}

// Active returns all active faults in priority order.
func (r *Registry) Active() []Error {
	var out []Error
	for e := ErrRtc; e < numErrors; e++ {
		if r.active[e] {
			out = append(out, e)
		}
	}
	return out
}
