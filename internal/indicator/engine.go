package indicator

import (
	"fmt"

	"github.com/sweeney/env-station/internal/clock"
)

// Output drives the physical LED.
type Output interface {
	// Set writes the colour to the hardware. Values are already inverted
	// for common-anode wiring.
	Set(c Color) error
}

// Engine plays the pattern bound to the requested State.
// Not safe for concurrent use; the station loop is the only owner.
type Engine struct {
	out         Output
	commonAnode bool

	state     State
	pattern   Pattern
	index     int
	stepStart clock.Millis
	color     Color
}

// NewEngine creates an engine showing Off. Nothing is written until SetState.
func NewEngine(out Output, commonAnode bool) *Engine {
	return &Engine{
		out:         out,
		commonAnode: commonAnode,
		state:       Off,
		pattern:     PatternFor(Off),
	}
}

// SetState switches to the pattern for s, restarting it at step 0 and
// rendering that step immediately. Unknown states render as Off.
func (e *Engine) SetState(s State, now clock.Millis) error {
	if !s.Valid() {
		s = Off
	}
	e.state = s
	e.pattern = PatternFor(s)
	e.index = 0
	e.stepStart = now
	return e.render()
}

// Update advances playback if the current step has run its course.
// It moves at most one step per call, and the next step is timed from when
// the previous one was due rather than from now, so sparse calls do not drift.
func (e *Engine) Update(now clock.Millis) error {
	if e.pattern.Static() {
		return nil
	}
	step := e.pattern.Steps[e.index]
	if step.Duration == 0 {
		return nil
	}
	if !clock.Due(now, e.stepStart, step.Duration) {
		return nil
	}
	e.index = (e.index + 1) % len(e.pattern.Steps)
	e.stepStart += step.Duration
	return e.render()
}

// Render writes the current step again without restarting playback, so a
// caller can retry after a failed write.
func (e *Engine) Render() error {
	return e.render()
}

func (e *Engine) render() error {
	c := e.pattern.Steps[e.index].Color
	e.color = c
	if e.commonAnode {
		c = c.Inverted()
	}
	if err := e.out.Set(c); err != nil {
		return fmt.Errorf("set indicator %s step %d: %w", e.state, e.index, err)
	}
	return nil
}

// State returns the logical state currently shown.
func (e *Engine) State() State {
	return e.state
}

// Step returns the index of the step being shown.
func (e *Engine) Step() int {
	return e.index
}

// Color returns the logical colour of the current step, before any
// common-anode inversion.
func (e *Engine) Color() Color {
	return e.color
}
