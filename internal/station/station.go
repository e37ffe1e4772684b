// Package station is the per-tick orchestrator of the operating-state core.
// Each Tick runs, in order: button debounce, event queue drain into the mode
// machine, console timeout, health checks into the error registry, indicator
// selection, and pattern playback. It performs no I/O besides the indicator
// output and never blocks; callers log and publish from the returned Report.
package station

import (
	"github.com/sweeney/env-station/internal/button"
	"github.com/sweeney/env-station/internal/clock"
	"github.com/sweeney/env-station/internal/indicator"
	"github.com/sweeney/env-station/internal/mode"
	"github.com/sweeney/env-station/internal/status"
)

// ConsoleTimeout is how long Configuration mode may sit without console
// activity before the station returns to Standard.
const ConsoleTimeout clock.Millis = 30 * 60 * 1000

// Reason explains why a mode transition happened.
type Reason string

const (
	ReasonButton         Reason = "BUTTON"
	ReasonConsoleTimeout Reason = "CONSOLE_TIMEOUT"
	ReasonCommand        Reason = "COMMAND"
)

// Transition is a mode change that actually happened.
type Transition struct {
	From   mode.Mode
	To     mode.Mode
	Reason Reason
}

// Entered reports whether the transition moved into m.
func (t Transition) Entered(m mode.Mode) bool {
	return t.To == m && t.From != m
}

// Left reports whether the transition moved out of m.
func (t Transition) Left(m mode.Mode) bool {
	return t.From == m && t.To != m
}

// FaultChange records a fault flag flipping.
type FaultChange struct {
	Error  status.Error
	Active bool
}

// HealthCheck sets fault flags from collaborator state. It runs once per tick
// after mode transitions have been applied.
type HealthCheck interface {
	Check(now clock.Millis, m mode.Mode, reg *status.Registry)
}

// HealthCheckFunc adapts a function to HealthCheck.
type HealthCheckFunc func(now clock.Millis, m mode.Mode, reg *status.Registry)

// Check calls f.
func (f HealthCheckFunc) Check(now clock.Millis, m mode.Mode, reg *status.Registry) {
	f(now, m, reg)
}

// Report describes what a single tick did.
type Report struct {
	// Presses are the button events detected this tick, including any the
	// queue had to drop.
	Presses []button.Event
	// Transitions are the mode changes applied this tick, in order.
	Transitions []Transition
	// FaultChanges are fault flags that flipped since the previous tick.
	FaultChanges []FaultChange
	// Indicator is the logical state shown after the tick.
	Indicator indicator.State
	// IndicatorChanged is true if a different pattern was selected.
	IndicatorChanged bool
	// OutputErr is the last error from the indicator output, if any.
	OutputErr error
}

// Config configures a Station.
type Config struct {
	// Initial is the boot mode.
	Initial mode.Mode
	// Output drives the LED.
	Output indicator.Output
	// CommonAnode inverts every colour channel on output.
	CommonAnode bool
	// Checks run every tick in order.
	Checks []HealthCheck
}

// Station owns every piece of core state. Not safe for concurrent use:
// commands from other goroutines must be funnelled into the loop that calls Tick.
type Station struct {
	queue     *button.Queue
	debouncer *button.Debouncer
	modes     *mode.Machine
	registry  *status.Registry
	engine    *indicator.Engine
	checks    []HealthCheck

	shown           indicator.State
	dirty           bool // last write to the LED failed
	faults          []status.Error
	seen            []bool
	consoleActivity clock.Millis
	pending         []Transition
}

// unset forces the first Tick to render when Start was not called.
const unset = indicator.State(-1)

// New creates a station at tick now. initial holds the pin levels sampled at
// boot, so buttons already held do not register a fresh press.
func New(cfg Config, now clock.Millis, initial button.Levels) *Station {
	q := button.NewQueue()
	return &Station{
		queue:           q,
		debouncer:       button.NewDebouncer(q, now, initial),
		modes:           mode.NewMachine(cfg.Initial),
		registry:        status.NewRegistry(),
		engine:          indicator.NewEngine(cfg.Output, cfg.CommonAnode),
		checks:          cfg.Checks,
		shown:           unset,
		faults:          status.Errors(),
		seen:            make([]bool, len(status.Errors())),
		consoleActivity: now,
	}
}

// Start renders the boot mode's indicator state.
func (s *Station) Start(now clock.Millis) error {
	s.shown = s.modes.IndicatorState()
	err := s.engine.SetState(s.shown, now)
	s.dirty = err != nil
	return err
}

// Tick runs one loop iteration at tick now with the given raw pin levels.
func (s *Station) Tick(now clock.Millis, raw button.Levels) Report {
	var r Report

	r.Presses = s.debouncer.Update(now, raw)

	for {
		e, ok := s.queue.Pop()
		if !ok {
			break
		}
		from := s.modes.Current()
		if s.modes.HandleEvent(e) {
			s.record(Transition{From: from, To: s.modes.Current(), Reason: ReasonButton}, now)
		}
	}

	if s.modes.Current() == mode.Configuration && clock.Due(now, s.consoleActivity, ConsoleTimeout) {
		s.SetMode(mode.Standard, now, ReasonConsoleTimeout)
	}

	r.Transitions = s.pending
	s.pending = nil

	current := s.modes.Current()
	for _, c := range s.checks {
		c.Check(now, current, s.registry)
	}
	r.FaultChanges = s.faultChanges()

	target := s.registry.IndicatorState()
	if target == indicator.Off {
		target = s.modes.IndicatorState()
	}
	switch {
	case target != s.shown:
		s.shown = target
		r.IndicatorChanged = true
		r.OutputErr = s.engine.SetState(target, now)
	case s.dirty:
		// Static patterns never render again on their own.
		r.OutputErr = s.engine.Render()
	}
	if r.OutputErr == nil {
		r.OutputErr = s.engine.Update(now)
	}
	s.dirty = r.OutputErr != nil
	r.Indicator = s.shown

	return r
}

// SetMode forces a mode change outside of button handling, e.g. from the
// console. The transition is reported by the next Tick.
func (s *Station) SetMode(m mode.Mode, now clock.Millis, reason Reason) (Transition, bool) {
	from := s.modes.Current()
	if !s.modes.Set(m) {
		return Transition{}, false
	}
	t := Transition{From: from, To: m, Reason: reason}
	s.record(t, now)
	return t, true
}

func (s *Station) record(t Transition, now clock.Millis) {
	if t.Entered(mode.Configuration) {
		s.consoleActivity = now
	}
	s.pending = append(s.pending, t)
}

// Touch records console activity, postponing the Configuration timeout.
func (s *Station) Touch(now clock.Millis) {
	s.consoleActivity = now
}

// ConsoleIdle returns how long the console has been idle at tick now.
func (s *Station) ConsoleIdle(now clock.Millis) clock.Millis {
	return clock.Elapsed(now, s.consoleActivity)
}

// SetFault sets a fault flag from a collaborator that runs outside the
// health checks. The change is reported by the next Tick.
func (s *Station) SetFault(e status.Error, active bool) {
	s.registry.Set(e, active)
}

func (s *Station) faultChanges() []FaultChange {
	var out []FaultChange
	for i, e := range s.faults {
		active := s.registry.Has(e)
		if active != s.seen[i] {
			s.seen[i] = active
			out = append(out, FaultChange{Error: e, Active: active})
		}
	}
	return out
}

// Mode returns the current operating mode.
func (s *Station) Mode() mode.Mode {
	return s.modes.Current()
}

// PreviousMode returns the mode Maintenance resumes to.
func (s *Station) PreviousMode() mode.Mode {
	return s.modes.Previous()
}

// Indicator returns the logical indicator state being shown.
func (s *Station) Indicator() indicator.State {
	return s.shown
}

// Color returns the logical colour currently rendered.
func (s *Station) Color() indicator.Color {
	return s.engine.Color()
}

// Faults returns the active faults in priority order.
func (s *Station) Faults() []status.Error {
	return s.registry.Active()
}

// HasFault reports whether e is active.
func (s *Station) HasFault(e status.Error) bool {
	return s.registry.Has(e)
}

// IsPressed reports the debounced state of a button.
func (s *Station) IsPressed(id button.ID) bool {
	return s.debouncer.IsPressed(id)
}

// DroppedEvents returns how many button events were lost to a full queue.
func (s *Station) DroppedEvents() uint64 {
	return s.queue.Dropped()
}
