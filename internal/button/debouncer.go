package button

import "github.com/sweeney/env-station/internal/clock"

// LongPressThreshold is how long a button must be held to count as a long press.
const LongPressThreshold clock.Millis = 5000

// Debouncer detects short and long presses on each button independently.
// It does edge detection only; there is no minimum stable time before a
// level change is accepted.
type Debouncer struct {
	queue   *Queue
	buttons [Count]State
}

// NewDebouncer creates a debouncer that pushes into q.
// initial primes the pressed flags so a button held at startup does not
// register a new press edge; its press is timed from now.
func NewDebouncer(q *Queue, now clock.Millis, initial Levels) *Debouncer {
	d := &Debouncer{queue: q}
	for i := range d.buttons {
		if initial[i] == 0 {
			d.buttons[i] = State{Pressed: true, PressStart: now}
		}
	}
	return d
}

// Update samples raw levels at tick now and queues any resulting events.
// It returns the events produced this tick, including any the queue dropped.
func (d *Debouncer) Update(now clock.Millis, raw Levels) []Event {
	var events []Event
	for i := range d.buttons {
		if e, ok := d.updateButton(ID(i), &d.buttons[i], raw[i] == 0, now); ok {
			events = append(events, e)
			d.queue.Push(e)
		}
	}
	return events
}

// updateButton handles a single button. At most one event is produced per
// call because a press cannot start and end in the same sample.
func (d *Debouncer) updateButton(id ID, s *State, pressed bool, now clock.Millis) (Event, bool) {
	if pressed && !s.Pressed {
		s.Pressed = true
		s.PressStart = now
		s.LongReported = false
	}

	if !pressed && s.Pressed {
		short := !s.LongReported
		s.Pressed = false
		s.LongReported = false
		if short {
			return Event{Button: id, Kind: ShortPress}, true
		}
		return Event{}, false
	}

	if s.Pressed && !s.LongReported && clock.Due(now, s.PressStart, LongPressThreshold) {
		s.LongReported = true
		return Event{Button: id, Kind: LongPress}, true
	}

	return Event{}, false
}

// IsPressed returns the debounced pressed flag for id.
func (d *Debouncer) IsPressed(id ID) bool {
	return d.buttons[id].Pressed
}

// State returns a copy of the tracking state for id.
func (d *Debouncer) State(id ID) State {
	return d.buttons[id]
}
