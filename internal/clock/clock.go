// Package clock provides the millisecond tick used by the station loop.
// Ticks are 32-bit and wrap roughly every 49.7 days; all comparisons go
// through Elapsed so the wrap is harmless.
package clock

import "time"

// Millis is a monotonically increasing millisecond counter that wraps at 2^32.
type Millis uint32

// Elapsed returns the milliseconds between since and now.
// Unsigned subtraction keeps the result correct across a single wrap.
func Elapsed(now, since Millis) Millis {
	return now - since
}

// Due reports whether at least d milliseconds have passed since since.
func Due(now, since, d Millis) bool {
	return Elapsed(now, since) >= d
}

// FromDuration converts a duration to ticks, saturating at the maximum tick.
func FromDuration(d time.Duration) Millis {
	ms := d.Milliseconds()
	if ms <= 0 {
		return 0
	}
	if ms > int64(^Millis(0)) {
		return ^Millis(0)
	}
	return Millis(ms)
}

// Duration converts a tick count back to a time.Duration.
func (m Millis) Duration() time.Duration {
	return time.Duration(m) * time.Millisecond
}

// Source maps wall-clock instants onto ticks relative to a start time.
type Source struct {
	start time.Time
}

// NewSource creates a Source whose tick zero is start.
func NewSource(start time.Time) Source {
	return Source{start: start}
}

// At returns the tick for t. Times before start map to zero.
// The conversion truncates to 32 bits, which is where the wrap comes from.
func (s Source) At(t time.Time) Millis {
	ms := t.Sub(s.start).Milliseconds()
	if ms < 0 {
		return 0
	}
	return Millis(uint64(ms))
}

// Start returns the wall-clock instant of tick zero.
func (s Source) Start() time.Time {
	return s.start
}
