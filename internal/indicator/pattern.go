package indicator

import "github.com/sweeney/env-station/internal/clock"

// Color is an RGB intensity triple.
type Color struct {
	R, G, B uint8
}

// Inverted returns the channel-wise complement, used for common-anode wiring.
func (c Color) Inverted() Color {
	return Color{R: 255 - c.R, G: 255 - c.G, B: 255 - c.B}
}

var (
	black  = Color{0, 0, 0}
	red    = Color{255, 0, 0}
	green  = Color{0, 255, 0}
	blue   = Color{0, 0, 255}
	yellow = Color{255, 255, 0}
	orange = Color{255, 96, 0}
	white  = Color{255, 255, 255}
)

// Step is one colour held for Duration milliseconds.
// A zero Duration holds the step forever.
type Step struct {
	Color    Color
	Duration clock.Millis
}

// Pattern is an immutable, non-empty sequence of steps.
// A single-step pattern is static; longer patterns cycle forever.
type Pattern struct {
	Steps []Step
}

// Static reports whether the pattern never advances.
func (p Pattern) Static() bool {
	return len(p.Steps) <= 1
}

func solid(c Color) Pattern {
	return Pattern{Steps: []Step{{Color: c}}}
}

// blink alternates two colours for 500ms each.
func blink(a, b Color) Pattern {
	return Pattern{Steps: []Step{
		{Color: a, Duration: 500},
		{Color: b, Duration: 500},
	}}
}

// pulse shows a briefly, then b for four times as long, with dark gaps.
func pulse(a, b Color) Pattern {
	return Pattern{Steps: []Step{
		{Color: a, Duration: 200},
		{Color: black, Duration: 100},
		{Color: b, Duration: 800},
		{Color: black, Duration: 100},
	}}
}

var patterns = [numStates]Pattern{
	Off:                   solid(black),
	SolidGreen:            solid(green),
	SolidYellow:           solid(yellow),
	SolidBlue:             solid(blue),
	SolidOrange:           solid(orange),
	ErrorRtc:              blink(red, blue),
	ErrorGps:              blink(red, yellow),
	ErrorSensorAccess:     blink(red, green),
	ErrorSensorIncoherent: pulse(red, green),
	ErrorSdFull:           blink(red, white),
	ErrorSdAccess:         pulse(red, white),
}

// PatternFor returns the pattern bound to s.
// Unknown states resolve to the Off pattern.
func PatternFor(s State) Pattern {
	if !s.Valid() {
		return patterns[Off]
	}
	return patterns[s]
}
