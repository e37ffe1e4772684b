// Package gpio provides button input and RGB indicator output with hardware
// abstraction. The real implementation uses the Linux GPIO character device.
// The fakes allow testing without hardware.
package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/env-station/internal/button"
	"github.com/sweeney/env-station/internal/indicator"
)

// Reader reads the button pins.
type Reader interface {
	// Read returns the raw pin levels. Buttons are active-low:
	// 0 means pressed.
	Read() (button.Levels, error)

	// Close releases GPIO resources.
	Close() error
}

// LED drives the three indicator channels.
type LED interface {
	indicator.Output

	// Close switches the LED off and releases GPIO resources.
	Close() error
}

// Pin definitions (BCM numbering)
const (
	PinPrimary   = 17
	PinSecondary = 27
	PinRed       = 22
	PinGreen     = 23
	PinBlue      = 24
)

// ButtonPins maps each button to its BCM line.
type ButtonPins [button.Count]int

// DefaultButtonPins returns the standard wiring.
func DefaultButtonPins() ButtonPins {
	return ButtonPins{button.Primary: PinPrimary, button.Secondary: PinSecondary}
}

// LEDPins holds the BCM lines of the red, green and blue channels.
type LEDPins struct {
	Red, Green, Blue int
}

// DefaultLEDPins returns the standard wiring.
func DefaultLEDPins() LEDPins {
	return LEDPins{Red: PinRed, Green: PinGreen, Blue: PinBlue}
}

// DutySteps is the PWM resolution: each frame has DutySteps slots and a
// channel is lit for 0 to DutySteps of them.
const DutySteps = 8

// slotPeriod gives a 100 Hz frame, fast enough that orange does not flicker.
const slotPeriod = 1250 * time.Microsecond

// duty maps each channel of c to the number of lit slots per frame.
func duty(c indicator.Color) [3]int {
	var d [3]int
	for i, ch := range [3]uint8{c.R, c.G, c.B} {
		d[i] = (int(ch)*DutySteps + 127) / 255
	}
	return d
}

// steady reports whether every channel is fully on or fully off.
func steady(d [3]int) bool {
	for _, n := range d {
		if n != 0 && n != DutySteps {
			return false
		}
	}
	return true
}

// frame expands d into line levels per slot. Lit slots come first.
func frame(d [3]int) [DutySteps][3]int {
	var f [DutySteps][3]int
	for slot := range f {
		for ch, n := range d {
			if slot < n {
				f[slot][ch] = 1
			}
		}
	}
	return f
}

// pwm plays a frame on three digital lines. Steady colours are written once.
// Others need tick to be called every slotPeriod.
type pwm struct {
	write func(levels [3]int) error

	mu      sync.Mutex
	frame   [DutySteps][3]int
	slot    int
	last    [3]int
	written bool
	active  bool
	err     error
}

func newPWM(write func(levels [3]int) error) *pwm {
	return &pwm{write: write}
}

// set loads a new colour and writes its first slot. It reports whether the
// colour needs modulation. An error left over from tick is returned here,
// since tick has no caller to return it to.
func (p *pwm) set(d [3]int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pending := p.err
	p.err = nil
	p.frame = frame(d)
	p.slot = 0
	p.active = !steady(d)
	if err := p.writeLocked(p.frame[0]); err != nil {
		return p.active, err
	}
	if pending != nil {
		return p.active, fmt.Errorf("pwm: %w", pending)
	}
	return p.active, nil
}

// tick moves to the next slot. It does nothing for steady colours.
func (p *pwm) tick() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active {
		return
	}
	p.slot = (p.slot + 1) % DutySteps
	if err := p.writeLocked(p.frame[p.slot]); err != nil && p.err == nil {
		p.err = err
	}
}

func (p *pwm) writeLocked(levels [3]int) error {
	if p.written && levels == p.last {
		return nil
	}
	if err := p.write(levels); err != nil {
		p.written = false
		return err
	}
	p.last = levels
	p.written = true
	return nil
}

// run ticks until stop is closed.
func (p *pwm) run(stop <-chan struct{}) {
	t := time.NewTicker(slotPeriod)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			p.tick()
		}
	}
}
