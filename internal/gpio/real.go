//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/env-station/internal/button"
	"github.com/sweeney/env-station/internal/indicator"
)

const chipName = "gpiochip0"

// RealReader reads the buttons from actual hardware.
type RealReader struct {
	chip  *gpiocdev.Chip
	lines [button.Count]*gpiocdev.Line
}

// NewRealReader requests the button lines as inputs with pull-ups, so an
// open switch reads 1 and a pressed one shorts the line to ground.
func NewRealReader(pins ButtonPins) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	r := &RealReader{chip: chip}
	for id := button.ID(0); id < button.Count; id++ {
		line, err := chip.RequestLine(pins[id], gpiocdev.AsInput, gpiocdev.WithPullUp)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", id, pins[id], err)
		}
		r.lines[id] = line
	}
	return r, nil
}

// Read returns the raw levels of both buttons.
func (r *RealReader) Read() (button.Levels, error) {
	var levels button.Levels
	for id, line := range r.lines {
		v, err := line.Value()
		if err != nil {
			return button.Released(), fmt.Errorf("read %s pin: %w", button.ID(id), err)
		}
		levels[id] = v
	}
	return levels, nil
}

// Close releases GPIO resources.
// Reconfigures pins to input with pull-down (matching Pi boot defaults) before
// closing to ensure clean state for system shutdown/reboot.
func (r *RealReader) Close() error {
	var errs []error
	for id, line := range r.lines {
		if line == nil {
			continue
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", button.ID(id), err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", button.ID(id), err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealLED drives the three indicator lines. Colours with a channel between
// off and full, such as orange, are modulated by a software PWM goroutine
// that only runs while one is shown.
type RealLED struct {
	chip  *gpiocdev.Chip
	lines [3]*gpiocdev.Line
	off   indicator.Color
	pwm   *pwm

	stop chan struct{}
	done chan struct{}
}

// NewRealLED requests the channel lines as outputs. off is the physical
// colour that darkens the LED: black for common cathode, white for common
// anode. The LED starts dark.
func NewRealLED(pins LEDPins, off indicator.Color) (*RealLED, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	l := &RealLED{chip: chip, off: off}
	l.pwm = newPWM(l.writeLines)
	initial := frame(duty(off))[0]
	for i, pin := range [3]int{pins.Red, pins.Green, pins.Blue} {
		line, err := chip.RequestLine(pin, gpiocdev.AsOutput(initial[i]))
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("request led pin %d: %w", pin, err)
		}
		l.lines[i] = line
	}
	return l, nil
}

// Set shows c, starting or stopping modulation as needed.
func (l *RealLED) Set(c indicator.Color) error {
	active, err := l.pwm.set(duty(c))
	switch {
	case active && l.stop == nil:
		l.stop = make(chan struct{})
		l.done = make(chan struct{})
		go func(stop <-chan struct{}, done chan<- struct{}) {
			defer close(done)
			l.pwm.run(stop)
		}(l.stop, l.done)
	case !active:
		l.stopPWM()
	}
	return err
}

func (l *RealLED) stopPWM() {
	if l.stop == nil {
		return
	}
	close(l.stop)
	<-l.done
	l.stop, l.done = nil, nil
}

func (l *RealLED) writeLines(levels [3]int) error {
	for i, v := range levels {
		if err := l.lines[i].SetValue(v); err != nil {
			return fmt.Errorf("set led channel %d: %w", i, err)
		}
	}
	return nil
}

// Close darkens the LED, returns the lines to inputs and releases them.
func (l *RealLED) Close() error {
	l.stopPWM()

	var errs []error
	for i, v := range frame(duty(l.off))[0] {
		line := l.lines[i]
		if line == nil {
			continue
		}
		if err := line.SetValue(v); err != nil {
			errs = append(errs, fmt.Errorf("darken led channel %d: %w", i, err))
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure led channel %d: %w", i, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close led channel %d: %w", i, err))
		}
	}
	if l.chip != nil {
		if err := l.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
