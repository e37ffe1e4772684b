package gpio

import (
	"errors"

	"github.com/sweeney/env-station/internal/button"
	"github.com/sweeney/env-station/internal/indicator"
)

// FakeReader is a test double that returns scripted pin levels.
type FakeReader struct {
	// Samples contains scripted levels to return.
	// Each call to Read() consumes the next sample.
	Samples []button.Levels

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples ...button.Levels) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeReader) Read() (button.Levels, error) {
	if f.ReadError != nil {
		return button.Released(), f.ReadError
	}

	if len(f.Samples) == 0 {
		return button.Released(), errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	return sample, nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeReader) Reset() {
	f.index = 0
	f.Closed = false
}

// FakeLED records colours and the PWM duty they map to.
type FakeLED struct {
	indicator.FakeOutput

	// Duty holds the lit slots per frame of the red, green and blue lines,
	// from 0 to DutySteps.
	Duty [3]int
}

// Set records c.
func (f *FakeLED) Set(c indicator.Color) error {
	if err := f.FakeOutput.Set(c); err != nil {
		return err
	}
	f.Duty = duty(c)
	return nil
}

// Close switches the lines off.
func (f *FakeLED) Close() error {
	f.Duty = [3]int{}
	return nil
}
