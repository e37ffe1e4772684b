// Package sensor holds the station's collaborator readings: the local climate
// sensor, polled from the loop, and light and GPS values fed in from
// peripheral boards over MQTT.
package sensor

import (
	"fmt"

	"github.com/sweeney/env-station/internal/clock"
)

// Climate is one temperature/humidity/pressure sample.
type Climate struct {
	TemperatureC float64 `json:"temperature_c"`
	HumidityPct  float64 `json:"humidity_pct"`
	PressureHPa  float64 `json:"pressure_hpa"`
}

// Light is one ambient light sample.
type Light struct {
	Lux float64 `json:"lux"`
}

// Fix is one GPS position.
type Fix struct {
	Latitude   float64 `json:"lat"`
	Longitude  float64 `json:"lon"`
	Satellites int     `json:"satellites"`
}

// Reading is the last good value of a source and the tick it arrived at.
type Reading[T any] struct {
	Value T
	At    clock.Millis
	OK    bool
}

// TimedOut reports whether the source has gone quiet for longer than timeout.
// A source that never produced a value times out once the station has been
// up for longer than timeout.
func (r Reading[T]) TimedOut(now, timeout clock.Millis) bool {
	if !r.OK {
		return now > timeout
	}
	return clock.Elapsed(now, r.At) > timeout
}

// Readings is a copy of every source's latest value.
type Readings struct {
	Climate Reading[Climate]
	Light   Reading[Light]
	Fix     Reading[Fix]
}

// Sampler reads the climate sensor.
type Sampler interface {
	Sample() (Climate, error)
	Close() error
}

// Poller samples a climate sensor at a fixed cadence, doubled on request.
// Failed samples leave the previous reading in place so the caller's
// timeout check trips.
type Poller struct {
	sampler  Sampler
	interval clock.Millis
	last     clock.Millis
	started  bool
	reading  Reading[Climate]
	failures uint64
}

// NewPoller returns a poller that samples s every interval.
func NewPoller(s Sampler, interval clock.Millis) *Poller {
	return &Poller{sampler: s, interval: interval}
}

// Poll samples the sensor if the interval has passed. slow doubles the
// interval.
func (p *Poller) Poll(now clock.Millis, slow bool) error {
	interval := p.interval
	if slow {
		interval *= 2
	}
	if p.started && !clock.Due(now, p.last, interval) {
		return nil
	}
	p.started = true
	p.last = now

	c, err := p.sampler.Sample()
	if err != nil {
		p.failures++
		return fmt.Errorf("sample climate: %w", err)
	}
	p.reading = Reading[Climate]{Value: c, At: now, OK: true}
	return nil
}

// Climate returns the last good sample.
func (p *Poller) Climate() Reading[Climate] {
	return p.reading
}

// Failures returns how many samples have failed.
func (p *Poller) Failures() uint64 {
	return p.failures
}

// Hub gathers every source into one Readings view. Owned by the station loop.
type Hub struct {
	poller *Poller
	light  Reading[Light]
	fix    Reading[Fix]
}

// NewHub returns a hub. p may be nil when no climate sensor is fitted.
func NewHub(p *Poller) *Hub {
	return &Hub{poller: p}
}

// Poll forwards to the climate poller, if any.
func (h *Hub) Poll(now clock.Millis, slow bool) error {
	if h.poller == nil {
		return nil
	}
	return h.poller.Poll(now, slow)
}

// RecordLight stores a light sample received at now.
func (h *Hub) RecordLight(now clock.Millis, l Light) {
	h.light = Reading[Light]{Value: l, At: now, OK: true}
}

// RecordFix stores a GPS fix received at now.
func (h *Hub) RecordFix(now clock.Millis, f Fix) {
	h.fix = Reading[Fix]{Value: f, At: now, OK: true}
}

// Readings returns the latest values of every source.
func (h *Hub) Readings() Readings {
	r := Readings{Light: h.light, Fix: h.fix}
	if h.poller != nil {
		r.Climate = h.poller.Climate()
	}
	return r
}
