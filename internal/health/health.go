// Package health turns collaborator readings into fault flags.
package health

import (
	"time"

	"github.com/sweeney/env-station/internal/clock"
	"github.com/sweeney/env-station/internal/config"
	"github.com/sweeney/env-station/internal/mode"
	"github.com/sweeney/env-station/internal/sensor"
	"github.com/sweeney/env-station/internal/status"
)

// EarliestValidTime is the oldest wall clock reading trusted as real.
// Anything before it means the clock was never set.
var EarliestValidTime = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// ReadingSource provides the latest collaborator readings.
type ReadingSource interface {
	Readings() sensor.Readings
}

// Checker evaluates the sensor, GPS and wall clock rules each tick.
type Checker struct {
	source     ReadingSource
	thresholds config.Thresholds
	wallClock  func() time.Time
}

// NewChecker creates a checker. A nil wallClock uses time.Now.
func NewChecker(source ReadingSource, t config.Thresholds, wallClock func() time.Time) *Checker {
	if wallClock == nil {
		wallClock = time.Now
	}
	return &Checker{source: source, thresholds: t, wallClock: wallClock}
}

// SetThresholds replaces the thresholds used from the next check on.
func (c *Checker) SetThresholds(t config.Thresholds) {
	c.thresholds = t
}

// Check updates the registry. The wall clock is checked in every mode;
// sensor flags keep their last value while in Configuration.
func (c *Checker) Check(now clock.Millis, m mode.Mode, reg *status.Registry) {
	reg.Set(status.ErrRtc, c.wallClock().Before(EarliestValidTime))

	if m == mode.Configuration {
		return
	}

	t := c.thresholds
	timeout := t.Timeout()
	r := c.source.Readings()

	var access, incoherent bool

	if t.ClimateEnabled() {
		access = access || r.Climate.TimedOut(now, timeout)
		if r.Climate.OK {
			v := r.Climate.Value
			if t.TemperatureEnabled && (v.TemperatureC < t.MinTempC || v.TemperatureC > t.MaxTempC) {
				incoherent = true
			}
			if t.HumidityEnabled && (v.HumidityPct < t.MinHumidity || v.HumidityPct > t.MaxHumidity) {
				incoherent = true
			}
		}
	}

	if t.LightEnabled {
		access = access || r.Light.TimedOut(now, timeout)
		if r.Light.OK && (r.Light.Value.Lux < t.LuxLow || r.Light.Value.Lux > t.LuxHigh) {
			incoherent = true
		}
	}

	reg.Set(status.ErrGps, t.GPSEnabled && r.Fix.TimedOut(now, timeout))
	reg.Set(status.ErrSensorAccess, access)
	reg.Set(status.ErrSensorIncoherent, incoherent)
}
