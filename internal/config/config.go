// Package config loads the station's threshold file and watches it for edits.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/sweeney/env-station/internal/clock"
)

// ErrInvalidThresholds is returned when a threshold file fails validation.
var ErrInvalidThresholds = errors.New("invalid thresholds")

// Thresholds is the persisted station configuration.
type Thresholds struct {
	LogIntervalMinutes uint `toml:"log_interval_minutes" json:"log_interval_minutes"`
	MaxRows            int  `toml:"max_rows" json:"max_rows"`
	TimeoutSeconds     uint `toml:"timeout_seconds" json:"timeout_seconds"`

	TemperatureEnabled bool `toml:"temperature_enabled" json:"temperature_enabled"`
	HumidityEnabled    bool `toml:"humidity_enabled" json:"humidity_enabled"`
	LightEnabled       bool `toml:"light_enabled" json:"light_enabled"`
	GPSEnabled         bool `toml:"gps_enabled" json:"gps_enabled"`

	MinTempC    float64 `toml:"min_temp_c" json:"min_temp_c"`
	MaxTempC    float64 `toml:"max_temp_c" json:"max_temp_c"`
	MinHumidity float64 `toml:"min_humidity" json:"min_humidity"`
	MaxHumidity float64 `toml:"max_humidity" json:"max_humidity"`
	LuxLow      float64 `toml:"lux_low" json:"lux_low"`
	LuxHigh     float64 `toml:"lux_high" json:"lux_high"`
}

// Default returns the factory configuration.
func Default() Thresholds {
	return Thresholds{
		LogIntervalMinutes: 10,
		MaxRows:            10000,
		TimeoutSeconds:     30,
		TemperatureEnabled: true,
		HumidityEnabled:    true,
		LightEnabled:       true,
		GPSEnabled:         true,
		MinTempC:           -20,
		MaxTempC:           60,
		MinHumidity:        0,
		MaxHumidity:        100,
		LuxLow:             0,
		LuxHigh:            2000,
	}
}

// Validate rejects inverted ranges and a non-positive row cap.
func (t Thresholds) Validate() error {
	switch {
	case t.MinTempC > t.MaxTempC:
		return fmt.Errorf("%w: min_temp_c %.1f > max_temp_c %.1f", ErrInvalidThresholds, t.MinTempC, t.MaxTempC)
	case t.MinHumidity > t.MaxHumidity:
		return fmt.Errorf("%w: min_humidity %.1f > max_humidity %.1f", ErrInvalidThresholds, t.MinHumidity, t.MaxHumidity)
	case t.LuxLow > t.LuxHigh:
		return fmt.Errorf("%w: lux_low %.1f > lux_high %.1f", ErrInvalidThresholds, t.LuxLow, t.LuxHigh)
	case t.MaxRows <= 0:
		return fmt.Errorf("%w: max_rows must be positive, got %d", ErrInvalidThresholds, t.MaxRows)
	}
	return nil
}

// ClimateEnabled reports whether the climate sensor is in use at all.
func (t Thresholds) ClimateEnabled() bool {
	return t.TemperatureEnabled || t.HumidityEnabled
}

// Timeout is how long a source may stay silent before it is faulted.
// Never less than one second.
func (t Thresholds) Timeout() clock.Millis {
	ms := uint64(t.TimeoutSeconds) * 1000
	if ms < 1000 {
		return 1000
	}
	if ms > uint64(^clock.Millis(0)) {
		return ^clock.Millis(0)
	}
	return clock.Millis(ms)
}

// LogInterval is the standard journal cadence. Zero minutes means every second.
func (t Thresholds) LogInterval() clock.Millis {
	ms := uint64(t.LogIntervalMinutes) * 60000
	if ms == 0 {
		return 1000
	}
	if ms > uint64(^clock.Millis(0)) {
		return ^clock.Millis(0)
	}
	return clock.Millis(ms)
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Thresholds, error) {
	t := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return Thresholds{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &t); err != nil {
		return Thresholds{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return Thresholds{}, fmt.Errorf("config %s: %w", path, err)
	}
	return t, nil
}

// Save validates t and writes it to path atomically.
func Save(path string, t Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}

	data, err := toml.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".thresholds-*.toml")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace config %s: %w", path, err)
	}
	return nil
}
