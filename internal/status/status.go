// Package status holds the fault registry and a thread-safe status tracker
// for the env-station daemon. The tracker is written by the station loop and
// read by HTTP handlers and MQTT heartbeats.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/env-station/internal/clock"
	"github.com/sweeney/env-station/internal/config"
	"github.com/sweeney/env-station/internal/indicator"
	"github.com/sweeney/env-station/internal/mode"
	"github.com/sweeney/env-station/internal/sensor"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs      int64
	HeartbeatMs int64
	Broker      string
	WSBroker    string
	HTTPPort    string
	ConfigPath  string
	DBPath      string
	CommonAnode bool
}

// Counts are running totals since start.
type Counts struct {
	Transitions    int
	ButtonPresses  int
	DroppedEvents  uint64
	SensorFailures uint64
	JournalRows    int
}

// StationState is what the loop reports after each tick.
type StationState struct {
	Mode         mode.Mode
	PreviousMode mode.Mode
	Indicator    indicator.State
	Faults       []Error
	Tick         clock.Millis
	Readings     sensor.Readings
	Counts       Counts
	ConsoleIdle  clock.Millis
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type; safe to use after the lock is released.
type Snapshot struct {
	StationState
	Ready         bool
	Thresholds    config.Thresholds
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time, config and thresholds.
func NewTracker(startTime time.Time, cfg Config, t config.Thresholds) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime:  startTime,
			Config:     cfg,
			Thresholds: t,
		},
	}
}

// Update replaces the station state. Called from runLoop on every tick.
func (t *Tracker) Update(s StationState) {
	s.Faults = append([]Error(nil), s.Faults...)
	t.mu.Lock()
	t.snap.StationState = s
	t.snap.Ready = true
	t.mu.Unlock()
}

// SetThresholds records the thresholds in force.
func (t *Tracker) SetThresholds(th config.Thresholds) {
	t.mu.Lock()
	t.snap.Thresholds = th
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
