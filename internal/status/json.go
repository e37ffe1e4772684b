package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/env-station/internal/clock"
	"github.com/sweeney/env-station/internal/config"
	"github.com/sweeney/env-station/internal/mode"
	"github.com/sweeney/env-station/internal/sensor"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string            `json:"event,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	Mode          string            `json:"mode"`
	PreviousMode  string            `json:"previous_mode"`
	Indicator     string            `json:"indicator"`
	Faults        []string          `json:"faults"`
	Ready         bool              `json:"ready"`
	ConsoleIdleMs *uint32           `json:"console_idle_ms,omitempty"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	StartTime     string            `json:"start_time"`
	Timestamp     string            `json:"timestamp"`
	MQTT          MQTTStatus        `json:"mqtt"`
	Readings      ReadingsJSON      `json:"readings"`
	Counts        CountsJSON        `json:"counts"`
	Network       *NetworkJSON      `json:"network,omitempty"`
	Thresholds    config.Thresholds `json:"thresholds"`
	Config        ConfigJSON        `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ReadingsJSON holds the latest value of each source; nil when never read.
type ReadingsJSON struct {
	Climate *ClimateJSON `json:"climate"`
	Light   *LightJSON   `json:"light"`
	GPS     *GPSJSON     `json:"gps"`
}

// ClimateJSON is a climate reading with its age.
type ClimateJSON struct {
	sensor.Climate
	AgeMs uint32 `json:"age_ms"`
}

// LightJSON is a light reading with its age.
type LightJSON struct {
	sensor.Light
	AgeMs uint32 `json:"age_ms"`
}

// GPSJSON is a fix with its age.
type GPSJSON struct {
	sensor.Fix
	AgeMs uint32 `json:"age_ms"`
}

// CountsJSON is the JSON representation of running totals.
type CountsJSON struct {
	Transitions    int    `json:"transitions"`
	ButtonPresses  int    `json:"button_presses"`
	DroppedEvents  uint64 `json:"dropped_events"`
	SensorFailures uint64 `json:"sensor_failures"`
	JournalRows    int    `json:"journal_rows"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs      int64  `json:"poll_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	WSBroker    string `json:"ws_broker,omitempty"`
	HTTPPort    string `json:"http_port"`
	ConfigPath  string `json:"config_path,omitempty"`
	DBPath      string `json:"db_path,omitempty"`
	CommonAnode bool   `json:"common_anode"`
}

func buildReadings(snap Snapshot) ReadingsJSON {
	r := snap.Readings
	age := func(at clock.Millis) uint32 {
		return uint32(clock.Elapsed(snap.Tick, at))
	}

	var out ReadingsJSON
	if r.Climate.OK {
		out.Climate = &ClimateJSON{Climate: r.Climate.Value, AgeMs: age(r.Climate.At)}
	}
	if r.Light.OK {
		out.Light = &LightJSON{Light: r.Light.Value, AgeMs: age(r.Light.At)}
	}
	if r.Fix.OK {
		out.GPS = &GPSJSON{Fix: r.Fix.Value, AgeMs: age(r.Fix.At)}
	}
	return out
}

func buildInner(snap Snapshot) StatusInner {
	faults := make([]string, 0, len(snap.Faults))
	for _, f := range snap.Faults {
		faults = append(faults, f.String())
	}

	inner := StatusInner{
		Mode:          snap.Mode.String(),
		PreviousMode:  snap.PreviousMode.String(),
		Indicator:     snap.Indicator.String(),
		Faults:        faults,
		Ready:         snap.Ready,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Readings:      buildReadings(snap),
		Counts: CountsJSON{
			Transitions:    snap.Counts.Transitions,
			ButtonPresses:  snap.Counts.ButtonPresses,
			DroppedEvents:  snap.Counts.DroppedEvents,
			SensorFailures: snap.Counts.SensorFailures,
			JournalRows:    snap.Counts.JournalRows,
		},
		Thresholds: snap.Thresholds,
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			WSBroker:    snap.Config.WSBroker,
			HTTPPort:    snap.Config.HTTPPort,
			ConfigPath:  snap.Config.ConfigPath,
			DBPath:      snap.Config.DBPath,
			CommonAnode: snap.Config.CommonAnode,
		},
	}
	if snap.Ready && snap.Mode == mode.Configuration {
		idle := uint32(snap.ConsoleIdle)
		inner.ConsoleIdleMs = &idle
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// Inner returns the status details for snap without event or reason.
func Inner(snap Snapshot) StatusInner {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: Inner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := Inner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
