package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/env-station/internal/config"
	"github.com/sweeney/env-station/internal/indicator"
	"github.com/sweeney/env-station/internal/mode"
	"github.com/sweeney/env-station/internal/sensor"
)

var testStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestNewTracker(t *testing.T) {
	cfg := Config{PollMs: 100, Broker: "tcp://localhost:1883", HTTPPort: ":80"}
	tr := NewTracker(testStart, cfg, config.Default())

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(testStart) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, testStart)
	}
	if snap.Config.PollMs != 100 {
		t.Errorf("Config.PollMs: got %d, want 100", snap.Config.PollMs)
	}
	if snap.Config.HTTPPort != ":80" {
		t.Errorf("Config.HTTPPort: got %q, want %q", snap.Config.HTTPPort, ":80")
	}
	if snap.Ready {
		t.Error("expected Ready=false initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
	if snap.Thresholds != config.Default() {
		t.Errorf("Thresholds: got %+v", snap.Thresholds)
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), Config{}, config.Default())

	tr.Update(StationState{
		Mode:         mode.Economic,
		PreviousMode: mode.Standard,
		Indicator:    indicator.ErrorGps,
		Faults:       []Error{ErrGps},
		Counts:       Counts{Transitions: 3, ButtonPresses: 4},
	})

	snap := tr.Snapshot()
	if snap.Mode != mode.Economic {
		t.Errorf("Mode: got %v, want ECONOMIC", snap.Mode)
	}
	if snap.PreviousMode != mode.Standard {
		t.Errorf("PreviousMode: got %v, want STANDARD", snap.PreviousMode)
	}
	if !snap.Ready {
		t.Error("expected Ready=true")
	}
	if len(snap.Faults) != 1 || snap.Faults[0] != ErrGps {
		t.Errorf("Faults: got %v", snap.Faults)
	}
	if snap.Counts.Transitions != 3 {
		t.Errorf("Counts.Transitions: got %d, want 3", snap.Counts.Transitions)
	}
}

func TestUpdateCopiesFaults(t *testing.T) {
	tr := NewTracker(time.Now(), Config{}, config.Default())
	faults := []Error{ErrRtc}
	tr.Update(StationState{Faults: faults})

	faults[0] = ErrSdFull
	if got := tr.Snapshot().Faults[0]; got != ErrRtc {
		t.Errorf("tracker shares caller slice: got %v", got)
	}
}

func TestSetThresholds(t *testing.T) {
	tr := NewTracker(time.Now(), Config{}, config.Default())
	th := config.Default()
	th.MaxTempC = 45
	tr.SetThresholds(th)

	if got := tr.Snapshot().Thresholds.MaxTempC; got != 45 {
		t.Errorf("MaxTempC: got %v, want 45", got)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{}, config.Default())

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSetNetwork(t *testing.T) {
	tr := NewTracker(time.Now(), Config{}, config.Default())

	if tr.Snapshot().Network != nil {
		t.Error("expected nil Network initially")
	}

	tr.SetNetwork(&NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected"})

	snap := tr.Snapshot()
	if snap.Network == nil {
		t.Fatal("expected non-nil Network")
	}
	if snap.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want %q", snap.Network.IP, "192.168.1.42")
	}
}

func TestSnapshotUptime(t *testing.T) {
	snap := Snapshot{StartTime: testStart, Now: testStart.Add(15 * time.Minute)}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(testStart, Config{}, config.Default())

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{}, config.Default())
	tr.Update(StationState{Mode: mode.Standard})

	snap1 := tr.Snapshot()
	tr.Update(StationState{Mode: mode.Maintenance, PreviousMode: mode.Standard})

	if snap1.Mode != mode.Standard {
		t.Error("snapshot should be a copy; Mode was modified")
	}
}

func readySnapshot() Snapshot {
	var r sensor.Readings
	r.Climate = sensor.Reading[sensor.Climate]{Value: sensor.Climate{TemperatureC: 21.5, HumidityPct: 40, PressureHPa: 1012}, At: 1000, OK: true}
	r.Light = sensor.Reading[sensor.Light]{Value: sensor.Light{Lux: 300}, At: 4000, OK: true}

	return Snapshot{
		StationState: StationState{
			Mode:         mode.Standard,
			PreviousMode: mode.Standard,
			Indicator:    indicator.ErrorGps,
			Faults:       []Error{ErrGps},
			Tick:         5000,
			Readings:     r,
			Counts:       Counts{Transitions: 5, ButtonPresses: 2, JournalRows: 7},
		},
		Ready:         true,
		Thresholds:    config.Default(),
		StartTime:     testStart,
		Now:           testStart.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        Config{PollMs: 100, HeartbeatMs: 900000, Broker: "tcp://localhost:1883", HTTPPort: ":80"},
	}
}

func TestFormatJSON(t *testing.T) {
	data := FormatJSON(readySnapshot())

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	s := parsed.Status
	if s.Mode != "STANDARD" {
		t.Errorf("Mode: got %q, want STANDARD", s.Mode)
	}
	if s.Indicator != "ERROR_GPS" {
		t.Errorf("Indicator: got %q, want ERROR_GPS", s.Indicator)
	}
	if len(s.Faults) != 1 || s.Faults[0] != "GPS" {
		t.Errorf("Faults: got %v", s.Faults)
	}
	if !s.Ready {
		t.Error("expected Ready=true")
	}
	if s.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", s.UptimeSeconds)
	}
	if !s.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if s.Counts.Transitions != 5 || s.Counts.JournalRows != 7 {
		t.Errorf("Counts: got %+v", s.Counts)
	}
	if s.Readings.Climate == nil || s.Readings.Climate.TemperatureC != 21.5 {
		t.Fatalf("Climate: got %+v", s.Readings.Climate)
	}
	if s.Readings.Climate.AgeMs != 4000 {
		t.Errorf("Climate.AgeMs: got %d, want 4000", s.Readings.Climate.AgeMs)
	}
	if s.Readings.Light == nil || s.Readings.Light.AgeMs != 1000 {
		t.Errorf("Light: got %+v", s.Readings.Light)
	}
	if s.Readings.GPS != nil {
		t.Errorf("GPS: expected nil, got %+v", s.Readings.GPS)
	}
	if s.Thresholds.LogIntervalMinutes != 10 {
		t.Errorf("Thresholds.LogIntervalMinutes: got %d", s.Thresholds.LogIntervalMinutes)
	}
	if s.ConsoleIdleMs != nil {
		t.Error("console idle reported outside Configuration")
	}
	if s.Event != "" {
		t.Errorf("expected empty Event for web format, got %q", s.Event)
	}
	if s.Reason != "" {
		t.Errorf("expected empty Reason for web format, got %q", s.Reason)
	}
}

func TestFormatJSONEmptyFaultsIsArray(t *testing.T) {
	snap := Snapshot{StartTime: testStart, Now: testStart.Add(time.Second)}

	var raw map[string]any
	if err := json.Unmarshal(FormatJSON(snap), &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	faults, ok := raw["status"].(map[string]any)["faults"].([]any)
	if !ok {
		t.Fatalf("faults should be an array, got %T", raw["status"].(map[string]any)["faults"])
	}
	if len(faults) != 0 {
		t.Errorf("faults: got %v", faults)
	}
}

func TestFormatJSONConsoleIdle(t *testing.T) {
	snap := readySnapshot()
	snap.Mode = mode.Configuration
	snap.ConsoleIdle = 1234

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.ConsoleIdleMs == nil || *parsed.Status.ConsoleIdleMs != 1234 {
		t.Errorf("ConsoleIdleMs: got %v", parsed.Status.ConsoleIdleMs)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	data := FormatStatusEvent(readySnapshot(), "HEARTBEAT", "")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "HEARTBEAT" {
		t.Errorf("Event: got %q, want HEARTBEAT", parsed.Status.Event)
	}
	if parsed.Status.Reason != "" {
		t.Errorf("Reason: got %q, want empty", parsed.Status.Reason)
	}
	if parsed.Status.Mode != "STANDARD" {
		t.Errorf("Mode: got %q, want STANDARD", parsed.Status.Mode)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
}

func TestFormatStatusEventShutdown(t *testing.T) {
	snap := readySnapshot()
	snap.Now = testStart.Add(30 * time.Minute)

	var parsed StatusJSON
	if err := json.Unmarshal(FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM"), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{StartTime: testStart, Now: testStart.Add(time.Second)}

	var raw map[string]any
	json.Unmarshal(FormatStatusEvent(snap, "STARTUP", ""), &raw)
	status := raw["status"].(map[string]any)
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestFormatJSONWithNetwork(t *testing.T) {
	snap := readySnapshot()
	snap.Network = &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)

	if parsed.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if parsed.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", parsed.Status.Network.IP)
	}
	if parsed.Status.Network.SSID != "MyNet" {
		t.Errorf("Network.SSID: got %q, want MyNet", parsed.Status.Network.SSID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{}, config.Default())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Update(StationState{Mode: mode.Standard, Faults: []Error{ErrGps}, Counts: Counts{Transitions: i}})
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetNetwork(&NetworkInfo{IP: "1.2.3.4"})
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}
