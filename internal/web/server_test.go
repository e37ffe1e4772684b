package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/env-station/internal/button"
	"github.com/sweeney/env-station/internal/clock"
	"github.com/sweeney/env-station/internal/config"
	"github.com/sweeney/env-station/internal/indicator"
	"github.com/sweeney/env-station/internal/journal"
	"github.com/sweeney/env-station/internal/mode"
	"github.com/sweeney/env-station/internal/station"
	"github.com/sweeney/env-station/internal/status"
)

type fakeJournal struct {
	rows []journal.Row
	err  error
	n    int
}

func (f *fakeJournal) Recent(_ context.Context, n int) ([]journal.Row, error) {
	f.n = n
	return f.rows, f.err
}

func newTracker() *status.Tracker {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		PollMs:      100,
		HeartbeatMs: 900000,
		Broker:      "tcp://192.168.1.200:1883",
		HTTPPort:    ":80",
	}
	return status.NewTracker(start, cfg, config.Default())
}

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *status.Tracker) {
	t.Helper()
	tr := newTracker()
	srv := New(":0", tr, opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr
}

// runLoop stands in for the daemon loop: it applies commands to a station
// and publishes the result to the tracker.
func runLoop(t *testing.T, tr *status.Tracker, initial mode.Mode) chan<- station.Command {
	t.Helper()
	cmds := make(chan station.Command)
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })

	st := station.New(station.Config{Initial: initial, Output: &indicator.FakeOutput{}}, 0, button.Released())
	go func() {
		var now clock.Millis
		for {
			select {
			case cmd := <-cmds:
				now += 10
				err := st.Accept(cmd, now)
				if err == nil && cmd.Thresholds != nil {
					tr.SetThresholds(*cmd.Thresholds)
				}
				st.Tick(now, button.Released())
				tr.Update(status.StationState{Mode: st.Mode(), PreviousMode: st.PreviousMode(), Indicator: st.Indicator()})
				cmd.Respond(err)
			case <-done:
				return
			}
		}
	}()
	return cmds
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func post(t *testing.T, url, body string) (int, CommandResponse) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	var cr CommandResponse
	json.NewDecoder(resp.Body).Decode(&cr)
	return resp.StatusCode, cr
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t, Options{})
	tr.Update(status.StationState{
		Mode:      mode.Economic,
		Indicator: indicator.ErrorRtc,
		Faults:    []status.Error{status.ErrRtc},
		Counts:    status.Counts{Transitions: 5},
	})
	tr.SetMQTTConnected(true)

	var sj status.StatusJSON
	resp := getJSON(t, ts.URL+"/index.json", &sj)

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}
	if sj.Status.Mode != "ECONOMIC" {
		t.Errorf("Mode: got %q, want ECONOMIC", sj.Status.Mode)
	}
	if sj.Status.Indicator != "ERROR_RTC" {
		t.Errorf("Indicator: got %q, want ERROR_RTC", sj.Status.Indicator)
	}
	if !sj.Status.Ready {
		t.Error("expected Ready=true")
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("MQTT.Broker: got %q", sj.Status.MQTT.Broker)
	}
	if sj.Status.Counts.Transitions != 5 {
		t.Errorf("Counts.Transitions: got %d, want 5", sj.Status.Counts.Transitions)
	}
	if sj.Status.Config.PollMs != 100 {
		t.Errorf("Config.PollMs: got %d, want 100", sj.Status.Config.PollMs)
	}
}

func TestJSONNetworkInfo(t *testing.T) {
	ts, tr := newTestServer(t, Options{})
	tr.SetNetwork(&status.NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"})

	var sj status.StatusJSON
	getJSON(t, ts.URL+"/index.json", &sj)

	if sj.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if sj.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", sj.Status.Network.IP)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t, Options{})
	tr.Update(status.StationState{Mode: mode.Maintenance, Faults: []status.Error{status.ErrGps}})
	tr.SetNetwork(&status.NetworkInfo{Type: "wifi", Status: "connected", SSID: "MyNet"})

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}
	for _, want := range []string{"MAINTENANCE", "GPS", "MyNet"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	ts, _ := newTestServer(t, Options{})

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(body), "STARTING") {
		t.Error("expected STARTING before the first update")
	}
}

func TestHTMLLiveScriptOnlyWithWSBroker(t *testing.T) {
	tr := status.NewTracker(time.Now(), status.Config{WSBroker: "ws://host:9001"}, config.Default())
	ts := httptest.NewServer(New(":0", tr, Options{}).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "environment/station/events") {
		t.Error("expected live update script")
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t, Options{})

	resp := getJSON(t, ts.URL+"/nonexistent", nil)
	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestModeCommand(t *testing.T) {
	tr := newTracker()
	ts := httptest.NewServer(New(":0", tr, Options{Commands: runLoop(t, tr, mode.Standard)}).Handler())
	defer ts.Close()

	code, cr := post(t, ts.URL+"/mode", `{"mode":"maintenance"}`)
	if code != 200 || !cr.OK {
		t.Fatalf("POST /mode: %d %+v", code, cr)
	}

	snap := tr.Snapshot()
	if snap.Mode != mode.Maintenance {
		t.Errorf("Mode: got %v, want MAINTENANCE", snap.Mode)
	}
	if snap.PreviousMode != mode.Standard {
		t.Errorf("PreviousMode: got %v, want STANDARD", snap.PreviousMode)
	}
}

func TestModeCommandErrors(t *testing.T) {
	tr := newTracker()
	ts := httptest.NewServer(New(":0", tr, Options{Commands: runLoop(t, tr, mode.Standard)}).Handler())
	defer ts.Close()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"unknown mode", `{"mode":"turbo"}`, http.StatusBadRequest},
		{"empty mode", `{}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, cr := post(t, ts.URL+"/mode", tt.body)
			if code != tt.want {
				t.Errorf("status: got %d, want %d", code, tt.want)
			}
			if cr.OK || cr.Error == "" {
				t.Errorf("expected error response, got %+v", cr)
			}
		})
	}
}

func TestModeMethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t, Options{})

	resp := getJSON(t, ts.URL+"/mode", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow != http.MethodPost {
		t.Errorf("Allow: got %q, want POST", allow)
	}
}

func TestCommandsDisabled(t *testing.T) {
	ts, _ := newTestServer(t, Options{})

	code, _ := post(t, ts.URL+"/mode", `{"mode":"standard"}`)
	if code != http.StatusNotImplemented {
		t.Errorf("status: got %d, want 501", code)
	}
}

func TestCommandTimesOutWhenLoopStalls(t *testing.T) {
	cmds := make(chan station.Command) // nobody reads
	ts, _ := newTestServer(t, Options{Commands: cmds, ReplyTimeout: 50 * time.Millisecond})

	code, cr := post(t, ts.URL+"/mode", `{"mode":"standard"}`)
	if code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", code)
	}
	if cr.Error != errBusy.Error() {
		t.Errorf("error: got %q", cr.Error)
	}
}

func TestConfigRejectedOutsideConfiguration(t *testing.T) {
	tr := newTracker()
	ts := httptest.NewServer(New(":0", tr, Options{Commands: runLoop(t, tr, mode.Standard)}).Handler())
	defer ts.Close()

	code, cr := post(t, ts.URL+"/config", `{"max_temp_c": 45}`)
	if code != http.StatusConflict {
		t.Errorf("status: got %d, want 409", code)
	}
	if cr.Error != station.ErrNotConfiguring.Error() {
		t.Errorf("error: got %q", cr.Error)
	}
	if got := tr.Snapshot().Thresholds.MaxTempC; got != 60 {
		t.Errorf("MaxTempC changed to %v", got)
	}
}

func TestConfigPartialUpdate(t *testing.T) {
	tr := newTracker()
	ts := httptest.NewServer(New(":0", tr, Options{Commands: runLoop(t, tr, mode.Configuration)}).Handler())
	defer ts.Close()

	code, cr := post(t, ts.URL+"/config", `{"max_temp_c": 45, "gps_enabled": false}`)
	if code != 200 || !cr.OK {
		t.Fatalf("POST /config: %d %+v", code, cr)
	}

	var th config.Thresholds
	getJSON(t, ts.URL+"/config", &th)
	if th.MaxTempC != 45 {
		t.Errorf("MaxTempC: got %v, want 45", th.MaxTempC)
	}
	if th.GPSEnabled {
		t.Error("expected GPSEnabled=false")
	}
	if th.MinTempC != -20 {
		t.Errorf("MinTempC should keep its default, got %v", th.MinTempC)
	}
}

func TestConfigInvalidThresholds(t *testing.T) {
	tr := newTracker()
	ts := httptest.NewServer(New(":0", tr, Options{Commands: runLoop(t, tr, mode.Configuration)}).Handler())
	defer ts.Close()

	code, _ := post(t, ts.URL+"/config", `{"lux_low": 5000}`)
	if code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", code)
	}
}

func TestJournalEndpoint(t *testing.T) {
	temp := 21.5
	fj := &fakeJournal{rows: []journal.Row{{ID: 2, Mode: "STANDARD", TemperatureC: &temp}, {ID: 1, Mode: "ECONOMIC"}}}
	ts, _ := newTestServer(t, Options{Journal: fj})

	var rows []journal.Row
	resp := getJSON(t, ts.URL+"/journal.json?n=2", &rows)
	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	if fj.n != 2 {
		t.Errorf("requested %d rows, want 2", fj.n)
	}
	if len(rows) != 2 || rows[0].ID != 2 || *rows[0].TemperatureC != 21.5 {
		t.Errorf("rows: got %+v", rows)
	}
}

func TestJournalEndpointLimits(t *testing.T) {
	fj := &fakeJournal{}
	ts, _ := newTestServer(t, Options{Journal: fj})

	var rows []journal.Row
	getJSON(t, ts.URL+"/journal.json", &rows)
	if fj.n != defaultJournalRows {
		t.Errorf("default n: got %d, want %d", fj.n, defaultJournalRows)
	}
	if rows == nil {
		t.Error("expected empty array, got null")
	}

	getJSON(t, ts.URL+"/journal.json?n=999999", &rows)
	if fj.n != maxJournalRows {
		t.Errorf("capped n: got %d, want %d", fj.n, maxJournalRows)
	}

	if resp := getJSON(t, ts.URL+"/journal.json?n=abc", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad n: got %d, want 400", resp.StatusCode)
	}
}

func TestJournalEndpointError(t *testing.T) {
	ts, _ := newTestServer(t, Options{Journal: &fakeJournal{err: errors.New("disk gone")}})

	if resp := getJSON(t, ts.URL+"/journal.json", nil); resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", resp.StatusCode)
	}
}

func TestJournalDisabled(t *testing.T) {
	ts, _ := newTestServer(t, Options{})

	if resp := getJSON(t, ts.URL+"/journal.json", nil); resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "env_station_mode 1\n")
	})
	ts, _ := newTestServer(t, Options{Metrics: metrics})

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "env_station_mode") {
		t.Errorf("unexpected body %q", body)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t, Options{})

	var sj1 status.StatusJSON
	getJSON(t, ts.URL+"/index.json", &sj1)
	if sj1.Status.Ready {
		t.Error("expected Ready=false initially")
	}

	tr.Update(status.StationState{Mode: mode.Configuration})
	tr.SetMQTTConnected(true)

	var sj2 status.StatusJSON
	getJSON(t, ts.URL+"/index.json", &sj2)
	if !sj2.Status.Ready {
		t.Error("expected Ready=true after update")
	}
	if sj2.Status.Mode != "CONFIGURATION" {
		t.Errorf("Mode: got %q, want CONFIGURATION", sj2.Status.Mode)
	}
	if !sj2.Status.MQTT.Connected {
		t.Error("expected MQTT connected after update")
	}
}
