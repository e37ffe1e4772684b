package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/env-station/internal/clock"
	"github.com/sweeney/env-station/internal/mode"
	"github.com/sweeney/env-station/internal/sensor"
	"github.com/sweeney/env-station/internal/status"
)

func openTestJournal(t *testing.T, maxRows int) *Journal {
	t.Helper()
	j, err := Open(":memory:", maxRows)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := j.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return j
}

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func entry(i int) Entry {
	return Entry{
		At:   t0.Add(time.Duration(i) * time.Minute),
		Mode: mode.Standard,
		Readings: sensor.Readings{
			Climate: sensor.Reading[sensor.Climate]{Value: sensor.Climate{TemperatureC: float64(i)}, OK: true},
		},
	}
}

func TestInterval(t *testing.T) {
	tests := []struct {
		mode mode.Mode
		base clock.Millis
		want clock.Millis
		ok   bool
	}{
		{mode.Standard, 600000, 600000, true},
		{mode.Economic, 600000, 1200000, true},
		{mode.Standard, 10, MinInterval, true},
		{mode.Economic, 400, MinInterval, true},
		{mode.Economic, 0xF0000000, 0xFFFFFFFF, true},
		{mode.Maintenance, 600000, 0, false},
		{mode.Configuration, 600000, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			got, ok := Interval(tt.mode, tt.base)
			if got != tt.want || ok != tt.ok {
				t.Errorf("Interval(%v, %d) = %d, %v, want %d, %v", tt.mode, tt.base, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestDueSchedule(t *testing.T) {
	j := openTestJournal(t, 100)
	ctx := context.Background()

	if j.Due(0, mode.Standard, 1000) {
		t.Fatal("first call starts the schedule and is not due")
	}
	if j.Due(999, mode.Standard, 1000) {
		t.Error("not due before one interval")
	}
	if !j.Due(1000, mode.Standard, 1000) {
		t.Fatal("expected due at one interval")
	}
	if err := j.Record(ctx, 1000, entry(0)); err != nil {
		t.Fatal(err)
	}
	if j.Due(2999, mode.Economic, 1000) {
		t.Error("economic doubles the interval")
	}
	if !j.Due(3000, mode.Economic, 1000) {
		t.Error("expected due after a doubled interval")
	}
	if j.Due(100000, mode.Maintenance, 1000) {
		t.Error("maintenance never logs")
	}
}

func TestRestart(t *testing.T) {
	j := openTestJournal(t, 100)
	j.Due(0, mode.Standard, 1000)
	j.Restart()

	if j.Due(5000, mode.Standard, 1000) {
		t.Error("restarted schedule must wait one interval")
	}
	if !j.Due(6000, mode.Standard, 1000) {
		t.Error("expected due one interval after restart")
	}
}

func TestRecordAndRecent(t *testing.T) {
	j := openTestJournal(t, 100)
	ctx := context.Background()

	e := Entry{
		At:   t0,
		Mode: mode.Economic,
		Readings: sensor.Readings{
			Climate: sensor.Reading[sensor.Climate]{Value: sensor.Climate{TemperatureC: 18.5, HumidityPct: 61, PressureHPa: 1012}, OK: true},
			Fix:     sensor.Reading[sensor.Fix]{Value: sensor.Fix{Latitude: 51.5, Longitude: -0.12, Satellites: 8}, OK: true},
		},
		Faults: []status.Error{status.ErrGps, status.ErrSdFull},
	}
	if err := j.Record(ctx, 0, e); err != nil {
		t.Fatalf("Record: %v", err)
	}

	rows, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	r := rows[0]
	if !r.At.Equal(t0) || r.Mode != "ECONOMIC" {
		t.Errorf("row = %+v", r)
	}
	if r.TemperatureC == nil || *r.TemperatureC != 18.5 {
		t.Errorf("temperature = %v, want 18.5", r.TemperatureC)
	}
	if r.Lux != nil {
		t.Errorf("lux = %v, want NULL when no light reading", *r.Lux)
	}
	if !r.GPSFix || r.Satellites == nil || *r.Satellites != 8 {
		t.Errorf("gps = %v sats %v", r.GPSFix, r.Satellites)
	}
	if r.Faults != "GPS,SD_FULL" {
		t.Errorf("faults = %q", r.Faults)
	}
}

func TestFullThenPrune(t *testing.T) {
	j := openTestJournal(t, 4)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := j.Record(ctx, clock.Millis(i), entry(i)); err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
	}
	err := j.Record(ctx, 3, entry(3))
	if !errors.Is(err, ErrFull) {
		t.Fatalf("Record at cap err = %v, want ErrFull", err)
	}
	if j.Rows() != 4 {
		t.Fatalf("rows = %d, want 4 (row at cap is kept)", j.Rows())
	}

	if err := j.Record(ctx, 4, entry(4)); err != nil {
		t.Fatalf("Record after prune: %v", err)
	}
	if j.Rows() != 3 {
		t.Errorf("rows = %d, want 3 after pruning half and inserting one", j.Rows())
	}

	rows, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	oldest := rows[len(rows)-1]
	if *oldest.TemperatureC != 2 {
		t.Errorf("oldest kept temperature = %v, want 2", *oldest.TemperatureC)
	}
}

func TestRowCountSurvivesReopen(t *testing.T) {
	path := t.TempDir() + "/journal.db"
	ctx := context.Background()

	j, err := Open(path, 100)
	if err != nil {
		t.Fatal(err)
	}
	j.Record(ctx, 0, entry(0))
	j.Record(ctx, 1, entry(1))
	j.Close()

	j, err = Open(path, 100)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	if j.Rows() != 2 {
		t.Errorf("rows = %d, want 2", j.Rows())
	}
}

func TestRecordTransition(t *testing.T) {
	j := openTestJournal(t, 100)
	ctx := context.Background()

	if err := j.RecordTransition(ctx, t0, mode.Standard, mode.Maintenance, "BUTTON"); err != nil {
		t.Fatalf("RecordTransition: %v", err)
	}
	n, err := j.TransitionCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("transitions = %d, want 1", n)
	}
}

func TestRecordAfterCloseFails(t *testing.T) {
	j, err := Open(":memory:", 100)
	if err != nil {
		t.Fatal(err)
	}
	j.Close()

	if err := j.Record(context.Background(), 0, entry(0)); err == nil {
		t.Error("expected error writing to a closed journal")
	} else if errors.Is(err, ErrFull) {
		t.Error("access errors must not look like ErrFull")
	}
}
