// Package journal is the station's data logger: a SQLite table of periodic
// readings plus a log of mode transitions.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sweeney/env-station/internal/clock"
	"github.com/sweeney/env-station/internal/mode"
	"github.com/sweeney/env-station/internal/sensor"
	"github.com/sweeney/env-station/internal/status"
)

// ErrFull is returned by Record when the row cap has been reached. The row
// was written; the oldest half is pruned before the next one.
var ErrFull = errors.New("journal full")

// MinInterval is the shortest time between two readings rows.
const MinInterval clock.Millis = 1000

const schema = `
CREATE TABLE IF NOT EXISTS readings (
  id            INTEGER PRIMARY KEY AUTOINCREMENT,
  ts            TEXT    NOT NULL,
  mode          TEXT    NOT NULL,
  temperature_c REAL,
  humidity_pct  REAL,
  pressure_hpa  REAL,
  lux           REAL,
  gps_fix       INTEGER NOT NULL,
  latitude      REAL,
  longitude     REAL,
  satellites    INTEGER,
  faults        TEXT    NOT NULL
);
CREATE TABLE IF NOT EXISTS transitions (
  id        INTEGER PRIMARY KEY AUTOINCREMENT,
  ts        TEXT NOT NULL,
  from_mode TEXT NOT NULL,
  to_mode   TEXT NOT NULL,
  reason    TEXT NOT NULL
);
`

// Entry is one readings row.
type Entry struct {
	At       time.Time
	Mode     mode.Mode
	Readings sensor.Readings
	Faults   []status.Error
}

// Row is a stored readings row.
type Row struct {
	ID           int64     `json:"id"`
	At           time.Time `json:"ts"`
	Mode         string    `json:"mode"`
	TemperatureC *float64  `json:"temperature_c,omitempty"`
	HumidityPct  *float64  `json:"humidity_pct,omitempty"`
	PressureHPa  *float64  `json:"pressure_hpa,omitempty"`
	Lux          *float64  `json:"lux,omitempty"`
	GPSFix       bool      `json:"gps_fix"`
	Latitude     *float64  `json:"lat,omitempty"`
	Longitude    *float64  `json:"lon,omitempty"`
	Satellites   *int      `json:"satellites,omitempty"`
	Faults       string    `json:"faults"`
}

// Journal writes readings rows on a mode-dependent schedule.
// Not safe for concurrent use except Recent, which only reads.
type Journal struct {
	db      *sql.DB
	maxRows int
	rows    int
	full    bool

	last    clock.Millis
	started bool
}

// Open opens or creates the journal at path (":memory:" for tests).
func Open(path string, maxRows int) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// One writer; also keeps an in-memory database on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}

	var rows int
	if err := db.QueryRow(`SELECT COUNT(*) FROM readings`).Scan(&rows); err != nil {
		db.Close()
		return nil, fmt.Errorf("count journal rows: %w", err)
	}

	return &Journal{db: db, maxRows: maxRows, rows: rows}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// SetMaxRows changes the row cap.
func (j *Journal) SetMaxRows(n int) {
	j.maxRows = n
}

// Rows returns the number of readings rows.
func (j *Journal) Rows() int {
	return j.rows
}

// Interval returns the readings cadence in mode m given the configured base
// interval. ok is false in modes that do not log.
func Interval(m mode.Mode, base clock.Millis) (d clock.Millis, ok bool) {
	switch m {
	case mode.Maintenance, mode.Configuration:
		return 0, false
	case mode.Economic:
		if base > math.MaxUint32/2 {
			base = math.MaxUint32
		} else {
			base *= 2
		}
	}
	if base < MinInterval {
		base = MinInterval
	}
	return base, true
}

// Due reports whether a readings row should be written at tick now.
// The first row is due one interval after the schedule starts.
func (j *Journal) Due(now clock.Millis, m mode.Mode, base clock.Millis) bool {
	d, ok := Interval(m, base)
	if !ok {
		return false
	}
	if !j.started {
		j.started = true
		j.last = now
		return false
	}
	return clock.Due(now, j.last, d)
}

// Restart begins a new schedule, so the next row is due one interval
// after the next call to Due.
func (j *Journal) Restart() {
	j.started = false
}

// Record writes e and marks tick now as the last log time.
func (j *Journal) Record(ctx context.Context, now clock.Millis, e Entry) error {
	j.last = now
	j.started = true

	if j.full {
		if err := j.prune(ctx); err != nil {
			return err
		}
	}

	r := e.Readings
	_, err := j.db.ExecContext(ctx, `
INSERT INTO readings (ts, mode, temperature_c, humidity_pct, pressure_hpa, lux, gps_fix, latitude, longitude, satellites, faults)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.At.UTC().Format(time.RFC3339Nano),
		e.Mode.String(),
		nullable(r.Climate.OK, r.Climate.Value.TemperatureC),
		nullable(r.Climate.OK, r.Climate.Value.HumidityPct),
		nullable(r.Climate.OK, r.Climate.Value.PressureHPa),
		nullable(r.Light.OK, r.Light.Value.Lux),
		r.Fix.OK,
		nullable(r.Fix.OK, r.Fix.Value.Latitude),
		nullable(r.Fix.OK, r.Fix.Value.Longitude),
		nullable(r.Fix.OK, r.Fix.Value.Satellites),
		faultList(e.Faults),
	)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	j.rows++

	if j.maxRows > 0 && j.rows >= j.maxRows {
		j.full = true
		return fmt.Errorf("%d of %d rows: %w", j.rows, j.maxRows, ErrFull)
	}
	return nil
}

// prune drops the oldest half of the readings.
func (j *Journal) prune(ctx context.Context) error {
	drop := j.rows / 2
	if drop == 0 {
		drop = 1
	}
	res, err := j.db.ExecContext(ctx,
		`DELETE FROM readings WHERE id IN (SELECT id FROM readings ORDER BY id LIMIT ?)`, drop)
	if err != nil {
		return fmt.Errorf("prune readings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("prune readings: %w", err)
	}
	j.rows -= int(n)
	j.full = false
	return nil
}

// RecordTransition logs a mode change.
func (j *Journal) RecordTransition(ctx context.Context, at time.Time, from, to mode.Mode, reason string) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO transitions (ts, from_mode, to_mode, reason) VALUES (?, ?, ?, ?)`,
		at.UTC().Format(time.RFC3339Nano), from.String(), to.String(), reason)
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

// Recent returns up to n readings rows, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Row, error) {
	rows, err := j.db.QueryContext(ctx, `
SELECT id, ts, mode, temperature_c, humidity_pct, pressure_hpa, lux, gps_fix, latitude, longitude, satellites, faults
FROM readings ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r          Row
			ts         string
			temp, hum  sql.NullFloat64
			pres, lux  sql.NullFloat64
			lat, lon   sql.NullFloat64
			satellites sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &ts, &r.Mode, &temp, &hum, &pres, &lux, &r.GPSFix, &lat, &lon, &satellites, &r.Faults); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		if r.At, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse reading time %q: %w", ts, err)
		}
		r.TemperatureC = ptr(temp)
		r.HumidityPct = ptr(hum)
		r.PressureHPa = ptr(pres)
		r.Lux = ptr(lux)
		r.Latitude = ptr(lat)
		r.Longitude = ptr(lon)
		if satellites.Valid {
			s := int(satellites.Int64)
			r.Satellites = &s
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read readings: %w", err)
	}
	return out, nil
}

// TransitionCount returns the number of logged mode changes.
func (j *Journal) TransitionCount(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transitions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transitions: %w", err)
	}
	return n, nil
}

func nullable[T any](ok bool, v T) any {
	if !ok {
		return nil
	}
	return v
}

func ptr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func faultList(faults []status.Error) string {
	names := make([]string, len(faults))
	for i, f := range faults {
		names[i] = f.String()
	}
	return strings.Join(names, ",")
}
