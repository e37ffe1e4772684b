package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/sweeney/env-station/internal/button"
	"github.com/sweeney/env-station/internal/clock"
	"github.com/sweeney/env-station/internal/config"
	"github.com/sweeney/env-station/internal/events"
	"github.com/sweeney/env-station/internal/gpio"
	"github.com/sweeney/env-station/internal/health"
	"github.com/sweeney/env-station/internal/indicator"
	"github.com/sweeney/env-station/internal/journal"
	"github.com/sweeney/env-station/internal/mode"
	"github.com/sweeney/env-station/internal/mqtt"
	"github.com/sweeney/env-station/internal/sensor"
	"github.com/sweeney/env-station/internal/station"
	"github.com/sweeney/env-station/internal/status"
)

// maintenanceInterval is the cadence of the readings line logged in MAINTENANCE.
const maintenanceInterval clock.Millis = 2000

// loopConfig wires a loop. Journal, Bus, MQTTStatus and Notify may be nil.
type loopConfig struct {
	Reader      gpio.Reader
	LED         indicator.Output
	CommonAnode bool
	Initial     mode.Mode
	Levels      button.Levels
	Hub         *sensor.Hub
	Journal     *journal.Journal
	Publisher   mqtt.Publisher
	MQTTStatus  mqtt.ConnectionStatus
	Tracker     *status.Tracker
	Bus         *events.Bus
	Logger      *slog.Logger
	Thresholds  config.Thresholds
	ConfigPath  string
	Heartbeat   time.Duration
	Watchdog    time.Duration
	Notify      func(state string)
	Now         func() time.Time
	// WallClock feeds the RTC check; nil means Now.
	WallClock func() time.Time
}

// inputs are the channels the loop selects on. Nil channels are never ready.
type inputs struct {
	tick     <-chan time.Time
	sig      <-chan os.Signal
	commands <-chan station.Command
	config   <-chan config.Thresholds
	lights   <-chan sensor.Light
	fixes    <-chan sensor.Fix
}

// loop owns the station and everything it touches. Only the goroutine
// running run uses it.
type loop struct {
	reader     gpio.Reader
	station    *station.Station
	hub        *sensor.Hub
	checker    *health.Checker
	journal    *journal.Journal
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	bus        *events.Bus
	logger     *slog.Logger

	thresholds config.Thresholds
	configPath string
	heartbeat  time.Duration
	watchdog   time.Duration
	notify     func(string)

	clock clock.Source
	now   func() time.Time

	counts          status.Counts
	lastHeartbeat   time.Time
	lastWatchdog    time.Time
	lastMaintenance clock.Millis
}

func newLoop(cfg loopConfig) *loop {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	start := cfg.Now()
	wall := cfg.WallClock
	if wall == nil {
		wall = cfg.Now
	}
	checker := health.NewChecker(cfg.Hub, cfg.Thresholds, wall)

	l := &loop{
		reader:     cfg.Reader,
		hub:        cfg.Hub,
		checker:    checker,
		journal:    cfg.Journal,
		publisher:  cfg.Publisher,
		mqttStatus: cfg.MQTTStatus,
		tracker:    cfg.Tracker,
		bus:        cfg.Bus,
		logger:     logger.With("component", "station"),
		thresholds: cfg.Thresholds,
		configPath: cfg.ConfigPath,
		heartbeat:  cfg.Heartbeat,
		watchdog:   cfg.Watchdog,
		notify:     cfg.Notify,
		clock:      clock.NewSource(start),
		now:        cfg.Now,

		lastHeartbeat: start,
		lastWatchdog:  start,
	}
	l.station = station.New(station.Config{
		Initial:     cfg.Initial,
		Output:      cfg.LED,
		CommonAnode: cfg.CommonAnode,
		Checks:      []station.HealthCheck{checker},
	}, 0, cfg.Levels)
	return l
}

// start renders the boot mode on the LED.
func (l *loop) start() error {
	return l.station.Start(0)
}

func (l *loop) at() (time.Time, clock.Millis) {
	t := l.now()
	return t, l.clock.At(t)
}

func (l *loop) run(in inputs) error {
	for {
		select {
		case s := <-in.sig:
			l.shutdown(s)
			return nil

		case cmd := <-in.commands:
			l.handleCommand(cmd)

		case th := <-in.config:
			l.logger.Info("thresholds reloaded", "path", l.configPath)
			l.applyThresholds(th)

		case v := <-in.lights:
			_, now := l.at()
			l.hub.RecordLight(now, v)

		case v := <-in.fixes:
			_, now := l.at()
			l.hub.RecordFix(now, v)

		case <-in.tick:
			l.step()
		}
	}
}

// step runs one tick: read buttons, poll sensors, advance the station, then
// act on what the station reported.
func (l *loop) step() {
	t, now := l.at()

	levels, err := l.reader.Read()
	if err != nil {
		l.logger.Warn("gpio read error", "error", err)
		return
	}

	l.pollClimate(t, now)

	r := l.station.Tick(now, levels)
	l.report(t, now, r)

	l.writeJournal(t, now)
	l.logMaintenance(now)
	l.checkHeartbeat(t, now)
	l.kickWatchdog(t)
	l.updateTracker(now)
}

func (l *loop) pollClimate(t time.Time, now clock.Millis) {
	before := l.hub.Readings().Climate
	err := l.hub.Poll(now, l.station.Mode() == mode.Economic)
	if err != nil {
		l.counts.SensorFailures++
		l.logger.Warn("climate sample failed", "error", err)
		l.publish(events.ClimateSampledEvent{Err: err.Error(), Timestamp: t})
		return
	}
	after := l.hub.Readings().Climate
	if after.OK && (!before.OK || after.At != before.At) {
		l.publish(events.ClimateSampledEvent{
			TemperatureC: after.Value.TemperatureC,
			HumidityPct:  after.Value.HumidityPct,
			PressureHPa:  after.Value.PressureHPa,
			Timestamp:    t,
		})
	}
}

func (l *loop) report(t time.Time, now clock.Millis, r station.Report) {
	for _, p := range r.Presses {
		l.counts.ButtonPresses++
		l.logger.Debug("button", "button", p.Button, "kind", p.Kind)
		l.publish(events.ButtonPressedEvent{Button: p.Button.String(), Kind: p.Kind.String(), Timestamp: t})
	}
	for _, tr := range r.Transitions {
		l.onTransition(t, now, tr, r.Indicator)
	}
	for _, fc := range r.FaultChanges {
		l.onFault(t, fc, r.Indicator)
	}
	if r.IndicatorChanged {
		l.logger.Debug("indicator", "state", r.Indicator)
	}
	if r.OutputErr != nil {
		l.logger.Warn("led output error", "error", r.OutputErr)
	}
}

func (l *loop) onTransition(t time.Time, now clock.Millis, tr station.Transition, ind indicator.State) {
	l.counts.Transitions++
	l.logger.Info("mode changed", "from", tr.From, "to", tr.To, "reason", tr.Reason)
	l.banner(tr)

	if tr.Left(mode.Configuration) && l.journal != nil {
		l.journal.Restart()
	}
	if tr.Entered(mode.Maintenance) {
		l.lastMaintenance = now
	}

	if err := l.publisher.PublishTransition(mqtt.TransitionEvent{
		Timestamp: t,
		From:      tr.From,
		To:        tr.To,
		Reason:    string(tr.Reason),
		Indicator: ind.String(),
	}); err != nil {
		l.logger.Warn("publish error", "error", err)
	}
	l.publish(events.ModeChangedEvent{From: tr.From.String(), To: tr.To.String(), Reason: string(tr.Reason), Timestamp: t})

	if l.journal != nil {
		if err := l.journal.RecordTransition(context.Background(), t, tr.From, tr.To, string(tr.Reason)); err != nil {
			l.logger.Error("journal transition failed", "error", err)
			l.station.SetFault(status.ErrSdAccess, true)
		}
	}
}

// banner logs the side effects of entering and leaving each mode.
func (l *loop) banner(tr station.Transition) {
	switch {
	case tr.Entered(mode.Configuration):
		l.logger.Info("configuration console open", "timeout", station.ConsoleTimeout.Duration())
	case tr.Left(mode.Configuration):
		l.logger.Info("configuration console closed")
	}
	switch {
	case tr.Entered(mode.Maintenance):
		l.logger.Info("maintenance: journal paused")
	case tr.Left(mode.Maintenance):
		l.logger.Info("maintenance over: journal resumed")
	}
	switch {
	case tr.Entered(mode.Economic):
		l.logger.Info("economic: sensor and journal cadence halved")
	case tr.Left(mode.Economic):
		l.logger.Info("economic over: standard cadence restored")
	}
}

func (l *loop) onFault(t time.Time, fc station.FaultChange, ind indicator.State) {
	if fc.Active {
		l.logger.Warn("fault raised", "fault", fc.Error, "indicator", ind)
	} else {
		l.logger.Info("fault cleared", "fault", fc.Error, "indicator", ind)
	}
	if err := l.publisher.PublishFault(mqtt.FaultEvent{
		Timestamp: t,
		Fault:     fc.Error,
		Active:    fc.Active,
		Indicator: ind.String(),
	}); err != nil {
		l.logger.Warn("publish error", "error", err)
	}
	l.publish(events.FaultChangedEvent{Fault: fc.Error.String(), Active: fc.Active, Timestamp: t})
}

// writeJournal records a readings row when one is due. The resulting fault
// flags are picked up by the next tick.
func (l *loop) writeJournal(t time.Time, now clock.Millis) {
	if l.journal == nil {
		return
	}
	m := l.station.Mode()
	if !l.journal.Due(now, m, l.thresholds.LogInterval()) {
		return
	}

	err := l.journal.Record(context.Background(), now, journal.Entry{
		At:       t,
		Mode:     m,
		Readings: l.hub.Readings(),
		Faults:   l.station.Faults(),
	})
	ev := events.JournalWrittenEvent{Rows: l.journal.Rows(), Timestamp: t}
	switch {
	case err == nil:
		l.station.SetFault(status.ErrSdFull, false)
		l.station.SetFault(status.ErrSdAccess, false)
	case errors.Is(err, journal.ErrFull):
		ev.Full = true
		l.logger.Warn("journal full, oldest rows go on next write", "error", err)
		l.station.SetFault(status.ErrSdFull, true)
		l.station.SetFault(status.ErrSdAccess, false)
	default:
		ev.Err = err.Error()
		l.logger.Error("journal write failed", "error", err)
		l.station.SetFault(status.ErrSdAccess, true)
	}
	l.publish(ev)
}

func (l *loop) logMaintenance(now clock.Millis) {
	if l.station.Mode() != mode.Maintenance || !clock.Due(now, l.lastMaintenance, maintenanceInterval) {
		return
	}
	l.lastMaintenance = now

	r := l.hub.Readings()
	attrs := []any{"faults", faultNames(l.station.Faults())}
	if r.Climate.OK {
		attrs = append(attrs,
			"temperature_c", r.Climate.Value.TemperatureC,
			"humidity_pct", r.Climate.Value.HumidityPct,
			"pressure_hpa", r.Climate.Value.PressureHPa)
	}
	if r.Light.OK {
		attrs = append(attrs, "lux", r.Light.Value.Lux)
	}
	if r.Fix.OK {
		attrs = append(attrs, "lat", r.Fix.Value.Latitude, "lon", r.Fix.Value.Longitude, "satellites", r.Fix.Value.Satellites)
	}
	l.logger.Info("maintenance readings", attrs...)
}

func faultNames(faults []status.Error) []string {
	out := make([]string, len(faults))
	for i, f := range faults {
		out[i] = f.String()
	}
	return out
}

func (l *loop) checkHeartbeat(t time.Time, now clock.Millis) {
	if l.heartbeat <= 0 || t.Sub(l.lastHeartbeat) < l.heartbeat {
		return
	}
	l.lastHeartbeat = t

	l.logger.Info("heartbeat",
		"uptime", t.Sub(l.clock.Start()).Truncate(time.Second),
		"mode", l.station.Mode(),
		"transitions", l.counts.Transitions,
		"button_presses", l.counts.ButtonPresses,
	)

	// Refresh network info for heartbeat
	if net := readNetworkInfo(); net != nil {
		l.tracker.SetNetwork(net)
	}
	l.updateTracker(now)
	snap := l.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  t,
		Event:      "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		l.logger.Warn("heartbeat publish error", "error", err)
	}
}

// kickWatchdog pings systemd at half the watchdog period.
func (l *loop) kickWatchdog(t time.Time) {
	if l.watchdog <= 0 || l.notify == nil || t.Sub(l.lastWatchdog) < l.watchdog/2 {
		return
	}
	l.lastWatchdog = t
	l.notify(daemon.SdNotifyWatchdog)
}

func (l *loop) updateTracker(now clock.Millis) {
	l.counts.DroppedEvents = l.station.DroppedEvents()
	if l.journal != nil {
		l.counts.JournalRows = l.journal.Rows()
	}
	l.tracker.Update(status.StationState{
		Mode:         l.station.Mode(),
		PreviousMode: l.station.PreviousMode(),
		Indicator:    l.station.Indicator(),
		Faults:       l.station.Faults(),
		Tick:         now,
		Readings:     l.hub.Readings(),
		Counts:       l.counts,
		ConsoleIdle:  l.station.ConsoleIdle(now),
	})
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
}

// handleCommand applies a console command between ticks. Accepted thresholds
// are saved to the threshold file before they take effect.
func (l *loop) handleCommand(cmd station.Command) {
	t, now := l.at()

	err := l.station.Accept(cmd, now)
	if err == nil && cmd.Thresholds != nil {
		if l.configPath != "" {
			err = config.Save(l.configPath, *cmd.Thresholds)
		}
		if err == nil {
			l.applyThresholds(*cmd.Thresholds)
		}
	}

	if err != nil {
		l.logger.Warn("command rejected", "source", cmd.Source, "command", cmd.String(), "error", err)
	} else {
		l.logger.Info("command accepted", "source", cmd.Source, "command", cmd.String())
	}
	l.publish(events.CommandReceivedEvent{Source: cmd.Source, Command: cmd.String(), Accepted: err == nil, Timestamp: t})

	l.updateTracker(now)
	cmd.Respond(err)
}

func (l *loop) applyThresholds(th config.Thresholds) {
	l.thresholds = th
	l.checker.SetThresholds(th)
	if l.journal != nil {
		l.journal.SetMaxRows(th.MaxRows)
	}
	l.tracker.SetThresholds(th)
}

func (l *loop) publish(ev events.Event) {
	if l.bus != nil {
		l.bus.Publish(ev)
	}
}

func (l *loop) shutdown(s os.Signal) {
	l.logger.Info("shutting down", "signal", s)
	if l.notify != nil {
		l.notify(daemon.SdNotifyStopping)
	}

	name := signalName(s)
	event := mqtt.SystemEvent{
		Timestamp: l.now(),
		Event:     "SHUTDOWN",
		Reason:    name,
		Retained:  true,
	}
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
	event.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), "SHUTDOWN", name)
	if err := l.publisher.PublishSystem(event); err != nil {
		l.logger.Warn("failed to publish shutdown event", "error", err)
	} else {
		l.logger.Info("published shutdown event")
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
