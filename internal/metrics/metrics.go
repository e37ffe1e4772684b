// Package metrics exposes station activity as Prometheus collectors fed
// from the event bus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/env-station/internal/events"
	"github.com/sweeney/env-station/internal/mode"
	"github.com/sweeney/env-station/internal/status"
)

const namespace = "env_station"

// Metrics owns a private registry so tests and the daemon never share state.
type Metrics struct {
	reg *prometheus.Registry

	transitions  *prometheus.CounterVec
	currentMode  *prometheus.GaugeVec
	faultActive  *prometheus.GaugeVec
	buttons      *prometheus.CounterVec
	temperature  prometheus.Gauge
	humidity     prometheus.Gauge
	pressure     prometheus.Gauge
	sensorErrors prometheus.Counter
	journalRows  prometheus.Gauge
	journal      *prometheus.CounterVec
	commands     *prometheus.CounterVec

	unsubs []func()
}

// New registers the collectors and subscribes them to bus.
func New(bus *events.Bus) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &Metrics{
		reg: reg,
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mode_transitions_total",
			Help:      "Operating mode transitions",
		}, []string{"from", "to", "reason"}),
		currentMode: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mode",
			Help:      "1 for the current operating mode, 0 otherwise",
		}, []string{"mode"}),
		faultActive: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fault_active",
			Help:      "1 while the fault is raised",
		}, []string{"fault"}),
		buttons: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "button_events_total",
			Help:      "Debounced button events",
		}, []string{"button", "kind"}),
		temperature: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Last climate sensor temperature",
		}),
		humidity: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "humidity_percent",
			Help:      "Last climate sensor relative humidity",
		}),
		pressure: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pressure_hpa",
			Help:      "Last climate sensor pressure",
		}),
		sensorErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_errors_total",
			Help:      "Failed climate sensor reads",
		}),
		journalRows: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "journal_rows",
			Help:      "Readings rows currently stored",
		}),
		journal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_writes_total",
			Help:      "Journal write attempts by result",
		}, []string{"result"}),
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "External commands by source and outcome",
		}, []string{"source", "accepted"}),
	}

	for _, md := range []mode.Mode{mode.Standard, mode.Configuration, mode.Maintenance, mode.Economic} {
		m.currentMode.WithLabelValues(md.String())
	}
	for _, e := range status.Errors() {
		m.faultActive.WithLabelValues(e.String())
	}

	m.unsubs = append(m.unsubs,
		bus.Subscribe(m.onModeChanged),
		bus.Subscribe(m.onFaultChanged),
		bus.Subscribe(m.onButtonPressed),
		bus.Subscribe(m.onClimateSampled),
		bus.Subscribe(m.onJournalWritten),
		bus.Subscribe(m.onCommandReceived),
	)
	return m
}

// SetMode marks md as the current mode. Used at boot, before any transition.
func (m *Metrics) SetMode(md mode.Mode) {
	m.currentMode.Reset()
	for _, other := range []mode.Mode{mode.Standard, mode.Configuration, mode.Maintenance, mode.Economic} {
		v := 0.0
		if other == md {
			v = 1
		}
		m.currentMode.WithLabelValues(other.String()).Set(v)
	}
}

func (m *Metrics) onModeChanged(e events.ModeChangedEvent) {
	m.transitions.WithLabelValues(e.From, e.To, e.Reason).Inc()
	m.currentMode.WithLabelValues(e.From).Set(0)
	m.currentMode.WithLabelValues(e.To).Set(1)
}

func (m *Metrics) onFaultChanged(e events.FaultChangedEvent) {
	v := 0.0
	if e.Active {
		v = 1
	}
	m.faultActive.WithLabelValues(e.Fault).Set(v)
}

func (m *Metrics) onButtonPressed(e events.ButtonPressedEvent) {
	m.buttons.WithLabelValues(e.Button, e.Kind).Inc()
}

func (m *Metrics) onClimateSampled(e events.ClimateSampledEvent) {
	if e.Err != "" {
		m.sensorErrors.Inc()
		return
	}
	m.temperature.Set(e.TemperatureC)
	m.humidity.Set(e.HumidityPct)
	m.pressure.Set(e.PressureHPa)
}

func (m *Metrics) onJournalWritten(e events.JournalWrittenEvent) {
	result := "ok"
	switch {
	case e.Full:
		result = "full"
	case e.Err != "":
		result = "error"
	}
	m.journal.WithLabelValues(result).Inc()
	m.journalRows.Set(float64(e.Rows))
}

func (m *Metrics) onCommandReceived(e events.CommandReceivedEvent) {
	accepted := "false"
	if e.Accepted {
		accepted = "true"
	}
	m.commands.WithLabelValues(e.Source, accepted).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Close unsubscribes from the bus.
func (m *Metrics) Close() {
	for _, u := range m.unsubs {
		u()
	}
	m.unsubs = nil
}
