// Command env-station runs the environmental station: it polls the buttons and
// sensors, drives the status LED, journals readings and publishes mode and
// fault changes to MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/sweeney/env-station/internal/button"
	"github.com/sweeney/env-station/internal/clock"
	"github.com/sweeney/env-station/internal/config"
	"github.com/sweeney/env-station/internal/events"
	"github.com/sweeney/env-station/internal/gpio"
	"github.com/sweeney/env-station/internal/indicator"
	"github.com/sweeney/env-station/internal/journal"
	"github.com/sweeney/env-station/internal/logging"
	"github.com/sweeney/env-station/internal/metrics"
	"github.com/sweeney/env-station/internal/mode"
	"github.com/sweeney/env-station/internal/mqtt"
	"github.com/sweeney/env-station/internal/sensor"
	"github.com/sweeney/env-station/internal/station"
	"github.com/sweeney/env-station/internal/status"
	"github.com/sweeney/env-station/internal/web"
)

// options holds the parsed command line.
type options struct {
	poll        time.Duration
	sample      time.Duration
	broker      string
	wsBroker    string
	heartbeat   time.Duration
	buttons     gpio.ButtonPins
	leds        gpio.LEDPins
	commonAnode bool
	httpAddr    string
	configPath  string
	dbPath      string
	logLevel    string
	logFormat   string
	i2cBus      string
	i2cAddr     uint16
	startConfig bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{
		buttons: gpio.DefaultButtonPins(),
		leds:    gpio.DefaultLEDPins(),
	}

	root := &cobra.Command{
		Use:           "env-station",
		Short:         "Environmental station daemon",
		Long:          "Polls the station buttons and sensors, drives the status LED, journals readings and publishes mode and fault changes to MQTT.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), opts)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			if err := run(opts, logger); err != nil {
				logger.Error("fatal", "error", err)
				return err
			}
			return nil
		},
	}

	f := root.Flags()
	f.DurationVar(&opts.poll, "poll", 20*time.Millisecond, "Loop tick interval")
	f.DurationVar(&opts.sample, "sample", 2*time.Second, "Climate sensor sampling interval (doubled in ECONOMIC)")
	f.StringVar(&opts.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	f.StringVar(&opts.wsBroker, "ws-broker", "=broker", `MQTT websocket URL for live UI ("=broker" derives from --broker, "off" disables)`)
	f.DurationVar(&opts.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	f.IntVar(&opts.leds.Red, "pin-red", gpio.PinRed, "BCM pin number for the red LED channel")
	f.IntVar(&opts.leds.Green, "pin-green", gpio.PinGreen, "BCM pin number for the green LED channel")
	f.IntVar(&opts.leds.Blue, "pin-blue", gpio.PinBlue, "BCM pin number for the blue LED channel")
	f.BoolVar(&opts.commonAnode, "common-anode", false, "LED is common anode (channels active-low)")
	f.StringVar(&opts.httpAddr, "http", ":80", "HTTP status address (empty to disable)")
	f.StringVar(&opts.dbPath, "db", "/var/lib/env-station/journal.db", "SQLite readings journal (empty to disable)")
	f.BoolVar(&opts.startConfig, "start-config", false, "Boot into CONFIGURATION mode")

	pf := root.PersistentFlags()
	pf.IntVar(&opts.buttons[button.Primary], "pin-primary", gpio.PinPrimary, "BCM pin number for the primary button")
	pf.IntVar(&opts.buttons[button.Secondary], "pin-secondary", gpio.PinSecondary, "BCM pin number for the secondary button")
	pf.StringVar(&opts.configPath, "config", "/etc/env-station/thresholds.toml", "Threshold file (TOML, watched for changes)")
	pf.StringVar(&opts.i2cBus, "i2c-bus", "", "I2C bus for the BME280 (empty for the first bus)")
	pf.Uint16Var(&opts.i2cAddr, "i2c-addr", sensor.DefaultBME280Address, "BME280 I2C address (0 disables the climate sensor)")
	pf.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&opts.logFormat, "log-format", logging.FormatText, "Log format: text, json, journal")

	root.AddCommand(newPrintStateCmd(opts))
	return root
}

func newLogger(w io.Writer, opts *options) (*slog.Logger, error) {
	level, err := logging.ParseLevel(opts.logLevel)
	if err != nil {
		return nil, err
	}
	return logging.New(w, level, opts.logFormat)
}

func newPrintStateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "print-state",
		Short: "Print button levels, boot mode and a climate sample, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printState(cmd.OutOrStdout(), opts)
		},
	}
}

func printState(w io.Writer, opts *options) error {
	reader, err := gpio.NewRealReader(opts.buttons)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer reader.Close()

	levels, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}

	thresholds, err := loadThresholds(opts.configPath)
	if err != nil {
		return err
	}

	var climate *sensor.Climate
	var sampleErr error
	if opts.i2cAddr != 0 {
		climate, sampleErr = sampleOnce(opts.i2cBus, opts.i2cAddr)
	}

	writeState(w, levels, bootMode(levels, opts.startConfig), thresholds, climate, sampleErr)
	return nil
}

func sampleOnce(bus string, addr uint16) (*sensor.Climate, error) {
	dev, err := sensor.NewBME280(bus, addr)
	if err != nil {
		return nil, err
	}
	defer dev.Close()
	c, err := dev.Sample()
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func writeState(w io.Writer, levels button.Levels, boot mode.Mode, t config.Thresholds, c *sensor.Climate, sampleErr error) {
	for _, id := range []button.ID{button.Primary, button.Secondary} {
		state := "released"
		if levels[id] == 0 {
			state = "pressed"
		}
		fmt.Fprintf(w, "%s: %s\n", id, state)
	}
	fmt.Fprintf(w, "boot mode: %s\n", boot)
	switch {
	case sampleErr != nil:
		fmt.Fprintf(w, "climate: error: %v\n", sampleErr)
	case c != nil:
		fmt.Fprintf(w, "climate: %.1fC %.1f%% %.1fhPa\n", c.TemperatureC, c.HumidityPct, c.PressureHPa)
	}
	fmt.Fprintf(w, "thresholds: temp %.1f..%.1f humidity %.1f..%.1f lux %.0f..%.0f timeout %ds log every %dm\n",
		t.MinTempC, t.MaxTempC, t.MinHumidity, t.MaxHumidity, t.LuxLow, t.LuxHigh, t.TimeoutSeconds, t.LogIntervalMinutes)
}

// bootMode picks the initial mode. Holding the primary button at power-up
// opens the configuration console.
func bootMode(levels button.Levels, startConfig bool) mode.Mode {
	if startConfig || levels[button.Primary] == 0 {
		return mode.Configuration
	}
	return mode.Standard
}

func loadThresholds(path string) (config.Thresholds, error) {
	if path == "" {
		return config.Default(), nil
	}
	t, err := config.Load(path)
	if err != nil {
		return config.Thresholds{}, fmt.Errorf("load thresholds: %w", err)
	}
	return t, nil
}

func run(opts *options, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	thresholds, err := loadThresholds(opts.configPath)
	if err != nil {
		return err
	}

	// Initialize GPIO
	reader, err := gpio.NewRealReader(opts.buttons)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer reader.Close()

	levels, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}
	initial := bootMode(levels, opts.startConfig)

	off := indicator.Color{}
	if opts.commonAnode {
		off = off.Inverted()
	}
	led, err := gpio.NewRealLED(opts.leds, off)
	if err != nil {
		return fmt.Errorf("init led: %w", err)
	}
	defer led.Close()

	// Climate sensor. A missing sensor is a SENSOR_ACCESS fault, not fatal.
	var poller *sensor.Poller
	if opts.i2cAddr != 0 {
		dev, err := sensor.NewBME280(opts.i2cBus, opts.i2cAddr)
		if err != nil {
			logger.Warn("climate sensor unavailable", "error", err)
		} else {
			defer dev.Close()
			poller = sensor.NewPoller(dev, clock.FromDuration(opts.sample))
		}
	}
	hub := sensor.NewHub(poller)

	var jrnl *journal.Journal
	var journalErr error
	if opts.dbPath != "" {
		jrnl, journalErr = journal.Open(opts.dbPath, thresholds.MaxRows)
		if journalErr != nil {
			logger.Error("journal unavailable", "error", journalErr)
		} else {
			defer jrnl.Close()
		}
	}

	bus := events.New()
	m := metrics.New(bus)
	defer m.Close()
	m.SetMode(initial)

	// MQTT handlers run on paho goroutines; they only hand values to the loop.
	commands := make(chan station.Command, 8)
	lights := make(chan sensor.Light, 8)
	fixes := make(chan sensor.Fix, 8)
	handlers := mqtt.Handlers{
		Command: func(md mode.Mode) {
			if !offer(commands, station.ModeCommand("mqtt", md)) {
				logger.Warn("command dropped, loop busy", "mode", md)
			}
		},
		Light: func(v sensor.Light) { offer(lights, v) },
		Fix:   func(v sensor.Fix) { offer(fixes, v) },
	}

	publisher, err := mqtt.NewRealPublisher(opts.broker, mqtt.Options{Handlers: handlers, Logger: logger})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:      opts.poll.Milliseconds(),
		HeartbeatMs: opts.heartbeat.Milliseconds(),
		Broker:      opts.broker,
		WSBroker:    resolveWSBroker(opts.wsBroker, opts.broker, logger),
		HTTPPort:    opts.httpAddr,
		ConfigPath:  opts.configPath,
		DBPath:      opts.dbPath,
		CommonAnode: opts.commonAnode,
	}, thresholds)
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	tracker.SetMQTTConnected(publisher.IsConnected())

	var updates <-chan config.Thresholds
	if opts.configPath != "" {
		w := config.NewWatcher(opts.configPath, config.DefaultDebounce, logger)
		if err := w.Start(ctx); err != nil {
			logger.Warn("threshold file not watched", "path", opts.configPath, "error", err)
		} else {
			defer w.Close()
			updates = w.Updates()
		}
	}

	publishStartup(publisher, tracker, logger)

	// Start HTTP status server
	if opts.httpAddr != "" {
		webOpts := web.Options{Commands: commands, Metrics: m.Handler(), Logger: logger}
		if jrnl != nil {
			webOpts.Journal = jrnl
		}
		srv := web.New(opts.httpAddr, tracker, webOpts)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http status server listening", "addr", opts.httpAddr)
	}

	notify := func(state string) {
		if _, err := daemon.SdNotify(false, state); err != nil {
			logger.Debug("sd_notify failed", "state", state, "error", err)
		}
	}
	watchdog, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("watchdog settings unreadable", "error", err)
	}

	l := newLoop(loopConfig{
		Reader:      reader,
		LED:         led,
		CommonAnode: opts.commonAnode,
		Initial:     initial,
		Levels:      levels,
		Hub:         hub,
		Journal:     jrnl,
		Publisher:   publisher,
		MQTTStatus:  publisher,
		Tracker:     tracker,
		Bus:         bus,
		Logger:      logger,
		Thresholds:  thresholds,
		ConfigPath:  opts.configPath,
		Heartbeat:   opts.heartbeat,
		Watchdog:    watchdog,
		Notify:      notify,
		Now:         time.Now,
	})
	if journalErr != nil {
		l.station.SetFault(status.ErrSdAccess, true)
	}
	if err := l.start(); err != nil {
		logger.Warn("led output error", "error", err)
	}

	logger.Info("started",
		"mode", initial,
		"poll", opts.poll,
		"broker", opts.broker,
		"heartbeat", opts.heartbeat,
		"climate", poller != nil,
		"journal", jrnl != nil,
	)
	notify(daemon.SdNotifyReady)

	ticker := time.NewTicker(opts.poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return l.run(inputs{
		tick:     ticker.C,
		sig:      sigCh,
		commands: commands,
		config:   updates,
		lights:   lights,
		fixes:    fixes,
	})
}

// offer sends v without blocking and reports whether it was delivered.
func offer[T any](ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	default:
		return false
	}
}

func publishStartup(publisher mqtt.Publisher, tracker *status.Tracker, logger *slog.Logger) {
	snap := tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(event); err != nil {
		logger.Warn("failed to publish startup event", "error", err)
	} else {
		logger.Info("published startup event")
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

// resolveWSBroker converts the --ws-broker flag value into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; "off" disables.
func resolveWSBroker(ws, broker string, logger *slog.Logger) string {
	if ws == "off" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	u, err := url.Parse(broker)
	if err != nil {
		logger.Warn("ws-broker: cannot parse --broker", "broker", broker, "error", err)
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}
