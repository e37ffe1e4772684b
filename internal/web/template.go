package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/env-station/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"deref": func(p *uint32) uint32 {
		return *p
	},
	"seconds": func(ms uint32) string {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Environment Station</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.fault { color: red; font-weight: bold; }
.ok { color: green; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Environment Station{{if .Status.Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<h2>State</h2>
<table>
<tr><th>Mode</th><td id="mode">{{if .Status.Ready}}{{.Status.Mode}}{{else}}<span class="unknown">STARTING</span>{{end}}</td></tr>
<tr><th>Previous</th><td>{{.Status.PreviousMode}}</td></tr>
<tr><th>Indicator</th><td id="indicator">{{.Status.Indicator}}</td></tr>
<tr><th>Faults</th><td id="faults">{{if .Status.Faults}}<span class="fault">{{range $i, $f := .Status.Faults}}{{if $i}} {{end}}{{$f}}{{end}}</span>{{else}}<span class="ok">none</span>{{end}}</td></tr>
{{if .Status.ConsoleIdleMs}}<tr><th>Console idle</th><td>{{seconds (deref .Status.ConsoleIdleMs)}}</td></tr>{{end}}
</table>

<h2>Readings</h2>
<table>
{{with .Status.Readings.Climate}}<tr><th>Temperature</th><td>{{printf "%.1f" .TemperatureC}} &deg;C</td></tr>
<tr><th>Humidity</th><td>{{printf "%.1f" .HumidityPct}} %</td></tr>
<tr><th>Pressure</th><td>{{printf "%.1f" .PressureHPa}} hPa ({{seconds .AgeMs}} ago)</td></tr>{{else}}<tr><th>Climate</th><td class="unknown">no reading</td></tr>{{end}}
{{with .Status.Readings.Light}}<tr><th>Light</th><td>{{printf "%.0f" .Lux}} lx ({{seconds .AgeMs}} ago)</td></tr>{{else}}<tr><th>Light</th><td class="unknown">no reading</td></tr>{{end}}
{{with .Status.Readings.GPS}}<tr><th>GPS</th><td>{{printf "%.5f" .Latitude}}, {{printf "%.5f" .Longitude}} ({{.Satellites}} sats, {{seconds .AgeMs}} ago)</td></tr>{{else}}<tr><th>GPS</th><td class="unknown">no fix</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .Status.MQTT.Connected}}connected{{else}}disconnected{{end}}">{{if .Status.MQTT.Connected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Status.Config.Broker}}</td></tr>
{{with .Status.Network}}<tr><th>Network</th><td>{{.Status}} ({{.Type}}{{if .SSID}}: {{.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.IP}}</td></tr>{{end}}
</table>

<h2>Counts</h2>
<table>
<tr><th>Transitions</th><td>{{.Status.Counts.Transitions}}</td></tr>
<tr><th>Button presses</th><td>{{.Status.Counts.ButtonPresses}}</td></tr>
<tr><th>Dropped events</th><td>{{.Status.Counts.DroppedEvents}}</td></tr>
<tr><th>Sensor failures</th><td>{{.Status.Counts.SensorFailures}}</td></tr>
<tr><th>Journal rows</th><td>{{.Status.Counts.JournalRows}} / {{.Status.Thresholds.MaxRows}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.Status.StartTime}}</td></tr>
<tr><th>Poll</th><td>{{.Status.Config.PollMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Status.Config.HeartbeatMs 0}}disabled{{else}}{{.Status.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Log interval</th><td>{{.Status.Thresholds.LogIntervalMinutes}} min</td></tr>
<tr><th>Sensor timeout</th><td>{{.Status.Thresholds.TimeoutSeconds}} s</td></tr>
<tr><th>HTTP</th><td>{{.Status.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/journal.json">Journal</a> | <a href="/config">Thresholds</a> | <a href="/metrics">Metrics</a></p>
{{if .Status.Config.WSBroker}}
<script src="/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Status.Config.WSBroker}}";
  var topic = "environment/station/events";
  var dot = document.getElementById("live-dot");
  var modeEl = document.getElementById("mode");
  var indEl = document.getElementById("indicator");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  var client = mqtt.connect(broker, { reconnectPeriod: 5000 });

  client.on("connect", function() {
    setDot("ok", "live");
    client.subscribe(topic);
  });

  client.on("reconnect", function() {
    setDot("pending", "reconnecting");
  });

  client.on("offline", function() {
    setDot("err", "offline");
  });

  client.on("error", function() {
    setDot("err", "error");
  });

  client.on("message", function(t, payload) {
    try {
      var msg = JSON.parse(payload.toString());
      if (msg.station) {
        if (msg.station.to) {
          modeEl.textContent = msg.station.to;
        }
        indEl.textContent = msg.station.indicator;
      }
    } catch (e) {}
  });
})();
</script>
{{end}}
</body>
</html>
`

type pageData struct {
	Status status.StatusInner
	Uptime time.Duration
}

func renderHTML(w io.Writer, snap status.Snapshot) error {
	return indexTmpl.Execute(w, pageData{
		Status: status.Inner(snap),
		Uptime: snap.Uptime(),
	})
}
