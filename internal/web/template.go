package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/hatch-controller/internal/status"
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
	"cm": func(um uint64) string {
		return fmt.Sprintf("%d.%02d cm", um/10000, um%10000/100)
	},
	"clock": func(t time.Time) string {
		return t.UTC().Format("15:04:05")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>Hatch Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.busy { color: orange; font-weight: bold; }
.idle { color: #888; }
.alert { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Hatch Controller</h1>

<h2>State</h2>
<table>
<tr><th>Controller</th><td id="state" class="{{if eq .State.String "IDLE"}}idle{{else}}busy{{end}}">{{.State}}</td></tr>
<tr><th>Hatch</th><td id="hatch">{{.Hatch}}</td></tr>
<tr><th>Last distance</th><td>{{with .Distance}}{{cm .Value}} at {{clock .At}}{{else}}none{{end}}</td></tr>
<tr><th>Last average</th><td>{{with .Average}}{{.Value}} {{$.Config.Unit}} at {{clock .At}}{{else}}none{{end}}{{if .Class}} ({{.Class}}){{end}}</td></tr>
<tr><th>Trip-wire</th><td class="{{if .Tripwire.AlertSent}}alert{{end}}">{{.Tripwire.LastSample}} / {{.Config.TripThreshold}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Serial</th><td>{{.Config.SerialPort}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Commands</th><td>{{.Counts.Commands}}</td></tr>
<tr><th>Rejected</th><td>{{.Counts.Rejected}}</td></tr>
<tr><th>Measurements</th><td>{{.Counts.Measurements}}</td></tr>
<tr><th>Echo timeouts</th><td>{{.Stats.EchoTimeouts}}</td></tr>
<tr><th>High / Low</th><td>{{.Counts.High}} / {{.Counts.Low}}</td></tr>
<tr><th>Opens / Closes</th><td>{{.Counts.Opens}} / {{.Counts.Closes}}</td></tr>
<tr><th>Trip alerts</th><td>{{.Counts.Alerts}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02 15:04:05"}} UTC</td></tr>
<tr><th>Threshold</th><td>{{.Config.Threshold}} {{.Config.Unit}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">Metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("web: render index: %v", err)
	}
}
