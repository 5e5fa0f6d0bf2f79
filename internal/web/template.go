package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/ledpanel/internal/status"
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
	"hex": func(a uint16) string {
		return fmt.Sprintf("%#02x", a)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>LED Panel</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.grid td { text-align: center; width: auto; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.fault { color: red; font-weight: bold; }
</style>
</head>
<body>
<h1>LED Panel</h1>

<h2>LEDs</h2>
<table class="grid">
{{range $chip, $row := .LEDs}}<tr><th>chip {{$chip}}</th>{{range $pin, $on := $row}}<td id="led-{{$chip}}-{{$pin}}" class="{{if $on}}on{{else}}off{{end}}">{{if $on}}ON{{else}}OFF{{end}}</td>{{end}}</tr>
{{else}}<tr><td>no scan yet</td></tr>
{{end}}</table>
<table>
<tr><th>Hardware</th><td class="{{if .HardwareError}}fault{{else}}connected{{end}}">{{if .HardwareError}}{{.HardwareError}}{{else}}ok{{end}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>State server</th><td class="{{if .Sync.Connected}}connected{{else}}disconnected{{end}}">{{if .Config.SyncEndpoint}}{{.Config.SyncEndpoint}}{{else}}disabled{{end}}</td></tr>
<tr><th>Snapshot</th><td>{{if .Sync.SnapshotApplied}}applied{{else}}not applied{{end}}</td></tr>
<tr><th>Pushes</th><td>{{.Sync.Pushes}} ({{.Sync.PushFailures}} failed, {{.Sync.Dropped}} dropped)</td></tr>
{{if .Sync.LastError}}<tr><th>Last error</th><td>{{.Sync.LastError}}</td></tr>{{end}}
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Counts</h2>
<table>
<tr><th>Presses</th><td>{{.Counts.Presses}}</td></tr>
<tr><th>Releases</th><td>{{.Counts.Releases}}</td></tr>
<tr><th>Toggles</th><td>{{.Counts.Toggles}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Backend</th><td>{{.Config.Backend}}{{range .Config.BusAddresses}} {{hex .}}{{end}}</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Poll</th><td>{{if eq .Config.PollMs 0}}continuous{{else}}{{.Config.PollMs}}ms{{end}}</td></tr>
<tr><th>Push mode</th><td>{{.Config.PushMode}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
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
		log.Printf("web: render: %v", err)
	}
}
