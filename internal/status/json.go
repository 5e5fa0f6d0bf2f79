package status

import (
	"encoding/json"
	"fmt"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	LEDs          [][]bool     `json:"leds"`
	Lit           int          `json:"lit"`
	Hardware      string       `json:"hardware"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	Sync          SyncJSON     `json:"sync"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// SyncJSON reports state server traffic.
type SyncJSON struct {
	Endpoint        string `json:"endpoint,omitempty"`
	Connected       bool   `json:"connected"`
	SnapshotApplied bool   `json:"snapshot_applied"`
	Pushes          int    `json:"pushes"`
	PushFailures    int    `json:"push_failures"`
	Dropped         int    `json:"dropped"`
	LastError       string `json:"last_error,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of scan counters.
type CountsJSON struct {
	Presses  int `json:"presses"`
	Releases int `json:"releases"`
	Toggles  int `json:"toggles"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Backend      string   `json:"backend"`
	BusAddresses []string `json:"bus_addresses"`
	PinsPerChip  int      `json:"pins_per_chip"`
	DebounceMs   int64    `json:"debounce_ms"`
	PollMs       int64    `json:"poll_ms"`
	PushMode     string   `json:"push_mode"`
	HTTPAddr     string   `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	leds := [][]bool(snap.LEDs)
	if leds == nil {
		leds = [][]bool{}
	}
	hardware := "ok"
	if snap.HardwareError != "" {
		hardware = snap.HardwareError
	}
	addrs := make([]string, len(snap.Config.BusAddresses))
	for i, a := range snap.Config.BusAddresses {
		addrs[i] = fmt.Sprintf("%#02x", a)
	}

	return StatusInner{
		LEDs:          leds,
		Lit:           snap.Lit(),
		Hardware:      hardware,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Sync: SyncJSON{
			Endpoint:        snap.Config.SyncEndpoint,
			Connected:       snap.Sync.Connected,
			SnapshotApplied: snap.Sync.SnapshotApplied,
			Pushes:          snap.Sync.Pushes,
			PushFailures:    snap.Sync.PushFailures,
			Dropped:         snap.Sync.Dropped,
			LastError:       snap.Sync.LastError,
		},
		MQTT: MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Presses:  snap.Counts.Presses,
			Releases: snap.Counts.Releases,
			Toggles:  snap.Counts.Toggles,
		},
		Config: ConfigJSON{
			Backend:      snap.Config.Backend,
			BusAddresses: addrs,
			PinsPerChip:  snap.Config.PinsPerChip,
			DebounceMs:   snap.Config.DebounceMs,
			PollMs:       snap.Config.PollMs,
			PushMode:     snap.Config.PushMode,
			HTTPAddr:     snap.Config.HTTPAddr,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
