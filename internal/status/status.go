// Package status provides a thread-safe status tracker for the ledpanel daemon.
// It is written by the scan loop and read by HTTP handlers and MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/ledpanel/internal/logic"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Backend      string
	BusAddresses []uint16
	PinsPerChip  int
	DebounceMs   int64
	PollMs       int64
	SyncEndpoint string
	PushMode     string
	Broker       string
	HTTPAddr     string
}

// SyncStats counts traffic to the state server.
type SyncStats struct {
	Connected       bool
	SnapshotApplied bool
	Pushes          int
	PushFailures    int
	Dropped         int
	LastError       string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type; LEDs is a private copy.
type Snapshot struct {
	LEDs          logic.Snapshot
	Counts        logic.Counts
	Sync          SyncStats
	HardwareError string
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Lit returns how many LEDs are on.
func (s Snapshot) Lit() int {
	n := 0
	for _, row := range s.LEDs {
		for _, on := range row {
			if on {
				n++
			}
		}
	}
	return n
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update stores the LED grid and scan counters. leds must not be mutated
// by the caller afterwards.
func (t *Tracker) Update(leds logic.Snapshot, counts logic.Counts) {
	t.mu.Lock()
	t.snap.LEDs = leds
	t.snap.Counts = counts
	t.mu.Unlock()
}

// RecordPush counts one push attempt and its outcome.
func (t *Tracker) RecordPush(err error) {
	t.mu.Lock()
	t.snap.Sync.Pushes++
	if err != nil {
		t.snap.Sync.PushFailures++
		t.snap.Sync.LastError = err.Error()
	}
	t.mu.Unlock()
}

// RecordDropped counts a push discarded because the outbox was full.
func (t *Tracker) RecordDropped() {
	t.mu.Lock()
	t.snap.Sync.Dropped++
	t.mu.Unlock()
}

// SetSyncConnected sets the link state seen by the sync client.
func (t *Tracker) SetSyncConnected(connected bool) {
	t.mu.Lock()
	t.snap.Sync.Connected = connected
	t.mu.Unlock()
}

// SetSnapshotApplied records the outcome of the startup pull.
func (t *Tracker) SetSnapshotApplied(applied bool, err error) {
	t.mu.Lock()
	t.snap.Sync.SnapshotApplied = applied
	if err != nil {
		t.snap.Sync.LastError = err.Error()
	}
	t.mu.Unlock()
}

// SetHardwareError sets the last expander error ("" = healthy).
func (t *Tracker) SetHardwareError(msg string) {
	t.mu.Lock()
	t.snap.HardwareError = msg
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
