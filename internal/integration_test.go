package internal

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sweeney/ledpanel/internal/controller"
	"github.com/sweeney/ledpanel/internal/expander"
	"github.com/sweeney/ledpanel/internal/logic"
	"github.com/sweeney/ledpanel/internal/mqtt"
	"github.com/sweeney/ledpanel/internal/schedule"
	"github.com/sweeney/ledpanel/internal/stateserver"
	"github.com/sweeney/ledpanel/internal/statesync"
	"github.com/sweeney/ledpanel/internal/status"
)

const window = 50 * time.Millisecond

var start = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type rig struct {
	port      *expander.FakePort
	store     *stateserver.Store
	sched     *schedule.Scheduler
	publisher *mqtt.FakePublisher
	tracker   *status.Tracker
	ctrl      *controller.Controller
}

// newRig wires a fake panel to a real state server over HTTP.
func newRig(t *testing.T, chips, pins int, seed func(*stateserver.Store)) *rig {
	t.Helper()
	store, err := stateserver.Open(filepath.Join(t.TempDir(), "ledpanel.db"), chips, pins)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if seed != nil {
		seed(store)
	}
	sched := schedule.NewScheduler(store, nil)
	ts := httptest.NewServer(stateserver.NewServer(store, sched, func() time.Time { return start }))
	t.Cleanup(ts.Close)

	client, err := statesync.NewHTTPClient(ts.URL, time.Second, statesync.Always{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	r := &rig{
		port:      expander.NewFakePort(),
		store:     store,
		sched:     sched,
		publisher: mqtt.NewFakePublisher(),
		tracker:   status.NewTracker(start, status.Config{}),
	}
	r.ctrl = controller.New(logic.NewGrid(chips, pins, window), r.port, client, controller.Options{
		Mirror:  r.publisher,
		Tracker: r.tracker,
	})
	return r
}

// press holds a button long enough to register, then releases it.
func (r *rig) press(t *testing.T, chip, pin int, at time.Time) []logic.ToggleEvent {
	t.Helper()
	ctx := context.Background()
	line := pin + logic.ButtonOffset
	r.port.Press(chip, line)
	events := r.ctrl.RunCycle(ctx, at)
	events = append(events, r.ctrl.RunCycle(ctx, at.Add(window))...)
	r.port.Release(chip, line)
	r.ctrl.RunCycle(ctx, at.Add(2*window))
	r.ctrl.RunCycle(ctx, at.Add(3*window))
	return events
}

func serverState(t *testing.T, store *stateserver.Store, chip, pin int) bool {
	t.Helper()
	on, err := store.State(chip, pin)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	return on
}

func TestIntegrationStartupRestoresServerState(t *testing.T) {
	r := newRig(t, 3, 6, func(s *stateserver.Store) {
		s.SetState(0, 2, true)
		s.SetState(2, 5, true)
	})

	r.ctrl.Startup(context.Background())

	for chip := 0; chip < 3; chip++ {
		for pin := 0; pin < 6; pin++ {
			want := (chip == 0 && pin == 2) || (chip == 2 && pin == 5)
			if got := r.port.Output(chip, pin); got != want {
				t.Errorf("LED %d/%d: got %v, want %v", chip, pin, got, want)
			}
		}
	}
	if snap := r.tracker.Snapshot(); !snap.Sync.SnapshotApplied || snap.Lit() != 2 {
		t.Errorf("tracker: applied=%v lit=%d", snap.Sync.SnapshotApplied, snap.Lit())
	}
}

func TestIntegrationPressUpdatesServer(t *testing.T) {
	r := newRig(t, 3, 6, nil)
	r.ctrl.Startup(context.Background())

	events := r.press(t, 1, 3, start)
	if len(events) != 1 || !events[0].State {
		t.Fatalf("events: got %+v", events)
	}
	if !serverState(t, r.store, 1, 3) {
		t.Error("server should have 1/3 on after press")
	}

	r.press(t, 1, 3, start.Add(time.Second))
	if serverState(t, r.store, 1, 3) {
		t.Error("server should have 1/3 off after second press")
	}
	if r.port.Output(1, 3) {
		t.Error("LED 1/3 should be off")
	}
}

func TestIntegrationPressAcknowledgesReminder(t *testing.T) {
	r := newRig(t, 1, 2, nil)
	err := r.sched.Put(schedule.Schedule{Chip: 0, Pin: 1, Name: "bins", Due: start.Add(-time.Minute), Repeat: schedule.Interval{Weeks: 1}})
	if err != nil {
		t.Fatalf("put schedule: %v", err)
	}
	if err := r.sched.Tick(start); err != nil {
		t.Fatalf("tick: %v", err)
	}

	// The device comes up with the reminder light on.
	r.ctrl.Startup(context.Background())
	if !r.port.Output(0, 1) {
		t.Fatal("reminder light should be on after startup")
	}

	// Pressing it turns it off and rearms the schedule a week later.
	r.press(t, 0, 1, start)
	list := r.sched.List()
	if len(list) != 1 {
		t.Fatalf("schedules: got %d, want 1", len(list))
	}
	if list[0].Active {
		t.Error("schedule should be inactive after acknowledge")
	}
	if want := start.Add(-time.Minute).Add(7 * 24 * time.Hour); !list[0].Due.Equal(want) {
		t.Errorf("due: got %v, want %v", list[0].Due, want)
	}
}

func TestIntegrationServerDownDoesNotBlockPanel(t *testing.T) {
	r := newRig(t, 1, 2, nil)

	client, err := statesync.NewHTTPClient("http://127.0.0.1:1", 100*time.Millisecond, statesync.Always{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	r.ctrl = controller.New(logic.NewGrid(1, 2, window), r.port, client, controller.Options{
		Mirror:  r.publisher,
		Tracker: r.tracker,
	})
	r.ctrl.Startup(context.Background())

	events := r.press(t, 0, 0, start)
	if len(events) != 1 {
		t.Fatalf("events: got %d, want 1", len(events))
	}
	if !r.port.Output(0, 0) {
		t.Error("local toggle must stand when the server is unreachable")
	}
	if snap := r.tracker.Snapshot(); snap.Sync.PushFailures != 1 || snap.Sync.SnapshotApplied {
		t.Errorf("sync stats: %+v", snap.Sync)
	}
}

func TestIntegrationMirrorPayload(t *testing.T) {
	r := newRig(t, 1, 2, nil)
	r.press(t, 0, 1, start)

	if len(r.publisher.Payloads) != 1 {
		t.Fatalf("payloads: got %d, want 1", len(r.publisher.Payloads))
	}
	var p mqtt.Payload
	if err := json.Unmarshal(r.publisher.Payloads[0], &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Toggle.Chip != 0 || p.Toggle.Pin != 1 || p.Toggle.State != "ON" {
		t.Errorf("payload: got %+v", p.Toggle)
	}
	if p.Toggle.Timestamp != "2026-01-01T12:00:00Z" {
		t.Errorf("timestamp: got %q", p.Toggle.Timestamp)
	}
}
