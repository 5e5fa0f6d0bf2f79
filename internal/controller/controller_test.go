package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/ledpanel/internal/expander"
	"github.com/sweeney/ledpanel/internal/logic"
	"github.com/sweeney/ledpanel/internal/mqtt"
	"github.com/sweeney/ledpanel/internal/statesync"
	"github.com/sweeney/ledpanel/internal/status"
)

const window = 50 * time.Millisecond

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func ms(n int) time.Time {
	return t0.Add(time.Duration(n) * time.Millisecond)
}

// button returns the input line address for pin.
func button(pin int) int {
	return pin + logic.ButtonOffset
}

func newController(t *testing.T, chips, pins int, opts Options) (*Controller, *expander.FakePort, *statesync.FakeClient) {
	t.Helper()
	port := expander.NewFakePort()
	client := statesync.NewFakeClient()
	if opts.Now == nil {
		opts.Now = func() time.Time { return t0 }
	}
	c := New(logic.NewGrid(chips, pins, window), port, client, opts)
	return c, port, client
}

// pressAndSettle holds a button down long enough to register one press.
func pressAndSettle(c *Controller, port *expander.FakePort, chip, pin int, at int) []logic.ToggleEvent {
	port.Press(chip, button(pin))
	var events []logic.ToggleEvent
	events = append(events, c.RunCycle(context.Background(), ms(at))...)
	events = append(events, c.RunCycle(context.Background(), ms(at+60))...)
	return events
}

func TestBouncyPressPushesOnce(t *testing.T) {
	c, port, client := newController(t, 1, 2, Options{})
	ctx := context.Background()

	var firstEdge time.Time
	toggles := 0
	for at := 0; at <= 200; at += 5 {
		switch at {
		case 10:
			port.Press(0, button(0))
		case 15:
			port.Release(0, button(0))
		case 20:
			port.Press(0, button(0))
		}
		events := c.RunCycle(ctx, ms(at))
		if len(events) > 0 && firstEdge.IsZero() {
			firstEdge = ms(at)
		}
		toggles += len(events)
	}

	assert.Equal(t, ms(70), firstEdge, "first stable falling edge resolves 50ms after the last raw change")
	assert.Equal(t, 1, toggles)
	assert.True(t, port.Output(0, 0), "LED 0 should be lit")
	assert.False(t, port.Output(0, 1), "LED 1 should be untouched")
	assert.Equal(t, []statesync.Push{{Chip: 0, Pin: 0, State: true}}, client.PushLog())
}

func TestReleaseDoesNotPush(t *testing.T) {
	c, port, client := newController(t, 1, 1, Options{})
	pressAndSettle(c, port, 0, 0, 0)

	port.Release(0, button(0))
	c.RunCycle(context.Background(), ms(200))
	events := c.RunCycle(context.Background(), ms(260))

	assert.Empty(t, events)
	assert.Len(t, client.PushLog(), 1)
	assert.Equal(t, logic.Counts{Presses: 1, Releases: 1, Toggles: 1}, c.grid.Counts())
}

func TestSecondPressTurnsOff(t *testing.T) {
	c, port, client := newController(t, 1, 1, Options{})
	pressAndSettle(c, port, 0, 0, 0)
	port.Release(0, button(0))
	c.RunCycle(context.Background(), ms(200))
	c.RunCycle(context.Background(), ms(260))
	pressAndSettle(c, port, 0, 0, 400)

	assert.Equal(t, []statesync.Push{
		{Chip: 0, Pin: 0, State: true},
		{Chip: 0, Pin: 0, State: false},
	}, client.PushLog())
	assert.False(t, port.Output(0, 0))
}

func TestStartupAppliesSnapshotWithoutPushing(t *testing.T) {
	c, port, client := newController(t, 1, 6, Options{})
	client.Snapshot = logic.Snapshot{{true, false, true, false, true, false}}

	c.Startup(context.Background())

	writes := port.WriteLog()
	require.Len(t, writes, 12, "6 default writes then 6 snapshot writes")
	for pin, w := range writes[:6] {
		assert.Equal(t, expander.Write{Chip: 0, Pin: pin, Value: false}, w, "default write %d", pin)
	}
	want := []bool{true, false, true, false, true, false}
	for pin, w := range writes[6:] {
		assert.Equal(t, expander.Write{Chip: 0, Pin: pin, Value: want[pin]}, w, "snapshot write %d", pin)
	}
	assert.Equal(t, 1, client.Pulls)
	assert.Empty(t, client.PushLog())
}

func TestStartupNotConnectedSkipsPull(t *testing.T) {
	c, port, client := newController(t, 2, 3, Options{})
	client.Connected = false
	client.Snapshot = logic.Snapshot{{true, true, true}}

	c.Startup(context.Background())

	assert.Equal(t, 0, client.Pulls)
	assert.Len(t, port.WriteLog(), 6)
	for _, w := range port.WriteLog() {
		assert.False(t, w.Value)
	}
}

func TestStartupPullErrorKeepsDefaults(t *testing.T) {
	tr := status.NewTracker(t0, status.Config{})
	c, port, client := newController(t, 1, 2, Options{Tracker: tr})
	client.PullError = errors.New("connection refused")

	c.Startup(context.Background())

	assert.Len(t, port.WriteLog(), 2)
	snap := tr.Snapshot()
	assert.False(t, snap.Sync.SnapshotApplied)
	assert.Equal(t, "connection refused", snap.Sync.LastError)
	assert.Equal(t, logic.Snapshot{{false, false}}, snap.LEDs)
}

func TestStartupShortSnapshot(t *testing.T) {
	c, port, client := newController(t, 3, 6, Options{})
	client.Snapshot = logic.Snapshot{{true}, {false, true}}

	c.Startup(context.Background())

	assert.True(t, port.Output(0, 0))
	assert.True(t, port.Output(1, 1))
	assert.False(t, port.Output(2, 0))
	assert.Equal(t, logic.Snapshot{
		{true, false, false, false, false, false},
		{false, true, false, false, false, false},
		{false, false, false, false, false, false},
	}, c.grid.LEDStates())
}

func TestPushErrorIgnored(t *testing.T) {
	tr := status.NewTracker(t0, status.Config{})
	c, port, client := newController(t, 1, 1, Options{Tracker: tr})
	client.PushError = errors.New("timeout")

	events := pressAndSettle(c, port, 0, 0, 0)

	require.Len(t, events, 1)
	assert.True(t, port.Output(0, 0), "local toggle stands when the push fails")
	snap := tr.Snapshot()
	assert.Equal(t, 1, snap.Sync.Pushes)
	assert.Equal(t, 1, snap.Sync.PushFailures)
}

func TestPushSkippedWhenDisconnected(t *testing.T) {
	tr := status.NewTracker(t0, status.Config{})
	c, port, client := newController(t, 1, 1, Options{Tracker: tr})
	client.Connected = false

	events := pressAndSettle(c, port, 0, 0, 0)

	require.Len(t, events, 1)
	assert.Empty(t, client.PushLog())
	assert.Equal(t, 0, tr.Snapshot().Sync.Pushes)
}

func TestMirrorReceivesToggles(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	tr := status.NewTracker(t0, status.Config{})
	c, port, _ := newController(t, 1, 2, Options{Mirror: pub, MirrorStatus: pub, Tracker: tr})

	pressAndSettle(c, port, 0, 1, 0)

	events := pub.EventLog()
	require.Len(t, events, 1)
	assert.Equal(t, 0, events[0].Chip)
	assert.Equal(t, 1, events[0].Pin)
	assert.True(t, events[0].State)
	assert.True(t, tr.Snapshot().MQTTConnected)
}

func TestMirrorErrorIgnored(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.PublishError = errors.New("not connected")
	c, port, client := newController(t, 1, 1, Options{Mirror: pub})

	events := pressAndSettle(c, port, 0, 0, 0)

	assert.Len(t, events, 1)
	assert.Len(t, client.PushLog(), 1)
}

func TestHardwareErrorTracked(t *testing.T) {
	tr := status.NewTracker(t0, status.Config{})
	c, port, _ := newController(t, 2, 2, Options{Tracker: tr})

	port.ChipErrors[1] = errors.New("i/o timeout")
	c.RunCycle(context.Background(), ms(0))
	assert.Contains(t, tr.Snapshot().HardwareError, "i/o timeout")
	assert.Contains(t, c.hwErr, "chip 1")

	// Chip 0 keeps scanning while chip 1 is failing.
	events := pressAndSettle(c, port, 0, 0, 10)
	assert.Len(t, events, 1)

	port.ChipErrors[1] = nil
	c.RunCycle(context.Background(), ms(200))
	assert.Empty(t, tr.Snapshot().HardwareError)
}

func TestTrackerUpdatedOnToggle(t *testing.T) {
	tr := status.NewTracker(t0, status.Config{})
	c, port, _ := newController(t, 1, 2, Options{Tracker: tr})
	c.Startup(context.Background())

	pressAndSettle(c, port, 0, 1, 0)

	snap := tr.Snapshot()
	assert.Equal(t, logic.Snapshot{{false, true}}, snap.LEDs)
	assert.Equal(t, 1, snap.Counts.Toggles)
	assert.Equal(t, 1, snap.Lit())
}

func TestAsyncDropsWhenFull(t *testing.T) {
	tr := status.NewTracker(t0, status.Config{})
	c, port, client := newController(t, 1, 3, Options{PushMode: PushAsync, OutboxSize: 1, Tracker: tr})

	for pin := 0; pin < 3; pin++ {
		port.Press(0, button(pin))
	}
	c.RunCycle(context.Background(), ms(0))
	events := c.RunCycle(context.Background(), ms(60))

	require.Len(t, events, 3)
	assert.Empty(t, client.PushLog(), "nothing pushed before the worker runs")
	assert.Equal(t, 2, c.Dropped())
	assert.Equal(t, 2, tr.Snapshot().Sync.Dropped)
	for pin := 0; pin < 3; pin++ {
		assert.True(t, port.Output(0, pin), "LED %d toggled regardless of queue", pin)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.drain(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return len(client.PushLog()) == 1 }, time.Second, time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []statesync.Push{{Chip: 0, Pin: 0, State: true}}, client.PushLog())
}

func TestAsyncScanNotBlockedBySlowPush(t *testing.T) {
	c, port, client := newController(t, 1, 2, Options{PushMode: PushAsync, OutboxSize: 4})
	client.Block = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.drain(ctx)
		close(done)
	}()

	pressAndSettle(c, port, 0, 0, 0)
	pressAndSettle(c, port, 0, 1, 0)
	require.Eventually(t, func() bool { return len(client.PushLog()) == 1 }, time.Second, time.Millisecond)

	// Both LEDs lit while the first push is still stuck.
	assert.True(t, port.Output(0, 0))
	assert.True(t, port.Output(0, 1))

	close(client.Block)
	require.Eventually(t, func() bool { return len(client.PushLog()) == 2 }, time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestLoopRunsUntilCancelled(t *testing.T) {
	clock := t0
	now := func() time.Time {
		clock = clock.Add(10 * time.Millisecond)
		return clock
	}
	c, port, client := newController(t, 1, 2, Options{Now: now})
	client.Snapshot = logic.Snapshot{{false, true}}
	port.Press(0, button(0))

	ctx, cancel := context.WithCancel(context.Background())
	tick := make(chan time.Time)
	done := make(chan error)
	go func() { done <- c.loop(ctx, tick) }()

	for i := 0; i < 10; i++ {
		tick <- time.Time{}
	}
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, 1, client.Pulls)
	assert.Equal(t, []statesync.Push{{Chip: 0, Pin: 0, State: true}}, client.PushLog())
	assert.Equal(t, logic.Snapshot{{true, true}}, c.grid.LEDStates())
}

func TestLoopAsyncWaitsForWorker(t *testing.T) {
	c, _, _ := newController(t, 1, 1, Options{PushMode: PushAsync})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error)
	go func() { done <- c.loop(ctx, make(chan time.Time)) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not return after cancel")
	}
}
