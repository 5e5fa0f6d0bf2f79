// Package controller runs the scan/sync cycle that ties the button grid to the
// expanders and the state server.
package controller

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sweeney/ledpanel/internal/logic"
	"github.com/sweeney/ledpanel/internal/statesync"
	"github.com/sweeney/ledpanel/internal/status"
)

// PushMode selects how toggle events reach the state server.
type PushMode int

const (
	// PushBlocking pushes inline; the scan pauses until each push returns.
	PushBlocking PushMode = iota
	// PushAsync hands events to a bounded queue drained by one worker.
	PushAsync
)

// DefaultOutboxSize is the async queue size used when Options leaves it zero.
const DefaultOutboxSize = 32

// statusRefresh bounds how often the tracker is refreshed when nothing toggles.
const statusRefresh = time.Second

// Mirror receives a copy of every toggle event (MQTT in production).
type Mirror interface {
	Publish(event logic.ToggleEvent) error
}

// LinkStatus reports whether an optional side channel is up.
type LinkStatus interface {
	IsConnected() bool
}

// Options configures a Controller. Zero values are usable.
type Options struct {
	PushMode     PushMode
	OutboxSize   int
	PollInterval time.Duration

	// Mirror, if set, is sent every toggle after the push.
	Mirror Mirror
	// MirrorStatus, if set, feeds the tracker's MQTT field.
	MirrorStatus LinkStatus
	// Tracker, if set, receives LED state and counters for the status page.
	Tracker *status.Tracker
	// Now defaults to time.Now.
	Now func() time.Time
}

// Controller owns the grid and the I/O around it. Only one goroutine may call
// Startup, RunCycle or Run.
type Controller struct {
	grid   *logic.Grid
	port   logic.Port
	client statesync.Client

	mode         PushMode
	outbox       chan logic.ToggleEvent
	poll         time.Duration
	mirror       Mirror
	mirrorStatus LinkStatus
	tracker      *status.Tracker
	now          func() time.Time

	hwErr       string
	lastCounts  logic.Counts
	lastRefresh time.Time
	refreshed   bool

	mu      sync.Mutex
	dropped int
}

// New creates a Controller for grid, driving port and syncing through client.
func New(grid *logic.Grid, port logic.Port, client statesync.Client, opts Options) *Controller {
	c := &Controller{
		grid:         grid,
		port:         port,
		client:       client,
		mode:         opts.PushMode,
		poll:         opts.PollInterval,
		mirror:       opts.Mirror,
		mirrorStatus: opts.MirrorStatus,
		tracker:      opts.Tracker,
		now:          opts.Now,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.mode == PushAsync {
		size := opts.OutboxSize
		if size < 1 {
			size = DefaultOutboxSize
		}
		c.outbox = make(chan logic.ToggleEvent, size)
	}
	return c
}

// Startup writes the default LED states, then overlays the server snapshot
// when the sync client is connected. Sync failures are logged and ignored.
func (c *Controller) Startup(ctx context.Context) {
	if err := c.grid.WriteAll(c.port); err != nil {
		c.noteHardware(err)
	}

	connected := c.client.IsConnected()
	if c.tracker != nil {
		c.tracker.SetSyncConnected(connected)
	}
	if !connected {
		log.Printf("sync: not connected, starting with all LEDs off")
		c.refreshTracker(c.now(), true)
		return
	}

	snap, err := c.client.PullSnapshot(ctx)
	if err != nil {
		log.Printf("sync: pull snapshot failed: %v", err)
		if c.tracker != nil {
			c.tracker.SetSnapshotApplied(false, err)
		}
		c.refreshTracker(c.now(), true)
		return
	}

	if err := c.grid.ApplySnapshot(snap, c.port); err != nil {
		c.noteHardware(err)
	}
	if c.tracker != nil {
		c.tracker.SetSnapshotApplied(true, nil)
	}
	c.refreshTracker(c.now(), true)
	log.Printf("sync: applied snapshot (%d rows)", len(snap))
}

// RunCycle performs one scan pass and delivers every resulting toggle.
// It returns the toggles in scan order.
func (c *Controller) RunCycle(ctx context.Context, now time.Time) []logic.ToggleEvent {
	events, err := c.grid.ScanOnce(now, c.port)
	c.noteHardware(err)

	for _, ev := range events {
		log.Printf("toggle: chip=%d pin=%d state=%s", ev.Chip, ev.Pin, onOff(ev.State))
		c.deliver(ctx, ev)
	}

	c.refreshTracker(now, len(events) > 0)
	return events
}

// Run calls Startup once, then RunCycle until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if c.poll > 0 {
		ticker := time.NewTicker(c.poll)
		defer ticker.Stop()
		tick = ticker.C
	}
	return c.loop(ctx, tick)
}

// loop runs the cycle on every tick, or back to back when tick is nil.
func (c *Controller) loop(ctx context.Context, tick <-chan time.Time) error {
	c.Startup(ctx)

	if c.mode == PushAsync {
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.drain(ctx)
		}()
		defer wg.Wait()
	}

	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return nil
		}
		c.RunCycle(ctx, c.now())
	}
}

// Dropped returns how many events the async queue discarded.
func (c *Controller) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

func (c *Controller) deliver(ctx context.Context, ev logic.ToggleEvent) {
	switch c.mode {
	case PushAsync:
		select {
		case c.outbox <- ev:
		default:
			c.mu.Lock()
			c.dropped++
			n := c.dropped
			c.mu.Unlock()
			log.Printf("sync: outbox full, dropped chip=%d pin=%d (%d dropped total)", ev.Chip, ev.Pin, n)
			if c.tracker != nil {
				c.tracker.RecordDropped()
			}
		}
	default:
		c.push(ctx, ev)
	}

	if c.mirror != nil {
		if err := c.mirror.Publish(ev); err != nil {
			log.Printf("mqtt: publish error: %v", err)
		}
	}
}

// drain pushes queued events until ctx is cancelled.
func (c *Controller) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if n := len(c.outbox); n > 0 {
				log.Printf("sync: abandoning %d queued pushes", n)
			}
			return
		case ev := <-c.outbox:
			c.push(ctx, ev)
		}
	}
}

func (c *Controller) push(ctx context.Context, ev logic.ToggleEvent) {
	connected := c.client.IsConnected()
	if c.tracker != nil {
		c.tracker.SetSyncConnected(connected)
	}
	if !connected {
		return
	}
	err := c.client.PushState(ctx, ev.Chip, ev.Pin, ev.State)
	if err != nil {
		log.Printf("sync: push chip=%d pin=%d failed: %v", ev.Chip, ev.Pin, err)
	}
	if c.tracker != nil {
		c.tracker.RecordPush(err)
	}
}

// noteHardware logs an expander error once until it changes or clears.
func (c *Controller) noteHardware(err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if msg == c.hwErr {
		return
	}
	if msg == "" {
		log.Printf("hardware: recovered")
	} else {
		log.Printf("hardware: %s", msg)
	}
	c.hwErr = msg
	if c.tracker != nil {
		c.tracker.SetHardwareError(msg)
	}
}

func (c *Controller) refreshTracker(now time.Time, force bool) {
	if c.tracker == nil {
		return
	}
	counts := c.grid.Counts()
	if !force && c.refreshed && counts == c.lastCounts && now.Sub(c.lastRefresh) < statusRefresh {
		return
	}
	c.tracker.Update(c.grid.LEDStates(), counts)
	if c.mirrorStatus != nil {
		c.tracker.SetMQTTConnected(c.mirrorStatus.IsConnected())
	}
	c.lastCounts = counts
	c.lastRefresh = now
	c.refreshed = true
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
