// Package schedule turns lights on when a reminder falls due and flashes them
// once the reminder is overdue.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Interval is a calendar-aware span. Years and months move the calendar date,
// the remaining fields add fixed durations.
type Interval struct {
	Years   int `json:"years,omitempty"`
	Months  int `json:"months,omitempty"`
	Weeks   int `json:"weeks,omitempty"`
	Days    int `json:"days,omitempty"`
	Hours   int `json:"hours,omitempty"`
	Minutes int `json:"minutes,omitempty"`
	Seconds int `json:"seconds,omitempty"`
}

// IsZero reports whether every field is zero.
func (i Interval) IsZero() bool {
	return i == Interval{}
}

func (i Interval) negative() bool {
	return i.Years < 0 || i.Months < 0 || i.Weeks < 0 || i.Days < 0 ||
		i.Hours < 0 || i.Minutes < 0 || i.Seconds < 0
}

func (i Interval) fixed() time.Duration {
	return time.Duration(i.Weeks)*7*24*time.Hour +
		time.Duration(i.Days)*24*time.Hour +
		time.Duration(i.Hours)*time.Hour +
		time.Duration(i.Minutes)*time.Minute +
		time.Duration(i.Seconds)*time.Second
}

// AddInterval advances t by i. Month arithmetic clamps the day to the end of
// the target month, so Jan 31 plus one month is Feb 28 (or 29).
func AddInterval(t time.Time, i Interval) time.Time {
	if months := i.Years*12 + i.Months; months != 0 {
		m := int(t.Month()) - 1 + months
		year := t.Year() + m/12
		if m %= 12; m < 0 {
			m += 12
			year--
		}
		month := time.Month(m + 1)
		day := t.Day()
		if last := daysIn(year, month, t.Location()); day > last {
			day = last
		}
		t = time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	}
	return t.Add(i.fixed())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// ParseDue accepts RFC 3339 timestamps and, for convenience, local-free
// "2006-01-02T15:04[:05]" forms which are taken as UTC.
func ParseDue(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("due %q: not an ISO 8601 timestamp", s)
}

// Schedule is a reminder bound to one light.
type Schedule struct {
	Chip    int
	Pin     int
	Name    string
	Due     time.Time
	Repeat  Interval
	Overdue Interval

	// Runtime state, not persisted.
	Active       bool
	Flashing     bool
	OverdueStart time.Time
	lastFlash    int64
}

// Validate checks the parts of s that do not depend on the grid shape.
func (s Schedule) Validate() error {
	if s.Due.IsZero() {
		return errors.New("due time required")
	}
	if s.Repeat.negative() || s.Overdue.negative() {
		return errors.New("intervals must not be negative")
	}
	return nil
}

// Store is where the scheduler reads and writes light states and persists
// schedule definitions.
type Store interface {
	State(chip, pin int) (bool, error)
	SetState(chip, pin int, on bool) error
	SaveSchedules(schedules []Schedule) error
}

// Scheduler owns the schedule list. Safe for concurrent use.
type Scheduler struct {
	mu        sync.Mutex
	store     Store
	schedules []Schedule
}

// NewScheduler creates a Scheduler over store, seeded with previously saved
// schedules. Runtime flags on the seeds are cleared.
func NewScheduler(store Store, seed []Schedule) *Scheduler {
	s := &Scheduler{store: store}
	for _, sc := range seed {
		sc.Active, sc.Flashing, sc.OverdueStart, sc.lastFlash = false, false, time.Time{}, 0
		s.schedules = append(s.schedules, sc)
	}
	return s
}

// List returns a copy of every schedule ordered by chip then pin.
func (s *Scheduler) List() []Schedule {
	s.mu.Lock()
	out := append([]Schedule(nil), s.schedules...)
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Chip != out[j].Chip {
			return out[i].Chip < out[j].Chip
		}
		return out[i].Pin < out[j].Pin
	})
	return out
}

// Put adds sc, replacing any schedule already bound to the same light.
func (s *Scheduler) Put(sc Schedule) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	sc.Active, sc.Flashing, sc.OverdueStart, sc.lastFlash = false, false, time.Time{}, 0

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(sc.Chip, sc.Pin)
	s.schedules = append(s.schedules, sc)
	return s.saveLocked()
}

// Delete removes the schedule bound to (chip, pin). Deleting a light with no
// schedule is not an error.
func (s *Scheduler) Delete(chip, pin int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(chip, pin)
	return s.saveLocked()
}

// Reset acknowledges the reminder on (chip, pin): a repeating schedule is
// rearmed at its next due time after now, a one-shot schedule is removed.
func (s *Scheduler) Reset(chip, pin int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.schedules {
		sc := &s.schedules[i]
		if sc.Chip != chip || sc.Pin != pin {
			continue
		}
		if sc.Repeat.IsZero() {
			s.schedules = append(s.schedules[:i], s.schedules[i+1:]...)
		} else {
			sc.Active = false
			sc.Flashing = false
			sc.Due = nextDue(sc.Due, sc.Repeat, now)
		}
		return s.saveLocked()
	}
	return nil
}

// nextDue returns the first due time after now reached by stepping due forward
// by repeat at least once. Repeats without a calendar part jump straight there.
func nextDue(due time.Time, repeat Interval, now time.Time) time.Time {
	due = AddInterval(due, repeat)
	if step := repeat.fixed(); repeat.Years == 0 && repeat.Months == 0 && step > 0 && !due.After(now) {
		due = due.Add(time.Duration(now.Sub(due)/step) * step)
	}
	for !due.After(now) {
		due = AddInterval(due, repeat)
	}
	return due
}

// Tick advances every schedule to now. It is meant to be called about once a
// second; flashing lights change state at most once per wall-clock second.
func (s *Scheduler) Tick(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for i := range s.schedules {
		if err := s.tickOne(&s.schedules[i], now); err != nil {
			errs = append(errs, fmt.Errorf("schedule chip %d pin %d: %w", s.schedules[i].Chip, s.schedules[i].Pin, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) tickOne(sc *Schedule, now time.Time) error {
	if !sc.Active && !now.Before(sc.Due) {
		if err := s.store.SetState(sc.Chip, sc.Pin, true); err != nil {
			return err
		}
		sc.Active = true
		sc.OverdueStart = AddInterval(now, sc.Overdue)
	}
	if !sc.Active {
		return nil
	}

	if !sc.Flashing {
		on, err := s.store.State(sc.Chip, sc.Pin)
		if err != nil {
			return err
		}
		if !on {
			if err := s.store.SetState(sc.Chip, sc.Pin, true); err != nil {
				return err
			}
		}
		if !now.Before(sc.OverdueStart) {
			sc.Flashing = true
			sc.lastFlash = now.Unix()
		}
	}

	if sc.Flashing {
		if sec := now.Unix(); sec != sc.lastFlash {
			sc.lastFlash = sec
			on, err := s.store.State(sc.Chip, sc.Pin)
			if err != nil {
				return err
			}
			return s.store.SetState(sc.Chip, sc.Pin, !on)
		}
	}
	return nil
}

// Run calls Tick every interval until ctx is cancelled. Tick errors are
// passed to report.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration, now func() time.Time, report func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(now()); err != nil && report != nil {
				report(err)
			}
		}
	}
}

func (s *Scheduler) removeLocked(chip, pin int) {
	kept := s.schedules[:0]
	for _, sc := range s.schedules {
		if sc.Chip != chip || sc.Pin != pin {
			kept = append(kept, sc)
		}
	}
	s.schedules = kept
}

func (s *Scheduler) saveLocked() error {
	if err := s.store.SaveSchedules(append([]Schedule(nil), s.schedules...)); err != nil {
		return fmt.Errorf("save schedules: %w", err)
	}
	return nil
}
