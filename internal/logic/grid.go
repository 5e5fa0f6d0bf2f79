package logic

import (
	"errors"
	"fmt"
	"time"
)

// Grid owns every ButtonCell, indexed by (chip, pin). Its shape never changes
// after construction.
type Grid struct {
	window time.Duration
	cells  [][]ButtonCell
	counts Counts
}

// NewGrid creates a grid of numChips x pinsPerChip released, unlit cells.
// Cell (c, p) drives LED address p and reads button address p+ButtonOffset.
func NewGrid(numChips, pinsPerChip int, window time.Duration) *Grid {
	cells := make([][]ButtonCell, numChips)
	for chip := range cells {
		row := make([]ButtonCell, pinsPerChip)
		for pin := range row {
			row[pin] = NewButtonCell(pin, pin+ButtonOffset)
		}
		cells[chip] = row
	}
	return &Grid{window: window, cells: cells}
}

// NumChips returns the number of expanders in the grid.
func (g *Grid) NumChips() int {
	return len(g.cells)
}

// PinsPerChip returns the number of button/LED pairs per expander.
func (g *Grid) PinsPerChip() int {
	if len(g.cells) == 0 {
		return 0
	}
	return len(g.cells[0])
}

// Cell returns the cell at (chip, pin), or nil if out of range.
func (g *Grid) Cell(chip, pin int) *ButtonCell {
	if chip < 0 || chip >= len(g.cells) || pin < 0 || pin >= len(g.cells[chip]) {
		return nil
	}
	return &g.cells[chip][pin]
}

// WriteAll drives every LED output to its current state.
func (g *Grid) WriteAll(port Port) error {
	var errs []error
	for chip, row := range g.cells {
		for _, c := range row {
			if err := port.WritePin(chip, c.LEDPin, c.ledState); err != nil {
				errs = append(errs, fmt.Errorf("chip %d led %d: %w", chip, c.LEDPin, err))
			}
		}
	}
	return errors.Join(errs...)
}

// ScanOnce reads every button once, chip ascending then pin ascending, and
// returns the toggles caused by debounced presses.
//
// A read error skips the rest of that chip for this pass without touching any
// debounce state. A write error is reported but the toggle stands and its
// event is still returned.
func (g *Grid) ScanOnce(now time.Time, port Port) ([]ToggleEvent, error) {
	var events []ToggleEvent
	var errs []error

	for chip := range g.cells {
		row := g.cells[chip]
		for pin := range row {
			c := &row[pin]
			reading, err := port.ReadPin(chip, c.ButtonPin)
			if err != nil {
				errs = append(errs, fmt.Errorf("chip %d button %d: %w", chip, c.ButtonPin, err))
				break
			}

			switch c.Observe(reading, now, g.window) {
			case EdgeFalling:
				g.counts.Presses++
				state := c.Toggle()
				g.counts.Toggles++
				if err := port.WritePin(chip, c.LEDPin, state); err != nil {
					errs = append(errs, fmt.Errorf("chip %d led %d: %w", chip, c.LEDPin, err))
				}
				events = append(events, ToggleEvent{
					Timestamp: now,
					Chip:      chip,
					Pin:       pin,
					State:     state,
				})
			case EdgeRising:
				g.counts.Releases++
			}
		}
	}

	return events, errors.Join(errs...)
}

// ApplySnapshot overlays LED states from values onto the grid and writes each
// overlapping LED. Indices outside either grid are ignored, so applying a
// short or malformed snapshot updates only what overlaps.
func (g *Grid) ApplySnapshot(values Snapshot, port Port) error {
	var errs []error
	chips := min(len(g.cells), len(values))
	for chip := 0; chip < chips; chip++ {
		row := g.cells[chip]
		pins := min(len(row), len(values[chip]))
		for pin := 0; pin < pins; pin++ {
			c := &row[pin]
			c.setLED(values[chip][pin])
			if err := port.WritePin(chip, c.LEDPin, c.ledState); err != nil {
				errs = append(errs, fmt.Errorf("chip %d led %d: %w", chip, c.LEDPin, err))
			}
		}
	}
	return errors.Join(errs...)
}

// LEDStates returns a copy of every LED state.
func (g *Grid) LEDStates() Snapshot {
	out := make(Snapshot, len(g.cells))
	for chip, row := range g.cells {
		states := make([]bool, len(row))
		for pin := range row {
			states[pin] = row[pin].ledState
		}
		out[chip] = states
	}
	return out
}

// Counts returns press/release/toggle counters since startup.
func (g *Grid) Counts() Counts {
	return g.counts
}
