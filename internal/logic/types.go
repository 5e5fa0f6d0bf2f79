// Package logic contains the pure button/LED state machine.
// This package has NO external dependencies (no I2C, HTTP, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// DefaultDebounce is the debounce window used when none is configured.
const DefaultDebounce = 50 * time.Millisecond

// ButtonOffset is the address distance between an LED output and its button
// input on the same expander (LEDs on 0-7, buttons on 8-15).
const ButtonOffset = 8

// MaxPinsPerChip is the number of LED/button pairs one 16-line expander can carry.
const MaxPinsPerChip = ButtonOffset

// Edge is the result of feeding one raw reading into a ButtonCell.
type Edge int

const (
	EdgeNone    Edge = iota
	EdgeFalling      // released -> pressed
	EdgeRising       // pressed -> released
)

func (e Edge) String() string {
	switch e {
	case EdgeFalling:
		return "FALLING"
	case EdgeRising:
		return "RISING"
	default:
		return "NONE"
	}
}

// ToggleEvent is emitted by a scan when a press flipped an LED.
// It is a value type and safe to hand to other goroutines.
type ToggleEvent struct {
	Timestamp time.Time
	Chip      int
	Pin       int
	State     bool // new LED state, true = lit
}

// Snapshot is a chip-major table of LED states. Rows may be shorter or longer
// than the grid they are applied to.
type Snapshot [][]bool

// Port is the hardware view the grid needs: active-low button reads and LED writes
// by expander index and line address.
type Port interface {
	ReadPin(chip, pin int) (bool, error)
	WritePin(chip, pin int, value bool) error
}

// Counts tracks toggles since startup.
type Counts struct {
	Presses  int
	Releases int
	Toggles  int
}
