// Package expander provides LED/button line access with hardware abstraction.
// The MCP23017 implementation talks I2C through periph.io; the gpiocdev
// implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package expander

import "errors"

// Port reads button lines and drives LED lines, addressed by chip index and
// line address (0-15).
type Port interface {
	// ReadPin returns the raw level: true = high (released, pulled up).
	ReadPin(chip, pin int) (bool, error)

	// WritePin drives an output line. true = lit.
	WritePin(chip, pin int, value bool) error

	// Close releases bus resources.
	Close() error
}

// Default bus addresses of the three expanders on the panel.
var DefaultAddresses = []uint16{0x20, 0x21, 0x22}

// LinesPerChip is the number of addressable lines on one expander.
const LinesPerChip = 16

// ButtonBase is the address of the first button line; LEDs sit below it.
const ButtonBase = LinesPerChip / 2

var (
	ErrNoSuchChip = errors.New("expander: no such chip")
	ErrPinRange   = errors.New("expander: pin out of range")
)

func lineMasks(pinsPerChip int) (led, button uint16) {
	led = uint16(1)<<uint(pinsPerChip) - 1
	return led, led << ButtonBase
}
