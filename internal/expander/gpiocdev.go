//go:build linux

package expander

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// GPIOCdev maps each logical chip to a Linux gpiochip and drives lines
// directly, for panels wired to native GPIO instead of an I2C expander.
// Line offsets equal logical addresses (LEDs 0..n-1, buttons 8..8+n-1).
type GPIOCdev struct {
	chips []*gpiocdev.Chip
	lines []map[int]gpioLine
}

// gpioLine is the subset of *gpiocdev.Line the driver uses.
type gpioLine interface {
	Value() (int, error)
	SetValue(int) error
	Reconfigure(...gpiocdev.LineConfigOption) error
	Close() error
}

// OpenGPIOCdev opens the named gpiochips (e.g. "gpiochip0") and requests
// pinsPerChip LED outputs (driven low) and button inputs (pull-up) on each.
func OpenGPIOCdev(chipNames []string, pinsPerChip int) (*GPIOCdev, error) {
	if pinsPerChip < 1 || pinsPerChip > LinesPerChip/2 {
		return nil, fmt.Errorf("%w: %d pins per chip", ErrPinRange, pinsPerChip)
	}
	g := &GPIOCdev{}
	for i, name := range chipNames {
		chip, err := gpiocdev.NewChip(name)
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("open gpio chip %d (%s): %w", i, name, err)
		}
		g.chips = append(g.chips, chip)
		lines := make(map[int]gpioLine, 2*pinsPerChip)
		g.lines = append(g.lines, lines)

		for pin := 0; pin < pinsPerChip; pin++ {
			led, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
			if err != nil {
				g.Close()
				return nil, fmt.Errorf("request LED line %d on %s: %w", pin, name, err)
			}
			lines[pin] = led

			btn, err := chip.RequestLine(pin+ButtonBase, gpiocdev.AsInput, gpiocdev.WithPullUp)
			if err != nil {
				g.Close()
				return nil, fmt.Errorf("request button line %d on %s: %w", pin+ButtonBase, name, err)
			}
			lines[pin+ButtonBase] = btn
		}
	}
	return g, nil
}

// ReadPin returns the raw line level.
func (g *GPIOCdev) ReadPin(chip, pin int) (bool, error) {
	line, err := g.line(chip, pin)
	if err != nil {
		return false, err
	}
	v, err := line.Value()
	if err != nil {
		return false, fmt.Errorf("read chip %d line %d: %w", chip, pin, err)
	}
	return v != 0, nil
}

// WritePin drives an output line.
func (g *GPIOCdev) WritePin(chip, pin int, value bool) error {
	line, err := g.line(chip, pin)
	if err != nil {
		return err
	}
	v := 0
	if value {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("write chip %d line %d: %w", chip, pin, err)
	}
	return nil
}

// Close releases every requested line and chip. LED lines are driven low
// and handed back as inputs first so the panel goes dark on exit.
func (g *GPIOCdev) Close() error {
	var errs []error
	for i, lines := range g.lines {
		for offset, line := range lines {
			if offset < ButtonBase {
				if err := line.SetValue(0); err != nil {
					errs = append(errs, fmt.Errorf("drive chip %d line %d low: %w", i, offset, err))
				}
				if err := line.Reconfigure(gpiocdev.AsInput); err != nil {
					errs = append(errs, fmt.Errorf("reconfigure chip %d line %d: %w", i, offset, err))
				}
			}
			if err := line.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close chip %d line %d: %w", i, offset, err))
			}
		}
	}
	for i, chip := range g.chips {
		if err := chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip %d: %w", i, err))
		}
	}
	g.lines = nil
	g.chips = nil

	return errors.Join(errs...)
}

func (g *GPIOCdev) line(chip, pin int) (gpioLine, error) {
	if chip < 0 || chip >= len(g.lines) {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchChip, chip)
	}
	line, ok := g.lines[chip][pin]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrPinRange, pin)
	}
	return line, nil
}
