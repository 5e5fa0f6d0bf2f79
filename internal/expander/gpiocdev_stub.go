//go:build !linux

package expander

import "errors"

// GPIOCdev is not available on non-Linux platforms.
type GPIOCdev struct{}

// OpenGPIOCdev returns an error on non-Linux platforms.
func OpenGPIOCdev(chipNames []string, pinsPerChip int) (*GPIOCdev, error) {
	return nil, errors.New("expander: gpiocdev not supported on this platform (requires Linux)")
}

// ReadPin is not implemented on non-Linux platforms.
func (g *GPIOCdev) ReadPin(chip, pin int) (bool, error) {
	return false, errors.New("expander: gpiocdev not supported")
}

// WritePin is not implemented on non-Linux platforms.
func (g *GPIOCdev) WritePin(chip, pin int, value bool) error {
	return errors.New("expander: gpiocdev not supported")
}

// Close is not implemented on non-Linux platforms.
func (g *GPIOCdev) Close() error {
	return nil
}
