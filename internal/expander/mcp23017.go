package expander

import (
	"errors"
	"fmt"
	"io"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// MCP23017 register addresses with IOCON.BANK = 0 (power-on default).
// Sequential operation is enabled, so the B register follows each A register.
const (
	regIODIRA = 0x00
	regGPPUA  = 0x0C
	regGPIOA  = 0x12
	regOLATA  = 0x14
)

// MCP23017 drives a set of MCP23017 16-line expanders on one I2C bus.
// Bank A carries LED outputs, bank B carries button inputs.
type MCP23017 struct {
	closer io.Closer
	devs   []*i2c.Dev
	// Output latch per chip, so single-line writes never need a bus read.
	olat []uint16
}

// OpenMCP23017 initialises the periph host drivers, opens the named I2C bus
// ("" = first available) and addresses one expander per entry in addrs.
func OpenMCP23017(busName string, addrs []uint16) (*MCP23017, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", busName, err)
	}
	m := NewMCP23017(bus, addrs)
	m.closer = bus
	return m, nil
}

// NewMCP23017 addresses expanders on an already-open bus. The caller keeps
// ownership of the bus.
func NewMCP23017(bus i2c.Bus, addrs []uint16) *MCP23017 {
	m := &MCP23017{
		devs: make([]*i2c.Dev, len(addrs)),
		olat: make([]uint16, len(addrs)),
	}
	for i, addr := range addrs {
		m.devs[i] = &i2c.Dev{Bus: bus, Addr: addr}
	}
	return m
}

// Init configures every chip: LED lines 0..pinsPerChip-1 as outputs driven low,
// button lines 8..8+pinsPerChip-1 as inputs with pull-ups. All other lines stay
// high-impedance inputs.
// Any failure here means a chip is missing or the bus is broken.
func (m *MCP23017) Init(pinsPerChip int) error {
	if pinsPerChip < 1 || pinsPerChip > LinesPerChip/2 {
		return fmt.Errorf("%w: %d pins per chip", ErrPinRange, pinsPerChip)
	}
	ledMask, buttonMask := lineMasks(pinsPerChip)
	iodir := ^ledMask

	for chip, dev := range m.devs {
		// Latch low before switching lines to outputs so LEDs never flash on.
		if err := writePair(dev, regOLATA, 0); err != nil {
			return fmt.Errorf("chip %d (%#x) olat: %w", chip, dev.Addr, err)
		}
		m.olat[chip] = 0
		if err := writePair(dev, regIODIRA, iodir); err != nil {
			return fmt.Errorf("chip %d (%#x) iodir: %w", chip, dev.Addr, err)
		}
		if err := writePair(dev, regGPPUA, buttonMask); err != nil {
			return fmt.Errorf("chip %d (%#x) pull-up: %w", chip, dev.Addr, err)
		}
	}
	return nil
}

// ReadPin reads both GPIO ports and returns the level of one line.
func (m *MCP23017) ReadPin(chip, pin int) (bool, error) {
	dev, err := m.dev(chip, pin)
	if err != nil {
		return false, err
	}
	var r [2]byte
	if err := dev.Tx([]byte{regGPIOA}, r[:]); err != nil {
		return false, fmt.Errorf("read chip %d (%#x): %w", chip, dev.Addr, err)
	}
	levels := uint16(r[0]) | uint16(r[1])<<8
	return levels&(1<<uint(pin)) != 0, nil
}

// WritePin updates the cached latch and writes the output latch of the bank
// holding pin.
func (m *MCP23017) WritePin(chip, pin int, value bool) error {
	dev, err := m.dev(chip, pin)
	if err != nil {
		return err
	}
	latch := m.olat[chip]
	if value {
		latch |= 1 << uint(pin)
	} else {
		latch &^= 1 << uint(pin)
	}

	bank := pin / 8
	w := []byte{byte(regOLATA + bank), byte(latch >> (8 * uint(bank)))}
	if _, err := dev.Write(w); err != nil {
		return fmt.Errorf("write chip %d (%#x): %w", chip, dev.Addr, err)
	}
	m.olat[chip] = latch
	return nil
}

// Close releases the bus if this driver opened it.
func (m *MCP23017) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer.Close()
}

func (m *MCP23017) dev(chip, pin int) (*i2c.Dev, error) {
	if chip < 0 || chip >= len(m.devs) {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchChip, chip)
	}
	if pin < 0 || pin >= LinesPerChip {
		return nil, fmt.Errorf("%w: %d", ErrPinRange, pin)
	}
	return m.devs[chip], nil
}

// writePair writes v to the A register at reg and its B counterpart.
func writePair(dev *i2c.Dev, reg byte, v uint16) error {
	n, err := dev.Write([]byte{reg, byte(v), byte(v >> 8)})
	if err != nil {
		return err
	}
	if n != 3 {
		return errors.New("short write")
	}
	return nil
}
