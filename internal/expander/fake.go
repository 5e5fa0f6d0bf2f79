package expander

import "sync"

// Line identifies one line on one chip.
type Line struct {
	Chip int
	Pin  int
}

// Write is one recorded WritePin call.
type Write struct {
	Chip  int
	Pin   int
	Value bool
}

// FakePort is a test double with settable input levels that records writes.
// Inputs default to high (released).
type FakePort struct {
	mu sync.Mutex

	inputs  map[Line]bool
	outputs map[Line]bool

	// Writes contains every WritePin call in order.
	Writes []Write

	// ChipErrors, if set for a chip, is returned by ReadPin and WritePin on it.
	ChipErrors map[int]error

	// WriteError, if set, is returned by WritePin for every chip.
	WriteError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakePort creates a FakePort with every input released.
func NewFakePort() *FakePort {
	return &FakePort{
		inputs:     map[Line]bool{},
		outputs:    map[Line]bool{},
		ChipErrors: map[int]error{},
	}
}

// SetInput sets the raw level of a button line.
func (f *FakePort) SetInput(chip, pin int, level bool) {
	f.mu.Lock()
	f.inputs[Line{chip, pin}] = level
	f.mu.Unlock()
}

// Press drives a button line low.
func (f *FakePort) Press(chip, pin int) { f.SetInput(chip, pin, false) }

// Release drives a button line high.
func (f *FakePort) Release(chip, pin int) { f.SetInput(chip, pin, true) }

// ReadPin returns the scripted level, high when never set.
func (f *FakePort) ReadPin(chip, pin int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ChipErrors[chip]; err != nil {
		return false, err
	}
	v, ok := f.inputs[Line{chip, pin}]
	if !ok {
		return true, nil
	}
	return v, nil
}

// WritePin records the write and remembers the output level.
func (f *FakePort) WritePin(chip, pin int, value bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ChipErrors[chip]; err != nil {
		return err
	}
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Writes = append(f.Writes, Write{Chip: chip, Pin: pin, Value: value})
	f.outputs[Line{chip, pin}] = value
	return nil
}

// Output returns the last value written to a line.
func (f *FakePort) Output(chip, pin int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outputs[Line{chip, pin}]
}

// WriteLog returns a copy of the recorded writes.
func (f *FakePort) WriteLog() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Write(nil), f.Writes...)
}

// Close marks the port as closed.
func (f *FakePort) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Reset clears recorded writes and outputs.
func (f *FakePort) Reset() {
	f.mu.Lock()
	f.Writes = nil
	f.outputs = map[Line]bool{}
	f.Closed = false
	f.mu.Unlock()
}
