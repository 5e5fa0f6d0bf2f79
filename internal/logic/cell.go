package logic

import "time"

// ButtonCell tracks debounce and LED state for one button/LED pair.
type ButtonCell struct {
	LEDPin    int
	ButtonPin int

	ledState bool
	// Last accepted (debounced) input. true = released (pulled high).
	debounced bool
	// Most recent instantaneous read, used only to detect bounce.
	rawLast    bool
	lastChange time.Time
}

// NewButtonCell returns a released, unlit cell for the given line addresses.
func NewButtonCell(ledPin, buttonPin int) ButtonCell {
	return ButtonCell{
		LEDPin:    ledPin,
		ButtonPin: buttonPin,
		debounced: true,
		rawLast:   true,
	}
}

// Observe feeds one raw reading into the debounce state machine.
// Every raw change restarts the window, so a line that never stops bouncing
// never settles.
func (c *ButtonCell) Observe(raw bool, now time.Time, window time.Duration) Edge {
	if raw != c.rawLast {
		c.lastChange = now
		c.rawLast = raw
	}

	// time.Time.Sub saturates instead of wrapping, and uses the monotonic reading
	// when both sides carry one.
	if now.Sub(c.lastChange) < window {
		return EdgeNone
	}

	if raw == c.debounced {
		return EdgeNone
	}

	c.debounced = raw
	if !raw {
		return EdgeFalling
	}
	return EdgeRising
}

// Toggle flips the LED state and returns the new value.
// Writing the output line is the caller's job.
func (c *ButtonCell) Toggle() bool {
	c.ledState = !c.ledState
	return c.ledState
}

// LEDState returns the current LED state.
func (c *ButtonCell) LEDState() bool {
	return c.ledState
}

// Pressed reports whether the debounced input is in the pressed (low) state.
func (c *ButtonCell) Pressed() bool {
	return !c.debounced
}

// setLED overwrites the LED state without touching debounce fields.
func (c *ButtonCell) setLED(on bool) {
	c.ledState = on
}
