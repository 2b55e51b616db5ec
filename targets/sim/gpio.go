// Package sim models the camera board in software: the GPIO lines, the lens
// motor on its SPI coil driver, the sensor control port and the capture
// path from the GPIF sockets to the USB host.
package sim

import (
	"errors"
	"sync"

	"microscope/core"
)

// ErrPinNotConfigured is returned when a pin is used before configuration
var ErrPinNotConfigured = errors.New("sim: pin not configured")

// PinMode is how a simulated pin was configured
type PinMode uint8

const (
	PinOutput PinMode = iota + 1
	PinInputPullUp
	PinInputPullDown
)

// GPIODriver implements core.GPIODriver over an in-memory pin table. Input
// pins read from a function registered with SetInput.
type GPIODriver struct {
	mu     sync.Mutex
	modes  map[core.GPIOPin]PinMode
	levels map[core.GPIOPin]bool
	inputs map[core.GPIOPin]func() bool

	// ReadErrors makes the next n GetPin calls fail
	ReadErrors int
}

// NewGPIODriver creates a driver with every pin unconfigured
func NewGPIODriver() *GPIODriver {
	return &GPIODriver{
		modes:  make(map[core.GPIOPin]PinMode),
		levels: make(map[core.GPIOPin]bool),
		inputs: make(map[core.GPIOPin]func() bool),
	}
}

func (d *GPIODriver) configure(pin core.GPIOPin, mode PinMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Reconfiguring is allowed, the last mode wins
	d.modes[pin] = mode
	return nil
}

// ConfigureOutput configures a pin as a digital output
func (d *GPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	return d.configure(pin, PinOutput)
}

// ConfigureInputPullUp configures a pin as an input with pull-up
func (d *GPIODriver) ConfigureInputPullUp(pin core.GPIOPin) error {
	return d.configure(pin, PinInputPullUp)
}

// ConfigureInputPullDown configures a pin as an input with pull-down
func (d *GPIODriver) ConfigureInputPullDown(pin core.GPIOPin) error {
	return d.configure(pin, PinInputPullDown)
}

// SetPin drives an output pin
func (d *GPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.modes[pin] != PinOutput {
		return ErrPinNotConfigured
	}
	d.levels[pin] = value
	return nil
}

// GetPin reads a pin. Inputs without a source read their pull level.
func (d *GPIODriver) GetPin(pin core.GPIOPin) (bool, error) {
	d.mu.Lock()
	mode := d.modes[pin]
	if mode == 0 {
		d.mu.Unlock()
		return false, ErrPinNotConfigured
	}
	if d.ReadErrors > 0 {
		d.ReadErrors--
		d.mu.Unlock()
		return false, errors.New("sim: pin read error")
	}
	source := d.inputs[pin]
	level := d.levels[pin]
	d.mu.Unlock()

	switch {
	case mode == PinOutput:
		return level, nil
	case source != nil:
		return source(), nil
	default:
		return mode == PinInputPullUp, nil
	}
}

// SetInput connects an input pin to a signal source
func (d *GPIODriver) SetInput(pin core.GPIOPin, source func() bool) {
	d.mu.Lock()
	d.inputs[pin] = source
	d.mu.Unlock()
}

// Level returns the last level driven on an output pin
func (d *GPIODriver) Level(pin core.GPIOPin) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.levels[pin]
}

// Mode returns how a pin is configured, 0 if it is not
func (d *GPIODriver) Mode(pin core.GPIOPin) PinMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.modes[pin]
}
