package focus

import (
	"microscope/config"
	"microscope/core"
)

// HomeSensor reads the photo switch that marks the lens home position
type HomeSensor struct {
	gpio      core.GPIODriver
	pin       core.GPIOPin
	activeLow bool
}

// NewHomeSensor configures the switch input
func NewHomeSensor(cfg config.MotorConfig, gpio core.GPIODriver) (*HomeSensor, error) {
	pin := core.GPIOPin(cfg.HomePin)

	var err error
	if cfg.HomePullUp {
		err = gpio.ConfigureInputPullUp(pin)
	} else {
		err = gpio.ConfigureInputPullDown(pin)
	}
	if err != nil {
		return nil, err
	}

	return &HomeSensor{gpio: gpio, pin: pin, activeLow: cfg.HomeActiveLow}, nil
}

// Active reports whether the lens is at the home position. A failed read
// is logged and reported as inactive.
func (h *HomeSensor) Active() bool {
	level, err := h.gpio.GetPin(h.pin)
	if err != nil {
		core.DebugAsync("[FOCUS] home switch read error: " + err.Error())
		return false
	}
	return level != h.activeLow
}
