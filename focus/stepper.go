package focus

import (
	"microscope/config"
	"microscope/core"

	"tinygo.org/x/drivers"
)

// MotorState is the open-loop lens position inferred from issued steps.
// It is only corrected at the home switch edges.
type MotorState struct {
	Position
	Phase uint8 // Index into the full-step pattern, Current mod 4
}

// Stepper drives the lens motor through an SPI coil driver. Each step
// transmits the coil pattern for the new position as one 8-bit word.
type Stepper struct {
	bus      drivers.SPI
	gpio     core.GPIODriver
	cfg      config.MotorConfig
	stepMin  int32
	stepMax  int32
	retries  int
	state    MotorState
	enabled  bool
	txErrors uint32
	word     [1]byte
}

// NewStepper configures the SPI bus and the driver enable line. The
// driver starts de-energised at position 0.
func NewStepper(cfg *config.Config, spi core.SPIDriver, gpio core.GPIODriver) (*Stepper, error) {
	bus, err := spi.ConfigureBus(core.SPIConfig{
		Mode:       core.SPIMode(cfg.Motor.SPIMode),
		Rate:       cfg.Motor.SPIRate,
		WordLength: 8,
	})
	if err != nil {
		return nil, err
	}

	pin := core.GPIOPin(cfg.Motor.EnablePin)
	if err := gpio.ConfigureOutput(pin); err != nil {
		return nil, err
	}

	s := &Stepper{
		bus:     bus,
		gpio:    gpio,
		cfg:     cfg.Motor,
		stepMin: cfg.Focus.StepMin,
		stepMax: cfg.Focus.StepMax,
		retries: cfg.Retries,
	}
	s.Disable()
	return s, nil
}

// State returns the current motor state
func (s *Stepper) State() MotorState {
	return s.state
}

// SetTarget sets the required position, clamped to the focus range
func (s *Stepper) SetTarget(required int32) {
	if required < s.stepMin {
		required = s.stepMin
	} else if required > s.stepMax {
		required = s.stepMax
	}
	s.state.Required = required
}

// Reposition overwrites both counters without clamping. Homing uses it to
// redefine where the lens is.
func (s *Stepper) Reposition(pos Position) {
	s.state.Position = pos
}

// Step moves one full step toward the required position and reports
// whether the target is reached. It does nothing at the target.
func (s *Stepper) Step() bool {
	if s.state.Current == s.state.Required {
		return true
	}

	if s.state.Current < s.state.Required {
		s.state.Current++
	} else {
		s.state.Current--
	}
	s.state.Phase = uint8(((s.state.Current % 4) + 4) % 4)

	// A lost word leaves the coils one phase behind; keep going
	s.word[0] = s.cfg.Pattern[s.state.Phase]
	err := core.Retry("motor_step", s.retries, func() error {
		return s.bus.Tx(s.word[:], nil)
	})
	if err != nil {
		s.txErrors++
	}

	return s.state.Current == s.state.Required
}

// Enable energises the motor driver
func (s *Stepper) Enable() error {
	return s.setEnable(true)
}

// Disable de-energises the motor driver
func (s *Stepper) Disable() error {
	return s.setEnable(false)
}

func (s *Stepper) setEnable(on bool) error {
	level := on == s.cfg.EnableActiveHigh
	pin := core.GPIOPin(s.cfg.EnablePin)
	err := core.Retry("motor_enable", s.retries, func() error {
		return s.gpio.SetPin(pin, level)
	})
	if err == nil {
		s.enabled = on
	}
	return err
}

// Energized reports whether the driver is enabled
func (s *Stepper) Energized() bool {
	return s.enabled
}

// TxErrors returns the number of step words that could not be sent
func (s *Stepper) TxErrors() uint32 {
	return s.txErrors
}
