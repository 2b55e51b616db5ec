// Package sensor controls the AR0330 image sensor over its I2C port.
// Register tables are loaded by the boot code; this package only
// switches the sensor between streaming and standby.
package sensor

import (
	"microscope/config"
	"microscope/core"

	"tinygo.org/x/drivers"
)

// AR0330 registers
const (
	RegChipVersion   = 0x3000
	RegResetRegister = 0x301A
)

// RESET_REGISTER values
const (
	ResetStreamOn  = 0x005C
	ResetStreamOff = 0x0058
)

// ChipVersionAR0330 is the expected RegChipVersion value
const ChipVersionAR0330 = 0x2604

// AR0330 is the sensor power control
type AR0330 struct {
	bus     drivers.I2C
	addr    uint16
	retries int
	buf     [4]byte
}

// New configures the I2C bus and returns the sensor
func New(cfg *config.Config, i2c core.I2CDriver) (*AR0330, error) {
	bus, err := i2c.ConfigureBus(cfg.Sensor.I2CRate)
	if err != nil {
		return nil, err
	}
	return &AR0330{
		bus:     bus,
		addr:    cfg.Sensor.Address,
		retries: cfg.Retries,
	}, nil
}

// WriteRegister writes a 16-bit register
func (s *AR0330) WriteRegister(reg, value uint16) error {
	s.buf[0] = byte(reg >> 8)
	s.buf[1] = byte(reg)
	s.buf[2] = byte(value >> 8)
	s.buf[3] = byte(value)
	return core.Retry("sensor_write "+core.Hex(uint32(reg)), s.retries, func() error {
		return s.bus.Tx(s.addr, s.buf[:4], nil)
	})
}

// ReadRegister reads a 16-bit register
func (s *AR0330) ReadRegister(reg uint16) (uint16, error) {
	w := [2]byte{byte(reg >> 8), byte(reg)}
	var r [2]byte
	err := core.Retry("sensor_read "+core.Hex(uint32(reg)), s.retries, func() error {
		return s.bus.Tx(s.addr, w[:], r[:])
	})
	if err != nil {
		return 0, err
	}
	return uint16(r[0])<<8 | uint16(r[1]), nil
}

// Probe checks the chip version
func (s *AR0330) Probe() (bool, error) {
	version, err := s.ReadRegister(RegChipVersion)
	if err != nil {
		return false, err
	}
	return version == ChipVersionAR0330, nil
}

// PowerUp starts streaming
func (s *AR0330) PowerUp() error {
	core.DebugAsync("[SENSOR] power up")
	return s.WriteRegister(RegResetRegister, ResetStreamOn)
}

// PowerDown puts the sensor in standby
func (s *AR0330) PowerDown() error {
	core.DebugAsync("[SENSOR] power down")
	return s.WriteRegister(RegResetRegister, ResetStreamOff)
}
