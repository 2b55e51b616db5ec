package sim

import (
	"errors"
	"sync"

	"tinygo.org/x/drivers"
)

// ErrNack is returned for transfers to an absent address
var ErrNack = errors.New("sim: i2c nack")

const (
	regChipVersion = 0x3000
	regReset       = 0x301A
	chipVersion    = 0x2604
	resetStreamOn  = 0x005C
)

// SensorBus is an I2C bus with an AR0330 style register file behind one
// address. Registers are 16-bit with 16-bit big-endian addresses.
type SensorBus struct {
	mu        sync.Mutex
	address   uint16
	frequency uint32
	regs      map[uint16]uint16
	writes    uint32

	// Failures makes the next n transfers NACK
	Failures int
}

// NewSensorBus creates a sensor in standby at address
func NewSensorBus(address uint16) *SensorBus {
	return &SensorBus{
		address: address,
		regs: map[uint16]uint16{
			regChipVersion: chipVersion,
			regReset:       0x0058,
		},
	}
}

// ConfigureBus implements core.I2CDriver
func (b *SensorBus) ConfigureBus(frequencyHz uint32) (drivers.I2C, error) {
	if frequencyHz == 0 {
		return nil, errors.New("sim: invalid i2c frequency")
	}
	b.mu.Lock()
	b.frequency = frequencyHz
	b.mu.Unlock()
	return b, nil
}

// Tx writes a register address, optionally followed by a value, and
// reads a value back when r is given
func (b *SensorBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.Failures > 0 {
		b.Failures--
		return ErrNack
	}
	if addr != b.address || len(w) < 2 {
		return ErrNack
	}

	reg := uint16(w[0])<<8 | uint16(w[1])
	if len(w) >= 4 {
		b.regs[reg] = uint16(w[2])<<8 | uint16(w[3])
		b.writes++
	}
	if len(r) >= 2 {
		v := b.regs[reg]
		r[0], r[1] = byte(v>>8), byte(v)
	}
	return nil
}

// ReadRegister implements drivers.I2C for 8-bit register maps
func (b *SensorBus) ReadRegister(addr uint8, r uint8, buf []byte) error {
	return b.Tx(uint16(addr), []byte{0, r}, buf)
}

// WriteRegister implements drivers.I2C for 8-bit register maps
func (b *SensorBus) WriteRegister(addr uint8, r uint8, buf []byte) error {
	return b.Tx(uint16(addr), append([]byte{0, r}, buf...), nil)
}

// Register returns the current value of a register
func (b *SensorBus) Register(reg uint16) uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.regs[reg]
}

// Streaming reports whether the sensor was left out of standby
func (b *SensorBus) Streaming() bool {
	return b.Register(regReset) == resetStreamOn
}
