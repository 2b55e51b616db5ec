package core

import "tinygo.org/x/drivers"

// I2CAddress is a 7-bit I2C device address.
type I2CAddress uint16

// I2CDriver configures the I2C master used for the image sensor control
// port and returns a bus that speaks the tinygo drivers I2C contract.
type I2CDriver interface {
	// ConfigureBus initializes the bus at the given frequency.
	ConfigureBus(frequencyHz uint32) (drivers.I2C, error)
}
