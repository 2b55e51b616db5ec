package core

import "tinygo.org/x/drivers"

// SPIMode represents SPI clock polarity and phase (0-3)
// Mode 0: CPOL=0, CPHA=0 (clock idle low, sample on rising edge)
// Mode 1: CPOL=0, CPHA=1 (clock idle low, sample on falling edge)
// Mode 2: CPOL=1, CPHA=0 (clock idle high, sample on falling edge)
// Mode 3: CPOL=1, CPHA=1 (clock idle high, sample on rising edge)
type SPIMode uint8

// SPIConfig holds the configuration for an SPI bus
type SPIConfig struct {
	Mode       SPIMode // SPI mode (0-3)
	Rate       uint32  // Clock rate in Hz
	LSBFirst   bool    // Bit order on the wire
	WordLength uint8   // Bits per word
}

// SPIDriver configures a hardware SPI master and hands back a bus that
// speaks the tinygo drivers SPI contract.
type SPIDriver interface {
	ConfigureBus(config SPIConfig) (drivers.SPI, error)
}
