// Package serial opens the camera debug UART on the host.
package serial

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// Rates the camera UART can be strapped to
var supportedBauds = []int{9600, 57600, 115200, 230400, 921600}

// Port is a telemetry source. The camera never listens on its debug UART,
// so only the read side is exposed.
type Port interface {
	io.ReadCloser

	// Flush drops bytes received but not yet read
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyUSB0", "COM3")
	Device string

	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultConfig returns the debug UART settings of the camera
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100,
	}
}

// Validate checks the device name, baud rate and timeout
func (c *Config) Validate() error {
	if c.Device == "" {
		return errors.New("serial: device required")
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("serial: negative read timeout %d", c.ReadTimeout)
	}
	for _, b := range supportedBauds {
		if c.Baud == b {
			return nil
		}
	}
	return fmt.Errorf("serial: unsupported baud rate %d", c.Baud)
}

// UARTPort reads telemetry through tarm/serial
type UARTPort struct {
	port    *serial.Port
	timeout bool
}

// Open opens the UART and discards anything queued before the monitor
// started, which is usually a partial frame.
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, errors.New("serial: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: time.Duration(cfg.ReadTimeout) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", cfg.Device, err)
	}
	if err := port.Flush(); err != nil {
		port.Close()
		return nil, fmt.Errorf("serial: flush %s: %w", cfg.Device, err)
	}

	return &UARTPort{port: port, timeout: cfg.ReadTimeout > 0}, nil
}

// Read returns no data and no error when the read timeout expires, so
// callers can check for cancellation between reads.
func (p *UARTPort) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	// tarm reports an expired read timeout as EOF
	if n == 0 && p.timeout && errors.Is(err, io.EOF) {
		return 0, nil
	}
	return n, err
}

func (p *UARTPort) Close() error {
	return p.port.Close()
}

func (p *UARTPort) Flush() error {
	return p.port.Flush()
}
