package config

import (
	"encoding/json"
	"strconv"
)

// Full-step coil pattern for the lens motor driver
var defaultPattern = [4]uint8{0323, 0322, 0332, 0333}

// LoadConfig parses a JSON configuration string and returns a Config
func LoadConfig(jsonData []byte) (*Config, error) {
	var config Config

	err := json.Unmarshal(jsonData, &config)
	if err != nil {
		return nil, err
	}

	// Apply defaults
	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// applyDefaults fills in missing configuration values with the values the
// reference board ships with
func applyDefaults(config *Config) {
	if config.Speed == "" {
		config.Speed = SpeedSuper
	}

	// Stream
	s := &config.Stream
	if s.Width == 0 {
		s.Width = 1920
	}
	if s.Height == 0 {
		s.Height = 1080
	}
	if s.BytesPerPixel == 0 {
		s.BytesPerPixel = 2
	}
	if s.DataBufferSize == 0 || s.BufferCount == 0 {
		size, count := SpeedPreset(config.Speed)
		if s.DataBufferSize == 0 {
			s.DataBufferSize = size
		}
		if s.BufferCount == 0 {
			s.BufferCount = count
		}
	}
	if s.HeaderSize == 0 {
		s.HeaderSize = 12
	}
	if s.FooterSize == 0 {
		s.FooterSize = 4
	}
	if s.FrameTimeoutMS == 0 {
		s.FrameTimeoutMS = 500
	}

	// Focus
	f := &config.Focus
	if f.LineLength == 0 {
		f.LineLength = 100
	}
	if f.Hysteresis == 0 {
		f.Hysteresis = 200
	}
	if f.TopLimit == 0 {
		f.TopLimit = 120
	}
	if f.BottomLimit == 0 {
		f.BottomLimit = 120
	}
	if f.NSteps == 0 {
		f.NSteps = 10
	}
	if f.StepMax == 0 {
		f.StepMax = 60
	}

	// Motor
	m := &config.Motor
	if m.EnablePin == 0 {
		m.EnablePin = 26
	}
	if m.HomePin == 0 {
		m.HomePin = 17
	}
	if m.Pattern == [4]uint8{} {
		m.Pattern = defaultPattern
	}
	if m.SPIRate == 0 {
		m.SPIRate = 1500000
	}
	if m.SPIMode == 0 {
		m.SPIMode = 3
	}

	// Sensor
	if config.Sensor.Address == 0 {
		config.Sensor.Address = 0x10
	}
	if config.Sensor.I2CRate == 0 {
		config.Sensor.I2CRate = 400000
	}

	if config.Retries == 0 {
		config.Retries = 3
	}
	if config.ReportEveryFrames == 0 {
		config.ReportEveryFrames = 30
	}
}

// SpeedPreset returns the DMA data buffer size and buffer count for a
// USB link speed
func SpeedPreset(speed string) (size, count int) {
	switch speed {
	case SpeedHigh:
		return 3056, 8
	default:
		return 0x5FF0, 4
	}
}

// DefaultConfig returns the configuration for a 1080p sensor on a
// SuperSpeed link
func DefaultConfig() *Config {
	config := &Config{Speed: SpeedSuper}
	applyDefaults(config)
	return config
}

// ValidationError reports a configuration field with an unusable value
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "config: " + e.Field + ": " + e.Reason
}

// Validate checks that the configuration can size every buffer and window
func (c *Config) Validate() error {
	if c.Speed != SpeedSuper && c.Speed != SpeedHigh {
		return &ValidationError{"Speed", "unknown speed " + strconv.Quote(c.Speed)}
	}

	s := c.Stream
	if s.Width <= 0 || s.Height < 3 {
		return &ValidationError{"Stream", "frame must be at least 1x3 pixels"}
	}
	if s.BytesPerPixel != 2 {
		return &ValidationError{"Stream.BytesPerPixel", "only 16-bit samples are supported"}
	}
	if s.DataBufferSize <= 0 || s.DataBufferSize%2 != 0 {
		return &ValidationError{"Stream.DataBufferSize", "must be a positive even byte count"}
	}
	if s.BufferCount < 2 {
		return &ValidationError{"Stream.BufferCount", "need at least two buffers"}
	}
	if s.HeaderSize != 12 {
		return &ValidationError{"Stream.HeaderSize", "UVC payload header is 12 bytes"}
	}

	f := c.Focus
	if f.LineLength <= 0 || f.LineLength+2 > s.Width {
		return &ValidationError{"Focus.LineLength", "strip must fit in a sensor line"}
	}
	if f.StepMin < 0 || f.StepMin >= f.StepMax {
		return &ValidationError{"Focus.StepMax", "step range is empty"}
	}
	if f.TopLimit <= 0 || f.BottomLimit <= 0 || f.NSteps <= 0 {
		return &ValidationError{"Focus", "homing limits must be positive"}
	}

	if c.Retries < 1 {
		return &ValidationError{"Retries", "must be at least 1"}
	}
	return nil
}

// Geometry derives the byte ranges of the three captured lines. The strip
// is centred horizontally and carries one border pixel on each side.
func (c *Config) Geometry() Geometry {
	s := c.Stream
	rowBytes := s.Width * s.BytesPerPixel
	captureBytes := (c.Focus.LineLength + 2) * s.BytesPerPixel
	beginX := (rowBytes - captureBytes) / 2
	centre := s.Height / 2

	var g Geometry
	g.RowBytes = rowBytes
	g.CaptureBytes = captureBytes
	for i := range g.Rows {
		begin := (centre-1+i)*rowBytes + beginX
		g.Rows[i] = ByteRange{Begin: begin, End: begin + captureBytes}
	}
	return g
}

// FrameBytes returns the payload size of one full frame
func (c *Config) FrameBytes() int {
	return c.Stream.Width * c.Stream.Height * c.Stream.BytesPerPixel
}

// BufferSize returns the allocation size of one capture buffer
func (c *Config) BufferSize() int {
	return c.Stream.HeaderSize + c.Stream.DataBufferSize + c.Stream.FooterSize
}
