package config

// USB link speeds with their own DMA buffer presets
const (
	SpeedSuper = "super"
	SpeedHigh  = "high"
)

// StreamConfig sizes the capture buffers and the video frame
type StreamConfig struct {
	Width          int    // Active pixels per line
	Height         int    // Active lines per frame
	BytesPerPixel  int    // Raw Bayer sample size (16-bit samples)
	DataBufferSize int    // Payload bytes per full DMA buffer
	HeaderSize     int    // UVC payload header bytes reserved ahead of the payload
	FooterSize     int    // Trailing bytes reserved after the payload
	BufferCount    int    // DMA buffers per socket
	FrameTimeoutMS uint32 // Frame watchdog period
}

// FocusConfig holds the autofocus sweep and window parameters
type FocusConfig struct {
	LineLength       int    // Output samples per contrast strip
	Hysteresis       uint32 // Contrast gain needed to move the best position
	TopLimit         int32  // Steps travelled off the home switch
	BottomLimit      int32  // Steps travelled looking for the home switch
	NSteps           int32  // Overshoot past the switch edge
	StepMin          int32  // Lowest focus target
	StepMax          int32  // Highest focus target, end of the sweep
	StartGreen       bool   // First sample of the strip is a green photosite
	DisableAutofocus bool   // Do not start a sweep when streaming starts
}

// MotorConfig describes the SPI stepper driver wiring
type MotorConfig struct {
	EnablePin        uint32   // Driver enable GPIO
	EnableActiveHigh bool     // Enable line polarity (driver is active low by default)
	HomePin          uint32   // Home position switch GPIO
	HomeActiveLow    bool     // Switch reads low when the lens is home
	HomePullUp       bool     // Configure the switch input with a pull-up
	Pattern          [4]uint8 // Full-step coil pattern indexed by position mod 4
	SPIRate          uint32   // SPI clock in Hz
	SPIMode          uint8    // SPI mode (CPOL/CPHA)
}

// SensorConfig describes the image sensor control bus
type SensorConfig struct {
	Address uint16 // 7-bit I2C address
	I2CRate uint32 // I2C clock in Hz
}

// Config is the complete camera configuration, resolved once at startup
type Config struct {
	Speed             string // "super" or "high"
	Stream            StreamConfig
	Focus             FocusConfig
	Motor             MotorConfig
	Sensor            SensorConfig
	Retries           int // Attempts for each peripheral transfer
	ReportEveryFrames int // Telemetry period in completed frames
}

// ByteRange is a half-open byte interval [Begin, End) within a frame
type ByteRange struct {
	Begin int
	End   int
}

// Len returns the number of bytes in the range
func (r ByteRange) Len() int {
	return r.End - r.Begin
}

// Geometry is the derived pixel window layout
type Geometry struct {
	Rows         [3]ByteRange // Previous, centre and next line captures
	CaptureBytes int          // Bytes per captured row including border pixels
	RowBytes     int          // Bytes per sensor line
}
