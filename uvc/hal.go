package uvc

// DMAChannel is the many-to-one channel from the two GPIF sockets to the
// bulk video endpoint. Produce and consume callbacks arrive through
// Pipeline.OnProduced and Pipeline.OnConsumed.
type DMAChannel interface {
	// Commit hands length bytes of buf (header included) to the endpoint
	Commit(buf *CaptureBuffer, length int) error
	// Discard returns a produced buffer without sending it
	Discard(buf *CaptureBuffer) error
	// Reset returns both sockets to the start of their descriptor chains
	Reset() error
	// SetXfer starts a transfer of count buffers, 0 for unlimited
	SetXfer(count uint32) error
	// WrapUp forces out the partially filled buffer of a socket
	WrapUp(socket uint8) error
}

// GPIFState identifies a GPIF state machine state reported in interrupts
type GPIFState uint8

const (
	GPIFStartSocket0 GPIFState = iota
	GPIFStartSocket1
	GPIFPartialSocket0
	GPIFPartialSocket1
)

// GPIFDriver controls the parallel capture state machine
type GPIFDriver interface {
	// Switch moves the state machine to the start state of a socket
	Switch(socket uint8) error
	// Pause stops (true) or resumes (false) the state machine
	Pause(paused bool) error
}

// USBEndpoint is the bulk video endpoint and link power control
type USBEndpoint interface {
	SetNak(nak bool) error
	Flush() error
	ClearStall() error
	SetLPM(enabled bool) error
	SuperSpeed() bool
}

// MIPIDriver is the CSI-2 receiver
type MIPIDriver interface {
	Wakeup() error
	Sleep() error
}

// PowerDriver puts the controller into low power suspend. EnterSuspend
// returns when USB bus activity wakes the device.
type PowerDriver interface {
	EnterSuspend() error
}

// Sensor is the image sensor power control
type Sensor interface {
	PowerUp() error
	PowerDown() error
}

// FocusTap receives every committed payload and frame completions
type FocusTap interface {
	FocusSetLine(index int, payload []byte)
	FocusEndFrame(buffers int)
}

// Autofocus starts and aborts the focus sweep
type Autofocus interface {
	FocusStart()
	FocusStop()
}
