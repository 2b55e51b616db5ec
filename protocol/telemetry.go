package protocol

import (
	"io"
	"sync"
)

// FocusStatus reports the autofocus state machine and lens position
type FocusStatus struct {
	State     uint8
	Home      uint8
	Current   int32
	Required  int32
	Energized bool
	Contrast  uint32
	Best      uint32
	BestPos   int32
	Frames    uint32
}

// FrameStats reports streaming counters
type FrameStats struct {
	Frames         uint32
	Buffers        uint32
	CommitFailures uint32
	Discarded      uint32
	WatchdogResets uint32
	WindowGaps     uint32
	Starts         uint32
}

// Encoder writes telemetry frames to the debug UART. Frames carry a
// rolling 4-bit sequence so the host can spot drops.
type Encoder struct {
	mu     sync.Mutex
	w      io.Writer
	seq    uint8
	out    ScratchOutput
	frames uint32
}

// NewEncoder creates an encoder writing to w
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// EncodeFrame frames the payload written by frameData and sends it
func (e *Encoder) EncodeFrame(frameData func(output OutputBuffer)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.out.Reset()
	seq := MessageDest | (e.seq & MessageSeqMask)
	e.out.Output([]byte{0, seq})

	frameData(&e.out)

	// Update length field
	length := e.out.CurPosition() + MessageTrailerSize
	if length > MessageLengthMax || e.out.Overflowed() {
		return ErrMessageTooLong
	}
	e.out.Update(MessagePositionLen, uint8(length))

	crc := CRC16(e.out.Result())
	e.out.Output([]byte{
		uint8((crc & 0xFF00) >> 8),
		uint8(crc & 0xFF),
		MessageValueSync,
	})

	e.seq++
	e.frames++
	_, err := e.w.Write(e.out.Result())
	return err
}

// Frames returns the number of frames sent
func (e *Encoder) Frames() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames
}

// SendFocusStatus sends a MsgFocusStatus frame
func (e *Encoder) SendFocusStatus(s FocusStatus) error {
	return e.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, MsgFocusStatus)
		EncodeVLQUint(output, uint32(s.State))
		EncodeVLQUint(output, uint32(s.Home))
		EncodeVLQInt(output, s.Current)
		EncodeVLQInt(output, s.Required)
		energized := uint32(0)
		if s.Energized {
			energized = 1
		}
		EncodeVLQUint(output, energized)
		EncodeVLQUint(output, s.Contrast)
		EncodeVLQUint(output, s.Best)
		EncodeVLQInt(output, s.BestPos)
		EncodeVLQUint(output, s.Frames)
	})
}

// SendFrameStats sends a MsgFrameStats frame
func (e *Encoder) SendFrameStats(s FrameStats) error {
	return e.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, MsgFrameStats)
		EncodeVLQUint(output, s.Frames)
		EncodeVLQUint(output, s.Buffers)
		EncodeVLQUint(output, s.CommitFailures)
		EncodeVLQUint(output, s.Discarded)
		EncodeVLQUint(output, s.WatchdogResets)
		EncodeVLQUint(output, s.WindowGaps)
		EncodeVLQUint(output, s.Starts)
	})
}

// maxLogText keeps a log frame within MessageLengthMax
const maxLogText = MessageLengthMax - MessageLengthMin - 3

// SendLog sends a MsgLog frame, truncating long text
func (e *Encoder) SendLog(text string) error {
	if len(text) > maxLogText {
		text = text[:maxLogText]
	}
	return e.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, MsgLog)
		EncodeVLQString(output, text)
	})
}
