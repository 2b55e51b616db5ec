package sim

import (
	"errors"
	"sync"

	"microscope/config"
	"microscope/uvc"
)

// ErrCommitRejected is returned for commits made to fail with FailCommits
var ErrCommitRejected = errors.New("sim: commit rejected")

// Board models the capture side of the camera controller. It implements
// the DMA channel, GPIF, USB endpoint, MIPI receiver and power control.
// Captured buffers are produced into the attached pipeline and committed
// buffers reach the host when Drain is called.
type Board struct {
	mu       sync.Mutex
	cfg      config.StreamConfig
	pipeline *uvc.Pipeline
	switcher *uvc.Switcher
	host     *Host

	free      []*uvc.CaptureBuffer
	filling   [2]*uvc.CaptureBuffer
	queue     []*uvc.CaptureBuffer
	allocated int

	socket     uint8
	paused     bool
	nak        bool
	lpm        bool
	superSpeed bool
	mipiAwake  bool
	xfer       bool

	resets   uint32
	flushes  uint32
	stalls   uint32
	suspends uint32

	// FailCommits makes the next n commits fail
	FailCommits int
}

// NewBoard creates a board with a paused GPIF. superSpeed selects the
// link speed the endpoint reports.
func NewBoard(cfg config.StreamConfig, superSpeed bool) *Board {
	return &Board{
		cfg:        cfg,
		host:       NewHost(),
		paused:     true,
		lpm:        true,
		superSpeed: superSpeed,
	}
}

// Attach connects the pipeline and switcher that receive DMA and GPIF
// callbacks
func (b *Board) Attach(pipeline *uvc.Pipeline, switcher *uvc.Switcher) {
	b.mu.Lock()
	b.pipeline = pipeline
	b.switcher = switcher
	b.mu.Unlock()
}

// Host returns the frame collector on the other end of the endpoint
func (b *Board) Host() *Host {
	return b.host
}

func (b *Board) take(socket uint8) *uvc.CaptureBuffer {
	var buf *uvc.CaptureBuffer
	if n := len(b.free); n > 0 {
		buf = b.free[n-1]
		b.free = b.free[:n-1]
	} else {
		buf = uvc.NewCaptureBuffer(int(b.cfg.HeaderSize), int(b.cfg.DataBufferSize), int(b.cfg.FooterSize))
		b.allocated++
	}
	buf.Count = 0
	buf.Socket = socket
	return buf
}

func (b *Board) release(buf *uvc.CaptureBuffer) {
	if buf != nil {
		b.free = append(b.free, buf)
	}
}

// CaptureFrame streams one sensor frame through the sockets. Full
// buffers are produced as they fill; at the end of the frame the GPIF
// reports the partial buffer of the socket it stopped on. It returns the
// number of buffers produced, 0 when the capture path is stopped.
func (b *Board) CaptureFrame(frame []byte) int {
	b.mu.Lock()
	if b.paused || !b.mipiAwake || b.pipeline == nil {
		b.mu.Unlock()
		return 0
	}
	pipeline, switcher := b.pipeline, b.switcher
	socket := b.socket
	size := int(b.cfg.DataBufferSize)
	b.mu.Unlock()

	produced := 0
	for len(frame) >= size {
		b.mu.Lock()
		buf := b.take(socket)
		b.mu.Unlock()

		buf.Count = copy(buf.Data[buf.HeaderSize:], frame[:size])
		frame = frame[size:]
		pipeline.OnProduced(buf)
		produced++
		socket ^= 1
	}

	b.mu.Lock()
	buf := b.take(socket)
	buf.Count = copy(buf.Data[buf.HeaderSize:], frame)
	b.release(b.filling[socket])
	b.filling[socket] = buf
	b.mu.Unlock()

	if socket == 0 {
		switcher.OnGPIFEvent(uvc.GPIFPartialSocket0)
	} else {
		switcher.OnGPIFEvent(uvc.GPIFPartialSocket1)
	}
	return produced + 1
}

// Drain sends every committed buffer to the host and reports each one
// consumed. It returns the number of buffers sent.
func (b *Board) Drain() int {
	sent := 0
	for {
		b.mu.Lock()
		if b.nak || len(b.queue) == 0 {
			b.mu.Unlock()
			return sent
		}
		buf := b.queue[0]
		b.queue = b.queue[1:]
		pipeline := b.pipeline
		b.mu.Unlock()

		b.host.Receive(buf.Framed())

		b.mu.Lock()
		b.release(buf)
		b.mu.Unlock()

		sent++
		pipeline.OnConsumed()
	}
}

// Queued returns the number of committed buffers not yet sent
func (b *Board) Queued() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Commit implements uvc.DMAChannel
func (b *Board) Commit(buf *uvc.CaptureBuffer, length int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.FailCommits > 0 {
		b.FailCommits--
		b.release(buf)
		return ErrCommitRejected
	}
	if length != buf.HeaderSize+buf.Count {
		b.release(buf)
		return errors.New("sim: commit length mismatch")
	}
	b.queue = append(b.queue, buf)
	return nil
}

// Discard implements uvc.DMAChannel
func (b *Board) Discard(buf *uvc.CaptureBuffer) error {
	b.mu.Lock()
	b.release(buf)
	b.mu.Unlock()
	return nil
}

// Reset implements uvc.DMAChannel
func (b *Board) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, buf := range b.queue {
		b.release(buf)
	}
	b.queue = nil
	for i := range b.filling {
		b.release(b.filling[i])
		b.filling[i] = nil
	}
	b.xfer = false
	b.resets++
	return nil
}

// SetXfer implements uvc.DMAChannel
func (b *Board) SetXfer(count uint32) error {
	b.mu.Lock()
	b.xfer = true
	b.mu.Unlock()
	return nil
}

// WrapUp implements uvc.DMAChannel. The partially filled buffer of the
// socket is produced into the pipeline.
func (b *Board) WrapUp(socket uint8) error {
	if socket > 1 {
		return errors.New("sim: invalid socket")
	}

	b.mu.Lock()
	buf := b.filling[socket]
	b.filling[socket] = nil
	pipeline := b.pipeline
	b.mu.Unlock()

	if buf == nil || pipeline == nil {
		return nil
	}
	pipeline.OnProduced(buf)
	return nil
}

// Switch implements uvc.GPIFDriver
func (b *Board) Switch(socket uint8) error {
	if socket > 1 {
		return errors.New("sim: invalid socket")
	}
	b.mu.Lock()
	b.socket = socket
	b.mu.Unlock()
	return nil
}

// Pause implements uvc.GPIFDriver
func (b *Board) Pause(paused bool) error {
	b.mu.Lock()
	b.paused = paused
	b.mu.Unlock()
	return nil
}

// SetNak implements uvc.USBEndpoint
func (b *Board) SetNak(nak bool) error {
	b.mu.Lock()
	b.nak = nak
	b.mu.Unlock()
	return nil
}

// Flush implements uvc.USBEndpoint
func (b *Board) Flush() error {
	b.mu.Lock()
	for _, buf := range b.queue {
		b.release(buf)
	}
	b.queue = nil
	b.flushes++
	b.mu.Unlock()
	return nil
}

// ClearStall implements uvc.USBEndpoint
func (b *Board) ClearStall() error {
	b.mu.Lock()
	b.stalls++
	b.mu.Unlock()
	return nil
}

// SetLPM implements uvc.USBEndpoint
func (b *Board) SetLPM(enabled bool) error {
	b.mu.Lock()
	b.lpm = enabled
	b.mu.Unlock()
	return nil
}

// SuperSpeed implements uvc.USBEndpoint
func (b *Board) SuperSpeed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.superSpeed
}

// Wakeup implements uvc.MIPIDriver
func (b *Board) Wakeup() error {
	b.mu.Lock()
	b.mipiAwake = true
	b.mu.Unlock()
	return nil
}

// Sleep implements uvc.MIPIDriver
func (b *Board) Sleep() error {
	b.mu.Lock()
	b.mipiAwake = false
	b.mu.Unlock()
	return nil
}

// EnterSuspend implements uvc.PowerDriver. The simulated bus resumes
// immediately.
func (b *Board) EnterSuspend() error {
	b.mu.Lock()
	b.suspends++
	b.mu.Unlock()
	return nil
}

// BoardState is a snapshot of the board peripherals
type BoardState struct {
	Socket    uint8
	Paused    bool
	Nak       bool
	LPM       bool
	MIPIAwake bool
	Xfer      bool
	Queued    int
	Allocated int
	Resets    uint32
	Flushes   uint32
	Stalls    uint32
	Suspends  uint32
}

// State returns the peripheral state
func (b *Board) State() BoardState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BoardState{
		Socket:    b.socket,
		Paused:    b.paused,
		Nak:       b.nak,
		LPM:       b.lpm,
		MIPIAwake: b.mipiAwake,
		Xfer:      b.xfer,
		Queued:    len(b.queue),
		Allocated: b.allocated,
		Resets:    b.resets,
		Flushes:   b.flushes,
		Stalls:    b.stalls,
		Suspends:  b.suspends,
	}
}
