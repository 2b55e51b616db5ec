package uvc

import (
	"errors"
	"sync"

	"microscope/config"
	"microscope/core"
)

// ErrSessionInactive is returned for buffers produced while streaming is
// stopped
var ErrSessionInactive = errors.New("uvc: session inactive")

// Stats are the pipeline counters since the last Activate
type Stats struct {
	Buffers        uint32
	Bytes          uint64
	Frames         uint32
	CommitFailures uint32
	Discarded      uint32
	StillFrames    uint32
}

// Pipeline stamps payload headers on produced capture buffers, commits
// them to the bulk endpoint and detects frame completion as they drain.
type Pipeline struct {
	mu       sync.Mutex
	cfg      config.StreamConfig
	dma      DMAChannel
	usb      USBEndpoint
	switcher *Switcher
	watchdog *Watchdog
	tap      FocusTap
	onFail   func()

	header      Header
	state       FrameState
	active      bool
	lpmDisabled bool
	still       stillState
	stats       Stats
}

type stillState uint8

const (
	stillNone stillState = iota
	stillRequested
	stillCapturing
)

// NewPipeline creates an inactive pipeline. onFail is called when the
// channel rejects a commit.
func NewPipeline(cfg config.StreamConfig, dma DMAChannel, usb USBEndpoint, switcher *Switcher,
	watchdog *Watchdog, tap FocusTap, onFail func()) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		dma:      dma,
		usb:      usb,
		switcher: switcher,
		watchdog: watchdog,
		tap:      tap,
		onFail:   onFail,
		header:   NewHeader(),
	}
}

// Activate starts accepting buffers with cleared frame state
func (p *Pipeline) Activate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.active = true
	p.state = FrameState{}
	p.lpmDisabled = false
	p.stats = Stats{}
}

// Deactivate discards further buffers and clears the in-flight count
func (p *Pipeline) Deactivate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.active = false
	p.state.Pending = 0
	p.state.Index = 0
	p.state.SeenEnd = false
}

// Active reports whether buffers are being streamed
func (p *Pipeline) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// OnProduced handles a buffer filled by the GPIF. A buffer shorter than
// DataBufferSize ends the frame.
func (p *Pipeline) OnProduced(buf *CaptureBuffer) error {
	p.mu.Lock()

	if !p.active {
		p.stats.Discarded++
		p.mu.Unlock()
		p.dma.Discard(buf)
		return ErrSessionInactive
	}

	// Keep the link in U0 while the frame is moving
	if !p.lpmDisabled && p.usb.SuperSpeed() {
		p.usb.SetLPM(false)
		p.lpmDisabled = true
	}
	p.watchdog.Start()

	last := buf.Count < p.cfg.DataBufferSize
	p.header.Stamp(buf.Header()[buf.HeaderSize-HeaderLength:], last)

	if err := p.dma.Commit(buf, buf.Count+buf.HeaderSize); err != nil {
		p.stats.CommitFailures++
		index := p.state.Index
		onFail := p.onFail
		p.mu.Unlock()

		core.RecordEvent(core.EvtCommitFailed, uint32(index), uint32(buf.Count))
		core.DebugAsync("[UVC] commit error: " + err.Error())
		if onFail != nil {
			onFail()
		}
		return err
	}

	if last {
		p.header.NextFrame()
		p.state.SeenEnd = true
	}
	index := p.state.Index
	p.state.Index++
	p.state.Pending++
	p.stats.Buffers++
	p.stats.Bytes += uint64(buf.Count)
	core.RecordEvent(core.EvtBufferCommit, uint32(index), uint32(buf.Count))

	if p.tap != nil {
		p.tap.FocusSetLine(index, buf.Payload())
	}
	p.mu.Unlock()
	return nil
}

// OnConsumed handles a buffer sent by the endpoint. When the last buffer
// of a frame drains the next frame is started on the other socket.
func (p *Pipeline) OnConsumed() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.Pending > 0 {
		p.state.Pending--
	}
	if p.state.Pending != 0 || !p.state.SeenEnd {
		return
	}

	buffers := p.state.Index
	p.state.Index = 0
	p.state.SeenEnd = false
	p.stats.Frames++

	p.watchdog.Stop()
	p.state.ActiveSocket = p.switcher.FrameComplete()

	p.usb.SetLPM(true)
	p.lpmDisabled = false
	p.watchdog.Restart()

	switch p.still {
	case stillCapturing:
		p.still = stillNone
		p.header.SetStill(false)
		p.stats.StillFrames++
	case stillRequested:
		p.still = stillCapturing
		p.header.SetStill(true)
	}

	core.RecordEvent(core.EvtFrameComplete, p.stats.Frames, uint32(buffers))
	if p.tap != nil {
		p.tap.FocusEndFrame(buffers)
	}
}

// RequestStill marks the next complete frame as a still image
func (p *Pipeline) RequestStill() {
	p.mu.Lock()
	if p.still == stillNone {
		p.still = stillRequested
	}
	p.mu.Unlock()
}

// State returns the current frame state
func (p *Pipeline) State() FrameState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats returns the pipeline counters
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
