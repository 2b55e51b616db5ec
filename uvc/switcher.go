package uvc

import (
	"sync"

	"microscope/core"
)

// Switcher ping-pongs the GPIF between the two capture sockets so one
// socket drains to USB while the other fills.
type Switcher struct {
	mu      sync.Mutex
	gpif    GPIFDriver
	dma     DMAChannel
	retries int
	active  uint8
	frames  uint32
	wrapUps uint32
}

// NewSwitcher creates a switcher starting on socket 0
func NewSwitcher(gpif GPIFDriver, dma DMAChannel, retries int) *Switcher {
	return &Switcher{gpif: gpif, dma: dma, retries: retries}
}

// Reset returns the state machine to socket 0
func (s *Switcher) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = 0
	s.frames = 0
	return s.switchTo(0)
}

// FrameComplete flips the active socket and starts the next frame on it
func (s *Switcher) FrameComplete() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frames++
	s.active ^= 1
	s.switchTo(s.active)
	return s.active
}

func (s *Switcher) switchTo(socket uint8) error {
	core.RecordEvent(core.EvtSocketSwitch, uint32(socket), s.frames)
	return core.Retry("gpif_switch", s.retries, func() error {
		return s.gpif.Switch(socket)
	})
}

// PartialBuffer wraps up the descriptor chain of a socket so a short
// final buffer is delivered
func (s *Switcher) PartialBuffer(socket uint8) error {
	s.mu.Lock()
	s.wrapUps++
	s.mu.Unlock()

	core.RecordEvent(core.EvtWrapUp, uint32(socket), 0)
	err := s.dma.WrapUp(socket)
	if err != nil {
		core.DebugAsync("[UVC] wrap up socket " + core.Itoa(int(socket)) + " error: " + err.Error())
	}
	return err
}

// OnGPIFEvent handles a state machine interrupt
func (s *Switcher) OnGPIFEvent(state GPIFState) {
	switch state {
	case GPIFPartialSocket0:
		s.PartialBuffer(0)
	case GPIFPartialSocket1:
		s.PartialBuffer(1)
	}
}

// ActiveSocket returns the socket capturing the current frame
func (s *Switcher) ActiveSocket() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Frames returns the number of completed frames since Reset
func (s *Switcher) Frames() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}
