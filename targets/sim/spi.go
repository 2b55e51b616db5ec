package sim

import (
	"errors"
	"sync"

	"microscope/core"

	"tinygo.org/x/drivers"
)

// ErrTxFailed is returned for a transfer made to fail with FailNext
var ErrTxFailed = errors.New("sim: spi transfer failed")

// SPIDriver implements core.SPIDriver and the drivers.SPI bus it returns.
// Every byte written is recorded and passed to OnWord.
type SPIDriver struct {
	mu         sync.Mutex
	config     core.SPIConfig
	configured bool
	words      []byte
	onWord     func(byte)
	failNext   int
}

// NewSPIDriver creates an unconfigured bus. onWord may be nil.
func NewSPIDriver(onWord func(byte)) *SPIDriver {
	return &SPIDriver{onWord: onWord}
}

// ConfigureBus records the bus settings and returns the bus
func (s *SPIDriver) ConfigureBus(config core.SPIConfig) (drivers.SPI, error) {
	if config.Mode > 3 {
		return nil, errors.New("sim: invalid spi mode")
	}

	s.mu.Lock()
	s.config = config
	s.configured = true
	s.mu.Unlock()
	return s, nil
}

// Tx writes w and fills r with zeros
func (s *SPIDriver) Tx(w, r []byte) error {
	s.mu.Lock()
	if !s.configured {
		s.mu.Unlock()
		return core.ErrNotConfigured
	}
	if s.failNext > 0 {
		s.failNext--
		s.mu.Unlock()
		return ErrTxFailed
	}
	s.words = append(s.words, w...)
	onWord := s.onWord
	s.mu.Unlock()

	for i := range r {
		r[i] = 0
	}
	if onWord != nil {
		for _, b := range w {
			onWord(b)
		}
	}
	return nil
}

// Transfer writes one byte
func (s *SPIDriver) Transfer(b byte) (byte, error) {
	var r [1]byte
	err := s.Tx([]byte{b}, r[:])
	return r[0], err
}

// FailNext makes the next n transfers fail
func (s *SPIDriver) FailNext(n int) {
	s.mu.Lock()
	s.failNext = n
	s.mu.Unlock()
}

// Config returns the configured bus settings
func (s *SPIDriver) Config() core.SPIConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// Words returns a copy of every byte written
func (s *SPIDriver) Words() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.words...)
}

// Lens turns coil pattern words into lens travel. A word one phase ahead
// moves the lens up a step, one phase behind moves it down, anything else
// leaves it where it is. The home switch is covered at or below HomeEdge.
type Lens struct {
	mu       sync.Mutex
	pattern  [4]uint8
	phase    int
	position int32
	homeEdge int32
	moves    uint32
	missed   uint32
}

// NewLens places the lens at position with the coils at phase 0
func NewLens(pattern [4]uint8, position, homeEdge int32) *Lens {
	return &Lens{pattern: pattern, position: position, homeEdge: homeEdge}
}

// OnWord applies one coil pattern word
func (l *Lens) OnWord(w byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := -1
	for i, p := range l.pattern {
		if p == w {
			next = i
			break
		}
	}
	if next < 0 {
		l.missed++
		return
	}

	switch (next - l.phase + 4) % 4 {
	case 1:
		l.position++
		l.moves++
	case 3:
		l.position--
		l.moves++
	case 2:
		l.missed++
	}
	l.phase = next
}

// Position returns the physical lens position
func (l *Lens) Position() int32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.position
}

// HomeActive reports whether the lens covers the home switch
func (l *Lens) HomeActive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.position <= l.homeEdge
}

// Moves returns the number of steps taken
func (l *Lens) Moves() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.moves
}

// Missed returns the number of words that did not move the lens
func (l *Lens) Missed() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.missed
}
