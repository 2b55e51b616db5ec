package sim

import "encoding/binary"

// Scene renders raw 16-bit Bayer frames of a bar target. Bar contrast
// falls off linearly with the distance of the lens from BestFocus and
// reaches zero Falloff steps away.
type Scene struct {
	Width     int
	Height    int
	BestFocus int32
	Falloff   int32
	Base      uint16
	Amplitude uint16
}

// NewScene creates a scene with a sharp 4-pixel bar target
func NewScene(width, height int, bestFocus int32) *Scene {
	return &Scene{
		Width:     width,
		Height:    height,
		BestFocus: bestFocus,
		Falloff:   40,
		Base:      1024,
		Amplitude: 2048,
	}
}

// FrameBytes is the size of one rendered frame
func (s *Scene) FrameBytes() int {
	return s.Width * s.Height * 2
}

// Sharpness returns the bar amplitude seen at a lens position
func (s *Scene) Sharpness(lens int32) uint16 {
	d := lens - s.BestFocus
	if d < 0 {
		d = -d
	}
	if s.Falloff <= 0 || d >= s.Falloff {
		return 0
	}
	return uint16(uint32(s.Amplitude) * uint32(s.Falloff-d) / uint32(s.Falloff))
}

// Render fills dst with a frame captured at the given lens position.
// dst must hold FrameBytes.
func (s *Scene) Render(dst []byte, lens int32) {
	amp := s.Sharpness(lens)
	row := dst[:s.Width*2]
	for x := 0; x < s.Width; x++ {
		v := s.Base
		if (x/2)%2 == 1 {
			v += amp
		}
		binary.LittleEndian.PutUint16(row[2*x:], v)
	}
	for y := 1; y < s.Height; y++ {
		copy(dst[y*s.Width*2:(y+1)*s.Width*2], row)
	}
}
