package protocol

// InputBuffer holds received bytes waiting to be parsed
type InputBuffer interface {
	Data() []byte
	Available() int
	// Pop drops n parsed bytes from the front
	Pop(n int)
}

// OutputBuffer is the destination of an encoded frame
type OutputBuffer interface {
	Output(data []byte)
	CurPosition() int
	// Update patches an already written byte, used for the length field
	Update(pos int, val byte)
}

// ScratchOutput collects one frame in a fixed buffer. Bytes past
// MessageMax are dropped and flagged.
type ScratchOutput struct {
	buf      [MessageMax]byte
	pos      int
	overflow bool
}

// NewScratchOutput creates an empty scratch buffer
func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

func (s *ScratchOutput) Output(data []byte) {
	n := copy(s.buf[s.pos:], data)
	s.pos += n
	if n < len(data) {
		s.overflow = true
	}
}

func (s *ScratchOutput) CurPosition() int {
	return s.pos
}

func (s *ScratchOutput) Update(pos int, val byte) {
	if pos < s.pos {
		s.buf[pos] = val
	}
}

// Overflowed reports whether any output was dropped since Reset
func (s *ScratchOutput) Overflowed() bool {
	return s.overflow
}

// Result returns the bytes written so far
func (s *ScratchOutput) Result() []byte {
	return s.buf[:s.pos]
}

func (s *ScratchOutput) Reset() {
	s.pos = 0
	s.overflow = false
}

// RxBuffer accumulates UART bytes for the decoder. Parsed bytes are popped
// from the front and the remainder is moved down before the next write, so
// Data is always one contiguous slice.
type RxBuffer struct {
	buf   []byte
	start int
	end   int
}

// NewRxBuffer creates a receive buffer holding up to capacity bytes
func NewRxBuffer(capacity int) *RxBuffer {
	return &RxBuffer{buf: make([]byte, capacity)}
}

// Write appends as much of data as fits and returns the count taken
func (r *RxBuffer) Write(data []byte) int {
	if r.start > 0 {
		r.end = copy(r.buf, r.buf[r.start:r.end])
		r.start = 0
	}
	n := copy(r.buf[r.end:], data)
	r.end += n
	return n
}

func (r *RxBuffer) Data() []byte {
	return r.buf[r.start:r.end]
}

func (r *RxBuffer) Available() int {
	return r.end - r.start
}

// Free returns the room left for Write, counting bytes already popped
func (r *RxBuffer) Free() int {
	return len(r.buf) - r.Available()
}

func (r *RxBuffer) Pop(n int) {
	if n > r.Available() {
		n = r.Available()
	}
	r.start += n
	if r.start == r.end {
		r.start, r.end = 0, 0
	}
}

func (r *RxBuffer) Reset() {
	r.start, r.end = 0, 0
}
