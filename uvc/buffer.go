package uvc

// CaptureBuffer is one DMA buffer. The payload header is written into
// the reserved lead bytes so the framed payload is contiguous.
type CaptureBuffer struct {
	Data       []byte // header + payload + footer
	HeaderSize int
	Count      int   // payload bytes produced
	Socket     uint8 // producing GPIF socket
}

// NewCaptureBuffer allocates a buffer with room for dataSize payload bytes
func NewCaptureBuffer(headerSize, dataSize, footerSize int) *CaptureBuffer {
	return &CaptureBuffer{
		Data:       make([]byte, headerSize+dataSize+footerSize),
		HeaderSize: headerSize,
	}
}

// Header returns the reserved lead bytes
func (b *CaptureBuffer) Header() []byte {
	return b.Data[:b.HeaderSize]
}

// Payload returns the produced pixel bytes
func (b *CaptureBuffer) Payload() []byte {
	return b.Data[b.HeaderSize : b.HeaderSize+b.Count]
}

// Framed returns header and payload as sent on the bulk endpoint
func (b *CaptureBuffer) Framed() []byte {
	return b.Data[:b.HeaderSize+b.Count]
}

// Capacity returns the maximum payload size
func (b *CaptureBuffer) Capacity() int {
	return len(b.Data) - b.HeaderSize
}

// FrameState tracks the frame currently draining to USB
type FrameState struct {
	ActiveSocket uint8
	Pending      int  // committed buffers not yet consumed
	SeenEnd      bool // end-of-frame buffer committed
	Index        int  // next buffer index within the frame
}
