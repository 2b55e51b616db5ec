package uvc

import "errors"

// Payload header layout: length, bit field, PTS[4], SCR[6]
const (
	HeaderLength = 12

	HeaderFrameID    = 1 << 0
	HeaderEndOfFrame = 1 << 1
	HeaderStill      = 1 << 5
	HeaderEndOfHdr   = 1 << 7
)

var errShortHeader = errors.New("uvc: payload header too short")

// Header is the running payload header template. The frame ID bit in the
// template flips after every end-of-frame payload.
type Header struct {
	template [HeaderLength]byte
}

// NewHeader returns the template for the first frame: EOH, SCR and PTS
// flags set, frame ID 0
func NewHeader() Header {
	return Header{template: [HeaderLength]byte{0x0C, 0x8C}}
}

// Stamp writes the header into dst, with EOF set for the last payload of
// a frame. The template is not changed.
func (h *Header) Stamp(dst []byte, last bool) {
	copy(dst[:HeaderLength], h.template[:])
	if last {
		dst[1] |= HeaderEndOfFrame
	}
}

// NextFrame toggles the frame ID once the EOF payload has been committed
func (h *Header) NextFrame() {
	h.template[1] ^= HeaderFrameID
}

// FrameID returns the frame ID bit the next payload will carry
func (h *Header) FrameID() uint8 {
	return h.template[1] & HeaderFrameID
}

// SetStill marks following payloads as part of a still image
func (h *Header) SetStill(on bool) {
	if on {
		h.template[1] |= HeaderStill
	} else {
		h.template[1] &^= HeaderStill
	}
}

// PayloadHeader is a decoded payload header
type PayloadHeader struct {
	Length     uint8
	FrameID    uint8
	EndOfFrame bool
	Still      bool
}

// ParseHeader decodes the bit field of a payload header
func ParseHeader(b []byte) (PayloadHeader, error) {
	if len(b) < 2 || int(b[0]) > len(b) || b[0] < 2 {
		return PayloadHeader{}, errShortHeader
	}
	return PayloadHeader{
		Length:     b[0],
		FrameID:    b[1] & HeaderFrameID,
		EndOfFrame: b[1]&HeaderEndOfFrame != 0,
		Still:      b[1]&HeaderStill != 0,
	}, nil
}
