package protocol

import "errors"

var (
	ErrMessageTooLong = errors.New("protocol: message exceeds frame size")
	ErrWrongMessage   = errors.New("protocol: unexpected message id")
)

// Decoder splits a telemetry byte stream into messages. On a bad length,
// header, sync byte or CRC it drops bytes until the next sync byte.
type Decoder struct {
	input          *RxBuffer
	isSynchronized bool
	nextSeq        uint8
	haveSeq        bool

	// Resyncs counts framing errors, SeqGaps counts lost frames
	Resyncs uint32
	SeqGaps uint32
}

// NewDecoder creates a decoder in the synchronized state
func NewDecoder() *Decoder {
	return &Decoder{
		input:          NewRxBuffer(512),
		isSynchronized: true,
	}
}

// Feed adds received bytes and returns every complete message
func (d *Decoder) Feed(data []byte) []Message {
	var msgs []Message
	for len(data) > 0 {
		n := d.input.Write(data)
		data = data[n:]
		msgs = append(msgs, d.parse(d.input)...)
		if n == 0 && d.input.Free() == 0 {
			// Buffer full of garbage
			d.input.Reset()
			d.isSynchronized = false
		}
	}
	return msgs
}

func (d *Decoder) parse(input InputBuffer) []Message {
	var msgs []Message
	data := input.Data()

	for len(data) > 0 {
		if !d.isSynchronized {
			syncPos := -1
			for i, b := range data {
				if b == MessageValueSync {
					syncPos = i
					break
				}
			}
			if syncPos < 0 {
				data = nil
				break
			}
			data = data[syncPos+1:]
			d.isSynchronized = true
			continue
		}

		// Skip leading sync bytes
		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		if len(data) < MessageLengthMin {
			break
		}

		msgLen := int(data[MessagePositionLen])
		if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
			d.desync()
			continue
		}

		seq := data[MessagePositionSeq]
		if seq&^MessageSeqMask != MessageDest {
			d.desync()
			continue
		}

		// Wait for full message
		if len(data) < msgLen {
			break
		}

		if data[msgLen-MessageTrailerSync] != MessageValueSync {
			d.desync()
			continue
		}

		frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 |
			uint16(data[msgLen-MessageTrailerCRC+1])
		if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
			d.desync()
			continue
		}

		frame := data[MessageHeaderSize : msgLen-MessageTrailerSize]
		data = data[msgLen:]

		seq &= MessageSeqMask
		if d.haveSeq && seq != d.nextSeq {
			d.SeqGaps++
		}
		d.nextSeq = (seq + 1) & MessageSeqMask
		d.haveSeq = true

		id, err := DecodeVLQUint(&frame)
		if err != nil {
			d.Resyncs++
			continue
		}
		payload := make([]byte, len(frame))
		copy(payload, frame)
		msgs = append(msgs, Message{Sequence: seq, ID: id, Payload: payload})
	}

	consumed := input.Available() - len(data)
	if consumed > 0 {
		input.Pop(consumed)
	}
	return msgs
}

func (d *Decoder) desync() {
	d.isSynchronized = false
	d.Resyncs++
}

// FocusStatus decodes a MsgFocusStatus payload
func (m Message) FocusStatus() (FocusStatus, error) {
	var s FocusStatus
	if m.ID != MsgFocusStatus {
		return s, ErrWrongMessage
	}
	data := m.Payload
	var v [9]int32
	for i := range v {
		x, err := DecodeVLQInt(&data)
		if err != nil {
			return s, err
		}
		v[i] = x
	}
	s.State = uint8(v[0])
	s.Home = uint8(v[1])
	s.Current = v[2]
	s.Required = v[3]
	s.Energized = v[4] != 0
	s.Contrast = uint32(v[5])
	s.Best = uint32(v[6])
	s.BestPos = v[7]
	s.Frames = uint32(v[8])
	return s, nil
}

// FrameStats decodes a MsgFrameStats payload
func (m Message) FrameStats() (FrameStats, error) {
	var s FrameStats
	if m.ID != MsgFrameStats {
		return s, ErrWrongMessage
	}
	data := m.Payload
	fields := []*uint32{&s.Frames, &s.Buffers, &s.CommitFailures, &s.Discarded,
		&s.WatchdogResets, &s.WindowGaps, &s.Starts}
	for _, f := range fields {
		x, err := DecodeVLQUint(&data)
		if err != nil {
			return s, err
		}
		*f = x
	}
	return s, nil
}

// Log decodes a MsgLog payload
func (m Message) Log() (string, error) {
	if m.ID != MsgLog {
		return "", ErrWrongMessage
	}
	data := m.Payload
	return DecodeVLQString(&data)
}
