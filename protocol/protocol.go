// Package protocol frames telemetry sent by the camera on its debug UART.
//
// A frame is [len][0x10|seq][msgid payload...][crc16 hi][crc16 lo][0x7E].
// Integers in the payload are VLQ encoded, strings are length prefixed.
package protocol

// Frame layout
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10
	MessageSeqMask     = 0x0F

	// MessageMax bounds one encoded frame in the scratch buffer
	MessageMax = 128
)

// Telemetry message IDs
const (
	MsgFocusStatus = 1
	MsgFrameStats  = 2
	MsgLog         = 3
)

// Message is one decoded frame
type Message struct {
	Sequence uint8
	ID       uint32
	Payload  []byte // fields after the message ID
}
