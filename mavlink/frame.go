package mavlink

// Wire constants for MAVLink framing.
const (
	MagicV1 = 0xFE
	MagicV2 = 0xFD

	headerLenV1  = 6
	headerLenV2  = 10
	checksumLen  = 2
	signatureLen = 13

	// IncompatFlagSigned marks a v2 frame carrying a 13-byte signature.
	IncompatFlagSigned = 0x01

	// MaxPayloadLen is the largest MAVLink payload.
	MaxPayloadLen = 255

	// MaxFrameLen is the largest possible v2 frame including signature.
	MaxFrameLen = headerLenV2 + MaxPayloadLen + checksumLen + signatureLen
)

// Direction records which way a frame travelled through the relay.
type Direction string

// Frame directions.
const (
	DirectionRX Direction = "RX" // received from the upstream autopilot
	DirectionTX Direction = "TX" // sent toward the autopilot
)

// RawFrame is a single MAVLink frame as captured off the wire, before any
// decoding. Data holds the complete frame bytes including magic and checksum.
// Timestamp is Unix microseconds at receive time.
type RawFrame struct {
	Data      []byte
	Timestamp int64
	Direction Direction
}

// Clone returns a copy with its own backing array. Sinks that hold frames
// past the dispatch call must clone so the receive buffer can be reused.
func (f RawFrame) Clone() RawFrame {
	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	return RawFrame{
		Data:      data,
		Timestamp: f.Timestamp,
		Direction: f.Direction,
	}
}

// Len returns the frame length in bytes.
func (f RawFrame) Len() int {
	return len(f.Data)
}
