package mavlink

import (
	"encoding/binary"
	"fmt"

	"github.com/c360/mavrelay/errors"
)

// Message is a decoded MAVLink frame. Payload holds the payload bytes as
// received (still truncated for v2 frames); Fields holds the named values
// for catalogued messages and is nil for unknown ones.
type Message struct {
	Version int // 1 or 2
	ID      uint32
	Name    string
	SysID   uint8
	CompID  uint8
	Seq     uint8
	Payload []byte
	Fields  map[string]any
	Known   bool
}

// Decoder parses raw MAVLink frames.
//
// In the default lenient mode a frame with an unknown message ID still
// decodes: it gets the name UNKNOWN_<id>, no fields, and its checksum is not
// verified since the CRC_EXTRA seed is unknown without the message
// definition. Strict mode rejects such frames instead.
type Decoder struct {
	strict bool
}

// NewDecoder creates a decoder. strict controls unknown-message handling.
func NewDecoder(strict bool) *Decoder {
	return &Decoder{strict: strict}
}

// Strict reports whether unknown message IDs are rejected.
func (d *Decoder) Strict() bool {
	return d.strict
}

// FrameLength returns the total on-wire length of the frame starting at
// data[0], without validating its checksum. It needs at most the first three
// bytes. Used to split datagrams that carry several frames back to back.
func FrameLength(data []byte) (int, error) {
	if len(data) < 3 {
		return 0, fmt.Errorf("need 3 bytes to size a frame, have %d: %w", len(data), errors.ErrTruncatedFrame)
	}

	payloadLen := int(data[1])
	switch data[0] {
	case MagicV1:
		return headerLenV1 + payloadLen + checksumLen, nil
	case MagicV2:
		total := headerLenV2 + payloadLen + checksumLen
		if data[2]&IncompatFlagSigned != 0 {
			total += signatureLen
		}
		return total, nil
	default:
		return 0, fmt.Errorf("bad magic byte 0x%02X: %w", data[0], errors.ErrBadMagic)
	}
}

// Decode parses one complete frame from data. data must contain exactly the
// frame returned by FrameLength; trailing bytes are rejected as truncation
// bugs upstream.
func (d *Decoder) Decode(data []byte) (*Message, error) {
	total, err := FrameLength(data)
	if err != nil {
		return nil, err
	}
	if len(data) < total {
		return nil, fmt.Errorf("frame is %d bytes, header promises %d: %w",
			len(data), total, errors.ErrTruncatedFrame)
	}

	switch data[0] {
	case MagicV1:
		return d.decodeV1(data[:total])
	default:
		return d.decodeV2(data[:total])
	}
}

func (d *Decoder) decodeV1(data []byte) (*Message, error) {
	payloadLen := int(data[1])
	msg := &Message{
		Version: 1,
		Seq:     data[2],
		SysID:   data[3],
		CompID:  data[4],
		ID:      uint32(data[5]),
		Payload: data[headerLenV1 : headerLenV1+payloadLen],
	}

	return d.finish(msg, data, headerLenV1+payloadLen)
}

func (d *Decoder) decodeV2(data []byte) (*Message, error) {
	payloadLen := int(data[1])
	msg := &Message{
		Version: 2,
		Seq:     data[4],
		SysID:   data[5],
		CompID:  data[6],
		ID:      uint32(data[7]) | uint32(data[8])<<8 | uint32(data[9])<<16,
		Payload: data[headerLenV2 : headerLenV2+payloadLen],
	}

	return d.finish(msg, data, headerLenV2+payloadLen)
}

// finish resolves the message definition, verifies the checksum, and
// extracts fields. crcEnd is the offset just past the payload; the checksum
// covers data[1:crcEnd] plus the definition's CRC_EXTRA byte.
func (d *Decoder) finish(msg *Message, data []byte, crcEnd int) (*Message, error) {
	def := Lookup(msg.ID)
	if def == nil {
		if d.strict {
			return nil, fmt.Errorf("message ID %d: %w", msg.ID, errors.ErrUnknownMessage)
		}
		msg.Name = UnknownName(msg.ID)
		msg.Known = false
		return msg, nil
	}

	want := binary.LittleEndian.Uint16(data[crcEnd:])
	got := crcAccumulate(def.CRCExtra, crcCalculate(data[1:crcEnd]))
	if got != want {
		return nil, fmt.Errorf("%s checksum 0x%04X, computed 0x%04X: %w",
			def.Name, want, got, errors.ErrChecksumFailed)
	}

	payload := msg.Payload
	if len(payload) < def.Length {
		// v2 senders strip trailing zeros; restore them before decoding
		full := make([]byte, def.Length)
		copy(full, payload)
		payload = full
	}

	fields, err := def.decodeFields(payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s fields: %w", def.Name, err)
	}

	msg.Name = def.Name
	msg.Known = true
	msg.Fields = fields
	return msg, nil
}
