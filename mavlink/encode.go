package mavlink

import (
	"encoding/binary"
	"fmt"

	"github.com/c360/mavrelay/errors"
)

// Encode builds a v2 frame for a catalogued message. payload must be the
// full-length payload for the message; trailing zero bytes are truncated on
// the wire as the protocol requires, keeping at least one byte.
func Encode(id uint32, sysID, compID, seq uint8, payload []byte) ([]byte, error) {
	def := Lookup(id)
	if def == nil {
		return nil, fmt.Errorf("message ID %d: %w", id, errors.ErrUnknownMessage)
	}
	if len(payload) != def.Length {
		return nil, fmt.Errorf("payload for %s must be %d bytes, got %d",
			def.Name, def.Length, len(payload))
	}

	trimmed := len(payload)
	for trimmed > 1 && payload[trimmed-1] == 0 {
		trimmed--
	}

	frame := make([]byte, headerLenV2+trimmed+checksumLen)
	frame[0] = MagicV2
	frame[1] = byte(trimmed)
	frame[2] = 0 // incompat_flags
	frame[3] = 0 // compat_flags
	frame[4] = seq
	frame[5] = sysID
	frame[6] = compID
	frame[7] = byte(id)
	frame[8] = byte(id >> 8)
	frame[9] = byte(id >> 16)
	copy(frame[headerLenV2:], payload[:trimmed])

	crc := crcAccumulate(def.CRCExtra, crcCalculate(frame[1:headerLenV2+trimmed]))
	binary.LittleEndian.PutUint16(frame[headerLenV2+trimmed:], crc)

	return frame, nil
}

// EncodeV1 builds a v1 frame for a catalogued message with an ID that fits
// in one byte. v1 has no payload truncation.
func EncodeV1(id uint32, sysID, compID, seq uint8, payload []byte) ([]byte, error) {
	def := Lookup(id)
	if def == nil {
		return nil, fmt.Errorf("message ID %d: %w", id, errors.ErrUnknownMessage)
	}
	if id > 0xFF {
		return nil, fmt.Errorf("message ID %d does not fit in a v1 frame", id)
	}
	if len(payload) != def.Length {
		return nil, fmt.Errorf("payload for %s must be %d bytes, got %d",
			def.Name, def.Length, len(payload))
	}

	frame := make([]byte, headerLenV1+len(payload)+checksumLen)
	frame[0] = MagicV1
	frame[1] = byte(len(payload))
	frame[2] = seq
	frame[3] = sysID
	frame[4] = compID
	frame[5] = byte(id)
	copy(frame[headerLenV1:], payload)

	crc := crcAccumulate(def.CRCExtra, crcCalculate(frame[1:headerLenV1+len(payload)]))
	binary.LittleEndian.PutUint16(frame[headerLenV1+len(payload):], crc)

	return frame, nil
}
