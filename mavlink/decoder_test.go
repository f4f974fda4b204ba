package mavlink

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mavrelay/errors"
)

func heartbeatPayload(customMode uint32, mavType, autopilot, baseMode, systemStatus, version uint8) []byte {
	p := make([]byte, 9)
	binary.LittleEndian.PutUint32(p, customMode)
	p[4] = mavType
	p[5] = autopilot
	p[6] = baseMode
	p[7] = systemStatus
	p[8] = version
	return p
}

func attitudePayload(bootMs uint32, roll, pitch, yaw, rollspeed, pitchspeed, yawspeed float32) []byte {
	p := make([]byte, 28)
	binary.LittleEndian.PutUint32(p, bootMs)
	for i, f := range []float32{roll, pitch, yaw, rollspeed, pitchspeed, yawspeed} {
		binary.LittleEndian.PutUint32(p[4+i*4:], math.Float32bits(f))
	}
	return p
}

func TestDecodeHeartbeatV2(t *testing.T) {
	payload := heartbeatPayload(81, 2, 3, 217, 4, 3)

	frame, err := Encode(0, 1, 1, 7, payload)
	require.NoError(t, err)
	assert.Equal(t, byte(MagicV2), frame[0])

	msg, err := NewDecoder(false).Decode(frame)
	require.NoError(t, err)

	assert.Equal(t, 2, msg.Version)
	assert.Equal(t, uint32(0), msg.ID)
	assert.Equal(t, "HEARTBEAT", msg.Name)
	assert.Equal(t, uint8(1), msg.SysID)
	assert.Equal(t, uint8(1), msg.CompID)
	assert.Equal(t, uint8(7), msg.Seq)
	assert.True(t, msg.Known)

	assert.Equal(t, uint32(81), msg.Fields["custom_mode"])
	assert.Equal(t, uint8(2), msg.Fields["type"])
	assert.Equal(t, uint8(3), msg.Fields["autopilot"])
	assert.Equal(t, uint8(217), msg.Fields["base_mode"])
	assert.Equal(t, uint8(4), msg.Fields["system_status"])
	assert.Equal(t, uint8(3), msg.Fields["mavlink_version"])
}

func TestDecodeHeartbeatV1(t *testing.T) {
	payload := heartbeatPayload(0, 1, 3, 81, 4, 3)

	frame, err := EncodeV1(0, 42, 200, 11, payload)
	require.NoError(t, err)
	assert.Equal(t, byte(MagicV1), frame[0])
	assert.Len(t, frame, headerLenV1+9+checksumLen)

	msg, err := NewDecoder(false).Decode(frame)
	require.NoError(t, err)

	assert.Equal(t, 1, msg.Version)
	assert.Equal(t, "HEARTBEAT", msg.Name)
	assert.Equal(t, uint8(42), msg.SysID)
	assert.Equal(t, uint8(200), msg.CompID)
	assert.Equal(t, uint8(11), msg.Seq)
}

func TestDecodeV2TruncatedZeros(t *testing.T) {
	// Zero yaw and rates leave trailing zeros that v2 strips from the wire
	payload := attitudePayload(5000, 0.1, -0.2, 0, 0, 0, 0)

	frame, err := Encode(30, 1, 1, 0, payload)
	require.NoError(t, err)
	assert.Less(t, len(frame), headerLenV2+28+checksumLen)

	msg, err := NewDecoder(false).Decode(frame)
	require.NoError(t, err)

	assert.Equal(t, "ATTITUDE", msg.Name)
	assert.Equal(t, uint32(5000), msg.Fields["time_boot_ms"])
	assert.InDelta(t, 0.1, float64(msg.Fields["roll"].(float32)), 1e-6)
	assert.InDelta(t, -0.2, float64(msg.Fields["pitch"].(float32)), 1e-6)
	assert.Equal(t, float32(0), msg.Fields["yaw"])
	assert.Equal(t, float32(0), msg.Fields["yawspeed"])
}

func TestDecodeAllCataloguedMessages(t *testing.T) {
	dec := NewDecoder(false)

	for _, id := range KnownMessages() {
		def := Lookup(id)
		require.NotNil(t, def)

		// Non-zero bytes so truncation does not kick in
		payload := make([]byte, def.Length)
		for i := range payload {
			payload[i] = byte(i + 1)
		}

		frame, err := Encode(id, 1, 1, 0, payload)
		require.NoError(t, err, def.Name)

		msg, err := dec.Decode(frame)
		require.NoError(t, err, def.Name)
		assert.Equal(t, def.Name, msg.Name)
		assert.Len(t, msg.Fields, len(def.Fields), def.Name)
	}
}

func TestDecodeStatusText(t *testing.T) {
	payload := make([]byte, 51)
	payload[0] = 6 // severity
	copy(payload[1:], "Arming motors")

	frame, err := Encode(253, 1, 1, 3, payload)
	require.NoError(t, err)

	msg, err := NewDecoder(false).Decode(frame)
	require.NoError(t, err)

	assert.Equal(t, "STATUSTEXT", msg.Name)
	assert.Equal(t, uint8(6), msg.Fields["severity"])
	assert.Equal(t, "Arming motors", msg.Fields["text"])
}

func TestDecodeChecksumFailure(t *testing.T) {
	frame, err := Encode(0, 1, 1, 0, heartbeatPayload(1, 2, 3, 4, 5, 3))
	require.NoError(t, err)

	frame[headerLenV2] ^= 0xFF // corrupt first payload byte

	_, err = NewDecoder(false).Decode(frame)
	assert.ErrorIs(t, err, errors.ErrChecksumFailed)
}

func TestDecodeBadMagic(t *testing.T) {
	_, err := NewDecoder(false).Decode([]byte{0xAA, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00})
	assert.ErrorIs(t, err, errors.ErrBadMagic)
}

func TestDecodeTruncatedFrame(t *testing.T) {
	frame, err := Encode(0, 1, 1, 0, heartbeatPayload(1, 2, 3, 4, 5, 3))
	require.NoError(t, err)

	_, err = NewDecoder(false).Decode(frame[:len(frame)-3])
	assert.ErrorIs(t, err, errors.ErrTruncatedFrame)

	_, err = NewDecoder(false).Decode(frame[:2])
	assert.ErrorIs(t, err, errors.ErrTruncatedFrame)
}

// buildUnknownV2 builds a syntactically valid v2 frame with an uncatalogued
// message ID. The checksum bytes are arbitrary since lenient decode cannot
// verify them without a CRC_EXTRA.
func buildUnknownV2(id uint32, payload []byte) []byte {
	frame := make([]byte, headerLenV2+len(payload)+checksumLen)
	frame[0] = MagicV2
	frame[1] = byte(len(payload))
	frame[4] = 9  // seq
	frame[5] = 1  // sysid
	frame[6] = 50 // compid
	frame[7] = byte(id)
	frame[8] = byte(id >> 8)
	frame[9] = byte(id >> 16)
	copy(frame[headerLenV2:], payload)
	return frame
}

func TestDecodeUnknownLenient(t *testing.T) {
	frame := buildUnknownV2(4242, []byte{1, 2, 3})

	msg, err := NewDecoder(false).Decode(frame)
	require.NoError(t, err)

	assert.Equal(t, uint32(4242), msg.ID)
	assert.Equal(t, "UNKNOWN_4242", msg.Name)
	assert.False(t, msg.Known)
	assert.Nil(t, msg.Fields)
	assert.Equal(t, []byte{1, 2, 3}, msg.Payload)
}

func TestDecodeUnknownStrict(t *testing.T) {
	frame := buildUnknownV2(4242, []byte{1, 2, 3})

	_, err := NewDecoder(true).Decode(frame)
	assert.ErrorIs(t, err, errors.ErrUnknownMessage)
}

func TestFrameLength(t *testing.T) {
	n, err := FrameLength([]byte{MagicV1, 9, 0})
	require.NoError(t, err)
	assert.Equal(t, headerLenV1+9+checksumLen, n)

	n, err = FrameLength([]byte{MagicV2, 9, 0})
	require.NoError(t, err)
	assert.Equal(t, headerLenV2+9+checksumLen, n)

	n, err = FrameLength([]byte{MagicV2, 9, IncompatFlagSigned})
	require.NoError(t, err)
	assert.Equal(t, headerLenV2+9+checksumLen+signatureLen, n)

	_, err = FrameLength([]byte{0x00, 9, 0})
	assert.ErrorIs(t, err, errors.ErrBadMagic)

	_, err = FrameLength([]byte{MagicV2})
	assert.ErrorIs(t, err, errors.ErrTruncatedFrame)
}

func TestEncodeRejects(t *testing.T) {
	_, err := Encode(4242, 1, 1, 0, []byte{1})
	assert.ErrorIs(t, err, errors.ErrUnknownMessage)

	_, err = Encode(0, 1, 1, 0, []byte{1, 2}) // wrong length
	assert.Error(t, err)

	_, err = EncodeV1(4242, 1, 1, 0, []byte{1})
	assert.ErrorIs(t, err, errors.ErrUnknownMessage)
}

func TestDecodeIdempotent(t *testing.T) {
	frame, err := Encode(0, 1, 1, 7, heartbeatPayload(81, 2, 3, 217, 4, 3))
	require.NoError(t, err)

	dec := NewDecoder(false)
	first, err := dec.Decode(frame)
	require.NoError(t, err)

	second, err := dec.Decode(frame)
	require.NoError(t, err)

	assert.Equal(t, first.Fields, second.Fields)
	assert.Equal(t, first.Name, second.Name)
}

func TestRawFrameClone(t *testing.T) {
	orig := RawFrame{Data: []byte{1, 2, 3}, Timestamp: 99, Direction: DirectionRX}
	clone := orig.Clone()

	clone.Data[0] = 42
	assert.Equal(t, byte(1), orig.Data[0])
	assert.Equal(t, orig.Timestamp, clone.Timestamp)
	assert.Equal(t, 3, clone.Len())
}
