package mavlink

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mavrelay/pkg/timestamp"
)

func TestNewLogRecord(t *testing.T) {
	ts := timestamp.ToUnixUs(time.Date(2024, 5, 1, 10, 30, 0, 123456000, time.UTC))

	frame, err := Encode(0, 1, 1, 7, heartbeatPayload(81, 2, 3, 217, 4, 3))
	require.NoError(t, err)

	raw := RawFrame{Data: frame, Timestamp: ts, Direction: DirectionRX}
	msg, err := NewDecoder(false).Decode(frame)
	require.NoError(t, err)

	rec := NewLogRecord(raw, msg)

	assert.Equal(t, "2024-05-01T10:30:00.123456Z", rec.Timestamp)
	assert.Equal(t, uint8(1), rec.SystemID)
	assert.Equal(t, uint8(1), rec.ComponentID)
	assert.Equal(t, uint32(0), rec.MsgID)
	assert.Equal(t, "HEARTBEAT", rec.MsgName)
	assert.Equal(t, uint8(7), rec.Seq)
	assert.Equal(t, "RX", rec.Direction)
	assert.Equal(t, uint8(2), rec.Payload["type"])
}

func TestLogRecordJSONShape(t *testing.T) {
	rec := LogRecord{
		Timestamp:   "2024-05-01T10:30:00.000000Z",
		SystemID:    1,
		ComponentID: 1,
		MsgID:       0,
		MsgName:     "HEARTBEAT",
		Seq:         7,
		Direction:   "RX",
		Payload:     map[string]any{"type": 2},
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	for _, key := range []string{
		"timestamp", "system_id", "component_id", "msg_id", "msg_name", "seq", "direction", "payload",
	} {
		assert.Contains(t, decoded, key)
	}
}

func TestUnknownMessageRecordHasEmptyPayload(t *testing.T) {
	frame := buildUnknownV2(300, []byte{9, 9})
	raw := RawFrame{Data: frame, Timestamp: timestamp.Now(), Direction: DirectionRX}

	msg, err := NewDecoder(false).Decode(frame)
	require.NoError(t, err)

	rec := NewLogRecord(raw, msg)
	assert.Equal(t, "UNKNOWN_300", rec.MsgName)
	assert.NotNil(t, rec.Payload)
	assert.Empty(t, rec.Payload)

	// JSON shows an object, not null
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"payload":{}`)
}

func TestFallbackRecord(t *testing.T) {
	t.Run("v2 header", func(t *testing.T) {
		frame := buildUnknownV2(4242, []byte{1, 2, 3})
		rec := FallbackRecord(RawFrame{Data: frame, Timestamp: timestamp.Now(), Direction: DirectionRX})

		assert.Equal(t, "UNKNOWN_4242", rec.MsgName)
		assert.Equal(t, uint8(1), rec.SystemID)
		assert.Equal(t, uint8(50), rec.ComponentID)
		assert.Equal(t, uint8(9), rec.Seq)
		assert.Empty(t, rec.Payload)
	})

	t.Run("garbage", func(t *testing.T) {
		rec := FallbackRecord(RawFrame{Data: []byte{0xAA, 0xBB}, Direction: DirectionRX})

		assert.Equal(t, "UNKNOWN", rec.MsgName)
		assert.Equal(t, uint32(0), rec.MsgID)
	})
}
