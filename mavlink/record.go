package mavlink

import (
	"github.com/c360/mavrelay/pkg/timestamp"
)

// LogRecord is the JSON Lines projection of one frame. Field names match
// the archive consumers' existing tooling.
type LogRecord struct {
	Timestamp   string         `json:"timestamp"`
	SystemID    uint8          `json:"system_id"`
	ComponentID uint8          `json:"component_id"`
	MsgID       uint32         `json:"msg_id"`
	MsgName     string         `json:"msg_name"`
	Seq         uint8          `json:"seq"`
	Direction   string         `json:"direction"`
	Payload     map[string]any `json:"payload"`
}

// NewLogRecord builds a record from a decoded message. Unknown messages get
// an empty payload object rather than null so consumers can index into it
// unconditionally.
func NewLogRecord(frame RawFrame, msg *Message) LogRecord {
	payload := msg.Fields
	if payload == nil {
		payload = map[string]any{}
	}

	return LogRecord{
		Timestamp:   timestamp.Format(frame.Timestamp),
		SystemID:    msg.SysID,
		ComponentID: msg.CompID,
		MsgID:       msg.ID,
		MsgName:     msg.Name,
		Seq:         msg.Seq,
		Direction:   string(frame.Direction),
		Payload:     payload,
	}
}

// FallbackRecord builds a record for a frame that failed to decode. Header
// fields are extracted best-effort without checksum validation so the log
// still shows that traffic arrived.
func FallbackRecord(frame RawFrame) LogRecord {
	rec := LogRecord{
		Timestamp: timestamp.Format(frame.Timestamp),
		MsgName:   "UNKNOWN",
		Direction: string(frame.Direction),
		Payload:   map[string]any{},
	}

	data := frame.Data
	switch {
	case len(data) >= headerLenV2 && data[0] == MagicV2:
		rec.Seq = data[4]
		rec.SystemID = data[5]
		rec.ComponentID = data[6]
		rec.MsgID = uint32(data[7]) | uint32(data[8])<<8 | uint32(data[9])<<16
		rec.MsgName = UnknownName(rec.MsgID)
	case len(data) >= headerLenV1 && data[0] == MagicV1:
		rec.Seq = data[2]
		rec.SystemID = data[3]
		rec.ComponentID = data[4]
		rec.MsgID = uint32(data[5])
		rec.MsgName = UnknownName(rec.MsgID)
	}

	return rec
}
