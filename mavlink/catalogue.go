package mavlink

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// FieldType identifies the wire type of a payload field.
type FieldType int

// Payload field types. MAVLink payloads are little-endian with fields
// ordered largest first by the generator, so definitions below list fields
// in wire order, not XML order.
const (
	TypeUint8 FieldType = iota
	TypeInt8
	TypeUint16
	TypeInt16
	TypeUint32
	TypeInt32
	TypeUint64
	TypeFloat
	TypeChar
)

// size returns the wire size of one element in bytes.
func (ft FieldType) size() int {
	switch ft {
	case TypeUint8, TypeInt8, TypeChar:
		return 1
	case TypeUint16, TypeInt16:
		return 2
	case TypeUint32, TypeInt32, TypeFloat:
		return 4
	case TypeUint64:
		return 8
	default:
		return 0
	}
}

// FieldDef describes one payload field.
type FieldDef struct {
	Name     string
	Type     FieldType
	ArrayLen int // 0 for scalar fields
}

func (f FieldDef) size() int {
	n := f.ArrayLen
	if n == 0 {
		n = 1
	}
	return f.Type.size() * n
}

// MessageDef describes a message the relay can fully decode.
type MessageDef struct {
	ID       uint32
	Name     string
	Length   int  // full payload length before v2 truncation
	CRCExtra byte // seed byte appended to the checksum input
	Fields   []FieldDef
}

// catalogue holds the common telemetry messages. IDs and CRC_EXTRA values
// come from the MAVLink common dialect.
var catalogue = map[uint32]*MessageDef{
	0: {
		ID: 0, Name: "HEARTBEAT", Length: 9, CRCExtra: 50,
		Fields: []FieldDef{
			{Name: "custom_mode", Type: TypeUint32},
			{Name: "type", Type: TypeUint8},
			{Name: "autopilot", Type: TypeUint8},
			{Name: "base_mode", Type: TypeUint8},
			{Name: "system_status", Type: TypeUint8},
			{Name: "mavlink_version", Type: TypeUint8},
		},
	},
	1: {
		ID: 1, Name: "SYS_STATUS", Length: 31, CRCExtra: 124,
		Fields: []FieldDef{
			{Name: "onboard_control_sensors_present", Type: TypeUint32},
			{Name: "onboard_control_sensors_enabled", Type: TypeUint32},
			{Name: "onboard_control_sensors_health", Type: TypeUint32},
			{Name: "load", Type: TypeUint16},
			{Name: "voltage_battery", Type: TypeUint16},
			{Name: "current_battery", Type: TypeInt16},
			{Name: "drop_rate_comm", Type: TypeUint16},
			{Name: "errors_comm", Type: TypeUint16},
			{Name: "errors_count1", Type: TypeUint16},
			{Name: "errors_count2", Type: TypeUint16},
			{Name: "errors_count3", Type: TypeUint16},
			{Name: "errors_count4", Type: TypeUint16},
			{Name: "battery_remaining", Type: TypeInt8},
		},
	},
	2: {
		ID: 2, Name: "SYSTEM_TIME", Length: 12, CRCExtra: 137,
		Fields: []FieldDef{
			{Name: "time_unix_usec", Type: TypeUint64},
			{Name: "time_boot_ms", Type: TypeUint32},
		},
	},
	4: {
		ID: 4, Name: "PING", Length: 14, CRCExtra: 237,
		Fields: []FieldDef{
			{Name: "time_usec", Type: TypeUint64},
			{Name: "seq", Type: TypeUint32},
			{Name: "target_system", Type: TypeUint8},
			{Name: "target_component", Type: TypeUint8},
		},
	},
	24: {
		ID: 24, Name: "GPS_RAW_INT", Length: 30, CRCExtra: 24,
		Fields: []FieldDef{
			{Name: "time_usec", Type: TypeUint64},
			{Name: "lat", Type: TypeInt32},
			{Name: "lon", Type: TypeInt32},
			{Name: "alt", Type: TypeInt32},
			{Name: "eph", Type: TypeUint16},
			{Name: "epv", Type: TypeUint16},
			{Name: "vel", Type: TypeUint16},
			{Name: "cog", Type: TypeUint16},
			{Name: "fix_type", Type: TypeUint8},
			{Name: "satellites_visible", Type: TypeUint8},
		},
	},
	30: {
		ID: 30, Name: "ATTITUDE", Length: 28, CRCExtra: 39,
		Fields: []FieldDef{
			{Name: "time_boot_ms", Type: TypeUint32},
			{Name: "roll", Type: TypeFloat},
			{Name: "pitch", Type: TypeFloat},
			{Name: "yaw", Type: TypeFloat},
			{Name: "rollspeed", Type: TypeFloat},
			{Name: "pitchspeed", Type: TypeFloat},
			{Name: "yawspeed", Type: TypeFloat},
		},
	},
	33: {
		ID: 33, Name: "GLOBAL_POSITION_INT", Length: 28, CRCExtra: 104,
		Fields: []FieldDef{
			{Name: "time_boot_ms", Type: TypeUint32},
			{Name: "lat", Type: TypeInt32},
			{Name: "lon", Type: TypeInt32},
			{Name: "alt", Type: TypeInt32},
			{Name: "relative_alt", Type: TypeInt32},
			{Name: "vx", Type: TypeInt16},
			{Name: "vy", Type: TypeInt16},
			{Name: "vz", Type: TypeInt16},
			{Name: "hdg", Type: TypeUint16},
		},
	},
	74: {
		ID: 74, Name: "VFR_HUD", Length: 20, CRCExtra: 20,
		Fields: []FieldDef{
			{Name: "airspeed", Type: TypeFloat},
			{Name: "groundspeed", Type: TypeFloat},
			{Name: "alt", Type: TypeFloat},
			{Name: "climb", Type: TypeFloat},
			{Name: "heading", Type: TypeInt16},
			{Name: "throttle", Type: TypeUint16},
		},
	},
	77: {
		ID: 77, Name: "COMMAND_ACK", Length: 3, CRCExtra: 143,
		Fields: []FieldDef{
			{Name: "command", Type: TypeUint16},
			{Name: "result", Type: TypeUint8},
		},
	},
	253: {
		ID: 253, Name: "STATUSTEXT", Length: 51, CRCExtra: 83,
		Fields: []FieldDef{
			{Name: "severity", Type: TypeUint8},
			{Name: "text", Type: TypeChar, ArrayLen: 50},
		},
	},
}

// Lookup returns the definition for a message ID, or nil if the relay does
// not know it.
func Lookup(id uint32) *MessageDef {
	return catalogue[id]
}

// KnownMessages returns the IDs the relay can fully decode.
func KnownMessages() []uint32 {
	ids := make([]uint32, 0, len(catalogue))
	for id := range catalogue {
		ids = append(ids, id)
	}
	return ids
}

// UnknownName builds the placeholder name for messages outside the catalogue.
func UnknownName(id uint32) string {
	return fmt.Sprintf("UNKNOWN_%d", id)
}

// decodeFields extracts named fields from a full-length payload.
// The payload must already be zero-extended to def.Length.
func (def *MessageDef) decodeFields(payload []byte) (map[string]any, error) {
	if len(payload) < def.Length {
		return nil, fmt.Errorf("payload for %s is %d bytes, need %d", def.Name, len(payload), def.Length)
	}

	fields := make(map[string]any, len(def.Fields))
	off := 0
	for _, f := range def.Fields {
		if f.Type == TypeChar && f.ArrayLen > 0 {
			fields[f.Name] = decodeString(payload[off : off+f.ArrayLen])
			off += f.size()
			continue
		}

		switch f.Type {
		case TypeUint8:
			fields[f.Name] = payload[off]
		case TypeInt8:
			fields[f.Name] = int8(payload[off])
		case TypeUint16:
			fields[f.Name] = binary.LittleEndian.Uint16(payload[off:])
		case TypeInt16:
			fields[f.Name] = int16(binary.LittleEndian.Uint16(payload[off:]))
		case TypeUint32:
			fields[f.Name] = binary.LittleEndian.Uint32(payload[off:])
		case TypeInt32:
			fields[f.Name] = int32(binary.LittleEndian.Uint32(payload[off:]))
		case TypeUint64:
			fields[f.Name] = binary.LittleEndian.Uint64(payload[off:])
		case TypeFloat:
			fields[f.Name] = math.Float32frombits(binary.LittleEndian.Uint32(payload[off:]))
		default:
			return nil, fmt.Errorf("unhandled field type %d in %s.%s", f.Type, def.Name, f.Name)
		}
		off += f.size()
	}

	return fields, nil
}

// decodeString converts a fixed-size char array to a Go string, stopping at
// the first NUL.
func decodeString(raw []byte) string {
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		return string(raw[:i])
	}
	return string(raw)
}
