// Package timestamp provides standardized Unix timestamp handling for the relay.
//
// The canonical unit is int64 microseconds since the Unix epoch (UTC). MAVLink
// tlog records prefix each frame with a microsecond timestamp, and the JSONL
// log needs sub-millisecond resolution for ordering adjacent frames, so the
// whole pipeline carries microseconds end to end.
//
// Zero value semantics: a timestamp of 0 means "not set".
package timestamp

import (
	"fmt"
	"time"
)

// RFC3339Micro is the layout used for JSONL timestamps: RFC 3339 with a fixed
// six-digit fractional second and an explicit timezone offset.
const RFC3339Micro = "2006-01-02T15:04:05.000000Z07:00"

// Now returns the current time as Unix microseconds.
func Now() int64 {
	return time.Now().UnixMicro()
}

// ToUnixUs converts a time.Time to Unix microseconds.
func ToUnixUs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

// FromUnixUs converts Unix microseconds to time.Time.
// Returns zero time if the timestamp is 0.
func FromUnixUs(us int64) time.Time {
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(us)
}

// Format converts Unix microseconds to an RFC 3339 string with microsecond
// precision in UTC. Returns empty string if the timestamp is 0.
func Format(us int64) string {
	if us == 0 {
		return ""
	}
	return time.UnixMicro(us).UTC().Format(RFC3339Micro)
}

// Parse converts an RFC 3339 string to Unix microseconds.
// Returns 0 for empty input or parse errors.
func Parse(s string) int64 {
	if s == "" {
		return 0
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ToUnixUs(t)
	}
	return 0
}

// FileStamp formats a time for inclusion in per-run log file names,
// e.g. "20260824_153012".
func FileStamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// Since returns the duration since the given timestamp.
// Returns 0 if the timestamp is zero.
func Since(us int64) time.Duration {
	if us == 0 {
		return 0
	}
	return time.Since(time.UnixMicro(us))
}

// Between returns the duration between two timestamps.
// Returns 0 if either timestamp is zero.
func Between(start, end int64) time.Duration {
	if start == 0 || end == 0 {
		return 0
	}
	return time.UnixMicro(end).Sub(time.UnixMicro(start))
}

// IsZero checks if a timestamp is unset.
func IsZero(us int64) bool {
	return us == 0
}

// Validate checks that a timestamp is non-negative and not absurdly far in the
// future (year 3000).
func Validate(us int64) error {
	if us < 0 {
		return fmt.Errorf("timestamp cannot be negative: %d", us)
	}
	if us > 32503680000000000 {
		return fmt.Errorf("timestamp too far in future: %d", us)
	}
	return nil
}
