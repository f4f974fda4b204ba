// Package jsonlog writes a structured JSON Lines view of the telemetry
// stream, one record per frame, for consumers that want fields instead of
// raw MAVLink.
//
// Records carry the receive timestamp, addressing (system, component,
// sequence), the message name, and the decoded payload fields. Frames that
// fail to decode still produce a record with an UNKNOWN name and an empty
// payload object, unless strict decoding is enabled, in which case they are
// counted and skipped.
//
// Like the tlog archive, this sink is fail-stop on write errors.
package jsonlog
