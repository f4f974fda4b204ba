// Package mavlink implements the subset of the MAVLink wire protocol the
// relay needs: framing for protocol versions 1 and 2, X.25 checksum
// verification, and payload decoding for the common telemetry messages.
//
// The relay never interprets vehicle state, so decoding stops at named
// fields. Unknown message IDs are passed through by default with the name
// UNKNOWN_<id> and no fields; strict mode rejects them instead.
//
// Version 2 senders truncate trailing zero bytes from payloads. The decoder
// restores the full payload length before field extraction so field offsets
// stay valid.
package mavlink
