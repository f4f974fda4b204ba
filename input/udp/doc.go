// Package udp implements the upstream ingress listener. It binds the UDP
// socket the autopilot sends telemetry to, splits each datagram into MAVLink
// frames, and hands every frame to the dispatcher.
//
// The listener never parses past frame boundaries; payload decoding belongs
// to the sinks that need it. Datagram bytes that do not start with a MAVLink
// magic are skipped until the next magic byte so one corrupt prefix cannot
// poison the frames behind it.
package udp
