// Package archive writes every relayed frame to a binary tlog file.
//
// The tlog format is the QGroundControl convention: each record is an
// 8-byte big-endian Unix-microsecond timestamp followed by the raw frame
// bytes. Files are named <prefix>_<YYYYmmdd_HHMMSS>.tlog, one per relay run.
//
// The sink is fail-stop: the first write error closes the file, logs the
// failure once, and every later frame is rejected. A half-written archive
// that looks healthy is worse than an obviously dead one.
package archive
