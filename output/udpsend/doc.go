// Package udpsend forwards raw frames to downstream UDP endpoints, typically
// ground control stations. Frames are sent byte-for-byte as received, so a
// GCS cannot tell the relay from the vehicle itself.
//
// Sends are fire-and-forget. UDP gives no delivery guarantee anyway, so a
// dead endpoint costs one failed syscall per frame, counted but never
// blocking the other sinks.
package udpsend
