// Package buffer provides generic, thread-safe bounded buffers with
// configurable overflow policies.
//
// The relay's fan-out queues are circular buffers with the DropOldest policy:
// when a path stalls, the oldest pending frame is evicted to admit the newest,
// keeping current telemetry live at the cost of backlog completeness. Every
// buffer collects statistics; Prometheus metrics are optional via WithMetrics().
package buffer

// Buffer represents a generic bounded buffer parameterized by item type T.
type Buffer[T any] interface {
	// Write adds an item to the buffer. It never blocks; behavior when the
	// buffer is full depends on the overflow policy.
	Write(item T) error

	// Read retrieves and removes one item from the buffer.
	// Returns the item and true if successful, zero value and false if empty.
	Read() (T, bool)

	// ReadBatch retrieves and removes up to max items from the buffer.
	// Returns a slice containing the retrieved items (may be shorter than max).
	ReadBatch(max int) []T

	// Peek retrieves one item without removing it from the buffer.
	Peek() (T, bool)

	// Size returns the current number of items in the buffer.
	Size() int

	// Capacity returns the maximum number of items the buffer can hold.
	Capacity() int

	// IsFull returns true if the buffer is at maximum capacity.
	IsFull() bool

	// IsEmpty returns true if the buffer contains no items.
	IsEmpty() bool

	// Clear removes all items from the buffer.
	Clear()

	// Stats returns buffer statistics (always available for observability).
	Stats() *Statistics

	// Close shuts down the buffer. Subsequent writes fail.
	Close() error
}

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropOldest removes the oldest item to make room for new items.
	DropOldest OverflowPolicy = iota

	// DropNewest drops new items when the buffer is full.
	DropNewest
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	default:
		return "Unknown"
	}
}

// DropCallback is called with the item that was dropped due to overflow.
type DropCallback[T any] func(item T)

// NewCircularBuffer creates a new circular buffer with the specified capacity
// and options. Stats are always collected; metrics are optional via
// WithMetrics(). Returns an error if metrics registration fails.
func NewCircularBuffer[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	opts := applyOptions(options...)
	return newCircularBuffer(capacity, opts)
}
