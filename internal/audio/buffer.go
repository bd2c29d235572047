package audio

import (
	"errors"
	"sync"
)

// ErrInsufficientData is returned by Read when fewer samples are buffered than requested
var ErrInsufficientData = errors.New("insufficient data in ring buffer")

// RingBuffer is a fixed-capacity circular store of normalized audio samples.
// It is written by one producer and read by one consumer. When a write would
// exceed capacity the oldest unread samples are overwritten, so capture never
// blocks on a slow consumer.
type RingBuffer struct {
	buffer []float32
	size   int
	read   int
	write  int
	count  int
	mu     sync.Mutex
}

// NewRingBuffer creates a new ring buffer holding up to capacity samples
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{
		buffer: make([]float32, capacity),
		size:   capacity,
	}
}

// Write appends samples to the ring buffer.
// Returns the number of previously stored samples that were discarded to make room.
func (rb *RingBuffer) Write(samples []float32) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	dropped := 0

	// Only the most recent size samples of an oversized write can survive
	if len(samples) > rb.size {
		dropped += len(samples) - rb.size
		samples = samples[len(samples)-rb.size:]
	}

	for _, s := range samples {
		rb.buffer[rb.write] = s
		rb.write = (rb.write + 1) % rb.size
		if rb.count == rb.size {
			// Full: the oldest unread sample was just overwritten
			rb.read = (rb.read + 1) % rb.size
			dropped++
		} else {
			rb.count++
		}
	}

	return dropped
}

// Read removes and returns exactly n samples in FIFO order.
// If fewer than n samples are available it returns ErrInsufficientData and
// leaves the buffer untouched.
func (rb *RingBuffer) Read(n int) ([]float32, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if n < 0 || n > rb.count {
		return nil, ErrInsufficientData
	}

	out := make([]float32, n)
	first := n
	if rb.read+n > rb.size {
		first = rb.size - rb.read
	}
	copy(out, rb.buffer[rb.read:rb.read+first])
	copy(out[first:], rb.buffer[:n-first])

	rb.read = (rb.read + n) % rb.size
	rb.count -= n

	return out, nil
}

// Available returns the number of samples available to read
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Capacity returns the maximum number of samples the buffer can hold
func (rb *RingBuffer) Capacity() int {
	return rb.size
}

// Clear drops all buffered samples
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.read = 0
	rb.write = 0
	rb.count = 0
}

// IsEmpty returns true if the buffer is empty
func (rb *RingBuffer) IsEmpty() bool {
	return rb.Available() == 0
}

// IsFull returns true if the next write will overwrite unread samples
func (rb *RingBuffer) IsFull() bool {
	return rb.Available() == rb.size
}
