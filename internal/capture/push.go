package capture

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/lexiqai/loopback-gateway/internal/audio"
)

// DefaultPushQueue is the number of pushed chunks buffered before new ones are dropped
const DefaultPushQueue = 256

// PushDevice receives 16-bit PCM pushed by the client, as sent by a remote
// recorder that captures loopback audio on its own machine.
type PushDevice struct {
	sampleRate int
	queue      chan []float32
	dropped    atomic.Int64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewPushDevice creates a push device. queueSize <= 0 uses DefaultPushQueue.
func NewPushDevice(sampleRate, queueSize int) *PushDevice {
	if queueSize <= 0 {
		queueSize = DefaultPushQueue
	}
	return &PushDevice{
		sampleRate: sampleRate,
		queue:      make(chan []float32, queueSize),
		done:       make(chan struct{}),
	}
}

// Feed queues little-endian 16-bit mono PCM. It never blocks: when the queue
// is full the chunk is dropped and counted.
func (d *PushDevice) Feed(pcm []byte) error {
	samples, err := audio.PCM16ToSamples(pcm)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDeviceClosed
	}

	select {
	case d.queue <- samples:
	default:
		d.dropped.Add(int64(len(samples)))
	}
	return nil
}

// Read returns the next pushed chunk
func (d *PushDevice) Read(ctx context.Context) ([]float32, error) {
	select {
	case samples := <-d.queue:
		return samples, nil
	case <-d.done:
		return nil, ErrDeviceClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Dropped returns how many pushed samples were dropped on a full queue
func (d *PushDevice) Dropped() int64 {
	return d.dropped.Load()
}

// SampleRate returns the rate the client pushes at
func (d *PushDevice) SampleRate() int {
	return d.sampleRate
}

// Close stops accepting audio and unblocks Read
func (d *PushDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.closed {
		d.closed = true
		close(d.done)
	}
	return nil
}
