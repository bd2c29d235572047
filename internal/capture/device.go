// Package capture provides the audio sources a session can read loopback
// audio from: a recorder subprocess, audio pushed by the client, or a
// synthetic generator.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDeviceClosed is returned by Read after the device has been closed
var ErrDeviceClosed = errors.New("capture device closed")

// ErrPushNotSupported is returned when audio is pushed to a device that captures on its own
var ErrPushNotSupported = errors.New("capture device does not accept pushed audio")

// Device is a source of mono audio at a fixed sample rate.
//
// Read blocks until the next chunk of samples is available, the context is
// done, or the device fails. A device is read by a single goroutine; Close
// may be called concurrently with Read and unblocks it.
type Device interface {
	Read(ctx context.Context) ([]float32, error)
	SampleRate() int
	Close() error
}

// Feeder is implemented by devices that accept audio pushed over the network
type Feeder interface {
	Feed(pcm []byte) error
}

// Options selects and configures a capture device
type Options struct {
	Source     string        // command, push, synthetic
	Command    string        // Recorder command line for the command source
	SampleRate int           // Device sample rate
	Frame      time.Duration // Read granularity
}

// Open creates a device for the configured source
func Open(opts Options) (Device, error) {
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", opts.SampleRate)
	}
	if opts.Frame <= 0 {
		opts.Frame = 20 * time.Millisecond
	}

	switch opts.Source {
	case "command":
		return NewCommandDevice(opts.Command, opts.SampleRate, opts.Frame)
	case "push":
		return NewPushDevice(opts.SampleRate, 0), nil
	case "synthetic":
		return NewSyntheticDevice(SyntheticConfig{
			SampleRate: opts.SampleRate,
			Frame:      opts.Frame,
			Script:     DefaultScript(),
			Loop:       true,
		}), nil
	default:
		return nil, fmt.Errorf("unknown capture source %q", opts.Source)
	}
}

func frameSamples(sampleRate int, frame time.Duration) int {
	n := int(int64(sampleRate) * int64(frame) / int64(time.Second))
	if n < 1 {
		n = 1
	}
	return n
}
