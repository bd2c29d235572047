package capture

import (
	"context"
	"math"
	"sync"
	"time"
)

// Segment is one stretch of generated audio. Amplitude 0 is silence.
type Segment struct {
	Duration  time.Duration
	Frequency float64 // Hz
	Amplitude float64 // Peak, in [0, 1]
}

// DefaultScript returns one second of a 440 Hz tone followed by two seconds of silence
func DefaultScript() []Segment {
	return []Segment{
		{Duration: time.Second, Frequency: 440, Amplitude: 0.3},
		{Duration: 2 * time.Second},
	}
}

// SyntheticConfig configures a SyntheticDevice
type SyntheticConfig struct {
	SampleRate int
	Frame      time.Duration
	Script     []Segment
	Loop       bool    // Restart the script when it ends; otherwise emit silence
	Speed      float64 // Pacing multiplier; 0 or 1 is real time
}

// SyntheticDevice generates scripted audio paced like a real device.
// It stands in for a loopback monitor in demos and tests.
type SyntheticDevice struct {
	config      SyntheticConfig
	frameSize   int
	period      time.Duration
	segIndex    int
	segPosition int
	phase       float64
	next        time.Time

	closeOnce sync.Once
	done      chan struct{}
}

// NewSyntheticDevice creates a synthetic device
func NewSyntheticDevice(config SyntheticConfig) *SyntheticDevice {
	if config.Frame <= 0 {
		config.Frame = 20 * time.Millisecond
	}
	if config.Speed <= 0 {
		config.Speed = 1
	}

	return &SyntheticDevice{
		config:    config,
		frameSize: frameSamples(config.SampleRate, config.Frame),
		period:    time.Duration(float64(config.Frame) / config.Speed),
		done:      make(chan struct{}),
	}
}

// Read waits for the next frame period and returns one generated frame
func (d *SyntheticDevice) Read(ctx context.Context) ([]float32, error) {
	now := time.Now()
	if d.next.IsZero() {
		d.next = now
	}

	if wait := d.next.Sub(now); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-d.done:
			timer.Stop()
			return nil, ErrDeviceClosed
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	} else {
		select {
		case <-d.done:
			return nil, ErrDeviceClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}
	d.next = d.next.Add(d.period)

	return d.generate(d.frameSize), nil
}

func (d *SyntheticDevice) generate(n int) []float32 {
	frame := make([]float32, n)
	rate := float64(d.config.SampleRate)

	for i := range frame {
		seg, ok := d.segment()
		if !ok {
			continue // script finished: silence
		}

		if seg.Amplitude > 0 {
			frame[i] = float32(seg.Amplitude * math.Sin(d.phase))
			d.phase += 2 * math.Pi * seg.Frequency / rate
			if d.phase > 2*math.Pi {
				d.phase -= 2 * math.Pi
			}
		}
		d.segPosition++
	}

	return frame
}

// segment returns the segment covering the current position, advancing
// through the script as segments are used up
func (d *SyntheticDevice) segment() (Segment, bool) {
	script := d.config.Script
	for d.segIndex < len(script) {
		seg := script[d.segIndex]
		length := int(seg.Duration.Seconds() * float64(d.config.SampleRate))
		if d.segPosition < length {
			return seg, true
		}

		d.segIndex++
		d.segPosition = 0
		if d.segIndex == len(script) && d.config.Loop {
			d.segIndex = 0
		}

		if d.segIndex == 0 && !hasAudio(script, d.config.SampleRate) {
			break
		}
	}
	return Segment{}, false
}

func hasAudio(script []Segment, sampleRate int) bool {
	for _, seg := range script {
		if int(seg.Duration.Seconds()*float64(sampleRate)) > 0 {
			return true
		}
	}
	return false
}

// SampleRate returns the generated sample rate
func (d *SyntheticDevice) SampleRate() int {
	return d.config.SampleRate
}

// Close stops the generator
func (d *SyntheticDevice) Close() error {
	d.closeOnce.Do(func() {
		close(d.done)
	})
	return nil
}
