package audio

import (
	"fmt"
	"time"
)

// SegmenterState is the state of the speech segmenter
type SegmenterState int

const (
	// StateIdle means no utterance is being accumulated
	StateIdle SegmenterState = iota
	// StateSpeaking means an utterance is open and frames are being accumulated
	StateSpeaking
)

// String returns the string representation of the state
func (s SegmenterState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSpeaking:
		return "SPEAKING"
	default:
		return "UNKNOWN"
	}
}

// SegmenterConfig configures a Segmenter
type SegmenterConfig struct {
	SampleRate       int           // Rate of the samples pushed in
	FrameDuration    time.Duration // Classifier frame length (20ms)
	SilenceThreshold time.Duration // Trailing silence that closes an utterance
	MinSpeech        time.Duration // Utterances shorter than this are discarded
	MaxUtterance     time.Duration // Force-close after this long; 0 disables
}

// DefaultSegmenterConfig returns the default segmenter configuration for 16kHz audio
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		SampleRate:       16000,
		FrameDuration:    20 * time.Millisecond,
		SilenceThreshold: 500 * time.Millisecond,
		MinSpeech:        10 * time.Millisecond,
		MaxUtterance:     30 * time.Second,
	}
}

// Utterance is one finalized span of speech plus its retained trailing silence
type Utterance struct {
	Samples    []float32
	SampleRate int
	Seq        uint64        // Per-segmenter sequence number, starting at 1
	Offset     time.Duration // Stream position where speech began
	Forced     bool          // Closed by the maximum length rather than silence
}

// Duration returns the length of the utterance
func (u *Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.Samples)) * time.Second / time.Duration(u.SampleRate)
}

// Segmenter turns a stream of samples into utterances using a silence-timeout
// state machine driven by a Classifier. It is not safe for concurrent use.
type Segmenter struct {
	config     SegmenterConfig
	classifier Classifier

	frameSize      int
	silenceLimit   int
	minSamples     int
	maxSamples     int
	state          SegmenterState
	pending        []float32 // partial frame carried between pushes
	current        []float32
	silenceSamples int
	speechStart    int64
	position       int64 // samples consumed as whole frames
	seq            uint64
	discarded      int
}

// NewSegmenter creates a new segmenter
func NewSegmenter(config SegmenterConfig, classifier Classifier) (*Segmenter, error) {
	if classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}

	frameSize := durationToSamples(config.FrameDuration, config.SampleRate)
	if frameSize <= 0 {
		return nil, fmt.Errorf("frame duration %s is shorter than one sample", config.FrameDuration)
	}
	if config.SilenceThreshold <= 0 {
		return nil, fmt.Errorf("silence threshold must be positive, got %s", config.SilenceThreshold)
	}
	if config.MinSpeech < 0 || config.MaxUtterance < 0 {
		return nil, fmt.Errorf("durations must not be negative")
	}

	maxSamples := durationToSamples(config.MaxUtterance, config.SampleRate)
	if config.MaxUtterance > 0 && maxSamples < frameSize {
		return nil, fmt.Errorf("max utterance %s is shorter than one frame", config.MaxUtterance)
	}

	return &Segmenter{
		config:       config,
		classifier:   classifier,
		frameSize:    frameSize,
		silenceLimit: durationToSamples(config.SilenceThreshold, config.SampleRate),
		minSamples:   durationToSamples(config.MinSpeech, config.SampleRate),
		maxSamples:   maxSamples,
		pending:      make([]float32, 0, frameSize*2),
	}, nil
}

// Push feeds samples into the segmenter and returns any utterances finalized
// by them, in order. Incomplete frames are carried to the next call.
func (s *Segmenter) Push(samples []float32) []*Utterance {
	s.pending = append(s.pending, samples...)

	var out []*Utterance
	off := 0
	for len(s.pending)-off >= s.frameSize {
		frame := s.pending[off : off+s.frameSize]
		off += s.frameSize

		if u := s.processFrame(frame); u != nil {
			out = append(out, u)
		}
	}

	// Carry the remainder forward
	n := copy(s.pending, s.pending[off:])
	s.pending = s.pending[:n]

	return out
}

func (s *Segmenter) processFrame(frame []float32) *Utterance {
	frameStart := s.position
	s.position += int64(len(frame))

	speech := s.classifier.IsSpeech(frame)

	switch s.state {
	case StateIdle:
		if !speech {
			return nil
		}
		s.state = StateSpeaking
		s.speechStart = frameStart
		s.silenceSamples = 0
		s.current = append(s.current[:0], frame...)

	case StateSpeaking:
		s.current = append(s.current, frame...)
		if speech {
			s.silenceSamples = 0
		} else {
			s.silenceSamples += len(frame)
			if s.silenceSamples >= s.silenceLimit {
				return s.finalize(false)
			}
		}
	}

	if s.maxSamples > 0 && len(s.current) >= s.maxSamples {
		return s.finalize(true)
	}

	return nil
}

// finalize closes the open utterance, applies the minimum-duration filter
// and returns to IDLE. It returns nil when the utterance is discarded.
func (s *Segmenter) finalize(forced bool) *Utterance {
	var u *Utterance
	if len(s.current) > 0 && len(s.current) >= s.minSamples {
		s.seq++
		samples := make([]float32, len(s.current))
		copy(samples, s.current)
		u = &Utterance{
			Samples:    samples,
			SampleRate: s.config.SampleRate,
			Seq:        s.seq,
			Offset:     time.Duration(s.speechStart) * time.Second / time.Duration(s.config.SampleRate),
			Forced:     forced,
		}
	} else if len(s.current) > 0 {
		s.discarded++
	}

	s.state = StateIdle
	s.current = s.current[:0]
	s.silenceSamples = 0
	if r, ok := s.classifier.(resettable); ok {
		r.Reset()
	}

	return u
}

// Reset drops all buffered audio, including an open utterance, and returns
// to IDLE. The sequence counter and stream position are kept.
func (s *Segmenter) Reset() {
	s.state = StateIdle
	s.pending = s.pending[:0]
	s.current = s.current[:0]
	s.silenceSamples = 0
	if r, ok := s.classifier.(resettable); ok {
		r.Reset()
	}
}

// State returns the current state
func (s *Segmenter) State() SegmenterState {
	return s.state
}

// FrameSize returns the classifier frame length in samples
func (s *Segmenter) FrameSize() int {
	return s.frameSize
}

// Buffered returns the number of samples held in the open utterance and the carry buffer
func (s *Segmenter) Buffered() int {
	return len(s.current) + len(s.pending)
}

// Discarded returns how many utterances the minimum-duration filter rejected
func (s *Segmenter) Discarded() int {
	return s.discarded
}

func durationToSamples(d time.Duration, sampleRate int) int {
	return int((int64(d)*int64(sampleRate) + int64(time.Second)/2) / int64(time.Second))
}
