package session

import (
	"time"

	"github.com/lexiqai/loopback-gateway/internal/audio"
	"github.com/lexiqai/loopback-gateway/internal/capture"
	"github.com/lexiqai/loopback-gateway/internal/config"
)

// Pipeline holds the per-session audio processing settings
type Pipeline struct {
	CaptureFrame     time.Duration // Ring drain granularity, matches the device frame
	TargetSampleRate int
	RingBuffer       time.Duration
	SegmentMode      string // vad or fixed
	VAD              audio.VADConfig
	Segmenter        audio.SegmenterConfig
	QueueSize        int // Utterances waiting for recognition before new ones are dropped
}

// DefaultPipeline returns the default processing settings
func DefaultPipeline() Pipeline {
	return Pipeline{
		CaptureFrame:     20 * time.Millisecond,
		TargetSampleRate: 16000,
		RingBuffer:       2 * time.Second,
		SegmentMode:      config.SegmentVAD,
		VAD:              *audio.DefaultVADConfig(),
		Segmenter:        audio.DefaultSegmenterConfig(),
		QueueSize:        16,
	}
}

// PipelineFromConfig maps service configuration onto pipeline settings.
// In fixed mode every frame counts as speech and utterances are cut at
// FIXED_CHUNK_MS.
func PipelineFromConfig(cfg *config.Config) Pipeline {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }

	p := Pipeline{
		CaptureFrame:     ms(cfg.CaptureFrameMs),
		TargetSampleRate: cfg.TargetSampleRate,
		RingBuffer:       ms(cfg.RingBufferMs),
		SegmentMode:      cfg.SegmentMode,
		VAD: audio.VADConfig{
			EnergyThreshold: cfg.VADThreshold,
			HangoverFrames:  cfg.VADHangoverFrames,
		},
		Segmenter: audio.SegmenterConfig{
			SampleRate:       cfg.TargetSampleRate,
			FrameDuration:    ms(cfg.VADFrameMs),
			SilenceThreshold: ms(cfg.SilenceThresholdMs),
			MinSpeech:        ms(cfg.MinSpeechMs),
			MaxUtterance:     ms(cfg.MaxUtteranceMs),
		},
		QueueSize: cfg.ASRQueueSize,
	}

	if cfg.SegmentMode == config.SegmentFixed {
		p.Segmenter.MaxUtterance = ms(cfg.FixedChunkMs)
	}

	return p
}

// CaptureOptions returns the device options for cfg
func CaptureOptions(cfg *config.Config) capture.Options {
	return capture.Options{
		Source:     cfg.CaptureSource,
		Command:    cfg.CaptureCommand,
		SampleRate: cfg.CaptureSampleRate,
		Frame:      time.Duration(cfg.CaptureFrameMs) * time.Millisecond,
	}
}

func (p Pipeline) newSegmenter() (*audio.Segmenter, error) {
	segCfg := p.Segmenter
	segCfg.SampleRate = p.TargetSampleRate

	var classifier audio.Classifier
	if p.SegmentMode == config.SegmentFixed {
		classifier = audio.AlwaysSpeech{}
	} else {
		vadCfg := p.VAD
		classifier = audio.NewEnergyClassifier(&vadCfg)
	}

	return audio.NewSegmenter(segCfg, classifier)
}

// captureFrameSamples is the number of device samples drained per step
func (p Pipeline) captureFrameSamples(rate int) int {
	frame := p.CaptureFrame
	if frame <= 0 {
		frame = 20 * time.Millisecond
	}
	n := int(int64(rate) * int64(frame) / int64(time.Second))
	if n < 1 {
		n = 1
	}
	return n
}
