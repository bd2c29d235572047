package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lexiqai/loopback-gateway/internal/asr"
	"github.com/lexiqai/loopback-gateway/internal/audio"
	"github.com/lexiqai/loopback-gateway/internal/capture"
	"github.com/lexiqai/loopback-gateway/internal/observability"
	"github.com/lexiqai/loopback-gateway/internal/sink"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrAlreadyActive is returned when starting a session that is already capturing
	ErrAlreadyActive = errors.New("system audio capture already running")
	// ErrNotActive is returned when stopping or feeding a session that is not capturing
	ErrNotActive = errors.New("system audio capture not running")
	// ErrSessionClosed is returned once the session has been removed
	ErrSessionClosed = errors.New("session closed")
)

const sinkPublishTimeout = 5 * time.Second

// State is the capture lifecycle of a session
type State int

const (
	StateIdle State = iota
	StateActive
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Transcriber recognizes one WAV utterance. *asr.Gateway implements it.
type Transcriber interface {
	Recognize(ctx context.Context, wav []byte) asr.Result
}

// DeviceOpener opens the capture device for a new capture run
type DeviceOpener func() (capture.Device, error)

// deps are the services every session of a manager shares
type deps struct {
	pipeline    Pipeline
	openDevice  DeviceOpener
	transcriber Transcriber
	sink        sink.TranscriptSink
}

// Info is a snapshot of a session for the control API
type Info struct {
	ID        string     `json:"id"`
	State     string     `json:"state"`
	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// StreamSession is one connected client and, while capture is running,
// the capture pipeline feeding it transcripts.
type StreamSession struct {
	id        string
	deps      *deps
	createdAt time.Time
	logger    zerolog.Logger

	mu      sync.Mutex
	channel Channel
	state   State
	run     *captureRun
	closed  bool
}

// captureRun holds everything one start/stop cycle owns. The ring and
// segmenter are touched only by the run's processing goroutines.
type captureRun struct {
	ctx    context.Context
	cancel context.CancelFunc

	stopped atomic.Bool

	device      capture.Device
	closeDevice func() error
	captureRate int
	frameSize   int // capture-rate samples drained per step

	ring      *audio.RingBuffer
	segmenter *audio.Segmenter
	notify    chan struct{}
	queue     chan *audio.Utterance

	startedAt time.Time
	metrics   *observability.Metrics
	logger    zerolog.Logger
	done      chan struct{}
}

func newStreamSession(id string, channel Channel, d *deps) *StreamSession {
	return &StreamSession{
		id:        id,
		deps:      d,
		channel:   channel,
		createdAt: time.Now(),
		state:     StateIdle,
		logger:    observability.WithSession(id),
	}
}

// ID returns the session identity
func (s *StreamSession) ID() string {
	return s.id
}

// State returns the current lifecycle state
func (s *StreamSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Info returns a snapshot of the session
func (s *StreamSession) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{ID: s.id, State: s.state.String(), CreatedAt: s.createdAt}
	if s.run != nil {
		started := s.run.startedAt
		info.StartedAt = &started
	}
	return info
}

// Start opens the capture device and starts the capture pipeline
func (s *StreamSession) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.state != StateIdle {
		return ErrAlreadyActive
	}

	device, err := s.deps.openDevice()
	if err != nil {
		observability.RecordError("device_open", "capture")
		return fmt.Errorf("failed to open capture device: %w", err)
	}

	segmenter, err := s.deps.pipeline.newSegmenter()
	if err != nil {
		device.Close()
		return fmt.Errorf("failed to create segmenter: %w", err)
	}

	rate := device.SampleRate()
	ctx, cancel := context.WithCancel(context.Background())
	correlationID := observability.NewCorrelationID()

	var closeOnce sync.Once
	var closeErr error

	run := &captureRun{
		ctx:    ctx,
		cancel: cancel,
		device: device,
		closeDevice: func() error {
			closeOnce.Do(func() { closeErr = device.Close() })
			return closeErr
		},
		captureRate: rate,
		frameSize:   s.deps.pipeline.captureFrameSamples(rate),
		ring:        audio.NewRingBuffer(audio.DurationSamples(int(s.deps.pipeline.RingBuffer.Milliseconds()), rate)),
		segmenter:   segmenter,
		notify:      make(chan struct{}, 1),
		queue:       make(chan *audio.Utterance, s.deps.pipeline.QueueSize),
		startedAt:   time.Now(),
		metrics:     observability.NewSessionMetrics(s.id),
		logger:      s.logger.With().Str("correlation_id", correlationID).Logger(),
		done:        make(chan struct{}),
	}

	s.run = run
	s.state = StateActive
	run.metrics.RecordSessionStart()

	go s.supervise(run)
	go s.dispatch(run)

	run.logger.Info().
		Int("capture_rate", rate).
		Int("target_rate", s.deps.pipeline.TargetSampleRate).
		Int("ring_capacity", run.ring.Capacity()).
		Str("segment_mode", s.deps.pipeline.SegmentMode).
		Msg("Capture started")

	return nil
}

// Stop halts the capture pipeline and waits for its teardown. Recognition
// calls already in flight finish in the background and their results are
// discarded.
func (s *StreamSession) Stop() error {
	s.mu.Lock()
	run := s.run
	if run == nil || s.state != StateActive {
		s.mu.Unlock()
		return ErrNotActive
	}
	s.state = StateStopping
	s.mu.Unlock()

	run.halt()
	<-run.done
	return nil
}

// Feed pushes client audio into the running capture device
func (s *StreamSession) Feed(pcm []byte) error {
	s.mu.Lock()
	run := s.run
	s.mu.Unlock()

	if run == nil || run.stopped.Load() {
		return ErrNotActive
	}

	feeder, ok := run.device.(capture.Feeder)
	if !ok {
		return capture.ErrPushNotSupported
	}
	return feeder.Feed(pcm)
}

// Close stops any capture and drops the session's reference to its channel.
// The channel itself is closed by the owner that created it.
func (s *StreamSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	run := s.run
	if run != nil {
		s.state = StateStopping
	}
	s.mu.Unlock()

	if run != nil {
		run.halt()
		<-run.done
	}

	s.mu.Lock()
	s.channel = nil
	s.mu.Unlock()
}

// Send writes msg to the session's channel
func (s *StreamSession) Send(msg any) error {
	s.mu.Lock()
	ch := s.channel
	s.mu.Unlock()

	if ch == nil {
		return ErrChannelClosed
	}
	return ch.Send(msg)
}

// closeChannel closes the channel so the owner's read loop notices the
// failure and removes the session
func (s *StreamSession) closeChannel() {
	s.mu.Lock()
	ch := s.channel
	s.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}
}

// halt sets the stop flag and cancels the run
func (r *captureRun) halt() {
	r.stopped.Store(true)
	r.cancel()
}

// supervise runs the capture and processing goroutines and tears the run
// down when either of them exits.
func (s *StreamSession) supervise(run *captureRun) {
	g, ctx := errgroup.WithContext(run.ctx)

	g.Go(func() error {
		return s.captureLoop(ctx, run)
	})
	g.Go(func() error {
		return s.processLoop(ctx, run)
	})

	// Closing the device unblocks a Read that ignores ctx
	go func() {
		<-ctx.Done()
		run.closeDevice()
	}()

	err := g.Wait()
	deviceFailed := err != nil && !run.stopped.Load()
	run.halt()

	close(run.queue)
	if cerr := run.closeDevice(); cerr != nil {
		run.logger.Debug().Err(cerr).Msg("Error closing capture device")
	}
	run.ring.Clear()
	run.segmenter.Reset()
	run.metrics.RecordSessionEnd()

	if deviceFailed {
		run.metrics.RecordError("device", "capture")
		run.logger.Error().Err(err).Msg("Capture device failed")
		if serr := s.Send(NewError("Audio capture error: " + err.Error())); serr != nil {
			run.logger.Debug().Err(serr).Msg("Could not report capture error")
		}
		// A device failure ends the session; the owner detaches it once the channel closes
		s.closeChannel()
	}

	s.mu.Lock()
	if s.run == run {
		s.run = nil
		s.state = StateIdle
	}
	s.mu.Unlock()

	run.logger.Info().
		Dur("duration", time.Since(run.startedAt)).
		Bool("device_failed", deviceFailed).
		Msg("Capture stopped")

	close(run.done)
}

// captureLoop moves device frames into the ring buffer. The stop flag is
// checked once per frame.
func (s *StreamSession) captureLoop(ctx context.Context, run *captureRun) error {
	for {
		if run.stopped.Load() {
			return nil
		}

		samples, err := run.device.Read(ctx)
		if err != nil {
			if run.stopped.Load() || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("capture read failed: %w", err)
		}

		if run.stopped.Load() {
			return nil
		}
		if len(samples) == 0 {
			continue
		}

		overrun := run.ring.Write(samples)
		run.metrics.RecordCapture(len(samples), overrun)
		if overrun > 0 {
			run.logger.Debug().Int("discarded", overrun).Msg("Ring buffer overrun")
		}

		select {
		case run.notify <- struct{}{}:
		default:
		}
	}
}

// processLoop drains the ring in whole capture frames, resamples and feeds
// the segmenter.
func (s *StreamSession) processLoop(ctx context.Context, run *captureRun) error {
	target := s.deps.pipeline.TargetSampleRate

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-run.notify:
		}

		if run.stopped.Load() {
			return nil
		}

		available := run.ring.Available()
		n := available - available%run.frameSize
		if n == 0 {
			continue
		}

		samples, err := run.ring.Read(n)
		if err != nil {
			continue
		}

		discarded := run.segmenter.Discarded()
		utterances := run.segmenter.Push(audio.Resample(samples, run.captureRate, target))
		for i := run.segmenter.Discarded() - discarded; i > 0; i-- {
			run.metrics.RecordUtterance("discarded", 0)
		}

		for _, u := range utterances {
			s.enqueue(run, u)
		}
	}
}

// enqueue hands an utterance to the dispatcher without blocking capture
func (s *StreamSession) enqueue(run *captureRun, u *audio.Utterance) {
	select {
	case run.queue <- u:
		run.logger.Debug().
			Uint64("seq", u.Seq).
			Dur("duration", u.Duration()).
			Bool("forced", u.Forced).
			Msg("Utterance finalized")
	default:
		run.metrics.RecordUtterance("dropped", u.Duration())
		run.logger.Warn().
			Uint64("seq", u.Seq).
			Dur("duration", u.Duration()).
			Msg("Recognition queue full, dropping utterance")
	}
}

// dispatch recognizes utterances one at a time so transcripts reach the
// client in finalization order.
func (s *StreamSession) dispatch(run *captureRun) {
	// In-flight calls outlive a stop; the gateway timeout bounds them
	ctx := context.WithoutCancel(run.ctx)

	for u := range run.queue {
		if run.stopped.Load() {
			continue
		}
		s.recognize(ctx, run, u)
	}
}

func (s *StreamSession) recognize(ctx context.Context, run *captureRun, u *audio.Utterance) {
	logger := run.logger.With().Uint64("seq", u.Seq).Logger()

	wav, err := audio.EncodeWAV(u.Samples, u.SampleRate)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to encode utterance")
		run.metrics.RecordError("encode", "session")
		return
	}

	run.metrics.RecordUtterance("dispatched", u.Duration())
	res := s.deps.transcriber.Recognize(ctx, wav)

	if run.stopped.Load() {
		logger.Debug().Msg("Discarding result for stopped capture")
		return
	}

	var msg any
	if res.OK {
		logger.Info().
			Str("text", res.Text).
			Dur("latency", res.Latency).
			Msg("Transcript ready")
		msg = NewTranscript(res.Text, res.Latency)
	} else {
		logger.Warn().Str("cause", res.Message()).Msg("Recognition failed")
		msg = NewError("Transcription failed: " + res.Message())
	}

	if err := s.Send(msg); err != nil {
		// A dead channel stops the session like a disconnect would
		logger.Warn().Err(err).Msg("Failed to send to client, stopping capture")
		run.metrics.RecordError("transport", "session")
		run.halt()
		s.closeChannel()
		return
	}

	s.publish(ctx, u, res)
}

func (s *StreamSession) publish(ctx context.Context, u *audio.Utterance, res asr.Result) {
	if s.deps.sink == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, sinkPublishTimeout)
	defer cancel()

	// Failures are logged and counted by the sink
	_ = s.deps.sink.Publish(ctx, sink.Transcript{
		SessionID:      s.id,
		Seq:            u.Seq,
		Text:           res.Text,
		OK:             res.OK,
		Error:          res.Message(),
		Offset:         u.Offset.Seconds(),
		Duration:       u.Duration().Seconds(),
		ProcessingTime: res.Latency.Seconds(),
		CreatedAt:      time.Now().UTC(),
	})
}
