package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/lexiqai/loopback-gateway/internal/audio"
	"github.com/lexiqai/loopback-gateway/internal/observability"
	"github.com/rs/zerolog"
)

const stderrLimit = 4096

// CommandDevice reads raw float32le mono audio from the stdout of a recorder
// process, such as parec on the default sink monitor.
type CommandDevice struct {
	cmd        *exec.Cmd
	reader     *bufio.Reader
	stderr     *tailBuffer
	sampleRate int
	frameBytes int
	buf        []byte
	logger     zerolog.Logger

	closeOnce sync.Once
	closed    chan struct{}
	waitOnce  sync.Once
	waitErr   error
}

// NewCommandDevice starts the recorder command. The command line is split on
// whitespace; no shell is involved.
func NewCommandDevice(commandLine string, sampleRate int, frame time.Duration) (*CommandDevice, error) {
	args := strings.Fields(commandLine)
	if len(args) == 0 {
		return nil, fmt.Errorf("capture command is empty")
	}

	cmd := exec.Command(args[0], args[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open recorder stdout: %w", err)
	}
	stderr := &tailBuffer{limit: stderrLimit}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start capture command %q: %w", args[0], err)
	}

	frameBytes := frameSamples(sampleRate, frame) * 4

	d := &CommandDevice{
		cmd:        cmd,
		reader:     bufio.NewReaderSize(stdout, frameBytes*4),
		stderr:     stderr,
		sampleRate: sampleRate,
		frameBytes: frameBytes,
		buf:        make([]byte, frameBytes),
		logger:     observability.WithComponent("capture").With().Str("command", args[0]).Logger(),
		closed:     make(chan struct{}),
	}

	d.logger.Info().
		Int("pid", cmd.Process.Pid).
		Int("sample_rate", sampleRate).
		Msg("Capture command started")

	return d, nil
}

// Read returns the next frame of samples from the recorder
func (d *CommandDevice) Read(ctx context.Context) ([]float32, error) {
	select {
	case <-d.closed:
		return nil, ErrDeviceClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	n, err := io.ReadFull(d.reader, d.buf)
	if err != nil {
		select {
		case <-d.closed:
			return nil, ErrDeviceClosed
		default:
		}

		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, d.exitError()
		}
		return nil, fmt.Errorf("failed to read from capture command: %w", err)
	}

	return audio.Float32LEToSamples(d.buf[:n])
}

// exitError waits for the recorder and describes why it stopped
func (d *CommandDevice) exitError() error {
	err := d.wait()
	msg := strings.TrimSpace(d.stderr.String())

	switch {
	case err != nil && msg != "":
		return fmt.Errorf("capture command exited: %w: %s", err, msg)
	case err != nil:
		return fmt.Errorf("capture command exited: %w", err)
	case msg != "":
		return fmt.Errorf("capture command closed its output: %s", msg)
	default:
		return fmt.Errorf("capture command closed its output")
	}
}

// SampleRate returns the recorder sample rate
func (d *CommandDevice) SampleRate() int {
	return d.sampleRate
}

func (d *CommandDevice) wait() error {
	d.waitOnce.Do(func() {
		d.waitErr = d.cmd.Wait()
	})
	return d.waitErr
}

// Close stops the recorder process
func (d *CommandDevice) Close() error {
	d.closeOnce.Do(func() {
		close(d.closed)

		if err := d.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			d.logger.Warn().Err(err).Msg("Failed to kill capture command")
		}

		// Reap the process; exit status after a kill is expected
		_ = d.wait()

		d.logger.Info().Msg("Capture command stopped")
	})
	return nil
}

// tailBuffer keeps the last limit bytes written to it
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	data  []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = append(b.data, p...)
	if len(b.data) > b.limit {
		b.data = b.data[len(b.data)-b.limit:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}
