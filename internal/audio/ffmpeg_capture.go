package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"callstack/internal/domain"
	"callstack/internal/ports"
)

// FFMPEGCapture records the microphone by running ffmpeg and reading its stdout.
type FFMPEGCapture struct {
	command string
}

func NewFFMPEGCapture(command string) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCapture{command: command}
}

func (c *FFMPEGCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	cfg = withAudioDefaults(cfg)
	format := FormatFor(cfg.Container)

	cmd := exec.CommandContext(ctx, c.command, captureArgs(cfg, format)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create ffmpeg stdout pipe: %v", domain.ErrDeviceUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start ffmpeg: %v", domain.ErrDeviceUnavailable, err)
	}

	session := &ffmpegSession{
		format:     format,
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		stdout:     stdout,
		stderr:     &stderr,
		process:    cmd.Process,
		fragments:  make(chan []byte, 1024),
		abandoned:  make(chan struct{}),
		exited:     make(chan struct{}),
	}
	go session.readLoop(cmd, cfg.ChunkSize)

	select {
	case <-session.exited:
		if session.exitErr != nil {
			return nil, fmt.Errorf("%w: ffmpeg exited before capture started: %v: %s", domain.ErrDeviceUnavailable, session.exitErr, stringsTrimSpaceSafe(stderr.String()))
		}
		return nil, fmt.Errorf("%w: ffmpeg exited before capture started", domain.ErrDeviceUnavailable)
	case <-time.After(250 * time.Millisecond):
	}

	return session, nil
}

func withAudioDefaults(cfg ports.AudioConfig) ports.AudioConfig {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	return cfg
}

func captureArgs(cfg ports.AudioConfig, format Format) []string {
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
	}
	switch format.Container {
	case ContainerWAV:
		args = append(args, "-f", "s16le")
	case ContainerOgg:
		args = append(args, "-c:a", "libopus", "-f", "ogg")
	default:
		args = append(args, "-c:a", "libopus", "-f", "webm")
	}
	return append(args, "-")
}

type ffmpegSession struct {
	format     Format
	sampleRate int
	channels   int

	stdout  io.ReadCloser
	stderr  *bytes.Buffer
	process *os.Process

	fragments chan []byte
	abandoned chan struct{}
	readErr   error

	exited  chan struct{}
	exitErr error

	stopOnce    sync.Once
	stopErr     error
	abandonOnce sync.Once
}

// readLoop drains stdout fully before reaping the process, so no fragment is lost
// between the device stopping and the pipe being closed.
func (s *ffmpegSession) readLoop(cmd *exec.Cmd, chunkSize int) {
	defer close(s.exited)

	buf := make([]byte, chunkSize)
	for {
		n, err := s.stdout.Read(buf)
		if n > 0 {
			fragment := append([]byte(nil), buf[:n]...)
			select {
			case s.fragments <- fragment:
			case <-s.abandoned:
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				s.readErr = err
			}
			break
		}
	}
	close(s.fragments)
	s.exitErr = cmd.Wait()
}

func (s *ffmpegSession) Next(ctx context.Context) ([]byte, error) {
	select {
	case fragment, ok := <-s.fragments:
		if ok {
			return fragment, nil
		}
		<-s.exited
		if s.readErr != nil {
			return nil, fmt.Errorf("audio capture error: %w", s.readErr)
		}
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case <-s.exited:
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			select {
			case <-s.exited:
			case <-time.After(2 * time.Second):
				s.abandon()
				s.stopErr = errors.New("ffmpeg did not exit after kill")
				return
			}
		}

		s.stopErr = normalizeStopErr(s.exitErr)
		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, stringsTrimSpaceSafe(s.stderr.String()))
		}
	})

	return s.stopErr
}

func (s *ffmpegSession) Finalize(fragments [][]byte) (domain.AudioBlob, error) {
	return Assemble(s.format, s.sampleRate, s.channels, fragments)
}

func (s *ffmpegSession) abandon() {
	s.abandonOnce.Do(func() { close(s.abandoned) })
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func stringsTrimSpaceSafe(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
