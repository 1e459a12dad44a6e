package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"callstack/internal/ports"
)

const (
	mirrorQueueSize    = 64
	mirrorDrainTimeout = 2 * time.Second
)

// pumpFragments awaits device fragments until the device reports io.EOF,
// buffering each one before offering it to the live preview mirror.
func pumpFragments(
	ctx context.Context,
	audio ports.AudioSession,
	buffer *fragmentBuffer,
	mirror *previewMirror,
	done chan struct{},
) {
	defer close(done)
	defer mirror.detach()

	for {
		fragment, err := audio.Next(ctx)
		if len(fragment) > 0 {
			buffer.Append(fragment)
			mirror.offer(fragment)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				buffer.Fail(err)
			}
			return
		}
	}
}

// previewMirror feeds the live preview from its own goroutine so a slow
// preview connection never holds up capture. offer and detach are called
// only from the pump goroutine.
type previewMirror struct {
	session ports.StreamingSession
	queue   chan []byte
	done    chan struct{}
	logger  *slog.Logger
}

func startPreviewMirror(session ports.StreamingSession, logger *slog.Logger) *previewMirror {
	m := &previewMirror{session: session, done: make(chan struct{}), logger: logger}
	if session == nil {
		close(m.done)
		return m
	}
	m.queue = make(chan []byte, mirrorQueueSize)
	go m.run()
	return m
}

func (m *previewMirror) run() {
	defer close(m.done)

	failed := false
	for chunk := range m.queue {
		if failed {
			continue
		}
		if err := m.session.SendAudio(chunk); err != nil {
			m.logger.Warn("live preview detached", "error", err)
			failed = true
		}
	}
}

func (m *previewMirror) offer(chunk []byte) {
	if m.queue == nil {
		return
	}
	select {
	case m.queue <- chunk:
	default:
		m.logger.Warn("live preview fell behind, detached", "queued", cap(m.queue))
		m.detach()
	}
}

func (m *previewMirror) detach() {
	if m.queue == nil {
		return
	}
	close(m.queue)
	m.queue = nil
}

// drained reports whether every queued chunk was handed to the preview
// within timeout.
func (m *previewMirror) drained(timeout time.Duration) bool {
	select {
	case <-m.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func waitForStream(session ports.StreamingSession, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		_ = session.Close()
		return <-done
	}
}
