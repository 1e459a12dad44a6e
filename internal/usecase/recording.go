package usecase

import (
	"sync"
	"log/slog"
	"time"

	"callstack/internal/ports"
)

// fragmentBuffer accumulates device fragments in arrival order.
type fragmentBuffer struct {
	mu        sync.Mutex
	fragments [][]byte
	size      int
	err       error
}

func (b *fragmentBuffer) Append(fragment []byte) {
	if len(fragment) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fragments = append(b.fragments, fragment)
	b.size += len(fragment)
}

func (b *fragmentBuffer) Fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err == nil {
		b.err = err
	}
}

// Snapshot returns the fragments collected so far and the first capture error, if any.
func (b *fragmentBuffer) Snapshot() ([][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.fragments))
	copy(out, b.fragments)
	return out, b.err
}

func (b *fragmentBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

const drainTimeout = 5 * time.Second

// activeRecording is the single in-progress capture owned by the controller.
type activeRecording struct {
	id        string
	startedAt time.Time
	cancel    func()

	audio     ports.AudioSession
	preview   ports.StreamingSession
	mirror    *previewMirror
	fragments *fragmentBuffer

	pumpDone    chan struct{}
	previewDone chan struct{}

	releaseOnce sync.Once
	releaseErr  error
}

func newActiveRecording(id string, cancel func(), audio ports.AudioSession, preview ports.StreamingSession, logger *slog.Logger) *activeRecording {
	return &activeRecording{
		id:          id,
		startedAt:   time.Now(),
		cancel:      cancel,
		audio:       audio,
		preview:     preview,
		mirror:      startPreviewMirror(preview, logger),
		fragments:   &fragmentBuffer{},
		pumpDone:    make(chan struct{}),
		previewDone: make(chan struct{}),
	}
}

// release stops the device and waits until every fragment it produced has been
// collected. Safe to call from every exit path; the device is stopped once.
func (r *activeRecording) release(grace time.Duration) error {
	r.releaseOnce.Do(func() {
		r.releaseErr = r.audio.Stop()
		select {
		case <-r.pumpDone:
		case <-time.After(drainTimeout):
			r.cancel()
			<-r.pumpDone
		}

		if r.preview != nil {
			// A stalled send only returns once the session is torn down.
			if r.mirror.drained(mirrorDrainTimeout) {
				if grace > 0 {
					time.Sleep(grace)
				}
				_ = r.preview.CloseSend()
				_ = waitForStream(r.preview, 4*time.Second)
			}
			_ = r.preview.Close()
			<-r.mirror.done
			<-r.previewDone
		}
		r.cancel()
	})
	return r.releaseErr
}
