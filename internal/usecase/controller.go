package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"callstack/internal/domain"
	"callstack/internal/ports"
)

// Config controls recording behavior.
type Config struct {
	Audio          ports.AudioConfig
	Streaming      ports.StreamingConfig
	StreamingGrace time.Duration
}

// Option customizes a VoiceController.
type Option func(*VoiceController)

// WithPreview streams audio to a live transcription provider while recording.
func WithPreview(provider ports.TranscriptionProvider) Option {
	return func(c *VoiceController) { c.preview = provider }
}

func WithActivity(recorder ports.ActivityRecorder) Option {
	return func(c *VoiceController) { c.activity = recorder }
}

func WithReporter(reporter ports.ErrorReporter) Option {
	return func(c *VoiceController) { c.reporter = reporter }
}

func WithObserver(observer ports.CycleObserver) Option {
	return func(c *VoiceController) { c.observer = observer }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *VoiceController) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// VoiceController owns the presentation state and runs the record, refresh and
// upload cycle. Only one recording may be active at a time.
type VoiceController struct {
	capture  ports.AudioCapture
	guard    *SessionGuard
	uploader ports.Uploader
	events   ports.EventSink
	cfg      Config

	preview  ports.TranscriptionProvider
	activity ports.ActivityRecorder
	reporter ports.ErrorReporter
	observer ports.CycleObserver
	logger   *slog.Logger
	tracer   trace.Tracer

	mu        sync.Mutex
	state     domain.State
	starting  bool
	current   *activeRecording
	releasing sync.WaitGroup
	inflight  sync.WaitGroup
}

func NewVoiceController(
	capture ports.AudioCapture,
	guard *SessionGuard,
	uploader ports.Uploader,
	events ports.EventSink,
	cfg Config,
	opts ...Option,
) *VoiceController {
	c := &VoiceController{
		capture:  capture,
		guard:    guard,
		uploader: uploader,
		events:   events,
		cfg:      cfg,
		logger:   slog.Default(),
		tracer:   otel.Tracer("callstack/usecase"),
		state:    domain.State{Phase: domain.PhaseIdle},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start acquires the input device and begins a new recording. It is rejected
// while a recording or an upload is in progress.
func (c *VoiceController) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.starting {
		c.mu.Unlock()
		return domain.ErrAlreadyRecording
	}
	_, effects, err := Transition(c.state, Event{Kind: EventStartRequested})
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.starting = true
	c.mu.Unlock()

	var (
		rec      *activeRecording
		startErr error
	)
	if hasEffect(effects, EffectAcquireDevice) {
		rec, startErr = c.acquire(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.starting = false

	if startErr != nil {
		// acquire leaves nothing open on failure, so the release effect has no target.
		next, _, _ := Transition(c.state, Event{Kind: EventCaptureFailed, Err: startErr})
		c.apply(next)
		c.logger.Warn("audio device unavailable", "error", startErr)
		return startErr
	}

	next, _, _ := Transition(c.state, Event{Kind: EventCaptureStarted})
	c.current = rec
	c.apply(next)
	if rec.preview != nil {
		go consumePreview(rec.preview, &previewText{}, func(text string) { c.applyPartial(rec, text) }, rec.previewDone)
	} else {
		close(rec.previewDone)
	}
	c.logger.Info("recording started", "cycle_id", rec.id)
	if c.observer != nil {
		c.observer.RecordingStarted()
	}
	return nil
}

func (c *VoiceController) acquire(ctx context.Context) (*activeRecording, error) {
	c.releasing.Wait()

	recCtx, cancel := context.WithCancel(ctx)
	audioSession, err := c.capture.Start(recCtx, c.cfg.Audio)
	if err != nil {
		cancel()
		if !errors.Is(err, domain.ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
		}
		return nil, err
	}

	var stream ports.StreamingSession
	if c.preview != nil {
		stream, err = c.preview.StartStreaming(recCtx, c.cfg.Streaming)
		if err != nil {
			c.logger.Warn("live preview unavailable", "error", err)
			stream = nil
		}
	}

	rec := newActiveRecording(uuid.NewString(), cancel, audioSession, stream, c.logger)
	go pumpFragments(recCtx, audioSession, rec.fragments, rec.mirror, rec.pumpDone)
	return rec, nil
}

// Stop ends the active recording and uploads it. Outside Recording it is a no-op
// that returns the current state. The returned error is the cycle failure, if any;
// it is already reflected in the returned state.
func (c *VoiceController) Stop(ctx context.Context) (domain.State, error) {
	c.mu.Lock()
	next, effects, _ := Transition(c.state, Event{Kind: EventStopRequested})
	if len(effects) == 0 || c.current == nil {
		state := c.state
		c.mu.Unlock()
		return state, nil
	}
	rec := c.current
	c.current = nil
	c.inflight.Add(1)
	c.apply(next)
	c.mu.Unlock()
	defer c.inflight.Done()

	ctx, span := c.tracer.Start(ctx, "voice.cycle", trace.WithAttributes(attribute.String("cycle.id", rec.id)))
	defer span.End()

	result, size, err := c.runCycle(ctx, rec, effects)
	span.SetAttributes(attribute.Int("audio.bytes", size))

	cycle := domain.Cycle{ID: rec.id, StartedAt: rec.startedAt, FinishedAt: time.Now(), AudioBytes: size}
	event := Event{Kind: EventCycleSucceeded, Result: result}
	if err != nil {
		failure := domain.FailureFrom(err)
		cycle.Failure = &failure
		event = Event{Kind: EventCycleFailed, Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(failure.Kind))
		c.logger.Warn("voice cycle failed", "cycle_id", rec.id, "kind", failure.Kind, "error", err)
		c.report(rec.id, err, failure)
	} else {
		cycle.Result = &result
		c.logger.Info("voice cycle finished", "cycle_id", rec.id, "audio_bytes", size)
	}

	c.mu.Lock()
	final, _, _ := Transition(c.state, event)
	c.apply(final)
	c.mu.Unlock()

	c.finishCycle(ctx, cycle)
	return final, err
}

func (c *VoiceController) runCycle(ctx context.Context, rec *activeRecording, effects []Effect) (domain.UploadResult, int, error) {
	var (
		blob   domain.AudioBlob
		cred   domain.Credential
		result domain.UploadResult
	)

	for _, effect := range effects {
		switch effect {
		case EffectReleaseDevice:
			if err := rec.release(c.cfg.StreamingGrace); err != nil {
				c.logger.Warn("audio device did not stop cleanly", "cycle_id", rec.id, "error", err)
			}
			fragments, err := rec.fragments.Snapshot()
			if err != nil {
				return result, rec.fragments.Size(), fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
			}
			blob, err = rec.audio.Finalize(fragments)
			if err != nil {
				return result, rec.fragments.Size(), fmt.Errorf("%w: finalize recording: %v", domain.ErrDeviceUnavailable, err)
			}

		case EffectRefreshCredential:
			refreshCtx, span := c.tracer.Start(ctx, "session_guard.refresh")
			var err error
			cred, err = c.guard.FreshCredential(refreshCtx)
			if err != nil {
				span.RecordError(err)
				span.End()
				return result, len(blob.Data), err
			}
			span.End()

		case EffectUpload:
			uploadCtx, span := c.tracer.Start(ctx, "backend.upload", trace.WithAttributes(
				attribute.String("audio.mime_type", blob.MIMEType),
			))
			var err error
			result, err = c.uploader.Upload(uploadCtx, blob, cred)
			if err != nil {
				span.RecordError(err)
				span.End()
				return domain.UploadResult{}, len(blob.Data), err
			}
			span.End()
		}
	}

	return result, len(blob.Data), nil
}

// Abort discards the active recording without uploading it.
func (c *VoiceController) Abort() error {
	c.mu.Lock()
	next, effects, err := Transition(c.state, Event{Kind: EventCaptureAborted})
	if err != nil {
		c.mu.Unlock()
		return err
	}
	rec := c.current
	c.current = nil
	c.releasing.Add(1)
	c.apply(next)
	c.mu.Unlock()

	defer c.releasing.Done()
	if rec == nil {
		return nil
	}
	if hasEffect(effects, EffectReleaseDevice) {
		if err := rec.release(0); err != nil {
			c.logger.Warn("audio device did not stop cleanly", "cycle_id", rec.id, "error", err)
		}
	}
	c.logger.Info("recording discarded", "cycle_id", rec.id)
	c.finishCycle(context.Background(), domain.Cycle{
		ID:         rec.id,
		StartedAt:  rec.startedAt,
		FinishedAt: time.Now(),
		AudioBytes: rec.fragments.Size(),
		Aborted:    true,
	})
	return nil
}

// Status returns the current presentation state.
func (c *VoiceController) Status() domain.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close releases the device if a recording is still active and waits for an
// upload that is already under way to finish.
func (c *VoiceController) Close() {
	if err := c.Abort(); err != nil && !errors.Is(err, domain.ErrNotRecording) {
		c.logger.Warn("close voice controller", "error", err)
	}
	c.releasing.Wait()
	c.inflight.Wait()
}

func (c *VoiceController) applyPartial(rec *activeRecording, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != rec {
		return
	}
	next, _, _ := Transition(c.state, Event{Kind: EventPartialTranscript, Text: text})
	c.apply(next)
}

// apply must be called with mu held so sinks observe states in order.
func (c *VoiceController) apply(next domain.State) {
	c.state = next
	if c.events != nil {
		c.events.StateChanged(next)
	}
}

func (c *VoiceController) report(cycleID string, err error, failure domain.Failure) {
	if c.reporter == nil {
		return
	}
	switch failure.Kind {
	case domain.FailureNetworkUnreachable:
	case domain.FailureBackendRejected:
		var rejected *domain.BackendRejectedError
		if !errors.As(err, &rejected) || rejected.StatusCode < 500 {
			return
		}
	default:
		return
	}
	c.reporter.Report(err, map[string]string{
		"cycle_id":     cycleID,
		"failure_kind": string(failure.Kind),
	})
}

func (c *VoiceController) finishCycle(ctx context.Context, cycle domain.Cycle) {
	if c.observer != nil {
		c.observer.CycleFinished(cycle)
	}
	if c.activity == nil {
		return
	}
	if err := c.activity.RecordCycle(context.WithoutCancel(ctx), cycle); err != nil {
		c.logger.Warn("record activity", "cycle_id", cycle.ID, "error", err)
	}
}

func hasEffect(effects []Effect, want Effect) bool {
	for _, effect := range effects {
		if effect == want {
			return true
		}
	}
	return false
}
