package ports

import (
	"context"

	"callstack/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
	Container   string
	ChunkSize   int
}

// AudioSession is a live capture session holding the input device.
type AudioSession interface {
	// Next blocks until the device delivers the next fragment. It returns io.EOF
	// once the device has stopped and every fragment has been handed out.
	Next(ctx context.Context) ([]byte, error)
	// Stop releases the device. Fragments already produced remain readable via Next.
	Stop() error
	// Finalize assembles fragments, in the order given, into one container object.
	Finalize(fragments [][]byte) (domain.AudioBlob, error)
}

// AudioCapture acquires the input device and starts a capture session.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// IdentityProvider issues and refreshes bearer sessions.
type IdentityProvider interface {
	CurrentSession(ctx context.Context) (*domain.Session, error)
	RefreshSession(ctx context.Context) (*domain.Session, error)
	SendCode(ctx context.Context, phone string) error
	VerifyCode(ctx context.Context, phone string, code string) (*domain.Session, error)
	OAuthURL(provider string) (string, error)
	ExchangeOAuthCode(ctx context.Context, code string) (*domain.Session, error)
	SignOut(ctx context.Context) error
}

// Uploader sends one finalized recording to the voice-agent backend.
type Uploader interface {
	Upload(ctx context.Context, audio domain.AudioBlob, cred domain.Credential) (domain.UploadResult, error)
}

// StreamingConfig describes provider-agnostic live preview settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
}

// StreamingSession is an active live preview session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts live preview sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// EventSink receives presentation updates.
type EventSink interface {
	StateChanged(state domain.State)
}

// ActivityRecorder keeps a record of finished recording cycles.
type ActivityRecorder interface {
	RecordCycle(ctx context.Context, cycle domain.Cycle) error
}

// CycleObserver is told about recording lifecycle milestones.
type CycleObserver interface {
	RecordingStarted()
	CycleFinished(cycle domain.Cycle)
}

// ErrorReporter forwards unexpected failures to an error tracker.
type ErrorReporter interface {
	Report(err error, tags map[string]string)
}
