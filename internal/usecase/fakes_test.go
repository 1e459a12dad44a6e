package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"callstack/internal/domain"
	"callstack/internal/ports"
)

type fakeAudioCapture struct {
	mu       sync.Mutex
	sessions []*fakeAudioSession
	err      error
	calls    int
}

func (f *fakeAudioCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.sessions) == 0 {
		return nil, errors.New("no audio session configured")
	}
	session := f.sessions[0]
	f.sessions = f.sessions[1:]
	return session, nil
}

func (f *fakeAudioCapture) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeAudioSession hands out queued fragments, then blocks until Stop and reports io.EOF.
type fakeAudioSession struct {
	mu        sync.Mutex
	queued    [][]byte
	nextErr   error
	stopped   chan struct{}
	stopOnce  sync.Once
	stopCalls int
	stopErr   error
}

func newFakeAudioSession(fragments ...string) *fakeAudioSession {
	session := &fakeAudioSession{stopped: make(chan struct{})}
	for _, fragment := range fragments {
		session.queued = append(session.queued, []byte(fragment))
	}
	return session
}

func (f *fakeAudioSession) Next(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	if len(f.queued) > 0 {
		fragment := f.queued[0]
		f.queued = f.queued[1:]
		f.mu.Unlock()
		return fragment, nil
	}
	nextErr := f.nextErr
	f.mu.Unlock()

	if nextErr != nil {
		return nil, nextErr
	}

	select {
	case <-f.stopped:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeAudioSession) Stop() error {
	f.mu.Lock()
	f.stopCalls++
	f.mu.Unlock()
	f.stopOnce.Do(func() { close(f.stopped) })
	return f.stopErr
}

func (f *fakeAudioSession) Finalize(fragments [][]byte) (domain.AudioBlob, error) {
	return domain.AudioBlob{
		Data:     bytes.Join(fragments, nil),
		MIMEType: "audio/webm",
		Filename: "audio.webm",
	}, nil
}

func (f *fakeAudioSession) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

type fakeIdentity struct {
	mu           sync.Mutex
	tokens       []string
	refreshErr   error
	refreshCalls int
}

func (f *fakeIdentity) CurrentSession(_ context.Context) (*domain.Session, error) {
	return &domain.Session{AccessToken: "cached", UserID: "user-1"}, nil
}

func (f *fakeIdentity) RefreshSession(_ context.Context) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	if len(f.tokens) == 0 {
		return &domain.Session{}, nil
	}
	token := f.tokens[0]
	f.tokens = f.tokens[1:]
	return &domain.Session{AccessToken: token, ExpiresAt: time.Now().Add(time.Hour), UserID: "user-1"}, nil
}

func (f *fakeIdentity) SendCode(_ context.Context, _ string) error { return nil }

func (f *fakeIdentity) VerifyCode(_ context.Context, _ string, _ string) (*domain.Session, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeIdentity) OAuthURL(_ string) (string, error) { return "", errors.New("not implemented") }

func (f *fakeIdentity) ExchangeOAuthCode(_ context.Context, _ string) (*domain.Session, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeIdentity) SignOut(_ context.Context) error { return nil }

func (f *fakeIdentity) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

type fakeUploader struct {
	mu      sync.Mutex
	result  domain.UploadResult
	err     error
	release chan struct{}
	blobs   []domain.AudioBlob
	creds   []domain.Credential
}

func (f *fakeUploader) Upload(ctx context.Context, audio domain.AudioBlob, cred domain.Credential) (domain.UploadResult, error) {
	f.mu.Lock()
	f.blobs = append(f.blobs, audio)
	f.creds = append(f.creds, cred)
	release := f.release
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return domain.UploadResult{}, ctx.Err()
		}
	}
	return f.result, f.err
}

func (f *fakeUploader) snapshot() ([]domain.AudioBlob, []domain.Credential) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.AudioBlob(nil), f.blobs...), append([]domain.Credential(nil), f.creds...)
}

type fakeEventSink struct {
	mu     sync.Mutex
	states []domain.State
}

func (f *fakeEventSink) StateChanged(state domain.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, state)
}

func (f *fakeEventSink) phases() []domain.Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Phase, 0, len(f.states))
	for _, state := range f.states {
		out = append(out, state.Phase)
	}
	return out
}

type fakeReporter struct {
	mu   sync.Mutex
	errs []error
	tags []map[string]string
}

func (f *fakeReporter) Report(err error, tags map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
	f.tags = append(f.tags, tags)
}

type fakeActivity struct {
	mu     sync.Mutex
	cycles []domain.Cycle
	err    error
}

func (f *fakeActivity) RecordCycle(_ context.Context, cycle domain.Cycle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cycles = append(f.cycles, cycle)
	return f.err
}

type fakeObserver struct {
	mu       sync.Mutex
	started  int
	finished []domain.Cycle
}

func (f *fakeObserver) RecordingStarted() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
}

func (f *fakeObserver) CycleFinished(cycle domain.Cycle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, cycle)
}

type fakeProvider struct {
	sessions []ports.StreamingSession
	err      error
	calls    int
}

func (f *fakeProvider) StartStreaming(_ context.Context, _ ports.StreamingConfig) (ports.StreamingSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.sessions) {
		return nil, errors.New("no stream session configured")
	}
	session := f.sessions[f.calls]
	f.calls++
	return session, nil
}

type fakeStreamingSession struct {
	mu         sync.Mutex
	events     chan domain.TranscriptEvent
	sent       [][]byte
	sendErr    error
	waitErr    error
	closeSend  int
	closeCalls int
	closed     bool
}

func newFakeStreamingSession() *fakeStreamingSession {
	return &fakeStreamingSession{events: make(chan domain.TranscriptEvent, 16)}
}

func (f *fakeStreamingSession) SendAudio(chunk []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), chunk...))
	return nil
}

func (f *fakeStreamingSession) CloseSend() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeSend++
	if !f.closed {
		close(f.events)
		f.closed = true
	}
	return nil
}

func (f *fakeStreamingSession) Events() <-chan domain.TranscriptEvent { return f.events }

func (f *fakeStreamingSession) Wait() error {
	time.Sleep(5 * time.Millisecond)
	return f.waitErr
}

func (f *fakeStreamingSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	if !f.closed {
		close(f.events)
		f.closed = true
	}
	return nil
}

type blockingWaitStream struct {
	done       chan struct{}
	waitErr    error
	closeCalls int
}

func (s *blockingWaitStream) SendAudio(_ []byte) error { return nil }
func (s *blockingWaitStream) CloseSend() error         { return nil }
func (s *blockingWaitStream) Events() <-chan domain.TranscriptEvent {
	ch := make(chan domain.TranscriptEvent)
	close(ch)
	return ch
}
func (s *blockingWaitStream) Wait() error {
	<-s.done
	return s.waitErr
}
func (s *blockingWaitStream) Close() error {
	s.closeCalls++
	close(s.done)
	return nil
}

func waitForPhase(controller *VoiceController, want domain.Phase) bool {
	return eventually(func() bool { return controller.Status().Phase == want })
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return false
}

func strPtr(value string) *string { return &value }

func intPtr(value int) *int { return &value }

// stalledStream accepts no audio until it is closed.
type stalledStream struct {
	closeOnce sync.Once
	closed    chan struct{}
	events    chan domain.TranscriptEvent
}

func newStalledStream() *stalledStream {
	return &stalledStream{closed: make(chan struct{}), events: make(chan domain.TranscriptEvent)}
}

func (s *stalledStream) SendAudio(_ []byte) error {
	<-s.closed
	return errors.New("session closed")
}

func (s *stalledStream) CloseSend() error { return nil }

func (s *stalledStream) Events() <-chan domain.TranscriptEvent { return s.events }

func (s *stalledStream) Wait() error {
	<-s.closed
	return nil
}

func (s *stalledStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		close(s.events)
	})
	return nil
}
