package usecase

import (
	"callstack/internal/domain"
)

// EventKind identifies an input to the presentation state machine.
type EventKind string

const (
	EventStartRequested    EventKind = "start_requested"
	EventCaptureStarted    EventKind = "capture_started"
	EventCaptureFailed     EventKind = "capture_failed"
	EventStopRequested     EventKind = "stop_requested"
	EventCycleSucceeded    EventKind = "cycle_succeeded"
	EventCycleFailed       EventKind = "cycle_failed"
	EventCaptureAborted    EventKind = "capture_aborted"
	EventPartialTranscript EventKind = "partial_transcript"
)

// Event is one user gesture or I/O completion.
type Event struct {
	Kind   EventKind
	Result domain.UploadResult
	Err    error
	Text   string
}

// Effect is a side effect the controller must carry out after a transition.
type Effect string

const (
	EffectAcquireDevice     Effect = "acquire_device"
	EffectReleaseDevice     Effect = "release_device"
	EffectRefreshCredential Effect = "refresh_credential"
	EffectUpload            Effect = "upload"
)

// Transition computes the next presentation state. It has no side effects of its own;
// a non-nil error means the event was rejected and state is returned unchanged.
func Transition(state domain.State, event Event) (domain.State, []Effect, error) {
	switch event.Kind {
	case EventStartRequested:
		switch state.Phase {
		case domain.PhaseRecording:
			return state, nil, domain.ErrAlreadyRecording
		case domain.PhaseProcessing:
			return state, nil, domain.ErrUploadInProgress
		}
		return state, []Effect{EffectAcquireDevice}, nil

	case EventCaptureStarted:
		if state.Phase == domain.PhaseRecording || state.Phase == domain.PhaseProcessing {
			return state, nil, nil
		}
		return domain.State{Phase: domain.PhaseRecording}, nil, nil

	case EventCaptureFailed:
		if state.Phase == domain.PhaseRecording || state.Phase == domain.PhaseProcessing {
			return state, nil, nil
		}
		failure := domain.FailureFrom(event.Err)
		return domain.State{Phase: domain.PhaseIdle, Notice: failure.Message}, []Effect{EffectReleaseDevice}, nil

	case EventStopRequested:
		if state.Phase != domain.PhaseRecording {
			return state, nil, nil
		}
		return domain.State{Phase: domain.PhaseProcessing}, []Effect{EffectReleaseDevice, EffectRefreshCredential, EffectUpload}, nil

	case EventCycleSucceeded:
		if state.Phase != domain.PhaseProcessing {
			return state, nil, nil
		}
		result := event.Result
		return domain.State{Phase: domain.PhaseDisplaying, Result: &result}, nil, nil

	case EventCycleFailed:
		if state.Phase != domain.PhaseProcessing {
			return state, nil, nil
		}
		failure := domain.FailureFrom(event.Err)
		return domain.State{Phase: domain.PhaseFailed, Failure: &failure}, nil, nil

	case EventCaptureAborted:
		if state.Phase != domain.PhaseRecording {
			return state, nil, domain.ErrNotRecording
		}
		return domain.State{Phase: domain.PhaseIdle}, []Effect{EffectReleaseDevice}, nil

	case EventPartialTranscript:
		if state.Phase != domain.PhaseRecording {
			return state, nil, nil
		}
		state.Partial = event.Text
		return state, nil, nil
	}

	return state, nil, nil
}

// View is the rendered form of a presentation state.
type View struct {
	Status       string `json:"status"`
	Busy         bool   `json:"busy"`
	Recording    bool   `json:"recording"`
	Partial      string `json:"partial,omitempty"`
	Transcript   string `json:"transcript,omitempty"`
	IntentType   string `json:"intentType,omitempty"`
	ProjectName  string `json:"projectName,omitempty"`
	ActionResult string `json:"actionResult,omitempty"`
	Context      string `json:"context,omitempty"`
	Error        string `json:"error,omitempty"`
	ErrorKind    string `json:"errorKind,omitempty"`
}

// Render derives what the user sees from a state.
func Render(state domain.State) View {
	view := View{Status: "Tap to Speak"}
	switch state.Phase {
	case domain.PhaseRecording:
		view.Status = "Listening..."
		view.Recording = true
		view.Partial = state.Partial
	case domain.PhaseProcessing:
		view.Status = "Processing..."
		view.Busy = true
	case domain.PhaseDisplaying:
		if result := state.Result; result != nil {
			if result.Transcript != nil {
				view.Transcript = *result.Transcript
			}
			if result.Intent != nil {
				view.IntentType = result.Intent.Type
				view.ProjectName = result.Intent.ProjectName
			}
			if result.ActionResult != nil {
				view.ActionResult = *result.ActionResult
			}
			view.Context = result.ContextSummary()
		}
	case domain.PhaseFailed:
		if state.Failure != nil {
			view.Error = state.Failure.Message
			view.ErrorKind = string(state.Failure.Kind)
		}
	case domain.PhaseIdle:
		view.Error = state.Notice
	}
	return view
}
