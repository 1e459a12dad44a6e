package domain

import (
	"fmt"
	"time"
)

// Phase models the voice capture lifecycle shown to the user.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseRecording  Phase = "recording"
	PhaseProcessing Phase = "processing"
	PhaseDisplaying Phase = "displaying"
	PhaseFailed     Phase = "failed"
)

// State is the single presentation state owned by the voice controller.
// Result is set only while Displaying and Failure only while Failed.
type State struct {
	Phase   Phase         `json:"phase"`
	Result  *UploadResult `json:"result,omitempty"`
	Failure *Failure      `json:"failure,omitempty"`
	Notice  string        `json:"notice,omitempty"`
	Partial string        `json:"partial,omitempty"`
}

// Intent is the backend's structured reading of the spoken request.
type Intent struct {
	Type            string         `json:"intent"`
	ProjectName     string         `json:"project_name,omitempty"`
	TaskDescription string         `json:"task_description,omitempty"`
	Attributes      map[string]any `json:"parameters,omitempty"`
}

// UploadResult is produced once per successful upload and never mutated afterwards.
type UploadResult struct {
	Transcript           *string `json:"transcript,omitempty"`
	Intent               *Intent `json:"intent,omitempty"`
	ActionResult         *string `json:"action_result,omitempty"`
	ContextProjectsCount *int    `json:"context_projects_count,omitempty"`
}

// ContextSummary renders the auxiliary context metadata, or "" when the backend sent none.
func (r UploadResult) ContextSummary() string {
	if r.ContextProjectsCount == nil {
		return ""
	}
	return fmt.Sprintf("Context: %d projects loaded", *r.ContextProjectsCount)
}

// AudioBlob is one finalized recording.
type AudioBlob struct {
	Data     []byte
	MIMEType string
	Filename string
}

// Credential is a bearer token borrowed from the identity provider for one upload.
type Credential struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Session is what the identity provider hands back after sign-in or refresh.
type Session struct {
	AccessToken  string    `yaml:"access_token"`
	RefreshToken string    `yaml:"refresh_token,omitempty"`
	ExpiresAt    time.Time `yaml:"expires_at"`
	UserID       string    `yaml:"user_id"`
	Phone        string    `yaml:"phone,omitempty"`
}

// Project is a dashboard row with task counts by status.
type Project struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Status          string `json:"status"`
	TotalTasks      int    `json:"total_tasks"`
	PendingTasks    int    `json:"pending_tasks"`
	InProgressTasks int    `json:"in_progress_tasks"`
	CompletedTasks  int    `json:"completed_tasks"`
}

// Task belongs to a project and may have been created by a voice command.
type Task struct {
	ID           string     `json:"id"`
	ProjectID    string     `json:"project_id"`
	Description  string     `json:"description"`
	Status       string     `json:"status"`
	VoiceCommand *string    `json:"voice_command"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at"`
}

// Dashboard is the per-user summary served by the backend.
type Dashboard struct {
	Projects []Project `json:"projects"`
	Tasks    []Task    `json:"tasks"`
}

// CallSession is one entry of the per-user call history.
type CallSession struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	PhoneNumber      *string    `json:"phone_number"`
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at"`
	Transcript       *string    `json:"transcript"`
	CommandsExecuted *string    `json:"commands_executed"`
}

// Duration renders the call length in whole seconds, or "ongoing" while it has no end.
func (s CallSession) Duration() string {
	if s.EndedAt == nil {
		return "ongoing"
	}
	return fmt.Sprintf("%ds", int(s.EndedAt.Sub(s.StartedAt).Round(time.Second)/time.Second))
}

// TranscriptKind identifies whether a live preview event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent is incremental live preview output.
type TranscriptEvent struct {
	Kind          TranscriptKind `json:"kind"`
	Text          string         `json:"text"`
	IsSpeechFinal bool           `json:"isSpeechFinal"`
}

// Cycle summarizes one finished record-and-upload round.
type Cycle struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	AudioBytes int
	Aborted    bool
	Result     *UploadResult
	Failure    *Failure
}

const (
	OutcomeSucceeded = "succeeded"
	OutcomeAborted   = "aborted"
)

// Outcome labels a finished cycle: succeeded, aborted, or the failure kind.
func (c Cycle) Outcome() string {
	switch {
	case c.Aborted:
		return OutcomeAborted
	case c.Failure != nil:
		return string(c.Failure.Kind)
	default:
		return OutcomeSucceeded
	}
}
