package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"callstack/internal/activity"
	"callstack/internal/domain"
	"callstack/internal/usecase"
)

func strPtr(v string) *string { return &v }

func TestResultShowsTranscriptIntentAndContext(t *testing.T) {
	t.Parallel()

	count := 4
	view := usecase.Render(domain.State{
		Phase: domain.PhaseDisplaying,
		Result: &domain.UploadResult{
			Transcript:           strPtr("deploy staging"),
			Intent:               &domain.Intent{Type: "run_task", ProjectName: "api"},
			ActionResult:         strPtr("Task queued"),
			ContextProjectsCount: &count,
		},
	})

	var buf bytes.Buffer
	NewFormatter(&buf).Result(view)
	out := buf.String()

	for _, want := range []string{"Transcript: deploy staging", "Intent: run_task (api)", "Task queued", "Context: 4 projects loaded"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestResultShowsFailureMessage(t *testing.T) {
	t.Parallel()

	view := usecase.Render(domain.State{
		Phase:   domain.PhaseFailed,
		Failure: &domain.Failure{Kind: domain.FailureBackendRejected, Message: "invalid token"},
	})

	var buf bytes.Buffer
	NewFormatter(&buf).Result(view)
	if got := buf.String(); got != "❌ Error: invalid token\n" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestResultWithEmptyPayload(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewFormatter(&buf).Result(usecase.Render(domain.State{Phase: domain.PhaseDisplaying, Result: &domain.UploadResult{}}))
	if got := buf.String(); got != "📝 Transcript: —\n" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestStatePrintsListeningAndProcessing(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	f := NewFormatter(&buf)
	f.State(usecase.Render(domain.State{Phase: domain.PhaseRecording, Partial: "deploy"}))
	f.State(usecase.Render(domain.State{Phase: domain.PhaseProcessing}))
	f.State(usecase.Render(domain.State{Phase: domain.PhaseIdle}))

	if got := buf.String(); got != "🎙️  Listening... deploy\n⏳ Processing...\n" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestHistoryRendersMissingFields(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	end := start.Add(95 * time.Second)
	sessions := []domain.CallSession{
		{ID: "s1", StartedAt: start, EndedAt: &end, PhoneNumber: strPtr("+15551234567"), Transcript: strPtr("add a task"), CommandsExecuted: strPtr("create_task")},
		{ID: "s2", StartedAt: start},
	}

	var buf bytes.Buffer
	NewFormatter(&buf).History(sessions)
	out := buf.String()

	for _, want := range []string{"95s  +15551234567", "Transcript: add a task", "Commands: create_task", "ongoing  —", "Transcript: —"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestDashboardAndEmptyLists(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	f := NewFormatter(&buf)
	f.Dashboard(domain.Dashboard{
		Projects: []domain.Project{{Name: "api", Status: "active", TotalTasks: 3, PendingTasks: 1, InProgressTasks: 1, CompletedTasks: 1}},
		Tasks:    []domain.Task{{Description: "deploy staging", Status: "pending", VoiceCommand: strPtr("deploy staging")}},
	})
	f.History(nil)
	f.Activity(nil)
	out := buf.String()

	for _, want := range []string{"api [active] 3 tasks: 1 pending, 1 in progress, 1 completed", "[pending] deploy staging 🎙️", "No calls yet", "Nothing recorded"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestActivityPrefersFailureMessage(t *testing.T) {
	t.Parallel()

	finished := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	NewFormatter(&buf).Activity([]activity.Entry{
		{ID: "c1", StartedAt: finished.Add(-65 * time.Second), FinishedAt: finished, Outcome: "backend_rejected", FailureMessage: "invalid token", Transcript: "ignored"},
	})
	out := buf.String()
	if !strings.Contains(out, "backend_rejected") || !strings.Contains(out, "1m05s  invalid token") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input time.Duration
		want  string
	}{
		{-time.Second, "0s"},
		{42 * time.Second, "42s"},
		{3*time.Minute + 7*time.Second, "3m07s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h02m03s"},
	}
	for _, tc := range cases {
		if got := formatDuration(tc.input); got != tc.want {
			t.Fatalf("formatDuration(%v) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
