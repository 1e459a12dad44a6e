package activity

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"callstack/internal/config"
	"callstack/internal/domain"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func strPtr(v string) *string { return &v }

func succeededCycle(id string, finished time.Time) domain.Cycle {
	return domain.Cycle{
		ID:         id,
		StartedAt:  finished.Add(-2 * time.Second),
		FinishedAt: finished,
		AudioBytes: 4096,
		Result: &domain.UploadResult{
			Transcript:   strPtr("deploy staging"),
			Intent:       &domain.Intent{Type: "run_task", ProjectName: "api"},
			ActionResult: strPtr("Task queued"),
		},
	}
}

func TestOpenEphemeralKeepsNothing(t *testing.T) {
	t.Parallel()

	store, err := Open(context.Background(), config.ActivityConfig{RetentionMode: RetentionEphemeral}, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if store.Enabled() {
		t.Fatalf("ephemeral store must not open a database")
	}
	if err := store.RecordCycle(context.Background(), succeededCycle("c1", time.Now())); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	entries, err := store.List(context.Background(), 10)
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected nothing kept, got %+v err=%v", entries, err)
	}
}

func TestRecordAndListPersistent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data", "activity.db")
	cfg := config.ActivityConfig{Path: path, RetentionMode: RetentionPersistent}
	store, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	now := time.Now()
	failed := domain.Cycle{
		ID:         "c2",
		StartedAt:  now.Add(-time.Second),
		FinishedAt: now,
		Failure:    &domain.Failure{Kind: domain.FailureBackendRejected, Message: "invalid token"},
	}
	for _, cycle := range []domain.Cycle{succeededCycle("c1", now.Add(-time.Minute)), failed} {
		if err := store.RecordCycle(context.Background(), cycle); err != nil {
			t.Fatalf("record %s: %v", cycle.ID, err)
		}
	}
	if err := store.RecordCycle(context.Background(), failed); err != nil {
		t.Fatalf("duplicate record should be ignored: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })

	entries, err := reopened.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != "c2" || entries[0].Outcome != string(domain.FailureBackendRejected) || entries[0].FailureMessage != "invalid token" {
		t.Fatalf("unexpected newest entry: %+v", entries[0])
	}
	first := entries[1]
	if first.Outcome != domain.OutcomeSucceeded || first.Transcript != "deploy staging" || first.ActionResult != "Task queued" {
		t.Fatalf("unexpected succeeded entry: %+v", first)
	}
	if first.Intent != `{"intent":"run_task","project_name":"api"}` {
		t.Fatalf("unexpected intent encoding: %s", first.Intent)
	}
	if first.FinishedAt.UnixMilli() != now.Add(-time.Minute).UnixMilli() {
		t.Fatalf("unexpected finish time: %v", first.FinishedAt)
	}
}

func TestSessionRetentionLivesInMemory(t *testing.T) {
	t.Parallel()

	store, err := Open(context.Background(), config.ActivityConfig{RetentionMode: RetentionSession}, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.RecordCycle(context.Background(), domain.Cycle{ID: "c1", Aborted: true}); err != nil {
		t.Fatalf("record: %v", err)
	}
	entries, err := store.List(context.Background(), 0)
	if err != nil || len(entries) != 1 || entries[0].Outcome != domain.OutcomeAborted {
		t.Fatalf("unexpected entries: %+v err=%v", entries, err)
	}
	if entries[0].FinishedAt.IsZero() {
		t.Fatalf("expected finish time filled from the clock")
	}
}

func TestPruneAppliesAgeAndCap(t *testing.T) {
	t.Parallel()

	store, err := Open(context.Background(), config.ActivityConfig{RetentionMode: RetentionSession, RetentionDays: 7, MaxCycles: 2}, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store.clock = func() time.Time { return now }

	cycles := []domain.Cycle{
		succeededCycle("old", now.Add(-10*24*time.Hour)),
		succeededCycle("a", now.Add(-3*time.Hour)),
		succeededCycle("b", now.Add(-2*time.Hour)),
		succeededCycle("c", now.Add(-1*time.Hour)),
	}
	for _, cycle := range cycles {
		if err := store.RecordCycle(context.Background(), cycle); err != nil {
			t.Fatalf("record %s: %v", cycle.ID, err)
		}
	}

	if err := store.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}
	entries, err := store.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "c" || entries[1].ID != "b" {
		t.Fatalf("expected the two newest cycles to survive, got %+v", entries)
	}
}

func TestOpenRejectsUnknownMode(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), config.ActivityConfig{RetentionMode: "forever"}, newLogger()); err == nil {
		t.Fatalf("expected error for unknown retention mode")
	}
}
