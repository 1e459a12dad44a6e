package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"callstack/internal/config"
	"callstack/internal/domain"
)

const (
	RetentionEphemeral  = "ephemeral"
	RetentionSession    = "session"
	RetentionPersistent = "persistent"
)

// Entry is one finished recording cycle as kept in the local log.
type Entry struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     time.Time
	AudioBytes     int
	Outcome        string
	FailureMessage string
	Transcript     string
	Intent         string
	ActionResult   string
}

// Store keeps finished cycles in SQLite. With ephemeral retention nothing is
// kept; session retention lives in memory for the life of the process.
type Store struct {
	db    *sql.DB
	cfg   config.ActivityConfig
	log   *slog.Logger
	clock func() time.Time
}

func Open(ctx context.Context, cfg config.ActivityConfig, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{cfg: cfg, log: log, clock: time.Now}

	var dsn string
	switch cfg.RetentionMode {
	case RetentionEphemeral, "":
		return s, nil
	case RetentionSession:
		dsn = ":memory:"
	case RetentionPersistent:
		if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("create activity dir: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	default:
		return nil, fmt.Errorf("unknown activity retention mode %q", cfg.RetentionMode)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s.db = db

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.Prune(ctx); err != nil {
		log.Warn("activity prune on start failed", slog.String("error", err.Error()))
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS cycles (
    id TEXT PRIMARY KEY,
    started_at INTEGER NOT NULL,
    finished_at INTEGER NOT NULL,
    audio_bytes INTEGER NOT NULL DEFAULT 0,
    outcome TEXT NOT NULL,
    failure_message TEXT NOT NULL DEFAULT '',
    transcript TEXT NOT NULL DEFAULT '',
    intent TEXT NOT NULL DEFAULT '',
    action_result TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_cycles_finished ON cycles(finished_at);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init activity schema: %w", err)
	}
	return nil
}

// Enabled reports whether cycles are being kept.
func (s *Store) Enabled() bool { return s.db != nil }

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordCycle satisfies ports.ActivityRecorder.
func (s *Store) RecordCycle(ctx context.Context, cycle domain.Cycle) error {
	if s.db == nil {
		return nil
	}
	entry := entryFromCycle(cycle)
	if entry.FinishedAt.IsZero() {
		entry.FinishedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cycles(id, started_at, finished_at, audio_bytes, outcome, failure_message, transcript, intent, action_result)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		entry.ID, entry.StartedAt.UnixMilli(), entry.FinishedAt.UnixMilli(), entry.AudioBytes, entry.Outcome,
		entry.FailureMessage, entry.Transcript, entry.Intent, entry.ActionResult)
	if err != nil {
		return fmt.Errorf("record cycle: %w", err)
	}
	s.log.Debug("cycle recorded", "cycle_id", entry.ID, "outcome", entry.Outcome)
	return nil
}

// List returns up to limit cycles, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, audio_bytes, outcome, failure_message, transcript, intent, action_result
		 FROM cycles ORDER BY finished_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var started, finished int64
		if err := rows.Scan(&e.ID, &started, &finished, &e.AudioBytes, &e.Outcome, &e.FailureMessage, &e.Transcript, &e.Intent, &e.ActionResult); err != nil {
			return nil, err
		}
		e.StartedAt = time.UnixMilli(started)
		e.FinishedAt = time.UnixMilli(finished)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune drops cycles older than the retention window and beyond the row cap.
func (s *Store) Prune(ctx context.Context) (err error) {
	if s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM cycles WHERE finished_at < ?`, cutoff.UnixMilli()); err != nil {
			return err
		}
	}
	if s.cfg.MaxCycles > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM cycles WHERE id IN (
			SELECT id FROM cycles ORDER BY finished_at DESC, rowid DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxCycles)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func entryFromCycle(cycle domain.Cycle) Entry {
	entry := Entry{
		ID:         cycle.ID,
		StartedAt:  cycle.StartedAt,
		FinishedAt: cycle.FinishedAt,
		AudioBytes: cycle.AudioBytes,
		Outcome:    cycle.Outcome(),
	}
	if cycle.Failure != nil {
		entry.FailureMessage = cycle.Failure.Message
	}
	if result := cycle.Result; result != nil {
		if result.Transcript != nil {
			entry.Transcript = *result.Transcript
		}
		if result.ActionResult != nil {
			entry.ActionResult = *result.ActionResult
		}
		if result.Intent != nil {
			if encoded, err := json.Marshal(result.Intent); err == nil {
				entry.Intent = string(encoded)
			}
		}
	}
	return entry
}
