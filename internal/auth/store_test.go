package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"callstack/internal/domain"
)

func TestStoreRoundTripAndClear(t *testing.T) {
	t.Parallel()

	store := NewStore(filepath.Join(t.TempDir(), "nested", "session.yaml"))

	session, err := store.Load()
	if err != nil || session != nil {
		t.Fatalf("expected no session before save, got %+v err=%v", session, err)
	}

	expires := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := store.Save(domain.Session{AccessToken: "tok", UserID: "u1", Phone: "+15550001111", ExpiresAt: expires}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	info, err := os.Stat(store.Path())
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected private session file, got %v", info.Mode().Perm())
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.AccessToken != "tok" || loaded.UserID != "u1" || !loaded.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected session: %+v", loaded)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("second clear should be a no-op: %v", err)
	}
	if session, _ := store.Load(); session != nil {
		t.Fatalf("expected no session after clear")
	}
}

func TestStoreLoadRejectsCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "session.yaml")
	if err := os.WriteFile(path, []byte("access_token: [unterminated"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := NewStore(path).Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}
