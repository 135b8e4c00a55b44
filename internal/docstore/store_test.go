package docstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{"documents", "changes", "cursors", "tasks", "processing_state", "backfill_pages"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_KeepsDataAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	if err := s1.Set(ctx, "posts/a", map[string]any{"input": "x"}); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	snap, err := s2.Get(ctx, "posts/a")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if !snap.Exists || snap.Data["input"] != "x" {
		t.Errorf("snapshot after reopen = %+v", snap)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := s.db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
	s.Close()

	if _, err := Open(path); err == nil {
		t.Error("expected error opening database with newer schema version")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestOpen_ConnectionSettings(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		got, err := s.pragma(ctx, tt.name)
		if err != nil {
			t.Fatalf("PRAGMA %s: %v", tt.name, err)
		}
		if got != tt.expected {
			t.Errorf("PRAGMA %s = %q, want %q", tt.name, got, tt.expected)
		}
	}
}

func TestOptions(t *testing.T) {
	clock := newManualClock()
	policy := fastRetry(2)

	s := setupTestStore(t, WithRetryPolicy(policy), WithClock(clock.Now), WithPollInterval(DefaultPollInterval/2))

	if s.RetryPolicy() != policy {
		t.Errorf("RetryPolicy() = %+v, want %+v", s.RetryPolicy(), policy)
	}
	if s.pollInterval != DefaultPollInterval/2 {
		t.Errorf("pollInterval = %v", s.pollInterval)
	}
	if s.nowMillis() != clock.Now().UnixMilli() {
		t.Errorf("nowMillis() = %d, want %d", s.nowMillis(), clock.Now().UnixMilli())
	}
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		path       string
		collection string
		id         string
		wantErr    bool
	}{
		{path: "posts/a", collection: "posts", id: "a"},
		{path: "users/u1/posts/p9", collection: "users/u1/posts", id: "p9"},
		{path: "posts", wantErr: true},
		{path: "posts/", wantErr: true},
		{path: "/a", wantErr: true},
		{path: "", wantErr: true},
		{path: "a//b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			collection, id, err := SplitPath(tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("SplitPath(%q) expected error", tt.path)
				}
				return
			}
			if err != nil {
				t.Fatalf("SplitPath(%q) failed: %v", tt.path, err)
			}
			if collection != tt.collection || id != tt.id {
				t.Errorf("SplitPath(%q) = (%q, %q), want (%q, %q)", tt.path, collection, id, tt.collection, tt.id)
			}
			if Join(collection, id) != tt.path {
				t.Errorf("Join round trip = %q", Join(collection, id))
			}
		})
	}
}
