package docstore

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is stored in PRAGMA user_version.
const schemaVersion = 1

// DefaultPollInterval is how often watchers look for changes committed by
// other processes sharing the database file.
const DefaultPollInterval = 250 * time.Millisecond

// Store provides durable storage for documents, their change log, and the
// task queue. Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db           *sql.DB
	retry        RetryPolicy
	now          func() time.Time
	pollInterval time.Duration

	// commits is closed and replaced after every committed mutation so
	// in-process watchers wake without waiting for the poll interval.
	mu      sync.Mutex
	commits chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithRetryPolicy sets the transaction retry budget.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Store) {
		s.retry = p
	}
}

// WithClock replaces the wall clock used for timestamps, task availability
// and leases.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithPollInterval sets how often watchers poll for changes made by other
// processes.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) {
		s.pollInterval = d
	}
}

// Open opens the database at path, creating it when missing, and brings
// its schema to the current version.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One connection: SQLite allows a single writer and the commit signal
	// assumes writes are serialized.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize %s: %w", path, err)
	}

	s := &Store{
		db:           db,
		retry:        DefaultRetryPolicy(),
		now:          time.Now,
		pollInterval: DefaultPollInterval,
		commits:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// dsn carries the connection settings as go-sqlite3 URI parameters so
// they apply to every connection the pool opens. _txlock=immediate makes
// BeginTx take the write lock up front.
func dsn(path string) string {
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_synchronous", "NORMAL")
	params.Set("_busy_timeout", "5000")
	params.Set("_foreign_keys", "on")
	params.Set("_txlock", "immediate")
	return "file:" + path + "?" + params.Encode()
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the connection pool. Tests use it to install triggers.
func (s *Store) DB() *sql.DB {
	return s.db
}

// RetryPolicy returns the transaction retry budget in effect.
func (s *Store) RetryPolicy() RetryPolicy {
	return s.retry
}

// committed wakes everything waiting on the current commit channel.
func (s *Store) committed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.commits)
	s.commits = make(chan struct{})
}

// commitSignal returns a channel that is closed on the next commit.
func (s *Store) commitSignal() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

func (s *Store) nowMillis() int64 {
	return s.now().UnixMilli()
}

// migrate applies schema.sql and records the schema version. A database
// written by a newer release is refused.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	switch {
	case version > schemaVersion:
		return fmt.Errorf("schema version %d is newer than %d", version, schemaVersion)
	case version == schemaVersion:
		return nil
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion))
	return err
}

func (s *Store) pragma(ctx context.Context, name string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "PRAGMA "+name).Scan(&v)
	return v, err
}
