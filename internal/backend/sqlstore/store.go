// Package sqlstore is the SQLite implementation of the task backend. Every
// committed write is diffed against the last published snapshot and the
// differences are published as change events, so local writes and writes
// from other processes reach subscribers the same way.
package sqlstore

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/twiced-technology-gmbh/taskboard/internal/backend"
	"github.com/twiced-technology-gmbh/taskboard/internal/feed"
	"github.com/twiced-technology-gmbh/taskboard/internal/logging"
)

//go:embed schema.sql
var schemaSQL string

const (
	maxRetries  = 5
	initialWait = 50 * time.Millisecond
	busyTimeout = 5 * time.Second
)

// Store implements backend.Backend, backend.RoleStore and board.ActivityLog
// on one SQLite database file.
type Store struct {
	db   *sql.DB
	hub  *feed.Hub
	now  func() time.Time
	log  zerolog.Logger
	path string

	busyTimeout time.Duration

	// mu serializes writes with the snapshot diff that publishes them.
	mu       sync.Mutex
	snapshot map[string]map[string]json.RawMessage
}

var _ backend.Backend = (*Store)(nil)
var _ backend.RoleStore = (*Store)(nil)
var _ backend.ScopeMatcher = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now for timestamps the store assigns.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithBusyTimeout sets how long SQLite waits on a locked database before a
// statement fails with SQLITE_BUSY. Writes that still fail are retried.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *Store) { s.busyTimeout = d }
}

// Open opens or creates the database at path and applies the schema.
// Changes are published to hub; hub may be nil.
func Open(ctx context.Context, path string, hub *feed.Hub, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	s := &Store{
		hub:         hub,
		now:         time.Now,
		log:         logging.Component("sqlstore"),
		path:        path,
		busyTimeout: busyTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(ON)",
		path, s.busyTimeout.Milliseconds())
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer; SQLite serializes writes anyway and this keeps
	// pragmas and transactions on a single connection.
	conn.SetMaxOpenConns(1)
	s.db = conn

	if err := s.pingWithRetry(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.takeSnapshot(ctx)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	s.snapshot = snap
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) pingWithRetry(ctx context.Context) error {
	wait := initialWait
	var err error
	for i := range maxRetries {
		if err = s.db.PingContext(ctx); err == nil {
			return nil
		}
		if i < maxRetries-1 {
			time.Sleep(wait)
			wait *= 2
		}
	}
	return fmt.Errorf("connecting to database after %d attempts: %w", maxRetries, err)
}

// write runs fn in a transaction and publishes the resulting changes.
// A transaction that fails with SQLITE_BUSY is retried from the start.
func (s *Store) write(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.retryBusy(ctx, func() error { return s.writeOnce(ctx, fn) }); err != nil {
		return err
	}
	if err := s.syncLocked(ctx); err != nil {
		// The write itself succeeded; subscribers catch up on the next sync.
		s.log.Warn().Err(err).Msg("publishing changes")
	}
	return nil
}

func (s *Store) writeOnce(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// retryBusy runs fn until it succeeds, fails with anything but SQLITE_BUSY,
// or maxRetries attempts are used. The wait doubles after each attempt.
func (s *Store) retryBusy(ctx context.Context, fn func() error) error {
	wait := initialWait
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil || !IsBusyError(err) || attempt == maxRetries {
			return err
		}
		s.log.Debug().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("database busy, retrying")
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(wait):
		}
		wait *= 2
	}
}

// Sync publishes every change made since the last sync, including writes
// of other processes. It is safe to call at any time.
func (s *Store) Sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncLocked(ctx)
}

func (s *Store) syncLocked(ctx context.Context) error {
	next, err := s.takeSnapshot(ctx)
	if err != nil {
		return err
	}
	var events []feed.Event
	for _, entity := range []string{feed.EntityTasks, feed.EntityRoleAssignments} {
		events = append(events, diff(entity, s.snapshot[entity], next[entity])...)
	}
	s.snapshot = next

	if s.hub == nil {
		return nil
	}
	for _, ev := range events {
		s.hub.Publish(ev)
	}
	if len(events) > 0 {
		s.log.Debug().Int("events", len(events)).Msg("published changes")
	}
	return nil
}

func (s *Store) takeSnapshot(ctx context.Context) (map[string]map[string]json.RawMessage, error) {
	tasks, err := s.queryTasks(ctx, s.db)
	if err != nil {
		return nil, err
	}
	roles, err := s.FetchRoleAssignments(ctx)
	if err != nil {
		return nil, err
	}
	snap := map[string]map[string]json.RawMessage{
		feed.EntityTasks:           make(map[string]json.RawMessage, len(tasks)),
		feed.EntityRoleAssignments: make(map[string]json.RawMessage, len(roles)),
	}
	for _, t := range tasks {
		row, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		snap[feed.EntityTasks][t.ID] = row
	}
	for _, r := range roles {
		row, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		snap[feed.EntityRoleAssignments][r.ID] = row
	}
	return snap, nil
}

// diff returns insert, update and delete events turning prev into next.
// Events are ordered by id within each kind.
func diff(entity string, prev, next map[string]json.RawMessage) []feed.Event {
	var inserts, updates, deletes []feed.Event
	for id, row := range next {
		old, ok := prev[id]
		switch {
		case !ok:
			inserts = append(inserts, feed.Event{Type: feed.Insert, Entity: entity, ID: id, New: row})
		case !bytes.Equal(old, row):
			updates = append(updates, feed.Event{Type: feed.Update, Entity: entity, ID: id, New: row, Old: old})
		}
	}
	for id, old := range prev {
		if _, ok := next[id]; !ok {
			deletes = append(deletes, feed.Event{Type: feed.Delete, Entity: entity, ID: id, Old: old})
		}
	}
	byID := func(a, b feed.Event) int { return strings.Compare(a.ID, b.ID) }
	slices.SortFunc(inserts, byID)
	slices.SortFunc(updates, byID)
	slices.SortFunc(deletes, byID)
	return slices.Concat(inserts, updates, deletes)
}

// IsBusyError reports whether err is SQLITE_BUSY.
func IsBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xff == sqlite3.SQLITE_BUSY
	}
	return false
}

// IsConstraintError reports whether err is a constraint violation.
func IsConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}

func nullString(p *string) sql.NullString {
	if p == nil || *p == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
