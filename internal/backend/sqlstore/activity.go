package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/twiced-technology-gmbh/taskboard/internal/board"
)

var _ board.ActivityLog = (*Store)(nil)

// Append stores activity entries. It does not publish change events.
func (s *Store) Append(ctx context.Context, entries ...board.ActivityEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.retryBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		for _, e := range entries {
			ts := e.Timestamp
			if ts.IsZero() {
				ts = s.now()
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO activity (task_id, type, field, old_value, new_value, actor_id, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`, e.TaskID, e.Type, e.Field, e.OldValue, e.NewValue, e.ActorID, ts.UnixNano())
			if err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("appending activity: %w", err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing activity: %w", err)
		}
		return nil
	})
}

// Recent returns the newest entries of a task, newest first. A limit of zero
// or less returns every entry.
func (s *Store) Recent(ctx context.Context, taskID string, limit int) ([]board.ActivityEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT task_id, type, field, old_value, new_value, actor_id, created_at
		FROM activity WHERE task_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying activity: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []board.ActivityEntry
	for rows.Next() {
		var (
			e  board.ActivityEntry
			ts int64
		)
		if err := rows.Scan(&e.TaskID, &e.Type, &e.Field, &e.OldValue, &e.NewValue, &e.ActorID, &ts); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		e.Timestamp = fromNanos(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// LastActivity returns the newest activity timestamp per task.
func (s *Store) LastActivity(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT task_id, MAX(created_at) FROM activity GROUP BY task_id`)
	if err != nil {
		return nil, fmt.Errorf("querying last activity: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]time.Time)
	for rows.Next() {
		var (
			id string
			ts sql.NullInt64
		)
		if err := rows.Scan(&id, &ts); err != nil {
			return nil, fmt.Errorf("scanning last activity: %w", err)
		}
		if ts.Valid {
			out[id] = fromNanos(ts.Int64)
		}
	}
	return out, rows.Err()
}
