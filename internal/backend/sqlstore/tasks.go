package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/twiced-technology-gmbh/taskboard/internal/backend"
	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

const taskColumns = `id, title, description, status_id, responsible_id, coworker_ids, owner_id,
	due, priority, project_id, position, result, parent_id, completed_at, created_at, updated_at`

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// FetchTasks returns the tasks visible under scope, parents before their
// subtasks.
func (s *Store) FetchTasks(ctx context.Context, scope backend.Scope) ([]task.Task, error) {
	tasks, err := s.queryTasks(ctx, s.db)
	if err != nil {
		return nil, err
	}
	match, err := s.MatchScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(tasks, func(t task.Task) bool { return !match(t) }), nil
}

// MatchScope resolves the viewer's roles once and returns the predicate
// FetchTasks filters with.
func (s *Store) MatchScope(ctx context.Context, scope backend.Scope) (func(task.Task) bool, error) {
	projects, unrestricted, err := s.viewerProjects(ctx, scope.Viewer)
	if err != nil {
		return nil, err
	}
	viewable := func(projectID string) bool { return unrestricted || projects[projectID] }
	return func(t task.Task) bool { return scope.Match(t, viewable) }, nil
}

// viewerProjects returns the projects userID may view. A role without a
// project grants the whole board.
func (s *Store) viewerProjects(ctx context.Context, userID string) (map[string]bool, bool, error) {
	if userID == "" {
		return nil, true, nil
	}
	roles, err := s.FetchRoleAssignments(ctx)
	if err != nil {
		return nil, false, err
	}
	projects := make(map[string]bool)
	for _, r := range roles {
		if r.UserID != userID {
			continue
		}
		if r.ProjectID == nil {
			return nil, true, nil
		}
		projects[*r.ProjectID] = true
	}
	return projects, false, nil
}

func (s *Store) queryTasks(ctx context.Context, q queryer) ([]task.Task, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks
		ORDER BY parent_id IS NOT NULL, status_id, position, created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading tasks: %w", err)
	}
	return tasks, nil
}

func scanTask(rows *sql.Rows) (task.Task, error) {
	var (
		t                            task.Task
		responsible, project, parent sql.NullString
		coworkers                    string
		due, completed               sql.NullInt64
		created, updated             int64
	)
	err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.StatusID, &responsible, &coworkers, &t.OwnerID,
		&due, &t.Priority, &project, &t.Position, &t.Result, &parent, &completed, &created, &updated)
	if err != nil {
		return task.Task{}, fmt.Errorf("scanning task: %w", err)
	}
	if err := json.Unmarshal([]byte(coworkers), &t.CoworkerIDs); err != nil {
		return task.Task{}, fmt.Errorf("decoding coworkers of %s: %w", t.ID, err)
	}
	if len(t.CoworkerIDs) == 0 {
		t.CoworkerIDs = nil
	}
	t.ResponsibleID = stringPtr(responsible)
	t.ProjectID = stringPtr(project)
	t.ParentID = stringPtr(parent)
	t.Due = timePtr(due)
	t.CompletedAt = timePtr(completed)
	t.CreatedAt = fromNanos(created)
	t.UpdatedAt = fromNanos(updated)
	task.Normalize(&t)
	return t, nil
}

// GetTask returns one task.
func (s *Store) GetTask(ctx context.Context, id string) (task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	if err != nil {
		return task.Task{}, fmt.Errorf("querying task: %w", err)
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return task.Task{}, err
		}
		return task.Task{}, fmt.Errorf("task %s: %w", id, backend.ErrNotFound)
	}
	return scanTask(rows)
}

// CreateTask inserts t. A proposed ID is kept; otherwise one is generated.
func (s *Store) CreateTask(ctx context.Context, t task.Task) (task.Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := s.now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	task.Normalize(&t)
	coworkers, err := encodeIDs(t.CoworkerIDs)
	if err != nil {
		return task.Task{}, err
	}

	err = s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO tasks (`+taskColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.Title, t.Description, t.StatusID, nullString(t.ResponsibleID), coworkers, t.OwnerID,
			nullTime(t.Due), t.Priority, nullString(t.ProjectID), t.Position, t.Result, nullString(t.ParentID),
			nullTime(t.CompletedAt), t.CreatedAt.UnixNano(), t.UpdatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("inserting task %s: %w", t.ID, err)
		}
		return nil
	})
	if err != nil {
		return task.Task{}, err
	}
	return t, nil
}

// UpdateTask writes the patched fields of one task and bumps updated_at.
func (s *Store) UpdateTask(ctx context.Context, id string, p task.Patch) error {
	if p.Fields == 0 {
		return nil
	}
	v := p.Values.Clone()
	task.Normalize(&v)

	var (
		sets []string
		args []any
		err  error
	)
	p.Fields.Each(func(f task.Fields) {
		if err != nil {
			return
		}
		var val any
		val, err = columnValue(v, f)
		sets = append(sets, columnName(f)+" = ?")
		args = append(args, val)
	})
	if err != nil {
		return err
	}
	updated := v.UpdatedAt
	if updated.IsZero() {
		updated = s.now()
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, updated.UnixNano(), id)

	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
		if err != nil {
			return fmt.Errorf("updating task %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("task %s: %w", id, backend.ErrNotFound)
		}
		return nil
	})
}

// DeleteTask deletes one task and its subtasks. Deleting a missing task
// is not an error.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	return s.DeleteTasks(ctx, []string{id})
}

// DeleteTasks deletes tasks and their subtasks in one transaction.
func (s *Store) DeleteTasks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.write(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id IN (`+placeholders+`)`, args...); err != nil {
			return fmt.Errorf("deleting tasks: %w", err)
		}
		return nil
	})
}

func columnName(f task.Fields) string {
	return f.Names()[0]
}

func columnValue(t task.Task, f task.Fields) (any, error) {
	switch f {
	case task.FieldTitle:
		return t.Title, nil
	case task.FieldDescription:
		return t.Description, nil
	case task.FieldStatus:
		return t.StatusID, nil
	case task.FieldResponsible:
		return nullString(t.ResponsibleID), nil
	case task.FieldCoworkers:
		return encodeIDs(t.CoworkerIDs)
	case task.FieldDue:
		return nullTime(t.Due), nil
	case task.FieldPriority:
		return t.Priority, nil
	case task.FieldProject:
		return nullString(t.ProjectID), nil
	case task.FieldPosition:
		return t.Position, nil
	case task.FieldResult:
		return t.Result, nil
	case task.FieldParent:
		return nullString(t.ParentID), nil
	case task.FieldCompletedAt:
		return nullTime(t.CompletedAt), nil
	}
	return nil, errors.New("unknown field " + f.String())
}

func encodeIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encoding ids: %w", err)
	}
	return string(b), nil
}
