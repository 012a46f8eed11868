package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/twiced-technology-gmbh/taskboard/internal/backend"
	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

// FetchStatuses returns statuses ordered by position.
func (s *Store) FetchStatuses(ctx context.Context) ([]task.Status, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, color, position FROM statuses ORDER BY position, name`)
	if err != nil {
		return nil, fmt.Errorf("querying statuses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var statuses []task.Status
	for rows.Next() {
		var st task.Status
		if err := rows.Scan(&st.ID, &st.Name, &st.Color, &st.Position); err != nil {
			return nil, fmt.Errorf("scanning status: %w", err)
		}
		statuses = append(statuses, st)
	}
	return statuses, rows.Err()
}

// EnsureStatuses makes the stored statuses match the given names, colors and
// order. Statuses are matched by name; missing ones are created and existing
// ones keep their id. Statuses not listed are left alone.
func (s *Store) EnsureStatuses(ctx context.Context, statuses []task.Status) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		for i, st := range statuses {
			name := strings.TrimSpace(st.Name)
			if name == "" {
				continue
			}
			var id string
			err := tx.QueryRowContext(ctx, `SELECT id FROM statuses WHERE name = ?`, name).Scan(&id)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				if st.ID == "" {
					st.ID = uuid.NewString()
				}
				_, err = tx.ExecContext(ctx, `INSERT INTO statuses (id, name, color, position) VALUES (?, ?, ?, ?)`,
					st.ID, name, st.Color, i)
			case err == nil:
				_, err = tx.ExecContext(ctx, `UPDATE statuses SET color = ?, position = ? WHERE id = ?`, st.Color, i, id)
			}
			if err != nil {
				return fmt.Errorf("storing status %q: %w", name, err)
			}
		}
		return nil
	})
}

// Users returns every user ordered by name.
func (s *Store) Users(ctx context.Context) ([]task.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, email FROM users ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []task.User
	for rows.Next() {
		var u task.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// EnsureUser returns the user with the given name, creating it if needed.
func (s *Store) EnsureUser(ctx context.Context, name, email string) (task.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return task.User{}, fmt.Errorf("user name is required")
	}
	var u task.User
	err := s.write(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT id, name, email FROM users WHERE name = ?`, name).Scan(&u.ID, &u.Name, &u.Email)
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		u = task.User{ID: uuid.NewString(), Name: name, Email: email}
		_, err = tx.ExecContext(ctx, `INSERT INTO users (id, name, email) VALUES (?, ?, ?)`, u.ID, u.Name, u.Email)
		return err
	})
	if err != nil {
		return task.User{}, fmt.Errorf("ensuring user %q: %w", name, err)
	}
	return u, nil
}

// FetchRoleAssignments returns every role assignment, oldest first.
func (s *Store) FetchRoleAssignments(ctx context.Context) ([]task.RoleAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, role, project_id, created_at FROM role_assignments ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying role assignments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []task.RoleAssignment
	for rows.Next() {
		var (
			r       task.RoleAssignment
			project sql.NullString
			created int64
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.Role, &project, &created); err != nil {
			return nil, fmt.Errorf("scanning role assignment: %w", err)
		}
		r.ProjectID = stringPtr(project)
		r.CreatedAt = fromNanos(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// AssignRole grants userID a role, optionally scoped to a project.
func (s *Store) AssignRole(ctx context.Context, userID, role string, projectID *string) (task.RoleAssignment, error) {
	r := task.RoleAssignment{
		ID:        uuid.NewString(),
		UserID:    userID,
		Role:      role,
		ProjectID: projectID,
		CreatedAt: s.now().UTC(),
	}
	err := s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO role_assignments (id, user_id, role, project_id, created_at) VALUES (?, ?, ?, ?, ?)`,
			r.ID, r.UserID, r.Role, nullString(r.ProjectID), r.CreatedAt.UnixNano())
		return err
	})
	if err != nil {
		return task.RoleAssignment{}, fmt.Errorf("assigning role: %w", err)
	}
	return r, nil
}

// RevokeRole deletes a role assignment.
func (s *Store) RevokeRole(ctx context.Context, id string) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM role_assignments WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("revoking role: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("role assignment %s: %w", id, backend.ErrNotFound)
		}
		return nil
	})
}
