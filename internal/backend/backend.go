// Package backend defines the persistence boundary of the board: task CRUD,
// statuses, users and role assignments. Implementations publish row changes
// to a feed.Hub.
package backend

import (
	"context"
	"errors"

	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// Scope narrows FetchTasks. Empty fields do not narrow.
type Scope struct {
	// ProjectID keeps tasks of one project.
	ProjectID string
	// Viewer restricts to the projects the user holds the viewer role in,
	// unless the user has a board-wide role.
	Viewer string
	// Participant keeps tasks the user owns, is responsible for or co-works on.
	Participant string
}

// Match reports whether t falls in the scope. viewable reports whether the
// viewer may see a project; nil allows every project.
func (s Scope) Match(t task.Task, viewable func(projectID string) bool) bool {
	if s.ProjectID != "" && task.StringValue(t.ProjectID) != s.ProjectID {
		return false
	}
	if s.Viewer != "" && viewable != nil && !viewable(task.StringValue(t.ProjectID)) {
		return false
	}
	if p := s.Participant; p != "" && t.OwnerID != p && task.StringValue(t.ResponsibleID) != p && !t.HasCoworker(p) {
		return false
	}
	return true
}

// ScopeMatcher is implemented by backends that resolve a scope into a row
// predicate, viewer roles included. Live changes are narrowed with it the
// same way FetchTasks narrows a fetch.
type ScopeMatcher interface {
	MatchScope(ctx context.Context, scope Scope) (func(task.Task) bool, error)
}

// Backend is the opaque task store.
type Backend interface {
	FetchTasks(ctx context.Context, scope Scope) ([]task.Task, error)
	// CreateTask stores a new task. A non-empty ID proposed by the caller is
	// kept so the insert echo can be matched to the optimistic record.
	CreateTask(ctx context.Context, t task.Task) (task.Task, error)
	// UpdateTask writes only the fields named by the patch.
	UpdateTask(ctx context.Context, id string, p task.Patch) error
	DeleteTask(ctx context.Context, id string) error
	DeleteTasks(ctx context.Context, ids []string) error
	// FetchStatuses returns statuses ordered by position.
	FetchStatuses(ctx context.Context) ([]task.Status, error)
	Users(ctx context.Context) ([]task.User, error)
}

// RoleStore manages role assignments for the user-admin surface.
type RoleStore interface {
	FetchRoleAssignments(ctx context.Context) ([]task.RoleAssignment, error)
	AssignRole(ctx context.Context, userID, role string, projectID *string) (task.RoleAssignment, error)
	RevokeRole(ctx context.Context, id string) error
}
