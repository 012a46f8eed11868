// Package task defines task records, statuses and the field-level patch
// model shared by the cache, the engine and the backend.
package task

import (
	"slices"
	"time"
)

// Task is a task record as held by the cache and stored by the backend.
// JSON names match backend column names; change-feed payloads decode into it.
type Task struct {
	ID            string     `json:"id" yaml:"id"`
	Title         string     `json:"title" yaml:"title"`
	Description   string     `json:"description,omitempty" yaml:"description,omitempty"`
	StatusID      string     `json:"status_id" yaml:"status_id"`
	ResponsibleID *string    `json:"responsible_id,omitempty" yaml:"responsible_id,omitempty"`
	CoworkerIDs   []string   `json:"coworker_ids,omitempty" yaml:"coworker_ids,omitempty"`
	OwnerID       string     `json:"owner_id,omitempty" yaml:"owner_id,omitempty"`
	Due           *time.Time `json:"due,omitempty" yaml:"due,omitempty"`
	Priority      int        `json:"priority" yaml:"priority"`
	ProjectID     *string    `json:"project_id,omitempty" yaml:"project_id,omitempty"`
	Position      int        `json:"position" yaml:"position"`
	Result        string     `json:"result,omitempty" yaml:"result,omitempty"`
	ParentID      *string    `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	IsSubtask     bool       `json:"is_subtask,omitempty" yaml:"is_subtask,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" yaml:"updated_at"`
}

// Key returns the cache key.
func (t Task) Key() string { return t.ID }

// Clone returns a deep copy so the caller can never alias cache state.
func (t Task) Clone() Task {
	c := t
	c.ResponsibleID = clonePtr(t.ResponsibleID)
	c.ProjectID = clonePtr(t.ProjectID)
	c.ParentID = clonePtr(t.ParentID)
	c.Due = clonePtr(t.Due)
	c.CompletedAt = clonePtr(t.CompletedAt)
	c.CoworkerIDs = slices.Clone(t.CoworkerIDs)
	return c
}

// PartitionKey identifies the (status, parent) partition positions are unique in.
func (t Task) PartitionKey() Partition {
	p := Partition{StatusID: t.StatusID}
	if t.ParentID != nil {
		p.ParentID = *t.ParentID
	}
	return p
}

// Partition is the ordering scope of Position.
type Partition struct {
	StatusID string
	ParentID string
}

// HasCoworker reports whether userID is one of the task's co-workers.
func (t Task) HasCoworker(userID string) bool {
	return slices.Contains(t.CoworkerIDs, userID)
}

// Status is a board column.
type Status struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Color    string `json:"color,omitempty" yaml:"color,omitempty"`
	Position int    `json:"position" yaml:"position"`
}

// User is a person tasks can be assigned to.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Role names for role assignments.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleViewer = "viewer"
)

// RoleAssignment grants a user a role, optionally scoped to a project.
type RoleAssignment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	ProjectID *string   `json:"project_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Key returns the cache key.
func (r RoleAssignment) Key() string { return r.ID }

// Clone returns a deep copy.
func (r RoleAssignment) Clone() RoleAssignment {
	c := r
	c.ProjectID = clonePtr(r.ProjectID)
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// StringValue dereferences p, returning "" for nil.
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
