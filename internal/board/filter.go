// Package board derives views from task collections: filtering, sorting,
// projection, column grouping and summaries, plus the activity log.
package board

import (
	"slices"
	"strings"

	"github.com/twiced-technology-gmbh/taskboard/internal/date"
	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

// Filter is a snapshot of independent predicates. All non-empty predicates
// must hold (AND); within a set predicate any member matches (OR). An empty
// predicate never excludes a task.
type Filter struct {
	Search      string     `json:"search,omitempty"`
	Statuses    []string   `json:"statuses,omitempty"`
	Projects    []string   `json:"projects,omitempty"`
	Priorities  []int      `json:"priorities,omitempty"`
	Responsible []string   `json:"responsible,omitempty"`
	Coworkers   []string   `json:"coworkers,omitempty"`
	Owners      []string   `json:"owners,omitempty"`
	Completed   *bool      `json:"completed,omitempty"`
	Due         date.Range `json:"due,omitzero"`
	// TopLevel hides subtasks.
	TopLevel bool `json:"top_level,omitempty"`
}

// IsZero reports whether the filter has no predicates.
func (f Filter) IsZero() bool {
	return f.Equal(Filter{})
}

// Equal reports whether two filters hold the same predicates.
func (f Filter) Equal(o Filter) bool {
	return f.Search == o.Search &&
		slices.Equal(f.Statuses, o.Statuses) &&
		slices.Equal(f.Projects, o.Projects) &&
		slices.Equal(f.Priorities, o.Priorities) &&
		slices.Equal(f.Responsible, o.Responsible) &&
		slices.Equal(f.Coworkers, o.Coworkers) &&
		slices.Equal(f.Owners, o.Owners) &&
		equalBool(f.Completed, o.Completed) &&
		f.Due.Equal(o.Due) &&
		f.TopLevel == o.TopLevel
}

func equalBool(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Evaluate reports whether t satisfies every predicate.
func (f Filter) Evaluate(t task.Task, l *Lookup) bool {
	if f.Search != "" && !matchesSearch(t, f.Search) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, t.StatusID) {
		return false
	}
	if len(f.Projects) > 0 && (t.ProjectID == nil || !slices.Contains(f.Projects, *t.ProjectID)) {
		return false
	}
	if len(f.Priorities) > 0 && !slices.Contains(f.Priorities, t.Priority) {
		return false
	}
	if len(f.Responsible) > 0 && (t.ResponsibleID == nil || !slices.Contains(f.Responsible, *t.ResponsibleID)) {
		return false
	}
	if len(f.Coworkers) > 0 && !slices.ContainsFunc(t.CoworkerIDs, func(id string) bool {
		return slices.Contains(f.Coworkers, id)
	}) {
		return false
	}
	if len(f.Owners) > 0 && !slices.Contains(f.Owners, t.OwnerID) {
		return false
	}
	if f.Completed != nil && l.IsDone(t) != *f.Completed {
		return false
	}
	if !f.Due.IsZero() && (t.Due == nil || !f.Due.Contains(*t.Due)) {
		return false
	}
	if f.TopLevel && t.ParentID != nil {
		return false
	}
	return true
}

// matchesSearch performs case-insensitive substring matching across title and description.
func matchesSearch(t task.Task, query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(t.Title), q) ||
		strings.Contains(strings.ToLower(t.Description), q)
}

// Apply returns the tasks matching f, keeping their order.
func (f Filter) Apply(tasks []task.Task, l *Lookup) []task.Task {
	out := make([]task.Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Evaluate(t, l) {
			out = append(out, t)
		}
	}
	return out
}
