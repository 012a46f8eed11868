package task

import (
	"slices"
	"strconv"
	"strings"

	"github.com/twiced-technology-gmbh/taskboard/internal/clierr"
)

// Priority bounds.
const (
	MinPriority = 0
	MaxPriority = 3
)

// priorityNames indexes priority levels by value.
var priorityNames = []string{"low", "medium", "high", "urgent"}

// PriorityName returns the display name of a priority level.
func PriorityName(p int) string {
	if p < MinPriority || p > MaxPriority {
		return strconv.Itoa(p)
	}
	return priorityNames[p]
}

// ParsePriority accepts a level name or its number.
func ParsePriority(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := slices.Index(priorityNames, s); i >= 0 {
		return i, nil
	}
	if len(s) == 1 && s[0] >= '0' && s[0] <= '9' {
		p := int(s[0] - '0')
		if err := ValidatePriority(p); err != nil {
			return 0, err
		}
		return p, nil
	}
	return 0, clierr.Newf(clierr.InvalidPriority, "invalid priority %q", s).
		WithDetails(map[string]any{
			"priority": s,
			"allowed":  priorityNames,
		})
}

// ValidatePriority checks that a priority lies in [MinPriority, MaxPriority].
func ValidatePriority(p int) error {
	if p < MinPriority || p > MaxPriority {
		return clierr.Newf(clierr.InvalidPriority, "priority %d out of range [%d,%d]", p, MinPriority, MaxPriority).
			WithDetails(map[string]any{
				"priority": p,
				"min":      MinPriority,
				"max":      MaxPriority,
			})
	}
	return nil
}

// ValidateTitle rejects blank titles.
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return clierr.New(clierr.InvalidInput, "title is required").
			WithDetails(map[string]any{"field": "title"})
	}
	return nil
}

// ValidateStatus checks that a status id names one of the known statuses.
func ValidateStatus(statusID string, statuses []Status) error {
	for _, s := range statuses {
		if s.ID == statusID {
			return nil
		}
	}
	ids := make([]string, 0, len(statuses))
	for _, s := range statuses {
		ids = append(ids, s.ID)
	}
	return clierr.Newf(clierr.InvalidStatus, "invalid status %q", statusID).
		WithDetails(map[string]any{
			"status":  statusID,
			"allowed": ids,
		})
}

// Validate checks the fields every stored task must satisfy.
func Validate(t Task) error {
	if err := ValidateTitle(t.Title); err != nil {
		return err
	}
	return ValidatePriority(t.Priority)
}

// Lookup resolves tasks by id for hierarchy validation.
type Lookup interface {
	Get(id string) (Task, bool)
	All() []Task
}

// ValidateParent enforces the two-level hierarchy: a parent must exist, must
// not be the task itself, must not itself be a subtask, and a task that
// already has subtasks cannot become one.
func ValidateParent(t Task, tasks Lookup) error {
	if t.ParentID == nil {
		return nil
	}
	parentID := *t.ParentID
	if parentID == t.ID {
		return invalidParent(t.ID, parentID, "task cannot be its own parent")
	}
	parent, ok := tasks.Get(parentID)
	if !ok {
		return invalidParent(t.ID, parentID, "parent task not found")
	}
	if parent.IsSubtask || parent.ParentID != nil {
		return invalidParent(t.ID, parentID, "parent is itself a subtask")
	}
	for _, other := range tasks.All() {
		if other.ParentID != nil && *other.ParentID == t.ID {
			return invalidParent(t.ID, parentID, "task has subtasks and cannot become one")
		}
	}
	return nil
}

func invalidParent(id, parentID, reason string) *clierr.Error {
	return clierr.Newf(clierr.InvalidParent, "invalid parent %q: %s", parentID, reason).
		WithDetails(map[string]any{
			"id":     id,
			"parent": parentID,
		})
}

// ValidateTaskID returns an error for a blank or malformed task id.
func ValidateTaskID(input string) error {
	if strings.TrimSpace(input) == "" || strings.ContainsAny(input, " \t\n,") {
		return clierr.Newf(clierr.InvalidTaskID, "invalid task ID %q", input).
			WithDetails(map[string]any{"input": input})
	}
	return nil
}

// Normalize repairs invariants in place instead of rejecting the record:
// the title is trimmed, co-workers are de-duplicated, the responsible user
// is removed from the co-workers, and IsSubtask follows ParentID.
func Normalize(t *Task) {
	t.Title = strings.TrimSpace(t.Title)
	if t.ResponsibleID != nil && *t.ResponsibleID == "" {
		t.ResponsibleID = nil
	}
	if len(t.CoworkerIDs) > 0 {
		seen := make(map[string]bool, len(t.CoworkerIDs))
		out := t.CoworkerIDs[:0:0]
		for _, id := range t.CoworkerIDs {
			if id == "" || seen[id] {
				continue
			}
			if t.ResponsibleID != nil && *t.ResponsibleID == id {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
		if len(out) == 0 {
			out = nil
		}
		t.CoworkerIDs = out
	}
	if t.ParentID != nil && *t.ParentID == "" {
		t.ParentID = nil
	}
	t.IsSubtask = t.ParentID != nil
}
