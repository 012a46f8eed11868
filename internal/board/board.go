package board

import (
	"strings"
	"time"

	"github.com/twiced-technology-gmbh/taskboard/internal/clierr"
	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

// StatusSummary holds metrics for a single status column.
type StatusSummary struct {
	Status   string `json:"status"`
	StatusID string `json:"status_id"`
	Count    int    `json:"count"`
	Subtasks int    `json:"subtasks"`
	Overdue  int    `json:"overdue"`
}

// PriorityCount holds a count for a priority level.
type PriorityCount struct {
	Priority string `json:"priority"`
	Count    int    `json:"count"`
}

// Overview is the aggregate board overview.
type Overview struct {
	BoardName  string          `json:"board_name"`
	TotalTasks int             `json:"total_tasks"`
	Completed  int             `json:"completed"`
	Overdue    int             `json:"overdue"`
	Statuses   []StatusSummary `json:"statuses"`
	Priorities []PriorityCount `json:"priorities"`
}

// Summary computes a board summary from tasks. A task is overdue when its due
// date lies before now and it is not done.
func Summary(name string, tasks []task.Task, l *Lookup, now time.Time) Overview {
	statusMap := make(map[string]*StatusSummary, len(l.Statuses))
	statuses := make([]StatusSummary, len(l.Statuses))
	for i, s := range l.Statuses {
		statuses[i] = StatusSummary{Status: s.Name, StatusID: s.ID}
		statusMap[s.ID] = &statuses[i]
	}

	prio := make([]int, task.MaxPriority+1)
	ov := Overview{BoardName: name, TotalTasks: len(tasks)}

	for _, t := range tasks {
		done := l.IsDone(t)
		overdue := t.Due != nil && t.Due.Before(now) && !done
		if done {
			ov.Completed++
		}
		if overdue {
			ov.Overdue++
		}
		if ss, ok := statusMap[t.StatusID]; ok {
			if t.ParentID != nil {
				ss.Subtasks++
			} else {
				ss.Count++
			}
			if overdue {
				ss.Overdue++
			}
		}
		if t.Priority >= task.MinPriority && t.Priority <= task.MaxPriority {
			prio[t.Priority]++
		}
	}

	ov.Statuses = statuses
	ov.Priorities = make([]PriorityCount, 0, len(prio))
	for p, n := range prio {
		ov.Priorities = append(ov.Priorities, PriorityCount{Priority: task.PriorityName(p), Count: n})
	}
	return ov
}

// ParseIDs splits a comma-separated ID string into deduplicated task IDs.
func ParseIDs(arg string) ([]string, error) {
	parts := strings.Split(arg, ",")
	seen := make(map[string]bool, len(parts))
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if err := task.ValidateTaskID(p); err != nil {
			return nil, err
		}
		if !seen[p] {
			ids = append(ids, p)
			seen[p] = true
		}
	}
	if len(ids) == 0 {
		return nil, clierr.New(clierr.InvalidTaskID, "no valid task IDs provided")
	}
	return ids, nil
}

// ResolveID finds the task whose id equals ref or starts with it. A prefix
// must be unambiguous.
func ResolveID(tasks []task.Task, ref string) (task.Task, error) {
	var matches []task.Task
	for _, t := range tasks {
		if t.ID == ref {
			return t, nil
		}
		if strings.HasPrefix(t.ID, ref) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return task.Task{}, clierr.Newf(clierr.TaskNotFound, "task %q not found", ref).
			WithDetails(map[string]any{"id": ref})
	default:
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}
		return task.Task{}, clierr.Newf(clierr.InvalidTaskID, "task id %q is ambiguous", ref).
			WithDetails(map[string]any{"id": ref, "matches": ids})
	}
}

// ResolveStatus finds a status by id or case-insensitive name.
func ResolveStatus(l *Lookup, ref string) (task.Status, error) {
	for _, s := range l.Statuses {
		if s.ID == ref || strings.EqualFold(s.Name, strings.TrimSpace(ref)) {
			return s, nil
		}
	}
	names := make([]string, len(l.Statuses))
	for i, s := range l.Statuses {
		names[i] = s.Name
	}
	return task.Status{}, clierr.Newf(clierr.StatusNotFound, "status %q not found", ref).
		WithDetails(map[string]any{"status": ref, "allowed": names})
}

// ResolveUser finds a user id by id or case-insensitive display name.
func ResolveUser(users []task.User, ref string) (string, error) {
	for _, u := range users {
		if u.ID == ref || strings.EqualFold(u.Name, strings.TrimSpace(ref)) {
			return u.ID, nil
		}
	}
	return "", clierr.Newf(clierr.InvalidInput, "unknown user %q", ref).
		WithDetails(map[string]any{"user": ref})
}
