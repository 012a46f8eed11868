package board

import (
	"cmp"
	"slices"

	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

// Column is one status column of the kanban view.
type Column struct {
	Status task.Status `json:"status"`
	Done   bool        `json:"done,omitempty"`
	Tasks  []task.Task `json:"tasks"`
}

// Columns groups top-level tasks by status in column order. Within a column
// tasks are ordered by position; equal positions keep their input order.
// Tasks whose status is unknown are left out.
func Columns(tasks []task.Task, l *Lookup) []Column {
	statuses := slices.Clone(l.Statuses)
	slices.SortStableFunc(statuses, func(a, b task.Status) int {
		return cmp.Compare(a.Position, b.Position)
	})

	cols := make([]Column, len(statuses))
	index := make(map[string]int, len(statuses))
	for i, s := range statuses {
		cols[i] = Column{Status: s, Done: s.ID == l.DoneID}
		index[s.ID] = i
	}
	for _, t := range tasks {
		if t.ParentID != nil {
			continue
		}
		if i, ok := index[t.StatusID]; ok {
			cols[i].Tasks = append(cols[i].Tasks, t)
		}
	}
	for i := range cols {
		SortByPosition(cols[i].Tasks)
	}
	return cols
}

// SortByPosition orders tasks by ascending position, stable.
func SortByPosition(tasks []task.Task) {
	slices.SortStableFunc(tasks, func(a, b task.Task) int {
		return cmp.Compare(a.Position, b.Position)
	})
}

// Partition returns the tasks sharing p, ordered by position.
func Partition(tasks []task.Task, p task.Partition) []task.Task {
	var out []task.Task
	for _, t := range tasks {
		if t.PartitionKey() == p {
			out = append(out, t)
		}
	}
	SortByPosition(out)
	return out
}

// Subtasks returns the subtasks of parentID ordered by status position and
// then by position.
func Subtasks(tasks []task.Task, parentID string, l *Lookup) []task.Task {
	var out []task.Task
	for _, t := range tasks {
		if t.ParentID != nil && *t.ParentID == parentID {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, func(a, b task.Task) int {
		pa, _ := l.StatusPosition(a.StatusID)
		pb, _ := l.StatusPosition(b.StatusID)
		if c := cmp.Compare(pa, pb); c != 0 {
			return c
		}
		return cmp.Compare(a.Position, b.Position)
	})
	return out
}

// SubtaskCounts returns the number of subtasks per parent id.
func SubtaskCounts(tasks []task.Task) map[string]int {
	counts := make(map[string]int)
	for _, t := range tasks {
		if t.ParentID != nil {
			counts[*t.ParentID]++
		}
	}
	return counts
}
