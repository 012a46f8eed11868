package output

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/twiced-technology-gmbh/taskboard/internal/board"
	"github.com/twiced-technology-gmbh/taskboard/internal/date"
	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

// TaskCompact renders a list of tasks in one-line-per-record compact format.
func TaskCompact(w io.Writer, tasks []task.Task, l *board.Lookup) {
	if len(tasks) == 0 {
		fmt.Fprintln(os.Stderr, "No tasks found.")
		return
	}
	for _, t := range tasks {
		fmt.Fprintln(w, formatTaskLine(t, l))
	}
}

// TaskDetailCompact renders a single task with detail in compact format.
func TaskDetailCompact(w io.Writer, t task.Task, l *board.Lookup, subtasks []task.Task) {
	fmt.Fprintln(w, formatTaskLine(t, l))

	ts := "  created:" + t.CreatedAt.Format("2006-01-02") +
		" updated:" + t.UpdatedAt.Format("2006-01-02")
	if t.CompletedAt != nil {
		ts += " completed:" + t.CompletedAt.Format("2006-01-02")
	}
	fmt.Fprintln(w, ts)
	if t.Result != "" {
		fmt.Fprintln(w, "  result: "+t.Result)
	}
	for _, s := range subtasks {
		fmt.Fprintln(w, "  - "+formatTaskLine(s, l))
	}
	if t.Description != "" {
		for _, line := range strings.Split(t.Description, "\n") {
			fmt.Fprintln(w, "  "+line)
		}
	}
}

// OverviewCompact renders a board summary in compact format.
func OverviewCompact(w io.Writer, s board.Overview) {
	fmt.Fprintf(w, "%s (%d tasks, %d completed)\n", s.BoardName, s.TotalTasks, s.Completed)

	for _, ss := range s.Statuses {
		line := "  " + ss.Status + ": " + strconv.Itoa(ss.Count)
		var annotations []string
		if ss.Subtasks > 0 {
			annotations = append(annotations, strconv.Itoa(ss.Subtasks)+" subtasks")
		}
		if ss.Overdue > 0 {
			annotations = append(annotations, strconv.Itoa(ss.Overdue)+" overdue")
		}
		if len(annotations) > 0 {
			line += " (" + strings.Join(annotations, ", ") + ")"
		}
		fmt.Fprintln(w, line)
	}

	if len(s.Priorities) > 0 {
		parts := make([]string, 0, len(s.Priorities))
		for _, pc := range s.Priorities {
			parts = append(parts, pc.Priority+"="+strconv.Itoa(pc.Count))
		}
		fmt.Fprintln(w, "Priority: "+strings.Join(parts, " "))
	}
}

// ColumnsCompact renders the kanban columns in compact format.
func ColumnsCompact(w io.Writer, cols []board.Column, l *board.Lookup) {
	for _, c := range cols {
		fmt.Fprintf(w, "%s (%d)\n", c.Status.Name, len(c.Tasks))
		for _, t := range c.Tasks {
			fmt.Fprintln(w, "  "+formatTaskLine(t, l))
		}
	}
}

// ActivityCompact renders activity entries one per line.
func ActivityCompact(w io.Writer, entries []board.ActivityEntry) {
	for _, e := range entries {
		line := e.Timestamp.Format(time.RFC3339) + " " + ShortID(e.TaskID) + " " + e.Type
		if e.Field != "" {
			line += " " + e.Field + ": " + orDash(e.OldValue) + " -> " + orDash(e.NewValue)
		} else if e.NewValue != "" {
			line += " " + e.NewValue
		}
		fmt.Fprintln(w, line)
	}
}

// formatTaskLine builds the one-line representation of a task.
func formatTaskLine(t task.Task, l *board.Lookup) string {
	line := ShortID(t.ID) + " [" + l.StatusName(t.StatusID) + "/" + task.PriorityName(t.Priority) + "] " + t.Title

	if t.ResponsibleID != nil {
		line += " @" + l.UserName(*t.ResponsibleID)
	}
	if len(t.CoworkerIDs) > 0 {
		names := make([]string, len(t.CoworkerIDs))
		for i, id := range t.CoworkerIDs {
			names[i] = l.UserName(id)
		}
		line += " (+" + strings.Join(names, ", ") + ")"
	}
	if t.Due != nil {
		line += " due:" + date.String(*t.Due)
	}
	if t.ParentID != nil {
		line += " parent:" + ShortID(*t.ParentID)
	}
	return line
}
