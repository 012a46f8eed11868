package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/twiced-technology-gmbh/taskboard/internal/board"
	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

// JSON writes data as indented JSON to the given writer.
func JSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	return nil
}

// ErrorResponse is the JSON envelope for structured error output.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// JSONError writes a structured error to the given writer as JSON.
func JSONError(w io.Writer, code, msg string, details map[string]any) {
	resp := ErrorResponse{Error: msg, Code: code, Details: details}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(resp) // best-effort; if writer fails, nothing we can do
}

// BatchResult represents the outcome of a single operation within a batch.
type BatchResult struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// TaskRecord is a task with its references resolved for JSON output.
type TaskRecord struct {
	task.Task

	Status       string     `json:"status"`
	Responsible  string     `json:"responsible,omitempty"`
	Coworkers    []string   `json:"coworkers,omitempty"`
	Owner        string     `json:"owner,omitempty"`
	Done         bool       `json:"done"`
	Overdue      bool       `json:"overdue"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// Records resolves tasks for JSON output.
func Records(tasks []task.Task, l *board.Lookup, now time.Time) []TaskRecord {
	out := make([]TaskRecord, len(tasks))
	for i, t := range tasks {
		out[i] = Record(t, l, now)
	}
	return out
}

// Record resolves one task for JSON output.
func Record(t task.Task, l *board.Lookup, now time.Time) TaskRecord {
	r := TaskRecord{
		Task:    t,
		Status:  l.StatusName(t.StatusID),
		Done:    l.IsDone(t),
		Overdue: isOverdue(t, l, now),
	}
	if t.ResponsibleID != nil {
		r.Responsible = l.UserName(*t.ResponsibleID)
	}
	for _, id := range t.CoworkerIDs {
		r.Coworkers = append(r.Coworkers, l.UserName(id))
	}
	if t.OwnerID != "" {
		r.Owner = l.UserName(t.OwnerID)
	}
	if last := l.LastActivityOf(t); !last.IsZero() {
		r.LastActivity = &last
	}
	return r
}

func isOverdue(t task.Task, l *board.Lookup, now time.Time) bool {
	return t.Due != nil && t.Due.Before(now) && !l.IsDone(t)
}
