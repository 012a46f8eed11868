package board

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/twiced-technology-gmbh/taskboard/internal/filelock"
	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

const (
	logFileMode   = 0o600
	maxLogEntries = 10000 // truncate oldest entries when log exceeds this size
)

// Activity entry types.
const (
	ActivityCreated  = "created"
	ActivityChanged  = "field_change"
	ActivityComplete = "completed"
	ActivityDeleted  = "deleted"
	ActivityComment  = "comment"
	ActivityAttach   = "attachment"
)

// ActivityEntry is one immutable activity record.
type ActivityEntry struct {
	TaskID    string    `json:"task_id"`
	Field     string    `json:"field,omitempty"`
	OldValue  string    `json:"old_value,omitempty"`
	NewValue  string    `json:"new_value,omitempty"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	ActorID   string    `json:"actor_id,omitempty"`
}

// ActivitySink receives activity entries. Writes are best-effort; callers log
// failures and never roll back the task mutation that produced the entry.
type ActivitySink interface {
	Append(ctx context.Context, entries ...ActivityEntry) error
}

// ActivityReader reads back what a sink stored.
type ActivityReader interface {
	Recent(ctx context.Context, taskID string, limit int) ([]ActivityEntry, error)
	LastActivity(ctx context.Context) (map[string]time.Time, error)
}

// ActivityLog is a sink that can be read back.
type ActivityLog interface {
	ActivitySink
	ActivityReader
}

// ChangeEntries returns one field_change entry per field in fields whose
// value differs between before and after. A status change into the done
// status is recorded as completed.
func ChangeEntries(before, after task.Task, fields task.Fields, doneID, actor string, now time.Time) []ActivityEntry {
	var entries []ActivityEntry
	fields.Each(func(f task.Fields) {
		if f == task.FieldCompletedAt {
			return
		}
		oldV, newV := task.FieldValue(before, f), task.FieldValue(after, f)
		if oldV == newV {
			return
		}
		typ := ActivityChanged
		if f == task.FieldStatus && doneID != "" && after.StatusID == doneID {
			typ = ActivityComplete
		}
		entries = append(entries, ActivityEntry{
			TaskID:    after.ID,
			Field:     f.String(),
			OldValue:  oldV,
			NewValue:  newV,
			Type:      typ,
			Timestamp: now,
			ActorID:   actor,
		})
	})
	return entries
}

// NopLog discards entries.
type NopLog struct{}

// Append implements ActivitySink.
func (NopLog) Append(context.Context, ...ActivityEntry) error { return nil }

// Recent implements ActivityReader.
func (NopLog) Recent(context.Context, string, int) ([]ActivityEntry, error) { return nil, nil }

// LastActivity implements ActivityReader.
func (NopLog) LastActivity(context.Context) (map[string]time.Time, error) {
	return map[string]time.Time{}, nil
}

// FileLog appends entries to a JSONL file shared by every process using the board.
type FileLog struct {
	Path string

	mu sync.Mutex
}

var _ ActivityLog = (*FileLog)(nil)

// NewFileLog returns a FileLog writing to path.
func NewFileLog(path string) *FileLog {
	return &FileLog{Path: path}
}

// Append appends entries to the log file. If the log exceeds maxLogEntries,
// the oldest entries are truncated.
func (l *FileLog) Append(_ context.Context, entries ...ActivityEntry) error {
	if len(entries) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var buf strings.Builder
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshaling log entry: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	return filelock.With(l.Path+".lock", func() error {
		f, err := os.OpenFile(l.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, logFileMode) //nolint:gosec // log path from trusted board dir
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		if _, err := f.WriteString(buf.String()); err != nil {
			_ = f.Close()
			return fmt.Errorf("writing log entry: %w", err)
		}
		if err := f.Close(); err != nil {
			return err
		}

		// Truncate if needed (best-effort; errors are non-fatal).
		_ = truncateLogIfNeeded(l.Path)
		return nil
	})
}

// Recent returns up to limit entries for taskID, newest first. An empty
// taskID matches every task.
func (l *FileLog) Recent(_ context.Context, taskID string, limit int) ([]ActivityEntry, error) {
	entries, err := l.read()
	if err != nil {
		return nil, err
	}
	var out []ActivityEntry
	for _, e := range slices.Backward(entries) {
		if taskID != "" && e.TaskID != taskID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// LastActivity returns the newest entry timestamp per task.
func (l *FileLog) LastActivity(_ context.Context) (map[string]time.Time, error) {
	entries, err := l.read()
	if err != nil {
		return nil, err
	}
	last := make(map[string]time.Time)
	for _, e := range entries {
		if e.Timestamp.After(last[e.TaskID]) {
			last[e.TaskID] = e.Timestamp
		}
	}
	return last, nil
}

// read loads every entry, skipping malformed lines.
func (l *FileLog) read() ([]ActivityEntry, error) {
	f, err := os.Open(l.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []ActivityEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e ActivityEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// truncateLogIfNeeded reads the log file and, if it exceeds maxLogEntries,
// rewrites it keeping only the most recent entries.
func truncateLogIfNeeded(path string) error {
	f, err := os.Open(path) //nolint:gosec // trusted path
	if err != nil {
		return err
	}

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	_ = f.Close()

	if err := scanner.Err(); err != nil {
		return err
	}

	if len(lines) <= maxLogEntries {
		return nil
	}

	lines = lines[len(lines)-maxLogEntries:]

	var buf strings.Builder
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	return os.WriteFile(path, []byte(buf.String()), logFileMode)
}
