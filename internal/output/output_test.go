package output

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twiced-technology-gmbh/taskboard/internal/board"
	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

var now = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func testLookup() *board.Lookup {
	return board.NewLookup(
		[]task.Status{{ID: "todo", Name: "Todo"}, {ID: "done", Name: "Done", Position: 1}},
		"Done",
		[]task.User{{ID: "u1", Name: "Ada"}, {ID: "u2", Name: "Linus"}},
		nil,
	)
}

func TestDetect(t *testing.T) {
	t.Setenv(EnvOutput, "")
	assert.Equal(t, FormatJSON, Detect(true, false, true))
	assert.Equal(t, FormatCompact, Detect(false, true, true))
	assert.Equal(t, FormatTable, Detect(false, false, false))

	t.Setenv(EnvOutput, "oneline")
	assert.Equal(t, FormatCompact, Detect(false, false, false))
}

func TestDueLabel(t *testing.T) {
	assert.Equal(t, "2026-05-04 (today)", DueLabel(time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC), now))
	assert.Equal(t, "2026-05-05 (tomorrow)", DueLabel(time.Date(2026, 5, 5, 0, 0, 0, 0, time.UTC), now))
	assert.Equal(t, "2026-05-14 (in 10 days)", DueLabel(time.Date(2026, 5, 14, 0, 0, 0, 0, time.UTC), now))
	assert.Equal(t, "2026-05-01 (3 days ago)", DueLabel(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), now))
}

func TestRecord_ResolvesReferences(t *testing.T) {
	due := now.Add(-48 * time.Hour)
	r := Record(task.Task{
		ID: "a", StatusID: "todo", ResponsibleID: task.Ptr("u1"), CoworkerIDs: []string{"u2", "ghost"}, Due: &due,
	}, testLookup(), now)

	assert.Equal(t, "Todo", r.Status)
	assert.Equal(t, "Ada", r.Responsible)
	assert.Equal(t, []string{"Linus", "ghost"}, r.Coworkers)
	assert.True(t, r.Overdue)
	assert.False(t, r.Done)

	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, r))
	assert.Contains(t, buf.String(), `"status_id": "todo"`)
	assert.Contains(t, buf.String(), `"responsible": "Ada"`)
}

func TestCompactLine(t *testing.T) {
	DisableColor()
	var buf bytes.Buffer
	TaskCompact(&buf, []task.Task{
		{ID: "0123456789", Title: "Ship", StatusID: "done", Priority: 2, ResponsibleID: task.Ptr("u2")},
	}, testLookup())
	assert.Equal(t, "01234567 [Done/high] Ship @Linus\n", buf.String())
}

func TestTaskTable(t *testing.T) {
	DisableColor()
	var buf bytes.Buffer
	TaskTable(&buf, []task.Task{
		{ID: "a", Title: "Write docs", StatusID: "todo"},
		{ID: "b", Title: "Sub", StatusID: "todo", ParentID: task.Ptr("a")},
	}, testLookup(), now)

	out := buf.String()
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "Write docs")
	assert.Contains(t, out, "↳ Sub")
}

func TestMarkdown_PlainWithoutColor(t *testing.T) {
	DisableColor()
	assert.Equal(t, "# Title", Markdown("# Title", 40))
}
