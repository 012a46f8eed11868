package board

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twiced-technology-gmbh/taskboard/internal/cache"
	"github.com/twiced-technology-gmbh/taskboard/internal/clierr"
	"github.com/twiced-technology-gmbh/taskboard/internal/date"
	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

func testLookup() *Lookup {
	statuses := []task.Status{
		{ID: "s-todo", Name: "Todo", Position: 1},
		{ID: "s-doing", Name: "Doing", Position: 2},
		{ID: "s-done", Name: "Done", Position: 3},
	}
	users := []task.User{{ID: "u1", Name: "Zoe"}, {ID: "u2", Name: "Adam"}}
	return NewLookup(statuses, "done", users, nil)
}

func day(d int) *time.Time {
	t := date.New(2026, time.January, d)
	return &t
}

func ids(tasks []task.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestFilter_EmptyNeverExcludes(t *testing.T) {
	l := testLookup()
	for _, tk := range []task.Task{{ID: "a"}, {ID: "b", StatusID: "s-done", Due: day(1)}} {
		assert.True(t, Filter{}.Evaluate(tk, l))
	}
}

func TestFilter_Conjunction(t *testing.T) {
	l := testLookup()
	tk := task.Task{
		ID:            "a",
		Title:         "Fix Login",
		StatusID:      "s-doing",
		Priority:      2,
		ResponsibleID: task.Ptr("u1"),
		CoworkerIDs:   []string{"u2"},
		OwnerID:       "u1",
		ProjectID:     task.Ptr("p1"),
		Due:           day(10),
	}
	no := false

	predicates := map[string]struct{ pass, fail Filter }{
		"search":      {Filter{Search: "login"}, Filter{Search: "logout"}},
		"status":      {Filter{Statuses: []string{"s-todo", "s-doing"}}, Filter{Statuses: []string{"s-todo"}}},
		"project":     {Filter{Projects: []string{"p1"}}, Filter{Projects: []string{"p2"}}},
		"priority":    {Filter{Priorities: []int{1, 2}}, Filter{Priorities: []int{3}}},
		"responsible": {Filter{Responsible: []string{"u1"}}, Filter{Responsible: []string{"u2"}}},
		"coworker":    {Filter{Coworkers: []string{"u9", "u2"}}, Filter{Coworkers: []string{"u1"}}},
		"owner":       {Filter{Owners: []string{"u1"}}, Filter{Owners: []string{"u2"}}},
		"completed":   {Filter{Completed: &no}, Filter{Completed: task.Ptr(true)}},
		"due":         {Filter{Due: date.Range{From: day(10), To: day(10)}}, Filter{Due: date.Range{To: day(9)}}},
	}

	for name, p := range predicates {
		t.Run(name, func(t *testing.T) {
			assert.True(t, p.pass.Evaluate(tk, l))
			assert.False(t, p.fail.Evaluate(tk, l))
		})
	}

	all := Filter{
		Search:      "fix",
		Statuses:    []string{"s-doing"},
		Projects:    []string{"p1"},
		Priorities:  []int{2},
		Responsible: []string{"u1"},
		Coworkers:   []string{"u2"},
		Owners:      []string{"u1"},
		Completed:   &no,
		Due:         date.Range{From: day(1)},
	}
	assert.True(t, all.Evaluate(tk, l))

	for name, p := range predicates {
		combined := all
		switch name {
		case "search":
			combined.Search = p.fail.Search
		case "status":
			combined.Statuses = p.fail.Statuses
		case "priority":
			combined.Priorities = p.fail.Priorities
		case "owner":
			combined.Owners = p.fail.Owners
		default:
			continue
		}
		assert.False(t, combined.Evaluate(tk, l), name)
	}
}

func TestFilter_DueRangeExcludesUndated(t *testing.T) {
	f := Filter{Due: date.Range{From: day(1)}}
	assert.False(t, f.Evaluate(task.Task{ID: "a"}, testLookup()))
}

func TestFilter_SearchMatchesDescription(t *testing.T) {
	f := Filter{Search: "ROLLBACK"}
	assert.True(t, f.Evaluate(task.Task{Description: "handle rollback path"}, nil))
}

func TestSort_NullsLastBothDirections(t *testing.T) {
	l := testLookup()
	tasks := []task.Task{
		{ID: "none1"},
		{ID: "d5", Due: day(5)},
		{ID: "none2"},
		{ID: "d1", Due: day(1)},
	}

	asc := append([]task.Task(nil), tasks...)
	Sort{Field: SortDue, Direction: Asc}.Apply(asc, l)
	assert.Equal(t, []string{"d1", "d5", "none1", "none2"}, ids(asc))

	desc := append([]task.Task(nil), tasks...)
	Sort{Field: SortDue, Direction: Desc}.Apply(desc, l)
	assert.Equal(t, []string{"d5", "d1", "none1", "none2"}, ids(desc))
}

func TestSort_StableOnTies(t *testing.T) {
	l := testLookup()
	tasks := []task.Task{
		{ID: "1", StatusID: "s-doing"},
		{ID: "2", StatusID: "s-todo"},
		{ID: "3", StatusID: "s-doing"},
		{ID: "4", StatusID: "s-todo"},
	}
	for _, dir := range []Direction{Asc, Desc} {
		out := append([]task.Task(nil), tasks...)
		Sort{Field: SortStatus, Direction: dir}.Apply(out, l)
		if dir == Asc {
			assert.Equal(t, []string{"2", "4", "1", "3"}, ids(out))
		} else {
			assert.Equal(t, []string{"1", "3", "2", "4"}, ids(out))
		}
	}
}

func TestSort_StatusUsesPositionNotName(t *testing.T) {
	l := testLookup()
	out := []task.Task{{ID: "done", StatusID: "s-done"}, {ID: "doing", StatusID: "s-doing"}}
	Sort{Field: SortStatus, Direction: Asc}.Apply(out, l)
	assert.Equal(t, []string{"doing", "done"}, ids(out))
}

func TestSort_ResponsibleByDisplayName(t *testing.T) {
	l := testLookup()
	out := []task.Task{
		{ID: "zoe", ResponsibleID: task.Ptr("u1")},
		{ID: "nobody"},
		{ID: "adam", ResponsibleID: task.Ptr("u2")},
	}
	Sort{Field: SortResponsible, Direction: Asc}.Apply(out, l)
	assert.Equal(t, []string{"adam", "zoe", "nobody"}, ids(out))
}

func TestSort_LastActivityFallbacks(t *testing.T) {
	l := testLookup()
	l.LastActivity = map[string]time.Time{"logged": *day(20)}
	out := []task.Task{
		{ID: "created", CreatedAt: *day(2)},
		{ID: "logged", CreatedAt: *day(1), UpdatedAt: *day(1)},
		{ID: "updated", CreatedAt: *day(1), UpdatedAt: *day(10)},
	}
	Sort{Field: SortLastActivity, Direction: Desc}.Apply(out, l)
	assert.Equal(t, []string{"logged", "updated", "created"}, ids(out))
}

func TestParseSort(t *testing.T) {
	s, err := ParseSort("Due", "")
	require.NoError(t, err)
	assert.Equal(t, Sort{Field: SortDue, Direction: Asc}, s)

	_, err = ParseSort("priority", "asc")
	assert.Equal(t, clierr.InvalidSort, clierr.CodeOf(err))
	_, err = ParseSort("due", "sideways")
	assert.Equal(t, clierr.InvalidSort, clierr.CodeOf(err))

	assert.Equal(t, SortTitle, Sort{Field: SortLastActivity}.Next().Field)
	assert.Equal(t, Desc, s.Toggle().Direction)
}

func TestProjector_PureAndMemoized(t *testing.T) {
	l := testLookup()
	c := cache.New[task.Task]()
	c.Upsert(task.Task{ID: "b", Title: "beta"})
	c.Upsert(task.Task{ID: "a", Title: "alpha"})
	c.Upsert(task.Task{ID: "c", Title: "gamma"})

	var p Projector
	f := Filter{Search: "a"}
	s := Sort{Field: SortTitle, Direction: Asc}

	first := p.Project(c, f, s, l)
	second := p.Project(c, f, s, l)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"a", "b", "c"}, ids(first))
	assert.Equal(t, 1, p.Computations())

	c.Upsert(task.Task{ID: "d", Title: "delta"})
	third := p.Project(c, f, s, l)
	assert.Equal(t, []string{"a", "b", "d", "c"}, ids(third))
	assert.Equal(t, 2, p.Computations())

	p.Project(c, f, s.Toggle(), l)
	assert.Equal(t, 3, p.Computations())

	third[0].Title = "mutated"
	again := p.Project(c, f, s, l)
	assert.Equal(t, "alpha", again[0].Title)
}

func TestColumns_OrderedByPosition(t *testing.T) {
	l := testLookup()
	tasks := []task.Task{
		{ID: "t2", StatusID: "s-todo", Position: 2000},
		{ID: "t1", StatusID: "s-todo", Position: 1000},
		{ID: "sub", StatusID: "s-todo", Position: 500, ParentID: task.Ptr("t1")},
		{ID: "x", StatusID: "s-done", Position: 1000},
	}
	cols := Columns(tasks, l)
	require.Len(t, cols, 3)
	assert.Equal(t, []string{"t1", "t2"}, ids(cols[0].Tasks))
	assert.Empty(t, cols[1].Tasks)
	assert.True(t, cols[2].Done)
	assert.Equal(t, map[string]int{"t1": 1}, SubtaskCounts(tasks))
}

func TestSummary(t *testing.T) {
	l := testLookup()
	now := *day(15)
	tasks := []task.Task{
		{ID: "late", StatusID: "s-todo", Due: day(1), Priority: 3},
		{ID: "ok", StatusID: "s-todo", Due: day(20)},
		{ID: "done-late", StatusID: "s-done", Due: day(1)},
	}
	ov := Summary("demo", tasks, l, now)
	assert.Equal(t, 3, ov.TotalTasks)
	assert.Equal(t, 1, ov.Completed)
	assert.Equal(t, 1, ov.Overdue)
	assert.Equal(t, 2, ov.Statuses[0].Count)
	assert.Equal(t, 1, ov.Statuses[0].Overdue)
	assert.Equal(t, PriorityCount{Priority: "urgent", Count: 1}, ov.Priorities[3])
}

func TestParseIDs(t *testing.T) {
	got, err := ParseIDs("a, b,a,,c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got)

	_, err = ParseIDs(" , ")
	assert.Error(t, err)
}

func TestResolveID(t *testing.T) {
	tasks := []task.Task{{ID: "abc123"}, {ID: "abd456"}}
	got, err := ResolveID(tasks, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.ID)

	_, err = ResolveID(tasks, "ab")
	assert.Equal(t, clierr.InvalidTaskID, clierr.CodeOf(err))
	_, err = ResolveID(tasks, "zz")
	assert.Equal(t, clierr.TaskNotFound, clierr.CodeOf(err))
}

func TestChangeEntries(t *testing.T) {
	now := time.Now()
	before := task.Task{ID: "a", StatusID: "s-todo", Title: "same"}
	after := before.Clone()
	after.StatusID = "s-done"

	entries := ChangeEntries(before, after, task.FieldStatus|task.FieldTitle, "s-done", "u1", now)
	require.Len(t, entries, 1)
	assert.Equal(t, ActivityEntry{
		TaskID: "a", Field: "status_id", OldValue: "s-todo", NewValue: "s-done",
		Type: ActivityComplete, Timestamp: now, ActorID: "u1",
	}, entries[0])
}

func TestFileLog(t *testing.T) {
	ctx := context.Background()
	log := NewFileLog(filepath.Join(t.TempDir(), "activity.jsonl"))

	last, err := log.LastActivity(ctx)
	require.NoError(t, err)
	assert.Empty(t, last)

	require.NoError(t, log.Append(ctx,
		ActivityEntry{TaskID: "a", Type: ActivityCreated, Timestamp: *day(1)},
		ActivityEntry{TaskID: "b", Type: ActivityCreated, Timestamp: *day(2)},
	))
	require.NoError(t, log.Append(ctx, ActivityEntry{TaskID: "a", Type: ActivityChanged, Field: "title", Timestamp: *day(3)}))

	recent, err := log.Recent(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, ActivityChanged, recent[0].Type)

	last, err = log.LastActivity(ctx)
	require.NoError(t, err)
	assert.True(t, last["a"].Equal(*day(3)))
	assert.True(t, last["b"].Equal(*day(2)))
}
