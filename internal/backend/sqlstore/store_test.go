package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twiced-technology-gmbh/taskboard/internal/backend"
	"github.com/twiced-technology-gmbh/taskboard/internal/board"
	"github.com/twiced-technology-gmbh/taskboard/internal/feed"
	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

type recorder struct {
	mu     sync.Mutex
	events []feed.Event
}

func (r *recorder) handle(ev feed.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) take() []feed.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

var testNow = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) (*Store, *recorder) {
	t.Helper()
	hub := feed.NewHub()
	rec := &recorder{}
	hub.Subscribe(feed.EntityTasks, rec.handle)
	hub.Subscribe(feed.EntityRoleAssignments, rec.handle)

	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "board.db"), hub, WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.EnsureStatuses(context.Background(), []task.Status{
		{ID: "todo", Name: "Todo"}, {ID: "doing", Name: "Doing"}, {ID: "done", Name: "Done"},
	}))
	return s, rec
}

func TestStore_StatusesAreOrderedAndStable(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureStatuses(ctx, []task.Status{{Name: "Done", Color: "34"}, {Name: "Todo"}, {Name: "Review"}}))
	statuses, err := s.FetchStatuses(ctx)
	require.NoError(t, err)

	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = st.Name
	}
	// Doing was not listed and keeps position 1, sharing it with Todo.
	assert.Equal(t, []string{"Done", "Doing", "Todo", "Review"}, names)
	assert.Equal(t, "done", statuses[0].ID)
	assert.Equal(t, "34", statuses[0].Color)
}

func TestStore_CreateKeepsProposedIDAndPublishes(t *testing.T) {
	s, rec := openTestStore(t)
	ctx := context.Background()
	rec.take()

	due := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	created, err := s.CreateTask(ctx, task.Task{
		ID: "t1", Title: "Write docs", StatusID: "todo", Position: 1000,
		ResponsibleID: task.Ptr("u1"), CoworkerIDs: []string{"u2", "u1"}, Due: &due,
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", created.ID)

	events := rec.take()
	require.Len(t, events, 1)
	assert.Equal(t, feed.Insert, events[0].Type)
	assert.Equal(t, "t1", events[0].ID)

	var row task.Task
	require.NoError(t, json.Unmarshal(events[0].New, &row))
	assert.Equal(t, []string{"u2"}, row.CoworkerIDs)
	require.NotNil(t, row.Due)
	assert.True(t, row.Due.Equal(due))

	got, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Write docs", got.Title)
	assert.Equal(t, testNow, got.CreatedAt)
}

func TestStore_CreateGeneratesID(t *testing.T) {
	s, _ := openTestStore(t)
	created, err := s.CreateTask(context.Background(), task.Task{Title: "x", StatusID: "todo"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
}

func TestStore_CreateRejectsUnknownStatus(t *testing.T) {
	s, _ := openTestStore(t)
	_, err := s.CreateTask(context.Background(), task.Task{Title: "x", StatusID: "ghost"})
	require.Error(t, err)
	assert.True(t, IsConstraintError(err))
}

func TestStore_UpdateWritesOnlyPatchedFields(t *testing.T) {
	s, rec := openTestStore(t)
	ctx := context.Background()
	_, err := s.CreateTask(ctx, task.Task{ID: "t1", Title: "Original", Description: "keep", StatusID: "todo"})
	require.NoError(t, err)
	rec.take()

	err = s.UpdateTask(ctx, "t1", task.Patch{
		Fields: task.FieldTitle | task.FieldPriority,
		Values: task.Task{Title: "Renamed", Priority: 2, Description: "ignored"},
	})
	require.NoError(t, err)

	got, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, 2, got.Priority)
	assert.Equal(t, "keep", got.Description)

	events := rec.take()
	require.Len(t, events, 1)
	cols, err := events[0].ChangedColumns()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"title", "priority"}, cols)
}

func TestStore_UpdateMissingTask(t *testing.T) {
	s, _ := openTestStore(t)
	err := s.UpdateTask(context.Background(), "ghost", task.Patch{Fields: task.FieldTitle, Values: task.Task{Title: "x"}})
	assert.True(t, errors.Is(err, backend.ErrNotFound))
}

func TestStore_DeleteCascadesToSubtasks(t *testing.T) {
	s, rec := openTestStore(t)
	ctx := context.Background()
	_, err := s.CreateTask(ctx, task.Task{ID: "p", Title: "Parent", StatusID: "todo"})
	require.NoError(t, err)
	_, err = s.CreateTask(ctx, task.Task{ID: "c", Title: "Child", StatusID: "todo", ParentID: task.Ptr("p")})
	require.NoError(t, err)
	rec.take()

	require.NoError(t, s.DeleteTask(ctx, "p"))
	tasks, err := s.FetchTasks(ctx, backend.Scope{})
	require.NoError(t, err)
	assert.Empty(t, tasks)

	events := rec.take()
	require.Len(t, events, 2)
	assert.Equal(t, feed.Delete, events[0].Type)
	assert.Equal(t, "c", events[0].ID)
	assert.Equal(t, "p", events[1].ID)

	require.NoError(t, s.DeleteTask(ctx, "p"))
	assert.Empty(t, rec.take())
}

func TestStore_FetchTasksScope(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	mk := func(tk task.Task) {
		tk.StatusID = "todo"
		_, err := s.CreateTask(ctx, tk)
		require.NoError(t, err)
	}
	mk(task.Task{ID: "a", Title: "a", ProjectID: task.Ptr("web"), OwnerID: "u1"})
	mk(task.Task{ID: "b", Title: "b", ProjectID: task.Ptr("api"), ResponsibleID: task.Ptr("u2")})
	mk(task.Task{ID: "c", Title: "c", CoworkerIDs: []string{"u2"}})

	ids := func(scope backend.Scope) []string {
		tasks, err := s.FetchTasks(ctx, scope)
		require.NoError(t, err)
		out := make([]string, len(tasks))
		for i, tk := range tasks {
			out[i] = tk.ID
		}
		return out
	}

	assert.ElementsMatch(t, []string{"a"}, ids(backend.Scope{ProjectID: "web"}))
	assert.ElementsMatch(t, []string{"b", "c"}, ids(backend.Scope{Participant: "u2"}))

	_, err := s.AssignRole(ctx, "u3", task.RoleViewer, task.Ptr("api"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b"}, ids(backend.Scope{Viewer: "u3"}))

	_, err = s.AssignRole(ctx, "u3", task.RoleAdmin, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids(backend.Scope{Viewer: "u3"}))
}

func TestStore_RoleAssignments(t *testing.T) {
	s, rec := openTestStore(t)
	ctx := context.Background()
	rec.take()

	r, err := s.AssignRole(ctx, "u1", task.RoleMember, task.Ptr("web"))
	require.NoError(t, err)
	roles, err := s.FetchRoleAssignments(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "web", task.StringValue(roles[0].ProjectID))

	require.NoError(t, s.RevokeRole(ctx, r.ID))
	assert.True(t, errors.Is(s.RevokeRole(ctx, r.ID), backend.ErrNotFound))

	events := rec.take()
	require.Len(t, events, 2)
	assert.Equal(t, feed.EntityRoleAssignments, events[0].Entity)
	assert.Equal(t, feed.Insert, events[0].Type)
	assert.Equal(t, feed.Delete, events[1].Type)
}

func TestStore_Users(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	u, err := s.EnsureUser(ctx, "Ada", "ada@example.com")
	require.NoError(t, err)
	again, err := s.EnsureUser(ctx, "ada", "")
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)

	users, err := s.Users(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestStore_Activity(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	t0 := testNow.Add(-time.Hour)

	require.NoError(t, s.Append(ctx,
		board.ActivityEntry{TaskID: "a", Type: board.ActivityCreated, Timestamp: t0},
		board.ActivityEntry{TaskID: "a", Type: board.ActivityChanged, Field: "title", NewValue: "x", Timestamp: testNow},
		board.ActivityEntry{TaskID: "b", Type: board.ActivityCreated, Timestamp: t0},
	))

	recent, err := s.Recent(ctx, "a", 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "title", recent[0].Field)

	all, err := s.Recent(ctx, "a", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	last, err := s.LastActivity(ctx)
	require.NoError(t, err)
	assert.Equal(t, testNow, last["a"])
	assert.Equal(t, t0, last["b"])
}

func TestStore_SyncPublishesExternalWrites(t *testing.T) {
	s, rec := openTestStore(t)
	ctx := context.Background()
	rec.take()

	other, err := sql.Open("sqlite", "file:"+s.Path()+"?_pragma=busy_timeout(5000)")
	require.NoError(t, err)
	t.Cleanup(func() { _ = other.Close() })
	_, err = other.ExecContext(ctx, `INSERT INTO tasks (id, title, status_id, created_at, updated_at) VALUES ('x', 'External', 'todo', 1, 1)`)
	require.NoError(t, err)

	require.NoError(t, s.Sync(ctx))
	events := rec.take()
	require.Len(t, events, 1)
	assert.Equal(t, "x", events[0].ID)

	require.NoError(t, s.Sync(ctx))
	assert.Empty(t, rec.take())
}

// holdWriteLock takes the database write lock on a second connection and
// returns a function releasing it.
func holdWriteLock(t *testing.T, path string) func() {
	t.Helper()
	ctx := context.Background()
	other, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(0)")
	require.NoError(t, err)
	t.Cleanup(func() { _ = other.Close() })
	conn, err := other.Conn(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_, err = conn.ExecContext(ctx, "BEGIN IMMEDIATE")
	require.NoError(t, err)
	return func() {
		_, err := conn.ExecContext(ctx, "COMMIT")
		assert.NoError(t, err)
	}
}

func openBusyStore(t *testing.T) (*Store, *recorder) {
	t.Helper()
	hub := feed.NewHub()
	rec := &recorder{}
	hub.Subscribe(feed.EntityTasks, rec.handle)
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "board.db"), hub, WithBusyTimeout(0))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.EnsureStatuses(context.Background(), []task.Status{{ID: "todo", Name: "Todo"}}))
	return s, rec
}

func TestStore_WriteRetriesWhileBusy(t *testing.T) {
	s, rec := openBusyStore(t)
	ctx := context.Background()

	release := holdWriteLock(t, s.Path())
	timer := time.AfterFunc(120*time.Millisecond, release)
	t.Cleanup(func() { timer.Stop() })

	_, err := s.CreateTask(ctx, task.Task{ID: "a", Title: "Alpha", StatusID: "todo"})
	require.NoError(t, err)
	got, err := s.GetTask(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", got.Title)
	require.Len(t, rec.take(), 1)

	require.NoError(t, s.Append(ctx, board.ActivityEntry{TaskID: "a", Type: board.ActivityComment, NewValue: "hi"}))
}

func TestStore_WriteGivesUpWhenBusy(t *testing.T) {
	s, rec := openBusyStore(t)
	ctx := context.Background()

	release := holdWriteLock(t, s.Path())
	t.Cleanup(release)

	_, err := s.CreateTask(ctx, task.Task{ID: "a", Title: "Alpha", StatusID: "todo"})
	require.Error(t, err)
	assert.True(t, IsBusyError(err))
	assert.Empty(t, rec.take())
}

func TestStore_BusyRetryStopsOnCancel(t *testing.T) {
	s, _ := openBusyStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	release := holdWriteLock(t, s.Path())
	t.Cleanup(release)

	time.AfterFunc(20*time.Millisecond, cancel)
	start := time.Now()
	_, err := s.CreateTask(ctx, task.Task{ID: "a", Title: "Alpha", StatusID: "todo"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestDiff(t *testing.T) {
	prev := map[string]json.RawMessage{"a": json.RawMessage(`{"id":"a"}`), "b": json.RawMessage(`{"id":"b"}`)}
	next := map[string]json.RawMessage{"b": json.RawMessage(`{"id":"b","x":1}`), "c": json.RawMessage(`{"id":"c"}`)}

	events := diff(feed.EntityTasks, prev, next)
	require.Len(t, events, 3)
	assert.Equal(t, feed.Insert, events[0].Type)
	assert.Equal(t, "c", events[0].ID)
	assert.Equal(t, feed.Update, events[1].Type)
	assert.Equal(t, feed.Delete, events[2].Type)
	assert.Equal(t, "a", events[2].ID)
}
