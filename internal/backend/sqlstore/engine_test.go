package sqlstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twiced-technology-gmbh/taskboard/internal/backend"
	"github.com/twiced-technology-gmbh/taskboard/internal/backend/sqlstore"
	"github.com/twiced-technology-gmbh/taskboard/internal/board"
	"github.com/twiced-technology-gmbh/taskboard/internal/engine"
	"github.com/twiced-technology-gmbh/taskboard/internal/feed"
	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

func TestEngineOverStore_EchoesAndSecondView(t *testing.T) {
	ctx := context.Background()
	hub := feed.NewHub()
	store, err := sqlstore.Open(ctx, filepath.Join(t.TempDir(), "board.db"), hub)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.EnsureStatuses(ctx, []task.Status{{ID: "todo", Name: "Todo"}, {ID: "done", Name: "Done"}}))

	newEngine := func() *engine.Engine {
		e := engine.New(engine.Options{Backend: store, Feed: hub, Activity: store, Actor: "u1"})
		require.NoError(t, e.Load(ctx))
		t.Cleanup(e.Close)
		return e
	}
	local, remote := newEngine(), newEngine()

	h, err := local.Create(ctx, task.Task{Title: "Write docs"})
	require.NoError(t, err)
	require.NoError(t, h.Wait(ctx))
	id := h.IDs()[0]

	assert.Equal(t, 1, local.Reconciler().Stats().Suppressed)
	got, ok := remote.Get(id)
	require.True(t, ok)
	assert.Equal(t, "Write docs", got.Title)

	h, err = local.Update(ctx, id, task.Patch{
		Fields: task.FieldStatus | task.FieldResult,
		Values: task.Task{StatusID: "done", Result: "Published"},
	})
	require.NoError(t, err)
	require.NoError(t, h.Wait(ctx))

	got, _ = remote.Get(id)
	assert.Equal(t, "done", got.StatusID)
	assert.NotNil(t, got.CompletedAt)

	entries, err := local.Activity(ctx, id, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	types := []string{entries[0].Type, entries[1].Type, entries[2].Type}
	assert.Contains(t, types, board.ActivityComplete)
	assert.Equal(t, board.ActivityCreated, entries[2].Type)

	h, err = remote.Delete(ctx, id)
	require.NoError(t, err)
	require.NoError(t, h.Wait(ctx))
	_, ok = local.Get(id)
	assert.False(t, ok)
	assert.Equal(t, 0, remote.Pending())
}

func TestEngineOverStore_ScopedViewFollowsParticipation(t *testing.T) {
	ctx := context.Background()
	hub := feed.NewHub()
	store, err := sqlstore.Open(ctx, filepath.Join(t.TempDir(), "board.db"), hub)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.EnsureStatuses(ctx, []task.Status{{ID: "todo", Name: "Todo"}, {ID: "done", Name: "Done"}}))

	newEngine := func(scope backend.Scope) *engine.Engine {
		e := engine.New(engine.Options{Backend: store, Feed: hub, Activity: store, Actor: "u1", Scope: scope})
		require.NoError(t, e.Load(ctx))
		t.Cleanup(e.Close)
		return e
	}
	all := newEngine(backend.Scope{})
	mine := newEngine(backend.Scope{Participant: "u2"})

	h, err := all.Create(ctx, task.Task{Title: "Write docs"})
	require.NoError(t, err)
	require.NoError(t, h.Wait(ctx))
	id := h.IDs()[0]
	_, ok := mine.Get(id)
	assert.False(t, ok, "u2 takes no part in the task yet")

	h, err = all.Update(ctx, id, task.Patch{Fields: task.FieldResponsible, Values: task.Task{ResponsibleID: task.Ptr("u2")}})
	require.NoError(t, err)
	require.NoError(t, h.Wait(ctx))
	got, ok := mine.Get(id)
	require.True(t, ok)
	assert.Equal(t, "u2", task.StringValue(got.ResponsibleID))

	h, err = all.Update(ctx, id, task.Patch{Fields: task.FieldResponsible, Values: task.Task{}})
	require.NoError(t, err)
	require.NoError(t, h.Wait(ctx))
	_, ok = mine.Get(id)
	assert.False(t, ok)
	assert.Empty(t, mine.Tasks())
}
