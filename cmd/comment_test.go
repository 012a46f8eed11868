package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twiced-technology-gmbh/taskboard/internal/board"
	"github.com/twiced-technology-gmbh/taskboard/internal/clierr"
	"github.com/twiced-technology-gmbh/taskboard/internal/config"
	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

func TestComment_AppendsNoteAndLeadsLastActivity(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, config.Init(dir, config.NewDefault("Test")))
	prev := flagDir
	flagDir = dir
	t.Cleanup(func() { flagDir = prev })

	s, err := openSession(ctx)
	require.NoError(t, err)
	var ids []string
	for _, title := range []string{"Alpha", "Beta"} {
		h, err := s.engine.Create(ctx, task.Task{Title: title})
		require.NoError(t, err)
		require.NoError(t, s.wait(ctx, h))
		ids = append(ids, h.IDs()[0])
	}
	s.Close()

	require.NoError(t, runComment(nil, []string{ids[0], "halfway", "there"}))

	s, err = openSession(ctx)
	require.NoError(t, err)
	defer s.Close()

	entries, err := s.engine.Activity(ctx, ids[0], 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, board.ActivityComment, entries[0].Type)
	assert.Equal(t, "halfway there", entries[0].NewValue)

	view := s.engine.View(board.Filter{}, board.Sort{Field: board.SortLastActivity, Direction: board.Desc})
	require.Len(t, view, 2)
	assert.Equal(t, ids[0], view[0].ID)

	err = runComment(nil, []string{ids[0], " "})
	assert.Equal(t, clierr.InvalidInput, clierr.CodeOf(err))
}
