package tui

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twiced-technology-gmbh/taskboard/internal/backend/sqlstore"
	"github.com/twiced-technology-gmbh/taskboard/internal/config"
	"github.com/twiced-technology-gmbh/taskboard/internal/engine"
	"github.com/twiced-technology-gmbh/taskboard/internal/feed"
	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

var testNow = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func newTestBoard(t *testing.T, titles ...string) (*Board, *engine.Engine, []string) {
	t.Helper()
	ctx := context.Background()
	hub := feed.NewHub()
	store, err := sqlstore.Open(ctx, filepath.Join(t.TempDir(), "board.db"), hub)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.EnsureStatuses(ctx, []task.Status{
		{ID: "todo", Name: "Todo"}, {ID: "doing", Name: "Doing"}, {ID: "done", Name: "Done"},
	}))

	e := engine.New(engine.Options{Backend: store, Feed: hub, Activity: store, Actor: "u1", DoneStatus: "Done"})
	require.NoError(t, e.Load(ctx))
	t.Cleanup(e.Close)

	ids := make([]string, 0, len(titles))
	for _, title := range titles {
		h, err := e.Create(ctx, task.Task{Title: title, StatusID: "todo"})
		require.NoError(t, err)
		require.NoError(t, h.Wait(ctx))
		ids = append(ids, h.IDs()[0])
	}

	b := NewBoard(ctx, e, config.NewDefault("Test"))
	b.SetNow(func() time.Time { return testNow })
	b.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return b, e, ids
}

func press(b *Board, keys ...string) {
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "tab":
			msg = tea.KeyMsg{Type: tea.KeyTab}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		b.Update(msg)
	}
}

func columnTitles(c column) []string {
	out := make([]string, len(c.tasks))
	for i, t := range c.tasks {
		out[i] = t.Title
	}
	return out
}

func TestBoard_ColumnsFollowPositions(t *testing.T) {
	b, _, _ := newTestBoard(t, "Alpha", "Beta", "Gamma")

	require.Len(t, b.columns, 3)
	assert.Equal(t, []string{"Alpha", "Beta", "Gamma"}, columnTitles(b.columns[0]))
	assert.Empty(t, b.columns[1].tasks)
	assert.True(t, b.columns[2].done)
	assert.Equal(t, 3, b.total)
}

func TestBoard_Navigation(t *testing.T) {
	b, _, _ := newTestBoard(t, "Alpha", "Beta")

	press(b, "j")
	require.NotNil(t, b.selectedTask())
	assert.Equal(t, "Beta", b.selectedTask().Title)

	press(b, "j")
	assert.Equal(t, 1, b.activeRow, "cursor stops at the last card")

	press(b, "l")
	assert.Equal(t, 1, b.activeCol)
	assert.Nil(t, b.selectedTask())
}

func TestBoard_DragToColumnEnd(t *testing.T) {
	b, e, ids := newTestBoard(t, "Alpha", "Beta", "Gamma")

	press(b, "m", "j", "j", "j", "enter")
	require.Equal(t, viewBoard, b.view)

	assert.Equal(t, []string{"Beta", "Gamma", "Alpha"}, columnTitles(b.columns[0]))
	assert.Equal(t, "Alpha", b.selectedTask().Title, "the moved card stays highlighted")

	alpha, _ := e.Get(ids[0])
	gamma, _ := e.Get(ids[2])
	assert.Greater(t, alpha.Position, gamma.Position)
}

func TestBoard_DragBetweenCards(t *testing.T) {
	b, e, ids := newTestBoard(t, "Alpha", "Beta", "Gamma")

	// Gamma goes before Beta.
	press(b, "j", "j", "m", "k", "enter")

	assert.Equal(t, []string{"Alpha", "Gamma", "Beta"}, columnTitles(b.columns[0]))
	alpha, _ := e.Get(ids[0])
	beta, _ := e.Get(ids[1])
	gamma, _ := e.Get(ids[2])
	assert.Greater(t, gamma.Position, alpha.Position)
	assert.Less(t, gamma.Position, beta.Position)
}

func TestBoard_DragCancelLeavesTaskAlone(t *testing.T) {
	b, e, ids := newTestBoard(t, "Alpha", "Beta")
	before, _ := e.Get(ids[0])

	press(b, "m", "l", "esc")

	assert.Equal(t, viewBoard, b.view)
	assert.Nil(t, b.drag)
	after, _ := e.Get(ids[0])
	assert.Equal(t, before, after)
}

func TestBoard_DropIntoDoneNeedsResult(t *testing.T) {
	b, e, ids := newTestBoard(t, "Alpha")

	press(b, "m", "l", "l", "enter")
	require.Equal(t, viewComplete, b.view)

	got, _ := e.Get(ids[0])
	assert.Equal(t, "todo", got.StatusID, "nothing moves before a result is given")

	press(b, "enter")
	assert.Equal(t, viewComplete, b.view)
	require.Error(t, b.err)

	press(b, "shipped", "enter")
	assert.Equal(t, viewBoard, b.view)
	got, _ = e.Get(ids[0])
	assert.Equal(t, "done", got.StatusID)
	assert.Equal(t, "shipped", got.Result)
	assert.Equal(t, 1, b.columns[2].hidden, "done tasks are folded by default")
}

func TestBoard_DropIntoDoneDeclined(t *testing.T) {
	b, e, ids := newTestBoard(t, "Alpha")

	press(b, "m", "l", "l", "enter", "esc")

	assert.Equal(t, viewBoard, b.view)
	got, _ := e.Get(ids[0])
	assert.Equal(t, "todo", got.StatusID)
}

func TestBoard_SearchFiltersColumns(t *testing.T) {
	b, _, _ := newTestBoard(t, "Write docs", "Fix login", "Docs review")

	press(b, "/", "docs")
	assert.Equal(t, "docs", b.filter.Search)
	assert.Equal(t, []string{"Write docs", "Docs review"}, columnTitles(b.columns[0]))

	press(b, "enter")
	assert.Equal(t, viewBoard, b.view)

	press(b, "esc")
	assert.Empty(t, b.filter.Search)
	assert.Len(t, b.columns[0].tasks, 3)
}

func TestBoard_SortCyclesFields(t *testing.T) {
	b, _, _ := newTestBoard(t, "Gamma", "Alpha", "Beta")

	press(b, "s")
	assert.Equal(t, []string{"Alpha", "Beta", "Gamma"}, columnTitles(b.columns[0]))

	press(b, "S")
	assert.Equal(t, []string{"Gamma", "Beta", "Alpha"}, columnTitles(b.columns[0]))

	press(b, "o")
	assert.Equal(t, []string{"Gamma", "Alpha", "Beta"}, columnTitles(b.columns[0]))
}

func TestBoard_DeleteWithConfirmation(t *testing.T) {
	b, e, ids := newTestBoard(t, "Alpha", "Beta")

	press(b, "d", "n")
	_, ok := e.Get(ids[0])
	assert.True(t, ok)

	press(b, "d", "y")
	_, ok = e.Get(ids[0])
	assert.False(t, ok)
	assert.Equal(t, []string{"Beta"}, columnTitles(b.columns[0]))
}

func TestBoard_DeleteSelected(t *testing.T) {
	b, e, _ := newTestBoard(t, "Alpha", "Beta", "Gamma")

	press(b, "x", "j", "x")
	assert.Equal(t, 2, e.Selection().Len())

	press(b, "D", "y")
	assert.Equal(t, 0, e.Selection().Len())
	assert.Equal(t, []string{"Gamma"}, columnTitles(b.columns[0]))
}

func TestBoard_NoticeShownAndCleared(t *testing.T) {
	b, _, _ := newTestBoard(t)

	_, cmd := b.Update(NoticeMsg{Notice: engine.Notice{Op: engine.OpDelete, IDs: []string{"abc"}, Err: assert.AnError}})
	require.NotNil(t, cmd)
	assert.Contains(t, b.notice, "could not delete")
	assert.Contains(t, b.View(), "could not delete")

	b.Update(clearNoticeMsg{seq: b.noticeSeq})
	assert.Empty(t, b.notice)
}

func TestBoard_ViewRendersCards(t *testing.T) {
	b, _, _ := newTestBoard(t, "Alpha")

	out := b.View()
	assert.Contains(t, out, "Todo (1)")
	assert.Contains(t, out, "Alpha")
	assert.Contains(t, out, "sort: manual")
}

func TestWrapTitle(t *testing.T) {
	assert.Equal(t, []string{"short"}, wrapTitle("short", 20, 2))
	assert.Equal(t, []string{"one two", "three four"}, wrapTitle("one two three four", 10, 2))
	lines := wrapTitle("one two three four five six", 10, 2)
	require.Len(t, lines, 2)
	assert.Equal(t, "three f...", lines[1])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "hello w...", truncate("hello world!", 10))
}

func TestHumanDuration(t *testing.T) {
	assert.Equal(t, "<1m", humanDuration(30*time.Second))
	assert.Equal(t, "5m", humanDuration(5*time.Minute))
	assert.Equal(t, "3h", humanDuration(3*time.Hour))
	assert.Equal(t, "2d", humanDuration(50*time.Hour))
	assert.Equal(t, "2w", humanDuration(15*24*time.Hour))
}
