package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twiced-technology-gmbh/taskboard/internal/clierr"
	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

func column(status string, positions ...int) []task.Task {
	out := make([]task.Task, len(positions))
	for i, p := range positions {
		out[i] = task.Task{ID: status + "-" + string(rune('a'+i)), StatusID: status, Position: p}
	}
	return out
}

func TestPlanTaskDrop_Midpoint(t *testing.T) {
	tasks := append(column("todo", 1000, 2000), task.Task{ID: "m", StatusID: "doing", Position: 7000})
	moving := tasks[2]

	plan, err := PlanTaskDrop(tasks, moving, tasks[1], Before, 1000)
	require.NoError(t, err)
	assert.Greater(t, plan.Position, 1000)
	assert.Less(t, plan.Position, 2000)
	assert.Equal(t, "todo", plan.StatusID)
	assert.Equal(t, task.FieldStatus|task.FieldPosition, plan.Fields())
	assert.Empty(t, plan.Renumber)
}

func TestPlanTaskDrop_Ends(t *testing.T) {
	tasks := append(column("todo", 1000, 2000), task.Task{ID: "m", StatusID: "doing", Position: 1})
	moving := tasks[2]

	plan, err := PlanTaskDrop(tasks, moving, tasks[1], After, 1000)
	require.NoError(t, err)
	assert.Equal(t, 3000, plan.Position)

	plan, err = PlanTaskDrop(tasks, moving, tasks[0], Before, 1000)
	require.NoError(t, err)
	assert.Equal(t, 500, plan.Position)
}

func TestPlanTaskDrop_RenumbersWhenNoRoom(t *testing.T) {
	tasks := append(column("todo", 1, 2, 3), task.Task{ID: "m", StatusID: "doing", Position: 1})
	moving := tasks[3]

	plan, err := PlanTaskDrop(tasks, moving, tasks[1], Before, 1000)
	require.NoError(t, err)
	assert.Equal(t, 2000, plan.Position)
	assert.Equal(t, map[string]int{"todo-a": 1000, "todo-b": 3000, "todo-c": 4000}, plan.Renumber)
}

func TestPlanTaskDrop_SamePlaceIsNoChange(t *testing.T) {
	tasks := column("todo", 1000, 2000, 3000)

	plan, err := PlanTaskDrop(tasks, tasks[1], tasks[0], After, 1000)
	require.NoError(t, err)
	assert.True(t, plan.NoChange)

	plan, err = PlanTaskDrop(tasks, tasks[1], tasks[1], Before, 1000)
	require.NoError(t, err)
	assert.True(t, plan.NoChange)
	assert.Equal(t, task.Fields(0), plan.Fields())

	plan, err = PlanTaskDrop(tasks, tasks[0], tasks[2], After, 1000)
	require.NoError(t, err)
	assert.False(t, plan.NoChange)
	assert.Equal(t, 4000, plan.Position)
	assert.Equal(t, task.FieldPosition, plan.Fields())
}

func TestPlanTaskDrop_RejectsOtherParent(t *testing.T) {
	parent := task.Task{ID: "p", StatusID: "todo", Position: 1000}
	sub := task.Task{ID: "s", StatusID: "todo", Position: 1000, ParentID: task.Ptr("p"), IsSubtask: true}
	_, err := PlanTaskDrop([]task.Task{parent, sub}, sub, parent, Before, 1000)
	assert.Equal(t, clierr.InvalidPlacement, clierr.CodeOf(err))
}

func TestPlanColumnDrop(t *testing.T) {
	tasks := append(column("doing", 3000, 5000), task.Task{ID: "m", StatusID: "todo", Position: 9000})

	plan := PlanColumnDrop(tasks, tasks[2], "doing", 1000)
	assert.Equal(t, 6000, plan.Position)

	plan = PlanColumnDrop(tasks, tasks[2], "done", 1000)
	assert.Equal(t, 1000, plan.Position)

	plan = PlanColumnDrop(tasks, tasks[1], "doing", 1000)
	assert.True(t, plan.NoChange)

	plan = PlanColumnDrop(tasks, tasks[0], "doing", 1000)
	assert.False(t, plan.NoChange)
	assert.Equal(t, 6000, plan.Position)
}

func TestGesture_CancelMakesNoCall(t *testing.T) {
	fb := newFakeBackend(seed()...)
	e, _, _ := newTestEngine(t, fb)
	v := e.Version()

	g, err := e.BeginDrag("a")
	require.NoError(t, err)
	assert.Equal(t, Dragging, g.State())
	g.Cancel()

	assert.Equal(t, Cancelled, g.State())
	assert.Equal(t, v, e.Version())
	assert.Empty(t, fb.Calls())

	_, err = g.DropOnColumn(context.Background(), "doing")
	assert.Error(t, err)
}

func TestGesture_DropOnColumnMoves(t *testing.T) {
	fb := newFakeBackend(seed()...)
	e, _, _ := newTestEngine(t, fb)

	g, err := e.BeginDrag("a")
	require.NoError(t, err)
	h, err := g.DropOnColumn(context.Background(), "doing")
	require.NoError(t, err)
	require.NotNil(t, h)
	require.NoError(t, h.Wait(context.Background()))

	assert.Equal(t, Applied, g.State())
	got := mustGet(t, e, "a")
	assert.Equal(t, "doing", got.StatusID)
	assert.Equal(t, 6000, got.Position)
	require.Len(t, fb.patches, 1)
	assert.Equal(t, task.FieldStatus|task.FieldPosition, fb.patches[0].Fields)
}

func TestGesture_DropIntoDoneAwaitsResult(t *testing.T) {
	fb := newFakeBackend(seed()...)
	e, _, _ := newTestEngine(t, fb)

	g, err := e.BeginDrag("c")
	require.NoError(t, err)
	h, err := g.DropOnColumn(context.Background(), "done")
	require.NoError(t, err)
	assert.Nil(t, h)
	assert.Equal(t, AwaitingCompletion, g.State())
	assert.True(t, g.Plan().Completes)
	assert.Equal(t, "doing", mustGet(t, e, "c").StatusID)

	_, err = g.Complete(context.Background(), "  ", nil)
	assert.Equal(t, clierr.ResultRequired, clierr.CodeOf(err))
	assert.Equal(t, AwaitingCompletion, g.State())
	assert.Empty(t, fb.Calls())

	h, err = g.Complete(context.Background(), "Merged", []string{"https://example.com/pr/1"})
	require.NoError(t, err)
	require.NoError(t, h.Wait(context.Background()))
	assert.Equal(t, Applied, g.State())

	got := mustGet(t, e, "c")
	assert.Equal(t, "done", got.StatusID)
	assert.Equal(t, "Merged", got.Result)
	assert.NotNil(t, got.CompletedAt)
}

func TestGesture_DeclineKeepsStatus(t *testing.T) {
	fb := newFakeBackend(seed()...)
	e, _, _ := newTestEngine(t, fb)

	g, err := e.BeginDrag("a")
	require.NoError(t, err)
	_, err = g.DropOnTask(context.Background(), "c", After)
	require.NoError(t, err)
	assert.Equal(t, Applied, g.State())

	g, err = e.BeginDrag("b")
	require.NoError(t, err)
	_, err = g.DropOnColumn(context.Background(), "done")
	require.NoError(t, err)
	g.Decline()
	assert.Equal(t, Cancelled, g.State())
	assert.Equal(t, "todo", mustGet(t, e, "b").StatusID)
}

func TestGesture_RenumberIssuesSiblingUpdates(t *testing.T) {
	tasks := []task.Task{
		{ID: "x", Title: "x", StatusID: "todo", Position: 1},
		{ID: "y", Title: "y", StatusID: "todo", Position: 2},
		{ID: "m", Title: "m", StatusID: "doing", Position: 1000},
	}
	fb := newFakeBackend(tasks...)
	e, _, _ := newTestEngine(t, fb)

	g, err := e.BeginDrag("m")
	require.NoError(t, err)
	h, err := g.DropOnTask(context.Background(), "y", Before)
	require.NoError(t, err)
	require.NoError(t, h.Wait(context.Background()))

	assert.Equal(t, 1000, mustGet(t, e, "x").Position)
	assert.Equal(t, 2000, mustGet(t, e, "m").Position)
	assert.Equal(t, 3000, mustGet(t, e, "y").Position)
	assert.ElementsMatch(t, []string{"x", "y", "m"}, h.IDs())
}

func TestMove_DoneWithoutResult(t *testing.T) {
	fb := newFakeBackend(seed()...)
	e, _, _ := newTestEngine(t, fb)

	_, err := e.Move(context.Background(), "a", "done", "", After, "")
	assert.Equal(t, clierr.ResultRequired, clierr.CodeOf(err))
	assert.Empty(t, fb.Calls())

	require.NoError(t, mustWait(e.Move(context.Background(), "a", "done", "", After, "Shipped")))
	assert.Equal(t, "done", mustGet(t, e, "a").StatusID)
}
