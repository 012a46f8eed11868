package engine

import (
	"context"
	"slices"
	"strings"

	"github.com/twiced-technology-gmbh/taskboard/internal/board"
	"github.com/twiced-technology-gmbh/taskboard/internal/clierr"
	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

// GestureState is the state of a drag gesture.
type GestureState int

// Gesture states.
const (
	Idle GestureState = iota
	Dragging
	DroppedOnTask
	DroppedOnColumn
	Cancelled
	Applied
	AwaitingCompletion
)

var gestureStateNames = map[GestureState]string{
	Idle:               "idle",
	Dragging:           "dragging",
	DroppedOnTask:      "dropped-on-task",
	DroppedOnColumn:    "dropped-on-column",
	Cancelled:          "cancelled",
	Applied:            "applied",
	AwaitingCompletion: "awaiting-completion",
}

func (s GestureState) String() string { return gestureStateNames[s] }

// Placement says on which side of the target task a dragged task lands.
type Placement int

// Placements.
const (
	Before Placement = iota
	After
)

// Plan is the resolved outcome of a drop: the dragged task's new status and
// position, plus position-only updates for siblings when the partition had
// to be renumbered.
type Plan struct {
	TaskID    string         `json:"task_id"`
	FromID    string         `json:"from_status_id"`
	StatusID  string         `json:"status_id"`
	Position  int            `json:"position"`
	Renumber  map[string]int `json:"renumber,omitempty"`
	NoChange  bool           `json:"no_change,omitempty"`
	Completes bool           `json:"completes,omitempty"`
}

// Fields returns the fields the plan writes on the dragged task.
func (p Plan) Fields() task.Fields {
	if p.NoChange {
		return 0
	}
	if p.StatusID != p.FromID {
		return task.FieldStatus | task.FieldPosition
	}
	return task.FieldPosition
}

// PlanColumnDrop places moving after the last task of statusID's partition.
// Dropping a task on its own column when it is already last is no change.
func PlanColumnDrop(tasks []task.Task, moving task.Task, statusID string, gap int) Plan {
	plan := Plan{TaskID: moving.ID, FromID: moving.StatusID, StatusID: statusID}
	part := task.Partition{StatusID: statusID, ParentID: task.StringValue(moving.ParentID)}
	siblings := without(board.Partition(tasks, part), moving.ID)

	if moving.StatusID == statusID && (len(siblings) == 0 || moving.Position > siblings[len(siblings)-1].Position) {
		plan.Position = moving.Position
		plan.NoChange = true
		return plan
	}
	plan.Position = appendPosition(siblings, part, moving.ID, gap)
	return plan
}

// PlanTaskDrop places moving before or after target, taking target's status.
// The position is interpolated between the new neighbors, appended past the
// last task, or halved before the first. When no integer fits, the partition
// is renumbered with gap spacing.
func PlanTaskDrop(tasks []task.Task, moving, target task.Task, placement Placement, gap int) (Plan, error) {
	plan := Plan{TaskID: moving.ID, FromID: moving.StatusID, StatusID: target.StatusID}
	if moving.ID == target.ID {
		plan.Position, plan.NoChange = moving.Position, true
		return plan, nil
	}
	if task.StringValue(moving.ParentID) != task.StringValue(target.ParentID) {
		return Plan{}, clierr.New(clierr.InvalidPlacement, "tasks can only be reordered among siblings").
			WithDetails(map[string]any{"task": moving.ID, "target": target.ID})
	}

	part := target.PartitionKey()
	ordered := board.Partition(tasks, part)
	siblings := without(ordered, moving.ID)
	idx := slices.IndexFunc(siblings, func(t task.Task) bool { return t.ID == target.ID })
	if idx < 0 {
		return Plan{}, notFound(target.ID)
	}
	ins := idx
	if placement == After {
		ins++
	}

	var prev, next *task.Task
	if ins > 0 {
		prev = &siblings[ins-1]
	}
	if ins < len(siblings) {
		next = &siblings[ins]
	}

	if moving.StatusID == target.StatusID {
		if k := slices.IndexFunc(ordered, func(t task.Task) bool { return t.ID == moving.ID }); k >= 0 {
			samePrev := (k == 0 && prev == nil) || (k > 0 && prev != nil && ordered[k-1].ID == prev.ID)
			sameNext := (k == len(ordered)-1 && next == nil) || (k < len(ordered)-1 && next != nil && ordered[k+1].ID == next.ID)
			if samePrev && sameNext {
				plan.Position, plan.NoChange = moving.Position, true
				return plan, nil
			}
		}
	}

	switch {
	case prev != nil && next != nil && next.Position-prev.Position >= 2: //nolint:mnd // room for one integer between
		plan.Position = prev.Position + (next.Position-prev.Position)/2 //nolint:mnd // midpoint
		return plan, nil
	case prev != nil && next == nil:
		plan.Position = prev.Position + gap
		return plan, nil
	case prev == nil && next != nil && next.Position >= 2: //nolint:mnd // room before the first task
		plan.Position = next.Position / 2 //nolint:mnd // midpoint to zero
		return plan, nil
	}

	// No integer gap left: renumber the partition with the task in place.
	order := slices.Insert(slices.Clone(siblings), ins, moving)
	plan.Renumber = make(map[string]int)
	for i, t := range order {
		pos := (i + 1) * gap
		if t.ID == moving.ID {
			plan.Position = pos
			continue
		}
		if t.Position != pos {
			plan.Renumber[t.ID] = pos
		}
	}
	return plan, nil
}

func without(tasks []task.Task, id string) []task.Task {
	return slices.DeleteFunc(slices.Clone(tasks), func(t task.Task) bool { return t.ID == id })
}

// Gesture is one drag interaction. It is not safe for concurrent use; a view
// drives it from its event loop.
type Gesture struct {
	e      *Engine
	state  GestureState
	taskID string
	from   string
	plan   Plan
	handle *Handle
}

// BeginDrag starts dragging the task with the given id.
func (e *Engine) BeginDrag(id string) (*Gesture, error) {
	t, ok := e.tasks.Get(id)
	if !ok {
		return nil, notFound(id)
	}
	return &Gesture{e: e, state: Dragging, taskID: id, from: t.StatusID}, nil
}

// State returns the current state.
func (g *Gesture) State() GestureState { return g.state }

// TaskID returns the dragged task.
func (g *Gesture) TaskID() string { return g.taskID }

// FromStatus returns the status the task had when the drag started.
func (g *Gesture) FromStatus() string { return g.from }

// Plan returns the resolved drop, valid after a drop.
func (g *Gesture) Plan() Plan { return g.plan }

// Handle returns the handle of the applied move, or nil when no call was made.
func (g *Gesture) Handle() *Handle { return g.handle }

// Cancel abandons the drag. It never touches the cache or the backend.
func (g *Gesture) Cancel() {
	if g.state == Dragging || g.state == AwaitingCompletion {
		g.state = Cancelled
	}
}

// DropOnColumn drops the task onto a status column.
func (g *Gesture) DropOnColumn(ctx context.Context, statusID string) (*Handle, error) {
	if err := g.expect(Dragging); err != nil {
		return nil, err
	}
	moving, err := g.e.dragged(g.taskID)
	if err != nil {
		g.state = Cancelled
		return nil, err
	}
	if _, ok := g.e.Lookup().Status(statusID); !ok {
		return nil, clierr.Newf(clierr.InvalidStatus, "invalid status %q", statusID)
	}
	g.state = DroppedOnColumn
	g.plan = PlanColumnDrop(g.e.tasks.All(), moving, statusID, g.e.gap)
	return g.resolve(ctx)
}

// DropOnTask drops the task before or after another task.
func (g *Gesture) DropOnTask(ctx context.Context, targetID string, placement Placement) (*Handle, error) {
	if err := g.expect(Dragging); err != nil {
		return nil, err
	}
	moving, err := g.e.dragged(g.taskID)
	if err != nil {
		g.state = Cancelled
		return nil, err
	}
	target, ok := g.e.tasks.Get(targetID)
	if !ok {
		return nil, notFound(targetID)
	}
	plan, err := PlanTaskDrop(g.e.tasks.All(), moving, target, placement, g.e.gap)
	if err != nil {
		return nil, err
	}
	g.state = DroppedOnTask
	g.plan = plan
	return g.resolve(ctx)
}

// resolve turns a drop into a move, a completion prompt, or nothing.
func (g *Gesture) resolve(ctx context.Context) (*Handle, error) {
	if g.plan.NoChange {
		g.state = Applied
		return nil, nil
	}
	if g.plan.StatusID != g.plan.FromID && g.plan.StatusID == g.e.Lookup().DoneID {
		g.plan.Completes = true
		g.state = AwaitingCompletion
		return nil, nil
	}
	h, err := g.e.applyPlan(ctx, g.plan, "", nil)
	if err != nil {
		g.state = Cancelled
		return nil, err
	}
	g.state, g.handle = Applied, h
	return h, nil
}

// Complete supplies the completion result and optional attachment
// references, and moves the task into the done status. An empty result is
// rejected and the gesture keeps waiting.
func (g *Gesture) Complete(ctx context.Context, result string, attachments []string) (*Handle, error) {
	if err := g.expect(AwaitingCompletion); err != nil {
		return nil, err
	}
	if strings.TrimSpace(result) == "" {
		return nil, resultRequired(g.taskID)
	}
	h, err := g.e.applyPlan(ctx, g.plan, result, attachments)
	if err != nil {
		return nil, err
	}
	g.state, g.handle = Applied, h
	return h, nil
}

// Decline abandons a pending completion. The task keeps its original status.
func (g *Gesture) Decline() {
	if g.state == AwaitingCompletion {
		g.state = Cancelled
	}
}

func (g *Gesture) expect(s GestureState) error {
	if g.state != s {
		return clierr.Newf(clierr.InvalidPlacement, "gesture is %s, expected %s", g.state, s)
	}
	return nil
}

func (e *Engine) dragged(id string) (task.Task, error) {
	t, ok := e.tasks.Get(id)
	if !ok {
		return task.Task{}, notFound(id)
	}
	return t, nil
}

// applyPlan issues the move of the dragged task and the renumbering of its
// siblings. result is required when the plan completes the task.
func (e *Engine) applyPlan(ctx context.Context, p Plan, result string, attachments []string) (*Handle, error) {
	values := task.Task{StatusID: p.StatusID, Position: p.Position}
	fields := p.Fields()
	if result != "" {
		values.Result = strings.TrimSpace(result)
		fields |= task.FieldResult
	}
	var extra []board.ActivityEntry
	for _, a := range attachments {
		if a = strings.TrimSpace(a); a != "" {
			extra = append(extra, board.ActivityEntry{
				TaskID: p.TaskID, Type: board.ActivityAttach, NewValue: a, Timestamp: e.now(), ActorID: e.actor,
			})
		}
	}

	handles := make([]*Handle, 0, 1+len(p.Renumber))
	// Siblings first so the moved task never shares a position with one.
	ids := make([]string, 0, len(p.Renumber))
	for id := range p.Renumber {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		h, err := e.Update(ctx, id, task.Patch{Fields: task.FieldPosition, Values: task.Task{Position: p.Renumber[id]}})
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	h, err := e.update(ctx, p.TaskID, task.Patch{Fields: fields, Values: values}, extra)
	if err != nil {
		return nil, err
	}
	handles = append(handles, h)
	if len(handles) == 1 {
		return h, nil
	}
	return Join(handles...), nil
}

// Move moves a task to a status without a gesture: it is placed after the
// last task of the column, or before or after relTo when given. Moving into
// the done status requires a result; attachments are recorded with it.
func (e *Engine) Move(ctx context.Context, id, statusID, relTo string, placement Placement, result string, attachments ...string) (*Handle, error) {
	g, err := e.BeginDrag(id)
	if err != nil {
		return nil, err
	}
	var h *Handle
	if relTo != "" {
		h, err = g.DropOnTask(ctx, relTo, placement)
	} else {
		h, err = g.DropOnColumn(ctx, statusID)
	}
	if err != nil {
		return nil, err
	}
	switch g.State() {
	case AwaitingCompletion:
		if strings.TrimSpace(result) == "" {
			g.Decline()
			return nil, resultRequired(id)
		}
		return g.Complete(ctx, result, attachments)
	case Applied:
		if h == nil {
			return settled(nil, id), nil
		}
	}
	return h, nil
}
