package engine

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/twiced-technology-gmbh/taskboard/internal/board"
	"github.com/twiced-technology-gmbh/taskboard/internal/clierr"
	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

func newUUID() string { return uuid.NewString() }

// pendingWrite is one optimistic change waiting for its persistence call.
type pendingWrite struct {
	op      Op
	id      string
	fields  task.Fields
	gen     uint64
	prev    task.Task
	writers map[task.Fields]uint64
	// index is the cache slot a deleted record had.
	index int
}

// Create inserts t into the cache and persists it. The id is proposed
// locally so the insert echo is recognized. Validation errors are returned
// before the cache is touched.
func (e *Engine) Create(ctx context.Context, t task.Task) (*Handle, error) {
	task.Normalize(&t)
	if err := task.Validate(t); err != nil {
		return nil, err
	}

	e.mu.Lock()
	if t.StatusID == "" && len(e.lookup.Statuses) > 0 {
		t.StatusID = e.lookup.Statuses[0].ID
	}
	if err := e.validateRefs(t, task.AllFields); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if t.StatusID == e.lookup.DoneID && strings.TrimSpace(t.Result) == "" {
		e.mu.Unlock()
		return nil, resultRequired(t.ID)
	}
	if t.ID == "" {
		t.ID = e.newID()
	}
	if e.tasks.Has(t.ID) {
		e.mu.Unlock()
		return nil, clierr.Newf(clierr.InvalidTaskID, "task %q already exists", t.ID)
	}
	now := e.now()
	t.CreatedAt, t.UpdatedAt = now, now
	if t.OwnerID == "" {
		t.OwnerID = e.actor
	}
	if t.Position == 0 {
		t.Position = appendPosition(e.tasks.All(), t.PartitionKey(), "", e.gap)
	}
	if t.StatusID == e.lookup.DoneID {
		t.CompletedAt = &now
	}

	e.tasks.Upsert(t)
	w := e.begin(OpCreate, t.ID, task.AllFields, task.Task{})
	e.mu.Unlock()
	e.changed()

	created := t.Clone()
	entries := []board.ActivityEntry{{
		TaskID: t.ID, Type: board.ActivityCreated, NewValue: t.Title, Timestamp: now, ActorID: e.actor,
	}}
	return e.persist(ctx, []pendingWrite{w}, entries, func(ctx context.Context) error {
		_, err := e.backend.CreateTask(ctx, created)
		return err
	}), nil
}

// Update applies a partial change to a cached task. The stored record is
// normalized after the patch, so making a co-worker responsible drops them
// from the co-workers in the same mutation. A patch that changes nothing
// settles immediately without a persistence call.
func (e *Engine) Update(ctx context.Context, id string, p task.Patch) (*Handle, error) {
	return e.update(ctx, id, p, nil)
}

func (e *Engine) update(ctx context.Context, id string, p task.Patch, extra []board.ActivityEntry) (*Handle, error) {
	e.mu.Lock()
	prev, ok := e.tasks.Get(id)
	if !ok {
		e.mu.Unlock()
		return nil, notFound(id)
	}
	next := p.Apply(prev)
	task.Normalize(&next)
	if err := task.Validate(next); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if err := e.validateRefs(next, p.Fields); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if next.StatusID != prev.StatusID && next.StatusID == e.lookup.DoneID &&
		(!p.Fields.Has(task.FieldResult) || strings.TrimSpace(next.Result) == "") {
		e.mu.Unlock()
		return nil, resultRequired(id)
	}

	now := e.now()
	task.UpdateCompletion(&next, prev.StatusID, next.StatusID, e.lookup.DoneID, now)
	fields := task.Diff(prev, next)
	if fields == 0 {
		e.mu.Unlock()
		return settled(nil, id), nil
	}
	next.UpdatedAt = now

	e.tasks.Upsert(next)
	w := e.begin(OpUpdate, id, fields, prev)
	doneID := e.lookup.DoneID
	e.mu.Unlock()
	e.changed()

	entries := append(board.ChangeEntries(prev, next, fields, doneID, e.actor, now), extra...)
	patch := task.Patch{Fields: fields, Values: next.Clone()}
	return e.persist(ctx, []pendingWrite{w}, entries, func(ctx context.Context) error {
		return e.backend.UpdateTask(ctx, id, patch)
	}), nil
}

// Delete removes tasks and their subtasks from the cache and persists the
// deletion as one call. A failure restores every removed record.
func (e *Engine) Delete(ctx context.Context, ids ...string) (*Handle, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, clierr.New(clierr.InvalidTaskID, "no task IDs provided")
	}

	e.mu.Lock()
	all := e.tasks.All()
	for _, id := range ids {
		if !e.tasks.Has(id) {
			e.mu.Unlock()
			return nil, notFound(id)
		}
	}
	targets := make(map[string]bool, len(ids))
	for _, id := range ids {
		targets[id] = true
	}
	for _, t := range all {
		if t.ParentID != nil && targets[*t.ParentID] {
			targets[t.ID] = true
		}
	}
	now := e.now()
	var (
		writes  []pendingWrite
		entries []board.ActivityEntry
	)
	for i, t := range all {
		if !targets[t.ID] {
			continue
		}
		e.tasks.Remove(t.ID)
		w := e.begin(OpDelete, t.ID, task.AllFields, t)
		w.index = i
		writes = append(writes, w)
		entries = append(entries, board.ActivityEntry{
			TaskID: t.ID, Type: board.ActivityDeleted, OldValue: t.Title, Timestamp: now, ActorID: e.actor,
		})
	}
	e.mu.Unlock()
	e.changed()

	return e.persist(ctx, writes, entries, func(ctx context.Context) error {
		if len(ids) == 1 {
			return e.backend.DeleteTask(ctx, ids[0])
		}
		return e.backend.DeleteTasks(ctx, ids)
	}), nil
}

// DeleteSelected deletes every selected task and clears the selection.
func (e *Engine) DeleteSelected(ctx context.Context) (*Handle, error) {
	ids := e.selection.IDs()
	if len(ids) == 0 {
		return nil, clierr.New(clierr.InvalidInput, "nothing selected")
	}
	h, err := e.Delete(ctx, ids...)
	if err != nil {
		return nil, err
	}
	e.selection.Clear()
	return h, nil
}

// Comment appends a comment or progress note to the activity of a task. It
// counts as the task's latest activity, so last-activity sorts pick it up.
// Tasks are not changed.
func (e *Engine) Comment(ctx context.Context, id, text string) (board.ActivityEntry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return board.ActivityEntry{}, clierr.New(clierr.InvalidInput, "comment text is required")
	}
	if !e.tasks.Has(id) {
		return board.ActivityEntry{}, notFound(id)
	}
	entry := board.ActivityEntry{
		TaskID: id, Type: board.ActivityComment, NewValue: text, Timestamp: e.now(), ActorID: e.actor,
	}
	if err := e.activity.Append(ctx, entry); err != nil {
		return board.ActivityEntry{}, clierr.Wrap(clierr.PersistenceFailed, err, "writing comment")
	}

	e.mu.Lock()
	e.lookup = e.lookup.WithActivity(id, entry.Timestamp)
	e.mu.Unlock()
	e.changed()
	return entry, nil
}

// begin marks a write in flight. Callers hold e.mu.
func (e *Engine) begin(op Op, id string, fields task.Fields, prev task.Task) pendingWrite {
	e.gen++
	w := pendingWrite{op: op, id: id, fields: fields, gen: e.gen, prev: prev}
	w.writers = e.inflight.Begin(id, fields, w.gen)
	return w
}

// persist runs call in a goroutine and settles every write with its result.
func (e *Engine) persist(ctx context.Context, writes []pendingWrite, entries []board.ActivityEntry, call func(context.Context) error) *Handle {
	ids := make([]string, len(writes))
	for i, w := range writes {
		ids[i] = w.id
	}
	h := newHandle(ids...)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		err := call(ctx)
		e.settle(ctx, h, writes, entries, err)
	}()
	return h
}

func (e *Engine) settle(ctx context.Context, h *Handle, writes []pendingWrite, entries []board.ActivityEntry, err error) {
	if err == nil {
		for _, w := range writes {
			e.inflight.End(w.id, w.fields)
		}
		e.recordActivity(ctx, entries)
		h.resolve(nil)
		return
	}

	err = clierr.Wrap(clierr.PersistenceFailed, err, "persisting %s", writes[0].op)
	e.mu.Lock()
	var fields task.Fields
	for _, w := range writes {
		fields |= e.revert(w)
		e.inflight.End(w.id, w.fields)
	}
	e.mu.Unlock()

	e.log.Warn().Err(err).Str("op", string(writes[0].op)).Strs("ids", h.ids).Msg("mutation rolled back")
	e.changed()
	if writes[0].op != OpUpdate {
		fields = 0
	}
	e.notice(Notice{Op: writes[0].op, IDs: h.ids, Fields: fields, Err: err, At: e.now()})
	h.resolve(err)
}

// revert undoes one failed write and returns the fields it restored.
// Callers hold e.mu.
func (e *Engine) revert(w pendingWrite) task.Fields {
	switch w.op {
	case OpCreate:
		e.tasks.Remove(w.id)
		return 0
	case OpDelete:
		// Writes are restored in slot order, so each lands where it was.
		if !e.tasks.Has(w.id) {
			e.tasks.InsertAt(w.index, w.prev)
		}
		return 0
	}

	cur, ok := e.tasks.Get(w.id)
	if !ok {
		// Removed while the call was in flight; nothing to restore.
		return 0
	}
	owned := e.inflight.Owned(w.id, w.fields, w.gen)
	if owned == 0 {
		return 0
	}
	restored := task.CopyFields(cur, w.prev, owned)
	task.Normalize(&restored)
	e.tasks.Upsert(restored)
	e.inflight.Yield(w.id, owned, w.writers)
	return owned
}

// recordActivity writes entries best-effort. A failure is logged and never
// affects the mutation.
func (e *Engine) recordActivity(ctx context.Context, entries []board.ActivityEntry) {
	if len(entries) == 0 {
		return
	}
	if err := e.activity.Append(ctx, entries...); err != nil {
		e.log.Warn().Err(err).Int("entries", len(entries)).Msg("writing activity")
		return
	}
	e.mu.Lock()
	for _, en := range entries {
		if en.Type != board.ActivityDeleted {
			e.lookup = e.lookup.WithActivity(en.TaskID, en.Timestamp)
		}
	}
	e.mu.Unlock()
}

// validateRefs checks the status and parent references among fields. The
// parent of an unchanged reference may lie outside the loaded scope, so it
// is only checked when it is written. Callers hold e.mu.
func (e *Engine) validateRefs(t task.Task, fields task.Fields) error {
	if fields.Has(task.FieldStatus) && len(e.lookup.Statuses) > 0 {
		if err := task.ValidateStatus(t.StatusID, e.lookup.Statuses); err != nil {
			return err
		}
	}
	if !fields.Has(task.FieldParent) {
		return nil
	}
	return task.ValidateParent(t, e.tasks)
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func notFound(id string) error {
	return clierr.Newf(clierr.TaskNotFound, "task %q not found", id).
		WithDetails(map[string]any{"id": id})
}

func resultRequired(id string) error {
	return clierr.New(clierr.ResultRequired, "completing a task requires a result").
		WithDetails(map[string]any{"id": id})
}

// IsPersistenceError reports whether err came from a rolled-back mutation.
func IsPersistenceError(err error) bool {
	var ce *clierr.Error
	return errors.As(err, &ce) && ce.Code == clierr.PersistenceFailed
}

// appendPosition returns a position after every task of partition p other
// than skip.
func appendPosition(tasks []task.Task, p task.Partition, skip string, gap int) int {
	maxPos, found := 0, false
	for _, t := range tasks {
		if t.ID == skip || t.PartitionKey() != p {
			continue
		}
		if !found || t.Position > maxPos {
			maxPos, found = t.Position, true
		}
	}
	if !found {
		return gap
	}
	return maxPos + gap
}
