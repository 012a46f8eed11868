// Package engine is the board synchronization engine. It owns the record
// cache, applies local mutations optimistically with per-field rollback,
// merges the backend change feed, and turns drag gestures into moves.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/twiced-technology-gmbh/taskboard/internal/backend"
	"github.com/twiced-technology-gmbh/taskboard/internal/board"
	"github.com/twiced-technology-gmbh/taskboard/internal/cache"
	"github.com/twiced-technology-gmbh/taskboard/internal/feed"
	"github.com/twiced-technology-gmbh/taskboard/internal/logging"
	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

// DefaultGap is the position spacing used when Options.PositionGap is unset.
const DefaultGap = 1000

// Options configures an Engine.
type Options struct {
	Backend  backend.Backend
	Feed     *feed.Hub
	Activity board.ActivityLog
	Scope    backend.Scope

	// Actor is the user id recorded as owner of new tasks and on activity entries.
	Actor       string
	DoneStatus  string
	PositionGap int

	Now    func() time.Time
	NewID  func() string
	Logger *zerolog.Logger
}

// Engine owns the task cache. Every cache mutation happens under one lock;
// persistence runs in goroutines and re-validates under the lock when it
// settles. Views read projections and dispatch intents.
type Engine struct {
	mu sync.Mutex

	backend  backend.Backend
	hub      *feed.Hub
	activity board.ActivityLog
	scope    backend.Scope
	actor    string
	doneName string
	gap      int
	now      func() time.Time
	newID    func() string
	log      zerolog.Logger

	tasks     *cache.Cache[task.Task]
	inflight  *InFlight
	lookup    *board.Lookup
	users     []task.User
	projector board.Projector
	selection *Selection
	gen       uint64

	reconciler  *Reconciler[task.Task]
	unsubscribe func()
	// accept is the scope predicate for feed rows. Guarded by mu.
	accept func(task.Task) bool

	lmu      sync.Mutex
	nextL    uint64
	onChange map[uint64]func()
	onNotice map[uint64]func(Notice)

	wg sync.WaitGroup
}

// New creates an engine. Call Load before use.
func New(opts Options) *Engine {
	e := &Engine{
		backend:   opts.Backend,
		hub:       opts.Feed,
		activity:  opts.Activity,
		scope:     opts.Scope,
		actor:     opts.Actor,
		doneName:  opts.DoneStatus,
		gap:       opts.PositionGap,
		now:       opts.Now,
		newID:     opts.NewID,
		tasks:     cache.New[task.Task](),
		inflight:  NewInFlight(),
		lookup:    board.NewLookup(nil, opts.DoneStatus, nil, nil),
		selection: NewSelection(),
		onChange:  make(map[uint64]func()),
		onNotice:  make(map[uint64]func(Notice)),
	}
	if e.doneName == "" {
		e.doneName = task.DefaultDoneStatus
	}
	if e.gap < 2 { //nolint:mnd // a gap of 1 leaves no room between neighbors
		e.gap = DefaultGap
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = newUUID
	}
	if e.activity == nil {
		e.activity = board.NopLog{}
	}
	if opts.Logger != nil {
		e.log = *opts.Logger
	} else {
		e.log = logging.Component("engine")
	}

	e.reconciler = NewReconciler(feed.EntityTasks, e.tasks,
		WithLocker[task.Task](&e.mu),
		WithPending[task.Task](e.inflight),
		WithFields[task.Task](task.FieldsByNames),
		WithMerge(func(local, remote task.Task, keep task.Fields) task.Task {
			return task.CopyFields(remote, local, keep)
		}),
		WithNormalize(task.Normalize),
		WithAccept(func(t task.Task) bool { return e.accept == nil || e.accept(t) }),
		WithOnChange[task.Task](e.changed),
	)
	return e
}

// Load fetches statuses, users, activity and tasks, then subscribes to the
// task feed. Calling it again refreshes everything.
func (e *Engine) Load(ctx context.Context) error {
	statuses, err := e.backend.FetchStatuses(ctx)
	if err != nil {
		return fmt.Errorf("fetching statuses: %w", err)
	}
	users, err := e.backend.Users(ctx)
	if err != nil {
		return fmt.Errorf("fetching users: %w", err)
	}
	last, err := e.activity.LastActivity(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("reading activity log")
		last = map[string]time.Time{}
	}

	// Subscribe before fetching so no change between the fetch and the
	// subscription is lost; events for rows the fetch already returned are
	// plain replacements.
	accept, err := e.scopeMatcher(ctx)
	if err != nil {
		return fmt.Errorf("resolving scope: %w", err)
	}

	e.mu.Lock()
	e.accept = accept
	if e.unsubscribe == nil && e.hub != nil {
		e.unsubscribe = e.reconciler.Subscribe(e.hub)
	}
	e.mu.Unlock()

	tasks, err := e.backend.FetchTasks(ctx, e.scope)
	if err != nil {
		return fmt.Errorf("fetching tasks: %w", err)
	}
	for i := range tasks {
		task.Normalize(&tasks[i])
	}

	e.mu.Lock()
	rev := e.lookup.Rev
	e.lookup = board.NewLookup(statuses, e.doneName, users, last)
	e.lookup.Rev = rev + 1
	e.users = users
	e.tasks.Replace(e.keepPending(tasks))
	e.mu.Unlock()

	e.log.Debug().Int("tasks", len(tasks)).Int("statuses", len(statuses)).Msg("loaded board")
	e.changed()
	return nil
}

// scopeMatcher returns the predicate feed rows must pass to enter the cache.
func (e *Engine) scopeMatcher(ctx context.Context) (func(task.Task) bool, error) {
	if m, ok := e.backend.(backend.ScopeMatcher); ok {
		return m.MatchScope(ctx, e.scope)
	}
	scope := e.scope
	return func(t task.Task) bool { return scope.Match(t, nil) }, nil
}

// keepPending overlays fetched tasks with the cached version of every record
// that has an unsettled local mutation, so a refresh never undoes them.
func (e *Engine) keepPending(fetched []task.Task) []task.Task {
	if e.inflight.Len() == 0 {
		return fetched
	}
	seen := make(map[string]bool, len(fetched))
	for i, t := range fetched {
		seen[t.ID] = true
		if e.inflight.Active(t.ID) {
			if local, ok := e.tasks.Get(t.ID); ok {
				fetched[i] = local
			}
		}
	}
	for _, local := range e.tasks.All() {
		if !seen[local.ID] && e.inflight.Active(local.ID) {
			fetched = append(fetched, local)
		}
	}
	return fetched
}

// Close unsubscribes from the feed and waits for unsettled mutations.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// Reconciler returns the task feed reconciler.
func (e *Engine) Reconciler() *Reconciler[task.Task] {
	return e.reconciler
}

// OnChange registers fn to run after every cache change. It runs outside
// the engine lock.
func (e *Engine) OnChange(fn func()) (unsubscribe func()) {
	e.lmu.Lock()
	defer e.lmu.Unlock()
	e.nextL++
	id := e.nextL
	e.onChange[id] = fn
	return func() {
		e.lmu.Lock()
		delete(e.onChange, id)
		e.lmu.Unlock()
	}
}

// OnNotice registers fn to receive rollback notices.
func (e *Engine) OnNotice(fn func(Notice)) (unsubscribe func()) {
	e.lmu.Lock()
	defer e.lmu.Unlock()
	e.nextL++
	id := e.nextL
	e.onNotice[id] = fn
	return func() {
		e.lmu.Lock()
		delete(e.onNotice, id)
		e.lmu.Unlock()
	}
}

func (e *Engine) changed() {
	e.selection.Prune(e.tasks.Has)

	e.lmu.Lock()
	fns := make([]func(), 0, len(e.onChange))
	for _, fn := range e.onChange {
		fns = append(fns, fn)
	}
	e.lmu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (e *Engine) notice(n Notice) {
	e.lmu.Lock()
	fns := make([]func(Notice), 0, len(e.onNotice))
	for _, fn := range e.onNotice {
		fns = append(fns, fn)
	}
	e.lmu.Unlock()
	for _, fn := range fns {
		fn(n)
	}
}

// Get returns a copy of a cached task.
func (e *Engine) Get(id string) (task.Task, bool) {
	return e.tasks.Get(id)
}

// Tasks returns every cached task in cache order.
func (e *Engine) Tasks() []task.Task {
	return e.tasks.All()
}

// Version returns the cache version.
func (e *Engine) Version() uint64 {
	return e.tasks.Version()
}

// Pending returns the number of records with unsettled mutations.
func (e *Engine) Pending() int {
	return e.inflight.Len()
}

// Lookup returns the current reference data. The result must not be modified.
func (e *Engine) Lookup() *board.Lookup {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lookup
}

// Users returns the user directory.
func (e *Engine) Users() []task.User {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.users
}

// Actor returns the acting user id.
func (e *Engine) Actor() string { return e.actor }

// View projects the cache under f and s.
func (e *Engine) View(f board.Filter, s board.Sort) []task.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.projector.Project(e.tasks, f, s, e.lookup)
}

// Columns groups the tasks matching f into status columns.
func (e *Engine) Columns(f board.Filter) []board.Column {
	e.mu.Lock()
	defer e.mu.Unlock()
	return board.Columns(board.Project(e.tasks.All(), f, board.Sort{}, e.lookup), e.lookup)
}

// Selection returns the selection set shared by every view.
func (e *Engine) Selection() *Selection {
	return e.selection
}

// SelectAll selects exactly the tasks visible under f.
func (e *Engine) SelectAll(f board.Filter) {
	e.selection.Set(e.View(f, board.Sort{}))
}

// Activity returns the newest activity entries of a task.
func (e *Engine) Activity(ctx context.Context, id string, limit int) ([]board.ActivityEntry, error) {
	return e.activity.Recent(ctx, id, limit)
}
