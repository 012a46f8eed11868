package engine

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/twiced-technology-gmbh/taskboard/internal/cache"
	"github.com/twiced-technology-gmbh/taskboard/internal/feed"
	"github.com/twiced-technology-gmbh/taskboard/internal/logging"
	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

// Reconciler merges change-feed events of one entity into a cache.
//
//   - insert: upserted unless the id has an unsettled local mutation, whose
//     optimistic record already stands in the cache.
//   - update: discarded when its changed columns overlap fields with an
//     unsettled local mutation; otherwise upserted with the local values of
//     any other unsettled fields kept.
//   - delete: always removed.
//
// Rows the accept predicate rejects are never added, and a cached row an
// update moves out of it is removed. Malformed events are logged and dropped.
type Reconciler[T cache.Record[T]] struct {
	entity    string
	cache     *cache.Cache[T]
	locker    sync.Locker
	pending   Pending
	fields    func(columns []string) task.Fields
	merge     func(local, remote T, keep task.Fields) T
	normalize func(*T)
	accept    func(T) bool
	onChange  func()
	log       zerolog.Logger

	mu    sync.Mutex
	stats ReconcileStats
}

// ReconcileStats counts how events were handled.
type ReconcileStats struct {
	Applied    int `json:"applied"`
	Suppressed int `json:"suppressed"`
	Dropped    int `json:"dropped"`
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption[T cache.Record[T]] func(*Reconciler[T])

// WithLocker makes the reconciler hold l while it touches the cache.
func WithLocker[T cache.Record[T]](l sync.Locker) ReconcilerOption[T] {
	return func(r *Reconciler[T]) { r.locker = l }
}

// WithPending consults p for unsettled local mutations.
func WithPending[T cache.Record[T]](p Pending) ReconcilerOption[T] {
	return func(r *Reconciler[T]) { r.pending = p }
}

// WithFields maps changed column names to fields.
func WithFields[T cache.Record[T]](fn func([]string) task.Fields) ReconcilerOption[T] {
	return func(r *Reconciler[T]) { r.fields = fn }
}

// WithMerge keeps local values of unsettled fields when a non-overlapping
// update is applied.
func WithMerge[T cache.Record[T]](fn func(local, remote T, keep task.Fields) T) ReconcilerOption[T] {
	return func(r *Reconciler[T]) { r.merge = fn }
}

// WithNormalize repairs decoded records before they are stored.
func WithNormalize[T cache.Record[T]](fn func(*T)) ReconcilerOption[T] {
	return func(r *Reconciler[T]) { r.normalize = fn }
}

// WithAccept limits the cache to records fn accepts. It is called with the
// locker held.
func WithAccept[T cache.Record[T]](fn func(T) bool) ReconcilerOption[T] {
	return func(r *Reconciler[T]) { r.accept = fn }
}

// WithOnChange runs fn after an event changed the cache, outside the lock.
func WithOnChange[T cache.Record[T]](fn func()) ReconcilerOption[T] {
	return func(r *Reconciler[T]) { r.onChange = fn }
}

// NewReconciler returns a reconciler for entity writing into c.
func NewReconciler[T cache.Record[T]](entity string, c *cache.Cache[T], opts ...ReconcilerOption[T]) *Reconciler[T] {
	r := &Reconciler[T]{
		entity:  entity,
		cache:   c,
		locker:  &sync.Mutex{},
		pending: noPending{},
		fields:  func([]string) task.Fields { return task.AllFields },
		log:     logging.Component("reconciler").With().Str("entity", entity).Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe registers the reconciler on hub. The returned function
// unsubscribes; views call it when they close.
func (r *Reconciler[T]) Subscribe(hub *feed.Hub) (unsubscribe func()) {
	return hub.Subscribe(r.entity, r.Handle)
}

// Stats returns event counters.
func (r *Reconciler[T]) Stats() ReconcileStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *Reconciler[T]) count(fn func(*ReconcileStats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()
}

// Handle merges one event. It never panics on bad input.
func (r *Reconciler[T]) Handle(ev feed.Event) {
	changed, err := r.apply(ev)
	if err != nil {
		r.count(func(s *ReconcileStats) { s.Dropped++ })
		r.log.Warn().Err(err).Str("type", string(ev.Type)).Str("id", ev.ID).Msg("dropping change event")
		return
	}
	if changed && r.onChange != nil {
		r.onChange()
	}
}

func (r *Reconciler[T]) apply(ev feed.Event) (bool, error) {
	if ev.Entity != "" && ev.Entity != r.entity {
		return false, fmt.Errorf("event for entity %q", ev.Entity)
	}
	if err := ev.Valid(); err != nil {
		return false, err
	}

	switch ev.Type {
	case feed.Delete:
		r.locker.Lock()
		removed := r.cache.Remove(ev.ID)
		r.locker.Unlock()
		r.count(func(s *ReconcileStats) { s.Applied++ })
		return removed, nil

	case feed.Insert:
		rec, err := r.decode(ev)
		if err != nil {
			return false, err
		}
		r.locker.Lock()
		defer r.locker.Unlock()
		if r.pending.Active(ev.ID) {
			r.suppress(ev, "insert echo of a local mutation")
			return false, nil
		}
		if !r.accepts(rec) {
			return r.evict(ev), nil
		}
		r.cache.Upsert(rec)
		r.count(func(s *ReconcileStats) { s.Applied++ })
		return true, nil

	case feed.Update:
		rec, err := r.decode(ev)
		if err != nil {
			return false, err
		}
		cols, err := ev.ChangedColumns()
		if err != nil {
			return false, err
		}
		r.locker.Lock()
		defer r.locker.Unlock()
		if r.pending.Active(ev.ID) {
			local := r.pending.Fields(ev.ID)
			if r.fields(cols).Overlaps(local) || r.merge == nil {
				r.suppress(ev, "update overlaps a local mutation")
				return false, nil
			}
			if cur, ok := r.cache.Get(ev.ID); ok {
				rec = r.merge(cur, rec, local)
			}
		}
		if !r.accepts(rec) {
			return r.evict(ev), nil
		}
		r.cache.Upsert(rec)
		r.count(func(s *ReconcileStats) { s.Applied++ })
		return true, nil
	}
	return false, fmt.Errorf("unknown event type %q", ev.Type)
}

func (r *Reconciler[T]) accepts(rec T) bool {
	return r.accept == nil || r.accept(rec)
}

// evict removes a row that is out of scope. Callers hold the locker.
func (r *Reconciler[T]) evict(ev feed.Event) bool {
	if r.cache.Remove(ev.ID) {
		r.count(func(s *ReconcileStats) { s.Applied++ })
		r.log.Debug().Str("type", string(ev.Type)).Str("id", ev.ID).Msg("row left the scope")
		return true
	}
	r.suppress(ev, "row outside the scope")
	return false
}

func (r *Reconciler[T]) suppress(ev feed.Event, reason string) {
	r.count(func(s *ReconcileStats) { s.Suppressed++ })
	r.log.Debug().Str("type", string(ev.Type)).Str("id", ev.ID).Msg(reason)
}

func (r *Reconciler[T]) decode(ev feed.Event) (T, error) {
	var rec T
	if err := json.Unmarshal(ev.New, &rec); err != nil {
		return rec, fmt.Errorf("decoding %s row: %w", r.entity, err)
	}
	if r.normalize != nil {
		r.normalize(&rec)
	}
	if rec.Key() == "" {
		return rec, fmt.Errorf("%s row has no id", r.entity)
	}
	if rec.Key() != ev.ID {
		return rec, fmt.Errorf("row id %q does not match event id %q", rec.Key(), ev.ID)
	}
	return rec, nil
}
