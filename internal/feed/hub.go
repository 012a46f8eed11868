package feed

import "sync"

// Handler receives change events for one entity.
type Handler func(Event)

type subscription struct {
	id uint64
	fn Handler
}

// Hub fans change events out to subscribers by entity. Delivery happens on
// the publisher's goroutine; events of one entity are delivered one at a
// time, in publish order. A panicking subscriber is recovered and reported
// through OnPanic; the remaining subscribers still receive the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	nextID uint64

	deliver map[string]*sync.Mutex

	hooks struct {
		mu        sync.RWMutex
		onPublish []func(Event)
		onPanic   []func(Event, any)
	}
}

// NewHub returns a hub with no subscribers.
func NewHub() *Hub {
	return &Hub{
		subs:    make(map[string][]subscription),
		deliver: make(map[string]*sync.Mutex),
	}
}

// Subscribe registers fn for events of entity. The returned function removes
// the subscription; calling it more than once is safe.
func (h *Hub) Subscribe(entity string, fn Handler) (unsubscribe func()) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[entity] = append(h.subs[entity], subscription{id: id, fn: fn})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(entity, id) })
	}
}

func (h *Hub) remove(entity string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subs[entity]
	for i, s := range subs {
		if s.id == id {
			h.subs[entity] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(h.subs[entity]) == 0 {
		delete(h.subs, entity)
	}
}

// Subscribers returns the number of subscriptions for entity.
func (h *Hub) Subscribers(entity string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[entity])
}

// Publish delivers ev to every current subscriber of ev.Entity.
func (h *Hub) Publish(ev Event) {
	lock := h.entityLock(ev.Entity)
	lock.Lock()
	defer lock.Unlock()

	h.mu.RLock()
	subs := make([]subscription, len(h.subs[ev.Entity]))
	copy(subs, h.subs[ev.Entity])
	h.mu.RUnlock()

	for _, s := range subs {
		h.call(s.fn, ev)
	}
	h.runOnPublish(ev)
}

func (h *Hub) entityLock(entity string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.deliver[entity]
	if !ok {
		l = &sync.Mutex{}
		h.deliver[entity] = l
	}
	return l
}

func (h *Hub) call(fn Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			h.runOnPanic(ev, r)
		}
	}()
	fn(ev)
}

// OnPublish registers a hook that fires after an event was delivered.
func (h *Hub) OnPublish(fn func(Event)) {
	h.hooks.mu.Lock()
	h.hooks.onPublish = append(h.hooks.onPublish, fn)
	h.hooks.mu.Unlock()
}

// OnPanic registers a hook that fires when a subscriber panics.
func (h *Hub) OnPanic(fn func(Event, any)) {
	h.hooks.mu.Lock()
	h.hooks.onPanic = append(h.hooks.onPanic, fn)
	h.hooks.mu.Unlock()
}

func (h *Hub) runOnPublish(ev Event) {
	h.hooks.mu.RLock()
	hooks := make([]func(Event), len(h.hooks.onPublish))
	copy(hooks, h.hooks.onPublish)
	h.hooks.mu.RUnlock()
	for _, fn := range hooks {
		fn(ev)
	}
}

func (h *Hub) runOnPanic(ev Event, recovered any) {
	h.hooks.mu.RLock()
	hooks := make([]func(Event, any), len(h.hooks.onPanic))
	copy(hooks, h.hooks.onPanic)
	h.hooks.mu.RUnlock()
	for _, fn := range hooks {
		func() {
			defer func() { recover() }() //nolint:errcheck
			fn(ev, recovered)
		}()
	}
}
