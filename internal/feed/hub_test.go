package feed

import (
	"encoding/json"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_DeliversInOrderPerEntity(t *testing.T) {
	h := NewHub()
	var got []string
	h.Subscribe(EntityTasks, func(ev Event) { got = append(got, ev.ID) })
	h.Subscribe(EntityRoleAssignments, func(ev Event) { t.Fatalf("unexpected delivery %v", ev) })

	for _, id := range []string{"1", "2", "3"} {
		h.Publish(Event{Type: Delete, Entity: EntityTasks, ID: id})
	}
	assert.Equal(t, []string{"1", "2", "3"}, got)
}

func TestHub_Unsubscribe(t *testing.T) {
	h := NewHub()
	calls := 0
	unsub := h.Subscribe(EntityTasks, func(Event) { calls++ })
	require.Equal(t, 1, h.Subscribers(EntityTasks))

	unsub()
	unsub()
	h.Publish(Event{Type: Delete, Entity: EntityTasks, ID: "x"})

	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, h.Subscribers(EntityTasks))
}

func TestHub_PanicIsRecovered(t *testing.T) {
	h := NewHub()
	var panics []any
	h.OnPanic(func(_ Event, r any) { panics = append(panics, r) })

	after := 0
	h.Subscribe(EntityTasks, func(Event) { panic("boom") })
	h.Subscribe(EntityTasks, func(Event) { after++ })

	assert.NotPanics(t, func() {
		h.Publish(Event{Type: Delete, Entity: EntityTasks, ID: "x"})
		h.Publish(Event{Type: Delete, Entity: EntityTasks, ID: "y"})
	})
	assert.Equal(t, 2, after)
	assert.Equal(t, []any{"boom", "boom"}, panics)
}

func TestHub_OnPublishRunsAfterSubscribers(t *testing.T) {
	h := NewHub()
	var order []string
	h.Subscribe(EntityTasks, func(ev Event) { order = append(order, "sub:"+ev.ID) })
	h.Subscribe(EntityTasks, func(Event) { panic("boom") })
	h.OnPublish(func(ev Event) { order = append(order, "hook:"+ev.ID) })

	h.Publish(Event{Type: Delete, Entity: EntityTasks, ID: "x"})
	h.Publish(Event{Type: Delete, Entity: EntityRoleAssignments, ID: "r"})

	assert.Equal(t, []string{"sub:x", "hook:x", "hook:r"}, order)
}

func TestHub_ConcurrentPublishIsSerialized(t *testing.T) {
	h := NewHub()
	var (
		mu     sync.Mutex
		active int
		maxAct int
	)
	h.Subscribe(EntityTasks, func(Event) {
		mu.Lock()
		active++
		maxAct = max(maxAct, active)
		mu.Unlock()

		mu.Lock()
		active--
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Publish(Event{Type: Delete, Entity: EntityTasks, ID: "x"})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxAct)
}

func TestEvent_Valid(t *testing.T) {
	assert.NoError(t, Event{Type: Delete, ID: "a"}.Valid())
	assert.NoError(t, Event{Type: Insert, ID: "a", New: json.RawMessage(`{}`)}.Valid())
	assert.Error(t, Event{Type: Delete}.Valid())
	assert.Error(t, Event{Type: Update, ID: "a"}.Valid())
	assert.Error(t, Event{Type: "upsert", ID: "a"}.Valid())
}

func TestEvent_ChangedColumns(t *testing.T) {
	ev := Event{
		Type: Update,
		ID:   "a",
		New:  json.RawMessage(`{"id":"a","status_id":"c","title":"t"}`),
		Old:  json.RawMessage(`{"id":"a","status_id":"a","title":"t"}`),
	}
	cols, err := ev.ChangedColumns()
	require.NoError(t, err)
	assert.Equal(t, []string{"status_id"}, cols)

	ev.Old = nil
	cols, err = ev.ChangedColumns()
	require.NoError(t, err)
	slices.Sort(cols)
	assert.Equal(t, []string{"id", "status_id", "title"}, cols)

	ev.New = json.RawMessage(`not json`)
	_, err = ev.ChangedColumns()
	assert.Error(t, err)
}

func TestNewEvent(t *testing.T) {
	ev, err := NewEvent(Update, EntityTasks, "a", map[string]int{"position": 2}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"position":2}`, string(ev.New))
	assert.Empty(t, ev.Old)
}
