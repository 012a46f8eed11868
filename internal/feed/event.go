// Package feed is the row-level change feed. Backends publish insert, update
// and delete events per entity; subscribers such as the engine's reconcilers
// receive them synchronously in publish order.
package feed

import (
	"encoding/json"
	"fmt"
)

// EventType is the kind of row change.
type EventType string

// Event types.
const (
	Insert EventType = "insert"
	Update EventType = "update"
	Delete EventType = "delete"
)

// Entities with a change feed.
const (
	EntityTasks           = "tasks"
	EntityRoleAssignments = "role_assignments"
)

// Event is a single row change. New holds the row after the change (insert,
// update); Old holds it before (update, delete) when the backend knows it.
type Event struct {
	Type   EventType       `json:"type"`
	Entity string          `json:"entity"`
	ID     string          `json:"id"`
	New    json.RawMessage `json:"new,omitempty"`
	Old    json.RawMessage `json:"old,omitempty"`
}

// Valid reports whether the event has a known type and an identifying key.
func (e Event) Valid() error {
	switch e.Type {
	case Insert, Update:
		if len(e.New) == 0 {
			return fmt.Errorf("%s event for %q has no new values", e.Type, e.ID)
		}
	case Delete:
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.ID == "" {
		return fmt.Errorf("%s event has no id", e.Type)
	}
	return nil
}

// NewEvent builds an event, encoding the before and after rows. A nil row
// is left empty.
func NewEvent(typ EventType, entity, id string, newRow, oldRow any) (Event, error) {
	ev := Event{Type: typ, Entity: entity, ID: id}
	var err error
	if newRow != nil {
		if ev.New, err = json.Marshal(newRow); err != nil {
			return Event{}, fmt.Errorf("encoding new row: %w", err)
		}
	}
	if oldRow != nil {
		if ev.Old, err = json.Marshal(oldRow); err != nil {
			return Event{}, fmt.Errorf("encoding old row: %w", err)
		}
	}
	return ev, nil
}

// ChangedColumns returns the top-level keys whose values differ between Old
// and New. Without Old every key of New counts as changed.
func (e Event) ChangedColumns() ([]string, error) {
	var newer map[string]json.RawMessage
	if len(e.New) > 0 {
		if err := json.Unmarshal(e.New, &newer); err != nil {
			return nil, fmt.Errorf("decoding new values: %w", err)
		}
	}
	var older map[string]json.RawMessage
	if len(e.Old) > 0 {
		if err := json.Unmarshal(e.Old, &older); err != nil {
			return nil, fmt.Errorf("decoding old values: %w", err)
		}
	}

	var cols []string
	for k, v := range newer {
		if older == nil {
			cols = append(cols, k)
			continue
		}
		if ov, ok := older[k]; !ok || string(ov) != string(v) {
			cols = append(cols, k)
		}
	}
	for k := range older {
		if _, ok := newer[k]; !ok {
			cols = append(cols, k)
		}
	}
	return cols, nil
}
