package engine

import (
	"slices"
	"sync"

	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

// Selection is the set of selected task ids, kept in selection order. Ids
// of tasks that leave the cache are pruned on every change.
type Selection struct {
	mu  sync.Mutex
	ids []string
}

// NewSelection returns an empty selection.
func NewSelection() *Selection {
	return &Selection{}
}

// Toggle flips id and reports whether it is now selected.
func (s *Selection) Toggle(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.Index(s.ids, id); i >= 0 {
		s.ids = slices.Delete(s.ids, i, i+1)
		return false
	}
	s.ids = append(s.ids, id)
	return true
}

// Add selects ids.
func (s *Selection) Add(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if !slices.Contains(s.ids, id) {
			s.ids = append(s.ids, id)
		}
	}
}

// Remove deselects ids.
func (s *Selection) Remove(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = slices.DeleteFunc(s.ids, func(id string) bool { return slices.Contains(ids, id) })
}

// Set replaces the selection with exactly tasks.
func (s *Selection) Set(tasks []task.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = s.ids[:0]
	for _, t := range tasks {
		s.ids = append(s.ids, t.ID)
	}
}

// Clear empties the selection.
func (s *Selection) Clear() {
	s.mu.Lock()
	s.ids = nil
	s.mu.Unlock()
}

// Prune drops ids for which exists returns false.
func (s *Selection) Prune(exists func(id string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = slices.DeleteFunc(s.ids, func(id string) bool { return !exists(id) })
}

// Has reports whether id is selected.
func (s *Selection) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.ids, id)
}

// IDs returns the selected ids in selection order.
func (s *Selection) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.ids)
}

// Len returns the number of selected ids.
func (s *Selection) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
