package engine

import (
	"sync"

	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

// Pending answers what the reconciler needs to know about local mutations
// that have not settled yet.
type Pending interface {
	Active(id string) bool
	Fields(id string) task.Fields
}

// InFlight tracks unsettled local mutations per record id and field. Field
// markers are reference counted so overlapping mutations keep a field marked
// until the last one settles. Each field also remembers the generation of its
// latest local writer so a failing mutation only reverts fields nobody has
// written since.
type InFlight struct {
	mu   sync.Mutex
	recs map[string]*inflightRecord
}

type inflightRecord struct {
	mutations int
	counts    map[task.Fields]int
	writer    map[task.Fields]uint64
}

// NewInFlight returns an empty tracker.
func NewInFlight() *InFlight {
	return &InFlight{recs: make(map[string]*inflightRecord)}
}

// Begin marks fields of id as written by mutation gen. It returns the
// previous writer of each field for Yield.
func (s *InFlight) Begin(id string, fields task.Fields, gen uint64) map[task.Fields]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.recs[id]
	if !ok {
		r = &inflightRecord{counts: make(map[task.Fields]int), writer: make(map[task.Fields]uint64)}
		s.recs[id] = r
	}
	r.mutations++
	prev := make(map[task.Fields]uint64, fields.Count())
	fields.Each(func(f task.Fields) {
		prev[f] = r.writer[f]
		r.counts[f]++
		r.writer[f] = gen
	})
	return prev
}

// Yield hands fields back to their previous writers after a reverted
// mutation, so an older unsettled mutation owns them again.
func (s *InFlight) Yield(id string, fields task.Fields, prev map[task.Fields]uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.recs[id]
	if !ok {
		return
	}
	fields.Each(func(f task.Fields) {
		r.writer[f] = prev[f]
	})
}

// End releases the markers of one mutation. Once no mutation of id is left
// its writer history is dropped.
func (s *InFlight) End(id string, fields task.Fields) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.recs[id]
	if !ok {
		return
	}
	r.mutations--
	fields.Each(func(f task.Fields) {
		if r.counts[f]--; r.counts[f] <= 0 {
			delete(r.counts, f)
		}
	})
	if r.mutations <= 0 {
		delete(s.recs, id)
	}
}

// Owned returns the subset of fields whose latest writer is gen.
func (s *InFlight) Owned(id string, fields task.Fields, gen uint64) task.Fields {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.recs[id]
	if !ok {
		return 0
	}
	var owned task.Fields
	fields.Each(func(f task.Fields) {
		if r.writer[f] == gen {
			owned |= f
		}
	})
	return owned
}

// Active reports whether id has any unsettled mutation.
func (s *InFlight) Active(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.recs[id]
	return ok
}

// Fields returns the fields of id with at least one unsettled mutation.
func (s *InFlight) Fields(id string) task.Fields {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.recs[id]
	if !ok {
		return 0
	}
	var f task.Fields
	for b := range r.counts {
		f |= b
	}
	return f
}

// Len returns the number of records with unsettled mutations.
func (s *InFlight) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

// noPending is used by reconcilers of entities without local mutations.
type noPending struct{}

func (noPending) Active(string) bool       { return false }
func (noPending) Fields(string) task.Fields { return 0 }
