package board

import (
	"sync"

	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

// Source is a versioned task collection, such as the record cache.
type Source interface {
	All() []task.Task
	Version() uint64
}

// Projector derives the ordered view of a source under a filter and a sort.
// The last result is reused while the source version, the lookup revision,
// the filter and the sort are unchanged.
type Projector struct {
	mu sync.Mutex

	valid     bool
	version   uint64
	lookupRev uint64
	filter    Filter
	sort      Sort
	view      []task.Task

	computed int
}

// Project returns the filtered, sorted tasks of src. The returned slice is
// owned by the caller.
func (p *Projector) Project(src Source, f Filter, s Sort, l *Lookup) []task.Task {
	p.mu.Lock()
	defer p.mu.Unlock()

	var rev uint64
	if l != nil {
		rev = l.Rev
	}
	v := src.Version()
	if !p.valid || p.version != v || p.lookupRev != rev || p.sort != s || !p.filter.Equal(f) {
		p.view = Project(src.All(), f, s, l)
		p.valid, p.version, p.lookupRev, p.filter, p.sort = true, v, rev, f, s
		p.computed++
	}
	return cloneAll(p.view)
}

// Computations returns how many times the view was recomputed.
func (p *Projector) Computations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.computed
}

// Invalidate forces the next Project call to recompute.
func (p *Projector) Invalidate() {
	p.mu.Lock()
	p.valid = false
	p.mu.Unlock()
}

// Project filters and sorts records without memoization.
func Project(records []task.Task, f Filter, s Sort, l *Lookup) []task.Task {
	out := f.Apply(records, l)
	if s.Field != "" {
		s.Apply(out, l)
	}
	return out
}

func cloneAll(tasks []task.Task) []task.Task {
	out := make([]task.Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}
