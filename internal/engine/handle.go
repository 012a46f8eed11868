package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

// Handle tracks one applied mutation until its persistence call settles.
type Handle struct {
	ids  []string
	done chan struct{}
	once sync.Once
	err  error
}

func newHandle(ids ...string) *Handle {
	return &Handle{ids: ids, done: make(chan struct{})}
}

// settled returns a handle that is already resolved. Used when a mutation
// resolves to no net change and no persistence call is made.
func settled(err error, ids ...string) *Handle {
	h := newHandle(ids...)
	h.resolve(err)
	return h
}

func (h *Handle) resolve(err error) {
	h.once.Do(func() {
		h.err = err
		close(h.done)
	})
}

// IDs returns the records the mutation touched.
func (h *Handle) IDs() []string { return h.ids }

// Done is closed once the mutation settled.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the persistence error. It is nil until Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the mutation settles or ctx ends.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join returns a handle that settles when every handle settled, carrying the
// first error.
func Join(handles ...*Handle) *Handle {
	var ids []string
	for _, h := range handles {
		ids = append(ids, h.ids...)
	}
	j := newHandle(ids...)
	go func() {
		var first error
		for _, h := range handles {
			<-h.done
			if h.err != nil && first == nil {
				first = h.err
			}
		}
		j.resolve(first)
	}()
	return j
}

// Op names the kind of a mutation.
type Op string

// Mutation kinds.
const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Notice is surfaced once for every mutation whose persistence failed after
// the local change was rolled back.
type Notice struct {
	Op     Op
	IDs    []string
	Fields task.Fields
	Err    error
	At     time.Time
}

// Message returns a one-line description for a transient error banner.
func (n Notice) Message() string {
	target := "task"
	if len(n.IDs) == 1 {
		target = "task " + shortID(n.IDs[0])
	} else if len(n.IDs) > 1 {
		target = fmt.Sprintf("%d tasks", len(n.IDs))
	}
	if n.Op == OpUpdate && n.Fields != 0 {
		return fmt.Sprintf("could not update %s of %s, change reverted: %v", n.Fields, target, n.Err)
	}
	return fmt.Sprintf("could not %s %s, change reverted: %v", n.Op, target, n.Err)
}

func shortID(id string) string {
	const n = 8
	if len(id) > n {
		return id[:n]
	}
	return id
}
