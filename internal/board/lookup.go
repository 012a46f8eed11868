package board

import (
	"maps"
	"time"

	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

// Lookup resolves the references filters and sorts need: status positions,
// the done status, user display names and last-activity timestamps. Rev
// changes whenever any of them is reloaded so projections can be memoized.
type Lookup struct {
	Rev          uint64
	Statuses     []task.Status
	DoneID       string
	UserNames    map[string]string
	LastActivity map[string]time.Time

	statusPos map[string]int
}

// NewLookup builds a Lookup. doneName selects the terminal status.
func NewLookup(statuses []task.Status, doneName string, users []task.User, activity map[string]time.Time) *Lookup {
	l := &Lookup{
		Statuses:     statuses,
		UserNames:    make(map[string]string, len(users)),
		LastActivity: activity,
		statusPos:    make(map[string]int, len(statuses)),
	}
	for _, s := range statuses {
		l.statusPos[s.ID] = s.Position
	}
	if done, ok := task.FindDone(statuses, doneName); ok {
		l.DoneID = done.ID
	}
	for _, u := range users {
		l.UserNames[u.ID] = u.Name
	}
	return l
}

// StatusPosition returns the column position of a status.
func (l *Lookup) StatusPosition(id string) (int, bool) {
	if l == nil {
		return 0, false
	}
	p, ok := l.statusPos[id]
	return p, ok
}

// Status returns the status with the given id.
func (l *Lookup) Status(id string) (task.Status, bool) {
	if l == nil {
		return task.Status{}, false
	}
	for _, s := range l.Statuses {
		if s.ID == id {
			return s, true
		}
	}
	return task.Status{}, false
}

// StatusName returns the display name of a status, or the id if unknown.
func (l *Lookup) StatusName(id string) string {
	if s, ok := l.Status(id); ok {
		return s.Name
	}
	return id
}

// IsDone reports whether t sits in the terminal status.
func (l *Lookup) IsDone(t task.Task) bool {
	return l != nil && l.DoneID != "" && t.StatusID == l.DoneID
}

// UserName returns a user's display name, falling back to the id.
func (l *Lookup) UserName(id string) string {
	if l != nil {
		if n, ok := l.UserNames[id]; ok && n != "" {
			return n
		}
	}
	return id
}

// LastActivityOf returns the newest activity timestamp of t, falling back to
// UpdatedAt and then CreatedAt. The result is zero when none is known.
func (l *Lookup) LastActivityOf(t task.Task) time.Time {
	if l != nil {
		if ts, ok := l.LastActivity[t.ID]; ok && !ts.IsZero() {
			return ts
		}
	}
	if !t.UpdatedAt.IsZero() {
		return t.UpdatedAt
	}
	return t.CreatedAt
}

// WithActivity returns a copy of l that records activity on a task at at.
// l itself is left untouched so readers holding it never race the writer.
func (l *Lookup) WithActivity(id string, at time.Time) *Lookup {
	c := *l
	if !at.After(l.LastActivity[id]) {
		return &c
	}
	c.LastActivity = maps.Clone(l.LastActivity)
	if c.LastActivity == nil {
		c.LastActivity = make(map[string]time.Time)
	}
	c.LastActivity[id] = at
	c.Rev++
	return &c
}
