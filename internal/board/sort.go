package board

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/twiced-technology-gmbh/taskboard/internal/clierr"
	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

// SortField names the key a list view is ordered by.
type SortField string

// Sort fields.
const (
	SortTitle        SortField = "title"
	SortStatus       SortField = "status"
	SortDue          SortField = "due"
	SortResponsible  SortField = "responsible"
	SortCoworkers    SortField = "coworkers"
	SortCreated      SortField = "created"
	SortLastActivity SortField = "last_activity"
)

// SortFields lists every sort field in display order.
var SortFields = []SortField{
	SortTitle, SortStatus, SortDue, SortResponsible, SortCoworkers, SortCreated, SortLastActivity,
}

// Direction is ascending or descending.
type Direction string

// Directions.
const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Sort is one active field plus a direction.
type Sort struct {
	Field     SortField `json:"field"`
	Direction Direction `json:"direction"`
}

// ParseSort validates a field and direction. An empty direction means ascending.
func ParseSort(field, direction string) (Sort, error) {
	s := Sort{Field: SortField(strings.ToLower(field)), Direction: Direction(strings.ToLower(direction))}
	if s.Direction == "" {
		s.Direction = Asc
	}
	if !slices.Contains(SortFields, s.Field) {
		return Sort{}, clierr.Newf(clierr.InvalidSort, "invalid sort field %q", field).
			WithDetails(map[string]any{"field": field, "allowed": SortFields})
	}
	if s.Direction != Asc && s.Direction != Desc {
		return Sort{}, clierr.Newf(clierr.InvalidSort, "invalid sort direction %q", direction).
			WithDetails(map[string]any{"direction": direction, "allowed": []Direction{Asc, Desc}})
	}
	return s, nil
}

// Toggle returns s with the opposite direction.
func (s Sort) Toggle() Sort {
	if s.Direction == Desc {
		s.Direction = Asc
	} else {
		s.Direction = Desc
	}
	return s
}

// Next returns s with the following sort field, wrapping around.
func (s Sort) Next() Sort {
	i := slices.Index(SortFields, s.Field)
	s.Field = SortFields[(i+1)%len(SortFields)]
	return s
}

// Compare orders a and b by the active field. Tasks with no value for the
// field sort after every task that has one, in both directions.
func (s Sort) Compare(a, b task.Task, l *Lookup) int {
	ka, okA := s.key(a, l)
	kb, okB := s.key(b, l)
	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return 1
	case !okB:
		return -1
	}
	c := ka.compare(kb)
	if s.Direction == Desc {
		c = -c
	}
	return c
}

// Apply sorts tasks in place. Equal tasks keep their input order.
func (s Sort) Apply(tasks []task.Task, l *Lookup) {
	slices.SortStableFunc(tasks, func(a, b task.Task) int {
		return s.Compare(a, b, l)
	})
}

// sortKey holds one comparable value: text, a number or a timestamp.
type sortKey struct {
	str  string
	num  int
	when time.Time
}

func (k sortKey) compare(o sortKey) int {
	if c := cmp.Compare(k.str, o.str); c != 0 {
		return c
	}
	if c := cmp.Compare(k.num, o.num); c != 0 {
		return c
	}
	return k.when.Compare(o.when)
}

func (s Sort) key(t task.Task, l *Lookup) (sortKey, bool) {
	switch s.Field {
	case SortTitle:
		return sortKey{str: strings.ToLower(t.Title)}, true
	case SortStatus:
		p, ok := l.StatusPosition(t.StatusID)
		return sortKey{num: p}, ok
	case SortDue:
		if t.Due == nil {
			return sortKey{}, false
		}
		return sortKey{when: *t.Due}, true
	case SortResponsible:
		if t.ResponsibleID == nil {
			return sortKey{}, false
		}
		return sortKey{str: strings.ToLower(l.UserName(*t.ResponsibleID))}, true
	case SortCoworkers:
		return sortKey{num: len(t.CoworkerIDs)}, true
	case SortCreated:
		return sortKey{when: t.CreatedAt}, !t.CreatedAt.IsZero()
	case SortLastActivity:
		ts := l.LastActivityOf(t)
		return sortKey{when: ts}, !ts.IsZero()
	}
	return sortKey{}, false
}
