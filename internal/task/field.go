package task

import (
	"math/bits"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Fields is a bit set of mutable task fields. It keys in-flight markers and
// drives partial updates at the backend boundary.
type Fields uint16

// Mutable task fields.
const (
	FieldTitle Fields = 1 << iota
	FieldDescription
	FieldStatus
	FieldResponsible
	FieldCoworkers
	FieldDue
	FieldPriority
	FieldProject
	FieldPosition
	FieldResult
	FieldParent
	FieldCompletedAt

	fieldEnd
)

// AllFields is every mutable field.
const AllFields = fieldEnd - 1

// fieldNames maps each field to its column name. IsSubtask travels with parent_id.
var fieldNames = map[Fields]string{
	FieldTitle:       "title",
	FieldDescription: "description",
	FieldStatus:      "status_id",
	FieldResponsible: "responsible_id",
	FieldCoworkers:   "coworker_ids",
	FieldDue:         "due",
	FieldPriority:    "priority",
	FieldProject:     "project_id",
	FieldPosition:    "position",
	FieldResult:      "result",
	FieldParent:      "parent_id",
	FieldCompletedAt: "completed_at",
}

// Has reports whether every field in o is in f.
func (f Fields) Has(o Fields) bool { return f&o == o }

// Overlaps reports whether f and o share at least one field.
func (f Fields) Overlaps(o Fields) bool { return f&o != 0 }

// Count returns the number of fields in the set.
func (f Fields) Count() int { return bits.OnesCount16(uint16(f)) }

// Each calls fn for every single field in f, lowest bit first.
func (f Fields) Each(fn func(Fields)) {
	for b := Fields(1); b < fieldEnd; b <<= 1 {
		if f&b != 0 {
			fn(b)
		}
	}
}

// Names returns the column names of the fields in f.
func (f Fields) Names() []string {
	var names []string
	f.Each(func(b Fields) { names = append(names, fieldNames[b]) })
	return names
}

// String implements fmt.Stringer.
func (f Fields) String() string {
	if f == 0 {
		return "none"
	}
	return strings.Join(f.Names(), ",")
}

// FieldByName returns the field for a column name. "is_subtask" maps to FieldParent.
func FieldByName(name string) (Fields, bool) {
	if name == "is_subtask" {
		return FieldParent, true
	}
	for f, n := range fieldNames {
		if n == name {
			return f, true
		}
	}
	return 0, false
}

// FieldsByNames folds column names into a field set, ignoring unknown and
// immutable columns such as id or updated_at.
func FieldsByNames(names []string) Fields {
	var f Fields
	for _, n := range names {
		if b, ok := FieldByName(n); ok {
			f |= b
		}
	}
	return f
}

// Patch carries a partial update: only the fields in Fields are taken from Values.
type Patch struct {
	Fields Fields
	Values Task
}

// Apply copies the patched fields from p.Values onto t and returns the result.
func (p Patch) Apply(t Task) Task {
	out := t.Clone()
	v := p.Values.Clone()
	p.Fields.Each(func(f Fields) {
		copyField(&out, &v, f)
	})
	return out
}

// CopyFields copies the fields in f from src onto dst.
func CopyFields(dst Task, src Task, f Fields) Task {
	out := dst.Clone()
	s := src.Clone()
	f.Each(func(b Fields) { copyField(&out, &s, b) })
	return out
}

func copyField(dst, src *Task, f Fields) {
	switch f {
	case FieldTitle:
		dst.Title = src.Title
	case FieldDescription:
		dst.Description = src.Description
	case FieldStatus:
		dst.StatusID = src.StatusID
	case FieldResponsible:
		dst.ResponsibleID = src.ResponsibleID
	case FieldCoworkers:
		dst.CoworkerIDs = src.CoworkerIDs
	case FieldDue:
		dst.Due = src.Due
	case FieldPriority:
		dst.Priority = src.Priority
	case FieldProject:
		dst.ProjectID = src.ProjectID
	case FieldPosition:
		dst.Position = src.Position
	case FieldResult:
		dst.Result = src.Result
	case FieldParent:
		dst.ParentID = src.ParentID
		dst.IsSubtask = src.IsSubtask
	case FieldCompletedAt:
		dst.CompletedAt = src.CompletedAt
	}
}

// Diff returns the set of fields whose values differ between a and b.
func Diff(a, b Task) Fields {
	var d Fields
	AllFields.Each(func(f Fields) {
		if FieldValue(a, f) != FieldValue(b, f) {
			d |= f
		}
	})
	return d
}

// FieldValue renders a single field as text for activity entries and diffs.
func FieldValue(t Task, f Fields) string {
	switch f {
	case FieldTitle:
		return t.Title
	case FieldDescription:
		return t.Description
	case FieldStatus:
		return t.StatusID
	case FieldResponsible:
		return StringValue(t.ResponsibleID)
	case FieldCoworkers:
		ids := slices.Clone(t.CoworkerIDs)
		return strings.Join(ids, ",")
	case FieldDue:
		return timeValue(t.Due)
	case FieldPriority:
		return strconv.Itoa(t.Priority)
	case FieldProject:
		return StringValue(t.ProjectID)
	case FieldPosition:
		return strconv.Itoa(t.Position)
	case FieldResult:
		return t.Result
	case FieldParent:
		return StringValue(t.ParentID)
	case FieldCompletedAt:
		return timeValue(t.CompletedAt)
	}
	return ""
}

func timeValue(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
