package changeset

import (
	"strings"
)

// Accesses is a path selector into a resource. The empty path addresses the
// resource itself.
type Accesses []string

// NewAccesses builds a path from its elements.
func NewAccesses(path ...string) Accesses {
	return Accesses(path)
}

// IsRoot is true for the empty path.
func (a Accesses) IsRoot() bool {
	return len(a) == 0
}

func (a Accesses) Equals(b Accesses) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (a Accesses) String() string {
	return "/" + strings.Join(a, "/")
}

func (a Accesses) clone() Accesses {
	if a == nil {
		return nil
	}
	return append(Accesses{}, a...)
}

// FieldChange is a single field delta.
type FieldChange struct {
	Accesses Accesses
	Op       ChangeOp
}

// replacesResource is true for a root Update or Deletion.
func (c FieldChange) replacesResource() bool {
	return c.Accesses.IsRoot() && (c.Op.Kind == OpUpdate || c.Op.Kind == OpDeletion)
}

// FieldChanges is an ordered list of field deltas of one resource. Changes
// apply in order.
type FieldChanges []FieldChange

func (f FieldChanges) rootOnly() FieldChanges {
	res := f[:0:0]
	for _, c := range f {
		if c.Accesses.IsRoot() {
			res = append(res, c)
		}
	}
	return res
}

// Get returns the op recorded for the path.
func (f FieldChanges) Get(path Accesses) (ChangeOp, bool) {
	if i := f.index(path); i >= 0 {
		return f[i].Op, true
	}
	return ChangeOp{}, false
}

func (f FieldChanges) index(path Accesses) int {
	for i, c := range f {
		if c.Accesses.Equals(path) {
			return i
		}
	}
	return -1
}

// Push appends a change without merging.
func (f *FieldChanges) Push(path Accesses, op ChangeOp) {
	*f = append(*f, FieldChange{Accesses: path, Op: op})
}

// Append moves all changes of other to the end of f.
func (f *FieldChanges) Append(other FieldChanges) {
	*f = append(*f, other...)
}

// Clone returns a deep copy.
func (f FieldChanges) Clone() FieldChanges {
	if f == nil {
		return nil
	}
	res := make(FieldChanges, len(f))
	for i, c := range f {
		res[i] = FieldChange{Accesses: c.Accesses.clone(), Op: c.Op.clone()}
	}
	return res
}

// Equals compares both lists entry by entry, order included.
func (f FieldChanges) Equals(o FieldChanges) bool {
	if len(f) != len(o) {
		return false
	}
	for i := range f {
		if !f[i].Accesses.Equals(o[i].Accesses) || !f[i].Op.Equals(o[i].Op) {
			return false
		}
	}
	return true
}

// MergeFieldChanges starts from a copy of first and merges every change of
// second into the entry with the same path, or appends it when there is no
// such entry. A root Update or Deletion replaces the whole resource, so it
// drops the field changes recorded before it. Neither input is modified.
func MergeFieldChanges(first, second FieldChanges) (FieldChanges, error) {
	res := first.Clone()
	for _, c := range second {
		if c.replacesResource() {
			res = res.rootOnly()
		}
		if i := res.index(c.Accesses); i >= 0 {
			if _, err := res[i].Op.MergeWith(c.Op); err != nil {
				return nil, err
			}
			continue
		}
		res = append(res, FieldChange{Accesses: c.Accesses.clone(), Op: c.Op.clone()})
	}
	return res, nil
}

// MergeWith merges other into f and returns the previous value of f.
func (f *FieldChanges) MergeWith(other FieldChanges) (FieldChanges, error) {
	merged, err := MergeFieldChanges(*f, other)
	if err != nil {
		return nil, err
	}
	old := *f
	*f = merged
	return old, nil
}

// FilterNone drops the entries whose op is None.
func (f *FieldChanges) FilterNone() {
	res := (*f)[:0:0]
	for _, c := range *f {
		if !c.Op.IsNone() {
			res = append(res, c)
		}
	}
	*f = res
}
