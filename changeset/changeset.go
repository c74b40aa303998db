package changeset

import (
	"fmt"

	"github.com/iov-one/offchain"
	"github.com/iov-one/offchain/errors"
)

// AccessPath is the address of a resource: the owning account and a tag
// naming the resource inside that account.
type AccessPath struct {
	Address offchain.Address
	Tag     string
}

// NewAccessPath is a shortcut to build an AccessPath.
func NewAccessPath(addr offchain.Address, tag string) AccessPath {
	return AccessPath{Address: addr, Tag: tag}
}

// Key is the storage key of the resource. The address has a fixed length so
// the tag can be appended without a separator.
func (p AccessPath) Key() []byte {
	return append(append([]byte(nil), p.Address...), p.Tag...)
}

func (p AccessPath) Equals(o AccessPath) bool {
	return p.Address.Equals(o.Address) && p.Tag == o.Tag
}

func (p AccessPath) Validate() error {
	if err := p.Address.Validate(); err != nil {
		return errors.Wrap(err, "access path address")
	}
	if p.Tag == "" {
		return errors.ErrEmpty.New("access path tag")
	}
	return nil
}

func (p AccessPath) String() string {
	return fmt.Sprintf("%s/%s", p.Address, p.Tag)
}

// ResourceChanges are the field deltas of one resource.
type ResourceChanges struct {
	Path    AccessPath
	Changes FieldChanges
}

func (r ResourceChanges) clone() ResourceChanges {
	return ResourceChanges{
		Path:    AccessPath{Address: append(offchain.Address(nil), r.Path.Address...), Tag: r.Path.Tag},
		Changes: r.Changes.Clone(),
	}
}

// ChangeSetMut is the builder form of a state diff, an ordered list of
// resource deltas.
type ChangeSetMut struct {
	entries []ResourceChanges
}

// NewChangeSetMut creates a builder holding the given entries.
func NewChangeSetMut(entries ...ResourceChanges) *ChangeSetMut {
	return &ChangeSetMut{entries: entries}
}

// Push appends an entry without merging.
func (m *ChangeSetMut) Push(path AccessPath, changes FieldChanges) {
	m.entries = append(m.entries, ResourceChanges{Path: path, Changes: changes})
}

func (m *ChangeSetMut) Len() int {
	return len(m.entries)
}

func (m *ChangeSetMut) IsEmpty() bool {
	return len(m.entries) == 0
}

// Entries returns the underlying entries. They must not be modified.
func (m *ChangeSetMut) Entries() []ResourceChanges {
	return m.entries
}

// Get returns the changes recorded for the resource.
func (m *ChangeSetMut) Get(path AccessPath) (FieldChanges, bool) {
	if i := m.index(path); i >= 0 {
		return m.entries[i].Changes, true
	}
	return nil, false
}

func (m *ChangeSetMut) index(path AccessPath) int {
	for i, e := range m.entries {
		if e.Path.Equals(path) {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy.
func (m *ChangeSetMut) Clone() *ChangeSetMut {
	res := &ChangeSetMut{entries: make([]ResourceChanges, len(m.entries))}
	for i, e := range m.entries {
		res.entries[i] = e.clone()
	}
	return res
}

// MergeChangeSetMut clones first and merges every resource of second into
// the entry with the same path, or appends it. Neither input is modified.
func MergeChangeSetMut(first, second *ChangeSetMut) (*ChangeSetMut, error) {
	if first == nil {
		first = NewChangeSetMut()
	}
	if second == nil {
		second = NewChangeSetMut()
	}
	res := first.Clone()
	for _, e := range second.entries {
		i := res.index(e.Path)
		if i < 0 {
			res.entries = append(res.entries, e.clone())
			continue
		}
		if _, err := res.entries[i].Changes.MergeWith(e.Changes); err != nil {
			return nil, errors.Wrapf(err, "resource %s", e.Path)
		}
	}
	return res, nil
}

// MergeWith merges other into m and returns the previous value of m.
func (m *ChangeSetMut) MergeWith(other *ChangeSetMut) (*ChangeSetMut, error) {
	merged, err := MergeChangeSetMut(m, other)
	if err != nil {
		return nil, err
	}
	old := &ChangeSetMut{entries: m.entries}
	m.entries = merged.entries
	return old, nil
}

// Freeze validates the builder and returns its immutable form. The change
// set holds a copy, later changes to the builder do not reach it.
//
// A valid change set holds unique, valid access paths. Field paths are unique
// within a resource. Every Update carries a value. The root is never changed
// by Plus or Minus, and a root Update or Deletion comes before the field
// changes of its resource.
func (m *ChangeSetMut) Freeze() (*ChangeSet, error) {
	for i, e := range m.entries {
		if err := e.Path.Validate(); err != nil {
			return nil, err
		}
		for _, prev := range m.entries[:i] {
			if prev.Path.Equals(e.Path) {
				return nil, errors.ErrDuplicate.Newf("resource %s", e.Path)
			}
		}
		if err := validateFields(e.Path, e.Changes); err != nil {
			return nil, err
		}
	}
	return &ChangeSet{mut: *m.Clone()}, nil
}

func validateFields(path AccessPath, changes FieldChanges) error {
	for i, c := range changes {
		if !c.Op.Kind.Valid() {
			return errors.ErrType.Newf("%s%s: %s", path, c.Accesses, c.Op.Kind)
		}
		if c.Op.Kind == OpUpdate && c.Op.Value == nil {
			return errors.ErrEmpty.Newf("%s%s: update without value", path, c.Accesses)
		}
		if c.Accesses.IsRoot() {
			if c.Op.IsNumeric() {
				return errors.ErrState.Newf("%s: %s on resource root", path, c.Op)
			}
			if c.replacesResource() && i != 0 {
				return errors.ErrState.Newf("%s: %s after field changes", path, c.Op)
			}
		}
		for _, prev := range changes[:i] {
			if prev.Accesses.Equals(c.Accesses) {
				return errors.ErrDuplicate.Newf("%s%s", path, c.Accesses)
			}
		}
	}
	return nil
}

// ChangeSet is a validated, immutable state diff.
type ChangeSet struct {
	mut ChangeSetMut
}

// Empty returns a change set without entries.
func Empty() *ChangeSet {
	return &ChangeSet{}
}

func (c *ChangeSet) Len() int {
	return c.mut.Len()
}

func (c *ChangeSet) IsEmpty() bool {
	return c.mut.IsEmpty()
}

// Entries returns a copy of the resource deltas in order.
func (c *ChangeSet) Entries() []ResourceChanges {
	return c.mut.Clone().entries
}

// Get returns a copy of the changes recorded for the resource.
func (c *ChangeSet) Get(path AccessPath) (FieldChanges, bool) {
	changes, ok := c.mut.Get(path)
	return changes.Clone(), ok
}

// IntoMut returns a builder holding a copy of this change set.
func (c *ChangeSet) IntoMut() *ChangeSetMut {
	return c.mut.Clone()
}

// Equals compares both change sets entry by entry, order included.
func (c *ChangeSet) Equals(o *ChangeSet) bool {
	if c == nil || o == nil {
		return c == o
	}
	if c.Len() != o.Len() {
		return false
	}
	for i, e := range c.mut.entries {
		other := o.mut.entries[i]
		if !e.Path.Equals(other.Path) || !e.Changes.Equals(other.Changes) {
			return false
		}
	}
	return true
}

func (c *ChangeSet) String() string {
	s := "ChangeSet{"
	for i, e := range c.mut.entries {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s: %v", e.Path, e.Changes)
	}
	return s + "}"
}

// MergeChangeSets merges two frozen change sets and freezes the result.
// A nil change set is empty. Neither input is modified.
func MergeChangeSets(first, second *ChangeSet) (*ChangeSet, error) {
	if first == nil {
		first = Empty()
	}
	if second == nil {
		second = Empty()
	}
	merged, err := MergeChangeSetMut(&first.mut, &second.mut)
	if err != nil {
		return nil, err
	}
	return merged.Freeze()
}
