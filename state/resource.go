package state

import (
	"github.com/gogo/protobuf/proto"
	"github.com/iov-one/offchain/changeset"
	"github.com/iov-one/offchain/errors"
)

// Field is a single stored value of a resource. A numeric field holds an
// amount, any other field holds serialized bytes.
type Field struct {
	Path    []string `protobuf:"bytes,1,rep,name=path,proto3" json:"path,omitempty"`
	Numeric bool     `protobuf:"varint,2,opt,name=numeric,proto3" json:"numeric,omitempty"`
	Amount  uint64   `protobuf:"varint,3,opt,name=amount,proto3" json:"amount,omitempty"`
	Value   []byte   `protobuf:"bytes,4,opt,name=value,proto3" json:"value,omitempty"`
}

func (m *Field) Reset()         { *m = Field{} }
func (m *Field) String() string { return proto.CompactTextString(m) }
func (*Field) ProtoMessage()    {}

// Resource is the stored form of everything kept under one access path.
// Fields keep the order in which they were first written.
type Resource struct {
	Fields []*Field `protobuf:"bytes,1,rep,name=fields,proto3" json:"fields,omitempty"`
}

func (m *Resource) Reset()         { *m = Resource{} }
func (m *Resource) String() string { return proto.CompactTextString(m) }
func (*Resource) ProtoMessage()    {}

// Validate implements orm.Model.
func (m *Resource) Validate() error {
	for i, f := range m.Fields {
		if f == nil {
			return errors.ErrMissingField.Newf("fields.%d", i)
		}
		if len(f.Path) == 0 {
			return errors.ErrEmpty.Newf("fields.%d.path", i)
		}
		for _, prev := range m.Fields[:i] {
			if changeset.Accesses(prev.Path).Equals(f.Path) {
				return errors.ErrDuplicate.Newf("fields.%d.path", i)
			}
		}
	}
	return nil
}

// Get returns the field stored under path.
func (m *Resource) Get(path changeset.Accesses) (*Field, bool) {
	if m == nil {
		return nil, false
	}
	for _, f := range m.Fields {
		if path.Equals(f.Path) {
			return f, true
		}
	}
	return nil, false
}

// Uint returns the amount of a numeric field. A missing field reads as zero.
func (m *Resource) Uint(path changeset.Accesses) (uint64, error) {
	f, ok := m.Get(path)
	if !ok {
		return 0, nil
	}
	if !f.Numeric {
		return 0, errors.ErrType.Newf("field %s is not numeric", path)
	}
	return f.Amount, nil
}

func (m *Resource) remove(path changeset.Accesses) {
	for i, f := range m.Fields {
		if path.Equals(f.Path) {
			m.Fields = append(m.Fields[:i], m.Fields[i+1:]...)
			return
		}
	}
}

// apply changes a single field of the resource.
func (m *Resource) apply(path changeset.Accesses, op changeset.ChangeOp) error {
	f, ok := m.Get(path)
	switch op.Kind {
	case changeset.OpNone:
		return nil
	case changeset.OpDeletion:
		m.remove(path)
		return nil
	case changeset.OpUpdate:
		if ok && f.Numeric {
			return errors.ErrType.Newf("field %s is numeric", path)
		}
		if !ok {
			f = &Field{Path: append([]string{}, path...)}
			m.Fields = append(m.Fields, f)
		}
		f.Value = append([]byte{}, op.Value...)
		return nil
	}

	if ok && !f.Numeric {
		return errors.ErrType.Newf("field %s is not numeric", path)
	}
	if !ok {
		f = &Field{Path: append([]string{}, path...), Numeric: true}
	}
	switch op.Kind {
	case changeset.OpPlus:
		sum := f.Amount + op.Amount
		if sum < f.Amount {
			return errors.ErrOverflow.Newf("field %s", path)
		}
		f.Amount = sum
	case changeset.OpMinus:
		if f.Amount < op.Amount {
			return errors.ErrAmount.Newf("field %s holds %d, cannot take %d", path, f.Amount, op.Amount)
		}
		f.Amount -= op.Amount
	default:
		return errors.ErrType.Newf("op %s", op)
	}
	if !ok {
		m.Fields = append(m.Fields, f)
	}
	return nil
}
