package changeset

import (
	"github.com/gogo/protobuf/proto"
	"github.com/iov-one/offchain"
	"github.com/iov-one/offchain/errors"
)

// WireChangeOp is the protobuf form of a ChangeOp.
type WireChangeOp struct {
	Kind   int32  `protobuf:"varint,1,opt,name=kind,proto3" json:"kind,omitempty"`
	Amount uint64 `protobuf:"varint,2,opt,name=amount,proto3" json:"amount,omitempty"`
	Value  []byte `protobuf:"bytes,3,opt,name=value,proto3" json:"value,omitempty"`
}

func (m *WireChangeOp) Reset()         { *m = WireChangeOp{} }
func (m *WireChangeOp) String() string { return proto.CompactTextString(m) }
func (*WireChangeOp) ProtoMessage()    {}

// WireFieldChange is the protobuf form of a FieldChange.
type WireFieldChange struct {
	Accesses []string      `protobuf:"bytes,1,rep,name=accesses,proto3" json:"accesses,omitempty"`
	Op       *WireChangeOp `protobuf:"bytes,2,opt,name=op,proto3" json:"op,omitempty"`
}

func (m *WireFieldChange) Reset()         { *m = WireFieldChange{} }
func (m *WireFieldChange) String() string { return proto.CompactTextString(m) }
func (*WireFieldChange) ProtoMessage()    {}

// WireResourceChanges is the protobuf form of ResourceChanges.
type WireResourceChanges struct {
	Address []byte             `protobuf:"bytes,1,opt,name=address,proto3" json:"address,omitempty"`
	Tag     string             `protobuf:"bytes,2,opt,name=tag,proto3" json:"tag,omitempty"`
	Changes []*WireFieldChange `protobuf:"bytes,3,rep,name=changes,proto3" json:"changes,omitempty"`
}

func (m *WireResourceChanges) Reset()         { *m = WireResourceChanges{} }
func (m *WireResourceChanges) String() string { return proto.CompactTextString(m) }
func (*WireResourceChanges) ProtoMessage()    {}

// WireChangeSet is the protobuf form of a ChangeSet. Entries keep their
// order.
type WireChangeSet struct {
	Resources []*WireResourceChanges `protobuf:"bytes,1,rep,name=resources,proto3" json:"resources,omitempty"`
}

func (m *WireChangeSet) Reset()         { *m = WireChangeSet{} }
func (m *WireChangeSet) String() string { return proto.CompactTextString(m) }
func (*WireChangeSet) ProtoMessage()    {}

// ToWire converts a change set into its protobuf form. A nil change set
// gives nil.
func ToWire(cs *ChangeSet) *WireChangeSet {
	if cs == nil {
		return nil
	}
	w := &WireChangeSet{}
	for _, e := range cs.Entries() {
		r := &WireResourceChanges{
			Address: e.Path.Address,
			Tag:     e.Path.Tag,
		}
		for _, c := range e.Changes {
			r.Changes = append(r.Changes, &WireFieldChange{
				Accesses: c.Accesses,
				Op: &WireChangeOp{
					Kind:   int32(c.Op.Kind),
					Amount: c.Op.Amount,
					Value:  c.Op.Value,
				},
			})
		}
		w.Resources = append(w.Resources, r)
	}
	return w
}

// FromWire rebuilds and validates a change set. A nil message gives an empty
// change set.
func FromWire(w *WireChangeSet) (*ChangeSet, error) {
	mut := NewChangeSetMut()
	if w == nil {
		return mut.Freeze()
	}
	for i, r := range w.Resources {
		if r == nil {
			return nil, errors.ErrMissingField.Newf("resources.%d", i)
		}
		var changes FieldChanges
		for j, c := range r.Changes {
			if c == nil || c.Op == nil {
				return nil, errors.ErrMissingField.Newf("resources.%d.changes.%d.op", i, j)
			}
			op := ChangeOp{
				Kind:   OpKind(c.Op.Kind),
				Amount: c.Op.Amount,
				Value:  c.Op.Value,
			}
			if !op.Kind.Valid() {
				return nil, errors.ErrDecode.Newf("resources.%d.changes.%d: unknown op kind %d", i, j, c.Op.Kind)
			}
			// Empty bytes are not kept on the wire.
			if op.Kind == OpUpdate && op.Value == nil {
				op.Value = []byte{}
			}
			changes.Push(Accesses(c.Accesses), op)
		}
		mut.Push(AccessPath{Address: offchain.Address(r.Address), Tag: r.Tag}, changes)
	}
	return mut.Freeze()
}

// Marshal serializes a change set.
func Marshal(cs *ChangeSet) ([]byte, error) {
	w := ToWire(cs)
	if w == nil {
		w = &WireChangeSet{}
	}
	bz, err := proto.Marshal(w)
	if err != nil {
		return nil, errors.Wrap(errors.ErrModel, err.Error())
	}
	return bz, nil
}

// Unmarshal decodes and validates a change set.
func Unmarshal(bz []byte) (*ChangeSet, error) {
	var w WireChangeSet
	if err := proto.Unmarshal(bz, &w); err != nil {
		return nil, errors.Wrap(errors.ErrDecode, err.Error())
	}
	return FromWire(&w)
}
