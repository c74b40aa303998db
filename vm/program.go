package vm

import (
	"github.com/gogo/protobuf/proto"
	"github.com/iov-one/offchain/changeset"
	"github.com/iov-one/offchain/errors"
)

// Roles select whose resource an instruction changes.
const (
	RoleSender int32 = iota
	RoleReceiver
)

// ChannelTag is expanded to the channel resource of the participant with
// the other side of the call.
const ChannelTag = "channel"

// Instruction produces a single field change.
type Instruction struct {
	Role int32    `protobuf:"varint,1,opt,name=role,proto3" json:"role,omitempty"`
	Tag  string   `protobuf:"bytes,2,opt,name=tag,proto3" json:"tag,omitempty"`
	Path []string `protobuf:"bytes,3,rep,name=path,proto3" json:"path,omitempty"`
	Kind int32    `protobuf:"varint,4,opt,name=kind,proto3" json:"kind,omitempty"`
	// Amount is used by numeric ops when ArgIndex is zero.
	Amount uint64 `protobuf:"varint,5,opt,name=amount,proto3" json:"amount,omitempty"`
	// ArgIndex is the 1-based index of the call argument holding the
	// amount.
	ArgIndex uint32 `protobuf:"varint,6,opt,name=arg_index,json=argIndex,proto3" json:"arg_index,omitempty"`
	Value    []byte `protobuf:"bytes,7,opt,name=value,proto3" json:"value,omitempty"`
}

func (m *Instruction) Reset()         { *m = Instruction{} }
func (m *Instruction) String() string { return proto.CompactTextString(m) }
func (*Instruction) ProtoMessage()    {}

func (m *Instruction) Validate() error {
	if m.Role != RoleSender && m.Role != RoleReceiver {
		return errors.ErrInput.Newf("role %d", m.Role)
	}
	if m.Tag == "" {
		return errors.ErrEmpty.New("tag")
	}
	kind := changeset.OpKind(m.Kind)
	if !kind.Valid() || kind == changeset.OpNone {
		return errors.ErrInput.Newf("op kind %d", m.Kind)
	}
	if len(m.Path) == 0 && kind != changeset.OpDeletion && kind != changeset.OpUpdate {
		return errors.ErrInput.Newf("%s on resource root", kind)
	}
	return nil
}

// Program is the code of a script, a list of instructions run in order.
type Program struct {
	Ops []*Instruction `protobuf:"bytes,1,rep,name=ops,proto3" json:"ops,omitempty"`
}

func (m *Program) Reset()         { *m = Program{} }
func (m *Program) String() string { return proto.CompactTextString(m) }
func (*Program) ProtoMessage()    {}

func (m *Program) Validate() error {
	if len(m.Ops) == 0 {
		return errors.ErrEmpty.New("program")
	}
	for i, op := range m.Ops {
		if op == nil {
			return errors.ErrMissingField.Newf("ops.%d", i)
		}
		if err := op.Validate(); err != nil {
			return errors.Wrapf(err, "ops.%d", i)
		}
	}
	return nil
}

// ScriptCode is a named script of a package.
type ScriptCode struct {
	Name string `protobuf:"bytes,1,opt,name=name,proto3" json:"name,omitempty"`
	// Arity is the number of arguments a call must provide.
	Arity uint32 `protobuf:"varint,2,opt,name=arity,proto3" json:"arity,omitempty"`
	// Code is the serialized Program.
	Code []byte `protobuf:"bytes,3,opt,name=code,proto3" json:"code,omitempty"`
}

func (m *ScriptCode) Reset()         { *m = ScriptCode{} }
func (m *ScriptCode) String() string { return proto.CompactTextString(m) }
func (*ScriptCode) ProtoMessage()    {}

// Program decodes and validates the script code.
func (m *ScriptCode) Program() (*Program, error) {
	var p Program
	if err := proto.Unmarshal(m.Code, &p); err != nil {
		return nil, errors.Wrapf(errors.ErrDecode, "script %q: %s", m.Name, err)
	}
	if err := p.Validate(); err != nil {
		return nil, errors.Wrapf(err, "script %q", m.Name)
	}
	for i, op := range p.Ops {
		if op.ArgIndex > m.Arity {
			return nil, errors.ErrInput.Newf("script %q ops.%d: argument %d out of %d", m.Name, i, op.ArgIndex, m.Arity)
		}
	}
	return &p, nil
}

// ScriptPackage is a named set of scripts installed into the machine.
type ScriptPackage struct {
	Name    string        `protobuf:"bytes,1,opt,name=name,proto3" json:"name,omitempty"`
	Scripts []*ScriptCode `protobuf:"bytes,2,rep,name=scripts,proto3" json:"scripts,omitempty"`
}

func (m *ScriptPackage) Reset()         { *m = ScriptPackage{} }
func (m *ScriptPackage) String() string { return proto.CompactTextString(m) }
func (*ScriptPackage) ProtoMessage()    {}

func (m *ScriptPackage) Validate() error {
	if m.Name == "" {
		return errors.ErrEmpty.New("package name")
	}
	if len(m.Scripts) == 0 {
		return errors.ErrEmpty.New("package scripts")
	}
	for i, s := range m.Scripts {
		if s == nil {
			return errors.ErrMissingField.Newf("scripts.%d", i)
		}
		if s.Name == "" {
			return errors.ErrEmpty.Newf("scripts.%d.name", i)
		}
		for _, prev := range m.Scripts[:i] {
			if prev.Name == s.Name {
				return errors.ErrDuplicate.Newf("script %q", s.Name)
			}
		}
		if _, err := s.Program(); err != nil {
			return err
		}
	}
	return nil
}

// Script returns the script with the given name.
func (m *ScriptPackage) Script(name string) (*ScriptCode, bool) {
	for _, s := range m.Scripts {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// NewScript builds a script from its instructions.
func NewScript(name string, arity uint32, ops ...*Instruction) (*ScriptCode, error) {
	code, err := proto.Marshal(&Program{Ops: ops})
	if err != nil {
		return nil, errors.Wrap(errors.ErrModel, err.Error())
	}
	return &ScriptCode{Name: name, Arity: arity, Code: code}, nil
}
