package node

import (
	"github.com/gogo/protobuf/proto"
	"github.com/iov-one/offchain/channel"
	"github.com/iov-one/offchain/errors"
)

// Kinds of protocol messages exchanged by nodes.
const (
	KindHello int32 = iota + 1
	KindPropose
	KindConfirm
	KindApply
	KindApplied
	KindReject
)

// ProtocolMsg is the payload nodes send each other. Replies carry the hash
// of the request they answer.
type ProtocolMsg struct {
	Kind int32        `protobuf:"varint,1,opt,name=kind,proto3" json:"kind,omitempty"`
	Hash []byte       `protobuf:"bytes,2,opt,name=hash,proto3" json:"hash,omitempty"`
	Txn  *channel.Txn `protobuf:"bytes,3,opt,name=txn,proto3" json:"txn,omitempty"`
	// Code and Log describe the error of a rejection.
	Code uint32 `protobuf:"varint,4,opt,name=code,proto3" json:"code,omitempty"`
	Log  string `protobuf:"bytes,5,opt,name=log,proto3" json:"log,omitempty"`
}

func (m *ProtocolMsg) Reset()         { *m = ProtocolMsg{} }
func (m *ProtocolMsg) String() string { return proto.CompactTextString(m) }
func (*ProtocolMsg) ProtoMessage()    {}

func (m *ProtocolMsg) Validate() error {
	switch m.Kind {
	case KindHello:
		return nil
	case KindPropose, KindConfirm, KindApply:
		if m.Txn == nil {
			return errors.ErrMissingField.New("txn")
		}
	case KindApplied, KindReject:
	default:
		return errors.ErrInput.Newf("unknown kind %d", m.Kind)
	}
	if len(m.Hash) == 0 {
		return errors.ErrEmpty.New("hash")
	}
	return nil
}

// Err rebuilds the error of a rejection.
func (m *ProtocolMsg) Err() error {
	if m.Kind != KindReject {
		return nil
	}
	return errors.FromABCI(m.Code, m.Log)
}

func reject(hash []byte, err error) *ProtocolMsg {
	code, log := errors.ABCIInfo(err, false)
	return &ProtocolMsg{Kind: KindReject, Hash: hash, Code: code, Log: log}
}

func encodeMsg(m *ProtocolMsg) ([]byte, error) {
	raw, err := proto.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(errors.ErrModel, err.Error())
	}
	return raw, nil
}

func decodeMsg(raw []byte) (*ProtocolMsg, error) {
	var m ProtocolMsg
	if err := proto.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrap(errors.ErrDecode, err.Error())
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
