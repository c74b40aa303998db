package channel

import (
	"bytes"
	"crypto/sha256"

	"github.com/gogo/protobuf/proto"
	"github.com/iov-one/offchain"
	"github.com/iov-one/offchain/changeset"
	"github.com/iov-one/offchain/crypto"
	"github.com/iov-one/offchain/errors"
	"github.com/iov-one/offchain/vm"
)

// Request is a proposed channel transaction. Its content is a pure function
// of the proposer channel state and the requested parameters, so proposing
// the same operation twice gives an identical request.
type Request struct {
	Op           int32  `protobuf:"varint,1,opt,name=op,proto3" json:"op,omitempty"`
	Proposer     []byte `protobuf:"bytes,2,opt,name=proposer,proto3" json:"proposer,omitempty"`
	Counterparty []byte `protobuf:"bytes,3,opt,name=counterparty,proto3" json:"counterparty,omitempty"`
	ProposerKey  []byte `protobuf:"bytes,4,opt,name=proposer_key,json=proposerKey,proto3" json:"proposer_key,omitempty"`
	// ChannelSeq is the number of transactions applied to the channel
	// before this one.
	ChannelSeq uint64   `protobuf:"varint,5,opt,name=channel_seq,json=channelSeq,proto3" json:"channel_seq,omitempty"`
	Package    string   `protobuf:"bytes,6,opt,name=package,proto3" json:"package,omitempty"`
	Script     string   `protobuf:"bytes,7,opt,name=script,proto3" json:"script,omitempty"`
	Args       [][]byte `protobuf:"bytes,8,rep,name=args,proto3" json:"args,omitempty"`
	// Output is the change set produced by the script.
	Output *changeset.WireChangeSet `protobuf:"bytes,9,opt,name=output,proto3" json:"output,omitempty"`
	// Witness holds the off chain changes accumulated since the last
	// travel transaction.
	Witness *changeset.WireChangeSet `protobuf:"bytes,10,opt,name=witness,proto3" json:"witness,omitempty"`
}

func (m *Request) Reset()         { *m = Request{} }
func (m *Request) String() string { return proto.CompactTextString(m) }
func (*Request) ProtoMessage()    {}

// Kind returns the operation of the request.
func (m *Request) Kind() Op {
	return Op(m.Op)
}

func (m *Request) Validate() error {
	if m == nil {
		return errors.ErrMissingField.New("request")
	}
	if !m.Kind().Valid() {
		return errors.ErrInput.Newf("unknown op %d", m.Op)
	}
	if err := offchain.Address(m.Proposer).Validate(); err != nil {
		return errors.Wrap(err, "proposer")
	}
	if err := offchain.Address(m.Counterparty).Validate(); err != nil {
		return errors.Wrap(err, "counterparty")
	}
	if offchain.Address(m.Proposer).Equals(m.Counterparty) {
		return errors.ErrInput.New("channel with self")
	}
	if !crypto.PublicKey(m.ProposerKey).Address().Equals(m.Proposer) {
		return errors.ErrUnauthorized.New("proposer key does not match proposer")
	}
	if m.Package == "" || m.Script == "" {
		return errors.ErrEmpty.New("script")
	}
	if script, ok := m.Kind().Script(); ok && (m.Package != vm.ChannelPackage || m.Script != script) {
		return errors.ErrInput.Newf("%s must run %s.%s", m.Kind(), vm.ChannelPackage, script)
	}
	if _, err := m.OutputSet(); err != nil {
		return errors.Wrap(err, "output")
	}
	if _, err := m.WitnessSet(); err != nil {
		return errors.Wrap(err, "witness")
	}
	return nil
}

// Hash is the identifier of the request, signatures are made over it.
func (m *Request) Hash() ([]byte, error) {
	raw, err := proto.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(errors.ErrModel, err.Error())
	}
	h := sha256.Sum256(raw)
	return h[:], nil
}

// Call returns the script call that produces the request output.
func (m *Request) Call() vm.Call {
	return vm.Call{
		Sender:   m.Proposer,
		Receiver: m.Counterparty,
		Package:  m.Package,
		Script:   m.Script,
		Args:     m.Args,
	}
}

// OutputSet decodes the output change set.
func (m *Request) OutputSet() (*changeset.ChangeSet, error) {
	return changeset.FromWire(m.Output)
}

// WitnessSet decodes the witness change set.
func (m *Request) WitnessSet() (*changeset.ChangeSet, error) {
	return changeset.FromWire(m.Witness)
}

// Txn is a signed request. A proposal carries only the proposer signature,
// a confirmed transaction carries both.
type Txn struct {
	Request         *Request `protobuf:"bytes,1,opt,name=request,proto3" json:"request,omitempty"`
	ProposerSig     []byte   `protobuf:"bytes,2,opt,name=proposer_sig,json=proposerSig,proto3" json:"proposer_sig,omitempty"`
	CounterpartyKey []byte   `protobuf:"bytes,3,opt,name=counterparty_key,json=counterpartyKey,proto3" json:"counterparty_key,omitempty"`
	CounterpartySig []byte   `protobuf:"bytes,4,opt,name=counterparty_sig,json=counterpartySig,proto3" json:"counterparty_sig,omitempty"`
}

func (m *Txn) Reset()         { *m = Txn{} }
func (m *Txn) String() string { return proto.CompactTextString(m) }
func (*Txn) ProtoMessage()    {}

// Propose signs the request with the proposer key.
func Propose(key crypto.PrivateKey, req *Request) (*Txn, error) {
	hash, err := req.Hash()
	if err != nil {
		return nil, err
	}
	return &Txn{Request: req, ProposerSig: key.Sign(hash)}, nil
}

// Confirm returns a copy of the transaction countersigned with key.
func (m *Txn) Confirm(key crypto.PrivateKey) (*Txn, error) {
	hash, err := m.Hash()
	if err != nil {
		return nil, err
	}
	return &Txn{
		Request:         m.Request,
		ProposerSig:     m.ProposerSig,
		CounterpartyKey: key.PublicKey(),
		CounterpartySig: key.Sign(hash),
	}, nil
}

// Hash returns the request hash.
func (m *Txn) Hash() ([]byte, error) {
	if m == nil || m.Request == nil {
		return nil, errors.ErrMissingField.New("request")
	}
	return m.Request.Hash()
}

// Validate checks the request and the proposer signature.
func (m *Txn) Validate() error {
	if m == nil {
		return errors.ErrMissingField.New("txn")
	}
	if err := m.Request.Validate(); err != nil {
		return err
	}
	hash, err := m.Hash()
	if err != nil {
		return err
	}
	if !crypto.PublicKey(m.Request.ProposerKey).Verify(hash, m.ProposerSig) {
		return errors.ErrUnauthorized.New("invalid proposer signature")
	}
	return nil
}

// ValidateConfirmed checks both signatures.
func (m *Txn) ValidateConfirmed() error {
	if err := m.Validate(); err != nil {
		return err
	}
	if !crypto.PublicKey(m.CounterpartyKey).Address().Equals(m.Request.Counterparty) {
		return errors.ErrUnauthorized.New("counterparty key does not match counterparty")
	}
	hash, err := m.Hash()
	if err != nil {
		return err
	}
	if !crypto.PublicKey(m.CounterpartyKey).Verify(hash, m.CounterpartySig) {
		return errors.ErrUnauthorized.New("invalid counterparty signature")
	}
	return nil
}

// IsConfirmed returns true when the counterparty half is present.
func (m *Txn) IsConfirmed() bool {
	return m != nil && len(m.CounterpartySig) > 0
}

// SameRequest returns true when both transactions carry the same request.
func (m *Txn) SameRequest(o *Txn) bool {
	a, err := m.Hash()
	if err != nil {
		return false
	}
	b, err := o.Hash()
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// Equals compares the encoded form of both transactions.
func (m *Txn) Equals(o *Txn) bool {
	if m == nil || o == nil {
		return m == o
	}
	a, err := proto.Marshal(m)
	if err != nil {
		return false
	}
	b, err := proto.Marshal(o)
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// Bytes serializes the transaction.
func (m *Txn) Bytes() ([]byte, error) {
	raw, err := proto.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(errors.ErrModel, err.Error())
	}
	return raw, nil
}

// UnmarshalTxn decodes a transaction and checks the proposer half.
func UnmarshalTxn(raw []byte) (*Txn, error) {
	var t Txn
	if err := proto.Unmarshal(raw, &t); err != nil {
		return nil, errors.Wrap(errors.ErrDecode, err.Error())
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}
