package ledger

import (
	"bytes"

	"github.com/gogo/protobuf/proto"
	"github.com/iov-one/offchain"
	"github.com/iov-one/offchain/errors"
	"github.com/iov-one/offchain/orm"
)

// Account holds the on chain balance of an address.
type Account struct {
	Address []byte `protobuf:"bytes,1,opt,name=address,proto3" json:"address,omitempty"`
	Balance uint64 `protobuf:"varint,2,opt,name=balance,proto3" json:"balance,omitempty"`
}

func (m *Account) Reset()         { *m = Account{} }
func (m *Account) String() string { return proto.CompactTextString(m) }
func (*Account) ProtoMessage()    {}

func (m *Account) Validate() error {
	return offchain.Address(m.Address).Validate()
}

// ChannelRecord is the chain view of an opened channel. Left and Right are
// ordered so that a pair of participants maps to a single record.
type ChannelRecord struct {
	ID    uint64 `protobuf:"varint,1,opt,name=id,proto3" json:"id,omitempty"`
	Left  []byte `protobuf:"bytes,2,opt,name=left,proto3" json:"left,omitempty"`
	Right []byte `protobuf:"bytes,3,opt,name=right,proto3" json:"right,omitempty"`
	// NextSeq is the lowest channel sequence a settlement may carry.
	NextSeq uint64 `protobuf:"varint,4,opt,name=next_seq,json=nextSeq,proto3" json:"next_seq,omitempty"`
	// Settled counts the travel transactions applied to the record.
	Settled uint64 `protobuf:"varint,5,opt,name=settled,proto3" json:"settled,omitempty"`
}

func (m *ChannelRecord) Reset()         { *m = ChannelRecord{} }
func (m *ChannelRecord) String() string { return proto.CompactTextString(m) }
func (*ChannelRecord) ProtoMessage()    {}

func (m *ChannelRecord) Validate() error {
	if m.ID == 0 {
		return errors.ErrModel.New("missing id")
	}
	if err := offchain.Address(m.Left).Validate(); err != nil {
		return errors.Wrap(err, "left")
	}
	if err := offchain.Address(m.Right).Validate(); err != nil {
		return errors.Wrap(err, "right")
	}
	if bytes.Compare(m.Left, m.Right) >= 0 {
		return errors.ErrModel.New("participants not ordered")
	}
	return nil
}

// Module is deployed code.
type Module struct {
	Owner []byte `protobuf:"bytes,1,opt,name=owner,proto3" json:"owner,omitempty"`
	Code  []byte `protobuf:"bytes,2,opt,name=code,proto3" json:"code,omitempty"`
}

func (m *Module) Reset()         { *m = Module{} }
func (m *Module) String() string { return proto.CompactTextString(m) }
func (*Module) ProtoMessage()    {}

func (m *Module) Validate() error {
	if err := offchain.Address(m.Owner).Validate(); err != nil {
		return errors.Wrap(err, "owner")
	}
	if len(m.Code) == 0 {
		return errors.ErrEmpty.New("code")
	}
	return nil
}

// Receipt records the outcome of a delivered transaction.
type Receipt struct {
	Hash      []byte `protobuf:"bytes,1,opt,name=hash,proto3" json:"hash,omitempty"`
	Height    int64  `protobuf:"varint,2,opt,name=height,proto3" json:"height,omitempty"`
	GasUsed   uint64 `protobuf:"varint,3,opt,name=gas_used,json=gasUsed,proto3" json:"gas_used,omitempty"`
	Payer     []byte `protobuf:"bytes,4,opt,name=payer,proto3" json:"payer,omitempty"`
	ChannelID uint64 `protobuf:"varint,5,opt,name=channel_id,json=channelId,proto3" json:"channel_id,omitempty"`
	Kind      string `protobuf:"bytes,6,opt,name=kind,proto3" json:"kind,omitempty"`
}

func (m *Receipt) Reset()         { *m = Receipt{} }
func (m *Receipt) String() string { return proto.CompactTextString(m) }
func (*Receipt) ProtoMessage()    {}

func (m *Receipt) Validate() error {
	if len(m.Hash) == 0 {
		return errors.ErrEmpty.New("hash")
	}
	if err := offchain.Address(m.Payer).Validate(); err != nil {
		return errors.Wrap(err, "payer")
	}
	return nil
}

// TransactionWithProof is a committed receipt together with the state root
// its inclusion was proven against.
type TransactionWithProof struct {
	Receipt *Receipt `protobuf:"bytes,1,opt,name=receipt,proto3" json:"receipt,omitempty"`
	Root    []byte   `protobuf:"bytes,2,opt,name=root,proto3" json:"root,omitempty"`
	Version int64    `protobuf:"varint,3,opt,name=version,proto3" json:"version,omitempty"`
}

func (m *TransactionWithProof) Reset()         { *m = TransactionWithProof{} }
func (m *TransactionWithProof) String() string { return proto.CompactTextString(m) }
func (*TransactionWithProof) ProtoMessage()    {}

func (m *TransactionWithProof) Validate() error {
	if m.Receipt == nil {
		return errors.ErrMissingField.New("receipt")
	}
	return m.Receipt.Validate()
}

// Buckets of the ledger state.
var (
	accounts = orm.NewBucket("account")
	channels = orm.NewBucket("chan")
	modules  = orm.NewBucket("module")
	receipts = orm.NewBucket("receipt")

	channelSeq = channels.Sequence("id")
)

// ReceiptKey is the store key of the receipt of a transaction.
func ReceiptKey(hash []byte) []byte {
	return receipts.DBKey(hash)
}

// pairKey orders both addresses.
func pairKey(a, b offchain.Address) (offchain.Address, offchain.Address) {
	if a.Compare(b) > 0 {
		return b, a
	}
	return a, b
}

func recordKey(a, b offchain.Address) []byte {
	left, right := pairKey(a, b)
	return append(append([]byte(nil), left...), right...)
}

// ResourcePrefix is the store prefix of the resources of a channel.
func ResourcePrefix(channelID uint64) []byte {
	return append([]byte("res:"), orm.EncodeSequence(channelID)...)
}
