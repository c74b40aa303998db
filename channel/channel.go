package channel

import (
	"github.com/gogo/protobuf/proto"
	"github.com/iov-one/offchain"
	"github.com/iov-one/offchain/changeset"
	"github.com/iov-one/offchain/errors"
	"github.com/iov-one/offchain/orm"
)

// Status of a channel replica.
const (
	StatusUninitialized int32 = iota
	StatusOpen
	StatusClosed
)

// Channel is the state one participant keeps about the channel with a
// counterparty. Balances are not kept here, they live in the replica
// resources under vm.ChannelPath.
type Channel struct {
	Owner        []byte `protobuf:"bytes,1,opt,name=owner,proto3" json:"owner,omitempty"`
	Counterparty []byte `protobuf:"bytes,2,opt,name=counterparty,proto3" json:"counterparty,omitempty"`
	Status       int32  `protobuf:"varint,3,opt,name=status,proto3" json:"status,omitempty"`
	// Seq is the number of applied transactions.
	Seq uint64 `protobuf:"varint,4,opt,name=seq,proto3" json:"seq,omitempty"`
	// ChannelID is the identifier assigned by the chain when the channel
	// was opened.
	ChannelID uint64 `protobuf:"varint,5,opt,name=channel_id,json=channelId,proto3" json:"channel_id,omitempty"`
	// Pending is the own proposal waiting to be applied.
	Pending *Txn `protobuf:"bytes,6,opt,name=pending,proto3" json:"pending,omitempty"`
	// Verified is the counterparty proposal confirmed by this side and
	// not applied yet.
	Verified *Txn `protobuf:"bytes,7,opt,name=verified,proto3" json:"verified,omitempty"`
	// LastApplied allows to answer retries of the latest transaction.
	LastApplied *Txn                     `protobuf:"bytes,8,opt,name=last_applied,json=lastApplied,proto3" json:"last_applied,omitempty"`
	Witness     *changeset.WireChangeSet `protobuf:"bytes,9,opt,name=witness,proto3" json:"witness,omitempty"`
}

func (m *Channel) Reset()         { *m = Channel{} }
func (m *Channel) String() string { return proto.CompactTextString(m) }
func (*Channel) ProtoMessage()    {}

// New returns an uninitialized channel.
func New(owner, counterparty offchain.Address) *Channel {
	return &Channel{
		Owner:        owner,
		Counterparty: counterparty,
		Status:       StatusUninitialized,
		Witness:      changeset.ToWire(changeset.Empty()),
	}
}

func (m *Channel) Validate() error {
	if err := offchain.Address(m.Owner).Validate(); err != nil {
		return errors.Wrap(err, "owner")
	}
	if err := offchain.Address(m.Counterparty).Validate(); err != nil {
		return errors.Wrap(err, "counterparty")
	}
	if m.Status < StatusUninitialized || m.Status > StatusClosed {
		return errors.ErrState.Newf("status %d", m.Status)
	}
	if m.Status == StatusUninitialized && m.Seq != 0 {
		return errors.ErrState.New("uninitialized channel with applied transactions")
	}
	if _, err := changeset.FromWire(m.Witness); err != nil {
		return errors.Wrap(err, "witness")
	}
	return nil
}

// WitnessSet decodes the witness.
func (m *Channel) WitnessSet() (*changeset.ChangeSet, error) {
	return changeset.FromWire(m.Witness)
}

// IsOpen returns true when the channel accepts transactions other than open.
func (m *Channel) IsOpen() bool {
	return m.Status == StatusOpen
}

// CheckOp returns an error when the operation is not allowed in the current
// status.
func (m *Channel) CheckOp(op Op) error {
	switch {
	case m.Status == StatusClosed:
		return errors.ErrState.New("channel closed")
	case op == OpOpen && m.Status != StatusUninitialized:
		return errors.ErrState.New("channel already open")
	case op != OpOpen && m.Status != StatusOpen:
		return errors.ErrState.Newf("%s on a channel that is not open", op)
	}
	return nil
}

// Bucket stores channels keyed by the counterparty address.
type Bucket struct {
	orm.Bucket
}

// NewBucket returns the channel bucket.
func NewBucket() Bucket {
	return Bucket{Bucket: orm.NewBucket("channel")}
}

// Load returns the channel with counterparty, a new uninitialized one when
// nothing is stored.
func (b Bucket) Load(db offchain.ReadOnlyKVStore, owner, counterparty offchain.Address) (*Channel, error) {
	var ch Channel
	switch err := b.Get(db, counterparty, &ch); {
	case err == nil:
		return &ch, nil
	case errors.ErrNotFound.Is(err):
		return New(owner, counterparty), nil
	default:
		return nil, err
	}
}

// Put saves the channel.
func (b Bucket) Put(db offchain.KVStore, ch *Channel) error {
	return b.Save(db, ch.Counterparty, ch)
}

// Counterparties returns the addresses of all stored channels.
func (b Bucket) Counterparties(db offchain.ReadOnlyKVStore) ([]offchain.Address, error) {
	keys, err := b.Keys(db)
	if err != nil {
		return nil, err
	}
	res := make([]offchain.Address, len(keys))
	for i, k := range keys {
		res[i] = k
	}
	return res, nil
}
