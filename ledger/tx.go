package ledger

import (
	"crypto/sha256"

	"github.com/gogo/protobuf/proto"
	"github.com/iov-one/offchain"
	"github.com/iov-one/offchain/channel"
	"github.com/iov-one/offchain/crypto"
	"github.com/iov-one/offchain/errors"
)

// FaucetMsg credits an account. Nonce keeps identical requests apart.
type FaucetMsg struct {
	Address []byte `protobuf:"bytes,1,opt,name=address,proto3" json:"address,omitempty"`
	Amount  uint64 `protobuf:"varint,2,opt,name=amount,proto3" json:"amount,omitempty"`
	Nonce   uint64 `protobuf:"varint,3,opt,name=nonce,proto3" json:"nonce,omitempty"`
}

func (m *FaucetMsg) Reset()         { *m = FaucetMsg{} }
func (m *FaucetMsg) String() string { return proto.CompactTextString(m) }
func (*FaucetMsg) ProtoMessage()    {}

func (m *FaucetMsg) Validate() error {
	if err := offchain.Address(m.Address).Validate(); err != nil {
		return err
	}
	if m.Amount == 0 {
		return errors.ErrAmount.New("zero faucet amount")
	}
	return nil
}

// DeployMsg publishes a module. The signature is made over the code hash.
type DeployMsg struct {
	PublicKey []byte `protobuf:"bytes,1,opt,name=public_key,json=publicKey,proto3" json:"public_key,omitempty"`
	Code      []byte `protobuf:"bytes,2,opt,name=code,proto3" json:"code,omitempty"`
	Signature []byte `protobuf:"bytes,3,opt,name=signature,proto3" json:"signature,omitempty"`
}

func (m *DeployMsg) Reset()         { *m = DeployMsg{} }
func (m *DeployMsg) String() string { return proto.CompactTextString(m) }
func (*DeployMsg) ProtoMessage()    {}

func (m *DeployMsg) Validate() error {
	if len(m.Code) == 0 {
		return errors.ErrEmpty.New("code")
	}
	if !crypto.PublicKey(m.PublicKey).Verify(ModuleHash(m.Code), m.Signature) {
		return errors.ErrUnauthorized.New("invalid deploy signature")
	}
	return nil
}

// ModuleHash identifies deployed code.
func ModuleHash(code []byte) []byte {
	h := sha256.Sum256(code)
	return h[:]
}

// ChainTx is a transaction delivered to the ledger. Exactly one of the
// messages is set.
type ChainTx struct {
	Faucet *FaucetMsg   `protobuf:"bytes,1,opt,name=faucet,proto3" json:"faucet,omitempty"`
	Settle *channel.Txn `protobuf:"bytes,2,opt,name=settle,proto3" json:"settle,omitempty"`
	Deploy *DeployMsg   `protobuf:"bytes,3,opt,name=deploy,proto3" json:"deploy,omitempty"`
}

func (m *ChainTx) Reset()         { *m = ChainTx{} }
func (m *ChainTx) String() string { return proto.CompactTextString(m) }
func (*ChainTx) ProtoMessage()    {}

// Kind names the message carried by the transaction.
func (m *ChainTx) Kind() string {
	switch {
	case m.Faucet != nil:
		return "faucet"
	case m.Settle != nil:
		return "settle"
	case m.Deploy != nil:
		return "deploy"
	}
	return ""
}

func (m *ChainTx) Validate() error {
	set := 0
	for _, ok := range []bool{m.Faucet != nil, m.Settle != nil, m.Deploy != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return errors.ErrMsg.Newf("transaction must carry one message, got %d", set)
	}
	switch {
	case m.Faucet != nil:
		return m.Faucet.Validate()
	case m.Settle != nil:
		return m.Settle.ValidateConfirmed()
	default:
		return m.Deploy.Validate()
	}
}

// Hash identifies the transaction. A settlement is identified by its
// channel request so that both participants submitting it collide.
func (m *ChainTx) Hash() ([]byte, error) {
	if m.Settle != nil {
		return m.Settle.Hash()
	}
	raw, err := proto.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(errors.ErrModel, err.Error())
	}
	h := sha256.Sum256(raw)
	return h[:], nil
}

// Bytes serializes the transaction.
func (m *ChainTx) Bytes() ([]byte, error) {
	raw, err := proto.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(errors.ErrModel, err.Error())
	}
	return raw, nil
}

// DecodeTx decodes and validates a transaction.
func DecodeTx(raw []byte) (*ChainTx, error) {
	var tx ChainTx
	if err := proto.Unmarshal(raw, &tx); err != nil {
		return nil, errors.Wrap(errors.ErrDecode, err.Error())
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return &tx, nil
}

// SettleTx wraps a confirmed channel transaction.
func SettleTx(txn *channel.Txn) *ChainTx {
	return &ChainTx{Settle: txn}
}

// FaucetTx credits amount to addr.
func FaucetTx(addr offchain.Address, amount, nonce uint64) *ChainTx {
	return &ChainTx{Faucet: &FaucetMsg{Address: addr, Amount: amount, Nonce: nonce}}
}

// DeployTx signs code for deployment.
func DeployTx(key crypto.PrivateKey, code []byte) *ChainTx {
	return &ChainTx{Deploy: &DeployMsg{
		PublicKey: key.PublicKey(),
		Code:      code,
		Signature: key.Sign(ModuleHash(code)),
	}}
}
