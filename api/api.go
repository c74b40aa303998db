/*
Package api defines the requests a node serves and their responses. All of
them are protobuf messages, Decode checks them right after unmarshalling.
*/
package api

import (
	"crypto/sha256"

	"github.com/gogo/protobuf/proto"
	"github.com/iov-one/offchain"
	"github.com/iov-one/offchain/errors"
	"github.com/iov-one/offchain/ledger"
	"github.com/iov-one/offchain/vm"
)

// Message is implemented by every request and response.
type Message interface {
	proto.Message
	Validate() error
}

// Decode unmarshals raw into msg and validates it.
func Decode(raw []byte, msg Message) error {
	if err := proto.Unmarshal(raw, msg); err != nil {
		return errors.Wrap(errors.ErrDecode, err.Error())
	}
	return errors.WithType(msg.Validate(), msg)
}

// Encode validates and marshals msg.
func Encode(msg Message) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, errors.WithType(err, msg)
	}
	raw, err := proto.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(errors.ErrModel, err.Error())
	}
	return raw, nil
}

func validateRemote(addr []byte) error {
	return errors.Wrap(offchain.Address(addr).Validate(), "remote_addr")
}

type OpenChannelRequest struct {
	RemoteAddr   []byte `protobuf:"bytes,1,opt,name=remote_addr,json=remoteAddr,proto3" json:"remote_addr,omitempty"`
	LocalAmount  uint64 `protobuf:"varint,2,opt,name=local_amount,json=localAmount,proto3" json:"local_amount,omitempty"`
	RemoteAmount uint64 `protobuf:"varint,3,opt,name=remote_amount,json=remoteAmount,proto3" json:"remote_amount,omitempty"`
}

func (m *OpenChannelRequest) Reset()         { *m = OpenChannelRequest{} }
func (m *OpenChannelRequest) String() string { return proto.CompactTextString(m) }
func (*OpenChannelRequest) ProtoMessage()    {}

func (m *OpenChannelRequest) Validate() error {
	return validateRemote(m.RemoteAddr)
}

type OpenChannelResponse struct{}

func (m *OpenChannelResponse) Reset()          { *m = OpenChannelResponse{} }
func (m *OpenChannelResponse) String() string  { return proto.CompactTextString(m) }
func (*OpenChannelResponse) ProtoMessage()     {}
func (m *OpenChannelResponse) Validate() error { return nil }

type PayRequest struct {
	RemoteAddr []byte `protobuf:"bytes,1,opt,name=remote_addr,json=remoteAddr,proto3" json:"remote_addr,omitempty"`
	Amount     uint64 `protobuf:"varint,2,opt,name=amount,proto3" json:"amount,omitempty"`
}

func (m *PayRequest) Reset()         { *m = PayRequest{} }
func (m *PayRequest) String() string { return proto.CompactTextString(m) }
func (*PayRequest) ProtoMessage()    {}

func (m *PayRequest) Validate() error {
	if m.Amount == 0 {
		return errors.ErrAmount.New("nothing to pay")
	}
	return validateRemote(m.RemoteAddr)
}

type PayResponse struct{}

func (m *PayResponse) Reset()          { *m = PayResponse{} }
func (m *PayResponse) String() string  { return proto.CompactTextString(m) }
func (*PayResponse) ProtoMessage()     {}
func (m *PayResponse) Validate() error { return nil }

type ConnectRequest struct {
	RemoteAddr []byte `protobuf:"bytes,1,opt,name=remote_addr,json=remoteAddr,proto3" json:"remote_addr,omitempty"`
	RemoteIP   string `protobuf:"bytes,2,opt,name=remote_ip,json=remoteIp,proto3" json:"remote_ip,omitempty"`
}

func (m *ConnectRequest) Reset()         { *m = ConnectRequest{} }
func (m *ConnectRequest) String() string { return proto.CompactTextString(m) }
func (*ConnectRequest) ProtoMessage()    {}

func (m *ConnectRequest) Validate() error {
	if m.RemoteIP == "" {
		return errors.ErrEmpty.New("remote_ip")
	}
	return validateRemote(m.RemoteAddr)
}

type ConnectResponse struct{}

func (m *ConnectResponse) Reset()          { *m = ConnectResponse{} }
func (m *ConnectResponse) String() string  { return proto.CompactTextString(m) }
func (*ConnectResponse) ProtoMessage()     {}
func (m *ConnectResponse) Validate() error { return nil }

type DepositRequest struct {
	RemoteAddr   []byte `protobuf:"bytes,1,opt,name=remote_addr,json=remoteAddr,proto3" json:"remote_addr,omitempty"`
	LocalAmount  uint64 `protobuf:"varint,2,opt,name=local_amount,json=localAmount,proto3" json:"local_amount,omitempty"`
	RemoteAmount uint64 `protobuf:"varint,3,opt,name=remote_amount,json=remoteAmount,proto3" json:"remote_amount,omitempty"`
}

func (m *DepositRequest) Reset()         { *m = DepositRequest{} }
func (m *DepositRequest) String() string { return proto.CompactTextString(m) }
func (*DepositRequest) ProtoMessage()    {}

func (m *DepositRequest) Validate() error {
	if m.LocalAmount == 0 && m.RemoteAmount == 0 {
		return errors.ErrAmount.New("nothing to deposit")
	}
	return validateRemote(m.RemoteAddr)
}

type DepositResponse struct{}

func (m *DepositResponse) Reset()          { *m = DepositResponse{} }
func (m *DepositResponse) String() string  { return proto.CompactTextString(m) }
func (*DepositResponse) ProtoMessage()     {}
func (m *DepositResponse) Validate() error { return nil }

type WithdrawRequest struct {
	RemoteAddr   []byte `protobuf:"bytes,1,opt,name=remote_addr,json=remoteAddr,proto3" json:"remote_addr,omitempty"`
	LocalAmount  uint64 `protobuf:"varint,2,opt,name=local_amount,json=localAmount,proto3" json:"local_amount,omitempty"`
	RemoteAmount uint64 `protobuf:"varint,3,opt,name=remote_amount,json=remoteAmount,proto3" json:"remote_amount,omitempty"`
}

func (m *WithdrawRequest) Reset()         { *m = WithdrawRequest{} }
func (m *WithdrawRequest) String() string { return proto.CompactTextString(m) }
func (*WithdrawRequest) ProtoMessage()    {}

func (m *WithdrawRequest) Validate() error {
	if m.LocalAmount == 0 && m.RemoteAmount == 0 {
		return errors.ErrAmount.New("nothing to withdraw")
	}
	return validateRemote(m.RemoteAddr)
}

type WithdrawResponse struct{}

func (m *WithdrawResponse) Reset()          { *m = WithdrawResponse{} }
func (m *WithdrawResponse) String() string  { return proto.CompactTextString(m) }
func (*WithdrawResponse) ProtoMessage()     {}
func (m *WithdrawResponse) Validate() error { return nil }

type ChannelBalanceRequest struct {
	RemoteAddr []byte `protobuf:"bytes,1,opt,name=remote_addr,json=remoteAddr,proto3" json:"remote_addr,omitempty"`
}

func (m *ChannelBalanceRequest) Reset()         { *m = ChannelBalanceRequest{} }
func (m *ChannelBalanceRequest) String() string { return proto.CompactTextString(m) }
func (*ChannelBalanceRequest) ProtoMessage()    {}

func (m *ChannelBalanceRequest) Validate() error {
	return validateRemote(m.RemoteAddr)
}

type ChannelBalanceResponse struct {
	Balance uint64 `protobuf:"varint,1,opt,name=balance,proto3" json:"balance,omitempty"`
}

func (m *ChannelBalanceResponse) Reset()          { *m = ChannelBalanceResponse{} }
func (m *ChannelBalanceResponse) String() string  { return proto.CompactTextString(m) }
func (*ChannelBalanceResponse) ProtoMessage()     {}
func (m *ChannelBalanceResponse) Validate() error { return nil }

type InstallChannelScriptPackageRequest struct {
	ChannelScriptPackage *vm.ScriptPackage `protobuf:"bytes,1,opt,name=channel_script_package,json=channelScriptPackage,proto3" json:"channel_script_package,omitempty"`
}

func (m *InstallChannelScriptPackageRequest) Reset() {
	*m = InstallChannelScriptPackageRequest{}
}
func (m *InstallChannelScriptPackageRequest) String() string { return proto.CompactTextString(m) }
func (*InstallChannelScriptPackageRequest) ProtoMessage()    {}

func (m *InstallChannelScriptPackageRequest) Validate() error {
	if m.ChannelScriptPackage == nil {
		return errors.ErrMissingField.New("channel_script_package")
	}
	return errors.Wrap(m.ChannelScriptPackage.Validate(), "channel_script_package")
}

type InstallChannelScriptPackageResponse struct{}

func (m *InstallChannelScriptPackageResponse) Reset() {
	*m = InstallChannelScriptPackageResponse{}
}
func (m *InstallChannelScriptPackageResponse) String() string  { return proto.CompactTextString(m) }
func (*InstallChannelScriptPackageResponse) ProtoMessage()     {}
func (m *InstallChannelScriptPackageResponse) Validate() error { return nil }

type DeployModuleRequest struct {
	ModuleBytes []byte `protobuf:"bytes,1,opt,name=module_bytes,json=moduleBytes,proto3" json:"module_bytes,omitempty"`
}

func (m *DeployModuleRequest) Reset()         { *m = DeployModuleRequest{} }
func (m *DeployModuleRequest) String() string { return proto.CompactTextString(m) }
func (*DeployModuleRequest) ProtoMessage()    {}

func (m *DeployModuleRequest) Validate() error {
	if len(m.ModuleBytes) == 0 {
		return errors.ErrEmpty.New("module_bytes")
	}
	return nil
}

type DeployModuleResponse struct {
	TransactionWithProof *ledger.TransactionWithProof `protobuf:"bytes,1,opt,name=transaction_with_proof,json=transactionWithProof,proto3" json:"transaction_with_proof,omitempty"`
}

func (m *DeployModuleResponse) Reset()         { *m = DeployModuleResponse{} }
func (m *DeployModuleResponse) String() string { return proto.CompactTextString(m) }
func (*DeployModuleResponse) ProtoMessage()    {}

func (m *DeployModuleResponse) Validate() error {
	if m.TransactionWithProof == nil || m.TransactionWithProof.Receipt == nil {
		return errors.ErrMissingField.New("transaction_with_proof")
	}
	return nil
}

type ExecuteScriptRequest struct {
	RemoteAddr  []byte   `protobuf:"bytes,1,opt,name=remote_addr,json=remoteAddr,proto3" json:"remote_addr,omitempty"`
	PackageName string   `protobuf:"bytes,2,opt,name=package_name,json=packageName,proto3" json:"package_name,omitempty"`
	ScriptName  string   `protobuf:"bytes,3,opt,name=script_name,json=scriptName,proto3" json:"script_name,omitempty"`
	Args        [][]byte `protobuf:"bytes,4,rep,name=args,proto3" json:"args,omitempty"`
}

func (m *ExecuteScriptRequest) Reset()         { *m = ExecuteScriptRequest{} }
func (m *ExecuteScriptRequest) String() string { return proto.CompactTextString(m) }
func (*ExecuteScriptRequest) ProtoMessage()    {}

func (m *ExecuteScriptRequest) Validate() error {
	if m.PackageName == "" {
		return errors.ErrEmpty.New("package_name")
	}
	if m.ScriptName == "" {
		return errors.ErrEmpty.New("script_name")
	}
	return validateRemote(m.RemoteAddr)
}

// ExecuteScriptResponse carries the hash of the applied channel
// transaction.
type ExecuteScriptResponse struct {
	HashValue []byte `protobuf:"bytes,1,opt,name=hash_value,json=hashValue,proto3" json:"hash_value,omitempty"`
}

func (m *ExecuteScriptResponse) Reset()         { *m = ExecuteScriptResponse{} }
func (m *ExecuteScriptResponse) String() string { return proto.CompactTextString(m) }
func (*ExecuteScriptResponse) ProtoMessage()    {}

func (m *ExecuteScriptResponse) Validate() error {
	if len(m.HashValue) != sha256.Size {
		return errors.ErrInput.Newf("hash_value must be %d bytes, got %d", sha256.Size, len(m.HashValue))
	}
	return nil
}
