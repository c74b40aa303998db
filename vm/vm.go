package vm

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/iov-one/offchain"
	"github.com/iov-one/offchain/changeset"
	"github.com/iov-one/offchain/errors"
	"github.com/iov-one/offchain/state"
)

// Call names the script to run and the parties it runs for.
type Call struct {
	Sender   offchain.Address
	Receiver offchain.Address
	Package  string
	Script   string
	Args     [][]byte
}

// Executor runs scripts against a state view and returns the produced
// change set. It never changes the view.
type Executor interface {
	Execute(ctx context.Context, view state.View, call Call) (*changeset.ChangeSet, error)
}

// BalanceField is the field holding the amount of a channel resource.
var BalanceField = changeset.NewAccesses("balance")

// ChannelPath returns the resource where owner keeps its side of the channel
// with other.
func ChannelPath(owner, other offchain.Address) changeset.AccessPath {
	return changeset.NewAccessPath(owner, ChannelTag+"/"+strings.ToUpper(hex.EncodeToString(other)))
}

// U64Arg encodes an amount argument.
func U64Arg(v uint64) []byte {
	bz := make([]byte, 8)
	binary.BigEndian.PutUint64(bz, v)
	return bz
}

// DecodeU64 decodes an amount argument.
func DecodeU64(bz []byte) (uint64, error) {
	if len(bz) != 8 {
		return 0, errors.ErrInput.Newf("amount argument must be 8 bytes, got %d", len(bz))
	}
	return binary.BigEndian.Uint64(bz), nil
}
