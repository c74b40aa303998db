/*
Package chain defines the capability the channel protocol needs from the
ledger it settles on, and the executed chain state shared by the in-process
implementations.

Three implementations of Client are provided. chaintest.Chain executes every
transaction synchronously and is meant for tests, mock.Chain runs a mempool
and a timed block loop in process, rpc.Client talks to a remote chain
running abciapp.App through the tendermint RPC.
*/
package chain

import (
	"context"

	"github.com/iov-one/offchain"
	"github.com/iov-one/offchain/ledger"
)

// Client is the chain capability used by wallets. Implementations must
// behave identically for the protocol to be transport agnostic.
type Client interface {
	// SubmitTransaction delivers the transaction and returns once it is
	// committed. Submitting a transaction that was already committed
	// returns its existing receipt.
	SubmitTransaction(ctx context.Context, tx *ledger.ChainTx) (*ledger.TransactionWithProof, error)

	// Faucet credits amount to the account.
	Faucet(ctx context.Context, addr offchain.Address, amount uint64) error

	// Balance returns the committed account balance.
	Balance(ctx context.Context, addr offchain.Address) (uint64, error)

	// Receipt returns the committed receipt of a transaction.
	Receipt(ctx context.Context, hash []byte) (*ledger.TransactionWithProof, error)

	// Channel returns the committed record of the channel between a and b.
	Channel(ctx context.Context, a, b offchain.Address) (*ledger.ChannelRecord, error)
}
