/*
Package chaintest provides a synchronous chain for tests. Every submitted
transaction is executed and committed as its own block before the call
returns.
*/
package chaintest

import (
	"context"
	"sync"
	"testing"

	"github.com/iov-one/offchain"
	"github.com/iov-one/offchain/chain"
	"github.com/iov-one/offchain/ledger"
	"github.com/iov-one/offchain/store/iavl"
	"github.com/tendermint/tendermint/libs/log"
)

// Chain is a chain.Client executing transactions in the caller goroutine.
type Chain struct {
	mu    sync.Mutex
	state *chain.State
	nonce uint64
	// Submitted counts SubmitTransaction calls, duplicates included.
	Submitted int
}

var _ chain.Client = (*Chain)(nil)

// New returns an empty chain kept in memory.
func New(t testing.TB) *Chain {
	t.Helper()
	state, err := chain.NewState(iavl.NewMemCommitStore(), log.NewNopLogger())
	if err != nil {
		t.Fatalf("cannot create chain state: %s", err)
	}
	return &Chain{state: state}
}

func (c *Chain) SubmitTransaction(ctx context.Context, tx *ledger.ChainTx) (*ledger.TransactionWithProof, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Submitted++
	return c.execute(ctx, tx)
}

func (c *Chain) execute(ctx context.Context, tx *ledger.ChainTx) (*ledger.TransactionWithProof, error) {
	results, _, err := c.state.ExecuteBlock(ctx, []*ledger.ChainTx{tx})
	if err != nil {
		return nil, err
	}
	if results[0].Err != nil {
		return nil, results[0].Err
	}
	return c.state.Proof(results[0].Hash)
}

func (c *Chain) Faucet(ctx context.Context, addr offchain.Address, amount uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nonce++
	_, err := c.execute(ctx, ledger.FaucetTx(addr, amount, c.nonce))
	return err
}

func (c *Chain) Balance(ctx context.Context, addr offchain.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Balance(addr)
}

func (c *Chain) Receipt(ctx context.Context, hash []byte) (*ledger.TransactionWithProof, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Proof(hash)
}

func (c *Chain) Channel(ctx context.Context, a, b offchain.Address) (*ledger.ChannelRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Channel(a, b)
}

// Height returns the number of committed blocks.
func (c *Chain) Height() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Height()
}
