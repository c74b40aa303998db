/*
Package mock provides an in-process chain. Submitted transactions wait in a
mempool until the block loop started with Run takes them into a block,
executes and commits it.
*/
package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/iov-one/offchain"
	"github.com/iov-one/offchain/chain"
	"github.com/iov-one/offchain/errors"
	"github.com/iov-one/offchain/ledger"
	"github.com/iov-one/offchain/store/iavl"
	"github.com/tendermint/tendermint/libs/log"
)

// Config of the block loop.
type Config struct {
	// BlockInterval is the time between two block attempts.
	BlockInterval time.Duration
	// MaxBlockTxs limits the number of transactions of a block.
	MaxBlockTxs int
}

// DefaultConfig is used for zero config values.
var DefaultConfig = Config{
	BlockInterval: 100 * time.Millisecond,
	MaxBlockTxs:   100,
}

// Block describes a committed block.
type Block struct {
	ID     uuid.UUID
	Height int64
	Parent []byte
	Hash   []byte
	Txs    int
}

type submission struct {
	tx   *ledger.ChainTx
	done chan chain.TxResult
}

// Chain is an in-process chain.Client.
type Chain struct {
	conf   Config
	logger log.Logger

	// mu guards the executed state. The block loop holds it exclusively
	// for a whole execute and commit cycle, queries share it.
	mu     sync.RWMutex
	state  *chain.State
	blocks []Block

	poolMu  sync.Mutex
	mempool []submission

	nonce uint64
}

var _ chain.Client = (*Chain)(nil)

// New returns a chain over the given store. Call Run to produce blocks.
func New(store *iavl.CommitStore, conf Config, logger log.Logger) (*Chain, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if conf.BlockInterval <= 0 {
		conf.BlockInterval = DefaultConfig.BlockInterval
	}
	if conf.MaxBlockTxs <= 0 {
		conf.MaxBlockTxs = DefaultConfig.MaxBlockTxs
	}
	logger = logger.With("module", "mockchain")
	state, err := chain.NewState(store, logger)
	if err != nil {
		return nil, err
	}
	return &Chain{conf: conf, logger: logger, state: state}, nil
}

// Run produces blocks until the context is cancelled.
func (c *Chain) Run(ctx context.Context) error {
	c.logger.Info("block loop started", "interval", c.conf.BlockInterval)
	ticker := time.NewTicker(c.conf.BlockInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("block loop stopped")
			return nil
		case <-ticker.C:
			if err := c.produce(ctx); err != nil {
				return err
			}
		}
	}
}

func (c *Chain) take() []submission {
	c.poolMu.Lock()
	defer c.poolMu.Unlock()
	n := len(c.mempool)
	if n > c.conf.MaxBlockTxs {
		n = c.conf.MaxBlockTxs
	}
	subs := make([]submission, n)
	copy(subs, c.mempool[:n])
	c.mempool = c.mempool[n:]
	return subs
}

// produce executes and commits a block from the mempool content.
func (c *Chain) produce(ctx context.Context) error {
	subs := c.take()
	if len(subs) == 0 {
		return nil
	}
	txs := make([]*ledger.ChainTx, len(subs))
	for i, s := range subs {
		txs[i] = s.tx
	}

	c.mu.Lock()
	block := Block{ID: uuid.New(), Txs: len(txs)}
	if n := len(c.blocks); n > 0 {
		block.Parent = c.blocks[n-1].Hash
	}
	results, id, err := c.state.ExecuteBlock(ctx, txs)
	if err == nil {
		block.Height = id.Version
		block.Hash = id.Hash
		c.blocks = append(c.blocks, block)
	}
	c.mu.Unlock()

	if err != nil {
		for _, s := range subs {
			s.done <- chain.TxResult{Err: err}
		}
		return err
	}
	c.logger.Debug("block committed", "id", block.ID.String(), "height", block.Height, "txs", block.Txs)
	for i, s := range subs {
		s.done <- results[i]
	}
	return nil
}

// Blocks returns the committed blocks.
func (c *Chain) Blocks() []Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Block(nil), c.blocks...)
}

// SubmitTransaction adds the transaction to the mempool and waits for the
// block including it.
func (c *Chain) SubmitTransaction(ctx context.Context, tx *ledger.ChainTx) (*ledger.TransactionWithProof, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	sub := submission{tx: tx, done: make(chan chain.TxResult, 1)}
	c.poolMu.Lock()
	c.mempool = append(c.mempool, sub)
	c.poolMu.Unlock()

	select {
	case <-ctx.Done():
		return nil, errors.Wrap(errors.ErrTimeout, "waiting for block")
	case res := <-sub.done:
		if res.Err != nil {
			return nil, res.Err
		}
		return c.Receipt(ctx, res.Hash)
	}
}

func (c *Chain) Faucet(ctx context.Context, addr offchain.Address, amount uint64) error {
	nonce := atomic.AddUint64(&c.nonce, 1)
	_, err := c.SubmitTransaction(ctx, ledger.FaucetTx(addr, amount, nonce))
	return err
}

func (c *Chain) Balance(ctx context.Context, addr offchain.Address) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Balance(addr)
}

func (c *Chain) Receipt(ctx context.Context, hash []byte) (*ledger.TransactionWithProof, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Proof(hash)
}

func (c *Chain) Channel(ctx context.Context, a, b offchain.Address) (*ledger.ChannelRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Channel(a, b)
}
