package mock

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/iov-one/offchain/crypto"
	"github.com/iov-one/offchain/errors"
	"github.com/iov-one/offchain/ledger"
	"github.com/iov-one/offchain/store/iavl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChain(t *testing.T, conf Config) (*Chain, func()) {
	t.Helper()
	c, err := New(iavl.NewMemCommitStore(), conf, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		if err := c.Run(ctx); err != nil {
			t.Errorf("block loop: %s", err)
		}
	}()
	return c, func() {
		cancel()
		<-stopped
	}
}

func TestFaucetAndBlocks(t *testing.T) {
	c, stop := newChain(t, Config{BlockInterval: 5 * time.Millisecond, MaxBlockTxs: 2})
	defer stop()

	key, err := crypto.PrivateKeyFromSeed(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Faucet(ctx, key.Address(), 10))
		}()
	}
	wg.Wait()

	got, err := c.Balance(ctx, key.Address())
	require.NoError(t, err)
	assert.Equal(t, uint64(50), got)

	blocks := c.Blocks()
	require.True(t, len(blocks) >= 3, "five transactions in blocks of two")
	total := 0
	for i, b := range blocks {
		assert.True(t, b.Txs <= 2)
		assert.Equal(t, int64(i+1), b.Height)
		total += b.Txs
		if i > 0 {
			assert.Equal(t, blocks[i-1].Hash, b.Parent)
			assert.NotEqual(t, blocks[i-1].ID, b.ID)
		}
	}
	assert.Equal(t, 5, total)
}

func TestSubmitInvalid(t *testing.T) {
	c, stop := newChain(t, Config{BlockInterval: 5 * time.Millisecond})
	defer stop()

	_, err := c.SubmitTransaction(context.Background(), &ledger.ChainTx{})
	assert.True(t, errors.ErrMsg.Is(err))
}

func TestSubmitWithoutBlocks(t *testing.T) {
	c, err := New(iavl.NewMemCommitStore(), Config{}, nil)
	require.NoError(t, err)

	key, err := crypto.PrivateKeyFromSeed(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = c.Faucet(ctx, key.Address(), 1)
	assert.True(t, errors.ErrTimeout.Is(err))
}
