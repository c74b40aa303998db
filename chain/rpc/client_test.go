package rpc

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/iov-one/offchain/chain/abciapp"
	"github.com/iov-one/offchain/crypto"
	"github.com/iov-one/offchain/errors"
	"github.com/iov-one/offchain/ledger"
	"github.com/iov-one/offchain/store/iavl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	abci "github.com/tendermint/tendermint/abci/types"
	cmn "github.com/tendermint/tendermint/libs/common"
	ctypes "github.com/tendermint/tendermint/rpc/core/types"
	tmtypes "github.com/tendermint/tendermint/types"
)

// appConn runs every broadcast transaction as its own block of the
// application, the way a single validator node would.
type appConn struct {
	mu     sync.Mutex
	app    *abciapp.App
	height int64
}

func (c *appConn) BroadcastTxCommit(tx tmtypes.Tx) (*ctypes.ResultBroadcastTxCommit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := &ctypes.ResultBroadcastTxCommit{Hash: tx.Hash()}
	res.CheckTx = c.app.CheckTx(tx)
	if res.CheckTx.IsErr() {
		return res, nil
	}
	c.height++
	c.app.BeginBlock(abci.RequestBeginBlock{})
	res.DeliverTx = c.app.DeliverTx(tx)
	c.app.EndBlock(abci.RequestEndBlock{Height: c.height})
	c.app.Commit()
	res.Height = c.height
	return res, nil
}

func (c *appConn) ABCIQuery(path string, data cmn.HexBytes) (*ctypes.ResultABCIQuery, error) {
	resp := c.app.Query(abci.RequestQuery{Path: path, Data: data})
	return &ctypes.ResultABCIQuery{Response: resp}, nil
}

func newClient(t *testing.T) *Client {
	t.Helper()
	app, err := abciapp.New("test", iavl.NewMemCommitStore(), false, nil)
	require.NoError(t, err)
	return NewClient(&appConn{app: app}, nil)
}

func TestClient(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	key, err := crypto.PrivateKeyFromSeed(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)

	got, err := c.Balance(ctx, key.Address())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got)

	require.NoError(t, c.Faucet(ctx, key.Address(), 700))
	got, err = c.Balance(ctx, key.Address())
	require.NoError(t, err)
	assert.Equal(t, uint64(700), got)

	deploy := ledger.DeployTx(key, []byte("code"))
	p, err := c.SubmitTransaction(ctx, deploy)
	require.NoError(t, err)
	assert.Equal(t, ledger.GasDeploy, p.Receipt.GasUsed)
	assert.NotEmpty(t, p.Root)

	// Resubmission gives the committed receipt.
	again, err := c.SubmitTransaction(ctx, deploy)
	require.NoError(t, err)
	assert.Equal(t, p.Receipt, again.Receipt)

	// Errors keep their type across the wire.
	_, err = c.SubmitTransaction(ctx, ledger.DeployTx(key, []byte("more code")))
	assert.True(t, errors.ErrAmount.Is(err))
	_, err = c.SubmitTransaction(ctx, &ledger.ChainTx{})
	assert.True(t, errors.ErrMsg.Is(err))

	other, err := crypto.PrivateKeyFromSeed(bytes.Repeat([]byte{2}, 32))
	require.NoError(t, err)
	_, err = c.Channel(ctx, key.Address(), other.Address())
	assert.True(t, errors.ErrNotFound.Is(err))
	_, err = c.Receipt(ctx, []byte("unknown"))
	assert.True(t, errors.ErrNotFound.Is(err))
}
