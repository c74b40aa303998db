package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/iov-one/offchain/chain/abciapp"
	"github.com/iov-one/offchain/chaintest"
	"github.com/iov-one/offchain/store/iavl"
	"github.com/iov-one/offchain/tmtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTendermintNode runs the ledger behind a real tendermint node. It is
// skipped when the tendermint binary is not installed.
func TestTendermintNode(t *testing.T) {
	home, cleanup := tmtest.InitHome(t)
	defer cleanup()

	app, err := abciapp.New("tmtest", iavl.NewMemCommitStore(), true, nil)
	require.NoError(t, err)
	defer tmtest.ServeApp(t, app, "tcp://127.0.0.1:26658")()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	defer tmtest.RunTendermint(ctx, t, home)()

	c := Dial("tcp://localhost:26657", nil)
	addr := chaintest.RandomAddr(t)
	require.NoError(t, c.Faucet(ctx, addr, 777))
	got, err := c.Balance(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(777), got)
}
