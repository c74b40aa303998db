package chain

import (
	"bytes"
	"context"
	"testing"

	"github.com/iov-one/offchain/changeset"
	"github.com/iov-one/offchain/channel"
	"github.com/iov-one/offchain/crypto"
	"github.com/iov-one/offchain/errors"
	"github.com/iov-one/offchain/ledger"
	"github.com/iov-one/offchain/store/iavl"
	"github.com/iov-one/offchain/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t testing.TB, b byte) crypto.PrivateKey {
	t.Helper()
	key, err := crypto.PrivateKeyFromSeed(bytes.Repeat([]byte{b}, 32))
	require.NoError(t, err)
	return key
}

func openTx(t testing.TB, from, to crypto.PrivateKey) *ledger.ChainTx {
	t.Helper()
	req := &channel.Request{
		Op:           int32(channel.OpOpen),
		Proposer:     from.Address(),
		Counterparty: to.Address(),
		ProposerKey:  from.PublicKey(),
		Package:      vm.ChannelPackage,
		Script:       vm.ScriptOpen,
		Args:         [][]byte{vm.U64Arg(0), vm.U64Arg(0)},
		Output:       changeset.ToWire(changeset.Empty()),
		Witness:      changeset.ToWire(changeset.Empty()),
	}
	proposal, err := channel.Propose(from, req)
	require.NoError(t, err)
	confirmed, err := proposal.Confirm(to)
	require.NoError(t, err)
	return ledger.SettleTx(confirmed)
}

func TestStateBlocks(t *testing.T) {
	ctx := context.Background()
	alice, bob := testKey(t, 1), testKey(t, 2)

	s, err := NewState(iavl.NewMemCommitStore(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.Height())

	results, id, err := s.ExecuteBlock(ctx, []*ledger.ChainTx{
		ledger.FaucetTx(alice.Address(), 1000, 1),
		ledger.FaucetTx(bob.Address(), 0, 2),
		ledger.FaucetTx(bob.Address(), 10, 3),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id.Version)
	assert.NotEmpty(t, id.Hash)
	require.NoError(t, results[0].Err)
	assert.True(t, errors.ErrAmount.Is(results[1].Err))
	require.NoError(t, results[2].Err)

	got, err := s.Balance(alice.Address())
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), got)
	got, err = s.Balance(bob.Address())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), got)

	// Both participants submit the same settlement in one block.
	open := openTx(t, alice, bob)
	results, _, err = s.ExecuteBlock(ctx, []*ledger.ChainTx{open, open})
	require.NoError(t, err)
	require.NoError(t, results[0].Err)
	require.NoError(t, results[1].Err)
	assert.Equal(t, results[0].Receipt, results[1].Receipt)
	assert.Equal(t, int64(2), results[0].Receipt.Height)

	got, err = s.Balance(alice.Address())
	require.NoError(t, err)
	assert.Equal(t, 1000-ledger.GasOpen, got)

	proof, err := s.Proof(results[0].Hash)
	require.NoError(t, err)
	assert.Equal(t, ledger.GasOpen, proof.Receipt.GasUsed)
	assert.NotEmpty(t, proof.Root)
	assert.Equal(t, int64(2), proof.Version)

	// A later resubmission gives the committed receipt.
	results, _, err = s.ExecuteBlock(ctx, []*ledger.ChainTx{open})
	require.NoError(t, err)
	require.NoError(t, results[0].Err)
	assert.Equal(t, int64(2), results[0].Receipt.Height)

	rec, err := s.Channel(bob.Address(), alice.Address())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rec.ID)

	_, err = s.Proof([]byte("unknown"))
	assert.True(t, errors.ErrNotFound.Is(err))
}
