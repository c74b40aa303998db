package channel

import (
	"testing"

	"github.com/iov-one/offchain/errors"
	"github.com/iov-one/offchain/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucket(t *testing.T) {
	alice, bob, carol := testKey(t, 1).Address(), testKey(t, 2).Address(), testKey(t, 3).Address()
	db := store.NewMemStore()
	b := NewBucket()

	ch, err := b.Load(db, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, StatusUninitialized, ch.Status)
	assert.Equal(t, uint64(0), ch.Seq)

	others, err := b.Counterparties(db)
	require.NoError(t, err)
	assert.Empty(t, others)

	ch.Status = StatusOpen
	ch.Seq = 1
	ch.ChannelID = 7
	require.NoError(t, b.Put(db, ch))
	require.NoError(t, b.Put(db, New(alice, carol)))

	loaded, err := b.Load(db, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, loaded.Status)
	assert.Equal(t, uint64(7), loaded.ChannelID)

	others, err = b.Counterparties(db)
	require.NoError(t, err)
	assert.Len(t, others, 2)

	bad := New(alice, bob)
	bad.Seq = 3
	assert.True(t, errors.ErrState.Is(b.Put(db, bad)))
}

func TestCheckOp(t *testing.T) {
	cases := map[string]struct {
		status  int32
		op      Op
		wantErr *errors.Error
	}{
		"open new":             {status: StatusUninitialized, op: OpOpen},
		"open twice":           {status: StatusOpen, op: OpOpen, wantErr: errors.ErrState},
		"transfer before open": {status: StatusUninitialized, op: OpTransfer, wantErr: errors.ErrState},
		"deposit when open":    {status: StatusOpen, op: OpDeposit},
		"execute when closed":  {status: StatusClosed, op: OpExecute, wantErr: errors.ErrState},
	}
	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			ch := &Channel{Status: tc.status}
			if err := ch.CheckOp(tc.op); !tc.wantErr.Is(err) {
				t.Fatalf("unexpected error: %+v", err)
			}
		})
	}
}
