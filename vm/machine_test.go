package vm

import (
	"context"
	"testing"

	"github.com/iov-one/offchain"
	"github.com/iov-one/offchain/changeset"
	"github.com/iov-one/offchain/errors"
	"github.com/iov-one/offchain/state"
	"github.com/iov-one/offchain/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = offchain.NewAddress([]byte("alice"))
	bob   = offchain.NewAddress([]byte("bob"))
)

func fund(t testing.TB, db offchain.KVStore, owner, other offchain.Address, amount uint64) {
	t.Helper()
	m := changeset.NewChangeSetMut()
	m.Push(ChannelPath(owner, other), changeset.FieldChanges{{Accesses: BalanceField, Op: changeset.Plus(amount)}})
	cs, err := m.Freeze()
	require.NoError(t, err)
	require.NoError(t, state.Apply(db, nil, cs))
}

func balanceChange(t testing.TB, cs *changeset.ChangeSet, owner, other offchain.Address) changeset.ChangeOp {
	t.Helper()
	changes, ok := cs.Get(ChannelPath(owner, other))
	if !ok {
		return changeset.None()
	}
	op, ok := changes.Get(BalanceField)
	require.True(t, ok)
	return op
}

func TestBuiltinScripts(t *testing.T) {
	cases := map[string]struct {
		aliceFunds uint64
		bobFunds   uint64
		script     string
		args       [][]byte
		wantAlice  changeset.ChangeOp
		wantBob    changeset.ChangeOp
		wantErr    *errors.Error
	}{
		"open": {
			script:    ScriptOpen,
			args:      [][]byte{U64Arg(10), U64Arg(20)},
			wantAlice: changeset.Plus(10),
			wantBob:   changeset.Plus(20),
		},
		"open with zero collateral": {
			script:    ScriptOpen,
			args:      [][]byte{U64Arg(0), U64Arg(0)},
			wantAlice: changeset.None(),
			wantBob:   changeset.None(),
		},
		"deposit": {
			script:    ScriptDeposit,
			args:      [][]byte{U64Arg(5000000), U64Arg(4000000)},
			wantAlice: changeset.Plus(5000000),
			wantBob:   changeset.Plus(4000000),
		},
		"withdraw": {
			aliceFunds: 10,
			bobFunds:   10,
			script:     ScriptWithdraw,
			args:       [][]byte{U64Arg(4), U64Arg(10)},
			wantAlice:  changeset.Minus(4),
			wantBob:    changeset.Minus(10),
		},
		"withdraw too much": {
			aliceFunds: 10,
			script:     ScriptWithdraw,
			args:       [][]byte{U64Arg(11), U64Arg(0)},
			wantErr:    errors.ErrAmount,
		},
		"transfer": {
			aliceFunds: 10,
			script:     ScriptTransfer,
			args:       [][]byte{U64Arg(7)},
			wantAlice:  changeset.Minus(7),
			wantBob:    changeset.Plus(7),
		},
		"transfer insufficient balance": {
			aliceFunds: 6,
			script:     ScriptTransfer,
			args:       [][]byte{U64Arg(7)},
			wantErr:    errors.ErrAmount,
		},
		"wrong arity": {
			script:  ScriptTransfer,
			args:    [][]byte{U64Arg(7), U64Arg(1)},
			wantErr: errors.ErrInput,
		},
		"malformed amount": {
			script:  ScriptTransfer,
			args:    [][]byte{[]byte("x")},
			wantErr: errors.ErrInput,
		},
		"unknown script": {
			script:  "close",
			wantErr: errors.ErrNotFound,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			db := store.NewMemStore()
			if tc.aliceFunds > 0 {
				fund(t, db, alice, bob, tc.aliceFunds)
			}
			if tc.bobFunds > 0 {
				fund(t, db, bob, alice, tc.bobFunds)
			}

			m := NewMachine(nil)
			cs, err := m.Execute(context.Background(), state.NewKVView(db, nil), Call{
				Sender:   alice,
				Receiver: bob,
				Package:  ChannelPackage,
				Script:   tc.script,
				Args:     tc.args,
			})
			if !tc.wantErr.Is(err) {
				t.Fatalf("unexpected error: %+v", err)
			}
			if tc.wantErr != nil {
				return
			}
			assert.True(t, tc.wantAlice.Equals(balanceChange(t, cs, alice, bob)))
			assert.True(t, tc.wantBob.Equals(balanceChange(t, cs, bob, alice)))
		})
	}
}

func TestExecuteIsDeterministic(t *testing.T) {
	db := store.NewMemStore()
	fund(t, db, alice, bob, 100)
	m := NewMachine(nil)
	call := Call{Sender: alice, Receiver: bob, Package: ChannelPackage, Script: ScriptTransfer, Args: [][]byte{U64Arg(1)}}

	a, err := m.Execute(context.Background(), state.NewKVView(db, nil), call)
	require.NoError(t, err)
	b, err := m.Execute(context.Background(), state.NewKVView(db, nil), call)
	require.NoError(t, err)
	assert.True(t, a.Equals(b))
}

func TestInstalledPackageMergesSteps(t *testing.T) {
	// Pays the receiver twice and refunds part of it, every step touches
	// the same fields so the result is the merged delta.
	script, err := NewScript("pay_twice", 1,
		balanceOp(RoleSender, changeset.OpMinus, 1),
		balanceOp(RoleReceiver, changeset.OpPlus, 1),
		balanceOp(RoleSender, changeset.OpMinus, 1),
		balanceOp(RoleReceiver, changeset.OpPlus, 1),
		&Instruction{Role: RoleReceiver, Tag: ChannelTag, Path: BalanceField, Kind: int32(changeset.OpMinus), Amount: 1},
		&Instruction{Role: RoleSender, Tag: ChannelTag, Path: BalanceField, Kind: int32(changeset.OpPlus), Amount: 1},
		&Instruction{Role: RoleSender, Tag: "profile", Path: []string{"note"}, Kind: int32(changeset.OpUpdate), Value: []byte("paid")},
	)
	require.NoError(t, err)
	pkg := &ScriptPackage{Name: "extras", Scripts: []*ScriptCode{script}}

	m := NewMachine(nil)
	require.NoError(t, m.Install(pkg))

	db := store.NewMemStore()
	fund(t, db, alice, bob, 10)
	cs, err := m.Execute(context.Background(), state.NewKVView(db, nil), Call{
		Sender:   alice,
		Receiver: bob,
		Package:  "extras",
		Script:   "pay_twice",
		Args:     [][]byte{U64Arg(3)},
	})
	require.NoError(t, err)
	assert.True(t, changeset.Minus(5).Equals(balanceChange(t, cs, alice, bob)))
	assert.True(t, changeset.Plus(5).Equals(balanceChange(t, cs, bob, alice)))

	changes, ok := cs.Get(changeset.NewAccessPath(alice, "profile"))
	require.True(t, ok)
	note, ok := changes.Get(changeset.NewAccesses("note"))
	require.True(t, ok)
	assert.True(t, changeset.Update([]byte("paid")).Equals(note))
}

func TestScriptMergeConflict(t *testing.T) {
	script, err := NewScript("broken", 0,
		&Instruction{Role: RoleSender, Tag: "x", Path: []string{"f"}, Kind: int32(changeset.OpPlus), Amount: 1},
		&Instruction{Role: RoleSender, Tag: "x", Path: []string{"f"}, Kind: int32(changeset.OpUpdate), Value: []byte("v")},
	)
	require.NoError(t, err)
	m := NewMachine(nil)
	require.NoError(t, m.Install(&ScriptPackage{Name: "bad", Scripts: []*ScriptCode{script}}))

	_, err = m.Execute(context.Background(), state.NewKVView(store.NewMemStore(), nil), Call{
		Sender: alice, Receiver: bob, Package: "bad", Script: "broken",
	})
	assert.True(t, errors.ErrMerge.Is(err))
}

func TestInstallValidation(t *testing.T) {
	m := NewMachine(nil)
	assert.True(t, errors.ErrDuplicate.Is(m.Install(BuiltinPackage())))
	assert.True(t, errors.ErrEmpty.Is(m.Install(&ScriptPackage{Name: "empty"})))

	bad, err := NewScript("bad", 0, &Instruction{Role: RoleSender, Tag: "x", Path: []string{"f"}, Kind: int32(changeset.OpPlus), ArgIndex: 1})
	require.NoError(t, err)
	assert.True(t, errors.ErrInput.Is(m.Install(&ScriptPackage{Name: "bad", Scripts: []*ScriptCode{bad}})))
}

func TestExecuteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMachine(nil).Execute(ctx, state.NewKVView(store.NewMemStore(), nil), Call{
		Sender: alice, Receiver: bob, Package: ChannelPackage, Script: ScriptTransfer, Args: [][]byte{U64Arg(1)},
	})
	assert.True(t, errors.ErrTimeout.Is(err))
}

func TestDebitAfterResourceDeletion(t *testing.T) {
	script, err := NewScript("reset", 0,
		&Instruction{Role: RoleSender, Tag: ChannelTag, Kind: int32(changeset.OpDeletion)},
		&Instruction{Role: RoleSender, Tag: ChannelTag, Path: BalanceField, Kind: int32(changeset.OpMinus), Amount: 1},
	)
	require.NoError(t, err)
	m := NewMachine(nil)
	require.NoError(t, m.Install(&ScriptPackage{Name: "reset", Scripts: []*ScriptCode{script}}))

	db := store.NewMemStore()
	fund(t, db, alice, bob, 10)
	// The stored balance is gone once the resource is deleted.
	_, err = m.Execute(context.Background(), state.NewKVView(db, nil), Call{
		Sender: alice, Receiver: bob, Package: "reset", Script: "reset",
	})
	assert.True(t, errors.ErrAmount.Is(err), "got %+v", err)
}
