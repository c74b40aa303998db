package changeset

import (
	"testing"

	"github.com/iov-one/offchain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecKeepsOrder(t *testing.T) {
	cs := mustFreeze(t, NewChangeSetMut(
		ResourceChanges{bobCoin, FieldChanges{{balance, Plus(3)}, {nonce, None()}}},
		ResourceChanges{aliceCoin, FieldChanges{{balance, Minus(3)}}},
		ResourceChanges{aliceMeta, FieldChanges{{owner, Update([]byte{})}, {NewAccesses("old"), Deletion()}}},
	))

	raw, err := Marshal(cs)
	require.NoError(t, err)
	got, err := Unmarshal(raw)
	require.NoError(t, err)
	assert.True(t, cs.Equals(got), "want %s, got %s", cs, got)

	again, err := Marshal(got)
	require.NoError(t, err)
	assert.Equal(t, raw, again, "encoding must be deterministic")
}

func TestFromWireErrors(t *testing.T) {
	cases := map[string]struct {
		wire    *WireChangeSet
		wantErr *errors.Error
	}{
		"nil is empty": {
			wire: nil,
		},
		"missing op": {
			wire: &WireChangeSet{Resources: []*WireResourceChanges{{
				Address: alice,
				Tag:     "coin",
				Changes: []*WireFieldChange{{Accesses: []string{"balance"}}},
			}}},
			wantErr: errors.ErrMissingField,
		},
		"unknown kind": {
			wire: &WireChangeSet{Resources: []*WireResourceChanges{{
				Address: alice,
				Tag:     "coin",
				Changes: []*WireFieldChange{{Accesses: []string{"balance"}, Op: &WireChangeOp{Kind: 99}}},
			}}},
			wantErr: errors.ErrDecode,
		},
		"invalid structure": {
			wire: &WireChangeSet{Resources: []*WireResourceChanges{{
				Address: alice,
				Tag:     "coin",
				Changes: []*WireFieldChange{{Op: &WireChangeOp{Kind: int32(OpMinus), Amount: 1}}},
			}}},
			wantErr: errors.ErrState,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			_, err := FromWire(tc.wire)
			if !tc.wantErr.Is(err) {
				t.Fatalf("unexpected error: %+v", err)
			}
		})
	}
}

func TestUnmarshalGarbage(t *testing.T) {
	_, err := Unmarshal([]byte{0xFF, 0xFF, 0xFF})
	assert.True(t, errors.ErrDecode.Is(err))
}
