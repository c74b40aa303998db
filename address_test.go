package offchain_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/iov-one/offchain"
	"github.com/iov-one/offchain/errors"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/require"
)

func TestAddressPrinting(t *testing.T) {
	Convey("hex address printing is upper case", t, func() {
		addr := offchain.NewAddress([]byte("some key"))
		So(len(addr), ShouldEqual, offchain.AddressLength)
		So(addr.String(), ShouldEqual, fmt.Sprintf("%X", []byte(addr)))
	})

	Convey("condition printing hex-encodes the data", t, func() {
		cond := offchain.NewCondition("sigs", "ed25519", []byte{0xAB, 0xCD})
		So(cond.String(), ShouldEqual, "sigs/ed25519/ABCD")
		So(cond.Validate(), ShouldBeNil)
	})

	Convey("nil address prints as nil", t, func() {
		So(offchain.Address(nil).String(), ShouldEqual, "(nil)")
	})
}

func TestParseAddress(t *testing.T) {
	addr := offchain.NewCondition("sigs", "ed25519", []byte("pubkey")).Address()
	b32, err := addr.Bech32(offchain.DefaultHRP)
	require.NoError(t, err)

	cases := map[string]struct {
		enc      string
		wantErr  *errors.Error
		wantAddr offchain.Address
	}{
		"default hex": {
			enc:      addr.String(),
			wantAddr: addr,
		},
		"prefixed hex": {
			enc:      "hex:" + addr.String(),
			wantAddr: addr,
		},
		"bech32 without prefix": {
			enc:      b32,
			wantAddr: addr,
		},
		"bech32 with prefix": {
			enc:      "bech32:" + b32,
			wantAddr: addr,
		},
		"condition": {
			enc:      "cond:sigs/ed25519/" + fmt.Sprintf("%X", []byte("pubkey")),
			wantAddr: addr,
		},
		"invalid condition format": {
			enc:     "cond:sigs/7075626b6579",
			wantErr: errors.ErrInput,
		},
		"short hex": {
			enc:     "ABCD",
			wantErr: errors.ErrInput,
		},
		"unknown format": {
			enc:     "foobar:xxx",
			wantErr: errors.ErrType,
		},
		"zero address": {
			enc:      "",
			wantAddr: nil,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			got, err := offchain.ParseAddress(tc.enc)
			if !tc.wantErr.Is(err) {
				t.Fatalf("got error: %+v", err)
			}
			require.Equal(t, tc.wantAddr, got)
		})
	}
}

func TestAddressJSON(t *testing.T) {
	addr := offchain.NewAddress([]byte("json"))
	raw, err := json.Marshal(addr)
	require.NoError(t, err)

	var got offchain.Address
	require.NoError(t, json.Unmarshal(raw, &got))
	require.True(t, addr.Equals(got))
}
