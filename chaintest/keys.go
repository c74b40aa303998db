package chaintest

import (
	"bytes"
	"crypto/rand"
	"io/ioutil"
	"os"
	"testing"

	"github.com/iov-one/offchain"
	"github.com/iov-one/offchain/crypto"
	"github.com/iov-one/offchain/store/iavl"
)

// Key returns the private key derived from a seed made of b only. The same
// byte always gives the same key.
func Key(t testing.TB, b byte) crypto.PrivateKey {
	t.Helper()
	key, err := crypto.PrivateKeyFromSeed(bytes.Repeat([]byte{b}, 32))
	if err != nil {
		t.Fatalf("cannot create key: %s", err)
	}
	return key
}

// RandomAddr returns a valid random address generated on the fly.
func RandomAddr(t testing.TB) offchain.Address {
	t.Helper()
	raw := make([]byte, offchain.AddressLength)
	if _, err := rand.Read(raw); err != nil {
		t.Fatalf("cannot generate a random address: %s", err)
	}
	a := offchain.Address(raw)
	if err := a.Validate(); err != nil {
		t.Fatalf("generated address is not valid: %s", err)
	}
	return a
}

// ParseAddress decodes an address in any of the text forms accepted by
// offchain.ParseAddress and fails the test when it is not valid.
func ParseAddress(t testing.TB, encoded string) offchain.Address {
	t.Helper()
	addr, err := offchain.ParseAddress(encoded)
	if err != nil {
		t.Fatalf("cannot parse %q address: %s", encoded, err)
	}
	if err := addr.Validate(); err != nil {
		t.Fatalf("%q is not a valid address: %s", encoded, err)
	}
	return addr
}

// CommitStore returns a store using the filesystem backend, the same engine
// as a production node. Call cleanup to close it and remove its files.
func CommitStore(t testing.TB) (db *iavl.CommitStore, cleanup func()) {
	t.Helper()
	dir, err := ioutil.TempDir("", "chaintest")
	if err != nil {
		t.Fatalf("cannot create a temporary directory: %s", err)
	}
	db, err = iavl.NewCommitStore(dir, "db")
	if err != nil {
		os.RemoveAll(dir)
		t.Fatalf("cannot open store: %s", err)
	}
	return db, func() {
		db.Close()
		os.RemoveAll(dir)
	}
}
