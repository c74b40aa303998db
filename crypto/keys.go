package crypto

import (
	"encoding/hex"

	"github.com/iov-one/offchain"
	"github.com/iov-one/offchain/errors"
	"github.com/stellar/go/exp/crypto/derivation"
	"golang.org/x/crypto/ed25519"
)

// ExtensionName is used for the conditions we get from signatures.
const ExtensionName = "sigs"

// PublicKey is an ed25519 public key of a channel participant.
type PublicKey []byte

// Verify verifies the signature was created with this message and public key.
func (p PublicKey) Verify(message, sig []byte) bool {
	if len(p) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(p), message, sig)
}

// Condition encodes the public key into a signature condition.
func (p PublicKey) Condition() offchain.Condition {
	return offchain.NewCondition(ExtensionName, "ed25519", p)
}

// Address returns the account address owned by this key.
func (p PublicKey) Address() offchain.Address {
	return p.Condition().Address()
}

func (p PublicKey) String() string {
	return hex.EncodeToString(p)
}

// PrivateKey is an ed25519 private key. It signs channel requests and chain
// transactions.
type PrivateKey []byte

// Sign returns a matching signature for this private key.
func (p PrivateKey) Sign(message []byte) []byte {
	return ed25519.Sign(ed25519.PrivateKey(p), message)
}

// PublicKey returns the corresponding PublicKey.
func (p PrivateKey) PublicKey() PublicKey {
	pub := ed25519.PrivateKey(p).Public().(ed25519.PublicKey)
	return PublicKey(pub)
}

// Address is a shortcut for PublicKey().Address().
func (p PrivateKey) Address() offchain.Address {
	return p.PublicKey().Address()
}

// GenPrivateKey returns a random new private key.
func GenPrivateKey() PrivateKey {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		panic(err)
	}
	return PrivateKey(priv)
}

// PrivateKeyFromSeed will deterministically generate a private key from
// a given seed. Use if you have a strong source of external randomness,
// or for deterministic keys in test cases.
func PrivateKeyFromSeed(seed []byte) (PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errors.ErrInput.Newf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return PrivateKey(ed25519.NewKeyFromSeed(seed)), nil
}

// DeriveKey derives a private key from the master seed following the
// SLIP-0010 path, for example "m/44'/234'/0'".
func DeriveKey(path string, seed []byte) (PrivateKey, error) {
	k, err := derivation.DeriveForPath(path, seed)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "derive path %q: %s", path, err)
	}
	return PrivateKeyFromSeed(k.Key)
}

// ParsePrivateKey validates raw private key bytes, as stored by key files.
func ParsePrivateKey(raw []byte) (PrivateKey, error) {
	if len(raw) != ed25519.PrivateKeySize {
		return nil, errors.ErrInput.Newf("invalid private key length: %d", len(raw))
	}
	return PrivateKey(raw), nil
}
