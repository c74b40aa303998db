package offchain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/iov-one/offchain/crypto/bech32"
	"github.com/iov-one/offchain/errors"
)

// AddressLength is the length of all addresses.
const AddressLength = 20

// DefaultHRP is the human readable part used when printing bech32 addresses.
const DefaultHRP = "chan"

// it must have (?s) flags, otherwise it errors when last section contains 0x20 (newline)
var perm = regexp.MustCompile(`(?s)^([a-zA-Z0-9_\-]{3,8})/([a-zA-Z0-9_\-]{3,8})/(.+)$`)

// Condition is a specially formatted array, containing information on who
// can authorize an action. It is of the format:
//
//	sprintf("%s/%s/%s", extension, type, data)
//
// A channel participant is identified by the condition of its public key.
type Condition []byte

func NewCondition(ext, typ string, data []byte) Condition {
	pre := fmt.Sprintf("%s/%s/", ext, typ)
	return append([]byte(pre), data...)
}

// Parse will extract the sections from the Condition bytes
// and verify it is properly formatted.
func (c Condition) Parse() (string, string, []byte, error) {
	chunks := perm.FindSubmatch(c)
	if len(chunks) == 0 {
		return "", "", nil, errors.ErrInput.Newf("condition: %X", []byte(c))
	}
	return string(chunks[1]), string(chunks[2]), chunks[3], nil
}

// Address will convert a Condition into an Address.
func (c Condition) Address() Address {
	return NewAddress(c)
}

// String keeps the extension and type in ascii and hex-encodes the data.
func (c Condition) String() string {
	ext, typ, data, err := c.Parse()
	if err != nil {
		return fmt.Sprintf("Invalid Condition: %X", []byte(c))
	}
	return fmt.Sprintf("%s/%s/%X", ext, typ, data)
}

// Validate returns an error if the Condition is not the proper format.
func (c Condition) Validate() error {
	if !perm.Match(c) {
		return errors.ErrInput.Newf("condition: %X", []byte(c))
	}
	return nil
}

// Address represents a collision-free, one-way digest of a Condition.
//
// It will be of size AddressLength.
type Address []byte

// NewAddress hashes and truncates into the proper size.
func NewAddress(data []byte) Address {
	if data == nil {
		return nil
	}
	h := sha256.Sum256(data)
	return h[:AddressLength]
}

// Equals checks if two addresses are the same.
func (a Address) Equals(b Address) bool {
	return bytes.Equal(a, b)
}

// Compare orders addresses by their bytes.
func (a Address) Compare(b Address) int {
	return bytes.Compare(a, b)
}

// String returns the upper case hex representation.
func (a Address) String() string {
	if len(a) == 0 {
		return "(nil)"
	}
	return strings.ToUpper(hex.EncodeToString(a))
}

// Bech32 returns the address encoded with the given human readable part.
func (a Address) Bech32(hrp string) (string, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}
	return bech32.Encode(hrp, a)
}

// Validate returns an error if the address is not the valid size.
func (a Address) Validate() error {
	if len(a) != AddressLength {
		return errors.ErrInput.Newf("address: %v", a)
	}
	return nil
}

// MarshalJSON provides a hex representation for JSON,
// to override the standard base64 []byte encoding.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.ToUpper(hex.EncodeToString(a)))
}

func (a *Address) UnmarshalJSON(raw []byte) error {
	var enc string
	if err := json.Unmarshal(raw, &enc); err != nil {
		return errors.Wrap(errors.ErrInput, "cannot decode json")
	}
	addr, err := ParseAddress(enc)
	if err != nil {
		return err
	}
	*a = addr
	return nil
}

// ParseAddress decodes an address from its text form. Plain hex and the
// "hex:", "bech32:" and "cond:" prefixed forms are accepted. A bech32 string
// without a prefix is recognized by its separator. An empty value gives a
// nil address.
func ParseAddress(enc string) (Address, error) {
	chunks := strings.SplitN(enc, ":", 2)
	format := chunks[0]
	if len(chunks) == 1 {
		format = "hex"
		if strings.HasPrefix(enc, DefaultHRP+"1") {
			format = "bech32"
		}
	} else {
		enc = chunks[1]
	}
	if len(enc) == 0 {
		return nil, nil
	}

	var addr Address
	switch format {
	case "hex":
		val, err := hex.DecodeString(enc)
		if err != nil {
			return nil, errors.Wrap(errors.ErrInput, "cannot decode hex")
		}
		addr = val
	case "bech32":
		_, payload, err := bech32.Decode(enc)
		if err != nil {
			return nil, err
		}
		addr = payload
	case "cond":
		args := strings.Split(enc, "/")
		if len(args) != 3 {
			return nil, errors.ErrInput.New("invalid condition format")
		}
		data, err := hex.DecodeString(args[2])
		if err != nil {
			return nil, errors.ErrInput.Newf("malformed condition data: %s", err)
		}
		addr = NewCondition(args[0], args[1], data).Address()
	default:
		return nil, errors.ErrType.Newf("unknown format %q", chunks[0])
	}
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	return addr, nil
}
