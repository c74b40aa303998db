package orm

import (
	"encoding/binary"

	"github.com/iov-one/offchain"
	"github.com/iov-one/offchain/errors"
)

// Sequence maintains a counter, and generates a
// series of keys. Each key is greater than the last,
// both NextInt() as well as bytes.Compare() on NextVal().
type Sequence struct {
	id []byte
}

// NewSequence returns a sequence counter. Sequence is using following pattern
// to construct a key:
//
//	_s.<bucket>:<name>
func NewSequence(bucket, name string) Sequence {
	return Sequence{id: []byte("_s." + bucket + ":" + name)}
}

// NextVal increments the sequence and returns its state as 8 bytes.
func (s *Sequence) NextVal(db offchain.KVStore) ([]byte, error) {
	_, bz, err := s.increment(db, 1)
	return bz, err
}

// NextInt increments the sequence and returns its state as int.
func (s *Sequence) NextInt(db offchain.KVStore) (uint64, error) {
	val, _, err := s.increment(db, 1)
	return val, err
}

// Latest returns the recently returned value of the sequence without
// modifying it.
func (s *Sequence) Latest(db offchain.ReadOnlyKVStore) (uint64, error) {
	raw, err := db.Get(s.id)
	if err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return DecodeSequence(raw), nil
}

func (s *Sequence) increment(db offchain.KVStore, inc uint64) (uint64, []byte, error) {
	val, err := s.Latest(db)
	if err != nil {
		return 0, nil, err
	}
	val += inc
	raw := EncodeSequence(val)
	if err := db.Set(s.id, raw); err != nil {
		return 0, nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return val, raw, nil
}

// DecodeSequence reads the big endian form of a sequence value.
func DecodeSequence(bz []byte) uint64 {
	if len(bz) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(bz)
}

// EncodeSequence returns the 8 byte big endian form of val, so that byte
// order equals numeric order.
func EncodeSequence(val uint64) []byte {
	bz := make([]byte, 8)
	binary.BigEndian.PutUint64(bz, val)
	return bz
}
