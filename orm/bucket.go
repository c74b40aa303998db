package orm

import (
	"fmt"
	"regexp"

	"github.com/gogo/protobuf/proto"
	"github.com/iov-one/offchain"
	"github.com/iov-one/offchain/errors"
	"github.com/iov-one/offchain/store"
)

var isBucketName = regexp.MustCompile(`^[a-z_]{3,10}$`).MatchString

// Model is what is stored in a bucket.
type Model interface {
	proto.Message
	// Validate returns error if the object is not in a valid
	// state to save to the db (eg. field missing, out of range, ...)
	Validate() error
}

// Bucket is a prefixed subspace of the DB holding one message type.
type Bucket struct {
	name   string
	prefix []byte
}

// NewBucket creates a bucket to store data.
func NewBucket(name string) Bucket {
	if !isBucketName(name) {
		panic(fmt.Sprintf("Illegal bucket: %s", name))
	}
	return Bucket{
		name:   name,
		prefix: append([]byte(name), ':'),
	}
}

// Name returns the bucket name.
func (b Bucket) Name() string {
	return b.name
}

// DBKey is the full key we store in the db, including prefix.
func (b Bucket) DBKey(key []byte) []byte {
	return append(append([]byte(nil), b.prefix...), key...)
}

// Sequence returns a sequence scoped to this bucket.
func (b Bucket) Sequence(name string) Sequence {
	return NewSequence(b.name, name)
}

// Get loads the message stored under key into dest. ErrNotFound is returned
// when there is no such entry.
func (b Bucket) Get(db offchain.ReadOnlyKVStore, key []byte, dest Model) error {
	raw, err := db.Get(b.DBKey(key))
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	if raw == nil {
		return errors.Wrapf(errors.ErrNotFound, "%s %X", b.name, key)
	}
	if err := proto.Unmarshal(raw, dest); err != nil {
		return errors.Wrapf(errors.ErrModel, "%s %X: %s", b.name, key, err)
	}
	return nil
}

// Has checks if an entry exists under key.
func (b Bucket) Has(db offchain.ReadOnlyKVStore, key []byte) (bool, error) {
	ok, err := db.Has(b.DBKey(key))
	if err != nil {
		return false, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return ok, nil
}

// Save validates and writes the message under key.
func (b Bucket) Save(db offchain.KVStore, key []byte, m Model) error {
	if err := m.Validate(); err != nil {
		return errors.Wrapf(err, "%s %X", b.name, key)
	}
	raw, err := proto.Marshal(m)
	if err != nil {
		return errors.Wrapf(errors.ErrModel, "marshal: %s", err)
	}
	if err := db.Set(b.DBKey(key), raw); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

// Delete removes the entry under key.
func (b Bucket) Delete(db offchain.KVStore, key []byte) error {
	if err := db.Delete(b.DBKey(key)); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

// Keys returns the primary keys of all entries in ascending order.
func (b Bucket) Keys(db offchain.ReadOnlyKVStore) ([][]byte, error) {
	start, end := store.PrefixRange(b.prefix)
	it, err := db.Iterator(start, end)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	models, err := store.ReadAll(it)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	res := make([][]byte, len(models))
	for i, m := range models {
		res[i] = m.Key[len(b.prefix):]
	}
	return res, nil
}
