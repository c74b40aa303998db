package state

import (
	"github.com/gogo/protobuf/proto"
	"github.com/iov-one/offchain"
	"github.com/iov-one/offchain/changeset"
	"github.com/iov-one/offchain/errors"
)

// View is a read only access to resources. It backs the computation of
// change sets.
type View interface {
	// Resource returns nil when nothing is stored under the path.
	Resource(path changeset.AccessPath) (*Resource, error)
}

// KVView reads resources stored in a KVStore under a key prefix.
type KVView struct {
	db     offchain.ReadOnlyKVStore
	prefix []byte
}

var _ View = (*KVView)(nil)

// NewKVView returns a view of the resources stored under prefix.
func NewKVView(db offchain.ReadOnlyKVStore, prefix []byte) *KVView {
	return &KVView{db: db, prefix: prefix}
}

func (v *KVView) Resource(path changeset.AccessPath) (*Resource, error) {
	return load(v.db, v.prefix, path)
}

// Uint reads a numeric field. Missing resources and fields read as zero.
func Uint(v View, path changeset.AccessPath, field changeset.Accesses) (uint64, error) {
	res, err := v.Resource(path)
	if err != nil {
		return 0, err
	}
	return res.Uint(field)
}

func resourceKey(prefix []byte, path changeset.AccessPath) []byte {
	return append(append([]byte(nil), prefix...), path.Key()...)
}

func load(db offchain.ReadOnlyKVStore, prefix []byte, path changeset.AccessPath) (*Resource, error) {
	raw, err := db.Get(resourceKey(prefix, path))
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	if raw == nil {
		return nil, nil
	}
	var res Resource
	if err := proto.Unmarshal(raw, &res); err != nil {
		return nil, errors.Wrapf(errors.ErrModel, "resource %s: %s", path, err)
	}
	return &res, nil
}

// Apply writes the change set to the resources stored under prefix. Numeric
// fields never go below zero. The store is left partially written on error,
// callers apply on a cache wrap and discard it on failure.
func Apply(db offchain.KVStore, prefix []byte, cs *changeset.ChangeSet) error {
	for _, e := range cs.Entries() {
		if err := applyResource(db, prefix, e); err != nil {
			return errors.Wrapf(err, "resource %s", e.Path)
		}
	}
	return nil
}

func applyResource(db offchain.KVStore, prefix []byte, e changeset.ResourceChanges) error {
	key := resourceKey(prefix, e.Path)
	res, err := load(db, prefix, e.Path)
	if err != nil {
		return err
	}
	if res == nil {
		res = &Resource{}
	}

	for _, c := range e.Changes {
		if !c.Accesses.IsRoot() {
			if err := res.apply(c.Accesses, c.Op); err != nil {
				return err
			}
			continue
		}
		switch c.Op.Kind {
		case changeset.OpNone:
		case changeset.OpDeletion:
			res = &Resource{}
		case changeset.OpUpdate:
			if res, err = Decode(c.Op.Value); err != nil {
				return err
			}
		default:
			return errors.ErrState.Newf("%s on resource root", c.Op)
		}
	}

	if len(res.Fields) == 0 {
		if err := db.Delete(key); err != nil {
			return errors.Wrap(errors.ErrDatabase, err.Error())
		}
		return nil
	}
	if err := res.Validate(); err != nil {
		return err
	}
	raw, err := proto.Marshal(res)
	if err != nil {
		return errors.Wrap(errors.ErrModel, err.Error())
	}
	if err := db.Set(key, raw); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

// Encode serializes a resource so that it can be carried by a root Update.
func Encode(res *Resource) ([]byte, error) {
	raw, err := proto.Marshal(res)
	if err != nil {
		return nil, errors.Wrap(errors.ErrModel, err.Error())
	}
	return raw, nil
}

// Decode reads the resource carried by a root Update.
func Decode(raw []byte) (*Resource, error) {
	var res Resource
	if err := proto.Unmarshal(raw, &res); err != nil {
		return nil, errors.Wrapf(errors.ErrDecode, "resource value: %s", err)
	}
	return &res, nil
}
