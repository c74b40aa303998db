package iavl

import (
	"github.com/iov-one/offchain/errors"
	"github.com/iov-one/offchain/store"
	"github.com/tendermint/iavl"
	dbm "github.com/tendermint/tendermint/libs/db"
)

// DefaultCacheSize is the number of tree nodes kept in memory.
const DefaultCacheSize = 10000

// CommitStore manages an iavl committed state. It is not safe for
// concurrent use, the owner serializes access.
type CommitStore struct {
	tree *iavl.MutableTree
	db   dbm.DB
}

var _ store.CommitKVStore = (*CommitStore)(nil)

// NewCommitStore creates a new store backed by goleveldb in dir and loads
// the latest persisted version.
func NewCommitStore(dir, name string) (*CommitStore, error) {
	db, err := dbm.NewGoLevelDB(name, dir)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "open %s/%s: %s", dir, name, err)
	}
	s := &CommitStore{
		tree: iavl.NewMutableTree(db, DefaultCacheSize),
		db:   db,
	}
	if err := s.LoadLatestVersion(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewMemCommitStore creates a store that keeps all versions in memory.
func NewMemCommitStore() *CommitStore {
	db := dbm.NewMemDB()
	return &CommitStore{
		tree: iavl.NewMutableTree(db, DefaultCacheSize),
		db:   db,
	}
}

// Get returns the value at last committed state.
// returns nil iff key doesn't exist.
func (s *CommitStore) Get(key []byte) ([]byte, error) {
	_, val := s.tree.GetVersioned(key, s.tree.Version())
	return val, nil
}

// GetWithProof returns the committed value together with the merkle root
// it was proven against.
func (s *CommitStore) GetWithProof(key []byte) ([]byte, []byte, error) {
	version := s.tree.Version()
	if version == 0 {
		return nil, nil, errors.ErrNotFound.New("nothing committed")
	}
	val, proof, err := s.tree.GetVersionedWithProof(key, version)
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	if val == nil {
		return nil, nil, errors.ErrNotFound.Newf("key %X", key)
	}
	root := proof.ComputeRootHash()
	if err := proof.Verify(root); err != nil {
		return nil, nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	if err := proof.VerifyItem(key, val); err != nil {
		return nil, nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return val, root, nil
}

// Commit the next version to disk, and returns info.
func (s *CommitStore) Commit() (store.CommitID, error) {
	hash, version, err := s.tree.SaveVersion()
	if err != nil {
		return store.CommitID{}, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return store.CommitID{Version: version, Hash: hash}, nil
}

// LoadLatestVersion loads the latest persisted version.
func (s *CommitStore) LoadLatestVersion() error {
	if _, err := s.tree.Load(); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

// LatestVersion returns info on the latest version saved.
func (s *CommitStore) LatestVersion() (store.CommitID, error) {
	return store.CommitID{
		Version: s.tree.Version(),
		Hash:    s.tree.Hash(),
	}, nil
}

// Close releases the database.
func (s *CommitStore) Close() {
	s.db.Close()
}

// CacheWrap gives us a savepoint to perform actions. Writing the cache
// updates the working tree, Commit persists it.
func (s *CommitStore) CacheWrap() store.KVCacheWrap {
	w := &working{tree: s.tree}
	return store.NewBTreeCacheWrap(w, w.NewBatch(), nil)
}

// working exposes the uncommitted tree as a KVStore.
type working struct {
	tree *iavl.MutableTree
}

var _ store.KVStore = (*working)(nil)

func (w *working) Get(key []byte) ([]byte, error) {
	_, val := w.tree.Get(key)
	return val, nil
}

func (w *working) Has(key []byte) (bool, error) {
	return w.tree.Has(key), nil
}

func (w *working) Set(key, value []byte) error {
	w.tree.Set(key, value)
	return nil
}

func (w *working) Delete(key []byte) error {
	w.tree.Remove(key)
	return nil
}

func (w *working) NewBatch() store.Batch {
	return store.NewNonAtomicBatch(w)
}

func (w *working) Iterator(start, end []byte) (store.Iterator, error) {
	return store.NewSliceIterator(w.collect(start, end, true)), nil
}

func (w *working) ReverseIterator(start, end []byte) (store.Iterator, error) {
	return store.NewSliceIterator(w.collect(start, end, false)), nil
}

func (w *working) collect(start, end []byte, ascending bool) []store.Model {
	var res []store.Model
	w.tree.IterateRange(start, end, ascending, func(key, value []byte) bool {
		res = append(res, store.Model{Key: key, Value: value})
		return false
	})
	return res
}
