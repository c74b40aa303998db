package store

import (
	"bytes"
	"sync"

	"github.com/google/btree"
	"github.com/iov-one/offchain/errors"
)

// DefaultFreeListSize is the size we hold for free node in btree.
const DefaultFreeListSize = btree.DefaultFreeListSize

// item is the btree entry of both the memory store and the cache wrap. A
// cache wrap records deletions as tombstones so that they shadow the parent.
type item struct {
	key     []byte
	value   []byte
	deleted bool
}

var _ btree.Item = item{}

func (i item) Less(other btree.Item) bool {
	return bytes.Compare(i.key, other.(item).key) < 0
}

// collect returns the items in [start, end) in ascending order.
func collect(bt *btree.BTree, start, end []byte) []item {
	var res []item
	visit := func(i btree.Item) bool {
		it := i.(item)
		if end != nil && bytes.Compare(it.key, end) >= 0 {
			return false
		}
		res = append(res, it)
		return true
	}
	if start == nil {
		bt.Ascend(visit)
	} else {
		bt.AscendGreaterOrEqual(item{key: start}, visit)
	}
	return res
}

// MemStore is a KVStore kept in a btree. There is no persistence. It is
// safe for concurrent use, a batch is applied under a single lock.
type MemStore struct {
	mu sync.RWMutex
	bt *btree.BTree
}

var _ CacheableKVStore = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{bt: btree.New(2)}
}

func (m *MemStore) Get(key []byte) ([]byte, error) {
	if key == nil {
		return nil, errors.ErrInput.New("nil key")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if res := m.bt.Get(item{key: key}); res != nil {
		return res.(item).value, nil
	}
	return nil, nil
}

func (m *MemStore) Has(key []byte) (bool, error) {
	if key == nil {
		return false, errors.ErrInput.New("nil key")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bt.Has(item{key: key}), nil
}

func (m *MemStore) Set(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.set(key, value)
}

func (m *MemStore) set(key, value []byte) error {
	if key == nil {
		return errors.ErrInput.New("nil key")
	}
	if value == nil {
		return errors.ErrInput.New("nil value")
	}
	m.bt.ReplaceOrInsert(item{key: copyBytes(key), value: copyBytes(value)})
	return nil
}

func (m *MemStore) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bt.Delete(item{key: key})
	return nil
}

// Iterator returns a snapshot of the range. Writes made after the call are
// not visible through it.
func (m *MemStore) Iterator(start, end []byte) (Iterator, error) {
	return NewSliceIterator(m.snapshot(start, end)), nil
}

func (m *MemStore) ReverseIterator(start, end []byte) (Iterator, error) {
	return NewSliceIterator(reverseModels(m.snapshot(start, end))), nil
}

func (m *MemStore) snapshot(start, end []byte) []Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := collect(m.bt, start, end)
	res := make([]Model, len(items))
	for i, it := range items {
		res[i] = Model{Key: it.key, Value: it.value}
	}
	return res
}

// NewBatch returns a batch that is applied atomically on Write.
func (m *MemStore) NewBatch() Batch {
	return &memBatch{store: m}
}

// CacheWrap returns a scratch pad over this store.
func (m *MemStore) CacheWrap() KVCacheWrap {
	return NewBTreeCacheWrap(m, m.NewBatch(), nil)
}

type memBatch struct {
	store *MemStore
	ops   []item
}

func (b *memBatch) Set(key, value []byte) error {
	if key == nil || value == nil {
		return errors.ErrInput.New("nil key or value")
	}
	b.ops = append(b.ops, item{key: copyBytes(key), value: copyBytes(value)})
	return nil
}

func (b *memBatch) Delete(key []byte) error {
	b.ops = append(b.ops, item{key: copyBytes(key), deleted: true})
	return nil
}

func (b *memBatch) Write() error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for _, op := range b.ops {
		if op.deleted {
			b.store.bt.Delete(op)
			continue
		}
		if err := b.store.set(op.key, op.value); err != nil {
			return err
		}
	}
	b.ops = nil
	return nil
}

// BTreeCacheWrap places a btree cache over a KVStore. All writes are kept
// in the btree and replayed on the batch of the parent when Write is called.
type BTreeCacheWrap struct {
	bt    *btree.BTree
	free  *btree.FreeList
	back  ReadOnlyKVStore
	batch Batch
	ops   []item
}

var _ KVCacheWrap = (*BTreeCacheWrap)(nil)

// NewBTreeCacheWrap initializes a BTree to cache around this kv store. Use
// ReadOnlyKVStore to emphasize that all writes must go through the Batch.
//
// free may be nil, but set to an existing list to reuse it for memory
// savings.
func NewBTreeCacheWrap(kv ReadOnlyKVStore, batch Batch, free *btree.FreeList) *BTreeCacheWrap {
	if free == nil {
		free = btree.NewFreeList(DefaultFreeListSize)
	}
	return &BTreeCacheWrap{
		bt:    btree.NewWithFreeList(2, free),
		free:  free,
		back:  kv,
		batch: batch,
	}
}

// CacheWrap layers another BTree on top of this one.
func (b *BTreeCacheWrap) CacheWrap() KVCacheWrap {
	return NewBTreeCacheWrap(b, b.NewBatch(), b.free)
}

// NewBatch returns a non-atomic batch that eventually may write to
// our cachewrap.
func (b *BTreeCacheWrap) NewBatch() Batch {
	return NewNonAtomicBatch(b)
}

// Write syncs with the underlying store and then cleans up.
func (b *BTreeCacheWrap) Write() error {
	defer b.Discard()
	for _, op := range b.ops {
		var err error
		if op.deleted {
			err = b.batch.Delete(op.key)
		} else {
			err = b.batch.Set(op.key, op.value)
		}
		if err != nil {
			return err
		}
	}
	return b.batch.Write()
}

// Discard invalidates this CacheWrap and releases all data.
func (b *BTreeCacheWrap) Discard() {
	b.ops = nil
	for b.bt.DeleteMin() != nil {
	}
}

func (b *BTreeCacheWrap) Set(key, value []byte) error {
	if key == nil || value == nil {
		return errors.ErrInput.New("nil key or value")
	}
	it := item{key: copyBytes(key), value: copyBytes(value)}
	b.bt.ReplaceOrInsert(it)
	b.ops = append(b.ops, it)
	return nil
}

func (b *BTreeCacheWrap) Delete(key []byte) error {
	it := item{key: copyBytes(key), deleted: true}
	b.bt.ReplaceOrInsert(it)
	b.ops = append(b.ops, it)
	return nil
}

// Get reads from btree if there, else backing store.
func (b *BTreeCacheWrap) Get(key []byte) ([]byte, error) {
	if res := b.bt.Get(item{key: key}); res != nil {
		it := res.(item)
		if it.deleted {
			return nil, nil
		}
		return it.value, nil
	}
	return b.back.Get(key)
}

// Has reads from btree if there, else backing store.
func (b *BTreeCacheWrap) Has(key []byte) (bool, error) {
	if res := b.bt.Get(item{key: key}); res != nil {
		return !res.(item).deleted, nil
	}
	return b.back.Has(key)
}

// Iterator combines results from btree and backing store.
func (b *BTreeCacheWrap) Iterator(start, end []byte) (Iterator, error) {
	models, err := b.merged(start, end)
	if err != nil {
		return nil, err
	}
	return NewSliceIterator(models), nil
}

// ReverseIterator combines results from btree and backing store.
func (b *BTreeCacheWrap) ReverseIterator(start, end []byte) (Iterator, error) {
	models, err := b.merged(start, end)
	if err != nil {
		return nil, err
	}
	return NewSliceIterator(reverseModels(models)), nil
}

func (b *BTreeCacheWrap) merged(start, end []byte) ([]Model, error) {
	parent, err := b.back.Iterator(start, end)
	if err != nil {
		return nil, err
	}
	bottom, err := ReadAll(parent)
	if err != nil {
		return nil, err
	}
	return mergeModels(bottom, collect(b.bt, start, end)), nil
}

// NonAtomicBatch just piles up ops and executes them later
// on the underlying store. Can be used when there is no better option
// (for in-memory stores).
type NonAtomicBatch struct {
	out SetDeleter
	ops []item
}

var _ Batch = (*NonAtomicBatch)(nil)

// NewNonAtomicBatch creates an empty batch to be later writen to the KVStore.
func NewNonAtomicBatch(out SetDeleter) *NonAtomicBatch {
	return &NonAtomicBatch{out: out}
}

func (b *NonAtomicBatch) Set(key, value []byte) error {
	b.ops = append(b.ops, item{key: copyBytes(key), value: copyBytes(value)})
	return nil
}

func (b *NonAtomicBatch) Delete(key []byte) error {
	b.ops = append(b.ops, item{key: copyBytes(key), deleted: true})
	return nil
}

// Write writes all the ops to the underlying store and resets.
func (b *NonAtomicBatch) Write() error {
	for _, op := range b.ops {
		var err error
		if op.deleted {
			err = b.out.Delete(op.key)
		} else {
			err = b.out.Set(op.key, op.value)
		}
		if err != nil {
			return errors.Wrap(err, "batch write")
		}
	}
	b.ops = nil
	return nil
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}
