package store

import "github.com/iov-one/offchain"

// Move references for all storage types into this package
// for shorter names everywhere.

type (
	KVStore          = offchain.KVStore
	ReadOnlyKVStore  = offchain.ReadOnlyKVStore
	SetDeleter       = offchain.SetDeleter
	Batch            = offchain.Batch
	Iterator         = offchain.Iterator
	CacheableKVStore = offchain.CacheableKVStore
	KVCacheWrap      = offchain.KVCacheWrap
	CommitKVStore    = offchain.CommitKVStore
	CommitID         = offchain.CommitID
	Model            = offchain.Model
)
