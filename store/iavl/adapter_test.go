package iavl

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/iov-one/offchain/errors"
	"github.com/iov-one/offchain/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitStoreVersions(t *testing.T) {
	s := NewMemCommitStore()

	id, err := s.LatestVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(0), id.Version)

	cache := s.CacheWrap()
	require.NoError(t, cache.Set([]byte("alice"), []byte("10")))
	require.NoError(t, cache.Set([]byte("bob"), []byte("20")))
	require.NoError(t, cache.Write())

	// Written but not committed.
	v, err := s.Get([]byte("alice"))
	require.NoError(t, err)
	assert.Nil(t, v)

	id, err = s.Commit()
	require.NoError(t, err)
	assert.Equal(t, int64(1), id.Version)
	assert.NotEmpty(t, id.Hash)

	v, err = s.Get([]byte("alice"))
	require.NoError(t, err)
	assert.Equal(t, []byte("10"), v)

	cache = s.CacheWrap()
	it, err := cache.Iterator(nil, nil)
	require.NoError(t, err)
	models, err := store.ReadAll(it)
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, []byte("alice"), models[0].Key)

	require.NoError(t, cache.Delete([]byte("alice")))
	require.NoError(t, cache.Write())
	id2, err := s.Commit()
	require.NoError(t, err)
	assert.Equal(t, int64(2), id2.Version)
	assert.NotEqual(t, id.Hash, id2.Hash)

	v, err = s.Get([]byte("alice"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestCommitStoreProof(t *testing.T) {
	s := NewMemCommitStore()
	_, _, err := s.GetWithProof([]byte("x"))
	assert.True(t, errors.ErrNotFound.Is(err))

	cache := s.CacheWrap()
	require.NoError(t, cache.Set([]byte("x"), []byte("y")))
	require.NoError(t, cache.Write())
	id, err := s.Commit()
	require.NoError(t, err)

	val, root, err := s.GetWithProof([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, []byte("y"), val)
	assert.Equal(t, id.Hash, root)

	_, _, err = s.GetWithProof([]byte("missing"))
	assert.True(t, errors.ErrNotFound.Is(err))
}

func TestCommitStorePersistence(t *testing.T) {
	dir, err := ioutil.TempDir("", "iavl")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	s, err := NewCommitStore(dir, "state")
	require.NoError(t, err)
	cache := s.CacheWrap()
	require.NoError(t, cache.Set([]byte("k"), []byte("v")))
	require.NoError(t, cache.Write())
	want, err := s.Commit()
	require.NoError(t, err)
	s.Close()

	s, err = NewCommitStore(dir, "state")
	require.NoError(t, err)
	defer s.Close()
	got, err := s.LatestVersion()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	v, err := s.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}
