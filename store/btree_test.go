package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keys(models []Model) []string {
	var res []string
	for _, m := range models {
		res = append(res, string(m.Key))
	}
	return res
}

func TestMemStoreBasics(t *testing.T) {
	db := NewMemStore()
	require.NoError(t, db.Set([]byte("a"), []byte("1")))
	require.NoError(t, db.Set([]byte("c"), []byte("3")))
	require.NoError(t, db.Set([]byte("b"), []byte("2")))

	v, err := db.Get([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)

	v, err = db.Get([]byte("x"))
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = db.Get(nil)
	assert.Error(t, err)

	it, err := db.Iterator(nil, nil)
	require.NoError(t, err)
	all, err := ReadAll(it)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys(all))

	it, err = db.ReverseIterator([]byte("a"), []byte("c"))
	require.NoError(t, err)
	all, err = ReadAll(it)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, keys(all))

	require.NoError(t, db.Delete([]byte("a")))
	ok, err := db.Has([]byte("a"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheWrap(t *testing.T) {
	cases := map[string]struct {
		setup     map[string]string
		set       map[string]string
		del       []string
		write     bool
		wantKeys  []string
		wantCache []string
	}{
		"discard leaves the parent untouched": {
			setup:     map[string]string{"a": "1", "b": "2"},
			set:       map[string]string{"c": "3"},
			del:       []string{"a"},
			write:     false,
			wantKeys:  []string{"a", "b"},
			wantCache: []string{"b", "c"},
		},
		"write flushes sets and deletes": {
			setup:     map[string]string{"a": "1", "b": "2"},
			set:       map[string]string{"c": "3", "a": "9"},
			del:       []string{"b"},
			write:     true,
			wantKeys:  []string{"a", "c"},
			wantCache: []string{"a", "c"},
		},
		"empty parent": {
			set:       map[string]string{"z": "1"},
			write:     true,
			wantKeys:  []string{"z"},
			wantCache: []string{"z"},
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			db := NewMemStore()
			for k, v := range tc.setup {
				require.NoError(t, db.Set([]byte(k), []byte(v)))
			}
			cache := db.CacheWrap()
			for k, v := range tc.set {
				require.NoError(t, cache.Set([]byte(k), []byte(v)))
			}
			for _, k := range tc.del {
				require.NoError(t, cache.Delete([]byte(k)))
			}

			it, err := cache.Iterator(nil, nil)
			require.NoError(t, err)
			got, err := ReadAll(it)
			require.NoError(t, err)
			assert.Equal(t, tc.wantCache, keys(got))

			if tc.write {
				require.NoError(t, cache.Write())
			} else {
				cache.Discard()
			}

			it, err = db.Iterator(nil, nil)
			require.NoError(t, err)
			got, err = ReadAll(it)
			require.NoError(t, err)
			assert.Equal(t, tc.wantKeys, keys(got))
		})
	}
}

func TestNestedCacheWrap(t *testing.T) {
	db := NewMemStore()
	outer := db.CacheWrap()
	require.NoError(t, outer.Set([]byte("k"), []byte("outer")))

	inner := outer.CacheWrap()
	require.NoError(t, inner.Set([]byte("k"), []byte("inner")))
	v, err := outer.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("outer"), v)

	require.NoError(t, inner.Write())
	v, err = outer.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("inner"), v)

	v, err = db.Get([]byte("k"))
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, outer.Write())
	v, err = db.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("inner"), v)
}

func TestPrefixRange(t *testing.T) {
	start, end := PrefixRange([]byte{0x01, 0xFF})
	assert.Equal(t, []byte{0x01, 0xFF}, start)
	assert.Equal(t, []byte{0x02}, end)

	start, end = PrefixRange([]byte{0xFF})
	assert.Equal(t, []byte{0xFF}, start)
	assert.Nil(t, end)

	start, end = PrefixRange(nil)
	assert.Nil(t, start)
	assert.Nil(t, end)
}
