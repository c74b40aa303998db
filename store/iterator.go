package store

import (
	"bytes"

	"github.com/iov-one/offchain/errors"
)

// SliceIterator wraps an Iterator over a slice of models.
type SliceIterator struct {
	data []Model
	idx  int
}

var _ Iterator = (*SliceIterator)(nil)

// NewSliceIterator creates a new Iterator over this slice.
func NewSliceIterator(data []Model) *SliceIterator {
	return &SliceIterator{data: data}
}

// Valid returns true iff it can be read.
func (s *SliceIterator) Valid() bool {
	return s.idx < len(s.data)
}

// Next moves the iterator to the next model.
func (s *SliceIterator) Next() error {
	if !s.Valid() {
		return errors.ErrHuman.New("passed end of slice")
	}
	s.idx++
	return nil
}

// Key returns the key of the cursor.
func (s *SliceIterator) Key() []byte {
	s.assertValid()
	return s.data[s.idx].Key
}

// Value returns the value of the cursor.
func (s *SliceIterator) Value() []byte {
	s.assertValid()
	return s.data[s.idx].Value
}

// Close releases the Iterator.
func (s *SliceIterator) Close() {
	s.data = nil
}

func (s *SliceIterator) assertValid() {
	if !s.Valid() {
		panic("passed end of slice")
	}
}

// ReadAll drains the iterator and closes it.
func ReadAll(it Iterator) ([]Model, error) {
	defer it.Close()
	var res []Model
	for it.Valid() {
		res = append(res, Model{Key: it.Key(), Value: it.Value()})
		if err := it.Next(); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// PrefixRange turns a prefix into a start, end pair for Iterator.
func PrefixRange(prefix []byte) ([]byte, []byte) {
	if len(prefix) == 0 {
		return nil, nil
	}
	start := append([]byte(nil), prefix...)
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return start, end[:i+1]
		}
	}
	return start, nil
}

// mergeModels merges two ascending sorted lists. Entries of top shadow the
// ones of bottom with the same key, deleted entries of top are dropped.
func mergeModels(bottom []Model, top []item) []Model {
	res := make([]Model, 0, len(bottom)+len(top))
	i, j := 0, 0
	for i < len(bottom) || j < len(top) {
		var cmp int
		switch {
		case j == len(top):
			cmp = -1
		case i == len(bottom):
			cmp = 1
		default:
			cmp = bytes.Compare(bottom[i].Key, top[j].key)
		}

		if cmp < 0 {
			res = append(res, bottom[i])
			i++
			continue
		}
		if !top[j].deleted {
			res = append(res, Model{Key: top[j].key, Value: top[j].value})
		}
		if cmp == 0 {
			i++
		}
		j++
	}
	return res
}

func reverseModels(m []Model) []Model {
	for i, j := 0, len(m)-1; i < j; i, j = i+1, j-1 {
		m[i], m[j] = m[j], m[i]
	}
	return m
}
