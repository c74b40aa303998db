package changeset

import (
	"math"
	"testing"

	"github.com/iov-one/offchain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge(t *testing.T) {
	cases := map[string]struct {
		first   ChangeOp
		second  ChangeOp
		want    ChangeOp
		wantErr *errors.Error
	}{
		"none then plus":            {first: None(), second: Plus(3), want: Plus(3)},
		"none then update":          {first: None(), second: Update([]byte("v")), want: Update([]byte("v"))},
		"plus then none":            {first: Plus(3), second: None(), want: Plus(3)},
		"plus then plus":            {first: Plus(3), second: Plus(4), want: Plus(7)},
		"plus then equal minus":     {first: Plus(5), second: Minus(5), want: None()},
		"plus then smaller minus":   {first: Plus(5), second: Minus(2), want: Plus(3)},
		"plus then bigger minus":    {first: Plus(2), second: Minus(5), want: Minus(3)},
		"minus then none":           {first: Minus(3), second: None(), want: Minus(3)},
		"minus then minus":          {first: Minus(3), second: Minus(4), want: Minus(7)},
		"minus then equal plus":     {first: Minus(5), second: Plus(5), want: None()},
		"minus then smaller plus":   {first: Minus(5), second: Plus(2), want: Minus(3)},
		"minus then bigger plus":    {first: Minus(2), second: Plus(5), want: Plus(3)},
		"update then none":          {first: Update([]byte("a")), second: None(), want: Update([]byte("a"))},
		"update then update":        {first: Update([]byte("a")), second: Update([]byte("b")), want: Update([]byte("b"))},
		"update then deletion":      {first: Update([]byte("a")), second: Deletion(), want: Deletion()},
		"deletion then none":        {first: Deletion(), second: None(), want: Deletion()},
		"deletion then deletion":    {first: Deletion(), second: Deletion(), want: Deletion()},
		"deletion then update":      {first: Deletion(), second: Update([]byte("w")), want: Update([]byte("w"))},
		"plus then update fails":    {first: Plus(1), second: Update([]byte("a")), wantErr: errors.ErrMerge},
		"update then plus fails":    {first: Update([]byte("a")), second: Plus(1), wantErr: errors.ErrMerge},
		"minus then deletion fails": {first: Minus(1), second: Deletion(), wantErr: errors.ErrMerge},
		"deletion then minus fails": {first: Deletion(), second: Minus(1), wantErr: errors.ErrMerge},
		"plus then deletion fails":  {first: Plus(1), second: Deletion(), wantErr: errors.ErrMerge},
		"minus then update fails":   {first: Minus(1), second: Update(nil), wantErr: errors.ErrMerge},
		"plus overflow":             {first: Plus(math.MaxUint64), second: Plus(1), wantErr: errors.ErrOverflow},
		"minus overflow":            {first: Minus(math.MaxUint64 - 1), second: Minus(2), wantErr: errors.ErrOverflow},
		"plus max then max minus":   {first: Plus(math.MaxUint64), second: Minus(math.MaxUint64), want: None()},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			got, err := Merge(tc.first, tc.second)
			if !tc.wantErr.Is(err) {
				t.Fatalf("unexpected error: %+v", err)
			}
			if tc.wantErr == nil {
				assert.True(t, tc.want.Equals(got), "want %s, got %s", tc.want, got)
			}
		})
	}
}

func sampleOps() []ChangeOp {
	return []ChangeOp{
		None(), Plus(0), Plus(1), Plus(7), Plus(1000000), Minus(1), Minus(7), Minus(999),
		Update(nil), Update([]byte{}), Update([]byte("x")), Deletion(),
	}
}

func TestMergeIdentity(t *testing.T) {
	for _, x := range sampleOps() {
		left, err := Merge(None(), x)
		require.NoError(t, err)
		assert.True(t, x.Equals(left), "None+%s gave %s", x, left)

		right, err := Merge(x, None())
		require.NoError(t, err)
		assert.True(t, x.Equals(right), "%s+None gave %s", x, right)
	}
}

func TestMergePlusMinus(t *testing.T) {
	amounts := []uint64{0, 1, 2, 9, 10, 11, 1000000, math.MaxUint64}
	for _, a := range amounts {
		got, err := Merge(Plus(a), Minus(a))
		require.NoError(t, err)
		assert.True(t, got.IsNone(), "plus(%d) minus(%d) gave %s", a, a, got)

		for _, b := range amounts {
			got, err := Merge(Plus(a), Minus(b))
			require.NoError(t, err)
			switch {
			case a > b:
				assert.True(t, Plus(a-b).Equals(got))
			case a < b:
				assert.True(t, Minus(b-a).Equals(got))
			default:
				assert.True(t, got.IsNone())
			}
		}
	}
}

func TestMergeAssociativeNumeric(t *testing.T) {
	ops := []ChangeOp{None(), Plus(3), Plus(10), Minus(3), Minus(4), Minus(12)}
	for _, a := range ops {
		for _, b := range ops {
			for _, c := range ops {
				ab, err := Merge(a, b)
				require.NoError(t, err)
				left, err := Merge(ab, c)
				require.NoError(t, err)

				bc, err := Merge(b, c)
				require.NoError(t, err)
				right, err := Merge(a, bc)
				require.NoError(t, err)

				assert.True(t, left.Equals(right), "(%s %s) %s = %s, %s (%s %s) = %s", a, b, c, left, a, b, c, right)
			}
		}
	}
}

func TestMergeWithReturnsOld(t *testing.T) {
	op := Plus(10)
	old, err := op.MergeWith(Minus(4))
	require.NoError(t, err)
	assert.True(t, Plus(10).Equals(old))
	assert.True(t, Plus(6).Equals(op))

	_, err = op.MergeWith(Deletion())
	assert.True(t, errors.ErrMerge.Is(err))
	assert.True(t, Plus(6).Equals(op), "failed merge must not modify the op")
}

func TestMergeDoesNotAlias(t *testing.T) {
	v := []byte("value")
	got, err := Merge(None(), Update(v))
	require.NoError(t, err)
	v[0] = 'X'
	assert.Equal(t, []byte("value"), got.Value)
}
