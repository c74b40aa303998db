package changeset

import (
	"bytes"
	"fmt"

	"github.com/iov-one/offchain/errors"
)

// OpKind tells which variant a ChangeOp holds.
type OpKind int32

const (
	OpNone OpKind = iota
	OpPlus
	OpMinus
	OpUpdate
	OpDeletion
)

var opNames = map[OpKind]string{
	OpNone:     "none",
	OpPlus:     "plus",
	OpMinus:    "minus",
	OpUpdate:   "update",
	OpDeletion: "deletion",
}

func (k OpKind) String() string {
	if n, ok := opNames[k]; ok {
		return n
	}
	return fmt.Sprintf("OpKind(%d)", int32(k))
}

// Valid returns false for kinds that are not declared.
func (k OpKind) Valid() bool {
	_, ok := opNames[k]
	return ok
}

// ChangeOp is the net effect on a single field. Amount is used by Plus and
// Minus, Value by Update. Value holds the serialized field value.
type ChangeOp struct {
	Kind   OpKind
	Amount uint64
	Value  []byte
}

func None() ChangeOp               { return ChangeOp{Kind: OpNone} }
func Plus(amount uint64) ChangeOp  { return ChangeOp{Kind: OpPlus, Amount: amount} }
func Minus(amount uint64) ChangeOp { return ChangeOp{Kind: OpMinus, Amount: amount} }
func Update(value []byte) ChangeOp { return ChangeOp{Kind: OpUpdate, Value: value} }
func Deletion() ChangeOp           { return ChangeOp{Kind: OpDeletion} }

func (c ChangeOp) IsNone() bool     { return c.Kind == OpNone }
func (c ChangeOp) IsDeletion() bool { return c.Kind == OpDeletion }

// IsNumeric is true for Plus and Minus.
func (c ChangeOp) IsNumeric() bool {
	return c.Kind == OpPlus || c.Kind == OpMinus
}

// AsPlus returns the amount of a Plus op.
func (c ChangeOp) AsPlus() (uint64, bool) {
	return c.Amount, c.Kind == OpPlus
}

// AsMinus returns the amount of a Minus op.
func (c ChangeOp) AsMinus() (uint64, bool) {
	return c.Amount, c.Kind == OpMinus
}

// Equals compares the fields relevant for the kind.
func (c ChangeOp) Equals(o ChangeOp) bool {
	if c.Kind != o.Kind {
		return false
	}
	switch c.Kind {
	case OpPlus, OpMinus:
		return c.Amount == o.Amount
	case OpUpdate:
		return bytes.Equal(c.Value, o.Value)
	}
	return true
}

func (c ChangeOp) String() string {
	switch c.Kind {
	case OpPlus, OpMinus:
		return fmt.Sprintf("%s(%d)", c.Kind, c.Amount)
	case OpUpdate:
		return fmt.Sprintf("%s(%X)", c.Kind, c.Value)
	}
	return c.Kind.String()
}

// Merge composes the effect of applying first and then second.
func Merge(first, second ChangeOp) (ChangeOp, error) {
	switch first.Kind {
	case OpNone:
		return second.clone(), nil
	case OpPlus, OpMinus:
		switch second.Kind {
		case OpNone:
			return first.clone(), nil
		case OpPlus, OpMinus:
			return mergeNumeric(first, second)
		}
	case OpUpdate, OpDeletion:
		switch second.Kind {
		case OpNone:
			return first.clone(), nil
		case OpUpdate, OpDeletion:
			return second.clone(), nil
		}
	}
	return ChangeOp{}, errors.ErrMerge.Newf("cannot merge %s with %s", first, second)
}

// mergeNumeric folds two signed amounts. Same sign adds, opposite signs
// cancel out down to None.
func mergeNumeric(first, second ChangeOp) (ChangeOp, error) {
	if first.Kind == second.Kind {
		sum := first.Amount + second.Amount
		if sum < first.Amount {
			return ChangeOp{}, errors.ErrOverflow.Newf("%s + %s", first, second)
		}
		return ChangeOp{Kind: first.Kind, Amount: sum}, nil
	}
	switch {
	case first.Amount == second.Amount:
		return None(), nil
	case first.Amount > second.Amount:
		return ChangeOp{Kind: first.Kind, Amount: first.Amount - second.Amount}, nil
	default:
		return ChangeOp{Kind: second.Kind, Amount: second.Amount - first.Amount}, nil
	}
}

// MergeWith merges other into c and returns the value c had before. On
// error c is left unchanged.
func (c *ChangeOp) MergeWith(other ChangeOp) (ChangeOp, error) {
	merged, err := Merge(*c, other)
	if err != nil {
		return ChangeOp{}, err
	}
	old := *c
	*c = merged
	return old, nil
}

func (c ChangeOp) clone() ChangeOp {
	if c.Value != nil {
		c.Value = append([]byte{}, c.Value...)
	}
	return c
}
