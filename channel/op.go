package channel

import (
	"fmt"

	"github.com/iov-one/offchain/vm"
)

// Op is the kind of a channel transaction.
type Op int32

const (
	OpOpen Op = iota + 1
	OpDeposit
	OpWithdraw
	OpTransfer
	OpExecute
)

var opNames = map[Op]string{
	OpOpen:     "open",
	OpDeposit:  "deposit",
	OpWithdraw: "withdraw",
	OpTransfer: "transfer",
	OpExecute:  "execute",
}

func (o Op) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return fmt.Sprintf("Op(%d)", int32(o))
}

// Valid returns true for a known operation.
func (o Op) Valid() bool {
	_, ok := opNames[o]
	return ok
}

// IsTravel returns true when the transaction must be settled on chain.
func (o Op) IsTravel() bool {
	switch o {
	case OpOpen, OpDeposit, OpWithdraw:
		return true
	}
	return false
}

// Script returns the built-in script implementing the operation. Execute has
// no built-in script.
func (o Op) Script() (string, bool) {
	switch o {
	case OpOpen:
		return vm.ScriptOpen, true
	case OpDeposit:
		return vm.ScriptDeposit, true
	case OpWithdraw:
		return vm.ScriptWithdraw, true
	case OpTransfer:
		return vm.ScriptTransfer, true
	}
	return "", false
}
