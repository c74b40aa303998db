package vm

import (
	"github.com/iov-one/offchain/changeset"
)

// ChannelPackage is the name of the built-in package implementing the
// channel operations.
const ChannelPackage = "channel"

// Names of the built-in scripts.
const (
	ScriptOpen     = "open"
	ScriptDeposit  = "deposit"
	ScriptWithdraw = "withdraw"
	ScriptTransfer = "transfer"
)

func balanceOp(role int32, kind changeset.OpKind, arg uint32) *Instruction {
	return &Instruction{
		Role:     role,
		Tag:      ChannelTag,
		Path:     BalanceField,
		Kind:     int32(kind),
		ArgIndex: arg,
	}
}

func mustScript(name string, arity uint32, ops ...*Instruction) *ScriptCode {
	s, err := NewScript(name, arity, ops...)
	if err != nil {
		panic(err)
	}
	return s
}

// BuiltinPackage returns the channel package. Open and deposit take the
// sender and receiver amounts and credit both channel sides. Withdraw takes
// the same arguments and debits them. Transfer moves its single amount
// argument from the sender side to the receiver side.
func BuiltinPackage() *ScriptPackage {
	return &ScriptPackage{
		Name: ChannelPackage,
		Scripts: []*ScriptCode{
			mustScript(ScriptOpen, 2,
				balanceOp(RoleSender, changeset.OpPlus, 1),
				balanceOp(RoleReceiver, changeset.OpPlus, 2),
			),
			mustScript(ScriptDeposit, 2,
				balanceOp(RoleSender, changeset.OpPlus, 1),
				balanceOp(RoleReceiver, changeset.OpPlus, 2),
			),
			mustScript(ScriptWithdraw, 2,
				balanceOp(RoleSender, changeset.OpMinus, 1),
				balanceOp(RoleReceiver, changeset.OpMinus, 2),
			),
			mustScript(ScriptTransfer, 1,
				balanceOp(RoleSender, changeset.OpMinus, 1),
				balanceOp(RoleReceiver, changeset.OpPlus, 1),
			),
		},
	}
}
