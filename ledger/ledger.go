package ledger

import (
	"context"

	"github.com/iov-one/offchain"
	"github.com/iov-one/offchain/changeset"
	"github.com/iov-one/offchain/channel"
	"github.com/iov-one/offchain/crypto"
	"github.com/iov-one/offchain/errors"
	"github.com/iov-one/offchain/state"
	"github.com/iov-one/offchain/vm"
)

// Gas charged per transaction kind.
const (
	GasFaucet   uint64 = 0
	GasOpen     uint64 = 300
	GasDeposit  uint64 = 120
	GasWithdraw uint64 = 120
	GasDeploy   uint64 = 500
)

// GasCost returns the gas of a travel operation.
func GasCost(op channel.Op) uint64 {
	switch op {
	case channel.OpOpen:
		return GasOpen
	case channel.OpDeposit:
		return GasDeposit
	case channel.OpWithdraw:
		return GasWithdraw
	}
	return 0
}

// Deliver executes the transaction against db and stores its receipt. The
// store is written partially on error, callers deliver on a cache wrap.
// A transaction with a known hash fails with ErrDuplicate.
func Deliver(ctx context.Context, db offchain.KVStore, height int64, tx *ChainTx) (*Receipt, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, err
	}
	if ok, err := receipts.Has(db, hash); err != nil {
		return nil, err
	} else if ok {
		return nil, errors.ErrDuplicate.Newf("transaction %X", hash)
	}

	r := &Receipt{Hash: hash, Height: height, Kind: tx.Kind()}
	switch {
	case tx.Faucet != nil:
		err = deliverFaucet(db, tx.Faucet, r)
	case tx.Settle != nil:
		err = deliverSettle(db, tx.Settle, r)
	default:
		err = deliverDeploy(db, tx.Deploy, r)
	}
	if err != nil {
		return nil, err
	}
	if err := receipts.Save(db, hash, r); err != nil {
		return nil, err
	}
	offchain.GetLogger(ctx).Debug("transaction delivered",
		"kind", r.Kind, "hash", r.Hash, "gas", r.GasUsed, "height", height)
	return r, nil
}

func deliverFaucet(db offchain.KVStore, msg *FaucetMsg, r *Receipt) error {
	r.Payer = msg.Address
	r.GasUsed = GasFaucet
	return credit(db, msg.Address, msg.Amount)
}

func deliverDeploy(db offchain.KVStore, msg *DeployMsg, r *Receipt) error {
	owner := crypto.PublicKey(msg.PublicKey).Address()
	key := ModuleHash(msg.Code)
	if ok, err := modules.Has(db, key); err != nil {
		return err
	} else if ok {
		return errors.ErrDuplicate.Newf("module %X", key)
	}
	if err := debit(db, owner, GasDeploy); err != nil {
		return errors.Wrap(err, "gas")
	}
	r.Payer = owner
	r.GasUsed = GasDeploy
	return modules.Save(db, key, &Module{Owner: owner, Code: msg.Code})
}

func deliverSettle(db offchain.KVStore, txn *channel.Txn, r *Receipt) error {
	req := txn.Request
	op := req.Kind()
	if !op.IsTravel() {
		return errors.ErrInput.Newf("%s is settled off chain", op)
	}
	proposer := offchain.Address(req.Proposer)
	counterparty := offchain.Address(req.Counterparty)

	rec, err := loadRecord(db, proposer, counterparty)
	if err != nil {
		return err
	}
	switch {
	case op == channel.OpOpen && rec != nil:
		return errors.ErrDuplicate.Newf("channel %d already open", rec.ID)
	case op == channel.OpOpen:
		id, err := channelSeq.NextInt(db)
		if err != nil {
			return err
		}
		left, right := pairKey(proposer, counterparty)
		rec = &ChannelRecord{ID: id, Left: left, Right: right}
	case rec == nil:
		return errors.ErrNotFound.New("channel not open")
	}
	if req.ChannelSeq < rec.NextSeq {
		return errors.ErrState.Newf("channel sequence %d already settled, next is %d", req.ChannelSeq, rec.NextSeq)
	}

	output, err := req.OutputSet()
	if err != nil {
		return err
	}
	witness, err := req.WitnessSet()
	if err != nil {
		return err
	}
	merged, err := changeset.MergeChangeSets(witness, output)
	if err != nil {
		return errors.Wrap(err, "witness")
	}
	if err := checkParticipants(merged, proposer, counterparty); err != nil {
		return err
	}

	gas := GasCost(op)
	if err := debit(db, proposer, gas); err != nil {
		return errors.Wrap(err, "gas")
	}
	if err := moveCollateral(db, output, proposer, counterparty); err != nil {
		return err
	}
	if err := state.Apply(db, ResourcePrefix(rec.ID), merged); err != nil {
		return errors.Wrap(err, "channel resources")
	}

	rec.NextSeq = req.ChannelSeq + 1
	rec.Settled++
	if err := channels.Save(db, recordKey(proposer, counterparty), rec); err != nil {
		return err
	}
	r.Payer = proposer
	r.GasUsed = gas
	r.ChannelID = rec.ID
	return nil
}

// checkParticipants refuses outputs touching resources of anyone but the
// two participants.
func checkParticipants(cs *changeset.ChangeSet, a, b offchain.Address) error {
	for _, e := range cs.Entries() {
		if !e.Path.Address.Equals(a) && !e.Path.Address.Equals(b) {
			return errors.ErrUnauthorized.Newf("output changes %s", e.Path)
		}
	}
	return nil
}

// moveCollateral moves funds between the accounts and the channel sides.
// A credit of a channel side is paid by its owner account, a debit is paid
// back to it.
func moveCollateral(db offchain.KVStore, output *changeset.ChangeSet, a, b offchain.Address) error {
	for _, owner := range []offchain.Address{a, b} {
		other := b
		if owner.Equals(b) {
			other = a
		}
		changes, ok := output.Get(vm.ChannelPath(owner, other))
		if !ok {
			continue
		}
		op, ok := changes.Get(vm.BalanceField)
		if !ok {
			continue
		}
		if amount, ok := op.AsPlus(); ok {
			if err := debit(db, owner, amount); err != nil {
				return errors.Wrapf(err, "collateral of %s", owner)
			}
		}
		if amount, ok := op.AsMinus(); ok {
			if err := credit(db, owner, amount); err != nil {
				return err
			}
		}
	}
	return nil
}

func loadRecord(db offchain.ReadOnlyKVStore, a, b offchain.Address) (*ChannelRecord, error) {
	var rec ChannelRecord
	switch err := channels.Get(db, recordKey(a, b), &rec); {
	case err == nil:
		return &rec, nil
	case errors.ErrNotFound.Is(err):
		return nil, nil
	default:
		return nil, err
	}
}

func loadAccount(db offchain.ReadOnlyKVStore, addr offchain.Address) (*Account, error) {
	acc := Account{Address: addr}
	if err := accounts.Get(db, addr, &acc); err != nil && !errors.ErrNotFound.Is(err) {
		return nil, err
	}
	return &acc, nil
}

func credit(db offchain.KVStore, addr offchain.Address, amount uint64) error {
	acc, err := loadAccount(db, addr)
	if err != nil {
		return err
	}
	if acc.Balance+amount < acc.Balance {
		return errors.ErrOverflow.Newf("balance of %s", addr)
	}
	acc.Balance += amount
	return accounts.Save(db, addr, acc)
}

func debit(db offchain.KVStore, addr offchain.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	acc, err := loadAccount(db, addr)
	if err != nil {
		return err
	}
	if acc.Balance < amount {
		return errors.ErrAmount.Newf("%s holds %d, needs %d", addr, acc.Balance, amount)
	}
	acc.Balance -= amount
	return accounts.Save(db, addr, acc)
}

// Balance returns the account balance, zero for unknown accounts.
func Balance(db offchain.ReadOnlyKVStore, addr offchain.Address) (uint64, error) {
	acc, err := loadAccount(db, addr)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

// Channel returns the record of the channel between a and b.
func Channel(db offchain.ReadOnlyKVStore, a, b offchain.Address) (*ChannelRecord, error) {
	rec, err := loadRecord(db, a, b)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errors.ErrNotFound.New("channel")
	}
	return rec, nil
}

// ChannelBalance returns the settled balance of owner in the channel with
// other.
func ChannelBalance(db offchain.ReadOnlyKVStore, owner, other offchain.Address) (uint64, error) {
	rec, err := Channel(db, owner, other)
	if err != nil {
		return 0, err
	}
	view := state.NewKVView(db, ResourcePrefix(rec.ID))
	return state.Uint(view, vm.ChannelPath(owner, other), vm.BalanceField)
}

// GetReceipt returns the receipt of a delivered transaction.
func GetReceipt(db offchain.ReadOnlyKVStore, hash []byte) (*Receipt, error) {
	var r Receipt
	if err := receipts.Get(db, hash, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetModule returns deployed code by its hash.
func GetModule(db offchain.ReadOnlyKVStore, hash []byte) (*Module, error) {
	var m Module
	if err := modules.Get(db, hash, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
