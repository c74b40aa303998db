/*
Package wallet implements one participant of two-party channels.

A wallet keeps a replica of every channel it takes part in, the channel
resources of both sides included, and runs the channel protocol against it:

	proposer.Transfer      -> proposal signed by the proposer
	counterparty.VerifyTxn -> re-executed and countersigned
	both.ApplyTxn          -> applied to both replicas

Open, deposit and withdraw are settled on chain by whichever side applies
first. The chain charges the gas to the proposer only.
*/
package wallet

import (
	"context"
	"sync"

	"github.com/iov-one/offchain"
	"github.com/iov-one/offchain/chain"
	"github.com/iov-one/offchain/changeset"
	"github.com/iov-one/offchain/channel"
	"github.com/iov-one/offchain/crypto"
	"github.com/iov-one/offchain/errors"
	"github.com/iov-one/offchain/ledger"
	"github.com/iov-one/offchain/state"
	"github.com/iov-one/offchain/store"
	"github.com/iov-one/offchain/vm"
	"github.com/tendermint/tendermint/libs/log"
)

// Store keeps the wallet data. Every operation works on its own cache wrap
// and writes it only when the operation succeeds. A store that also
// implements Committer is committed after every write.
type Store interface {
	CacheWrap() offchain.KVCacheWrap
}

// Committer persists written data, *iavl.CommitStore implements it.
type Committer interface {
	Commit() (offchain.CommitID, error)
}

// Wallet is safe for concurrent use. Operations on the same channel are
// serialized, different channels proceed in parallel.
type Wallet struct {
	key      crypto.PrivateKey
	addr     offchain.Address
	client   chain.Client
	store    Store
	machine  *vm.Machine
	channels channel.Bucket
	logger   log.Logger

	// storeMu serializes writes of the cache wraps into the store.
	storeMu sync.Mutex

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	gasMu sync.Mutex
	gas   uint64
}

// Option configures a wallet.
type Option func(*Wallet)

// WithLogger sets the logger, nothing is logged by default.
func WithLogger(logger log.Logger) Option {
	return func(w *Wallet) {
		w.logger = logger
	}
}

// WithStore sets the store, an in memory store is used by default. The
// store must be safe for concurrent use when the wallet serves more than one
// channel at a time.
func WithStore(s Store) Option {
	return func(w *Wallet) {
		w.store = s
	}
}

// WithMachine sets the script machine. Both participants of a channel need
// the same packages installed.
func WithMachine(m *vm.Machine) Option {
	return func(w *Wallet) {
		w.machine = m
	}
}

// New returns a wallet of the key holder.
func New(key crypto.PrivateKey, client chain.Client, opts ...Option) *Wallet {
	w := &Wallet{
		key:      key,
		addr:     key.Address(),
		client:   client,
		channels: channel.NewBucket(),
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = log.NewNopLogger()
	}
	w.logger = w.logger.With("module", "wallet", "account", w.addr)
	if w.store == nil {
		w.store = store.NewMemStore()
	}
	if w.machine == nil {
		w.machine = vm.NewMachine(w.logger)
	}
	return w
}

// Account returns the wallet address.
func (w *Wallet) Account() offchain.Address {
	return w.addr
}

// PublicKey returns the wallet public key.
func (w *Wallet) PublicKey() crypto.PublicKey {
	return w.key.PublicKey()
}

// GasUsed returns the gas paid by this wallet so far.
func (w *Wallet) GasUsed() uint64 {
	w.gasMu.Lock()
	defer w.gasMu.Unlock()
	return w.gas
}

func (w *Wallet) addGas(gas uint64) {
	w.gasMu.Lock()
	w.gas += gas
	w.gasMu.Unlock()
}

// lock serializes the operations on the channel with other.
func (w *Wallet) lock(other offchain.Address) func() {
	w.locksMu.Lock()
	mu, ok := w.locks[string(other)]
	if !ok {
		mu = &sync.Mutex{}
		w.locks[string(other)] = mu
	}
	w.locksMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

func (w *Wallet) write(db offchain.KVCacheWrap) error {
	w.storeMu.Lock()
	defer w.storeMu.Unlock()
	if err := db.Write(); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	if c, ok := w.store.(Committer); ok {
		if _, err := c.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// replicaPrefix is the key prefix of the resources of the channel with
// other.
func replicaPrefix(other offchain.Address) []byte {
	return append([]byte("res:"), other...)
}

func (w *Wallet) replica(db offchain.ReadOnlyKVStore, other offchain.Address) state.View {
	return state.NewKVView(db, replicaPrefix(other))
}

// Channels returns the counterparties of all known channels.
func (w *Wallet) Channels() ([]offchain.Address, error) {
	db := w.store.CacheWrap()
	defer db.Discard()
	return w.channels.Counterparties(db)
}

// Channel returns the replica of the channel with other.
func (w *Wallet) Channel(other offchain.Address) (*channel.Channel, error) {
	db := w.store.CacheWrap()
	defer db.Discard()
	return w.channels.Load(db, w.addr, other)
}

// ChannelBalance returns the off chain balance of this wallet in the channel
// with other.
func (w *Wallet) ChannelBalance(other offchain.Address) (uint64, error) {
	return w.SideBalance(other, w.addr)
}

// SideBalance returns the off chain balance of the owner side of the channel
// with other, as seen by this wallet.
func (w *Wallet) SideBalance(other, owner offchain.Address) (uint64, error) {
	side := other
	if owner.Equals(other) {
		side = w.addr
	}
	db := w.store.CacheWrap()
	defer db.Discard()
	return state.Uint(w.replica(db, other), vm.ChannelPath(owner, side), vm.BalanceField)
}

// Balance returns the on chain balance of this wallet.
func (w *Wallet) Balance(ctx context.Context) (uint64, error) {
	return w.client.Balance(ctx, w.addr)
}

// GetPendingTxnRequest returns the own proposal to other waiting to be
// applied, nil when there is none.
func (w *Wallet) GetPendingTxnRequest(other offchain.Address) (*channel.Txn, error) {
	ch, err := w.Channel(other)
	if err != nil {
		return nil, err
	}
	return ch.Pending, nil
}

// InstallPackage makes the scripts of pkg available to ExecuteScript.
func (w *Wallet) InstallPackage(pkg *vm.ScriptPackage) error {
	return w.machine.Install(pkg)
}

// DeployModule publishes code on chain. The deployment gas is paid by this
// wallet.
func (w *Wallet) DeployModule(ctx context.Context, code []byte) (*ledger.TransactionWithProof, error) {
	proof, err := w.client.SubmitTransaction(ctx, ledger.DeployTx(w.key, code))
	if err != nil {
		return nil, errors.Wrap(err, "deploy")
	}
	w.addGas(proof.Receipt.GasUsed)
	w.logger.Info("module deployed", "hash", proof.Receipt.Hash, "gas", proof.Receipt.GasUsed)
	return proof, nil
}

// Open proposes to open the channel with other, locking local from this
// wallet and remote from the counterparty.
func (w *Wallet) Open(ctx context.Context, other offchain.Address, local, remote uint64) (*channel.Txn, error) {
	return w.propose(ctx, other, channel.OpOpen, vm.ChannelPackage, vm.ScriptOpen,
		[][]byte{vm.U64Arg(local), vm.U64Arg(remote)})
}

// Deposit proposes to add collateral to both sides of the channel.
func (w *Wallet) Deposit(ctx context.Context, other offchain.Address, local, remote uint64) (*channel.Txn, error) {
	return w.propose(ctx, other, channel.OpDeposit, vm.ChannelPackage, vm.ScriptDeposit,
		[][]byte{vm.U64Arg(local), vm.U64Arg(remote)})
}

// Withdraw proposes to take collateral of both sides back to the chain.
func (w *Wallet) Withdraw(ctx context.Context, other offchain.Address, local, remote uint64) (*channel.Txn, error) {
	return w.propose(ctx, other, channel.OpWithdraw, vm.ChannelPackage, vm.ScriptWithdraw,
		[][]byte{vm.U64Arg(local), vm.U64Arg(remote)})
}

// Transfer proposes to pay amount to other.
func (w *Wallet) Transfer(ctx context.Context, other offchain.Address, amount uint64) (*channel.Txn, error) {
	return w.propose(ctx, other, channel.OpTransfer, vm.ChannelPackage, vm.ScriptTransfer,
		[][]byte{vm.U64Arg(amount)})
}

// ExecuteScript proposes to run an installed script on the channel.
func (w *Wallet) ExecuteScript(ctx context.Context, other offchain.Address, pkg, script string, args [][]byte) (*channel.Txn, error) {
	return w.propose(ctx, other, channel.OpExecute, pkg, script, args)
}

// propose builds the request from the replica. Proposing the request that
// is already pending gives the pending transaction again.
func (w *Wallet) propose(ctx context.Context, other offchain.Address, op channel.Op, pkg, script string, args [][]byte) (*channel.Txn, error) {
	if err := other.Validate(); err != nil {
		return nil, errors.Wrap(err, "counterparty")
	}
	defer w.lock(other)()

	db := w.store.CacheWrap()
	defer db.Discard()
	ch, err := w.channels.Load(db, w.addr, other)
	if err != nil {
		return nil, err
	}
	if err := ch.CheckOp(op); err != nil {
		return nil, err
	}
	if ch.Verified != nil {
		return nil, errors.ErrState.New("counterparty proposal waiting to be applied")
	}

	req := &channel.Request{
		Op:           int32(op),
		Proposer:     w.addr,
		Counterparty: other,
		ProposerKey:  w.key.PublicKey(),
		ChannelSeq:   ch.Seq,
		Package:      pkg,
		Script:       script,
		Args:         args,
		Witness:      ch.Witness,
	}
	output, err := w.machine.Execute(ctx, w.replica(db, other), req.Call())
	if err != nil {
		return nil, errors.Wrapf(err, "%s", op)
	}
	if err := mergesIntoWitness(ch, output); err != nil {
		return nil, err
	}
	req.Output = changeset.ToWire(output)
	if err := req.Validate(); err != nil {
		return nil, err
	}
	txn, err := channel.Propose(w.key, req)
	if err != nil {
		return nil, err
	}

	if ch.Pending != nil {
		if ch.Pending.SameRequest(txn) {
			return ch.Pending, nil
		}
		return nil, errors.ErrState.Newf("%s proposal pending", ch.Pending.Request.Kind())
	}
	ch.Pending = txn
	if err := w.channels.Put(db, ch); err != nil {
		return nil, err
	}
	if err := w.write(db); err != nil {
		return nil, err
	}
	w.logger.Debug("proposed", "op", op, "counterparty", other, "seq", req.ChannelSeq)
	return txn, nil
}

// VerifyTxn re-executes a proposal of the counterparty against the replica
// and countersigns it. Verifying a proposal again gives the same confirmed
// transaction, also after it was applied.
func (w *Wallet) VerifyTxn(ctx context.Context, txn *channel.Txn) (*channel.Txn, error) {
	if err := txn.Validate(); err != nil {
		return nil, err
	}
	req := txn.Request
	if !w.addr.Equals(req.Counterparty) {
		return nil, errors.ErrUnauthorized.New("proposal is not addressed to this wallet")
	}
	other := offchain.Address(req.Proposer)
	defer w.lock(other)()

	db := w.store.CacheWrap()
	defer db.Discard()
	ch, err := w.channels.Load(db, w.addr, other)
	if err != nil {
		return nil, err
	}
	if ch.Verified.SameRequest(txn) {
		return ch.Verified, nil
	}
	if ch.LastApplied.SameRequest(txn) {
		return ch.LastApplied, nil
	}
	// A new proposal for the same sequence supersedes a verified one the
	// proposer gave up on.
	if ch.Pending != nil {
		return nil, errors.ErrState.New("own proposal pending")
	}
	if req.ChannelSeq != ch.Seq {
		return nil, errors.ErrState.Newf("proposal for sequence %d, channel is at %d", req.ChannelSeq, ch.Seq)
	}
	if err := ch.CheckOp(req.Kind()); err != nil {
		return nil, err
	}

	witness, err := ch.WitnessSet()
	if err != nil {
		return nil, err
	}
	theirWitness, err := req.WitnessSet()
	if err != nil {
		return nil, err
	}
	if !witness.Equals(theirWitness) {
		return nil, errors.ErrMismatch.New("witness")
	}
	output, err := w.machine.Execute(ctx, w.replica(db, other), req.Call())
	if err != nil {
		return nil, errors.Wrapf(err, "%s", req.Kind())
	}
	theirOutput, err := req.OutputSet()
	if err != nil {
		return nil, err
	}
	if !output.Equals(theirOutput) {
		return nil, errors.ErrMismatch.Newf("output: proposed %s, derived %s", theirOutput, output)
	}
	if err := mergesIntoWitness(ch, output); err != nil {
		return nil, err
	}

	confirmed, err := txn.Confirm(w.key)
	if err != nil {
		return nil, err
	}
	ch.Verified = confirmed
	if err := w.channels.Put(db, ch); err != nil {
		return nil, err
	}
	if err := w.write(db); err != nil {
		return nil, err
	}
	w.logger.Debug("verified", "op", req.Kind(), "counterparty", other, "seq", req.ChannelSeq)
	return confirmed, nil
}

// mergesIntoWitness makes sure a transaction with this output can be
// applied, both by the replica and by the settlement on chain.
func mergesIntoWitness(ch *channel.Channel, output *changeset.ChangeSet) error {
	witness, err := ch.WitnessSet()
	if err != nil {
		return err
	}
	if _, err := changeset.MergeChangeSets(witness, output); err != nil {
		return errors.Wrap(err, "witness")
	}
	return nil
}

// ApplyTxn applies a confirmed transaction to the replica and returns the
// gas this wallet paid for it. A travel transaction is settled on chain
// first. Applying the last applied transaction again does nothing.
func (w *Wallet) ApplyTxn(ctx context.Context, txn *channel.Txn) (uint64, error) {
	if err := txn.ValidateConfirmed(); err != nil {
		return 0, err
	}
	req := txn.Request
	proposer := w.addr.Equals(req.Proposer)
	if !proposer && !w.addr.Equals(req.Counterparty) {
		return 0, errors.ErrUnauthorized.New("transaction of another channel")
	}
	other := offchain.Address(req.Counterparty)
	if !proposer {
		other = req.Proposer
	}
	defer w.lock(other)()

	db := w.store.CacheWrap()
	defer db.Discard()
	ch, err := w.channels.Load(db, w.addr, other)
	if err != nil {
		return 0, err
	}
	if ch.LastApplied.SameRequest(txn) {
		return 0, nil
	}
	if req.ChannelSeq != ch.Seq {
		return 0, errors.ErrState.Newf("transaction for sequence %d, channel is at %d", req.ChannelSeq, ch.Seq)
	}
	switch {
	case proposer && !ch.Pending.SameRequest(txn):
		return 0, errors.ErrState.New("transaction was not proposed by this wallet")
	case !proposer && !ch.Verified.SameRequest(txn):
		return 0, errors.ErrState.New("transaction was not verified by this wallet")
	}

	output, err := req.OutputSet()
	if err != nil {
		return 0, err
	}
	if err := state.Apply(db, replicaPrefix(other), output); err != nil {
		return 0, errors.Wrap(err, "replica")
	}

	op := req.Kind()
	var gas uint64
	if op.IsTravel() {
		proof, err := w.client.SubmitTransaction(ctx, ledger.SettleTx(txn))
		if err != nil {
			if proposer {
				if cerr := w.clearPending(other, txn); cerr != nil {
					w.logger.Error("cannot clear pending proposal", "err", cerr)
				}
			}
			return 0, errors.Wrapf(err, "settle %s", op)
		}
		if proposer {
			gas = proof.Receipt.GasUsed
		}
		if op == channel.OpOpen {
			ch.Status = channel.StatusOpen
			ch.ChannelID = proof.Receipt.ChannelID
		}
		ch.Witness = changeset.ToWire(changeset.Empty())
	} else {
		witness, err := ch.WitnessSet()
		if err != nil {
			return 0, err
		}
		merged, err := changeset.MergeChangeSets(witness, output)
		if err != nil {
			return 0, errors.Wrap(err, "witness")
		}
		ch.Witness = changeset.ToWire(merged)
	}

	ch.Seq++
	ch.Pending = nil
	ch.Verified = nil
	ch.LastApplied = txn
	if err := w.channels.Put(db, ch); err != nil {
		return 0, err
	}
	if err := w.write(db); err != nil {
		return 0, err
	}
	w.addGas(gas)
	w.logger.Info("applied", "op", op, "counterparty", other, "seq", ch.Seq, "gas", gas)
	return gas, nil
}

// ClearPending drops the own proposal to other when it is txn, for example
// after the counterparty refused it.
func (w *Wallet) ClearPending(other offchain.Address, txn *channel.Txn) error {
	defer w.lock(other)()
	return w.clearPending(other, txn)
}

func (w *Wallet) clearPending(other offchain.Address, txn *channel.Txn) error {
	db := w.store.CacheWrap()
	defer db.Discard()
	ch, err := w.channels.Load(db, w.addr, other)
	if err != nil {
		return err
	}
	if !ch.Pending.SameRequest(txn) {
		return nil
	}
	ch.Pending = nil
	if err := w.channels.Put(db, ch); err != nil {
		return err
	}
	return w.write(db)
}
