package chain

import (
	"context"

	"github.com/gogo/protobuf/proto"
	"github.com/iov-one/offchain"
	"github.com/iov-one/offchain/errors"
	"github.com/iov-one/offchain/ledger"
	"github.com/iov-one/offchain/store/iavl"
	"github.com/tendermint/tendermint/libs/log"
)

// State is the executed chain state: the committed ledger store and its
// height. It is not safe for concurrent use, its owner serializes access
// and holds it exclusively for a whole execute and commit cycle.
type State struct {
	store  *iavl.CommitStore
	height int64
	// block collects the transactions delivered since the last commit.
	block  offchain.KVCacheWrap
	logger log.Logger
}

// NewState wraps a commit store. The height continues from the latest
// committed version.
func NewState(store *iavl.CommitStore, logger log.Logger) (*State, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	id, err := store.LatestVersion()
	if err != nil {
		return nil, err
	}
	return &State{store: store, height: id.Version, logger: logger}, nil
}

// Height returns the height of the last committed block.
func (s *State) Height() int64 {
	return s.height
}

// LatestVersion returns the last commit.
func (s *State) LatestVersion() (offchain.CommitID, error) {
	return s.store.LatestVersion()
}

// TxResult is the outcome of a single transaction of a block.
type TxResult struct {
	Hash    []byte
	Receipt *ledger.Receipt
	Err     error
}

// DeliverTx executes the transaction in the block being built. A failing
// transaction leaves no trace. Nothing is visible to queries before Commit.
func (s *State) DeliverTx(ctx context.Context, tx *ledger.ChainTx) TxResult {
	if s.block == nil {
		s.block = s.store.CacheWrap()
	}
	height := s.height + 1
	return deliver(offchain.WithLogInfo(ctx, "height", height), s.block, height, tx)
}

func deliver(ctx context.Context, block offchain.CacheableKVStore, height int64, tx *ledger.ChainTx) TxResult {
	var res TxResult
	hash, err := tx.Hash()
	if err != nil {
		res.Err = err
		return res
	}
	res.Hash = hash

	db := block.CacheWrap()
	r, err := ledger.Deliver(ctx, db, height, tx)
	if err != nil {
		db.Discard()
		if errors.ErrDuplicate.Is(err) {
			if existing, rerr := ledger.GetReceipt(block, hash); rerr == nil {
				res.Receipt = existing
				return res
			}
		}
		res.Err = err
		return res
	}
	if err := db.Write(); err != nil {
		res.Err = errors.Wrap(errors.ErrDatabase, err.Error())
		return res
	}
	res.Receipt = r
	return res
}

// Commit persists the block and advances the height.
func (s *State) Commit() (offchain.CommitID, error) {
	if s.block != nil {
		if err := s.block.Write(); err != nil {
			return offchain.CommitID{}, errors.Wrap(errors.ErrDatabase, err.Error())
		}
		s.block = nil
	}
	id, err := s.store.Commit()
	if err != nil {
		return id, err
	}
	s.height = id.Version
	s.logger.Debug("block committed", "height", id.Version, "hash", id.Hash)
	return id, nil
}

// ExecuteBlock delivers and commits the transactions as one block.
func (s *State) ExecuteBlock(ctx context.Context, txs []*ledger.ChainTx) ([]TxResult, offchain.CommitID, error) {
	results := make([]TxResult, len(txs))
	for i, tx := range txs {
		results[i] = s.DeliverTx(ctx, tx)
	}
	id, err := s.Commit()
	return results, id, err
}

// Proof returns the committed receipt of the transaction with the state
// root it is included in.
func (s *State) Proof(hash []byte) (*ledger.TransactionWithProof, error) {
	raw, root, err := s.store.GetWithProof(ledger.ReceiptKey(hash))
	if err != nil {
		return nil, err
	}
	var r ledger.Receipt
	if err := proto.Unmarshal(raw, &r); err != nil {
		return nil, errors.Wrap(errors.ErrModel, err.Error())
	}
	return &ledger.TransactionWithProof{Receipt: &r, Root: root, Version: s.height}, nil
}

// View returns a read only view of the committed state. It must not be
// used across a commit.
func (s *State) View() offchain.ReadOnlyKVStore {
	return s.store.CacheWrap()
}

// Balance returns the committed balance of an account.
func (s *State) Balance(addr offchain.Address) (uint64, error) {
	return ledger.Balance(s.View(), addr)
}

// Channel returns the committed channel record.
func (s *State) Channel(a, b offchain.Address) (*ledger.ChannelRecord, error) {
	return ledger.Channel(s.View(), a, b)
}
