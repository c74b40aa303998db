/*
Package abciapp runs the ledger as a tendermint ABCI application, so that a
chain of real nodes can settle channels. rpc.Client is its client.

Queries are served on the following paths, the data is the key:

	/balance   account address, returns a ledger.Account
	/channel   both participant addresses, returns a ledger.ChannelRecord
	/receipt   transaction hash, returns a ledger.TransactionWithProof
*/
package abciapp

import (
	"context"
	"fmt"
	"sync"

	"github.com/gogo/protobuf/proto"
	"github.com/iov-one/offchain"
	"github.com/iov-one/offchain/chain"
	"github.com/iov-one/offchain/errors"
	"github.com/iov-one/offchain/ledger"
	"github.com/iov-one/offchain/store/iavl"
	abci "github.com/tendermint/tendermint/abci/types"
	cmn "github.com/tendermint/tendermint/libs/common"
	"github.com/tendermint/tendermint/libs/log"
)

// Query paths.
const (
	PathBalance = "/balance"
	PathChannel = "/channel"
	PathReceipt = "/receipt"
)

// App is an abci.Application delivering ledger transactions.
type App struct {
	abci.BaseApplication

	name   string
	debug  bool
	logger log.Logger

	// tendermint calls the consensus and query connections concurrently.
	mu    sync.Mutex
	state *chain.State
}

var _ abci.Application = (*App)(nil)

// New returns an application over the given store. In debug mode errors
// carry their stack trace.
func New(name string, store *iavl.CommitStore, debug bool, logger log.Logger) (*App, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	logger = logger.With("module", "abciapp")
	state, err := chain.NewState(store, logger)
	if err != nil {
		return nil, err
	}
	return &App{name: name, debug: debug, logger: logger, state: state}, nil
}

// Info returns the height and hash of the last commit.
func (a *App) Info(req abci.RequestInfo) abci.ResponseInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, err := a.state.LatestVersion()
	if err != nil {
		panic(err)
	}
	a.logger.Info("Info synced", "height", id.Version, "hash", fmt.Sprintf("%X", id.Hash))
	return abci.ResponseInfo{
		Data:             a.name,
		LastBlockHeight:  id.Version,
		LastBlockAppHash: id.Hash,
	}
}

// CheckTx only runs the stateless validation, the outcome depends on the
// block order.
func (a *App) CheckTx(raw []byte) abci.ResponseCheckTx {
	if _, err := a.decode(raw); err != nil {
		code, log := errors.ABCIInfo(err, a.debug)
		return abci.ResponseCheckTx{Code: code, Log: log}
	}
	return abci.ResponseCheckTx{}
}

// DeliverTx executes the transaction. The response data is the encoded
// receipt.
func (a *App) DeliverTx(raw []byte) abci.ResponseDeliverTx {
	tx, err := a.decode(raw)
	if err != nil {
		return deliverError(err, a.debug)
	}

	a.mu.Lock()
	res := a.state.DeliverTx(offchain.WithLogger(context.Background(), a.logger), tx)
	a.mu.Unlock()
	if res.Err != nil {
		return deliverError(res.Err, a.debug)
	}
	data, err := proto.Marshal(res.Receipt)
	if err != nil {
		return deliverError(errors.Wrap(errors.ErrModel, err.Error()), a.debug)
	}
	return abci.ResponseDeliverTx{
		Data:    data,
		GasUsed: int64(res.Receipt.GasUsed),
		Tags: []cmn.KVPair{
			{Key: []byte("kind"), Value: []byte(res.Receipt.Kind)},
			{Key: []byte("hash"), Value: []byte(fmt.Sprintf("%X", res.Hash))},
		},
	}
}

func deliverError(err error, debug bool) abci.ResponseDeliverTx {
	code, log := errors.ABCIInfo(err, debug)
	return abci.ResponseDeliverTx{Code: code, Log: log}
}

// decode captures panics of malformed input.
func (a *App) decode(raw []byte) (tx *ledger.ChainTx, err error) {
	defer errors.Recover(&err)
	return ledger.DecodeTx(raw)
}

// Commit persists the block.
func (a *App) Commit() abci.ResponseCommit {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, err := a.state.Commit()
	if err != nil {
		// There is no way to recover from a failed commit.
		panic(err)
	}
	a.logger.Debug("Commit synced", "height", id.Version, "hash", fmt.Sprintf("%X", id.Hash))
	return abci.ResponseCommit{Data: id.Hash}
}

// Query reads the committed state.
func (a *App) Query(req abci.RequestQuery) abci.ResponseQuery {
	a.mu.Lock()
	defer a.mu.Unlock()

	msg, err := a.query(req.Path, req.Data)
	if err != nil {
		code, log := errors.ABCIInfo(err, a.debug)
		return abci.ResponseQuery{Code: code, Log: log, Height: a.state.Height()}
	}
	raw, err := proto.Marshal(msg)
	if err != nil {
		code, log := errors.ABCIInfo(errors.Wrap(errors.ErrModel, err.Error()), a.debug)
		return abci.ResponseQuery{Code: code, Log: log}
	}
	return abci.ResponseQuery{
		Key:    req.Data,
		Value:  raw,
		Height: a.state.Height(),
	}
}

func (a *App) query(path string, data []byte) (proto.Message, error) {
	switch path {
	case PathBalance:
		addr := offchain.Address(data)
		if err := addr.Validate(); err != nil {
			return nil, err
		}
		balance, err := a.state.Balance(addr)
		if err != nil {
			return nil, err
		}
		return &ledger.Account{Address: addr, Balance: balance}, nil
	case PathChannel:
		if len(data) != 2*offchain.AddressLength {
			return nil, errors.ErrInput.Newf("channel query needs two addresses, got %d bytes", len(data))
		}
		return a.state.Channel(data[:offchain.AddressLength], data[offchain.AddressLength:])
	case PathReceipt:
		return a.state.Proof(data)
	default:
		return nil, errors.ErrNotFound.Newf("query path %q", path)
	}
}
