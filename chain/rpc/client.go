/*
Package rpc implements chain.Client over the tendermint RPC of a chain
running abciapp.App.
*/
package rpc

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gogo/protobuf/proto"
	"github.com/iov-one/offchain"
	"github.com/iov-one/offchain/chain"
	"github.com/iov-one/offchain/chain/abciapp"
	"github.com/iov-one/offchain/errors"
	"github.com/iov-one/offchain/ledger"
	cmn "github.com/tendermint/tendermint/libs/common"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/rpc/client"
	ctypes "github.com/tendermint/tendermint/rpc/core/types"
	tmtypes "github.com/tendermint/tendermint/types"
)

// Conn is the part of the tendermint client used. *client.HTTP implements
// it.
type Conn interface {
	BroadcastTxCommit(tx tmtypes.Tx) (*ctypes.ResultBroadcastTxCommit, error)
	ABCIQuery(path string, data cmn.HexBytes) (*ctypes.ResultABCIQuery, error)
}

var _ Conn = (*client.HTTP)(nil)

// Client is a chain.Client talking to a remote node.
type Client struct {
	conn   Conn
	logger log.Logger
	nonce  uint64
}

var _ chain.Client = (*Client)(nil)

// NewClient wraps an existing connection.
func NewClient(conn Conn, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Client{
		conn:   conn,
		logger: logger.With("module", "rpc"),
		nonce:  uint64(time.Now().UnixNano()),
	}
}

// Dial connects to the RPC of a tendermint node, for example
// "tcp://localhost:26657".
func Dial(remote string, logger log.Logger) *Client {
	return NewClient(client.NewHTTP(remote, "/websocket"), logger)
}

// SubmitTransaction broadcasts the transaction and waits for its commit.
// A transaction that was already committed gives the existing receipt,
// either because the application reports a duplicate or because the node
// refuses bytes it has already seen.
func (c *Client) SubmitTransaction(ctx context.Context, tx *ledger.ChainTx) (*ledger.TransactionWithProof, error) {
	hash, err := tx.Hash()
	if err != nil {
		return nil, err
	}
	raw, err := tx.Bytes()
	if err != nil {
		return nil, err
	}
	res, err := c.broadcast(ctx, raw)
	if err != nil {
		// The node refuses bytes it has already seen, the counterparty
		// may have submitted the same settlement.
		if errors.ErrNetwork.Is(err) {
			if p, rerr := c.Receipt(ctx, hash); rerr == nil {
				return p, nil
			}
		}
		return nil, err
	}
	if res.CheckTx.IsErr() {
		return nil, errors.FromABCI(res.CheckTx.Code, res.CheckTx.Log)
	}
	if res.DeliverTx.IsErr() {
		return nil, errors.FromABCI(res.DeliverTx.Code, res.DeliverTx.Log)
	}
	c.logger.Debug("transaction committed", "height", res.Height, "hash", res.Hash)
	return c.Receipt(ctx, hash)
}

// broadcast runs the blocking call so that the context can abandon it.
func (c *Client) broadcast(ctx context.Context, raw []byte) (*ctypes.ResultBroadcastTxCommit, error) {
	type result struct {
		res *ctypes.ResultBroadcastTxCommit
		err error
	}
	out := make(chan result, 1)
	go func() {
		res, err := c.conn.BroadcastTxCommit(raw)
		out <- result{res: res, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, errors.Wrap(errors.ErrTimeout, "broadcast")
	case r := <-out:
		if r.err != nil {
			return nil, errors.Wrap(errors.ErrNetwork, r.err.Error())
		}
		return r.res, nil
	}
}

func (c *Client) Faucet(ctx context.Context, addr offchain.Address, amount uint64) error {
	nonce := atomic.AddUint64(&c.nonce, 1)
	_, err := c.SubmitTransaction(ctx, ledger.FaucetTx(addr, amount, nonce))
	return err
}

func (c *Client) Balance(ctx context.Context, addr offchain.Address) (uint64, error) {
	var acc ledger.Account
	if err := c.query(abciapp.PathBalance, addr, &acc); err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

func (c *Client) Receipt(ctx context.Context, hash []byte) (*ledger.TransactionWithProof, error) {
	var p ledger.TransactionWithProof
	if err := c.query(abciapp.PathReceipt, hash, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) Channel(ctx context.Context, a, b offchain.Address) (*ledger.ChannelRecord, error) {
	var rec ledger.ChannelRecord
	key := append(append([]byte(nil), a...), b...)
	if err := c.query(abciapp.PathChannel, key, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) query(path string, data []byte, dest proto.Message) error {
	q, err := c.conn.ABCIQuery(path, data)
	if err != nil {
		return errors.Wrap(errors.ErrNetwork, err.Error())
	}
	resp := q.Response
	if resp.IsErr() {
		return errors.FromABCI(resp.Code, resp.Log)
	}
	if err := proto.Unmarshal(resp.Value, dest); err != nil {
		return errors.Wrap(errors.ErrDecode, err.Error())
	}
	return nil
}
