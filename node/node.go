/*
Package node exposes a wallet to its peers and to local callers.

A node drives the channel protocol over the network: the proposing node
sends its proposal, the counterparty answers with the countersigned
transaction or a rejection, the proposer applies it and asks the
counterparty to do the same. Serve must run for a node to answer its peers.
*/
package node

import (
	"context"
	"sync"

	"github.com/iov-one/offchain"
	"github.com/iov-one/offchain/api"
	"github.com/iov-one/offchain/channel"
	"github.com/iov-one/offchain/errors"
	"github.com/iov-one/offchain/network"
	"github.com/iov-one/offchain/wallet"
	"github.com/tendermint/tendermint/libs/log"
)

// Node serves a wallet.
type Node struct {
	wallet *wallet.Wallet
	peer   *network.Peer
	logger log.Logger

	mu      sync.Mutex
	known   map[string]string
	waiting map[string]chan *ProtocolMsg
}

// New returns a node of the wallet reachable through peer. The peer must
// have joined the network under the wallet address.
func New(w *wallet.Wallet, peer *network.Peer, logger log.Logger) (*Node, error) {
	if !peer.Addr().Equals(w.Account()) {
		return nil, errors.ErrInput.Newf("peer %s does not serve wallet %s", peer.Addr(), w.Account())
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Node{
		wallet:  w,
		peer:    peer,
		logger:  logger.With("module", "node", "account", w.Account()),
		known:   make(map[string]string),
		waiting: make(map[string]chan *ProtocolMsg),
	}, nil
}

// Wallet returns the served wallet.
func (n *Node) Wallet() *wallet.Wallet {
	return n.wallet
}

// Connect makes sure the remote node is reachable and remembers it.
func (n *Node) Connect(ctx context.Context, req *api.ConnectRequest) (*api.ConnectResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := n.send(ctx, req.RemoteAddr, &ProtocolMsg{Kind: KindHello}); err != nil {
		return nil, errors.Wrapf(err, "connect %s", req.RemoteIP)
	}
	n.mu.Lock()
	n.known[string(req.RemoteAddr)] = req.RemoteIP
	n.mu.Unlock()
	n.logger.Info("connected", "remote", offchain.Address(req.RemoteAddr), "ip", req.RemoteIP)
	return &api.ConnectResponse{}, nil
}

func (n *Node) isKnown(remote offchain.Address) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.known[string(remote)]
	return ok
}

func (n *Node) OpenChannel(ctx context.Context, req *api.OpenChannelRequest) (*api.OpenChannelResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	_, err := n.run(ctx, req.RemoteAddr, func() (*channel.Txn, error) {
		return n.wallet.Open(ctx, req.RemoteAddr, req.LocalAmount, req.RemoteAmount)
	})
	if err != nil {
		return nil, err
	}
	return &api.OpenChannelResponse{}, nil
}

func (n *Node) Deposit(ctx context.Context, req *api.DepositRequest) (*api.DepositResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	_, err := n.run(ctx, req.RemoteAddr, func() (*channel.Txn, error) {
		return n.wallet.Deposit(ctx, req.RemoteAddr, req.LocalAmount, req.RemoteAmount)
	})
	if err != nil {
		return nil, err
	}
	return &api.DepositResponse{}, nil
}

func (n *Node) Withdraw(ctx context.Context, req *api.WithdrawRequest) (*api.WithdrawResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	_, err := n.run(ctx, req.RemoteAddr, func() (*channel.Txn, error) {
		return n.wallet.Withdraw(ctx, req.RemoteAddr, req.LocalAmount, req.RemoteAmount)
	})
	if err != nil {
		return nil, err
	}
	return &api.WithdrawResponse{}, nil
}

func (n *Node) Pay(ctx context.Context, req *api.PayRequest) (*api.PayResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	_, err := n.run(ctx, req.RemoteAddr, func() (*channel.Txn, error) {
		return n.wallet.Transfer(ctx, req.RemoteAddr, req.Amount)
	})
	if err != nil {
		return nil, err
	}
	return &api.PayResponse{}, nil
}

// ExecuteScript runs an installed script on the channel and returns the
// hash of the applied transaction.
func (n *Node) ExecuteScript(ctx context.Context, req *api.ExecuteScriptRequest) (*api.ExecuteScriptResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	txn, err := n.run(ctx, req.RemoteAddr, func() (*channel.Txn, error) {
		return n.wallet.ExecuteScript(ctx, req.RemoteAddr, req.PackageName, req.ScriptName, req.Args)
	})
	if err != nil {
		return nil, err
	}
	hash, err := txn.Hash()
	if err != nil {
		return nil, err
	}
	return &api.ExecuteScriptResponse{HashValue: hash}, nil
}

func (n *Node) ChannelBalance(ctx context.Context, req *api.ChannelBalanceRequest) (*api.ChannelBalanceResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	balance, err := n.wallet.ChannelBalance(req.RemoteAddr)
	if err != nil {
		return nil, err
	}
	return &api.ChannelBalanceResponse{Balance: balance}, nil
}

func (n *Node) InstallChannelScriptPackage(ctx context.Context, req *api.InstallChannelScriptPackageRequest) (*api.InstallChannelScriptPackageResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := n.wallet.InstallPackage(req.ChannelScriptPackage); err != nil {
		return nil, err
	}
	return &api.InstallChannelScriptPackageResponse{}, nil
}

func (n *Node) DeployModule(ctx context.Context, req *api.DeployModuleRequest) (*api.DeployModuleResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	proof, err := n.wallet.DeployModule(ctx, req.ModuleBytes)
	if err != nil {
		return nil, err
	}
	return &api.DeployModuleResponse{TransactionWithProof: proof}, nil
}

// run proposes a transaction to remote and applies it on both sides.
func (n *Node) run(ctx context.Context, remote offchain.Address, propose func() (*channel.Txn, error)) (*channel.Txn, error) {
	if !n.isKnown(remote) {
		return nil, errors.ErrState.Newf("not connected to %s", remote)
	}
	txn, err := propose()
	if err != nil {
		return nil, err
	}
	hash, err := txn.Hash()
	if err != nil {
		return nil, err
	}

	reply, err := n.exchange(ctx, remote, &ProtocolMsg{Kind: KindPropose, Hash: hash, Txn: txn})
	if err != nil {
		if reply != nil {
			// The counterparty refused, the proposal will never be
			// confirmed.
			if cerr := n.wallet.ClearPending(remote, txn); cerr != nil {
				n.logger.Error("cannot clear pending proposal", "err", cerr)
			}
		}
		return nil, errors.Wrap(err, "propose")
	}
	if reply.Kind != KindConfirm || !reply.Txn.SameRequest(txn) {
		return nil, errors.ErrMismatch.New("confirmation of another transaction")
	}
	confirmed := reply.Txn

	if _, err := n.wallet.ApplyTxn(ctx, confirmed); err != nil {
		return nil, err
	}
	if _, err := n.exchange(ctx, remote, &ProtocolMsg{Kind: KindApply, Hash: hash, Txn: confirmed}); err != nil {
		return nil, errors.Wrap(err, "counterparty apply")
	}
	return confirmed, nil
}

// exchange sends msg and waits for the reply to the same hash. A rejection
// gives the reply together with the error it carries.
func (n *Node) exchange(ctx context.Context, remote offchain.Address, msg *ProtocolMsg) (*ProtocolMsg, error) {
	key := string(msg.Hash)
	replies := make(chan *ProtocolMsg, 1)
	n.mu.Lock()
	n.waiting[key] = replies
	n.mu.Unlock()
	defer func() {
		n.mu.Lock()
		delete(n.waiting, key)
		n.mu.Unlock()
	}()

	if err := n.send(ctx, remote, msg); err != nil {
		return nil, err
	}
	select {
	case reply := <-replies:
		if err := reply.Err(); err != nil {
			return reply, err
		}
		return reply, nil
	case <-ctx.Done():
		return nil, errors.Wrap(errors.ErrTimeout, "waiting for counterparty")
	}
}

func (n *Node) send(ctx context.Context, remote offchain.Address, msg *ProtocolMsg) error {
	raw, err := encodeMsg(msg)
	if err != nil {
		return err
	}
	return n.peer.Send(ctx, remote, raw)
}

// Serve answers the peers until the context is cancelled.
func (n *Node) Serve(ctx context.Context) error {
	n.logger.Info("serving")
	for {
		in, err := n.peer.Receive(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		default:
			return err
		}
		msg, err := decodeMsg(in.Data)
		if err != nil {
			n.logger.Error("invalid message", "from", in.From, "err", err)
			continue
		}
		n.handle(ctx, in.From, msg)
	}
}

func (n *Node) handle(ctx context.Context, from offchain.Address, msg *ProtocolMsg) {
	var reply *ProtocolMsg
	switch msg.Kind {
	case KindHello:
		return
	case KindPropose:
		reply = n.verify(ctx, from, msg)
	case KindApply:
		reply = n.apply(ctx, from, msg)
	default:
		n.mu.Lock()
		replies, ok := n.waiting[string(msg.Hash)]
		n.mu.Unlock()
		if !ok {
			n.logger.Debug("unexpected reply", "from", from, "kind", msg.Kind)
			return
		}
		select {
		case replies <- msg:
		default:
		}
		return
	}
	if err := n.send(ctx, from, reply); err != nil {
		n.logger.Error("cannot reply", "to", from, "err", err)
	}
}

func (n *Node) verify(ctx context.Context, from offchain.Address, msg *ProtocolMsg) *ProtocolMsg {
	if !sentBy(msg.Txn, from) {
		return reject(msg.Hash, errors.ErrUnauthorized.New("proposal of another sender"))
	}
	confirmed, err := n.wallet.VerifyTxn(ctx, msg.Txn)
	if err != nil {
		n.logger.Info("proposal rejected", "from", from, "err", err)
		return reject(msg.Hash, err)
	}
	return &ProtocolMsg{Kind: KindConfirm, Hash: msg.Hash, Txn: confirmed}
}

func (n *Node) apply(ctx context.Context, from offchain.Address, msg *ProtocolMsg) *ProtocolMsg {
	if !sentBy(msg.Txn, from) {
		return reject(msg.Hash, errors.ErrUnauthorized.New("transaction of another sender"))
	}
	if _, err := n.wallet.ApplyTxn(ctx, msg.Txn); err != nil {
		n.logger.Error("apply failed", "from", from, "err", err)
		return reject(msg.Hash, err)
	}
	return &ProtocolMsg{Kind: KindApplied, Hash: msg.Hash}
}

func sentBy(txn *channel.Txn, from offchain.Address) bool {
	return txn.Request != nil && from.Equals(txn.Request.Proposer)
}
