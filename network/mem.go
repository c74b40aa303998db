package network

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/iov-one/offchain"
	"github.com/iov-one/offchain/errors"
	"github.com/tendermint/tendermint/libs/log"
)

const queueSize = 64

type frame struct {
	from offchain.Address
	raw  []byte
}

// Inbound is a payload received from a peer.
type Inbound struct {
	From offchain.Address
	Data []byte
}

// MemNetwork routes frames between peers of the same process.
type MemNetwork struct {
	logger log.Logger

	mu    sync.RWMutex
	peers map[string]*Peer
}

// NewMemNetwork returns a network without peers.
func NewMemNetwork(logger log.Logger) *MemNetwork {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &MemNetwork{
		logger: logger.With("module", "network"),
		peers:  make(map[string]*Peer),
	}
}

// Join registers a peer under addr and starts its receive loop.
func (n *MemNetwork) Join(addr offchain.Address) (*Peer, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.peers[string(addr)]; ok {
		return nil, errors.ErrDuplicate.Newf("peer %s", addr)
	}
	p := &Peer{
		addr:     addr,
		net:      n,
		ids:      NewIDGenerator(),
		logger:   n.logger.With("peer", addr),
		inbox:    make(chan frame, queueSize),
		received: make(chan Inbound, queueSize),
		waiting:  make(map[ackKey]chan struct{}),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	n.peers[string(addr)] = p
	go p.loop()
	return p, nil
}

func (n *MemNetwork) peer(addr offchain.Address) (*Peer, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	p, ok := n.peers[string(addr)]
	return p, ok
}

// Inject delivers raw bytes to a peer as if sent by from.
func (n *MemNetwork) Inject(ctx context.Context, from, to offchain.Address, raw []byte) error {
	p, ok := n.peer(to)
	if !ok {
		return errors.ErrNetwork.Newf("unknown peer %s", to)
	}
	select {
	case p.inbox <- frame{from: from, raw: raw}:
		return nil
	case <-p.quit:
		return errors.ErrNetwork.Newf("peer %s left", to)
	case <-ctx.Done():
		return errors.Wrap(errors.ErrTimeout, "deliver")
	}
}

func (n *MemNetwork) leave(p *Peer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.peers[string(p.addr)] == p {
		delete(n.peers, string(p.addr))
	}
}

// ackKey identifies an outstanding payload by its recipient and id.
type ackKey struct {
	to string
	id uint64
}

// Peer is the network endpoint of a participant.
type Peer struct {
	addr   offchain.Address
	net    *MemNetwork
	ids    *IDGenerator
	logger log.Logger

	inbox    chan frame
	received chan Inbound

	mu      sync.Mutex
	waiting map[ackKey]chan struct{}

	dropped uint64

	closeOnce sync.Once
	quit      chan struct{}
	done      chan struct{}
}

// Addr returns the address the peer joined with.
func (p *Peer) Addr() offchain.Address {
	return p.addr
}

// Dropped returns the number of frames that could not be decoded.
func (p *Peer) Dropped() uint64 {
	return atomic.LoadUint64(&p.dropped)
}

// Send delivers data to the peer at to and waits for its acknowledgement.
func (p *Peer) Send(ctx context.Context, to offchain.Address, data []byte) error {
	msg, id := p.ids.NewPayload(data)
	raw, err := Encode(msg)
	if err != nil {
		return err
	}
	key := ackKey{to: string(to), id: id}
	acked := make(chan struct{})
	p.mu.Lock()
	p.waiting[key] = acked
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.waiting, key)
		p.mu.Unlock()
	}()

	if err := p.net.Inject(ctx, p.addr, to, raw); err != nil {
		return err
	}
	select {
	case <-acked:
		return nil
	case <-p.quit:
		return errors.ErrNetwork.New("peer closed")
	case <-ctx.Done():
		return errors.Wrapf(errors.ErrTimeout, "no ack for payload %d", id)
	}
}

// Receive returns the next payload received from any peer.
func (p *Peer) Receive(ctx context.Context) (Inbound, error) {
	select {
	case in := <-p.received:
		return in, nil
	case <-p.quit:
		return Inbound{}, errors.ErrNetwork.New("peer closed")
	case <-ctx.Done():
		return Inbound{}, errors.Wrap(errors.ErrTimeout, "receive")
	}
}

// Close leaves the network and stops the receive loop.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		p.net.leave(p)
		close(p.quit)
		<-p.done
	})
}

func (p *Peer) loop() {
	defer close(p.done)
	for {
		select {
		case <-p.quit:
			return
		case f := <-p.inbox:
			p.handle(f)
		}
	}
}

func (p *Peer) handle(f frame) {
	msg, err := Decode(f.raw)
	if err != nil {
		atomic.AddUint64(&p.dropped, 1)
		p.logger.Debug("frame dropped", "from", f.from, "err", err)
		return
	}
	switch m := msg.(type) {
	case Ack:
		// Only the recipient of a payload can acknowledge it.
		key := ackKey{to: string(f.from), id: m.ID}
		p.mu.Lock()
		acked, ok := p.waiting[key]
		if ok {
			delete(p.waiting, key)
		}
		p.mu.Unlock()
		if ok {
			close(acked)
		} else {
			p.logger.Debug("unexpected ack", "from", f.from, "id", m.ID)
		}
	case Payload:
		select {
		case p.received <- Inbound{From: f.from, Data: m.Data}:
		case <-p.quit:
			return
		}
		ack, err := Encode(NewAck(m.ID))
		if err != nil {
			p.logger.Error("cannot encode ack", "err", err)
			return
		}
		// Never block the loop on the inbox of another peer.
		go func(to offchain.Address) {
			if err := p.net.Inject(context.Background(), p.addr, to, ack); err != nil {
				p.logger.Debug("ack not delivered", "to", to, "err", err)
			}
		}(f.from)
	}
}
