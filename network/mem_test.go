package network

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/iov-one/offchain"
	"github.com/iov-one/offchain/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func addr(b byte) offchain.Address {
	return offchain.Address(bytes.Repeat([]byte{b}, offchain.AddressLength))
}

// silentPeer registers a peer without a receive loop, its frames stay in the
// inbox until the test reads them.
func silentPeer(net *MemNetwork, a offchain.Address) *Peer {
	p := &Peer{
		addr:    a,
		net:     net,
		ids:     NewIDGenerator(),
		logger:  net.logger,
		inbox:   make(chan frame, queueSize),
		waiting: make(map[ackKey]chan struct{}),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	net.mu.Lock()
	net.peers[string(a)] = p
	net.mu.Unlock()
	return p
}

func TestMemNetwork(t *testing.T) {
	Convey("Given two peers", t, func() {
		net := NewMemNetwork(nil)
		alice, err := net.Join(addr(1))
		So(err, ShouldBeNil)
		bob, err := net.Join(addr(2))
		So(err, ShouldBeNil)
		Reset(func() {
			alice.Close()
			bob.Close()
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		Reset(cancel)

		Convey("A peer cannot join twice", func() {
			_, err := net.Join(addr(1))
			So(errors.ErrDuplicate.Is(err), ShouldBeTrue)
		})

		Convey("A sent payload is received and acknowledged", func() {
			sent := make(chan error, 1)
			go func() { sent <- alice.Send(ctx, bob.Addr(), []byte("hello")) }()

			in, err := bob.Receive(ctx)
			So(err, ShouldBeNil)
			So(in.From, ShouldResemble, alice.Addr())
			So(in.Data, ShouldResemble, []byte("hello"))
			So(<-sent, ShouldBeNil)
		})

		Convey("Both peers can send to each other at once", func() {
			sent := make(chan error, 2)
			go func() { sent <- alice.Send(ctx, bob.Addr(), []byte("ping")) }()
			go func() { sent <- bob.Send(ctx, alice.Addr(), []byte("pong")) }()
			So(<-sent, ShouldBeNil)
			So(<-sent, ShouldBeNil)

			in, err := alice.Receive(ctx)
			So(err, ShouldBeNil)
			So(in.Data, ShouldResemble, []byte("pong"))
			in, err = bob.Receive(ctx)
			So(err, ShouldBeNil)
			So(in.Data, ShouldResemble, []byte("ping"))
		})

		Convey("Malformed frames are dropped and counted", func() {
			So(net.Inject(ctx, alice.Addr(), bob.Addr(), []byte{0xde, 0xad}), ShouldBeNil)
			So(net.Inject(ctx, alice.Addr(), bob.Addr(), nil), ShouldBeNil)

			// Frames are handled in order, a valid one behind them
			// proves they were processed.
			go alice.Send(ctx, bob.Addr(), []byte("after"))
			in, err := bob.Receive(ctx)
			So(err, ShouldBeNil)
			So(in.Data, ShouldResemble, []byte("after"))
			So(bob.Dropped(), ShouldEqual, 2)
		})

		Convey("Sending to an unknown peer fails", func() {
			err := alice.Send(ctx, addr(3), []byte("lost"))
			So(errors.ErrNetwork.Is(err), ShouldBeTrue)
		})

		Convey("A payload that is never acknowledged times out", func() {
			// A peer that joined but whose loop is stopped keeps
			// its frames without answering.
			carol, err := net.Join(addr(3))
			So(err, ShouldBeNil)
			close(carol.quit)
			<-carol.done

			short, stop := context.WithTimeout(ctx, 20*time.Millisecond)
			defer stop()
			err = alice.Send(short, carol.Addr(), []byte("hello"))
			So(err, ShouldNotBeNil)
		})

		Convey("Only the recipient can acknowledge a payload", func() {
			carol := silentPeer(net, addr(3))
			nextID := func() uint64 {
				f := <-carol.inbox
				msg, err := Decode(f.raw)
				So(err, ShouldBeNil)
				So(f.from, ShouldResemble, alice.Addr())
				return msg.MessageID()
			}

			short, stop := context.WithTimeout(ctx, 100*time.Millisecond)
			defer stop()
			sent := make(chan error, 1)
			go func() { sent <- alice.Send(short, carol.Addr(), []byte("hello")) }()
			forged, err := Encode(NewAck(nextID()))
			So(err, ShouldBeNil)
			So(net.Inject(ctx, bob.Addr(), alice.Addr(), forged), ShouldBeNil)
			So(errors.ErrTimeout.Is(<-sent), ShouldBeTrue)

			go func() { sent <- alice.Send(ctx, carol.Addr(), []byte("again")) }()
			ack, err := Encode(NewAck(nextID()))
			So(err, ShouldBeNil)
			So(net.Inject(ctx, carol.Addr(), alice.Addr(), ack), ShouldBeNil)
			So(<-sent, ShouldBeNil)
		})

		Convey("Receive honours the context", func() {
			short, stop := context.WithTimeout(ctx, 10*time.Millisecond)
			defer stop()
			_, err := bob.Receive(short)
			So(errors.ErrTimeout.Is(err), ShouldBeTrue)
		})
	})
}
