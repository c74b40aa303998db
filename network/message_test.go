package network

import (
	"testing"
	"time"

	"github.com/iov-one/offchain/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMessageCodec(t *testing.T) {
	Convey("Given an encoded payload", t, func() {
		msg := Payload{ID: 42, Data: []byte("channel proposal")}
		bz, err := Encode(msg)
		So(err, ShouldBeNil)

		Convey("Decoding gives the same payload", func() {
			got, err := Decode(bz)
			So(err, ShouldBeNil)
			So(got, ShouldResemble, msg)
			So(got.MessageID(), ShouldEqual, 42)
		})

		Convey("An ack is told apart from the payload", func() {
			ack, err := Encode(NewAck(42))
			So(err, ShouldBeNil)
			So(ack, ShouldNotResemble, bz)
			got, err := Decode(ack)
			So(err, ShouldBeNil)
			So(got, ShouldResemble, Ack{ID: 42})
		})

		Convey("Corrupted bytes fail to decode", func() {
			for _, raw := range [][]byte{nil, {}, {0xff, 0xff, 0xff, 0xff, 0x01}, bz[:2]} {
				_, err := Decode(raw)
				So(errors.ErrDecode.Is(err), ShouldBeTrue)
			}
		})
	})

	Convey("Nil messages are not encoded", t, func() {
		_, err := Encode(nil)
		So(errors.ErrInput.Is(err), ShouldBeTrue)
	})
}

func TestIDGenerator(t *testing.T) {
	Convey("Given a generator with a frozen clock", t, func() {
		now := time.Unix(1500000000, 0)
		g := &IDGenerator{now: func() time.Time { return now }}

		Convey("The first id is the clock in milliseconds", func() {
			So(g.Next(), ShouldEqual, uint64(1500000000000))
		})

		Convey("Ids minted in the same millisecond are unique", func() {
			seen := make(map[uint64]bool)
			var last uint64
			for i := 0; i < 100; i++ {
				_, id := g.NewPayload([]byte{byte(i)})
				So(seen[id], ShouldBeFalse)
				So(id, ShouldBeGreaterThan, last)
				seen[id] = true
				last = id
			}
		})

		Convey("A clock going back does not reuse ids", func() {
			first := g.Next()
			now = now.Add(-time.Second)
			So(g.Next(), ShouldBeGreaterThan, first)
		})
	})
}
