/*
Package network moves opaque payloads between channel participants.

Every frame on the wire is an amino encoded Message: a Payload carrying the
data, or the Ack a receiver returns for the payload with the same id.
*/
package network

import (
	"sync"
	"time"

	"github.com/iov-one/offchain/errors"
	amino "github.com/tendermint/go-amino"
)

var cdc = amino.NewCodec()

func init() {
	cdc.RegisterInterface((*Message)(nil), nil)
	cdc.RegisterConcrete(Ack{}, "offchain/Ack", nil)
	cdc.RegisterConcrete(Payload{}, "offchain/Payload", nil)
}

// Message is either an Ack or a Payload.
type Message interface {
	MessageID() uint64
}

// Ack confirms the reception of the payload with the same id.
type Ack struct {
	ID uint64
}

func (a Ack) MessageID() uint64 { return a.ID }

// Payload carries data to a peer.
type Payload struct {
	ID   uint64
	Data []byte
}

func (p Payload) MessageID() uint64 { return p.ID }

// NewAck returns the acknowledgement of the payload id.
func NewAck(id uint64) Message {
	return Ack{ID: id}
}

// Encode serializes a message with its type prefix.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, errors.ErrInput.New("nil message")
	}
	bz, err := cdc.MarshalBinaryBare(m)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	return bz, nil
}

// Decode parses bytes produced by Encode.
func Decode(bz []byte) (msg Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			msg, err = nil, errors.ErrDecode.Newf("%v", r)
		}
	}()
	if len(bz) == 0 {
		return nil, errors.ErrDecode.New("empty message")
	}
	if err := cdc.UnmarshalBinaryBare(bz, &msg); err != nil {
		return nil, errors.Wrap(errors.ErrDecode, err.Error())
	}
	if msg == nil {
		return nil, errors.ErrDecode.New("no message")
	}
	return msg, nil
}

// IDGenerator mints payload ids. Ids start at the Unix time in
// milliseconds and are strictly increasing, also when several payloads are
// created within the same millisecond.
type IDGenerator struct {
	mu   sync.Mutex
	last uint64
	now  func() time.Time
}

// NewIDGenerator returns a generator reading the wall clock.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now}
}

// Next returns a new id.
func (g *IDGenerator) Next() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := uint64(g.now().UnixNano() / int64(time.Millisecond))
	if id <= g.last {
		id = g.last + 1
	}
	g.last = id
	return id
}

// NewPayload wraps data into a payload with a new id.
func (g *IDGenerator) NewPayload(data []byte) (Message, uint64) {
	id := g.Next()
	return Payload{ID: id, Data: data}, id
}
