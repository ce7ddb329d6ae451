package ibc

import (
	"sync"

	"chainmesh/core/status"
)

// State is the lifecycle of a Channel. A channel starts in Init, moves to
// Open, and once Closed never reopens.
type State int

const (
	Init State = iota
	Open
	Closed
)

// Channel is a unidirectional, sequenced endpoint bound to a chain, port,
// and channel id. It assigns an increasing sequence number to each packet
// it sends and rejects inbound packets that arrive out of order.
type Channel struct {
	mu      sync.Mutex
	chainID string
	port    string
	chanID  string
	state   State
	nextSeq uint64
}

// NewChannel returns a channel in the Init state with the first sequence
// number set to 1.
func NewChannel(chainID, port, chanID string) *Channel {
	return &Channel{chainID: chainID, port: port, chanID: chanID, state: Init, nextSeq: 1}
}

// Open transitions Init to Open. Opening an already-Open channel returns
// InvalidState and leaves it Open; a Closed channel cannot reopen.
func (c *Channel) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Closed {
		return status.New(status.ChannelClosed, "channel is closed")
	}
	if c.state == Open {
		return status.New(status.InvalidState, "channel already open")
	}
	c.state = Open
	return nil
}

// Close transitions any non-Closed state to Closed.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Closed {
		return status.New(status.ChannelClosed, "channel already closed")
	}
	c.state = Closed
	return nil
}

// State returns the channel's current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// MakePacket builds an outbound data packet addressed to the given
// destination, stamping it with this channel's next sequence number. The
// channel must be Open.
func (c *Channel) MakePacket(dstChain, dstPort, dstChan, payload string) (Packet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Open {
		return Packet{}, status.New(status.InvalidState, "channel not open")
	}
	pkt := Packet{
		Type:       Data,
		SrcChain:   c.chainID,
		DstChain:   dstChain,
		SrcPort:    c.port,
		SrcChannel: c.chanID,
		DstPort:    dstPort,
		DstChannel: dstChan,
		Sequence:   c.nextSeq,
		Payload:    payload,
	}
	c.nextSeq++
	return pkt, nil
}

// AcceptPacket validates an inbound packet's sequence number and, if it
// matches, advances the channel's expected sequence. The channel must be
// Open; a gap or duplicate sequence is rejected without advancing state.
func (c *Channel) AcceptPacket(pkt Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Open {
		return status.New(status.ChannelClosed, "channel not open")
	}
	if pkt.Sequence != c.nextSeq {
		return status.New(status.InvalidState, "packet sequence mismatch")
	}
	c.nextSeq++
	return nil
}
