// Package blockchain models a single chain: its ledger, mempool, IBC
// channels and router, and the event/metric side effects those produce.
package blockchain

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"chainmesh/core/eventbus"
	"chainmesh/core/ibc"
	"chainmesh/core/logging"
	"chainmesh/core/mempool"
	"chainmesh/core/metrics"
	"chainmesh/core/status"
	"chainmesh/core/types"
)

func channelKey(port, chanID string) string {
	return port + ":" + chanID
}

// Chain is one chain's full local state. Its ledger and IBC operations are
// serialized by a per-chain mutex: the original implementation used a global
// mutex shared by every chain, which serialized unrelated chains against
// each other for no reason. Chain gets its own lock instead. The channel
// directory, mempool, and router each also carry their own lock, and the
// mempool is mutated through Mempool() without taking the chain mutex.
type Chain struct {
	mu sync.Mutex

	id      string
	ledger  []types.Block
	nodeIDs []string

	channelsMu sync.Mutex
	channels   map[string]*ibc.Channel

	mempool *mempool.Mempool
	router  *ibc.Router

	bus     *eventbus.Bus
	metrics *metrics.Sink
}

// New creates a Chain seeded with a genesis block at height 0.
func New(id string, bus *eventbus.Bus, m *metrics.Sink) *Chain {
	return &Chain{
		id:       id,
		ledger:   []types.Block{types.Genesis(id)},
		channels: make(map[string]*ibc.Channel),
		mempool:  mempool.New(),
		router:   ibc.NewRouter(),
		bus:      bus,
		metrics:  m,
	}
}

// ID returns the chain's identifier.
func (c *Chain) ID() string {
	return c.id
}

// Mempool returns the chain's pending-transaction buffer.
func (c *Chain) Mempool() *mempool.Mempool {
	return c.mempool
}

// Router returns the chain's IBC port/channel binding table.
func (c *Chain) Router() *ibc.Router {
	return c.router
}

func (c *Chain) getOrCreateChannel(port, chanID string) *ibc.Channel {
	c.channelsMu.Lock()
	defer c.channelsMu.Unlock()

	key := channelKey(port, chanID)
	if ch, ok := c.channels[key]; ok {
		return ch
	}
	ch := ibc.NewChannel(c.id, port, chanID)
	c.channels[key] = ch
	logging.Info(context.Background(), "created ibc channel", "chain", c.id, "key", key)
	return ch
}

// OpenChannel binds (port, chanID) in the router and opens the underlying
// persistent channel. Opening a channel that is already open is treated as
// success, since the router binding is what actually changed.
func (c *Chain) OpenChannel(port, chanID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.router.Bind(port, chanID); err != nil {
		logging.Warn(context.Background(), "failed to bind channel", "chain", c.id, "err", err)
		return err
	}

	ch := c.getOrCreateChannel(port, chanID)
	if err := ch.Open(); err != nil && !status.Is(err, status.InvalidState) {
		logging.Warn(context.Background(), "failed to open channel", "chain", c.id, "err", err)
		return err
	}

	logging.Info(context.Background(), "channel opened and bound", "chain", c.id, "port", port, "chan", chanID)
	return nil
}

// CloseChannel only unbinds the router entry. The underlying channel's
// sequence state is left intact so a later rebind resumes sequencing where
// it left off rather than replaying from 1.
func (c *Chain) CloseChannel(port, chanID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.router.Unbind(port, chanID)
	if err == nil {
		logging.Info(context.Background(), "channel closed", "chain", c.id, "port", port, "chan", chanID)
	} else {
		logging.Warn(context.Background(), "failed to close channel", "chain", c.id, "err", err)
	}
	return err
}

// SendIBC creates and publishes an outbound packet from (port, chanID) to
// the given destination. The channel is opened on demand if it does not
// exist yet.
func (c *Chain) SendIBC(port, chanID, dstChain, dstPort, dstChan, payload string) (ibc.Packet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := c.getOrCreateChannel(port, chanID)
	if err := ch.Open(); err != nil && !status.Is(err, status.InvalidState) {
		return ibc.Packet{}, err
	}

	pkt, err := ch.MakePacket(dstChain, dstPort, dstChan, payload)
	if err != nil {
		logging.Warn(context.Background(), "failed to make ibc packet", "chain", c.id, "err", err)
		return ibc.Packet{}, err
	}

	c.bus.Publish(eventbus.Event{Kind: eventbus.IBCPacketSend, ChainID: c.id, Detail: ibc.Serialize(pkt)})
	c.metrics.IncCounter("ibc_packets_sent", 1)
	return pkt, nil
}

// OnIBCPacket delivers an inbound packet to its destination channel,
// auto-opening that channel if this is its first use. On success it
// publishes IBCPacketRecv and synthesizes and publishes an acknowledgement.
func (c *Chain) OnIBCPacket(pkt ibc.Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := c.getOrCreateChannel(pkt.DstPort, pkt.DstChannel)
	if err := ch.Open(); err != nil && !status.Is(err, status.InvalidState) {
		return err
	}

	if err := ch.AcceptPacket(pkt); err != nil {
		logging.Warn(context.Background(), "failed to accept ibc packet", "chain", c.id, "err", err)
		return err
	}

	c.bus.Publish(eventbus.Event{Kind: eventbus.IBCPacketRecv, ChainID: c.id, Detail: "ibc packet received"})
	c.metrics.IncCounter("ibc_packets_received", 1)

	ack := ibc.Packet{
		Type:       ibc.Ack,
		SrcChain:   pkt.DstChain,
		DstChain:   pkt.SrcChain,
		SrcPort:    pkt.DstPort,
		SrcChannel: pkt.DstChannel,
		DstPort:    pkt.SrcPort,
		DstChannel: pkt.SrcChannel,
		Sequence:   pkt.Sequence,
		Payload:    "ack_" + strconv.FormatUint(pkt.Sequence, 10),
	}
	c.bus.Publish(eventbus.Event{Kind: eventbus.IBCAckSend, ChainID: c.id, Detail: ibc.Serialize(ack)})
	logging.Debug(context.Background(), "generated ack", "chain", c.id, "seq", pkt.Sequence)
	return nil
}

// OnIBCAck records receipt of an acknowledgement for a previously sent
// packet. There is no pending-ack table to resolve against: the simulation
// only observes that an ack arrived.
func (c *Chain) OnIBCAck(ack ibc.Packet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.bus.Publish(eventbus.Event{Kind: eventbus.IBCAckRecv, ChainID: c.id, Detail: "ibc ack received"})
	c.metrics.IncCounter("ibc_acks_received", 1)
	logging.Info(context.Background(), "ibc ack received", "chain", c.id, "seq", ack.Sequence)
}

// Head returns the most recently appended block.
func (c *Chain) Head() types.Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger[len(c.ledger)-1]
}

// AppendBlock adds blk to the ledger. blk.Header.Height must be exactly one
// past the current head; any other height is rejected without mutating the
// ledger.
func (c *Chain) AppendBlock(blk types.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	head := c.ledger[len(c.ledger)-1]
	if blk.Header.Height != head.Header.Height+1 {
		logging.Warn(context.Background(), "block height mismatch", "chain", c.id, "got", blk.Header.Height, "want", head.Header.Height+1)
		return status.New(status.InvalidState, fmt.Sprintf("block height mismatch: got %d, expected %d", blk.Header.Height, head.Header.Height+1))
	}

	c.ledger = append(c.ledger, blk)
	c.bus.Publish(eventbus.Event{Kind: eventbus.BlockFinalized, ChainID: c.id, Detail: fmt.Sprintf("block appended at height %d", blk.Header.Height)})
	c.metrics.IncCounter("blocks_appended", 1)
	logging.Info(context.Background(), "block appended", "chain", c.id, "height", blk.Header.Height)
	return nil
}

// RegisterNodeID records that a node drives consensus for this chain.
// Registering the same id twice is a no-op.
func (c *Chain) RegisterNodeID(nodeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range c.nodeIDs {
		if id == nodeID {
			return
		}
	}
	c.nodeIDs = append(c.nodeIDs, nodeID)
	logging.Info(context.Background(), "node registered", "chain", c.id, "node", nodeID)
}
