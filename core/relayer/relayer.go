// Package relayer implements an off-chain forwarder that moves IBC packets
// and acknowledgements between chain mailboxes, driven by events published
// from Blockchain rather than by polling chain state.
package relayer

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"chainmesh/core/eventbus"
	"chainmesh/core/ibc"
	"chainmesh/core/logging"
	"chainmesh/core/metrics"
	"chainmesh/core/queue"
	"chainmesh/core/status"
	"chainmesh/core/transport"
	"chainmesh/core/types"
)

const pendingQueueCapacity = 1024

// Relayer subscribes to IBCPacketSend and IBCAckSend events, queues what it
// sees locally, and forwards each item to its destination chain's mailbox
// over the Transport.
type Relayer struct {
	name    string
	tr      *transport.Transport
	bus     *eventbus.Bus
	metrics *metrics.Sink
	rng     *rand.Rand

	mu        sync.Mutex
	chainAddr map[string]string
	routeDrop float64

	pendingPackets *queue.Queue[ibc.Packet]
	pendingAcks    *queue.Queue[ibc.Packet]

	packetSendToken int
	ackSendToken    int

	running atomic.Bool
	done    chan struct{}

	packetsRelayed atomic.Uint64
	acksRelayed    atomic.Uint64
	failures       atomic.Uint64
}

// New constructs a Relayer and subscribes it to bus. Its RNG is seeded
// deterministically from a hash of name, so repeated runs with the same
// topology produce the same route-drop decisions.
func New(name string, tr *transport.Transport, bus *eventbus.Bus, m *metrics.Sink) *Relayer {
	h := fnv.New64a()
	h.Write([]byte(name))

	r := &Relayer{
		name:           name,
		tr:             tr,
		bus:            bus,
		metrics:        m,
		rng:            rand.New(rand.NewSource(int64(h.Sum64()))),
		chainAddr:      make(map[string]string),
		pendingPackets: queue.New[ibc.Packet](pendingQueueCapacity),
		pendingAcks:    queue.New[ibc.Packet](pendingQueueCapacity),
	}

	r.packetSendToken = bus.Subscribe(eventbus.IBCPacketSend, r.onIBCPacketSendEvent)
	r.ackSendToken = bus.Subscribe(eventbus.IBCAckSend, r.onIBCAckSendEvent)

	logging.Info(context.Background(), "relayer initialized", "relayer", name)
	return r
}

// Name returns the relayer's identifier.
func (r *Relayer) Name() string { return r.name }

// ConnectChainMailbox records the transport address that packets destined
// for chainID should be sent to.
func (r *Relayer) ConnectChainMailbox(chainID, address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chainAddr[chainID] = address
}

// SetDropOnRoute sets the probability, independent of the transport's own
// drop rate, that a relay attempt is dropped before it is even sent.
func (r *Relayer) SetDropOnRoute(probability float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routeDrop = probability
}

func (r *Relayer) destAddr(chainID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	addr, ok := r.chainAddr[chainID]
	return addr, ok
}

func (r *Relayer) shouldDrop() bool {
	r.mu.Lock()
	rate := r.routeDrop
	r.mu.Unlock()
	return r.rng.Float64() < rate
}

func (r *Relayer) relay(pkt ibc.Packet) error {
	toAddr, ok := r.destAddr(pkt.DstChain)
	if !ok {
		return status.New(status.NotFound, "destination chain not connected")
	}
	if r.shouldDrop() {
		return status.New(status.NetworkDrop, "dropped on relayer route")
	}

	msg := types.NodeMessage{FromAddress: r.name, Kind: types.KindIBC, Bytes: ibc.Serialize(pkt)}
	return r.tr.Send(r.name, toAddr, types.EncodeNodeMessage(msg))
}

// Start launches the relay loop in a new goroutine. Starting an
// already-running relayer fails with InvalidState.
func (r *Relayer) Start() error {
	if r.running.Swap(true) {
		return status.New(status.InvalidState, "relayer already running")
	}
	r.done = make(chan struct{})
	go r.runLoop()
	logging.Info(context.Background(), "relayer started", "relayer", r.name)
	return nil
}

// Stop closes both pending queues and waits for the relay loop to exit, then
// unsubscribes from the event bus.
func (r *Relayer) Stop() {
	if !r.running.Swap(false) {
		return
	}
	r.pendingPackets.Close()
	r.pendingAcks.Close()
	<-r.done
	r.bus.Unsubscribe(r.packetSendToken)
	r.bus.Unsubscribe(r.ackSendToken)
	logging.Info(context.Background(), "relayer stopped", "relayer", r.name)
}

// runLoop tries both queues every iteration and only sleeps when neither
// yielded anything, so a packet and an ack arriving back to back are both
// drained before the loop ever sleeps.
func (r *Relayer) runLoop() {
	defer close(r.done)
	for r.running.Load() {
		processed := false

		if pkt, ok := r.pendingPackets.TryPop(); ok {
			r.handleRelay(pkt, true)
			processed = true
		}

		if ack, ok := r.pendingAcks.TryPop(); ok {
			r.handleRelay(ack, false)
			processed = true
		}

		if !processed {
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func (r *Relayer) handleRelay(pkt ibc.Packet, isPacket bool) {
	err := r.relay(pkt)
	if err != nil {
		r.failures.Add(1)
		if isPacket {
			r.metrics.IncCounter("relayer_packets_failed", 1)
		} else {
			r.metrics.IncCounter("relayer_acks_failed", 1)
		}
		logging.Warn(context.Background(), "failed to relay", "relayer", r.name, "seq", pkt.Sequence, "err", err)
		return
	}

	if isPacket {
		r.packetsRelayed.Add(1)
		r.metrics.IncCounter("relayer_packets_relayed", 1)
	} else {
		r.acksRelayed.Add(1)
		r.metrics.IncCounter("relayer_acks_relayed", 1)
	}
	logging.Debug(context.Background(), "relayed", "relayer", r.name, "seq", pkt.Sequence)
}

// onIBCPacketSendEvent decodes a published packet and, if it is a Data
// packet, enqueues it for relaying. It runs synchronously on the
// publisher's goroutine, so it must stay O(1): decode, filter, push.
func (r *Relayer) onIBCPacketSendEvent(e eventbus.Event) {
	pkt, err := ibc.Deserialize(e.Detail)
	if err != nil {
		logging.Error(context.Background(), "failed to deserialize ibc packet", "relayer", r.name, "err", err)
		r.metrics.IncCounter("relayer_deserialization_errors", 1)
		return
	}
	if pkt.Type != ibc.Data {
		return
	}
	r.pendingPackets.Push(pkt)
	r.metrics.IncCounter("relayer_packets_queued", 1)
}

// onIBCAckSendEvent mirrors onIBCPacketSendEvent for acknowledgements.
func (r *Relayer) onIBCAckSendEvent(e eventbus.Event) {
	ack, err := ibc.Deserialize(e.Detail)
	if err != nil {
		logging.Error(context.Background(), "failed to deserialize ibc ack", "relayer", r.name, "err", err)
		r.metrics.IncCounter("relayer_deserialization_errors", 1)
		return
	}
	if ack.Type != ibc.Ack {
		return
	}
	r.pendingAcks.Push(ack)
	r.metrics.IncCounter("relayer_acks_queued", 1)
}

// Stats reports cumulative relay counters.
type Stats struct {
	PacketsRelayed uint64
	AcksRelayed    uint64
	Failures       uint64
}

func (r *Relayer) StatsSnapshot() Stats {
	return Stats{
		PacketsRelayed: r.packetsRelayed.Load(),
		AcksRelayed:    r.acksRelayed.Load(),
		Failures:       r.failures.Load(),
	}
}
