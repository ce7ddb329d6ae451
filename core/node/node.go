// Package node drives one participant's transaction and consensus loop: it
// owns a mailbox on the Transport, decodes inbound wire frames, and feeds
// decoded transactions into its chain's mempool.
package node

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"chainmesh/core/blockchain"
	"chainmesh/core/consensus"
	"chainmesh/core/logging"
	"chainmesh/core/metrics"
	"chainmesh/core/queue"
	"chainmesh/core/status"
	"chainmesh/core/transport"
	"chainmesh/core/types"
)

// encodeTxFrame renders tx as "from|to|payload|type|tx_id".
func encodeTxFrame(tx types.Transaction) string {
	return fmt.Sprintf("%s|%s|%s|%d|%s", tx.From, tx.To, tx.Payload, int(tx.Type), tx.TxID)
}

// decodeTxFrame parses a frame built by encodeTxFrame. It requires at least
// four pipes; a short frame is rejected rather than guessed at, and any
// further pipes stay inside the tx_id field.
func decodeTxFrame(frame string) (types.Transaction, error) {
	parts := strings.SplitN(frame, "|", 5)
	if len(parts) != 5 {
		return types.Transaction{}, status.New(status.Serialization, "malformed transaction frame")
	}
	typeInt, err := strconv.Atoi(parts[3])
	if err != nil {
		return types.Transaction{}, status.New(status.Serialization, "malformed transaction type")
	}
	return types.Transaction{
		From:    parts[0],
		To:      parts[1],
		Payload: parts[2],
		Type:    types.TxType(typeInt),
		TxID:    parts[4],
	}, nil
}

// Node runs the receive loop for one chain participant: it decodes inbound
// NodeMessage frames off its inbox and dispatches by kind. Block and IBC
// frames are accepted but currently no-op; only Transaction frames feed the
// mempool.
type Node struct {
	id      string
	address string
	chain   *blockchain.Chain
	engine  consensus.Engine
	tr      *transport.Transport
	metrics *metrics.Sink

	inbox   *queue.Queue[types.NodeMessage]
	running atomic.Bool
	done    chan struct{}
}

// New constructs a Node, registers its mailbox on tr, and registers its id
// with chain. It does not start the receive loop; call Start for that.
func New(id, address string, chain *blockchain.Chain, engine consensus.Engine, tr *transport.Transport, m *metrics.Sink) (*Node, error) {
	n := &Node{
		id:      id,
		address: address,
		chain:   chain,
		engine:  engine,
		tr:      tr,
		metrics: m,
		inbox:   queue.New[types.NodeMessage](0),
	}

	if err := tr.RegisterEndpoint(address, n.onBytes); err != nil {
		return nil, fmt.Errorf("node: register endpoint: %w", err)
	}
	chain.RegisterNodeID(id)
	return n, nil
}

// ID returns the node's identifier.
func (n *Node) ID() string { return n.id }

// Address returns the node's mailbox address.
func (n *Node) Address() string { return n.address }

// Start launches the receive loop in a new goroutine. Starting an
// already-running node fails with InvalidState.
func (n *Node) Start() error {
	if n.running.Swap(true) {
		return status.New(status.InvalidState, "node already running")
	}
	n.done = make(chan struct{})
	go n.runLoop()
	logging.Info(context.Background(), "node started", "node", n.id, "address", n.address)
	return nil
}

// Stop closes the inbox and waits for the receive loop to exit. Stopping an
// already-stopped node is a no-op.
func (n *Node) Stop() {
	if !n.running.Swap(false) {
		return
	}
	n.inbox.Close()
	<-n.done
	logging.Info(context.Background(), "node stopped", "node", n.id)
}

// SubmitTransaction adds tx to the local mempool directly and loops it back
// through the transport as a Transaction-kind NodeMessage, the same path a
// transaction arriving from a peer would take.
func (n *Node) SubmitTransaction(tx types.Transaction) {
	n.chain.Mempool().Add(tx)

	msg := types.NodeMessage{
		FromAddress: n.address,
		Kind:        types.KindTransaction,
		Bytes:       encodeTxFrame(tx),
	}
	if err := n.tr.Send(n.address, n.address, types.EncodeNodeMessage(msg)); err != nil {
		logging.Warn(context.Background(), "failed to loop back submitted tx", "node", n.id, "err", err)
	}
	n.metrics.IncCounter("tx_submitted", 1)
}

// onBytes is the transport's delivery callback: it decodes the wire frame
// and pushes the result onto the inbox. A malformed frame is logged and
// dropped, never fatal.
func (n *Node) onBytes(bytes string) {
	msg, err := types.DecodeNodeMessage(bytes)
	if err != nil {
		logging.Error(context.Background(), "failed to decode node message", "node", n.id, "err", err)
		return
	}
	n.inbox.Push(msg)
}

func (n *Node) runLoop() {
	defer close(n.done)
	for {
		msg, ok := n.inbox.WaitPop()
		if !ok {
			return
		}

		switch msg.Kind {
		case types.KindTransaction:
			n.handleTransaction(msg)
		case types.KindBlock:
			logging.Debug(context.Background(), "received block message (no-op)", "node", n.id)
		case types.KindIBC:
			logging.Debug(context.Background(), "received ibc message (no-op)", "node", n.id)
		default:
			logging.Warn(context.Background(), "received unknown message kind", "node", n.id)
		}
	}
}

func (n *Node) handleTransaction(msg types.NodeMessage) {
	tx, err := decodeTxFrame(msg.Bytes)
	if err != nil {
		logging.Warn(context.Background(), "malformed tx message", "node", n.id, "err", err)
		return
	}
	n.chain.Mempool().Add(tx)
	n.metrics.IncCounter("tx_received", 1)
	logging.Debug(context.Background(), "received tx", "node", n.id, "from", tx.From)
}

// Snapshot is a point-in-time view of the node's chain head, pending
// mempool size, and consensus engine name, as returned by SnapshotState.
type Snapshot struct {
	ChainHeight   uint64
	MempoolSize   int
	ConsensusName string
}

func (n *Node) SnapshotState() Snapshot {
	head := n.chain.Head()
	name := "none"
	if n.engine != nil {
		name = n.engine.Name()
	}
	return Snapshot{
		ChainHeight:   head.Header.Height,
		MempoolSize:   n.chain.Mempool().Size(),
		ConsensusName: name,
	}
}
