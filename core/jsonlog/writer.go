// Package jsonlog writes append-only JSONL artifact streams for offline
// analysis of a run: transaction lifecycle events, IBC events, network
// drops, node state snapshots, and relayer state snapshots. Each category
// gets its own file and its own mutex, mirroring how Metrics guards a
// single output stream.
package jsonlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LogCategory names one of the five detailed-logging streams a Writer can
// produce. Categories are independently enabled/disabled.
type LogCategory int

const (
	Transactions LogCategory = iota
	IBCEvents
	NetworkDrops
	NodeState
	RelayerState
)

// TxEventType names a point in a transaction's observed lifecycle.
type TxEventType int

const (
	TxCreated TxEventType = iota
	TxSubmitted
	TxReceived
	TxIncludedInBlock
	TxDropped
)

func (e TxEventType) String() string {
	switch e {
	case TxCreated:
		return "created"
	case TxSubmitted:
		return "submitted"
	case TxReceived:
		return "received"
	case TxIncludedInBlock:
		return "included_in_block"
	case TxDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// IBCEventType names a point in an IBC packet's observed lifecycle.
type IBCEventType int

const (
	PacketCreated IBCEventType = iota
	PacketRelayed
	PacketReceived
	AckGenerated
	AckRelayed
	AckReceived
)

func (e IBCEventType) String() string {
	switch e {
	case PacketCreated:
		return "packet_created"
	case PacketRelayed:
		return "packet_relayed"
	case PacketReceived:
		return "packet_received"
	case AckGenerated:
		return "ack_generated"
	case AckRelayed:
		return "ack_relayed"
	case AckReceived:
		return "ack_received"
	default:
		return "unknown"
	}
}

type txEventRecord struct {
	Time        string `json:"time"`
	Event       string `json:"event"`
	TxID        string `json:"tx_id"`
	TxType      string `json:"tx_type"`
	From        string `json:"from"`
	To          string `json:"to"`
	Payload     string `json:"payload"`
	ChainID     string `json:"chain_id,omitempty"`
	NodeID      string `json:"node_id,omitempty"`
	BlockHeight uint64 `json:"block_height,omitempty"`
}

type ibcEventRecord struct {
	Time       string  `json:"time"`
	Event      string  `json:"event"`
	SrcChain   string  `json:"src_chain"`
	DstChain   string  `json:"dst_chain"`
	SrcPort    string  `json:"src_port"`
	SrcChannel string  `json:"src_channel"`
	DstPort    string  `json:"dst_port"`
	DstChannel string  `json:"dst_channel"`
	Sequence   uint64  `json:"sequence"`
	Payload    string  `json:"payload"`
	RelayerID  string  `json:"relayer_id,omitempty"`
	LatencyMs  float64 `json:"latency_ms,omitempty"`
}

type networkDropRecord struct {
	Time        string `json:"time"`
	From        string `json:"from"`
	To          string `json:"to"`
	MessageType string `json:"message_type"`
	MessageSize int    `json:"message_size"`
	DropReason  string `json:"drop_reason"`
}

type nodeStateRecord struct {
	Time            string `json:"time"`
	ChainID         string `json:"chain_id"`
	NodeID          string `json:"node_id"`
	BlockHeight     uint64 `json:"block_height"`
	BlockHash       string `json:"block_hash"`
	MempoolSize     int    `json:"mempool_size"`
	ConsensusState  string `json:"consensus_state"`
	AdditionalData  string `json:"additional_data,omitempty"`
}

type relayerStateRecord struct {
	Time           string `json:"time"`
	RelayerID      string `json:"relayer_id"`
	EventType      string `json:"event_type"`
	PacketsRelayed uint64 `json:"packets_relayed"`
	AcksRelayed    uint64 `json:"acks_relayed"`
	Failures       uint64 `json:"failures"`
	AdditionalData string `json:"additional_data,omitempty"`
}

type stream struct {
	mu  sync.Mutex
	out *os.File
}

func openStream(dir, filename string) (*stream, error) {
	f, err := os.OpenFile(filepath.Join(dir, filename), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("jsonlog: open %s: %w", filename, err)
	}
	return &stream{out: f}, nil
}

func (s *stream) write(v any) error {
	if s == nil {
		return nil
	}
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("jsonlog: marshal: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.out.Write(append(line, '\n'))
	return err
}

func (s *stream) close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Close()
}

// Writer coordinates the five detailed-logging streams. Per-node and
// per-relayer state streams are created on first use and cached by name.
type Writer struct {
	dir string

	transactions *stream
	ibcEvents    *stream
	networkDrops *stream

	nodeLogsMu sync.Mutex
	nodeLogs   map[string]*stream

	relayerLogsMu sync.Mutex
	relayerLogs   map[string]*stream

	enabledMu sync.RWMutex
	enabled   map[LogCategory]bool
}

// Open creates a Writer rooted at dir, opening the three always-on streams
// (transactions, IBC events, network drops) immediately. dir must already
// exist.
func Open(dir string) (*Writer, error) {
	w := &Writer{
		dir:         dir,
		nodeLogs:    make(map[string]*stream),
		relayerLogs: make(map[string]*stream),
		enabled: map[LogCategory]bool{
			Transactions: true,
			IBCEvents:    true,
			NetworkDrops: true,
			NodeState:    true,
			RelayerState: true,
		},
	}

	var err error
	if w.transactions, err = openStream(dir, "transactions.jsonl"); err != nil {
		return nil, err
	}
	if w.ibcEvents, err = openStream(dir, "ibc_events.jsonl"); err != nil {
		return nil, err
	}
	if w.networkDrops, err = openStream(dir, "network_drops.jsonl"); err != nil {
		return nil, err
	}
	return w, nil
}

// EnableCategory turns a category's logging on or off. Disabled categories
// silently drop writes rather than erroring, so callers don't need to
// branch on configuration at every call site.
func (w *Writer) EnableCategory(cat LogCategory, enabled bool) {
	w.enabledMu.Lock()
	defer w.enabledMu.Unlock()
	w.enabled[cat] = enabled
}

func (w *Writer) isEnabled(cat LogCategory) bool {
	w.enabledMu.RLock()
	defer w.enabledMu.RUnlock()
	return w.enabled[cat]
}

func nowISO8601() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

// LogTransactionEvent appends one transaction lifecycle record, if the
// Transactions category is enabled.
func (w *Writer) LogTransactionEvent(event TxEventType, txID, txType, from, to, payload, chainID, nodeID string, blockHeight uint64) error {
	if !w.isEnabled(Transactions) {
		return nil
	}
	return w.transactions.write(txEventRecord{
		Time: nowISO8601(), Event: event.String(), TxID: txID, TxType: txType,
		From: from, To: to, Payload: payload, ChainID: chainID, NodeID: nodeID, BlockHeight: blockHeight,
	})
}

// LogIBCEvent appends one IBC lifecycle record, if the IBCEvents category is
// enabled.
func (w *Writer) LogIBCEvent(event IBCEventType, srcChain, dstChain, srcPort, srcChannel, dstPort, dstChannel string, sequence uint64, payload, relayerID string, latencyMs float64) error {
	if !w.isEnabled(IBCEvents) {
		return nil
	}
	return w.ibcEvents.write(ibcEventRecord{
		Time: nowISO8601(), Event: event.String(), SrcChain: srcChain, DstChain: dstChain,
		SrcPort: srcPort, SrcChannel: srcChannel, DstPort: dstPort, DstChannel: dstChannel,
		Sequence: sequence, Payload: payload, RelayerID: relayerID, LatencyMs: latencyMs,
	})
}

// LogNetworkDrop appends one dropped-message record, if the NetworkDrops
// category is enabled.
func (w *Writer) LogNetworkDrop(from, to, messageType string, messageSize int, dropReason string) error {
	if !w.isEnabled(NetworkDrops) {
		return nil
	}
	return w.networkDrops.write(networkDropRecord{
		Time: nowISO8601(), From: from, To: to, MessageType: messageType,
		MessageSize: messageSize, DropReason: dropReason,
	})
}

func (w *Writer) getNodeStateStream(chainID, nodeID string) (*stream, error) {
	key := chainID + "/" + nodeID
	w.nodeLogsMu.Lock()
	defer w.nodeLogsMu.Unlock()
	if s, ok := w.nodeLogs[key]; ok {
		return s, nil
	}
	s, err := openStream(w.dir, fmt.Sprintf("node_state_%s_%s.jsonl", chainID, nodeID))
	if err != nil {
		return nil, err
	}
	w.nodeLogs[key] = s
	return s, nil
}

// LogNodeState appends one node-state snapshot, creating that node's stream
// on first use, if the NodeState category is enabled.
func (w *Writer) LogNodeState(chainID, nodeID string, blockHeight uint64, blockHash string, mempoolSize int, consensusState, additionalData string) error {
	if !w.isEnabled(NodeState) {
		return nil
	}
	s, err := w.getNodeStateStream(chainID, nodeID)
	if err != nil {
		return err
	}
	return s.write(nodeStateRecord{
		Time: nowISO8601(), ChainID: chainID, NodeID: nodeID, BlockHeight: blockHeight,
		BlockHash: blockHash, MempoolSize: mempoolSize, ConsensusState: consensusState, AdditionalData: additionalData,
	})
}

func (w *Writer) getRelayerStateStream(relayerID string) (*stream, error) {
	w.relayerLogsMu.Lock()
	defer w.relayerLogsMu.Unlock()
	if s, ok := w.relayerLogs[relayerID]; ok {
		return s, nil
	}
	s, err := openStream(w.dir, fmt.Sprintf("relayer_state_%s.jsonl", relayerID))
	if err != nil {
		return nil, err
	}
	w.relayerLogs[relayerID] = s
	return s, nil
}

// LogRelayerState appends one relayer-state snapshot, creating that
// relayer's stream on first use, if the RelayerState category is enabled.
func (w *Writer) LogRelayerState(relayerID, eventType string, packetsRelayed, acksRelayed, failures uint64, additionalData string) error {
	if !w.isEnabled(RelayerState) {
		return nil
	}
	s, err := w.getRelayerStateStream(relayerID)
	if err != nil {
		return err
	}
	return s.write(relayerStateRecord{
		Time: nowISO8601(), RelayerID: relayerID, EventType: eventType,
		PacketsRelayed: packetsRelayed, AcksRelayed: acksRelayed, Failures: failures, AdditionalData: additionalData,
	})
}

// Close closes every stream the Writer has opened, including per-node and
// per-relayer streams created on demand.
func (w *Writer) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(w.transactions.close())
	record(w.ibcEvents.close())
	record(w.networkDrops.close())

	w.nodeLogsMu.Lock()
	for _, s := range w.nodeLogs {
		record(s.close())
	}
	w.nodeLogsMu.Unlock()

	w.relayerLogsMu.Lock()
	for _, s := range w.relayerLogs {
		record(s.close())
	}
	w.relayerLogsMu.Unlock()

	return firstErr
}
