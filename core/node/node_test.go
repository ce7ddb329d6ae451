package node

import (
	"testing"
	"time"

	"chainmesh/core/blockchain"
	"chainmesh/core/consensus"
	"chainmesh/core/eventbus"
	"chainmesh/core/metrics"
	"chainmesh/core/transport"
	"chainmesh/core/types"
)

func TestEncodeDecodeNodeMessageRoundTrip(t *testing.T) {
	msg := types.NodeMessage{FromAddress: "addr-a", Kind: types.KindTransaction, Bytes: "a|b|payload|0|tx_1"}
	frame := types.EncodeNodeMessage(msg)
	got, err := types.DecodeNodeMessage(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != msg {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, msg)
	}
}

func TestDecodeNodeMessageMalformedFails(t *testing.T) {
	if _, err := types.DecodeNodeMessage("nopipeshere"); err == nil {
		t.Fatal("expected error for missing delimiters")
	}
}

func TestEncodeDecodeTxFrameRoundTrip(t *testing.T) {
	tx := types.Transaction{From: "a", To: "b", Payload: "hi", Type: types.Regular, TxID: "tx_1"}
	frame := encodeTxFrame(tx)
	got, err := decodeTxFrame(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != tx {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, tx)
	}
}

func TestDecodeTxFrameShortFrameFails(t *testing.T) {
	if _, err := decodeTxFrame("a|b|c"); err == nil {
		t.Fatal("expected error for short frame")
	}
}

func newTestNode(t *testing.T, id, addr string) (*Node, *blockchain.Chain, *transport.Transport) {
	t.Helper()
	bus := eventbus.New()
	chain := blockchain.New("chain-a", bus, metrics.Noop())
	engine, err := consensus.New(consensus.Params{Kind: consensus.PoWKind, PowDifficulty: 1}, metrics.Noop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tr := transport.New(1, transport.NetworkParams{Latency: time.Millisecond, DropRate: 0}, 2)
	n, err := New(id, addr, chain, engine, tr, metrics.Noop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return n, chain, tr
}

func TestSubmitTransactionAddsToMempoolAndLoopsBack(t *testing.T) {
	n, chain, tr := newTestNode(t, "node-1", "addr-1")
	defer tr.Shutdown()

	if err := n.Start(); err != nil {
		t.Fatalf("unexpected error starting: %v", err)
	}
	defer n.Stop()

	tx := types.NewTransaction("a", "b", "hello")
	n.SubmitTransaction(tx)

	if chain.Mempool().Size() == 0 {
		t.Fatal("expected tx added to mempool immediately")
	}

	tr.WaitForPendingDeliveries()
	time.Sleep(20 * time.Millisecond)
	if chain.Mempool().Size() != 2 {
		t.Fatalf("expected loopback delivery to add a second tx, got size %d", chain.Mempool().Size())
	}
}

func TestStartTwiceFails(t *testing.T) {
	n, _, tr := newTestNode(t, "node-1", "addr-1")
	defer tr.Shutdown()

	if err := n.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer n.Stop()
	if err := n.Start(); err == nil {
		t.Fatal("expected error starting an already-running node")
	}
}

func TestSnapshotStateReportsConsensusName(t *testing.T) {
	n, _, tr := newTestNode(t, "node-1", "addr-1")
	defer tr.Shutdown()

	snap := n.SnapshotState()
	if snap.ConsensusName != "PoW" {
		t.Fatalf("expected PoW, got %s", snap.ConsensusName)
	}
}
