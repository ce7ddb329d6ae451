package consensus

import (
	"testing"

	"chainmesh/core/metrics"
	"chainmesh/core/status"
	"chainmesh/core/types"
)

func txs() []types.Transaction {
	return []types.Transaction{types.NewTransaction("a", "b", "x")}
}

func TestNewUnknownKindFails(t *testing.T) {
	_, err := New(Params{Kind: Kind(99)}, metrics.Noop())
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestPoWProposeAndIsFinal(t *testing.T) {
	e, err := New(Params{Kind: PoWKind, PowDifficulty: 1}, metrics.Noop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prev := types.Genesis("chain-a")
	blk, err := e.Propose(Context{ChainID: "chain-a", NodeID: "n1"}, txs(), prev)
	if err != nil {
		t.Fatalf("unexpected error proposing: %v", err)
	}
	if !e.IsFinal(blk) {
		t.Fatal("expected PoW-proposed block to be final immediately")
	}
	if e.Name() != "PoW" {
		t.Fatalf("unexpected name: %s", e.Name())
	}
}

func TestPoWOnRemoteBlockRejectsBadNonce(t *testing.T) {
	e, _ := New(Params{Kind: PoWKind, PowDifficulty: 1}, metrics.Noop())
	blk := types.Block{Header: types.BlockHeader{ChainID: "chain-a", Height: 1}, Extra: "notanumber"}
	if err := e.OnRemoteBlock(blk, "n2"); !status.Is(err, status.InvalidState) {
		t.Fatalf("expected InvalidState, got %v", err)
	}
}

func TestPoSReachesQuorumAcrossNodes(t *testing.T) {
	e, err := New(Params{Kind: PoSKind, ValidatorSetSize: 2}, metrics.Noop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prev := types.Genesis("chain-b")
	blk, err := e.Propose(Context{ChainID: "chain-b", NodeID: "n1"}, txs(), prev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// quorum for 2 validators is (2*2)/3+1 = 2; one proposer vote is not enough.
	if e.IsFinal(blk) {
		t.Fatal("expected not final with a single vote")
	}
	e.OnRemoteBlock(blk, "n2")
	if !e.IsFinal(blk) {
		t.Fatal("expected final once the remote signature reaches quorum")
	}
}

func TestPBFTReachesQuorum(t *testing.T) {
	e, err := New(Params{Kind: PBFTKind, PbftFaultTolerance: 1}, metrics.Noop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prev := types.Genesis("chain-c")
	blk, err := e.Propose(Context{ChainID: "chain-c", NodeID: "n1"}, txs(), prev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// quorum is 2*1+1 = 3.
	if e.IsFinal(blk) {
		t.Fatal("expected not final with a single vote")
	}
	e.OnRemoteBlock(blk, "n2")
	if e.IsFinal(blk) {
		t.Fatal("expected not final with two distinct votes (proposer + single remote)")
	}
	e.OnRemoteBlock(blk, "n3")
	if !e.IsFinal(blk) {
		t.Fatal("expected final once a third distinct vote reaches quorum")
	}
}
