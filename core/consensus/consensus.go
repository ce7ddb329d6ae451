// Package consensus provides pluggable block-production strategies. Every
// chain picks exactly one Engine at construction time; Engine itself is
// consensus-agnostic so Node and Chain never branch on which kind is in
// use.
package consensus

import (
	"fmt"
	"hash/fnv"

	"chainmesh/core/metrics"
	"chainmesh/core/status"
	"chainmesh/core/types"
)

// Kind names a consensus algorithm.
type Kind int

const (
	PoWKind Kind = iota
	PoSKind
	PBFTKind
)

func (k Kind) String() string {
	switch k {
	case PoWKind:
		return "PoW"
	case PoSKind:
		return "PoS"
	case PBFTKind:
		return "PBFT"
	default:
		return "Unknown"
	}
}

// Context is the caller-supplied state an Engine needs to propose or
// validate a block. CurrentHeight is informational only: the authoritative
// height comes from prev.
type Context struct {
	ChainID       string
	NodeID        string
	CurrentHeight uint64
}

// Engine is the strategy interface every consensus implementation
// satisfies.
type Engine interface {
	// Propose attempts to build and (depending on the engine) finalize a
	// block extending prev with txs.
	Propose(ctx Context, txs []types.Transaction, prev types.Block) (types.Block, error)

	// OnRemoteBlock processes a block received from fromNode, updating
	// whatever finality bookkeeping the engine maintains. fromNode
	// distinguishes one remote signer's vote from another's — quorum-based
	// engines need it to tell two distinct votes apart from the same vote
	// counted twice.
	OnRemoteBlock(blk types.Block, fromNode string) error

	// IsFinal reports whether blk has reached finality under this engine.
	IsFinal(blk types.Block) bool

	// Name is a short identifier for logging and metrics.
	Name() string
}

// Params carries every engine-specific knob a factory call might need.
// Only the fields relevant to the chosen Kind are read.
type Params struct {
	Kind               Kind
	PowDifficulty      uint32
	ValidatorSetSize   int
	PbftFaultTolerance int
}

// New constructs the Engine named by p.Kind.
func New(p Params, m *metrics.Sink) (Engine, error) {
	switch p.Kind {
	case PoWKind:
		return newPoW(p.PowDifficulty, m), nil
	case PoSKind:
		return newPoS(p.ValidatorSetSize, m), nil
	case PBFTKind:
		return newPBFT(p.PbftFaultTolerance, m), nil
	default:
		return nil, status.New(status.Unknown, fmt.Sprintf("consensus: unknown kind %v", p.Kind))
	}
}

// computeStateRoot folds a cheap hash of every transaction's from/to/payload
// into a single decimal string. It is not a cryptographic commitment, only
// a stand-in that changes whenever the transaction set changes.
func computeStateRoot(txs []types.Transaction) string {
	var h uint64
	for _, tx := range txs {
		h ^= fnv64a(tx.From + tx.To + tx.Payload)
	}
	return fmt.Sprintf("%d", h)
}

func fnv64a(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

func blockKey(blk types.Block, extra string) string {
	if extra == "" {
		return fmt.Sprintf("%s:%d:%s", blk.Header.ChainID, blk.Header.Height, blk.Header.PrevHash)
	}
	return fmt.Sprintf("%s:%d:%s:%s", blk.Header.ChainID, blk.Header.Height, blk.Header.PrevHash, extra)
}
