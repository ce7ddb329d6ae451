package consensus

import (
	"sync"
	"time"

	"chainmesh/core/metrics"
	"chainmesh/core/types"
)

type pbft struct {
	mu           sync.Mutex
	f            int
	prepareVotes map[string]map[string]struct{}
	commitVotes  map[string]map[string]struct{}
	finalized    map[string]struct{}
	metrics      *metrics.Sink
}

func newPBFT(faultTolerance int, m *metrics.Sink) *pbft {
	return &pbft{
		f:            faultTolerance,
		prepareVotes: make(map[string]map[string]struct{}),
		commitVotes:  make(map[string]map[string]struct{}),
		finalized:    make(map[string]struct{}),
		metrics:      m,
	}
}

func (p *pbft) quorum() int {
	return 2*p.f + 1
}

func (p *pbft) Propose(ctx Context, txs []types.Transaction, prev types.Block) (types.Block, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	blk := types.Block{
		Header: types.BlockHeader{
			ChainID:   ctx.ChainID,
			Height:    prev.Header.Height + 1,
			PrevHash:  prev.Header.StateRoot,
			Timestamp: time.Now(),
			StateRoot: computeStateRoot(txs),
		},
		Txs:   txs,
		Extra: "PBFT:proposed",
	}
	p.metrics.IncCounter("block_proposed_PBFT", 1)

	id := blockKey(blk, "")
	p.vote(id, ctx.NodeID)
	return blk, nil
}

func (p *pbft) OnRemoteBlock(blk types.Block, fromNode string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics.IncCounter("block_received_PBFT", 1)
	p.vote(blockKey(blk, ""), fromNode)
	return nil
}

// vote must be called with mu held. It records both a prepare and a commit
// vote from signer, mirroring the PBFT two-phase protocol without actually
// exchanging separate prepare/commit messages.
func (p *pbft) vote(id, signer string) {
	if p.prepareVotes[id] == nil {
		p.prepareVotes[id] = make(map[string]struct{})
	}
	if p.commitVotes[id] == nil {
		p.commitVotes[id] = make(map[string]struct{})
	}
	p.prepareVotes[id][signer] = struct{}{}
	p.commitVotes[id][signer] = struct{}{}

	if len(p.commitVotes[id]) >= p.quorum() {
		p.finalized[id] = struct{}{}
		p.metrics.IncCounter("block_finalized_PBFT", 1)
	}
}

func (p *pbft) IsFinal(blk types.Block) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.finalized[blockKey(blk, "")]
	return ok
}

func (p *pbft) Name() string { return "PBFT" }
