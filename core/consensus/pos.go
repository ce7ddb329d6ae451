package consensus

import (
	"sync"
	"time"

	"chainmesh/core/metrics"
	"chainmesh/core/types"
)

type pos struct {
	mu         sync.Mutex
	validators int
	signatures map[string]map[string]struct{}
	finalized  map[string]struct{}
	metrics    *metrics.Sink
}

func newPoS(validatorSetSize int, m *metrics.Sink) *pos {
	return &pos{
		validators: validatorSetSize,
		signatures: make(map[string]map[string]struct{}),
		finalized:  make(map[string]struct{}),
		metrics:    m,
	}
}

func (p *pos) quorum() int {
	return (p.validators*2)/3 + 1
}

func (p *pos) Propose(ctx Context, txs []types.Transaction, prev types.Block) (types.Block, error) {
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
		Extra: "PoS:proposed:" + ctx.NodeID,
	}
	p.metrics.IncCounter("block_proposed_PoS", 1)

	id := blockKey(blk, "")
	p.addSignature(id, ctx.NodeID)
	return blk, nil
}

func (p *pos) OnRemoteBlock(blk types.Block, fromNode string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics.IncCounter("block_received_PoS", 1)
	p.addSignature(blockKey(blk, ""), fromNode)
	return nil
}

// addSignature must be called with mu held.
func (p *pos) addSignature(id, signer string) {
	if p.signatures[id] == nil {
		p.signatures[id] = make(map[string]struct{})
	}
	p.signatures[id][signer] = struct{}{}
	if len(p.signatures[id]) >= p.quorum() {
		p.finalized[id] = struct{}{}
		p.metrics.IncCounter("block_finalized_PoS", 1)
	}
}

func (p *pos) IsFinal(blk types.Block) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.finalized[blockKey(blk, "")]
	return ok
}

func (p *pos) Name() string { return "PoS" }
