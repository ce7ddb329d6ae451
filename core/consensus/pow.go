package consensus

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"chainmesh/core/metrics"
	"chainmesh/core/status"
	"chainmesh/core/types"
)

// maxNonceSearch bounds the proof-of-work search so a pathological
// difficulty cannot hang a simulation run forever.
const maxNonceSearch = 1_000_000

type pow struct {
	mu         sync.Mutex
	difficulty uint32
	mined      map[string]struct{}
	metrics    *metrics.Sink
}

func newPoW(difficulty uint32, m *metrics.Sink) *pow {
	return &pow{difficulty: difficulty, mined: make(map[string]struct{}), metrics: m}
}

func (p *pow) Propose(ctx Context, txs []types.Transaction, prev types.Block) (types.Block, error) {
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
		Txs: txs,
	}
	p.metrics.IncCounter("block_proposed_PoW", 1)

	var nonce uint64
	var hash string
	for {
		hash = p.computeBlockHash(blk, nonce)
		if hasLeadingZeros(hash, p.difficulty) {
			break
		}
		nonce++
		if nonce > maxNonceSearch {
			return types.Block{}, status.New(status.ConsensusFault, "PoW: nonce search failed")
		}
	}

	blk.Extra = strconv.FormatUint(nonce, 10)
	p.mined[p.blockID(blk, nonce)] = struct{}{}
	p.metrics.IncCounter("block_finalized_PoW", 1)
	return blk, nil
}

func (p *pow) OnRemoteBlock(blk types.Block, fromNode string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics.IncCounter("block_received_PoW", 1)

	nonce, err := strconv.ParseUint(blk.Extra, 10, 64)
	if err != nil {
		return status.New(status.InvalidState, "PoW: invalid nonce in extra")
	}
	hash := p.computeBlockHash(blk, nonce)
	if !hasLeadingZeros(hash, p.difficulty) {
		return status.New(status.ConsensusFault, "PoW: invalid proof of work")
	}
	p.mined[p.blockID(blk, nonce)] = struct{}{}
	p.metrics.IncCounter("block_finalized_PoW", 1)
	return nil
}

func (p *pow) IsFinal(blk types.Block) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	nonce, err := strconv.ParseUint(blk.Extra, 10, 64)
	if err != nil {
		return false
	}
	_, ok := p.mined[p.blockID(blk, nonce)]
	return ok
}

func (p *pow) Name() string { return "PoW" }

func (p *pow) blockID(blk types.Block, nonce uint64) string {
	return fmt.Sprintf("%s:%d:%s:%d", blk.Header.ChainID, blk.Header.Height, blk.Header.PrevHash, nonce)
}

func (p *pow) computeBlockHash(blk types.Block, nonce uint64) string {
	raw := fmt.Sprintf("%s%d%s%s%d", blk.Header.ChainID, blk.Header.Height, blk.Header.PrevHash, blk.Header.StateRoot, nonce)
	h := fnv64a(raw)
	return fmt.Sprintf("%016x", h)
}

func hasLeadingZeros(hash string, zeros uint32) bool {
	for i := uint32(0); i < zeros; i++ {
		if int(i) >= len(hash) || hash[i] != '0' {
			return false
		}
	}
	return true
}
