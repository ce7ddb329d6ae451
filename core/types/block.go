package types

import "time"

// BlockHeader carries the identity and linkage of a Block. PrevHash and
// StateRoot are opaque strings: their content is whatever the chain's
// consensus engine chooses to compute, not a real cryptographic commitment.
type BlockHeader struct {
	ChainID   string
	Height    uint64
	PrevHash  string
	Timestamp time.Time
	StateRoot string
}

// Block is the unit appended to a Blockchain's ledger. Extra carries
// consensus-specific witness data (a PoW nonce, a PoS proposer tag, etc.) as
// an opaque string so Blockchain itself stays consensus-agnostic.
type Block struct {
	Header BlockHeader
	Txs    []Transaction
	Extra  string
}

// Genesis returns the height-0 block every Blockchain starts from: no
// transactions, empty hashes, zero timestamp.
func Genesis(chainID string) Block {
	return Block{Header: BlockHeader{ChainID: chainID, Height: 0}}
}
