// Package types defines the data structures shared by every chain, node,
// and relayer in the simulation: transactions, blocks, and the wire-level
// node message envelope.
package types

import (
	"fmt"
	"sync/atomic"
	"time"
)

// TxType classifies a Transaction. Regular transactions carry opaque
// application payload; IBCPacket and IBCAck frames carry a serialized
// IBCPacket and are never themselves mined into a block — they exist so the
// node-message wire format has a uniform tx-shaped fallback.
type TxType int

const (
	Regular TxType = iota
	IBCPacket
	IBCAck
	UnknownTx
)

func (t TxType) String() string {
	switch t {
	case Regular:
		return "regular"
	case IBCPacket:
		return "ibc_packet"
	case IBCAck:
		return "ibc_ack"
	default:
		return "unknown"
	}
}

var txIDCounter atomic.Uint64

// NewTxID generates a process-unique transaction id of the form
// "tx_<nanoseconds>_<counter>". The counter makes ids unique even when two
// transactions are created within the same clock tick.
func NewTxID() string {
	n := txIDCounter.Add(1)
	return fmt.Sprintf("tx_%d_%d", time.Now().UnixNano(), n)
}

// Transaction is the fundamental unit submitted to a Mempool. Unlike a real
// ledger transaction it carries no amount, fee, or signature: the
// simulation's concern is ordering and delivery, not accounting.
type Transaction struct {
	From    string
	To      string
	Payload string
	Type    TxType
	TxID    string
}

// NewTransaction builds a Regular transaction with a freshly generated id.
func NewTransaction(from, to, payload string) Transaction {
	return Transaction{From: from, To: to, Payload: payload, Type: Regular, TxID: NewTxID()}
}
