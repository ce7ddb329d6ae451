// Package mempool holds transactions a chain has accepted but not yet
// included in a block. It does no fee or TTL accounting: ordering is
// insertion order, and every transaction that passes verify is kept until
// drained.
package mempool

import (
	"sync"

	"chainmesh/core/types"
)

// Mempool is an insertion-ordered buffer of pending transactions, safe for
// concurrent use.
type Mempool struct {
	mu  sync.Mutex
	buf []types.Transaction
}

func New() *Mempool {
	return &Mempool{}
}

// Add appends tx if it passes verify. verify is currently a placeholder that
// always accepts; it exists as the seam a real chain would hang signature or
// balance checks off of.
func (m *Mempool) Add(tx types.Transaction) {
	if !verify(tx) {
		return
	}
	m.mu.Lock()
	m.buf = append(m.buf, tx)
	m.mu.Unlock()
}

// Drain removes and returns up to max transactions from the front of the
// buffer, oldest first.
func (m *Mempool) Drain(max int) []types.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := max
	if n > len(m.buf) {
		n = len(m.buf)
	}
	drained := make([]types.Transaction, n)
	copy(drained, m.buf[:n])
	m.buf = m.buf[n:]
	return drained
}

// Size returns the number of pending transactions.
func (m *Mempool) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buf)
}

func verify(tx types.Transaction) bool {
	return true
}
