package main

import (
	"errors"
	"fmt"
	"sync"

	"github.com/blocknetprivacy/blocksim/chain"
	"github.com/blocknetprivacy/blocksim/protocol/params"
)

var (
	ErrMempoolFull = errors.New("mempool is full")
	ErrDuplicateTx = errors.New("transaction already in mempool")
)

// MempoolConfig configures the mempool
type MempoolConfig struct {
	// MaxSize is the maximum number of pending transactions
	MaxSize int
}

// DefaultMempoolConfig returns sensible defaults
func DefaultMempoolConfig() MempoolConfig {
	return MempoolConfig{
		MaxSize: params.MaxMempoolSize,
	}
}

// Mempool holds pending transactions in arrival order. There are no fees,
// so arrival order is also block inclusion order.
type Mempool struct {
	mu     sync.RWMutex
	config MempoolConfig
	txs    []chain.Transaction
	ids    map[string]struct{}
}

// NewMempool creates an empty mempool
func NewMempool(config MempoolConfig) *Mempool {
	if config.MaxSize <= 0 {
		config.MaxSize = params.MaxMempoolSize
	}
	return &Mempool{
		config: config,
		ids:    make(map[string]struct{}),
	}
}

// Add appends a transaction
func (m *Mempool) Add(tx chain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.ids[tx.ID]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateTx, tx.ID)
	}
	if len(m.txs) >= m.config.MaxSize {
		return fmt.Errorf("%w (%d transactions)", ErrMempoolFull, len(m.txs))
	}
	m.txs = append(m.txs, tx)
	m.ids[tx.ID] = struct{}{}
	return nil
}

// All returns a copy of the pending transactions in arrival order
func (m *Mempool) All() []chain.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]chain.Transaction, len(m.txs))
	copy(out, m.txs)
	return out
}

// Size returns the number of pending transactions
func (m *Mempool) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.txs)
}

// Remove drops the given transactions, typically after they were mined.
// Transactions that arrived while a block was being mined stay pending.
func (m *Mempool) Remove(txs []chain.Transaction) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	drop := make(map[string]struct{}, len(txs))
	for _, tx := range txs {
		drop[tx.ID] = struct{}{}
	}

	kept := m.txs[:0]
	removed := 0
	for _, tx := range m.txs {
		if _, ok := drop[tx.ID]; ok {
			delete(m.ids, tx.ID)
			removed++
			continue
		}
		kept = append(kept, tx)
	}
	m.txs = kept
	return removed
}

// Clear empties the mempool
func (m *Mempool) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = nil
	m.ids = make(map[string]struct{})
}

// Replace swaps the contents wholesale, used when restoring a snapshot.
func (m *Mempool) Replace(txs []chain.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = make([]chain.Transaction, 0, len(txs))
	m.ids = make(map[string]struct{}, len(txs))
	for _, tx := range txs {
		if _, dup := m.ids[tx.ID]; dup {
			continue
		}
		m.txs = append(m.txs, tx)
		m.ids[tx.ID] = struct{}{}
	}
}
