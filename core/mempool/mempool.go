package mempool

import (
	"errors"
	"sync"

	"iotsentry/core/tx"
	"iotsentry/types/ids"
)

// ErrPoolFull is returned when the pool is at capacity. Pending audit
// transactions are never silently evicted; the caller must mine first.
var ErrPoolFull = errors.New("transaction pool is full")

// Pool holds transactions awaiting inclusion in the next mined block.
// Insertion order is preserved so mined blocks keep submission order.
type Pool struct {
	mu     sync.Mutex
	txs    map[ids.ID]tx.Transaction
	order  []ids.ID
	maxTxs int
}

// New creates a pool with a maximum size. maxTxs <= 0 means unbounded.
func New(maxTxs int) *Pool {
	return &Pool{
		txs:    make(map[ids.ID]tx.Transaction),
		maxTxs: maxTxs,
	}
}

// Add appends a transaction. Duplicates are a silent no-op (the transaction
// is already pending); a full pool is an error.
func (p *Pool) Add(t tx.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.txs[t.TxID]; exists {
		return nil
	}
	if p.maxTxs > 0 && len(p.txs) >= p.maxTxs {
		return ErrPoolFull
	}
	p.txs[t.TxID] = t
	p.order = append(p.order, t.TxID)
	return nil
}

// Snapshot returns the pending transactions in insertion order.
func (p *Pool) Snapshot() []tx.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]tx.Transaction, 0, len(p.txs))
	for _, id := range p.order {
		out = append(out, p.txs[id])
	}
	return out
}

// RemoveBatch drops the given transactions, typically after they were mined
// into a block.
func (p *Pool) RemoveBatch(txIDs []ids.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	removed := make(map[ids.ID]bool, len(txIDs))
	for _, id := range txIDs {
		if _, ok := p.txs[id]; ok {
			delete(p.txs, id)
			removed[id] = true
		}
	}
	if len(removed) == 0 {
		return
	}
	newOrder := p.order[:0]
	for _, id := range p.order {
		if !removed[id] {
			newOrder = append(newOrder, id)
		}
	}
	p.order = newOrder
}

// Len returns the number of pending transactions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.txs)
}
