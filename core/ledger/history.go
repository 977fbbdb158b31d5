package ledger

import (
	"iotsentry/core/block"
	"iotsentry/core/tx"
)

// Filter selects transactions during a history scan. Zero-value fields
// match everything.
type Filter struct {
	DID      string  // originating DID
	DeviceID string  // payload device_id
	Kind     tx.Kind // transaction kind
}

func (f Filter) matches(t tx.Transaction) bool {
	if f.DID != "" && t.DID != f.DID {
		return false
	}
	if f.Kind != "" && t.Kind != f.Kind {
		return false
	}
	if f.DeviceID != "" {
		dev, _ := t.Payload["device_id"].(string)
		if dev != f.DeviceID {
			return false
		}
	}
	return true
}

// HistoryIterator walks committed transactions in block-then-intra-block
// order. It operates on a snapshot of the chain taken at creation, so it is
// consistent even while mining proceeds, and restartable via Reset.
type HistoryIterator struct {
	blocks []block.Block
	filter Filter
	bi, ti int
}

// History returns an iterator over all committed transactions matching the
// filter.
func (c *Chain) History(filter Filter) *HistoryIterator {
	c.mu.RLock()
	// Committed blocks are immutable; sharing the backing array is safe.
	blocks := c.blocks
	c.mu.RUnlock()
	return &HistoryIterator{blocks: blocks, filter: filter}
}

// Next returns the next matching transaction, or false when the scan is
// exhausted.
func (it *HistoryIterator) Next() (tx.Transaction, bool) {
	for it.bi < len(it.blocks) {
		txs := it.blocks[it.bi].Transactions
		for it.ti < len(txs) {
			t := txs[it.ti]
			it.ti++
			if it.filter.matches(t) {
				return t, true
			}
		}
		it.bi++
		it.ti = 0
	}
	return tx.Transaction{}, false
}

// Reset restarts the scan from the beginning of the snapshot.
func (it *HistoryIterator) Reset() {
	it.bi, it.ti = 0, 0
}

// Collect drains the iterator into a slice. limit <= 0 collects everything.
func (it *HistoryIterator) Collect(limit int) []tx.Transaction {
	var out []tx.Transaction
	for {
		t, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, t)
		if limit > 0 && len(out) >= limit {
			return out
		}
	}
}

// LatestTransaction returns the most recent committed transaction for a DID
// and kind, scanning newest block first.
func (c *Chain) LatestTransaction(did string, kind tx.Kind) (tx.Transaction, bool) {
	c.mu.RLock()
	blocks := c.blocks
	c.mu.RUnlock()

	for bi := len(blocks) - 1; bi >= 0; bi-- {
		txs := blocks[bi].Transactions
		for ti := len(txs) - 1; ti >= 0; ti-- {
			if txs[ti].DID == did && txs[ti].Kind == kind {
				return txs[ti], true
			}
		}
	}
	return tx.Transaction{}, false
}
