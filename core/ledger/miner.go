package ledger

import (
	"context"
	"errors"
	"log"
	"time"
)

// Miner commits pending transactions into blocks on a fixed interval,
// keeping the proof-of-work search off the callers' critical path.
// Callers submit transactions and return immediately; the next tick mines
// whatever has accumulated.
type Miner struct {
	chain    *Chain
	interval time.Duration
}

// NewMiner creates a background miner for the chain.
func NewMiner(chain *Chain, interval time.Duration) *Miner {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Miner{chain: chain, interval: interval}
}

// Run mines on every tick until ctx is cancelled. An in-progress nonce
// search observes the same ctx, so shutdown abandons it wholesale rather
// than committing a partial block.
func (m *Miner) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.chain.PendingCount() == 0 {
				continue
			}
			b, err := m.chain.MinePending(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, ErrEmptyPool) {
					continue
				}
				log.Printf("[MINER] mining failed: %v", err)
				continue
			}
			if b != nil {
				log.Printf("[MINER] block %d mined: %s (%d txs, nonce %d)",
					b.Height, b.Hash.Short(), len(b.Transactions), b.Nonce)
			}
		}
	}
}
