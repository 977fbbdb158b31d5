// Package ledger implements the append-only proof-of-work chain that backs
// every audit guarantee in the system. A single Chain instance is the one
// authoritative append point; there is no peer-to-peer consensus.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"iotsentry/core/block"
	"iotsentry/core/mempool"
	"iotsentry/core/tx"
	"iotsentry/types/ids"
)

// GenesisDID is the identity recorded on the genesis transaction.
const GenesisDID = "did:iotsentry:system:genesis"

// Config controls mining behaviour.
type Config struct {
	// Difficulty is the number of leading zero hex digits a block hash must
	// carry. It is fixed per chain; there is no retargeting across blocks.
	Difficulty int
	// AllowEmptyMine makes MinePending a harmless no-op on an empty pool
	// instead of returning ErrEmptyPool.
	AllowEmptyMine bool
	// MaxPoolSize bounds the pending pool. <= 0 means unbounded.
	MaxPoolSize int
}

// Chain is the block sequence plus the pending-transaction pool.
//
// Locking: mu guards the block slice; the pool has its own lock. mineMu
// serializes miners so two concurrent mines can never produce two blocks at
// the same height. The proof-of-work search itself runs outside mu, so
// AddTransaction and reads stay responsive while a mine is in progress.
type Chain struct {
	mu     sync.RWMutex
	mineMu sync.Mutex
	blocks []block.Block
	pool   *mempool.Pool
	cfg    Config

	now func() time.Time
}

// New creates a chain with a genesis block at height 0.
func New(cfg Config) *Chain {
	c := &Chain{
		pool: mempool.New(cfg.MaxPoolSize),
		cfg:  cfg,
		now:  time.Now,
	}
	genesisTx, _ := tx.New(tx.KindGenesis, map[string]interface{}{
		"message": "IoT security ledger initialized",
	}, GenesisDID, c.now())
	genesis := block.Block{
		Height:       0,
		Timestamp:    genesisTx.Timestamp,
		Transactions: []tx.Transaction{genesisTx},
		PrevHash:     ids.Empty,
		Nonce:        0,
		Difficulty:   0, // genesis is not mined
	}
	genesis.MerkleRoot = genesis.ComputeMerkleRoot()
	genesis.Hash = genesis.ComputeHash()
	c.blocks = []block.Block{genesis}
	return c
}

// Restore rebuilds a chain from persisted blocks and pending transactions.
// The loaded state is validated before it is trusted; a corrupted chain is
// a load-time failure, never a silent partial chain.
func Restore(blocks []block.Block, pending []tx.Transaction, cfg Config) (*Chain, error) {
	if len(blocks) == 0 {
		return nil, fmt.Errorf("restore: chain has no genesis block")
	}
	c := &Chain{
		blocks: blocks,
		pool:   mempool.New(cfg.MaxPoolSize),
		cfg:    cfg,
		now:    time.Now,
	}
	if err := c.Validate().Err(); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	for _, t := range pending {
		if !t.VerifyID() {
			return nil, fmt.Errorf("restore: pending transaction %s fails hash check", t.TxID.Short())
		}
		if err := c.pool.Add(t); err != nil {
			return nil, fmt.Errorf("restore: %w", err)
		}
	}
	return c, nil
}

// SetClock overrides the time source. Intended for tests.
func (c *Chain) SetClock(now func() time.Time) {
	c.now = now
}

// AddTransaction validates and appends a transaction to the pending pool.
// No block is created; the transaction is committed by the next mine.
func (c *Chain) AddTransaction(kind tx.Kind, payload map[string]interface{}, did string) (ids.ID, error) {
	t, err := tx.New(kind, payload, did, c.now())
	if err != nil {
		return ids.Empty, err
	}
	if err := tx.ValidatePayload(kind, payload); err != nil {
		return ids.Empty, err
	}
	if err := c.pool.Add(t); err != nil {
		return ids.Empty, err
	}
	return t.TxID, nil
}

// MinePending snapshots the pool, searches for a nonce satisfying the
// difficulty predicate and appends the resulting block to the chain. The
// mined transactions are removed from the pool only after the block is
// committed; a cancelled mine leaves both chain and pool untouched.
//
// This is the only CPU-bound operation on the chain. ctx cancellation is
// checked between nonce batches, so a long mine can be abandoned wholesale.
func (c *Chain) MinePending(ctx context.Context) (*block.Block, error) {
	c.mineMu.Lock()
	defer c.mineMu.Unlock()

	pending := c.pool.Snapshot()
	if len(pending) == 0 {
		if c.cfg.AllowEmptyMine {
			return nil, nil
		}
		return nil, ErrEmptyPool
	}

	c.mu.RLock()
	tip := c.blocks[len(c.blocks)-1]
	height := uint64(len(c.blocks))
	c.mu.RUnlock()

	b := block.Block{
		Height:       height,
		Timestamp:    c.now().UTC(),
		Transactions: pending,
		PrevHash:     tip.Hash,
		Difficulty:   c.cfg.Difficulty,
	}
	b.MerkleRoot = b.ComputeMerkleRoot()

	// Nonce search. mineMu guarantees the tip cannot move underneath us,
	// so the block can be committed as soon as a nonce is found.
	const checkEvery = 4096
	for nonce := uint64(0); ; nonce++ {
		if nonce%checkEvery == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}
		b.Nonce = nonce
		b.Hash = b.ComputeHash()
		if block.HashMeetsDifficulty(b.Hash, b.Difficulty) {
			break
		}
	}

	c.mu.Lock()
	c.blocks = append(c.blocks, b)
	c.mu.Unlock()

	mined := make([]ids.ID, len(pending))
	for i, t := range pending {
		mined[i] = t.TxID
	}
	c.pool.RemoveBatch(mined)
	return &b, nil
}

// Validate recomputes every block's transaction hashes, Merkle root, block
// hash, difficulty predicate and linkage to its parent, and reports the
// first failure. It is a pure read and may run concurrently with other
// reads.
func (c *Chain) Validate() ValidationResult {
	c.mu.RLock()
	blocks := c.blocks
	c.mu.RUnlock()

	for i := range blocks {
		b := &blocks[i]
		// The Merkle root commits to transaction IDs, so each ID must in
		// turn match its transaction's content before the root means
		// anything.
		for j := range b.Transactions {
			if !b.Transactions[j].VerifyID() {
				return ValidationResult{Height: b.Height, Reason: ReasonBadMerkleRoot}
			}
		}
		if b.ComputeMerkleRoot() != b.MerkleRoot {
			return ValidationResult{Height: b.Height, Reason: ReasonBadMerkleRoot}
		}
		if b.ComputeHash() != b.Hash {
			return ValidationResult{Height: b.Height, Reason: ReasonBadHash}
		}
		// Genesis is not mined and carries difficulty 0.
		if i > 0 && !b.MeetsDifficulty() {
			return ValidationResult{Height: b.Height, Reason: ReasonDifficultyNotMet}
		}
		if i > 0 && b.PrevHash != blocks[i-1].ComputeHash() {
			return ValidationResult{Height: b.Height, Reason: ReasonBadLinkage}
		}
	}
	return ValidationResult{OK: true}
}

// Height returns the number of committed blocks.
func (c *Chain) Height() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// TipHash returns the hash of the most recent block.
func (c *Chain) TipHash() ids.ID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[len(c.blocks)-1].Hash
}

// PendingCount returns the number of transactions awaiting mining.
func (c *Chain) PendingCount() int {
	return c.pool.Len()
}

// PendingSnapshot returns the pending transactions, for persistence.
func (c *Chain) PendingSnapshot() []tx.Transaction {
	return c.pool.Snapshot()
}

// Blocks returns the committed blocks. The slice is a copy of the header;
// committed blocks are never mutated after append.
func (c *Chain) Blocks() []block.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]block.Block, len(c.blocks))
	copy(out, c.blocks)
	return out
}

// Info aggregates chain statistics for status reporting.
type Info struct {
	TotalBlocks         int    `json:"totalBlocks"`
	TotalTransactions   int    `json:"totalTransactions"`
	IsValid             bool   `json:"isValid"`
	LatestBlockHash     string `json:"latestBlockHash"`
	PendingTransactions int    `json:"pendingTransactions"`
}

// GetInfo returns chain statistics, including a full validation pass.
func (c *Chain) GetInfo() Info {
	c.mu.RLock()
	total := 0
	for i := range c.blocks {
		total += len(c.blocks[i].Transactions)
	}
	blocks := len(c.blocks)
	tip := c.blocks[blocks-1].Hash
	c.mu.RUnlock()

	return Info{
		TotalBlocks:         blocks,
		TotalTransactions:   total,
		IsValid:             c.Validate().OK,
		LatestBlockHash:     tip.String(),
		PendingTransactions: c.pool.Len(),
	}
}
