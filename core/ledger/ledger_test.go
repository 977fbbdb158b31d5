package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iotsentry/core/block"
	"iotsentry/core/tx"
)

const testDID = "did:iotsentry:user:alice"

func newTestChain(t *testing.T) *Chain {
	t.Helper()
	return New(Config{Difficulty: 1})
}

func addN(t *testing.T, c *Chain, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := c.AddTransaction(tx.KindActivity, map[string]interface{}{
			"device_id": "lock-1", "seq": i,
		}, testDID)
		require.NoError(t, err)
	}
}

func mine(t *testing.T, c *Chain) *block.Block {
	t.Helper()
	b, err := c.MinePending(context.Background())
	require.NoError(t, err)
	require.NotNil(t, b)
	return b
}

func TestGenesis(t *testing.T) {
	c := newTestChain(t)
	require.Equal(t, 1, c.Height())
	blocks := c.Blocks()
	assert.Equal(t, uint64(0), blocks[0].Height)
	assert.True(t, blocks[0].PrevHash.IsEmpty())
	require.Len(t, blocks[0].Transactions, 1)
	assert.Equal(t, tx.KindGenesis, blocks[0].Transactions[0].Kind)
	assert.True(t, c.Validate().OK)
}

func TestAddTransactionValidation(t *testing.T) {
	c := newTestChain(t)

	_, err := c.AddTransaction("bogus", nil, testDID)
	assert.ErrorIs(t, err, tx.ErrInvalidKind)

	_, err = c.AddTransaction(tx.KindActivity, nil, "")
	assert.ErrorIs(t, err, tx.ErrInvalidIdentity)

	_, err = c.AddTransaction(tx.KindActivity, map[string]interface{}{"device_id": "lock-1"}, testDID)
	require.NoError(t, err)
	assert.Equal(t, 1, c.PendingCount(), "pool should grow")
	assert.Equal(t, 1, c.Height(), "no block should be created")
}

func TestMineCommitsPendingAndClearsPool(t *testing.T) {
	c := newTestChain(t)
	addN(t, c, 3)

	b := mine(t, c)
	assert.Equal(t, uint64(1), b.Height)
	assert.Len(t, b.Transactions, 3)
	assert.Equal(t, 0, c.PendingCount())
	assert.True(t, b.MeetsDifficulty())
	assert.Equal(t, b.ComputeMerkleRoot(), b.MerkleRoot)
	assert.Equal(t, c.Blocks()[0].Hash, b.PrevHash)
	assert.True(t, c.Validate().OK)
}

func TestMineEmptyPoolFails(t *testing.T) {
	c := New(Config{Difficulty: 1})
	_, err := c.MinePending(context.Background())
	assert.ErrorIs(t, err, ErrEmptyPool)
	assert.Equal(t, 1, c.Height())
}

func TestMineEmptyPoolNoOpWhenConfigured(t *testing.T) {
	c := New(Config{Difficulty: 1, AllowEmptyMine: true})
	b, err := c.MinePending(context.Background())
	require.NoError(t, err)
	assert.Nil(t, b, "empty mine should be a no-op, not a block")
	assert.Equal(t, 1, c.Height())
}

func TestMineCancelledLeavesStateUntouched(t *testing.T) {
	c := newTestChain(t)
	addN(t, c, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.MinePending(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, c.Height(), "abandoned mine must not commit")
	assert.Equal(t, 2, c.PendingCount(), "abandoned mine must not drain the pool")
}

// Mutating a committed transaction's payload must surface as a Merkle
// failure at the block holding it, whether or not the tamperer bothers to
// recompute the transaction's content hash.
func TestValidateDetectsPayloadTamper(t *testing.T) {
	t.Run("payload only", func(t *testing.T) {
		c := newTestChain(t)
		addN(t, c, 3)
		mine(t, c)

		c.blocks[1].Transactions[1].Payload["seq"] = 999

		result := c.Validate()
		require.False(t, result.OK)
		assert.Equal(t, uint64(1), result.Height)
		assert.Equal(t, ReasonBadMerkleRoot, result.Reason)
		assert.EqualError(t, result.Err(), "chain corrupted at block 1: bad-merkle-root")
	})

	t.Run("payload with recomputed tx id", func(t *testing.T) {
		c := newTestChain(t)
		addN(t, c, 3)
		mine(t, c)

		tampered := &c.blocks[1].Transactions[1]
		tampered.Payload["seq"] = 999
		tampered.TxID = tampered.ComputeID()

		result := c.Validate()
		require.False(t, result.OK)
		assert.Equal(t, uint64(1), result.Height)
		assert.Equal(t, ReasonBadMerkleRoot, result.Reason)
	})
}

func TestValidateDetectsStoredHashTamper(t *testing.T) {
	c := newTestChain(t)
	addN(t, c, 1)
	mine(t, c)

	c.blocks[1].Nonce++ // header no longer matches the stored hash

	result := c.Validate()
	require.False(t, result.OK)
	assert.Equal(t, uint64(1), result.Height)
	assert.Equal(t, ReasonBadHash, result.Reason)
}

// Replacing a block with a fully self-consistent variant (recomputed
// Merkle root, hash and proof-of-work) without updating its child's
// PrevHash must fail at the child with bad-linkage.
func TestValidateDetectsRelinkedBlock(t *testing.T) {
	c := newTestChain(t)
	addN(t, c, 2)
	mine(t, c)
	addN(t, c, 1)
	mine(t, c)

	forged := &c.blocks[1]
	forged.Timestamp = forged.Timestamp.Add(time.Minute)
	forged.MerkleRoot = forged.ComputeMerkleRoot()
	for forged.Nonce = 0; ; forged.Nonce++ {
		forged.Hash = forged.ComputeHash()
		if forged.MeetsDifficulty() {
			break
		}
	}

	result := c.Validate()
	require.False(t, result.OK)
	assert.Equal(t, uint64(2), result.Height, "failure should be reported at the child block")
	assert.Equal(t, ReasonBadLinkage, result.Reason)
}

func TestValidateDetectsDifficultyNotMet(t *testing.T) {
	c := New(Config{Difficulty: 4})
	tip := c.Blocks()[0]

	mined, err := tx.New(tx.KindActivity, map[string]interface{}{"device_id": "lock-1"}, testDID, time.Now())
	require.NoError(t, err)
	b := block.Block{
		Height:       1,
		Timestamp:    time.Now().UTC(),
		Transactions: []tx.Transaction{mined},
		PrevHash:     tip.Hash,
		Difficulty:   4,
	}
	b.MerkleRoot = b.ComputeMerkleRoot()
	// Find a nonce whose hash is internally consistent but misses the
	// difficulty target.
	for b.Nonce = 0; ; b.Nonce++ {
		b.Hash = b.ComputeHash()
		if !b.MeetsDifficulty() {
			break
		}
	}
	c.blocks = append(c.blocks, b)

	result := c.Validate()
	require.False(t, result.OK)
	assert.Equal(t, uint64(1), result.Height)
	assert.Equal(t, ReasonDifficultyNotMet, result.Reason)
}

func TestChainsMinedOnlyThroughMiningAlwaysValidate(t *testing.T) {
	c := newTestChain(t)
	for i := 0; i < 4; i++ {
		addN(t, c, i+1)
		mine(t, c)
	}
	assert.True(t, c.Validate().OK)
	info := c.GetInfo()
	assert.Equal(t, 5, info.TotalBlocks)
	assert.Equal(t, 11, info.TotalTransactions) // genesis + 1+2+3+4
	assert.True(t, info.IsValid)
	assert.Equal(t, 0, info.PendingTransactions)
}

func TestConcurrentAddAndMine(t *testing.T) {
	c := New(Config{Difficulty: 1, AllowEmptyMine: true})

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, err := c.AddTransaction(tx.KindActivity, map[string]interface{}{
					"device_id": "lock-1", "worker": w, "seq": i,
				}, testDID)
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			_, err := c.MinePending(context.Background())
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	// Flush whatever is still pending.
	for c.PendingCount() > 0 {
		_, err := c.MinePending(context.Background())
		require.NoError(t, err)
	}
	assert.True(t, c.Validate().OK)

	committed := c.History(Filter{Kind: tx.KindActivity}).Collect(0)
	assert.Len(t, committed, 100, "every submitted transaction must be committed exactly once")
}

func TestRestoreValidatesBeforeTrusting(t *testing.T) {
	c := newTestChain(t)
	addN(t, c, 2)
	mine(t, c)
	pendingTx, err := tx.New(tx.KindActivity, map[string]interface{}{"device_id": "cam-1"}, testDID, time.Now())
	require.NoError(t, err)

	restored, err := Restore(c.Blocks(), []tx.Transaction{pendingTx}, Config{Difficulty: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, restored.Height())
	assert.Equal(t, 1, restored.PendingCount())

	// A tampered block makes the restore fail outright.
	blocks := c.Blocks()
	blocks[1].Transactions[0].Payload["seq"] = 42
	blocks[1].Transactions[0].TxID = blocks[1].Transactions[0].ComputeID()
	_, err = Restore(blocks, nil, Config{Difficulty: 1})
	require.Error(t, err)
	var corrupt *CorruptionError
	assert.ErrorAs(t, err, &corrupt)
	assert.Equal(t, ReasonBadMerkleRoot, corrupt.Reason)

	_, err = Restore(nil, nil, Config{})
	assert.Error(t, err, "restore without a genesis block must fail")
}
