// Package storage persists the chain (blocks plus pending pool) in LevelDB.
// Blocks are keyed by height so a restore reads them back in order; the
// restored chain is always validated before it is trusted.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"

	"iotsentry/core/block"
	"iotsentry/core/ledger"
	"iotsentry/core/tx"
)

const (
	blockKeyFmt = "block:%016d"
	heightKey   = "chain:height"
	poolKey     = "chain:pool"
	tipKey      = "chain:tip"
)

// Store wraps a LevelDB handle holding one chain.
type Store struct {
	db *leveldb.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open chain db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveChain writes all blocks, the chain height, the tip hash and the
// pending pool in one batch, so a crash can never persist a half-written
// chain state.
func (s *Store) SaveChain(c *ledger.Chain) error {
	blocks := c.Blocks()
	pending := c.PendingSnapshot()

	batch := new(leveldb.Batch)
	for i := range blocks {
		data, err := blocks[i].Serialize()
		if err != nil {
			return fmt.Errorf("serialize block %d: %w", blocks[i].Height, err)
		}
		enc, err := Encrypt(data)
		if err != nil {
			return fmt.Errorf("encrypt block %d: %w", blocks[i].Height, err)
		}
		batch.Put([]byte(fmt.Sprintf(blockKeyFmt, blocks[i].Height)), enc)
	}
	heightData, _ := json.Marshal(len(blocks))
	batch.Put([]byte(heightKey), heightData)
	batch.Put([]byte(tipKey), []byte(blocks[len(blocks)-1].Hash.String()))

	poolData, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("serialize pool: %w", err)
	}
	encPool, err := Encrypt(poolData)
	if err != nil {
		return fmt.Errorf("encrypt pool: %w", err)
	}
	batch.Put([]byte(poolKey), encPool)

	return s.db.Write(batch, nil)
}

// AppendBlock persists one newly mined block and the updated pool state.
func (s *Store) AppendBlock(b *block.Block, pending []tx.Transaction) error {
	data, err := b.Serialize()
	if err != nil {
		return fmt.Errorf("serialize block %d: %w", b.Height, err)
	}
	enc, err := Encrypt(data)
	if err != nil {
		return fmt.Errorf("encrypt block %d: %w", b.Height, err)
	}
	poolData, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("serialize pool: %w", err)
	}
	encPool, err := Encrypt(poolData)
	if err != nil {
		return fmt.Errorf("encrypt pool: %w", err)
	}

	batch := new(leveldb.Batch)
	batch.Put([]byte(fmt.Sprintf(blockKeyFmt, b.Height)), enc)
	heightData, _ := json.Marshal(int(b.Height) + 1)
	batch.Put([]byte(heightKey), heightData)
	batch.Put([]byte(tipKey), []byte(b.Hash.String()))
	batch.Put([]byte(poolKey), encPool)
	return s.db.Write(batch, nil)
}

// HasChain reports whether a chain was previously persisted.
func (s *Store) HasChain() (bool, error) {
	_, err := s.db.Get([]byte(heightKey), nil)
	if errors.Is(err, ldberrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// LoadChain reads the persisted blocks and pool back and rebuilds a
// validated chain. Any missing block, decode failure or validation failure
// is a load-time error: the system refuses to operate on an unvalidated
// chain rather than trust a partially readable one.
func (s *Store) LoadChain(cfg ledger.Config) (*ledger.Chain, error) {
	heightData, err := s.db.Get([]byte(heightKey), nil)
	if err != nil {
		return nil, fmt.Errorf("load chain height: %w", err)
	}
	var height int
	if err := json.Unmarshal(heightData, &height); err != nil {
		return nil, fmt.Errorf("decode chain height: %w", err)
	}
	if height <= 0 {
		return nil, fmt.Errorf("stored chain height %d is invalid", height)
	}

	blocks := make([]block.Block, 0, height)
	for h := 0; h < height; h++ {
		enc, err := s.db.Get([]byte(fmt.Sprintf(blockKeyFmt, h)), nil)
		if err != nil {
			return nil, fmt.Errorf("load block %d: %w", h, err)
		}
		data, err := Decrypt(enc)
		if err != nil {
			return nil, fmt.Errorf("decrypt block %d: %w", h, err)
		}
		b, err := block.Deserialize(data)
		if err != nil {
			return nil, fmt.Errorf("decode block %d: %w", h, err)
		}
		blocks = append(blocks, *b)
	}

	var pending []tx.Transaction
	if encPool, err := s.db.Get([]byte(poolKey), nil); err == nil {
		poolData, err := Decrypt(encPool)
		if err != nil {
			return nil, fmt.Errorf("decrypt pool: %w", err)
		}
		if err := json.Unmarshal(poolData, &pending); err != nil {
			return nil, fmt.Errorf("decode pool: %w", err)
		}
	} else if !errors.Is(err, ldberrors.ErrNotFound) {
		return nil, fmt.Errorf("load pool: %w", err)
	}

	return ledger.Restore(blocks, pending, cfg)
}
