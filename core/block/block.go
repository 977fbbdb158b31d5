package block

import (
	"encoding/json"
	"strings"
	"time"

	"iotsentry/core/tx"
	"iotsentry/types/ids"
)

// Block is one committed unit of the ledger. Hash is a pure function of the
// header fields; validation always recomputes it rather than trusting the
// stored value.
type Block struct {
	Height       uint64           `json:"height"`           // genesis = 0
	Timestamp    time.Time        `json:"timestamp"`        // UTC creation time
	Transactions []tx.Transaction `json:"transactions"`     // mined in pool order
	MerkleRoot   ids.ID           `json:"merkleRoot"`       // root over transaction IDs
	PrevHash     ids.ID           `json:"prevHash"`         // parent block hash (genesis: all zeros)
	Nonce        uint64           `json:"nonce"`            // proof-of-work counter
	Difficulty   int              `json:"difficulty"`       // leading zero hex digits required
	Hash         ids.ID           `json:"hash"`             // cached ComputeHash result
}

// ComputeHash hashes the block header (everything except Hash itself).
// The transactions are covered indirectly through MerkleRoot.
func (b *Block) ComputeHash() ids.ID {
	header := struct {
		Height     uint64    `json:"height"`
		Timestamp  time.Time `json:"timestamp"`
		MerkleRoot ids.ID    `json:"merkleRoot"`
		PrevHash   ids.ID    `json:"prevHash"`
		Nonce      uint64    `json:"nonce"`
		Difficulty int       `json:"difficulty"`
	}{b.Height, b.Timestamp, b.MerkleRoot, b.PrevHash, b.Nonce, b.Difficulty}
	data, _ := json.Marshal(header)
	return ids.NewID(data)
}

// ComputeMerkleRoot rebuilds the Merkle root from the block's transactions.
func (b *Block) ComputeMerkleRoot() ids.ID {
	txIDs := make([]ids.ID, len(b.Transactions))
	for i, t := range b.Transactions {
		txIDs[i] = t.TxID
	}
	return MerkleRoot(txIDs)
}

// MeetsDifficulty reports whether the stored hash satisfies the block's
// difficulty target.
func (b *Block) MeetsDifficulty() bool {
	return HashMeetsDifficulty(b.Hash, b.Difficulty)
}

// HashMeetsDifficulty checks the proof-of-work predicate: the hex digest
// must start with difficulty zero digits. Difficulty zero always passes.
func HashMeetsDifficulty(h ids.ID, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	return strings.HasPrefix(h.String(), strings.Repeat("0", difficulty))
}

// Serialize encodes the block as JSON.
func (b *Block) Serialize() ([]byte, error) {
	return json.Marshal(b)
}

// Deserialize decodes JSON into a Block.
func Deserialize(data []byte) (*Block, error) {
	var b Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}
