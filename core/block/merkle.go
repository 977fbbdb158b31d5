package block

import (
	"crypto/sha256"

	"iotsentry/types/ids"
)

// MerkleRoot computes the Merkle root of a list of transaction IDs by
// pairwise hashing of their hex forms, bottom-up. An odd node at any level
// is paired with itself, which keeps the tree deterministic without
// padding. An empty list hashes to the SHA-256 of the empty string, so the
// function never fails.
func MerkleRoot(txIDs []ids.ID) ids.ID {
	if len(txIDs) == 0 {
		return ids.NewID(nil)
	}
	level := txIDs
	for len(level) > 1 {
		var next []ids.ID
		for i := 0; i < len(level); i += 2 {
			h := sha256.New()
			h.Write([]byte(level[i].String()))
			if i+1 < len(level) {
				h.Write([]byte(level[i+1].String()))
			} else {
				// Odd node: hash with itself
				h.Write([]byte(level[i].String()))
			}
			var combined ids.ID
			copy(combined[:], h.Sum(nil))
			next = append(next, combined)
		}
		level = next
	}
	return level[0]
}
