package block

import (
	"strings"
	"testing"
	"time"

	"iotsentry/core/tx"
	"iotsentry/types/ids"
)

func testBlock(t *testing.T) Block {
	t.Helper()
	tx1, err := tx.New(tx.KindActivity, map[string]interface{}{"device_id": "lock-1"}, "did:iotsentry:device:lock-1", time.Now())
	if err != nil {
		t.Fatalf("building transaction: %v", err)
	}
	b := Block{
		Height:       1,
		Timestamp:    time.Now().UTC(),
		Transactions: []tx.Transaction{tx1},
		PrevHash:     ids.NewID([]byte("parent")),
		Nonce:        7,
		Difficulty:   0,
	}
	b.MerkleRoot = b.ComputeMerkleRoot()
	b.Hash = b.ComputeHash()
	return b
}

func TestComputeHashCoversHeaderFields(t *testing.T) {
	b := testBlock(t)
	orig := b.ComputeHash()

	b.Nonce++
	if b.ComputeHash() == orig {
		t.Error("hash should change when nonce changes")
	}
	b.Nonce--

	b.PrevHash = ids.NewID([]byte("other-parent"))
	if b.ComputeHash() == orig {
		t.Error("hash should change when prevHash changes")
	}
}

func TestHashMeetsDifficulty(t *testing.T) {
	id, err := ids.FromString("00ab" + strings.Repeat("f", 60))
	if err != nil {
		t.Fatal(err)
	}
	if !HashMeetsDifficulty(id, 2) {
		t.Error("hash with two leading zero digits should meet difficulty 2")
	}
	if HashMeetsDifficulty(id, 3) {
		t.Error("hash should not meet difficulty 3")
	}
	if !HashMeetsDifficulty(id, 0) {
		t.Error("difficulty 0 should always pass")
	}
}

func TestBlockSerializationRoundTrip(t *testing.T) {
	b := testBlock(t)
	data, err := b.Serialize()
	if err != nil {
		t.Fatalf("failed to marshal block: %v", err)
	}
	out, err := Deserialize(data)
	if err != nil {
		t.Fatalf("failed to unmarshal block: %v", err)
	}
	if out.Hash != b.Hash || out.MerkleRoot != b.MerkleRoot {
		t.Errorf("hashes changed across serialization: %+v vs %+v", out, b)
	}
	if out.ComputeHash() != b.Hash {
		t.Error("recomputed hash should match after round trip")
	}
	if len(out.Transactions) != 1 || !out.Transactions[0].VerifyID() {
		t.Error("transaction should survive round trip with a valid content hash")
	}
}
