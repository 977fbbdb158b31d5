package ids

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ID is a 32-byte SHA-256 digest. It marshals to and from JSON as a
// 64-character lowercase hex string.
type ID [32]byte

// Empty is the zero-value ID (all zeros). It is the PrevHash of the
// genesis block.
var Empty ID

// NewID hashes the input bytes into an ID.
func NewID(data []byte) ID {
	return ID(sha256.Sum256(data))
}

// FromString parses a 64-character hex string into an ID.
func FromString(s string) (ID, error) {
	var id ID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("id must be %d bytes, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// String converts an ID to its hex form.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns the first 8 hex characters, for log lines.
func (id ID) Short() string {
	return id.String()[:8]
}

// IsEmpty reports whether the ID is all zeros.
func (id ID) IsEmpty() bool {
	return id == Empty
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := FromString(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
