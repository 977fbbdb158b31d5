package identity

import (
	"fmt"
	"time"

	"iotsentry/types/ids"
)

// EntityKind namespaces a DID by what it identifies.
type EntityKind string

const (
	KindUser         EntityKind = "user"
	KindDevice       EntityKind = "device"
	KindManufacturer EntityKind = "manufacturer"
	KindSystem       EntityKind = "system"
)

// Valid reports whether k is a known entity kind.
func (k EntityKind) Valid() bool {
	switch k {
	case KindUser, KindDevice, KindManufacturer, KindSystem:
		return true
	}
	return false
}

// Record is an identity entry. Records are immutable after creation; the
// registry supports only creation and lookup, never update.
type Record struct {
	DID       string     `json:"did"`
	Kind      EntityKind `json:"kind"`
	Label     string     `json:"label"`
	PublicKey string     `json:"publicKey"`
	CreatedAt time.Time  `json:"createdAt"`
}

// deriveDID builds the DID string deterministically from the registry
// namespace, entity kind and label.
func deriveDID(namespace string, kind EntityKind, label string) string {
	return fmt.Sprintf("did:%s:%s:%s", namespace, kind, label)
}

// derivePublicKey produces a deterministic placeholder key. Real key
// material is out of scope; the system compares hashes, not signatures.
func derivePublicKey(namespace string, kind EntityKind, label string) string {
	return ids.NewID([]byte(fmt.Sprintf("%s:%s:%s", namespace, kind, label))).String()
}
