package tx

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"iotsentry/types/ids"
)

// Kind is the transaction category recorded on the ledger.
type Kind string

const (
	KindGenesis          Kind = "genesis"
	KindAccess           Kind = "access"
	KindFirmware         Kind = "firmware"
	KindActivity         Kind = "activity"
	KindAlert            Kind = "alert"
	KindPermissionGrant  Kind = "permission_grant"
	KindPermissionRevoke Kind = "permission_revoke"
)

var (
	// ErrInvalidKind is returned when a transaction kind is not one of the
	// known categories.
	ErrInvalidKind = errors.New("invalid transaction kind")
	// ErrInvalidIdentity is returned when a transaction carries an empty DID.
	ErrInvalidIdentity = errors.New("invalid identity: empty DID")
)

// Valid reports whether k is a known transaction kind.
func (k Kind) Valid() bool {
	switch k {
	case KindGenesis, KindAccess, KindFirmware, KindActivity, KindAlert,
		KindPermissionGrant, KindPermissionRevoke:
		return true
	}
	return false
}

// Transaction is an immutable ledger record. TxID is a pure function of the
// remaining fields; mutating any of them invalidates the ID.
type Transaction struct {
	TxID      ids.ID                 `json:"txId"`
	Kind      Kind                   `json:"kind"`
	Payload   map[string]interface{} `json:"payload"`
	DID       string                 `json:"did"`
	Timestamp time.Time              `json:"timestamp"`
}

// New builds a transaction and computes its content hash. The kind must be
// known and the DID non-empty.
func New(kind Kind, payload map[string]interface{}, did string, at time.Time) (Transaction, error) {
	if !kind.Valid() {
		return Transaction{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if did == "" {
		return Transaction{}, ErrInvalidIdentity
	}
	t := Transaction{
		Kind:      kind,
		Payload:   payload,
		DID:       did,
		Timestamp: at.UTC(),
	}
	t.TxID = t.ComputeID()
	return t, nil
}

// ComputeID hashes the transaction content (everything except TxID itself).
// encoding/json emits map keys in sorted order, so the encoding is canonical
// and survives a marshal/unmarshal round trip.
func (t *Transaction) ComputeID() ids.ID {
	content := struct {
		Kind      Kind                   `json:"kind"`
		Payload   map[string]interface{} `json:"payload"`
		DID       string                 `json:"did"`
		Timestamp time.Time              `json:"timestamp"`
	}{t.Kind, t.Payload, t.DID, t.Timestamp}
	data, _ := json.Marshal(content)
	return ids.NewID(data)
}

// VerifyID recomputes the content hash and compares it to the stored TxID.
func (t *Transaction) VerifyID() bool {
	return t.TxID == t.ComputeID()
}
