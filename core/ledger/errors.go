package ledger

import (
	"errors"
	"fmt"
)

// ErrEmptyPool is returned by MinePending when the pool is empty and the
// chain is configured to treat that as a failure.
var ErrEmptyPool = errors.New("no pending transactions to mine")

// Reason identifies which validation check a block failed.
type Reason string

const (
	ReasonBadMerkleRoot    Reason = "bad-merkle-root"
	ReasonBadHash          Reason = "bad-hash"
	ReasonDifficultyNotMet Reason = "difficulty-not-met"
	ReasonBadLinkage       Reason = "bad-linkage"
)

// CorruptionError reports the first block that failed chain validation.
// It is surfaced to the orchestrator as a system-health-critical condition
// and is never auto-repaired.
type CorruptionError struct {
	Height uint64
	Reason Reason
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("chain corrupted at block %d: %s", e.Height, e.Reason)
}

// ValidationResult is the outcome of a full chain validation pass.
type ValidationResult struct {
	OK     bool   `json:"ok"`
	Height uint64 `json:"height,omitempty"` // first failing block
	Reason Reason `json:"reason,omitempty"`
}

// Err converts a failed result into a *CorruptionError, nil otherwise.
func (r ValidationResult) Err() error {
	if r.OK {
		return nil
	}
	return &CorruptionError{Height: r.Height, Reason: r.Reason}
}
