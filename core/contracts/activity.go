package contracts

import (
	"time"

	"iotsentry/core/ledger"
	"iotsentry/core/tx"
	"iotsentry/types/ids"
)

// ActivityLog records device activity as immutable ledger transactions.
type ActivityLog struct {
	chain *ledger.Chain
}

// NewActivityLog wires the log to the ledger.
func NewActivityLog(chain *ledger.Chain) *ActivityLog {
	return &ActivityLog{chain: chain}
}

// Record appends an activity transaction for the device to the pending
// pool and returns its transaction ID.
func (al *ActivityLog) Record(deviceID, activityType string, details map[string]interface{}, did string) (ids.ID, error) {
	payload := map[string]interface{}{
		"device_id":     deviceID,
		"activity_type": activityType,
		"details":       details,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	}
	return al.chain.AddTransaction(tx.KindActivity, payload, did)
}

// DeviceHistory returns the committed activity transactions for a device,
// newest first. limit <= 0 returns everything.
func (al *ActivityLog) DeviceHistory(deviceID string, limit int) []tx.Transaction {
	all := al.chain.History(ledger.Filter{Kind: tx.KindActivity, DeviceID: deviceID}).Collect(0)
	// History yields oldest first; reverse for most-recent-first.
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// VerifyIntegrity reports whether the chain holding the activity log still
// validates end to end.
func (al *ActivityLog) VerifyIntegrity() bool {
	return al.chain.Validate().OK
}
