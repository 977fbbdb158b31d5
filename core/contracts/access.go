// Package contracts holds the contract-style evaluators that consume the
// ledger: access control, firmware integrity and activity logging. Each
// evaluator writes its outcome to the pending pool; mining is left to the
// caller so writes can be batched.
package contracts

import (
	"time"

	"iotsentry/core/audit"
	"iotsentry/core/identity"
	"iotsentry/core/ledger"
	"iotsentry/core/tx"
	"iotsentry/types/ids"
)

// AccessController evaluates access requests against the identity registry
// and records every attempt on the ledger, granted or denied.
type AccessController struct {
	registry *identity.Registry
	chain    *ledger.Chain
	audit    audit.Logger
}

// NewAccessController wires the evaluator to its registry and ledger.
func NewAccessController(registry *identity.Registry, chain *ledger.Chain, auditLogger audit.Logger) *AccessController {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &AccessController{registry: registry, chain: chain, audit: auditLogger}
}

// AccessResult is the structured outcome of an access request.
type AccessResult struct {
	Granted   bool      `json:"granted"`
	Reason    string    `json:"reason,omitempty"`
	DID       string    `json:"did"`
	DeviceID  string    `json:"deviceId"`
	Action    string    `json:"action"`
	TxID      ids.ID    `json:"txId"`
	Timestamp time.Time `json:"timestamp"`
}

// RequestAccess checks the permission and appends an access transaction to
// the pending pool regardless of the outcome. Denial is a result, not an
// error; the returned error covers only ledger append failures.
func (ac *AccessController) RequestAccess(did, deviceID, action string, rc identity.RequestContext) (AccessResult, error) {
	decision := ac.registry.CheckPermission(did, deviceID, action, rc)

	when := rc.Time
	if when.IsZero() {
		when = time.Now()
	}
	payload := map[string]interface{}{
		"device_id": deviceID,
		"action":    action,
		"granted":   decision.Granted,
		"reason":    decision.Reason,
		"context": map[string]interface{}{
			"ip":       rc.IP,
			"location": rc.Location,
		},
		"timestamp": when.UTC().Format(time.RFC3339),
	}
	txID, err := ac.chain.AddTransaction(tx.KindAccess, payload, did)
	if err != nil {
		return AccessResult{}, err
	}

	result := "granted"
	if !decision.Granted {
		result = "denied"
	}
	ac.audit.LogEvent(audit.Event{
		Timestamp: when,
		EventType: "AccessDecision",
		EntityID:  did,
		Result:    result,
		Reason:    decision.Reason,
		Metadata:  map[string]string{"device": deviceID, "action": action},
	})

	return AccessResult{
		Granted:   decision.Granted,
		Reason:    decision.Reason,
		DID:       did,
		DeviceID:  deviceID,
		Action:    action,
		TxID:      txID,
		Timestamp: when.UTC(),
	}, nil
}

// GrantResult reports a stored grant together with its ledger record.
type GrantResult struct {
	Permission identity.Permission `json:"permission"`
	TxID       ids.ID              `json:"txId"`
}

// GrantAccess stores a permission for the target DID and logs the grant as
// a permission_grant transaction under the granting admin's DID.
func (ac *AccessController) GrantAccess(adminDID, targetDID, deviceID string, actions []string, durationHours int, constraints *identity.Constraints) (GrantResult, error) {
	perm, err := ac.registry.GrantPermission(targetDID, deviceID, actions, durationHours, constraints)
	if err != nil {
		return GrantResult{}, err
	}
	payload := map[string]interface{}{
		"target_did":     targetDID,
		"device_id":      deviceID,
		"actions":        actions,
		"duration_hours": durationHours,
		"expires_at":     perm.ExpiresAt.Format(time.RFC3339),
	}
	if constraints != nil {
		payload["constraints"] = constraintsPayload(constraints)
	}
	txID, err := ac.chain.AddTransaction(tx.KindPermissionGrant, payload, adminDID)
	if err != nil {
		return GrantResult{}, err
	}
	return GrantResult{Permission: perm, TxID: txID}, nil
}

// RevokeAccess tombstones the target's grants on the device and logs the
// revocation itself, per the audit requirement.
func (ac *AccessController) RevokeAccess(adminDID, targetDID, deviceID string) (ids.ID, error) {
	if err := ac.registry.RevokePermission(targetDID, deviceID); err != nil {
		return ids.Empty, err
	}
	payload := map[string]interface{}{
		"target_did": targetDID,
		"device_id":  deviceID,
	}
	return ac.chain.AddTransaction(tx.KindPermissionRevoke, payload, adminDID)
}

func constraintsPayload(c *identity.Constraints) map[string]interface{} {
	out := map[string]interface{}{}
	if c.TimeRange != nil {
		out["time_range"] = c.TimeRange.String()
	}
	if len(c.AllowedIPs) > 0 {
		out["allowed_ips"] = c.AllowedIPs
	}
	if c.Location != "" {
		out["location"] = c.Location
	}
	return out
}
