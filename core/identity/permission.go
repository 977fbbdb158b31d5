package identity

import (
	"time"
)

// Denial reason codes carried on permission decisions.
const (
	ReasonNoPermission     = "no_permission"
	ReasonActionNotAllowed = "action_not_allowed"
	ReasonRevoked          = "revoked"
	ReasonNotYetValid      = "not_yet_valid"
	ReasonExpired          = "expired"
	ReasonTimeRange        = "time_range"
	ReasonIPNotAllowed     = "ip_not_allowed"
	ReasonLocationMismatch = "location_mismatch"
)

// Permission grants a DID a set of actions on a resource within a validity
// window, optionally narrowed by constraints. Revocation tombstones the
// record instead of deleting it; revoked grants stay visible for audit.
type Permission struct {
	DID         string       `json:"did"`
	Resource    string       `json:"resource"`
	Actions     []string     `json:"actions"`
	GrantedAt   time.Time    `json:"grantedAt"`
	ExpiresAt   time.Time    `json:"expiresAt"`
	Constraints *Constraints `json:"constraints,omitempty"`
	Revoked     bool         `json:"revoked"`
	RevokedAt   *time.Time   `json:"revokedAt,omitempty"`
}

// allowsAction reports whether the grant covers the action.
func (p *Permission) allowsAction(action string) bool {
	for _, a := range p.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// validAt checks revocation and the validity window. GrantedAt itself
// grants; ExpiresAt itself denies. Returns an empty reason when valid.
func (p *Permission) validAt(t time.Time) string {
	if p.Revoked {
		return ReasonRevoked
	}
	if t.Before(p.GrantedAt) {
		return ReasonNotYetValid
	}
	if !t.Before(p.ExpiresAt) {
		return ReasonExpired
	}
	return ""
}

// Decision is the outcome of a permission check. Denial is a first-class
// result, not an error path.
type Decision struct {
	Granted bool   `json:"granted"`
	Reason  string `json:"reason,omitempty"` // denial reason code, empty when granted
}
