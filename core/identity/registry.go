// Package identity manages decentralized identifiers and the permission
// grants attached to them. The registry owns all DID records exclusively;
// everything else refers to identities by DID string.
package identity

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrDuplicateDID is returned when a kind+label pair is registered twice.
	ErrDuplicateDID = errors.New("did already registered")
	// ErrUnknownDID is returned when an operation references a DID that was
	// never created.
	ErrUnknownDID = errors.New("unknown did")
	// ErrInvalidConstraint is returned for malformed constraint values at
	// grant time.
	ErrInvalidConstraint = errors.New("invalid constraint")
	// ErrInvalidEntityKind is returned for an unrecognised entity kind.
	ErrInvalidEntityKind = errors.New("invalid entity kind")
)

// DefaultNamespace is the DID method namespace used unless a registry is
// created with an explicit one.
const DefaultNamespace = "iotsentry"

// Registry stores DID records and permission grants. Grants and
// revocations are rare relative to checks, so a single RWMutex with
// last-writer-wins semantics is sufficient.
type Registry struct {
	mu        sync.RWMutex
	namespace string
	dids      map[string]Record
	perms     map[string][]*Permission // keyed by DID

	now func() time.Time
}

// NewRegistry creates a registry and bootstraps the system identities the
// evaluators write transactions under.
func NewRegistry() *Registry {
	r := &Registry{
		namespace: DefaultNamespace,
		dids:      make(map[string]Record),
		perms:     make(map[string][]*Permission),
		now:       time.Now,
	}
	// System DIDs always exist; CreateDID cannot fail on a fresh registry.
	r.CreateDID(KindSystem, "core")
	r.CreateDID(KindSystem, "miner")
	return r
}

// SetClock overrides the time source. Intended for tests.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// SystemDID returns the DID of the built-in core system identity.
func (r *Registry) SystemDID() string {
	return deriveDID(r.namespace, KindSystem, "core")
}

// CreateDID derives and stores a new identity record. The DID string is a
// pure function of kind and label within the registry namespace, so
// re-registering the same pair is a duplicate, not a new identity.
func (r *Registry) CreateDID(kind EntityKind, label string) (Record, error) {
	if !kind.Valid() {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidEntityKind, kind)
	}
	if label == "" {
		return Record{}, fmt.Errorf("%w: empty label", ErrInvalidEntityKind)
	}
	did := deriveDID(r.namespace, kind, label)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.dids[did]; exists {
		return Record{}, fmt.Errorf("%w: %s", ErrDuplicateDID, did)
	}
	rec := Record{
		DID:       did,
		Kind:      kind,
		Label:     label,
		PublicKey: derivePublicKey(r.namespace, kind, label),
		CreatedAt: r.now().UTC(),
	}
	r.dids[did] = rec
	return rec, nil
}

// Get looks up a DID record.
func (r *Registry) Get(did string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.dids[did]
	return rec, ok
}

// List returns all registered DID records.
func (r *Registry) List() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.dids))
	for _, rec := range r.dids {
		out = append(out, rec)
	}
	return out
}

// Count returns the number of registered DIDs.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.dids)
}

// GrantPermission stores a new grant for a known DID. The validity window
// opens now and closes after durationHours. Constraints are validated here
// so malformed grants fail at grant time.
func (r *Registry) GrantPermission(did, resource string, actions []string, durationHours int, constraints *Constraints) (Permission, error) {
	if err := constraints.Validate(); err != nil {
		return Permission{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.dids[did]; !exists {
		return Permission{}, fmt.Errorf("%w: %s", ErrUnknownDID, did)
	}
	grantedAt := r.now().UTC()
	perm := &Permission{
		DID:         did,
		Resource:    resource,
		Actions:     actions,
		GrantedAt:   grantedAt,
		ExpiresAt:   grantedAt.Add(time.Duration(durationHours) * time.Hour),
		Constraints: constraints,
	}
	r.perms[did] = append(r.perms[did], perm)
	return *perm, nil
}

// RevokePermission tombstones every grant the DID holds on the resource.
// The records remain for audit; only the Revoked flag changes.
func (r *Registry) RevokePermission(did, resource string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.dids[did]; !exists {
		return fmt.Errorf("%w: %s", ErrUnknownDID, did)
	}
	revokedAt := r.now().UTC()
	for _, perm := range r.perms[did] {
		if perm.Resource == resource && !perm.Revoked {
			perm.Revoked = true
			at := revokedAt
			perm.RevokedAt = &at
		}
	}
	return nil
}

// CheckPermission evaluates whether the DID may perform the action on the
// resource under the given context. It fails closed: any missing grant,
// expired window or failed constraint is a denial with a specific reason.
// If several grants cover the resource, one passing grant wins; otherwise
// the first failure reason encountered is reported.
func (r *Registry) CheckPermission(did, resource, action string, rc RequestContext) Decision {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rc.Time.IsZero() {
		rc.Time = r.now()
	}

	firstReason := ""
	matched := false
	for _, perm := range r.perms[did] {
		if perm.Resource != resource {
			continue
		}
		matched = true
		reason := r.evaluate(perm, action, rc)
		if reason == "" {
			return Decision{Granted: true}
		}
		if firstReason == "" {
			firstReason = reason
		}
	}
	if !matched {
		return Decision{Granted: false, Reason: ReasonNoPermission}
	}
	return Decision{Granted: false, Reason: firstReason}
}

func (r *Registry) evaluate(perm *Permission, action string, rc RequestContext) string {
	if !perm.allowsAction(action) {
		return ReasonActionNotAllowed
	}
	if reason := perm.validAt(rc.Time); reason != "" {
		return reason
	}
	if ok, reason := perm.Constraints.Check(rc); !ok {
		return reason
	}
	return ""
}

// Permissions returns copies of all grants held by a DID, including
// revoked and expired ones.
func (r *Registry) Permissions(did string) []Permission {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Permission, 0, len(r.perms[did]))
	for _, perm := range r.perms[did] {
		out = append(out, *perm)
	}
	return out
}
