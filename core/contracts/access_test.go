package contracts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iotsentry/core/identity"
	"iotsentry/core/ledger"
	"iotsentry/core/tx"
)

func newAccessFixture(t *testing.T) (*AccessController, *identity.Registry, *ledger.Chain) {
	t.Helper()
	chain := ledger.New(ledger.Config{Difficulty: 1})
	registry := identity.NewRegistry()
	return NewAccessController(registry, chain, nil), registry, chain
}

func pendingOfKind(c *ledger.Chain, kind tx.Kind) []tx.Transaction {
	var out []tx.Transaction
	for _, t := range c.PendingSnapshot() {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

func TestRequestAccessGranted(t *testing.T) {
	ac, registry, chain := newAccessFixture(t)
	rec, err := registry.CreateDID(identity.KindUser, "alice")
	require.NoError(t, err)
	_, err = registry.GrantPermission(rec.DID, "lock-1", []string{"unlock"}, 24, nil)
	require.NoError(t, err)

	result, err := ac.RequestAccess(rec.DID, "lock-1", "unlock", identity.RequestContext{})
	require.NoError(t, err)
	assert.True(t, result.Granted)
	assert.Empty(t, result.Reason)
	assert.False(t, result.TxID.IsEmpty())

	logged := pendingOfKind(chain, tx.KindAccess)
	require.Len(t, logged, 1)
	assert.Equal(t, true, logged[0].Payload["granted"])
	assert.Equal(t, "lock-1", logged[0].Payload["device_id"])
}

// A denied request still produces a ledger record; silence would hide the
// attempt from the audit trail.
func TestRequestAccessDeniedIsLogged(t *testing.T) {
	ac, registry, chain := newAccessFixture(t)
	rec, err := registry.CreateDID(identity.KindUser, "mallory")
	require.NoError(t, err)

	result, err := ac.RequestAccess(rec.DID, "lock-1", "unlock", identity.RequestContext{})
	require.NoError(t, err, "denial is a result, not an error")
	assert.False(t, result.Granted)
	assert.Equal(t, identity.ReasonNoPermission, result.Reason)

	logged := pendingOfKind(chain, tx.KindAccess)
	require.Len(t, logged, 1)
	assert.Equal(t, false, logged[0].Payload["granted"])
	assert.Equal(t, identity.ReasonNoPermission, logged[0].Payload["reason"])
}

func TestRequestAccessHonorsConstraints(t *testing.T) {
	ac, registry, _ := newAccessFixture(t)
	registry.SetClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) })
	rec, _ := registry.CreateDID(identity.KindUser, "alice")

	hours, err := identity.ParseTimeRange("06:00-22:00")
	require.NoError(t, err)
	_, err = registry.GrantPermission(rec.DID, "lock-1", []string{"unlock"}, 24,
		&identity.Constraints{TimeRange: &hours})
	require.NoError(t, err)

	lateNight := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)
	result, err := ac.RequestAccess(rec.DID, "lock-1", "unlock", identity.RequestContext{Time: lateNight})
	require.NoError(t, err)
	assert.False(t, result.Granted)
	assert.Equal(t, identity.ReasonTimeRange, result.Reason)
}

func TestGrantAccessLogsGrantTransaction(t *testing.T) {
	ac, registry, chain := newAccessFixture(t)
	admin := registry.SystemDID()
	rec, _ := registry.CreateDID(identity.KindUser, "alice")

	hours, _ := identity.ParseTimeRange("06:00-22:00")
	grant, err := ac.GrantAccess(admin, rec.DID, "lock-1", []string{"unlock"}, 48,
		&identity.Constraints{TimeRange: &hours, Location: "home"})
	require.NoError(t, err)
	assert.Equal(t, rec.DID, grant.Permission.DID)
	assert.False(t, grant.TxID.IsEmpty())

	logged := pendingOfKind(chain, tx.KindPermissionGrant)
	require.Len(t, logged, 1)
	assert.Equal(t, admin, logged[0].DID, "grant is recorded under the granting admin")
	assert.Equal(t, rec.DID, logged[0].Payload["target_did"])
	constraints, ok := logged[0].Payload["constraints"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "06:00-22:00", constraints["time_range"])
	assert.Equal(t, "home", constraints["location"])
}

func TestGrantAccessUnknownTarget(t *testing.T) {
	ac, registry, chain := newAccessFixture(t)
	_, err := ac.GrantAccess(registry.SystemDID(), "did:iotsentry:user:ghost", "lock-1", []string{"unlock"}, 24, nil)
	assert.ErrorIs(t, err, identity.ErrUnknownDID)
	assert.Empty(t, pendingOfKind(chain, tx.KindPermissionGrant), "failed grant leaves no ledger record")
}

func TestRevokeAccessLogsAndDenies(t *testing.T) {
	ac, registry, chain := newAccessFixture(t)
	admin := registry.SystemDID()
	rec, _ := registry.CreateDID(identity.KindUser, "alice")
	_, err := ac.GrantAccess(admin, rec.DID, "lock-1", []string{"unlock"}, 24, nil)
	require.NoError(t, err)

	txID, err := ac.RevokeAccess(admin, rec.DID, "lock-1")
	require.NoError(t, err)
	assert.False(t, txID.IsEmpty())

	result, err := ac.RequestAccess(rec.DID, "lock-1", "unlock", identity.RequestContext{})
	require.NoError(t, err)
	assert.False(t, result.Granted)
	assert.Equal(t, identity.ReasonRevoked, result.Reason)

	require.Len(t, pendingOfKind(chain, tx.KindPermissionRevoke), 1)
}

func TestAccessRecordsSurviveMining(t *testing.T) {
	ac, registry, chain := newAccessFixture(t)
	rec, _ := registry.CreateDID(identity.KindUser, "alice")

	_, err := ac.RequestAccess(rec.DID, "lock-1", "unlock", identity.RequestContext{})
	require.NoError(t, err)
	_, err = chain.MinePending(context.Background())
	require.NoError(t, err)

	committed := chain.History(ledger.Filter{DeviceID: "lock-1", Kind: tx.KindAccess}).Collect(0)
	require.Len(t, committed, 1)
	assert.True(t, chain.Validate().OK)
}
