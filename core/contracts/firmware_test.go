package contracts

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iotsentry/core/ledger"
	"iotsentry/core/tx"
)

const mfrDID = "did:iotsentry:manufacturer:acme"

func fwHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func newFirmwareFixture(t *testing.T) (*FirmwareValidator, *ledger.Chain) {
	t.Helper()
	chain := ledger.New(ledger.Config{Difficulty: 1})
	return NewFirmwareValidator(chain, nil), chain
}

func TestRegisterFirmware(t *testing.T) {
	fv, chain := newFirmwareFixture(t)

	rec, err := fv.Register("cam-1", "1.0.0", fwHash("fw-1.0.0"), mfrDID)
	require.NoError(t, err)
	assert.Equal(t, "cam-1", rec.DeviceID)
	assert.Equal(t, mfrDID, rec.ManufacturerDID)

	stored, ok := fv.Lookup("cam-1", "1.0.0")
	require.True(t, ok)
	assert.Equal(t, rec.Hash, stored.Hash)

	logged := pendingOfKind(chain, tx.KindFirmware)
	require.Len(t, logged, 1)
	assert.Equal(t, mfrDID, logged[0].DID)
	assert.Equal(t, fwHash("fw-1.0.0"), logged[0].Payload["firmware_hash"])
}

func TestRegisterIdenticalHashIsIdempotent(t *testing.T) {
	fv, chain := newFirmwareFixture(t)
	_, err := fv.Register("cam-1", "1.0.0", fwHash("fw"), mfrDID)
	require.NoError(t, err)

	rec, err := fv.Register("cam-1", "1.0.0", fwHash("fw"), mfrDID)
	require.NoError(t, err)
	assert.Equal(t, fwHash("fw"), rec.Hash)
	assert.Len(t, pendingOfKind(chain, tx.KindFirmware), 1, "no second ledger record")
}

func TestRegisterConflictingHashIsFlagged(t *testing.T) {
	fv, chain := newFirmwareFixture(t)
	_, err := fv.Register("cam-1", "1.0.0", fwHash("genuine"), mfrDID)
	require.NoError(t, err)

	_, err = fv.Register("cam-1", "1.0.0", fwHash("swapped"), mfrDID)
	assert.ErrorIs(t, err, ErrDuplicateFirmwareVersion)

	alerts := pendingOfKind(chain, tx.KindAlert)
	require.Len(t, alerts, 1)
	assert.Equal(t, "firmware_reregistration_conflict", alerts[0].Payload["alert_type"])
	assert.Equal(t, "high", alerts[0].Payload["severity"])

	// The original registration is untouched.
	stored, ok := fv.Lookup("cam-1", "1.0.0")
	require.True(t, ok)
	assert.Equal(t, fwHash("genuine"), stored.Hash)
}

func TestValidateMatchingFirmware(t *testing.T) {
	fv, chain := newFirmwareFixture(t)
	_, err := fv.Register("cam-1", "1.0.0", fwHash("fw"), mfrDID)
	require.NoError(t, err)

	outcome, err := fv.Validate("cam-1", "1.0.0", fwHash("fw"))
	require.NoError(t, err)
	assert.True(t, outcome.Valid)
	assert.Empty(t, outcome.Reason)
	assert.False(t, outcome.TxID.IsEmpty())

	assert.Len(t, pendingOfKind(chain, tx.KindFirmware), 2, "registration plus validation attempt")
	assert.Empty(t, pendingOfKind(chain, tx.KindAlert))
}

func TestValidateTamperedFirmware(t *testing.T) {
	fv, chain := newFirmwareFixture(t)
	_, err := fv.Register("cam-1", "1.0.0", fwHash("genuine"), mfrDID)
	require.NoError(t, err)

	outcome, err := fv.Validate("cam-1", "1.0.0", fwHash("tampered"))
	require.NoError(t, err, "tampering is an outcome, not an error")
	assert.False(t, outcome.Valid)
	assert.Equal(t, TamperReason, outcome.Reason)
	assert.Equal(t, fwHash("genuine"), outcome.ExpectedHash)
	assert.Equal(t, fwHash("tampered"), outcome.ProvidedHash)

	alerts := pendingOfKind(chain, tx.KindAlert)
	require.Len(t, alerts, 1)
	assert.Equal(t, "firmware_tampering", alerts[0].Payload["alert_type"])
	assert.Equal(t, "critical", alerts[0].Payload["severity"])
	assert.NotEmpty(t, alerts[0].Payload["alert_id"])
	assert.Equal(t, "did:iotsentry:device:cam-1", alerts[0].DID)
}

func TestValidateUnknownFirmware(t *testing.T) {
	fv, chain := newFirmwareFixture(t)
	_, err := fv.Validate("cam-9", "9.9.9", fwHash("anything"))
	assert.ErrorIs(t, err, ErrUnknownFirmware)
	assert.Equal(t, 0, chain.PendingCount(), "unknown firmware leaves no ledger record")
}

func TestDistinctVersionsCoexist(t *testing.T) {
	fv, _ := newFirmwareFixture(t)
	_, err := fv.Register("cam-1", "1.0.0", fwHash("v1"), mfrDID)
	require.NoError(t, err)
	_, err = fv.Register("cam-1", "1.1.0", fwHash("v2"), mfrDID)
	require.NoError(t, err)

	outcome, err := fv.Validate("cam-1", "1.0.0", fwHash("v1"))
	require.NoError(t, err)
	assert.True(t, outcome.Valid)
	outcome, err = fv.Validate("cam-1", "1.1.0", fwHash("v2"))
	require.NoError(t, err)
	assert.True(t, outcome.Valid)
}
