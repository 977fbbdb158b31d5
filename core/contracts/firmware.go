package contracts

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"iotsentry/core/audit"
	"iotsentry/core/ledger"
	"iotsentry/core/tx"
	"iotsentry/types/ids"
)

var (
	// ErrUnknownFirmware is returned when no record exists for the
	// (device, version) pair being validated.
	ErrUnknownFirmware = errors.New("firmware version not registered")
	// ErrDuplicateFirmwareVersion is returned when a (device, version) pair
	// is re-registered with a different hash. Re-registration with the
	// identical hash is an idempotent no-op.
	ErrDuplicateFirmwareVersion = errors.New("firmware version already registered with a different hash")
)

// TamperReason is the reason code on a failed firmware validation.
const TamperReason = "tampering_detected"

// FirmwareRecord is the registered reference hash for one firmware version
// on one device.
type FirmwareRecord struct {
	DeviceID        string    `json:"deviceId"`
	Version         string    `json:"version"`
	Hash            string    `json:"hash"`
	ManufacturerDID string    `json:"manufacturerDid"`
	RegisteredAt    time.Time `json:"registeredAt"`
}

// FirmwareValidator registers firmware hashes and validates devices against
// them, pushing tamper evidence onto the ledger.
type FirmwareValidator struct {
	mu      sync.RWMutex
	records map[string]FirmwareRecord // device:version -> record
	chain   *ledger.Chain
	audit   audit.Logger
}

// NewFirmwareValidator wires the evaluator to the ledger.
func NewFirmwareValidator(chain *ledger.Chain, auditLogger audit.Logger) *FirmwareValidator {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &FirmwareValidator{
		records: make(map[string]FirmwareRecord),
		chain:   chain,
		audit:   auditLogger,
	}
}

func registryKey(deviceID, version string) string {
	return deviceID + ":" + version
}

// Register stores the expected hash for a (device, version) pair and logs a
// firmware transaction. Registering the identical hash again is a no-op; a
// conflicting hash is flagged on the ledger as an alert before the error is
// returned, because a silent overwrite would defeat the integrity model.
func (fv *FirmwareValidator) Register(deviceID, version, hash, manufacturerDID string) (FirmwareRecord, error) {
	fv.mu.Lock()
	key := registryKey(deviceID, version)
	if existing, ok := fv.records[key]; ok {
		fv.mu.Unlock()
		if existing.Hash == hash {
			return existing, nil
		}
		fv.appendAlert(deviceID, "firmware_reregistration_conflict", "high", map[string]interface{}{
			"version":       version,
			"expected_hash": existing.Hash,
			"provided_hash": hash,
		}, manufacturerDID)
		return FirmwareRecord{}, fmt.Errorf("%w: %s %s", ErrDuplicateFirmwareVersion, deviceID, version)
	}
	rec := FirmwareRecord{
		DeviceID:        deviceID,
		Version:         version,
		Hash:            hash,
		ManufacturerDID: manufacturerDID,
		RegisteredAt:    time.Now().UTC(),
	}
	fv.records[key] = rec
	fv.mu.Unlock()

	payload := map[string]interface{}{
		"device_id":     deviceID,
		"version":       version,
		"firmware_hash": hash,
		"registered_at": rec.RegisteredAt.Format(time.RFC3339),
	}
	if _, err := fv.chain.AddTransaction(tx.KindFirmware, payload, manufacturerDID); err != nil {
		return FirmwareRecord{}, err
	}
	return rec, nil
}

// ValidationOutcome reports a firmware check.
type ValidationOutcome struct {
	Valid        bool   `json:"valid"`
	Reason       string `json:"reason,omitempty"`
	DeviceID     string `json:"deviceId"`
	Version      string `json:"version"`
	ExpectedHash string `json:"expectedHash,omitempty"`
	ProvidedHash string `json:"providedHash,omitempty"`
	TxID         ids.ID `json:"txId"`
}

// Validate compares the provided hash byte-for-byte against the registered
// one. A mismatch produces a critical alert transaction; the validation
// attempt itself is always logged as a firmware transaction.
func (fv *FirmwareValidator) Validate(deviceID, version, providedHash string) (ValidationOutcome, error) {
	fv.mu.RLock()
	rec, ok := fv.records[registryKey(deviceID, version)]
	fv.mu.RUnlock()
	if !ok {
		return ValidationOutcome{}, fmt.Errorf("%w: %s %s", ErrUnknownFirmware, deviceID, version)
	}

	valid := rec.Hash == providedHash
	deviceDID := fmt.Sprintf("did:iotsentry:device:%s", deviceID)
	payload := map[string]interface{}{
		"device_id":     deviceID,
		"version":       version,
		"provided_hash": providedHash,
		"expected_hash": rec.Hash,
		"valid":         valid,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	}
	txID, err := fv.chain.AddTransaction(tx.KindFirmware, payload, deviceDID)
	if err != nil {
		return ValidationOutcome{}, err
	}

	outcome := ValidationOutcome{
		Valid:    valid,
		DeviceID: deviceID,
		Version:  version,
		TxID:     txID,
	}
	if !valid {
		outcome.Reason = TamperReason
		outcome.ExpectedHash = rec.Hash
		outcome.ProvidedHash = providedHash
		fv.appendAlert(deviceID, "firmware_tampering", "critical", map[string]interface{}{
			"version":       version,
			"expected_hash": rec.Hash,
			"provided_hash": providedHash,
		}, deviceDID)
		fv.audit.LogEvent(audit.Event{
			Timestamp: time.Now(),
			EventType: "FirmwareValidation",
			EntityID:  deviceDID,
			Result:    "tampered",
			Reason:    TamperReason,
			Metadata:  map[string]string{"device": deviceID, "version": version},
		})
	}
	return outcome, nil
}

// Lookup returns the registered record for a (device, version) pair.
func (fv *FirmwareValidator) Lookup(deviceID, version string) (FirmwareRecord, bool) {
	fv.mu.RLock()
	defer fv.mu.RUnlock()
	rec, ok := fv.records[registryKey(deviceID, version)]
	return rec, ok
}

func (fv *FirmwareValidator) appendAlert(deviceID, alertType, severity string, details map[string]interface{}, did string) {
	details["device_id"] = deviceID
	payload := map[string]interface{}{
		"alert_type": alertType,
		"severity":   severity,
		"alert_id":   uuid.NewString(),
		"details":    details,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	// Alert append failures are logged, not returned; the validation
	// outcome must still reach the caller.
	if _, err := fv.chain.AddTransaction(tx.KindAlert, payload, did); err != nil {
		fv.audit.LogEvent(audit.Event{
			Timestamp: time.Now(),
			EventType: "AlertAppend",
			EntityID:  did,
			Result:    "failure",
			Reason:    err.Error(),
		})
	}
}
