// Package sentinel is the security manager: the facade the orchestrator
// talks to. It composes the identity registry, the contract evaluators and
// the ledger into the end-to-end access and firmware workflows.
//
// Anomaly and behavior models are external collaborators. They appear here
// only as the AnomalyDetector interface; verdicts are consumed, never
// computed.
package sentinel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"iotsentry/core/audit"
	"iotsentry/core/contracts"
	"iotsentry/core/identity"
	"iotsentry/core/ledger"
	"iotsentry/core/tx"
)

// anomalyBlockThreshold is the confidence above which an anomaly verdict
// overrides a granted permission.
const anomalyBlockThreshold = 0.8

// AccessLog is the feature view of an access event handed to the external
// anomaly model.
type AccessLog struct {
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	DID       string    `json:"did"`
	Action    string    `json:"action"`
	IP        string    `json:"ip,omitempty"`
	Location  string    `json:"location,omitempty"`
}

// AnomalyVerdict is the already-computed result of an external model.
type AnomalyVerdict struct {
	IsAnomaly  bool                   `json:"isAnomaly"`
	Confidence float64                `json:"confidence"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// AnomalyDetector is implemented by the external ML collaborator.
type AnomalyDetector interface {
	Predict(log AccessLog) (AnomalyVerdict, error)
}

// Alert is a security alert raised by the manager.
type Alert struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Severity  string                 `json:"severity"` // low, medium, high, critical
	Details   map[string]interface{} `json:"details"`
	Timestamp time.Time              `json:"timestamp"`
}

// DeviceInfo is the manager's view of a registered device.
type DeviceInfo struct {
	DeviceID        string    `json:"deviceId"`
	DeviceType      string    `json:"deviceType"`
	DID             string    `json:"did"`
	FirmwareVersion string    `json:"firmwareVersion"`
	FirmwareHash    string    `json:"firmwareHash"`
	RegisteredAt    time.Time `json:"registeredAt"`
}

// Manager orchestrates the core security workflows over one Chain handle.
// There is no hidden global chain; the instance passed in at construction
// is the single authoritative append point.
type Manager struct {
	chain    *ledger.Chain
	registry *identity.Registry
	access   *contracts.AccessController
	firmware *contracts.FirmwareValidator
	activity *contracts.ActivityLog
	detector AnomalyDetector
	audit    audit.Logger

	mu       sync.Mutex
	devices  map[string]DeviceInfo
	alerts   []Alert
	handlers []func(Alert)
}

// New builds a manager over an existing chain and registry. detector may be
// nil; the system then operates on ledger checks alone.
func New(chain *ledger.Chain, registry *identity.Registry, detector AnomalyDetector, auditLogger audit.Logger) *Manager {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &Manager{
		chain:    chain,
		registry: registry,
		access:   contracts.NewAccessController(registry, chain, auditLogger),
		firmware: contracts.NewFirmwareValidator(chain, auditLogger),
		activity: contracts.NewActivityLog(chain),
		detector: detector,
		audit:    auditLogger,
		devices:  make(map[string]DeviceInfo),
	}
}

// Registry exposes the identity registry for direct DID operations.
func (m *Manager) Registry() *identity.Registry { return m.registry }

// Chain exposes the ledger handle.
func (m *Manager) Chain() *ledger.Chain { return m.chain }

// Access exposes the access-control evaluator.
func (m *Manager) Access() *contracts.AccessController { return m.access }

// Firmware exposes the firmware-integrity evaluator.
func (m *Manager) Firmware() *contracts.FirmwareValidator { return m.firmware }

// Activity exposes the activity log.
func (m *Manager) Activity() *contracts.ActivityLog { return m.activity }

// RegisterDevice creates the device DID and registers its firmware hash
// under the system manufacturer identity.
func (m *Manager) RegisterDevice(deviceID, deviceType, firmwareVersion, firmwareHash string) (identity.Record, error) {
	rec, err := m.registry.CreateDID(identity.KindDevice, deviceID)
	if err != nil {
		return identity.Record{}, err
	}
	if _, err := m.firmware.Register(deviceID, firmwareVersion, firmwareHash, m.registry.SystemDID()); err != nil {
		return identity.Record{}, fmt.Errorf("register firmware for %s: %w", deviceID, err)
	}
	info := DeviceInfo{
		DeviceID:        deviceID,
		DeviceType:      deviceType,
		DID:             rec.DID,
		FirmwareVersion: firmwareVersion,
		FirmwareHash:    firmwareHash,
		RegisteredAt:    time.Now().UTC(),
	}
	m.mu.Lock()
	m.devices[deviceID] = info
	m.mu.Unlock()
	return rec, nil
}

// RegisterUser creates a user DID and returns its DID string.
func (m *Manager) RegisterUser(userID string) (string, error) {
	rec, err := m.registry.CreateDID(identity.KindUser, userID)
	if err != nil {
		return "", err
	}
	return rec.DID, nil
}

// GrantDeviceAccess grants a user access to a device under the system admin
// identity and records the grant on the ledger.
func (m *Manager) GrantDeviceAccess(userDID, deviceID string, actions []string, durationHours int, constraints *identity.Constraints) (contracts.GrantResult, error) {
	return m.access.GrantAccess(m.registry.SystemDID(), userDID, deviceID, actions, durationHours, constraints)
}

// RevokeDeviceAccess revokes a user's access to a device and records the
// revocation on the ledger.
func (m *Manager) RevokeDeviceAccess(userDID, deviceID string) error {
	_, err := m.access.RevokeAccess(m.registry.SystemDID(), userDID, deviceID)
	return err
}

// RequestDeviceAccess runs the full access workflow: ledger permission
// check, optional anomaly screening of the already-granted request, an
// activity record on grant, then a mine of whatever is pending.
func (m *Manager) RequestDeviceAccess(ctx context.Context, userDID, deviceID, action string, rc identity.RequestContext) (contracts.AccessResult, error) {
	result, err := m.access.RequestAccess(userDID, deviceID, action, rc)
	if err != nil {
		return contracts.AccessResult{}, err
	}

	if !result.Granted {
		m.raiseAlert("access_denied", "medium", map[string]interface{}{
			"did": userDID, "device_id": deviceID, "action": action, "reason": result.Reason,
		})
	} else if m.detector != nil {
		verdict, derr := m.detector.Predict(AccessLog{
			Timestamp: result.Timestamp,
			DeviceID:  deviceID,
			DID:       userDID,
			Action:    action,
			IP:        rc.IP,
			Location:  rc.Location,
		})
		if derr == nil && verdict.IsAnomaly {
			if verdict.Confidence > anomalyBlockThreshold {
				result.Granted = false
				result.Reason = "anomaly_detected"
				m.raiseAlert("anomaly_blocked", "high", map[string]interface{}{
					"did": userDID, "device_id": deviceID, "confidence": verdict.Confidence,
				})
			} else {
				m.raiseAlert("anomaly_warning", "medium", map[string]interface{}{
					"did": userDID, "device_id": deviceID, "confidence": verdict.Confidence,
				})
			}
		}
	}

	if result.Granted {
		if _, err := m.activity.Record(deviceID, "access_granted", map[string]interface{}{
			"action": action, "ip": rc.IP, "location": rc.Location,
		}, userDID); err != nil {
			return contracts.AccessResult{}, err
		}
	}

	if _, err := m.chain.MinePending(ctx); err != nil {
		return contracts.AccessResult{}, fmt.Errorf("mine access records: %w", err)
	}
	return result, nil
}

// VerifyDeviceFirmware validates a device's firmware against the ledger.
// Tampering raises a critical alert and commits it immediately.
func (m *Manager) VerifyDeviceFirmware(ctx context.Context, deviceID, version, providedHash string) (contracts.ValidationOutcome, error) {
	outcome, err := m.firmware.Validate(deviceID, version, providedHash)
	if err != nil {
		return contracts.ValidationOutcome{}, err
	}
	if !outcome.Valid {
		m.raiseAlert("firmware_tampering", "critical", map[string]interface{}{
			"device_id": deviceID, "version": version,
			"expected_hash": outcome.ExpectedHash, "provided_hash": outcome.ProvidedHash,
		})
		if _, err := m.chain.MinePending(ctx); err != nil {
			return contracts.ValidationOutcome{}, fmt.Errorf("mine tamper alert: %w", err)
		}
	}
	return outcome, nil
}

// ReportPowerVerdict ingests an already-computed power anomaly verdict from
// the external profiler and records it when anomalous.
func (m *Manager) ReportPowerVerdict(deviceID string, verdict AnomalyVerdict) error {
	if !verdict.IsAnomaly {
		return nil
	}
	deviceDID := fmt.Sprintf("did:iotsentry:device:%s", deviceID)
	if _, err := m.activity.Record(deviceID, "power_anomaly", verdict.Details, deviceDID); err != nil {
		return err
	}
	m.raiseAlert("power_anomaly", "medium", map[string]interface{}{
		"device_id": deviceID, "confidence": verdict.Confidence,
	})
	return nil
}

// GetDeviceHistory returns committed activity for a device, newest first.
func (m *Manager) GetDeviceHistory(deviceID string, limit int) []tx.Transaction {
	return m.activity.DeviceHistory(deviceID, limit)
}

// RegisterAlertHandler registers a callback invoked for every alert.
func (m *Manager) RegisterAlertHandler(h func(Alert)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// Alerts returns up to limit recent alerts, optionally filtered by
// severity.
func (m *Manager) Alerts(limit int, severity string) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if severity == "" || a.Severity == severity {
			out = append(out, a)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (m *Manager) raiseAlert(alertType, severity string, details map[string]interface{}) {
	alert := Alert{
		ID:        uuid.NewString(),
		Type:      alertType,
		Severity:  severity,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
	m.mu.Lock()
	m.alerts = append(m.alerts, alert)
	handlers := make([]func(Alert), len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	for _, h := range handlers {
		h(alert)
	}

	if severity == "critical" {
		payload := map[string]interface{}{
			"alert_type": alertType,
			"severity":   severity,
			"alert_id":   alert.ID,
			"details":    details,
			"timestamp":  alert.Timestamp.Format(time.RFC3339),
		}
		if _, err := m.chain.AddTransaction(tx.KindAlert, payload, m.registry.SystemDID()); err != nil {
			m.audit.LogEvent(audit.Event{
				Timestamp: time.Now(),
				EventType: "AlertAppend",
				EntityID:  m.registry.SystemDID(),
				Result:    "failure",
				Reason:    err.Error(),
			})
		}
	}
}

// SystemStatus aggregates chain health and entity counts for the
// orchestrator.
type SystemStatus struct {
	Chain   ledger.Info    `json:"chain"`
	Devices int            `json:"devices"`
	DIDs    int            `json:"dids"`
	Alerts  map[string]int `json:"alerts"`
}

// GetSystemStatus reports chain statistics (including a validation pass),
// entity counts and alert totals by severity.
func (m *Manager) GetSystemStatus() SystemStatus {
	m.mu.Lock()
	deviceCount := len(m.devices)
	alertCounts := map[string]int{"total": len(m.alerts)}
	for _, a := range m.alerts {
		alertCounts[a.Severity]++
	}
	m.mu.Unlock()

	return SystemStatus{
		Chain:   m.chain.GetInfo(),
		Devices: deviceCount,
		DIDs:    m.registry.Count(),
		Alerts:  alertCounts,
	}
}
