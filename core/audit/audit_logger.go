package audit

import (
	"fmt"
	"time"
)

// Event represents a security-relevant decision: an access verdict, a
// permission change, a firmware check.
type Event struct {
	Timestamp time.Time
	EventType string // e.g. "AccessDecision", "FirmwareValidation"
	EntityID  string // DID of the subject
	Result    string // "granted", "denied", "valid", "tampered", ...
	Reason    string // reason code or error message
	Metadata  map[string]string
}

// Logger is the interface for recording audit events off-ledger. The
// ledger transaction is the durable record; this is the operational trace.
type Logger interface {
	LogEvent(event Event)
}

// StdoutLogger writes audit events to stdout.
type StdoutLogger struct{}

func (l *StdoutLogger) LogEvent(event Event) {
	fmt.Printf("[%s] [%s] Entity: %s, Result: %s, Reason: %s, Metadata: %+v\n",
		event.Timestamp.Format(time.RFC3339), event.EventType, event.EntityID,
		event.Result, event.Reason, event.Metadata)
}

// NewStdoutLogger returns a new StdoutLogger.
func NewStdoutLogger() Logger {
	return &StdoutLogger{}
}

// NopLogger discards audit events. Useful in tests.
type NopLogger struct{}

func (NopLogger) LogEvent(Event) {}
