package cohort

import (
	"go.uber.org/zap"
)

// AuditSeverity classifies an audit record.
type AuditSeverity string

const (
	AuditSeverityInfo      AuditSeverity = "info"
	AuditSeverityStartup   AuditSeverity = "startup"
	AuditSeverityShutdown  AuditSeverity = "shutdown"
	AuditSeverityWarning   AuditSeverity = "warning"
	AuditSeverityError     AuditSeverity = "error"
	AuditSeverityException AuditSeverity = "exception"
)

// AuditRecord is the structured record emitted for state transitions,
// warnings and errors in the patch engine and the event transport.
type AuditRecord struct {
	ComponentName string         `json:"componentName"`
	Severity      AuditSeverity  `json:"severity"`
	MessageID     string         `json:"messageId"`
	Message       string         `json:"message"`
	SystemAction  string         `json:"systemAction,omitempty"`
	UserAction    string         `json:"userAction,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
}

// AuditLog receives audit records. Implementations must never block the
// caller and must never surface a delivery failure back into the core; a
// record that cannot be delivered is dropped.
type AuditLog interface {
	LogRecord(record AuditRecord)
}

// Audit message IDs
const (
	AuditPublisherStart      = "COHORT-TOPIC-0001"
	AuditPublisherShutdown   = "COHORT-TOPIC-0002"
	AuditEventSendErrorLoop  = "COHORT-TOPIC-0003"
	AuditPublisherRecovering = "COHORT-TOPIC-0004"
	AuditPublisherTerminated = "COHORT-TOPIC-0005"
	AuditConnectionRecycled  = "COHORT-TOPIC-0006"

	AuditPatchFieldMissing  = "COHORT-TYPES-0001"
	AuditPatchSuperseded    = "COHORT-TYPES-0002"
	AuditTypeDefRegistered  = "COHORT-TYPES-0003"
	AuditPatchApplied       = "COHORT-TYPES-0004"
	AuditPatchDeferred      = "COHORT-TYPES-0005"
	AuditEventDiscarded     = "COHORT-SYNC-0001"
	AuditUnauthorizedAccess = "COHORT-SECURITY-0001"
)

// zapAuditLog writes audit records through the global sugared logger.
type zapAuditLog struct{}

// NewZapAuditLog returns an AuditLog backed by the process-wide zap logger.
// Delivery never fails and never blocks beyond the logger's own buffering.
func NewZapAuditLog() AuditLog {
	return zapAuditLog{}
}

func (zapAuditLog) LogRecord(record AuditRecord) {
	fields := []any{
		"component", record.ComponentName,
		"messageId", record.MessageID,
		"systemAction", record.SystemAction,
		"userAction", record.UserAction,
	}
	for k, v := range record.Details {
		fields = append(fields, k, v)
	}
	switch record.Severity {
	case AuditSeverityError, AuditSeverityException:
		zap.S().Errorw(record.Message, fields...)
	case AuditSeverityWarning:
		zap.S().Warnw(record.Message, fields...)
	default:
		zap.S().Infow(record.Message, fields...)
	}
}

// NopAuditLog discards every record.
type NopAuditLog struct{}

func (NopAuditLog) LogRecord(AuditRecord) {}
