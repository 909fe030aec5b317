package cohort

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// TypeDefEventType discriminates inbound cohort type events.
type TypeDefEventType string

const (
	EventTypeNewTypeDef     TypeDefEventType = "new_type_def"
	EventTypeUpdatedTypeDef TypeDefEventType = "updated_type_def"
	EventTypeUnknown        TypeDefEventType = "unknown"
)

// TypeDefEvent is the wire form of one cohort type broadcast. NewTypeDef
// events carry the full TypeDef; UpdatedTypeDef events carry the patch.
type TypeDefEvent struct {
	EventType TypeDefEventType `json:"eventType"`
	TypeDef   *TypeDef         `json:"typeDef,omitempty"`
	Patch     *TypeDefPatch    `json:"patch,omitempty"`
}

// CohortSynchronizer is the glue between an inbound cohort topic and the
// local typedef store. It is intentionally thin: decode, dispatch to the
// patch engine, store. Cohort broadcast is at-least-once and unordered, so
// every handler path must tolerate duplicates and gaps.
type CohortSynchronizer struct {
	sourceName string
	store      TypeDefStore
	engine     *PatchEngine
	audit      AuditLog
	publisher  *EventPublisher
}

// NewCohortSynchronizer wires a synchronizer over the given store and patch
// engine. publisher may be nil when the member only consumes.
func NewCohortSynchronizer(sourceName string, store TypeDefStore, engine *PatchEngine, audit AuditLog, publisher *EventPublisher) *CohortSynchronizer {
	if audit == nil {
		audit = NopAuditLog{}
	}
	return &CohortSynchronizer{
		sourceName: sourceName,
		store:      store,
		engine:     engine,
		audit:      audit,
		publisher:  publisher,
	}
}

// Start subscribes the synchronizer to the inbound side of the topic.
func (s *CohortSynchronizer) Start(topic TopicConnector) {
	topic.Subscribe(s.HandleEvent)
}

// BroadcastNewTypeDef queues a new-typedef event for the cohort.
func (s *CohortSynchronizer) BroadcastNewTypeDef(td *TypeDef) error {
	return s.broadcast(TypeDefEvent{EventType: EventTypeNewTypeDef, TypeDef: td})
}

// BroadcastTypeDefPatch queues a typedef-patch event for the cohort.
func (s *CohortSynchronizer) BroadcastTypeDefPatch(patch *TypeDefPatch) error {
	return s.broadcast(TypeDefEvent{EventType: EventTypeUpdatedTypeDef, Patch: patch})
}

func (s *CohortSynchronizer) broadcast(event TypeDefEvent) error {
	if s.publisher == nil {
		return NewInvalidParameterError(ErrCodeTopicUnavailable,
			fmt.Sprintf("%s has no outbound publisher configured", s.sourceName))
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return NewInvalidParameterError(ErrCodeEventDecodeFailed,
			fmt.Sprintf("cannot encode %s event", event.EventType)).WithCause(err)
	}
	s.publisher.SendEvent(string(payload))
	return nil
}

// HandleEvent processes one raw inbound payload. Malformed or unprocessable
// events are audited and skipped; a bad event from one cohort member must
// never stall the stream for the rest.
func (s *CohortSynchronizer) HandleEvent(raw string) {
	var event TypeDefEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		s.discard("undecodable cohort event", err, raw)
		return
	}

	ctx := context.Background()
	switch event.EventType {
	case EventTypeNewTypeDef:
		s.handleNewTypeDef(ctx, event.TypeDef)
	case EventTypeUpdatedTypeDef:
		s.handleTypeDefPatch(ctx, event.Patch)
	default:
		s.discard(fmt.Sprintf("cohort event with unknown type %q", event.EventType), nil, raw)
	}
}

func (s *CohortSynchronizer) handleNewTypeDef(ctx context.Context, td *TypeDef) {
	if td == nil {
		s.discard("new_type_def event without a typedef body", nil, "")
		return
	}
	err := s.store.AddTypeDef(ctx, td)
	switch {
	case err == nil:
		s.audit.LogRecord(AuditRecord{
			ComponentName: s.componentName(),
			Severity:      AuditSeverityInfo,
			MessageID:     AuditTypeDefRegistered,
			Message:       fmt.Sprintf("registered typedef %s (%s) version %d from cohort", td.Name, td.GUID, td.Version),
			Details:       map[string]any{"guid": td.GUID, "name": td.Name, "version": td.Version},
		})
	case IsConflictError(err):
		// rebroadcast duplicate; already registered
		zap.S().Debugw("ignoring duplicate typedef broadcast",
			"guid", td.GUID, "name", td.Name)
	default:
		s.discard(fmt.Sprintf("cannot store typedef %s from cohort", td.GUID), err, "")
	}
}

func (s *CohortSynchronizer) handleTypeDefPatch(ctx context.Context, patch *TypeDefPatch) {
	if patch == nil {
		s.discard("updated_type_def event without a patch body", nil, "")
		return
	}

	current, err := s.store.GetLatestTypeDef(ctx, patch.TypeDefGUID)
	if err != nil {
		// the base typedef has not arrived yet; the originator will
		// rebroadcast, so deferring is safe
		s.audit.LogRecord(AuditRecord{
			ComponentName: s.componentName(),
			Severity:      AuditSeverityWarning,
			MessageID:     AuditPatchDeferred,
			Message:       fmt.Sprintf("deferring patch for unknown typedef %s", patch.TypeDefGUID),
			SystemAction:  "The patch is dropped; a later rebroadcast will be retried against the stored typedef.",
			UserAction:    "No action needed unless the typedef never arrives.",
			Details:       map[string]any{"guid": patch.TypeDefGUID, "applyToVersion": patch.ApplyToVersion},
		})
		return
	}

	updated, err := s.engine.ApplyPatch(current, patch)
	if err != nil {
		if IsPatchError(err) {
			// version gap: local copy lags the patch
			s.audit.LogRecord(AuditRecord{
				ComponentName: s.componentName(),
				Severity:      AuditSeverityWarning,
				MessageID:     AuditPatchDeferred,
				Message:       fmt.Sprintf("cannot apply patch for typedef %s yet: %v", patch.TypeDefGUID, err),
				SystemAction:  "The patch is dropped pending arrival of intermediate versions.",
				UserAction:    "No action needed; cohort rebroadcast will close the gap.",
				Details:       map[string]any{"guid": patch.TypeDefGUID, "localVersion": current.Version, "applyToVersion": patch.ApplyToVersion},
			})
			return
		}
		s.discard(fmt.Sprintf("patch application failed for typedef %s", patch.TypeDefGUID), err, "")
		return
	}

	if updated.Version == current.Version {
		// superseded patch; the engine returned the original unchanged
		return
	}

	if err := s.store.AddTypeDefVersion(ctx, updated); err != nil {
		s.discard(fmt.Sprintf("cannot store typedef %s version %d", updated.GUID, updated.Version), err, "")
		return
	}
	s.audit.LogRecord(AuditRecord{
		ComponentName: s.componentName(),
		Severity:      AuditSeverityInfo,
		MessageID:     AuditPatchApplied,
		Message:       fmt.Sprintf("applied patch to typedef %s: version %d -> %d", updated.GUID, current.Version, updated.Version),
		Details:       map[string]any{"guid": updated.GUID, "fromVersion": current.Version, "toVersion": updated.Version},
	})
}

func (s *CohortSynchronizer) componentName() string {
	return "cohort-synchronizer:" + s.sourceName
}

func (s *CohortSynchronizer) discard(reason string, cause error, raw string) {
	details := map[string]any{}
	if cause != nil {
		details["error"] = cause.Error()
	}
	if raw != "" {
		details["payload"] = truncate(raw, 512)
	}
	s.audit.LogRecord(AuditRecord{
		ComponentName: s.componentName(),
		Severity:      AuditSeverityError,
		MessageID:     AuditEventDiscarded,
		Message:       reason,
		SystemAction:  "The event is discarded and processing continues with the next one.",
		UserAction:    "Investigate the originating cohort member if discards recur.",
		Details:       details,
	})
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
