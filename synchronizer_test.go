package cohort

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSynchronizer(t *testing.T) (*CohortSynchronizer, *TypeDefCatalog, *recordingAuditLog) {
	t.Helper()
	catalog := NewTypeDefCatalog()
	recorder := &recordingAuditLog{}
	engine := NewPatchEngine(testSource, recorder)
	sync := NewCohortSynchronizer(testSource, catalog, engine, recorder, nil)
	return sync, catalog, recorder
}

func marshalEvent(t *testing.T, event TypeDefEvent) string {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	return string(data)
}

// =============================================================================
// Inbound: New TypeDefs
// =============================================================================

func TestSynchronizer_RegistersNewTypeDef(t *testing.T) {
	sync, catalog, _ := newSynchronizer(t)
	td := newEntityTypeDef()

	sync.HandleEvent(marshalEvent(t, TypeDefEvent{EventType: EventTypeNewTypeDef, TypeDef: td}))

	got, err := catalog.GetLatestTypeDef(context.Background(), td.GUID)
	require.NoError(t, err)
	assert.Equal(t, td.Name, got.Name)
}

func TestSynchronizer_DuplicateNewTypeDefIsIdempotent(t *testing.T) {
	sync, catalog, recorder := newSynchronizer(t)
	td := newEntityTypeDef()
	raw := marshalEvent(t, TypeDefEvent{EventType: EventTypeNewTypeDef, TypeDef: td})

	// at-least-once broadcast: the same event arrives three times
	sync.HandleEvent(raw)
	sync.HandleEvent(raw)
	sync.HandleEvent(raw)

	list, err := catalog.ListTypeDefs(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)

	// duplicates never produce a discard record
	for _, rec := range recorder.records {
		assert.NotEqual(t, AuditEventDiscarded, rec.MessageID)
	}
}

// =============================================================================
// Inbound: Patches
// =============================================================================

func TestSynchronizer_AppliesPatch(t *testing.T) {
	sync, catalog, _ := newSynchronizer(t)
	td := newEntityTypeDef()
	require.NoError(t, catalog.AddTypeDef(context.Background(), td))

	patch := patchFor(td, 1, 2)
	sync.HandleEvent(marshalEvent(t, TypeDefEvent{EventType: EventTypeUpdatedTypeDef, Patch: patch}))

	got, err := catalog.GetLatestTypeDef(context.Background(), td.GUID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
}

func TestSynchronizer_DuplicatePatchIsIdempotent(t *testing.T) {
	sync, catalog, _ := newSynchronizer(t)
	td := newEntityTypeDef()
	require.NoError(t, catalog.AddTypeDef(context.Background(), td))

	raw := marshalEvent(t, TypeDefEvent{EventType: EventTypeUpdatedTypeDef, Patch: patchFor(td, 1, 2)})
	sync.HandleEvent(raw)
	sync.HandleEvent(raw)

	got, err := catalog.GetLatestTypeDef(context.Background(), td.GUID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)

	history, err := catalog.VersionHistory(td.GUID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestSynchronizer_PatchForUnknownTypeDefIsDeferred(t *testing.T) {
	sync, _, recorder := newSynchronizer(t)

	patch := patchFor(newEntityTypeDef(), 1, 2)
	sync.HandleEvent(marshalEvent(t, TypeDefEvent{EventType: EventTypeUpdatedTypeDef, Patch: patch}))

	deferred := false
	for _, rec := range recorder.records {
		if rec.MessageID == AuditPatchDeferred {
			deferred = true
		}
	}
	assert.True(t, deferred)
}

func TestSynchronizer_PatchWithVersionGapIsDeferred(t *testing.T) {
	sync, catalog, recorder := newSynchronizer(t)
	td := newEntityTypeDef() // version 1
	require.NoError(t, catalog.AddTypeDef(context.Background(), td))

	// the version 2->3 patch arrives before the 1->2 one
	patch := patchFor(td, 2, 3)
	sync.HandleEvent(marshalEvent(t, TypeDefEvent{EventType: EventTypeUpdatedTypeDef, Patch: patch}))

	got, err := catalog.GetLatestTypeDef(context.Background(), td.GUID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)

	deferred := false
	for _, rec := range recorder.records {
		if rec.MessageID == AuditPatchDeferred {
			deferred = true
		}
	}
	assert.True(t, deferred)
}

func TestSynchronizer_OutOfOrderPatchesConverge(t *testing.T) {
	sync, catalog, _ := newSynchronizer(t)
	td := newEntityTypeDef()
	require.NoError(t, catalog.AddTypeDef(context.Background(), td))

	second := marshalEvent(t, TypeDefEvent{EventType: EventTypeUpdatedTypeDef, Patch: patchFor(td, 2, 3)})
	first := marshalEvent(t, TypeDefEvent{EventType: EventTypeUpdatedTypeDef, Patch: patchFor(td, 1, 2)})

	// later patch arrives first and is deferred; rebroadcast closes the gap
	sync.HandleEvent(second)
	sync.HandleEvent(first)
	sync.HandleEvent(second)

	got, err := catalog.GetLatestTypeDef(context.Background(), td.GUID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version)
}

// =============================================================================
// Inbound: Bad Events
// =============================================================================

func TestSynchronizer_DiscardsBadEvents(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "{{{"},
		{"unknown event type", `{"eventType":"mystery"}`},
		{"new typedef without body", `{"eventType":"new_type_def"}`},
		{"patch without body", `{"eventType":"updated_type_def"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sync, _, recorder := newSynchronizer(t)
			sync.HandleEvent(tt.raw)

			discarded := false
			for _, rec := range recorder.records {
				if rec.MessageID == AuditEventDiscarded {
					discarded = true
				}
			}
			assert.True(t, discarded)
		})
	}
}

func TestSynchronizer_BadEventDoesNotStallStream(t *testing.T) {
	sync, catalog, _ := newSynchronizer(t)

	sync.HandleEvent("garbage")
	td := newEntityTypeDef()
	sync.HandleEvent(marshalEvent(t, TypeDefEvent{EventType: EventTypeNewTypeDef, TypeDef: td}))

	_, err := catalog.GetLatestTypeDef(context.Background(), td.GUID)
	assert.NoError(t, err)
}

// =============================================================================
// Outbound
// =============================================================================

func TestSynchronizer_BroadcastRequiresPublisher(t *testing.T) {
	sync, _, _ := newSynchronizer(t) // no publisher wired

	err := sync.BroadcastNewTypeDef(newEntityTypeDef())
	assert.Error(t, err)
}

func TestSynchronizer_BroadcastQueuesEvent(t *testing.T) {
	catalog := NewTypeDefCatalog()
	engine := NewPatchEngine(testSource, NopAuditLog{})

	conn := &scriptedConnector{}
	seq := &connectorSequence{connectors: []*scriptedConnector{conn}}
	publisher := fastPublisher(seq.factory, NopAuditLog{})
	require.NoError(t, publisher.Start())
	defer stopAndWait(t, publisher)

	sync := NewCohortSynchronizer(testSource, catalog, engine, NopAuditLog{}, publisher)

	td := newEntityTypeDef()
	require.NoError(t, sync.BroadcastNewTypeDef(td))

	require.Eventually(t, func() bool {
		return len(conn.deliveredEvents()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	var event TypeDefEvent
	require.NoError(t, json.Unmarshal([]byte(conn.deliveredEvents()[0]), &event))
	assert.Equal(t, EventTypeNewTypeDef, event.EventType)
	require.NotNil(t, event.TypeDef)
	assert.Equal(t, td.GUID, event.TypeDef.GUID)
}

// =============================================================================
// End to End Over a Shared Topic
// =============================================================================

// loopbackTopic delivers published events synchronously to subscribers,
// modeling two members on one cohort topic.
type loopbackTopic struct {
	handlers []EventHandler
}

func (l *loopbackTopic) Publish(_ context.Context, event string) error {
	for _, h := range l.handlers {
		h(event)
	}
	return nil
}

func (l *loopbackTopic) Subscribe(handler EventHandler) {
	l.handlers = append(l.handlers, handler)
}

func (l *loopbackTopic) Close() error { return nil }

func TestSynchronizer_TwoMembersConverge(t *testing.T) {
	topic := &loopbackTopic{}

	memberA, catalogA, _ := newSynchronizer(t)
	memberB, catalogB, _ := newSynchronizer(t)
	memberA.Start(topic)
	memberB.Start(topic)

	td := newEntityTypeDef()
	raw := marshalEvent(t, TypeDefEvent{EventType: EventTypeNewTypeDef, TypeDef: td})
	require.NoError(t, topic.Publish(context.Background(), raw))

	patch := marshalEvent(t, TypeDefEvent{EventType: EventTypeUpdatedTypeDef, Patch: patchFor(td, 1, 2)})
	require.NoError(t, topic.Publish(context.Background(), patch))

	for _, catalog := range []*TypeDefCatalog{catalogA, catalogB} {
		got, err := catalog.GetLatestTypeDef(context.Background(), td.GUID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)
	}
}
