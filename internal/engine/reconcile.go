package engine

import (
	"context"
	"time"

	"chat-sync/internal/models"
	"chat-sync/internal/observability"
)

const (
	correlationTTL        = 2 * time.Minute
	correlationMaxEntries = 256
)

// correlationTable maps a client correlation ID to the server identity of the
// same logical message, populated by whichever of the two insertion paths
// (REST completion, push delivery) resolves first. Entries are discarded once
// both paths have reported, and the table is bounded by TTL and size so a
// long-lived chat session with many rapid sends cannot grow it without limit.
type correlationTable struct {
	entries  map[string]*correlationEntry
	byServer map[string]string
}

type correlationEntry struct {
	serverID  string
	restDone  bool
	pushDone  bool
	createdAt time.Time
}

func newCorrelationTable() *correlationTable {
	return &correlationTable{
		entries:  make(map[string]*correlationEntry),
		byServer: make(map[string]string),
	}
}

func (t *correlationTable) ensure(correlationID string, now time.Time) *correlationEntry {
	if entry, ok := t.entries[correlationID]; ok {
		return entry
	}
	entry := &correlationEntry{createdAt: now}
	t.entries[correlationID] = entry
	return entry
}

// bindServer records the server identity for a correlation. Rebinding (a
// preemptive match that turned out wrong) drops the old reverse mapping so no
// byServer key ever points at a removed entry.
func (t *correlationTable) bindServer(correlationID, serverID string) {
	entry := t.entries[correlationID]
	if entry.serverID != "" && entry.serverID != serverID && t.byServer[entry.serverID] == correlationID {
		delete(t.byServer, entry.serverID)
	}
	entry.serverID = serverID
	t.byServer[serverID] = correlationID
}

func (t *correlationTable) lookupServer(serverID string) (string, bool) {
	correlationID, ok := t.byServer[serverID]
	return correlationID, ok
}

// finishIfDone drops an entry once both paths have reported.
func (t *correlationTable) finishIfDone(correlationID string) {
	entry, ok := t.entries[correlationID]
	if !ok || !entry.restDone || !entry.pushDone {
		return
	}
	t.remove(correlationID)
}

func (t *correlationTable) remove(correlationID string) {
	if entry, ok := t.entries[correlationID]; ok {
		if entry.serverID != "" && t.byServer[entry.serverID] == correlationID {
			delete(t.byServer, entry.serverID)
		}
		delete(t.entries, correlationID)
	}
}

// prune enforces the TTL and size bounds, returning how many incomplete
// entries were evicted.
func (t *correlationTable) prune(now time.Time) int {
	evicted := 0
	for id, entry := range t.entries {
		if now.Sub(entry.createdAt) > correlationTTL {
			t.remove(id)
			evicted++
		}
	}
	for len(t.entries) > correlationMaxEntries {
		oldestID := ""
		var oldest time.Time
		for id, entry := range t.entries {
			if oldestID == "" || entry.createdAt.Before(oldest) {
				oldestID = id
				oldest = entry.createdAt
			}
		}
		t.remove(oldestID)
		evicted++
	}
	return evicted
}

func (t *correlationTable) clear() {
	t.entries = make(map[string]*correlationEntry)
	t.byServer = make(map[string]string)
}

// resolveFromREST merges the authoritative message returned by the REST send
// into the window. Common case: the placeholder is promoted in place. Race
// case: push delivery already inserted the authoritative copy, so the
// placeholder is removed and the push copy survives. Either way exactly one
// confirmed row per correlation ID remains. Caller holds e.mu.
func (e *Engine) resolveFromREST(s *session, correlationID string, msg models.Message) {
	now := e.now()
	e.notePrune(s, msg.ChatID, s.corr.prune(now))
	entry := s.corr.ensure(correlationID, now)
	entry.restDone = true
	delete(s.pending, correlationID)

	if entry.pushDone && entry.serverID == msg.ID {
		s.window.Remove(correlationID)
		s.window.Upsert(msg)
		s.corr.finishIfDone(correlationID)
		observability.IncReconciliation("push_first")
		return
	}

	// The confirmed row always wins; a vanished placeholder (dismissed, or a
	// wrong preemptive match) still yields exactly one confirmed row.
	if !s.window.Promote(correlationID, msg) {
		s.window.Upsert(msg)
	}
	s.corr.bindServer(correlationID, msg.ID)
	s.corr.finishIfDone(correlationID)
	observability.IncReconciliation("rest_first")
}

// foldCreated applies a push-delivered message-created event to a session.
// Returns true when the event introduced a row that was not already present
// under its server identity. Caller holds e.mu.
func (e *Engine) foldCreated(s *session, msg models.Message) bool {
	now := e.now()
	e.notePrune(s, msg.ChatID, s.corr.prune(now))

	// Twin of a send this client already reconciled, or a transport replay:
	// recognized by ID and dropped in favor of the existing row.
	if correlationID, ok := s.corr.lookupServer(msg.ID); ok {
		s.window.Upsert(msg)
		if entry, ok := s.corr.entries[correlationID]; ok {
			entry.pushDone = true
			s.corr.finishIfDone(correlationID)
		}
		observability.IncReconciliation("duplicate_drop")
		return false
	}
	if s.window.Contains(msg.ID) {
		s.window.Upsert(msg)
		return false
	}

	// Push beat the REST response. Preemptively resolve the oldest unresolved
	// outgoing send so the late REST completion removes its own placeholder
	// instead of promoting it.
	if msg.SenderID == e.userID {
		if correlationID, ok := s.oldestUnresolvedSend(); ok {
			entry := s.corr.ensure(correlationID, now)
			entry.pushDone = true
			s.corr.bindServer(correlationID, msg.ID)
		}
	}

	return s.window.Upsert(msg)
}

// oldestUnresolvedSend returns the first sending-state placeholder whose
// correlation has no server identity yet.
func (s *session) oldestUnresolvedSend() (string, bool) {
	for _, m := range s.window.Placeholders() {
		if m.Delivery != models.DeliverySending {
			continue
		}
		if entry, ok := s.corr.entries[m.CorrelationID]; ok && entry.serverID != "" {
			continue
		}
		return m.CorrelationID, true
	}
	return "", false
}

func (e *Engine) notePrune(s *session, chatID string, evicted int) {
	if evicted == 0 {
		return
	}
	for i := 0; i < evicted; i++ {
		observability.IncCorrelationEviction()
	}
	e.audit.Emit(context.Background(), "INFO", "correlation entries evicted by ttl/size bound", chatID, e.userID)
}
