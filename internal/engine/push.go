package engine

import (
	"log"

	"chat-sync/internal/models"
	"chat-sync/internal/observability"
)

// HandleEvent folds one push-delivered event into the engine. Safe to call
// from the transport's read goroutine. The transport guarantees neither
// ordering across chats nor duplicate suppression; every path below is
// idempotent by message identity.
func (e *Engine) HandleEvent(ev models.ChatEvent) {
	observability.IncPushEvent(ev.Type)

	e.mu.Lock()
	defer e.mu.Unlock()

	switch ev.Type {
	case models.EventMessageCreated:
		if ev.Message == nil {
			return
		}
		msg := *ev.Message
		if msg.ChatID == "" {
			msg.ChatID = ev.ChatID
		}
		newRow := true
		if s, ok := e.sessions[msg.ChatID]; ok {
			newRow = e.foldCreated(s, msg)
		}
		e.applyLastMessageLocked(msg, newRow)

	case models.EventMessageEdited:
		s, ok := e.sessionByMessageLocked(ev.MessageID)
		if ok {
			s.window.ApplyEdit(ev.MessageID, ev.Content, e.now())
		} else {
			e.noteStale("edit", ev.MessageID)
		}
		e.applySummaryEditLocked(ev.MessageID, ev.Content)

	case models.EventMessageDeleted:
		s, ok := e.sessionByMessageLocked(ev.MessageID)
		if ok {
			s.window.ApplySoftDelete(ev.MessageID)
		} else {
			e.noteStale("delete", ev.MessageID)
		}
		e.applySummaryDeleteLocked(ev.MessageID)

	case models.EventReactionChanged:
		s, ok := e.sessionByMessageLocked(ev.MessageID)
		if !ok {
			e.noteStale("reaction", ev.MessageID)
			return
		}
		s.window.ApplyReactions(ev.MessageID, ev.Reactions)

	default:
		log.Printf("push event ignored type=%q", ev.Type)
	}
}

// sessionByMessageLocked finds the session whose window holds a message.
// Edit/delete/reaction events carry only a message ID.
func (e *Engine) sessionByMessageLocked(messageID string) (*session, bool) {
	for _, s := range e.sessions {
		if s.window.Contains(messageID) {
			return s, true
		}
	}
	return nil, false
}
