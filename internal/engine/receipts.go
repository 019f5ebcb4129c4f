package engine

import (
	"context"
	"log"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ObserveVisible reports that a message became visible in the open chat's
// viewport. When a new maximum chronological index is observed among messages
// not sent by the current user, the engine commits a mark-as-read for it:
// over the push channel while connected, over REST otherwise. The local
// unread count is zeroed optimistically on success.
func (e *Engine) ObserveVisible(messageID string) {
	e.mu.Lock()
	chatID := e.open
	s, ok := e.sessions[chatID]
	if chatID == "" || !ok {
		e.mu.Unlock()
		return
	}
	idx, ok := s.window.IndexOf(messageID)
	if !ok {
		e.mu.Unlock()
		e.noteStale("visible", messageID)
		return
	}
	msg, _ := s.window.At(idx)
	// A user cannot "read" their own message for receipt purposes.
	if msg.SenderID == e.userID || msg.IsPlaceholder() {
		e.mu.Unlock()
		return
	}
	// The candidate is compared positionally but stored by ID; resolving the
	// previous maximum through the index map keeps the comparison valid after
	// older pages shift every position.
	if s.maxSeenID != "" {
		if maxIdx, ok := s.window.IndexOf(s.maxSeenID); ok && idx <= maxIdx {
			e.mu.Unlock()
			return
		}
	}
	s.maxSeenID = messageID
	if s.committing {
		// A commit is in flight; remember to re-commit at the new maximum.
		s.recommit = true
		e.mu.Unlock()
		return
	}
	s.committing = true
	epoch := s.epoch
	e.mu.Unlock()

	go e.commitRead(chatID, epoch, messageID)
}

func (e *Engine) commitRead(chatID string, epoch uint64, messageID string) {
	ctx, span := e.tracer.Start(context.Background(), "engine.mark_read",
		trace.WithAttributes(attribute.String("chat.id", chatID)))
	err := e.markAsRead(ctx, chatID, messageID)
	span.End()

	e.mu.Lock()
	s, ok := e.sessionAt(chatID, epoch)
	if !ok {
		e.mu.Unlock()
		return
	}
	s.committing = false
	if err != nil {
		// Roll the candidate back to the last committed position so
		// re-observing the same message issues a fresh commit.
		s.recommit = false
		s.maxSeenID = s.committedID
		e.mu.Unlock()
		log.Printf("mark as read failed chat=%s: %v", chatID, err)
		return
	}
	s.committedID = messageID
	e.setOwnWatermarkLocked(chatID, messageID)
	if s.recommit {
		s.recommit = false
		if s.maxSeenID != "" && s.maxSeenID != messageID {
			next := s.maxSeenID
			s.committing = true
			e.mu.Unlock()
			go e.commitRead(chatID, epoch, next)
			return
		}
	}
	e.mu.Unlock()
}

func (e *Engine) markAsRead(ctx context.Context, chatID, messageID string) error {
	if e.sender != nil && e.sender.Connected() {
		if err := e.sender.MarkRead(ctx, chatID, messageID); err == nil {
			return nil
		}
	}
	return e.svc.MarkAsRead(ctx, chatID, messageID)
}

// ReadByCount derives how many other participants have read a message: the
// count of participants whose watermark maps to a chronological index at or
// beyond the message's own. A watermark referencing a message outside the
// loaded window is conservatively treated as having read nothing visible.
func (e *Engine) ReadByCount(chatID, messageID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readByCountLocked(chatID, messageID)
}

// ReadCounts derives read counts for every loaded message in one pass.
func (e *Engine) ReadCounts(chatID string) map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[chatID]
	if !ok {
		return nil
	}
	counts := make(map[string]int, s.window.Len())
	for _, m := range s.window.Messages() {
		if m.ID == "" {
			continue
		}
		counts[m.ID] = e.readByCountLocked(chatID, m.ID)
	}
	return counts
}

func (e *Engine) readByCountLocked(chatID, messageID string) int {
	s, ok := e.sessions[chatID]
	if !ok {
		return 0
	}
	idx, ok := s.window.IndexOf(messageID)
	if !ok {
		return 0
	}
	pos, ok := e.chatIndex[chatID]
	if !ok {
		return 0
	}

	count := 0
	for _, p := range e.chats[pos].Participants {
		if p.UserID == e.userID || p.LastReadMessageID == "" {
			continue
		}
		watermarkIdx, ok := s.window.IndexOf(p.LastReadMessageID)
		if !ok {
			continue
		}
		if watermarkIdx >= idx {
			count++
		}
	}
	return count
}
