package engine

import (
	"context"
	"fmt"

	"chat-sync/internal/models"
)

// RefreshChats (re)loads the first page of the chat list. A failure leaves the
// list in an error state readable via ChatListError; calling RefreshChats
// again is the manual retry.
func (e *Engine) RefreshChats(ctx context.Context) error {
	ctx, span := e.tracer.Start(ctx, "engine.refresh_chats")
	chats, cursor, err := e.svc.FetchChats(ctx, "", e.chatPageSize)
	span.End()

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.chatsErr = err
		return fmt.Errorf("refresh chats: %w", err)
	}
	e.chatsErr = nil
	e.chats = chats
	e.chatCursor = cursor
	e.moreChats = len(chats) == e.chatPageSize
	e.rebuildChatIndexLocked()
	return nil
}

// LoadMoreChats pages the chat list forward. A no-op once exhausted.
func (e *Engine) LoadMoreChats(ctx context.Context) error {
	e.mu.Lock()
	if !e.moreChats {
		e.mu.Unlock()
		return nil
	}
	cursor := e.chatCursor
	e.mu.Unlock()

	ctx, span := e.tracer.Start(ctx, "engine.load_more_chats")
	chats, next, err := e.svc.FetchChats(ctx, cursor, e.chatPageSize)
	span.End()
	if err != nil {
		return fmt.Errorf("load more chats: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, chat := range chats {
		if pos, ok := e.chatIndex[chat.ID]; ok {
			e.chats[pos] = chat
			continue
		}
		e.chats = append(e.chats, chat)
	}
	e.chatCursor = next
	e.moreChats = len(chats) == e.chatPageSize
	e.rebuildChatIndexLocked()
	return nil
}

// Chats returns a snapshot of the chat list.
func (e *Engine) Chats() []models.Chat {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.Chat, len(e.chats))
	copy(out, e.chats)
	return out
}

// ChatListError reports the error state of the last chat list fetch.
func (e *Engine) ChatListError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.chatsErr
}

// HasMoreChats reports whether the chat list can be paged further.
func (e *Engine) HasMoreChats() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.moreChats
}

// applyLastMessageLocked keeps the denormalized last-message summary and the
// unread count consistent without refetching the list: update in place by ID,
// else insert. The same rule as the window merge.
func (e *Engine) applyLastMessageLocked(msg models.Message, newRow bool) {
	pos, ok := e.chatIndex[msg.ChatID]
	if !ok {
		// A chat not yet in the list (created elsewhere, or beyond the loaded
		// page) gets a stub row; the next refresh fills in the metadata.
		chat := models.Chat{ID: msg.ChatID, LastMessage: &msg}
		if newRow && msg.SenderID != e.userID && e.open != msg.ChatID {
			chat.UnreadCount = 1
		}
		e.chats = append([]models.Chat{chat}, e.chats...)
		e.rebuildChatIndexLocked()
		return
	}

	chat := &e.chats[pos]
	last := chat.LastMessage
	// For chats with no loaded window the summary row is the only dedup
	// state, so a replayed delivery is recognized by the last-message ID.
	duplicate := last != nil && last.ID == msg.ID
	if last == nil || duplicate || !msg.SentAt.Before(last.SentAt) {
		copied := msg
		chat.LastMessage = &copied
	}
	if newRow && !duplicate && msg.SenderID != e.userID && e.open != msg.ChatID {
		chat.UnreadCount++
	}
	if pos != 0 && (last == nil || !msg.SentAt.Before(last.SentAt)) {
		e.moveChatToFrontLocked(pos)
	}
}

func (e *Engine) applySummaryEditLocked(messageID, content string) {
	for i := range e.chats {
		last := e.chats[i].LastMessage
		if last != nil && last.ID == messageID {
			last.Content = content
			last.Edited = true
			return
		}
	}
}

func (e *Engine) applySummaryDeleteLocked(messageID string) {
	for i := range e.chats {
		last := e.chats[i].LastMessage
		if last != nil && last.ID == messageID {
			last.Deleted = true
			last.Content = ""
			return
		}
	}
}

// setOwnWatermarkLocked records the current user's committed read position and
// optimistically zeroes the chat's unread count.
func (e *Engine) setOwnWatermarkLocked(chatID, messageID string) {
	pos, ok := e.chatIndex[chatID]
	if !ok {
		return
	}
	chat := &e.chats[pos]
	chat.UnreadCount = 0
	for i := range chat.Participants {
		if chat.Participants[i].UserID == e.userID {
			chat.Participants[i].LastReadMessageID = messageID
			return
		}
	}
}

func (e *Engine) moveChatToFrontLocked(pos int) {
	chat := e.chats[pos]
	copy(e.chats[1:pos+1], e.chats[:pos])
	e.chats[0] = chat
	e.rebuildChatIndexLocked()
}

func (e *Engine) rebuildChatIndexLocked() {
	e.chatIndex = make(map[string]int, len(e.chats))
	for i, chat := range e.chats {
		e.chatIndex[chat.ID] = i
	}
}
