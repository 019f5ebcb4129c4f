package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/mocks"
	"chat-sync/internal/models"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testClock() func() time.Time {
	var n int64
	return func() time.Time {
		v := atomic.AddInt64(&n, 1)
		return base.Add(time.Duration(v) * time.Second)
	}
}

func newTestEngine(svc *mocks.MessageServiceMock, sender *mocks.PushSenderMock) *Engine {
	cfg := Config{
		Service:      svc,
		UserID:       "me",
		PageSize:     3,
		ChatPageSize: 2,
		Now:          testClock(),
	}
	if sender != nil {
		cfg.Sender = sender
	}
	return New(cfg)
}

// allowMembership stubs the group join/leave calls every open/close issues.
func allowMembership(svc *mocks.MessageServiceMock) {
	svc.On("JoinChat", mock.Anything, mock.Anything).Return(nil).Maybe()
	svc.On("LeaveChat", mock.Anything, mock.Anything).Return(nil).Maybe()
}

func mkMsg(id, chatID, senderID string, minute int) models.Message {
	return models.Message{
		ID:       id,
		ChatID:   chatID,
		SenderID: senderID,
		Content:  "msg " + id,
		SentAt:   base.Add(time.Duration(minute) * time.Minute),
		Delivery: models.DeliveryConfirmed,
	}
}

func created(msg models.Message) models.ChatEvent {
	return models.ChatEvent{Type: models.EventMessageCreated, ChatID: msg.ChatID, Message: &msg}
}

func openChat(t *testing.T, e *Engine, svc *mocks.MessageServiceMock, chatID string, msgs []models.Message) {
	t.Helper()
	svc.On("FetchMessages", mock.Anything, chatID, "", e.pageSize).Return(msgs, "", nil).Once()
	require.NoError(t, e.OpenChat(context.Background(), chatID))
}

func windowIDs(t *testing.T, e *Engine, chatID string) []string {
	t.Helper()
	msgs, err := e.Window(chatID)
	require.NoError(t, err)
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Key())
	}
	return out
}
