package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-sync/internal/models"
)

type MessageServiceMock struct {
	mock.Mock
}

func (m *MessageServiceMock) FetchMessages(ctx context.Context, chatID, pagingToken string, limit int) ([]models.Message, string, error) {
	args := m.Called(ctx, chatID, pagingToken, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.String(1), args.Error(2)
}

func (m *MessageServiceMock) SendMessage(ctx context.Context, chatID, content string, attachmentIDs []string, embeds []models.Embed) (models.Message, error) {
	args := m.Called(ctx, chatID, content, attachmentIDs, embeds)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageServiceMock) MarkAsRead(ctx context.Context, chatID, lastReadMessageID string) error {
	args := m.Called(ctx, chatID, lastReadMessageID)
	return args.Error(0)
}

func (m *MessageServiceMock) FetchChats(ctx context.Context, cursor string, limit int) ([]models.Chat, string, error) {
	args := m.Called(ctx, cursor, limit)
	var chats []models.Chat
	if val := args.Get(0); val != nil {
		chats = val.([]models.Chat)
	}
	return chats, args.String(1), args.Error(2)
}

func (m *MessageServiceMock) JoinChat(ctx context.Context, chatID string) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

func (m *MessageServiceMock) LeaveChat(ctx context.Context, chatID string) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

type PushSenderMock struct {
	mock.Mock
}

func (m *PushSenderMock) Connected() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *PushSenderMock) JoinChat(ctx context.Context, chatID string) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

func (m *PushSenderMock) LeaveChat(ctx context.Context, chatID string) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

func (m *PushSenderMock) MarkRead(ctx context.Context, chatID, messageID string) error {
	args := m.Called(ctx, chatID, messageID)
	return args.Error(0)
}
