package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/mocks"
	"chat-sync/internal/models"
)

func TestChatListPagination(t *testing.T) {
	svc := new(mocks.MessageServiceMock)
	e := newTestEngine(svc, nil)

	page1 := []models.Chat{{ID: "c1", Title: "one"}, {ID: "c2", Title: "two"}}
	svc.On("FetchChats", mock.Anything, "", 2).Return(page1, "cur1", nil).Once()
	require.NoError(t, e.RefreshChats(context.Background()))
	assert.True(t, e.HasMoreChats())

	page2 := []models.Chat{{ID: "c3", Title: "three"}}
	svc.On("FetchChats", mock.Anything, "cur1", 2).Return(page2, "", nil).Once()
	require.NoError(t, e.LoadMoreChats(context.Background()))

	chats := e.Chats()
	require.Len(t, chats, 3)
	assert.False(t, e.HasMoreChats())

	// Exhausted list: a further call is a no-op.
	require.NoError(t, e.LoadMoreChats(context.Background()))
	svc.AssertExpectations(t)
}

func TestChatListErrorStateAndRetry(t *testing.T) {
	svc := new(mocks.MessageServiceMock)
	e := newTestEngine(svc, nil)

	svc.On("FetchChats", mock.Anything, "", 2).Return(([]models.Chat)(nil), "", assert.AnError).Once()
	require.Error(t, e.RefreshChats(context.Background()))
	assert.Error(t, e.ChatListError())

	svc.On("FetchChats", mock.Anything, "", 2).Return([]models.Chat{{ID: "c1"}}, "", nil).Once()
	require.NoError(t, e.RefreshChats(context.Background()))
	assert.NoError(t, e.ChatListError())
	assert.Len(t, e.Chats(), 1)
}

func TestPushUpdatesSummaryForUnopenedChat(t *testing.T) {
	svc := new(mocks.MessageServiceMock)
	e := newTestEngine(svc, nil)

	svc.On("FetchChats", mock.Anything, "", 2).
		Return([]models.Chat{{ID: "c1", Title: "one"}, {ID: "c2", Title: "two"}}, "", nil).Once()
	require.NoError(t, e.RefreshChats(context.Background()))

	msg := mkMsg("m1", "c2", "u2", 1)
	e.HandleEvent(created(msg))

	chats := e.Chats()
	require.Len(t, chats, 2)
	// The chat with the new message moved to the front with its summary and
	// unread count updated, without any refetch.
	assert.Equal(t, "c2", chats[0].ID)
	require.NotNil(t, chats[0].LastMessage)
	assert.Equal(t, "m1", chats[0].LastMessage.ID)
	assert.Equal(t, 1, chats[0].UnreadCount)

	// A duplicate delivery must not double-count.
	e.HandleEvent(created(msg))
	assert.Equal(t, 1, e.Chats()[0].UnreadCount)
}

func TestPushForOpenChatDoesNotIncrementUnread(t *testing.T) {
	svc := new(mocks.MessageServiceMock)
	allowMembership(svc)
	e := newTestEngine(svc, nil)

	svc.On("FetchChats", mock.Anything, "", 2).Return([]models.Chat{{ID: "c1"}}, "", nil).Once()
	require.NoError(t, e.RefreshChats(context.Background()))
	openChat(t, e, svc, "c1", nil)

	e.HandleEvent(created(mkMsg("m1", "c1", "u2", 1)))

	chats := e.Chats()
	assert.Equal(t, 0, chats[0].UnreadCount)
	require.NotNil(t, chats[0].LastMessage)
	assert.Equal(t, "m1", chats[0].LastMessage.ID)
}

func TestOwnSendUpdatesSummary(t *testing.T) {
	svc := new(mocks.MessageServiceMock)
	allowMembership(svc)
	e := newTestEngine(svc, nil)

	svc.On("FetchChats", mock.Anything, "", 2).Return([]models.Chat{{ID: "c1"}}, "", nil).Once()
	require.NoError(t, e.RefreshChats(context.Background()))
	openChat(t, e, svc, "c1", nil)

	srv := mkMsg("srv1", "c1", "me", 5)
	svc.On("SendMessage", mock.Anything, "c1", "hello", mock.Anything, mock.Anything).Return(srv, nil).Once()
	e.Send(context.Background(), "c1", "hello", nil, nil)

	require.Eventually(t, func() bool {
		chats := e.Chats()
		return len(chats) == 1 && chats[0].LastMessage != nil && chats[0].LastMessage.ID == "srv1"
	}, time.Second, tick)
	assert.Equal(t, 0, e.Chats()[0].UnreadCount)
}

func TestSummaryEditAndDelete(t *testing.T) {
	svc := new(mocks.MessageServiceMock)
	e := newTestEngine(svc, nil)

	last := mkMsg("m1", "c1", "u2", 1)
	svc.On("FetchChats", mock.Anything, "", 2).
		Return([]models.Chat{{ID: "c1", LastMessage: &last}}, "", nil).Once()
	require.NoError(t, e.RefreshChats(context.Background()))

	e.HandleEvent(models.ChatEvent{Type: models.EventMessageEdited, MessageID: "m1", Content: "edited"})
	chats := e.Chats()
	assert.Equal(t, "edited", chats[0].LastMessage.Content)
	assert.True(t, chats[0].LastMessage.Edited)

	e.HandleEvent(models.ChatEvent{Type: models.EventMessageDeleted, MessageID: "m1"})
	chats = e.Chats()
	assert.True(t, chats[0].LastMessage.Deleted)
	assert.Empty(t, chats[0].LastMessage.Content)
}

func TestPushForUnknownChatInsertsStub(t *testing.T) {
	svc := new(mocks.MessageServiceMock)
	e := newTestEngine(svc, nil)

	svc.On("FetchChats", mock.Anything, "", 2).Return([]models.Chat{{ID: "c1"}}, "", nil).Once()
	require.NoError(t, e.RefreshChats(context.Background()))

	e.HandleEvent(created(mkMsg("m9", "c-new", "u7", 9)))

	chats := e.Chats()
	require.Len(t, chats, 2)
	assert.Equal(t, "c-new", chats[0].ID)
	assert.Equal(t, 1, chats[0].UnreadCount)
}
