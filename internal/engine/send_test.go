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

const tick = 5 * time.Millisecond

func TestSendConfirmedByREST(t *testing.T) {
	svc := new(mocks.MessageServiceMock)
	allowMembership(svc)
	e := newTestEngine(svc, nil)
	openChat(t, e, svc, "c1", nil)

	srv := mkMsg("srv1", "c1", "me", 10)
	svc.On("SendMessage", mock.Anything, "c1", "hello", mock.Anything, mock.Anything).Return(srv, nil).Once()

	correlationID := e.Send(context.Background(), "c1", "hello", nil, nil)
	require.NotEmpty(t, correlationID)

	// Placeholder is visible synchronously.
	msgs, err := e.Window("c1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.DeliverySending, msgs[0].Delivery)
	assert.Equal(t, correlationID, msgs[0].CorrelationID)

	require.Eventually(t, func() bool {
		msgs, _ := e.Window("c1")
		return len(msgs) == 1 && msgs[0].ID == "srv1" && msgs[0].Delivery == models.DeliveryConfirmed
	}, time.Second, tick)

	svc.AssertExpectations(t)
}

func TestSendFailureThenRetry(t *testing.T) {
	svc := new(mocks.MessageServiceMock)
	allowMembership(svc)
	e := newTestEngine(svc, nil)
	openChat(t, e, svc, "c1", nil)

	svc.On("SendMessage", mock.Anything, "c1", "hi", mock.Anything, mock.Anything).
		Return(models.Message{}, assert.AnError).Once()

	correlationID := e.Send(context.Background(), "c1", "hi", nil, nil)

	require.Eventually(t, func() bool {
		msgs, _ := e.Window("c1")
		return len(msgs) == 1 && msgs[0].Delivery == models.DeliveryError
	}, time.Second, tick)

	// Retry abandons the failed row and sends under a fresh correlation ID.
	srv := mkMsg("srv3", "c1", "me", 10)
	svc.On("SendMessage", mock.Anything, "c1", "hi", mock.Anything, mock.Anything).Return(srv, nil).Once()

	retryID, err := e.Retry(context.Background(), correlationID)
	require.NoError(t, err)
	assert.NotEqual(t, correlationID, retryID)

	require.Eventually(t, func() bool {
		msgs, _ := e.Window("c1")
		return len(msgs) == 1 && msgs[0].ID == "srv3"
	}, time.Second, tick)

	svc.AssertExpectations(t)
}

func TestSendFailureThenDismiss(t *testing.T) {
	svc := new(mocks.MessageServiceMock)
	allowMembership(svc)
	e := newTestEngine(svc, nil)
	openChat(t, e, svc, "c1", nil)

	svc.On("SendMessage", mock.Anything, "c1", "bye", mock.Anything, mock.Anything).
		Return(models.Message{}, assert.AnError).Once()

	correlationID := e.Send(context.Background(), "c1", "bye", nil, nil)

	require.Eventually(t, func() bool {
		msgs, _ := e.Window("c1")
		return len(msgs) == 1 && msgs[0].Delivery == models.DeliveryError
	}, time.Second, tick)

	require.NoError(t, e.Dismiss(correlationID))
	msgs, err := e.Window("c1")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	// No resend happened.
	svc.AssertExpectations(t)
}

func TestRetryUnknownCorrelation(t *testing.T) {
	svc := new(mocks.MessageServiceMock)
	allowMembership(svc)
	e := newTestEngine(svc, nil)
	openChat(t, e, svc, "c1", nil)

	_, err := e.Retry(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownCorrelation)
	assert.ErrorIs(t, e.Dismiss("nope"), ErrUnknownCorrelation)
}

func TestLeavingChatClearsFailedPlaceholders(t *testing.T) {
	svc := new(mocks.MessageServiceMock)
	allowMembership(svc)
	e := newTestEngine(svc, nil)
	openChat(t, e, svc, "c1", nil)

	svc.On("SendMessage", mock.Anything, "c1", "oops", mock.Anything, mock.Anything).
		Return(models.Message{}, assert.AnError).Once()
	correlationID := e.Send(context.Background(), "c1", "oops", nil, nil)

	require.Eventually(t, func() bool {
		msgs, _ := e.Window("c1")
		return len(msgs) == 1 && msgs[0].Delivery == models.DeliveryError
	}, time.Second, tick)

	openChat(t, e, svc, "c2", nil)

	_, err := e.Window("c1")
	assert.ErrorIs(t, err, ErrUnknownChat)
	assert.ErrorIs(t, e.Dismiss(correlationID), ErrUnknownCorrelation)
}
