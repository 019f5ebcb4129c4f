package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/mocks"
)

func TestEmitPublishesEnvelope(t *testing.T) {
	pub := new(mocks.PublisherMock)
	var got AuditEnvelope
	pub.On("Publish", mock.Anything, "sync_audit.client", mock.Anything).
		Run(func(args mock.Arguments) { got = args.Get(2).(AuditEnvelope) }).
		Return(nil).Once()

	emitter := NewAuditEmitter(pub, "sync_audit.client", "chat-sync", "test")
	emitter.Emit(context.Background(), "WARN", "send failed", "c1", "me")

	pub.AssertExpectations(t)
	assert.Equal(t, 1, got.SchemaVersion)
	assert.Equal(t, "sync_audit", got.EventType)
	assert.Equal(t, "chat-sync", got.Service)
	assert.Equal(t, "test", got.Environment)
	assert.Equal(t, "c1", got.ChatID)
	assert.Equal(t, "me", got.UserID)
	assert.Equal(t, "WARN", got.Payload.Level)
	assert.Equal(t, "send failed", got.Payload.Text)
	require.NotEmpty(t, got.OccurredAt)
}

func TestEmitIsNilSafe(t *testing.T) {
	var emitter *AuditEmitter
	emitter.Emit(context.Background(), "INFO", "x", "", "")

	NewAuditEmitter(nil, "k", "s", "e").Emit(context.Background(), "INFO", "x", "", "")
}

func TestEmitSwallowsPublishErrors(t *testing.T) {
	pub := new(mocks.PublisherMock)
	pub.On("Publish", mock.Anything, "k", mock.Anything).Return(assert.AnError).Once()

	NewAuditEmitter(pub, "k", "s", "e").Emit(context.Background(), "INFO", "x", "c1", "me")
	pub.AssertExpectations(t)
}
