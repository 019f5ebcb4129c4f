package engine

import (
	"context"
	"log"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"chat-sync/internal/models"
	"chat-sync/internal/observability"
)

// Send creates an optimistic placeholder at the most-recent end of the chat's
// window and issues the authoritative create in the background. Returns the
// correlation ID the placeholder is tracked under. Failure is terminal until
// the user calls Retry or Dismiss; the engine never retries on its own.
func (e *Engine) Send(ctx context.Context, chatID, content string, attachmentIDs []string, embeds []models.Embed) string {
	correlationID := uuid.NewString()

	e.mu.Lock()
	s := e.ensureSessionLocked(chatID)
	placeholder := models.Message{
		CorrelationID: correlationID,
		ChatID:        chatID,
		SenderID:      e.userID,
		Content:       content,
		SentAt:        e.now(),
		Attachments:   attachmentRefs(attachmentIDs),
		Embeds:        embeds,
		Delivery:      models.DeliverySending,
	}
	s.window.AppendPlaceholder(placeholder)
	s.pending[correlationID] = pendingSend{content: content, attachmentIDs: attachmentIDs, embeds: embeds}
	epoch := s.epoch
	e.mu.Unlock()

	go e.completeSend(ctx, chatID, epoch, correlationID, content, attachmentIDs, embeds)
	return correlationID
}

// Retry abandons a failed placeholder and re-issues the send under a fresh
// correlation ID. Reusing the original would risk double-matching during
// reconciliation.
func (e *Engine) Retry(ctx context.Context, correlationID string) (string, error) {
	e.mu.Lock()
	chatID, s, err := e.failedPlaceholderLocked(correlationID)
	if err != nil {
		e.mu.Unlock()
		return "", err
	}
	args := s.pending[correlationID]
	s.window.Remove(correlationID)
	delete(s.pending, correlationID)
	e.mu.Unlock()

	return e.Send(ctx, chatID, args.content, args.attachmentIDs, args.embeds), nil
}

// Dismiss removes a failed placeholder with no further action.
func (e *Engine) Dismiss(correlationID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, s, err := e.failedPlaceholderLocked(correlationID)
	if err != nil {
		return err
	}
	s.window.Remove(correlationID)
	delete(s.pending, correlationID)
	return nil
}

func (e *Engine) completeSend(ctx context.Context, chatID string, epoch uint64, correlationID, content string, attachmentIDs []string, embeds []models.Embed) {
	ctx, span := e.tracer.Start(ctx, "engine.send",
		trace.WithAttributes(attribute.String("chat.id", chatID)))
	msg, err := e.svc.SendMessage(ctx, chatID, content, attachmentIDs, embeds)
	span.End()

	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessionAt(chatID, epoch)
	if !ok {
		return
	}

	if err != nil {
		if s.window.SetDelivery(correlationID, models.DeliveryError) {
			observability.IncSend("error")
			log.Printf("send failed chat=%s correlation=%s: %v", chatID, correlationID, err)
			e.audit.Emit(context.Background(), "WARN", "send failed: "+err.Error(), chatID, e.userID)
		}
		return
	}

	e.resolveFromREST(s, correlationID, msg)
	observability.IncSend("confirmed")
	e.applyLastMessageLocked(msg, false)
}

// failedPlaceholderLocked locates the session holding an error-state
// placeholder for the correlation ID.
func (e *Engine) failedPlaceholderLocked(correlationID string) (string, *session, error) {
	for chatID, s := range e.sessions {
		msg, ok := s.window.Get(correlationID)
		if !ok {
			continue
		}
		if msg.Delivery != models.DeliveryError {
			return "", nil, ErrPlaceholderNotFailed
		}
		return chatID, s, nil
	}
	return "", nil, ErrUnknownCorrelation
}

func attachmentRefs(ids []string) []models.Attachment {
	if len(ids) == 0 {
		return nil
	}
	refs := make([]models.Attachment, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, models.Attachment{ID: id})
	}
	return refs
}
