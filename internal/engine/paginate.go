package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"chat-sync/internal/observability"
)

// ViewportAnchor is the rendering-side hook LoadOlder uses to keep the message
// the user was looking at under the viewport: Extent is sampled before the
// merge and the measured delta is pushed back after it.
type ViewportAnchor interface {
	Extent() int
	AdjustBy(delta int)
}

// LoadOlder fetches the next older page and merges it below the existing
// oldest message. A page shorter than the page size marks history as
// exhausted, after which calls are no-ops. Concurrent push arrivals are safe:
// both merges dedup by ID, so completion order does not matter. Switching away
// from the chat while the fetch is in flight discards the continuation.
func (e *Engine) LoadOlder(ctx context.Context, chatID string, anchor ViewportAnchor) error {
	e.mu.Lock()
	s, ok := e.sessions[chatID]
	if !ok {
		e.mu.Unlock()
		return ErrUnknownChat
	}
	if !s.window.HasOlder() || s.paginating {
		e.mu.Unlock()
		return nil
	}
	s.paginating = true
	token := s.window.OldestToken()
	epoch := s.epoch
	e.mu.Unlock()

	before := 0
	if anchor != nil {
		before = anchor.Extent()
	}

	ctx, span := e.tracer.Start(ctx, "engine.load_older",
		trace.WithAttributes(attribute.String("chat.id", chatID)))
	msgs, next, err := e.svc.FetchMessages(ctx, chatID, token, e.pageSize)
	span.End()

	e.mu.Lock()
	s, ok = e.sessionAt(chatID, epoch)
	if !ok {
		e.mu.Unlock()
		return nil
	}
	s.paginating = false
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("load older: %w", err)
	}
	s.window.PrependOlder(msgs)
	s.window.SetOldestToken(next)
	if len(msgs) < e.pageSize {
		s.window.SetHasOlder(false)
	}
	e.mu.Unlock()

	observability.IncPageLoaded()
	if anchor != nil {
		anchor.AdjustBy(anchor.Extent() - before)
	}
	return nil
}
