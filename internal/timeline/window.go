package timeline

import (
	"sort"
	"time"

	"chat-sync/internal/models"
)

// Window is the in-memory, paginated slice of one chat's messages, ordered
// oldest-first for rendering. Confirmed messages stay monotonically ordered by
// SentAt; unresolved placeholders always sit at the most-recent end. Every
// mutation goes through the dedup-by-identity merge rules here, so the two
// async insertion paths (REST completion, push delivery) may complete in any
// order without producing duplicates.
type Window struct {
	chatID      string
	msgs        []models.Message
	index       map[string]int
	hasOlder    bool
	oldestToken string
}

// New creates an empty window for a chat. A fresh window assumes older history
// exists until a short page proves otherwise.
func New(chatID string) *Window {
	return &Window{
		chatID:   chatID,
		index:    make(map[string]int),
		hasOlder: true,
	}
}

func (w *Window) ChatID() string { return w.chatID }

func (w *Window) Len() int { return len(w.msgs) }

// Messages returns a copy of the window in render order (oldest first).
func (w *Window) Messages() []models.Message {
	out := make([]models.Message, len(w.msgs))
	copy(out, w.msgs)
	return out
}

// Get looks a message up by its key (server ID, or correlation ID for
// placeholders).
func (w *Window) Get(key string) (models.Message, bool) {
	pos, ok := w.index[key]
	if !ok {
		return models.Message{}, false
	}
	return w.msgs[pos], true
}

// IndexOf returns the chronological position of a message. Read-count
// aggregation depends on this map rather than on IDs conveying order.
func (w *Window) IndexOf(key string) (int, bool) {
	pos, ok := w.index[key]
	return pos, ok
}

// Contains reports whether a message with the given key is loaded.
func (w *Window) Contains(key string) bool {
	_, ok := w.index[key]
	return ok
}

// Upsert applies a server-authoritative message: update in place when the ID
// is already present, otherwise insert in chronological order ahead of any
// placeholders. Returns true when a new row was inserted. Replaying the same
// message is a no-op beyond refreshing its fields, which makes push delivery
// idempotent.
func (w *Window) Upsert(msg models.Message) bool {
	msg.Delivery = models.DeliveryConfirmed
	if pos, ok := w.index[msg.ID]; ok {
		corr := w.msgs[pos].CorrelationID
		if msg.CorrelationID == "" {
			msg.CorrelationID = corr
		}
		w.msgs[pos] = msg
		return false
	}
	w.insertOrdered(msg)
	return true
}

// AppendPlaceholder adds an optimistic row at the most-recent end.
func (w *Window) AppendPlaceholder(msg models.Message) {
	w.msgs = append(w.msgs, msg)
	w.index[msg.Key()] = len(w.msgs) - 1
}

// Remove deletes a row by key. Used for dismissing failed sends and for
// dropping a placeholder whose authoritative twin already arrived via push.
func (w *Window) Remove(key string) bool {
	pos, ok := w.index[key]
	if !ok {
		return false
	}
	w.msgs = append(w.msgs[:pos], w.msgs[pos+1:]...)
	w.rebuildIndex()
	return true
}

// Promote swaps a placeholder for its confirmed server identity and moves it
// to its chronological slot. Returns false if no such placeholder exists.
func (w *Window) Promote(correlationID string, srv models.Message) bool {
	pos, ok := w.index[correlationID]
	if !ok || !w.msgs[pos].IsPlaceholder() {
		return false
	}
	w.msgs = append(w.msgs[:pos], w.msgs[pos+1:]...)
	w.rebuildIndex()
	srv.CorrelationID = correlationID
	w.Upsert(srv)
	return true
}

// PrependOlder merges a page of older messages, skipping any IDs already
// present. The merge is order-independent with concurrent push inserts.
// Returns the number of rows actually added.
func (w *Window) PrependOlder(msgs []models.Message) int {
	added := 0
	for _, m := range msgs {
		if m.ID == "" || w.Contains(m.ID) {
			continue
		}
		m.Delivery = models.DeliveryConfirmed
		w.insertOrdered(m)
		added++
	}
	return added
}

// ApplyEdit updates content and the edited flag in place.
func (w *Window) ApplyEdit(id, content string, at time.Time) bool {
	pos, ok := w.index[id]
	if !ok {
		return false
	}
	w.msgs[pos].Content = content
	w.msgs[pos].Edited = true
	w.msgs[pos].EditedAt = &at
	return true
}

// ApplySoftDelete sets the deleted flag and clears displayed content. The row
// keeps its slot; deletion is a flag, not removal.
func (w *Window) ApplySoftDelete(id string) bool {
	pos, ok := w.index[id]
	if !ok {
		return false
	}
	w.msgs[pos].Deleted = true
	w.msgs[pos].Content = ""
	w.msgs[pos].Attachments = nil
	w.msgs[pos].Embeds = nil
	return true
}

// At returns the message at a chronological position.
func (w *Window) At(pos int) (models.Message, bool) {
	if pos < 0 || pos >= len(w.msgs) {
		return models.Message{}, false
	}
	return w.msgs[pos], true
}

// SetDelivery updates a row's delivery state in place.
func (w *Window) SetDelivery(key string, state models.DeliveryState) bool {
	pos, ok := w.index[key]
	if !ok {
		return false
	}
	w.msgs[pos].Delivery = state
	return true
}

// ApplyReactions replaces the reaction set for a message.
func (w *Window) ApplyReactions(id string, reactions map[string][]string) bool {
	pos, ok := w.index[id]
	if !ok {
		return false
	}
	w.msgs[pos].Reactions = reactions
	return true
}

// ClearErrorPlaceholders drops failed optimistic rows. Called when the chat is
// being left.
func (w *Window) ClearErrorPlaceholders() int {
	kept := w.msgs[:0]
	removed := 0
	for _, m := range w.msgs {
		if m.Delivery == models.DeliveryError {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	w.msgs = kept
	if removed > 0 {
		w.rebuildIndex()
	}
	return removed
}

// Placeholders returns the unresolved optimistic rows, oldest first.
func (w *Window) Placeholders() []models.Message {
	var out []models.Message
	for _, m := range w.msgs {
		if m.IsPlaceholder() {
			out = append(out, m)
		}
	}
	return out
}

func (w *Window) HasOlder() bool          { return w.hasOlder }
func (w *Window) SetHasOlder(v bool)      { w.hasOlder = v }
func (w *Window) OldestToken() string     { return w.oldestToken }
func (w *Window) SetOldestToken(t string) { w.oldestToken = t }

// insertOrdered places a confirmed message by SentAt among the other confirmed
// rows, always ahead of the placeholder tail. Equal timestamps keep arrival
// order.
func (w *Window) insertOrdered(msg models.Message) {
	boundary := len(w.msgs)
	for i, m := range w.msgs {
		if m.IsPlaceholder() {
			boundary = i
			break
		}
	}
	pos := sort.Search(boundary, func(i int) bool {
		return w.msgs[i].SentAt.After(msg.SentAt)
	})
	w.msgs = append(w.msgs, models.Message{})
	copy(w.msgs[pos+1:], w.msgs[pos:])
	w.msgs[pos] = msg
	w.rebuildIndex()
}

func (w *Window) rebuildIndex() {
	w.index = make(map[string]int, len(w.msgs))
	for i, m := range w.msgs {
		w.index[m.Key()] = i
	}
}
