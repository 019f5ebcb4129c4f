package models

// Push event types delivered over the real-time channel.
const (
	EventMessageCreated  = "message_created"
	EventMessageEdited   = "message_edited"
	EventMessageDeleted  = "message_deleted"
	EventReactionChanged = "reaction_changed"
)

// ChatEvent is the envelope received from the push channel. The transport
// delivers events at-least-once with no ordering guarantee across reconnects,
// so consumers must tolerate duplicates and gaps.
type ChatEvent struct {
	Type      string              `json:"type"`
	ChatID    string              `json:"chat_id,omitempty"`
	Message   *Message            `json:"message,omitempty"`
	MessageID string              `json:"message_id,omitempty"`
	Content   string              `json:"content,omitempty"`
	Reactions map[string][]string `json:"reactions,omitempty"`
}
