package models

import "time"

// Participant is a (chat, user) pair. LastReadMessageID is the user's read
// watermark; per-message read counts are always derived from it, never stored.
type Participant struct {
	UserID            string `json:"user_id"`
	DisplayName       string `json:"display_name,omitempty"`
	LastReadMessageID string `json:"last_read_message_id,omitempty"`
}

// Chat represents a conversation as listed in the chat list. LastMessage and
// UnreadCount are denormalized summary fields kept in sync by the engine.
type Chat struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	ImageURL     string        `json:"image_url,omitempty"`
	Participants []Participant `json:"participants"`
	LastMessage  *Message      `json:"last_message,omitempty"`
	UnreadCount  int           `json:"unread_count"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Participant looks up a participant by user ID.
func (c Chat) Participant(userID string) (Participant, bool) {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}
