package models

import "time"

// DeliveryState tracks an outgoing message's lifecycle on this client.
// Messages delivered by the server are always DeliveryConfirmed.
type DeliveryState string

const (
	DeliveryConfirmed DeliveryState = "confirmed"
	DeliverySending   DeliveryState = "sending"
	DeliveryError     DeliveryState = "error"
)

// Attachment is a file attached to a message.
type Attachment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// Embed is a link preview rendered with a message.
type Embed struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// Message represents a chat message.
//
// A locally-originated message carries a client-generated CorrelationID and an
// empty ID until the server confirms it; server-delivered messages always have
// an ID and DeliveryConfirmed state.
type Message struct {
	ID            string              `json:"id,omitempty"`
	CorrelationID string              `json:"correlation_id,omitempty"`
	ChatID        string              `json:"chat_id"`
	SenderID      string              `json:"sender_id"`
	Content       string              `json:"content"`
	SentAt        time.Time           `json:"sent_at"`
	Edited        bool                `json:"edited,omitempty"`
	EditedAt      *time.Time          `json:"edited_at,omitempty"`
	Deleted       bool                `json:"deleted,omitempty"`
	Attachments   []Attachment        `json:"attachments,omitempty"`
	Embeds        []Embed             `json:"embeds,omitempty"`
	Reactions     map[string][]string `json:"reactions,omitempty"`
	Delivery      DeliveryState       `json:"delivery,omitempty"`
}

// Key returns the identity a message is tracked under in a window: the server
// ID once known, otherwise the correlation ID.
func (m Message) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return m.CorrelationID
}

// IsPlaceholder reports whether the message is a local optimistic row that has
// not been confirmed yet.
func (m Message) IsPlaceholder() bool {
	return m.Delivery == DeliverySending || m.Delivery == DeliveryError
}
