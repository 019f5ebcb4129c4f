package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"chat-sync/internal/models"
)

// Client talks to the remote message service over REST. It is a thin wrapper;
// all merge and dedup logic lives in the engine.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient constructs a Client for the given base URL. The token, when
// non-empty, is sent as a bearer credential on every request.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchMessages returns one page of a chat's history, newest first, plus the
// paging token for the next older page.
func (c *Client) FetchMessages(ctx context.Context, chatID, pagingToken string, limit int) ([]models.Message, string, error) {
	query := url.Values{}
	if pagingToken != "" {
		query.Set("page_token", pagingToken)
	}
	query.Set("limit", strconv.Itoa(limit))

	var resp struct {
		Messages      []models.Message `json:"messages"`
		NextPageToken string           `json:"next_page_token"`
	}
	path := fmt.Sprintf("/chats/%s/messages?%s", url.PathEscape(chatID), query.Encode())
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, "", fmt.Errorf("fetch messages: %w", err)
	}
	return resp.Messages, resp.NextPageToken, nil
}

// SendMessage creates a message and returns the authoritative server record.
func (c *Client) SendMessage(ctx context.Context, chatID, content string, attachmentIDs []string, embeds []models.Embed) (models.Message, error) {
	req := struct {
		Content       string         `json:"content"`
		AttachmentIDs []string       `json:"attachment_ids,omitempty"`
		Embeds        []models.Embed `json:"embeds,omitempty"`
	}{Content: content, AttachmentIDs: attachmentIDs, Embeds: embeds}

	var msg models.Message
	path := fmt.Sprintf("/chats/%s/messages", url.PathEscape(chatID))
	if err := c.do(ctx, http.MethodPost, path, req, &msg); err != nil {
		return models.Message{}, fmt.Errorf("send message: %w", err)
	}
	return msg, nil
}

// MarkAsRead advances the caller's read watermark. Idempotent on the server.
func (c *Client) MarkAsRead(ctx context.Context, chatID, lastReadMessageID string) error {
	req := struct {
		LastReadMessageID string `json:"last_read_message_id"`
	}{LastReadMessageID: lastReadMessageID}

	path := fmt.Sprintf("/chats/%s/read", url.PathEscape(chatID))
	if err := c.do(ctx, http.MethodPost, path, req, nil); err != nil {
		return fmt.Errorf("mark as read: %w", err)
	}
	return nil
}

// FetchChats returns one page of the chat list plus the forward cursor.
func (c *Client) FetchChats(ctx context.Context, cursor string, limit int) ([]models.Chat, string, error) {
	query := url.Values{}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	query.Set("limit", strconv.Itoa(limit))

	var resp struct {
		Chats      []models.Chat `json:"chats"`
		NextCursor string        `json:"next_cursor"`
	}
	if err := c.do(ctx, http.MethodGet, "/chats?"+query.Encode(), nil, &resp); err != nil {
		return nil, "", fmt.Errorf("fetch chats: %w", err)
	}
	return resp.Chats, resp.NextCursor, nil
}

// JoinChat is the REST fallback for push-channel group membership.
func (c *Client) JoinChat(ctx context.Context, chatID string) error {
	path := fmt.Sprintf("/chats/%s/join", url.PathEscape(chatID))
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("join chat: %w", err)
	}
	return nil
}

// LeaveChat is the REST fallback for push-channel group membership.
func (c *Client) LeaveChat(ctx context.Context, chatID string) error {
	path := fmt.Sprintf("/chats/%s/leave", url.PathEscape(chatID))
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("leave chat: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
