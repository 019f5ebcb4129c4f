package push

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-sync/internal/models"
	"chat-sync/internal/observability"
)

// ErrNotConnected is returned by outbound operations while the channel is
// down. Callers fall back to the REST equivalents.
var ErrNotConnected = errors.New("push channel not connected")

const (
	frameJoin     = "join"
	frameLeave    = "leave"
	frameMarkRead = "mark_read"
)

type frame struct {
	Type      string `json:"type"`
	ChatID    string `json:"chat_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// Channel is the client side of the real-time push transport. It delivers
// ChatEvents to the handler in arrival order, reconnects with backoff, and
// resubscribes joined chats after a reconnect. Delivery is at-least-once and
// unordered across reconnects; the engine's dedup rules absorb both.
type Channel struct {
	url     string
	token   string
	handler func(models.ChatEvent)
	dialer  *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool
	joined    map[string]bool
}

// NewChannel constructs a Channel. The handler is invoked from the read
// goroutine, one event at a time.
func NewChannel(url, token string, handler func(models.ChatEvent)) *Channel {
	return &Channel{
		url:     url,
		token:   token,
		handler: handler,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		joined:  make(map[string]bool),
	}
}

// Connect dials the transport and starts the read loop. Reconnection after
// the initial success is automatic.
func (c *Channel) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	c.setConn(conn)
	go c.run()
	return nil
}

// Connected reports whether the socket is currently up.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// JoinChat subscribes this client to a chat's event group.
func (c *Channel) JoinChat(ctx context.Context, chatID string) error {
	c.mu.Lock()
	c.joined[chatID] = true
	c.mu.Unlock()
	return c.write(frame{Type: frameJoin, ChatID: chatID})
}

// LeaveChat unsubscribes from a chat's event group.
func (c *Channel) LeaveChat(ctx context.Context, chatID string) error {
	c.mu.Lock()
	delete(c.joined, chatID)
	c.mu.Unlock()
	return c.write(frame{Type: frameLeave, ChatID: chatID})
}

// MarkRead advances the read watermark over the socket.
func (c *Channel) MarkRead(ctx context.Context, chatID, messageID string) error {
	return c.write(frame{Type: frameMarkRead, ChatID: chatID, MessageID: messageID})
}

// Close shuts the channel down permanently.
func (c *Channel) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	observability.SetWSConnected(false)
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := c.dialer.DialContext(ctx, c.url, header)
	return conn, err
}

func (c *Channel) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	observability.SetWSConnected(true)
}

// run reads events until the socket drops, then redials with backoff and
// replays join frames for every subscribed chat.
func (c *Channel) run() {
	backoff := time.Second
	for {
		err := c.readLoop()
		c.mu.Lock()
		closed := c.closed
		c.connected = false
		c.conn = nil
		c.mu.Unlock()
		observability.SetWSConnected(false)
		if closed {
			return
		}
		log.Printf("push channel dropped, reconnecting: %v", err)

		for {
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			c.mu.Lock()
			closed = c.closed
			c.mu.Unlock()
			if closed {
				return
			}

			conn, err := c.dial(context.Background())
			if err != nil {
				log.Printf("push channel redial failed: %v", err)
				continue
			}
			c.setConn(conn)
			observability.IncWSReconnect()
			c.resubscribe()
			backoff = time.Second
			break
		}
	}
}

func (c *Channel) readLoop() error {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return ErrNotConnected
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var event models.ChatEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			log.Printf("push channel bad payload: %v", err)
			continue
		}
		if c.handler != nil {
			c.handler(event)
		}
	}
}

func (c *Channel) resubscribe() {
	c.mu.Lock()
	chatIDs := make([]string, 0, len(c.joined))
	for id := range c.joined {
		chatIDs = append(chatIDs, id)
	}
	c.mu.Unlock()

	for _, id := range chatIDs {
		if err := c.write(frame{Type: frameJoin, ChatID: id}); err != nil {
			log.Printf("push channel resubscribe failed chat=%s: %v", id, err)
		}
	}
}

func (c *Channel) write(f frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected {
		return ErrNotConnected
	}
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		log.Printf("push channel write error: %v", err)
		return err
	}
	return nil
}
