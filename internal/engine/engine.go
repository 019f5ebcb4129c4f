package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/telemetry"
	"chat-sync/internal/timeline"
)

var (
	// ErrUnknownChat is returned when an operation targets a chat with no
	// loaded window.
	ErrUnknownChat = errors.New("chat window not loaded")
	// ErrUnknownCorrelation is returned for retry/dismiss of a correlation ID
	// the engine is not tracking.
	ErrUnknownCorrelation = errors.New("unknown correlation id")
	// ErrPlaceholderNotFailed is returned when retry/dismiss targets a
	// placeholder that is not in the error state.
	ErrPlaceholderNotFailed = errors.New("placeholder has not failed")
)

const (
	defaultPageSize     = 30
	defaultChatPageSize = 20
)

// MessageService is the REST collaborator the engine consumes. Persistent
// storage of chats and messages lives behind it.
type MessageService interface {
	FetchMessages(ctx context.Context, chatID, pagingToken string, limit int) ([]models.Message, string, error)
	SendMessage(ctx context.Context, chatID, content string, attachmentIDs []string, embeds []models.Embed) (models.Message, error)
	MarkAsRead(ctx context.Context, chatID, lastReadMessageID string) error
	FetchChats(ctx context.Context, cursor string, limit int) ([]models.Chat, string, error)
	JoinChat(ctx context.Context, chatID string) error
	LeaveChat(ctx context.Context, chatID string) error
}

// PushSender is the outbound side of the push channel. Operations prefer it
// while connected and silently fall back to the MessageService otherwise.
type PushSender interface {
	Connected() bool
	JoinChat(ctx context.Context, chatID string) error
	LeaveChat(ctx context.Context, chatID string) error
	MarkRead(ctx context.Context, chatID, messageID string) error
}

// Config carries the engine's collaborators.
type Config struct {
	Service      MessageService
	Sender       PushSender // optional
	Audit        *telemetry.AuditEmitter
	UserID       string
	PageSize     int
	ChatPageSize int
	Now          func() time.Time
}

// Engine keeps the client-side message timelines consistent across optimistic
// sends, push delivery, REST responses and history pagination, and derives
// read receipts from participant watermarks.
//
// All shared state is owned by one mutex; every mutation routes through the
// dedup-safe merge rules, never blind overwrite, because concurrent async
// completions are the norm here.
type Engine struct {
	svc          MessageService
	sender       PushSender
	audit        *telemetry.AuditEmitter
	userID       string
	pageSize     int
	chatPageSize int
	now          func() time.Time
	tracer       trace.Tracer

	mu         sync.Mutex
	sessions   map[string]*session
	open       string
	epochSeq   uint64
	chats      []models.Chat
	chatIndex  map[string]int
	chatCursor string
	moreChats  bool
	chatsErr   error
}

// session is the per-chat owned state: the timeline window, the correlation
// table and the read-tracking machinery. Torn down when the chat is left.
type session struct {
	window     *timeline.Window
	corr       *correlationTable
	pending    map[string]pendingSend
	epoch      uint64
	paginating bool
	committing bool
	recommit   bool

	// Read tracking is keyed by message ID, never by window index: merging an
	// older page shifts every index, so a stored index would point at the
	// wrong message afterwards.
	maxSeenID   string
	committedID string
}

type pendingSend struct {
	content       string
	attachmentIDs []string
	embeds        []models.Embed
}

// New constructs an Engine.
func New(cfg Config) *Engine {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	chatPageSize := cfg.ChatPageSize
	if chatPageSize <= 0 {
		chatPageSize = defaultChatPageSize
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		svc:          cfg.Service,
		sender:       cfg.Sender,
		audit:        cfg.Audit,
		userID:       cfg.UserID,
		pageSize:     pageSize,
		chatPageSize: chatPageSize,
		now:          now,
		tracer:       otel.Tracer("chat-sync/engine"),
		sessions:     make(map[string]*session),
		chatIndex:    make(map[string]int),
	}
}

// OpenChat makes chatID the open chat: joins its push group, loads the first
// message page and arms read tracking. Any previously open chat is closed
// first. On fetch failure the chat stays open with an empty window and the
// caller may retry.
func (e *Engine) OpenChat(ctx context.Context, chatID string) error {
	e.mu.Lock()
	if e.open != "" && e.open != chatID {
		e.closeLocked(e.open)
	}
	s := e.ensureSessionLocked(chatID)
	e.open = chatID
	epoch := s.epoch
	e.mu.Unlock()

	e.joinGroup(ctx, chatID)

	ctx, span := e.tracer.Start(ctx, "engine.open_chat")
	msgs, next, err := e.svc.FetchMessages(ctx, chatID, "", e.pageSize)
	span.End()
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessionAt(chatID, epoch)
	if !ok {
		return nil
	}
	s.window.PrependOlder(msgs)
	s.window.SetOldestToken(next)
	s.window.SetHasOlder(len(msgs) == e.pageSize)
	return nil
}

// CloseChat tears down the open chat's session: correlation table, read
// observation state and failed placeholders are all discarded, and in-flight
// continuations for the chat become stale.
func (e *Engine) CloseChat(chatID string) {
	e.mu.Lock()
	e.closeLocked(chatID)
	e.mu.Unlock()
}

// Close shuts the engine down, closing the open chat if any.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.open != "" {
		e.closeLocked(e.open)
	}
	e.mu.Unlock()
}

// OpenChatID returns the currently open chat, or "".
func (e *Engine) OpenChatID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open
}

// Window returns a snapshot of a chat's loaded messages in render order.
func (e *Engine) Window(chatID string) ([]models.Message, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[chatID]
	if !ok {
		return nil, ErrUnknownChat
	}
	return s.window.Messages(), nil
}

// HasOlderMessages reports whether more history can be paged in.
func (e *Engine) HasOlderMessages(chatID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[chatID]
	if !ok {
		return false
	}
	return s.window.HasOlder()
}

func (e *Engine) closeLocked(chatID string) {
	s, ok := e.sessions[chatID]
	if ok {
		s.window.ClearErrorPlaceholders()
		s.corr.clear()
		delete(e.sessions, chatID)
	}
	if e.open == chatID {
		e.open = ""
	}
	go e.leaveGroup(context.Background(), chatID)
}

func (e *Engine) ensureSessionLocked(chatID string) *session {
	if s, ok := e.sessions[chatID]; ok {
		return s
	}
	e.epochSeq++
	s := &session{
		window:  timeline.New(chatID),
		corr:    newCorrelationTable(),
		pending: make(map[string]pendingSend),
		epoch:   e.epochSeq,
	}
	e.sessions[chatID] = s
	return s
}

// sessionAt is the stale-response guard: a continuation captured under an
// earlier epoch finds no session once the chat was closed or reopened.
func (e *Engine) sessionAt(chatID string, epoch uint64) (*session, bool) {
	s, ok := e.sessions[chatID]
	if !ok || s.epoch != epoch {
		return nil, false
	}
	return s, true
}

func (e *Engine) joinGroup(ctx context.Context, chatID string) {
	if e.sender != nil && e.sender.Connected() {
		if err := e.sender.JoinChat(ctx, chatID); err == nil {
			return
		}
	}
	if err := e.svc.JoinChat(ctx, chatID); err != nil {
		log.Printf("join chat group failed chat=%s: %v", chatID, err)
	}
}

func (e *Engine) leaveGroup(ctx context.Context, chatID string) {
	if e.sender != nil && e.sender.Connected() {
		if err := e.sender.LeaveChat(ctx, chatID); err == nil {
			return
		}
	}
	if err := e.svc.LeaveChat(ctx, chatID); err != nil {
		log.Printf("leave chat group failed chat=%s: %v", chatID, err)
	}
}

// noteStale records an event or watermark referencing a message outside the
// loaded window. Never surfaced to the user.
func (e *Engine) noteStale(kind, ref string) {
	observability.IncStaleReference(kind)
	log.Printf("stale reference kind=%s ref=%s", kind, ref)
}
