package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lookym/datasync/internal/kvstore"
	"github.com/lookym/datasync/internal/models"
)

const chatSnapshotKey = "chat-storage"

// ConversationState is the observable state of the chat threads.
type ConversationState struct {
	Chats   []models.Chat
	Loading bool
	Err     error
}

type persistedConversations struct {
	Chats []models.Chat `json:"chats"`
}

// Conversation owns the message threads. Chat identity is keyed by
// participant-set membership: creating a chat with a participant who already
// shares a thread appends to that thread instead of opening a duplicate.
// Group chats are out of scope; threads are two-party.
type Conversation struct {
	chats   ChatGateway
	users   UserGateway
	session *Session
	kv      kvstore.Store
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string

	mu    sync.RWMutex
	state ConversationState
}

// NewConversation constructs the conversation store.
func NewConversation(chats ChatGateway, users UserGateway, session *Session, kv kvstore.Store, logger *slog.Logger) *Conversation {
	if chats == nil || users == nil || session == nil || kv == nil {
		panic("store: conversation store requires chats, users, session and kv")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Conversation{
		chats:   chats,
		users:   users,
		session: session,
		kv:      kv,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Snapshot returns a copy of the current conversation state.
func (c *Conversation) Snapshot() ConversationState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chats := make([]models.Chat, len(c.state.Chats))
	for i, chat := range c.state.Chats {
		chats[i] = copyChat(chat)
	}
	return ConversationState{Chats: chats, Loading: c.state.Loading, Err: c.state.Err}
}

// Hydrate loads persisted threads. Missing snapshot means first run.
func (c *Conversation) Hydrate(ctx context.Context) error {
	raw, err := c.kv.Get(ctx, chatSnapshotKey)
	if err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return nil
		}
		return fmt.Errorf("read chat snapshot: %w", err)
	}

	var snap persistedConversations
	if err := json.Unmarshal(raw, &snap); err != nil {
		c.logger.Warn("discarding unreadable chat snapshot", "error", err)
		return nil
	}

	c.mu.Lock()
	c.state.Chats = snap.Chats
	c.mu.Unlock()
	return nil
}

// FetchChats replaces the thread list from the backend.
func (c *Conversation) FetchChats(ctx context.Context) error {
	user := c.session.CurrentUser()
	if user == nil {
		c.setErr(ErrNotAuthenticated)
		return ErrNotAuthenticated
	}

	c.setLoading(true)
	defer c.setLoading(false)

	chats, err := c.chats.ListChats(ctx, user.ID)
	if err != nil {
		wrapped := fmt.Errorf("%w: list chats: %v", ErrRemoteRead, err)
		c.setErr(wrapped)
		return wrapped
	}

	for i := range chats {
		normalizeChat(&chats[i], user.ID)
	}

	c.mu.Lock()
	c.state.Chats = chats
	c.mu.Unlock()
	c.persist(ctx)
	return nil
}

// FindChatByParticipant returns the existing two-party thread with the given
// user, if any. Pure local search.
func (c *Conversation) FindChatByParticipant(participantID string) (models.Chat, bool) {
	user := c.session.CurrentUser()
	if user == nil {
		return models.Chat{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, chat := range c.state.Chats {
		if chatHasParticipants(chat, user.ID, participantID) {
			return copyChat(chat), true
		}
	}
	return models.Chat{}, false
}

// CreateChat is search-or-create: when a thread with that participant already
// exists the initial message is appended to it, so two calls with the same
// participant never produce two threads.
func (c *Conversation) CreateChat(ctx context.Context, participantID, initialMessage string) (models.Chat, error) {
	user := c.session.CurrentUser()
	if user == nil {
		c.setErr(ErrNotAuthenticated)
		return models.Chat{}, ErrNotAuthenticated
	}

	if existing, ok := c.FindChatByParticipant(participantID); ok {
		if _, err := c.SendMessage(ctx, existing.ID, initialMessage); err != nil {
			return models.Chat{}, err
		}
		updated, _ := c.FindChatByParticipant(participantID)
		return updated, nil
	}

	participant, err := c.users.GetUser(ctx, participantID)
	if err != nil {
		wrapped := fmt.Errorf("%w: fetch chat participant: %v", ErrRemoteRead, err)
		c.setErr(wrapped)
		return models.Chat{}, wrapped
	}

	now := c.now().UTC()
	first := models.Message{
		ID:        c.newID(),
		SenderID:  user.ID,
		Text:      initialMessage,
		CreatedAt: now,
	}
	chat := models.Chat{
		ID:           c.newID(),
		Participants: []models.AuthorSnapshot{user.Snapshot(), participant.Snapshot()},
		Messages:     []models.Message{first},
		CreatedAt:    now,
	}
	chat.Messages[0].ChatID = chat.ID

	if err := c.chats.InsertChat(ctx, chat); err != nil {
		wrapped := fmt.Errorf("%w: insert chat: %v", ErrRemoteWrite, err)
		c.setErr(wrapped)
		return models.Chat{}, wrapped
	}

	normalizeChat(&chat, user.ID)

	c.mu.Lock()
	c.state.Chats = append([]models.Chat{chat}, c.state.Chats...)
	c.mu.Unlock()
	c.persist(ctx)
	return copyChat(chat), nil
}

// SendMessage appends a message to the thread. After the mutation the
// thread's lastMessage is the maximum-timestamp element and the sender's
// unread count is reset to zero.
func (c *Conversation) SendMessage(ctx context.Context, chatID, text string) (models.Message, error) {
	user := c.session.CurrentUser()
	if user == nil {
		c.setErr(ErrNotAuthenticated)
		return models.Message{}, ErrNotAuthenticated
	}

	msg := models.Message{
		ID:        c.newID(),
		ChatID:    chatID,
		SenderID:  user.ID,
		Text:      text,
		CreatedAt: c.now().UTC(),
	}

	stored, err := c.chats.InsertMessage(ctx, msg)
	if err != nil {
		wrapped := fmt.Errorf("%w: insert message: %v", ErrRemoteWrite, err)
		c.setErr(wrapped)
		return models.Message{}, wrapped
	}

	c.applyMessage(chatID, stored, user.ID)
	c.persist(ctx)
	return stored, nil
}

// ApplyIncoming reconciles a message delivered by the realtime subscription.
// The merge is idempotent per message id and the thread is re-sorted by
// timestamp, since network delivery order need not match creation order.
func (c *Conversation) ApplyIncoming(chatID string, msg models.Message) {
	currentID := ""
	if user := c.session.CurrentUser(); user != nil {
		currentID = user.ID
	}
	c.applyMessage(chatID, msg, currentID)
	c.persist(context.Background())
}

// MarkMessagesRead flips read on the current user's inbound unread messages
// in the thread: all of them, or only the given subset of ids.
func (c *Conversation) MarkMessagesRead(ctx context.Context, chatID string, ids ...string) error {
	user := c.session.CurrentUser()
	if user == nil {
		c.setErr(ErrNotAuthenticated)
		return ErrNotAuthenticated
	}

	if err := c.chats.MarkMessagesRead(ctx, chatID, user.ID, ids...); err != nil {
		wrapped := fmt.Errorf("%w: mark messages read: %v", ErrRemoteWrite, err)
		c.setErr(wrapped)
		return wrapped
	}

	subset := make(map[string]bool, len(ids))
	for _, id := range ids {
		subset[id] = true
	}

	c.mu.Lock()
	chats := make([]models.Chat, len(c.state.Chats))
	copy(chats, c.state.Chats)
	for i := range chats {
		if chats[i].ID != chatID {
			continue
		}
		chat := copyChat(chats[i])
		for j := range chat.Messages {
			m := &chat.Messages[j]
			if m.SenderID == user.ID || m.Read {
				continue
			}
			if len(subset) > 0 && !subset[m.ID] {
				continue
			}
			m.Read = true
		}
		normalizeChat(&chat, user.ID)
		chats[i] = chat
		break
	}
	c.state.Chats = chats
	c.mu.Unlock()
	c.persist(ctx)
	return nil
}

func (c *Conversation) applyMessage(chatID string, msg models.Message, currentUserID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	chats := make([]models.Chat, len(c.state.Chats))
	copy(chats, c.state.Chats)
	for i := range chats {
		if chats[i].ID != chatID {
			continue
		}
		chat := copyChat(chats[i])
		chat.Messages, _ = MergeMessage(chat.Messages, msg)
		if currentUserID != "" && msg.SenderID == currentUserID {
			// Sending acknowledges everything received so far. The reset
			// lives in the read flags, so it survives later recounts and
			// the persisted snapshot.
			for j := range chat.Messages {
				if chat.Messages[j].SenderID != currentUserID {
					chat.Messages[j].Read = true
				}
			}
		}
		normalizeChat(&chat, currentUserID)
		chats[i] = chat
		break
	}
	c.state.Chats = chats
	c.state.Err = nil
}

func (c *Conversation) setLoading(loading bool) {
	c.mu.Lock()
	c.state.Loading = loading
	if loading {
		c.state.Err = nil
	}
	c.mu.Unlock()
}

func (c *Conversation) setErr(err error) {
	c.mu.Lock()
	c.state.Err = err
	c.state.Loading = false
	c.mu.Unlock()
}

func (c *Conversation) persist(ctx context.Context) {
	c.mu.RLock()
	snap := persistedConversations{Chats: c.state.Chats}
	c.mu.RUnlock()

	raw, err := json.Marshal(snap)
	if err != nil {
		c.logger.Error("encode chat snapshot", "error", err)
		return
	}
	if err := c.kv.Set(ctx, chatSnapshotKey, raw); err != nil {
		c.logger.Warn("persist chat snapshot", "error", err)
	}
}

// MergeMessage inserts incoming into messages keeping at most one copy per
// message id, and returns the list sorted by timestamp (id as tiebreaker).
// The second return reports whether the message was actually added. The input
// slice is never mutated, so the function is safe for copy-on-write callers
// and testable without a live subscription.
func MergeMessage(messages []models.Message, incoming models.Message) ([]models.Message, bool) {
	for _, m := range messages {
		if m.ID == incoming.ID {
			out := append([]models.Message(nil), messages...)
			sortMessages(out)
			return out, false
		}
	}

	out := make([]models.Message, 0, len(messages)+1)
	out = append(out, messages...)
	out = append(out, incoming)
	sortMessages(out)
	return out, true
}

func sortMessages(messages []models.Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
}

// normalizeChat restores the thread invariants after any mutation:
// lastMessage mirrors the maximum-timestamp message and unreadCount counts
// inbound unread messages for the given user.
func normalizeChat(chat *models.Chat, currentUserID string) {
	sortMessages(chat.Messages)

	if len(chat.Messages) == 0 {
		chat.LastMessage = nil
		chat.UnreadCount = 0
		return
	}

	last := chat.Messages[len(chat.Messages)-1]
	chat.LastMessage = &last

	unread := 0
	for _, m := range chat.Messages {
		if !m.Read && m.SenderID != currentUserID && currentUserID != "" {
			unread++
		}
	}
	chat.UnreadCount = unread
}

func chatHasParticipants(chat models.Chat, a, b string) bool {
	hasA, hasB := false, false
	for _, p := range chat.Participants {
		if p.ID == a {
			hasA = true
		}
		if p.ID == b {
			hasB = true
		}
	}
	return hasA && hasB && len(chat.Participants) == 2
}

func copyChat(chat models.Chat) models.Chat {
	out := chat
	out.Participants = append([]models.AuthorSnapshot(nil), chat.Participants...)
	out.Messages = append([]models.Message(nil), chat.Messages...)
	if chat.LastMessage != nil {
		last := *chat.LastMessage
		out.LastMessage = &last
	}
	return out
}
