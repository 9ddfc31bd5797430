package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/lookym/datasync/internal/models"
)

// Client subscribes to insert events pushed by the backend's managed pub/sub
// service over a websocket. One subscription covers one chat; callers cancel
// the context to unsubscribe on chat exit.
type Client struct {
	url     string
	dialer  *websocket.Dialer
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient constructs a realtime client for the given websocket endpoint.
// Reconnect attempts are paced so a flapping connection cannot hammer the
// backend.
func NewClient(url string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:     url,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
		logger:  logger,
	}
}

// SubscribeMessages delivers message rows inserted into the given chat. The
// returned channel closes when ctx is cancelled. Delivery order follows the
// network, not creation time; consumers merge idempotently by id.
func (c *Client) SubscribeMessages(ctx context.Context, chatID string) (<-chan models.Message, error) {
	if chatID == "" {
		return nil, fmt.Errorf("realtime: chat id is required")
	}

	out := make(chan models.Message, 16)
	go c.run(ctx, chatID, out)
	return out, nil
}

func (c *Client) run(ctx context.Context, chatID string, out chan<- models.Message) {
	defer close(out)

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return
		}

		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			c.logger.Warn("realtime dial failed", "chatId", chatID, "error", err)
			continue
		}

		if err := c.subscribe(conn, chatID); err != nil {
			c.logger.Warn("realtime subscribe failed", "chatId", chatID, "error", err)
			conn.Close()
			continue
		}

		c.read(ctx, conn, chatID, out)
		conn.Close()

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

type subscribeFrame struct {
	Type   string            `json:"type"`
	Table  string            `json:"table"`
	Event  string            `json:"event"`
	Filter map[string]string `json:"filter"`
}

func (c *Client) subscribe(conn *websocket.Conn, chatID string) error {
	return conn.WriteJSON(subscribeFrame{
		Type:   "subscribe",
		Table:  "messages",
		Event:  "INSERT",
		Filter: map[string]string{"chat_id": chatID},
	})
}

// read pumps events until the connection breaks or ctx ends. A goroutine
// watches ctx and forces the blocking ReadMessage to return.
func (c *Client) read(ctx context.Context, conn *websocket.Conn, chatID string, out chan<- models.Message) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("realtime read failed", "chatId", chatID, "error", err)
			}
			return
		}

		msg, ok, err := DecodeInsert(payload)
		if err != nil {
			c.logger.Warn("realtime payload unreadable", "chatId", chatID, "error", err)
			continue
		}
		if !ok || msg.ChatID != chatID {
			continue
		}

		select {
		case out <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// event is the wire shape of a pushed change: the inserted row rides along in
// record with snake_case columns and an epoch-millis timestamp.
type event struct {
	Type   string `json:"type"`
	Table  string `json:"table"`
	Record struct {
		ID        string `json:"id"`
		ChatID    string `json:"chat_id"`
		SenderID  string `json:"sender_id"`
		Text      string `json:"text"`
		Read      bool   `json:"read"`
		CreatedAt int64  `json:"created_at"`
	} `json:"record"`
}

// DecodeInsert parses one pushed frame. Non-insert frames (heartbeats, acks)
// report ok=false without error.
func DecodeInsert(payload []byte) (models.Message, bool, error) {
	var ev event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return models.Message{}, false, fmt.Errorf("decode realtime event: %w", err)
	}
	if ev.Type != "insert" || ev.Table != "messages" {
		return models.Message{}, false, nil
	}
	return models.Message{
		ID:        ev.Record.ID,
		ChatID:    ev.Record.ChatID,
		SenderID:  ev.Record.SenderID,
		Text:      ev.Record.Text,
		Read:      ev.Record.Read,
		CreatedAt: time.UnixMilli(ev.Record.CreatedAt).UTC(),
	}, true, nil
}
