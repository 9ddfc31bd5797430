package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lookym/datasync/internal/kvstore"
	"github.com/lookym/datasync/internal/models"
)

const notificationSnapshotKey = "notification-storage"

// NotificationState is the observable notification feed. UnreadCount is
// always recomputed from the list rather than adjusted incrementally, so it
// cannot drift.
type NotificationState struct {
	Notifications []models.Notification
	UnreadCount   int
	Loading       bool
	Err           error
}

type persistedNotifications struct {
	Notifications []models.Notification `json:"notifications"`
}

// Notifications owns the unread-notification feed.
type Notifications struct {
	gateway NotificationGateway
	session *Session
	kv      kvstore.Store
	logger  *slog.Logger

	mu    sync.RWMutex
	state NotificationState
}

// NewNotifications constructs the notification store.
func NewNotifications(gateway NotificationGateway, session *Session, kv kvstore.Store, logger *slog.Logger) *Notifications {
	if gateway == nil || session == nil || kv == nil {
		panic("store: notification store requires gateway, session and kv")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifications{gateway: gateway, session: session, kv: kv, logger: logger}
}

// Snapshot returns a copy of the current notification state.
func (n *Notifications) Snapshot() NotificationState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return NotificationState{
		Notifications: append([]models.Notification(nil), n.state.Notifications...),
		UnreadCount:   n.state.UnreadCount,
		Loading:       n.state.Loading,
		Err:           n.state.Err,
	}
}

// Hydrate loads the persisted feed. Missing snapshot means first run.
func (n *Notifications) Hydrate(ctx context.Context) error {
	raw, err := n.kv.Get(ctx, notificationSnapshotKey)
	if err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return nil
		}
		return fmt.Errorf("read notification snapshot: %w", err)
	}

	var snap persistedNotifications
	if err := json.Unmarshal(raw, &snap); err != nil {
		n.logger.Warn("discarding unreadable notification snapshot", "error", err)
		return nil
	}

	n.mu.Lock()
	n.state.Notifications = snap.Notifications
	n.state.UnreadCount = countUnread(snap.Notifications)
	n.mu.Unlock()
	return nil
}

// Fetch replaces the full feed and recomputes the unread count.
func (n *Notifications) Fetch(ctx context.Context) error {
	user := n.session.CurrentUser()
	if user == nil {
		n.setErr(ErrNotAuthenticated)
		return ErrNotAuthenticated
	}

	n.setLoading(true)
	defer n.setLoading(false)

	list, err := n.gateway.ListNotifications(ctx, user.ID)
	if err != nil {
		wrapped := fmt.Errorf("%w: list notifications: %v", ErrRemoteRead, err)
		n.setErr(wrapped)
		return wrapped
	}

	n.mu.Lock()
	n.state.Notifications = list
	n.state.UnreadCount = countUnread(list)
	n.mu.Unlock()
	n.persist(ctx)
	return nil
}

// MarkRead is write-through: the remote update is awaited before the local
// flip.
func (n *Notifications) MarkRead(ctx context.Context, id string) error {
	if err := n.gateway.MarkNotificationRead(ctx, id); err != nil {
		wrapped := fmt.Errorf("%w: mark notification read: %v", ErrRemoteWrite, err)
		n.setErr(wrapped)
		return wrapped
	}

	n.mu.Lock()
	list := append([]models.Notification(nil), n.state.Notifications...)
	for i := range list {
		if list[i].ID == id {
			list[i].Read = true
			break
		}
	}
	n.state.Notifications = list
	n.state.UnreadCount = countUnread(list)
	n.state.Err = nil
	n.mu.Unlock()
	n.persist(ctx)
	return nil
}

// MarkAllRead flips every notification, write-through.
func (n *Notifications) MarkAllRead(ctx context.Context) error {
	user := n.session.CurrentUser()
	if user == nil {
		n.setErr(ErrNotAuthenticated)
		return ErrNotAuthenticated
	}

	if err := n.gateway.MarkAllNotificationsRead(ctx, user.ID); err != nil {
		wrapped := fmt.Errorf("%w: mark all notifications read: %v", ErrRemoteWrite, err)
		n.setErr(wrapped)
		return wrapped
	}

	n.mu.Lock()
	list := append([]models.Notification(nil), n.state.Notifications...)
	for i := range list {
		list[i].Read = true
	}
	n.state.Notifications = list
	n.state.UnreadCount = countUnread(list)
	n.state.Err = nil
	n.mu.Unlock()
	n.persist(ctx)
	return nil
}

func (n *Notifications) setLoading(loading bool) {
	n.mu.Lock()
	n.state.Loading = loading
	if loading {
		n.state.Err = nil
	}
	n.mu.Unlock()
}

func (n *Notifications) setErr(err error) {
	n.mu.Lock()
	n.state.Err = err
	n.state.Loading = false
	n.mu.Unlock()
}

func (n *Notifications) persist(ctx context.Context) {
	n.mu.RLock()
	snap := persistedNotifications{Notifications: n.state.Notifications}
	n.mu.RUnlock()

	raw, err := json.Marshal(snap)
	if err != nil {
		n.logger.Error("encode notification snapshot", "error", err)
		return
	}
	if err := n.kv.Set(ctx, notificationSnapshotKey, raw); err != nil {
		n.logger.Warn("persist notification snapshot", "error", err)
	}
}

func countUnread(list []models.Notification) int {
	count := 0
	for _, item := range list {
		if !item.Read {
			count++
		}
	}
	return count
}
