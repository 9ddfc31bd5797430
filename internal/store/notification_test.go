package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lookym/datasync/internal/models"
)

func testNotification(id, userID string, read bool) models.Notification {
	return models.Notification{
		ID:        id,
		UserID:    userID,
		Type:      models.NotificationNewFollower,
		Content:   "someone started following you",
		Read:      read,
		CreatedAt: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestNotificationsFetch(t *testing.T) {
	ctx := context.Background()
	user := testUser("user-1", models.RoleUser)
	session, kv := signedInSession(t, user)
	gateway := &fakeNotifications{list: []models.Notification{
		testNotification("n1", user.ID, false),
		testNotification("n2", user.ID, true),
		testNotification("n3", "someone-else", false),
	}}
	notifs := NewNotifications(gateway, session, kv, discardLogger())

	if err := notifs.Fetch(ctx); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	state := notifs.Snapshot()
	if len(state.Notifications) != 2 {
		t.Fatalf("expected only own notifications, got %+v", state.Notifications)
	}
	if state.UnreadCount != 1 {
		t.Fatalf("expected 1 unread, got %d", state.UnreadCount)
	}
}

func TestNotificationsMarkRead(t *testing.T) {
	ctx := context.Background()
	user := testUser("user-1", models.RoleUser)
	session, kv := signedInSession(t, user)
	gateway := &fakeNotifications{list: []models.Notification{
		testNotification("n1", user.ID, false),
		testNotification("n2", user.ID, false),
	}}
	notifs := NewNotifications(gateway, session, kv, discardLogger())
	if err := notifs.Fetch(ctx); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if err := notifs.MarkRead(ctx, "n1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	state := notifs.Snapshot()
	if state.UnreadCount != 1 {
		t.Fatalf("expected 1 unread after mark, got %d", state.UnreadCount)
	}
	if !gateway.list[0].Read {
		t.Fatalf("expected remote row flipped")
	}

	// Marking the same entry again must not drive the count negative.
	if err := notifs.MarkRead(ctx, "n1"); err != nil {
		t.Fatalf("repeat mark read: %v", err)
	}
	if got := notifs.Snapshot().UnreadCount; got != 1 {
		t.Fatalf("expected count recomputed to 1, got %d", got)
	}
}

func TestNotificationsMarkReadWriteThrough(t *testing.T) {
	ctx := context.Background()
	user := testUser("user-1", models.RoleUser)
	session, kv := signedInSession(t, user)
	gateway := &fakeNotifications{list: []models.Notification{testNotification("n1", user.ID, false)}}
	notifs := NewNotifications(gateway, session, kv, discardLogger())
	if err := notifs.Fetch(ctx); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	gateway.markErr = errors.New("backend down")
	if err := notifs.MarkRead(ctx, "n1"); !errors.Is(err, ErrRemoteWrite) {
		t.Fatalf("expected ErrRemoteWrite, got %v", err)
	}
	if got := notifs.Snapshot().UnreadCount; got != 1 {
		t.Fatalf("failed remote write must not flip local state, got %d unread", got)
	}
}

func TestNotificationsMarkAllRead(t *testing.T) {
	ctx := context.Background()
	user := testUser("user-1", models.RoleUser)
	session, kv := signedInSession(t, user)
	gateway := &fakeNotifications{list: []models.Notification{
		testNotification("n1", user.ID, false),
		testNotification("n2", user.ID, false),
		testNotification("n3", user.ID, true),
	}}
	notifs := NewNotifications(gateway, session, kv, discardLogger())
	if err := notifs.Fetch(ctx); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if err := notifs.MarkAllRead(ctx); err != nil {
		t.Fatalf("mark all read: %v", err)
	}

	state := notifs.Snapshot()
	if state.UnreadCount != 0 {
		t.Fatalf("expected 0 unread, got %d", state.UnreadCount)
	}
	for _, n := range state.Notifications {
		if !n.Read {
			t.Fatalf("expected every entry read, got %+v", n)
		}
	}
}

func TestNotificationsHydrateRecomputesUnread(t *testing.T) {
	ctx := context.Background()
	user := testUser("user-1", models.RoleUser)
	session, kv := signedInSession(t, user)
	gateway := &fakeNotifications{list: []models.Notification{
		testNotification("n1", user.ID, false),
		testNotification("n2", user.ID, true),
	}}
	first := NewNotifications(gateway, session, kv, discardLogger())
	if err := first.Fetch(ctx); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	second := NewNotifications(gateway, session, kv, discardLogger())
	if err := second.Hydrate(ctx); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	state := second.Snapshot()
	if len(state.Notifications) != 2 || state.UnreadCount != 1 {
		t.Fatalf("expected restored feed with recomputed unread, got %+v", state)
	}
}

func TestNotificationsRequireAuth(t *testing.T) {
	session, kv := anonymousSession(t)
	notifs := NewNotifications(&fakeNotifications{}, session, kv, discardLogger())

	if err := notifs.Fetch(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if err := notifs.MarkAllRead(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated from mark all, got %v", err)
	}
}
