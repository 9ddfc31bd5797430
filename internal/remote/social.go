package remote

import (
	"context"
	"fmt"

	"github.com/lookym/datasync/internal/models"
)

// InsertFollow records a directed follower edge.
func (g *Gateway) InsertFollow(ctx context.Context, followerID, followingID string) error {
	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO followers (follower_id, following_id, created_at)
        VALUES ($1, $2, $3)
    `, followerID, followingID, nowUTC())
	if err != nil {
		return fmt.Errorf("insert follow: %w", mapWriteError(err))
	}
	return nil
}

// DeleteFollow removes the edge. Removing a missing edge is ErrNotFound.
func (g *Gateway) DeleteFollow(ctx context.Context, followerID, followingID string) error {
	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM followers WHERE follower_id = $1 AND following_id = $2
    `, followerID, followingID)
	if err != nil {
		return fmt.Errorf("delete follow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListFollowerIDs returns who follows the user.
func (g *Gateway) ListFollowerIDs(ctx context.Context, userID string) ([]string, error) {
	return g.listEdgeIDs(ctx, `SELECT follower_id FROM followers WHERE following_id = $1`, userID)
}

// ListFollowingIDs returns who the user follows.
func (g *Gateway) ListFollowingIDs(ctx context.Context, userID string) ([]string, error) {
	return g.listEdgeIDs(ctx, `SELECT following_id FROM followers WHERE follower_id = $1`, userID)
}

// InsertNotification appends one feed entry for its target user.
func (g *Gateway) InsertNotification(ctx context.Context, n models.Notification) error {
	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var relatedID, relatedType, originID *string
	if n.Related != nil {
		relatedID, relatedType = &n.Related.ID, &n.Related.Type
	}
	if n.Origin != nil {
		originID = &n.Origin.ID
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO notifications (id, user_id, type, content, related_id, related_type, origin_user_id, read, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, n.ID, n.UserID, string(n.Type), n.Content, relatedID, relatedType, originID, n.Read, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", mapWriteError(err))
	}
	return nil
}

// ListNotifications returns the user's feed, newest first, with the origin
// user snapshot joined in.
func (g *Gateway) ListNotifications(ctx context.Context, userID string) ([]models.Notification, error) {
	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+notificationColumns+`
        FROM notifications n
        LEFT JOIN users u ON u.id = n.origin_user_id
        WHERE n.user_id = $1
        ORDER BY n.created_at DESC, n.id
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var list []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		list = append(list, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return list, nil
}

// MarkNotificationRead flips one entry.
func (g *Gateway) MarkNotificationRead(ctx context.Context, id string) error {
	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllNotificationsRead flips every unread entry for the user.
func (g *Gateway) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE user_id = $1 AND read = FALSE`, userID); err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}
