package remote

import (
	"database/sql"
	"time"

	"github.com/lookym/datasync/internal/models"
)

// The backend rows use snake_case columns while client entities use the
// shapes in internal/models. Each entity has exactly one scanner here so the
// renaming (avatar_url -> Avatar, and so on) never drifts between queries.

type rowScanner interface {
	Scan(dest ...any) error
}

const userColumns = `id, email, username, display_name, avatar_url, bio, role, verified, category, location, created_at`

func scanUser(row rowScanner) (models.User, error) {
	var (
		user               models.User
		role               string
		category, location sql.NullString
	)
	err := row.Scan(
		&user.ID, &user.Email, &user.Username, &user.DisplayName, &user.Avatar,
		&user.Bio, &role, &user.Verified, &category, &location, &user.CreatedAt,
	)
	if err != nil {
		return models.User{}, err
	}
	user.Role = models.Role(role)
	user.Category = category.String
	user.Location = location.String
	return user, nil
}

const videoColumns = `v.id, v.video_url, v.thumbnail_url, v.caption, v.hashtags, v.likes, v.mime_type, v.created_at,
        u.id, u.username, u.avatar_url, u.verified, u.role`

func scanVideo(row rowScanner) (models.Video, error) {
	var (
		video    models.Video
		mimeType sql.NullString
		role     string
	)
	err := row.Scan(
		&video.ID, &video.VideoURL, &video.ThumbnailURL, &video.Caption, &video.Hashtags,
		&video.Likes, &mimeType, &video.CreatedAt,
		&video.Author.ID, &video.Author.Username, &video.Author.Avatar, &video.Author.Verified, &role,
	)
	if err != nil {
		return models.Video{}, err
	}
	video.MimeType = mimeType.String
	video.Author.Role = models.Role(role)
	return video, nil
}

const commentColumns = `c.id, c.video_id, c.text, c.likes, c.created_at,
        u.id, u.username, u.avatar_url, u.verified, u.role`

func scanComment(row rowScanner) (models.Comment, error) {
	var (
		comment models.Comment
		role    string
	)
	err := row.Scan(
		&comment.ID, &comment.VideoID, &comment.Text, &comment.Likes, &comment.CreatedAt,
		&comment.Author.ID, &comment.Author.Username, &comment.Author.Avatar, &comment.Author.Verified, &role,
	)
	if err != nil {
		return models.Comment{}, err
	}
	comment.Author.Role = models.Role(role)
	return comment, nil
}

const messageColumns = `id, chat_id, sender_id, text, read, created_at`

func scanMessage(row rowScanner) (models.Message, error) {
	var msg models.Message
	err := row.Scan(&msg.ID, &msg.ChatID, &msg.SenderID, &msg.Text, &msg.Read, &msg.CreatedAt)
	if err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

const notificationColumns = `n.id, n.user_id, n.type, n.content, n.related_id, n.related_type, n.read, n.created_at,
        u.id, u.username, u.avatar_url, u.verified, u.role`

func scanNotification(row rowScanner) (models.Notification, error) {
	var (
		n                      models.Notification
		notifType              string
		relatedID, relatedType sql.NullString
		originID, originName   sql.NullString
		originAvatar           sql.NullString
		originVerified         sql.NullBool
		originRole             sql.NullString
	)
	err := row.Scan(
		&n.ID, &n.UserID, &notifType, &n.Content, &relatedID, &relatedType, &n.Read, &n.CreatedAt,
		&originID, &originName, &originAvatar, &originVerified, &originRole,
	)
	if err != nil {
		return models.Notification{}, err
	}
	n.Type = models.NotificationType(notifType)
	if relatedID.Valid {
		n.Related = &models.EntityRef{ID: relatedID.String, Type: relatedType.String}
	}
	if originID.Valid {
		n.Origin = &models.AuthorSnapshot{
			ID:       originID.String,
			Username: originName.String,
			Avatar:   originAvatar.String,
			Verified: originVerified.Bool,
			Role:     models.Role(originRole.String),
		}
	}
	return n, nil
}

// nowUTC truncates to microseconds so round-trips through timestamp columns
// compare equal.
func nowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
