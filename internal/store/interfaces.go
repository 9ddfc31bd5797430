package store

import (
	"context"

	"github.com/lookym/datasync/internal/models"
)

// AuthGateway exposes the backend authentication primitives. Identity and
// profile are deliberately separate; a server-side trigger provisions the
// profile row when an identity is created.
type AuthGateway interface {
	SignUp(ctx context.Context, email, password, username string, role models.Role) error
	SignInWithPassword(ctx context.Context, email, password string) (models.AuthSession, error)
	SignOut(ctx context.Context, token string) error
	SessionUser(ctx context.Context, token string) (string, error)
}

// UserGateway reads and updates profile rows.
type UserGateway interface {
	GetUser(ctx context.Context, id string) (models.User, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error)
	UpdateUserProfile(ctx context.Context, id string, patch models.ProfilePatch) (models.User, error)
}

// VideoGateway covers the video catalog, engagement edges and the atomic
// like-counter RPCs.
type VideoGateway interface {
	ListVideos(ctx context.Context, offset, limit int) ([]models.Video, error)
	ListVideosByUser(ctx context.Context, userID string) ([]models.Video, error)
	GetVideo(ctx context.Context, id string) (models.Video, error)
	InsertVideo(ctx context.Context, video models.Video) error

	IncrementVideoLikes(ctx context.Context, videoID string) (int, error)
	DecrementVideoLikes(ctx context.Context, videoID string) (int, error)

	InsertVideoLike(ctx context.Context, videoID, userID string) error
	DeleteVideoLike(ctx context.Context, videoID, userID string) error
	InsertSavedVideo(ctx context.Context, videoID, userID string) error
	DeleteSavedVideo(ctx context.Context, videoID, userID string) error
	ListLikedVideoIDs(ctx context.Context, userID string) ([]string, error)
	ListSavedVideoIDs(ctx context.Context, userID string) ([]string, error)

	InsertComment(ctx context.Context, videoID, authorID, text string) (models.Comment, error)
}

// FollowGateway manipulates the directed follower edge table.
type FollowGateway interface {
	InsertFollow(ctx context.Context, followerID, followingID string) error
	DeleteFollow(ctx context.Context, followerID, followingID string) error
	ListFollowerIDs(ctx context.Context, userID string) ([]string, error)
	ListFollowingIDs(ctx context.Context, userID string) ([]string, error)
}

// NotificationGateway reads and mutates the notification feed.
type NotificationGateway interface {
	InsertNotification(ctx context.Context, n models.Notification) error
	ListNotifications(ctx context.Context, userID string) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) error
}

// ChatGateway covers message threads. InsertChat persists the chat, its
// participant rows and the first message in one transaction.
type ChatGateway interface {
	ListChats(ctx context.Context, userID string) ([]models.Chat, error)
	InsertChat(ctx context.Context, chat models.Chat) error
	InsertMessage(ctx context.Context, msg models.Message) (models.Message, error)
	MarkMessagesRead(ctx context.Context, chatID, readerID string, ids ...string) error
}

// MediaGateway hosts video binaries and derives transformed variants. The
// returned URLs are permanent; thumbnail derivation is deterministic.
type MediaGateway interface {
	UploadVideo(ctx context.Context, localURI string) (videoURL, thumbnailURL, mimeType string, err error)
}

// AvatarStorage uploads a device-local avatar image and returns its public URL.
type AvatarStorage interface {
	UploadAvatar(ctx context.Context, userID, localURI string) (string, error)
}
