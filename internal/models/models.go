package models

import "time"

// Role distinguishes regular viewers from business accounts that may upload
// videos and tag products.
type Role string

const (
	RoleUser     Role = "user"
	RoleBusiness Role = "business"
)

// User is the profile record shown throughout the app. It is distinct from the
// authentication identity; the backend provisions one profile row per identity.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	Avatar      string    `json:"avatar"`
	Bio         string    `json:"bio"`
	Role        Role      `json:"role"`
	Verified    bool      `json:"verified"`
	Category    string    `json:"category,omitempty"`
	Location    string    `json:"location,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// AuthorSnapshot is the denormalized subset of a User embedded into videos,
// comments and notifications at write time.
type AuthorSnapshot struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	Verified bool   `json:"verified"`
	Role     Role   `json:"role"`
}

// Snapshot reduces a full profile to the fields denormalized onto content.
func (u User) Snapshot() AuthorSnapshot {
	return AuthorSnapshot{
		ID:       u.ID,
		Username: u.Username,
		Avatar:   u.Avatar,
		Verified: u.Verified,
		Role:     u.Role,
	}
}

// Product is an item a business tags on a video.
type Product struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price string `json:"price"`
	URL   string `json:"url"`
}

// Video is one catalog entry. Hashtags keep insertion order, comments keep
// creation order, and Likes never goes negative.
type Video struct {
	ID           string         `json:"id"`
	Author       AuthorSnapshot `json:"author"`
	VideoURL     string         `json:"videoUrl"`
	ThumbnailURL string         `json:"thumbnailUrl"`
	Caption      string         `json:"caption"`
	Hashtags     []string       `json:"hashtags"`
	Likes        int            `json:"likes"`
	Comments     []Comment      `json:"comments"`
	Products     []Product      `json:"products,omitempty"`
	MimeType     string         `json:"mimeType,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// Comment is an append-only reply on a video.
type Comment struct {
	ID        string         `json:"id"`
	VideoID   string         `json:"videoId"`
	Author    AuthorSnapshot `json:"author"`
	Text      string         `json:"text"`
	Likes     int            `json:"likes"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Message is a single chat entry. Read reports whether the recipient has seen it.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	SenderID  string    `json:"senderId"`
	Text      string    `json:"text"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// Chat is a two-party message thread. LastMessage always mirrors the
// maximum-timestamp element of Messages; UnreadCount counts inbound unread
// messages for the current user.
type Chat struct {
	ID           string           `json:"id"`
	Participants []AuthorSnapshot `json:"participants"`
	Messages     []Message        `json:"messages"`
	LastMessage  *Message         `json:"lastMessage,omitempty"`
	UnreadCount  int              `json:"unreadCount"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// NotificationType enumerates the events surfaced in the notification feed.
type NotificationType string

const (
	NotificationNewFollower NotificationType = "new_follower"
	NotificationVideoLike   NotificationType = "video_like"
	NotificationNewComment  NotificationType = "new_comment"
	NotificationNewMessage  NotificationType = "new_message"
)

// EntityRef points a notification at the record it concerns.
type EntityRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Notification is one entry of a user's notification feed.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Type      NotificationType `json:"type"`
	Content   string           `json:"content"`
	Related   *EntityRef       `json:"related,omitempty"`
	Origin    *AuthorSnapshot  `json:"origin,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
}

// FollowEdge is a directed follower -> following relation. Existence is binary;
// the pair is the identity.
type FollowEdge struct {
	FollowerID  string
	FollowingID string
	CreatedAt   time.Time
}

// ProfilePatch carries the profile columns an update may change. Nil fields
// are left untouched.
type ProfilePatch struct {
	DisplayName *string
	Bio         *string
	Avatar      *string
}

// AuthSession is the opaque token issued on sign-in and kept client-side so a
// later process start can restore the signed-in user.
type AuthSession struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}
