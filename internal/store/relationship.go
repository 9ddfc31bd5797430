package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lookym/datasync/internal/models"
)

// RelationshipState mirrors the follow edges touching the current user.
// Following is a set keyed by user id for O(1) IsFollowing lookups; it may be
// stale relative to the remote edge table until the next refresh.
type RelationshipState struct {
	FollowerIDs  []string
	FollowingIDs []string
	Loading      bool
	Err          error
}

// Relationship owns the social graph edges for the current user and arbitrary
// queried users. Not persisted locally; the edge table is cheap to refresh.
type Relationship struct {
	follows       FollowGateway
	users         UserGateway
	notifications NotificationGateway
	session       *Session
	logger        *slog.Logger
	now           func() time.Time
	newID         func() string

	mu        sync.RWMutex
	state     RelationshipState
	following map[string]bool
}

// NewRelationship constructs the relationship store. The notification gateway
// may be nil; follow notifications are then skipped.
func NewRelationship(follows FollowGateway, users UserGateway, notifications NotificationGateway, session *Session, logger *slog.Logger) *Relationship {
	if follows == nil || users == nil || session == nil {
		panic("store: relationship store requires follows, users and session")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relationship{
		follows:       follows,
		users:         users,
		notifications: notifications,
		session:       session,
		logger:        logger,
		now:           time.Now,
		newID:         uuid.NewString,
		following:     map[string]bool{},
	}
}

// Snapshot returns a copy of the current relationship state.
func (r *Relationship) Snapshot() RelationshipState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RelationshipState{
		FollowerIDs:  append([]string(nil), r.state.FollowerIDs...),
		FollowingIDs: append([]string(nil), r.state.FollowingIDs...),
		Loading:      r.state.Loading,
		Err:          r.state.Err,
	}
}

// IsFollowing is a pure local lookup against the cached following set.
func (r *Relationship) IsFollowing(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.following[userID]
}

// FollowUser creates a follow edge. Self-follows are rejected; a repeated
// follow is a no-op checked against the local cache before any remote write.
// A notification for the followed user is attempted best-effort, and both
// edge lists are fully refreshed afterwards rather than patched
// incrementally.
func (r *Relationship) FollowUser(ctx context.Context, userID string) error {
	user := r.session.CurrentUser()
	if user == nil {
		r.setErr(ErrNotAuthenticated)
		return ErrNotAuthenticated
	}
	if userID == user.ID {
		r.setErr(ErrSelfFollow)
		return ErrSelfFollow
	}
	if r.IsFollowing(userID) {
		return nil
	}

	r.setLoading(true)
	defer r.setLoading(false)

	if err := r.follows.InsertFollow(ctx, user.ID, userID); err != nil {
		wrapped := fmt.Errorf("%w: insert follow: %v", ErrRemoteWrite, err)
		r.setErr(wrapped)
		return wrapped
	}

	if r.notifications != nil {
		origin := user.Snapshot()
		n := models.Notification{
			ID:        r.newID(),
			UserID:    userID,
			Type:      models.NotificationNewFollower,
			Content:   fmt.Sprintf("%s started following you", user.Username),
			Related:   &models.EntityRef{ID: user.ID, Type: "user"},
			Origin:    &origin,
			CreatedAt: r.now().UTC(),
		}
		if err := r.notifications.InsertNotification(ctx, n); err != nil {
			r.logger.Warn("follow notification failed", "targetId", userID, "error", err)
		}
	}

	return r.Refresh(ctx)
}

// UnfollowUser removes the edge and refreshes both lists.
func (r *Relationship) UnfollowUser(ctx context.Context, userID string) error {
	user := r.session.CurrentUser()
	if user == nil {
		r.setErr(ErrNotAuthenticated)
		return ErrNotAuthenticated
	}

	r.setLoading(true)
	defer r.setLoading(false)

	if err := r.follows.DeleteFollow(ctx, user.ID, userID); err != nil {
		wrapped := fmt.Errorf("%w: delete follow: %v", ErrRemoteWrite, err)
		r.setErr(wrapped)
		return wrapped
	}

	return r.Refresh(ctx)
}

// Refresh replaces the cached follower/following lists for the current user.
func (r *Relationship) Refresh(ctx context.Context) error {
	user := r.session.CurrentUser()
	if user == nil {
		return ErrNotAuthenticated
	}

	followers, err := r.follows.ListFollowerIDs(ctx, user.ID)
	if err != nil {
		wrapped := fmt.Errorf("%w: list followers: %v", ErrRemoteRead, err)
		r.setErr(wrapped)
		return wrapped
	}
	following, err := r.follows.ListFollowingIDs(ctx, user.ID)
	if err != nil {
		wrapped := fmt.Errorf("%w: list following: %v", ErrRemoteRead, err)
		r.setErr(wrapped)
		return wrapped
	}

	set := make(map[string]bool, len(following))
	for _, id := range following {
		set[id] = true
	}

	r.mu.Lock()
	r.state.FollowerIDs = followers
	r.state.FollowingIDs = following
	r.state.Err = nil
	r.following = set
	r.mu.Unlock()
	return nil
}

// FetchFollowersOfUser resolves the follower profiles of any user: edge ids
// first, then one batch user lookup. No edges yields an empty list, not an
// error.
func (r *Relationship) FetchFollowersOfUser(ctx context.Context, userID string) ([]models.User, error) {
	ids, err := r.follows.ListFollowerIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list followers of %s: %v", ErrRemoteRead, userID, err)
	}
	return r.resolveUsers(ctx, ids)
}

// FetchFollowingOfUser resolves who any user follows.
func (r *Relationship) FetchFollowingOfUser(ctx context.Context, userID string) ([]models.User, error) {
	ids, err := r.follows.ListFollowingIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list following of %s: %v", ErrRemoteRead, userID, err)
	}
	return r.resolveUsers(ctx, ids)
}

func (r *Relationship) resolveUsers(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	users, err := r.users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: batch user lookup: %v", ErrRemoteRead, err)
	}
	return users, nil
}

func (r *Relationship) setLoading(loading bool) {
	r.mu.Lock()
	r.state.Loading = loading
	if loading {
		r.state.Err = nil
	}
	r.mu.Unlock()
}

func (r *Relationship) setErr(err error) {
	r.mu.Lock()
	r.state.Err = err
	r.state.Loading = false
	r.mu.Unlock()
}
