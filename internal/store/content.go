package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lookym/datasync/internal/kvstore"
	"github.com/lookym/datasync/internal/models"
	"github.com/lookym/datasync/internal/remote"
)

// contentSnapshotKey holds only the engagement flags. The catalog itself is
// never persisted; flags must survive a catalog refresh.
const contentSnapshotKey = "video-store"

// ContentState is the observable state of the video catalog and the current
// user's engagement flags. Absence from a flag map means false.
type ContentState struct {
	Videos      []models.Video
	LikedVideos map[string]bool
	SavedVideos map[string]bool
	Loading     bool
	Err         error
}

type persistedContent struct {
	LikedVideos map[string]bool `json:"likedVideos"`
	SavedVideos map[string]bool `json:"savedVideos"`
}

// Content owns the video catalog, per-video engagement state, comment
// submission and the upload pipeline.
type Content struct {
	videos  VideoGateway
	media   MediaGateway
	session *Session
	kv      kvstore.Store
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string

	mu    sync.RWMutex
	state ContentState
}

// NewContent constructs the content store. The media gateway may be nil when
// uploads are not configured; UploadVideo then fails with ErrUpload.
func NewContent(videos VideoGateway, media MediaGateway, session *Session, kv kvstore.Store, logger *slog.Logger) *Content {
	if videos == nil || session == nil || kv == nil {
		panic("store: content store requires videos, session and kv")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Content{
		videos:  videos,
		media:   media,
		session: session,
		kv:      kv,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
		state: ContentState{
			LikedVideos: map[string]bool{},
			SavedVideos: map[string]bool{},
		},
	}
}

// Snapshot returns a copy of the current content state.
func (c *Content) Snapshot() ContentState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ContentState{
		Videos:      append([]models.Video(nil), c.state.Videos...),
		LikedVideos: copyFlags(c.state.LikedVideos),
		SavedVideos: copyFlags(c.state.SavedVideos),
		Loading:     c.state.Loading,
		Err:         c.state.Err,
	}
}

// Hydrate loads the persisted engagement flags. A missing snapshot (first
// run) is not an error.
func (c *Content) Hydrate(ctx context.Context) error {
	raw, err := c.kv.Get(ctx, contentSnapshotKey)
	if err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return nil
		}
		return fmt.Errorf("read content snapshot: %w", err)
	}

	var snap persistedContent
	if err := json.Unmarshal(raw, &snap); err != nil {
		c.logger.Warn("discarding unreadable content snapshot", "error", err)
		return nil
	}

	c.mu.Lock()
	if snap.LikedVideos != nil {
		c.state.LikedVideos = snap.LikedVideos
	}
	if snap.SavedVideos != nil {
		c.state.SavedVideos = snap.SavedVideos
	}
	c.mu.Unlock()
	return nil
}

// RefreshEngagement reconciles the local flags with the remote edge tables.
// Called after login so flags persisted on another device appear here.
func (c *Content) RefreshEngagement(ctx context.Context) error {
	user := c.session.CurrentUser()
	if user == nil {
		return ErrNotAuthenticated
	}

	liked, err := c.videos.ListLikedVideoIDs(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("%w: list liked videos: %v", ErrRemoteRead, err)
	}
	saved, err := c.videos.ListSavedVideoIDs(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("%w: list saved videos: %v", ErrRemoteRead, err)
	}

	likedSet := make(map[string]bool, len(liked))
	for _, id := range liked {
		likedSet[id] = true
	}
	savedSet := make(map[string]bool, len(saved))
	for _, id := range saved {
		savedSet[id] = true
	}

	c.mu.Lock()
	c.state.LikedVideos = likedSet
	c.state.SavedVideos = savedSet
	c.mu.Unlock()

	c.persist(ctx)
	return nil
}

// FetchVideos loads one catalog page. Page 1 replaces the catalog; later
// pages append without de-duplication, so callers must not request
// overlapping pages.
func (c *Content) FetchVideos(ctx context.Context, page, limit int) error {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}

	c.setLoading(true)
	defer c.setLoading(false)

	list, err := c.videos.ListVideos(ctx, (page-1)*limit, limit)
	if err != nil {
		wrapped := fmt.Errorf("%w: list videos: %v", ErrRemoteRead, err)
		c.setErr(wrapped)
		return wrapped
	}

	c.mu.Lock()
	if page == 1 {
		c.state.Videos = list
	} else {
		c.state.Videos = append(append([]models.Video(nil), c.state.Videos...), list...)
	}
	c.mu.Unlock()
	return nil
}

// FetchVideosByUser returns one user's uploads without touching the catalog.
func (c *Content) FetchVideosByUser(ctx context.Context, userID string) ([]models.Video, error) {
	list, err := c.videos.ListVideosByUser(ctx, userID)
	if err != nil {
		wrapped := fmt.Errorf("%w: list videos by user: %v", ErrRemoteRead, err)
		c.setErr(wrapped)
		return nil, wrapped
	}
	return list, nil
}

// FetchVideoByID loads a single video and merges it into the catalog,
// replacing a stale copy when one is present.
func (c *Content) FetchVideoByID(ctx context.Context, id string) (models.Video, error) {
	video, err := c.videos.GetVideo(ctx, id)
	if err != nil {
		wrapped := fmt.Errorf("%w: get video %s: %v", ErrRemoteRead, id, err)
		c.setErr(wrapped)
		return models.Video{}, wrapped
	}

	c.mu.Lock()
	videos := append([]models.Video(nil), c.state.Videos...)
	replaced := false
	for i := range videos {
		if videos[i].ID == video.ID {
			videos[i] = video
			replaced = true
			break
		}
	}
	if !replaced {
		videos = append(videos, video)
	}
	c.state.Videos = videos
	c.mu.Unlock()

	return video, nil
}

// LikeVideo is write-through: both remote writes (atomic counter RPC and edge
// insert) complete before local state changes, so a retried tap cannot
// double-increment. The returned counter value is authoritative.
func (c *Content) LikeVideo(ctx context.Context, id string) error {
	user := c.session.CurrentUser()
	if user == nil {
		c.setErr(ErrNotAuthenticated)
		return ErrNotAuthenticated
	}

	count, err := c.videos.IncrementVideoLikes(ctx, id)
	if err != nil {
		wrapped := fmt.Errorf("%w: increment likes: %v", ErrRemoteWrite, err)
		c.setErr(wrapped)
		return wrapped
	}

	if err := c.videos.InsertVideoLike(ctx, id, user.ID); err != nil && !errors.Is(err, remote.ErrConflict) {
		wrapped := fmt.Errorf("%w: insert like edge: %v", ErrRemoteWrite, err)
		c.setErr(wrapped)
		return wrapped
	}

	c.applyEngagement(id, count, func(flags map[string]bool) { flags[id] = true }, nil)
	c.persist(ctx)
	return nil
}

// UnlikeVideo mirrors LikeVideo; the counter never drops below zero.
func (c *Content) UnlikeVideo(ctx context.Context, id string) error {
	user := c.session.CurrentUser()
	if user == nil {
		c.setErr(ErrNotAuthenticated)
		return ErrNotAuthenticated
	}

	count, err := c.videos.DecrementVideoLikes(ctx, id)
	if err != nil {
		wrapped := fmt.Errorf("%w: decrement likes: %v", ErrRemoteWrite, err)
		c.setErr(wrapped)
		return wrapped
	}
	if count < 0 {
		count = 0
	}

	if err := c.videos.DeleteVideoLike(ctx, id, user.ID); err != nil && !errors.Is(err, remote.ErrNotFound) {
		wrapped := fmt.Errorf("%w: delete like edge: %v", ErrRemoteWrite, err)
		c.setErr(wrapped)
		return wrapped
	}

	c.applyEngagement(id, count, nil, func(flags map[string]bool) { delete(flags, id) })
	c.persist(ctx)
	return nil
}

// SaveVideo is optimistic: the local flag flips immediately and the remote
// write is fire-and-forget. The operation is idempotent and low-stakes, so a
// remote failure is logged without rolling back.
func (c *Content) SaveVideo(ctx context.Context, id string) error {
	user := c.session.CurrentUser()
	if user == nil {
		return ErrNotAuthenticated
	}

	c.mu.Lock()
	flags := copyFlags(c.state.SavedVideos)
	flags[id] = true
	c.state.SavedVideos = flags
	c.mu.Unlock()
	c.persist(ctx)

	if err := c.videos.InsertSavedVideo(ctx, id, user.ID); err != nil && !errors.Is(err, remote.ErrConflict) {
		c.logger.Warn("save video remote write failed", "videoId", id, "error", err)
	}
	return nil
}

// UnsaveVideo mirrors SaveVideo.
func (c *Content) UnsaveVideo(ctx context.Context, id string) error {
	user := c.session.CurrentUser()
	if user == nil {
		return ErrNotAuthenticated
	}

	c.mu.Lock()
	flags := copyFlags(c.state.SavedVideos)
	delete(flags, id)
	c.state.SavedVideos = flags
	c.mu.Unlock()
	c.persist(ctx)

	if err := c.videos.DeleteSavedVideo(ctx, id, user.ID); err != nil && !errors.Is(err, remote.ErrNotFound) {
		c.logger.Warn("unsave video remote write failed", "videoId", id, "error", err)
	}
	return nil
}

// AddComment inserts the comment remotely, re-reads the joined author
// snapshot and appends it to the target video preserving creation order.
func (c *Content) AddComment(ctx context.Context, videoID, text string) (models.Comment, error) {
	user := c.session.CurrentUser()
	if user == nil {
		c.setErr(ErrNotAuthenticated)
		return models.Comment{}, ErrNotAuthenticated
	}

	comment, err := c.videos.InsertComment(ctx, videoID, user.ID, text)
	if err != nil {
		wrapped := fmt.Errorf("%w: insert comment: %v", ErrRemoteWrite, err)
		c.setErr(wrapped)
		return models.Comment{}, wrapped
	}

	c.mu.Lock()
	videos := append([]models.Video(nil), c.state.Videos...)
	for i := range videos {
		if videos[i].ID == videoID {
			videos[i].Comments = append(append([]models.Comment(nil), videos[i].Comments...), comment)
			break
		}
	}
	c.state.Videos = videos
	c.mu.Unlock()

	return comment, nil
}

// UploadVideo runs the business-only upload pipeline: host the binary through
// the media gateway, persist the metadata row, then prepend the new entry to
// the catalog. When the metadata write fails after a successful upload the
// remote asset is orphaned; cleanup is out of scope here.
func (c *Content) UploadVideo(ctx context.Context, localURI, caption string, hashtags []string) (models.Video, error) {
	user := c.session.CurrentUser()
	if user == nil {
		c.setErr(ErrNotAuthenticated)
		return models.Video{}, ErrNotAuthenticated
	}
	if user.Role != models.RoleBusiness {
		c.setErr(ErrRoleNotAuthorized)
		return models.Video{}, ErrRoleNotAuthorized
	}
	if c.media == nil {
		err := fmt.Errorf("%w: media gateway not configured", ErrUpload)
		c.setErr(err)
		return models.Video{}, err
	}

	c.setLoading(true)
	defer c.setLoading(false)

	videoURL, thumbnailURL, mimeType, err := c.media.UploadVideo(ctx, localURI)
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrUpload, err)
		c.logger.Error("video upload failed", "userId", user.ID, "error", err)
		c.setErr(wrapped)
		return models.Video{}, wrapped
	}

	video := models.Video{
		ID:           c.newID(),
		Author:       user.Snapshot(),
		VideoURL:     videoURL,
		ThumbnailURL: thumbnailURL,
		Caption:      caption,
		Hashtags:     append([]string(nil), hashtags...),
		MimeType:     mimeType,
		CreatedAt:    c.now().UTC(),
	}

	if err := c.videos.InsertVideo(ctx, video); err != nil {
		wrapped := fmt.Errorf("%w: insert video metadata: %v", ErrRemoteWrite, err)
		c.logger.Error("video metadata write failed", "videoId", video.ID, "error", err)
		c.setErr(wrapped)
		return models.Video{}, wrapped
	}

	c.mu.Lock()
	c.state.Videos = append([]models.Video{video}, c.state.Videos...)
	c.mu.Unlock()

	return video, nil
}

// applyEngagement sets the authoritative like count on the catalog entry and
// adjusts the liked flags in one swap.
func (c *Content) applyEngagement(videoID string, likes int, add, remove func(map[string]bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	flags := copyFlags(c.state.LikedVideos)
	if add != nil {
		add(flags)
	}
	if remove != nil {
		remove(flags)
	}
	c.state.LikedVideos = flags

	videos := append([]models.Video(nil), c.state.Videos...)
	for i := range videos {
		if videos[i].ID == videoID {
			videos[i].Likes = likes
			break
		}
	}
	c.state.Videos = videos
	c.state.Err = nil
}

func (c *Content) setLoading(loading bool) {
	c.mu.Lock()
	c.state.Loading = loading
	if loading {
		c.state.Err = nil
	}
	c.mu.Unlock()
}

func (c *Content) setErr(err error) {
	c.mu.Lock()
	c.state.Err = err
	c.state.Loading = false
	c.mu.Unlock()
}

func (c *Content) persist(ctx context.Context) {
	c.mu.RLock()
	snap := persistedContent{
		LikedVideos: c.state.LikedVideos,
		SavedVideos: c.state.SavedVideos,
	}
	c.mu.RUnlock()

	raw, err := json.Marshal(snap)
	if err != nil {
		c.logger.Error("encode content snapshot", "error", err)
		return
	}
	if err := c.kv.Set(ctx, contentSnapshotKey, raw); err != nil {
		c.logger.Warn("persist content snapshot", "error", err)
	}
}

func copyFlags(flags map[string]bool) map[string]bool {
	out := make(map[string]bool, len(flags))
	for k, v := range flags {
		out[k] = v
	}
	return out
}
