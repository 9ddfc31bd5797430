package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lookym/datasync/internal/models"
)

func testVideo(id, authorID string, likes int) models.Video {
	return models.Video{
		ID:        id,
		Author:    models.AuthorSnapshot{ID: authorID},
		VideoURL:  "https://cdn.example.com/" + id + ".mp4",
		Likes:     likes,
		CreatedAt: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestContentFetchVideosPaging(t *testing.T) {
	ctx := context.Background()
	session, kv := signedInSession(t, testUser("user-1", models.RoleUser))
	videos := newFakeVideos(
		testVideo("v1", "biz-1", 0),
		testVideo("v2", "biz-1", 0),
		testVideo("v3", "biz-1", 0),
	)
	content := NewContent(videos, nil, session, kv, discardLogger())

	if err := content.FetchVideos(ctx, 1, 2); err != nil {
		t.Fatalf("fetch page 1: %v", err)
	}
	if got := content.Snapshot().Videos; len(got) != 2 || got[0].ID != "v1" {
		t.Fatalf("unexpected page 1 catalog: %+v", got)
	}
	if videos.lastOffset != 0 || videos.lastLimit != 2 {
		t.Fatalf("expected offset 0 limit 2, got %d/%d", videos.lastOffset, videos.lastLimit)
	}

	if err := content.FetchVideos(ctx, 2, 2); err != nil {
		t.Fatalf("fetch page 2: %v", err)
	}
	if got := content.Snapshot().Videos; len(got) != 3 || got[2].ID != "v3" {
		t.Fatalf("expected page 2 appended, got %+v", got)
	}

	// Page 1 again replaces instead of appending.
	if err := content.FetchVideos(ctx, 1, 2); err != nil {
		t.Fatalf("refetch page 1: %v", err)
	}
	if got := content.Snapshot().Videos; len(got) != 2 {
		t.Fatalf("expected page 1 to replace catalog, got %d entries", len(got))
	}

	// Out-of-range inputs are clamped to the first page and default limit.
	if err := content.FetchVideos(ctx, 0, -5); err != nil {
		t.Fatalf("fetch with bad args: %v", err)
	}
	if videos.lastOffset != 0 || videos.lastLimit != 10 {
		t.Fatalf("expected clamped offset/limit 0/10, got %d/%d", videos.lastOffset, videos.lastLimit)
	}
}

func TestContentLikeVideoWriteThrough(t *testing.T) {
	ctx := context.Background()
	user := testUser("user-1", models.RoleUser)
	session, kv := signedInSession(t, user)
	videos := newFakeVideos(testVideo("v1", "biz-1", 4))
	content := NewContent(videos, nil, session, kv, discardLogger())
	if err := content.FetchVideos(ctx, 1, 10); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if err := content.LikeVideo(ctx, "v1"); err != nil {
		t.Fatalf("like: %v", err)
	}

	state := content.Snapshot()
	if !state.LikedVideos["v1"] {
		t.Fatalf("expected liked flag set")
	}
	if state.Videos[0].Likes != 5 {
		t.Fatalf("expected authoritative count 5, got %d", state.Videos[0].Likes)
	}
	if !videos.likeEdges["v1"][user.ID] {
		t.Fatalf("expected like edge written")
	}

	// Re-liking hits the edge conflict, which is tolerated; the counter moves
	// because the RPC already ran.
	if err := content.LikeVideo(ctx, "v1"); err != nil {
		t.Fatalf("second like: %v", err)
	}
	if got := content.Snapshot().Videos[0].Likes; got != 6 {
		t.Fatalf("expected count 6 after tolerated conflict, got %d", got)
	}
}

func TestContentUnlikeVideoClampsAtZero(t *testing.T) {
	ctx := context.Background()
	user := testUser("user-1", models.RoleUser)
	session, kv := signedInSession(t, user)
	videos := newFakeVideos(testVideo("v1", "biz-1", 0))
	content := NewContent(videos, nil, session, kv, discardLogger())
	if err := content.FetchVideos(ctx, 1, 10); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	// No edge exists; the missing-edge delete is tolerated and the counter
	// stays clamped at zero.
	if err := content.UnlikeVideo(ctx, "v1"); err != nil {
		t.Fatalf("unlike: %v", err)
	}

	state := content.Snapshot()
	if state.LikedVideos["v1"] {
		t.Fatalf("expected liked flag cleared")
	}
	if state.Videos[0].Likes != 0 {
		t.Fatalf("expected count clamped at 0, got %d", state.Videos[0].Likes)
	}
}

func TestContentLikeVideoRequiresAuth(t *testing.T) {
	session, kv := anonymousSession(t)
	content := NewContent(newFakeVideos(), nil, session, kv, discardLogger())
	if err := content.LikeVideo(context.Background(), "v1"); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestContentLikeVideoCounterFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	session, kv := signedInSession(t, testUser("user-1", models.RoleUser))
	videos := newFakeVideos(testVideo("v1", "biz-1", 4))
	videos.incrementErr = errors.New("backend down")
	content := NewContent(videos, nil, session, kv, discardLogger())
	if err := content.FetchVideos(ctx, 1, 10); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	err := content.LikeVideo(ctx, "v1")
	if !errors.Is(err, ErrRemoteWrite) {
		t.Fatalf("expected ErrRemoteWrite, got %v", err)
	}
	state := content.Snapshot()
	if state.LikedVideos["v1"] || state.Videos[0].Likes != 4 {
		t.Fatalf("expected untouched state after failed counter RPC, got %+v", state)
	}
}

func TestContentSaveVideoOptimistic(t *testing.T) {
	ctx := context.Background()
	session, kv := signedInSession(t, testUser("user-1", models.RoleUser))
	videos := newFakeVideos(testVideo("v1", "biz-1", 0))
	videos.insertSaveErr = errors.New("backend down")
	content := NewContent(videos, nil, session, kv, discardLogger())

	// The local flag flips even though the remote write fails.
	if err := content.SaveVideo(ctx, "v1"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !content.Snapshot().SavedVideos["v1"] {
		t.Fatalf("expected saved flag set optimistically")
	}

	if err := content.UnsaveVideo(ctx, "v1"); err != nil {
		t.Fatalf("unsave: %v", err)
	}
	if content.Snapshot().SavedVideos["v1"] {
		t.Fatalf("expected saved flag cleared")
	}
}

func TestContentSaveVideoRequiresAuth(t *testing.T) {
	session, kv := anonymousSession(t)
	content := NewContent(newFakeVideos(), nil, session, kv, discardLogger())
	if err := content.SaveVideo(context.Background(), "v1"); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestContentHydrateRestoresFlags(t *testing.T) {
	ctx := context.Background()
	session, kv := signedInSession(t, testUser("user-1", models.RoleUser))
	videos := newFakeVideos()
	first := NewContent(videos, nil, session, kv, discardLogger())
	if err := first.SaveVideo(ctx, "v9"); err != nil {
		t.Fatalf("save: %v", err)
	}

	second := NewContent(videos, nil, session, kv, discardLogger())
	if err := second.Hydrate(ctx); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if !second.Snapshot().SavedVideos["v9"] {
		t.Fatalf("expected saved flag restored from snapshot")
	}
}

func TestContentRefreshEngagement(t *testing.T) {
	ctx := context.Background()
	user := testUser("user-1", models.RoleUser)
	session, kv := signedInSession(t, user)
	videos := newFakeVideos(testVideo("v1", "biz-1", 1))
	videos.likeEdges["v1"] = map[string]bool{user.ID: true}
	content := NewContent(videos, nil, session, kv, discardLogger())

	// Stale local flag that the remote edge table does not back.
	videos.insertSaveErr = errors.New("backend down")
	if err := content.SaveVideo(ctx, "gone"); err != nil {
		t.Fatalf("save: %v", err)
	}
	videos.insertSaveErr = nil

	if err := content.RefreshEngagement(ctx); err != nil {
		t.Fatalf("refresh engagement: %v", err)
	}

	state := content.Snapshot()
	if !state.LikedVideos["v1"] {
		t.Fatalf("expected remote like edge reflected locally")
	}
	if state.SavedVideos["gone"] {
		t.Fatalf("expected stale saved flag dropped")
	}
}

func TestContentAddCommentAppends(t *testing.T) {
	ctx := context.Background()
	session, kv := signedInSession(t, testUser("user-1", models.RoleUser))
	videos := newFakeVideos(testVideo("v1", "biz-1", 0))
	content := NewContent(videos, nil, session, kv, discardLogger())
	if err := content.FetchVideos(ctx, 1, 10); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	comment, err := content.AddComment(ctx, "v1", "nice jacket")
	if err != nil {
		t.Fatalf("add comment: %v", err)
	}
	if comment.Text != "nice jacket" {
		t.Fatalf("unexpected comment %+v", comment)
	}

	got := content.Snapshot().Videos[0].Comments
	if len(got) != 1 || got[0].ID != comment.ID {
		t.Fatalf("expected comment appended to catalog entry, got %+v", got)
	}
}

func TestContentUploadVideoRoleGate(t *testing.T) {
	ctx := context.Background()
	media := &fakeMedia{videoURL: "https://cdn/v.mp4", thumbURL: "https://cdn/v.jpg", mimeType: "video/mp4"}

	session, kv := signedInSession(t, testUser("user-1", models.RoleUser))
	content := NewContent(newFakeVideos(), media, session, kv, discardLogger())
	if _, err := content.UploadVideo(ctx, "file:///clip.mp4", "caption", nil); !errors.Is(err, ErrRoleNotAuthorized) {
		t.Fatalf("expected ErrRoleNotAuthorized for viewer account, got %v", err)
	}
	if media.calls != 0 {
		t.Fatalf("gate must run before any upload, got %d calls", media.calls)
	}

	session, kv = anonymousSession(t)
	content = NewContent(newFakeVideos(), media, session, kv, discardLogger())
	if _, err := content.UploadVideo(ctx, "file:///clip.mp4", "caption", nil); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestContentUploadVideoPrepends(t *testing.T) {
	ctx := context.Background()
	biz := testUser("biz-1", models.RoleBusiness)
	session, kv := signedInSession(t, biz)
	videos := newFakeVideos(testVideo("old", "biz-1", 0))
	media := &fakeMedia{videoURL: "https://cdn/new.mp4", thumbURL: "https://cdn/new.jpg", mimeType: "video/mp4"}
	content := NewContent(videos, media, session, kv, discardLogger())
	if err := content.FetchVideos(ctx, 1, 10); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	video, err := content.UploadVideo(ctx, "file:///clip.mp4", "fresh drop", []string{"drop"})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if video.VideoURL != media.videoURL || video.ThumbnailURL != media.thumbURL {
		t.Fatalf("expected hosted URLs on new video, got %+v", video)
	}
	if video.Author.ID != biz.ID {
		t.Fatalf("expected author snapshot of uploader, got %+v", video.Author)
	}

	got := content.Snapshot().Videos
	if len(got) != 2 || got[0].ID != video.ID {
		t.Fatalf("expected new video at index 0, got %+v", got)
	}
}

func TestContentUploadVideoMediaFailure(t *testing.T) {
	ctx := context.Background()
	session, kv := signedInSession(t, testUser("biz-1", models.RoleBusiness))
	media := &fakeMedia{err: errors.New("disk full")}
	videos := newFakeVideos()
	content := NewContent(videos, media, session, kv, discardLogger())

	_, err := content.UploadVideo(ctx, "file:///clip.mp4", "caption", nil)
	if !errors.Is(err, ErrUpload) {
		t.Fatalf("expected ErrUpload, got %v", err)
	}
	if len(videos.videos) != 0 {
		t.Fatalf("no metadata row may be written after a failed upload")
	}
}

func TestContentFetchVideoByIDMerges(t *testing.T) {
	ctx := context.Background()
	session, kv := signedInSession(t, testUser("user-1", models.RoleUser))
	videos := newFakeVideos(testVideo("v1", "biz-1", 2))
	content := NewContent(videos, nil, session, kv, discardLogger())
	if err := content.FetchVideos(ctx, 1, 10); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	videos.likeCounts["v1"] = 7
	video, err := content.FetchVideoByID(ctx, "v1")
	if err != nil {
		t.Fatalf("fetch by id: %v", err)
	}
	if video.Likes != 7 {
		t.Fatalf("expected fresh copy, got %+v", video)
	}
	if got := content.Snapshot().Videos; len(got) != 1 || got[0].Likes != 7 {
		t.Fatalf("expected catalog entry replaced, got %+v", got)
	}
}
