package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/lookym/datasync/internal/kvstore"
	"github.com/lookym/datasync/internal/models"
	"github.com/lookym/datasync/internal/remote"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAuth struct {
	session       models.AuthSession
	signInErr     error
	signUpErr     error
	signOutErr    error
	sessionErr    error
	signOutCalls  int
	signUpCalls   int
	lastSignUp    string
	validSessions map[string]string
}

func (f *fakeAuth) SignUp(_ context.Context, email, _, _ string, _ models.Role) error {
	f.signUpCalls++
	f.lastSignUp = email
	return f.signUpErr
}

func (f *fakeAuth) SignInWithPassword(context.Context, string, string) (models.AuthSession, error) {
	if f.signInErr != nil {
		return models.AuthSession{}, f.signInErr
	}
	return f.session, nil
}

func (f *fakeAuth) SignOut(context.Context, string) error {
	f.signOutCalls++
	return f.signOutErr
}

func (f *fakeAuth) SessionUser(_ context.Context, token string) (string, error) {
	if f.sessionErr != nil {
		return "", f.sessionErr
	}
	if userID, ok := f.validSessions[token]; ok {
		return userID, nil
	}
	return "", remote.ErrNotFound
}

type fakeUsers struct {
	users     map[string]models.User
	getErr    error
	updateErr error
}

func (f *fakeUsers) GetUser(_ context.Context, id string) (models.User, error) {
	if f.getErr != nil {
		return models.User{}, f.getErr
	}
	user, ok := f.users[id]
	if !ok {
		return models.User{}, remote.ErrNotFound
	}
	return user, nil
}

func (f *fakeUsers) GetUsersByIDs(_ context.Context, ids []string) ([]models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	var out []models.User
	for _, id := range ids {
		if user, ok := f.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

func (f *fakeUsers) UpdateUserProfile(_ context.Context, id string, patch models.ProfilePatch) (models.User, error) {
	if f.updateErr != nil {
		return models.User{}, f.updateErr
	}
	user, ok := f.users[id]
	if !ok {
		return models.User{}, remote.ErrNotFound
	}
	if patch.DisplayName != nil {
		user.DisplayName = *patch.DisplayName
	}
	if patch.Bio != nil {
		user.Bio = *patch.Bio
	}
	if patch.Avatar != nil {
		user.Avatar = *patch.Avatar
	}
	f.users[id] = user
	return user, nil
}

type fakeVideos struct {
	videos        []models.Video
	likeCounts    map[string]int
	likeEdges     map[string]map[string]bool
	savedEdges    map[string]map[string]bool
	listErr       error
	incrementErr  error
	insertLikeErr error
	insertSaveErr error
	insertErr     error
	commentErr    error
	listCalls     int
	lastOffset    int
	lastLimit     int
}

func newFakeVideos(videos ...models.Video) *fakeVideos {
	f := &fakeVideos{
		videos:     videos,
		likeCounts: map[string]int{},
		likeEdges:  map[string]map[string]bool{},
		savedEdges: map[string]map[string]bool{},
	}
	for _, v := range videos {
		f.likeCounts[v.ID] = v.Likes
	}
	return f
}

func (f *fakeVideos) ListVideos(_ context.Context, offset, limit int) ([]models.Video, error) {
	f.listCalls++
	f.lastOffset, f.lastLimit = offset, limit
	if f.listErr != nil {
		return nil, f.listErr
	}
	if offset >= len(f.videos) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.videos) {
		end = len(f.videos)
	}
	return append([]models.Video(nil), f.videos[offset:end]...), nil
}

func (f *fakeVideos) ListVideosByUser(_ context.Context, userID string) ([]models.Video, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Video
	for _, v := range f.videos {
		if v.Author.ID == userID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeVideos) GetVideo(_ context.Context, id string) (models.Video, error) {
	for _, v := range f.videos {
		if v.ID == id {
			v.Likes = f.likeCounts[id]
			return v, nil
		}
	}
	return models.Video{}, remote.ErrNotFound
}

func (f *fakeVideos) InsertVideo(_ context.Context, video models.Video) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.videos = append(f.videos, video)
	f.likeCounts[video.ID] = video.Likes
	return nil
}

func (f *fakeVideos) IncrementVideoLikes(_ context.Context, videoID string) (int, error) {
	if f.incrementErr != nil {
		return 0, f.incrementErr
	}
	f.likeCounts[videoID]++
	return f.likeCounts[videoID], nil
}

func (f *fakeVideos) DecrementVideoLikes(_ context.Context, videoID string) (int, error) {
	if f.incrementErr != nil {
		return 0, f.incrementErr
	}
	if f.likeCounts[videoID] > 0 {
		f.likeCounts[videoID]--
	}
	return f.likeCounts[videoID], nil
}

func (f *fakeVideos) InsertVideoLike(_ context.Context, videoID, userID string) error {
	if f.insertLikeErr != nil {
		return f.insertLikeErr
	}
	if f.likeEdges[videoID] == nil {
		f.likeEdges[videoID] = map[string]bool{}
	}
	if f.likeEdges[videoID][userID] {
		return remote.ErrConflict
	}
	f.likeEdges[videoID][userID] = true
	return nil
}

func (f *fakeVideos) DeleteVideoLike(_ context.Context, videoID, userID string) error {
	if !f.likeEdges[videoID][userID] {
		return remote.ErrNotFound
	}
	delete(f.likeEdges[videoID], userID)
	return nil
}

func (f *fakeVideos) InsertSavedVideo(_ context.Context, videoID, userID string) error {
	if f.insertSaveErr != nil {
		return f.insertSaveErr
	}
	if f.savedEdges[videoID] == nil {
		f.savedEdges[videoID] = map[string]bool{}
	}
	f.savedEdges[videoID][userID] = true
	return nil
}

func (f *fakeVideos) DeleteSavedVideo(_ context.Context, videoID, userID string) error {
	delete(f.savedEdges[videoID], userID)
	return nil
}

func (f *fakeVideos) ListLikedVideoIDs(_ context.Context, userID string) ([]string, error) {
	return edgeIDs(f.likeEdges, userID), nil
}

func (f *fakeVideos) ListSavedVideoIDs(_ context.Context, userID string) ([]string, error) {
	return edgeIDs(f.savedEdges, userID), nil
}

func edgeIDs(edges map[string]map[string]bool, userID string) []string {
	var out []string
	for videoID, users := range edges {
		if users[userID] {
			out = append(out, videoID)
		}
	}
	sort.Strings(out)
	return out
}

func (f *fakeVideos) InsertComment(_ context.Context, videoID, authorID, text string) (models.Comment, error) {
	if f.commentErr != nil {
		return models.Comment{}, f.commentErr
	}
	return models.Comment{
		ID:        fmt.Sprintf("comment-%s", videoID),
		VideoID:   videoID,
		Author:    models.AuthorSnapshot{ID: authorID},
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}, nil
}

type fakeFollows struct {
	edges       map[string]map[string]bool
	insertErr   error
	deleteErr   error
	listErr     error
	insertCalls int
}

func newFakeFollows() *fakeFollows {
	return &fakeFollows{edges: map[string]map[string]bool{}}
}

func (f *fakeFollows) InsertFollow(_ context.Context, followerID, followingID string) error {
	f.insertCalls++
	if f.insertErr != nil {
		return f.insertErr
	}
	if f.edges[followerID] == nil {
		f.edges[followerID] = map[string]bool{}
	}
	if f.edges[followerID][followingID] {
		return remote.ErrConflict
	}
	f.edges[followerID][followingID] = true
	return nil
}

func (f *fakeFollows) DeleteFollow(_ context.Context, followerID, followingID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if !f.edges[followerID][followingID] {
		return remote.ErrNotFound
	}
	delete(f.edges[followerID], followingID)
	return nil
}

func (f *fakeFollows) ListFollowerIDs(_ context.Context, userID string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []string
	for follower, set := range f.edges {
		if set[userID] {
			out = append(out, follower)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeFollows) ListFollowingIDs(_ context.Context, userID string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []string
	for following := range f.edges[userID] {
		out = append(out, following)
	}
	sort.Strings(out)
	return out, nil
}

type fakeNotifications struct {
	list      []models.Notification
	insertErr error
	markErr   error
}

func (f *fakeNotifications) InsertNotification(_ context.Context, n models.Notification) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.list = append(f.list, n)
	return nil
}

func (f *fakeNotifications) ListNotifications(_ context.Context, userID string) ([]models.Notification, error) {
	var out []models.Notification
	for _, n := range f.list {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNotifications) MarkNotificationRead(_ context.Context, id string) error {
	if f.markErr != nil {
		return f.markErr
	}
	for i := range f.list {
		if f.list[i].ID == id {
			f.list[i].Read = true
			return nil
		}
	}
	return remote.ErrNotFound
}

func (f *fakeNotifications) MarkAllNotificationsRead(_ context.Context, userID string) error {
	if f.markErr != nil {
		return f.markErr
	}
	for i := range f.list {
		if f.list[i].UserID == userID {
			f.list[i].Read = true
		}
	}
	return nil
}

type fakeChats struct {
	chats          map[string]models.Chat
	insertChatErr  error
	insertMsgErr   error
	markReadErr    error
	insertMsgCalls int
	lastMarkIDs    []string
}

func newFakeChats() *fakeChats {
	return &fakeChats{chats: map[string]models.Chat{}}
}

func (f *fakeChats) ListChats(_ context.Context, userID string) ([]models.Chat, error) {
	out := []models.Chat{}
	for _, chat := range f.chats {
		for _, p := range chat.Participants {
			if p.ID == userID {
				out = append(out, chat)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeChats) InsertChat(_ context.Context, chat models.Chat) error {
	if f.insertChatErr != nil {
		return f.insertChatErr
	}
	f.chats[chat.ID] = chat
	return nil
}

func (f *fakeChats) InsertMessage(_ context.Context, msg models.Message) (models.Message, error) {
	f.insertMsgCalls++
	if f.insertMsgErr != nil {
		return models.Message{}, f.insertMsgErr
	}
	chat, ok := f.chats[msg.ChatID]
	if !ok {
		return models.Message{}, remote.ErrNotFound
	}
	chat.Messages = append(chat.Messages, msg)
	f.chats[msg.ChatID] = chat
	return msg, nil
}

func (f *fakeChats) MarkMessagesRead(_ context.Context, chatID, readerID string, ids ...string) error {
	if f.markReadErr != nil {
		return f.markReadErr
	}
	f.lastMarkIDs = ids
	chat, ok := f.chats[chatID]
	if !ok {
		return remote.ErrNotFound
	}
	subset := make(map[string]bool, len(ids))
	for _, id := range ids {
		subset[id] = true
	}
	for i := range chat.Messages {
		m := &chat.Messages[i]
		if m.SenderID == readerID {
			continue
		}
		if len(subset) > 0 && !subset[m.ID] {
			continue
		}
		m.Read = true
	}
	f.chats[chatID] = chat
	return nil
}

type fakeMedia struct {
	videoURL string
	thumbURL string
	mimeType string
	err      error
	calls    int
}

func (f *fakeMedia) UploadVideo(context.Context, string) (string, string, string, error) {
	f.calls++
	if f.err != nil {
		return "", "", "", f.err
	}
	return f.videoURL, f.thumbURL, f.mimeType, nil
}

type fakeAvatars struct {
	url   string
	err   error
	calls int
	last  string
}

func (f *fakeAvatars) UploadAvatar(_ context.Context, _, localURI string) (string, error) {
	f.calls++
	f.last = localURI
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

func testUser(id string, role models.Role) models.User {
	return models.User{
		ID:        id,
		Email:     id + "@example.com",
		Username:  "u-" + id,
		Role:      role,
		CreatedAt: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
	}
}

// signedInSession builds a session manager already authenticated as the given
// user, backed by an in-memory snapshot store.
func signedInSession(t *testing.T, user models.User) (*Session, *kvstore.MemoryStore) {
	t.Helper()
	kv := kvstore.NewMemoryStore()
	auth := &fakeAuth{session: models.AuthSession{Token: "tok-" + user.ID, UserID: user.ID}}
	users := &fakeUsers{users: map[string]models.User{user.ID: user}}
	session := NewSession(auth, users, nil, kv, discardLogger())
	if err := session.Login(context.Background(), user.Email, "password"); err != nil {
		t.Fatalf("login: %v", err)
	}
	return session, kv
}

// anonymousSession builds a session manager with no signed-in user.
func anonymousSession(t *testing.T) (*Session, *kvstore.MemoryStore) {
	t.Helper()
	kv := kvstore.NewMemoryStore()
	auth := &fakeAuth{}
	users := &fakeUsers{users: map[string]models.User{}}
	return NewSession(auth, users, nil, kv, discardLogger()), kv
}
