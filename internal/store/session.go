package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lookym/datasync/internal/kvstore"
	"github.com/lookym/datasync/internal/models"
	"github.com/lookym/datasync/internal/remote"
)

// sessionSnapshotKey names the persisted slice of session state. Transient
// fields (Loading, Initialized, Err) are never written under it.
const sessionSnapshotKey = "auth-storage"

// SessionState is the observable state of the session manager.
// Authenticated is always equal to (CurrentUser != nil). Initialized becomes
// true exactly once, when the first session check resolves, and stays true.
type SessionState struct {
	CurrentUser   *models.User
	Authenticated bool
	Loading       bool
	Initialized   bool
	Err           error
}

type persistedSession struct {
	CurrentUser     *models.User `json:"currentUser"`
	IsAuthenticated bool         `json:"isAuthenticated"`
	SessionToken    string       `json:"sessionToken"`
}

// Session owns the current-user identity and the authentication lifecycle.
// All mutations go through copy-on-write swaps of the state value, so
// concurrent snapshot reads never observe a torn update.
type Session struct {
	auth    AuthGateway
	users   UserGateway
	avatars AvatarStorage
	kv      kvstore.Store
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.RWMutex
	state SessionState
	token string
}

// NewSession constructs the session manager. The avatar storage may be nil
// when profile pictures are not configured; UpdateProfile then rejects
// device-local avatar URIs.
func NewSession(auth AuthGateway, users UserGateway, avatars AvatarStorage, kv kvstore.Store, logger *slog.Logger) *Session {
	if auth == nil || users == nil || kv == nil {
		panic("store: session manager requires auth, users and kv")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		auth:    auth,
		users:   users,
		avatars: avatars,
		kv:      kv,
		logger:  logger,
		now:     time.Now,
	}
}

// Snapshot returns a copy of the current session state.
func (s *Session) Snapshot() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state := s.state
	if state.CurrentUser != nil {
		user := *state.CurrentUser
		state.CurrentUser = &user
	}
	return state
}

// CurrentUser returns the signed-in user, or nil when anonymous. Other stores
// read identity through this accessor rather than copying session state.
func (s *Session) CurrentUser() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.CurrentUser == nil {
		return nil
	}
	user := *s.state.CurrentUser
	return &user
}

// Login authenticates against the backend and loads the profile row.
// Invalid credentials surface the gateway's error; a missing profile row
// after successful authentication is reported as ErrProfileInconsistency
// because it indicates a provisioning defect, not a user mistake.
func (s *Session) Login(ctx context.Context, email, password string) error {
	s.setLoading(true)

	sess, err := s.auth.SignInWithPassword(ctx, strings.TrimSpace(strings.ToLower(email)), password)
	if err != nil {
		s.logger.Warn("login failed", "email", email, "error", err)
		s.failAuth(err)
		return err
	}

	user, err := s.users.GetUser(ctx, sess.UserID)
	if err != nil {
		wrapped := fmt.Errorf("%w: fetch profile for %s: %v", ErrProfileInconsistency, sess.UserID, err)
		s.logger.Error("login profile fetch failed", "userId", sess.UserID, "error", err)
		s.failAuth(wrapped)
		return wrapped
	}

	s.mu.Lock()
	s.token = sess.Token
	s.state = SessionState{CurrentUser: &user, Authenticated: true, Initialized: true}
	s.mu.Unlock()

	s.persist(ctx)
	return nil
}

// Register creates a new identity. It deliberately does not authenticate:
// the account stays pending until the email address is confirmed, so callers
// must direct the user to their inbox.
func (s *Session) Register(ctx context.Context, email, password, username string, role models.Role) error {
	s.setLoading(true)
	defer s.setLoading(false)

	if role == "" {
		role = models.RoleUser
	}

	if err := s.auth.SignUp(ctx, strings.TrimSpace(strings.ToLower(email)), password, username, role); err != nil {
		s.logger.Warn("registration failed", "email", email, "error", err)
		s.setErr(err)
		return err
	}
	return nil
}

// Logout signs out remotely on a best-effort basis and always ends anonymous
// with the persisted snapshot cleared, even when the remote call fails.
func (s *Session) Logout(ctx context.Context) {
	s.mu.Lock()
	token := s.token
	s.token = ""
	s.state = SessionState{Initialized: true}
	s.mu.Unlock()

	if token != "" {
		if err := s.auth.SignOut(ctx, token); err != nil {
			s.logger.Warn("remote sign-out failed", "error", err)
		}
	}

	if err := s.kv.Delete(ctx, sessionSnapshotKey); err != nil {
		s.logger.Warn("clear session snapshot", "error", err)
	}
}

// UpdateProfile persists the changed columns and merges the result into the
// current user. A device-local avatar URI is uploaded to object storage first
// and replaced with the resulting public URL.
func (s *Session) UpdateProfile(ctx context.Context, patch models.ProfilePatch) error {
	user := s.CurrentUser()
	if user == nil {
		s.setErr(ErrNotAuthenticated)
		return ErrNotAuthenticated
	}

	s.setLoading(true)
	defer s.setLoading(false)

	if patch.Avatar != nil && isLocalURI(*patch.Avatar) {
		if s.avatars == nil {
			err := fmt.Errorf("%w: avatar storage not configured", ErrUpload)
			s.setErr(err)
			return err
		}
		url, err := s.avatars.UploadAvatar(ctx, user.ID, *patch.Avatar)
		if err != nil {
			wrapped := fmt.Errorf("%w: avatar: %v", ErrUpload, err)
			s.logger.Error("avatar upload failed", "userId", user.ID, "error", err)
			s.setErr(wrapped)
			return wrapped
		}
		patch.Avatar = &url
	}

	updated, err := s.users.UpdateUserProfile(ctx, user.ID, patch)
	if err != nil {
		wrapped := fmt.Errorf("%w: update profile: %v", ErrRemoteWrite, err)
		s.logger.Error("profile update failed", "userId", user.ID, "error", err)
		s.setErr(wrapped)
		return wrapped
	}

	s.mu.Lock()
	s.state.CurrentUser = &updated
	s.state.Err = nil
	s.mu.Unlock()

	s.persist(ctx)
	return nil
}

// CheckSession restores the signed-in user from a previously persisted session
// token, if one exists and is still valid. It is called once at process start
// and is idempotent; any profile inconsistency during restore forces a full
// logout so the app never sits half-authenticated.
func (s *Session) CheckSession(ctx context.Context) error {
	s.mu.RLock()
	initialized := s.state.Initialized
	s.mu.RUnlock()
	if initialized {
		return nil
	}

	s.setLoading(true)

	raw, err := s.kv.Get(ctx, sessionSnapshotKey)
	if err != nil {
		if !errors.Is(err, kvstore.ErrKeyNotFound) {
			s.logger.Warn("read session snapshot", "error", err)
		}
		s.finishAnonymous()
		return nil
	}

	var snap persistedSession
	if err := json.Unmarshal(raw, &snap); err != nil || snap.SessionToken == "" {
		s.logger.Warn("discarding unreadable session snapshot", "error", err)
		s.finishAnonymous()
		return nil
	}

	userID, err := s.auth.SessionUser(ctx, snap.SessionToken)
	if err != nil {
		if !errors.Is(err, remote.ErrNotFound) && !errors.Is(err, remote.ErrSessionExpired) {
			s.logger.Warn("session validation failed", "error", err)
		}
		if delErr := s.kv.Delete(ctx, sessionSnapshotKey); delErr != nil {
			s.logger.Warn("clear stale session snapshot", "error", delErr)
		}
		s.finishAnonymous()
		return nil
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		wrapped := fmt.Errorf("%w: restore profile for %s: %v", ErrProfileInconsistency, userID, err)
		s.logger.Error("session restore profile fetch failed", "userId", userID, "error", err)
		s.mu.Lock()
		s.token = snap.SessionToken
		s.mu.Unlock()
		s.Logout(ctx)
		return wrapped
	}

	s.mu.Lock()
	s.token = snap.SessionToken
	s.state = SessionState{CurrentUser: &user, Authenticated: true, Initialized: true}
	s.mu.Unlock()

	s.persist(ctx)
	return nil
}

func (s *Session) setLoading(loading bool) {
	s.mu.Lock()
	s.state.Loading = loading
	if loading {
		s.state.Err = nil
	}
	s.mu.Unlock()
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	s.state.Err = err
	s.state.Loading = false
	s.mu.Unlock()
}

// failAuth records a failed authentication attempt: anonymous, initialized,
// error surfaced for the UI.
func (s *Session) failAuth(err error) {
	s.mu.Lock()
	s.token = ""
	s.state = SessionState{Initialized: true, Err: err}
	s.mu.Unlock()
}

func (s *Session) finishAnonymous() {
	s.mu.Lock()
	s.state = SessionState{Initialized: true}
	s.mu.Unlock()
}

// persist writes the whitelisted session fields. Best-effort: a failed flush
// loses the delta but never fails the mutation that triggered it.
func (s *Session) persist(ctx context.Context) {
	s.mu.RLock()
	snap := persistedSession{
		CurrentUser:     s.state.CurrentUser,
		IsAuthenticated: s.state.Authenticated,
		SessionToken:    s.token,
	}
	s.mu.RUnlock()

	raw, err := json.Marshal(snap)
	if err != nil {
		s.logger.Error("encode session snapshot", "error", err)
		return
	}
	if err := s.kv.Set(ctx, sessionSnapshotKey, raw); err != nil {
		s.logger.Warn("persist session snapshot", "error", err)
	}
}

// isLocalURI reports whether the URI points at the device rather than a
// remotely hosted asset.
func isLocalURI(uri string) bool {
	return !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://")
}
