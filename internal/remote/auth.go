package remote

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/lookym/datasync/internal/models"
)

// SessionTTL controls how long an issued session token stays valid.
var SessionTTL = 30 * 24 * time.Hour

// SignUp creates an authentication identity. The matching profile row is
// provisioned by a server-side trigger, outside this client's control; the
// identity stays unconfirmed until the email is verified, so no session is
// issued here.
func (g *Gateway) SignUp(ctx context.Context, email, password, username string, role models.Role) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO auth_identities (id, email, password_hash, username, role, confirmed, created_at)
        VALUES ($1, $2, $3, $4, $5, FALSE, $6)
    `, uuid.NewString(), email, string(hashed), username, string(role), nowUTC())
	if err != nil {
		return fmt.Errorf("insert identity: %w", mapWriteError(err))
	}
	return nil
}

// SignInWithPassword verifies the credentials and issues an opaque session
// token. Unconfirmed identities are rejected; a wrong email and a wrong
// password are indistinguishable to the caller.
func (g *Gateway) SignInWithPassword(ctx context.Context, email, password string) (models.AuthSession, error) {
	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return models.AuthSession{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var (
		userID    string
		hash      string
		confirmed bool
	)
	row := conn.QueryRow(ctx, `SELECT id, password_hash, confirmed FROM auth_identities WHERE email = $1`, email)
	if err := row.Scan(&userID, &hash, &confirmed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.AuthSession{}, ErrInvalidCredentials
		}
		return models.AuthSession{}, fmt.Errorf("select identity: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return models.AuthSession{}, ErrInvalidCredentials
	}
	if !confirmed {
		return models.AuthSession{}, ErrEmailNotConfirmed
	}

	token, err := randomToken()
	if err != nil {
		return models.AuthSession{}, err
	}

	session := models.AuthSession{
		Token:     token,
		UserID:    userID,
		ExpiresAt: nowUTC().Add(SessionTTL),
	}
	_, err = conn.Exec(ctx, `
        INSERT INTO auth_sessions (token, user_id, expires_at, created_at)
        VALUES ($1, $2, $3, $4)
    `, session.Token, session.UserID, session.ExpiresAt, nowUTC())
	if err != nil {
		return models.AuthSession{}, fmt.Errorf("insert session: %w", mapWriteError(err))
	}
	return session, nil
}

// SignOut revokes the session token. Revoking an unknown token is not an
// error; local logout proceeds either way.
func (g *Gateway) SignOut(ctx context.Context, token string) error {
	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `DELETE FROM auth_sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// SessionUser resolves a token to its user id, deleting it when expired.
func (g *Gateway) SessionUser(ctx context.Context, token string) (string, error) {
	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var (
		userID    string
		expiresAt time.Time
	)
	row := conn.QueryRow(ctx, `SELECT user_id, expires_at FROM auth_sessions WHERE token = $1`, token)
	if err := row.Scan(&userID, &expiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("select session: %w", err)
	}

	if nowUTC().After(expiresAt) {
		_, _ = conn.Exec(ctx, `DELETE FROM auth_sessions WHERE token = $1`, token)
		return "", ErrSessionExpired
	}
	return userID, nil
}

// ConfirmEmail marks the identity as verified. In production the hosted
// backend flips this when the user follows the emailed link; seeds and tests
// call it directly.
func (g *Gateway) ConfirmEmail(ctx context.Context, email string) error {
	conn, err := g.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `UPDATE auth_identities SET confirmed = TRUE WHERE email = $1`, email)
	if err != nil {
		return fmt.Errorf("confirm email: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func randomToken() (string, error) {
	const size = 32
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
