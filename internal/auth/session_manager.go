package auth

import (
	"context"
	"errors"
	"time"

	"github.com/couplemovie/backend/internal/models"
)

var (
	// ErrSessionNotFound means the refresh token is unknown, already rotated, or revoked.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRefreshTokenExpired means the refresh token outlived its TTL.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	// ErrInvalidAccessToken means the bearer token is malformed, forged or expired.
	ErrInvalidAccessToken = errors.New("invalid access token")
)

// Session is a refresh token grant. Only the token's hash is persisted.
type Session struct {
	TokenHash string
	AccountID string
	ExpiresAt time.Time
}

// SessionStore persists sessions by token hash.
type SessionStore interface {
	Save(ctx context.Context, session Session) error
	Find(ctx context.Context, tokenHash string) (Session, error)
	// Delete reports ErrSessionNotFound when tokenHash is not stored.
	Delete(ctx context.Context, tokenHash string) error
}

// Manager hands out short-lived access tokens and single-use refresh tokens.
type Manager struct {
	access     signer
	refreshTTL time.Duration
	store      SessionStore
	now        func() time.Time
}

// NewManager builds a Manager. It panics on an empty secret or a nil store.
func NewManager(secret []byte, accessTTL, refreshTTL time.Duration, store SessionStore) *Manager {
	if store == nil {
		panic("auth: session store must not be nil")
	}
	if len(secret) == 0 {
		panic("auth: signing secret must not be empty")
	}
	m := &Manager{refreshTTL: refreshTTL, store: store}
	m.now = func() time.Time { return time.Now().UTC() }
	m.access = signer{secret: secret, ttl: accessTTL, now: func() time.Time { return m.now() }}
	return m
}

// Issue starts a new session for accountID.
func (m *Manager) Issue(ctx context.Context, accountID string) (models.SessionTokens, error) {
	if accountID == "" {
		return models.SessionTokens{}, errors.New("account id must be provided")
	}

	now := m.now()
	access, err := m.access.sign(accountID, now)
	if err != nil {
		return models.SessionTokens{}, err
	}
	refresh, err := newRefreshToken()
	if err != nil {
		return models.SessionTokens{}, err
	}

	session := Session{TokenHash: HashToken(refresh), AccountID: accountID, ExpiresAt: now.Add(m.refreshTTL)}
	if err := m.store.Save(ctx, session); err != nil {
		return models.SessionTokens{}, err
	}
	return models.SessionTokens{
		AccessToken:      access,
		AccessExpiresAt:  now.Add(m.access.ttl),
		RefreshToken:     refresh,
		RefreshExpiresAt: session.ExpiresAt,
	}, nil
}

// Refresh rotates refreshToken: the old token is consumed and a new pair is
// issued. When two callers race on one token only the first delete succeeds.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error) {
	if refreshToken == "" {
		return models.SessionTokens{}, ErrSessionNotFound
	}

	hash := HashToken(refreshToken)
	session, err := m.store.Find(ctx, hash)
	if err != nil {
		return models.SessionTokens{}, err
	}
	if err := m.store.Delete(ctx, hash); err != nil {
		return models.SessionTokens{}, err
	}
	if m.now().After(session.ExpiresAt) {
		return models.SessionTokens{}, ErrRefreshTokenExpired
	}
	return m.Issue(ctx, session.AccountID)
}

// Revoke ends the session behind refreshToken. Unknown tokens are ignored.
func (m *Manager) Revoke(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}
	_ = m.store.Delete(ctx, HashToken(refreshToken))
}

// ParseAccessToken returns the account an access token was issued to.
func (m *Manager) ParseAccessToken(token string) (string, error) {
	return m.access.verify(token)
}
