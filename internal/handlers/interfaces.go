package handlers

import (
	"context"

	"nhooyr.io/websocket"

	"github.com/couplemovie/backend/internal/couples"
	"github.com/couplemovie/backend/internal/models"
)

// AccountStore captures the persistence operations required by the auth handlers.
type AccountStore interface {
	Create(ctx context.Context, account models.Account) error
	FindByEmail(ctx context.Context, email string) (models.Account, error)
	FindByIdentifier(ctx context.Context, identifier string) (models.Account, error)
}

// SessionManager issues and refreshes authentication tokens for accounts.
type SessionManager interface {
	Issue(ctx context.Context, accountID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Revoke(ctx context.Context, refreshToken string)
}

// CoupleService is the pairing and shared collection core. The acting
// account is always passed explicitly.
type CoupleService interface {
	Invite(ctx context.Context, initiatorID, recipient string) (models.Pairing, error)
	Accept(ctx context.Context, pairingID, actorID string) (models.Pairing, error)
	Reject(ctx context.Context, pairingID, actorID string) error
	Cancel(ctx context.Context, pairingID, actorID string) error
	Break(ctx context.Context, pairingID, actorID string) error
	Partner(ctx context.Context, accountID string) (*models.Account, error)
	Current(ctx context.Context, accountID string) (models.Pairing, error)
	IncomingInvites(ctx context.Context, accountID string) ([]models.Pairing, error)

	AddMovie(ctx context.Context, pairingID, actorID, movieRef string) (couples.EntryView, error)
	RemoveMovie(ctx context.Context, pairingID, actorID, movieRef string) error
	List(ctx context.Context, pairingID, actorID string) ([]couples.EntryView, error)
	Entry(ctx context.Context, pairingID, actorID, movieRef string) (couples.EntryView, error)
	UpdateWatchStatus(ctx context.Context, pairingID, actorID, movieRef string, status models.WatchStatus) (couples.EntryView, error)
	Rate(ctx context.Context, pairingID, actorID, movieRef string, rating float64) (couples.EntryView, error)
	Stats(ctx context.Context, pairingID, actorID string) (models.Stats, error)
}

// EventStreamer pushes an account's events over an accepted websocket.
type EventStreamer interface {
	Stream(ctx context.Context, conn *websocket.Conn, accountID string) error
}
