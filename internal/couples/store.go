package couples

import (
	"context"
	"time"

	"github.com/couplemovie/backend/internal/models"
)

// AccountDirectory resolves accounts supplied by the identity provider.
type AccountDirectory interface {
	FindByID(ctx context.Context, id string) (models.Account, error)
	// FindByIdentifier resolves an email address or username.
	FindByIdentifier(ctx context.Context, identifier string) (models.Account, error)
}

// PairingStore persists pairings.
//
// CreatePairing must refuse, atomically, to give either account a second
// PENDING or ACCEPTED pairing and report ErrActivePairingExists instead.
// TransitionPairing and BreakPairing are compare-and-set operations and
// report ErrStaleTransition when the stored status differs from the expected one.
type PairingStore interface {
	CreatePairing(ctx context.Context, pairing models.Pairing) error
	GetPairing(ctx context.Context, id string) (models.Pairing, error)
	ActivePairingFor(ctx context.Context, accountID string) (models.Pairing, error)
	ListIncoming(ctx context.Context, accountID string) ([]models.Pairing, error)
	TransitionPairing(ctx context.Context, id string, from, to models.PairingStatus, at time.Time) (models.Pairing, error)
	// BreakPairing moves an ACCEPTED pairing to BROKEN and deletes its shared
	// entries in the same unit of work, returning the removed entries.
	BreakPairing(ctx context.Context, id string, at time.Time) (models.Pairing, []models.SharedEntry, error)
}

// EntryStore persists shared collection entries.
//
// Every write touches only the columns it names so that the two members can
// update the same row concurrently without clobbering each other.
type EntryStore interface {
	GetEntry(ctx context.Context, pairingID, movieRef string) (models.SharedEntry, error)
	ListEntries(ctx context.Context, pairingID string) ([]models.SharedEntry, error)
	// MarkAdded sets the flag owned by role, creating the entry when missing.
	MarkAdded(ctx context.Context, pairingID, movieRef string, role models.Role, at time.Time) (models.SharedEntry, error)
	// ClearAdded clears the flag owned by role and deletes the entry once no
	// flag remains. It reports whether the row was deleted.
	ClearAdded(ctx context.Context, pairingID, movieRef string, role models.Role) (models.SharedEntry, bool, error)
	SetWatchStatus(ctx context.Context, pairingID, movieRef string, status models.WatchStatus, at time.Time) (models.SharedEntry, error)
	// SetRating stores the rating owned by role and marks the entry watched.
	SetRating(ctx context.Context, pairingID, movieRef string, role models.Role, rating float64, at time.Time) (models.SharedEntry, error)
}

// Notifier receives pairing and collection events. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, event models.Event)
}

// Archiver keeps a copy of a collection that is about to be discarded.
type Archiver interface {
	Archive(ctx context.Context, pairing models.Pairing, entries []models.SharedEntry) error
}
