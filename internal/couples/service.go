package couples

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/couplemovie/backend/internal/logging"
	"github.com/couplemovie/backend/internal/models"
)

// Service implements the pairing lifecycle and the shared collection that an
// accepted pairing owns. Every call receives the acting account explicitly.
type Service struct {
	accounts AccountDirectory
	pairings PairingStore
	entries  EntryStore
	notifier Notifier
	archiver Archiver

	now   func() time.Time
	newID func() string
}

// Option customises a Service.
type Option func(*Service)

// WithNotifier delivers events for every successful mutation.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithArchiver snapshots collections before a pairing break discards them.
func WithArchiver(a Archiver) Option {
	return func(s *Service) { s.archiver = a }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides pairing id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// NewService constructs a Service over the provided stores.
func NewService(accounts AccountDirectory, pairings PairingStore, entries EntryStore, opts ...Option) *Service {
	if accounts == nil || pairings == nil || entries == nil {
		panic("couples: stores must not be nil")
	}
	s := &Service{
		accounts: accounts,
		pairings: pairings,
		entries:  entries,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) emit(ctx context.Context, event models.Event) {
	if s.notifier == nil || len(event.Recipients) == 0 {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	s.notifier.Notify(ctx, event)
}

func (s *Service) archive(ctx context.Context, pairing models.Pairing, entries []models.SharedEntry) {
	if s.archiver == nil || len(entries) == 0 {
		return
	}
	if err := s.archiver.Archive(ctx, pairing, entries); err != nil {
		logging.FromContext(ctx).Error("archive shared collection", "pairingId", pairing.ID, "entries", len(entries), "error", err)
	}
}
