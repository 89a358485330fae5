package couples

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/couplemovie/backend/internal/logging"
	"github.com/couplemovie/backend/internal/models"
)

const (
	minRating = 0.5
	maxRating = 5.0
)

// ValidRating reports whether rating is a half step within [0.5, 5].
func ValidRating(rating float64) bool {
	if math.IsNaN(rating) || rating < minRating || rating > maxRating {
		return false
	}
	return rating*2 == math.Trunc(rating*2)
}

// Rate stores actorID's rating for movieRef. A rating implies the movie was
// watched, so the entry is moved to WATCHED when it is not already.
func (s *Service) Rate(ctx context.Context, pairingID, actorID, movieRef string, rating float64) (EntryView, error) {
	ctx, span := logging.StartSpan(ctx, "couples.rate", slog.String("movie_ref", movieRef))
	defer span.End()

	if !ValidRating(rating) {
		return EntryView{}, ErrInvalidRating
	}
	movieRef, err := normalizeMovieRef(movieRef)
	if err != nil {
		return EntryView{}, err
	}

	pairing, role, err := s.member(ctx, pairingID, actorID)
	if err != nil {
		return EntryView{}, err
	}

	entry, err := s.entries.SetRating(ctx, pairing.ID, movieRef, role, rating, s.now())
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return EntryView{}, ErrEntryNotFound
		}
		return EntryView{}, fmt.Errorf("rate shared entry: %w", err)
	}

	s.emit(ctx, models.Event{
		Type:       models.EventMovieRated,
		PairingID:  pairing.ID,
		ActorID:    actorID,
		Recipients: []string{pairing.PartnerOf(actorID)},
		MovieRef:   movieRef,
		Entry:      &entry,
	})
	return ViewOf(entry, role), nil
}

// Stats counts matches, watchlist and watched entries from the current
// collection rather than from stored counters.
func (s *Service) Stats(ctx context.Context, pairingID, actorID string) (models.Stats, error) {
	pairing, _, err := s.member(ctx, pairingID, actorID)
	if err != nil {
		return models.Stats{}, err
	}

	entries, err := s.entries.ListEntries(ctx, pairing.ID)
	if err != nil {
		return models.Stats{}, fmt.Errorf("list shared entries: %w", err)
	}
	return Tally(entries), nil
}
