package couples

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/couplemovie/backend/internal/logging"
	"github.com/couplemovie/backend/internal/models"
)

// AddMovie records that actorID wants movieRef in the shared collection.
// Adding a movie the partner already added turns the entry into a match;
// adding it twice is a no-op.
func (s *Service) AddMovie(ctx context.Context, pairingID, actorID, movieRef string) (EntryView, error) {
	ctx, span := logging.StartSpan(ctx, "couples.add_movie", slog.String("movie_ref", movieRef))
	defer span.End()

	movieRef, err := normalizeMovieRef(movieRef)
	if err != nil {
		return EntryView{}, err
	}

	pairing, role, err := s.member(ctx, pairingID, actorID)
	if err != nil {
		return EntryView{}, err
	}

	prior, err := s.entries.GetEntry(ctx, pairing.ID, movieRef)
	switch {
	case err == nil:
		if prior.AddedBy(role) {
			return ViewOf(prior, role), nil
		}
	case errors.Is(err, ErrEntryNotFound):
	default:
		return EntryView{}, fmt.Errorf("load shared entry: %w", err)
	}

	entry, err := s.entries.MarkAdded(ctx, pairing.ID, movieRef, role, s.now())
	if err != nil {
		// The pairing was broken between the membership check and the write.
		if errors.Is(err, ErrNotPaired) || errors.Is(err, ErrPairingNotFound) {
			return EntryView{}, ErrNotPaired
		}
		return EntryView{}, fmt.Errorf("add shared entry: %w", err)
	}

	eventType := models.EventMovieAdded
	if IsMatch(entry) && !IsMatch(prior) {
		eventType = models.EventMatchCreated
		logging.FromContext(ctx).Info("mutual match", "pairingId", pairing.ID, "movieRef", movieRef)
	}
	s.emit(ctx, models.Event{
		Type:       eventType,
		PairingID:  pairing.ID,
		ActorID:    actorID,
		Recipients: []string{pairing.PartnerOf(actorID)},
		MovieRef:   movieRef,
		Entry:      &entry,
	})

	return ViewOf(entry, role), nil
}

// RemoveMovie withdraws actorID's contribution to movieRef. The entry is
// deleted once neither member has it; missing entries are ignored.
func (s *Service) RemoveMovie(ctx context.Context, pairingID, actorID, movieRef string) error {
	ctx, span := logging.StartSpan(ctx, "couples.remove_movie", slog.String("movie_ref", movieRef))
	defer span.End()

	movieRef, err := normalizeMovieRef(movieRef)
	if err != nil {
		return err
	}

	pairing, role, err := s.member(ctx, pairingID, actorID)
	if err != nil {
		return err
	}

	prior, err := s.entries.GetEntry(ctx, pairing.ID, movieRef)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil
		}
		return fmt.Errorf("load shared entry: %w", err)
	}
	if !prior.AddedBy(role) {
		return nil
	}

	entry, deleted, err := s.entries.ClearAdded(ctx, pairing.ID, movieRef, role)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil
		}
		return fmt.Errorf("remove shared entry: %w", err)
	}

	event := models.Event{
		Type:       models.EventMovieRemoved,
		PairingID:  pairing.ID,
		ActorID:    actorID,
		Recipients: []string{pairing.PartnerOf(actorID)},
		MovieRef:   movieRef,
	}
	if !deleted {
		event.Entry = &entry
	}
	s.emit(ctx, event)
	return nil
}

// List returns the shared collection as seen by actorID.
func (s *Service) List(ctx context.Context, pairingID, actorID string) ([]EntryView, error) {
	pairing, role, err := s.member(ctx, pairingID, actorID)
	if err != nil {
		return nil, err
	}

	entries, err := s.entries.ListEntries(ctx, pairing.ID)
	if err != nil {
		return nil, fmt.Errorf("list shared entries: %w", err)
	}

	views := make([]EntryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, ViewOf(entry, role))
	}
	return views, nil
}

// Entry answers whether movieRef is in the shared collection and, through
// the view, whether it is a match. Absent movies report ErrEntryNotFound.
func (s *Service) Entry(ctx context.Context, pairingID, actorID, movieRef string) (EntryView, error) {
	movieRef, err := normalizeMovieRef(movieRef)
	if err != nil {
		return EntryView{}, err
	}

	pairing, role, err := s.member(ctx, pairingID, actorID)
	if err != nil {
		return EntryView{}, err
	}

	entry, err := s.entries.GetEntry(ctx, pairing.ID, movieRef)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return EntryView{}, ErrEntryNotFound
		}
		return EntryView{}, fmt.Errorf("load shared entry: %w", err)
	}
	return ViewOf(entry, role), nil
}

// UpdateWatchStatus sets the collection-level watch status of movieRef.
// Either member may change it.
func (s *Service) UpdateWatchStatus(ctx context.Context, pairingID, actorID, movieRef string, status models.WatchStatus) (EntryView, error) {
	ctx, span := logging.StartSpan(ctx, "couples.update_watch_status", slog.String("movie_ref", movieRef), slog.String("watch_status", string(status)))
	defer span.End()

	movieRef, err := normalizeMovieRef(movieRef)
	if err != nil {
		return EntryView{}, err
	}
	status = models.WatchStatus(strings.ToUpper(strings.TrimSpace(string(status))))
	if !status.Valid() {
		return EntryView{}, ErrInvalidWatchStatus
	}

	pairing, role, err := s.member(ctx, pairingID, actorID)
	if err != nil {
		return EntryView{}, err
	}

	entry, err := s.entries.SetWatchStatus(ctx, pairing.ID, movieRef, status, s.now())
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return EntryView{}, ErrEntryNotFound
		}
		return EntryView{}, fmt.Errorf("update watch status: %w", err)
	}

	s.emit(ctx, models.Event{
		Type:       models.EventStatusChanged,
		PairingID:  pairing.ID,
		ActorID:    actorID,
		Recipients: []string{pairing.PartnerOf(actorID)},
		MovieRef:   movieRef,
		Entry:      &entry,
	})
	return ViewOf(entry, role), nil
}

// member loads pairingID and checks that actorID belongs to it and that it is accepted.
func (s *Service) member(ctx context.Context, pairingID, actorID string) (models.Pairing, models.Role, error) {
	pairing, err := s.pairings.GetPairing(ctx, pairingID)
	if err != nil {
		if errors.Is(err, ErrPairingNotFound) {
			return models.Pairing{}, models.RoleNone, ErrNotPaired
		}
		return models.Pairing{}, models.RoleNone, fmt.Errorf("load pairing: %w", err)
	}

	role := pairing.RoleOf(actorID)
	if role == models.RoleNone {
		return models.Pairing{}, models.RoleNone, ErrNotMember
	}
	if pairing.Status != models.PairingAccepted {
		return models.Pairing{}, models.RoleNone, ErrNotPaired
	}
	return pairing, role, nil
}

func normalizeMovieRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrInvalidMovieRef
	}
	return ref, nil
}
