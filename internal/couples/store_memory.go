package couples

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/couplemovie/backend/internal/models"
)

// NewMemoryStore returns a PairingStore and EntryStore backed by in-memory maps.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pairings: make(map[string]models.Pairing),
		entries:  make(map[entryKey]models.SharedEntry),
	}
}

type entryKey struct {
	pairingID string
	movieRef  string
}

// MemoryStore implements PairingStore and EntryStore for tests and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	pairings map[string]models.Pairing
	entries  map[entryKey]models.SharedEntry
}

// CreatePairing stores a new pairing unless either member already has an active one.
func (s *MemoryStore) CreatePairing(_ context.Context, pairing models.Pairing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.pairings {
		if !existing.Status.Active() {
			continue
		}
		if existing.RoleOf(pairing.InitiatorID) != models.RoleNone || existing.RoleOf(pairing.RecipientID) != models.RoleNone {
			return ErrActivePairingExists
		}
	}
	s.pairings[pairing.ID] = pairing
	return nil
}

// GetPairing loads a pairing by id.
func (s *MemoryStore) GetPairing(_ context.Context, id string) (models.Pairing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pairing, ok := s.pairings[id]
	if !ok {
		return models.Pairing{}, ErrPairingNotFound
	}
	return pairing, nil
}

// ActivePairingFor returns the PENDING or ACCEPTED pairing accountID belongs to.
func (s *MemoryStore) ActivePairingFor(_ context.Context, accountID string) (models.Pairing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, pairing := range s.pairings {
		if pairing.Status.Active() && pairing.RoleOf(accountID) != models.RoleNone {
			return pairing, nil
		}
	}
	return models.Pairing{}, ErrPairingNotFound
}

// ListIncoming returns the PENDING pairings addressed to accountID, oldest first.
func (s *MemoryStore) ListIncoming(_ context.Context, accountID string) ([]models.Pairing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Pairing
	for _, pairing := range s.pairings {
		if pairing.Status == models.PairingPending && pairing.RecipientID == accountID {
			out = append(out, pairing)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// TransitionPairing changes the status of a pairing currently in from.
func (s *MemoryStore) TransitionPairing(_ context.Context, id string, from, to models.PairingStatus, at time.Time) (models.Pairing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pairing, ok := s.pairings[id]
	if !ok {
		return models.Pairing{}, ErrPairingNotFound
	}
	if pairing.Status != from {
		return models.Pairing{}, ErrStaleTransition
	}
	pairing.Status = to
	respondedAt := at
	pairing.RespondedAt = &respondedAt
	s.pairings[id] = pairing
	return pairing, nil
}

// BreakPairing marks an ACCEPTED pairing BROKEN and drops its entries.
func (s *MemoryStore) BreakPairing(_ context.Context, id string, at time.Time) (models.Pairing, []models.SharedEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pairing, ok := s.pairings[id]
	if !ok {
		return models.Pairing{}, nil, ErrPairingNotFound
	}
	if pairing.Status != models.PairingAccepted {
		return models.Pairing{}, nil, ErrStaleTransition
	}
	pairing.Status = models.PairingBroken
	respondedAt := at
	pairing.RespondedAt = &respondedAt
	s.pairings[id] = pairing

	var removed []models.SharedEntry
	for key, entry := range s.entries {
		if key.pairingID == id {
			removed = append(removed, entry)
			delete(s.entries, key)
		}
	}
	sortEntries(removed)
	return pairing, removed, nil
}

// GetEntry loads one shared entry.
func (s *MemoryStore) GetEntry(_ context.Context, pairingID, movieRef string) (models.SharedEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[entryKey{pairingID, movieRef}]
	if !ok {
		return models.SharedEntry{}, ErrEntryNotFound
	}
	return cloneEntry(entry), nil
}

// ListEntries returns every entry of the pairing in insertion order.
func (s *MemoryStore) ListEntries(_ context.Context, pairingID string) ([]models.SharedEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.SharedEntry{}
	for key, entry := range s.entries {
		if key.pairingID == pairingID {
			out = append(out, cloneEntry(entry))
		}
	}
	sortEntries(out)
	return out, nil
}

// MarkAdded sets role's flag, creating a WATCHLIST entry when none exists.
// The pairing must still be ACCEPTED.
func (s *MemoryStore) MarkAdded(_ context.Context, pairingID, movieRef string, role models.Role, at time.Time) (models.SharedEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pairing, ok := s.pairings[pairingID]
	if !ok {
		return models.SharedEntry{}, ErrPairingNotFound
	}
	if pairing.Status != models.PairingAccepted {
		return models.SharedEntry{}, ErrNotPaired
	}

	key := entryKey{pairingID, movieRef}
	entry, ok := s.entries[key]
	if !ok {
		entry = models.SharedEntry{
			PairingID:   pairingID,
			MovieRef:    movieRef,
			WatchStatus: models.WatchStatusWatchlist,
			CreatedAt:   at,
		}
	}
	setFlag(&entry, role, true)
	s.entries[key] = entry
	return cloneEntry(entry), nil
}

// ClearAdded clears role's flag and deletes the entry once both flags are false.
func (s *MemoryStore) ClearAdded(_ context.Context, pairingID, movieRef string, role models.Role) (models.SharedEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entryKey{pairingID, movieRef}
	entry, ok := s.entries[key]
	if !ok {
		return models.SharedEntry{}, false, ErrEntryNotFound
	}
	setFlag(&entry, role, false)
	if !entry.AddedByInitiator && !entry.AddedByRecipient {
		delete(s.entries, key)
		return cloneEntry(entry), true, nil
	}
	s.entries[key] = entry
	return cloneEntry(entry), false, nil
}

// SetWatchStatus updates the status, stamping watchedAt on the first move to
// WATCHED. Moving back to WATCHLIST clears watchedAt and both ratings.
func (s *MemoryStore) SetWatchStatus(_ context.Context, pairingID, movieRef string, status models.WatchStatus, at time.Time) (models.SharedEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entryKey{pairingID, movieRef}
	entry, ok := s.entries[key]
	if !ok {
		return models.SharedEntry{}, ErrEntryNotFound
	}
	entry.WatchStatus = status
	switch status {
	case models.WatchStatusWatched:
		if entry.WatchedAt == nil {
			watchedAt := at
			entry.WatchedAt = &watchedAt
		}
	case models.WatchStatusWatchlist:
		entry.WatchedAt = nil
		entry.InitiatorRating = nil
		entry.RecipientRating = nil
	}
	s.entries[key] = entry
	return cloneEntry(entry), nil
}

// SetRating stores role's rating and marks the entry watched.
func (s *MemoryStore) SetRating(_ context.Context, pairingID, movieRef string, role models.Role, rating float64, at time.Time) (models.SharedEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entryKey{pairingID, movieRef}
	entry, ok := s.entries[key]
	if !ok {
		return models.SharedEntry{}, ErrEntryNotFound
	}
	value := rating
	switch role {
	case models.RoleInitiator:
		entry.InitiatorRating = &value
	case models.RoleRecipient:
		entry.RecipientRating = &value
	}
	entry.WatchStatus = models.WatchStatusWatched
	if entry.WatchedAt == nil {
		watchedAt := at
		entry.WatchedAt = &watchedAt
	}
	s.entries[key] = entry
	return cloneEntry(entry), nil
}

func setFlag(entry *models.SharedEntry, role models.Role, value bool) {
	switch role {
	case models.RoleInitiator:
		entry.AddedByInitiator = value
	case models.RoleRecipient:
		entry.AddedByRecipient = value
	}
}

func cloneEntry(entry models.SharedEntry) models.SharedEntry {
	if entry.InitiatorRating != nil {
		v := *entry.InitiatorRating
		entry.InitiatorRating = &v
	}
	if entry.RecipientRating != nil {
		v := *entry.RecipientRating
		entry.RecipientRating = &v
	}
	if entry.WatchedAt != nil {
		v := *entry.WatchedAt
		entry.WatchedAt = &v
	}
	return entry
}

func sortEntries(entries []models.SharedEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].MovieRef < entries[j].MovieRef
	})
}

// NewMemoryDirectory returns an AccountDirectory backed by an in-memory map.
func NewMemoryDirectory(accounts ...models.Account) *MemoryDirectory {
	d := &MemoryDirectory{accounts: make(map[string]models.Account)}
	for _, account := range accounts {
		d.Add(account)
	}
	return d
}

// MemoryDirectory implements AccountDirectory for tests and local development.
type MemoryDirectory struct {
	mu       sync.RWMutex
	accounts map[string]models.Account
}

// Add registers or replaces an account.
func (d *MemoryDirectory) Add(account models.Account) {
	d.mu.Lock()
	d.accounts[account.ID] = account
	d.mu.Unlock()
}

// FindByID looks up an account by id.
func (d *MemoryDirectory) FindByID(_ context.Context, id string) (models.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	account, ok := d.accounts[id]
	if !ok {
		return models.Account{}, ErrAccountNotFound
	}
	return account, nil
}

// FindByIdentifier matches the email case-insensitively or the username exactly.
func (d *MemoryDirectory) FindByIdentifier(_ context.Context, identifier string) (models.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, account := range d.accounts {
		if strings.EqualFold(account.Email, identifier) || account.Username == identifier {
			return account, nil
		}
	}
	return models.Account{}, ErrAccountNotFound
}
