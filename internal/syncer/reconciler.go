package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couplemovie/backend/internal/couples"
	"github.com/couplemovie/backend/internal/logging"
	"github.com/couplemovie/backend/internal/models"
)

// Remote is the authoritative side of the reconciler. Implementations act on
// behalf of a single signed-in account.
type Remote interface {
	Current(ctx context.Context) (models.Pairing, error)
	IncomingInvites(ctx context.Context) ([]models.Pairing, error)
	Invite(ctx context.Context, recipient string) (models.Pairing, error)
	Cancel(ctx context.Context, pairingID string) error
	Accept(ctx context.Context, pairingID string) (models.Pairing, error)
	Reject(ctx context.Context, pairingID string) error
	Break(ctx context.Context, pairingID string) error
	AddMovie(ctx context.Context, pairingID, movieRef string) (couples.EntryView, error)
	RemoveMovie(ctx context.Context, pairingID, movieRef string) error
	UpdateWatchStatus(ctx context.Context, pairingID, movieRef string, status models.WatchStatus) (couples.EntryView, error)
	Rate(ctx context.Context, pairingID, movieRef string, rating float64) (couples.EntryView, error)
	List(ctx context.Context, pairingID string) ([]couples.EntryView, error)
	Entry(ctx context.Context, pairingID, movieRef string) (couples.EntryView, error)
	Stats(ctx context.Context, pairingID string) (models.Stats, error)
}

// Reconciler keeps a local projection of one account's pairing and shared
// collection. Mutations are applied locally first and then sent to the
// remote; failures roll the touched slice back and trigger a resync.
type Reconciler struct {
	remote    Remote
	accountID string
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.RWMutex
	pairing *models.Pairing
	invites []models.Pairing
	order   []string
	entries map[string]models.SharedEntry
	stats   models.Stats

	// acceptedEarly holds acceptances pushed before Invite returned the pairing.
	acceptedEarly map[string]time.Time
}

// New builds an empty, unpaired projection for accountID. Call Load to
// populate it.
func New(remote Remote, accountID string, logger *slog.Logger) *Reconciler {
	if remote == nil {
		panic("syncer: remote must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		remote:    remote,
		accountID: accountID,
		logger:    logger.With("account_id", accountID),
		now:       func() time.Time { return time.Now().UTC() },
		entries:   make(map[string]models.SharedEntry),

		acceptedEarly: make(map[string]time.Time),
	}
}

// Paired reports whether the projection holds an accepted pairing.
func (r *Reconciler) Paired() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pairing != nil && r.pairing.Status == models.PairingAccepted
}

// Pairing returns the account's pending or accepted pairing.
func (r *Reconciler) Pairing() (models.Pairing, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.pairing == nil {
		return models.Pairing{}, false
	}
	return *r.pairing, true
}

// Invites returns the pending invites addressed to the account.
func (r *Reconciler) Invites() []models.Pairing {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.Pairing(nil), r.invites...)
}

// Entries returns the shared collection from the account's perspective, in
// the order the remote reported it with local additions appended.
func (r *Reconciler) Entries() []couples.EntryView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	role := r.roleLocked()
	views := make([]couples.EntryView, 0, len(r.order))
	for _, ref := range r.order {
		views = append(views, couples.ViewOf(r.entries[ref], role))
	}
	return views
}

// Entry returns a single projected entry.
func (r *Reconciler) Entry(movieRef string) (couples.EntryView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[movieRef]
	if !ok {
		return couples.EntryView{}, false
	}
	return couples.ViewOf(entry, r.roleLocked()), true
}

// Stats returns the collection counters.
func (r *Reconciler) Stats() models.Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// Load replaces the projection with the remote's current view.
func (r *Reconciler) Load(ctx context.Context) (err error) {
	ctx, span := logging.StartSpan(logging.WithLogger(ctx, r.logger), "syncer.load")
	defer span.End()
	defer func() { span.Fail(err) }()

	invites, err := r.remote.IncomingInvites(ctx)
	if err != nil {
		return fmt.Errorf("load invites: %w", err)
	}

	current, err := r.remote.Current(ctx)
	switch {
	case err == nil:
	case errors.Is(err, couples.ErrPairingNotFound), errors.Is(err, couples.ErrNotPaired):
		r.mu.Lock()
		r.invites = invites
		clear(r.acceptedEarly)
		r.downgradeLocked()
		r.mu.Unlock()
		return nil
	default:
		return fmt.Errorf("load pairing: %w", err)
	}

	r.mu.Lock()
	r.invites = invites
	clear(r.acceptedEarly)
	r.setPairingLocked(current)
	r.mu.Unlock()

	if current.Status != models.PairingAccepted {
		return nil
	}
	if err := r.Resync(ctx); err != nil && !errors.Is(err, couples.ErrNotPaired) {
		return err
	}
	return nil
}

// Resync reloads the collection and its stats concurrently. A remote that
// reports the pairing inactive downgrades the projection and ErrNotPaired is
// returned.
func (r *Reconciler) Resync(ctx context.Context) (err error) {
	ctx, span := logging.StartSpan(logging.WithLogger(ctx, r.logger), "syncer.resync")
	defer span.End()
	defer func() { span.Fail(err) }()

	pairing, ok := r.Pairing()
	if !ok || pairing.Status != models.PairingAccepted {
		return couples.ErrNotPaired
	}

	var (
		views []couples.EntryView
		stats models.Stats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		views, err = r.remote.List(gctx, pairing.ID)
		return err
	})
	g.Go(func() error {
		var err error
		stats, err = r.remote.Stats(gctx, pairing.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		if inactive(err) {
			r.mu.Lock()
			r.downgradeLocked()
			r.mu.Unlock()
			return couples.ErrNotPaired
		}
		return fmt.Errorf("resync collection: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pairing == nil || r.pairing.ID != pairing.ID {
		return nil
	}
	r.order = make([]string, 0, len(views))
	r.entries = make(map[string]models.SharedEntry, len(views))
	for _, view := range views {
		r.order = append(r.order, view.MovieRef)
		r.entries[view.MovieRef] = view.SharedEntry
	}
	r.stats = stats
	return nil
}

// AddMovie marks movieRef as added by the account.
func (r *Reconciler) AddMovie(ctx context.Context, movieRef string) (couples.EntryView, error) {
	return r.mutateEntry(ctx, "add_movie", movieRef, true,
		func(entry *models.SharedEntry, role models.Role) bool {
			setFlag(entry, role, true)
			return true
		},
		func(ctx context.Context, pairingID string) (couples.EntryView, error) {
			return r.remote.AddMovie(ctx, pairingID, movieRef)
		})
}

// RemoveMovie withdraws the account's contribution to movieRef.
func (r *Reconciler) RemoveMovie(ctx context.Context, movieRef string) error {
	_, err := r.mutateEntry(ctx, "remove_movie", movieRef, false,
		func(entry *models.SharedEntry, role models.Role) bool {
			setFlag(entry, role, false)
			return entry.AddedByInitiator || entry.AddedByRecipient
		},
		func(ctx context.Context, pairingID string) (couples.EntryView, error) {
			return couples.EntryView{}, r.remote.RemoveMovie(ctx, pairingID, movieRef)
		})
	return err
}

// UpdateWatchStatus sets the collection-level watch status of movieRef.
func (r *Reconciler) UpdateWatchStatus(ctx context.Context, movieRef string, status models.WatchStatus) (couples.EntryView, error) {
	if !status.Valid() {
		return couples.EntryView{}, couples.ErrInvalidWatchStatus
	}
	return r.mutateEntry(ctx, "update_watch_status", movieRef, false,
		func(entry *models.SharedEntry, _ models.Role) bool {
			entry.WatchStatus = status
			if status == models.WatchStatusWatched {
				r.stampWatched(entry)
			} else {
				entry.WatchedAt = nil
				entry.InitiatorRating = nil
				entry.RecipientRating = nil
			}
			return true
		},
		func(ctx context.Context, pairingID string) (couples.EntryView, error) {
			return r.remote.UpdateWatchStatus(ctx, pairingID, movieRef, status)
		})
}

// Rate stores the account's rating for movieRef.
func (r *Reconciler) Rate(ctx context.Context, movieRef string, rating float64) (couples.EntryView, error) {
	if !couples.ValidRating(rating) {
		return couples.EntryView{}, couples.ErrInvalidRating
	}
	return r.mutateEntry(ctx, "rate", movieRef, false,
		func(entry *models.SharedEntry, role models.Role) bool {
			value := rating
			if role == models.RoleInitiator {
				entry.InitiatorRating = &value
			} else {
				entry.RecipientRating = &value
			}
			entry.WatchStatus = models.WatchStatusWatched
			r.stampWatched(entry)
			return true
		},
		func(ctx context.Context, pairingID string) (couples.EntryView, error) {
			return r.remote.Rate(ctx, pairingID, movieRef, rating)
		})
}

// Lookup asks the remote whether movieRef is on the shared list and folds
// the answer into the projection. Absent movies report couples.ErrEntryNotFound.
func (r *Reconciler) Lookup(ctx context.Context, movieRef string) (view couples.EntryView, err error) {
	ctx, span := logging.StartSpan(logging.WithLogger(ctx, r.logger), "syncer.lookup", slog.String("movie_ref", movieRef))
	defer span.End()
	defer func() { span.Fail(err) }()

	pairing, ok := r.Pairing()
	if !ok || pairing.Status != models.PairingAccepted {
		return couples.EntryView{}, couples.ErrNotPaired
	}

	view, err = r.remote.Entry(ctx, pairing.ID, movieRef)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pairing == nil || r.pairing.ID != pairing.ID {
		if err != nil {
			return couples.EntryView{}, err
		}
		return view, nil
	}
	switch {
	case err == nil:
		r.putEntryLocked(view.SharedEntry)
	case errors.Is(err, couples.ErrEntryNotFound):
		r.deleteEntryLocked(movieRef)
	case inactive(err):
		r.downgradeLocked()
		return couples.EntryView{}, err
	default:
		return couples.EntryView{}, err
	}
	r.stats = r.tallyLocked()
	if err != nil {
		return couples.EntryView{}, err
	}
	return couples.ViewOf(view.SharedEntry, r.roleLocked()), nil
}

// Invite sends a pairing invite and holds the returned PENDING pairing, so
// the partner's acceptance can be applied when it is pushed.
func (r *Reconciler) Invite(ctx context.Context, recipient string) (pairing models.Pairing, err error) {
	ctx, span := logging.StartSpan(logging.WithLogger(ctx, r.logger), "syncer.invite")
	defer span.End()
	defer func() { span.Fail(err) }()

	if r.Paired() {
		return models.Pairing{}, couples.ErrAlreadyPaired
	}

	pairing, err = r.remote.Invite(ctx, recipient)
	if err != nil {
		r.reload(ctx)
		return models.Pairing{}, err
	}

	r.mu.Lock()
	if at, ok := r.acceptedEarly[pairing.ID]; ok && pairing.Status == models.PairingPending {
		delete(r.acceptedEarly, pairing.ID)
		pairing.Status = models.PairingAccepted
		pairing.RespondedAt = &at
	}
	if r.pairing == nil || r.pairing.ID != pairing.ID || r.pairing.Status == models.PairingPending {
		r.setPairingLocked(pairing)
	}
	r.mu.Unlock()

	if pairing.Status == models.PairingAccepted {
		if err := r.Resync(ctx); err != nil {
			r.logger.WarnContext(ctx, "resync after invite", "pairingId", pairing.ID, "error", err)
		}
	}
	return pairing, nil
}

// Cancel withdraws the account's own pending invite.
func (r *Reconciler) Cancel(ctx context.Context, pairingID string) (err error) {
	ctx, span := logging.StartSpan(logging.WithLogger(ctx, r.logger), "syncer.cancel")
	defer span.End()
	defer func() { span.Fail(err) }()

	saved := r.capturePairing()
	r.mu.Lock()
	if r.pairing != nil && r.pairing.ID == pairingID && r.pairing.Status == models.PairingPending {
		r.downgradeLocked()
	}
	r.mu.Unlock()

	if err := r.remote.Cancel(ctx, pairingID); err != nil {
		r.restorePairing(saved)
		r.reload(ctx)
		return err
	}
	return nil
}

// Accept answers an incoming invite.
func (r *Reconciler) Accept(ctx context.Context, pairingID string) (pairing models.Pairing, err error) {
	ctx, span := logging.StartSpan(logging.WithLogger(ctx, r.logger), "syncer.accept")
	defer span.End()
	defer func() { span.Fail(err) }()

	saved := r.capturePairing()
	r.mu.Lock()
	if invite, ok := r.takeInviteLocked(pairingID); ok {
		invite.Status = models.PairingAccepted
		r.setPairingLocked(invite)
	}
	r.mu.Unlock()

	pairing, err = r.remote.Accept(ctx, pairingID)
	if err != nil {
		r.restorePairing(saved)
		r.reload(ctx)
		return models.Pairing{}, err
	}

	r.mu.Lock()
	r.setPairingLocked(pairing)
	r.mu.Unlock()
	if err := r.Resync(ctx); err != nil {
		r.logger.WarnContext(ctx, "resync after accept", "pairingId", pairingID, "error", err)
	}
	return pairing, nil
}

// Reject declines an incoming invite.
func (r *Reconciler) Reject(ctx context.Context, pairingID string) (err error) {
	ctx, span := logging.StartSpan(logging.WithLogger(ctx, r.logger), "syncer.reject")
	defer span.End()
	defer func() { span.Fail(err) }()

	saved := r.capturePairing()
	r.mu.Lock()
	r.takeInviteLocked(pairingID)
	if r.pairing != nil && r.pairing.ID == pairingID {
		r.downgradeLocked()
	}
	r.mu.Unlock()

	if err := r.remote.Reject(ctx, pairingID); err != nil {
		r.restorePairing(saved)
		r.reload(ctx)
		return err
	}
	return nil
}

// Break ends the accepted pairing and drops the local collection. A remote
// that already considers the pairing over is treated as success.
func (r *Reconciler) Break(ctx context.Context) (err error) {
	ctx, span := logging.StartSpan(logging.WithLogger(ctx, r.logger), "syncer.break")
	defer span.End()
	defer func() { span.Fail(err) }()

	saved := r.capturePairing()
	if saved.pairing == nil || saved.pairing.Status != models.PairingAccepted {
		return couples.ErrNotPaired
	}
	r.mu.Lock()
	r.downgradeLocked()
	r.mu.Unlock()

	err = r.remote.Break(ctx, saved.pairing.ID)
	switch {
	case err == nil, inactive(err), errors.Is(err, couples.ErrInvalidState):
		return nil
	default:
		r.restorePairing(saved)
		r.reload(ctx)
		return err
	}
}

// ApplyEvent merges an event pushed by the server, typically caused by the
// partner.
func (r *Reconciler) ApplyEvent(event models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch event.Type {
	case models.EventInviteReceived:
		for _, invite := range r.invites {
			if invite.ID == event.PairingID {
				return
			}
		}
		r.invites = append(r.invites, models.Pairing{
			ID:          event.PairingID,
			InitiatorID: event.ActorID,
			RecipientID: r.accountID,
			Status:      models.PairingPending,
			CreatedAt:   event.OccurredAt,
		})
		return
	case models.EventInviteCancelled:
		r.takeInviteLocked(event.PairingID)
		return
	}

	if r.pairing == nil || r.pairing.ID != event.PairingID {
		if event.Type == models.EventInviteAccepted {
			r.acceptedEarly[event.PairingID] = event.OccurredAt
		}
		return
	}

	switch event.Type {
	case models.EventInviteAccepted:
		r.pairing.Status = models.PairingAccepted
		respondedAt := event.OccurredAt
		r.pairing.RespondedAt = &respondedAt
	case models.EventInviteRejected, models.EventPairingBroken:
		r.downgradeLocked()
	case models.EventMovieRemoved:
		if event.Entry == nil {
			r.deleteEntryLocked(event.MovieRef)
		} else {
			r.putEntryLocked(*event.Entry)
		}
		r.stats = r.tallyLocked()
	case models.EventMovieAdded, models.EventMatchCreated, models.EventStatusChanged, models.EventMovieRated:
		if event.Entry != nil {
			r.putEntryLocked(*event.Entry)
			r.stats = r.tallyLocked()
		}
	}
}

// Follow applies events until the channel closes or ctx is done.
func (r *Reconciler) Follow(ctx context.Context, events <-chan models.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			r.ApplyEvent(event)
		}
	}
}

type entrySnapshot struct {
	pairingID string
	movieRef  string
	entry     models.SharedEntry
	existed   bool
	index     int

	// applied and kept describe the optimistic state the mutation left behind.
	applied models.SharedEntry
	kept    bool
}

// mutateEntry applies change to the local entry, sends the remote call and
// reconciles. change reports whether the entry should remain in the
// projection. Entries missing locally are only created when create is set;
// otherwise the call goes straight to the remote.
func (r *Reconciler) mutateEntry(
	ctx context.Context,
	name, movieRef string,
	create bool,
	change func(entry *models.SharedEntry, role models.Role) bool,
	send func(ctx context.Context, pairingID string) (couples.EntryView, error),
) (view couples.EntryView, err error) {
	ctx, span := logging.StartSpan(logging.WithLogger(ctx, r.logger), "syncer."+name)
	defer span.End()
	defer func() { span.Fail(err) }()

	if movieRef == "" {
		return couples.EntryView{}, couples.ErrInvalidMovieRef
	}

	r.mu.Lock()
	if r.pairing == nil || r.pairing.Status != models.PairingAccepted {
		r.mu.Unlock()
		return couples.EntryView{}, couples.ErrNotPaired
	}
	role := r.roleLocked()
	if role == models.RoleNone {
		r.mu.Unlock()
		return couples.EntryView{}, couples.ErrNotMember
	}
	snapshot := r.captureEntryLocked(movieRef)
	entry := snapshot.entry
	if !snapshot.existed && create {
		entry = models.SharedEntry{
			PairingID:   snapshot.pairingID,
			MovieRef:    movieRef,
			WatchStatus: models.WatchStatusWatchlist,
			CreatedAt:   r.now(),
		}
	}
	snapshot.applied, snapshot.kept = snapshot.entry, snapshot.existed
	if snapshot.existed || create {
		snapshot.kept = change(&entry, role)
		snapshot.applied = entry
		if snapshot.kept {
			r.putEntryLocked(entry)
		} else {
			r.deleteEntryLocked(movieRef)
		}
		r.stats = r.tallyLocked()
	}
	r.mu.Unlock()

	view, err = send(ctx, snapshot.pairingID)
	if err != nil {
		r.restoreEntry(snapshot)
		if inactive(err) {
			r.mu.Lock()
			r.downgradeLocked()
			r.mu.Unlock()
			return couples.EntryView{}, err
		}
		if rerr := r.Resync(ctx); rerr != nil {
			r.logger.WarnContext(ctx, "resync after failed mutation", "movieRef", movieRef, "error", rerr)
		}
		return couples.EntryView{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pairing == nil || r.pairing.ID != snapshot.pairingID {
		return view, nil
	}
	if view.MovieRef != "" {
		r.putEntryLocked(view.SharedEntry)
		r.stats = r.tallyLocked()
		return couples.ViewOf(view.SharedEntry, r.roleLocked()), nil
	}
	if current, ok := r.entries[movieRef]; ok {
		return couples.ViewOf(current, r.roleLocked()), nil
	}
	return couples.EntryView{}, nil
}

func (r *Reconciler) captureEntryLocked(movieRef string) entrySnapshot {
	snapshot := entrySnapshot{pairingID: r.pairing.ID, movieRef: movieRef, index: -1}
	snapshot.entry, snapshot.existed = r.entries[movieRef]
	for i, ref := range r.order {
		if ref == movieRef {
			snapshot.index = i
			break
		}
	}
	return snapshot
}

func (r *Reconciler) restoreEntry(snapshot entrySnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pairing == nil || r.pairing.ID != snapshot.pairingID {
		return
	}
	// A pushed event or a later mutation replaced the optimistic value; leave
	// it for the resync instead of rewinding past it.
	current, present := r.entries[snapshot.movieRef]
	if present != snapshot.kept || (present && !sameEntry(current, snapshot.applied)) {
		return
	}
	r.deleteEntryLocked(snapshot.movieRef)
	if snapshot.existed {
		r.entries[snapshot.movieRef] = snapshot.entry
		index := snapshot.index
		if index < 0 || index > len(r.order) {
			index = len(r.order)
		}
		r.order = append(r.order, "")
		copy(r.order[index+1:], r.order[index:])
		r.order[index] = snapshot.movieRef
	}
	r.stats = r.tallyLocked()
}

type pairingSnapshot struct {
	pairing *models.Pairing
	invites []models.Pairing
	order   []string
	entries map[string]models.SharedEntry
	stats   models.Stats
}

func (r *Reconciler) capturePairing() pairingSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snapshot := pairingSnapshot{
		invites: append([]models.Pairing(nil), r.invites...),
		order:   append([]string(nil), r.order...),
		entries: make(map[string]models.SharedEntry, len(r.entries)),
		stats:   r.stats,
	}
	if r.pairing != nil {
		pairing := *r.pairing
		snapshot.pairing = &pairing
	}
	for ref, entry := range r.entries {
		snapshot.entries[ref] = entry
	}
	return snapshot
}

func (r *Reconciler) restorePairing(snapshot pairingSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairing = snapshot.pairing
	r.invites = snapshot.invites
	r.order = snapshot.order
	r.entries = snapshot.entries
	r.stats = snapshot.stats
}

// reload runs after a failed pairing mutation. Errors are logged because the
// caller already has the original failure to report.
func (r *Reconciler) reload(ctx context.Context) {
	if err := r.Load(ctx); err != nil {
		r.logger.WarnContext(ctx, "reload after failed mutation", "error", err)
	}
}

func (r *Reconciler) setPairingLocked(pairing models.Pairing) {
	if r.pairing == nil || r.pairing.ID != pairing.ID {
		r.order = nil
		r.entries = make(map[string]models.SharedEntry)
		r.stats = models.Stats{}
	}
	r.pairing = &pairing
}

func (r *Reconciler) downgradeLocked() {
	r.pairing = nil
	r.order = nil
	r.entries = make(map[string]models.SharedEntry)
	r.stats = models.Stats{}
}

func (r *Reconciler) takeInviteLocked(pairingID string) (models.Pairing, bool) {
	for i, invite := range r.invites {
		if invite.ID == pairingID {
			r.invites = append(r.invites[:i:i], r.invites[i+1:]...)
			return invite, true
		}
	}
	return models.Pairing{}, false
}

func (r *Reconciler) putEntryLocked(entry models.SharedEntry) {
	if _, ok := r.entries[entry.MovieRef]; !ok {
		r.order = append(r.order, entry.MovieRef)
	}
	r.entries[entry.MovieRef] = entry
}

func (r *Reconciler) deleteEntryLocked(movieRef string) {
	if _, ok := r.entries[movieRef]; !ok {
		return
	}
	delete(r.entries, movieRef)
	for i, ref := range r.order {
		if ref == movieRef {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Reconciler) roleLocked() models.Role {
	if r.pairing == nil {
		return models.RoleNone
	}
	return r.pairing.RoleOf(r.accountID)
}

func (r *Reconciler) tallyLocked() models.Stats {
	entries := make([]models.SharedEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	return couples.Tally(entries)
}

func (r *Reconciler) stampWatched(entry *models.SharedEntry) {
	if entry.WatchedAt == nil {
		at := r.now()
		entry.WatchedAt = &at
	}
}

func sameEntry(a, b models.SharedEntry) bool {
	return a.PairingID == b.PairingID &&
		a.MovieRef == b.MovieRef &&
		a.AddedByInitiator == b.AddedByInitiator &&
		a.AddedByRecipient == b.AddedByRecipient &&
		a.WatchStatus == b.WatchStatus &&
		sameValue(a.InitiatorRating, b.InitiatorRating) &&
		sameValue(a.RecipientRating, b.RecipientRating) &&
		sameTime(a.WatchedAt, b.WatchedAt) &&
		a.CreatedAt.Equal(b.CreatedAt)
}

func sameValue(a, b *float64) bool {
	return a == b || (a != nil && b != nil && *a == *b)
}

func sameTime(a, b *time.Time) bool {
	return a == b || (a != nil && b != nil && a.Equal(*b))
}

func setFlag(entry *models.SharedEntry, role models.Role, value bool) {
	switch role {
	case models.RoleInitiator:
		entry.AddedByInitiator = value
	case models.RoleRecipient:
		entry.AddedByRecipient = value
	}
}

// inactive reports whether err means the pairing is no longer accepted.
func inactive(err error) bool {
	return errors.Is(err, couples.ErrNotPaired) || errors.Is(err, couples.ErrPairingNotFound)
}
