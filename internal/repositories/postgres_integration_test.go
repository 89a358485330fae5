package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couplemovie/backend/internal/auth"
	"github.com/couplemovie/backend/internal/couples"
	"github.com/couplemovie/backend/internal/models"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

func TestPostgresAccountRepository_CreateFindAndUpdate(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresAccountRepository(testPool)

	account := models.Account{
		ID:        uuid.NewString(),
		Email:     "Alice@Example.com",
		Username:  "alice",
		Password:  "secret-hash",
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	if err := repo.Create(ctx, account); err != nil {
		t.Fatalf("create account: %v", err)
	}

	dup := account
	dup.ID = uuid.NewString()
	dup.Username = "alice2"
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict when creating duplicate email, got %v", err)
	}

	byEmail, err := repo.FindByIdentifier(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("find by email identifier: %v", err)
	}
	if byEmail.ID != account.ID || byEmail.Email != "alice@example.com" {
		t.Fatalf("unexpected account fetched by email: %+v", byEmail)
	}

	byUsername, err := repo.FindByIdentifier(ctx, "alice")
	if err != nil {
		t.Fatalf("find by username identifier: %v", err)
	}
	if byUsername.ID != account.ID {
		t.Fatalf("unexpected account fetched by username: %+v", byUsername)
	}

	updated := byEmail
	updated.Email = "updated@example.com"
	updated.Password = "rotated-hash"
	updated.UpdatedAt = time.Now().UTC().Add(time.Minute)
	if err := repo.Update(ctx, updated); err != nil {
		t.Fatalf("update account: %v", err)
	}

	fetched, err := repo.FindByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if fetched.Email != updated.Email || fetched.Password != updated.Password {
		t.Fatalf("expected updated fields to persist, got %+v", fetched)
	}

	if _, err := repo.FindByID(ctx, "not-a-uuid"); !errors.Is(err, couples.ErrAccountNotFound) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected account not found for malformed id, got %v", err)
	}

	missing := models.Account{ID: uuid.NewString(), Email: "missing@example.com", Username: "missing", UpdatedAt: time.Now().UTC()}
	if err := repo.Update(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating missing account, got %v", err)
	}
}

func TestPostgresSessionStore_SaveFindAndDelete(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	account := createTestAccount(t, NewPostgresAccountRepository(testPool), "owner")

	store := NewPostgresSessionStore(testPool)
	expires := time.Now().UTC().Add(24 * time.Hour)
	session := auth.Session{
		TokenHash: auth.HashToken(uuid.NewString()),
		AccountID: account.ID,
		ExpiresAt: expires,
	}

	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("save session: %v", err)
	}

	loaded, err := store.Find(ctx, session.TokenHash)
	if err != nil {
		t.Fatalf("find session: %v", err)
	}
	if loaded.AccountID != session.AccountID || !timesClose(loaded.ExpiresAt, expires, time.Millisecond) {
		t.Fatalf("unexpected session loaded: %+v", loaded)
	}

	stale := auth.Session{TokenHash: auth.HashToken(uuid.NewString()), AccountID: account.ID, ExpiresAt: time.Now().UTC().Add(-time.Hour)}
	if err := store.Save(ctx, stale); err != nil {
		t.Fatalf("save stale session: %v", err)
	}
	removed, err := store.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 expired session removed, got %d", removed)
	}

	if err := store.Delete(ctx, session.TokenHash); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := store.Find(ctx, session.TokenHash); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, session.TokenHash); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound deleting twice, got %v", err)
	}
}

func TestPostgresPairingRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	accounts := NewPostgresAccountRepository(testPool)
	alex := createTestAccount(t, accounts, "alex")
	sam := createTestAccount(t, accounts, "sam")
	jordan := createTestAccount(t, accounts, "jordan")

	repo := NewPostgresPairingRepository(testPool)

	pending := models.Pairing{
		ID:          uuid.NewString(),
		InitiatorID: alex.ID,
		RecipientID: sam.ID,
		Status:      models.PairingPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := repo.CreatePairing(ctx, pending); err != nil {
		t.Fatalf("create pairing: %v", err)
	}

	second := models.Pairing{
		ID:          uuid.NewString(),
		InitiatorID: jordan.ID,
		RecipientID: alex.ID,
		Status:      models.PairingPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := repo.CreatePairing(ctx, second); !errors.Is(err, couples.ErrActivePairingExists) {
		t.Fatalf("expected ErrActivePairingExists for busy recipient, got %v", err)
	}

	incoming, err := repo.ListIncoming(ctx, sam.ID)
	if err != nil {
		t.Fatalf("list incoming: %v", err)
	}
	if len(incoming) != 1 || incoming[0].ID != pending.ID {
		t.Fatalf("unexpected incoming invites: %+v", incoming)
	}

	accepted, err := repo.TransitionPairing(ctx, pending.ID, models.PairingPending, models.PairingAccepted, time.Now().UTC())
	if err != nil {
		t.Fatalf("accept pairing: %v", err)
	}
	if accepted.Status != models.PairingAccepted || accepted.RespondedAt == nil {
		t.Fatalf("unexpected accepted pairing: %+v", accepted)
	}

	if _, err := repo.TransitionPairing(ctx, pending.ID, models.PairingPending, models.PairingBroken, time.Now().UTC()); !errors.Is(err, couples.ErrStaleTransition) {
		t.Fatalf("expected ErrStaleTransition, got %v", err)
	}
	if _, err := repo.TransitionPairing(ctx, uuid.NewString(), models.PairingPending, models.PairingAccepted, time.Now().UTC()); !errors.Is(err, couples.ErrPairingNotFound) {
		t.Fatalf("expected ErrPairingNotFound, got %v", err)
	}

	active, err := repo.ActivePairingFor(ctx, sam.ID)
	if err != nil {
		t.Fatalf("active pairing: %v", err)
	}
	if active.ID != pending.ID {
		t.Fatalf("expected active pairing %s, got %s", pending.ID, active.ID)
	}

	entries := NewPostgresEntryRepository(testPool)
	if _, err := entries.MarkAdded(ctx, pending.ID, "tt0133093", models.RoleInitiator, time.Now().UTC()); err != nil {
		t.Fatalf("mark added: %v", err)
	}

	broken, removed, err := repo.BreakPairing(ctx, pending.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("break pairing: %v", err)
	}
	if broken.Status != models.PairingBroken || len(removed) != 1 || removed[0].MovieRef != "tt0133093" {
		t.Fatalf("unexpected break result: %+v %+v", broken, removed)
	}

	left, err := entries.ListEntries(ctx, pending.ID)
	if err != nil {
		t.Fatalf("list entries after break: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("expected collection to be empty after break, got %d entries", len(left))
	}
	if _, err := entries.MarkAdded(ctx, pending.ID, "tt0133093", models.RoleRecipient, time.Now().UTC()); !errors.Is(err, couples.ErrNotPaired) {
		t.Fatalf("expected ErrNotPaired adding to a broken pairing, got %v", err)
	}
	if left, err := entries.ListEntries(ctx, pending.ID); err != nil || len(left) != 0 {
		t.Fatalf("expected no entry written for a broken pairing, got %d entries (%v)", len(left), err)
	}

	if _, _, err := repo.BreakPairing(ctx, pending.ID, time.Now().UTC()); !errors.Is(err, couples.ErrStaleTransition) {
		t.Fatalf("expected ErrStaleTransition breaking twice, got %v", err)
	}
	if _, err := repo.ActivePairingFor(ctx, sam.ID); !errors.Is(err, couples.ErrPairingNotFound) {
		t.Fatalf("expected no active pairing after break, got %v", err)
	}

	if err := repo.CreatePairing(ctx, second); err != nil {
		t.Fatalf("expected new pairing after break to succeed, got %v", err)
	}
}

func TestPostgresPairingRepository_ConcurrentInvites(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	accounts := NewPostgresAccountRepository(testPool)
	target := createTestAccount(t, accounts, "target")
	var inviters []models.Account
	for i := 0; i < 4; i++ {
		inviters = append(inviters, createTestAccount(t, accounts, fmt.Sprintf("inviter%d", i)))
	}

	repo := NewPostgresPairingRepository(testPool)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for _, inviter := range inviters {
		wg.Add(1)
		go func(inviter models.Account) {
			defer wg.Done()
			err := repo.CreatePairing(ctx, models.Pairing{
				ID:          uuid.NewString(),
				InitiatorID: inviter.ID,
				RecipientID: target.ID,
				Status:      models.PairingPending,
				CreatedAt:   time.Now().UTC(),
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, couples.ErrActivePairingExists) {
				t.Errorf("unexpected create error: %v", err)
			}
		}(inviter)
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("expected exactly one pending invite for the target, got %d", succeeded)
	}
}

func TestPostgresEntryRepository_FieldLevelWrites(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	accounts := NewPostgresAccountRepository(testPool)
	pairing := createAcceptedPairing(t, NewPostgresPairingRepository(testPool), createTestAccount(t, accounts, "alex"), createTestAccount(t, accounts, "sam"))

	repo := NewPostgresEntryRepository(testPool)
	base := time.Now().UTC().Truncate(time.Millisecond)

	entry, err := repo.MarkAdded(ctx, pairing.ID, "tt0816692", models.RoleInitiator, base)
	if err != nil {
		t.Fatalf("mark added by initiator: %v", err)
	}
	if !entry.AddedByInitiator || entry.AddedByRecipient || entry.WatchStatus != models.WatchStatusWatchlist {
		t.Fatalf("unexpected new entry: %+v", entry)
	}

	if _, err := repo.MarkAdded(ctx, pairing.ID, "tt0245429", models.RoleRecipient, base.Add(time.Second)); err != nil {
		t.Fatalf("mark second movie: %v", err)
	}

	entry, err = repo.MarkAdded(ctx, pairing.ID, "tt0816692", models.RoleRecipient, base.Add(2*time.Second))
	if err != nil {
		t.Fatalf("mark added by recipient: %v", err)
	}
	if !entry.AddedByInitiator || !entry.AddedByRecipient || !entry.CreatedAt.Equal(base) {
		t.Fatalf("expected both flags and original created_at, got %+v", entry)
	}

	entry, err = repo.SetRating(ctx, pairing.ID, "tt0816692", models.RoleRecipient, 4.5, base.Add(3*time.Second))
	if err != nil {
		t.Fatalf("set rating: %v", err)
	}
	if entry.WatchStatus != models.WatchStatusWatched || entry.RecipientRating == nil || *entry.RecipientRating != 4.5 || entry.InitiatorRating != nil {
		t.Fatalf("unexpected rated entry: %+v", entry)
	}
	if entry.WatchedAt == nil || !timesClose(*entry.WatchedAt, base.Add(3*time.Second), time.Millisecond) {
		t.Fatalf("expected watched_at to be stamped, got %+v", entry.WatchedAt)
	}

	entry, err = repo.SetWatchStatus(ctx, pairing.ID, "tt0816692", models.WatchStatusWatched, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("set watched again: %v", err)
	}
	if !timesClose(*entry.WatchedAt, base.Add(3*time.Second), time.Millisecond) {
		t.Fatalf("expected watched_at to be preserved, got %v", entry.WatchedAt)
	}

	entry, err = repo.SetWatchStatus(ctx, pairing.ID, "tt0816692", models.WatchStatusWatchlist, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("set watchlist: %v", err)
	}
	if entry.WatchedAt != nil || entry.RecipientRating != nil {
		t.Fatalf("expected watchlist move to clear watched_at and ratings, got %+v", entry)
	}

	listed, err := repo.ListEntries(ctx, pairing.ID)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(listed) != 2 || listed[0].MovieRef != "tt0816692" || listed[1].MovieRef != "tt0245429" {
		t.Fatalf("unexpected entry order: %+v", listed)
	}

	entry, deleted, err := repo.ClearAdded(ctx, pairing.ID, "tt0816692", models.RoleInitiator)
	if err != nil {
		t.Fatalf("clear initiator flag: %v", err)
	}
	if deleted || entry.AddedByInitiator || !entry.AddedByRecipient {
		t.Fatalf("expected entry to survive with recipient flag, got %+v deleted=%v", entry, deleted)
	}

	if _, deleted, err = repo.ClearAdded(ctx, pairing.ID, "tt0816692", models.RoleRecipient); err != nil || !deleted {
		t.Fatalf("expected entry to be deleted, got deleted=%v err=%v", deleted, err)
	}

	if _, err := repo.GetEntry(ctx, pairing.ID, "tt0816692"); !errors.Is(err, couples.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
	if _, _, err := repo.ClearAdded(ctx, pairing.ID, "tt0816692", models.RoleRecipient); !errors.Is(err, couples.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound clearing a missing entry, got %v", err)
	}
	if _, err := repo.SetRating(ctx, pairing.ID, "missing", models.RoleInitiator, 3, base); !errors.Is(err, couples.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound rating a missing entry, got %v", err)
	}
}

func TestPostgresEntryRepository_ConcurrentAddsKeepBothFlags(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	accounts := NewPostgresAccountRepository(testPool)
	pairing := createAcceptedPairing(t, NewPostgresPairingRepository(testPool), createTestAccount(t, accounts, "alex"), createTestAccount(t, accounts, "sam"))

	repo := NewPostgresEntryRepository(testPool)

	var wg sync.WaitGroup
	for _, role := range []models.Role{models.RoleInitiator, models.RoleRecipient} {
		wg.Add(1)
		go func(role models.Role) {
			defer wg.Done()
			if _, err := repo.MarkAdded(ctx, pairing.ID, "tt1375666", role, time.Now().UTC()); err != nil {
				t.Errorf("mark added by %v: %v", role, err)
			}
		}(role)
	}
	wg.Wait()

	entry, err := repo.GetEntry(ctx, pairing.ID, "tt1375666")
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if !entry.AddedByInitiator || !entry.AddedByRecipient {
		t.Fatalf("expected both flags after concurrent adds, got %+v", entry)
	}
}

func TestPostgresStores_DriveService(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	accounts := NewPostgresAccountRepository(testPool)
	alex := createTestAccount(t, accounts, "alex")
	sam := createTestAccount(t, accounts, "sam")

	svc := couples.NewService(accounts, NewPostgresPairingRepository(testPool), NewPostgresEntryRepository(testPool))

	pairing, err := svc.Invite(ctx, alex.ID, "SAM@example.com")
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if _, err := svc.Accept(ctx, pairing.ID, sam.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if _, err := svc.AddMovie(ctx, pairing.ID, alex.ID, "tt0133093"); err != nil {
		t.Fatalf("add by alex: %v", err)
	}
	view, err := svc.AddMovie(ctx, pairing.ID, sam.ID, "tt0133093")
	if err != nil {
		t.Fatalf("add by sam: %v", err)
	}
	if !view.IsMatch {
		t.Fatalf("expected match after both members added, got %+v", view)
	}

	stats, err := svc.Stats(ctx, pairing.ID, alex.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Matches != 1 || stats.Watchlist != 1 || stats.Watched != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir := filepath.Join("..", "..", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(migrationsDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func resetDatabase(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE shared_entries, pairings, sessions, accounts CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func createTestAccount(t *testing.T, repo *PostgresAccountRepository, username string) models.Account {
	t.Helper()
	account := models.Account{
		ID:        uuid.NewString(),
		Email:     username + "@example.com",
		Username:  username,
		Password:  "password-hash",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), account); err != nil {
		t.Fatalf("create test account: %v", err)
	}
	return account
}

func createAcceptedPairing(t *testing.T, repo *PostgresPairingRepository, initiator, recipient models.Account) models.Pairing {
	t.Helper()
	ctx := context.Background()
	pairing := models.Pairing{
		ID:          uuid.NewString(),
		InitiatorID: initiator.ID,
		RecipientID: recipient.ID,
		Status:      models.PairingPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := repo.CreatePairing(ctx, pairing); err != nil {
		t.Fatalf("create pairing: %v", err)
	}
	accepted, err := repo.TransitionPairing(ctx, pairing.ID, models.PairingPending, models.PairingAccepted, time.Now().UTC())
	if err != nil {
		t.Fatalf("accept pairing: %v", err)
	}
	return accepted
}

func timesClose(a, b time.Time, delta time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= delta
}
