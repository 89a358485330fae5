package couples

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couplemovie/backend/internal/models"
)

func TestValidRating(t *testing.T) {
	cases := []struct {
		rating float64
		want   bool
	}{
		{0.5, true},
		{1, true},
		{3.5, true},
		{5, true},
		{0, false},
		{0.25, false},
		{4.75, false},
		{5.5, false},
		{-1, false},
		{math.NaN(), false},
		{math.Inf(1), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ValidRating(tc.rating), "rating %v", tc.rating)
	}
}

func TestRateMarksEntryWatched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pairing := f.pair(t)

	_, err := f.svc.AddMovie(ctx, pairing.ID, f.alice.ID, "tt0111161")
	require.NoError(t, err)

	view, err := f.svc.Rate(ctx, pairing.ID, f.alice.ID, "tt0111161", 4.5)
	require.NoError(t, err)

	assert.Equal(t, models.WatchStatusWatched, view.WatchStatus)
	require.NotNil(t, view.WatchedAt)
	require.NotNil(t, view.InitiatorRating)
	assert.Equal(t, 4.5, *view.InitiatorRating)
	assert.Nil(t, view.RecipientRating)
	assert.Equal(t, 4.5, *view.YourRating)
	assert.Nil(t, view.PartnerRating)
}

func TestRateKeepsFieldsPerMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pairing := f.pair(t)

	_, err := f.svc.AddMovie(ctx, pairing.ID, f.bob.ID, "tt0111161")
	require.NoError(t, err)

	first, err := f.svc.Rate(ctx, pairing.ID, f.bob.ID, "tt0111161", 3)
	require.NoError(t, err)
	watchedAt := *first.WatchedAt

	second, err := f.svc.Rate(ctx, pairing.ID, f.alice.ID, "tt0111161", 5)
	require.NoError(t, err)

	assert.Equal(t, 5.0, *second.InitiatorRating)
	assert.Equal(t, 3.0, *second.RecipientRating)
	assert.Equal(t, 5.0, *second.YourRating)
	assert.Equal(t, 3.0, *second.PartnerRating)
	assert.True(t, watchedAt.Equal(*second.WatchedAt))
}

func TestRateFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pairing := f.pair(t)

	_, err := f.svc.Rate(ctx, pairing.ID, f.alice.ID, "tt0111161", 6)
	assert.ErrorIs(t, err, ErrInvalidRating)

	_, err = f.svc.Rate(ctx, pairing.ID, f.alice.ID, "tt0111161", 0.3)
	assert.ErrorIs(t, err, ErrInvalidRating)

	_, err = f.svc.Rate(ctx, pairing.ID, f.alice.ID, "tt0111161", 4)
	assert.ErrorIs(t, err, ErrEntryNotFound)

	require.NoError(t, f.svc.Break(ctx, pairing.ID, f.bob.ID))
	_, err = f.svc.Rate(ctx, pairing.ID, f.alice.ID, "tt0111161", 4)
	assert.ErrorIs(t, err, ErrNotPaired)
}

func TestMovingBackToWatchlistDropsRatings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pairing := f.pair(t)

	_, err := f.svc.AddMovie(ctx, pairing.ID, f.alice.ID, "tt0111161")
	require.NoError(t, err)
	_, err = f.svc.Rate(ctx, pairing.ID, f.alice.ID, "tt0111161", 2.5)
	require.NoError(t, err)

	view, err := f.svc.UpdateWatchStatus(ctx, pairing.ID, f.bob.ID, "tt0111161", models.WatchStatusWatchlist)
	require.NoError(t, err)
	assert.Nil(t, view.InitiatorRating)
	assert.Nil(t, view.RecipientRating)
	assert.Nil(t, view.WatchedAt)
}

func TestStatsMatchesListTally(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pairing := f.pair(t)

	steps := []func() error{
		func() error { _, err := f.svc.AddMovie(ctx, pairing.ID, f.alice.ID, "m1"); return err },
		func() error { _, err := f.svc.AddMovie(ctx, pairing.ID, f.bob.ID, "m1"); return err },
		func() error { _, err := f.svc.AddMovie(ctx, pairing.ID, f.bob.ID, "m2"); return err },
		func() error { _, err := f.svc.AddMovie(ctx, pairing.ID, f.alice.ID, "m3"); return err },
		func() error { _, err := f.svc.Rate(ctx, pairing.ID, f.alice.ID, "m3", 1.5); return err },
		func() error { return f.svc.RemoveMovie(ctx, pairing.ID, f.bob.ID, "m2") },
		func() error { _, err := f.svc.AddMovie(ctx, pairing.ID, f.alice.ID, "m4"); return err },
		func() error { _, err := f.svc.AddMovie(ctx, pairing.ID, f.bob.ID, "m4"); return err },
		func() error { return f.svc.RemoveMovie(ctx, pairing.ID, f.alice.ID, "m4") },
	}

	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)

		list, err := f.svc.List(ctx, pairing.ID, f.alice.ID)
		require.NoError(t, err)
		stats, err := f.svc.Stats(ctx, pairing.ID, f.bob.ID)
		require.NoError(t, err)

		var want models.Stats
		for _, view := range list {
			if view.IsMatch {
				want.Matches++
			}
			if view.WatchStatus == models.WatchStatusWatched {
				want.Watched++
			} else {
				want.Watchlist++
			}
		}
		assert.Equal(t, want, stats, "step %d", i)
	}
}

func TestCoupleWalkthrough(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pairing, err := f.svc.Invite(ctx, f.alice.ID, "bob123")
	require.NoError(t, err)
	assert.Equal(t, models.PairingPending, pairing.Status)

	pairing, err = f.svc.Accept(ctx, pairing.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PairingAccepted, pairing.Status)

	partner, err := f.svc.Partner(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, f.bob.ID, partner.ID)
	partner, err = f.svc.Partner(ctx, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, f.alice.ID, partner.ID)

	_, err = f.svc.AddMovie(ctx, pairing.ID, f.alice.ID, "m1")
	require.NoError(t, err)
	list, err := f.svc.List(ctx, pairing.ID, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].AddedByInitiator)
	assert.False(t, list[0].AddedByRecipient)
	assert.False(t, list[0].IsMatch)

	view, err := f.svc.AddMovie(ctx, pairing.ID, f.bob.ID, "m1")
	require.NoError(t, err)
	assert.True(t, view.IsMatch)
	stats, err := f.svc.Stats(ctx, pairing.ID, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Matches)

	view, err = f.svc.UpdateWatchStatus(ctx, pairing.ID, f.bob.ID, "m1", models.WatchStatusWatched)
	require.NoError(t, err)
	assert.Equal(t, models.WatchStatusWatched, view.WatchStatus)

	view, err = f.svc.Rate(ctx, pairing.ID, f.alice.ID, "m1", 5)
	require.NoError(t, err)
	assert.Equal(t, 5.0, *view.InitiatorRating)

	stats, err = f.svc.Stats(ctx, pairing.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Stats{Matches: 1, Watchlist: 0, Watched: 1}, stats)

	require.NoError(t, f.svc.Break(ctx, pairing.ID, f.alice.ID))
	_, err = f.svc.List(ctx, pairing.ID, f.bob.ID)
	assert.ErrorIs(t, err, ErrNotPaired)
	_, err = f.svc.Invite(ctx, f.bob.ID, f.carol.Email)
	assert.NoError(t, err)
}
