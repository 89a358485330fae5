package couples

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/couplemovie/backend/internal/models"
)

func TestIsMatch(t *testing.T) {
	assert.False(t, IsMatch(models.SharedEntry{}))
	assert.False(t, IsMatch(models.SharedEntry{AddedByInitiator: true}))
	assert.False(t, IsMatch(models.SharedEntry{AddedByRecipient: true}))
	assert.True(t, IsMatch(models.SharedEntry{AddedByInitiator: true, AddedByRecipient: true}))
}

func TestViewOfSwapsPerspective(t *testing.T) {
	four, two := 4.0, 2.0
	entry := models.SharedEntry{
		AddedByInitiator: true,
		InitiatorRating:  &four,
		RecipientRating:  &two,
	}

	initiator := ViewOf(entry, models.RoleInitiator)
	assert.True(t, initiator.YouAdded)
	assert.False(t, initiator.PartnerAdded)
	assert.Equal(t, 4.0, *initiator.YourRating)
	assert.Equal(t, 2.0, *initiator.PartnerRating)

	recipient := ViewOf(entry, models.RoleRecipient)
	assert.False(t, recipient.YouAdded)
	assert.True(t, recipient.PartnerAdded)
	assert.Equal(t, 2.0, *recipient.YourRating)
	assert.Equal(t, 4.0, *recipient.PartnerRating)

	outsider := ViewOf(entry, models.RoleNone)
	assert.False(t, outsider.YouAdded)
	assert.Nil(t, outsider.YourRating)
}

func TestTally(t *testing.T) {
	entries := []models.SharedEntry{
		{AddedByInitiator: true, AddedByRecipient: true, WatchStatus: models.WatchStatusWatched},
		{AddedByInitiator: true, WatchStatus: models.WatchStatusWatchlist},
		{AddedByRecipient: true, WatchStatus: models.WatchStatusWatchlist},
		{AddedByInitiator: true, AddedByRecipient: true, WatchStatus: models.WatchStatusWatchlist},
	}
	assert.Equal(t, models.Stats{Matches: 2, Watchlist: 3, Watched: 1}, Tally(entries))
	assert.Equal(t, models.Stats{}, Tally(nil))
}

func TestErrorCodesRoundTrip(t *testing.T) {
	for _, c := range errorCodes {
		assert.Equal(t, c.code, Code(fmt.Errorf("wrapped: %w", c.err)))
		assert.Equal(t, c.err, ErrorForCode(c.code))
	}
	assert.Empty(t, Code(errors.New("boom")))
	assert.Nil(t, ErrorForCode("nope"))
}
