package couples

import "github.com/couplemovie/backend/internal/models"

// IsMatch reports whether both members have independently added the entry.
// It is derived on every read and never persisted.
func IsMatch(entry models.SharedEntry) bool {
	return entry.AddedByInitiator && entry.AddedByRecipient
}

// EntryView is a shared entry as seen by one member of the pairing.
type EntryView struct {
	models.SharedEntry
	IsMatch       bool     `json:"isMatch"`
	YouAdded      bool     `json:"youAdded"`
	PartnerAdded  bool     `json:"partnerAdded"`
	YourRating    *float64 `json:"yourRating"`
	PartnerRating *float64 `json:"partnerRating"`
}

// ViewOf projects entry from the perspective of role.
func ViewOf(entry models.SharedEntry, role models.Role) EntryView {
	partner := models.RoleRecipient
	if role == models.RoleRecipient {
		partner = models.RoleInitiator
	}
	view := EntryView{
		SharedEntry: entry,
		IsMatch:     IsMatch(entry),
	}
	if role != models.RoleNone {
		view.YouAdded = entry.AddedBy(role)
		view.PartnerAdded = entry.AddedBy(partner)
		view.YourRating = entry.RatingBy(role)
		view.PartnerRating = entry.RatingBy(partner)
	}
	return view
}

// Tally counts matches and watch states across entries.
func Tally(entries []models.SharedEntry) models.Stats {
	var stats models.Stats
	for _, entry := range entries {
		if IsMatch(entry) {
			stats.Matches++
		}
		switch entry.WatchStatus {
		case models.WatchStatusWatchlist:
			stats.Watchlist++
		case models.WatchStatusWatched:
			stats.Watched++
		}
	}
	return stats
}
