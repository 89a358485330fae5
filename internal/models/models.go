package models

import "time"

// Account represents a registered member of the CoupleMovie platform.
type Account struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PairingStatus is the lifecycle state of a Pairing.
type PairingStatus string

const (
	PairingPending  PairingStatus = "PENDING"
	PairingAccepted PairingStatus = "ACCEPTED"
	PairingBroken   PairingStatus = "BROKEN"
)

// Active reports whether the status still blocks its members from new pairings.
func (s PairingStatus) Active() bool {
	return s == PairingPending || s == PairingAccepted
}

// Pairing links an initiator and a recipient account.
type Pairing struct {
	ID          string        `json:"id"`
	InitiatorID string        `json:"initiatorId"`
	RecipientID string        `json:"recipientId"`
	Status      PairingStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	RespondedAt *time.Time    `json:"respondedAt,omitempty"`
}

// Role describes which side of a pairing an account occupies.
type Role int

const (
	RoleNone Role = iota
	RoleInitiator
	RoleRecipient
)

// RoleOf returns the role accountID plays in the pairing.
func (p Pairing) RoleOf(accountID string) Role {
	switch accountID {
	case "":
		return RoleNone
	case p.InitiatorID:
		return RoleInitiator
	case p.RecipientID:
		return RoleRecipient
	default:
		return RoleNone
	}
}

// PartnerOf returns the other member's id, or "" when accountID is not a member.
func (p Pairing) PartnerOf(accountID string) string {
	switch p.RoleOf(accountID) {
	case RoleInitiator:
		return p.RecipientID
	case RoleRecipient:
		return p.InitiatorID
	default:
		return ""
	}
}

// WatchStatus is the collection-level lifecycle of a shared entry.
type WatchStatus string

const (
	WatchStatusWatchlist WatchStatus = "WATCHLIST"
	WatchStatusWatched   WatchStatus = "WATCHED"
)

// Valid reports whether the status is one of the known values.
func (s WatchStatus) Valid() bool {
	return s == WatchStatusWatchlist || s == WatchStatusWatched
}

// SharedEntry is one movie inside a pairing's shared collection.
type SharedEntry struct {
	PairingID        string      `json:"pairingId"`
	MovieRef         string      `json:"movieRef"`
	AddedByInitiator bool        `json:"addedByInitiator"`
	AddedByRecipient bool        `json:"addedByRecipient"`
	WatchStatus      WatchStatus `json:"watchStatus"`
	InitiatorRating  *float64    `json:"initiatorRating"`
	RecipientRating  *float64    `json:"recipientRating"`
	WatchedAt        *time.Time  `json:"watchedAt"`
	CreatedAt        time.Time   `json:"createdAt"`
}

// AddedBy reports whether the member in role has contributed the entry.
func (e SharedEntry) AddedBy(role Role) bool {
	switch role {
	case RoleInitiator:
		return e.AddedByInitiator
	case RoleRecipient:
		return e.AddedByRecipient
	default:
		return false
	}
}

// RatingBy returns the rating stored for role, if any.
func (e SharedEntry) RatingBy(role Role) *float64 {
	switch role {
	case RoleInitiator:
		return e.InitiatorRating
	case RoleRecipient:
		return e.RecipientRating
	default:
		return nil
	}
}

// Stats summarises a shared collection.
type Stats struct {
	Matches   int `json:"matches"`
	Watchlist int `json:"watchlist"`
	Watched   int `json:"watched"`
}

// SessionTokens groups the bearer credentials issued to authenticated accounts.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// EventType names a pairing or collection change pushed to members.
type EventType string

const (
	EventInviteReceived  EventType = "invite.received"
	EventInviteAccepted  EventType = "invite.accepted"
	EventInviteRejected  EventType = "invite.rejected"
	EventInviteCancelled EventType = "invite.cancelled"
	EventPairingBroken   EventType = "pairing.broken"
	EventMovieAdded      EventType = "movie.added"
	EventMovieRemoved    EventType = "movie.removed"
	EventMatchCreated    EventType = "movie.matched"
	EventStatusChanged   EventType = "movie.status_changed"
	EventMovieRated      EventType = "movie.rated"
)

// Event describes a change that the partner of the acting account should learn about.
type Event struct {
	Type       EventType    `json:"type"`
	PairingID  string       `json:"pairingId"`
	ActorID    string       `json:"actorId"`
	Recipients []string     `json:"recipients"`
	MovieRef   string       `json:"movieRef,omitempty"`
	Entry      *SharedEntry `json:"entry,omitempty"`
	OccurredAt time.Time    `json:"occurredAt"`
}
