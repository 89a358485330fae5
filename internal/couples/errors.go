package couples

import "errors"

// Domain errors surfaced to members. All of them are recoverable.
var (
	// ErrAlreadyPaired indicates one of the accounts already has a pending or accepted pairing.
	ErrAlreadyPaired = errors.New("account already has an active pairing")
	// ErrSelfInvite indicates the recipient resolved to the initiator.
	ErrSelfInvite = errors.New("cannot invite yourself")
	// ErrUnknownRecipient indicates the recipient identifier does not resolve to an account.
	ErrUnknownRecipient = errors.New("recipient not found")
	// ErrNotRecipient indicates only the invited account may perform the action.
	ErrNotRecipient = errors.New("only the invited account can respond to this invite")
	// ErrNotInitiator indicates only the inviting account may perform the action.
	ErrNotInitiator = errors.New("only the inviting account can cancel this invite")
	// ErrNotMember indicates the acting account does not belong to the pairing.
	ErrNotMember = errors.New("account is not a member of this pairing")
	// ErrInvalidState indicates the pairing is not in a state that allows the transition.
	ErrInvalidState = errors.New("pairing is not in a valid state for this action")
	// ErrNotPaired indicates the pairing is not accepted (or no longer exists).
	ErrNotPaired = errors.New("pairing is not active")
	// ErrInvalidRating indicates the rating is not a half step between 0.5 and 5.
	ErrInvalidRating = errors.New("rating must be a half step between 0.5 and 5")
	// ErrInvalidWatchStatus indicates an unknown watch status.
	ErrInvalidWatchStatus = errors.New("watch status must be WATCHLIST or WATCHED")
	// ErrInvalidMovieRef indicates an empty movie reference.
	ErrInvalidMovieRef = errors.New("movie reference is required")
)

// Store contract errors returned by PairingStore, EntryStore and AccountDirectory implementations.
var (
	// ErrAccountNotFound indicates no account matched the lookup.
	ErrAccountNotFound = errors.New("account not found")
	// ErrPairingNotFound indicates the pairing id is unknown.
	ErrPairingNotFound = errors.New("pairing not found")
	// ErrEntryNotFound indicates the movie is not part of the shared collection.
	ErrEntryNotFound = errors.New("movie not found in shared collection")
	// ErrActivePairingExists indicates a create would give an account a second active pairing.
	ErrActivePairingExists = errors.New("active pairing exists")
	// ErrStaleTransition indicates the pairing was no longer in the expected status.
	ErrStaleTransition = errors.New("pairing status changed concurrently")
)
