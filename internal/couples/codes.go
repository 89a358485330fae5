package couples

import "errors"

// Stable machine-readable codes for the domain errors. Clients switch on
// these instead of on messages.
var errorCodes = []struct {
	err  error
	code string
}{
	{ErrAlreadyPaired, "already_paired"},
	{ErrSelfInvite, "self_invite"},
	{ErrUnknownRecipient, "unknown_recipient"},
	{ErrNotRecipient, "not_recipient"},
	{ErrNotInitiator, "not_initiator"},
	{ErrNotMember, "not_member"},
	{ErrInvalidState, "invalid_state"},
	{ErrNotPaired, "not_paired"},
	{ErrInvalidRating, "invalid_rating"},
	{ErrInvalidWatchStatus, "invalid_watch_status"},
	{ErrInvalidMovieRef, "invalid_movie_ref"},
	{ErrPairingNotFound, "pairing_not_found"},
	{ErrEntryNotFound, "entry_not_found"},
	{ErrAccountNotFound, "account_not_found"},
}

// Code returns the code of the first domain error in err's chain, or "".
func Code(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}

// ErrorForCode maps a code back to its sentinel error, or nil when unknown.
func ErrorForCode(code string) error {
	for _, c := range errorCodes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}
