package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/couplemovie/backend/internal/couples"
	"github.com/couplemovie/backend/internal/logging"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps domain errors onto HTTP statuses. Anything unknown is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, couples.ErrSelfInvite),
		errors.Is(err, couples.ErrInvalidRating),
		errors.Is(err, couples.ErrInvalidWatchStatus),
		errors.Is(err, couples.ErrInvalidMovieRef):
		return http.StatusBadRequest
	case errors.Is(err, couples.ErrNotRecipient),
		errors.Is(err, couples.ErrNotInitiator),
		errors.Is(err, couples.ErrNotMember):
		return http.StatusForbidden
	case errors.Is(err, couples.ErrUnknownRecipient),
		errors.Is(err, couples.ErrPairingNotFound),
		errors.Is(err, couples.ErrEntryNotFound),
		errors.Is(err, couples.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, couples.ErrAlreadyPaired),
		errors.Is(err, couples.ErrInvalidState),
		errors.Is(err, couples.ErrNotPaired):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.FromContext(ctx).Error("unexpected error", "error", err)
		respondJSON(ctx, w, status, errorResponse{Error: "internal server error", Code: "internal"})
		return
	}
	respondJSON(ctx, w, status, errorResponse{Error: err.Error(), Code: couples.Code(err)})
}

func respondBadRequest(ctx context.Context, w http.ResponseWriter, message string) {
	respondJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: message, Code: "bad_request"})
}

func respondUnauthorized(ctx context.Context, w http.ResponseWriter, message string) {
	respondJSON(ctx, w, http.StatusUnauthorized, errorResponse{Error: message, Code: "unauthorized"})
}

func respondConflict(ctx context.Context, w http.ResponseWriter) {
	respondJSON(ctx, w, http.StatusConflict, errorResponse{Error: "account already exists", Code: "conflict"})
}

func respondInternal(ctx context.Context, w http.ResponseWriter, message string) {
	respondJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: message, Code: "internal"})
}

// respondJSON writes payload with status. Error statuses are logged at a level
// matching their class.
func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	logger := logging.FromContext(ctx)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("encode response body", "status", status, "error", err)
		return
	}
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Debug("request returned client error", "status", status, "response", payload)
	}
}
