package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/couplemovie/backend/internal/catalog"
	"github.com/couplemovie/backend/internal/couples"
	"github.com/couplemovie/backend/internal/logging"
	"github.com/couplemovie/backend/internal/models"
)

const maxBodyBytes = 1 << 16

// CoupleHandler exposes pairing and shared collection endpoints. Every route
// expects the authenticated account on the request context.
type CoupleHandler struct {
	Couples       CoupleService
	Catalog       catalog.Provider
	InviteLimiter RateLimiter
}

type pairingResponse struct {
	Pairing *models.Pairing `json:"pairing"`
	Partner *models.Account `json:"partner,omitempty"`
}

type movieResponse struct {
	couples.EntryView
	Metadata *catalog.Metadata `json:"metadata,omitempty"`
}

type inviteRequest struct {
	Recipient string `json:"recipient"`
}

type addMovieRequest struct {
	MovieRef string `json:"movieRef"`
}

type watchStatusRequest struct {
	WatchStatus models.WatchStatus `json:"watchStatus"`
}

type ratingRequest struct {
	Rating *float64 `json:"rating"`
}

// Current handles GET /api/v1/couple.
func (h CoupleHandler) Current(w http.ResponseWriter, r *http.Request) {
	ctx, accountID, ok := h.begin(w, r)
	if !ok {
		return
	}

	pairing, err := h.Couples.Current(ctx, accountID)
	if errors.Is(err, couples.ErrPairingNotFound) {
		respondJSON(ctx, w, http.StatusOK, pairingResponse{})
		return
	}
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	partner, err := h.Couples.Partner(ctx, accountID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, pairingResponse{Pairing: &pairing, Partner: partner})
}

// Invite handles POST /api/v1/couple/invite.
func (h CoupleHandler) Invite(w http.ResponseWriter, r *http.Request) {
	ctx, accountID, ok := h.begin(w, r)
	if !ok {
		return
	}

	if !allowAccount(w, h.InviteLimiter, accountID, "invite") {
		respondRateLimited(ctx, w, "too many invites, try again later")
		return
	}

	var req inviteRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Recipient) == "" {
		respondBadRequest(ctx, w, "recipient is required")
		return
	}

	pairing, err := h.Couples.Invite(ctx, accountID, req.Recipient)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, pairingResponse{Pairing: &pairing})
}

// Invites handles GET /api/v1/couple/invites.
func (h CoupleHandler) Invites(w http.ResponseWriter, r *http.Request) {
	ctx, accountID, ok := h.begin(w, r)
	if !ok {
		return
	}

	invites, err := h.Couples.IncomingInvites(ctx, accountID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string][]models.Pairing{"invites": invites})
}

// Accept handles POST /api/v1/couple/{id}/accept.
func (h CoupleHandler) Accept(w http.ResponseWriter, r *http.Request) {
	ctx, accountID, ok := h.begin(w, r)
	if !ok {
		return
	}

	pairing, err := h.Couples.Accept(ctx, r.PathValue("id"), accountID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, pairingResponse{Pairing: &pairing})
}

// Reject handles POST /api/v1/couple/{id}/reject.
func (h CoupleHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.noContent(w, r, CoupleService.Reject)
}

// Cancel handles POST /api/v1/couple/{id}/cancel.
func (h CoupleHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.noContent(w, r, CoupleService.Cancel)
}

// Break handles POST /api/v1/couple/{id}/break.
func (h CoupleHandler) Break(w http.ResponseWriter, r *http.Request) {
	h.noContent(w, r, CoupleService.Break)
}

// Movies handles GET /api/v1/couple/{id}/movies.
func (h CoupleHandler) Movies(w http.ResponseWriter, r *http.Request) {
	ctx, accountID, ok := h.begin(w, r)
	if !ok {
		return
	}

	views, err := h.Couples.List(ctx, r.PathValue("id"), accountID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string][]movieResponse{"movies": h.enrich(ctx, views...)})
}

// AddMovie handles POST /api/v1/couple/{id}/movies.
func (h CoupleHandler) AddMovie(w http.ResponseWriter, r *http.Request) {
	ctx, accountID, ok := h.begin(w, r)
	if !ok {
		return
	}

	var req addMovieRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}

	view, err := h.Couples.AddMovie(ctx, r.PathValue("id"), accountID, req.MovieRef)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]movieResponse{"movie": h.enrich(ctx, view)[0]})
}

// Movie handles GET /api/v1/couple/{id}/movies/{ref}: whether one movie is on
// the shared list and whether it is a match.
func (h CoupleHandler) Movie(w http.ResponseWriter, r *http.Request) {
	ctx, accountID, ok := h.begin(w, r)
	if !ok {
		return
	}

	view, err := h.Couples.Entry(ctx, r.PathValue("id"), accountID, r.PathValue("ref"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]movieResponse{"movie": h.enrich(ctx, view)[0]})
}

// RemoveMovie handles DELETE /api/v1/couple/{id}/movies/{ref}.
func (h CoupleHandler) RemoveMovie(w http.ResponseWriter, r *http.Request) {
	ctx, accountID, ok := h.begin(w, r)
	if !ok {
		return
	}

	if err := h.Couples.RemoveMovie(ctx, r.PathValue("id"), accountID, r.PathValue("ref")); err != nil {
		respondError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateWatchStatus handles PUT /api/v1/couple/{id}/movies/{ref}/status.
func (h CoupleHandler) UpdateWatchStatus(w http.ResponseWriter, r *http.Request) {
	ctx, accountID, ok := h.begin(w, r)
	if !ok {
		return
	}

	var req watchStatusRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}

	view, err := h.Couples.UpdateWatchStatus(ctx, r.PathValue("id"), accountID, r.PathValue("ref"), req.WatchStatus)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]movieResponse{"movie": h.enrich(ctx, view)[0]})
}

// Rate handles PUT /api/v1/couple/{id}/movies/{ref}/rating.
func (h CoupleHandler) Rate(w http.ResponseWriter, r *http.Request) {
	ctx, accountID, ok := h.begin(w, r)
	if !ok {
		return
	}

	var req ratingRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	if req.Rating == nil {
		respondBadRequest(ctx, w, "rating is required")
		return
	}

	view, err := h.Couples.Rate(ctx, r.PathValue("id"), accountID, r.PathValue("ref"), *req.Rating)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]movieResponse{"movie": h.enrich(ctx, view)[0]})
}

// Stats handles GET /api/v1/couple/{id}/stats.
func (h CoupleHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx, accountID, ok := h.begin(w, r)
	if !ok {
		return
	}

	stats, err := h.Couples.Stats(ctx, r.PathValue("id"), accountID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]models.Stats{"stats": stats})
}

func (h CoupleHandler) noContent(w http.ResponseWriter, r *http.Request, action func(svc CoupleService, ctx context.Context, pairingID, actorID string) error) {
	ctx, accountID, ok := h.begin(w, r)
	if !ok {
		return
	}

	if err := action(h.Couples, ctx, r.PathValue("id"), accountID); err != nil {
		respondError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// begin resolves the acting account and checks the handler is wired.
func (h CoupleHandler) begin(w http.ResponseWriter, r *http.Request) (context.Context, string, bool) {
	ctx := r.Context()
	if h.Couples == nil {
		logging.FromContext(ctx).Error("couple service unavailable")
		respondInternal(ctx, w, "couple service unavailable")
		return ctx, "", false
	}

	accountID := logging.AccountIDFromContext(ctx)
	if accountID == "" {
		respondUnauthorized(ctx, w, "authentication required")
		return ctx, "", false
	}
	ctx = logging.WithPairingID(ctx, r.PathValue("id"))
	return ctx, accountID, true
}

// enrich attaches catalog metadata to each view. Lookups that fail leave the
// metadata empty; the collection itself never depends on the catalog.
func (h CoupleHandler) enrich(ctx context.Context, views ...couples.EntryView) []movieResponse {
	out := make([]movieResponse, len(views))
	for i, view := range views {
		out[i] = movieResponse{EntryView: view}
	}
	if h.Catalog == nil || len(views) == 0 {
		return out
	}

	refs := make([]string, len(views))
	for i, view := range views {
		refs[i] = view.MovieRef
	}
	found := catalog.Enrich(ctx, h.Catalog, refs)
	for i := range out {
		if metadata, ok := found[out[i].MovieRef]; ok {
			out[i].Metadata = &metadata
		}
	}
	return out
}

func decodeBody(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			respondBadRequest(ctx, w, "request body is required")
			return false
		}
		logging.FromContext(ctx).Warn("invalid request payload", "error", err)
		respondBadRequest(ctx, w, "invalid request body")
		return false
	}
	return true
}
