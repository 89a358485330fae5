package handlers

import (
	"context"
	"net/http"

	"github.com/couplemovie/backend/internal/catalog"
	"github.com/couplemovie/backend/internal/middleware"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Ping: deps.Ping}
	auth := AuthHandler{Accounts: deps.Accounts, Sessions: deps.Sessions, Limiter: deps.AuthLimiter}
	couple := CoupleHandler{Couples: deps.Couples, Catalog: deps.Catalog, InviteLimiter: deps.InviteLimiter}
	events := EventsHandler{Events: deps.Events, OriginPatterns: deps.OriginPatterns}

	mux.HandleFunc("GET /healthz", health.Handle)
	mux.HandleFunc("POST /api/v1/auth/login", auth.Login)
	mux.HandleFunc("POST /api/v1/auth/signup", auth.SignUp)
	mux.HandleFunc("POST /api/v1/auth/refresh", auth.Refresh)
	mux.HandleFunc("POST /api/v1/auth/logout", auth.Logout)
	mux.HandleFunc("POST /api/v1/auth/password-reset", auth.RequestPasswordReset)

	protect := func(h http.HandlerFunc) http.Handler {
		if deps.Tokens == nil {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				respondInternal(r.Context(), w, "authentication services unavailable")
			})
		}
		return middleware.Authenticate(deps.Tokens)(h)
	}

	mux.Handle("GET /api/v1/couple", protect(couple.Current))
	mux.Handle("POST /api/v1/couple/invite", protect(couple.Invite))
	mux.Handle("GET /api/v1/couple/invites", protect(couple.Invites))
	mux.Handle("POST /api/v1/couple/{id}/accept", protect(couple.Accept))
	mux.Handle("POST /api/v1/couple/{id}/reject", protect(couple.Reject))
	mux.Handle("POST /api/v1/couple/{id}/cancel", protect(couple.Cancel))
	mux.Handle("POST /api/v1/couple/{id}/break", protect(couple.Break))
	mux.Handle("GET /api/v1/couple/{id}/movies", protect(couple.Movies))
	mux.Handle("POST /api/v1/couple/{id}/movies", protect(couple.AddMovie))
	mux.Handle("GET /api/v1/couple/{id}/movies/{ref}", protect(couple.Movie))
	mux.Handle("DELETE /api/v1/couple/{id}/movies/{ref}", protect(couple.RemoveMovie))
	mux.Handle("PUT /api/v1/couple/{id}/movies/{ref}/status", protect(couple.UpdateWatchStatus))
	mux.Handle("PUT /api/v1/couple/{id}/movies/{ref}/rating", protect(couple.Rate))
	mux.Handle("GET /api/v1/couple/{id}/stats", protect(couple.Stats))
	mux.Handle("GET /api/v1/events", protect(events.Stream))
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Accounts AccountStore
	Sessions SessionManager
	Tokens   middleware.TokenParser
	Couples  CoupleService
	Catalog  catalog.Provider
	Events   EventStreamer

	AuthLimiter    RateLimiter
	InviteLimiter  RateLimiter
	OriginPatterns []string

	Ping func(ctx context.Context) error
}
