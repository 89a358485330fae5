package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/couplemovie/backend/internal/logging"
)

// TokenParser validates an access token and returns the account it belongs to.
type TokenParser interface {
	ParseAccessToken(token string) (string, error)
}

// Authenticate requires a valid bearer token and stores the account id on the
// request context. Websocket clients that cannot set headers may pass the
// token in the access_token query parameter.
func Authenticate(parser TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				unauthorized(w, "missing access token")
				return
			}

			accountID, err := parser.ParseAccessToken(token)
			if err != nil {
				logging.FromContext(r.Context()).Warn("access token rejected", "error", err)
				unauthorized(w, "invalid or expired access token")
				return
			}

			ctx := logging.WithAccountID(r.Context(), accountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message, "code": "unauthorized"})
}
