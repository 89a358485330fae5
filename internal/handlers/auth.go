package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/couplemovie/backend/internal/auth"
	"github.com/couplemovie/backend/internal/logging"
	"github.com/couplemovie/backend/internal/models"
	"github.com/couplemovie/backend/internal/repositories"
)

const minPasswordLen = 8

// AuthHandler serves account signup and the session lifecycle.
type AuthHandler struct {
	Accounts AccountStore
	Sessions SessionManager
	Limiter  RateLimiter
	NowFunc  func() time.Time
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

type authResponse struct {
	Tokens  models.SessionTokens `json:"tokens"`
	Account *models.Account      `json:"account,omitempty"`
}

// normalize trims the request and returns the first validation problem, if any.
func (req *signUpRequest) normalize() string {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Username = strings.TrimSpace(req.Username)
	switch {
	case req.Email == "" || req.Username == "" || req.Password == "":
		return "email, username and password are required"
	case !validEmail(req.Email):
		return "invalid email address"
	case !validUsername(req.Username):
		return "username must be 3-32 letters, digits, dots, dashes or underscores"
	case len(req.Password) < minPasswordLen:
		return "password must be at least 8 characters"
	}
	return ""
}

// Login handles POST /api/v1/auth/login. The identifier may be an email or a username.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w, h.Accounts != nil && h.Sessions != nil) {
		return
	}
	if !allowRequest(w, r, h.Limiter, "login") {
		respondRateLimited(ctx, w, "too many login attempts, try again later")
		return
	}

	var req loginRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	identifier := strings.TrimSpace(req.Email)
	if strings.Contains(identifier, "@") {
		identifier = strings.ToLower(identifier)
	}
	if identifier == "" || req.Password == "" {
		respondBadRequest(ctx, w, "email and password are required")
		return
	}

	logger := logging.FromContext(ctx)
	account, err := h.Accounts.FindByIdentifier(ctx, identifier)
	if err == nil {
		err = bcrypt.CompareHashAndPassword([]byte(account.Password), []byte(req.Password))
	}
	if err != nil {
		logger.Warn("login rejected", "error", err)
		respondUnauthorized(ctx, w, "invalid credentials")
		return
	}

	h.startSession(ctx, w, http.StatusOK, account)
}

// SignUp handles POST /api/v1/auth/signup.
func (h AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w, h.Accounts != nil && h.Sessions != nil) {
		return
	}
	if !allowRequest(w, r, h.Limiter, "signup") {
		respondRateLimited(ctx, w, "too many signup attempts, try again later")
		return
	}

	var req signUpRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	if problem := req.normalize(); problem != "" {
		respondBadRequest(ctx, w, problem)
		return
	}

	logger := logging.FromContext(ctx)
	for _, identifier := range []string{req.Email, req.Username} {
		_, err := h.Accounts.FindByIdentifier(ctx, identifier)
		if err == nil {
			respondConflict(ctx, w)
			return
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			logger.Error("signup account lookup failed", "error", err)
			respondInternal(ctx, w, "unable to verify existing accounts")
			return
		}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("hash password", "error", err)
		respondInternal(ctx, w, "failed to secure password")
		return
	}

	now := h.now()
	account := models.Account{
		ID:        uuid.NewString(),
		Email:     req.Email,
		Username:  req.Username,
		Password:  string(hashed),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.Accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			respondConflict(ctx, w)
			return
		}
		logger.Error("create account", "error", err)
		respondInternal(ctx, w, "failed to create account")
		return
	}

	logger.Info("account created", "accountId", account.ID)
	h.startSession(ctx, w, http.StatusCreated, account)
}

// Refresh handles POST /api/v1/auth/refresh. The presented token is consumed.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w, h.Sessions != nil) {
		return
	}

	token, ok := refreshTokenFrom(ctx, w, r)
	if !ok {
		return
	}

	tokens, err := h.Sessions.Refresh(ctx, token)
	switch {
	case err == nil:
		respondJSON(ctx, w, http.StatusOK, authResponse{Tokens: tokens})
	case errors.Is(err, auth.ErrRefreshTokenExpired), errors.Is(err, auth.ErrSessionNotFound):
		respondUnauthorized(ctx, w, "unable to refresh session")
	default:
		logging.FromContext(ctx).Error("refresh session", "error", err)
		respondInternal(ctx, w, "unable to refresh session")
	}
}

// Logout handles POST /api/v1/auth/logout. Unknown tokens are ignored.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w, h.Sessions != nil) {
		return
	}

	token, ok := refreshTokenFrom(ctx, w, r)
	if !ok {
		return
	}
	h.Sessions.Revoke(ctx, token)
	w.WriteHeader(http.StatusNoContent)
}

// RequestPasswordReset handles POST /api/v1/auth/password-reset. The response
// never reveals whether the email belongs to an account.
func (h AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w, h.Accounts != nil) {
		return
	}

	var req passwordResetRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		respondBadRequest(ctx, w, "email is required")
		return
	}
	if !validEmail(email) {
		respondBadRequest(ctx, w, "invalid email address")
		return
	}

	if _, err := h.Accounts.FindByEmail(ctx, email); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		logging.FromContext(ctx).Error("password reset lookup failed", "error", err)
		respondInternal(ctx, w, "unable to process password reset")
		return
	}

	respondJSON(ctx, w, http.StatusAccepted, map[string]string{
		"status": "If an account exists for that email, password reset instructions have been sent.",
	})
}

func (h AuthHandler) startSession(ctx context.Context, w http.ResponseWriter, status int, account models.Account) {
	tokens, err := h.Sessions.Issue(ctx, account.ID)
	if err != nil {
		logging.FromContext(ctx).Error("issue session", "error", err, "accountId", account.ID)
		respondInternal(ctx, w, "failed to create session")
		return
	}
	respondJSON(ctx, w, status, authResponse{Tokens: tokens, Account: &account})
}

func (h AuthHandler) available(ctx context.Context, w http.ResponseWriter, wired bool) bool {
	if !wired {
		logging.FromContext(ctx).Error("authentication dependencies unavailable")
		respondInternal(ctx, w, "authentication services unavailable")
	}
	return wired
}

func (h AuthHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

func refreshTokenFrom(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	var req refreshRequest
	if !decodeBody(ctx, w, r, &req) {
		return "", false
	}
	token := strings.TrimSpace(req.RefreshToken)
	if token == "" {
		respondBadRequest(ctx, w, "refresh token is required")
		return "", false
	}
	return token, true
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func validUsername(username string) bool {
	if len(username) < 3 || len(username) > 32 {
		return false
	}
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_', r == '.', r == '-':
		default:
			return false
		}
	}
	return true
}
