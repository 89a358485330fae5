package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/couplemovie/backend/internal/auth"
	"github.com/couplemovie/backend/internal/middleware"
	"github.com/couplemovie/backend/internal/models"
	"github.com/couplemovie/backend/internal/repositories"
)

type inMemoryAccountStore struct {
	accounts map[string]models.Account
}

func newInMemoryAccountStore() *inMemoryAccountStore {
	return &inMemoryAccountStore{accounts: make(map[string]models.Account)}
}

func (s *inMemoryAccountStore) Create(_ context.Context, account models.Account) error {
	for _, existing := range s.accounts {
		if existing.Email == account.Email || existing.Username == account.Username {
			return repositories.ErrConflict
		}
	}
	s.accounts[account.ID] = account
	return nil
}

func (s *inMemoryAccountStore) FindByEmail(_ context.Context, email string) (models.Account, error) {
	for _, account := range s.accounts {
		if account.Email == strings.ToLower(email) {
			return account, nil
		}
	}
	return models.Account{}, repositories.ErrNotFound
}

func (s *inMemoryAccountStore) FindByIdentifier(ctx context.Context, identifier string) (models.Account, error) {
	if strings.Contains(identifier, "@") {
		return s.FindByEmail(ctx, identifier)
	}
	for _, account := range s.accounts {
		if account.Username == identifier {
			return account, nil
		}
	}
	return models.Account{}, repositories.ErrNotFound
}

func newTestManager() *auth.Manager {
	return auth.NewManager([]byte("test-secret"), time.Minute, time.Hour, auth.NewInMemorySessionStore())
}

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

func TestAuthHandlerSignUp(t *testing.T) {
	store := newInMemoryAccountStore()
	manager := newTestManager()
	handler := AuthHandler{Accounts: store, Sessions: manager}

	body, err := json.Marshal(signUpRequest{Email: "Test@Example.com", Username: "tester", Password: "supersafe"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signup", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.SignUp(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d", http.StatusCreated, rec.Code)
	}

	var resp authResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if resp.Tokens.AccessToken == "" || resp.Tokens.RefreshToken == "" {
		t.Fatalf("expected tokens to be issued, got %+v", resp.Tokens)
	}
	if resp.Account == nil || resp.Account.Username != "tester" {
		t.Fatalf("expected account in response, got %+v", resp.Account)
	}

	accountID, err := manager.ParseAccessToken(resp.Tokens.AccessToken)
	if err != nil || accountID != resp.Account.ID {
		t.Fatalf("expected access token for %s, got %q (%v)", resp.Account.ID, accountID, err)
	}

	stored, err := store.FindByEmail(context.Background(), "test@example.com")
	if err != nil {
		t.Fatalf("expected account to be stored: %v", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("supersafe")) != nil {
		t.Fatal("stored password is not hashed")
	}
}

func TestAuthHandlerSignUpValidation(t *testing.T) {
	store := newInMemoryAccountStore()
	store.accounts["taken"] = models.Account{ID: "taken", Email: "taken@example.com", Username: "taken"}
	handler := AuthHandler{Accounts: store, Sessions: newTestManager()}

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "malformed", body: "{", status: http.StatusBadRequest},
		{name: "missing username", body: `{"email":"a@example.com","password":"supersafe"}`, status: http.StatusBadRequest},
		{name: "invalid email", body: `{"email":"nope","username":"nope","password":"supersafe"}`, status: http.StatusBadRequest},
		{name: "invalid username", body: `{"email":"a@example.com","username":"a b","password":"supersafe"}`, status: http.StatusBadRequest},
		{name: "short password", body: `{"email":"a@example.com","username":"abc","password":"short"}`, status: http.StatusBadRequest},
		{name: "email taken", body: `{"email":"taken@example.com","username":"fresh","password":"supersafe"}`, status: http.StatusConflict},
		{name: "username taken", body: `{"email":"fresh@example.com","username":"taken","password":"supersafe"}`, status: http.StatusConflict},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signup", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()

			handler.SignUp(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("expected status %d got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAuthHandlerLogin(t *testing.T) {
	store := newInMemoryAccountStore()
	manager := newTestManager()
	handler := AuthHandler{Accounts: store, Sessions: manager}

	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	store.accounts["account-1"] = models.Account{ID: "account-1", Email: "login@example.com", Username: "login", Password: string(hashed)}

	for _, identifier := range []string{"login@example.com", "login"} {
		body, err := json.Marshal(loginRequest{Email: identifier, Password: "password123"})
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}

		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		rec := httptest.NewRecorder()

		handler.Login(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected status %d got %d", identifier, http.StatusOK, rec.Code)
		}

		var resp authResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}

		if resp.Tokens.AccessToken == "" || resp.Tokens.RefreshToken == "" {
			t.Fatalf("expected tokens to be issued, got %+v", resp.Tokens)
		}
	}

	body, _ := json.Marshal(loginRequest{Email: "login@example.com", Password: "wrong-password"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Login(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestAuthHandlerLoginRateLimited(t *testing.T) {
	handler := AuthHandler{Accounts: newInMemoryAccountStore(), Sessions: newTestManager(), Limiter: denyAll{}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"a@example.com","password":"x"}`))
	rec := httptest.NewRecorder()

	handler.Login(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status %d got %d", http.StatusTooManyRequests, rec.Code)
	}
}

func TestAuthHandlerLoginRetryAfter(t *testing.T) {
	limiter := middleware.NewKeyedLimiter(1, time.Minute, 1, time.Minute)
	handler := AuthHandler{Accounts: newInMemoryAccountStore(), Sessions: newTestManager(), Limiter: limiter}

	attempt := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"a@example.com","password":"x"}`))
		req.RemoteAddr = "198.51.100.4:5555"
		rec := httptest.NewRecorder()
		handler.Login(rec, req)
		return rec
	}

	if rec := attempt(); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected first attempt to reach credential check, got %d", rec.Code)
	}

	rec := attempt()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status %d got %d", http.StatusTooManyRequests, rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header on rate limited response")
	}

	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Code != "rate_limited" {
		t.Fatalf("expected rate_limited code, got %q", resp.Code)
	}
}

func TestAuthHandlerRefreshAndLogout(t *testing.T) {
	manager := newTestManager()
	tokens, err := manager.Issue(context.Background(), "account-123")
	if err != nil {
		t.Fatalf("issue tokens: %v", err)
	}

	handler := AuthHandler{Sessions: manager}

	body, err := json.Marshal(refreshRequest{RefreshToken: tokens.RefreshToken})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Refresh(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}

	var resp authResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if resp.Tokens.RefreshToken == tokens.RefreshToken {
		t.Fatal("expected a new refresh token to be issued")
	}

	// The rotated token is single use.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	handler.Refresh(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d got %d", http.StatusUnauthorized, rec.Code)
	}

	body, _ = json.Marshal(refreshRequest{RefreshToken: resp.Tokens.RefreshToken})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	handler.Logout(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d got %d", http.StatusNoContent, rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	handler.Refresh(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected revoked token to be rejected, got %d", rec.Code)
	}
}

func TestAuthHandlerPasswordReset(t *testing.T) {
	handler := AuthHandler{Accounts: newInMemoryAccountStore()}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/password-reset", strings.NewReader(`{"email":"nobody@example.com"}`))
	rec := httptest.NewRecorder()

	handler.RequestPasswordReset(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status %d got %d", http.StatusAccepted, rec.Code)
	}
}
