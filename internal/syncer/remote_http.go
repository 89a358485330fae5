package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/couplemovie/backend/internal/couples"
	"github.com/couplemovie/backend/internal/models"
)

// TokenSource returns the bearer token used for each request.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken returns a TokenSource for a fixed access token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

// RemoteError is a non-2xx API response. It unwraps to the matching domain
// error when the server sent a known code.
type RemoteError struct {
	Status  int
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api %d: %s", e.Status, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return couples.ErrorForCode(e.Code)
}

// HTTPRemote implements Remote against the CoupleMovie HTTP API.
type HTTPRemote struct {
	baseURL string
	token   TokenSource
	client  *http.Client
}

var _ Remote = (*HTTPRemote)(nil)

// NewHTTPRemote builds a client for the API rooted at baseURL.
func NewHTTPRemote(baseURL string, token TokenSource, client *http.Client) *HTTPRemote {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPRemote{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

type pairingEnvelope struct {
	Pairing *models.Pairing `json:"pairing"`
}

type movieEnvelope struct {
	Movie couples.EntryView `json:"movie"`
}

// Current returns the caller's pending or accepted pairing.
func (c *HTTPRemote) Current(ctx context.Context) (models.Pairing, error) {
	var payload pairingEnvelope
	if err := c.do(ctx, http.MethodGet, "/api/v1/couple", nil, &payload); err != nil {
		return models.Pairing{}, err
	}
	if payload.Pairing == nil {
		return models.Pairing{}, couples.ErrPairingNotFound
	}
	return *payload.Pairing, nil
}

// IncomingInvites lists pending invites addressed to the caller.
func (c *HTTPRemote) IncomingInvites(ctx context.Context) ([]models.Pairing, error) {
	var payload struct {
		Invites []models.Pairing `json:"invites"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/couple/invites", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Invites, nil
}

// Invite sends a pairing invite to an email address or username.
func (c *HTTPRemote) Invite(ctx context.Context, recipient string) (models.Pairing, error) {
	var payload pairingEnvelope
	body := map[string]string{"recipient": recipient}
	if err := c.do(ctx, http.MethodPost, "/api/v1/couple/invite", body, &payload); err != nil {
		return models.Pairing{}, err
	}
	if payload.Pairing == nil {
		return models.Pairing{}, errors.New("invite response missing pairing")
	}
	return *payload.Pairing, nil
}

// Cancel withdraws the caller's own pending invite.
func (c *HTTPRemote) Cancel(ctx context.Context, pairingID string) error {
	return c.do(ctx, http.MethodPost, pairingPath(pairingID, "cancel"), nil, nil)
}

// Accept accepts an incoming invite.
func (c *HTTPRemote) Accept(ctx context.Context, pairingID string) (models.Pairing, error) {
	var payload pairingEnvelope
	if err := c.do(ctx, http.MethodPost, pairingPath(pairingID, "accept"), nil, &payload); err != nil {
		return models.Pairing{}, err
	}
	if payload.Pairing == nil {
		return models.Pairing{}, errors.New("accept response missing pairing")
	}
	return *payload.Pairing, nil
}

// Reject declines an incoming invite.
func (c *HTTPRemote) Reject(ctx context.Context, pairingID string) error {
	return c.do(ctx, http.MethodPost, pairingPath(pairingID, "reject"), nil, nil)
}

// Break ends an accepted pairing.
func (c *HTTPRemote) Break(ctx context.Context, pairingID string) error {
	return c.do(ctx, http.MethodPost, pairingPath(pairingID, "break"), nil, nil)
}

// AddMovie adds movieRef to the shared list on the caller's behalf.
func (c *HTTPRemote) AddMovie(ctx context.Context, pairingID, movieRef string) (couples.EntryView, error) {
	var payload movieEnvelope
	body := map[string]string{"movieRef": movieRef}
	if err := c.do(ctx, http.MethodPost, pairingPath(pairingID, "movies"), body, &payload); err != nil {
		return couples.EntryView{}, err
	}
	return payload.Movie, nil
}

// RemoveMovie withdraws the caller's contribution to movieRef.
func (c *HTTPRemote) RemoveMovie(ctx context.Context, pairingID, movieRef string) error {
	return c.do(ctx, http.MethodDelete, moviePath(pairingID, movieRef, ""), nil, nil)
}

// UpdateWatchStatus sets the shared watch status of movieRef.
func (c *HTTPRemote) UpdateWatchStatus(ctx context.Context, pairingID, movieRef string, status models.WatchStatus) (couples.EntryView, error) {
	var payload movieEnvelope
	body := map[string]models.WatchStatus{"watchStatus": status}
	if err := c.do(ctx, http.MethodPut, moviePath(pairingID, movieRef, "status"), body, &payload); err != nil {
		return couples.EntryView{}, err
	}
	return payload.Movie, nil
}

// Rate stores the caller's rating for movieRef.
func (c *HTTPRemote) Rate(ctx context.Context, pairingID, movieRef string, rating float64) (couples.EntryView, error) {
	var payload movieEnvelope
	body := map[string]float64{"rating": rating}
	if err := c.do(ctx, http.MethodPut, moviePath(pairingID, movieRef, "rating"), body, &payload); err != nil {
		return couples.EntryView{}, err
	}
	return payload.Movie, nil
}

// List returns the shared collection from the caller's perspective.
func (c *HTTPRemote) List(ctx context.Context, pairingID string) ([]couples.EntryView, error) {
	var payload struct {
		Movies []couples.EntryView `json:"movies"`
	}
	if err := c.do(ctx, http.MethodGet, pairingPath(pairingID, "movies"), nil, &payload); err != nil {
		return nil, err
	}
	return payload.Movies, nil
}

// Entry reports whether movieRef is on the shared list, with its match state.
func (c *HTTPRemote) Entry(ctx context.Context, pairingID, movieRef string) (couples.EntryView, error) {
	var payload movieEnvelope
	if err := c.do(ctx, http.MethodGet, moviePath(pairingID, movieRef, ""), nil, &payload); err != nil {
		return couples.EntryView{}, err
	}
	return payload.Movie, nil
}

// Stats returns the collection counters.
func (c *HTTPRemote) Stats(ctx context.Context, pairingID string) (models.Stats, error) {
	var payload struct {
		Stats models.Stats `json:"stats"`
	}
	if err := c.do(ctx, http.MethodGet, pairingPath(pairingID, "stats"), nil, &payload); err != nil {
		return models.Stats{}, err
	}
	return payload.Stats, nil
}

// Events opens the push stream and decodes events until ctx is done or the
// connection drops, then closes the returned channel.
func (c *HTTPRemote) Events(ctx context.Context) (<-chan models.Event, error) {
	endpoint := c.baseURL + "/api/v1/events"
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint = "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		endpoint = "ws://" + strings.TrimPrefix(endpoint, "http://")
	}

	header := http.Header{}
	if err := c.authorize(ctx, header); err != nil {
		return nil, err
	}
	conn, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("dial event stream: %w", err)
	}

	events := make(chan models.Event)
	go func() {
		defer close(events)
		defer conn.Close(websocket.StatusNormalClosure, "")
		for {
			var event models.Event
			if err := wsjson.Read(ctx, conn, &event); err != nil {
				return
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

func (c *HTTPRemote) authorize(ctx context.Context, header http.Header) error {
	if c.token == nil {
		return nil
	}
	token, err := c.token(ctx)
	if err != nil {
		return fmt.Errorf("resolve access token: %w", err)
	}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

func (c *HTTPRemote) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.authorize(ctx, req.Header); err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, 4<<20)
	if resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if err := json.NewDecoder(limited).Decode(&payload); err != nil || payload.Error == "" {
			payload.Error = http.StatusText(resp.StatusCode)
		}
		return &RemoteError{Status: resp.StatusCode, Code: payload.Code, Message: payload.Error}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, limited)
		return nil
	}
	if err := json.NewDecoder(limited).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func pairingPath(pairingID, action string) string {
	return "/api/v1/couple/" + url.PathEscape(pairingID) + "/" + action
}

func moviePath(pairingID, movieRef, action string) string {
	path := pairingPath(pairingID, "movies") + "/" + url.PathEscape(movieRef)
	if action != "" {
		path += "/" + action
	}
	return path
}
