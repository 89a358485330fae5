package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultOMDbURL is the public OMDb endpoint.
const DefaultOMDbURL = "https://www.omdbapi.com/"

// OMDbProvider resolves IMDb ids through the OMDb API.
type OMDbProvider struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewOMDbProvider constructs a provider with a bounded request timeout.
func NewOMDbProvider(baseURL, apiKey string, timeout time.Duration) *OMDbProvider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultOMDbURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &OMDbProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: timeout},
	}
}

// Lookup fetches title details for an IMDb id such as "tt0133093".
func (p *OMDbProvider) Lookup(ctx context.Context, movieRef string) (Metadata, error) {
	if p == nil || p.APIKey == "" {
		return Metadata{}, ErrProviderUnavailable
	}

	endpoint, err := url.Parse(p.BaseURL)
	if err != nil {
		return Metadata{}, fmt.Errorf("parse omdb url: %w", err)
	}
	query := endpoint.Query()
	query.Set("apikey", p.APIKey)
	query.Set("i", movieRef)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return Metadata{}, fmt.Errorf("build omdb request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return Metadata{}, fmt.Errorf("omdb request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Metadata{}, fmt.Errorf("omdb returned status %d", resp.StatusCode)
	}

	var payload omdbTitle
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return Metadata{}, fmt.Errorf("parse omdb response: %w", err)
	}

	if strings.EqualFold(payload.Response, "False") {
		return Metadata{}, fmt.Errorf("%w: %s", ErrMovieNotFound, payload.Error)
	}

	metadata := payload.metadata(movieRef)
	if metadata.Title == "" {
		return Metadata{}, ErrMovieNotFound
	}
	return metadata, nil
}

// omdbTitle accepts both OMDb's capitalised field names and the lowercase
// names used by locally stored copies of the same document.
type omdbTitle struct {
	Title    string
	Year     string
	Genre    string
	Poster   string
	IMDbID   string
	Response string
	Error    string
}

func (t *omdbTitle) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	pick := func(keys ...string) string {
		for _, key := range keys {
			value, ok := raw[key]
			if !ok {
				continue
			}
			var s string
			if err := json.Unmarshal(value, &s); err == nil && s != "" {
				return s
			}
		}
		return ""
	}

	t.Title = pick("Title", "title")
	t.Year = pick("Year", "year")
	t.Genre = pick("Genre", "genre")
	t.Poster = pick("Poster", "poster")
	t.IMDbID = pick("imdbID", "imdbId", "movieRef")
	t.Response = pick("Response", "response")
	t.Error = pick("Error", "error")
	return nil
}

func (t omdbTitle) metadata(movieRef string) Metadata {
	ref := t.IMDbID
	if ref == "" {
		ref = movieRef
	}
	poster := t.Poster
	if strings.EqualFold(poster, "N/A") {
		poster = ""
	}
	genre := t.Genre
	if strings.EqualFold(genre, "N/A") {
		genre = ""
	}
	return Metadata{Ref: ref, Title: t.Title, Year: t.Year, Genre: genre, Poster: poster}
}
