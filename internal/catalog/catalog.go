// Package catalog resolves display metadata for movie references. The
// pairing core only stores references; everything here is read-side.
package catalog

import (
	"context"
	"errors"
)

var (
	// ErrProviderUnavailable indicates the catalog provider is not configured.
	ErrProviderUnavailable = errors.New("catalog provider unavailable")
	// ErrMovieNotFound indicates the provider has no title for the reference.
	ErrMovieNotFound = errors.New("movie not found in catalog")
)

// Metadata captures the subset of catalog details shown next to a shared entry.
type Metadata struct {
	Ref    string `json:"movieRef"`
	Title  string `json:"title"`
	Year   string `json:"year,omitempty"`
	Genre  string `json:"genre,omitempty"`
	Poster string `json:"poster,omitempty"`
}

// Provider returns metadata for a movie reference.
type Provider interface {
	Lookup(ctx context.Context, movieRef string) (Metadata, error)
}

// ProviderFunc adapts a function into a Provider.
type ProviderFunc func(ctx context.Context, movieRef string) (Metadata, error)

// Lookup calls f.
func (f ProviderFunc) Lookup(ctx context.Context, movieRef string) (Metadata, error) {
	return f(ctx, movieRef)
}
