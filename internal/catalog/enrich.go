package catalog

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/couplemovie/backend/internal/logging"
)

const enrichConcurrency = 8

// Enrich resolves metadata for every reference concurrently. Lookups that fail
// are logged and omitted from the result; the caller shows bare references.
func Enrich(ctx context.Context, provider Provider, refs []string) map[string]Metadata {
	out := make(map[string]Metadata, len(refs))
	if provider == nil || len(refs) == 0 {
		return out
	}

	logger := logging.FromContext(ctx)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)

	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}

		ref := ref
		g.Go(func() error {
			metadata, err := provider.Lookup(gctx, ref)
			if err != nil {
				logger.Debug("catalog lookup failed", "movieRef", ref, "error", err)
				return nil
			}
			mu.Lock()
			out[ref] = metadata
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return out
}
