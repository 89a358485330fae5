// Package archive keeps a JSON snapshot of a shared collection when its
// pairing is broken, since the live rows are deleted with the pairing.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/couplemovie/backend/internal/couples"
	"github.com/couplemovie/backend/internal/models"
)

// ObjectStore persists archive objects.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte) error
}

// Snapshot is the archived document.
type Snapshot struct {
	Pairing    models.Pairing       `json:"pairing"`
	Entries    []models.SharedEntry `json:"entries"`
	Stats      models.Stats         `json:"stats"`
	ArchivedAt time.Time            `json:"archivedAt"`
}

var _ couples.Archiver = (*Archiver)(nil)

// Archiver writes collection snapshots to an ObjectStore.
type Archiver struct {
	store  ObjectStore
	prefix string
	now    func() time.Time
}

// New returns an Archiver that stores snapshots below prefix.
func New(store ObjectStore, prefix string) *Archiver {
	if prefix == "" {
		prefix = "collections"
	}
	return &Archiver{store: store, prefix: prefix, now: func() time.Time { return time.Now().UTC() }}
}

// Key returns the object key for a pairing snapshot taken at the given time.
func (a *Archiver) Key(pairingID string, at time.Time) string {
	return path.Join(a.prefix, pairingID, at.UTC().Format("20060102T150405Z")+".json")
}

// Archive serialises the pairing and its entries and uploads the snapshot.
func (a *Archiver) Archive(ctx context.Context, pairing models.Pairing, entries []models.SharedEntry) error {
	if entries == nil {
		entries = []models.SharedEntry{}
	}

	snapshot := Snapshot{
		Pairing:    pairing,
		Entries:    entries,
		Stats:      couples.Tally(entries),
		ArchivedAt: a.now(),
	}

	body, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := a.store.Put(ctx, a.Key(pairing.ID, snapshot.ArchivedAt), body); err != nil {
		return fmt.Errorf("archive pairing %s: %w", pairing.ID, err)
	}
	return nil
}
