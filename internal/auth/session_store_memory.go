package auth

import (
	"context"
	"sync"
	"time"
)

// InMemorySessionStore keeps refresh sessions in process, indexed by token hash
// and by account. It backs tests and single instance development runs.
type InMemorySessionStore struct {
	mu        sync.Mutex
	byToken   map[string]Session
	byAccount map[string]map[string]struct{}
}

// NewInMemorySessionStore returns an empty store.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{
		byToken:   make(map[string]Session),
		byAccount: make(map[string]map[string]struct{}),
	}
}

// Save stores session, replacing any session with the same token hash.
func (s *InMemorySessionStore) Save(_ context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteLocked(session.TokenHash)
	s.byToken[session.TokenHash] = session
	hashes := s.byAccount[session.AccountID]
	if hashes == nil {
		hashes = make(map[string]struct{})
		s.byAccount[session.AccountID] = hashes
	}
	hashes[session.TokenHash] = struct{}{}
	return nil
}

// Find retrieves a session by token hash.
func (s *InMemorySessionStore) Find(_ context.Context, tokenHash string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.byToken[tokenHash]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

// Delete removes the session for tokenHash. Deleting an unknown hash
// reports ErrSessionNotFound, so only one of two racing refreshes wins.
func (s *InMemorySessionStore) Delete(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byToken[tokenHash]; !ok {
		return ErrSessionNotFound
	}
	s.deleteLocked(tokenHash)
	return nil
}

// DeleteExpired drops sessions that expired before cutoff and reports how many.
func (s *InMemorySessionStore) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for hash, session := range s.byToken {
		if session.ExpiresAt.Before(cutoff) {
			s.deleteLocked(hash)
			removed++
		}
	}
	return removed, nil
}

// Has reports whether a session is stored under tokenHash.
func (s *InMemorySessionStore) Has(tokenHash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.byToken[tokenHash]
	return ok
}

// Sessions reports how many live sessions accountID holds.
func (s *InMemorySessionStore) Sessions(accountID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.byAccount[accountID])
}

func (s *InMemorySessionStore) deleteLocked(tokenHash string) {
	session, ok := s.byToken[tokenHash]
	if !ok {
		return
	}
	delete(s.byToken, tokenHash)
	if hashes := s.byAccount[session.AccountID]; hashes != nil {
		delete(hashes, tokenHash)
		if len(hashes) == 0 {
			delete(s.byAccount, session.AccountID)
		}
	}
}
