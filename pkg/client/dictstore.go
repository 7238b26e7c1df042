package client

import (
	"context"
	"sync"

	"plantatlas/pkg/domain"
)

// DictStore caches the plant dictionary catalog. The catalog changes
// rarely, so it is fetched at most once per app run; Refresh forces a new
// fetch when the caller knows better.
type DictStore struct {
	backend Backend

	mu      sync.Mutex
	entries []domain.DictionaryEntry
	state   fetchState
}

// NewDictStore returns an empty store backed by backend.
func NewDictStore(backend Backend) *DictStore {
	return &DictStore{backend: backend}
}

// Fetch loads the catalog. No-op when already loaded or a load is in
// flight.
func (s *DictStore) Fetch(ctx context.Context) error {
	s.mu.Lock()
	if s.state.loading || s.state.ready {
		s.mu.Unlock()
		return nil
	}
	s.state.loading = true
	gen := s.state.gen
	s.mu.Unlock()

	entries, err := s.backend.FetchDictionary(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.gen != gen {
		return nil
	}
	s.state.loading = false
	if err != nil {
		return ErrLoadFailed
	}
	s.state.ready = true
	s.entries = entries
	return nil
}

// Refresh discards the loaded catalog and fetches again.
func (s *DictStore) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.state.gen++
	s.state.loading = false
	s.state.ready = false
	s.mu.Unlock()
	return s.Fetch(ctx)
}

// Entries returns the cached catalog, nil until a fetch succeeds.
func (s *DictStore) Entries() []domain.DictionaryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries
}

// Loaded reports whether the catalog has been fetched.
func (s *DictStore) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ready
}
