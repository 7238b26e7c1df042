package client

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"plantatlas/pkg/domain"
)

// fetchState tracks one remote collection view. gen is bumped whenever the
// view is reset so a response from a superseded fetch cannot clobber newer
// state.
type fetchState struct {
	loading bool
	ready   bool
	gen     uint64
}

// PlantStore caches plant records fetched from the backend and keeps them
// current through local mutations instead of refetching after every write.
// Records are held once, keyed by id; the "mine" and "all" views are
// derived from the same map, so an edit is visible in both without double
// bookkeeping.
type PlantStore struct {
	backend Backend
	session *SessionGate
	logger  *slog.Logger

	mu      sync.Mutex
	records map[string]domain.PlantRecord
	order   []string // newest first
	mine    fetchState
	all     fetchState
}

// NewPlantStore returns an empty store backed by backend, scoped to the
// user tracked by session.
func NewPlantStore(backend Backend, session *SessionGate) *PlantStore {
	return &PlantStore{
		backend: backend,
		session: session,
		logger:  slog.Default(),
		records: make(map[string]domain.PlantRecord),
	}
}

// FetchMine loads the signed-in user's records. It is a no-op when signed
// out, when the view is already loaded, and when a load is in flight, so
// callers may invoke it from every screen that needs the data.
func (s *PlantStore) FetchMine(ctx context.Context) error {
	uid, ok := s.session.UserID()
	if !ok {
		s.logger.Debug("fetch mine skipped: not signed in")
		return nil
	}
	return s.fetch(ctx, &s.mine, uid)
}

// FetchAll loads every record for the shared map view. Same no-op rules as
// FetchMine, except it does not require a session.
func (s *PlantStore) FetchAll(ctx context.Context) error {
	return s.fetch(ctx, &s.all, "")
}

func (s *PlantStore) fetch(ctx context.Context, st *fetchState, ownerID string) error {
	s.mu.Lock()
	if st.loading || st.ready {
		s.mu.Unlock()
		return nil
	}
	st.loading = true
	gen := st.gen
	s.mu.Unlock()

	recs, err := s.backend.FetchPlants(ctx, ownerID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if st.gen != gen {
		// The view was reset while this fetch was in flight; drop the
		// response.
		return nil
	}
	st.loading = false
	if err != nil {
		return ErrLoadFailed
	}
	st.ready = true
	s.mergeLocked(recs)
	return nil
}

// RefreshMine discards the "mine" view's loaded state and fetches again.
func (s *PlantStore) RefreshMine(ctx context.Context) error {
	s.resetState(&s.mine)
	return s.FetchMine(ctx)
}

// RefreshAll discards the "all" view's loaded state and fetches again.
func (s *PlantStore) RefreshAll(ctx context.Context) error {
	s.resetState(&s.all)
	return s.FetchAll(ctx)
}

func (s *PlantStore) resetState(st *fetchState) {
	s.mu.Lock()
	st.gen++
	st.loading = false
	st.ready = false
	s.mu.Unlock()
}

// Reset drops every cached record and both views' loaded state. Called on
// sign-out.
func (s *PlantStore) Reset() {
	s.mu.Lock()
	s.records = make(map[string]domain.PlantRecord)
	s.order = nil
	for _, st := range []*fetchState{&s.mine, &s.all} {
		st.gen++
		st.loading = false
		st.ready = false
	}
	s.mu.Unlock()
}

// mergeLocked upserts recs and re-sorts the order newest first. Records
// already known keep their latest local edits overwritten by the server
// copy, which is the fresher truth after a fetch.
func (s *PlantStore) mergeLocked(recs []domain.PlantRecord) {
	for _, rec := range recs {
		if _, ok := s.records[rec.ID]; !ok {
			s.order = append(s.order, rec.ID)
		}
		s.records[rec.ID] = rec
	}
	sort.SliceStable(s.order, func(i, j int) bool {
		return s.records[s.order[i]].CreatedAt.After(s.records[s.order[j]].CreatedAt)
	})
}

// Create stores a new record through the backend, then splices the
// returned record into the local cache so it shows up immediately without
// a refetch.
func (s *PlantStore) Create(ctx context.Context, draft PlantDraft) (domain.PlantRecord, error) {
	if !s.session.LoggedIn() {
		return domain.PlantRecord{}, ErrNotAuthenticated
	}
	rec, err := s.backend.CreatePlant(ctx, draft)
	if err != nil {
		return domain.PlantRecord{}, err
	}
	s.AddLocal(rec)
	return rec, nil
}

// Update patches a record through the backend, then applies the same patch
// locally.
func (s *PlantStore) Update(ctx context.Context, id string, patch domain.PlantPatch) error {
	if !s.session.LoggedIn() {
		return ErrNotAuthenticated
	}
	if err := s.backend.UpdatePlant(ctx, id, patch); err != nil {
		return err
	}
	s.UpdateLocal(id, patch)
	return nil
}

// Delete removes a record through the backend, then drops it locally.
func (s *PlantStore) Delete(ctx context.Context, id string) error {
	if !s.session.LoggedIn() {
		return ErrNotAuthenticated
	}
	if err := s.backend.DeletePlant(ctx, id); err != nil {
		return err
	}
	s.RemoveLocal(id)
	return nil
}

// AddLocal inserts rec at the front of the collection. A record with the
// same id is replaced, not duplicated.
func (s *PlantStore) AddLocal(rec domain.PlantRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; ok {
		s.removeFromOrderLocked(rec.ID)
	}
	s.records[rec.ID] = rec
	s.order = append([]string{rec.ID}, s.order...)
}

// UpdateLocal applies patch to the cached record with the given id. A
// missing id is a no-op: the record may have been removed from another
// screen, and resurrecting a ghost copy would be worse than dropping the
// edit.
func (s *PlantStore) UpdateLocal(id string, patch domain.PlantPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return
	}
	patch.Apply(&rec)
	s.records[id] = rec
}

// RemoveLocal drops the record with the given id. Removing an unknown id
// is a no-op.
func (s *PlantStore) RemoveLocal(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return
	}
	delete(s.records, id)
	s.removeFromOrderLocked(id)
}

func (s *PlantStore) removeFromOrderLocked(id string) {
	kept := s.order[:0]
	for _, v := range s.order {
		if v != id {
			kept = append(kept, v)
		}
	}
	s.order = kept
}

// Mine returns the signed-in user's records, newest first. Signed out it
// returns an empty slice.
func (s *PlantStore) Mine() []domain.PlantRecord {
	uid, ok := s.session.UserID()
	if !ok {
		return []domain.PlantRecord{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PlantRecord, 0, len(s.order))
	for _, id := range s.order {
		if rec := s.records[id]; rec.OwnerID == uid {
			out = append(out, rec)
		}
	}
	return out
}

// All returns every cached record, newest first.
func (s *PlantStore) All() []domain.PlantRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PlantRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out
}

// Get returns the cached record with the given id.
func (s *PlantStore) Get(id string) (domain.PlantRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec, ok
}

// MineLoaded reports whether the "mine" view has completed a fetch.
func (s *PlantStore) MineLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mine.ready
}

// AllLoaded reports whether the "all" view has completed a fetch.
func (s *PlantStore) AllLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.all.ready
}
