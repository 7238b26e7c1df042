package store

import (
	"sort"
	"sync"

	"plantatlas/pkg/domain"
)

// MemoryStore keeps all data in-process. Used by tests and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	plants   map[string]domain.PlantRecord
	order    []string // insertion order of plant ids
	dict     map[string]domain.DictionaryEntry
	users    map[string]domain.User
	identity map[string]string // provider+"\x00"+subject -> user ID
	sess     map[string]string // token -> user ID
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		plants:   make(map[string]domain.PlantRecord),
		dict:     make(map[string]domain.DictionaryEntry),
		users:    make(map[string]domain.User),
		identity: make(map[string]string),
		sess:     make(map[string]string),
	}
}

// SaveUser registers or updates a user.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	m.identity[identityKey(u.Provider, u.Subject)] = u.ID
	return nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// GetUserByIdentity looks up a user by external identity.
func (m *MemoryStore) GetUserByIdentity(provider, subject string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.identity[identityKey(provider, subject)]; ok {
		u, exists := m.users[id]
		return u, exists, nil
	}
	return domain.User{}, false, nil
}

// DeleteUser removes a user.
func (m *MemoryStore) DeleteUser(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		delete(m.identity, identityKey(u.Provider, u.Subject))
	}
	delete(m.users, id)
	return nil
}

// SavePlant stores or replaces a plant record and tracks insertion order.
func (m *MemoryStore) SavePlant(r domain.PlantRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.plants[r.ID]; !exists {
		m.order = append(m.order, r.ID)
	}
	m.plants[r.ID] = r
	return nil
}

// PatchPlant applies a partial update in place.
func (m *MemoryStore) PatchPlant(id string, patch domain.PlantPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.plants[id]
	if !ok {
		return domain.ErrNotFound
	}
	patch.Apply(&r)
	m.plants[id] = r
	return nil
}

// ListPlants returns all records, newest first.
func (m *MemoryStore) ListPlants() ([]domain.PlantRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(""), nil
}

// ListPlantsByOwner returns one owner's records, newest first.
func (m *MemoryStore) ListPlantsByOwner(ownerID string) ([]domain.PlantRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(ownerID), nil
}

func (m *MemoryStore) listLocked(ownerID string) []domain.PlantRecord {
	res := make([]domain.PlantRecord, 0, len(m.order))
	// walk in reverse insertion order so the newest record comes first
	for i := len(m.order) - 1; i >= 0; i-- {
		r, ok := m.plants[m.order[i]]
		if !ok {
			continue
		}
		if ownerID != "" && r.OwnerID != ownerID {
			continue
		}
		res = append(res, r)
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res
}

// GetPlant retrieves a record by ID.
func (m *MemoryStore) GetPlant(id string) (domain.PlantRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.plants[id]
	return r, ok, nil
}

// DeletePlant removes a record.
func (m *MemoryStore) DeletePlant(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(id)
	return nil
}

// DeletePlantsByOwner removes an owner's records and returns their image paths.
func (m *MemoryStore) DeletePlantsByOwner(ownerID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var paths []string
	for id, r := range m.plants {
		if r.OwnerID != ownerID {
			continue
		}
		if r.ImagePath != "" {
			paths = append(paths, r.ImagePath)
		}
		m.removeLocked(id)
	}
	return paths, nil
}

func (m *MemoryStore) removeLocked(id string) {
	delete(m.plants, id)
	filtered := m.order[:0]
	for _, item := range m.order {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.order = filtered
}

// SaveDictionaryEntry stores or replaces a catalog entry.
func (m *MemoryStore) SaveDictionaryEntry(e domain.DictionaryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dict[e.ID] = e
	return nil
}

// ListDictionary returns the catalog ordered by last update, newest first.
func (m *MemoryStore) ListDictionary() ([]domain.DictionaryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.DictionaryEntry, 0, len(m.dict))
	for _, e := range m.dict {
		res = append(res, e)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].UpdatedAt.Equal(res[j].UpdatedAt) {
			return res[i].ID < res[j].ID
		}
		return res[i].UpdatedAt.After(res[j].UpdatedAt)
	})
	return res, nil
}

// NewSession creates a session token for a user.
func (m *MemoryStore) NewSession(userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := NewID()
	m.sess[token] = userID
	return token, nil
}

// GetUserIDByToken resolves a token to the bound user ID.
func (m *MemoryStore) GetUserIDByToken(token string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	uid, ok := m.sess[token]
	return uid, ok, nil
}

// DeleteSession removes a token mapping.
func (m *MemoryStore) DeleteSession(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sess, token)
	return nil
}

func identityKey(provider, subject string) string {
	return provider + "\x00" + subject
}
