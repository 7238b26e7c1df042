package store

import (
	"time"

	"plantatlas/pkg/domain"
)

// Store defines persistence operations for users, plant records, and the
// dictionary catalog.
type Store interface {
	// users
	SaveUser(domain.User) error
	GetUserByID(id string) (domain.User, bool, error)
	GetUserByIdentity(provider, subject string) (domain.User, bool, error)
	DeleteUser(id string) error

	// plant records
	SavePlant(domain.PlantRecord) error
	PatchPlant(id string, patch domain.PlantPatch) error
	ListPlants() ([]domain.PlantRecord, error)
	ListPlantsByOwner(ownerID string) ([]domain.PlantRecord, error)
	GetPlant(id string) (domain.PlantRecord, bool, error)
	DeletePlant(id string) error
	// DeletePlantsByOwner removes every record owned by ownerID and returns
	// the storage paths of the removed images so callers can clean up
	// object storage.
	DeletePlantsByOwner(ownerID string) ([]string, error)

	// dictionary
	SaveDictionaryEntry(domain.DictionaryEntry) error
	ListDictionary() ([]domain.DictionaryEntry, error)
}

// SessionStore persists session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}

// UserSessionRevoker is an optional capability that revokes all sessions
// issued for a user since a cutoff time.
type UserSessionRevoker interface {
	RevokeUserSessions(userID string, since time.Time) error
}

// JWK represents a JSON Web Key entry served by the JWKS endpoint.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// JWKSProvider is an optional capability exposed by session stores that can
// publish JSON Web Keys.
type JWKSProvider interface {
	JWKS() []JWK
}
