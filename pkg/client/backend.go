// Package client is the data layer used by app frontends: a gateway that
// talks to the plantatlas services plus in-process stores that cache plant
// records, the dictionary catalog, and signed image URLs.
package client

import (
	"context"
	"errors"

	"plantatlas/pkg/domain"
)

// PlantDraft carries the fields of a record about to be created. The server
// assigns the id and creation timestamp.
type PlantDraft struct {
	Latitude      float64               `json:"latitude"`
	Longitude     float64               `json:"longitude"`
	ImagePath     string                `json:"imagePath"`
	Name          *string               `json:"name,omitempty"`
	Description   *string               `json:"description,omitempty"`
	Memo          *string               `json:"memo,omitempty"`
	TypeCode      domain.PlantType      `json:"typeCode"`
	ActivityCurve *domain.ActivityCurve `json:"activityCurve,omitempty"`
}

// Backend is the remote surface the stores depend on. The production
// implementation is *Gateway; tests substitute fakes.
type Backend interface {
	// FetchPlants returns ownerID's records, or every record when ownerID
	// is empty. Newest first.
	FetchPlants(ctx context.Context, ownerID string) ([]domain.PlantRecord, error)
	// CreatePlant stores a new record and returns it with the
	// server-assigned id and timestamp, so callers can splice it into the
	// local cache without a refetch.
	CreatePlant(ctx context.Context, draft PlantDraft) (domain.PlantRecord, error)
	UpdatePlant(ctx context.Context, id string, patch domain.PlantPatch) error
	DeletePlant(ctx context.Context, id string) error
	// ResolveSignedURLs resolves storage paths to time-limited download
	// URLs. The result has one entry per input path in input order; a path
	// that failed to resolve yields "" at its position without failing the
	// batch.
	ResolveSignedURLs(ctx context.Context, paths []string) ([]string, error)
	FetchDictionary(ctx context.Context) ([]domain.DictionaryEntry, error)
}

// SessionAPI is the auth surface the session gate depends on.
type SessionAPI interface {
	// CheckSession asks the backend whether the current token still maps
	// to a valid session. ok=false with nil error means "not signed in".
	CheckSession(ctx context.Context) (user domain.User, ok bool, err error)
	// SignIn exchanges an external identity token for a session.
	SignIn(ctx context.Context, provider, identityToken string) (domain.User, error)
	SignOut(ctx context.Context) error
	// DeleteAccount asks the backend to remove the account and cascade
	// over its records.
	DeleteAccount(ctx context.Context) error
}

// ErrNotAuthenticated is returned when a mutation requires a session and
// none is attached.
var ErrNotAuthenticated = errors.New("not authenticated")

// ErrLoadFailed is the generic retryable error stores surface when a fetch
// fails; the underlying cause is logged, not propagated.
var ErrLoadFailed = errors.New("could not load data")
