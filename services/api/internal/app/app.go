package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"strings"
	"time"

	"plantatlas/pkg/classify"
	"plantatlas/pkg/domain"
	"plantatlas/pkg/events"
	"plantatlas/pkg/storage"
	"plantatlas/pkg/store"
)

var (
	ErrImagePathRequired = errors.New("imagePath is required")
	ErrEmptyPatch        = errors.New("patch changes nothing")
	ErrForbidden         = errors.New("forbidden")
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL    string
	Store          store.Store
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	Objects        storage.ObjectStore
	Classifier     classify.Classifier
	Events         events.Publisher
}

// App is the core application service wiring together storage and domain logic.
type App struct {
	store      store.Store
	objects    storage.ObjectStore
	classifier classify.Classifier
	events     events.Publisher
}

// New constructs the application with database-backed record storage and
// object storage for images.
func New(cfg Config) (*App, error) {
	objStore := cfg.Objects
	if objStore == nil {
		var err error
		objStore, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, err
		}
	}
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	if cfg.Classifier == nil {
		return nil, fmt.Errorf("classifier required")
	}
	pub := cfg.Events
	if pub == nil {
		pub = events.NopPublisher{}
	}
	return &App{
		store:      dataStore,
		objects:    objStore,
		classifier: cfg.Classifier,
		events:     pub,
	}, nil
}

// PlantDraft carries the client-supplied fields of a new record.
type PlantDraft struct {
	Latitude      float64               `json:"latitude"`
	Longitude     float64               `json:"longitude"`
	ImagePath     string                `json:"imagePath"`
	Name          *string               `json:"name"`
	Description   *string               `json:"description"`
	Memo          *string               `json:"memo"`
	TypeCode      domain.PlantType      `json:"typeCode"`
	ActivityCurve *domain.ActivityCurve `json:"activityCurve"`
}

// CreatePlant persists a record owned by owner and returns it with the
// assigned id and timestamp.
func (a *App) CreatePlant(ctx context.Context, owner domain.User, draft PlantDraft) (domain.PlantRecord, error) {
	if strings.TrimSpace(draft.ImagePath) == "" {
		return domain.PlantRecord{}, ErrImagePathRequired
	}
	rec := domain.PlantRecord{
		ID:            store.NewID(),
		OwnerID:       owner.ID,
		Latitude:      draft.Latitude,
		Longitude:     draft.Longitude,
		ImagePath:     strings.TrimSpace(draft.ImagePath),
		Name:          draft.Name,
		Description:   draft.Description,
		Memo:          draft.Memo,
		TypeCode:      draft.TypeCode,
		ActivityCurve: draft.ActivityCurve,
		CreatedAt:     time.Now().UTC(),
	}
	if err := rec.Validate(); err != nil {
		return domain.PlantRecord{}, err
	}
	if err := a.store.SavePlant(rec); err != nil {
		return domain.PlantRecord{}, fmt.Errorf("save plant: %w", err)
	}
	a.publish(ctx, events.Event{Kind: events.EventRecordCreated, RecordID: rec.ID, OwnerID: rec.OwnerID, Record: &rec})
	return rec, nil
}

// ListPlants returns every record, or only ownerID's when non-empty.
// Newest first.
func (a *App) ListPlants(ownerID string) ([]domain.PlantRecord, error) {
	if ownerID == "" {
		return a.store.ListPlants()
	}
	return a.store.ListPlantsByOwner(ownerID)
}

// GetPlant returns one record by id.
func (a *App) GetPlant(id string) (domain.PlantRecord, bool, error) {
	return a.store.GetPlant(id)
}

// UpdatePlant applies patch to the record when user owns it.
func (a *App) UpdatePlant(ctx context.Context, user domain.User, id string, patch domain.PlantPatch) error {
	if patch.IsZero() {
		return ErrEmptyPatch
	}
	rec, found, err := a.store.GetPlant(id)
	if err != nil {
		return fmt.Errorf("fetch plant: %w", err)
	}
	if !found {
		return domain.ErrNotFound
	}
	if rec.OwnerID != user.ID {
		return ErrForbidden
	}
	if err := a.store.PatchPlant(id, patch); err != nil {
		return fmt.Errorf("patch plant: %w", err)
	}
	patch.Apply(&rec)
	a.publish(ctx, events.Event{Kind: events.EventRecordUpdated, RecordID: id, OwnerID: rec.OwnerID, Record: &rec})
	return nil
}

// DeletePlant removes the record and its stored image when user owns it.
func (a *App) DeletePlant(ctx context.Context, user domain.User, id string) error {
	rec, found, err := a.store.GetPlant(id)
	if err != nil {
		return fmt.Errorf("fetch plant: %w", err)
	}
	if !found {
		return domain.ErrNotFound
	}
	if rec.OwnerID != user.ID {
		return ErrForbidden
	}
	if err := a.store.DeletePlant(id); err != nil {
		return fmt.Errorf("delete plant: %w", err)
	}
	if rec.ImagePath != "" {
		if err := a.objects.Delete(ctx, rec.ImagePath); err != nil {
			slog.Warn("delete image failed", "path", rec.ImagePath, "err", err)
		}
	}
	a.publish(ctx, events.Event{Kind: events.EventRecordDeleted, RecordID: id, OwnerID: rec.OwnerID})
	return nil
}

// Dictionary returns the reference catalog, newest update first.
func (a *App) Dictionary() ([]domain.DictionaryEntry, error) {
	return a.store.ListDictionary()
}

// SignURLs resolves storage paths to presigned download URLs. One result
// per input path, in input order; a path that cannot be signed yields ""
// at its position instead of failing the batch.
func (a *App) SignURLs(ctx context.Context, paths []string) []string {
	urls := make([]string, len(paths))
	for i, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		u, err := a.objects.PresignGet(ctx, p, storage.SignedURLExpiry)
		if err != nil {
			slog.Warn("presign failed", "path", p, "err", err)
			continue
		}
		urls[i] = u
	}
	return urls
}

// UploadImage stores an image under a fresh storage path scoped to the
// owner and returns the path.
func (a *App) UploadImage(ctx context.Context, owner domain.User, filename string, r io.Reader, size int64) (string, error) {
	ext := strings.ToLower(path.Ext(filename))
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	storagePath := "images/" + owner.ID + "/" + store.NewID() + ext
	if err := a.objects.Put(ctx, storagePath, r, size, contentType); err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	return storagePath, nil
}

// Classify sends an image to the classifier and returns its normalized
// verdict.
func (a *App) Classify(ctx context.Context, req classify.Request) (domain.Classification, error) {
	return a.classifier.Classify(ctx, req)
}

// DeleteAccount removes every record owned by userID, their stored images,
// and finally the account itself. Used by the deletion-queue worker.
func (a *App) DeleteAccount(ctx context.Context, userID string) error {
	imagePaths, err := a.store.DeletePlantsByOwner(userID)
	if err != nil {
		return fmt.Errorf("delete plants: %w", err)
	}
	for _, p := range imagePaths {
		if p == "" {
			continue
		}
		if err := a.objects.Delete(ctx, p); err != nil {
			slog.Warn("delete image failed", "path", p, "err", err)
		}
	}
	if err := a.store.DeleteUser(userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	a.publish(ctx, events.Event{Kind: events.EventUserDeleted, OwnerID: userID})
	return nil
}

func (a *App) publish(ctx context.Context, ev events.Event) {
	ev.OccurredAt = time.Now().UTC()
	if err := a.events.Publish(ctx, ev); err != nil {
		slog.Warn("publish event failed", "kind", ev.Kind, "err", err)
	}
}
