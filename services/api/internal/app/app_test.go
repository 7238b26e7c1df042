package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"plantatlas/pkg/classify"
	"plantatlas/pkg/domain"
	"plantatlas/pkg/events"
	"plantatlas/pkg/store"
)

// fakeObjects records puts and deletes and presigns deterministically.
type fakeObjects struct {
	mu      sync.Mutex
	stored  map[string][]byte
	deleted []string
	signErr map[string]bool
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{stored: make(map[string][]byte), signErr: make(map[string]bool)}
}

func (f *fakeObjects) Put(_ context.Context, path string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.stored[path] = data
	f.mu.Unlock()
	return nil
}

func (f *fakeObjects) PresignGet(_ context.Context, path string, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signErr[path] {
		return "", errors.New("object missing")
	}
	return "https://cdn.example/" + path + "?sig=ok", nil
}

func (f *fakeObjects) Delete(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, path)
	delete(f.stored, path)
	return nil
}

type capturedEvents struct {
	mu    sync.Mutex
	kinds []string
}

func (c *capturedEvents) Publish(_ context.Context, ev events.Event) error {
	c.mu.Lock()
	c.kinds = append(c.kinds, ev.Kind)
	c.mu.Unlock()
	return nil
}

func (c *capturedEvents) Close() error { return nil }

func testApp(t *testing.T) (*App, *store.MemoryStore, *fakeObjects, *capturedEvents) {
	t.Helper()
	mem := store.NewMemoryStore()
	objects := newFakeObjects()
	captured := &capturedEvents{}
	a, err := New(Config{
		Store:      mem,
		Objects:    objects,
		Classifier: &classify.StubClassifier{Result: domain.Classification{Code: domain.ClassifySuccess, Name: "Rowan"}},
		Events:     captured,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, mem, objects, captured
}

func owner(id string) domain.User { return domain.User{ID: id} }

func TestCreatePlantAssignsIDAndPublishes(t *testing.T) {
	a, _, _, captured := testApp(t)

	rec, err := a.CreatePlant(context.Background(), owner("u1"), PlantDraft{
		Latitude:  57.7,
		Longitude: 11.9,
		ImagePath: "images/u1/x.jpg",
		TypeCode:  domain.TypeShrub,
	})
	if err != nil {
		t.Fatalf("CreatePlant: %v", err)
	}
	if rec.ID == "" || rec.OwnerID != "u1" || rec.CreatedAt.IsZero() {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(captured.kinds) != 1 || captured.kinds[0] != events.EventRecordCreated {
		t.Fatalf("unexpected events: %v", captured.kinds)
	}
}

func TestCreatePlantValidates(t *testing.T) {
	a, _, _, _ := testApp(t)
	ctx := context.Background()

	if _, err := a.CreatePlant(ctx, owner("u1"), PlantDraft{}); !errors.Is(err, ErrImagePathRequired) {
		t.Fatalf("expected ErrImagePathRequired, got %v", err)
	}

	bad := domain.ActivityCurve{5: 3.5}
	_, err := a.CreatePlant(ctx, owner("u1"), PlantDraft{ImagePath: "x.jpg", ActivityCurve: &bad})
	if err == nil {
		t.Fatal("expected curve validation error")
	}

	if _, err := a.CreatePlant(ctx, owner("u1"), PlantDraft{ImagePath: "x.jpg", TypeCode: domain.PlantType(42)}); err == nil {
		t.Fatal("expected type validation error")
	}
}

func TestUpdatePlantEnforcesOwnership(t *testing.T) {
	a, _, _, captured := testApp(t)
	ctx := context.Background()
	rec, err := a.CreatePlant(ctx, owner("u1"), PlantDraft{ImagePath: "x.jpg"})
	if err != nil {
		t.Fatalf("CreatePlant: %v", err)
	}

	memo := "by the lake"
	if err := a.UpdatePlant(ctx, owner("u2"), rec.ID, domain.PlantPatch{Memo: &memo}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := a.UpdatePlant(ctx, owner("u1"), "missing", domain.PlantPatch{Memo: &memo}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := a.UpdatePlant(ctx, owner("u1"), rec.ID, domain.PlantPatch{}); !errors.Is(err, ErrEmptyPatch) {
		t.Fatalf("expected ErrEmptyPatch, got %v", err)
	}

	if err := a.UpdatePlant(ctx, owner("u1"), rec.ID, domain.PlantPatch{Memo: &memo}); err != nil {
		t.Fatalf("UpdatePlant: %v", err)
	}
	got, _, _ := a.GetPlant(rec.ID)
	if got.Memo == nil || *got.Memo != memo {
		t.Fatalf("memo not applied: %v", got.Memo)
	}
	if captured.kinds[len(captured.kinds)-1] != events.EventRecordUpdated {
		t.Fatalf("unexpected events: %v", captured.kinds)
	}
}

func TestDeletePlantRemovesImage(t *testing.T) {
	a, _, objects, captured := testApp(t)
	ctx := context.Background()
	rec, err := a.CreatePlant(ctx, owner("u1"), PlantDraft{ImagePath: "images/u1/x.jpg"})
	if err != nil {
		t.Fatalf("CreatePlant: %v", err)
	}

	if err := a.DeletePlant(ctx, owner("u2"), rec.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := a.DeletePlant(ctx, owner("u1"), rec.ID); err != nil {
		t.Fatalf("DeletePlant: %v", err)
	}
	if len(objects.deleted) != 1 || objects.deleted[0] != "images/u1/x.jpg" {
		t.Fatalf("image not deleted: %v", objects.deleted)
	}
	if captured.kinds[len(captured.kinds)-1] != events.EventRecordDeleted {
		t.Fatalf("unexpected events: %v", captured.kinds)
	}
}

func TestSignURLsKeepsOrderAndEmptiesFailures(t *testing.T) {
	a, _, objects, _ := testApp(t)
	objects.signErr["broken.jpg"] = true

	urls := a.SignURLs(context.Background(), []string{"a.jpg", "broken.jpg", "", "c.jpg"})
	if len(urls) != 4 {
		t.Fatalf("expected 4 urls, got %d", len(urls))
	}
	if urls[0] == "" || urls[3] == "" {
		t.Fatalf("healthy paths must sign: %v", urls)
	}
	if urls[1] != "" || urls[2] != "" {
		t.Fatalf("failed and empty paths must yield empty strings: %v", urls)
	}
}

func TestUploadImageScopesPathToOwner(t *testing.T) {
	a, _, objects, _ := testApp(t)

	path, err := a.UploadImage(context.Background(), owner("u1"), "photo.JPG", bytes.NewReader([]byte("img")), 3)
	if err != nil {
		t.Fatalf("UploadImage: %v", err)
	}
	if !strings.HasPrefix(path, "images/u1/") || !strings.HasSuffix(path, ".jpg") {
		t.Fatalf("unexpected path %q", path)
	}
	if _, ok := objects.stored[path]; !ok {
		t.Fatal("object not stored")
	}
}

func TestDeleteAccountCascades(t *testing.T) {
	a, mem, objects, captured := testApp(t)
	ctx := context.Background()
	_ = mem.SaveUser(domain.User{ID: "u1", Provider: "apple", Subject: "s1"})
	if _, err := a.CreatePlant(ctx, owner("u1"), PlantDraft{ImagePath: "images/u1/a.jpg"}); err != nil {
		t.Fatalf("CreatePlant: %v", err)
	}
	if _, err := a.CreatePlant(ctx, owner("u1"), PlantDraft{ImagePath: "images/u1/b.jpg"}); err != nil {
		t.Fatalf("CreatePlant: %v", err)
	}
	if _, err := a.CreatePlant(ctx, owner("u2"), PlantDraft{ImagePath: "images/u2/c.jpg"}); err != nil {
		t.Fatalf("CreatePlant: %v", err)
	}

	if err := a.DeleteAccount(ctx, "u1"); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}

	remaining, _ := a.ListPlants("")
	if len(remaining) != 1 || remaining[0].OwnerID != "u2" {
		t.Fatalf("unexpected survivors: %+v", remaining)
	}
	if len(objects.deleted) != 2 {
		t.Fatalf("expected 2 deleted images, got %v", objects.deleted)
	}
	if _, found, _ := mem.GetUserByID("u1"); found {
		t.Fatal("user still present after cascade")
	}
	if captured.kinds[len(captured.kinds)-1] != events.EventUserDeleted {
		t.Fatalf("unexpected events: %v", captured.kinds)
	}
}
