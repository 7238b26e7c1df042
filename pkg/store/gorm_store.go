package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"plantatlas/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&UserModel{}, &PlantModel{}, &DictionaryModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveUser stores or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"nickname", "updated_at"}),
	}).Create(&model).Error
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByIdentity looks up a user by external identity.
func (s *GormStore) GetUserByIdentity(provider, subject string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("provider = ? AND subject = ?", provider, subject).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// DeleteUser removes a user row. Plant records are removed separately by the
// account-deletion cascade so their storage paths can be collected first.
func (s *GormStore) DeleteUser(id string) error {
	return s.db.Delete(&UserModel{}, "id = ?", id).Error
}

// SavePlant stores or updates a plant record.
func (s *GormStore) SavePlant(r domain.PlantRecord) error {
	model, err := plantToModel(r)
	if err != nil {
		return err
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"latitude", "longitude", "name", "description", "memo", "updated_at"}),
	}).Create(&model).Error
}

// PatchPlant applies a partial update to a record.
func (s *GormStore) PatchPlant(id string, patch domain.PlantPatch) error {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if patch.Latitude != nil {
		updates["latitude"] = *patch.Latitude
	}
	if patch.Longitude != nil {
		updates["longitude"] = *patch.Longitude
	}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.Memo != nil {
		updates["memo"] = *patch.Memo
	}
	tx := s.db.Model(&PlantModel{}).Where("id = ?", id).Updates(updates)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListPlants returns all records, newest first.
func (s *GormStore) ListPlants() ([]domain.PlantRecord, error) {
	return s.listPlants("created_at DESC")
}

// ListPlantsByOwner returns one owner's records, newest first.
func (s *GormStore) ListPlantsByOwner(ownerID string) ([]domain.PlantRecord, error) {
	return s.listPlants("created_at DESC", "owner_id = ?", ownerID)
}

func (s *GormStore) listPlants(order string, conds ...any) ([]domain.PlantRecord, error) {
	var models []PlantModel
	tx := s.db.Order(order)
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.PlantRecord, 0, len(models))
	for _, m := range models {
		r, err := plantFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, nil
}

// GetPlant retrieves a record by id.
func (s *GormStore) GetPlant(id string) (domain.PlantRecord, bool, error) {
	var model PlantModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.PlantRecord{}, false, nil
		}
		return domain.PlantRecord{}, false, err
	}
	r, err := plantFromModel(model)
	if err != nil {
		return domain.PlantRecord{}, false, err
	}
	return r, true, nil
}

// DeletePlant removes a record by id.
func (s *GormStore) DeletePlant(id string) error {
	return s.db.Delete(&PlantModel{}, "id = ?", id).Error
}

// DeletePlantsByOwner removes all of an owner's records and returns the
// storage paths of the removed images.
func (s *GormStore) DeletePlantsByOwner(ownerID string) ([]string, error) {
	var paths []string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var models []PlantModel
		if err := tx.Where("owner_id = ?", ownerID).Find(&models).Error; err != nil {
			return err
		}
		for _, m := range models {
			if m.ImagePath != "" {
				paths = append(paths, m.ImagePath)
			}
		}
		return tx.Delete(&PlantModel{}, "owner_id = ?", ownerID).Error
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// SaveDictionaryEntry stores or updates a catalog entry.
func (s *GormStore) SaveDictionaryEntry(e domain.DictionaryEntry) error {
	model, err := dictionaryToModel(e)
	if err != nil {
		return err
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "description", "image_path", "seasons", "updated_at"}),
	}).Create(&model).Error
}

// ListDictionary returns the catalog ordered by last update, newest first.
func (s *GormStore) ListDictionary() ([]domain.DictionaryEntry, error) {
	var models []DictionaryModel
	if err := s.db.Order("updated_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.DictionaryEntry, 0, len(models))
	for _, m := range models {
		e, err := dictionaryFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:        u.ID,
		Provider:  u.Provider,
		Subject:   u.Subject,
		Nickname:  u.Nickname,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:        m.ID,
		Provider:  m.Provider,
		Subject:   m.Subject,
		Nickname:  m.Nickname,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func plantToModel(r domain.PlantRecord) (PlantModel, error) {
	model := PlantModel{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		ImagePath:   r.ImagePath,
		Name:        r.Name,
		Description: r.Description,
		Memo:        r.Memo,
		TypeCode:    int(r.TypeCode),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   time.Now().UTC(),
	}
	if r.ActivityCurve != nil {
		raw, err := json.Marshal(r.ActivityCurve)
		if err != nil {
			return PlantModel{}, fmt.Errorf("marshal activity curve: %w", err)
		}
		model.ActivityCurve = datatypes.JSON(raw)
	}
	return model, nil
}

func plantFromModel(m PlantModel) (domain.PlantRecord, error) {
	r := domain.PlantRecord{
		ID:          m.ID,
		OwnerID:     m.OwnerID,
		Latitude:    m.Latitude,
		Longitude:   m.Longitude,
		ImagePath:   m.ImagePath,
		Name:        m.Name,
		Description: m.Description,
		Memo:        m.Memo,
		TypeCode:    domain.PlantType(m.TypeCode),
		CreatedAt:   m.CreatedAt,
	}
	if len(m.ActivityCurve) > 0 {
		var curve domain.ActivityCurve
		if err := json.Unmarshal(m.ActivityCurve, &curve); err != nil {
			return domain.PlantRecord{}, fmt.Errorf("unmarshal activity curve: %w", err)
		}
		r.ActivityCurve = &curve
	}
	return r, nil
}

func dictionaryToModel(e domain.DictionaryEntry) (DictionaryModel, error) {
	raw, err := json.Marshal(e.Seasons)
	if err != nil {
		return DictionaryModel{}, fmt.Errorf("marshal seasons: %w", err)
	}
	return DictionaryModel{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		ImagePath:   e.ImagePath,
		Seasons:     datatypes.JSON(raw),
		UpdatedAt:   e.UpdatedAt,
	}, nil
}

func dictionaryFromModel(m DictionaryModel) (domain.DictionaryEntry, error) {
	e := domain.DictionaryEntry{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		ImagePath:   m.ImagePath,
		UpdatedAt:   m.UpdatedAt,
	}
	if len(m.Seasons) > 0 {
		if err := json.Unmarshal(m.Seasons, &e.Seasons); err != nil {
			return domain.DictionaryEntry{}, fmt.Errorf("unmarshal seasons: %w", err)
		}
	}
	return e, nil
}
