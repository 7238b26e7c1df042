package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID        string `gorm:"primaryKey"`
	Provider  string `gorm:"uniqueIndex:idx_user_identity;not null"`
	Subject   string `gorm:"uniqueIndex:idx_user_identity;not null"`
	Nickname  string
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time
}

type PlantModel struct {
	ID            string `gorm:"primaryKey"`
	OwnerID       string `gorm:"not null;index"`
	Latitude      float64
	Longitude     float64
	ImagePath     string `gorm:"not null"`
	Name          *string
	Description   *string
	Memo          *string
	TypeCode      int            `gorm:"not null"`
	ActivityCurve datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt     time.Time      `gorm:"not null;index"`
	UpdatedAt     time.Time
}

type DictionaryModel struct {
	ID          string `gorm:"primaryKey"`
	Name        string `gorm:"not null"`
	Description string `gorm:"type:text"`
	ImagePath   string
	Seasons     datatypes.JSON `gorm:"type:jsonb"`
	UpdatedAt   time.Time      `gorm:"not null;index"`
}
