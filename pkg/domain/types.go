package domain

import (
	"errors"
	"fmt"
	"time"
)

// PlantType classifies a discovered plant into one of eight known kinds.
type PlantType int

const (
	TypeUnknown PlantType = iota
	TypeTree
	TypeShrub
	TypeHerb
	TypeGrass
	TypeVine
	TypeFern
	TypeSucculent
)

// Valid reports whether the type code is one of the known enum values.
func (t PlantType) Valid() bool {
	return t >= TypeUnknown && t <= TypeSucculent
}

// ActivityCurve holds one activity level per calendar month, each in [0,1].
type ActivityCurve [12]float64

// Validate checks that every month's value stays inside [0,1].
func (c ActivityCurve) Validate() error {
	for i, v := range c {
		if v < 0 || v > 1 {
			return fmt.Errorf("activity curve month %d out of range: %v", i+1, v)
		}
	}
	return nil
}

// Seasons marks membership per season (spring, summer, autumn, winter).
// Membership is non-exclusive; an entry may belong to several seasons.
type Seasons [4]bool

// PlantRecord is a single user-submitted plant observation.
type PlantRecord struct {
	ID            string         `json:"id"`
	OwnerID       string         `json:"ownerId"`
	Latitude      float64        `json:"latitude"`
	Longitude     float64        `json:"longitude"`
	ImagePath     string         `json:"imagePath"`
	Name          *string        `json:"name,omitempty"`
	Description   *string        `json:"description,omitempty"`
	Memo          *string        `json:"memo,omitempty"`
	TypeCode      PlantType      `json:"typeCode"`
	ActivityCurve *ActivityCurve `json:"activityCurve,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// Validate checks the invariants a record must satisfy before persistence.
func (r PlantRecord) Validate() error {
	if !r.TypeCode.Valid() {
		return fmt.Errorf("unknown plant type code %d", r.TypeCode)
	}
	if r.ActivityCurve != nil {
		if err := r.ActivityCurve.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// PlantPatch carries a partial update. Nil fields are left untouched.
type PlantPatch struct {
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Memo        *string  `json:"memo,omitempty"`
}

// IsZero reports whether the patch changes nothing.
func (p PlantPatch) IsZero() bool {
	return p.Latitude == nil && p.Longitude == nil &&
		p.Name == nil && p.Description == nil && p.Memo == nil
}

// Apply merges the patch into a record.
func (p PlantPatch) Apply(r *PlantRecord) {
	if p.Latitude != nil {
		r.Latitude = *p.Latitude
	}
	if p.Longitude != nil {
		r.Longitude = *p.Longitude
	}
	if p.Name != nil {
		r.Name = p.Name
	}
	if p.Description != nil {
		r.Description = p.Description
	}
	if p.Memo != nil {
		r.Memo = p.Memo
	}
}

// DictionaryEntry is a server-curated reference-catalog record.
// Clients never mutate dictionary entries.
type DictionaryEntry struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ImagePath   string    `json:"imagePath"`
	Seasons     Seasons   `json:"seasons"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// User is an account bound to an external identity provider.
type User struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	Subject   string    `json:"-"`
	Nickname  string    `json:"nickname"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ClassifyCode is the response-code enum of the image classifier.
type ClassifyCode string

const (
	ClassifySuccess       ClassifyCode = "success"
	ClassifyNotPlant      ClassifyCode = "not_plant"
	ClassifyLowConfidence ClassifyCode = "low_confidence"
	ClassifyError         ClassifyCode = "error"
)

// Classification is the result of a remote image classification.
// Name, TypeCode, Description and ActivityCurve are only meaningful
// when Code is ClassifySuccess.
type Classification struct {
	Code          ClassifyCode  `json:"code"`
	Name          string        `json:"name,omitempty"`
	TypeCode      PlantType     `json:"typeCode,omitempty"`
	Description   string        `json:"description,omitempty"`
	ActivityCurve ActivityCurve `json:"activityCurve,omitempty"`
}

// ErrNotFound reports that an id resolved to no stored record.
var ErrNotFound = errors.New("not found")
