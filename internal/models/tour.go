package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tour is a curated walking tour in one city.
type Tour struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	City            string    `gorm:"size:100;index;not null" json:"city"`
	Title           string    `gorm:"size:255;not null" json:"title"`
	Description     string    `gorm:"type:text" json:"description"`
	DurationMinutes int       `json:"durationMinutes"`
	DistanceMeters  int       `json:"distanceMeters"`
	IsPublished     bool      `gorm:"default:false;index" json:"isPublished"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	POIs []POI `gorm:"many2many:tour_pois;" json:"pois,omitempty"`
}

func (t *Tour) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// POI is a point of interest visited by tours.
type POI struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	City        string    `gorm:"size:100;index;not null" json:"city"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (POI) TableName() string { return "pois" }

func (p *POI) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
