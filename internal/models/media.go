package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MediaContextType names the entity a media object is attached to.
type MediaContextType string

const (
	MediaContextTour       MediaContextType = "tour"
	MediaContextPOI        MediaContextType = "poi"
	MediaContextStandalone MediaContextType = "standalone"
)

// Valid reports whether t is one of the known context types.
func (t MediaContextType) Valid() bool {
	switch t {
	case MediaContextTour, MediaContextPOI, MediaContextStandalone:
		return true
	}
	return false
}

// MediaRecord is one stored image in the media library.
// Size and dimensions describe the optimized file on disk, never the upload.
type MediaRecord struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Filename     string            `gorm:"size:255;uniqueIndex;not null"`
	OriginalName string            `gorm:"size:255"`
	MimeType     string            `gorm:"size:120;not null"`
	SizeBytes    int64             `gorm:"not null"`
	Width        int               `gorm:"not null"`
	Height       int               `gorm:"not null"`
	URL          string            `gorm:"size:512;not null"`
	ThumbnailURL string            `gorm:"size:512;not null"`
	Title        *string           `gorm:"size:255"`
	AltText      *string           `gorm:"size:500"`
	ContextType  *MediaContextType `gorm:"size:16;index:idx_media_context"`
	ContextID    *string           `gorm:"size:64;index:idx_media_context"`
	UploadedBy   string            `gorm:"size:64;index;not null"`

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time

	Tags []MediaTag `gorm:"foreignKey:MediaID;constraint:OnDelete:CASCADE"`
}

func (MediaRecord) TableName() string { return "media_objects" }

func (m *MediaRecord) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// MediaTag stores one tag of a media object; Position keeps the display order.
type MediaTag struct {
	MediaID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	Tag      string    `gorm:"size:64;primaryKey;index"`
	Position int       `gorm:"not null"`
}

func (MediaTag) TableName() string { return "media_tags" }
