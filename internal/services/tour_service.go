package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/citytours/backend/internal/logging"
	"github.com/citytours/backend/internal/metrics"
	"github.com/citytours/backend/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// MediaLister lists media attached to a context.
type MediaLister interface {
	List(ctx context.Context, f ListFilter) (*ListResult, error)
}

// TourDetail is a tour with its stops and attached media.
type TourDetail struct {
	models.Tour
	Media []MediaObject `json:"media"`
}

type TourService struct {
	db    *gorm.DB
	cache *TourCache
	media MediaLister
	log   zerolog.Logger
}

func NewTourService(db *gorm.DB, cache *TourCache, media MediaLister, log zerolog.Logger) *TourService {
	return &TourService{
		db:    db,
		cache: cache,
		media: media,
		log:   logging.Component(log, "tour-service"),
	}
}

// ListByCity returns published tours of a city, reading through the cache.
func (s *TourService) ListByCity(ctx context.Context, city string) ([]models.Tour, error) {
	if strings.TrimSpace(city) == "" {
		return nil, &ValidationError{Field: "city", Message: "is required"}
	}
	if tours, ok := s.cache.Get(city); ok {
		metrics.RecordCacheLookup(true)
		return tours, nil
	}
	metrics.RecordCacheLookup(false)

	var tours []models.Tour
	err := s.db.WithContext(ctx).
		Where("LOWER(city) = ? AND is_published = ?", cityKey(city), true).
		Order("title ASC").
		Find(&tours).Error
	if err != nil {
		return nil, fmt.Errorf("list tours: %w", err)
	}
	s.cache.Set(city, tours)
	return tours, nil
}

// GetTour loads a tour with its POIs and the media attached to it.
func (s *TourService) GetTour(ctx context.Context, id uuid.UUID) (*TourDetail, error) {
	var tour models.Tour
	if err := s.db.WithContext(ctx).Preload("POIs").First(&tour, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "tour", ID: id.String()}
		}
		return nil, fmt.Errorf("get tour: %w", err)
	}

	media, err := s.media.List(ctx, ListFilter{
		ContextType: string(models.MediaContextTour),
		ContextID:   id.String(),
		SortBy:      SortByCreatedAt,
		SortOrder:   SortAsc,
	})
	if err != nil {
		return nil, err
	}
	return &TourDetail{Tour: tour, Media: media.Items}, nil
}

// CreateTour stores a tour and drops the cached list of its city.
func (s *TourService) CreateTour(ctx context.Context, tour *models.Tour) error {
	if strings.TrimSpace(tour.City) == "" || strings.TrimSpace(tour.Title) == "" {
		return &ValidationError{Field: "tour", Message: "city and title are required"}
	}
	if err := s.db.WithContext(ctx).Create(tour).Error; err != nil {
		return fmt.Errorf("create tour: %w", err)
	}
	s.cache.Invalidate(tour.City)
	s.log.Info().Str("tour_id", tour.ID.String()).Str("city", tour.City).Msg("tour created")
	return nil
}

// ClearCache drops every cached city.
func (s *TourService) ClearCache() {
	s.cache.Clear()
	s.log.Info().Msg("tour cache cleared")
}
