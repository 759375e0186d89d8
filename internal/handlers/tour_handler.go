package handlers

import (
	"net/http"

	"github.com/citytours/backend/internal/logging"
	"github.com/citytours/backend/internal/models"
	"github.com/citytours/backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type TourHandler struct {
	tourService *services.TourService
	log         zerolog.Logger
}

func NewTourHandler(tourService *services.TourService, log zerolog.Logger) *TourHandler {
	return &TourHandler{
		tourService: tourService,
		log:         logging.Component(log, "tour-handler"),
	}
}

// ListByCity returns the published tours of a city
// GET /api/v1/cities/:city/tours
func (h *TourHandler) ListByCity(c *gin.Context) {
	city := c.Param("city")
	tours, err := h.tourService.ListByCity(c.Request.Context(), city)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"city": city, "tours": tours})
}

// GetTour returns a tour with its POIs and attached media
// GET /api/v1/tours/:id
func (h *TourHandler) GetTour(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid tour ID")
		return
	}
	tour, err := h.tourService.GetTour(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, tour)
}

type createTourRequest struct {
	City            string `json:"city" binding:"required,max=100"`
	Title           string `json:"title" binding:"required,max=255"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"durationMinutes" binding:"gte=0"`
	DistanceMeters  int    `json:"distanceMeters" binding:"gte=0"`
	IsPublished     bool   `json:"isPublished"`
}

// CreateTour adds a tour (admin)
// POST /api/v1/tours
func (h *TourHandler) CreateTour(c *gin.Context) {
	var req createTourRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	tour := &models.Tour{
		City:            req.City,
		Title:           req.Title,
		Description:     req.Description,
		DurationMinutes: req.DurationMinutes,
		DistanceMeters:  req.DistanceMeters,
		IsPublished:     req.IsPublished,
	}
	if err := h.tourService.CreateTour(c.Request.Context(), tour); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, tour)
}

// ClearCache drops every cached city listing (admin)
// POST /api/v1/tours/cache/clear
func (h *TourHandler) ClearCache(c *gin.Context) {
	h.tourService.ClearCache()
	c.JSON(http.StatusOK, gin.H{"message": "tour cache cleared"})
}
