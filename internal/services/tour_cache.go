package services

import (
	"strings"
	"sync"

	"github.com/citytours/backend/internal/models"
)

// TourCache holds published tours per city. Entries live until invalidated; there is no
// eviction, so Invalidate or Clear must be called after tour content changes.
type TourCache struct {
	mu     sync.RWMutex
	byCity map[string][]models.Tour
}

func NewTourCache() *TourCache {
	return &TourCache{byCity: make(map[string][]models.Tour)}
}

func cityKey(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}

func (c *TourCache) Get(city string) ([]models.Tour, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tours, ok := c.byCity[cityKey(city)]
	return tours, ok
}

func (c *TourCache) Set(city string, tours []models.Tour) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byCity[cityKey(city)] = tours
}

func (c *TourCache) Invalidate(city string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byCity, cityKey(city))
}

func (c *TourCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byCity = make(map[string][]models.Tour)
}

func (c *TourCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byCity)
}
