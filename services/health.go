package services

import (
	"time"

	"taskmarket-backend/models"
)

// HealthService handles health check business logic
type HealthService struct{}

// NewHealthService creates a new health service
func NewHealthService() *HealthService {
	return &HealthService{}
}

// GetHealthStatus returns current health status
func (s *HealthService) GetHealthStatus() *models.HealthResponse {
	return &models.HealthResponse{
		Status:    "healthy",
		Message:   "Marketplace backend is running",
		Timestamp: time.Now().Unix(),
	}
}
