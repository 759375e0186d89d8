package handlers

import (
	"net/http"

	"github.com/citytours/backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// statusForCode maps service error codes onto HTTP statuses.
func statusForCode(code string) int {
	switch code {
	case services.CodeValidation:
		return http.StatusBadRequest
	case services.CodeQuotaExceeded:
		return http.StatusRequestEntityTooLarge
	case services.CodeProcessing:
		return http.StatusUnprocessableEntity
	case services.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {"error": code, "message": ...}. Internal details of 5xx errors are
// logged, not returned.
func respondError(c *gin.Context, log zerolog.Logger, err error) {
	code := services.ErrorCode(err)
	status := statusForCode(code)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("code", code).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": code, "message": services.PublicMessage(err)})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": services.CodeValidation, "message": message})
}
