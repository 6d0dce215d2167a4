package handlers

import (
	"errors"
	"net/http"

	"github.com/applytrack/applytrack/internal/services"
	"github.com/gin-gonic/gin"
)

// ownerIDKey is where OwnerRequired stores the caller's identity.
const ownerIDKey = "ownerID"

// OwnerRequired extracts the owner identity from the X-User-ID header.
// Session issuance and verification live in the auth gateway in front of
// this service; here the header's presence is the contract.
func OwnerRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID := c.GetHeader("X-User-ID")
		if ownerID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing X-User-ID header"})
			return
		}
		c.Set(ownerIDKey, ownerID)
		c.Next()
	}
}

func ownerID(c *gin.Context) string {
	return c.GetString(ownerIDKey)
}

// respondError maps engine errors onto HTTP statuses. Raw internals never
// leak; batch counters absorb per-item failures before this point.
func respondError(c *gin.Context, err error) {
	switch {
	case services.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "application not found"})
	case errors.Is(err, services.ErrSyncInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "a sync is already running"})
	case errors.Is(err, services.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid status transition"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// HealthCheck is the GET /health endpoint.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
