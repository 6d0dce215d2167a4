package handlers

import (
	"net/http"

	"github.com/applytrack/applytrack/internal/dtos"
	"github.com/applytrack/applytrack/internal/models"
	"github.com/applytrack/applytrack/internal/services"
	"github.com/gin-gonic/gin"
)

// SyncHandler exposes batch ingestion for the browser extension and other
// collaborators.
type SyncHandler struct {
	Sync *services.SyncService
}

func NewSyncHandler(sync *services.SyncService) *SyncHandler {
	return &SyncHandler{Sync: sync}
}

// Run is POST /sync.
func (h *SyncHandler) Run(c *gin.Context) {
	var req dtos.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON format: " + err.Error()})
		return
	}

	report, err := h.Sync.RunSync(c.Request.Context(), ownerID(c), models.Source(req.Source), req.Items)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dtos.SyncResponse{
		Added:   report.Added,
		Skipped: report.Skipped,
		Updated: report.Updated,
	})
}
