package handlers

import (
	"net/http"

	"github.com/applytrack/applytrack/internal/services"
	"github.com/gin-gonic/gin"
)

// CalendarHandler serves the derived calendar events.
type CalendarHandler struct {
	Lifecycle *services.Lifecycle
}

func NewCalendarHandler(lifecycle *services.Lifecycle) *CalendarHandler {
	return &CalendarHandler{Lifecycle: lifecycle}
}

// List is GET /calendar.
func (h *CalendarHandler) List(c *gin.Context) {
	events, err := h.Lifecycle.ListEvents(c.Request.Context(), ownerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}
