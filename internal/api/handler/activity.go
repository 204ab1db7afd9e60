package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/reviewgate/reviewgate/internal/activity"
)

// ActivityHandler exposes the recent intake activity ring.
type ActivityHandler struct {
	buffer *activity.Buffer
}

// NewActivityHandler creates a new activity handler.
func NewActivityHandler(buf *activity.Buffer) *ActivityHandler {
	return &ActivityHandler{buffer: buf}
}

// ListActivity handles GET /api/v1/activity
func (h *ActivityHandler) ListActivity(c *gin.Context) {
	limit := activity.DefaultCapacity
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v < limit {
			limit = v
		}
	}

	events := h.buffer.Tail(limit)
	c.JSON(http.StatusOK, gin.H{
		"items": events,
		"count": len(events),
	})
}
