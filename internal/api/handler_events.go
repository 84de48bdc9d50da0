package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetLatestEvent returns the most recent event emitted on a topic.
func (h *Handler) GetLatestEvent(c *gin.Context) {
	data, ok := h.hub.Latest(c.Param("topic"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no event for topic"})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}
