package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const maxCommandSize = 8 << 20

// PostCommand queues one command for the controller. The command is validated
// by the controller loop, which reports rejections as notifications.
func (h *Handler) PostCommand(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCommandSize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read body"})
		return
	}
	if len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command body is required"})
		return
	}

	if err := h.commands.Submit(c.Request.Context(), body); err != nil {
		log.Warn().Err(err).Msg("Could not queue command")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "controller unavailable"})
		return
	}

	c.Status(http.StatusAccepted)
}

// ServePort upgrades to the websocket command/event port.
func (h *Handler) ServePort(c *gin.Context) {
	h.hub.serve(c.Writer, c.Request, h.commands)
}
