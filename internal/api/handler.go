package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"laundry-control-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store    store.Subscriptions
	webpush  *webpush.Options
	hub      *Hub
	commands CommandSink
}

// NewHandler creates a new API handler. webpushOptions may be nil when push
// notifications are disabled.
func NewHandler(s store.Subscriptions, webpushOptions *webpush.Options, hub *Hub, commands CommandSink) *Handler {
	return &Handler{
		store:    s,
		webpush:  webpushOptions,
		hub:      hub,
		commands: commands,
	}
}
