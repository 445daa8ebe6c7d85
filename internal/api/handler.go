package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"arduino-fleet-backend/internal/analytics"
	"arduino-fleet-backend/internal/notification"
	"arduino-fleet-backend/internal/notion"
	"arduino-fleet-backend/internal/store"
	"arduino-fleet-backend/internal/toggle"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store     store.Store
	webpush   *webpush.Options
	toggles   *toggle.Store
	notion    *notion.Client
	analytics *analytics.Client
	pool      *notification.WorkerPool
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, webpushOptions *webpush.Options, pool *notification.WorkerPool, notionClient *notion.Client, analyticsClient *analytics.Client) *Handler {
	return &Handler{
		store:     s,
		webpush:   webpushOptions,
		toggles:   toggle.New(),
		notion:    notionClient,
		analytics: analyticsClient,
		pool:      pool,
	}
}
