package notify

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taskdeck/taskdeck/internal/platform/httpx"
)

// Handler exposes the notification feed over JSON.
type Handler struct {
	feed *Feed
}

// NewHandler constructs a Handler instance.
func NewHandler(feed *Feed) *Handler {
	return &Handler{feed: feed}
}

// MountRoutes registers notification routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/read-all", h.handleMarkAllRead)
		r.Post("/{notificationID}/read", h.handleMarkRead)
		r.Delete("/{notificationID}", h.handleRemove)
		r.Delete("/", h.handleClear)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":  h.feed.List(),
		"unread": h.feed.Unread(),
	})
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	h.feed.MarkRead(chi.URLParam(r, "notificationID"))
	httpx.NoContent(w)
}

func (h *Handler) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	h.feed.MarkAllRead()
	httpx.NoContent(w)
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	h.feed.Remove(chi.URLParam(r, "notificationID"))
	httpx.NoContent(w)
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	h.feed.Clear()
	httpx.NoContent(w)
}
