package projects

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/taskdeck/taskdeck/internal/access"
	"github.com/taskdeck/taskdeck/internal/gateway"
	"github.com/taskdeck/taskdeck/internal/notify"
	"github.com/taskdeck/taskdeck/internal/platform/httpx"
	"github.com/taskdeck/taskdeck/internal/session"
	"github.com/taskdeck/taskdeck/internal/syncstore"
)

// Handler exposes project CRUD over JSON. Every mutation is gated by the
// access evaluator before it reaches the store; the store itself trusts
// the caller.
type Handler struct {
	logger   *slog.Logger
	store    *syncstore.Store[Project]
	sessions *session.Resolver
	feed     *notify.Feed
	validate *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, store *syncstore.Store[Project], sessions *session.Resolver, feed *notify.Feed) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		store:    store,
		sessions: sessions,
		feed:     feed,
		validate: validator.New(),
	}
}

// MountRoutes registers project routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/projects", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Patch("/{projectID}", h.handleUpdate)
		r.Delete("/{projectID}", h.handleDelete)
	})
}

type listResponse struct {
	Items []Project `json:"items"`
	Error string    `json:"error,omitempty"`
}

// handleList refreshes the collection and returns it. A failed refresh
// still returns the previous items with the error alongside.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	role, err := h.sessions.Role(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if decision := access.CheckAccess(access.ActionView, role, access.Resource{Kind: access.KindProject}, ""); !decision.Allowed {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", decision.Reason)
		return
	}

	resp := listResponse{}
	if err := h.store.FetchAll(r.Context(), nil); err != nil {
		resp.Error = err.Error()
	}
	resp.Items = h.store.Items()
	httpx.JSON(w, http.StatusOK, resp)
}

type createProjectRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Status      string `json:"status" validate:"omitempty,oneof=planning active on_hold completed"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ident, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	if decision := access.CheckAccess(access.ActionCreate, role, access.Resource{Kind: access.KindProject}, ident.ID); !decision.Allowed {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", decision.Reason)
		return
	}

	var req createProjectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	created, err := h.store.Create(r.Context(), Project{
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.feed.Append(notify.CategoryProject, "Project created",
		fmt.Sprintf("%q was created", created.Name),
		map[string]string{"project_id": created.ID})
	httpx.JSON(w, http.StatusCreated, created)
}

type updateProjectRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Status      *string `json:"status" validate:"omitempty,oneof=planning active on_hold completed"`
}

func (rq updateProjectRequest) patch() syncstore.Patch {
	patch := syncstore.Patch{}
	if rq.Name != nil {
		patch["name"] = *rq.Name
	}
	if rq.Description != nil {
		patch["description"] = *rq.Description
	}
	if rq.Status != nil {
		patch["status"] = *rq.Status
	}
	return patch
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ident, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "projectID")
	existing, found := h.store.Get(id)
	if !found {
		httpx.RespondError(w, syncstore.ErrNotFound)
		return
	}
	if decision := access.CheckAccess(access.ActionEdit, role, access.Resource{Kind: access.KindProject, OwnerID: existing.CreatedBy}, ident.ID); !decision.Allowed {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", decision.Reason)
		return
	}

	var req updateProjectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	patch := req.patch()
	if len(patch) == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "no fields to update")
		return
	}

	updated, err := h.store.Update(r.Context(), id, patch)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.feed.Append(notify.CategoryProject, "Project updated",
		fmt.Sprintf("%q was updated", updated.Name),
		map[string]string{"project_id": updated.ID})
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ident, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "projectID")
	existing, found := h.store.Get(id)
	if !found {
		httpx.RespondError(w, syncstore.ErrNotFound)
		return
	}
	if decision := access.CheckAccess(access.ActionDelete, role, access.Resource{Kind: access.KindProject, OwnerID: existing.CreatedBy}, ident.ID); !decision.Allowed {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", decision.Reason)
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.feed.Append(notify.CategoryProject, "Project deleted",
		fmt.Sprintf("%q was deleted", existing.Name),
		map[string]string{"project_id": id})
	httpx.NoContent(w)
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (*gateway.Identity, access.Role, bool) {
	ident, err := h.sessions.Identity()
	if err != nil {
		httpx.RespondError(w, err)
		return nil, "", false
	}
	role, err := h.sessions.Role(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return nil, "", false
	}
	return ident, role, true
}
