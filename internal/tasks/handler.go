package tasks

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/taskdeck/taskdeck/internal/access"
	"github.com/taskdeck/taskdeck/internal/attachments"
	"github.com/taskdeck/taskdeck/internal/gateway"
	"github.com/taskdeck/taskdeck/internal/notify"
	"github.com/taskdeck/taskdeck/internal/platform/httpx"
	"github.com/taskdeck/taskdeck/internal/session"
	"github.com/taskdeck/taskdeck/internal/syncstore"
)

// Handler exposes task CRUD, assignment and attachment upload over JSON.
// Mutations are gated by the access evaluator; the store trusts the
// caller's prior check.
type Handler struct {
	logger      *slog.Logger
	store       *syncstore.Store[Task]
	sessions    *session.Resolver
	feed        *notify.Feed
	attachments *attachments.Service
	validate    *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, store *syncstore.Store[Task], sessions *session.Resolver, feed *notify.Feed, uploads *attachments.Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:      logger,
		store:       store,
		sessions:    sessions,
		feed:        feed,
		attachments: uploads,
		validate:    validator.New(),
	}
}

// MountRoutes registers task routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Patch("/{taskID}", h.handleUpdate)
		r.Delete("/{taskID}", h.handleDelete)
		r.Post("/{taskID}/assign", h.handleAssign)
		r.Post("/{taskID}/attachment", h.handleAttachment)
	})
}

type listResponse struct {
	Items []Task `json:"items"`
	Error string `json:"error,omitempty"`
}

// handleList refreshes the collection, optionally filtered by project,
// and returns it. A failed refresh keeps the previous items and reports
// the error alongside.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	role, err := h.sessions.Role(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if decision := access.CheckAccess(access.ActionView, role, access.Resource{Kind: access.KindTask}, ""); !decision.Allowed {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", decision.Reason)
		return
	}

	var filter syncstore.Filter
	if projectID := r.URL.Query().Get("project_id"); projectID != "" {
		filter = syncstore.Filter{"project_id": projectID}
	}

	resp := listResponse{}
	if err := h.store.FetchAll(r.Context(), filter); err != nil {
		resp.Error = err.Error()
	}
	resp.Items = h.store.Items()
	httpx.JSON(w, http.StatusOK, resp)
}

type createTaskRequest struct {
	ProjectID   string     `json:"project_id" validate:"required"`
	Title       string     `json:"title" validate:"required,min=1,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	Status      string     `json:"status" validate:"omitempty,oneof=todo in_progress completed"`
	Priority    string     `json:"priority" validate:"omitempty,oneof=low medium high"`
	AssigneeID  string     `json:"assignee_id"`
	DueDate     *time.Time `json:"due_date"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ident, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	if decision := access.CheckAccess(access.ActionCreate, role, access.Resource{Kind: access.KindTask}, ident.ID); !decision.Allowed {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", decision.Reason)
		return
	}

	var req createTaskRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	created, err := h.store.Create(r.Context(), Task{
		ProjectID:   req.ProjectID,
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		AssigneeID:  req.AssigneeID,
		DueDate:     req.DueDate,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.feed.Append(notify.CategoryTask, "Task created",
		fmt.Sprintf("%q was created", created.Title),
		map[string]string{"task_id": created.ID, "project_id": created.ProjectID})
	httpx.JSON(w, http.StatusCreated, created)
}

type updateTaskRequest struct {
	Title       *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=2000"`
	Status      *string    `json:"status" validate:"omitempty,oneof=todo in_progress completed"`
	Priority    *string    `json:"priority" validate:"omitempty,oneof=low medium high"`
	DueDate     *time.Time `json:"due_date"`
}

func (rq updateTaskRequest) patch() syncstore.Patch {
	patch := syncstore.Patch{}
	if rq.Title != nil {
		patch["title"] = *rq.Title
	}
	if rq.Description != nil {
		patch["description"] = *rq.Description
	}
	if rq.Status != nil {
		patch["status"] = *rq.Status
	}
	if rq.Priority != nil {
		patch["priority"] = *rq.Priority
	}
	if rq.DueDate != nil {
		patch["due_date"] = rq.DueDate.Format(time.RFC3339)
	}
	return patch
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ident, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "taskID")
	existing, found := h.store.Get(id)
	if !found {
		httpx.RespondError(w, syncstore.ErrNotFound)
		return
	}
	if decision := access.CheckAccess(access.ActionEdit, role, access.Resource{Kind: access.KindTask, OwnerID: existing.AssigneeID}, ident.ID); !decision.Allowed {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", decision.Reason)
		return
	}

	var req updateTaskRequest
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

	h.feed.Append(notify.CategoryTask, "Task updated",
		fmt.Sprintf("%q was updated", updated.Title),
		map[string]string{"task_id": updated.ID, "project_id": updated.ProjectID})
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ident, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "taskID")
	existing, found := h.store.Get(id)
	if !found {
		httpx.RespondError(w, syncstore.ErrNotFound)
		return
	}
	if decision := access.CheckAccess(access.ActionDelete, role, access.Resource{Kind: access.KindTask, OwnerID: existing.AssigneeID}, ident.ID); !decision.Allowed {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", decision.Reason)
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.feed.Append(notify.CategoryTask, "Task deleted",
		fmt.Sprintf("%q was deleted", existing.Title),
		map[string]string{"task_id": id, "project_id": existing.ProjectID})
	httpx.NoContent(w)
}

type assignTaskRequest struct {
	AssigneeID string `json:"assignee_id" validate:"required"`
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	ident, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "taskID")
	existing, found := h.store.Get(id)
	if !found {
		httpx.RespondError(w, syncstore.ErrNotFound)
		return
	}
	if decision := access.CheckAccess(access.ActionAssign, role, access.Resource{Kind: access.KindTask, OwnerID: existing.AssigneeID}, ident.ID); !decision.Allowed {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", decision.Reason)
		return
	}

	var req assignTaskRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	updated, err := h.store.Update(r.Context(), id, syncstore.Patch{"assignee_id": req.AssigneeID})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.feed.Append(notify.CategoryTask, "Task assigned",
		fmt.Sprintf("%q was assigned", updated.Title),
		map[string]string{"task_id": updated.ID, "assignee_id": updated.AssigneeID})
	httpx.JSON(w, http.StatusOK, updated)
}

// handleAttachment validates and uploads a file, then patches the task
// with the stored URL. The upload itself happens before the task
// mutation so a rejected file never touches the collection.
func (h *Handler) handleAttachment(w http.ResponseWriter, r *http.Request) {
	ident, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "taskID")
	existing, found := h.store.Get(id)
	if !found {
		httpx.RespondError(w, syncstore.ErrNotFound)
		return
	}
	if decision := access.CheckAccess(access.ActionEdit, role, access.Resource{Kind: access.KindTask, OwnerID: existing.AssigneeID}, ident.ID); !decision.Allowed {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", decision.Reason)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "file field required")
		return
	}
	defer func() { _ = file.Close() }()

	url, err := h.attachments.Upload(r.Context(), ident.ID, header.Filename, file)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	updated, err := h.store.Update(r.Context(), id, syncstore.Patch{"attachment_url": url})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	h.feed.Append(notify.CategoryTask, "Attachment added",
		fmt.Sprintf("File attached to %q", updated.Title),
		map[string]string{"task_id": updated.ID})
	httpx.JSON(w, http.StatusOK, updated)
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
