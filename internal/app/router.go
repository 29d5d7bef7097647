package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/taskdeck/taskdeck/internal/notify"
	"github.com/taskdeck/taskdeck/internal/projects"
	"github.com/taskdeck/taskdeck/internal/tasks"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger              *slog.Logger
	Config              *Config
	ProjectsHandler     *projects.Handler
	TasksHandler        *tasks.Handler
	NotificationHandler *notify.Handler
}

// NewRouter constructs the chi.Router with Taskdeck defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(params.Config) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		if params.ProjectsHandler != nil {
			params.ProjectsHandler.MountRoutes(r)
		}
		if params.TasksHandler != nil {
			params.TasksHandler.MountRoutes(r)
		}
		if params.NotificationHandler != nil {
			params.NotificationHandler.MountRoutes(r)
		}
	})

	return r
}
