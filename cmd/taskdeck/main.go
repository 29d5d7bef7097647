package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/taskdeck/taskdeck/internal/app"
	"github.com/taskdeck/taskdeck/internal/attachments"
	"github.com/taskdeck/taskdeck/internal/gateway"
	"github.com/taskdeck/taskdeck/internal/notify"
	"github.com/taskdeck/taskdeck/internal/projects"
	"github.com/taskdeck/taskdeck/internal/session"
	"github.com/taskdeck/taskdeck/internal/syncstore"
	"github.com/taskdeck/taskdeck/internal/tasks"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	client, err := gateway.NewClient(gateway.Config{
		BaseURL:    cfg.GatewayURL,
		APIKey:     cfg.GatewayAPIKey,
		Token:      cfg.GatewayToken,
		HTTPClient: &http.Client{Timeout: cfg.GatewayTimeout},
		Logger:     logger,
	})
	if err != nil {
		logger.Error("gateway client", slog.Any("error", err))
		os.Exit(1)
	}

	realtime := gateway.NewRealtime(ctx, gateway.RealtimeConfig{
		URL:       cfg.GatewayRealtimeURL,
		APIKey:    cfg.GatewayAPIKey,
		TokenFunc: client.Token,
		Logger:    logger,
	})
	defer realtime.Close()

	resolver := session.NewResolver(client, session.NewGatewayRoleStore(client), cfg.RoleCacheTTL, logger)
	defer resolver.Close()

	actor := func() string {
		ident, err := client.Identity()
		if err != nil || ident == nil {
			return ""
		}
		return ident.ID
	}

	projectCfg := projects.StoreConfig(actor)
	projectCfg.Logger = logger
	projectStore, err := syncstore.New[projects.Project](
		gateway.NewCollection[projects.Project](client, realtime, projects.Collection), projectCfg)
	if err != nil {
		logger.Error("project store", slog.Any("error", err))
		os.Exit(1)
	}
	defer projectStore.Close()

	taskCfg := tasks.StoreConfig(actor)
	taskCfg.Logger = logger
	taskStore, err := syncstore.New[tasks.Task](
		gateway.NewCollection[tasks.Task](client, realtime, tasks.Collection), taskCfg)
	if err != nil {
		logger.Error("task store", slog.Any("error", err))
		os.Exit(1)
	}
	defer taskStore.Close()

	// A token swap means a different actor: locally cached collections
	// belong to the previous session and must be refetched.
	refetch := client.OnIdentityChange(func(ident *gateway.Identity) {
		refreshCtx, cancel := context.WithTimeout(ctx, cfg.GatewayTimeout)
		defer cancel()
		if err := projectStore.FetchAll(refreshCtx, nil); err != nil {
			logger.Warn("refetch projects", slog.Any("error", err))
		}
		if err := taskStore.FetchAll(refreshCtx, nil); err != nil {
			logger.Warn("refetch tasks", slog.Any("error", err))
		}
	})
	defer refetch()

	feed := notify.NewFeed()
	uploads := attachments.NewService(client, cfg.AttachmentBucket)

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		ProjectsHandler:     projects.NewHandler(logger, projectStore, resolver, feed),
		TasksHandler:        tasks.NewHandler(logger, taskStore, resolver, feed, uploads),
		NotificationHandler: notify.NewHandler(feed),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server", slog.Any("error", err))
		os.Exit(1)
	}
}
