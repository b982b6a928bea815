package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/antoniostano/coachroom/internal/catalog"
	"github.com/antoniostano/coachroom/internal/config"
	"github.com/antoniostano/coachroom/internal/httpapi"
	"github.com/antoniostano/coachroom/internal/observability"
	"github.com/antoniostano/coachroom/internal/rooms"
	"github.com/antoniostano/coachroom/internal/session"
)

func serve(cfg config.Config, cat *catalog.Catalog, logger *slog.Logger) error {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, mode, err := rooms.NewStore(ctx, cfg.DatabaseURL, cfg.RoomCacheSize)
	if err != nil {
		return fmt.Errorf("room store init: %w", err)
	}
	defer store.Close()
	logger.Info("room store ready", "mode", mode)

	if len(cfg.AuthTokens) == 0 {
		logger.Warn("APP_AUTH_TOKENS is empty; nobody can sign in")
	}

	sessions := session.NewManager(cfg.PageInactivityTimeout)
	api := httpapi.New(cfg, httpapi.Deps{
		Rooms:     store,
		StoreMode: mode,
		Catalog:   cat,
		Sessions:  sessions,
		Metrics:   metrics,
		Logger:    logger,
	})
	sessions.SetExpireHook(func(s *session.Session) {
		logger.Info("page expired", "page_id", s.ID, "room_id", s.RoomID)
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActivePages.Set(float64(sessions.ActiveCount()))
		api.ClosePage(s.ID)
	})

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 5*time.Second)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	runCancel()
	// Hijacked websockets are not tracked by Shutdown.
	api.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
	return nil
}
