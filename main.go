package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"medialink/api"
	"medialink/config"
	"medialink/handlers"
	"medialink/internal/database"
	"medialink/services/linker"
	"medialink/utils"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogPath)
	log := slog.Default().With("component", "main")

	if cfg.AdminToken == "" {
		log.Warn("ADMIN_TOKEN not set, all mutating routes will be rejected")
	}

	db, err := database.NewDB(database.Config{DatabasePath: cfg.DatabasePath})
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	engine := linker.NewSignatureEngine(cfg.FetchTimeout)
	svc := linker.NewService(db.Repository, engine, cfg.HostingBaseURL, cfg.DefaultMinScore)

	router := utils.NewRouter()
	auth := api.NewTokenAuthenticator(cfg.AdminToken)
	var limiter *api.ClientRateLimiter
	if cfg.RatePerMinute > 0 {
		limiter = api.NewClientRateLimiter(cfg.RatePerMinute)
	}
	handlers.RegisterLinkRoutes(router, handlers.NewLinkHandler(svc), auth, limiter)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
}

// setupLogging installs the default slog handler, writing to stdout and,
// when a log path is configured, to a rotating file as well.
func setupLogging(logPath string) {
	var w io.Writer = os.Stdout
	if logPath != "" {
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    50, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, nil)))
}
