// Meetwatch - chat meeting watcher and scheduling server
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

	"github.com/ashureev/meetwatch/internal/api"
	"github.com/ashureev/meetwatch/internal/calendar"
	"github.com/ashureev/meetwatch/internal/config"
	"github.com/ashureev/meetwatch/internal/detect"
	"github.com/ashureev/meetwatch/internal/logging"
	"github.com/ashureev/meetwatch/internal/middleware"
	"github.com/ashureev/meetwatch/internal/notify"
	"github.com/ashureev/meetwatch/internal/session"
	"github.com/ashureev/meetwatch/internal/sessionfile"
	"github.com/ashureev/meetwatch/internal/store"
	"github.com/ashureev/meetwatch/internal/telegram"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Dir:        cfg.Log.Dir,
		Level:      cfg.Log.Level,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logging.Shutdown()

	slog.Info("Starting server", "port", cfg.Port)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	blobs, err := sessionfile.NewStore(cfg.SessionDir)
	if err != nil {
		slog.Error("Failed to initialize session directory", "error", err)
		os.Exit(1)
	}

	factory := telegram.NewGotdFactory(cfg.TelegramAPIID, cfg.TelegramAPIHash, blobs, cfg.Timeout.Connect)
	hub := notify.NewHub()
	detector := detect.New(nil)

	manager := session.NewManager(factory, blobs, repo, hub, detector, session.Config{
		CodeRequestInterval: cfg.CodeRequestInterval,
		DownstreamTimeout:   cfg.Timeout.Downstream,
	})

	// Google Calendar is optional; scheduling endpoints return 503 without it.
	var cal calendar.Service
	if cfg.CalendarEnabled() {
		gc, err := calendar.NewGoogleCalendar(context.Background(),
			cfg.GoogleServiceAccountFile, cfg.GoogleCalendarID, cfg.CalendarTimezone)
		if err != nil {
			slog.Error("Failed to initialize calendar client", "error", err)
			os.Exit(1)
		}
		if err := gc.TestConnection(context.Background()); err != nil {
			slog.Warn("Calendar connection test failed, continuing anyway", "error", err)
		}
		cal = gc
		slog.Info("Calendar client initialized", "calendar_id", cfg.GoogleCalendarID)
	} else {
		slog.Info("Calendar features disabled (no service account configured)")
	}

	// Initialize handlers.
	baseHandler := api.NewHandler(repo)
	sessionHandler := api.NewSessionHandler(baseHandler, manager, cfg.Timeout.Handshake)
	meetingHandler := api.NewMeetingHandler(baseHandler, cal)
	eventHandler := api.NewEventHandler(baseHandler, cal)
	healthHandler := api.NewHealthHandler(repo, cfg.Timeout.HealthCheck)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	healthHandler.RegisterHealth(r)
	sessionHandler.RegisterRoutes(r)
	meetingHandler.RegisterRoutes(r)
	eventHandler.RegisterRoutes(r)

	// WebSocket endpoint for meeting detections and login outcomes.
	r.Get("/ws/events", hub.ServeHTTP)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Reattach persisted sessions so monitoring survives restarts.
	go manager.ResumeAll(ctx)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout.Shutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	manager.ShutdownAll()

	slog.Info("Server stopped successfully")
}
