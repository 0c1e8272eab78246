// Package main is the entry point for the chat engine server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quillchat/quill-engine/internal/adapter"
	"github.com/quillchat/quill-engine/internal/config"
	"github.com/quillchat/quill-engine/internal/coordinator"
	"github.com/quillchat/quill-engine/internal/events"
	"github.com/quillchat/quill-engine/internal/handler"
	"github.com/quillchat/quill-engine/internal/middleware"
	"github.com/quillchat/quill-engine/internal/orchestrator"
	"github.com/quillchat/quill-engine/internal/store"
	"github.com/quillchat/quill-engine/pkg/logger"
	"github.com/quillchat/quill-engine/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting chat engine")

	// Initialize tracing if enabled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "quill-engine", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", "error", err)
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Open history storage
	if err := os.MkdirAll(filepath.Dir(cfg.HistoryDBFile), 0o755); err != nil {
		log.Error("failed to create data dir", "error", err)
		os.Exit(1)
	}
	history, err := store.OpenHistory(cfg.HistoryDBFile, log)
	if err != nil {
		log.Error("failed to open history store", "error", err)
		os.Exit(1)
	}
	defer history.Close()
	if err := history.Init(ctx); err != nil {
		log.Error("failed to initialize history schema", "error", err)
		os.Exit(1)
	}

	// Connect the event journal when configured
	var eventClient *events.Client
	var publisher *events.Publisher
	if cfg.NATSURL != "" {
		eventClient, err = events.Connect(ctx, events.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Warn("event journal unavailable, continuing without it", "error", err)
		} else {
			defer eventClient.Close()
			publisher = events.NewPublisher(eventClient, log)
			if err := publisher.EnsureStream(ctx); err != nil {
				log.Warn("failed to ensure event stream", "error", err)
				publisher = nil
			}
		}
	}

	// Initialize stores
	sessions := store.NewSessionStore(history, log)
	models := store.NewModelStore(history, log)
	tabs := store.NewTabStore()

	// Load the provider catalog and keep it fresh
	catalog := store.NewCatalog(cfg.ProvidersFile, history, log, func() {
		if err := models.Reload(ctx); err != nil {
			log.Error("failed to reload models after catalog change", "error", err)
		}
	})
	if err := catalog.Load(ctx); err != nil {
		log.Error("failed to load provider catalog", "error", err)
		os.Exit(1)
	}
	if err := models.Reload(ctx); err != nil {
		log.Error("failed to load models", "error", err)
		os.Exit(1)
	}
	if cfg.WatchCatalog {
		if err := catalog.Watch(ctx); err != nil {
			log.Warn("failed to watch providers file", "error", err)
		}
	}

	// Initialize pipeline
	factory := adapter.NewFactory(log)
	orch := orchestrator.New(log)
	coord := coordinator.New(sessions, models, tabs, publisher, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(history, eventClient)
	sessionHandler := handler.NewSessionHandler(sessions, coord, publisher, log)
	chatHandler := handler.NewChatHandler(cfg, history, sessions, models, factory, orch, publisher, log)
	modelHandler := handler.NewModelHandler(models, coord, factory, log)
	tabHandler := handler.NewTabHandler(tabs, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Sessions
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Create)
			r.Get("/", sessionHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sessionHandler.Get)
				r.Patch("/", sessionHandler.Rename)
				r.Delete("/", sessionHandler.Delete)
				r.Post("/switch", sessionHandler.Switch)

				// Messages
				r.Get("/messages", sessionHandler.Messages)
				r.Post("/messages", chatHandler.Send)
			})
		})

		// Providers and models
		r.Route("/providers", func(r chi.Router) {
			r.Get("/", modelHandler.Providers)
			r.Patch("/{id}", modelHandler.UpdateProvider)
			r.Put("/{id}/models/{modelID}", modelHandler.ToggleModel)
		})
		r.Get("/models", modelHandler.Models)
		r.Put("/models/selected", modelHandler.Select)

		// Tabs
		r.Route("/tabs", func(r chi.Router) {
			r.Get("/", tabHandler.List)
			r.Post("/", tabHandler.Open)
			r.Post("/{id}/activate", tabHandler.Activate)
			r.Delete("/{id}", tabHandler.Close)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
