package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/taskrun/taskrun-api/internal/config"
	"github.com/taskrun/taskrun-api/internal/domain/escrow"
	"github.com/taskrun/taskrun-api/internal/domain/event"
	"github.com/taskrun/taskrun-api/internal/domain/task"
	"github.com/taskrun/taskrun-api/internal/domain/user"
	"github.com/taskrun/taskrun-api/internal/domain/wallet"
	"github.com/taskrun/taskrun-api/internal/middleware"
	"github.com/taskrun/taskrun-api/internal/pkg/database"
	"github.com/taskrun/taskrun-api/internal/pkg/jwt"
	"github.com/taskrun/taskrun-api/internal/pkg/logger"
	pkgresponse "github.com/taskrun/taskrun-api/internal/pkg/response"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting TaskRun API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redisClient)

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)

	// ---------- Repositories ----------
	userRepo := user.NewRepository(db)
	walletRepo := wallet.NewRepository(db)
	taskRepo := task.NewRepository(db)

	// ---------- Event hub ----------
	publisher := event.NewPublisher(redisClient)
	hub := event.NewHub(redisClient)
	go hub.Run()
	defer hub.Stop()

	// ---------- Services ----------
	walletService := wallet.NewService(walletRepo, userRepo)
	escrowService := escrow.NewService(walletRepo, taskRepo, userRepo, publisher, escrow.Policy{
		AllowCancelAccepted: cfg.AllowCancelAccepted,
		RunnerSharePercent:  cfg.RunnerSharePercent,
	})

	// ---------- Handlers ----------
	walletHandler := wallet.NewHandler(walletService)
	taskHandler := task.NewHandler(escrowService, taskRepo)
	eventHandler := event.NewHandler(hub, cfg.AllowedOrigins)

	authMiddleware := middleware.Auth(jwtService)

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	// WebSocket endpoint (before Compress)
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		authMiddleware(http.HandlerFunc(eventHandler.WebSocket)).ServeHTTP(w, r)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(chimw.Compress(5))
			r.Mount("/wallet", walletHandler.Routes(authMiddleware))
			r.Mount("/tasks", taskHandler.Routes(authMiddleware))
			r.Mount("/admin/wallets", walletHandler.AdminRoutes(authMiddleware))
		})
	})

	// ---------- Server ----------
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
