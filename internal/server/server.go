// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root: the store handed in by main flows into the
// services, the services into the handlers, and the handlers onto routes.
//
//	repository.Store -> IdentityResolver, UserDataService, ... -> handlers -> chi routes
//
// Each layer only receives what it needs. Handlers never touch the store and
// services never touch HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/habit-rewards/internal/auth"
	"github.com/sakif/habit-rewards/internal/config"
	"github.com/sakif/habit-rewards/internal/handler"
	"github.com/sakif/habit-rewards/internal/middleware"
	"github.com/sakif/habit-rewards/internal/repository"
	"github.com/sakif/habit-rewards/internal/repository/backend"
	"github.com/sakif/habit-rewards/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the store: Start closes it once the HTTP server has
// drained.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	store  repository.Store

	provider handler.IdentityProvider
	apiKeys  *auth.APIKeyVerifier
}

// Option customises a Server. Tests use these to swap out the Google
// provider and to avoid production bcrypt cost.
type Option func(*Server)

// WithIdentityProvider replaces the Google provider built from config.
func WithIdentityProvider(p handler.IdentityProvider) Option {
	return func(s *Server) { s.provider = p }
}

// WithAPIKeyVerifier replaces the verifier built from RESET_API_KEY.
func WithAPIKeyVerifier(v *auth.APIKeyVerifier) Option {
	return func(s *Server) { s.apiKeys = v }
}

// New creates a Server on top of an open store.
func New(cfg *config.Config, store repository.Store, logger *slog.Logger, opts ...Option) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.provider == nil && cfg.GoogleEnabled() {
		s.provider = auth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleCallbackURL)
	}
	if s.apiKeys == nil && cfg.ResetAPIKey != "" {
		v, err := auth.NewAPIKeyVerifier(cfg.ResetAPIKey)
		if err != nil {
			return nil, fmt.Errorf("server: RESET_API_KEY: %w", err)
		}
		s.apiKeys = v
	}

	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// Middleware executes in the order it's added:
//  1. RequestID, so the logger can include it
//  2. RealIP, to log the client behind a proxy
//  3. Logger
//  4. Recoverer, which turns panics into 500s
//
// Session routes need JWT_SECRET; without it only the public routes and the
// API-key reset route are mounted.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	catalogSvc := service.NewRewardCatalogService(s.store, s.logger)
	dataSvc := service.NewUserDataService(s.store, catalogSvc, s.logger)
	usersSvc := service.NewUserAdminService(s.store, dataSvc, s.logger)
	maintenanceSvc := service.NewMaintenanceService(s.store, nil, s.logger)

	statusHandler := handler.NewStatusHandler(s.store, s.envStatus(), s.logger)
	habitHandler := handler.NewHabitHandler(dataSvc, s.logger)
	rewardHandler := handler.NewRewardHandler(catalogSvc, dataSvc, s.logger)
	userHandler := handler.NewUserHandler(usersSvc, maintenanceSvc, s.logger)

	// === Public ===
	s.router.Get("/healthz", statusHandler.HandleHealth)
	s.router.Get("/api/habits/catalog", habitHandler.HandleCatalog)
	s.router.With(auth.RequireAPIKey(s.apiKeys)).Post("/api/rewards/reset", rewardHandler.HandleResetCredits)

	if !s.config.AuthEnabled() {
		s.logger.Warn("JWT_SECRET not set, session routes are disabled")
		return nil
	}

	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.SessionTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	resolver := service.NewIdentityResolver(s.store, s.config.AdminEmail, s.logger)
	authSvc := service.NewAuthService(resolver, tokens, s.store, s.logger)
	secure := strings.HasPrefix(s.config.GoogleCallbackURL, "https://")
	authHandler := handler.NewAuthHandler(s.provider, authSvc, tokens.TTL(), secure, s.logger)

	// === Auth ===
	if s.provider != nil {
		s.router.Get("/auth/google/login", authHandler.HandleGoogleLogin)
		s.router.Get("/auth/google/callback", authHandler.HandleGoogleCallback)
	} else {
		s.logger.Warn("Google OAuth not configured, login routes are disabled")
	}
	s.router.Post("/auth/logout", authHandler.HandleLogout)

	// === Session ===
	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))

		r.Get("/api/me", authHandler.HandleMe)

		r.Get("/api/habits", habitHandler.HandleGet)
		r.Post("/api/habits", habitHandler.HandleReplace)
		r.Post("/api/habits/claim", habitHandler.HandleClaim)
		r.Post("/api/habits/unclaim", habitHandler.HandleUnclaim)
		r.Post("/api/habits/reset", habitHandler.HandleReset)
		r.Get("/api/habits/stats", habitHandler.HandleStats)

		r.Get("/api/rewards", rewardHandler.HandleList)
		r.Post("/api/rewards/{id}/claim", rewardHandler.HandleClaim)
		r.Post("/api/rewards/{id}/unclaim", rewardHandler.HandleUnclaim)

		r.Post("/api/me/rewards", rewardHandler.HandleAddToMine)
		r.Put("/api/me/rewards", rewardHandler.HandleReplaceMine)
		r.Delete("/api/me/rewards/{id}", rewardHandler.HandleRemoveMine)

		// === Admin ===
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin)

			r.Post("/api/rewards", rewardHandler.HandleAdd)
			r.Delete("/api/rewards", rewardHandler.HandleDelete)
			r.Get("/api/users", userHandler.HandleList)
			r.Post("/api/users", userHandler.HandleAction)
			r.Get("/api/admin/env", statusHandler.HandleEnv)
		})
	})

	return nil
}

func (s *Server) envStatus() handler.EnvStatus {
	kind, err := backend.Resolve(backend.Config{
		Kind:     s.config.StoreBackend,
		RedisURL: s.config.RedisURL,
		DBPath:   s.config.DBPath,
	})
	if err != nil {
		kind = "unknown"
	}
	return handler.EnvStatus{
		Backend:          kind,
		RedisConfigured:  s.config.RedisURL != "",
		SQLiteConfigured: s.config.DBPath != "",
		AuthEnabled:      s.config.AuthEnabled(),
		GoogleConfigured: s.config.GoogleEnabled(),
		AdminConfigured:  s.config.AdminEmail != "",
		ResetKeySet:      s.apiKeys != nil,
	}
}

// Start starts the HTTP server and blocks until SIGINT/SIGTERM or a listen
// error.
//
// Shutdown order:
//  1. Stop accepting new connections
//  2. Wait for in-flight requests (30s)
//  3. Close the store
func (s *Server) Start() error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.logger.Error("closing store", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
