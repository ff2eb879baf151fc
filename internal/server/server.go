// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects config, storage, services,
// handlers, middleware and routes, and decides:
//   - Which URL patterns map to which handler functions
//   - What middleware runs on which routes
//   - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config ──▶ server.New:
//	  sqlite.DB ──▶ stores ──▶ services ──▶ handlers ──▶ routes
//	  redis (optional) ──▶ cache.PublicSnippetCache ─┘
//	  SendGrid | Noop mailer, S3 | Disabled store, Paddle verifier
//
// This is the "composition root" pattern: all dependencies are wired in one
// place rather than scattered across the codebase.
package server

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

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/snippet-vault/internal/auth"
	"github.com/sakif/snippet-vault/internal/cache"
	"github.com/sakif/snippet-vault/internal/config"
	"github.com/sakif/snippet-vault/internal/handler"
	"github.com/sakif/snippet-vault/internal/mailer"
	"github.com/sakif/snippet-vault/internal/middleware"
	"github.com/sakif/snippet-vault/internal/paddle"
	sqliteRepo "github.com/sakif/snippet-vault/internal/repository/sqlite"
	"github.com/sakif/snippet-vault/internal/service"
	"github.com/sakif/snippet-vault/internal/storage"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database pool and, when configured, the Redis client.
// Both are closed by Close, which Start calls after shutdown.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	redis  *redis.Client // nil when no cache is configured
}

// New opens the database, connects the optional backends and wires every
// route.
//
// OPTIONAL BACKENDS:
//   - Redis: unreachable at startup → logged, public views are uncached
//   - SendGrid: no key → Noop mailer (logs instead of sending)
//   - Object store: no bucket → uploads answer 503
//   - GitHub: no client credentials → /auth/github/* answer 404
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if cfg.Redis.URL != "" {
		client, err := cache.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Warn("redis unavailable, public snippets will not be cached",
				slog.String("error", err.Error()),
			)
		} else {
			s.redis = client
		}
	}

	var store storage.ObjectStore = storage.Disabled{}
	if cfg.StorageEnabled() {
		s3Store, err := storage.NewS3Store(ctx, storage.Config{
			Endpoint:        cfg.Storage.Endpoint,
			Region:          cfg.Storage.Region,
			Bucket:          cfg.Storage.Bucket,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			UsePathStyle:    cfg.Storage.UsePathStyle,
			PublicBaseURL:   cfg.Storage.PublicBaseURL,
		}, logger)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("creating object store: %w", err)
		}
		store = s3Store
	} else {
		logger.Warn("no storage bucket configured, uploads are disabled")
	}

	if err := s.setupRoutes(store); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database and the Redis client.
func (s *Server) Close() error {
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}

// setupRoutes builds the services and handlers and registers every route.
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: unique id per request, picked up by the logger
//  2. RealIP: real client IP from proxy headers (the rate limiter keys on it)
//  3. Logger, Metrics: see the final status, including recovered panics
//  4. Recoverer: turns a panic into a 500
//  5. CORS
func (s *Server) setupRoutes(store storage.ObjectStore) error {
	cfg := s.config

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Security.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// === Auth primitives ===
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	requireAuth := auth.RequireAuth(tokens)

	// === Stores ===
	// One pool, one store per aggregate. The services receive them through
	// the repository interfaces, never the concrete *sqlite.DB.
	users := s.db.Users()
	snippetStore := s.db.Snippets()

	var mail mailer.Mailer = mailer.NewNoop(s.logger)
	if cfg.EmailEnabled() {
		mail = mailer.NewSendGrid(cfg.Email.SendGridAPIKey, cfg.Email.FromName, cfg.Email.FromAddress, cfg.Site.BaseURL, s.logger)
	}

	publicCache := cache.NewPublicSnippetCache(s.redis, cfg.Redis.CacheTTL, s.logger)

	// === Services ===
	plans := service.NewPlanService(users, snippetStore, s.db.Boilerplates(), s.logger)
	limits := service.PlanLimits{Snippets: cfg.Plans.FreeSnippetLimit, Boilerplates: cfg.Plans.FreeBoilerplateLimit}

	authService := service.NewAuthService(users, tokens, auth.NewPasswordService(), mail, limits, s.logger)
	profileService := service.NewProfileService(users, s.logger)
	snippetService := service.NewSnippetService(snippetStore, s.db.Folders(), plans, publicCache, s.logger)
	shareService := service.NewShareService(snippetStore, users, publicCache, cfg.Site.BaseURL, s.logger)
	boilerplateService := service.NewBoilerplateService(s.db.Boilerplates(), plans, s.logger)
	folderService := service.NewFolderService(s.db.Folders(), s.logger)
	uploadService := service.NewUploadService(store, cfg.Storage.MaxUploadBytes, cfg.Storage.MaxFiles, s.logger)
	billingService := service.NewBillingService(
		paddle.NewVerifier(cfg.Paddle.WebhookSecret, cfg.Paddle.MaxSignatureAge),
		s.db.Payments(), users, users, mail,
		service.BillingConfig{
			PriceID:               cfg.Paddle.PriceID,
			ClientToken:           cfg.Paddle.ClientToken,
			Environment:           cfg.Paddle.Environment,
			InsecureSkipSignature: cfg.Paddle.InsecureSkipSignature,
		},
		s.logger,
	)

	// === Handlers ===
	// github stays a nil interface (not a typed nil) when sign-in is off,
	// so the handler's nil check works.
	var github handler.GitHubOAuth
	if cfg.GitHubEnabled() {
		github = auth.NewGitHubProvider(cfg.Auth.GitHubClientID, cfg.Auth.GitHubClientSecret, cfg.Auth.GitHubCallbackURL)
	}

	authHandler := handler.NewAuthHandler(authService, profileService, github, handler.CookieConfig{
		Secure: cfg.Auth.CookieSecure,
		TTL:    cfg.Auth.TokenTTL,
	}, s.logger)
	profileHandler := handler.NewProfileHandler(profileService, plans, s.logger)
	snippetHandler := handler.NewSnippetHandler(snippetService, shareService, s.logger)
	shareHandler := handler.NewShareHandler(shareService, s.logger)
	boilerplateHandler := handler.NewBoilerplateHandler(boilerplateService, s.logger)
	folderHandler := handler.NewFolderHandler(folderService, s.logger)
	uploadHandler := handler.NewUploadHandler(uploadService, s.logger)
	billingHandler := handler.NewBillingHandler(billingService, s.logger)

	pageHandler, err := handler.NewPageHandler(shareService, snippetService, plans, profileService, cfg.GitHubEnabled(), s.logger)
	if err != nil {
		return fmt.Errorf("creating page handler: %w", err)
	}

	// === Operational ===
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	// === Pages ===
	s.router.Get("/", pageHandler.HandleHome)
	s.router.Get("/login", pageHandler.HandleLogin)
	s.router.Get("/s/{publicId}", pageHandler.HandleShare)
	s.router.With(auth.RequirePageAuth(tokens)).Get("/dashboard", pageHandler.HandleDashboard)

	// Credential endpoints are the brute-force target; the webhook is
	// public. Both get a per-IP limit.
	limited := httprate.LimitByIP(cfg.Security.RateLimitPerMin, time.Minute)

	s.router.With(limited).Route("/auth/github", func(r chi.Router) {
		r.Get("/login", authHandler.HandleGitHubLogin)
		r.Get("/callback", authHandler.HandleGitHubCallback)
	})

	// === API ===
	s.router.Route("/api", func(r chi.Router) {
		r.With(limited).Route("/auth", func(r chi.Router) {
			r.Post("/signup", authHandler.HandleSignup)
			r.Post("/login", authHandler.HandleLogin)
			r.Post("/logout", authHandler.HandleLogout)
		})

		r.With(limited).Post("/webhooks/paddle", billingHandler.HandleWebhook)

		// Anonymous reads of shared snippets.
		r.Get("/snippets/public/{publicId}", shareHandler.HandleGetPublic)
		r.Get("/public-snippet/{publicId}", shareHandler.HandleGetPublic)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/me", authHandler.HandleMe)
			r.Get("/profile", profileHandler.HandleGet)
			r.Put("/profile", profileHandler.HandleUpdate)
			r.Get("/user/plan", profileHandler.HandlePlan)

			r.Get("/snippets", snippetHandler.HandleList)
			r.Post("/snippets", snippetHandler.HandleCreate)
			r.Get("/snippets/{id}", snippetHandler.HandleGetByID)
			r.Put("/snippets/{id}", snippetHandler.HandleUpdate)
			r.Delete("/snippets/{id}", snippetHandler.HandleDelete)
			r.Post("/snippets/{id}/favorite", snippetHandler.HandleToggleFavorite)
			r.Post("/snippets/{id}/share", shareHandler.HandleShare)
			r.Delete("/snippets/{id}/share", shareHandler.HandleUnshare)

			r.Get("/boilerplates", boilerplateHandler.HandleList)
			r.Post("/boilerplates", boilerplateHandler.HandleCreate)
			r.Post("/boilerplates/upload", uploadHandler.HandleBoilerplateUpload)
			r.Get("/boilerplates/{id}", boilerplateHandler.HandleGetByID)
			r.Put("/boilerplates/{id}", boilerplateHandler.HandleUpdate)
			r.Delete("/boilerplates/{id}", boilerplateHandler.HandleDelete)
			r.Post("/boilerplates/{id}/favorite", boilerplateHandler.HandleToggleFavorite)

			r.Get("/folders", folderHandler.HandleList)
			r.Post("/folders", folderHandler.HandleCreate)
			r.Put("/folders/{id}", folderHandler.HandleUpdate)
			r.Delete("/folders/{id}", folderHandler.HandleDelete)

			r.Post("/upload", uploadHandler.HandleSnippetUpload)

			r.Get("/billing/checkout", billingHandler.HandleCheckout)
			r.Get("/billing/payments", billingHandler.HandlePayments)
		})
	})

	return nil
}

// handleHealth answers 200 when the database responds.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.db.Ping(); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}` + "\n"))
		return
	}
	_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (server.shutdown_timeout)
//  3. Close the database (flushes WAL, releases the file lock) and Redis
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", s.config.Site.BaseURL),
			slog.String("database", s.config.Database.Path),
			slog.Bool("cache", s.redis != nil),
			slog.Bool("uploads", s.config.StorageEnabled()),
			slog.Bool("email", s.config.EmailEnabled()),
			slog.Bool("github", s.config.GitHubEnabled()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
