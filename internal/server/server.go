// Package server wires the application together and runs the HTTP server.
//
// This is the composition root: New builds the whole dependency chain
//
//	sqlite.DB → AuthService / PostService → AuthHandler / PostHandler
//
// and mounts the handlers on a chi router. Nothing else in the codebase
// constructs concrete dependencies.
package server

import (
	"context"
	"errors"
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

	"github.com/sakif/postboard/internal/auth"
	"github.com/sakif/postboard/internal/config"
	"github.com/sakif/postboard/internal/events"
	"github.com/sakif/postboard/internal/handler"
	"github.com/sakif/postboard/internal/media"
	"github.com/sakif/postboard/internal/middleware"
	sqliteRepo "github.com/sakif/postboard/internal/repository/sqlite"
	"github.com/sakif/postboard/internal/service"
)

// shutdownTimeout is how long in-flight requests get to finish.
const shutdownTimeout = 30 * time.Second

// Server owns the router and the database connection. The database is
// closed when Start returns, or by Close for servers that never start.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New opens the database, builds services and handlers and registers all
// routes. A nil publisher disables post events.
func New(cfg config.Config, logger *slog.Logger, publisher events.Publisher) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	store, err := media.NewStore(cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		return nil, fmt.Errorf("creating media store: %w", err)
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	authService := service.NewAuthService(db.Users(), tokens, auth.NewPasswordService(), logger)
	postService := service.NewPostService(db.Posts(), store, publisher, logger)

	s.setupRoutes(
		tokens,
		store,
		handler.NewAuthHandler(authService, logger),
		handler.NewPostHandler(postService, store.MaxBytes(), logger),
		handler.NewHealthHandler(db, logger),
	)

	return s, nil
}

// setupRoutes registers middleware and routes.
//
//	POST   /auth/register
//	POST   /auth/login
//	GET    /auth/me               (auth)
//	POST   /posts                 (auth)
//	GET    /posts/feed            (auth)
//	GET    /posts/drafts          (auth)
//	PUT    /posts/{id}/publish    (auth)
//	PUT    /posts/{id}            (auth)
//	DELETE /posts/{id}            (auth)
//	GET    /uploads/*
//	GET    /healthz
//
// Middleware order matters: RequestID must run before Logger so every log
// line carries the id.
func (s *Server) setupRoutes(
	tokens *auth.TokenService,
	store *media.Store,
	authHandler *handler.AuthHandler,
	postHandler *handler.PostHandler,
	healthHandler *handler.HealthHandler,
) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	requireAuth := auth.RequireAuth(tokens)

	s.router.Get("/healthz", healthHandler.HandleHealth)

	// Uploaded media is public, like the URLs stored on posts.
	fileServer := http.StripPrefix(media.URLPrefix, http.FileServer(http.Dir(store.Dir())))
	s.router.Handle(media.URLPrefix+"*", noDirListing(fileServer))

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.With(requireAuth).Get("/me", authHandler.HandleMe)
	})

	s.router.Route("/posts", func(r chi.Router) {
		r.Use(requireAuth)

		r.Post("/", postHandler.HandleCreate)
		r.Get("/feed", postHandler.HandleFeed)
		r.Get("/drafts", postHandler.HandleDrafts)
		r.Put("/{id}/publish", postHandler.HandlePublish)
		r.Put("/{id}", postHandler.HandleUpdate)
		r.Delete("/{id}", postHandler.HandleDelete)
	})
}

// noDirListing answers 404 for directory paths instead of an index page.
func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database. Start calls it on the way out.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start serves HTTP until SIGINT/SIGTERM, then drains in-flight requests
// for up to 30 seconds and closes the database.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  60 * time.Second, // uploads can be large
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.String("uploads", s.config.UploadDir),
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

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
