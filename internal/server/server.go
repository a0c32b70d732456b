// Package server wires the application together and runs the HTTP server.
//
//	config → store → entities → services → handlers → router
//
// The server owns the store and closes it on shutdown.
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

	"github.com/sakif/classplanner/internal/auth"
	"github.com/sakif/classplanner/internal/config"
	"github.com/sakif/classplanner/internal/handler"
	"github.com/sakif/classplanner/internal/mail"
	"github.com/sakif/classplanner/internal/middleware"
	"github.com/sakif/classplanner/internal/model"
	"github.com/sakif/classplanner/internal/repository"
	mongoRepo "github.com/sakif/classplanner/internal/repository/mongo"
	sqliteRepo "github.com/sakif/classplanner/internal/repository/sqlite"
	"github.com/sakif/classplanner/internal/service"
)

type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	store   repository.Store
	mailer  mail.Sender
	metrics *middleware.Metrics
}

// Option adjusts a Server before routes are built.
type Option func(*Server)

// WithMailer replaces the mail sender chosen from config.
func WithMailer(m mail.Sender) Option {
	return func(s *Server) { s.mailer = m }
}

// WithStore uses an already open store instead of opening one from config.
func WithStore(store repository.Store) Option {
	return func(s *Server) { s.store = store }
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		metrics: middleware.NewMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		store, err := openStore(ctx, cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		s.store = store
	}
	if s.mailer == nil {
		s.mailer = newMailer(cfg, logger)
	}

	if err := s.setupRoutes(); err != nil {
		s.store.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (repository.Store, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		return mongoRepo.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case config.DriverSQLite:
		return sqliteRepo.New(cfg.DBPath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// newMailer sends through SendGrid when a key is configured and otherwise
// logs each message, which is enough for local development.
func newMailer(cfg *config.Config, logger *slog.Logger) mail.Sender {
	if cfg.Mail.SendGridAPIKey == "" {
		logger.Warn("SENDGRID_API_KEY not set, emails will be logged instead of sent")
		return mail.NewLogSender(logger)
	}
	return mail.NewSendGridSender(cfg.Mail.SendGridAPIKey, cfg.Mail.AppName, cfg.Mail.From, logger)
}

func (s *Server) setupRoutes() error {
	sessions, err := auth.NewTokenService(s.config.Auth.JWTSecret, s.config.Auth.SessionTTL)
	if err != nil {
		return err
	}
	links, err := auth.NewLinkTokens(s.config.Auth.JWTSecret)
	if err != nil {
		return err
	}
	entities := model.NewEntities(s.store, auth.NewPasswordService(s.config.Auth.BcryptCost))

	authSvc := service.NewAuthService(entities, sessions, links, s.mailer, s.config.BaseURL, s.logger)
	classSvc := service.NewClassService(entities, s.logger)
	taskSvc := service.NewTaskService(entities, s.logger)
	calendarSvc := service.NewCalendarService(s.logger)

	authHandler := handler.NewAuthHandler(authSvc, sessions.TTL(), s.config.IsProduction(), s.logger)
	classHandler := handler.NewClassHandler(classSvc, authSvc, s.logger)
	taskHandler := handler.NewTaskHandler(taskSvc, authSvc, s.logger)
	calendarHandler := handler.NewCalendarHandler(calendarSvc, authSvc, s.logger)

	// Order matters: RequestID before Logger so the id is logged, Recoverer
	// inside both so a panic still gets a logged 500.
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(s.metrics.Middleware)
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.With(auth.OptionalAuth(sessions)).Post("/logout", authHandler.HandleLogout)
		r.Get("/confirm/{token}", authHandler.HandleConfirm)
		r.Post("/forgot", authHandler.HandleForgot)
		r.Post("/reset/{token}", authHandler.HandleReset)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(sessions))

		r.Get("/me", authHandler.HandleMe)
		r.Put("/me", authHandler.HandleUpdateMe)
		r.Post("/account/password", authHandler.HandleChangePassword)

		r.Get("/classes", classHandler.HandleList)
		r.Post("/classes", classHandler.HandleCreate)
		r.Post("/classes/leave-unviewable", classHandler.HandleLeaveUnviewable)
		r.Route("/classes/{id}", func(r chi.Router) {
			r.Get("/", classHandler.HandleGet)
			r.Put("/", classHandler.HandleUpdate)
			r.Delete("/", classHandler.HandleDelete)
			r.Post("/archive", classHandler.HandleArchive)
			r.Post("/unarchive", classHandler.HandleUnarchive)
			r.Post("/join", classHandler.HandleJoin)
			r.Post("/leave", classHandler.HandleLeave)
			r.Get("/members", classHandler.HandleMembers)
			r.Post("/members", classHandler.HandleAddMember)
			r.Delete("/members/{accountID}", classHandler.HandleRemoveMember)
			r.Get("/tasks", taskHandler.HandleListForClass)
			r.Post("/tasks", taskHandler.HandleCreate)
		})

		r.Get("/tasks", taskHandler.HandleUpcoming)
		r.Route("/tasks/{id}", func(r chi.Router) {
			r.Get("/", taskHandler.HandleGet)
			r.Put("/", taskHandler.HandleUpdate)
			r.Delete("/", taskHandler.HandleDelete)
			r.Post("/archive", taskHandler.HandleArchive)
			r.Post("/unarchive", taskHandler.HandleUnarchive)
		})

		r.Get("/calendar", calendarHandler.HandleCurrent)
		r.Get("/calendar/{year}/{month}", calendarHandler.HandleMonth)
	})

	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the store.
func (s *Server) Close() error {
	return s.store.Close()
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests for
// up to 30 seconds.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("env", s.config.Env),
			slog.String("store", s.config.Store.Driver),
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

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
