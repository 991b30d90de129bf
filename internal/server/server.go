// Package server exposes the resolver and the portfolio store over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"portfolioquotes/internal/portfolio"
	"portfolioquotes/internal/resolver"
)

// Config holds server configuration.
type Config struct {
	Port       string
	AdminToken string
	Log        zerolog.Logger
	Resolver   *resolver.Resolver
	Store      portfolio.Store
	Refresher  *resolver.Refresher
}

// Server is the HTTP front of the tracker: read endpoints for both users,
// mutating endpoints gated behind the admin token.
type Server struct {
	router     *chi.Mux
	server     *http.Server
	log        zerolog.Logger
	resolver   *resolver.Resolver
	store      portfolio.Store
	refresher  *resolver.Refresher
	adminToken string
}

func New(cfg Config) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		log:        cfg.Log.With().Str("component", "server").Logger(),
		resolver:   cfg.Resolver,
		store:      cfg.Store,
		refresher:  cfg.Refresher,
		adminToken: cfg.AdminToken,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Admin-Token"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/quote/{symbol}", s.handleQuote)
		r.Get("/search", s.handleSearch)
		r.Get("/status", s.handleStatus)
		r.Get("/portfolio", s.handlePortfolio)
		r.Get("/transactions", s.handleTransactions)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/investments", s.handleAddInvestment)
			r.Put("/investments/{id}", s.handleUpdateInvestment)
			r.Post("/investments/{id}/sell", s.handleSell)
			r.Post("/refresh", s.handleRefresh)
		})
	})
}

// requireAdmin gates mutating endpoints behind the static shared secret.
// The token is role separation between the two users, not a security
// boundary.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" || r.Header.Get("X-Admin-Token") != s.adminToken {
			respondError(w, http.StatusForbidden, "admin token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

// Router exposes the mux for handler tests.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("server listening")
	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
