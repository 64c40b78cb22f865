// Package adminserver exposes an Engine over HTTP: a small REST surface
// for put/get/remove and stats, an optional GraphQL query endpoint, and a
// WebSocket change feed that streams every committed mutation.
package adminserver

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mnohosten/lsmdb/pkg/changefeed"
	"github.com/mnohosten/lsmdb/pkg/engine"
	gql "github.com/mnohosten/lsmdb/pkg/graphql"
)

// Server is the admin HTTP server over an open Engine.
type Server struct {
	config  *Config
	eng     *engine.Engine
	router  *chi.Mux
	httpSrv *http.Server
	feed    *changefeed.Hub
}

// New builds a Server around an already-open engine.
func New(config *Config, eng *engine.Engine) (*Server, error) {
	s := &Server{
		config: config,
		eng:    eng,
		router: chi.NewRouter(),
		feed:   changefeed.NewHub(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Logger)
	if config.EnableCORS {
		s.router.Use(s.corsMiddleware)
	}
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
			next.ServeHTTP(w, r)
		})
	})

	s.setupRoutes()

	if config.EnableGraphQL {
		if err := s.setupGraphQLRoutes(); err != nil {
			return nil, fmt.Errorf("adminserver: %w", err)
		}
	}

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s, nil
}

func (s *Server) setupRoutes() {
	h := &handlers{eng: s.eng, cf: s.feed}

	s.router.Get("/stats", h.handleStats)
	s.router.Get("/changes", s.feed.ServeWS)
	s.router.Get("/{key}", h.handleGet)
	s.router.Put("/{key}", h.handlePut)
	s.router.Delete("/{key}", h.handleDelete)
}

func (s *Server) setupGraphQLRoutes() error {
	handler, err := gql.NewHandler(s.eng)
	if err != nil {
		return fmt.Errorf("graphql: %w", err)
	}
	s.router.Post("/graphql", handler.ServeHTTP)
	s.router.Get("/graphiql", gql.GraphiQLHandler())
	return nil
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start runs the HTTP server until an OS interrupt/terminate signal
// arrives, then shuts down gracefully.
func (s *Server) Start() error {
	fmt.Printf("lsmdb admin server listening on http://%s:%d\n", s.config.Host, s.config.Port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("adminserver: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		return s.Shutdown()
	}
}

// Shutdown stops the HTTP server and the change feed, then closes the
// engine.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "adminserver: shutdown: %v\n", err)
	}
	s.feed.Close()
	return s.eng.Close()
}
