package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"taskmill/internal/schedule"
	"taskmill/internal/taskqueue"
)

// Server is the HTTP front of the service. Routes stay thin: parse the
// request, call the logic layer, marshal the result.
type Server struct {
	svc    *schedule.Service
	queue  *taskqueue.Queue
	router *chi.Mux
	http   *http.Server
}

// NewServer builds the router and binds it to addr.
func NewServer(svc *schedule.Service, queue *taskqueue.Queue, addr string) *Server {
	s := &Server{
		svc:    svc,
		queue:  queue,
		router: chi.NewRouter(),
	}
	s.setupRoutes()
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(requestLogger)

	s.router.Get("/", s.handleIndex)
	s.router.Route("/task", func(r chi.Router) {
		r.Get("/", s.handleListTasks)
		r.Post("/", s.handleCreateTask)
		r.Put("/{id}", s.handleUpdateTask)
		r.Delete("/{id}", s.handleDeleteTask)
		r.Get("/{id}/history", s.handleTaskHistory)
	})
	s.router.Get("/queue-task", s.handleQueueTasks)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.http.Addr).Msg("HTTP server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
