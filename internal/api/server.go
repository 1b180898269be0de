// Package api serves the engine's read-only status API: a health check, the
// list of configured equipment and each unit's recent result rows. It carries
// no authentication and never changes engine state.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"aircx/internal/results"
	"aircx/internal/types"
	"aircx/internal/worker"
)

// RecentRows is the in-memory view of results (*results.Recorder).
type RecentRows interface {
	Rows(equipmentID string, n int) []results.TableRow
	Total(equipmentID string) int
}

// History is the persistent result store (*db.ResultRepository).
type History interface {
	Recent(ctx context.Context, table, equipmentID string, since time.Time, limit int) ([]results.TableRow, error)
	CountByColor(ctx context.Context, table, equipmentID string, tier types.Tier, since time.Time) (map[types.Color]int, error)
}

// StatsProvider reports engine counters (*worker.Runner).
type StatsProvider interface {
	RunID() string
	Stats() worker.Stats
}

// Server holds the API dependencies. Only Recent is required.
type Server struct {
	Logger       *slog.Logger
	Equipment    []string
	Table        string
	Recent       RecentRows
	History      History
	Stats        StatsProvider
	HealthProbes []HealthProbe

	known  map[string]struct{}
	router *chi.Mux
}

// NewServer builds the router. equipment lists the configured unit IDs;
// requests for any other ID are answered with 404.
func NewServer(logger *slog.Logger, equipment []string, recent RecentRows) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if recent == nil {
		return nil, fmt.Errorf("recent rows view must not be nil")
	}
	s := &Server{
		Logger:    logger,
		Equipment: equipment,
		Table:     results.DefaultTable,
		Recent:    recent,
		known:     make(map[string]struct{}, len(equipment)),
		router:    chi.NewRouter(),
	}
	for _, id := range equipment {
		s.known[id] = struct{}{}
	}
	s.mountRoutes()
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string, readHeaderTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("status api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status api: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("status api shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) mountRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.recoverer)
	s.router.Use(s.requestLogger)

	s.router.Get("/health", s.HandleHealth)
	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/equipment", s.handleListEquipment)
		r.Route("/equipment/{id}", func(r chi.Router) {
			r.Get("/results", s.handleResults)
			r.Get("/summary", s.handleSummary)
		})
	})
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		Error(w, r, types.NewAppError("not_found_route", "no such endpoint", nil))
	})
}

// recoverer turns a handler panic into a logged 500.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				s.Logger.Error("panic recovered",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("panic", fmt.Sprintf("%v", rvr)),
					slog.String("stack", string(debug.Stack())),
				)
				Error(w, r, fmt.Errorf("panic: %v", rvr))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs method, path, status and duration once per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		args := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		}
		switch {
		case ww.Status() >= 500:
			s.Logger.Error("request completed", args...)
		case ww.Status() >= 400:
			s.Logger.Warn("request completed", args...)
		default:
			s.Logger.Debug("request completed", args...)
		}
	})
}
