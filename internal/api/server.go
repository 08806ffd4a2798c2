// Package api serves optimizations and run history over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/efl/internal/config"
	"github.com/sells-group/efl/internal/model"
	"github.com/sells-group/efl/internal/optimize"
	"github.com/sells-group/efl/internal/store"
)

// Runner executes one optimization. *optimize.Optimizer implements it.
type Runner interface {
	Run(ctx context.Context, data optimize.Data, p model.Params) (*model.Result, error)
}

// Server holds the handler dependencies. Store may be nil, in which case
// run history routes answer 503.
type Server struct {
	runner Runner
	store    store.Store
	cfg      config.ServerConfig
	defaults config.ModelConfig
	log      *zap.Logger
}

// NewServer creates a Server. defaults fill parameters a request omits,
// the same way the CLI flags fall back to the model config.
func NewServer(cfg config.ServerConfig, defaults config.ModelConfig, runner Runner, st store.Store) *Server {
	return &Server{
		runner:   runner,
		store:    st,
		cfg:      cfg,
		defaults: defaults,
		log:    zap.L().With(zap.String("component", "api")),
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/optimize", s.optimize)
		r.Get("/runs", s.listRuns)
		r.Get("/runs/{id}", s.getRun)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api: listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return eris.Wrap(err, "api: listen")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s.log.Info("api: shutting down")
		return eris.Wrap(srv.Shutdown(shutdownCtx), "api: shutdown")
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
