// Package api serves the calculation service's HTTP surface: the PnL
// summary, a status endpoint, and a JWT-guarded admin view of the
// commit tracker.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"powerpnl/internal/calcpipe"
	"powerpnl/internal/config"
	"powerpnl/internal/pnlview"
)

// PipelineStatus exposes the commit tracker's per-partition state.
type PipelineStatus interface {
	Snapshot() []calcpipe.PartitionStatus
}

type Server struct {
	view       *pnlview.View
	pipeline   PipelineStatus
	limiter    *ipLimiter
	jwtSecret  string
	httpServer *http.Server
}

func NewServer(cfg *config.Config, view *pnlview.View, pipeline PipelineStatus) *Server {
	s := &Server{
		view:      view,
		pipeline:  pipeline,
		limiter:   newIPLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		jwtSecret: cfg.AdminJWTSecret,
	}

	r := mux.NewRouter()
	r.Use(commonMiddleware)
	r.Use(s.rateLimitMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/v1/pnl/summary", s.handleSummary).Methods("GET")
	r.HandleFunc("/v1/status", s.handleStatus).Methods("GET")

	// Admin routes only exist when a secret is configured.
	if s.jwtSecret != "" {
		admin := r.PathPrefix("/v1/admin").Subrouter()
		admin.Use(s.adminAuthMiddleware)
		admin.HandleFunc("/pipeline", s.handleAdminPipeline).Methods("GET")
	}

	s.httpServer = &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.HTTPPort),
		Handler: r,
	}
	return s
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func commonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
