// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/graftloss/internal/domain/types"
)

// defaultMaxLimit caps /importance?limit=N.
const defaultMaxLimit = 1000

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Progress returns the current run's unit counters.
	Progress(ctx context.Context) types.Progress

	// Summary returns the performance summary. Before the run ends it holds
	// the units finished so far and no importance.
	Summary(ctx context.Context) (types.RunSummary, error)

	// Importance returns the top limit features of a finished run.
	Importance(ctx context.Context, limit int) ([]types.ImportanceRow, error)
}

// Server wires HTTP routes for the results API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	progressHandler   *ProgressHandler
	summaryHandler    *SummaryHandler
	importanceHandler *ImportanceHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(statsProvider),
		progressHandler:   NewProgressHandler(deps),
		summaryHandler:    NewSummaryHandler(deps),
		importanceHandler: NewImportanceHandler(deps, defaultMaxLimit),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/progress", MetricsMiddleware(s.progressHandler.HandleProgress, "progress"))
	mux.HandleFunc("/summary", MetricsMiddleware(s.summaryHandler.HandleSummary, "summary"))
	mux.HandleFunc("/importance", MetricsMiddleware(s.importanceHandler.HandleImportance, "importance"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeReadError maps reader errors: no finished run yet is 503, anything else 500.
func writeReadError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, types.ErrNotReady) {
		writeError(w, http.StatusServiceUnavailable, "not_ready", Wrap(op, err))
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
}
