// Package api serves the posture monitor over HTTP: live status, reports,
// ranking, previews, counters and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/internal/domain/ranking"
	"github.com/okian/posture/internal/domain/tracker"
	"github.com/okian/posture/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Status returns the live session snapshot.
	Status(ctx context.Context) tracker.Snapshot

	// Report ranks the current user against stored history and the live session.
	Report(ctx context.Context) (ranking.Report, error)

	// Read operations expose leaderboard data.
	Leaderboard(ctx context.Context, limit int) ([]Entry, error)
	Rank(ctx context.Context, user string) (Entry, error)

	// Preview returns the latest annotated frame, if any.
	Preview(ctx context.Context) (model.Frame, bool)
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Server wires HTTP routes for the monitor API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	statusHandler      *StatusHandler
	reportHandler      *ReportHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	previewHandler     *PreviewHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxLimit int) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		statusHandler:      NewStatusHandler(deps),
		reportHandler:      NewReportHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps, maxLimit),
		rankHandler:        NewRankHandler(deps),
		previewHandler:     NewPreviewHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/status", MetricsMiddleware(s.statusHandler.HandleStatus, "status"))
	mux.HandleFunc("/report", MetricsMiddleware(s.reportHandler.HandleReport, "report"))
	mux.HandleFunc("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/rank/", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
	mux.HandleFunc("/preview", MetricsMiddleware(s.previewHandler.HandlePreview, "preview"))
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

// writeDomainError maps ranking outcomes to 404 and everything else to 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ranking.ErrNoData):
		writeError(w, http.StatusNotFound, "no_data", err)
	case errors.Is(err, ranking.ErrUserNotFound), errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
