package api

import (
	"context"
	"net/http"
	"time"

	"github.com/okian/posture/internal/domain/ranking"
)

// ReportDependencies defines the interface for report generation.
type ReportDependencies interface {
	Report(ctx context.Context) (ranking.Report, error)
}

// ReportHandler handles report requests.
type ReportHandler struct {
	deps ReportDependencies
}

// NewReportHandler creates a new report handler.
func NewReportHandler(deps ReportDependencies) *ReportHandler {
	return &ReportHandler{deps: deps}
}

type sessionResponse struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Status    string    `json:"status"`
	GoodMs    int64     `json:"good_ms"`
	SlouchMs  int64     `json:"slouch_ms"`
	Ratio     float64   `json:"ratio"`
}

type reportResponse struct {
	User        string           `json:"user"`
	Session     *sessionResponse `json:"session,omitempty"`
	Ratio       float64          `json:"ratio"`
	GoodMs      int64            `json:"good_ms"`
	TotalMs     int64            `json:"total_ms"`
	Rank        int              `json:"rank"`
	TotalUsers  int              `json:"total_users"`
	Percentile  float64          `json:"percentile"`
	RatioMode   string           `json:"ratio_mode"`
	GeneratedAt time.Time        `json:"generated_at"`
	Text        string           `json:"text"`
}

func newReportResponse(r ranking.Report) reportResponse {
	out := reportResponse{
		User:        r.User,
		Ratio:       r.Ratio,
		GoodMs:      r.GoodTime.Milliseconds(),
		TotalMs:     r.TotalTime.Milliseconds(),
		Rank:        r.Rank,
		TotalUsers:  r.TotalUsers,
		Percentile:  r.Percentile,
		RatioMode:   r.RatioMode.String(),
		GeneratedAt: r.GeneratedAt,
		Text:        r.Text(),
	}
	if r.Session.ID != "" {
		out.Session = &sessionResponse{
			ID:        r.Session.ID,
			StartedAt: r.Session.StartedAt,
			Status:    r.Session.Status.Key(),
			GoodMs:    r.Session.GoodTime.Milliseconds(),
			SlouchMs:  r.Session.SlouchTime.Milliseconds(),
			Ratio:     r.Session.Ratio,
		}
	}
	return out
}

// HandleReport handles GET /report requests for the monitored user.
func (h *ReportHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_report"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	report, err := h.deps.Report(r.Context())
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, newReportResponse(report))
}
