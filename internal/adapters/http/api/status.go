package api

import (
	"context"
	"net/http"
	"time"

	"github.com/okian/posture/internal/domain/tracker"
)

// StatusDependencies defines the interface for live status reads.
type StatusDependencies interface {
	Status(ctx context.Context) tracker.Snapshot
}

// StatusHandler handles status requests.
type StatusHandler struct {
	deps StatusDependencies
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(deps StatusDependencies) *StatusHandler {
	return &StatusHandler{deps: deps}
}

type statusResponse struct {
	SessionID    string     `json:"session_id"`
	User         string     `json:"user"`
	Status       string     `json:"status"`
	Label        string     `json:"label"`
	Color        string     `json:"color"`
	GoodMs       int64      `json:"good_ms"`
	SlouchMs     int64      `json:"slouch_ms"`
	TotalMs      int64      `json:"total_ms"`
	Ratio        float64    `json:"ratio"`
	Observations int        `json:"observations"`
	Transitions  int        `json:"transitions"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	LastChangeAt *time.Time `json:"last_change_at,omitempty"`
	Closed       bool       `json:"closed"`
}

func newStatusResponse(s tracker.Snapshot) statusResponse {
	out := statusResponse{
		SessionID:    s.SessionID,
		User:         s.User,
		Status:       s.Status.Key(),
		Label:        s.Status.String(),
		Color:        s.Status.Color(),
		GoodMs:       s.GoodTime.Milliseconds(),
		SlouchMs:     s.SlouchTime.Milliseconds(),
		TotalMs:      s.Total().Milliseconds(),
		Ratio:        s.Ratio(),
		Observations: s.Observations,
		Transitions:  s.Transitions,
		Closed:       s.Closed,
	}
	if !s.StartedAt.IsZero() {
		started, changed := s.StartedAt, s.LastChangeAt
		out.StartedAt, out.LastChangeAt = &started, &changed
	}
	return out
}

// HandleStatus handles GET /status requests.
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, newStatusResponse(h.deps.Status(r.Context())))
}
