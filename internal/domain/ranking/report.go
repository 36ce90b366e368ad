package ranking

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/internal/domain/tracker"
)

// SessionSummary describes the live session.
type SessionSummary struct {
	ID         string
	StartedAt  time.Time
	Status     model.PostureStatus
	GoodTime   time.Duration
	SlouchTime time.Duration
	Ratio      float64
}

// Report combines the live session with the user's historical standing.
type Report struct {
	User        string
	Session     SessionSummary
	Ratio       float64
	GoodTime    time.Duration
	TotalTime   time.Duration
	Rank        int
	TotalUsers  int
	Percentile  float64
	RatioMode   RatioMode
	GeneratedAt time.Time
}

// BuildReport ranks user against history plus the live session. history must
// not contain the live session's own records; they are represented by live.
// live may be the zero Snapshot when no session is running.
func (e *Engine) BuildReport(user string, live tracker.Snapshot, history []model.UserAggregate, now time.Time) (Report, error) {
	aggregates := make([]model.UserAggregate, 0, len(history)+1)
	aggregates = append(aggregates, history...)
	if live.User != "" && live.Observations > 0 {
		aggregates = append(aggregates, live.Aggregate())
	}

	standing, err := e.Rank(user, aggregates)
	if err != nil {
		return Report{}, err
	}

	r := Report{
		User:        user,
		Ratio:       standing.Ratio,
		GoodTime:    standing.GoodTime,
		TotalTime:   standing.TotalTime,
		Rank:        standing.Rank,
		TotalUsers:  standing.TotalUsers,
		Percentile:  standing.Percentile,
		RatioMode:   e.mode,
		GeneratedAt: now,
	}
	if live.User == user {
		r.Session = SessionSummary{
			ID:         live.SessionID,
			StartedAt:  live.StartedAt,
			Status:     live.Status,
			GoodTime:   live.GoodTime,
			SlouchTime: live.SlouchTime,
			Ratio:      live.Ratio(),
		}
	}
	return r, nil
}

// Text renders the report in the plain layout of the monitor's log panel.
func (r Report) Text() string {
	var b strings.Builder
	b.WriteString("--- Report ---\n")
	fmt.Fprintf(&b, "User: %s\n", r.User)
	if r.Session.ID != "" {
		fmt.Fprintf(&b, "Session Good Posture Ratio: %.2f%%\n", r.Session.Ratio*100)
	}
	fmt.Fprintf(&b, "Good Posture Ratio: %.2f%%\n", r.Ratio*100)
	fmt.Fprintf(&b, "Rank: %d of %d\n", r.Rank, r.TotalUsers)
	fmt.Fprintf(&b, "Your ranking percentile: %.2f%%\n", r.Percentile)
	return b.String()
}
