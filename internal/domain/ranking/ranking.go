// Package ranking orders users by good-posture ratio and derives the
// rank-based percentile shown in session reports.
package ranking

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/internal/domain/types"
)

// RatioMode selects how a user's good-posture ratio is computed.
type RatioMode int

const (
	// RatioByDuration divides good time by total time.
	RatioByDuration RatioMode = iota
	// RatioByCount divides good records by total records.
	RatioByCount
)

// ParseRatioMode accepts "duration" or "count".
func ParseRatioMode(v string) (RatioMode, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "duration":
		return RatioByDuration, nil
	case "count":
		return RatioByCount, nil
	default:
		return RatioByDuration, fmt.Errorf("unknown ratio mode %q", v)
	}
}

func (m RatioMode) String() string {
	if m == RatioByCount {
		return "count"
	}
	return "duration"
}

// Standing is a user's place in the ordering.
type Standing struct {
	User       string
	Ratio      float64
	Rank       int
	TotalUsers int
	Percentile float64
	GoodTime   time.Duration
	TotalTime  time.Duration
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithRatioMode sets the ratio mode.
func WithRatioMode(m RatioMode) Option {
	return func(e *Engine) { e.mode = m }
}

// Engine ranks users. It is stateless and safe for concurrent use.
type Engine struct {
	mode RatioMode
}

// NewEngine creates an engine using duration ratios.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{mode: RatioByDuration}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Mode returns the configured ratio mode.
func (e *Engine) Mode() RatioMode { return e.mode }

// Ratio returns the user's good-posture ratio, 0 when there is no history.
func (e *Engine) Ratio(a model.UserAggregate) float64 {
	if e.mode == RatioByCount {
		if a.TotalRecords <= 0 {
			return 0
		}
		return float64(a.GoodRecords) / float64(a.TotalRecords)
	}
	if a.TotalTime <= 0 {
		return 0
	}
	return float64(a.GoodTime) / float64(a.TotalTime)
}

// Percentile is ((total - rank + 1) / total) * 100: 100 for the best user and
// 100/total for the worst.
func Percentile(rank, total int) float64 {
	if total <= 0 || rank <= 0 || rank > total {
		return 0
	}
	return float64(total-rank+1) / float64(total) * 100
}

// Order returns every user sorted by ratio descending, ties broken by user
// name ascending, with 1-indexed ranks. Rows for the same user are merged.
func (e *Engine) Order(aggregates []model.UserAggregate) []Standing {
	merged := mergeByUser(aggregates)

	out := make([]Standing, 0, len(merged))
	for _, a := range merged {
		out = append(out, Standing{
			User:      a.User,
			Ratio:     e.Ratio(a),
			GoodTime:  a.GoodTime,
			TotalTime: a.TotalTime,
		})
	}
	sortStandings(out)

	total := len(out)
	for i := range out {
		out[i].Rank = i + 1
		out[i].TotalUsers = total
		out[i].Percentile = Percentile(i+1, total)
	}
	return out
}

// Rank returns the standing of one user.
func (e *Engine) Rank(user string, aggregates []model.UserAggregate) (Standing, error) {
	ordered := e.Order(aggregates)
	if len(ordered) == 0 {
		return Standing{}, ErrNoData
	}
	for _, s := range ordered {
		if s.User == user {
			return s, nil
		}
	}
	return Standing{}, fmt.Errorf("%w: %s", ErrUserNotFound, user)
}

// Leaderboard returns the first limit entries of the ordering.
func (e *Engine) Leaderboard(aggregates []model.UserAggregate, limit int) ([]types.Entry, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	ordered := e.Order(aggregates)
	if limit > len(ordered) {
		limit = len(ordered)
	}
	entries := make([]types.Entry, 0, limit)
	for _, s := range ordered[:limit] {
		entries = append(entries, types.Entry{
			Rank:       s.Rank,
			User:       s.User,
			Ratio:      s.Ratio,
			Percentile: s.Percentile,
			GoodMs:     s.GoodTime.Milliseconds(),
			TotalMs:    s.TotalTime.Milliseconds(),
		})
	}
	return entries, nil
}

func sortStandings(s []Standing) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Ratio != s[j].Ratio {
			return s[i].Ratio > s[j].Ratio
		}
		return s[i].User < s[j].User
	})
}

func mergeByUser(aggregates []model.UserAggregate) []model.UserAggregate {
	idx := make(map[string]int, len(aggregates))
	out := make([]model.UserAggregate, 0, len(aggregates))
	for _, a := range aggregates {
		if i, ok := idx[a.User]; ok {
			out[i] = out[i].Add(a)
			continue
		}
		idx[a.User] = len(out)
		out = append(out, a)
	}
	return out
}
