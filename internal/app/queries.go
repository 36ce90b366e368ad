package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/posture/internal/adapters/repository"
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/internal/domain/ranking"
	"github.com/okian/posture/internal/domain/tracker"
	"github.com/okian/posture/internal/domain/types"
	"github.com/okian/posture/pkg/metrics"
)

// Status returns the live session snapshot. Before Start it only carries the
// user name.
func (s *Service) Status(_ context.Context) tracker.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.liveLocked()
}

func (s *Service) liveLocked() tracker.Snapshot {
	if s.tracker == nil {
		return tracker.Snapshot{User: s.user}
	}
	return s.tracker.Snapshot()
}

// Report ranks the monitored user. After Stop it returns the report taken at
// shutdown, once every queued transition was written.
func (s *Service) Report(ctx context.Context) (ranking.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		if s.final == nil {
			return ranking.Report{}, ErrStopped
		}
		return s.final.report, s.final.err
	}
	return s.reportLocked(ctx)
}

func (s *Service) reportLocked(ctx context.Context) (ranking.Report, error) {
	if s.user == "" {
		return ranking.Report{}, ErrNoUser
	}
	live, history, err := s.aggregatesLocked(ctx)
	if err != nil {
		metrics.RecordReport("error")
		return ranking.Report{}, err
	}
	report, err := s.engine.BuildReport(s.user, live, history, s.now())
	switch {
	case err == nil:
		metrics.RecordReport("ok")
	case errors.Is(err, ranking.ErrNoData):
		metrics.RecordReport("no_data")
		s.message("warn", "No data available for report.")
	case errors.Is(err, ranking.ErrUserNotFound):
		metrics.RecordReport("no_user_data")
		s.message("warn", "No data for current user.")
	default:
		metrics.RecordReport("error")
	}
	return report, err
}

// Rank returns the standing of any user, including the live session.
func (s *Service) Rank(ctx context.Context, user string) (types.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	live, history, err := s.aggregatesLocked(ctx)
	if err != nil {
		return types.Entry{}, err
	}
	st, err := s.engine.Rank(user, withLive(history, live))
	if err != nil {
		return types.Entry{}, err
	}
	return types.Entry{
		Rank:       st.Rank,
		User:       st.User,
		Ratio:      st.Ratio,
		Percentile: st.Percentile,
		GoodMs:     st.GoodTime.Milliseconds(),
		TotalMs:    st.TotalTime.Milliseconds(),
	}, nil
}

// Leaderboard returns the first limit users by ratio.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]types.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	live, history, err := s.aggregatesLocked(ctx)
	if err != nil {
		return nil, err
	}
	return s.engine.Leaderboard(withLive(history, live), limit)
}

// Preview returns the latest annotated frame when previews are enabled.
func (s *Service) Preview(_ context.Context) (model.Frame, bool) {
	s.mu.RLock()
	previews := s.previews
	s.mu.RUnlock()
	if previews == nil {
		return model.Frame{}, false
	}
	return previews.Latest()
}

// aggregatesLocked loads stored history without the live session's own
// records; the accumulator already holds them, including any still queued.
func (s *Service) aggregatesLocked(ctx context.Context) (tracker.Snapshot, []model.UserAggregate, error) {
	live := s.liveLocked()
	store, err := s.openStoreLocked(ctx)
	if err != nil {
		return live, nil, err
	}
	history, err := store.Aggregates(ctx, repository.AggregateFilter{ExcludeSession: live.SessionID})
	if err != nil {
		return live, nil, fmt.Errorf("load history: %w", err)
	}
	return live, history, nil
}

func withLive(history []model.UserAggregate, live tracker.Snapshot) []model.UserAggregate {
	if live.User == "" || live.Observations == 0 {
		return history
	}
	return append(history, live.Aggregate())
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started": s.started && !s.stopped,
		"user":    s.user,
	}
	if !s.started {
		return stats
	}

	snap := s.tracker.Snapshot()
	cam := s.camera.Stats()
	buf := s.frames.Stats()
	stats["session_id"] = s.sessionID
	stats["status"] = snap.Status.Key()
	stats["good_seconds"] = snap.GoodTime.Seconds()
	stats["slouch_seconds"] = snap.SlouchTime.Seconds()
	stats["ratio"] = snap.Ratio()
	stats["observations"] = snap.Observations
	stats["transitions"] = snap.Transitions
	stats["camera_running"] = cam.Running
	stats["frames_captured"] = cam.Captured
	stats["frame_failures"] = cam.Failures
	stats["camera_reopens"] = cam.Reopens
	stats["frames_published"] = buf.Published
	stats["frames_overwritten"] = buf.Overwritten
	stats["ticks_fired"] = s.cadence.Fired()
	stats["ticks_skipped"] = s.cadence.Skipped()
	stats["queue_length"] = s.queue.Len(ctx)
	stats["queue_capacity"] = s.queue.Capacity()
	stats["records_written"] = s.pool.Written()
	stats["records_failed"] = s.pool.Failed()
	return stats
}
