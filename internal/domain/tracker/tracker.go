// Package tracker accumulates posture durations and detects status transitions.
package tracker

import (
	"sync"
	"time"

	"github.com/okian/posture/internal/domain/model"
)

// Snapshot is a point-in-time copy of the session accumulator.
type Snapshot struct {
	SessionID      string
	User           string
	Status         model.PostureStatus
	GoodTime       time.Duration
	SlouchTime     time.Duration
	StartedAt      time.Time
	LastChangeAt   time.Time
	LastObservedAt time.Time
	Observations   int
	Transitions    int
	GoodRecords    int
	Closed         bool
}

// Total is the accounted session time.
func (s Snapshot) Total() time.Duration { return s.GoodTime + s.SlouchTime }

// Ratio is the share of accounted time spent in good posture, 0 when nothing
// has been accounted yet.
func (s Snapshot) Ratio() float64 {
	total := s.Total()
	if total <= 0 {
		return 0
	}
	return float64(s.GoodTime) / float64(total)
}

// Aggregate expresses the live session as a user aggregate. The still-open
// interval counts as one record.
func (s Snapshot) Aggregate() model.UserAggregate {
	agg := model.UserAggregate{
		User:         s.User,
		GoodTime:     s.GoodTime,
		TotalTime:    s.Total(),
		GoodRecords:  s.GoodRecords,
		TotalRecords: s.Transitions,
	}
	if s.Status != model.StatusUninitialized && !s.Closed {
		agg.TotalRecords++
		if s.Status == model.StatusGood {
			agg.GoodRecords++
		}
	}
	return agg
}

// Result describes the effect of one observation.
type Result struct {
	From    model.PostureStatus
	To      model.PostureStatus
	Changed bool
	// Record is set when a previous interval was closed by this observation.
	Record *model.TransitionRecord
}

// Tracker is the per-session status state machine. States move from
// Uninitialized to GoodPosture or Slouch and between the latter two.
//
// Durations are accounted between consecutive observations so that
// good + slouch always equals the time since the first observation. A
// transition record carries the full time its status was held.
type Tracker struct {
	mu sync.Mutex

	sessionID string
	user      string

	status         model.PostureStatus
	good           time.Duration
	slouch         time.Duration
	startedAt      time.Time
	lastChangeAt   time.Time
	lastObservedAt time.Time
	observations   int
	transitions    int
	goodRecords    int
	closed         bool
}

// New creates a tracker for one session.
func New(user, sessionID string) *Tracker {
	return &Tracker{user: user, sessionID: sessionID}
}

// Observe applies a status sampled at now.
func (t *Tracker) Observe(status model.PostureStatus, now time.Time) Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	res := Result{From: t.status, To: status}
	if t.closed || status == model.StatusUninitialized {
		res.To = t.status
		return res
	}

	t.observations++
	if t.status == model.StatusUninitialized {
		t.startedAt = now
		t.lastChangeAt = now
		t.lastObservedAt = now
		t.status = status
		res.Changed = true
		return res
	}

	t.accrue(now)

	if status != t.status {
		rec := t.closeInterval(now)
		res.Record = &rec
		res.Changed = true
		t.status = status
		t.lastChangeAt = now
	}
	return res
}

// Flush closes the open interval at session end. It returns false when there
// is nothing to close. The tracker accepts no observations afterwards.
func (t *Tracker) Flush(now time.Time) (model.TransitionRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return model.TransitionRecord{}, false
	}
	t.closed = true
	if t.status == model.StatusUninitialized {
		return model.TransitionRecord{}, false
	}
	t.accrue(now)
	return t.closeInterval(now), true
}

// Snapshot returns a copy of the accumulator.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		SessionID:      t.sessionID,
		User:           t.user,
		Status:         t.status,
		GoodTime:       t.good,
		SlouchTime:     t.slouch,
		StartedAt:      t.startedAt,
		LastChangeAt:   t.lastChangeAt,
		LastObservedAt: t.lastObservedAt,
		Observations:   t.observations,
		Transitions:    t.transitions,
		GoodRecords:    t.goodRecords,
		Closed:         t.closed,
	}
}

// accrue adds the time since the last observation to the current status.
func (t *Tracker) accrue(now time.Time) {
	elapsed := now.Sub(t.lastObservedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	switch t.status {
	case model.StatusGood:
		t.good += elapsed
	case model.StatusSlouch:
		t.slouch += elapsed
	}
	if now.After(t.lastObservedAt) {
		t.lastObservedAt = now
	}
}

func (t *Tracker) closeInterval(now time.Time) model.TransitionRecord {
	held := now.Sub(t.lastChangeAt)
	if held < 0 {
		held = 0
	}
	t.transitions++
	if t.status == model.StatusGood {
		t.goodRecords++
	}
	return model.TransitionRecord{
		SessionID: t.sessionID,
		User:      t.user,
		EnteredAt: t.lastChangeAt,
		Status:    t.status,
		Duration:  held,
	}
}
