package model

import "time"

// TransitionRecord is one closed interval of a status. Records are
// append-only and never mutated once written.
type TransitionRecord struct {
	SessionID string
	User      string
	EnteredAt time.Time
	Status    PostureStatus
	Duration  time.Duration
}

// UserAggregate sums a user's transition history.
type UserAggregate struct {
	User         string
	GoodTime     time.Duration
	TotalTime    time.Duration
	GoodRecords  int
	TotalRecords int
}

// Add merges another aggregate for the same user.
func (a UserAggregate) Add(o UserAggregate) UserAggregate {
	a.GoodTime += o.GoodTime
	a.TotalTime += o.TotalTime
	a.GoodRecords += o.GoodRecords
	a.TotalRecords += o.TotalRecords
	return a
}

// StatusEvent notifies sinks of a status change.
type StatusEvent struct {
	User    string
	Status  PostureStatus
	Color   string
	Message string
	At      time.Time
}

// LogEvent is a free-form line for the sink's log panel.
type LogEvent struct {
	Level   string
	Message string
	At      time.Time
}
