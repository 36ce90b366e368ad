package ranking

import "errors"

// Sentinel errors. Both are ordinary outcomes for callers, not failures of
// the engine.
var (
	ErrNoData       = errors.New("no data available for report")
	ErrUserNotFound = errors.New("no data for user")
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
)
