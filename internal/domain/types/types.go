// Package types contains common types used across the application
package types

// Entry represents a leaderboard entry
type Entry struct {
	Rank       int     `json:"rank"`
	User       string  `json:"user"`
	Ratio      float64 `json:"ratio"`
	Percentile float64 `json:"percentile"`
	GoodMs     int64   `json:"good_ms"`
	TotalMs    int64   `json:"total_ms"`
}
