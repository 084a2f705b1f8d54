// Package types contains common types used across the application
package types

// Entry represents a leaderboard entry
type Entry struct {
	Rank   int     `json:"rank"`
	UserID int64   `json:"user_id"`
	Score  float64 `json:"score"`
}

// ScoreView is the activity score of one moderator under one calculator.
type ScoreView struct {
	UserID     int64   `json:"user_id"`
	Calculator string  `json:"calculator"`
	Days       int     `json:"days"`
	Mode       string  `json:"mode,omitempty"`
	Score      float64 `json:"score"`
}
