// Package model contains domain models passed between layers.
package model

import (
	"math"
	"time"
)

// ScoreComponents is one calculator's breakdown for a single nomination.
type ScoreComponents struct {
	RankedScore float64 `json:"ranked_score"`
	MapperScore float64 `json:"mapper_score"`
	MapsetScore float64 `json:"mapset_score"`
	Penalty     float64 `json:"penalty"`
	TotalScore  float64 `json:"total_score"`
}

// Rounded returns the components rounded to 2 decimals, the precision they are stored with.
func (c ScoreComponents) Rounded() ScoreComponents {
	return ScoreComponents{
		RankedScore: Round2(c.RankedScore),
		MapperScore: Round2(c.MapperScore),
		MapsetScore: Round2(c.MapsetScore),
		Penalty:     Round2(c.Penalty),
		TotalScore:  Round2(c.TotalScore),
	}
}

// Round2 rounds half away from zero to 2 decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Nomination is a moderator's nomination of a beatmapset.
// (BeatmapsetID, UserID) is the natural key.
type Nomination struct {
	ID            int64
	BeatmapsetID  int64
	UserID        int64
	ArtistTitle   string
	CreatorID     int64
	CreatorName   string
	Timestamp     time.Time
	AsModes       []Mode // explicit mode attribution; empty means derive
	AmbiguousMode bool   // flagged for operator review
	Scores        map[CalculatorName]ScoreComponents
}

// Score returns the components stored for a calculator.
func (n Nomination) Score(name CalculatorName) (ScoreComponents, bool) {
	c, ok := n.Scores[name]
	return c, ok
}

// HasMode reports whether the nomination is attributed to m.
func (n Nomination) HasMode(m Mode) bool {
	return ContainsMode(n.AsModes, m)
}

// Reset is a disqualification or pop. (BeatmapsetID, UserID, Timestamp) is
// the natural key; ID is an opaque identifier.
type Reset struct {
	ID           string
	BeatmapsetID int64
	UserID       int64 // who performed it
	ArtistTitle  string
	CreatorID    int64
	CreatorName  string
	Timestamp    time.Time
	Content      string
	DiscussionID int64
	Obviousness  int
	Severity     int
	Type         ResetType
	Affected     []int64 // penalised moderators
}

// Total is the combined rating used by penalty functions.
func (r Reset) Total() int { return r.Obviousness + r.Severity }

// Affects reports whether userID is in the affected list.
func (r Reset) Affects(userID int64) bool {
	for _, id := range r.Affected {
		if id == userID {
			return true
		}
	}
	return false
}
